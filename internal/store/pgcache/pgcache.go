// Package pgcache is a PostgreSQL-backed sample cache with the same contract
// as the bbolt store. It lets several wxstation processes (for example a
// fleet of sync workers) share one cache.
package pgcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/derickschaefer/wxstation/internal/model"
)

// ErrNotConfigured indicates the pool was not initialised.
var ErrNotConfigured = errors.New("pgcache: pool not configured")

const (
	createSamplesSQL = `CREATE TABLE IF NOT EXISTS wx_samples (
        cache_table TEXT        NOT NULL,
        device_id   TEXT        NOT NULL,
        ts          TIMESTAMPTZ NOT NULL,
        local_date  DATE        NOT NULL,
        zone        TEXT        NOT NULL DEFAULT '',
        payload     JSONB       NOT NULL,
        PRIMARY KEY (cache_table, device_id, ts)
    );`

	createCoverageSQL = `CREATE TABLE IF NOT EXISTS wx_coverage (
        cache_table TEXT NOT NULL,
        device_id   TEXT NOT NULL,
        from_date   DATE NOT NULL,
        to_date     DATE NOT NULL
    );`

	createCoverageIndexSQL = `CREATE INDEX IF NOT EXISTS wx_coverage_device
        ON wx_coverage (cache_table, device_id);`

	upsertSampleSQL = `INSERT INTO wx_samples (
        cache_table, device_id, ts, local_date, zone, payload
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (cache_table, device_id, ts) DO UPDATE
    SET local_date = EXCLUDED.local_date,
        zone       = EXCLUDED.zone,
        payload    = EXCLUDED.payload;`

	listSamplesSQL = `SELECT zone, payload
    FROM wx_samples
    WHERE cache_table = $1
      AND device_id = $2
      AND local_date >= $3
      AND local_date <= $4
    ORDER BY ts;`

	listCoverageSQL = `SELECT from_date, to_date
    FROM wx_coverage
    WHERE cache_table = $1 AND device_id = $2
    ORDER BY from_date;`

	deleteCoverageSQL = `DELETE FROM wx_coverage WHERE cache_table = $1 AND device_id = $2;`

	insertCoverageSQL = `INSERT INTO wx_coverage (cache_table, device_id, from_date, to_date)
    VALUES ($1,$2,$3,$4);`

	deleteSamplesSQL = `DELETE FROM wx_samples WHERE cache_table = $1 AND device_id = $2;`

	deleteTableSamplesSQL  = `DELETE FROM wx_samples WHERE cache_table = $1;`
	deleteTableCoverageSQL = `DELETE FROM wx_coverage WHERE cache_table = $1;`
)

// PoolConfig holds connection settings.
type PoolConfig struct {
	DSN             string
	MaxConns        int
	ConnMaxLifetime time.Duration
}

// NewPool configures a PostgreSQL connection pool.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return pool, nil
}

// Migrate creates the cache tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return ErrNotConfigured
	}
	for _, stmt := range []string{createSamplesSQL, createCoverageSQL, createCoverageIndexSQL} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Cache is one logical cache table stored in PostgreSQL.
type Cache struct {
	pool  *pgxpool.Pool
	table string
}

// New wires a pool into a Cache for the named table.
func New(pool *pgxpool.Pool, table string) *Cache {
	return &Cache{pool: pool, table: table}
}

func (c *Cache) getPool() (*pgxpool.Pool, error) {
	if c == nil || c.pool == nil {
		return nil, ErrNotConfigured
	}
	return c.pool, nil
}

// Get returns cached samples for deviceID within window, or
// model.ErrCacheMiss when no recorded coverage overlaps the window.
func (c *Cache) Get(ctx context.Context, deviceID string, window model.DateWindow) (model.CacheEntry, error) {
	pool, err := c.getPool()
	if err != nil {
		return model.CacheEntry{}, err
	}
	if err := window.Validate(); err != nil {
		return model.CacheEntry{}, err
	}

	coverage, err := listCoverage(ctx, pool, c.table, deviceID)
	if err != nil {
		return model.CacheEntry{}, err
	}
	if !model.AnyOverlap(coverage, window) {
		return model.CacheEntry{}, model.ErrCacheMiss
	}

	rows, err := pool.Query(ctx, listSamplesSQL, c.table, deviceID, window.From, window.To)
	if err != nil {
		return model.CacheEntry{}, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	entry := model.CacheEntry{
		DeviceID: deviceID,
		Window:   window,
		Complete: model.Covers(coverage, window),
	}
	for rows.Next() {
		var zone string
		var payload []byte
		if err := rows.Scan(&zone, &payload); err != nil {
			return model.CacheEntry{}, fmt.Errorf("scan sample: %w", err)
		}
		var s model.Sample
		if err := json.Unmarshal(payload, &s); err != nil {
			return model.CacheEntry{}, fmt.Errorf("decode sample: %w", err)
		}
		if zone != "" {
			if loc, err := time.LoadLocation(zone); err == nil {
				s.Timestamp = s.Timestamp.In(loc)
			}
		}
		entry.Samples = append(entry.Samples, s)
	}
	if err := rows.Err(); err != nil {
		return model.CacheEntry{}, fmt.Errorf("list samples: %w", err)
	}
	entry.Samples = model.SortSamples(entry.Samples)
	return entry, nil
}

// Put upserts samples and extends coverage by their date span.
func (c *Cache) Put(ctx context.Context, deviceID string, samples []model.Sample) error {
	span, ok := model.SpanOf(samples)
	if !ok {
		return nil
	}
	return c.write(ctx, deviceID, span, samples)
}

// PutWindow upserts samples and records the whole window as covered.
func (c *Cache) PutWindow(ctx context.Context, deviceID string, window model.DateWindow, samples []model.Sample) error {
	if err := window.Validate(); err != nil {
		return err
	}
	return c.write(ctx, deviceID, window, samples)
}

func (c *Cache) write(ctx context.Context, deviceID string, covered model.DateWindow, samples []model.Sample) error {
	pool, err := c.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, s := range samples {
		payload, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode sample: %w", err)
		}
		batch.Queue(upsertSampleSQL, c.table, deviceID, s.Timestamp, s.Date(),
			s.Timestamp.Location().String(), payload)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert samples: %w", err)
		}
	}

	rows, err := tx.Query(ctx, listCoverageSQL, c.table, deviceID)
	if err != nil {
		return fmt.Errorf("list coverage: %w", err)
	}
	existing, err := scanCoverage(rows)
	if err != nil {
		return err
	}

	merged := model.MergeWindows(append(existing, covered))
	if _, err := tx.Exec(ctx, deleteCoverageSQL, c.table, deviceID); err != nil {
		return fmt.Errorf("delete coverage: %w", err)
	}
	for _, w := range merged {
		if _, err := tx.Exec(ctx, insertCoverageSQL, c.table, deviceID, w.From, w.To); err != nil {
			return fmt.Errorf("insert coverage: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// Clear drops everything cached for deviceID.
func (c *Cache) Clear(ctx context.Context, deviceID string) error {
	pool, err := c.getPool()
	if err != nil {
		return err
	}
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, deleteSamplesSQL, c.table, deviceID); err != nil {
		return fmt.Errorf("delete samples: %w", err)
	}
	if _, err := tx.Exec(ctx, deleteCoverageSQL, c.table, deviceID); err != nil {
		return fmt.Errorf("delete coverage: %w", err)
	}
	return tx.Commit(ctx)
}

// ClearAll drops every device in the table.
func (c *Cache) ClearAll(ctx context.Context) error {
	pool, err := c.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range []string{deleteTableSamplesSQL, deleteTableCoverageSQL} {
		if _, err := pool.Exec(ctx, stmt, c.table); err != nil {
			return fmt.Errorf("clear table %s: %w", c.table, err)
		}
	}
	return nil
}

func listCoverage(ctx context.Context, pool *pgxpool.Pool, table, deviceID string) ([]model.DateWindow, error) {
	rows, err := pool.Query(ctx, listCoverageSQL, table, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list coverage: %w", err)
	}
	return scanCoverage(rows)
}

func scanCoverage(rows pgx.Rows) ([]model.DateWindow, error) {
	defer rows.Close()
	var windows []model.DateWindow
	for rows.Next() {
		var w model.DateWindow
		if err := rows.Scan(&w.From, &w.To); err != nil {
			return nil, fmt.Errorf("scan coverage: %w", err)
		}
		windows = append(windows, model.NewDateWindow(w.From, w.To))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list coverage: %w", err)
	}
	return windows, nil
}
