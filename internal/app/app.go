// Package app wires together configuration, logging, the API client, the
// cache backend and the acquisition services into a single Deps struct that
// commands receive at runtime.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/derickschaefer/wxstation/internal/config"
	"github.com/derickschaefer/wxstation/internal/logging"
	"github.com/derickschaefer/wxstation/internal/metrics"
	"github.com/derickschaefer/wxstation/internal/rewards"
	"github.com/derickschaefer/wxstation/internal/station"
	"github.com/derickschaefer/wxstation/internal/store"
	"github.com/derickschaefer/wxstation/internal/store/pgcache"
	"github.com/derickschaefer/wxstation/internal/units"
	"github.com/derickschaefer/wxstation/internal/util"
	"github.com/derickschaefer/wxstation/internal/weather"
)

// Deps holds all runtime dependencies injected into command Run functions.
// The cache backend and the services built on it are opened lazily by
// RequireStore so commands that never touch the cache do not lock the
// database file.
type Deps struct {
	Config  *config.Config
	Log     zerolog.Logger
	Metrics *metrics.Metrics
	Client  *station.Client
	Rewards *rewards.Service
	Units   units.Provider
	Clock   util.Clock

	Store     *store.Store // bolt backend only
	Forecasts *weather.Forecasts
	History   *weather.History

	pool   *pgxpool.Pool
	tables map[string]tableCache
}

// tableCache is one cache table of either backend.
type tableCache interface {
	weather.Cache
	ClearAll(ctx context.Context) error
}

// New builds a Deps from resolved config.
func New(cfg *config.Config) *Deps {
	logCfg := cfg.Logging
	if cfg.Debug {
		logCfg.Level = "debug"
	}
	log := logging.New(logCfg)
	m := metrics.New()

	client := station.NewClient(station.Options{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.Timeout,
		Rate:        cfg.Rate,
		MaxFailures: cfg.Breaker.MaxFailures,
		OpenTimeout: cfg.Breaker.OpenTimeout,
		Logger:      log,
		Metrics:     m,
	})

	svc := rewards.NewService(client)
	svc.PageSize = cfg.PageSize
	svc.MaxPages = cfg.MaxPages

	return &Deps{
		Config:  cfg,
		Log:     log,
		Metrics: m,
		Client:  client,
		Rewards: svc,
		Units:   units.Static(cfg.Prefs),
		Clock:   util.SystemClock{},
	}
}

// RequireStore opens the configured cache backend and builds the forecast
// and history services on top of it. Calling it twice is a no-op.
func (d *Deps) RequireStore() error {
	if d.Forecasts != nil {
		return nil
	}

	d.tables = make(map[string]tableCache, len(store.AllTables))
	switch d.Config.Cache.Backend {
	case config.BackendPostgres:
		ctx := context.Background()
		pool, err := pgcache.NewPool(ctx, pgcache.PoolConfig{
			DSN:             d.Config.Database.DSN,
			MaxConns:        int(d.Config.Database.MaxConns),
			ConnMaxLifetime: d.Config.Database.ConnMaxLifetime,
		})
		if err != nil {
			return fmt.Errorf("opening postgres cache: %w", err)
		}
		if err := pgcache.Migrate(ctx, pool); err != nil {
			pool.Close()
			return err
		}
		d.pool = pool
		for _, table := range store.AllTables {
			d.tables[table] = pgcache.New(pool, table)
		}
	default:
		if d.Config.DBPath == "" {
			return errors.New("no database path configured (set db_path or WXSTATION_DB_PATH)")
		}
		s, err := store.Open(d.Config.DBPath)
		if err != nil {
			return fmt.Errorf("opening local store: %w", err)
		}
		d.Store = s
		for _, table := range store.AllTables {
			d.tables[table] = s.Table(table)
		}
	}

	d.Forecasts = weather.NewForecasts(d.tables[store.TableForecast], d.Client, d.Log, d.Metrics)
	d.Forecasts.PrefetchDays = d.Config.PrefetchDays
	d.History = weather.NewHistory(d.tables[store.TableHistory], d.Client, d.Clock, d.Log, d.Metrics)
	d.History.Granularity = d.Config.Granularity
	return nil
}

// RequireBoltStore is RequireStore for maintenance commands that only make
// sense on the local bbolt file.
func (d *Deps) RequireBoltStore() error {
	if err := d.RequireStore(); err != nil {
		return err
	}
	if d.Store == nil {
		return fmt.Errorf("cache.backend is %q; this command only applies to the local bolt store", d.Config.Cache.Backend)
	}
	return nil
}

// ClearCaches removes every cached sample from the named tables of the
// active backend, or from all tables when none are named.
func (d *Deps) ClearCaches(ctx context.Context, tables ...string) error {
	if err := d.RequireStore(); err != nil {
		return err
	}
	if len(tables) == 0 {
		tables = store.AllTables
	}
	var errs util.MultiError
	for _, name := range tables {
		t, ok := d.tables[name]
		if !ok {
			return fmt.Errorf("unknown cache table %q (tables: %v)", name, store.AllTables)
		}
		errs.Add(t.ClearAll(ctx))
	}
	return errs.Err()
}

// ClearDevice removes one device's cached samples from the named tables, or
// from all tables when none are named.
func (d *Deps) ClearDevice(ctx context.Context, deviceID string, tables ...string) error {
	if err := d.RequireStore(); err != nil {
		return err
	}
	if len(tables) == 0 {
		tables = store.AllTables
	}
	var errs util.MultiError
	for _, name := range tables {
		t, ok := d.tables[name]
		if !ok {
			return fmt.Errorf("unknown cache table %q (tables: %v)", name, store.AllTables)
		}
		errs.Add(t.Clear(ctx, deviceID))
	}
	return errs.Err()
}

// Close releases the store and connection pool if they were opened.
func (d *Deps) Close() {
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Log.Warn().Err(err).Msg("closing store")
		}
		d.Store = nil
	}
	if d.pool != nil {
		d.pool.Close()
		d.pool = nil
	}
}
