package pgcache_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v6"

	"github.com/derickschaefer/wxstation/internal/model"
	"github.com/derickschaefer/wxstation/internal/store/pgcache"
)

// testCache connects to the database named by WXSTATION_TEST_DSN and returns
// a cache over a table name unique to this test. Skips when unset.
func testCache(t *testing.T) *pgcache.Cache {
	t.Helper()
	dsn := os.Getenv("WXSTATION_TEST_DSN")
	if dsn == "" {
		t.Skip("WXSTATION_TEST_DSN not set; skipping PostgreSQL cache tests")
	}
	ctx := context.Background()
	pool, err := pgcache.NewPool(ctx, pgcache.PoolConfig{DSN: dsn, MaxConns: 2})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := pgcache.Migrate(ctx, pool); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	c := pgcache.New(pool, "test-"+uuid.NewString())
	t.Cleanup(func() { _ = c.ClearAll(context.Background()) })
	return c
}

func TestNewPoolRequiresDSN(t *testing.T) {
	if _, err := pgcache.NewPool(context.Background(), pgcache.PoolConfig{}); err == nil {
		t.Error("expected an error for an empty DSN")
	}
}

func TestUnconfiguredCache(t *testing.T) {
	var c *pgcache.Cache
	_, err := c.Get(context.Background(), "dev1", model.NewDateWindow(time.Now(), time.Now()))
	if !errors.Is(err, pgcache.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	w := model.NewDateWindow(day, day)

	if _, err := c.Get(ctx, "dev1", w); !errors.Is(err, model.ErrCacheMiss) {
		t.Fatalf("expected miss on empty table, got %v", err)
	}

	samples := []model.Sample{
		{Timestamp: day.Add(3 * time.Hour), Temperature: null.FloatFrom(18)},
		{Timestamp: day.Add(1 * time.Hour), Temperature: null.FloatFrom(16)},
	}
	if err := c.PutWindow(ctx, "dev1", w, samples); err != nil {
		t.Fatalf("PutWindow: %v", err)
	}
	if err := c.PutWindow(ctx, "dev1", w, samples); err != nil {
		t.Fatalf("second PutWindow: %v", err)
	}
	entry, err := c.Get(ctx, "dev1", w)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !entry.Complete || len(entry.Samples) != 2 {
		t.Fatalf("unexpected entry: complete=%v samples=%d", entry.Complete, len(entry.Samples))
	}
	if !entry.Samples[0].Timestamp.Before(entry.Samples[1].Timestamp) {
		t.Error("samples should be ascending")
	}

	if err := c.Clear(ctx, "dev1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := c.Get(ctx, "dev1", w); !errors.Is(err, model.ErrCacheMiss) {
		t.Errorf("expected miss after Clear, got %v", err)
	}
}
