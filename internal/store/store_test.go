package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/guregu/null/v6"

	"github.com/derickschaefer/wxstation/internal/model"
	"github.com/derickschaefer/wxstation/internal/store"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// testDB opens a fresh isolated database in t.TempDir().
// It is closed and deleted automatically when the test ends.
func testDB(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// hourly builds one sample per hour for each day in [from, to], in loc.
func hourly(loc *time.Location, from, to time.Time, temp float64) []model.Sample {
	var out []model.Sample
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		for h := 0; h < 24; h++ {
			out = append(out, model.Sample{
				Timestamp:   time.Date(d.Year(), d.Month(), d.Day(), h, 0, 0, 0, loc),
				Temperature: null.FloatFrom(temp),
			})
		}
	}
	return out
}

var ctx = context.Background()

// ─── Open / Path ──────────────────────────────────────────────────────────────

func TestOpenCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c", "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open with nested path: %v", err)
	}
	defer s.Close()
	if s.Path() != path {
		t.Errorf("Path: expected %q, got %q", path, s.Path())
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	w := model.NewDateWindow(day(2024, 5, 1), day(2024, 5, 1))
	if err := s.Table(store.TableHistory).Put(ctx, "dev1", hourly(time.UTC, w.From, w.To, 20)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s.Close()

	s, err = store.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	entry, err := s.Table(store.TableHistory).Get(ctx, "dev1", w)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if len(entry.Samples) != 24 {
		t.Errorf("expected 24 samples after reopen, got %d", len(entry.Samples))
	}
}

// ─── Get / Put ────────────────────────────────────────────────────────────────

func TestGetMissOnEmptyStore(t *testing.T) {
	c := testDB(t).Table(store.TableForecast)
	_, err := c.Get(ctx, "dev1", model.NewDateWindow(day(2024, 1, 1), day(2024, 1, 7)))
	if !errors.Is(err, model.ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestGetMissOutsideCoverage(t *testing.T) {
	c := testDB(t).Table(store.TableHistory)
	if err := c.Put(ctx, "dev1", hourly(time.UTC, day(2024, 1, 1), day(2024, 1, 2), 10)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, err := c.Get(ctx, "dev1", model.NewDateWindow(day(2024, 2, 1), day(2024, 2, 3)))
	if !errors.Is(err, model.ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss for disjoint window, got %v", err)
	}
}

func TestPutWindowEmptyIsHitNotMiss(t *testing.T) {
	c := testDB(t).Table(store.TableForecast)
	w := model.NewDateWindow(day(2024, 3, 1), day(2024, 3, 8))
	if err := c.PutWindow(ctx, "dev1", w, nil); err != nil {
		t.Fatalf("PutWindow: %v", err)
	}
	entry, err := c.Get(ctx, "dev1", w)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(entry.Samples) != 0 {
		t.Errorf("expected no samples, got %d", len(entry.Samples))
	}
	if !entry.Complete {
		t.Error("window recorded by PutWindow should be complete")
	}
}

func TestGetPartialCoverage(t *testing.T) {
	c := testDB(t).Table(store.TableHistory)
	if err := c.Put(ctx, "dev1", hourly(time.UTC, day(2024, 1, 1), day(2024, 1, 5), 10)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := c.Get(ctx, "dev1", model.NewDateWindow(day(2024, 1, 1), day(2024, 1, 8)))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Complete {
		t.Error("entry should be partial")
	}
	if len(entry.Samples) != 5*24 {
		t.Errorf("expected %d samples, got %d", 5*24, len(entry.Samples))
	}
}

func TestGetFiltersToWindowAndSorts(t *testing.T) {
	c := testDB(t).Table(store.TableHistory)
	samples := hourly(time.UTC, day(2024, 1, 1), day(2024, 1, 3), 10)
	// reverse to make sure ordering comes from the store, not the input
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	if err := c.Put(ctx, "dev1", samples); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := c.Get(ctx, "dev1", model.NewDateWindow(day(2024, 1, 2), day(2024, 1, 2)))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(entry.Samples) != 24 {
		t.Fatalf("expected 24 samples, got %d", len(entry.Samples))
	}
	for i, s := range entry.Samples {
		if !s.Date().Equal(day(2024, 1, 2)) {
			t.Errorf("sample %d outside window: %v", i, s.Timestamp)
		}
		if i > 0 && !entry.Samples[i-1].Timestamp.Before(s.Timestamp) {
			t.Errorf("samples not strictly ascending at %d", i)
		}
	}
}

func TestGetUsesSampleLocalDate(t *testing.T) {
	athens, err := time.LoadLocation("Europe/Athens")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	c := testDB(t).Table(store.TableHistory)
	// 00:30 Athens time on Jan 2 is still Jan 1 in UTC.
	s := model.Sample{
		Timestamp:   time.Date(2024, 1, 2, 0, 30, 0, 0, athens),
		Temperature: null.FloatFrom(5),
	}
	if err := c.Put(ctx, "dev1", []model.Sample{s}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := c.Get(ctx, "dev1", model.NewDateWindow(day(2024, 1, 2), day(2024, 1, 2)))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(entry.Samples) != 1 {
		t.Fatalf("expected the sample on its local date, got %d samples", len(entry.Samples))
	}
	if got := entry.Samples[0].Timestamp.Location().String(); got != "Europe/Athens" {
		t.Errorf("zone not restored: got %q", got)
	}
}

func TestPutIdempotent(t *testing.T) {
	c := testDB(t).Table(store.TableHistory)
	w := model.NewDateWindow(day(2024, 1, 1), day(2024, 1, 2))
	samples := hourly(time.UTC, w.From, w.To, 12)

	if err := c.Put(ctx, "dev1", samples); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	first, err := c.Get(ctx, "dev1", w)
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if err := c.Put(ctx, "dev1", samples); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	second, err := c.Get(ctx, "dev1", w)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if len(first.Samples) != len(second.Samples) {
		t.Fatalf("repeated Put changed size: %d vs %d", len(first.Samples), len(second.Samples))
	}
	for i := range first.Samples {
		if !first.Samples[i].Timestamp.Equal(second.Samples[i].Timestamp) ||
			first.Samples[i].Temperature != second.Samples[i].Temperature {
			t.Errorf("sample %d differs after repeated Put", i)
		}
	}
}

func TestPutOverwritesSameTimestamp(t *testing.T) {
	c := testDB(t).Table(store.TableHistory)
	w := model.NewDateWindow(day(2024, 1, 1), day(2024, 1, 1))
	if err := c.Put(ctx, "dev1", hourly(time.UTC, w.From, w.To, 1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Put(ctx, "dev1", hourly(time.UTC, w.From, w.To, 2)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := c.Get(ctx, "dev1", w)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(entry.Samples) != 24 {
		t.Fatalf("expected 24 samples, got %d", len(entry.Samples))
	}
	for _, s := range entry.Samples {
		if s.Temperature.Float64 != 2 {
			t.Fatalf("expected overwritten value 2, got %v", s.Temperature.Float64)
		}
	}
}

func TestNullMetricsRoundTrip(t *testing.T) {
	c := testDB(t).Table(store.TableHistory)
	s := model.Sample{
		Timestamp:     time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Temperature:   null.FloatFrom(0),
		WindDirection: null.IntFrom(270),
	}
	if err := c.Put(ctx, "dev1", []model.Sample{s}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := c.Get(ctx, "dev1", model.NewDateWindow(day(2024, 1, 1), day(2024, 1, 1)))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got := entry.Samples[0]
	if !got.Temperature.Valid || got.Temperature.Float64 != 0 {
		t.Error("zero temperature should survive as a valid value")
	}
	if got.Humidity.Valid {
		t.Error("null humidity should stay null")
	}
	if got.WindDirection.Int64 != 270 {
		t.Errorf("wind direction: got %d", got.WindDirection.Int64)
	}
}

func TestGetRejectsReversedWindow(t *testing.T) {
	c := testDB(t).Table(store.TableHistory)
	_, err := c.Get(ctx, "dev1", model.DateWindow{From: day(2024, 1, 5), To: day(2024, 1, 1)})
	if !errors.Is(err, model.ErrInvalidWindow) {
		t.Errorf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestGetHonoursCancelledContext(t *testing.T) {
	c := testDB(t).Table(store.TableHistory)
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := c.Get(cctx, "dev1", model.NewDateWindow(day(2024, 1, 1), day(2024, 1, 1))); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := c.Put(cctx, "dev1", hourly(time.UTC, day(2024, 1, 1), day(2024, 1, 1), 1)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled on Put, got %v", err)
	}
}

// ─── Clear ────────────────────────────────────────────────────────────────────

func TestClearDeviceOnly(t *testing.T) {
	c := testDB(t).Table(store.TableForecast)
	w := model.NewDateWindow(day(2024, 1, 1), day(2024, 1, 1))
	for _, id := range []string{"dev1", "dev2"} {
		if err := c.PutWindow(ctx, id, w, hourly(time.UTC, w.From, w.To, 3)); err != nil {
			t.Fatalf("PutWindow %s: %v", id, err)
		}
	}
	if err := c.Clear(ctx, "dev1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := c.Get(ctx, "dev1", w); !errors.Is(err, model.ErrCacheMiss) {
		t.Errorf("dev1 should miss after Clear, got %v", err)
	}
	if _, err := c.Get(ctx, "dev2", w); err != nil {
		t.Errorf("dev2 should be untouched, got %v", err)
	}
	// clearing an unknown device is not an error
	if err := c.Clear(ctx, "nope"); err != nil {
		t.Errorf("Clear unknown device: %v", err)
	}
}

func TestTablesAreIndependent(t *testing.T) {
	s := testDB(t)
	w := model.NewDateWindow(day(2024, 1, 1), day(2024, 1, 1))
	if err := s.Table(store.TableForecast).PutWindow(ctx, "dev1", w, hourly(time.UTC, w.From, w.To, 3)); err != nil {
		t.Fatalf("PutWindow: %v", err)
	}
	if _, err := s.Table(store.TableHistory).Get(ctx, "dev1", w); !errors.Is(err, model.ErrCacheMiss) {
		t.Errorf("history table should not see forecast data, got %v", err)
	}
}

func TestStatsAndClearAll(t *testing.T) {
	s := testDB(t)
	w := model.NewDateWindow(day(2024, 1, 1), day(2024, 1, 2))
	if err := s.Table(store.TableHistory).Put(ctx, "dev1", hourly(time.UTC, w.From, w.To, 1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	var found bool
	for _, st := range stats {
		if st.Name == store.TableHistory {
			found = true
			if st.Devices != 1 || st.Samples != 48 || st.Bytes == 0 {
				t.Errorf("history stats: %+v", st)
			}
		}
	}
	if !found {
		t.Fatal("history table missing from stats")
	}

	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	ids, err := s.Table(store.TableHistory).Devices()
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no devices after ClearAll, got %v", ids)
	}
}

func TestCompactKeepsData(t *testing.T) {
	s := testDB(t)
	w := model.NewDateWindow(day(2024, 1, 1), day(2024, 1, 3))
	if err := s.Table(store.TableHistory).Put(ctx, "dev1", hourly(time.UTC, w.From, w.To, 1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	before, after, err := s.Compact()
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if before == 0 || after == 0 {
		t.Errorf("sizes should be non-zero: before=%d after=%d", before, after)
	}
	entry, err := s.Table(store.TableHistory).Get(ctx, "dev1", w)
	if err != nil {
		t.Fatalf("Get after compact: %v", err)
	}
	if len(entry.Samples) != 72 {
		t.Errorf("expected 72 samples after compact, got %d", len(entry.Samples))
	}
}
