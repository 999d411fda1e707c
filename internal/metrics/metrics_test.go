package metrics_test

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/derickschaefer/wxstation/internal/metrics"
)

func TestCountersIncrement(t *testing.T) {
	m := metrics.New()
	m.CacheLookup("forecast", "hit")
	m.CacheLookup("forecast", "hit")
	m.CacheLookup("history", "miss")
	m.NetworkFetch("forecast", nil)
	m.NetworkFetch("forecast", errors.New("down"))
	m.Page("transactions")
	m.Stored("history", 24)
	m.Stored("history", 0)
	m.SyncRun(nil)

	if n, err := testutil.GatherAndCount(m.Registry, "wxstation_cache_lookups_total"); err != nil || n != 2 {
		t.Errorf("expected 2 cache lookup series, got %d (%v)", n, err)
	}
	if n, err := testutil.GatherAndCount(m.Registry, "wxstation_network_errors_total"); err != nil || n != 1 {
		t.Errorf("expected 1 network error series, got %d (%v)", n, err)
	}
	if n, err := testutil.GatherAndCount(m.Registry, "wxstation_samples_stored_total"); err != nil || n != 1 {
		t.Errorf("expected 1 samples stored series, got %d (%v)", n, err)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.CacheLookup("forecast", "hit")
	m.NetworkFetch("forecast", nil)
	m.Page("timeline")
	m.Stored("history", 3)
	m.SyncRun(errors.New("x"))
}
