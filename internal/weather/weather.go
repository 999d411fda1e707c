// Package weather acquires forecast and history samples for a station,
// reading through the sample cache and falling back to the network.
package weather

import (
	"context"
	"sync"

	"github.com/derickschaefer/wxstation/internal/model"
)

// Cache is the sample cache both acquirers read and write through.
// *store.Cache and *pgcache.Cache satisfy it.
type Cache interface {
	Get(ctx context.Context, deviceID string, window model.DateWindow) (model.CacheEntry, error)
	Put(ctx context.Context, deviceID string, samples []model.Sample) error
	PutWindow(ctx context.Context, deviceID string, window model.DateWindow, samples []model.Sample) error
	Clear(ctx context.Context, deviceID string) error
}

// ForecastFetcher fetches forecast samples for an inclusive date window.
type ForecastFetcher interface {
	FetchForecast(ctx context.Context, deviceID string, window model.DateWindow) ([]model.Sample, error)
}

// HistoryFetcher fetches observed samples for an inclusive date window.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, deviceID string, window model.DateWindow, granularity string) ([]model.Sample, error)
}

// deviceLocks hands out one mutex per device.
type deviceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (d *deviceLocks) lock(deviceID string) func() {
	d.mu.Lock()
	if d.locks == nil {
		d.locks = make(map[string]*sync.Mutex)
	}
	l, ok := d.locks[deviceID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[deviceID] = l
	}
	d.mu.Unlock()

	l.Lock()
	return l.Unlock
}
