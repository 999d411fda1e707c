package weather

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/derickschaefer/wxstation/internal/metrics"
	"github.com/derickschaefer/wxstation/internal/model"
)

// DefaultPrefetchDays is the minimum forecast window fetched from the
// network, so narrow requests made one after another share a single fetch.
const DefaultPrefetchDays = 7

// Forecasts serves forecast windows cache-first.
type Forecasts struct {
	cache   Cache
	net     ForecastFetcher
	log     zerolog.Logger
	metrics *metrics.Metrics
	locks   deviceLocks

	// PrefetchDays overrides DefaultPrefetchDays when positive.
	PrefetchDays int
}

// NewForecasts wires a cache and a network fetcher. m may be nil.
func NewForecasts(cache Cache, net ForecastFetcher, log zerolog.Logger, m *metrics.Metrics) *Forecasts {
	return &Forecasts{
		cache:   cache,
		net:     net,
		log:     log.With().Str("component", "forecast").Logger(),
		metrics: m,
	}
}

// EffectiveWindow widens [from, to] to at least the prefetch span.
func (f *Forecasts) EffectiveWindow(from, to time.Time) model.DateWindow {
	w := model.NewDateWindow(from, to)
	days := f.PrefetchDays
	if days <= 0 {
		days = DefaultPrefetchDays
	}
	if w.To.Sub(w.From) < time.Duration(days)*24*time.Hour {
		w.To = w.From.AddDate(0, 0, days)
	}
	return w
}

// GetForecast returns forecast samples for deviceID. The window is widened to
// the prefetch span; a cache entry covering all of it is returned without a
// network call. forceRefresh drops the device's cache first; if that fails the
// cache is not read at all. Samples cover
// the widened window, not just [from, to].
func (f *Forecasts) GetForecast(ctx context.Context, deviceID string, from, to time.Time, forceRefresh bool) ([]model.Sample, error) {
	if err := model.NewDateWindow(from, to).Validate(); err != nil {
		return nil, err
	}

	unlock := f.locks.lock(deviceID)
	defer unlock()

	log := f.log.With().Str("device", deviceID).Logger()

	readCache := true
	if forceRefresh {
		if err := f.cache.Clear(ctx, deviceID); err != nil {
			log.Warn().Err(err).Msg("clearing forecast cache failed; bypassing cache read")
			readCache = false
		}
	}

	window := f.EffectiveWindow(from, to)

	entry, err := model.CacheEntry{}, model.ErrCacheMiss
	if readCache {
		entry, err = f.cache.Get(ctx, deviceID, window)
	}
	switch {
	case !readCache:
		f.metrics.CacheLookup("forecast", "bypass")
	case err == nil && entry.Complete:
		f.metrics.CacheLookup("forecast", "hit")
		log.Debug().Stringer("window", window).Int("samples", len(entry.Samples)).Msg("forecast cache hit")
		return entry.Samples, nil
	case err == nil:
		f.metrics.CacheLookup("forecast", "partial")
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		f.metrics.CacheLookup("forecast", outcome(err))
	}

	samples, err := f.net.FetchForecast(ctx, deviceID, window)
	if err != nil {
		return nil, err
	}
	samples = model.SortSamples(append([]model.Sample(nil), samples...))

	if err := f.cache.PutWindow(ctx, deviceID, window, samples); err != nil {
		log.Warn().Err(err).Stringer("window", window).Msg("caching forecast failed")
	} else {
		f.metrics.Stored("forecast", len(samples))
	}
	log.Debug().Stringer("window", window).Int("samples", len(samples)).Msg("forecast fetched")
	return samples, nil
}
