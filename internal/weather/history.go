package weather

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/derickschaefer/wxstation/internal/metrics"
	"github.com/derickschaefer/wxstation/internal/model"
	"github.com/derickschaefer/wxstation/internal/util"
)

// DefaultGranularity is the history resolution requested from the API.
const DefaultGranularity = "hourly"

// History serves observed samples, fetching only the tail the cache lacks.
type History struct {
	cache   Cache
	net     HistoryFetcher
	clock   util.Clock
	log     zerolog.Logger
	metrics *metrics.Metrics
	locks   deviceLocks

	// Granularity overrides DefaultGranularity when set.
	Granularity string
}

// NewHistory wires a cache, a network fetcher and a clock. m may be nil.
func NewHistory(cache Cache, net HistoryFetcher, clock util.Clock, log zerolog.Logger, m *metrics.Metrics) *History {
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &History{
		cache:   cache,
		net:     net,
		clock:   clock,
		log:     log.With().Str("component", "history").Logger(),
		metrics: m,
	}
}

// GetHistory returns samples for [from, to]: the cached prefix followed by
// whatever the network returns after it. Only an unbroken run of cached days
// starting at from counts as the prefix, so leading and interior gaps are
// fetched. Samples dated today
// in their own zone are returned but never cached. Cache failures degrade to
// a full fetch; only the network error is returned.
func (h *History) GetHistory(ctx context.Context, deviceID string, from, to time.Time) ([]model.Sample, error) {
	window := model.NewDateWindow(from, to)
	if err := window.Validate(); err != nil {
		return nil, err
	}

	unlock := h.locks.lock(deviceID)
	defer unlock()

	log := h.log.With().Str("device", deviceID).Logger()

	var cached []model.Sample
	entry, err := h.cache.Get(ctx, deviceID, window)
	if err != nil {
		h.metrics.CacheLookup("history", outcome(err))
		if !errors.Is(err, model.ErrCacheMiss) {
			log.Warn().Err(err).Msg("reading history cache failed; fetching everything")
		}
	} else {
		cached = entry.Samples
		h.metrics.CacheLookup("history", "hit")
	}

	networkStart := window.From
	if last, ok := cachedThrough(cached, window.From); ok && last.After(window.From) {
		networkStart = last.AddDate(0, 0, 1)
	}

	// Drop cached samples the network will return again.
	head := cached[:0:0]
	for _, s := range cached {
		if s.Date().Before(networkStart) {
			head = append(head, s)
		}
	}

	if networkStart.After(window.To) {
		log.Debug().Stringer("window", window).Msg("history fully cached")
		return head, nil
	}

	fetchWindow := model.DateWindow{From: networkStart, To: window.To}
	granularity := h.Granularity
	if granularity == "" {
		granularity = DefaultGranularity
	}
	fetched, err := h.net.FetchHistory(ctx, deviceID, fetchWindow, granularity)
	if err != nil {
		return nil, err
	}
	fetched = model.SortSamples(append([]model.Sample(nil), fetched...))

	now := h.clock.Now()
	stable := make([]model.Sample, 0, len(fetched))
	for _, s := range fetched {
		if !isToday(s, now) {
			stable = append(stable, s)
		}
	}
	if len(stable) > 0 {
		if err := h.cache.Put(ctx, deviceID, stable); err != nil {
			log.Warn().Err(err).Msg("caching history failed")
		} else {
			h.metrics.Stored("history", len(stable))
		}
	}

	log.Debug().
		Stringer("fetched_window", fetchWindow).
		Int("cached", len(head)).
		Int("fetched", len(fetched)).
		Int("stored", len(stable)).
		Msg("history merged")

	return append(head, fetched...), nil
}

// cachedThrough returns the last day of the unbroken run of cached days that
// starts at from. ok is false when nothing is cached on from itself.
func cachedThrough(cached []model.Sample, from time.Time) (last time.Time, ok bool) {
	for _, s := range cached {
		d := s.Date()
		switch {
		case d.Before(from):
			continue
		case !ok:
			if !d.Equal(from) {
				return time.Time{}, false
			}
			last, ok = d, true
		case d.After(last.AddDate(0, 0, 1)):
			return last, true
		default:
			last = d
		}
	}
	return last, ok
}

// Clear drops every cached history sample for deviceID.
func (h *History) Clear(ctx context.Context, deviceID string) error {
	unlock := h.locks.lock(deviceID)
	defer unlock()
	return h.cache.Clear(ctx, deviceID)
}

// isToday reports whether s falls on now's calendar date in s's own zone.
func isToday(s model.Sample, now time.Time) bool {
	return s.Date().Equal(model.DateOf(now.In(s.Timestamp.Location())))
}

func outcome(err error) string {
	if errors.Is(err, model.ErrCacheMiss) {
		return "miss"
	}
	return "error"
}
