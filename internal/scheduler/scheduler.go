// Package scheduler keeps the local cache warm by prefetching forecasts and
// recent history for a fixed set of devices on an interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/derickschaefer/wxstation/internal/logging"
	"github.com/derickschaefer/wxstation/internal/metrics"
	"github.com/derickschaefer/wxstation/internal/model"
	"github.com/derickschaefer/wxstation/internal/util"
)

// ForecastSource is satisfied by *weather.Forecasts.
type ForecastSource interface {
	GetForecast(ctx context.Context, deviceID string, from, to time.Time, forceRefresh bool) ([]model.Sample, error)
}

// HistorySource is satisfied by *weather.History.
type HistorySource interface {
	GetHistory(ctx context.Context, deviceID string, from, to time.Time) ([]model.Sample, error)
}

// Options configures a Scheduler.
type Options struct {
	Devices     []string
	Interval    time.Duration
	HistoryDays int           // days of history before today to refresh; 0 skips history
	RunTimeout  time.Duration // per-device deadline; defaults to 2m
	Clock       util.Clock
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
}

// RunStatus describes the most recent sync run.
type RunStatus struct {
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Samples  int       `json:"samples"`
	Error    string    `json:"error,omitempty"`
}

// Scheduler periodically refreshes forecasts and history for every device.
type Scheduler struct {
	scheduler *gocron.Scheduler
	forecasts ForecastSource
	history   HistorySource
	opts      Options
	log       zerolog.Logger

	mu   sync.RWMutex
	last *RunStatus
}

// New creates a new Scheduler.
func New(forecasts ForecastSource, history HistorySource, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = util.SystemClock{}
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 2 * time.Minute
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		forecasts: forecasts,
		history:   history,
		opts:      opts,
		log:       logging.Component(opts.Logger, "scheduler"),
	}
}

// Start schedules the periodic job and starts the underlying scheduler. The
// first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.opts.Devices) == 0 {
		return errors.New("scheduler: no devices configured; nothing to schedule")
	}

	minutes := int(s.opts.Interval.Minutes())
	if minutes <= 0 {
		minutes = 15
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		_ = s.RunOnce(context.Background())
	})
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	s.log.Info().Int("devices", len(s.opts.Devices)).Int("every_minutes", minutes).Msg("scheduler started")
	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// RunOnce syncs every device concurrently and returns the combined error.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	runID := uuid.NewString()
	log := s.log.With().Str("run_id", runID).Logger()
	status := &RunStatus{RunID: runID, Started: s.opts.Clock.Now()}
	log.Info().Msg("sync run started")

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		errs  util.MultiError
		total int
	)
	for _, dev := range s.opts.Devices {
		wg.Add(1)
		go func(dev string) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)
			defer cancel()

			n, err := s.syncDevice(ctx, dev)
			mu.Lock()
			defer mu.Unlock()
			total += n
			if err != nil {
				log.Warn().Err(err).Str("device", dev).Msg("device sync failed")
				errs.Add(fmt.Errorf("%s: %w", dev, err))
			}
		}(dev)
	}
	wg.Wait()

	err := errs.Err()
	status.Finished = s.opts.Clock.Now()
	status.Samples = total
	if err != nil {
		status.Error = err.Error()
	}
	s.mu.Lock()
	s.last = status
	s.mu.Unlock()

	s.opts.Metrics.SyncRun(err)
	log.Info().
		Int("samples", total).
		Dur("took", status.Finished.Sub(status.Started)).
		Bool("ok", err == nil).
		Msg("sync run finished")
	return err
}

// syncDevice refreshes the forecast and, when configured, recent history.
func (s *Scheduler) syncDevice(ctx context.Context, deviceID string) (int, error) {
	today := model.DateOf(s.opts.Clock.Now())

	fc, err := s.forecasts.GetForecast(ctx, deviceID, today, today, true)
	if err != nil {
		return 0, fmt.Errorf("forecast: %w", err)
	}
	n := len(fc)

	if s.opts.HistoryDays > 0 && s.history != nil {
		from := today.AddDate(0, 0, -s.opts.HistoryDays)
		hist, err := s.history.GetHistory(ctx, deviceID, from, today)
		if err != nil {
			return n, fmt.Errorf("history: %w", err)
		}
		n += len(hist)
	}
	return n, nil
}

// LastRun returns the status of the most recent run, or nil before the first.
func (s *Scheduler) LastRun() *RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	cp := *s.last
	return &cp
}
