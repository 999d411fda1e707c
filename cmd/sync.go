package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/wxstation/internal/scheduler"
)

var (
	syncOnce        bool
	syncMetricsAddr string
)

var syncCmd = &cobra.Command{
	Use:   "sync [DEVICE_ID...]",
	Short: "Keep the cache warm for a set of devices",
	Long: `Refresh forecasts and recent history for every configured device on an
interval (sync.interval, default 15m). Devices given as arguments replace
sync.devices from config.

With --metrics-addr (or sync.metrics_addr) the command also serves
Prometheus metrics on /metrics and the last run status on /healthz.
The command runs until interrupted; --once performs a single run and exits.`,
	Example: `  wxstation sync 3f6e-… 91ab-…
  wxstation sync --once
  wxstation sync --metrics-addr :9100`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(cmd)
		if err != nil {
			return err
		}
		if err := deps.Config.RequireAPIKey(); err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		devices := deps.Config.Sync.Devices
		if len(args) > 0 {
			devices = devices[:0:0]
			for _, a := range args {
				id, err := normaliseDevice(a)
				if err != nil {
					return err
				}
				devices = append(devices, id)
			}
		}

		s := scheduler.New(deps.Forecasts, deps.History, scheduler.Options{
			Devices:     devices,
			Interval:    deps.Config.Sync.Interval,
			HistoryDays: deps.Config.Sync.HistoryDays,
			Clock:       deps.Clock,
			Logger:      deps.Log,
			Metrics:     deps.Metrics,
		})

		if syncOnce {
			if len(devices) == 0 {
				return fmt.Errorf("no devices to sync (pass DEVICE_ID or set sync.devices)")
			}
			if err := s.RunOnce(cmd.Context()); err != nil {
				return err
			}
			if !deps.Config.Quiet {
				last := s.LastRun()
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Synced %d device(s), %d samples (run %s)\n",
					len(devices), last.Samples, last.RunID)
			}
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := s.Start(); err != nil {
			return err
		}
		defer s.Stop()

		addr := deps.Config.Sync.MetricsAddr
		if syncMetricsAddr != "" {
			addr = syncMetricsAddr
		}
		if addr != "" {
			errCh := make(chan error, 1)
			go func() {
				errCh <- scheduler.Serve(ctx, addr, scheduler.Router(s, deps.Metrics.Registry), deps.Log)
			}()
			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("metrics server: %w", err)
				}
			case <-ctx.Done():
			}
			return waitDone(ctx)
		}

		<-ctx.Done()
		return waitDone(ctx)
	},
}

// waitDone reports a clean exit for a signal and the cause otherwise.
func waitDone(ctx context.Context) error {
	<-ctx.Done()
	if cause := context.Cause(ctx); cause != nil && cause != context.Canceled {
		return cause
	}
	return nil
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolVar(&syncOnce, "once", false, "run a single sync and exit")
	syncCmd.Flags().StringVar(&syncMetricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address (e.g. :9100)")
}
