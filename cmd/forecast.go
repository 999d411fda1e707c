package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/wxstation/internal/model"
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Retrieve station forecasts (cache-first)",
	Long: `Fetch hourly forecast samples for a station.

Forecast requests are widened to at least prefetch_days (default 7) so that
narrow requests made one after another share a single network fetch. Any
cached forecast covering the widened window is served without a network call;
use --refresh to drop the device's cached forecast first.`,
}

var (
	forecastFrom string
	forecastTo   string
)

// ─── forecast get ─────────────────────────────────────────────────────────────

var forecastGetCmd = &cobra.Command{
	Use:   "get <DEVICE_ID>",
	Short: "Fetch forecast samples for a device",
	Example: `  wxstation forecast get 3f6e-…
  wxstation forecast get 3f6e-… --from 2024-06-01 --to 2024-06-03
  wxstation forecast get 3f6e-… --refresh --format jsonl | wxstation chart plot --metric precipitation_probability`,
	Args: cobra.ExactArgs(1),
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

		device, err := normaliseDevice(args[0])
		if err != nil {
			return err
		}
		now := today(deps)
		from, to, err := parseWindow(forecastFrom, forecastTo, now, time.Time{})
		if err != nil {
			return err
		}

		start := time.Now()
		samples, err := deps.Forecasts.GetForecast(cmd.Context(), device, from, to, deps.Config.Refresh)
		if err != nil {
			return fmt.Errorf("forecast for %s: %w", device, err)
		}
		samples = within(samples, model.NewDateWindow(from, to))

		result := newResult(model.KindSamples, "forecast get "+device, device, samples, len(samples), start)
		return emit(cmd, deps, result)
	},
}

// within keeps samples whose local date falls inside w.
func within(samples []model.Sample, w model.DateWindow) []model.Sample {
	out := make([]model.Sample, 0, len(samples))
	for _, s := range samples {
		if w.Contains(s.Date()) {
			out = append(out, s)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(forecastCmd)
	forecastCmd.AddCommand(forecastGetCmd)

	forecastGetCmd.Flags().StringVar(&forecastFrom, "from", "", "first day YYYY-MM-DD (default: today)")
	forecastGetCmd.Flags().StringVar(&forecastTo, "to", "", "last day YYYY-MM-DD (default: --from)")
}
