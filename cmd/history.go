package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/wxstation/internal/model"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Retrieve observed station history (incremental)",
	Long: `Fetch observed samples for a station.

Days already in the local cache are served from it; only the days after the
last cached day are fetched from the network. Samples dated today (in the
station's own timezone) are returned but never cached, because the day is
still being recorded.`,
}

var (
	historyFrom string
	historyTo   string
)

// ─── history get ──────────────────────────────────────────────────────────────

var historyGetCmd = &cobra.Command{
	Use:   "get <DEVICE_ID>",
	Short: "Fetch observed samples for a device",
	Example: `  wxstation history get 3f6e-… --from 2024-06-01 --to 2024-06-07
  wxstation history get 3f6e-… --from 2024-06-01 --format csv --out june.csv
  wxstation history get 3f6e-… --format jsonl | wxstation chart bar --metric temperature`,
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
		from, to, err := parseWindow(historyFrom, historyTo, now, now)
		if err != nil {
			return err
		}

		if deps.Config.Refresh {
			if err := deps.History.Clear(cmd.Context(), device); err != nil {
				return fmt.Errorf("clearing cached history: %w", err)
			}
		}

		start := time.Now()
		samples, err := deps.History.GetHistory(cmd.Context(), device, from, to)
		if err != nil {
			return fmt.Errorf("history for %s: %w", device, err)
		}

		result := newResult(model.KindSamples, "history get "+device, device, samples, len(samples), start)
		return emit(cmd, deps, result)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyGetCmd)

	historyGetCmd.Flags().StringVar(&historyFrom, "from", "", "first day YYYY-MM-DD (default: today)")
	historyGetCmd.Flags().StringVar(&historyTo, "to", "", "last day YYYY-MM-DD (default: today)")
}
