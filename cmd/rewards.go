package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/wxstation/internal/app"
	"github.com/derickschaefer/wxstation/internal/model"
	"github.com/derickschaefer/wxstation/internal/rewards"
)

// defaultRewardDays is the look-back used when --from is omitted.
const defaultRewardDays = 30

var rewardsCmd = &cobra.Command{
	Use:   "rewards",
	Short: "Retrieve reward transactions and timelines",
	Long: `Fetch a station's reward records over a date range.

Every page of the paginated endpoints is drained before output is written,
so a range spanning many pages is returned as one list. Without --from the
last 30 days are fetched.`,
}

var (
	rewardsFrom  string
	rewardsTo    string
	rewardsDaily bool
)

// ─── Shared ───────────────────────────────────────────────────────────────────

// rewardsWindow resolves --from/--to, defaulting to the last 30 days.
func rewardsWindow(deps *app.Deps) (model.DateWindow, error) {
	now := today(deps)
	from, to, err := parseWindow(rewardsFrom, rewardsTo, now.AddDate(0, 0, -defaultRewardDays), now)
	if err != nil {
		return model.DateWindow{}, err
	}
	return model.NewDateWindow(from, to), nil
}

// rewardsSetup builds deps and resolves the device and window for a
// rewards subcommand.
func rewardsSetup(cmd *cobra.Command, arg string) (*app.Deps, string, model.DateWindow, error) {
	deps, err := buildDeps(cmd)
	if err != nil {
		return nil, "", model.DateWindow{}, err
	}
	if err := deps.Config.RequireAPIKey(); err != nil {
		return nil, "", model.DateWindow{}, err
	}
	device, err := normaliseDevice(arg)
	if err != nil {
		return nil, "", model.DateWindow{}, err
	}
	window, err := rewardsWindow(deps)
	if err != nil {
		return nil, "", model.DateWindow{}, err
	}
	return deps, device, window, nil
}

// ─── rewards transactions ────────────────────────────────────────────────────

var rewardsTransactionsCmd = &cobra.Command{
	Use:     "transactions <DEVICE_ID>",
	Aliases: []string{"tx"},
	Short:   "List every reward transaction in a date range",
	Example: `  wxstation rewards transactions 3f6e-… --from 2024-05-01 --to 2024-05-31
  wxstation rewards transactions 3f6e-… --daily --format csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, device, window, err := rewardsSetup(cmd, args[0])
		if err != nil {
			return err
		}

		start := time.Now()
		txs, err := deps.Rewards.Transactions(cmd.Context(), device, window)
		if err != nil {
			return fmt.Errorf("transactions for %s: %w", device, err)
		}

		if rewardsDaily {
			daily := rewards.DailyTotals(txs)
			result := newResult(model.KindRewards, "rewards transactions --daily "+device, device, daily, len(daily), start)
			return emit(cmd, deps, result)
		}
		result := newResult(model.KindTransactions, "rewards transactions "+device, device, txs, len(txs), start)
		return emit(cmd, deps, result)
	},
}

// ─── rewards timeline ────────────────────────────────────────────────────────

var rewardsTimelineCmd = &cobra.Command{
	Use:   "timeline <DEVICE_ID>",
	Short: "List daily reward timeline entries in a date range",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, device, window, err := rewardsSetup(cmd, args[0])
		if err != nil {
			return err
		}

		start := time.Now()
		entries, err := deps.Rewards.Timeline(cmd.Context(), device, window)
		if err != nil {
			return fmt.Errorf("reward timeline for %s: %w", device, err)
		}

		result := newResult(model.KindRewards, "rewards timeline "+device, device, entries, len(entries), start)
		if len(entries) > 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("timeline total: %s", rewards.TimelineTotal(entries).String()))
		}
		return emit(cmd, deps, result)
	},
}

// ─── rewards summary ─────────────────────────────────────────────────────────

var rewardsSummaryCmd = &cobra.Command{
	Use:   "summary <DEVICE_ID>",
	Short: "Summarize reward transactions in a date range",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, device, window, err := rewardsSetup(cmd, args[0])
		if err != nil {
			return err
		}

		start := time.Now()
		txs, err := deps.Rewards.Transactions(cmd.Context(), device, window)
		if err != nil {
			return fmt.Errorf("transactions for %s: %w", device, err)
		}

		summary := rewards.Summarize(txs)
		result := newResult(model.KindRewardSummary, "rewards summary "+device, device, summary, summary.Count, start)
		return emit(cmd, deps, result)
	},
}

func init() {
	rootCmd.AddCommand(rewardsCmd)
	rewardsCmd.AddCommand(rewardsTransactionsCmd)
	rewardsCmd.AddCommand(rewardsTimelineCmd)
	rewardsCmd.AddCommand(rewardsSummaryCmd)

	rewardsCmd.PersistentFlags().StringVar(&rewardsFrom, "from", "", "first day YYYY-MM-DD (default: 30 days ago)")
	rewardsCmd.PersistentFlags().StringVar(&rewardsTo, "to", "", "last day YYYY-MM-DD (default: today)")
	rewardsTransactionsCmd.Flags().BoolVar(&rewardsDaily, "daily", false, "bucket transactions into daily totals")
}
