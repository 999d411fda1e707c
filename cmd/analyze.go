package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/wxstation/internal/analyze"
	"github.com/derickschaefer/wxstation/internal/chart"
	"github.com/derickschaefer/wxstation/internal/model"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Statistics over one day's chart grid",
	Long: `Analyze commands build the same per-day grid as chart and compute
statistics over it. Empty slots count as missing and are excluded from every
figure.

Examples:
  wxstation history get <DEVICE_ID> --format jsonl | wxstation analyze summary
  wxstation analyze trend --device <DEVICE_ID> --source history --metric pressure`,
}

// ─── analyze summary ─────────────────────────────────────────────────────────

var analyzeSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Descriptive statistics per metric: mean, std, min, median, max",
	Example: `  wxstation history get 3f6e-… --format jsonl | wxstation analyze summary
  wxstation analyze summary --device 3f6e-… --metric temperature,humidity --format md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := loadChart(cmd)
		if err != nil {
			return err
		}
		defer in.deps.Close()

		metrics, err := chartMetrics(chart.Metrics()...)
		if err != nil {
			return err
		}
		sums := make([]analyze.Summary, 0, len(metrics))
		for _, m := range metrics {
			s, _ := in.charts.Get(m)
			sums = append(sums, analyze.Summarize(s))
		}

		result := newResult(model.KindSeriesSummary, "analyze summary", in.deviceID, sums, len(sums), in.started)
		return emit(cmd, in.deps, result)
	},
}

// ─── analyze trend ────────────────────────────────────────────────────────────

var analyzeTrendMethod string

var analyzeTrendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Fit a trend per metric: slope per hour, intercept, R², direction",
	Example: `  wxstation history get 3f6e-… --format jsonl | wxstation analyze trend
  wxstation analyze trend --device 3f6e-… --metric pressure --method theil-sen`,
	RunE: func(cmd *cobra.Command, args []string) error {
		method := analyze.TrendMethod(analyzeTrendMethod)
		if method != analyze.TrendLinear && method != analyze.TrendTheilSen {
			return fmt.Errorf("--method must be %s or %s", analyze.TrendLinear, analyze.TrendTheilSen)
		}

		in, err := loadChart(cmd)
		if err != nil {
			return err
		}
		defer in.deps.Close()

		metrics, err := chartMetrics(model.MetricTemperature)
		if err != nil {
			return err
		}
		trends := make([]analyze.TrendResult, 0, len(metrics))
		var warnings []string
		for _, m := range metrics {
			s, _ := in.charts.Get(m)
			tr, err := analyze.Trend(s, in.charts.Slots, method)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: %v", m, err))
				continue
			}
			trends = append(trends, tr)
		}

		result := newResult(model.KindTrend, "analyze trend", in.deviceID, trends, len(trends), in.started)
		result.Warnings = warnings
		return emit(cmd, in.deps, result)
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.AddCommand(analyzeSummaryCmd)
	analyzeCmd.AddCommand(analyzeTrendCmd)
	addChartInputFlags(analyzeCmd)

	analyzeTrendCmd.Flags().StringVar(&analyzeTrendMethod, "method", string(analyze.TrendLinear),
		"regression method: linear|theil-sen")
}
