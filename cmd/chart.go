package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/wxstation/internal/app"
	"github.com/derickschaefer/wxstation/internal/chart"
	"github.com/derickschaefer/wxstation/internal/model"
	"github.com/derickschaefer/wxstation/internal/pipeline"
	"github.com/derickschaefer/wxstation/internal/util"
)

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Project one day of samples onto a fixed grid and render it",
	Long: `Chart commands build a per-day grid (one slot per --step) and render it.

Samples come from stdin in the JSONL pipe format, or from the cache and API
when --device is given. Empty slots render as gaps, never as zero.

Pipeline examples:
  wxstation history get <DEVICE_ID> --format jsonl | wxstation chart grid
  wxstation forecast get <DEVICE_ID> --format jsonl | wxstation chart plot --metric wind_speed
  wxstation chart bar --device <DEVICE_ID> --source history --date 2024-06-01 --step 3h`,
}

// Flags shared by every chart and analyze subcommand.
var (
	chartDevice string
	chartSource string
	chartDate   string
	chartStep   time.Duration
	chartMetric string
)

const (
	sourceForecast = "forecast"
	sourceHistory  = "history"
)

// chartInput is a built grid plus the context needed to render it.
type chartInput struct {
	deps     *app.Deps
	deviceID string
	charts   model.Charts
	started  time.Time
}

// loadChart reads samples from stdin or the configured device and builds the
// grid for --date. The caller must call in.deps.Close.
func loadChart(cmd *cobra.Command) (_ *chartInput, err error) {
	deps, err := buildDeps(cmd)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			deps.Close()
		}
	}()
	in := &chartInput{deps: deps, started: time.Now()}

	var samples []model.Sample
	loc := time.UTC
	if chartDevice != "" {
		in.deviceID, samples, err = deviceSamples(cmd, deps)
	} else {
		if !pipeline.StdinIsPipe() {
			return nil, fmt.Errorf("no input: pipe samples in (--format jsonl) or pass --device")
		}
		in.deviceID, samples, err = pipeline.ReadSamples(os.Stdin)
	}
	if err != nil {
		return nil, err
	}
	if len(samples) > 0 {
		loc = samples[0].Timestamp.Location()
	}

	date, err := chartDay(deps, samples, loc)
	if err != nil {
		return nil, err
	}
	in.charts, err = chart.Build(date, chartStep, samples, deps.Units.Preferences(), chartGridOptions(deps))
	if err != nil {
		return nil, err
	}
	return in, nil
}

// deviceSamples fetches the --date day for --device through the cache.
func deviceSamples(cmd *cobra.Command, deps *app.Deps) (string, []model.Sample, error) {
	device, err := normaliseDevice(chartDevice)
	if err != nil {
		return "", nil, err
	}
	if err := deps.Config.RequireAPIKey(); err != nil {
		return "", nil, err
	}
	if err := deps.RequireStore(); err != nil {
		return "", nil, err
	}
	day, err := util.ParseDateOr(chartDate, today(deps))
	if err != nil {
		return "", nil, fmt.Errorf("--date: %w", err)
	}

	var samples []model.Sample
	switch chartSource {
	case sourceHistory:
		samples, err = deps.History.GetHistory(cmd.Context(), device, day, day)
	case sourceForecast, "":
		samples, err = deps.Forecasts.GetForecast(cmd.Context(), device, day, day, deps.Config.Refresh)
	default:
		return "", nil, fmt.Errorf("--source must be %s or %s, got %q", sourceForecast, sourceHistory, chartSource)
	}
	if err != nil {
		return "", nil, fmt.Errorf("%s for %s: %w", chartSource, device, err)
	}
	return device, samples, nil
}

// chartDay resolves --date in loc. Without --date it is the calendar date of
// the first sample, or today when there are none.
func chartDay(deps *app.Deps, samples []model.Sample, loc *time.Location) (time.Time, error) {
	var d time.Time
	switch {
	case chartDate != "":
		parsed, err := util.ParseDate(chartDate)
		if err != nil {
			return time.Time{}, fmt.Errorf("--date: %w", err)
		}
		d = parsed
	case len(samples) > 0:
		d = samples[0].Date()
	default:
		d = model.DateOf(deps.Clock.Now().In(loc))
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc), nil
}

func chartGridOptions(deps *app.Deps) chart.GridOptions {
	return chart.GridOptions{Clock12h: deps.Config.Clock12h()}
}

// chartMetrics parses --metric as a comma-separated list, defaulting to def.
func chartMetrics(def ...model.Metric) ([]model.Metric, error) {
	if strings.TrimSpace(chartMetric) == "" {
		return def, nil
	}
	known := make(map[model.Metric]bool)
	for _, m := range chart.Metrics() {
		known[m] = true
	}
	var out []model.Metric
	for _, part := range strings.Split(chartMetric, ",") {
		m := model.Metric(strings.TrimSpace(part))
		if m == "" {
			continue
		}
		if !known[m] {
			return nil, fmt.Errorf("unknown metric %q (known: %s)", m, metricNames())
		}
		out = append(out, m)
	}
	return out, nil
}

func metricNames() string {
	var names []string
	for _, m := range chart.Metrics() {
		names = append(names, string(m))
	}
	return strings.Join(names, ", ")
}

// series returns the first --metric series of in.
func (in *chartInput) series(def model.Metric) (model.ChartSeries, error) {
	metrics, err := chartMetrics(def)
	if err != nil {
		return model.ChartSeries{}, err
	}
	s, _ := in.charts.Get(metrics[0])
	return s, nil
}

func (in *chartInput) title() string {
	title := in.deviceID
	if title == "" {
		title = "station"
	}
	return fmt.Sprintf("%s %s", title, util.FormatDate(in.charts.Date))
}

// ─── chart grid ──────────────────────────────────────────────────────────────

var chartGridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Print the slot grid, one column per metric",
	Example: `  wxstation history get 3f6e-… --from 2024-06-01 --format jsonl | wxstation chart grid --step 3h
  wxstation chart grid --device 3f6e-… --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := loadChart(cmd)
		if err != nil {
			return err
		}
		defer in.deps.Close()

		result := newResult(model.KindCharts, "chart grid", in.deviceID, in.charts, len(in.charts.Slots), in.started)
		return emit(cmd, in.deps, result)
	},
}

// ─── chart bar ───────────────────────────────────────────────────────────────

var (
	chartBarWidth int
	chartBarGaps  bool
)

var chartBarCmd = &cobra.Command{
	Use:   "bar",
	Short: "Horizontal bar chart, one bar per slot",
	Long: `Renders a horizontal bar chart with one labeled bar per grid slot.

Negative values extend left from a zero baseline. Wind speed bars carry the
direction arrow of the slot. Empty slots are skipped unless --gaps is set.`,
	Example: `  wxstation history get 3f6e-… --format jsonl | wxstation chart bar
  wxstation chart bar --device 3f6e-… --metric wind_speed --step 3h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := loadChart(cmd)
		if err != nil {
			return err
		}
		defer in.deps.Close()

		s, err := in.series(model.MetricTemperature)
		if err != nil {
			return err
		}
		return chart.Bar(cmd.OutOrStdout(), in.title(), s, chart.BarOptions{
			Width:    chartBarWidth,
			ShowGaps: chartBarGaps,
		})
	},
}

// ─── chart plot ──────────────────────────────────────────────────────────────

var (
	chartPlotWidth  int
	chartPlotHeight int
	chartPlotTitle  string
)

var chartPlotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Multi-line ASCII chart with labeled axes",
	Long: `Renders a multi-line chart with Y-axis tick labels and slot labels on the X axis.

Empty slots appear as gaps in the curve, not zeros. Width auto-detects from
$COLUMNS (falls back to 80). Override with --width and --height.`,
	Example: `  wxstation history get 3f6e-… --format jsonl | wxstation chart plot
  wxstation chart plot --device 3f6e-… --metric pressure --height 8`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := loadChart(cmd)
		if err != nil {
			return err
		}
		defer in.deps.Close()

		s, err := in.series(model.MetricTemperature)
		if err != nil {
			return err
		}
		title := chartPlotTitle
		if title == "" {
			title = in.title()
		}
		return chart.Plot(cmd.OutOrStdout(), title, s, chart.PlotOptions{
			Width:  chartPlotWidth,
			Height: chartPlotHeight,
		})
	},
}

// ─── chart image ─────────────────────────────────────────────────────────────

var (
	chartImageWidth  int
	chartImageHeight int
)

var chartImageCmd = &cobra.Command{
	Use:   "image",
	Short: "Export the grid as a PNG or SVG line chart",
	Long: `Writes a PNG or SVG line chart of one or more metrics to --out.
The encoder is picked from the file extension (.png or .svg).
Empty slots split the line into separate segments.`,
	Example: `  wxstation history get 3f6e-… --format jsonl | wxstation chart image --out day.png
  wxstation chart image --device 3f6e-… --metric temperature,dew_point --out day.svg`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if globalFlags.Out == "" {
			return fmt.Errorf("--out is required for chart image (e.g. --out chart.png)")
		}
		format := chart.PNG
		switch strings.ToLower(filepath.Ext(globalFlags.Out)) {
		case ".png":
		case ".svg":
			format = chart.SVG
		default:
			return fmt.Errorf("--out must end in .png or .svg")
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

		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if err := chart.Image(w, in.charts, metrics, chart.ImageOptions{
			Width:  chartImageWidth,
			Height: chartImageHeight,
			Format: format,
			Title:  in.title(),
		}); err != nil {
			_ = closeFn()
			return err
		}
		if err := closeFn(); err != nil {
			return err
		}
		if !in.deps.Config.Quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote %s\n", globalFlags.Out)
		}
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

// addChartInputFlags registers the sample source and grid flags on c.
func addChartInputFlags(c *cobra.Command) {
	pf := c.PersistentFlags()
	pf.StringVar(&chartDevice, "device", "",
		"fetch samples for this device instead of reading stdin")
	pf.StringVar(&chartSource, "source", sourceForecast,
		"sample source with --device: forecast|history")
	pf.StringVar(&chartDate, "date", "",
		"day to chart YYYY-MM-DD (default: first sample's day, or today)")
	pf.DurationVar(&chartStep, "step", time.Hour,
		"slot width; must divide 24h (e.g. 30m, 1h, 3h)")
	pf.StringVar(&chartMetric, "metric", "",
		"metric to chart; comma-separated for image (default: temperature)")
}

func init() {
	rootCmd.AddCommand(chartCmd)
	chartCmd.AddCommand(chartGridCmd)
	chartCmd.AddCommand(chartBarCmd)
	chartCmd.AddCommand(chartPlotCmd)
	chartCmd.AddCommand(chartImageCmd)
	addChartInputFlags(chartCmd)

	chartBarCmd.Flags().IntVar(&chartBarWidth, "width", 0,
		"total chart width in characters (default: auto-detect from $COLUMNS, fallback 80)")
	chartBarCmd.Flags().BoolVar(&chartBarGaps, "gaps", false,
		"print a row for every empty slot")

	chartPlotCmd.Flags().IntVar(&chartPlotWidth, "width", 0,
		"chart width in characters (default: auto-detect from $COLUMNS, fallback 80)")
	chartPlotCmd.Flags().IntVar(&chartPlotHeight, "height", 12,
		"chart height in rows")
	chartPlotCmd.Flags().StringVar(&chartPlotTitle, "title", "",
		"chart title (default: device and date)")

	chartImageCmd.Flags().IntVar(&chartImageWidth, "width", 1280, "image width in pixels")
	chartImageCmd.Flags().IntVar(&chartImageHeight, "height", 720, "image height in pixels")
}
