// Package render converts Result values into human-readable or machine-parseable
// output. Every Kind is first flattened into a header/rows table; the
// table, csv, tsv and md formats share that view while json, jsonl and yaml
// serialize the typed payload.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/guregu/null/v6"
	"github.com/olekukonko/tablewriter"

	"github.com/derickschaefer/wxstation/internal/analyze"
	"github.com/derickschaefer/wxstation/internal/model"
	"github.com/derickschaefer/wxstation/internal/pipeline"
	"github.com/derickschaefer/wxstation/internal/rewards"
	"github.com/derickschaefer/wxstation/internal/units"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatMD    = "md"
	FormatYAML  = "yaml"
)

// Formats lists every supported --format value.
var Formats = []string{FormatTable, FormatJSON, FormatJSONL, FormatCSV, FormatTSV, FormatMD, FormatYAML}

// Options tune the human-readable views. The zero value shows metric units
// and a 24-hour clock.
type Options struct {
	Units    units.Preferences
	Clock12h bool
}

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string, opts Options) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatYAML:
		return renderYAML(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',', opts)
	case FormatTSV:
		return renderDelimited(w, result, '\t', opts)
	case FormatMD:
		return renderMarkdown(w, result, opts)
	case FormatTable, "":
		return renderTable(w, result, opts)
	default:
		return fmt.Errorf("unknown format %q (valid: %s)", format, strings.Join(Formats, ", "))
	}
}

// RenderTo writes to stdout by default; if path is non-empty, writes to file.
func RenderTo(path string, result *model.Result, format string, opts Options) error {
	if path == "" {
		return Render(os.Stdout, result, format, opts)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	return Render(f, result, format, opts)
}

// ─── JSON / YAML ──────────────────────────────────────────────────────────────

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sanitize(result))
}

// renderYAML goes through JSON so field names and null handling match the
// json format exactly.
func renderYAML(w io.Writer, result *model.Result) error {
	b, err := json.Marshal(sanitize(result))
	if err != nil {
		return err
	}
	out, err := yaml.JSONToYAML(b)
	if err != nil {
		return fmt.Errorf("converting to yaml: %w", err)
	}
	_, err = w.Write(out)
	return err
}

// sanitize replaces chart payloads with a NaN-free copy; encoding/json
// rejects NaN.
func sanitize(result *model.Result) *model.Result {
	c, ok := result.Data.(model.Charts)
	if !ok {
		return result
	}
	out := *result
	out.Data = jsonCharts(c)
	return &out
}

type jsonSeries struct {
	Metric     model.Metric       `json:"metric"`
	Unit       string             `json:"unit"`
	AxisLabels []string           `json:"axis_labels"`
	Points     []null.Float       `json:"points"`
	Glyphs     []*model.WindGlyph `json:"glyphs,omitempty"`
}

type jsonChartsView struct {
	Date   string       `json:"date"`
	Step   string       `json:"step"`
	Slots  []time.Time  `json:"slots"`
	Series []jsonSeries `json:"series"`
}

func jsonCharts(c model.Charts) jsonChartsView {
	view := jsonChartsView{
		Date:  c.Date.Format("2006-01-02"),
		Step:  c.Step.String(),
		Slots: c.Slots,
	}
	for _, s := range c.Series {
		view.Series = append(view.Series, jsonSeriesOf(s))
	}
	return view
}

func jsonSeriesOf(s model.ChartSeries) jsonSeries {
	pts := make([]null.Float, len(s.Points))
	for i, v := range s.Points {
		pts[i] = null.NewFloat(v, !math.IsNaN(v))
	}
	return jsonSeries{Metric: s.Metric, Unit: s.Unit, AxisLabels: s.AxisLabels, Points: pts, Glyphs: s.Glyphs}
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

// renderJSONL writes one record per line. Samples use the pipe format that
// `chart` commands read back from stdin.
func renderJSONL(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	switch data := result.Data.(type) {
	case []model.Sample:
		return pipeline.WriteSamples(w, result.DeviceID, data)
	case model.Charts:
		for _, s := range data.Series {
			if err := enc.Encode(jsonSeriesOf(s)); err != nil {
				return err
			}
		}
		return nil
	case []model.Transaction:
		return encodeEach(enc, data)
	case []model.RewardEntry:
		return encodeEach(enc, data)
	case []analyze.Summary:
		return encodeEach(enc, data)
	case []analyze.TrendResult:
		return encodeEach(enc, data)
	default:
		return enc.Encode(result.Data)
	}
}

func encodeEach[T any](enc *json.Encoder, items []T) error {
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return err
		}
	}
	return nil
}

// ─── Tabular View ─────────────────────────────────────────────────────────────

// grid is the flattened header/rows view shared by table, csv, tsv and md.
type grid struct {
	headers []string
	rows    [][]string
	right   map[int]bool // right-aligned columns in table output
}

func tabulate(result *model.Result, opts Options) (*grid, error) {
	switch data := result.Data.(type) {
	case []model.Sample:
		return samplesGrid(data, opts), nil
	case model.Charts:
		return chartsGrid(data), nil
	case []model.Transaction:
		return transactionsGrid(data), nil
	case []model.RewardEntry:
		return rewardsGrid(data), nil
	case rewards.Summary:
		return rewardSummaryGrid(data), nil
	case []analyze.Summary:
		return seriesSummaryGrid(data), nil
	case []analyze.TrendResult:
		return trendGrid(data), nil
	default:
		return nil, fmt.Errorf("unexpected data type %T for %s", result.Data, result.Kind)
	}
}

func samplesGrid(samples []model.Sample, opts Options) *grid {
	u := opts.Units
	g := &grid{
		headers: []string{
			"TIME",
			"TEMP " + u.Temperature.Symbol(),
			"FEELS " + u.Temperature.Symbol(),
			"DEW " + u.Temperature.Symbol(),
			"HUM %",
			"WIND " + u.Wind.Symbol(),
			"GUST " + u.Wind.Symbol(),
			"DIR",
			"PRESS " + u.Pressure.Symbol(),
			"PRECIP " + u.Precipitation.RateSymbol(),
			"PROB %",
			"UV",
			"ICON",
		},
		right: map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 7: true, 8: true, 9: true, 10: true, 11: true},
	}
	layout := "2006-01-02 15:04 MST"
	if opts.Clock12h {
		layout = "2006-01-02 3:04PM MST"
	}
	temp := func(v null.Float) string { return floatCell(v, 1, func(x float64) float64 { return units.ConvertTemperature(x, u.Temperature) }) }
	wind := func(v null.Float) string { return floatCell(v, 1, func(x float64) float64 { return units.ConvertWind(x, u.Wind) }) }
	for _, s := range samples {
		g.rows = append(g.rows, []string{
			s.Timestamp.Format(layout),
			temp(s.Temperature),
			temp(s.FeelsLike),
			temp(s.DewPoint),
			intCell(s.Humidity),
			wind(s.WindSpeed),
			wind(s.WindGust),
			intCell(s.WindDirection),
			floatCell(s.Pressure, 1, func(x float64) float64 { return units.ConvertPressure(x, u.Pressure) }),
			floatCell(s.Precipitation, 2, func(x float64) float64 { return units.ConvertPrecipitation(x, u.Precipitation) }),
			floatCell(s.PrecipitationProbability, 0, nil),
			intCell(s.UVIndex),
			s.Icon.String,
		})
	}
	return g
}

// chartsGrid lays the series out as columns, one row per slot.
func chartsGrid(c model.Charts) *grid {
	g := &grid{headers: []string{"SLOT"}, right: map[int]bool{}}
	for i, s := range c.Series {
		g.headers = append(g.headers, fmt.Sprintf("%s %s", strings.ToUpper(string(s.Metric)), s.Unit))
		g.right[i+1] = true
	}
	for slot, label := range c.AxisLabels {
		row := []string{label}
		for _, s := range c.Series {
			cell := "."
			if slot < len(s.Points) && !math.IsNaN(s.Points[slot]) {
				cell = strconv.FormatFloat(s.Points[slot], 'f', 1, 64)
				if slot < len(s.Glyphs) && s.Glyphs[slot] != nil {
					cell += " " + s.Glyphs[slot].Arrow
				}
			}
			row = append(row, cell)
		}
		g.rows = append(g.rows, row)
	}
	return g
}

func transactionsGrid(txs []model.Transaction) *grid {
	g := &grid{
		headers: []string{"TIMESTAMP", "SCORE", "ACTUAL", "BASE", "BOOST", "LOST", "TX HASH"},
		right:   map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true},
	}
	for _, tx := range txs {
		g.rows = append(g.rows, []string{
			tx.Timestamp.Format(time.RFC3339),
			intCell(tx.RewardScore),
			tx.ActualReward.String(),
			tx.BaseReward.String(),
			tx.BoostReward.String(),
			tx.LostRewards.String(),
			shortHash(tx.TxHash),
		})
	}
	return g
}

func rewardsGrid(entries []model.RewardEntry) *grid {
	g := &grid{headers: []string{"DATE", "SCORE", "TOTAL"}, right: map[int]bool{1: true, 2: true}}
	for _, e := range entries {
		g.rows = append(g.rows, []string{e.Date.Format("2006-01-02"), intCell(e.RewardScore), e.TotalReward.String()})
	}
	return g
}

func rewardSummaryGrid(s rewards.Summary) *grid {
	g := &grid{headers: []string{"FIELD", "VALUE"}}
	date := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02")
	}
	g.rows = [][]string{
		{"Transactions", strconv.Itoa(s.Count)},
		{"Total", s.Total.String()},
		{"Mean", s.Mean.String()},
		{"Max", s.Max.String()},
		{"Base", s.Base.String()},
		{"Boost", s.Boost.String()},
		{"Lost", s.Lost.String()},
		{"Avg Score", strconv.FormatFloat(s.AvgScore, 'f', 1, 64)},
		{"First", date(s.First)},
		{"Last", date(s.Last)},
	}
	return g
}

func seriesSummaryGrid(sums []analyze.Summary) *grid {
	g := &grid{
		headers: []string{"METRIC", "UNIT", "SLOTS", "MISSING", "MEAN", "STD", "MIN", "MIN AT", "MEDIAN", "MAX", "MAX AT", "CHANGE"},
		right:   map[int]bool{2: true, 3: true, 4: true, 5: true, 6: true, 8: true, 9: true, 11: true},
	}
	for _, s := range sums {
		g.rows = append(g.rows, []string{
			string(s.Metric),
			s.Unit,
			strconv.Itoa(s.Slots),
			fmt.Sprintf("%d (%.0f%%)", s.Missing, s.MissingPct),
			floatCell(s.Mean, 2, nil),
			floatCell(s.Std, 2, nil),
			floatCell(s.Min, 2, nil),
			s.MinAt,
			floatCell(s.Median, 2, nil),
			floatCell(s.Max, 2, nil),
			s.MaxAt,
			floatCell(s.Change, 2, nil),
		})
	}
	return g
}

func trendGrid(trends []analyze.TrendResult) *grid {
	g := &grid{
		headers: []string{"METRIC", "METHOD", "SLOPE/H", "INTERCEPT", "R²", "DIRECTION"},
		right:   map[int]bool{2: true, 3: true, 4: true},
	}
	for _, t := range trends {
		g.rows = append(g.rows, []string{
			string(t.Metric),
			string(t.Method),
			strconv.FormatFloat(t.SlopePerHour, 'f', 4, 64),
			strconv.FormatFloat(t.Intercept, 'f', 2, 64),
			strconv.FormatFloat(t.R2, 'f', 3, 64),
			t.Direction,
		})
	}
	return g
}

// ─── Table ────────────────────────────────────────────────────────────────────

func renderTable(w io.Writer, result *model.Result, opts Options) error {
	g, err := tabulate(result, opts)
	if err != nil {
		// Fallback: JSON
		return renderJSON(w, result)
	}
	if len(g.rows) == 0 {
		fmt.Fprintln(w, "(no data)")
		return nil
	}

	tw := tablewriter.NewWriter(w)
	tw.SetHeader(g.headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)
	align := make([]int, len(g.headers))
	for i := range align {
		align[i] = tablewriter.ALIGN_LEFT
		if g.right[i] {
			align[i] = tablewriter.ALIGN_RIGHT
		}
	}
	tw.SetColumnAlignment(align)
	tw.AppendBulk(g.rows)
	tw.Render()
	return nil
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, result *model.Result, sep rune, opts Options) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	g, err := tabulate(result, opts)
	if err != nil {
		// Fallback: serialize as JSON on a single line
		b, _ := json.Marshal(sanitize(result).Data)
		_ = cw.Write([]string{string(b)})
	} else {
		headers := make([]string, len(g.headers))
		for i, h := range g.headers {
			headers[i] = columnName(h)
		}
		_ = cw.Write(headers)
		for _, row := range g.rows {
			_ = cw.Write(row)
		}
	}

	cw.Flush()
	return cw.Error()
}

// columnName turns a table header ("TEMP °C") into a csv column ("temp_°c").
func columnName(h string) string {
	return strings.ReplaceAll(strings.ToLower(h), " ", "_")
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result, opts Options) error {
	g, err := tabulate(result, opts)
	if err != nil {
		return renderJSON(w, result)
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(g.headers, " | "))
	seps := make([]string, len(g.headers))
	for i := range seps {
		seps[i] = "---"
		if g.right[i] {
			seps[i] = "--:"
		}
	}
	fmt.Fprintf(w, "|%s|\n", strings.Join(seps, "|"))
	for _, row := range g.rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = mdEscape(c)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	return nil
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		src := "live"
		if result.Stats.CacheHit {
			src = "cache"
		}
		fmt.Fprintf(w, "\n[%s • %d items • %dms • %s]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.Items,
			result.Stats.DurationMs,
			src,
		)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// floatCell formats an optional value, converting it first when conv is set.
// Missing values render as ".".
func floatCell(v null.Float, decimals int, conv func(float64) float64) string {
	if !v.Valid || math.IsNaN(v.Float64) {
		return "."
	}
	x := v.Float64
	if conv != nil {
		x = conv(x)
	}
	return strconv.FormatFloat(x, 'f', decimals, 64)
}

func intCell(v null.Int) string {
	if !v.Valid {
		return "."
	}
	return strconv.FormatInt(v.Int64, 10)
}

func shortHash(h string) string {
	if len(h) > 14 {
		return h[:8] + "…" + h[len(h)-4:]
	}
	return h
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
