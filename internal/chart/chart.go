// Package chart turns samples into fixed-step chart grids and renders them.
//
//   - Build: projects samples onto a per-day grid, one series per metric
//   - Bar: horizontal bar chart, one bar per slot, with wind arrows
//   - Plot: multi-line ASCII chart with labeled axes
//   - Image: PNG or SVG line chart
//
// Every renderer treats NaN as a gap, never as zero.
package chart

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/derickschaefer/wxstation/internal/model"
)

// ─── Bar ─────────────────────────────────────────────────────────────────────

// BarOptions controls horizontal bar chart rendering.
type BarOptions struct {
	// Width is the total character width available for the chart.
	// If 0, auto-detects from $COLUMNS, falls back to 80.
	Width int
	// ShowGaps prints a row with "." for every empty slot.
	ShowGaps bool
}

// Bar renders s as a horizontal bar chart, one bar per slot.
//
//	temperature (°C)  00:00 – 21:00
//	00:00  14.2  ████████
//	03:00     .
//	06:00  17.9  ███████████████
func Bar(w io.Writer, title string, s model.ChartSeries, opts BarOptions) error {
	totalWidth := opts.Width
	if totalWidth <= 0 {
		totalWidth = termWidth()
	}

	valid := 0
	minVal, maxVal := math.Inf(1), math.Inf(-1)
	for _, v := range s.Points {
		if math.IsNaN(v) {
			continue
		}
		valid++
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if valid == 0 {
		return fmt.Errorf("chart bar: %s has no values to render", s.Metric)
	}

	labelWidth, valWidth := 0, 1
	for i, l := range s.AxisLabels {
		labelWidth = max(labelWidth, len(l))
		if !math.IsNaN(s.Points[i]) {
			valWidth = max(valWidth, len(formatFloat(s.Points[i])))
		}
	}
	glyphWidth := 0
	if s.Glyphs != nil {
		glyphWidth = 2
	}

	barArea := totalWidth - labelWidth - valWidth - glyphWidth - 4
	if barArea < 4 {
		barArea = 4
	}

	// Bars grow from zero, or from the minimum when every value is positive.
	base := 0.0
	if minVal > 0 {
		base = minVal
	}
	span := math.Max(maxVal, 0) - math.Min(minVal, base)
	if span == 0 {
		span = 1
	}
	zeroCol := 0
	if minVal < 0 {
		zeroCol = int(math.Round(-minVal / span * float64(barArea-1)))
	}

	fmt.Fprintf(w, "%s  %s – %s\n", heading(title, s), s.AxisLabels[0], s.AxisLabels[len(s.AxisLabels)-1])
	for i, v := range s.Points {
		label := s.AxisLabels[i]
		if math.IsNaN(v) {
			if opts.ShowGaps {
				fmt.Fprintf(w, "%-*s  %*s\n", labelWidth, label, valWidth, ".")
			}
			continue
		}
		glyph := ""
		if s.Glyphs != nil {
			glyph = " "
			if g := s.Glyphs[i]; g != nil {
				glyph = g.Arrow
			}
			glyph += " "
		}
		var bar string
		if minVal < 0 {
			bar = signedBar(v, span, barArea, zeroCol)
		} else {
			n := int(math.Round((v - base) / span * float64(barArea)))
			bar = strings.Repeat("█", min(max(n, 1), barArea))
		}
		fmt.Fprintf(w, "%-*s  %*s  %s%s\n", labelWidth, label, valWidth, formatFloat(v), glyph, bar)
	}
	return nil
}

// signedBar draws v left or right of a zero column marked with │.
func signedBar(v, span float64, width, zeroCol int) string {
	buf := []rune(strings.Repeat(" ", width))
	if zeroCol < width {
		buf[zeroCol] = '│'
	}
	n := int(math.Round(math.Abs(v) / span * float64(width-1)))
	for k := 1; k <= n; k++ {
		col := zeroCol + k
		if v < 0 {
			col = zeroCol - k
		}
		if col >= 0 && col < width {
			buf[col] = '█'
		}
	}
	return string(buf)
}

// ─── Plot ─────────────────────────────────────────────────────────────────────

// PlotOptions controls multi-line ASCII plot rendering.
type PlotOptions struct {
	// Width is the total character width of the chart (including Y-axis label).
	// If 0, auto-detects from $COLUMNS, falls back to 80.
	Width int
	// Height is the number of data rows in the chart body. Defaults to 12.
	Height int
}

// Plot renders s as a line chart. Empty slots leave a visible break.
func Plot(w io.Writer, title string, s model.ChartSeries, opts PlotOptions) error {
	width := opts.Width
	if width <= 0 {
		width = termWidth()
	}
	height := opts.Height
	if height <= 0 {
		height = 12
	}

	valid := 0
	minVal, maxVal := math.Inf(1), math.Inf(-1)
	for _, v := range s.Points {
		if !math.IsNaN(v) {
			valid++
			minVal = math.Min(minVal, v)
			maxVal = math.Max(maxVal, v)
		}
	}
	if valid < 2 {
		return fmt.Errorf("chart plot: need at least 2 values for %s (got %d)", s.Metric, valid)
	}

	ticks := yTicks(minVal, maxVal, height)
	yLabelWidth := 0
	for _, t := range ticks {
		yLabelWidth = max(yLabelWidth, len(formatFloat(t)))
	}
	plotWidth := max(width-yLabelWidth-2, 10)

	cols := resample(s.Points, plotWidth)
	rows := rowsFor(cols, minVal, maxVal, height)
	canvas := draw(rows, height)

	fmt.Fprintf(w, "%s  (%s to %s)\n", heading(title, s), s.AxisLabels[0], s.AxisLabels[len(s.AxisLabels)-1])

	tickAt := make(map[int]string, len(ticks))
	for _, t := range ticks {
		tickAt[int(math.Round(rowPos(t, minVal, maxVal, height)))] = formatFloat(t)
	}
	for r := 0; r < height; r++ {
		label, axis := tickAt[r], " "
		if label != "" {
			axis = "┤"
		}
		fmt.Fprintf(w, "%*s%s%s\n", yLabelWidth, label, axis, string(canvas[r]))
	}
	fmt.Fprintf(w, "%s└%s\n", strings.Repeat(" ", yLabelWidth), strings.Repeat("─", plotWidth))
	fmt.Fprintf(w, "%s %s\n", strings.Repeat(" ", yLabelWidth), xAxisLabels(s.AxisLabels, plotWidth))
	return nil
}

// resample maps points onto n columns. A column averages the points that
// fall into it, or is NaN when they are all NaN. With fewer points than
// columns each point is repeated.
func resample(points []float64, n int) []float64 {
	total := len(points)
	cols := make([]float64, n)
	for c := range cols {
		lo := c * total / n
		hi := max((c+1)*total/n, lo+1)
		sum, count := 0.0, 0
		for _, v := range points[lo:min(hi, total)] {
			if !math.IsNaN(v) {
				sum += v
				count++
			}
		}
		cols[c] = math.NaN()
		if count > 0 {
			cols[c] = sum / float64(count)
		}
	}
	return cols
}

// rowPos returns the fractional row of v, 0 being the top (maxVal).
func rowPos(v, minVal, maxVal float64, height int) float64 {
	if maxVal == minVal {
		return float64(height) / 2
	}
	return (maxVal - v) / (maxVal - minVal) * float64(height-1)
}

// rowsFor converts column values to row indices; -1 marks a gap.
func rowsFor(cols []float64, minVal, maxVal float64, height int) []int {
	rows := make([]int, len(cols))
	for c, v := range cols {
		if math.IsNaN(v) {
			rows[c] = -1
			continue
		}
		rows[c] = min(max(int(math.Round(rowPos(v, minVal, maxVal, height))), 0), height-1)
	}
	return rows
}

// draw connects consecutive rows with box-drawing characters.
func draw(rows []int, height int) [][]rune {
	canvas := make([][]rune, height)
	for r := range canvas {
		canvas[r] = []rune(strings.Repeat(" ", len(rows)))
	}
	for c, r := range rows {
		if r < 0 {
			continue
		}
		prev, next := -1, -1
		if c > 0 {
			prev = rows[c-1]
		}
		if c < len(rows)-1 {
			next = rows[c+1]
		}
		canvas[r][c] = joint(prev, r, next)

		// Vertical run back to the previous column's level.
		if prev >= 0 && prev != r {
			lo, hi := min(prev, r), max(prev, r)
			for k := lo + 1; k < hi; k++ {
				canvas[k][c] = '│'
			}
		}
	}
	return canvas
}

// joint picks the character at row r given its neighbours (-1 for a gap).
// Rows grow downward, so a smaller row is a higher value.
func joint(prev, r, next int) rune {
	switch {
	case prev < 0 && next < 0:
		return '·'
	case next >= 0 && next < r && (prev < 0 || prev >= r):
		return '╯'
	case next >= 0 && next > r && (prev < 0 || prev <= r):
		return '╮'
	case prev >= 0 && prev < r:
		return '╰'
	case prev >= 0 && prev > r:
		return '╭'
	default:
		return '─'
	}
}

// ─── Axis helpers ─────────────────────────────────────────────────────────────

// yTicks returns evenly spaced tick values for the Y axis.
func yTicks(minVal, maxVal float64, height int) []float64 {
	if maxVal == minVal {
		return []float64{minVal}
	}
	n := 4
	if height <= 6 {
		n = 3
	}
	ticks := make([]float64, n)
	for i := range ticks {
		ticks[i] = minVal + float64(i)*(maxVal-minVal)/float64(n-1)
	}
	return ticks
}

// xAxisLabels places the first, middle and last slot labels under the plot.
func xAxisLabels(labels []string, width int) string {
	buf := []rune(strings.Repeat(" ", width))
	put := func(pos int, s string) {
		for i, ch := range []rune(s) {
			if p := pos + i; p >= 0 && p < len(buf) {
				buf[p] = ch
			}
		}
	}
	if len(labels) == 0 {
		return ""
	}
	first, mid, last := labels[0], labels[len(labels)/2], labels[len(labels)-1]
	put(0, first)
	put(width/2-len(mid)/2, mid)
	put(width-len(last), last)
	return string(buf)
}

// ─── Utilities ────────────────────────────────────────────────────────────────

func heading(title string, s model.ChartSeries) string {
	if title == "" {
		title = string(s.Metric)
	}
	if s.Unit != "" {
		title += " (" + s.Unit + ")"
	}
	return title
}

// formatFloat formats a value for labels: at most two decimals, trailing
// zeros trimmed, "." for NaN.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	if v == 0 {
		return "0"
	}
	decimals := 2
	if math.Abs(v) >= 100 {
		decimals = 1
	}
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s
}

// termWidth returns the terminal width from $COLUMNS, defaulting to 80.
func termWidth() int {
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if n, err := strconv.Atoi(cols); err == nil && n > 20 {
			return n
		}
	}
	return 80
}
