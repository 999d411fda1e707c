package chart

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"

	"github.com/derickschaefer/wxstation/internal/model"
)

// ImageFormat selects the encoder for Image.
type ImageFormat string

const (
	PNG ImageFormat = "png"
	SVG ImageFormat = "svg"
)

// ImageOptions controls PNG/SVG rendering.
type ImageOptions struct {
	Width  int
	Height int
	Format ImageFormat
	Title  string
}

// Image renders the given metrics of charts as a line chart. Each run of
// consecutive values becomes its own line segment so empty slots show as
// breaks. Every metric keeps one color across its segments.
func Image(w io.Writer, charts model.Charts, metrics []model.Metric, opts ImageOptions) error {
	if len(metrics) == 0 {
		metrics = []model.Metric{model.MetricTemperature}
	}
	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}

	var series []gochart.Series
	var names []string
	for i, m := range metrics {
		s, ok := charts.Get(m)
		if !ok {
			return fmt.Errorf("chart image: unknown metric %q", m)
		}
		style := gochart.Style{
			StrokeColor: gochart.GetDefaultColor(i),
			StrokeWidth: 2,
			DotColor:    gochart.GetDefaultColor(i),
			DotWidth:    2,
		}
		for _, seg := range segments(charts.Slots, s.Points) {
			series = append(series, gochart.TimeSeries{
				Style:   style,
				XValues: seg.x,
				YValues: seg.y,
			})
		}
		names = append(names, heading("", s))
	}
	if len(series) == 0 {
		return fmt.Errorf("chart image: no values to render for %s", strings.Join(names, ", "))
	}

	title := opts.Title
	if title == "" {
		title = charts.Date.Format("2006-01-02") + ": " + strings.Join(names, ", ")
	}

	graph := gochart.Chart{
		Title:  title,
		Width:  width,
		Height: height,
		XAxis: gochart.XAxis{
			ValueFormatter: gochart.TimeHourValueFormatter,
		},
		YAxis: gochart.YAxis{
			ValueFormatter: func(v interface{}) string {
				return gochart.FloatValueFormatterWithFormat(v, "%.1f")
			},
		},
		Series: series,
	}

	if opts.Format == SVG {
		return graph.Render(gochart.SVG, w)
	}
	return graph.Render(gochart.PNG, w)
}

type segment struct {
	x []time.Time
	y []float64
}

// segments splits points at NaN runs.
func segments(slots []time.Time, points []float64) []segment {
	var out []segment
	var cur segment
	flush := func() {
		if len(cur.x) > 0 {
			out = append(out, cur)
		}
		cur = segment{}
	}
	for i, v := range points {
		if math.IsNaN(v) {
			flush()
			continue
		}
		cur.x = append(cur.x, slots[i])
		cur.y = append(cur.y, v)
	}
	flush()
	return out
}
