// Package analyze computes descriptive statistics and trends over chart
// series. All functions are pure; no I/O.
package analyze

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/guregu/null/v6"

	"github.com/derickschaefer/wxstation/internal/model"
)

// ─── Summary ──────────────────────────────────────────────────────────────────

// Summary holds descriptive statistics for one series. Statistics are null
// when the series has no values.
type Summary struct {
	Metric     model.Metric `json:"metric"`
	Unit       string       `json:"unit"`
	Slots      int          `json:"slots"`
	Missing    int          `json:"missing"`
	MissingPct float64      `json:"missing_pct"`
	Mean       null.Float   `json:"mean"`
	Std        null.Float   `json:"std"`
	Min        null.Float   `json:"min"`
	MinAt      string       `json:"min_at,omitempty"`
	Median     null.Float   `json:"median"`
	Max        null.Float   `json:"max"`
	MaxAt      string       `json:"max_at,omitempty"`
	First      null.Float   `json:"first"`
	Last       null.Float   `json:"last"`
	Change     null.Float   `json:"change"`
}

// Summarize computes statistics over s. NaN slots are counted as missing and
// excluded from every figure.
func Summarize(s model.ChartSeries) Summary {
	sum := Summary{Metric: s.Metric, Unit: s.Unit, Slots: len(s.Points)}

	var vals []float64
	minIdx, maxIdx := -1, -1
	for i, v := range s.Points {
		if math.IsNaN(v) {
			sum.Missing++
			continue
		}
		if len(vals) == 0 {
			sum.First = null.FloatFrom(v)
		}
		sum.Last = null.FloatFrom(v)
		vals = append(vals, v)
		if minIdx < 0 || v < s.Points[minIdx] {
			minIdx = i
		}
		if maxIdx < 0 || v > s.Points[maxIdx] {
			maxIdx = i
		}
	}
	if sum.Slots > 0 {
		sum.MissingPct = float64(sum.Missing) / float64(sum.Slots) * 100
	}
	if len(vals) == 0 {
		return sum
	}

	mean := average(vals)
	sum.Mean = null.FloatFrom(mean)
	sum.Std = null.FloatFrom(stddev(vals, mean))
	sum.Min = null.FloatFrom(s.Points[minIdx])
	sum.Max = null.FloatFrom(s.Points[maxIdx])
	if minIdx < len(s.AxisLabels) {
		sum.MinAt = s.AxisLabels[minIdx]
	}
	if maxIdx < len(s.AxisLabels) {
		sum.MaxAt = s.AxisLabels[maxIdx]
	}

	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	sum.Median = null.FloatFrom(percentile(sorted, 50))
	sum.Change = null.FloatFrom(sum.Last.Float64 - sum.First.Float64)
	return sum
}

// SummarizeAll summarizes every series of c in order.
func SummarizeAll(c model.Charts) []Summary {
	out := make([]Summary, len(c.Series))
	for i, s := range c.Series {
		out[i] = Summarize(s)
	}
	return out
}

// ─── Trend ────────────────────────────────────────────────────────────────────

// TrendMethod selects the regression algorithm.
type TrendMethod string

const (
	TrendLinear   TrendMethod = "linear"
	TrendTheilSen TrendMethod = "theil-sen"
)

// TrendResult is a straight-line fit of a series against time.
type TrendResult struct {
	Metric       model.Metric `json:"metric"`
	Method       TrendMethod  `json:"method"`
	SlopePerHour float64      `json:"slope_per_hour"`
	Intercept    float64      `json:"intercept"`
	R2           float64      `json:"r2"`
	Direction    string       `json:"direction"` // up, down or flat
}

// Trend fits values against hours since slots[0]. slots must align with
// s.Points; NaN points are skipped.
func Trend(s model.ChartSeries, slots []time.Time, method TrendMethod) (TrendResult, error) {
	tr := TrendResult{Metric: s.Metric, Method: method}
	if len(slots) != len(s.Points) {
		return tr, fmt.Errorf("trend: %d slots for %d points", len(slots), len(s.Points))
	}

	var xs, ys []float64
	for i, v := range s.Points {
		if math.IsNaN(v) {
			continue
		}
		xs = append(xs, slots[i].Sub(slots[0]).Hours())
		ys = append(ys, v)
	}
	if len(xs) < 2 {
		return tr, fmt.Errorf("trend: need at least 2 values, got %d", len(xs))
	}

	switch method {
	case TrendTheilSen:
		tr.SlopePerHour = medianSlope(xs, ys)
		tr.Intercept = average(ys) - tr.SlopePerHour*average(xs)
	default:
		tr.Method = TrendLinear
		tr.SlopePerHour, tr.Intercept = leastSquares(xs, ys)
	}
	tr.R2 = rSquared(xs, ys, tr.SlopePerHour, tr.Intercept)

	switch {
	case tr.SlopePerHour > 0.01:
		tr.Direction = "up"
	case tr.SlopePerHour < -0.01:
		tr.Direction = "down"
	default:
		tr.Direction = "flat"
	}
	return tr, nil
}

// ─── Math helpers ─────────────────────────────────────────────────────────────

func average(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s / float64(len(vals))
}

// stddev is the sample standard deviation; 0 for fewer than two values.
func stddev(vals []float64, mean float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sq float64
	for _, v := range vals {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(vals)-1))
}

// percentile interpolates linearly within sorted.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(pos)
	if lo+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

func leastSquares(xs, ys []float64) (slope, intercept float64) {
	mx, my := average(xs), average(ys)
	var num, den float64
	for i := range xs {
		num += (xs[i] - mx) * (ys[i] - my)
		den += (xs[i] - mx) * (xs[i] - mx)
	}
	if den == 0 {
		return 0, my
	}
	slope = num / den
	return slope, my - slope*mx
}

// medianSlope is the Theil-Sen estimator: the median of pairwise slopes.
func medianSlope(xs, ys []float64) float64 {
	var slopes []float64
	for i := range xs {
		for j := i + 1; j < len(xs); j++ {
			if dx := xs[j] - xs[i]; dx != 0 {
				slopes = append(slopes, (ys[j]-ys[i])/dx)
			}
		}
	}
	if len(slopes) == 0 {
		return 0
	}
	sort.Float64s(slopes)
	return percentile(slopes, 50)
}

func rSquared(xs, ys []float64, slope, intercept float64) float64 {
	my := average(ys)
	var ssTot, ssRes float64
	for i := range xs {
		pred := slope*xs[i] + intercept
		ssTot += (ys[i] - my) * (ys[i] - my)
		ssRes += (ys[i] - pred) * (ys[i] - pred)
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}
