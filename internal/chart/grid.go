package chart

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/guregu/null/v6"

	"github.com/derickschaefer/wxstation/internal/model"
	"github.com/derickschaefer/wxstation/internal/units"
)

// ErrInvalidStep is returned when a grid step does not evenly divide a day.
var ErrInvalidStep = errors.New("chart: step must be positive and divide 24h evenly")

// GridOptions controls axis label formatting.
type GridOptions struct {
	// Clock12h formats labels as 3PM instead of 15:00.
	Clock12h bool
}

// metricSpec describes how one metric is read from a sample and converted.
type metricSpec struct {
	metric model.Metric
	unit   func(units.Preferences) string
	value  func(model.Sample, units.Preferences) null.Float
}

func intValue(v null.Int) null.Float {
	if !v.Valid {
		return null.Float{}
	}
	return null.FloatFrom(float64(v.Int64))
}

func convert(v null.Float, f func(float64) float64) null.Float {
	if !v.Valid {
		return v
	}
	return null.FloatFrom(f(v.Float64))
}

func fixed(s string) func(units.Preferences) string {
	return func(units.Preferences) string { return s }
}

func tempUnit(p units.Preferences) string     { return p.Temperature.Symbol() }
func windUnit(p units.Preferences) string     { return p.Wind.Symbol() }
func pressureUnit(p units.Preferences) string { return p.Pressure.Symbol() }

func temp(pick func(model.Sample) null.Float) func(model.Sample, units.Preferences) null.Float {
	return func(s model.Sample, p units.Preferences) null.Float {
		return convert(pick(s), func(v float64) float64 { return units.ConvertTemperature(v, p.Temperature) })
	}
}

func wind(pick func(model.Sample) null.Float) func(model.Sample, units.Preferences) null.Float {
	return func(s model.Sample, p units.Preferences) null.Float {
		return convert(pick(s), func(v float64) float64 { return units.ConvertWind(v, p.Wind) })
	}
}

// metricSpecs is the fixed series order of every Charts value.
var metricSpecs = []metricSpec{
	{model.MetricTemperature, tempUnit, temp(func(s model.Sample) null.Float { return s.Temperature })},
	{model.MetricFeelsLike, tempUnit, temp(func(s model.Sample) null.Float { return s.FeelsLike })},
	{model.MetricDewPoint, tempUnit, temp(func(s model.Sample) null.Float { return s.DewPoint })},
	{model.MetricHumidity, fixed("%"), func(s model.Sample, _ units.Preferences) null.Float { return intValue(s.Humidity) }},
	{model.MetricWindSpeed, windUnit, wind(func(s model.Sample) null.Float { return s.WindSpeed })},
	{model.MetricWindGust, windUnit, wind(func(s model.Sample) null.Float { return s.WindGust })},
	{model.MetricWindDirection, fixed("°"), func(s model.Sample, _ units.Preferences) null.Float { return intValue(s.WindDirection) }},
	{model.MetricPressure, pressureUnit, func(s model.Sample, p units.Preferences) null.Float {
		return convert(s.Pressure, func(v float64) float64 { return units.ConvertPressure(v, p.Pressure) })
	}},
	{model.MetricPrecipitation, func(p units.Preferences) string { return p.Precipitation.RateSymbol() }, func(s model.Sample, p units.Preferences) null.Float {
		return convert(s.Precipitation, func(v float64) float64 { return units.ConvertPrecipitation(v, p.Precipitation) })
	}},
	{model.MetricPrecipAccumulated, func(p units.Preferences) string { return p.Precipitation.Symbol() }, func(s model.Sample, p units.Preferences) null.Float {
		return convert(s.PrecipitationAccumulated, func(v float64) float64 { return units.ConvertPrecipitation(v, p.Precipitation) })
	}},
	{model.MetricPrecipProbability, fixed("%"), func(s model.Sample, _ units.Preferences) null.Float { return s.PrecipitationProbability }},
	{model.MetricUVIndex, fixed(""), func(s model.Sample, _ units.Preferences) null.Float { return intValue(s.UVIndex) }},
	{model.MetricSolarIrradiance, fixed("W/m²"), func(s model.Sample, _ units.Preferences) null.Float { return s.SolarIrradiance }},
	{model.MetricCloudCover, fixed("%"), func(s model.Sample, _ units.Preferences) null.Float { return intValue(s.CloudCover) }},
}

// Metrics lists every metric Build produces, in series order.
func Metrics() []model.Metric {
	out := make([]model.Metric, len(metricSpecs))
	for i, m := range metricSpecs {
		out[i] = m.metric
	}
	return out
}

// Build projects samples onto the fixed grid of date, one slot per step from
// the start of the day in date's location. A sample lands in a slot only when
// its timestamp, truncated to the minute, is exactly the slot instant. Empty
// slots are NaN in every series; values are converted to prefs as they are
// written. Every series shares the same axis labels.
func Build(date time.Time, step time.Duration, samples []model.Sample, prefs units.Preferences, opts GridOptions) (model.Charts, error) {
	if step <= 0 || (24*time.Hour)%step != 0 {
		return model.Charts{}, fmt.Errorf("%w: %s", ErrInvalidStep, step)
	}
	if date.IsZero() {
		return model.Charts{}, fmt.Errorf("%w: missing date", model.ErrInvalidWindow)
	}

	n := int(24 * time.Hour / step)
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())

	byInstant := make(map[int64]int, len(samples))
	for i, s := range samples {
		byInstant[s.Timestamp.Truncate(time.Minute).Unix()] = i
	}

	slots := make([]time.Time, n)
	labels := make([]string, n)
	matched := make([]int, n)
	for i := range slots {
		slots[i] = start.Add(time.Duration(i) * step)
		labels[i] = axisLabel(slots[i], step, opts)
		if idx, ok := byInstant[slots[i].Unix()]; ok {
			matched[i] = idx
		} else {
			matched[i] = -1
		}
	}

	charts := model.Charts{
		Date:       start,
		Step:       step,
		Slots:      slots,
		AxisLabels: labels,
		Series:     make([]model.ChartSeries, 0, len(metricSpecs)),
	}

	for _, spec := range metricSpecs {
		points := make([]float64, n)
		for i, idx := range matched {
			points[i] = math.NaN()
			if idx < 0 {
				continue
			}
			if v := spec.value(samples[idx], prefs); v.Valid {
				points[i] = v.Float64
			}
		}
		series := model.ChartSeries{
			Metric:     spec.metric,
			Unit:       spec.unit(prefs),
			AxisLabels: labels,
			Points:     points,
		}
		if spec.metric == model.MetricWindSpeed {
			series.Glyphs = make([]*model.WindGlyph, n)
			for i, idx := range matched {
				if idx >= 0 {
					series.Glyphs[i] = WindGlyphFor(samples[idx])
				}
			}
		}
		charts.Series = append(charts.Series, series)
	}
	return charts, nil
}

func axisLabel(t time.Time, step time.Duration, opts GridOptions) string {
	if !opts.Clock12h {
		return t.Format("15:04")
	}
	if step%time.Hour == 0 {
		return t.Format("3PM")
	}
	return t.Format("3:04PM")
}

// arrows point where the wind blows to, indexed by the octant it comes from
// (N, NE, E, SE, S, SW, W, NW).
var arrows = [8]string{"↓", "↙", "←", "↖", "↑", "↗", "→", "↘"}

// WindGlyphFor returns the direction annotation for s, or nil when the
// direction is unknown or there is no wind to speak of.
func WindGlyphFor(s model.Sample) *model.WindGlyph {
	if !s.WindDirection.Valid {
		return nil
	}
	speed := s.WindSpeed.Valid && s.WindSpeed.Float64 > 0
	gust := s.WindGust.Valid && s.WindGust.Float64 > 0
	if !speed && !gust {
		return nil
	}
	deg := int(((s.WindDirection.Int64 % 360) + 360) % 360)
	octant := int(math.Round(float64(deg)/45)) % 8
	return &model.WindGlyph{Degrees: deg, Arrow: arrows[octant]}
}
