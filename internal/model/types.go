// Package model defines the canonical data types used throughout wxstation.
// These types are the single source of truth for station samples, cache
// entries, paginated reward records, chart grids, and the result envelope
// that every command returns.
package model

import (
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// ─── Samples ──────────────────────────────────────────────────────────────────

// Sample is a single observation or forecast point for a weather station.
// Timestamp carries the station's zone. Every metric is optional: an invalid
// (null) field means "not measured", which is distinct from the NaN used for
// gaps in chart grids. Samples are treated as immutable values.
type Sample struct {
	Timestamp                time.Time   `json:"timestamp"`
	Temperature              null.Float  `json:"temperature"`               // °C
	FeelsLike                null.Float  `json:"feels_like"`                // °C
	DewPoint                 null.Float  `json:"dew_point"`                 // °C
	Humidity                 null.Int    `json:"humidity"`                  // %
	WindSpeed                null.Float  `json:"wind_speed"`                // m/s
	WindGust                 null.Float  `json:"wind_gust"`                 // m/s
	WindDirection            null.Int    `json:"wind_direction"`            // degrees
	Pressure                 null.Float  `json:"pressure"`                  // hPa
	Precipitation            null.Float  `json:"precipitation"`             // mm/h
	PrecipitationAccumulated null.Float  `json:"precipitation_accumulated"` // mm
	PrecipitationProbability null.Float  `json:"precipitation_probability"` // %
	UVIndex                  null.Int    `json:"uv_index"`
	SolarIrradiance          null.Float  `json:"solar_irradiance"` // W/m²
	CloudCover               null.Int    `json:"cloud_cover"`      // %
	Icon                     null.String `json:"icon"`
}

// Date returns the calendar date of the sample in its own zone.
func (s Sample) Date() time.Time {
	return DateOf(s.Timestamp)
}

// ─── Cache ────────────────────────────────────────────────────────────────────

// CacheEntry is the result of a cache lookup for one device and window.
// Samples are sorted by timestamp ascending with no duplicate timestamps, and
// every sample's date lies inside Window. Complete reports whether the store
// has recorded coverage for every day of Window.
type CacheEntry struct {
	DeviceID string     `json:"device_id"`
	Window   DateWindow `json:"window"`
	Samples  []Sample   `json:"samples"`
	Complete bool       `json:"complete"`
}

// ─── Paginated Records ────────────────────────────────────────────────────────

// Page is one page of a paginated endpoint.
type Page[T any] struct {
	Data        []T  `json:"data"`
	HasNextPage bool `json:"hasNextPage"`
}

// Transaction is a reward transaction credited to a station.
type Transaction struct {
	Timestamp    time.Time       `json:"timestamp"`
	TxHash       string          `json:"tx_hash"`
	RewardScore  null.Int        `json:"reward_score"`
	DailyReward  decimal.Decimal `json:"daily_reward"`
	ActualReward decimal.Decimal `json:"actual_reward"`
	BaseReward   decimal.Decimal `json:"base_reward"`
	BoostReward  decimal.Decimal `json:"boost_reward"`
	LostRewards  decimal.Decimal `json:"lost_rewards"`
}

// RewardEntry is one day on a station's reward timeline.
type RewardEntry struct {
	Date        time.Time       `json:"date"`
	RewardScore null.Int        `json:"reward_score"`
	TotalReward decimal.Decimal `json:"total_reward"`
}

// ─── Charts ───────────────────────────────────────────────────────────────────

// Metric names a per-metric chart series.
type Metric string

const (
	MetricTemperature       Metric = "temperature"
	MetricFeelsLike         Metric = "feels_like"
	MetricDewPoint          Metric = "dew_point"
	MetricHumidity          Metric = "humidity"
	MetricWindSpeed         Metric = "wind_speed"
	MetricWindGust          Metric = "wind_gust"
	MetricWindDirection     Metric = "wind_direction"
	MetricPressure          Metric = "pressure"
	MetricPrecipitation     Metric = "precipitation"
	MetricPrecipAccumulated Metric = "precipitation_accumulated"
	MetricPrecipProbability Metric = "precipitation_probability"
	MetricUVIndex           Metric = "uv_index"
	MetricSolarIrradiance   Metric = "solar_irradiance"
	MetricCloudCover        Metric = "cloud_cover"
)

// WindGlyph annotates a wind point with the direction the wind comes from.
type WindGlyph struct {
	Degrees int    `json:"degrees"`
	Arrow   string `json:"arrow"`
}

// ChartSeries is one metric projected onto a fixed chronological grid.
// len(Points) == len(AxisLabels); a NaN point means no sample at that slot.
// Glyphs is nil for every metric except wind speed, where it has one entry per
// slot (nil where no direction applies).
type ChartSeries struct {
	Metric     Metric       `json:"metric"`
	Unit       string       `json:"unit"`
	AxisLabels []string     `json:"axis_labels"`
	Points     []float64    `json:"points"`
	Glyphs     []*WindGlyph `json:"glyphs,omitempty"`
}

// Charts bundles every series built for one request. All series share
// AxisLabels and the same slot-to-time mapping.
type Charts struct {
	Date       time.Time     `json:"date"`
	Step       time.Duration `json:"step"`
	Slots      []time.Time   `json:"slots"`
	AxisLabels []string      `json:"axis_labels"`
	Series     []ChartSeries `json:"series"`
}

// Get returns the series for metric, if present.
func (c Charts) Get(metric Metric) (ChartSeries, bool) {
	for _, s := range c.Series {
		if s.Metric == metric {
			return s, true
		}
	}
	return ChartSeries{}, false
}

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries performance and cache metadata for a command result.
type ResultStats struct {
	CacheHit   bool  `json:"cache_hit"`
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
}

// Result is the uniform envelope returned by every command.
// The Data field holds the typed payload; Kind identifies what is in it.
// Renderers switch on Kind to format output appropriately.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	DeviceID    string      `json:"device_id,omitempty"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	KindSamples       = "samples"
	KindCharts        = "charts"
	KindTransactions  = "transactions"
	KindRewards       = "rewards"
	KindRewardSummary = "reward_summary"
	KindSeriesSummary = "series_summary"
	KindTrend         = "trend"
)
