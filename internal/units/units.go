// Package units converts canonical metric values into the user's display
// units. Samples always stay in canonical units (°C, m/s, mm, hPa); conversion
// happens only when a value is written into a chart grid.
package units

import (
	"fmt"
	"math"
	"strings"
)

// Temperature display units.
type Temperature string

const (
	Celsius    Temperature = "celsius"
	Fahrenheit Temperature = "fahrenheit"
)

// Wind speed display units.
type Wind string

const (
	MetersPerSecond   Wind = "ms"
	KilometersPerHour Wind = "kmh"
	MilesPerHour      Wind = "mph"
	Knots             Wind = "knots"
	Beaufort          Wind = "beaufort"
)

// Precipitation display units.
type Precipitation string

const (
	Millimeters Precipitation = "mm"
	Inches      Precipitation = "in"
)

// Pressure display units.
type Pressure string

const (
	Hectopascal     Pressure = "hpa"
	InchesOfMercury Pressure = "inhg"
)

// Preferences is the set of display units selected by the user.
type Preferences struct {
	Temperature   Temperature   `json:"temperature" yaml:"temperature"`
	Wind          Wind          `json:"wind" yaml:"wind"`
	Precipitation Precipitation `json:"precipitation" yaml:"precipitation"`
	Pressure      Pressure      `json:"pressure" yaml:"pressure"`
}

// Metric returns canonical preferences.
func Metric() Preferences {
	return Preferences{
		Temperature:   Celsius,
		Wind:          MetersPerSecond,
		Precipitation: Millimeters,
		Pressure:      Hectopascal,
	}
}

// Imperial returns US customary preferences.
func Imperial() Preferences {
	return Preferences{
		Temperature:   Fahrenheit,
		Wind:          MilesPerHour,
		Precipitation: Inches,
		Pressure:      InchesOfMercury,
	}
}

// Provider supplies the user's current unit preferences.
type Provider interface {
	Preferences() Preferences
}

// Static is a Provider with fixed preferences.
type Static Preferences

func (s Static) Preferences() Preferences { return Preferences(s) }

// Parse builds Preferences from raw strings, falling back to metric for empty
// values and rejecting unknown ones.
func Parse(temp, wind, precip, pressure string) (Preferences, error) {
	p := Metric()
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

	switch v := Temperature(norm(temp)); v {
	case "":
	case Celsius, Fahrenheit:
		p.Temperature = v
	case "c":
		p.Temperature = Celsius
	case "f":
		p.Temperature = Fahrenheit
	default:
		return p, fmt.Errorf("unknown temperature unit %q", temp)
	}

	switch v := Wind(norm(wind)); v {
	case "":
	case MetersPerSecond, KilometersPerHour, MilesPerHour, Knots, Beaufort:
		p.Wind = v
	case "m/s":
		p.Wind = MetersPerSecond
	case "km/h":
		p.Wind = KilometersPerHour
	case "kn", "kt":
		p.Wind = Knots
	case "bf":
		p.Wind = Beaufort
	default:
		return p, fmt.Errorf("unknown wind unit %q", wind)
	}

	switch v := Precipitation(norm(precip)); v {
	case "":
	case Millimeters, Inches:
		p.Precipitation = v
	default:
		return p, fmt.Errorf("unknown precipitation unit %q", precip)
	}

	switch v := Pressure(norm(pressure)); v {
	case "":
	case Hectopascal, InchesOfMercury:
		p.Pressure = v
	case "mbar":
		p.Pressure = Hectopascal
	default:
		return p, fmt.Errorf("unknown pressure unit %q", pressure)
	}
	return p, nil
}

// ─── Conversions ──────────────────────────────────────────────────────────────

// ConvertTemperature converts °C to u.
func ConvertTemperature(c float64, u Temperature) float64 {
	if u == Fahrenheit {
		return c*9/5 + 32
	}
	return c
}

// beaufortLimits are the upper m/s bounds of Beaufort forces 0..11.
var beaufortLimits = []float64{0.2, 1.5, 3.3, 5.4, 7.9, 10.7, 13.8, 17.1, 20.7, 24.4, 28.4, 32.6}

// ConvertWind converts m/s to u.
func ConvertWind(ms float64, u Wind) float64 {
	switch u {
	case KilometersPerHour:
		return ms * 3.6
	case MilesPerHour:
		return ms * 2.2369362921
	case Knots:
		return ms * 1.9438444924
	case Beaufort:
		for force, limit := range beaufortLimits {
			if ms <= limit {
				return float64(force)
			}
		}
		return 12
	default:
		return ms
	}
}

// ConvertPrecipitation converts millimetres to u.
func ConvertPrecipitation(mm float64, u Precipitation) float64 {
	if u == Inches {
		return mm / 25.4
	}
	return mm
}

// ConvertPressure converts hPa to u.
func ConvertPressure(hpa float64, u Pressure) float64 {
	if u == InchesOfMercury {
		return hpa * 0.0295299830714
	}
	return hpa
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// ─── Labels ───────────────────────────────────────────────────────────────────

// Symbol returns the display suffix for a temperature unit.
func (u Temperature) Symbol() string {
	if u == Fahrenheit {
		return "°F"
	}
	return "°C"
}

// Symbol returns the display suffix for a wind unit.
func (u Wind) Symbol() string {
	switch u {
	case KilometersPerHour:
		return "km/h"
	case MilesPerHour:
		return "mph"
	case Knots:
		return "kn"
	case Beaufort:
		return "BF"
	default:
		return "m/s"
	}
}

// Symbol returns the display suffix for a precipitation amount.
func (u Precipitation) Symbol() string {
	if u == Inches {
		return "in"
	}
	return "mm"
}

// RateSymbol returns the display suffix for a precipitation rate.
func (u Precipitation) RateSymbol() string {
	return u.Symbol() + "/h"
}

// Symbol returns the display suffix for a pressure unit.
func (u Pressure) Symbol() string {
	if u == InchesOfMercury {
		return "inHg"
	}
	return "hPa"
}
