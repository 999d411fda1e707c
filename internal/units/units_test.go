package units_test

import (
	"math"
	"testing"

	"github.com/derickschaefer/wxstation/internal/units"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestConvertTemperature(t *testing.T) {
	if got := units.ConvertTemperature(100, units.Fahrenheit); !approx(got, 212) {
		t.Errorf("100°C → °F: got %v", got)
	}
	if got := units.ConvertTemperature(-40, units.Fahrenheit); !approx(got, -40) {
		t.Errorf("-40°C → °F: got %v", got)
	}
	if got := units.ConvertTemperature(21.5, units.Celsius); got != 21.5 {
		t.Errorf("celsius should pass through, got %v", got)
	}
}

func TestConvertWind(t *testing.T) {
	if got := units.ConvertWind(10, units.KilometersPerHour); !approx(got, 36) {
		t.Errorf("10 m/s → km/h: got %v", got)
	}
	if got := units.ConvertWind(10, units.MilesPerHour); math.Abs(got-22.369) > 0.001 {
		t.Errorf("10 m/s → mph: got %v", got)
	}
	if got := units.ConvertWind(0.1, units.Beaufort); got != 0 {
		t.Errorf("calm should be force 0, got %v", got)
	}
	if got := units.ConvertWind(6, units.Beaufort); got != 4 {
		t.Errorf("6 m/s should be force 4, got %v", got)
	}
	if got := units.ConvertWind(40, units.Beaufort); got != 12 {
		t.Errorf("hurricane should be force 12, got %v", got)
	}
}

func TestConvertPrecipitationAndPressure(t *testing.T) {
	if got := units.ConvertPrecipitation(25.4, units.Inches); !approx(got, 1) {
		t.Errorf("25.4 mm → in: got %v", got)
	}
	if got := units.ConvertPressure(1013.25, units.InchesOfMercury); math.Abs(got-29.92) > 0.01 {
		t.Errorf("1013.25 hPa → inHg: got %v", got)
	}
}

func TestParseDefaultsToMetric(t *testing.T) {
	p, err := units.Parse("", "", "", "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p != units.Metric() {
		t.Errorf("expected metric defaults, got %+v", p)
	}
}

func TestParseAliases(t *testing.T) {
	p, err := units.Parse("F", "km/h", "in", "inHg")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := units.Preferences{
		Temperature:   units.Fahrenheit,
		Wind:          units.KilometersPerHour,
		Precipitation: units.Inches,
		Pressure:      units.InchesOfMercury,
	}
	if p != want {
		t.Errorf("got %+v, want %+v", p, want)
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	if _, err := units.Parse("kelvin", "", "", ""); err == nil {
		t.Error("expected an error for an unknown temperature unit")
	}
}

func TestStaticProvider(t *testing.T) {
	var p units.Provider = units.Static(units.Imperial())
	if p.Preferences().Wind != units.MilesPerHour {
		t.Errorf("static provider lost its preferences: %+v", p.Preferences())
	}
}
