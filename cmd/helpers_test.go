package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/derickschaefer/wxstation/internal/config"
	"github.com/derickschaefer/wxstation/internal/model"
)

func day(d int) time.Time {
	return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
}

func TestOutputWriterDefault(t *testing.T) {
	globalFlags.Out = ""
	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter default: %v", err)
	}
	if w != os.Stdout {
		t.Fatalf("expected stdout writer passthrough")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("default closer should be nil error, got: %v", err)
	}
}

func TestOutputWriterFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.txt")
	globalFlags.Out = p
	t.Cleanup(func() { globalFlags.Out = "" })

	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter file: %v", err)
	}
	if w == os.Stdout {
		t.Fatalf("expected file writer, got stdout")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("closing output writer: %v", err)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("expected output file to exist: %v", err)
	}
}

func TestParseWindowDefaults(t *testing.T) {
	from, to, err := parseWindow("", "", day(3), day(9))
	if err != nil {
		t.Fatalf("parseWindow: %v", err)
	}
	if !from.Equal(day(3)) || !to.Equal(day(9)) {
		t.Errorf("got %s..%s", from, to)
	}
}

func TestParseWindowToDefaultsToFrom(t *testing.T) {
	from, to, err := parseWindow("2024-06-20", "", day(1), time.Time{})
	if err != nil {
		t.Fatalf("parseWindow: %v", err)
	}
	if !from.Equal(day(20)) || !to.Equal(day(20)) {
		t.Errorf("got %s..%s, want a single day", from, to)
	}
}

func TestParseWindowReversed(t *testing.T) {
	_, _, err := parseWindow("2024-06-09", "2024-06-03", day(1), day(1))
	if !errors.Is(err, model.ErrInvalidWindow) {
		t.Errorf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestParseWindowBadDate(t *testing.T) {
	if _, _, err := parseWindow("June 1", "", day(1), day(1)); err == nil {
		t.Error("expected a parse error")
	}
}

func TestNormaliseDevice(t *testing.T) {
	if got, err := normaliseDevice("  abc-123 \n"); err != nil || got != "abc-123" {
		t.Errorf("normaliseDevice = %q, %v", got, err)
	}
	if _, err := normaliseDevice("   "); err == nil {
		t.Error("expected an error for a blank device ID")
	}
}

func TestWithinFiltersByDate(t *testing.T) {
	samples := []model.Sample{
		{Timestamp: day(1).Add(23 * time.Hour)},
		{Timestamp: day(2).Add(time.Hour)},
		{Timestamp: day(3)},
	}
	got := within(samples, model.NewDateWindow(day(2), day(2)))
	if len(got) != 1 || !got[0].Timestamp.Equal(samples[1].Timestamp) {
		t.Errorf("within = %v", got)
	}
}

func TestChartMetricsParsesList(t *testing.T) {
	chartMetric = "temperature, wind_speed"
	t.Cleanup(func() { chartMetric = "" })

	got, err := chartMetrics(model.MetricHumidity)
	if err != nil {
		t.Fatalf("chartMetrics: %v", err)
	}
	if len(got) != 2 || got[0] != model.MetricTemperature || got[1] != model.MetricWindSpeed {
		t.Errorf("got %v", got)
	}

	chartMetric = "sunshine"
	if _, err := chartMetrics(); err == nil {
		t.Error("expected an error for an unknown metric")
	}
}

func TestChartMetricsDefault(t *testing.T) {
	chartMetric = ""
	got, err := chartMetrics(model.MetricHumidity)
	if err != nil || len(got) != 1 || got[0] != model.MetricHumidity {
		t.Errorf("chartMetrics default = %v, %v", got, err)
	}
}

func TestSetFileKey(t *testing.T) {
	f := config.Template()
	if err := setFileKey(&f, "units.temperature", "fahrenheit"); err != nil {
		t.Fatal(err)
	}
	if err := setFileKey(&f, "sync.devices", "a, b,,c"); err != nil {
		t.Fatal(err)
	}
	if err := setFileKey(&f, "page_size", "20"); err != nil {
		t.Fatal(err)
	}
	if f.Units.Temperature != "fahrenheit" || len(f.Sync.Devices) != 3 || f.PageSize != 20 {
		t.Errorf("unexpected file %+v", f)
	}
	if err := setFileKey(&f, "rate", "fast"); err == nil {
		t.Error("expected an error for a non-numeric rate")
	}
	if err := setFileKey(&f, "nope", "x"); err == nil {
		t.Error("expected an error for an unknown key")
	}
}
