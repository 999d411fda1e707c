package pipeline_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/guregu/null/v6"

	"github.com/derickschaefer/wxstation/internal/model"
	"github.com/derickschaefer/wxstation/internal/pipeline"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// jsonl joins lines with newlines and appends a trailing newline.
func jsonl(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// ─── ReadSamples ──────────────────────────────────────────────────────────────

func TestReadBasic(t *testing.T) {
	input := jsonl(
		`{"device_id":"dev1","timestamp":"2024-06-01T01:00:00Z","temperature":18.5,"humidity":70}`,
		`// comment`,
		``,
		`{"device_id":"dev1","timestamp":"2024-06-01T00:00:00Z","temperature":null}`,
	)
	dev, samples, err := pipeline.ReadSamples(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadSamples: %v", err)
	}
	if dev != "dev1" {
		t.Errorf("device: %q", dev)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0].Temperature.Valid {
		t.Error("null temperature should be invalid")
	}
	if samples[1].Temperature.Float64 != 18.5 || samples[1].Humidity.Int64 != 70 {
		t.Errorf("unexpected sample %+v", samples[1])
	}
}

func TestReadInvalidJSON(t *testing.T) {
	_, _, err := pipeline.ReadSamples(strings.NewReader(jsonl(`{"timestamp":`)))
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Errorf("expected a line-numbered error, got %v", err)
	}
}

func TestReadMissingTimestamp(t *testing.T) {
	_, _, err := pipeline.ReadSamples(strings.NewReader(jsonl(`{"temperature":1}`)))
	if err == nil {
		t.Error("expected an error for a missing timestamp")
	}
}

func TestReadEmptyInput(t *testing.T) {
	if _, _, err := pipeline.ReadSamples(strings.NewReader("\n\n")); err == nil {
		t.Error("expected an error for empty input")
	}
}

// ─── WriteSamples ─────────────────────────────────────────────────────────────

func TestWriteThenRead(t *testing.T) {
	plus2 := time.FixedZone("", 2*3600)
	in := []model.Sample{
		{Timestamp: time.Date(2024, 6, 1, 8, 0, 0, 0, plus2), Temperature: null.FloatFrom(21), WindDirection: null.IntFrom(90)},
		{Timestamp: time.Date(2024, 6, 1, 9, 0, 0, 0, plus2), Icon: null.StringFrom("rain")},
	}
	var buf bytes.Buffer
	if err := pipeline.WriteSamples(&buf, "dev9", in); err != nil {
		t.Fatalf("WriteSamples: %v", err)
	}
	lines := nonEmptyLines(buf.String())
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"device_id":"dev9"`) || !strings.Contains(lines[0], `"temperature":21`) {
		t.Errorf("unexpected line %s", lines[0])
	}
	if !strings.Contains(lines[1], `"temperature":null`) {
		t.Errorf("null metrics should be written as null: %s", lines[1])
	}

	dev, out, err := pipeline.ReadSamples(&buf)
	if err != nil {
		t.Fatalf("ReadSamples: %v", err)
	}
	if dev != "dev9" || len(out) != 2 {
		t.Fatalf("round trip: %q %d", dev, len(out))
	}
	if !out[0].Timestamp.Equal(in[0].Timestamp) || out[0].Date() != in[0].Date() {
		t.Errorf("timestamp changed: %s vs %s", out[0].Timestamp, in[0].Timestamp)
	}
	if out[1].Icon.String != "rain" {
		t.Errorf("icon lost: %+v", out[1].Icon)
	}
}
