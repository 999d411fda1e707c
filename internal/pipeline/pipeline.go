// Package pipeline reads and writes sample streams as JSONL, the pipe format
// between commands (`history get --format jsonl | chart grid`).
package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/derickschaefer/wxstation/internal/model"
)

// record is one JSONL line: a sample tagged with its device and zone name.
type record struct {
	DeviceID string `json:"device_id,omitempty"`
	Zone     string `json:"zone,omitempty"`
	model.Sample
}

// ReadSamples reads JSONL samples from r and returns the device ID of the
// first line that carries one. Blank lines and // comments are skipped.
// Samples come back sorted with duplicate instants removed.
func ReadSamples(r io.Reader) (string, []model.Sample, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var samples []model.Sample
	deviceID := ""
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return "", nil, fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}
		if rec.Timestamp.IsZero() {
			return "", nil, fmt.Errorf("line %d: missing timestamp", lineNum)
		}
		if deviceID == "" {
			deviceID = rec.DeviceID
		}
		if rec.Zone != "" {
			if loc, err := time.LoadLocation(rec.Zone); err == nil {
				rec.Timestamp = rec.Timestamp.In(loc)
			}
		}
		samples = append(samples, rec.Sample)
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("reading input: %w", err)
	}
	if len(samples) == 0 {
		return "", nil, fmt.Errorf("no samples read from input (is stdin empty?)")
	}
	return deviceID, model.SortSamples(samples), nil
}

// WriteSamples writes samples as JSONL to w.
func WriteSamples(w io.Writer, deviceID string, samples []model.Sample) error {
	enc := json.NewEncoder(w)
	for _, s := range samples {
		rec := record{DeviceID: deviceID, Sample: s}
		if name := s.Timestamp.Location().String(); name != "UTC" && name != "Local" {
			rec.Zone = name
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// StdinIsPipe reports whether stdin is redirected from a pipe or file.
func StdinIsPipe() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) == 0
}
