package model

import (
	"fmt"
	"sort"
	"time"
)

const dateLayout = "2006-01-02"

// DateOf returns the calendar date of t, read in t's own location, as a
// UTC-midnight time. Two instants on the same local day map to the same date
// regardless of the zone they were recorded in.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateWindow is an inclusive [From, To] range of calendar dates. Both bounds
// are timezone-naive and normalised to UTC midnight.
type DateWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// NewDateWindow normalises from and to to calendar dates.
func NewDateWindow(from, to time.Time) DateWindow {
	return DateWindow{From: DateOf(from), To: DateOf(to)}
}

// Validate returns ErrInvalidWindow for zero or reversed bounds.
func (w DateWindow) Validate() error {
	if w.From.IsZero() || w.To.IsZero() {
		return fmt.Errorf("%w: missing bound", ErrInvalidWindow)
	}
	if w.From.After(w.To) {
		return fmt.Errorf("%w: %s is after %s", ErrInvalidWindow,
			w.From.Format(dateLayout), w.To.Format(dateLayout))
	}
	return nil
}

// Contains reports whether the calendar date d falls within the window.
func (w DateWindow) Contains(d time.Time) bool {
	d = DateOf(d)
	return !d.Before(w.From) && !d.After(w.To)
}

// Overlaps reports whether two windows share at least one day.
func (w DateWindow) Overlaps(other DateWindow) bool {
	return !w.To.Before(other.From) && !other.To.Before(w.From)
}

// Days returns the number of calendar days in the window.
func (w DateWindow) Days() int {
	return int(w.To.Sub(w.From).Hours()/24) + 1
}

func (w DateWindow) String() string {
	return w.From.Format(dateLayout) + ".." + w.To.Format(dateLayout)
}

// MergeWindows consolidates overlapping or adjacent windows into the minimal
// sorted set.
func MergeWindows(windows []DateWindow) []DateWindow {
	if len(windows) == 0 {
		return nil
	}

	sorted := make([]DateWindow, len(windows))
	copy(sorted, windows)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].From.Before(sorted[j].From)
	})

	result := []DateWindow{sorted[0]}
	for _, current := range sorted[1:] {
		last := &result[len(result)-1]
		if !current.From.After(last.To.AddDate(0, 0, 1)) {
			if current.To.After(last.To) {
				last.To = current.To
			}
			continue
		}
		result = append(result, current)
	}
	return result
}

// Covers reports whether the union of windows includes every day of target.
func Covers(windows []DateWindow, target DateWindow) bool {
	for _, w := range MergeWindows(windows) {
		if !w.From.After(target.From) && !w.To.Before(target.To) {
			return true
		}
	}
	return false
}

// AnyOverlap reports whether any window shares a day with target.
func AnyOverlap(windows []DateWindow, target DateWindow) bool {
	for _, w := range windows {
		if w.Overlaps(target) {
			return true
		}
	}
	return false
}

// SpanOf returns the window from the earliest to the latest sample date.
// ok is false for an empty slice.
func SpanOf(samples []Sample) (DateWindow, bool) {
	if len(samples) == 0 {
		return DateWindow{}, false
	}
	w := DateWindow{From: samples[0].Date(), To: samples[0].Date()}
	for _, s := range samples[1:] {
		d := s.Date()
		if d.Before(w.From) {
			w.From = d
		}
		if d.After(w.To) {
			w.To = d
		}
	}
	return w, true
}

// SortSamples sorts samples by timestamp ascending in place and drops
// duplicates sharing an instant, keeping the last occurrence.
func SortSamples(samples []Sample) []Sample {
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	out := samples[:0]
	for _, s := range samples {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(s.Timestamp) {
			out[n-1] = s
			continue
		}
		out = append(out, s)
	}
	return out
}
