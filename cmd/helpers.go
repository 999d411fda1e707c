package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/derickschaefer/wxstation/internal/app"
	"github.com/derickschaefer/wxstation/internal/config"
	"github.com/derickschaefer/wxstation/internal/model"
	"github.com/derickschaefer/wxstation/internal/render"
	"github.com/derickschaefer/wxstation/internal/util"
)

// resolveFormat returns the effective format string, falling back to "table".
func resolveFormat(cfgFormat string) string {
	if cfgFormat != "" {
		return cfgFormat
	}
	return render.FormatTable
}

// outputWriter returns the --out file when set, otherwise def. The returned
// close function is always safe to call.
func outputWriter(def io.Writer) (io.Writer, func() error, error) {
	if globalFlags.Out == "" {
		return def, func() error { return nil }, nil
	}
	f, err := os.Create(globalFlags.Out)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}

// renderOptions builds the human-readable render options from config.
func renderOptions(cfg *config.Config) render.Options {
	return render.Options{Units: cfg.Prefs, Clock12h: cfg.Clock12h()}
}

// emit renders result to --out or stdout and prints the footer.
func emit(cmd *cobra.Command, deps *app.Deps, result *model.Result) error {
	if deps.Config.Quiet {
		return nil
	}
	if err := render.RenderTo(globalFlags.Out, result, resolveFormat(deps.Config.Format), renderOptions(deps.Config)); err != nil {
		return err
	}
	render.PrintFooter(cmd.ErrOrStderr(), result, deps.Config.Verbose)
	return nil
}

// newResult wraps data in a Result envelope.
func newResult(kind, command, deviceID string, data interface{}, items int, started time.Time) *model.Result {
	return &model.Result{
		Kind:        kind,
		GeneratedAt: time.Now(),
		Command:     command,
		DeviceID:    deviceID,
		Data:        data,
		Stats: model.ResultStats{
			DurationMs: time.Since(started).Milliseconds(),
			Items:      items,
		},
	}
}

// parseWindow parses --from/--to, defaulting each bound when empty. A zero
// defTo defaults --to to the resolved --from.
func parseWindow(from, to string, defFrom, defTo time.Time) (time.Time, time.Time, error) {
	f, err := util.ParseDateOr(from, defFrom)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
	}
	if defTo.IsZero() {
		defTo = f
	}
	t, err := util.ParseDateOr(to, defTo)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
	}
	if f.After(t) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: --from %s is after --to %s",
			model.ErrInvalidWindow, util.FormatDate(f), util.FormatDate(t))
	}
	return f, t, nil
}

// today returns the current UTC calendar date.
func today(deps *app.Deps) time.Time {
	return model.DateOf(deps.Clock.Now().UTC())
}

// normaliseDevice trims a device ID and rejects empty ones.
func normaliseDevice(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("device ID must not be empty")
	}
	return id, nil
}

// printSimpleTable renders a simple table with headers using tablewriter.
// The add callback is called with row values as variadic strings.
func printSimpleTable(w io.Writer, headers []string, fill func(add func(...string))) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	fill(func(cols ...string) {
		tw.Append(cols)
	})
	tw.Render()
}

func humanBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
