// Package cmd implements the wxstation CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/wxstation/internal/app"
	"github.com/derickschaefer/wxstation/internal/config"
)

// globalFlags holds the parsed values of the persistent flags that are not
// resolved through config.Load. Config-backed flags (api-key, format, ...)
// are read from the flag set by config.Load so that only flags the user
// actually set take precedence.
var globalFlags struct {
	Out     string
	Refresh bool
	Quiet   bool
	Verbose bool
	Debug   bool
}

// rootCmd is the base command. Running `wxstation` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "wxstation",
	Short: "wxstation: weather station forecasts, history, rewards and charts",
	Long: `wxstation is a command-line tool for fetching forecasts, observed history
and reward records for WeatherXM-style weather stations. Responses are cached
locally so repeated queries are served without touching the network.

Quick start:
  wxstation config init                          # create config.yaml
  wxstation forecast get <DEVICE_ID>             # next 7 days, cache-first
  wxstation history get <DEVICE_ID> --from 2024-06-01
  wxstation history get <DEVICE_ID> --format jsonl | wxstation chart plot`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE.
func buildDeps(cmd *cobra.Command) (*app.Deps, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.New(cfg), nil
}

// loadConfig resolves config and applies the runtime-only flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	cfg.Refresh = globalFlags.Refresh
	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug
	return cfg, nil
}

func init() {
	pf := rootCmd.PersistentFlags()

	// Resolved by config.Load (flag > env > config file > default).
	pf.String("api-key", "", "station API key (overrides env WXSTATION_API_KEY and config.yaml)")
	pf.String("base-url", "", "station API base URL")
	pf.String("format", "", "output format: table|json|jsonl|csv|tsv|md|yaml (default: table)")
	pf.String("timeout", "", "HTTP request timeout (e.g. 30s, 2m)")
	pf.Float64("rate", 0, "max API requests per second (default: 5.0)")
	pf.String("db-path", "", "path of the local bbolt cache (default: ~/.wxstation/wxstation.db)")
	pf.String("cache-backend", "", "cache backend: bolt|postgres (default: bolt)")
	pf.String("units", "", "unit preset: metric|imperial (overrides units.* in config)")
	pf.String("clock", "", "axis label clock: 24h|12h")
	pf.String("log-level", "", "log level: debug|info|warn|error")
	pf.String("log-format", "", "log format: console|json")
	pf.String("config", "", "explicit config file (default: ./config.yaml or ./config.json)")

	// Runtime only.
	pf.StringVar(&globalFlags.Out, "out", "",
		"write output to file instead of stdout")
	pf.BoolVar(&globalFlags.Refresh, "refresh", false,
		"force re-fetch and overwrite cached entries")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show cache/timing stats after output")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"log HTTP requests at debug level (API key redacted)")
}
