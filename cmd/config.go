package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/wxstation/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage wxstation configuration",
	Long: `Read and write wxstation configuration stored in config.yaml.

Values resolve in this order: CLI flag, environment (WXSTATION_*, also read
from a .env file), config file, built-in default.`,
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config.yaml in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteFile(path, config.Template()); err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "✓ Created %s\n", path)
		fmt.Fprintln(w, "  Edit it and set your api_key to get started,")
		fmt.Fprintf(w, "  or export %s.\n", config.EnvAPIKey)
		return nil
	},
}

var configShowSecrets bool

var configShowCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"get"},
	Short:   "Print the resolved configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		f := cfg.Redacted()
		if configShowSecrets {
			f.APIKey = cfg.APIKey
			f.Database.DSN = cfg.Database.DSN
		}
		if f.APIKey == "" || cfg.APIKey == "" {
			f.APIKey = "(not set)"
		}

		data, err := config.Marshal(f)
		if err != nil {
			return err
		}
		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer closeFn()

		src := "(none found, using defaults)"
		if cfg.ConfigPath != "" {
			src = cfg.ConfigPath
		}
		fmt.Fprintf(w, "# config file: %s\n", src)
		_, err = w.Write(data)
		return err
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in config.yaml",
	Example: `  wxstation config set api_key abc123
  wxstation config set units.temperature fahrenheit
  wxstation config set sync.devices 3f6e-…,91ab-…`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		f, err := config.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			f = config.Template()
		} else if err != nil {
			return err
		}

		key := strings.ToLower(args[0])
		if err := setFileKey(&f, key, args[1]); err != nil {
			return err
		}
		if err := config.WriteFile(path, f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s in %s\n", key, path)
		return nil
	},
}

// setFileKey assigns value to the dotted key of f.
func setFileKey(f *config.File, key, value string) error {
	switch key {
	case "api_key":
		f.APIKey = value
	case "base_url":
		f.BaseURL = value
	case "timeout":
		f.Timeout = value
	case "rate":
		r, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("rate must be a number")
		}
		f.Rate = r
	case "db_path":
		f.DBPath = value
	case "format":
		f.Format = value
	case "cache.backend":
		f.Cache.Backend = value
	case "database.dsn":
		f.Database.DSN = value
	case "prefetch_days", "page_size", "max_pages", "sync.history_days":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer", key)
		}
		switch key {
		case "prefetch_days":
			f.PrefetchDays = n
		case "page_size":
			f.PageSize = n
		case "max_pages":
			f.MaxPages = n
		default:
			f.Sync.HistoryDays = n
		}
	case "granularity":
		f.Granularity = value
	case "units.temperature":
		f.Units.Temperature = value
	case "units.wind":
		f.Units.Wind = value
	case "units.precipitation":
		f.Units.Precipitation = value
	case "units.pressure":
		f.Units.Pressure = value
	case "clock":
		f.Clock = value
	case "logging.level":
		f.Logging.Level = value
	case "logging.format":
		f.Logging.Format = value
	case "sync.interval":
		f.Sync.Interval = value
	case "sync.devices":
		f.Sync.Devices = splitList(value)
	case "sync.metrics_addr":
		f.Sync.MetricsAddr = value
	default:
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s", key, strings.Join(settableKeys, ", "))
	}
	return nil
}

var settableKeys = []string{
	"api_key", "base_url", "timeout", "rate", "db_path", "format",
	"cache.backend", "database.dsn", "prefetch_days", "page_size", "max_pages",
	"granularity", "units.temperature", "units.wind", "units.precipitation",
	"units.pressure", "clock", "logging.level", "logging.format",
	"sync.interval", "sync.devices", "sync.history_days", "sync.metrics_addr",
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config.yaml")
	configShowCmd.Flags().BoolVar(&configShowSecrets, "show-secrets", false, "show API key and DSN in plain text")
}
