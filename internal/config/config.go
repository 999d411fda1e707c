// Package config handles loading and resolving wxstation configuration.
// Resolution order (first non-empty value wins):
//  1. CLI flags (--api-key, --format, --db-path, ...)
//  2. Environment variables WXSTATION_* (a .env file in the working
//     directory is loaded into the environment first)
//  3. config.yaml / config.json in the current working directory
//  4. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/derickschaefer/wxstation/internal/logging"
	"github.com/derickschaefer/wxstation/internal/units"
)

const (
	DefaultConfigFile   = "config.yaml"
	DefaultBaseURL      = "https://api.weatherxm.com/api/v1/"
	DefaultFormat       = "table"
	DefaultTimeout      = 30 * time.Second
	DefaultRate         = 5.0
	DefaultPrefetchDays = 7
	DefaultPageSize     = 50
	DefaultMaxPages     = 1000
	DefaultGranularity  = "hourly"
	DefaultSyncInterval = 15 * time.Minute
	EnvPrefix           = "WXSTATION"
	EnvAPIKey           = "WXSTATION_API_KEY"
	EnvDBPath           = "WXSTATION_DB_PATH"
)

// Cache backends.
const (
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

// Config is the fully-resolved runtime configuration.
// All callers use this struct; the File is only used for writing templates
// and displaying the resolved values.
type Config struct {
	APIKey       string            `mapstructure:"api_key"`
	BaseURL      string            `mapstructure:"base_url" validate:"required,url"`
	Timeout      time.Duration     `mapstructure:"timeout" validate:"gt=0"`
	Rate         float64           `mapstructure:"rate" validate:"gt=0"`
	DBPath       string            `mapstructure:"db_path"`
	Format       string            `mapstructure:"format" validate:"oneof=table json jsonl csv tsv md yaml"`
	Cache        CacheConfig       `mapstructure:"cache"`
	Database     DatabaseConfig    `mapstructure:"database"`
	PrefetchDays int               `mapstructure:"prefetch_days" validate:"gte=1,lte=31"`
	PageSize     int               `mapstructure:"page_size" validate:"gte=1,lte=1000"`
	MaxPages     int               `mapstructure:"max_pages" validate:"gte=1"`
	Granularity  string            `mapstructure:"granularity" validate:"oneof=hourly daily"`
	Units        UnitsConfig       `mapstructure:"units"`
	Clock        string            `mapstructure:"clock" validate:"oneof=24h 12h"`
	Logging      logging.Config    `mapstructure:"logging"`
	Breaker      BreakerConfig     `mapstructure:"breaker"`
	Sync         SyncConfig        `mapstructure:"sync"`
	ConfigPath   string            `mapstructure:"-"` // path of the config file that was loaded (empty if none found)
	Prefs        units.Preferences `mapstructure:"-"`

	// Runtime overrides set from CLI flags after Load()
	Refresh bool `mapstructure:"-"`
	Quiet   bool `mapstructure:"-"`
	Verbose bool `mapstructure:"-"`
	Debug   bool `mapstructure:"-"`
}

// CacheConfig selects the cache store.
type CacheConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=bolt postgres"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the postgres backend.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns" validate:"gte=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// UnitsConfig holds raw unit names; they are parsed into Prefs by Load.
type UnitsConfig struct {
	Temperature   string `mapstructure:"temperature"`
	Wind          string `mapstructure:"wind"`
	Precipitation string `mapstructure:"precipitation"`
	Pressure      string `mapstructure:"pressure"`
}

// BreakerConfig tunes the API circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures" validate:"gte=1"`
	OpenTimeout time.Duration `mapstructure:"open_timeout" validate:"gt=0"`
}

// SyncConfig governs `wxstation sync`.
type SyncConfig struct {
	Interval    time.Duration `mapstructure:"interval" validate:"gte=1m"`
	Devices     []string      `mapstructure:"devices"`
	HistoryDays int           `mapstructure:"history_days" validate:"gte=0,lte=90"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
}

// flagKeys maps persistent CLI flags onto config keys.
var flagKeys = map[string]string{
	"api-key":       "api_key",
	"base-url":      "base_url",
	"db-path":       "db_path",
	"format":        "format",
	"timeout":       "timeout",
	"rate":          "rate",
	"cache-backend": "cache.backend",
	"clock":         "clock",
	"log-level":     "logging.level",
	"log-format":    "logging.format",
}

var validate = validator.New()

// Load resolves configuration from all sources. flags may be nil; only flags
// the user actually set override lower layers. A --config flag, when present,
// names an explicit config file.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path := flagString(flags, "config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	if err := readConfig(v); err != nil {
		return nil, err
	}

	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if used := v.ConfigFileUsed(); used != "" {
		if abs, err := filepath.Abs(used); err == nil {
			cfg.ConfigPath = abs
		}
	}

	// Set default DB path if still unset
	if cfg.DBPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.DBPath = filepath.Join(home, ".wxstation", "wxstation.db")
		}
	}

	if preset := flagString(flags, "units"); preset != "" {
		if err := applyPreset(&cfg.Units, preset); err != nil {
			return nil, err
		}
	}
	prefs, err := units.Parse(cfg.Units.Temperature, cfg.Units.Wind, cfg.Units.Precipitation, cfg.Units.Pressure)
	if err != nil {
		return nil, fmt.Errorf("units: %w", err)
	}
	cfg.Prefs = prefs

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", DefaultBaseURL)
	v.SetDefault("timeout", DefaultTimeout.String())
	v.SetDefault("rate", DefaultRate)
	v.SetDefault("db_path", "")
	v.SetDefault("format", DefaultFormat)

	v.SetDefault("cache.backend", BackendBolt)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("prefetch_days", DefaultPrefetchDays)
	v.SetDefault("page_size", DefaultPageSize)
	v.SetDefault("max_pages", DefaultMaxPages)
	v.SetDefault("granularity", DefaultGranularity)

	v.SetDefault("units.temperature", string(units.Celsius))
	v.SetDefault("units.wind", string(units.MetersPerSecond))
	v.SetDefault("units.precipitation", string(units.Millimeters))
	v.SetDefault("units.pressure", string(units.Hectopascal))
	v.SetDefault("clock", "24h")

	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.caller", false)

	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.open_timeout", "30s")

	v.SetDefault("sync.interval", DefaultSyncInterval.String())
	v.SetDefault("sync.devices", []string{})
	v.SetDefault("sync.history_days", 1)
	v.SetDefault("sync.metrics_addr", "")
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil || key == "" {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}

func flagString(flags *pflag.FlagSet, name string) string {
	if flags == nil {
		return ""
	}
	f := flags.Lookup(name)
	if f == nil || !f.Changed {
		return ""
	}
	return f.Value.String()
}

// applyPreset applies --units metric|imperial over the configured units.
func applyPreset(u *UnitsConfig, preset string) error {
	var p units.Preferences
	switch strings.ToLower(preset) {
	case "metric":
		p = units.Metric()
	case "imperial":
		p = units.Imperial()
	default:
		return fmt.Errorf("unknown units preset %q (valid: metric, imperial)", preset)
	}
	*u = UnitsConfig{
		Temperature:   string(p.Temperature),
		Wind:          string(p.Wind),
		Precipitation: string(p.Precipitation),
		Pressure:      string(p.Pressure),
	}
	return nil
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Cache.Backend == BackendPostgres && c.Database.DSN == "" {
		return errors.New("invalid config: database.dsn is required when cache.backend is postgres")
	}
	return nil
}

// RequireAPIKey returns an error if no API key was resolved. Only commands
// that reach the network call it.
func (c *Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return errors.New(
			"API key not found.\n\n" +
				"Set it one of these ways:\n" +
				"  1. CLI flag:        wxstation --api-key YOUR_KEY ...\n" +
				"  2. Environment:     export WXSTATION_API_KEY=YOUR_KEY  (or a .env file)\n" +
				"  3. config.yaml:     api_key: YOUR_KEY\n",
		)
	}
	return nil
}

// RedactedAPIKey returns the API key with most characters replaced by asterisks.
// Safe for logging and display.
func (c *Config) RedactedAPIKey() string {
	if len(c.APIKey) <= 4 {
		return "****"
	}
	return c.APIKey[:2] + "****" + c.APIKey[len(c.APIKey)-2:]
}

// Clock12h reports whether axis labels use a 12-hour clock.
func (c *Config) Clock12h() bool {
	return c.Clock == "12h"
}

// ─── On-disk File ─────────────────────────────────────────────────────────────

// File is the on-disk representation of config.yaml.
type File struct {
	APIKey       string      `yaml:"api_key"`
	BaseURL      string      `yaml:"base_url"`
	Timeout      string      `yaml:"timeout"`
	Rate         float64     `yaml:"rate"`
	DBPath       string      `yaml:"db_path,omitempty"`
	Format       string      `yaml:"format"`
	Cache        FileCache   `yaml:"cache"`
	Database     FileDB      `yaml:"database"`
	PrefetchDays int         `yaml:"prefetch_days"`
	PageSize     int         `yaml:"page_size"`
	MaxPages     int         `yaml:"max_pages"`
	Granularity  string      `yaml:"granularity"`
	Units        FileUnits   `yaml:"units"`
	Clock        string      `yaml:"clock"`
	Logging      FileLogging `yaml:"logging"`
	Breaker      FileBreaker `yaml:"breaker"`
	Sync         FileSync    `yaml:"sync"`
}

type FileCache struct {
	Backend string `yaml:"backend"`
}

type FileDB struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

type FileUnits struct {
	Temperature   string `yaml:"temperature"`
	Wind          string `yaml:"wind"`
	Precipitation string `yaml:"precipitation"`
	Pressure      string `yaml:"pressure"`
}

type FileLogging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type FileBreaker struct {
	MaxFailures uint32 `yaml:"max_failures"`
	OpenTimeout string `yaml:"open_timeout"`
}

type FileSync struct {
	Interval    string   `yaml:"interval"`
	Devices     []string `yaml:"devices"`
	HistoryDays int      `yaml:"history_days"`
	MetricsAddr string   `yaml:"metrics_addr"`
}

// Template returns a File populated with sensible defaults, suitable for
// writing an initial config.yaml via `wxstation config init`.
func Template() File {
	return File{
		BaseURL:      DefaultBaseURL,
		Timeout:      DefaultTimeout.String(),
		Rate:         DefaultRate,
		Format:       DefaultFormat,
		Cache:        FileCache{Backend: BackendBolt},
		Database:     FileDB{MaxConns: 4},
		PrefetchDays: DefaultPrefetchDays,
		PageSize:     DefaultPageSize,
		MaxPages:     DefaultMaxPages,
		Granularity:  DefaultGranularity,
		Units: FileUnits{
			Temperature:   string(units.Celsius),
			Wind:          string(units.MetersPerSecond),
			Precipitation: string(units.Millimeters),
			Pressure:      string(units.Hectopascal),
		},
		Clock:   "24h",
		Logging: FileLogging{Level: "warn", Format: "console"},
		Breaker: FileBreaker{MaxFailures: 5, OpenTimeout: "30s"},
		Sync:    FileSync{Interval: DefaultSyncInterval.String(), Devices: []string{}, HistoryDays: 1},
	}
}

// Redacted returns the resolved configuration as a File with secrets masked.
func (c *Config) Redacted() File {
	dsn := ""
	if c.Database.DSN != "" {
		dsn = "****"
	}
	return File{
		APIKey:       c.RedactedAPIKey(),
		BaseURL:      c.BaseURL,
		Timeout:      c.Timeout.String(),
		Rate:         c.Rate,
		DBPath:       c.DBPath,
		Format:       c.Format,
		Cache:        FileCache{Backend: c.Cache.Backend},
		Database:     FileDB{DSN: dsn, MaxConns: c.Database.MaxConns},
		PrefetchDays: c.PrefetchDays,
		PageSize:     c.PageSize,
		MaxPages:     c.MaxPages,
		Granularity:  c.Granularity,
		Units: FileUnits{
			Temperature:   string(c.Prefs.Temperature),
			Wind:          string(c.Prefs.Wind),
			Precipitation: string(c.Prefs.Precipitation),
			Pressure:      string(c.Prefs.Pressure),
		},
		Clock:   c.Clock,
		Logging: FileLogging{Level: c.Logging.Level, Format: c.Logging.Format},
		Breaker: FileBreaker{MaxFailures: c.Breaker.MaxFailures, OpenTimeout: c.Breaker.OpenTimeout.String()},
		Sync: FileSync{
			Interval:    c.Sync.Interval.String(),
			Devices:     c.Sync.Devices,
			HistoryDays: c.Sync.HistoryDays,
			MetricsAddr: c.Sync.MetricsAddr,
		},
	}
}

// Marshal serialises a File as YAML.
func Marshal(f File) ([]byte, error) {
	data, err := yaml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

// WriteFile serialises a File to the given path.
func WriteFile(path string, f File) error {
	data, err := Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ReadFile parses a YAML config file into a File.
func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return f, nil
}
