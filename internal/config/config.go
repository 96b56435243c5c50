package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Reference data sources.
const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"
)

// DSNEnv is consulted when --dsn is not given.
const DSNEnv = "FEESCHED_DB_URL"

// Config holds all runtime configuration for a feesched run.
type Config struct {
	DataDir   string
	Source    string // "csv" or "postgres"
	DSN       string
	LogFormat string // "text" or "json"
	LogLevel  string
	Listen    string

	RedFlagThreshold float64
	MaxWorkers       int
	QuoteCacheSize   int
	DefaultYear      int

	NationalDefaultLocality string
	StateDefaultLocalities  map[string]string
}

// Default returns the configuration used when neither flags nor a config
// file say otherwise.
func Default() Config {
	return Config{
		DataDir:          "data",
		Source:           SourceCSV,
		DSN:              os.Getenv(DSNEnv),
		LogFormat:        "text",
		LogLevel:         "info",
		Listen:           ":8080",
		RedFlagThreshold: -10,
		MaxWorkers:       32,
		QuoteCacheSize:   4096,
	}
}

// yamlConfig is the on-disk YAML structure. Pointers distinguish an absent
// key from a zero value.
type yamlConfig struct {
	DataDir                 *string           `yaml:"data_dir"`
	Source                  *string           `yaml:"source"`
	DSN                     *string           `yaml:"dsn"`
	LogFormat               *string           `yaml:"log_format"`
	LogLevel                *string           `yaml:"log_level"`
	Listen                  *string           `yaml:"listen"`
	RedFlagThreshold        *float64          `yaml:"red_flag_threshold"`
	MaxWorkers              *int              `yaml:"max_workers"`
	QuoteCacheSize          *int              `yaml:"quote_cache_size"`
	DefaultYear             *int              `yaml:"default_year"`
	NationalDefaultLocality *string           `yaml:"national_default_locality"`
	StateDefaultLocalities  map[string]string `yaml:"state_default_localities"`
}

// LoadFromFile reads a YAML config file and merges its values into Config.
// Keys for which explicit reports true (by flag name, e.g. "data-dir") are
// left alone so command-line flags win over the file. explicit may be nil.
func (c *Config) LoadFromFile(path string, explicit func(flag string) bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if explicit == nil {
		explicit = func(string) bool { return false }
	}

	setString(&c.DataDir, yc.DataDir, explicit("data-dir"))
	setString(&c.Source, yc.Source, explicit("source"))
	setString(&c.DSN, yc.DSN, explicit("dsn"))
	setString(&c.LogFormat, yc.LogFormat, explicit("log-format"))
	setString(&c.LogLevel, yc.LogLevel, explicit("log-level"))
	setString(&c.Listen, yc.Listen, explicit("listen"))
	setString(&c.NationalDefaultLocality, yc.NationalDefaultLocality, false)
	if yc.RedFlagThreshold != nil && !explicit("red-flag-threshold") {
		c.RedFlagThreshold = *yc.RedFlagThreshold
	}
	if yc.MaxWorkers != nil && !explicit("max-workers") {
		c.MaxWorkers = *yc.MaxWorkers
	}
	if yc.QuoteCacheSize != nil {
		c.QuoteCacheSize = *yc.QuoteCacheSize
	}
	if yc.DefaultYear != nil {
		c.DefaultYear = *yc.DefaultYear
	}
	if len(yc.StateDefaultLocalities) > 0 {
		c.StateDefaultLocalities = make(map[string]string, len(yc.StateDefaultLocalities))
		for st, loc := range yc.StateDefaultLocalities {
			c.StateDefaultLocalities[strings.ToUpper(strings.TrimSpace(st))] = strings.TrimSpace(loc)
		}
	}
	return nil
}

func setString(dst *string, v *string, keep bool) {
	if v != nil && !keep {
		*dst = *v
	}
}

// Threshold returns the red-flag threshold as a decimal percentage.
func (c *Config) Threshold() decimal.Decimal {
	return decimal.NewFromFloat(c.RedFlagThreshold)
}

// Validate checks the fields every command needs.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceCSV:
		if c.DataDir == "" {
			return fmt.Errorf("--data-dir is required for the csv source")
		}
		if _, err := os.Stat(c.DataDir); err != nil {
			return fmt.Errorf("data dir not accessible: %w", err)
		}
	case SourcePostgres:
		if c.DSN == "" {
			return fmt.Errorf("--dsn or %s is required for the postgres source", DSNEnv)
		}
	default:
		return fmt.Errorf("unknown source %q (want csv or postgres)", c.Source)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q (want text or json)", c.LogFormat)
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max_workers must be positive, got %d", c.MaxWorkers)
	}
	if c.QuoteCacheSize < 0 {
		return fmt.Errorf("quote_cache_size must not be negative, got %d", c.QuoteCacheSize)
	}
	for st := range c.StateDefaultLocalities {
		if len(st) != 2 {
			return fmt.Errorf("state_default_localities: %q is not a two-letter state", st)
		}
	}
	return nil
}

// ValidateWithDSN checks the connection string for commands that always
// talk to Postgres, whatever the serving source.
func (c *Config) ValidateWithDSN() error {
	if c.DSN == "" {
		return fmt.Errorf("--dsn or %s is required", DSNEnv)
	}
	return nil
}
