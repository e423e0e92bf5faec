// Package config loads the infobase configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "INFOBASE_"

// Config is the complete configuration of an infobase process.
type Config struct {
	DataDir       string            `yaml:"data_dir"`
	SecretKey     string            `yaml:"secret_key"`
	AdminPassword string            `yaml:"admin_password"`
	BcryptCost    int               `yaml:"bcrypt_cost"`
	Cache         CacheConfig       `yaml:"cache"`
	EventLog      EventLogConfig    `yaml:"event_log"`
	Logging       LoggingConfig     `yaml:"logging"`
	Diagnostics   DiagnosticsConfig `yaml:"diagnostics"`
	Metrics       MetricsConfig     `yaml:"metrics"`
}

// CacheConfig sizes the per-site thing cache.
type CacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// EventLogConfig controls the durable event log listener.
type EventLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DiagnosticsConfig sizes the observer failure ring.
type DiagnosticsConfig struct {
	Capacity int `yaml:"capacity"`
}

// MetricsConfig controls where collected metrics are exported. Metrics are
// always collected; with an empty Textfile they are discarded on exit.
type MetricsConfig struct {
	// Textfile receives the Prometheus text exposition when a command
	// finishes, for a node_exporter textfile collector.
	Textfile string `yaml:"textfile"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// Load reads path, applies environment overrides and defaults, and
// validates the result. An empty path loads defaults plus environment.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		defer f.Close()
		if cfg, err = Parse(f); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(cfg)
	}
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML strictly: unknown fields are errors.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = "./infobase-data"
	}
	if cfg.AdminPassword == "" {
		cfg.AdminPassword = "admin123"
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = 1024
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}

	if cfg.EventLog.Enabled && cfg.EventLog.Path == "" {
		cfg.EventLog.Path = cfg.DataDir + "/events.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Diagnostics.Capacity == 0 {
		cfg.Diagnostics.Capacity = 256
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Cache.Size < 0 {
		return errors.New("cache.size must not be negative")
	}
	if c.Cache.TTL < 0 {
		return errors.New("cache.ttl must not be negative")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}
	if c.Diagnostics.Capacity < 0 {
		return errors.New("diagnostics.capacity must not be negative")
	}
	return nil
}

// applyEnv overlays INFOBASE_* variables onto cfg.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("DATA_DIR", &cfg.DataDir)
	str("SECRET_KEY", &cfg.SecretKey)
	str("ADMIN_PASSWORD", &cfg.AdminPassword)
	str("EVENT_LOG_PATH", &cfg.EventLog.Path)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
	str("METRICS_TEXTFILE", &cfg.Metrics.Textfile)

	if err := num("BCRYPT_COST", &cfg.BcryptCost); err != nil {
		return err
	}
	if err := num("CACHE_SIZE", &cfg.Cache.Size); err != nil {
		return err
	}
	if err := num("DIAGNOSTICS_CAPACITY", &cfg.Diagnostics.Capacity); err != nil {
		return err
	}

	if v, ok := lookup(EnvPrefix + "CACHE_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sCACHE_TTL: %w", EnvPrefix, err)
		}
		cfg.Cache.TTL = d
	}
	if v, ok := lookup(EnvPrefix + "EVENT_LOG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sEVENT_LOG: %w", EnvPrefix, err)
		}
		cfg.EventLog.Enabled = b
	}
	return nil
}
