package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// envPrefix namespaces every environment override, e.g. CACHESVC_REDIS_ADDR.
const envPrefix = "CACHESVC_"

// StorageConfig selects the primary backend
type StorageConfig struct {
	Backend string `json:"backend" yaml:"backend" env:"BACKEND"` // durable, session, memory, postgres
	Path    string `json:"path" yaml:"path" env:"PATH"`          // bbolt file for the durable backend
}

// RedisConfig holds Redis connection settings for the session backend
type RedisConfig struct {
	Addr      string        `json:"addr" yaml:"addr" env:"ADDR"`
	Password  string        `json:"password" yaml:"password" env:"PASSWORD"`
	DB        int           `json:"db" yaml:"db" env:"DB"`
	KeyPrefix string        `json:"key_prefix" yaml:"key_prefix" env:"KEY_PREFIX"`
	SessionID string        `json:"session_id" yaml:"session_id" env:"SESSION_ID"`
	IdleTTL   time.Duration `json:"idle_ttl" yaml:"idle_ttl" env:"IDLE_TTL"` // "30m"; JSON also takes nanoseconds
}

func (c *RedisConfig) UnmarshalJSON(data []byte) error {
	type plain RedisConfig
	aux := struct {
		*plain
		IdleTTL jsonDuration `json:"idle_ttl"`
	}{plain: (*plain)(c), IdleTTL: jsonDuration(c.IdleTTL)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.IdleTTL = time.Duration(aux.IdleTTL)
	return nil
}

// PostgresConfig holds settings for the Postgres durable backend
type PostgresConfig struct {
	DSN string `json:"dsn" yaml:"dsn" env:"DSN"`
}

// CacheConfig holds the default write policy
type CacheConfig struct {
	DefaultMaxAge time.Duration `json:"default_max_age" yaml:"default_max_age" env:"DEFAULT_MAX_AGE"` // "90s"; 0 never expires
}

func (c *CacheConfig) UnmarshalJSON(data []byte) error {
	type plain CacheConfig
	aux := struct {
		*plain
		DefaultMaxAge jsonDuration `json:"default_max_age"`
	}{plain: (*plain)(c), DefaultMaxAge: jsonDuration(c.DefaultMaxAge)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.DefaultMaxAge = time.Duration(aux.DefaultMaxAge)
	return nil
}

// DaemonConfig holds settings for `cachesvc serve`
type DaemonConfig struct {
	HTTPAddr  string `json:"http_addr" yaml:"http_addr" env:"HTTP_ADDR"`
	LogLevel  string `json:"log_level" yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `json:"log_format" yaml:"log_format" env:"LOG_FORMAT"` // text, json
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Namespace string `json:"namespace" yaml:"namespace" env:"NAMESPACE"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Exporter      string        `json:"exporter" yaml:"exporter" env:"EXPORTER"` // otlp-http, or stdout (spans as JSON on stderr)
	Endpoint      string        `json:"endpoint" yaml:"endpoint" env:"ENDPOINT"`
	ExportTimeout time.Duration `json:"export_timeout" yaml:"export_timeout" env:"EXPORT_TIMEOUT"` // otlp-http only
	SampleRate    float64       `json:"sample_rate" yaml:"sample_rate" env:"SAMPLE_RATE"`
}

func (c *TracingConfig) UnmarshalJSON(data []byte) error {
	type plain TracingConfig
	aux := struct {
		*plain
		ExportTimeout jsonDuration `json:"export_timeout"`
	}{plain: (*plain)(c), ExportTimeout: jsonDuration(c.ExportTimeout)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.ExportTimeout = time.Duration(aux.ExportTimeout)
	return nil
}

// Config is the central configuration struct embedding all component configs
type Config struct {
	Storage  StorageConfig  `json:"storage" yaml:"storage" envPrefix:"STORAGE_"`
	Redis    RedisConfig    `json:"redis" yaml:"redis" envPrefix:"REDIS_"`
	Postgres PostgresConfig `json:"postgres" yaml:"postgres" envPrefix:"POSTGRES_"`
	Cache    CacheConfig    `json:"cache" yaml:"cache" envPrefix:"CACHE_"`
	Daemon   DaemonConfig   `json:"daemon" yaml:"daemon" envPrefix:"DAEMON_"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics" envPrefix:"METRICS_"`
	Tracing  TracingConfig  `json:"tracing" yaml:"tracing" envPrefix:"TRACING_"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: "durable",
			Path:    "cachesvc.db",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "cachesvc:",
			IdleTTL:   30 * time.Minute,
		},
		Daemon: DaemonConfig{
			HTTPAddr:  ":8090",
			LogLevel:  "info",
			LogFormat: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "cachesvc",
		},
		Tracing: TracingConfig{
			Exporter:      "otlp-http",
			Endpoint:      "localhost:4318",
			ExportTimeout: 10 * time.Second,
			SampleRate:    1.0,
		},
	}
}

// jsonDuration decodes a JSON duration written either as a Go duration
// string ("30m") or as integer nanoseconds, so JSON files read like YAML ones.
type jsonDuration time.Duration

func (d *jsonDuration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		parsed, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", t, err)
		}
		*d = jsonDuration(parsed)
	case float64:
		*d = jsonDuration(time.Duration(t))
	case nil:
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file, chosen by extension
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromEnv applies CACHESVC_* environment variable overrides to the config
func LoadFromEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load builds a Config from defaults, an optional file, then the environment
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
