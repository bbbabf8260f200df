package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Storage.Backend != "durable" {
		t.Fatalf("expected durable default backend, got %q", cfg.Storage.Backend)
	}
	if cfg.Redis.IdleTTL != 30*time.Minute {
		t.Fatalf("expected 30m session idle TTL, got %v", cfg.Redis.IdleTTL)
	}
	if cfg.Cache.DefaultMaxAge != 0 {
		t.Fatalf("expected entries to never expire by default, got %v", cfg.Cache.DefaultMaxAge)
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := writeFile(t, "cachesvc.yaml", `
storage:
  backend: session
redis:
  addr: redis:6379
  idle_ttl: 5m
cache:
  default_max_age: 90s
`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Storage.Backend != "session" {
		t.Fatalf("expected session backend, got %q", cfg.Storage.Backend)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.IdleTTL != 5*time.Minute {
		t.Fatalf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Cache.DefaultMaxAge != 90*time.Second {
		t.Fatalf("expected 90s default max age, got %v", cfg.Cache.DefaultMaxAge)
	}
	// Untouched sections keep defaults
	if cfg.Storage.Path != "cachesvc.db" {
		t.Fatalf("expected default path, got %q", cfg.Storage.Path)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := writeFile(t, "cachesvc.json", `{"storage": {"backend": "memory"}, "daemon": {"http_addr": ":9999"}}`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Storage.Backend != "memory" || cfg.Daemon.HTTPAddr != ":9999" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Daemon.LogLevel != "info" {
		t.Fatalf("expected default log level, got %q", cfg.Daemon.LogLevel)
	}
}

func TestLoadFromFile_Invalid(t *testing.T) {
	path := writeFile(t, "broken.json", `{`)
	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CACHESVC_STORAGE_BACKEND", "postgres")
	t.Setenv("CACHESVC_POSTGRES_DSN", "postgres://localhost/cache")
	t.Setenv("CACHESVC_REDIS_DB", "3")
	t.Setenv("CACHESVC_CACHE_DEFAULT_MAX_AGE", "1h")
	t.Setenv("CACHESVC_METRICS_ENABLED", "false")

	cfg := DefaultConfig()
	if err := LoadFromEnv(cfg); err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	if cfg.Storage.Backend != "postgres" {
		t.Fatalf("expected postgres backend, got %q", cfg.Storage.Backend)
	}
	if cfg.Postgres.DSN != "postgres://localhost/cache" {
		t.Fatalf("unexpected DSN %q", cfg.Postgres.DSN)
	}
	if cfg.Redis.DB != 3 {
		t.Fatalf("expected redis db 3, got %d", cfg.Redis.DB)
	}
	if cfg.Cache.DefaultMaxAge != time.Hour {
		t.Fatalf("expected 1h default max age, got %v", cfg.Cache.DefaultMaxAge)
	}
	if cfg.Metrics.Enabled {
		t.Fatal("expected metrics disabled by env")
	}
	// Unset variables keep existing values
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("expected default redis addr, got %q", cfg.Redis.Addr)
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	t.Setenv("CACHESVC_REDIS_DB", "not-a-number")
	if err := LoadFromEnv(DefaultConfig()); err == nil {
		t.Fatal("expected error for malformed env value")
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, "cachesvc.yml", "storage:\n  backend: memory\n")
	t.Setenv("CACHESVC_STORAGE_BACKEND", "session")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Backend != "session" {
		t.Fatalf("env should override file, got %q", cfg.Storage.Backend)
	}
}

func TestLoadFromFile_JSONDurations(t *testing.T) {
	path := writeFile(t, "cachesvc.json", `{
		"redis": {"addr": "redis:6379", "idle_ttl": "5m"},
		"cache": {"default_max_age": "90s"},
		"tracing": {"export_timeout": 3000000000}
	}`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Redis.IdleTTL != 5*time.Minute || cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Cache.DefaultMaxAge != 90*time.Second {
		t.Fatalf("expected 90s default max age, got %v", cfg.Cache.DefaultMaxAge)
	}
	if cfg.Tracing.ExportTimeout != 3*time.Second {
		t.Fatalf("expected nanosecond form to still decode, got %v", cfg.Tracing.ExportTimeout)
	}
	// Fields absent from the file keep their defaults
	if cfg.Redis.KeyPrefix != "cachesvc:" || cfg.Tracing.Exporter != "otlp-http" {
		t.Fatalf("expected defaults preserved, got %+v %+v", cfg.Redis, cfg.Tracing)
	}
}

func TestLoadFromFile_JSONBadDuration(t *testing.T) {
	path := writeFile(t, "cachesvc.json", `{"redis": {"idle_ttl": "soon"}}`)
	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}
