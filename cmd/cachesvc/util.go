package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oriys/cachesvc/internal/cache"
	"github.com/oriys/cachesvc/internal/config"
	"github.com/oriys/cachesvc/internal/logging"
	"github.com/oriys/cachesvc/internal/storage"
)

// loadConfig layers defaults, the config file, CACHESVC_* variables and
// finally the persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if backendName != "" {
		cfg.Storage.Backend = backendName
	}
	if durablePath != "" {
		cfg.Storage.Path = durablePath
	}
	if redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}
	if redisPass != "" {
		cfg.Redis.Password = redisPass
	}
	if redisDB >= 0 {
		cfg.Redis.DB = redisDB
	}
	if sessionID != "" {
		cfg.Redis.SessionID = sessionID
	}
	if pgDSN != "" {
		cfg.Postgres.DSN = pgDSN
	}
	if logLevel != "" {
		cfg.Daemon.LogLevel = logLevel
	}
	return cfg, nil
}

// setupLogging configures the operational logger. One-shot commands pass
// "warn" so backend selection chatter stays out of their output unless
// --log-level asks for it.
func setupLogging(cfg *config.Config, fallback string) {
	level := fallback
	if logLevel != "" || fallback == "" {
		level = cfg.Daemon.LogLevel
	}
	logging.InitStructured(cfg.Daemon.LogFormat, level)
}

func sessionConfig(cfg *config.Config) storage.SessionConfig {
	return storage.SessionConfig{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
		SessionID: cfg.Redis.SessionID,
		IdleTTL:   cfg.Redis.IdleTTL,
	}
}

// openPrimary opens the backend named by cfg.Storage.Backend. A backend
// that fails to open is logged and reported as nil so cache.New falls back.
func openPrimary(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "durable", "":
		d, err := storage.OpenDurable(cfg.Storage.Path)
		if err != nil {
			logging.Op().Warn("durable backend unavailable", "path", cfg.Storage.Path, "error", err)
			return nil, nil
		}
		return d, nil
	case "postgres":
		p, err := storage.OpenPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			logging.Op().Warn("postgres backend unavailable", "error", err)
			return nil, nil
		}
		return p, nil
	case "session":
		return storage.NewSession(sessionConfig(cfg)), nil
	case "memory":
		return storage.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Storage.Backend)
	}
}

// openCache builds a Cache from cfg. The session backend is offered as the
// fallback whenever a Redis address is configured.
func openCache(ctx context.Context, cfg *config.Config, opts ...cache.Option) (*cache.Cache, error) {
	primary, err := openPrimary(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var session *storage.Session
	if cfg.Storage.Backend != "session" && cfg.Redis.Addr != "" {
		session = storage.NewSession(sessionConfig(cfg))
		opts = append(opts, cache.WithSessionBackend(session))
	}
	opts = append(opts, cache.WithDefaults(cache.Defaults{MaxAge: cfg.Cache.DefaultMaxAge}))

	c := cache.New(ctx, primary, opts...)

	// release the candidates that lost the selection
	selected := c.Backend()
	if primary != nil && primary != selected {
		closeCandidate(primary)
	}
	if session != nil && storage.Backend(session) != selected {
		closeCandidate(session)
	}

	msg, level := "cache opened", slog.LevelInfo
	if _, ok := selected.(*storage.Session); ok && cfg.Redis.SessionID == "" {
		msg, level = "cache opened on a new session, pass --session to reuse it", slog.LevelWarn
	}
	logging.Op().Log(ctx, level, msg, describeBackend(selected)...)
	return c, nil
}

func closeCandidate(b storage.Backend) {
	if err := b.Close(); err != nil {
		logging.Op().Debug("close unused backend", "type", b.Type(), "error", err)
	}
}

// describeBackend returns log attributes locating the data of b. The session
// ID is what a later one-shot command must pass with --session to read the
// same entries back.
func describeBackend(b storage.Backend) []any {
	attrs := []any{"backend", b.Type()}
	switch v := b.(type) {
	case *storage.Durable:
		attrs = append(attrs, "path", v.Path())
	case *storage.Session:
		attrs = append(attrs, "session_id", v.SessionID())
	}
	return attrs
}

// withCache runs fn against a cache opened from the persistent flags and
// closes it afterwards.
func withCache(fn func(ctx context.Context, c *cache.Cache) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg, "warn")

	ctx := context.Background()
	c, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c)
}
