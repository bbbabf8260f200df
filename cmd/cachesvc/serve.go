package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/cachesvc/internal/api"
	"github.com/oriys/cachesvc/internal/cache"
	"github.com/oriys/cachesvc/internal/logging"
	"github.com/oriys/cachesvc/internal/metrics"
	"github.com/oriys/cachesvc/internal/observability"
)

func serveCmd() *cobra.Command {
	var (
		listenAddr    string
		purgeInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Serve the cache over HTTP with Prometheus metrics and optional OpenTelemetry tracing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Daemon.HTTPAddr = listenAddr
			}
			setupLogging(cfg, "")

			ctx := context.Background()
			if err := observability.Init(ctx, observability.Config{
				Enabled:        cfg.Tracing.Enabled,
				Exporter:       cfg.Tracing.Exporter,
				Endpoint:       cfg.Tracing.Endpoint,
				ExportTimeout:  cfg.Tracing.ExportTimeout,
				ServiceName:    "cachesvc",
				ServiceVersion: version,
				SampleRate:     cfg.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			stats := metrics.New()
			sinks := metrics.Fanout{stats}
			var prom *metrics.PrometheusMetrics
			if cfg.Metrics.Enabled {
				prom = metrics.NewPrometheus(cfg.Metrics.Namespace, "")
				sinks = append(sinks, prom)
			}

			c, err := openCache(ctx, cfg, cache.WithMetrics(sinks))
			if err != nil {
				return err
			}
			defer c.Close()

			serverCfg := api.ServerConfig{Cache: c, Stats: stats}
			if prom != nil {
				prom.SetBackend(string(c.Backend().Type()))
				serverCfg.Prometheus = prom.Handler()
			}

			purgeCtx, stopPurge := context.WithCancel(ctx)
			defer stopPurge()
			if purgeInterval > 0 {
				go runPurger(purgeCtx, c, purgeInterval)
			}

			httpServer := &http.Server{
				Addr:    cfg.Daemon.HTTPAddr,
				Handler: api.NewHandler(serverCfg),
			}

			errCh := make(chan error, 1)
			go func() {
				logging.Op().Info("cachesvc started", "addr", cfg.Daemon.HTTPAddr, "backend", c.Backend().Type())
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				logging.Op().Info("shutdown signal received", "signal", sig.String())
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown cachesvc: %w", err)
				}
				return nil
			case err := <-errCh:
				return fmt.Errorf("cachesvc server error: %w", err)
			}
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address (default from config, :8090)")
	cmd.Flags().DurationVar(&purgeInterval, "purge-interval", 0, "Sweep expired entries at this interval (0 disables)")

	return cmd
}

// runPurger sweeps expired entries until ctx is cancelled.
func runPurger(ctx context.Context, c *cache.Cache, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.PurgeExpired(ctx); err != nil {
				logging.Op().Warn("purge expired entries", "error", err)
			}
		}
	}
}
