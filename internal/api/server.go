// Package api exposes a cache.Cache over HTTP.
package api

import (
	"net/http"

	"github.com/oriys/cachesvc/internal/cache"
	"github.com/oriys/cachesvc/internal/metrics"
	"github.com/oriys/cachesvc/internal/observability"
)

// ServerConfig holds the dependencies of the HTTP surface.
type ServerConfig struct {
	Cache      *cache.Cache
	Stats      *metrics.Metrics // optional, served at /v1/stats
	Prometheus http.Handler     // optional, served at /metrics
}

// NewHandler builds the routed, traced handler.
func NewHandler(cfg ServerConfig) http.Handler {
	mux := http.NewServeMux()

	h := &Handler{Cache: cfg.Cache}
	h.RegisterRoutes(mux)

	if cfg.Stats != nil {
		mux.Handle("GET /v1/stats", cfg.Stats.JSONHandler())
	}
	if cfg.Prometheus != nil {
		mux.Handle("GET /metrics", cfg.Prometheus)
	}

	return observability.HTTPMiddleware(mux)
}
