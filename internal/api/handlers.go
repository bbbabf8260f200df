package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/oriys/cachesvc/internal/cache"
	"github.com/oriys/cachesvc/internal/logging"
	"github.com/oriys/cachesvc/internal/observability"
	"github.com/oriys/cachesvc/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxBodyBytes = 1 << 20 // 1MB

	// maxAgeLimit is the largest max_age, in seconds, a time.Duration can hold.
	maxAgeLimit = math.MaxInt64 / int64(time.Second)
)

// Handler serves cache operations.
type Handler struct {
	Cache *cache.Cache
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Health)

	mux.HandleFunc("GET /v1/items", h.ListKeys)
	mux.HandleFunc("DELETE /v1/items", h.RemoveAll)
	mux.HandleFunc("GET /v1/items/{key}", h.GetItem)
	mux.HandleFunc("PUT /v1/items/{key}", h.SetItem)
	mux.HandleFunc("DELETE /v1/items/{key}", h.RemoveItem)
	mux.HandleFunc("GET /v1/items/{key}/exists", h.ItemExists)
	mux.HandleFunc("GET /v1/items/{key}/ttl", h.ItemTTL)
	mux.HandleFunc("POST /v1/purge", h.Purge)

	mux.HandleFunc("GET /v1/tags", h.ListTags)
	mux.HandleFunc("GET /v1/tags/{tag}", h.GetTag)
	mux.HandleFunc("DELETE /v1/tags/{tag}", h.RemoveTag)
}

type setItemRequest struct {
	Value   json.RawMessage `json:"value"`
	Expires *int64          `json:"expires,omitempty"` // epoch milliseconds
	MaxAge  *int64          `json:"max_age,omitempty"` // seconds
	Tag     string          `json:"tag,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": string(h.Cache.Backend().Type()),
	})
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	ctx, span := h.startSpan(r.Context(), "cache.get", observability.AttrCacheKey.String(key))
	defer span.End()

	value, ok := h.Cache.Get(ctx, key)
	span.SetAttributes(observability.AttrCacheHit.Bool(ok))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "key not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":   key,
		"value": value,
	})
}

func (h *Handler) SetItem(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req setItemRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if len(req.Value) == 0 {
		writeJSONError(w, http.StatusBadRequest, "value is required")
		return
	}

	var opts []cache.SetOption
	if req.Expires != nil {
		opts = append(opts, cache.Expires(time.UnixMilli(*req.Expires)))
	}
	if req.MaxAge != nil {
		if *req.MaxAge > maxAgeLimit {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("max_age must not exceed %d seconds", maxAgeLimit))
			return
		}
		opts = append(opts, cache.MaxAge(time.Duration(*req.MaxAge)*time.Second))
	}
	if req.Tag != "" {
		opts = append(opts, cache.Tag(req.Tag))
	}

	ctx, span := h.startSpan(r.Context(), "cache.set",
		observability.AttrCacheKey.String(key),
		observability.AttrCacheTag.String(req.Tag),
	)
	defer span.End()

	if err := h.Cache.Set(ctx, key, req.Value, opts...); err != nil {
		observability.SetSpanError(span, err)
		writeCacheError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	ctx, span := h.startSpan(r.Context(), "cache.remove", observability.AttrCacheKey.String(key))
	defer span.End()

	if err := h.Cache.Remove(ctx, key); err != nil {
		observability.SetSpanError(span, err)
		writeCacheError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ItemExists(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	ctx, span := h.startSpan(r.Context(), "cache.exists", observability.AttrCacheKey.String(key))
	defer span.End()

	writeJSON(w, http.StatusOK, map[string]bool{"exists": h.Cache.Exists(ctx, key)})
}

func (h *Handler) ItemTTL(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	ctx, span := h.startSpan(r.Context(), "cache.ttl", observability.AttrCacheKey.String(key))
	defer span.End()

	ttl, state := h.Cache.TTL(ctx, key)
	ttlMs := ttl.Milliseconds()
	if ttl < 0 {
		ttlMs = int64(ttl) // keep the -1 / -2 markers
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":  state.String(),
		"ttl_ms": ttlMs,
	})
}

func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keys, err := h.Cache.Keys(ctx)
	if err != nil {
		writeCacheError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (h *Handler) RemoveAll(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r.Context(), "cache.remove_all")
	defer span.End()

	if err := h.Cache.RemoveAll(ctx); err != nil {
		observability.SetSpanError(span, err)
		writeCacheError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r.Context(), "cache.purge")
	defer span.End()

	n, err := h.Cache.PurgeExpired(ctx)
	if err != nil {
		observability.SetSpanError(span, err)
		writeCacheError(ctx, w, err)
		return
	}
	span.SetAttributes(observability.AttrCacheCount.Int(n))
	writeJSON(w, http.StatusOK, map[string]int{"purged": n})
}

func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tags": h.Cache.Tags(r.Context())})
}

func (h *Handler) GetTag(w http.ResponseWriter, r *http.Request) {
	tag := r.PathValue("tag")
	ctx, span := h.startSpan(r.Context(), "cache.get_tag", observability.AttrCacheTag.String(tag))
	defer span.End()

	items := h.Cache.GetTagData(ctx, tag)
	span.SetAttributes(observability.AttrCacheCount.Int(len(items)))
	writeJSON(w, http.StatusOK, map[string]any{
		"tag":   tag,
		"items": items,
	})
}

func (h *Handler) RemoveTag(w http.ResponseWriter, r *http.Request) {
	tag := r.PathValue("tag")
	ctx, span := h.startSpan(r.Context(), "cache.remove_tag", observability.AttrCacheTag.String(tag))
	defer span.End()

	if err := h.Cache.RemoveTag(ctx, tag); err != nil {
		observability.SetSpanError(span, err)
		writeCacheError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// startSpan opens a span tagged with the selected backend type.
func (h *Handler) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, observability.AttrCacheBackend.String(string(h.Cache.Backend().Type())))
	return observability.StartSpan(ctx, name, attrs...)
}

func writeCacheError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cache.ErrEmptyKey), errors.Is(err, cache.ErrReservedKey):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrQuotaExceeded):
		writeJSONError(w, http.StatusInsufficientStorage, err.Error())
	default:
		logging.Op().Error("cache operation failed",
			"error", err,
			"trace_id", observability.GetTraceID(ctx),
			"span_id", observability.GetSpanID(ctx),
		)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
