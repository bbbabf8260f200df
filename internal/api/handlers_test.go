package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oriys/cachesvc/internal/cache"
	"github.com/oriys/cachesvc/internal/logging"
	"github.com/oriys/cachesvc/internal/metrics"
	"github.com/oriys/cachesvc/internal/observability"
	"github.com/oriys/cachesvc/internal/storage"
)

func newTestServer(t *testing.T, backendOpts ...storage.MemoryOption) (*httptest.Server, *metrics.Metrics) {
	t.Helper()
	stats := metrics.New()
	c := cache.New(context.Background(), storage.NewMemory(backendOpts...),
		cache.WithLogger(logging.Discard()),
		cache.WithMetrics(stats),
	)
	srv := httptest.NewServer(NewHandler(ServerConfig{
		Cache:      c,
		Stats:      stats,
		Prometheus: metrics.NewPrometheus("", "memory").Handler(),
	}))
	t.Cleanup(srv.Close)
	return srv, stats
}

func do(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	code, body := do(t, "GET", srv.URL+"/healthz", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "memory", body["backend"])
}

func TestItems_SetGetRemove(t *testing.T) {
	srv, _ := newTestServer(t)

	code, _ := do(t, "PUT", srv.URL+"/v1/items/greeting", `{"value":{"text":"hi"}}`)
	require.Equal(t, http.StatusNoContent, code)

	code, body := do(t, "GET", srv.URL+"/v1/items/greeting", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, map[string]any{"text": "hi"}, body["value"])

	code, body = do(t, "GET", srv.URL+"/v1/items/greeting/exists", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["exists"])

	code, _ = do(t, "DELETE", srv.URL+"/v1/items/greeting", "")
	require.Equal(t, http.StatusNoContent, code)

	code, body = do(t, "GET", srv.URL+"/v1/items/greeting", "")
	require.Equal(t, http.StatusNotFound, code)
	require.NotEmpty(t, body["error"])
}

func TestItems_SetValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	code, _ := do(t, "PUT", srv.URL+"/v1/items/k", `not json`)
	require.Equal(t, http.StatusBadRequest, code)

	code, body := do(t, "PUT", srv.URL+"/v1/items/k", `{"tag":"t"}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "value is required", body["error"])

	code, _ = do(t, "PUT", srv.URL+"/v1/items/_tags", `{"value":1}`)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestItems_QuotaExceeded(t *testing.T) {
	srv, stats := newTestServer(t, storage.WithMaxItems(1))

	// untagged writes do not touch the index, so one item fills the backend
	code, _ := do(t, "PUT", srv.URL+"/v1/items/a", `{"value":1}`)
	require.Equal(t, http.StatusNoContent, code)

	code, _ = do(t, "PUT", srv.URL+"/v1/items/b", `{"value":2}`)
	require.Equal(t, http.StatusInsufficientStorage, code)
	require.Equal(t, int64(1), stats.WritesRejected.Load())
}

func TestItems_TTL(t *testing.T) {
	srv, _ := newTestServer(t)

	do(t, "PUT", srv.URL+"/v1/items/forever", `{"value":"x"}`)
	do(t, "PUT", srv.URL+"/v1/items/brief", `{"value":"x","max_age":3600}`)

	_, body := do(t, "GET", srv.URL+"/v1/items/forever/ttl", "")
	require.Equal(t, "present", body["state"])
	require.Equal(t, float64(-1), body["ttl_ms"])

	_, body = do(t, "GET", srv.URL+"/v1/items/brief/ttl", "")
	require.Equal(t, "present", body["state"])
	ttl := body["ttl_ms"].(float64)
	require.Greater(t, ttl, float64(0))
	require.LessOrEqual(t, ttl, float64(3600*1000))

	_, body = do(t, "GET", srv.URL+"/v1/items/missing/ttl", "")
	require.Equal(t, "absent", body["state"])
	require.Equal(t, float64(-2), body["ttl_ms"])
}

func TestItems_ExpiredViaAbsoluteTime(t *testing.T) {
	srv, _ := newTestServer(t)

	code, _ := do(t, "PUT", srv.URL+"/v1/items/old", `{"value":"x","expires":1000}`)
	require.Equal(t, http.StatusNoContent, code)

	code, _ = do(t, "GET", srv.URL+"/v1/items/old", "")
	require.Equal(t, http.StatusNotFound, code)
}

func TestItems_ListAndClear(t *testing.T) {
	srv, _ := newTestServer(t)

	do(t, "PUT", srv.URL+"/v1/items/b", `{"value":1}`)
	do(t, "PUT", srv.URL+"/v1/items/a", `{"value":2,"tag":"t"}`)

	_, body := do(t, "GET", srv.URL+"/v1/items", "")
	require.Equal(t, []any{"a", "b"}, body["keys"])

	code, _ := do(t, "DELETE", srv.URL+"/v1/items", "")
	require.Equal(t, http.StatusNoContent, code)

	_, body = do(t, "GET", srv.URL+"/v1/items", "")
	require.Empty(t, body["keys"])
}

func TestPurge(t *testing.T) {
	srv, _ := newTestServer(t)

	do(t, "PUT", srv.URL+"/v1/items/old", `{"value":1,"expires":1000}`)
	do(t, "PUT", srv.URL+"/v1/items/live", `{"value":2}`)

	code, body := do(t, "POST", srv.URL+"/v1/purge", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, float64(1), body["purged"])
}

func TestTags(t *testing.T) {
	srv, _ := newTestServer(t)

	do(t, "PUT", srv.URL+"/v1/items/u1", `{"value":"ada","tag":"users"}`)
	do(t, "PUT", srv.URL+"/v1/items/u2", `{"value":"bob","tag":"users"}`)
	do(t, "PUT", srv.URL+"/v1/items/cfg", `{"value":true,"tag":"settings"}`)

	_, body := do(t, "GET", srv.URL+"/v1/tags", "")
	require.Equal(t, []any{"settings", "users"}, body["tags"])

	code, body := do(t, "GET", srv.URL+"/v1/tags/users", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, map[string]any{"u1": "ada", "u2": "bob"}, body["items"])

	code, _ = do(t, "DELETE", srv.URL+"/v1/tags/users", "")
	require.Equal(t, http.StatusNoContent, code)

	_, body = do(t, "GET", srv.URL+"/v1/tags/users", "")
	require.Empty(t, body["items"])

	code, _ = do(t, "GET", srv.URL+"/v1/items/u1", "")
	require.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, "GET", srv.URL+"/v1/items/cfg", "")
	require.Equal(t, http.StatusOK, code)
}

func TestStatsAndMetricsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	do(t, "PUT", srv.URL+"/v1/items/k", `{"value":1}`)
	do(t, "GET", srv.URL+"/v1/items/k", "")
	do(t, "GET", srv.URL+"/v1/items/nope", "")

	_, body := do(t, "GET", srv.URL+"/v1/stats", "")
	require.Equal(t, float64(1), body["hits"])
	require.Equal(t, float64(1), body["misses"])
	require.Equal(t, float64(1), body["writes"])

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestItems_MaxAgeOutOfRange(t *testing.T) {
	srv, _ := newTestServer(t)

	body := fmt.Sprintf(`{"value":1,"max_age":%d}`, maxAgeLimit+1)
	code, resp := do(t, "PUT", srv.URL+"/v1/items/k", body)
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, resp["error"], "max_age")

	code, _ = do(t, "GET", srv.URL+"/v1/items/k", "")
	require.Equal(t, http.StatusNotFound, code)

	// the limit itself is accepted and far in the future
	code, _ = do(t, "PUT", srv.URL+"/v1/items/k", fmt.Sprintf(`{"value":1,"max_age":%d}`, maxAgeLimit))
	require.Equal(t, http.StatusNoContent, code)
	code, _ = do(t, "GET", srv.URL+"/v1/items/k", "")
	require.Equal(t, http.StatusOK, code)
}

// brokenBackend fails every write with a plain error.
type brokenBackend struct {
	*storage.Memory
}

func (brokenBackend) SetItem(context.Context, string, []byte) error {
	return errors.New("disk on fire")
}

// lockedBuffer is written by the server goroutine and read by the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

func TestItems_InternalErrorLogsTraceID(t *testing.T) {
	var logs lockedBuffer
	logging.InitStructuredTo(&logs, "json", "info")
	t.Cleanup(func() { logging.InitStructured("text", "info") })

	ctx := context.Background()
	require.NoError(t, observability.Init(ctx, observability.Config{
		Enabled:    true,
		Exporter:   "stdout",
		SampleRate: 1,
		Output:     io.Discard,
	}))
	t.Cleanup(func() {
		_ = observability.Shutdown(ctx)
		_ = observability.Init(ctx, observability.Config{})
	})

	c := cache.New(ctx, brokenBackend{storage.NewMemory()}, cache.WithLogger(logging.Discard()))
	srv := httptest.NewServer(NewHandler(ServerConfig{Cache: c}))
	t.Cleanup(srv.Close)

	code, _ := do(t, "PUT", srv.URL+"/v1/items/k", `{"value":1}`)
	require.Equal(t, http.StatusInternalServerError, code)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(logs.Bytes()), &rec))
	require.Equal(t, "cache operation failed", rec["msg"])
	require.Len(t, rec["trace_id"], 32)
	require.Len(t, rec["span_id"], 16)
}
