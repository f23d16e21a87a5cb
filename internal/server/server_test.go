package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/errs"
	"github.com/lazypower/recall/internal/metrics"
	"github.com/lazypower/recall/internal/store"
)

func testServer(t *testing.T, mods ...func(*config.ServerConfig)) *Server {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "recall.db"), store.Options{Size: 2})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := metrics.New()
	eng, err := engine.New(st, engine.Options{Metrics: m})
	require.NoError(t, err)

	cfg := config.Default().Server
	cfg.RateLimitPerMinute = 0
	for _, mod := range mods {
		mod(&cfg)
	}
	return New(Options{Engine: eng, Store: st, Metrics: m, Config: cfg, Version: "test-version"})
}

func do(t *testing.T, srv http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func addInsight(t *testing.T, srv http.Handler, draft map[string]any) string {
	t.Helper()
	w := do(t, srv, "POST", "/api/insights", draft)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody(t, w)["id"].(string)
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "GET", "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test-version", body["version"])
	assert.Equal(t, true, body["db"])
}

func TestQuerySurfacesAnchor(t *testing.T) {
	srv := testServer(t)
	addInsight(t, srv, map[string]any{
		"id":                  "anchor-1",
		"content":             "His word is enough.",
		"entities":            []string{"A"},
		"insight_type":        "anchor",
		"effectiveness_score": 1.0,
	})

	w := do(t, srv, "POST", "/api/query", QueryRequest{Input: "I'm worried about trusting A", MaxResults: 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"A"}, resp.Triggers)
	require.Len(t, resp.Surface, 1)
	assert.Equal(t, "anchor-1", resp.Surface[0].ID)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "[Key insight: His word is enough.]", resp.Formatted)
	assert.Contains(t, resp.Markdown, "⚓ His word is enough.")
}

func TestQueryEmptyResultUsesArrays(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "POST", "/api/query", QueryRequest{Input: "What's the weather like?"})
	require.Equal(t, http.StatusOK, w.Code)
	for _, field := range []string{`"triggers":[]`, `"surface":[]`, `"mid":[]`, `"deep":[]`, `"total":0`} {
		assert.Contains(t, w.Body.String(), field)
	}
}

func TestQueryRejectsBadInput(t *testing.T) {
	srv := testServer(t, func(c *config.ServerConfig) { c.MaxQueryChars = 10 })

	w := do(t, srv, "POST", "/api/query", QueryRequest{Input: strings.Repeat("a", 11)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, "POST", "/api/query", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryClampsMaxResults(t *testing.T) {
	srv := testServer(t)
	now := time.Now().UTC()
	for i := 0; i < 12; i++ {
		age, eff := 60, 0.5
		if i >= 4 {
			age, eff = 200, 0.1
		}
		addInsight(t, srv, map[string]any{
			"content":             fmt.Sprintf("Evening observation %d about N.", i),
			"entities":            []string{"N"},
			"effectiveness_score": eff,
			"timestamp":           now.AddDate(0, 0, -age).Format(time.RFC3339),
		})
	}

	w := do(t, srv, "POST", "/api/query", QueryRequest{Input: "N again", MaxResults: 50})
	require.Equal(t, http.StatusOK, w.Code)
	var resp QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 10, resp.Total)
	assert.Len(t, resp.Mid, 4)
	assert.Len(t, resp.Deep, 6)
}

func TestInsightLifecycle(t *testing.T) {
	srv := testServer(t)
	id := addInsight(t, srv, map[string]any{"content": "Structure at bedtime is optional.", "entities": []string{"N"}})

	w := do(t, srv, "GET", "/api/insights/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Structure at bedtime is optional.", decodeBody(t, w)["content"])

	w = do(t, srv, "POST", "/api/insights/"+id+"/supersede", map[string]any{
		"content":  "Structure at bedtime is what works.",
		"entities": []string{"N"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	newID := decodeBody(t, w)["id"].(string)

	w = do(t, srv, "GET", "/api/insights/"+id, nil)
	old := decodeBody(t, w)
	assert.Equal(t, newID, old["superseded_by"])
	assert.Equal(t, "superseded", old["growth_stage"])

	w = do(t, srv, "GET", "/api/insights/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeBody(t, w)["kind"])

	w = do(t, srv, "POST", "/api/insights/nope/supersede", map[string]any{"content": "Replacement text here."})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddInsightValidation(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "POST", "/api/insights", map[string]any{"content": "  "})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decodeBody(t, w)["kind"])

	w = do(t, srv, "POST", "/api/insights", map[string]any{"content": "fine", "effectiveness_score": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExtract(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "POST", "/api/extract", map[string]string{"text": "I realized that A keeps his word even when I doubt it."})
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	require.Len(t, body["candidates"], 1)
	assert.Contains(t, body["suggestion"], "A keeps his word even when I doubt it")

	w = do(t, srv, "POST", "/api/extract", map[string]string{"text": " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEntitiesAndStatus(t *testing.T) {
	srv := testServer(t)
	addInsight(t, srv, map[string]any{"content": "His word is enough.", "entities": []string{"A"}})
	addInsight(t, srv, map[string]any{"content": "Scanning the room is old armor.", "entities": []string{"trauma"}})

	w := do(t, srv, "GET", "/api/entities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ents struct {
		Entities []EntitySummary `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ents))
	counts := map[string]int{}
	for _, e := range ents.Entities {
		counts[e.Entity] = e.Count
	}
	assert.Equal(t, map[string]int{"A": 1, "N": 0, "X": 0, "trauma_responses": 1}, counts)

	w = do(t, srv, "GET", "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(2), body["total_insights"])
	assert.NotZero(t, body["schema_version"])
	assert.Contains(t, body, "pool")
}

func TestTokenAuth(t *testing.T) {
	srv := testServer(t, func(c *config.ServerConfig) { c.Token = "s3cret" })

	w := do(t, srv, "GET", "/api/status", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, srv, "GET", "/api/status", nil, TokenHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, srv, "GET", "/api/status", nil, TokenHeader, "s3cret")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, "GET", "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code, "health stays open")
}

func TestRateLimit(t *testing.T) {
	srv := testServer(t, func(c *config.ServerConfig) { c.RateLimitPerMinute = 2 })

	for i := 0; i < 2; i++ {
		w := do(t, srv, "GET", "/api/entities", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := do(t, srv, "GET", "/api/entities", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	w = do(t, srv, "GET", "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code, "health is not limited")
}

func TestIPLimiterIsPerClient(t *testing.T) {
	l := newIPLimiter(1)
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t)
	do(t, srv, "POST", "/api/query", QueryRequest{Input: "trust"})

	w := do(t, srv, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `recall_http_requests_total{code="200",route="/api/query"} 1`)
	assert.Contains(t, w.Body.String(), "recall_pool_acquire_wait_seconds")
}

func TestWriteErrorMapping(t *testing.T) {
	srv := testServer(t)
	tests := []struct {
		err        error
		status     int
		retryAfter string
	}{
		{errs.Validation("op", "bad"), http.StatusBadRequest, ""},
		{errs.NotFound("op", "x"), http.StatusNotFound, ""},
		{fmt.Errorf("lookup: %w", errs.PoolExhausted("acquire", time.Second)), http.StatusServiceUnavailable, "1"},
		{errs.Storage("op", errors.New("disk")), http.StatusInternalServerError, ""},
		{errors.New("plain"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.writeError(w, httptest.NewRequest("GET", "/", nil), tt.err)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.retryAfter, w.Header().Get("Retry-After"))
		})
	}
}
