package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/recall/internal/store"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAcquire(time.Millisecond)
		m.ObserveExhausted()
		m.ObserveDiscard()
		m.ObserveRetrieval(time.Millisecond, []string{"A"}, 1, 0, 0, nil)
		m.ObserveIngest("anchor", nil)
		m.ObserveRequest("/api/query", "200")
		m.WatchPool(nil)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRetrievalCounters(t *testing.T) {
	m := New()
	m.ObserveRetrieval(2*time.Millisecond, []string{"A", "N"}, 2, 1, 0, nil)
	m.ObserveRetrieval(time.Millisecond, []string{"A"}, 1, 0, 3, nil)
	m.ObserveRetrieval(time.Millisecond, nil, 0, 0, 0, errors.New("boom"))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.retrievals))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retrievalErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.triggers.WithLabelValues("A")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.triggers.WithLabelValues("N")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.results.WithLabelValues("surface")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.results.WithLabelValues("deep")))
}

func TestIngestAndPoolCounters(t *testing.T) {
	m := New()
	m.ObserveIngest("anchor", nil)
	m.ObserveIngest("anchor", nil)
	m.ObserveIngest("unknown", errors.New("invalid"))
	m.ObserveExhausted()
	m.ObserveDiscard()
	m.ObserveDiscard()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ingested.WithLabelValues("anchor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestErrors.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exhausted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.discarded))
}

func TestHandlerExposesPoolGauges(t *testing.T) {
	m := New()
	m.WatchPool(func() store.PoolStats {
		return store.PoolStats{Size: 5, MaxOpen: 10, Open: 7, Idle: 3, InUse: 4}
	})
	m.ObserveRequest("/api/health", "200")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, want := range []string{
		"recall_pool_open_connections 7",
		"recall_pool_in_use_connections 4",
		"recall_pool_max_connections 10",
		`recall_http_requests_total{code="200",route="/api/health"} 1`,
		"go_goroutines",
	} {
		assert.True(t, strings.Contains(body, want), "missing %q", want)
	}
}
