package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistryIsolated(t *testing.T) {
	regA := prometheus.NewRegistry()
	a := NewWithRegistry(regA)
	b := NewWithRegistry(prometheus.NewRegistry())

	a.SearchQueriesTotal.WithLabelValues("hit").Inc()
	a.CacheHitsTotal.WithLabelValues("memory").Add(2)
	a.ObserveBreaker("suggest", 1)
	b.SearchQueriesTotal.WithLabelValues("miss").Inc()

	families, err := regA.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] += m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, values["search_queries_total"])
	assert.Equal(t, 2.0, values["cache_hits_total"])
	assert.Equal(t, 1.0, values["circuit_breaker_state"])
}

func TestHandlerServesOwnRegistry(t *testing.T) {
	m := New()
	m.CorruptRowsTotal.Add(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "search_corrupt_rows_total 3")
	assert.Contains(t, string(body), "go_goroutines")
}
