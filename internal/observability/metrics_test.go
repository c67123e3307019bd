package observability

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Ticks.Inc()
	m.SinkFailures.WithLabelValues("local").Inc()
	m.Omission("network", "io_counters")
	m.Omission("network", "io_counters")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Ticks))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SinkFailures.WithLabelValues("local")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CollectorOmissions.WithLabelValues("network", "io_counters")))
}

func TestMetrics_NilOmissionIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.Omission("cpu", "percent") })
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Ticks.Add(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "traceclaw_ticks_total 3")
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
