package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyx-dev/onyx-database-go/internal/metrics"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveRequest("GET", 200, 10*time.Millisecond)
	m.ObserveRequest("GET", 200, 20*time.Millisecond)
	m.ObserveRequest("PUT", 0, time.Millisecond)
	m.ObserveRetry("GET")
	m.ObserveStreamEvent("CREATE")
	m.ObserveStreamReconnect()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestTotal.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestTotal.WithLabelValues("PUT", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetryTotal.WithLabelValues("GET")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamEvents.WithLabelValues("CREATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamReconnects))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "onyx_client_request_duration_seconds")
}

func TestUnregisteredCollectors(t *testing.T) {
	m := metrics.New(nil)
	m.ObserveRetry("GET")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetryTotal.WithLabelValues("GET")))

}

func TestCollectorsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := metrics.New(reg)
	var second *metrics.Collectors
	require.NotPanics(t, func() { second = metrics.New(reg) })

	first.ObserveRequest("GET", 200, time.Millisecond)
	second.ObserveRequest("GET", 200, time.Millisecond)
	second.ObserveStreamReconnect()

	assert.Equal(t, 2.0, testutil.ToFloat64(first.RequestTotal.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(first.StreamReconnects))
	assert.Equal(t, 3, testutil.CollectAndCount(reg,
		"onyx_client_requests_total",
		"onyx_client_request_duration_seconds",
		"onyx_client_retries_total",
		"onyx_client_stream_events_total",
		"onyx_client_stream_reconnects_total",
	))
}

func TestConflictingCollectorPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "onyx_client_stream_reconnects_total",
		Help: "something else",
	}))
	assert.Panics(t, func() { metrics.New(reg) })
}
