// Package metrics exposes client-side Prometheus collectors for HTTP
// requests and change streams.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors implements transport.Metrics and stream.Metrics.
type Collectors struct {
	// RequestTotal counts HTTP attempts by method and status. Network
	// failures are recorded with status "error".
	RequestTotal *prometheus.CounterVec
	// RequestDuration is the latency of HTTP attempts.
	RequestDuration *prometheus.HistogramVec
	// RetryTotal counts retried requests by method.
	RetryTotal *prometheus.CounterVec
	// StreamEvents counts dispatched stream records by action.
	StreamEvents *prometheus.CounterVec
	// StreamReconnects counts dropped stream connections.
	StreamReconnects prometheus.Counter
}

// New registers the collectors with reg. A nil reg creates collectors that
// are not registered anywhere. Collectors already registered with reg by an
// earlier call are reused, so several clients can share one registry.
func New(reg prometheus.Registerer) *Collectors {
	return &Collectors{
		RequestTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onyx_client_requests_total",
				Help: "Total number of HTTP requests sent to Onyx",
			},
			[]string{"method", "status"},
		)),
		RequestDuration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "onyx_client_request_duration_seconds",
				Help:    "Onyx HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		)),
		RetryTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onyx_client_retries_total",
				Help: "Total number of retried Onyx requests",
			},
			[]string{"method"},
		)),
		StreamEvents: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onyx_client_stream_events_total",
				Help: "Total number of stream records received",
			},
			[]string{"action"},
		)),
		StreamReconnects: register(reg, prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "onyx_client_stream_reconnects_total",
				Help: "Total number of stream reconnect attempts",
			},
		)),
	}
}

// register adds c to reg and returns the collector reg holds under the same
// descriptor. Conflicting descriptors still panic.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveRequest records one HTTP attempt. status 0 means the request
// never got a response.
func (c *Collectors) ObserveRequest(method string, status int, elapsed time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	c.RequestTotal.WithLabelValues(method, code).Inc()
	c.RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveRetry records a retried request.
func (c *Collectors) ObserveRetry(method string) {
	c.RetryTotal.WithLabelValues(method).Inc()
}

// ObserveStreamReconnect records a reconnect attempt.
func (c *Collectors) ObserveStreamReconnect() {
	c.StreamReconnects.Inc()
}

// ObserveStreamEvent records a dispatched stream record.
func (c *Collectors) ObserveStreamEvent(action string) {
	c.StreamEvents.WithLabelValues(action).Inc()
}
