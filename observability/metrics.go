package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics groups the collectors recorded by the flash-loan gateway.
type GatewayMetrics struct {
	Requests       *prometheus.CounterVec
	Throttled      *prometheus.CounterVec
	LedgerAttempts *prometheus.CounterVec
	Rotations      prometheus.Counter
	Latency        *prometheus.HistogramVec
}

var (
	gatewayOnce     sync.Once
	gatewayRegistry *GatewayMetrics
)

// Gateway returns the lazily-initialised gateway metrics, registered with the
// default prometheus registry exactly once.
func Gateway() *GatewayMetrics {
	gatewayOnce.Do(func() {
		gatewayRegistry = &GatewayMetrics{
			Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "flashloan",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total gateway requests segmented by action and outcome.",
			}, []string{"action", "outcome"}),
			Throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "flashloan",
				Subsystem: "gateway",
				Name:      "throttled_total",
				Help:      "Requests rejected by the admission gate, segmented by scope.",
			}, []string{"scope"}),
			LedgerAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "flashloan",
				Subsystem: "ledger",
				Name:      "attempts_total",
				Help:      "Ledger call attempts segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			Rotations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "flashloan",
				Subsystem: "ledger",
				Name:      "endpoint_rotations_total",
				Help:      "Endpoint rotations triggered by network-class failures.",
			}),
			Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "flashloan",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"action"}),
		}
		prometheus.MustRegister(
			gatewayRegistry.Requests,
			gatewayRegistry.Throttled,
			gatewayRegistry.LedgerAttempts,
			gatewayRegistry.Rotations,
			gatewayRegistry.Latency,
		)
	})
	return gatewayRegistry
}
