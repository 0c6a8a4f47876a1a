package observability

import (
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"deficore/core"
)

type rpcMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics

	protocolMetricsOnce sync.Once
	protocolRegistry    *ProtocolMetrics
)

// RPC returns the lazily-initialised registry recording JSON-RPC activity.
func RPC() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "deficore",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "deficore",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "deficore",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "deficore",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by the rate limiter.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records one JSON-RPC request. code is the JSON-RPC error code, or 0
// on success.
func (m *rpcMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *rpcMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// ProtocolMetrics tracks protocol calls and pool balances. It implements
// core.Observer.
type ProtocolMetrics struct {
	calls       *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	supplied    prometheus.Gauge
	borrowed    prometheus.Gauge
	utilization prometheus.Gauge
	staked      prometheus.Gauge
}

// Protocol returns the singleton protocol metrics registry.
func Protocol() *ProtocolMetrics {
	protocolMetricsOnce.Do(func() {
		protocolRegistry = &ProtocolMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "deficore",
				Subsystem: "protocol",
				Name:      "calls_total",
				Help:      "Protocol calls segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "deficore",
				Subsystem: "protocol",
				Name:      "call_duration_seconds",
				Help:      "Time spent executing protocol calls, commit included.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			supplied: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "deficore",
				Subsystem: "lending",
				Name:      "total_supplied",
				Help:      "Total supplied to the lending pool.",
			}),
			borrowed: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "deficore",
				Subsystem: "lending",
				Name:      "total_borrowed",
				Help:      "Total borrowed from the lending pool.",
			}),
			utilization: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "deficore",
				Subsystem: "lending",
				Name:      "utilization_bps",
				Help:      "Lending pool utilization in basis points.",
			}),
			staked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "deficore",
				Subsystem: "staking",
				Name:      "total_staked",
				Help:      "Total principal held by the staking pool.",
			}),
		}
		prometheus.MustRegister(
			protocolRegistry.calls,
			protocolRegistry.latency,
			protocolRegistry.supplied,
			protocolRegistry.borrowed,
			protocolRegistry.utilization,
			protocolRegistry.staked,
		)
	})
	return protocolRegistry
}

// ObserveCall implements core.Observer.
func (m *ProtocolMetrics) ObserveCall(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObservePools implements core.Observer.
func (m *ProtocolMetrics) ObservePools(g core.PoolGauges) {
	if m == nil {
		return
	}
	m.supplied.Set(bigToFloat(g.LendingSupplied))
	m.borrowed.Set(bigToFloat(g.LendingBorrowed))
	m.utilization.Set(float64(g.LendingUtilization))
	m.staked.Set(bigToFloat(g.TotalStaked))
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
