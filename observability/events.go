package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"deficore/core/events"
	"deficore/native/lending"
)

type eventMetrics struct {
	published    *prometheus.CounterVec
	liquidations prometheus.Counter
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry counting committed protocol events.
// The returned value is an events.Emitter and can sit in the host's fanout.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "deficore",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Committed events segmented by module and type.",
			}, []string{"module", "type"}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "deficore",
				Subsystem: "lending",
				Name:      "liquidations_total",
				Help:      "Count of individual positions liquidated.",
			}),
		}
		prometheus.MustRegister(eventRegistry.published, eventRegistry.liquidations)
	})
	return eventRegistry
}

// Emit implements events.Emitter.
func (m *eventMetrics) Emit(ev events.Event) {
	if m == nil || ev == nil {
		return
	}
	eventType := strings.TrimSpace(ev.EventType())
	if eventType == "" {
		eventType = "unknown"
	}
	module, _, found := strings.Cut(eventType, ".")
	if !found {
		module = "unknown"
	}
	m.published.WithLabelValues(module, eventType).Inc()
	if eventType == lending.EventTypeLiquidated {
		m.liquidations.Inc()
	}
}
