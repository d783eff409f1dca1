package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	transfers *prometheus.CounterVec
	emitted   *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking custody transfers and emitted
// ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakeledger",
				Subsystem: "events",
				Name:      "transfers_total",
				Help:      "Count of custody transfers segmented by unit.",
			}, []string{"unit"}),
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakeledger",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of ledger events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.transfers, eventRegistry.emitted)
	})
	return eventRegistry
}

// RecordTransfer increments the transfer counter for the supplied unit.
func (m *eventMetrics) RecordTransfer(unit string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToUpper(unit))
	if normalized == "" {
		normalized = "UNKNOWN"
	}
	m.transfers.WithLabelValues(normalized).Inc()
}

// RecordEvent increments the emitted counter for eventType.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType = strings.TrimSpace(eventType); eventType == "" {
		eventType = "unknown"
	}
	m.emitted.WithLabelValues(eventType).Inc()
}
