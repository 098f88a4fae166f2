// Package metrics registers the prometheus collectors exposed on
// /metrics. Collectors live here so registry and fanout do not need their
// own prometheus plumbing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connections tracks live registered connections.
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatrelay_connections",
		Help: "Number of live client connections.",
	})

	// Subscriptions tracks active group subscriptions across connections.
	Subscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatrelay_subscriptions",
		Help: "Number of active group subscriptions.",
	})

	// DispatchedEvents counts events accepted by the dispatcher, by type.
	DispatchedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_dispatched_events_total",
		Help: "Events accepted for fan-out, by event type.",
	}, []string{"type"})

	// DeliveryFailures counts per-connection delivery failures. Each
	// failure also unregisters the connection.
	DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_delivery_failures_total",
		Help: "Per-connection delivery failures.",
	})

	// DroppedEvents counts events rejected because the dispatch queue was
	// full.
	DroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_dropped_events_total",
		Help: "Events dropped due to a full dispatch queue.",
	})
)
