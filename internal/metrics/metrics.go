// Package metrics exposes Prometheus instrumentation for the event
// pipeline: publishes, consumes and realtime push attempts.
package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsPublished counts events successfully written to the bus, by topic.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ripple",
			Subsystem: "bus",
			Name:      "events_published_total",
			Help:      "Total number of events published to the bus by topic",
		},
		[]string{"topic"},
	)

	// PublishFailures counts failed publish attempts, by topic. Fire-and-forget
	// call sites increment this instead of failing the originating request.
	PublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ripple",
			Subsystem: "bus",
			Name:      "publish_failures_total",
			Help:      "Total number of failed event publish attempts by topic",
		},
		[]string{"topic"},
	)

	// EventsConsumed counts consumed events by topic and processing result
	// (processed, discarded, failed).
	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ripple",
			Subsystem: "consumer",
			Name:      "events_consumed_total",
			Help:      "Total number of events consumed by topic and result",
		},
		[]string{"topic", "result"},
	)

	// Pushes counts realtime push attempts by result (delivered, no_subscriber,
	// dropped).
	Pushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ripple",
			Subsystem: "registry",
			Name:      "pushes_total",
			Help:      "Total number of realtime push attempts by result",
		},
		[]string{"result"},
	)
)

// RegisterRoutes wires the Prometheus scrape endpoint.
func RegisterRoutes(r *mux.Router) {
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}
