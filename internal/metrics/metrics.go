package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "waitlist"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Applied booking state transitions.",
		},
		[]string{"from", "to"},
	)

	conflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "Rejected booking transitions by operation.",
		},
		[]string{"operation"},
	)

	smsAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sms_attempts_total",
			Help:      "SMS delivery attempts by template and outcome.",
		},
		[]string{"template", "outcome"},
	)

	fanoutEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_events_total",
			Help:      "Fan-out events by direction (local, upstream, remote, echo, upstream_error).",
		},
		[]string{"direction"},
	)

	connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dashboard_connections",
			Help:      "Live dashboard connections on this instance.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, transitions, conflicts, smsAttempts, fanoutEvents, connections)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncTransition(from, to string) {
	transitions.WithLabelValues(from, to).Inc()
}

func IncConflict(operation string) {
	conflicts.WithLabelValues(operation).Inc()
}

func IncSMSAttempt(template, outcome string) {
	smsAttempts.WithLabelValues(template, outcome).Inc()
}

func IncFanOut(direction string) {
	fanoutEvents.WithLabelValues(direction).Inc()
}

func AddConnections(delta int) {
	connections.Add(float64(delta))
}
