// README: Prometheus metrics for rides, payments, location ingestion, and HTTP.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "twende"

var (
	RideTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Ride state changes by event and target state"},
		[]string{"event", "to"},
	)
	RideConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "ride_conflicts_total", Help: "Ride writes rejected by the state/version check"})

	PaymentCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "payment_provider_calls_total", Help: "Payment provider calls by operation and outcome"},
		[]string{"op", "outcome"},
	)
	PaymentCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_provider_call_duration_seconds",
			Help:      "Payment provider call latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "payment_webhooks_total", Help: "Inbound payment webhooks by reconciliation outcome"},
		[]string{"outcome"},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "events_published_total", Help: "Kafka messages delivered or dropped, by topic"},
		[]string{"topic", "outcome"},
	)

	LocationSamplesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "location_samples_total", Help: "Accepted location samples"})
	PushNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "push_notifications_total", Help: "Ride messages pushed by outcome"},
		[]string{"outcome"},
	)
	ClientErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "client_errors_total", Help: "Error reports from the apps by log level"},
		[]string{"level"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
