package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the event synchronization subsystem. Publish failures after a
// local commit are invisible to callers, so these counters are the only place
// operators can see silent message loss, duplicate suppression, dead-lettering
// and reconnect churn.
var (
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "erp_events_published_total",
		Help: "Domain events handed to the broker, by event type.",
	}, []string{"event_type"})

	PublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "erp_events_publish_failures_total",
		Help: "Publish attempts that failed after the local commit succeeded.",
	}, []string{"event_type"})

	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "erp_events_received_total",
		Help: "Messages delivered to a consumer, by queue.",
	}, []string{"queue"})

	DuplicatesSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "erp_events_duplicates_suppressed_total",
		Help: "Redeliveries acknowledged without reapplying, by queue.",
	}, []string{"queue"})

	EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "erp_events_applied_total",
		Help: "Events applied to local state, by queue.",
	}, []string{"queue"})

	EventsDeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "erp_events_dead_lettered_total",
		Help: "Messages routed to the dead-letter queue, by queue.",
	}, []string{"queue"})

	EventsRequeued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "erp_events_requeued_total",
		Help: "Messages negatively acknowledged for broker redelivery, by queue.",
	}, []string{"queue"})

	ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "erp_broker_reconnect_attempts_total",
		Help: "Dial attempts against the broker.",
	})

	ReconnectFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "erp_broker_reconnect_failures_total",
		Help: "Dial attempts that failed.",
	})

	ReconnectSuccesses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "erp_broker_reconnect_successes_total",
		Help: "Dial attempts that established a connection.",
	})

	ConnectionLosses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "erp_broker_connection_losses_total",
		Help: "Broker-initiated connection closures observed.",
	})
)
