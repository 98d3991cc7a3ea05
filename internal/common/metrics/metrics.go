package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingress metrics

	// IngressRequestsTotal tracks requests received by the Ingress API
	IngressRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "databridge",
			Subsystem: "ingress",
			Name:      "requests_total",
			Help:      "Total requests accepted by the Ingress HTTP API",
		},
		[]string{"status"}, // accepted, deduped, rejected, error
	)

	// IngressRequestDuration tracks Ingress API request handling duration
	IngressRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "databridge",
			Subsystem: "ingress",
			Name:      "request_duration_seconds",
			Help:      "Time to handle an Ingress API request",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	// Router metrics

	// RouterRowsProcessed tracks Inbox rows the Router Loop has finished processing
	RouterRowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "databridge",
			Subsystem: "router",
			Name:      "rows_processed_total",
			Help:      "Total Inbox rows processed by the Router Loop",
		},
		[]string{"result"}, // done, released
	)

	// RouterCommandsDispatched tracks commands dispatched per channel
	RouterCommandsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "databridge",
			Subsystem: "router",
			Name:      "commands_dispatched_total",
			Help:      "Total commands dispatched to a device channel",
		},
		[]string{"channel"},
	)

	// RouterParseErrors tracks malformed sub-commands encountered while parsing
	RouterParseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "databridge",
			Subsystem: "router",
			Name:      "parse_errors_total",
			Help:      "Total sub-commands that failed to parse",
		},
	)

	// RouterInboxPending tracks the current Inbox queue depth
	RouterInboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "databridge",
			Subsystem: "router",
			Name:      "inbox_pending",
			Help:      "Number of Inbox rows awaiting processing",
		},
	)

	// Sender metrics

	// SenderJobsDelivered tracks Outbox delivery attempts by outcome
	SenderJobsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "databridge",
			Subsystem: "sender",
			Name:      "jobs_delivered_total",
			Help:      "Total Outbox jobs delivered, by outcome",
		},
		[]string{"outcome"}, // done, rescheduled, failed_permanent
	)

	// SenderDeliveryDuration tracks peer delivery call duration
	SenderDeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "databridge",
			Subsystem: "sender",
			Name:      "delivery_duration_seconds",
			Help:      "Time to deliver one Outbox job to the peer",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// SenderCircuitBreakerState tracks the sender's circuit breaker state
	// 0 = closed (healthy), 1 = open (tripped), 2 = half-open (testing)
	SenderCircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "databridge",
			Subsystem: "sender",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)

	// SenderOutboxPending tracks the current Outbox queue depth
	SenderOutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "databridge",
			Subsystem: "sender",
			Name:      "outbox_pending",
			Help:      "Number of Outbox jobs awaiting delivery",
		},
	)

	// Watchdog metrics

	// WatchdogState tracks the peer Watchdog's current state
	// 0 = unknown, 1 = up, 2 = down
	WatchdogState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "databridge",
			Subsystem: "watchdog",
			Name:      "peer_state",
			Help:      "Peer watchdog state (0=unknown, 1=up, 2=down)",
		},
	)

	// WatchdogConsecutiveFailures tracks the current failure streak
	WatchdogConsecutiveFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "databridge",
			Subsystem: "watchdog",
			Name:      "consecutive_failures",
			Help:      "Consecutive probe failures since the last success",
		},
	)

	// Store metrics

	// StoreResetStuckRows tracks rows recovered from in-flight state at startup
	StoreResetStuckRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "databridge",
			Subsystem: "store",
			Name:      "reset_stuck_rows_total",
			Help:      "Total rows reverted from in-flight to pending at startup",
		},
		[]string{"table"}, // inbox, outbox
	)
)

// CircuitBreakerState constants, matching SenderCircuitBreakerState's gauge values.
const (
	CircuitBreakerClosed   = 0
	CircuitBreakerOpen     = 1
	CircuitBreakerHalfOpen = 2
)
