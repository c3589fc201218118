package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Protocol Metrics
	ProtocolRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkhub_protocol_requests_total",
			Help: "Total number of PUSH protocol requests by endpoint and registration state",
		},
		[]string{"endpoint", "registered"},
	)

	ProtocolRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zkhub_protocol_request_duration_seconds",
			Help:    "Duration of PUSH protocol requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// API Metrics
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkhub_api_requests_total",
			Help: "Operator API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zkhub_api_request_duration_seconds",
			Help:    "Duration of operator API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Ingestion Metrics
	IngestedLines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkhub_ingested_lines_total",
			Help: "Uploaded log lines by table and outcome",
		},
		[]string{"table", "outcome"}, // "stored", "duplicate", "rejected"
	)

	// Command Queue Metrics
	CommandsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkhub_commands_enqueued_total",
			Help: "Commands queued by origin",
		},
		[]string{"origin"}, // "api", "scheduler", "auto_info"
	)

	CommandsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zkhub_commands_delivered_total",
			Help: "Command lines handed to polling devices",
		},
	)

	CommandResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkhub_command_results_total",
			Help: "Command result callbacks by outcome",
		},
		[]string{"outcome"}, // "completed", "unmatched"
	)

	// Forwarding Metrics
	ForwardAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkhub_forward_attempts_total",
			Help: "Webhook delivery attempts by result",
		},
		[]string{"result"}, // "success", "http_error", "network_error", "rejected"
	)

	ForwardDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zkhub_forward_duration_seconds",
			Help:    "Duration of a single webhook delivery attempt",
			Buckets: prometheus.DefBuckets,
		},
	)

	ForwardOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkhub_forward_outcomes_total",
			Help: "Final outcome of forwarding an event",
		},
		[]string{"outcome"}, // "forwarded", "failed", "skipped"
	)

	ForwardQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zkhub_forward_queue_depth",
			Help: "Events waiting in the forwarding queue",
		},
	)

	ForwardQueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zkhub_forward_queue_dropped_total",
			Help: "Events left for the retry sweep because the queue was full",
		},
	)

	// Scheduler Metrics
	SchedulerTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkhub_scheduler_ticks_total",
			Help: "Scheduler ticks by outcome",
		},
		[]string{"outcome"}, // "ran", "skipped_overlap", "skipped_lock", "error"
	)

	ScheduledRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkhub_scheduled_runs_total",
			Help: "Due scheduled tasks by outcome",
		},
		[]string{"outcome"}, // "enqueued", "encode_failed", "lost_race", "error"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zkhub_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkhub_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// MQTT Metrics
	MQTTPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkhub_mqtt_published_total",
			Help: "MQTT publications by topic kind and result",
		},
		[]string{"kind", "result"},
	)
)

// RecordProtocolRequest records one protocol exchange.
func RecordProtocolRequest(endpoint string, registered bool, duration time.Duration) {
	label := "false"
	if registered {
		label = "true"
	}
	ProtocolRequests.WithLabelValues(endpoint, label).Inc()
	ProtocolRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordForwardAttempt records one webhook attempt.
func RecordForwardAttempt(result string, duration time.Duration) {
	ForwardAttempts.WithLabelValues(result).Inc()
	ForwardDuration.Observe(duration.Seconds())
}

// RecordAPIRequest records one operator API request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
