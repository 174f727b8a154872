package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ChangeEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_change_events_total",
			Help: "Total number of changefeed events applied to the mirror (count)",
		},
		[]string{"type", "outcome"},
	)

	DecodeFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mirror_decode_failures_total",
			Help: "Total number of changefeed payloads that matched no known event shape (count)",
		},
	)

	ResyncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_resyncs_total",
			Help: "Total number of full snapshot fetches from the remote store (count)",
		},
		[]string{"trigger", "status"},
	)

	ResyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mirror_resync_duration_ms",
			Help:    "Duration of full snapshot fetches in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)

	MirrorRules = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mirror_rules",
			Help: "Number of rules currently held in the mirror, by owner and partition (count)",
		},
		[]string{"owner", "partition"},
	)

	MirrorSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mirror_sessions_active",
			Help: "Number of live per-owner mirror sessions (count)",
		},
	)

	LifecycleOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_lifecycle_operations_total",
			Help: "Total number of rule lifecycle operations (count)",
		},
		[]string{"operation", "status"},
	)

	ConfirmationRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_confirmation_rejections_total",
			Help: "Total number of destructive operations rejected by the typed-name guard (count)",
		},
		[]string{"operation"},
	)

	ConditionValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "condition_validations_total",
			Help: "Total number of condition expression validations (count)",
		},
		[]string{"result"},
	)

	FeedSubscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "changefeed_subscriptions_active",
			Help: "Number of active per-owner changefeed subscriptions (count)",
		},
	)

	DedupEnvelopesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "changefeed_dedup_envelopes_total",
			Help: "Total number of changefeed envelopes checked against the dedup cache (count)",
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	KafkaReadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_read_duration_ms",
			Help:    "Duration of reading messages from Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)

	DatabaseConnectionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections (count)",
		},
		[]string{"service", "database"},
	)
)

func RegisterMirrorMetrics() {
	prometheus.MustRegister(ChangeEventsTotal)
	prometheus.MustRegister(DecodeFailuresTotal)
	prometheus.MustRegister(ResyncsTotal)
	prometheus.MustRegister(ResyncDuration)
	prometheus.MustRegister(MirrorRules)
	prometheus.MustRegister(MirrorSessionsActive)
	prometheus.MustRegister(LifecycleOperationsTotal)
	prometheus.MustRegister(ConfirmationRejectionsTotal)
	prometheus.MustRegister(ConditionValidationsTotal)
}

func RegisterFeedMetrics() {
	prometheus.MustRegister(FeedSubscriptionsActive)
	prometheus.MustRegister(DedupEnvelopesTotal)
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaConsumerLag)
	prometheus.MustRegister(KafkaReadDuration)
	prometheus.MustRegister(KafkaWriteDuration)
	prometheus.MustRegister(FallbackUsageTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterAPIMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
	prometheus.MustRegister(DatabaseConnectionsActive)
}

func IncChangeEvent(eventType, outcome string) {
	ChangeEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func IncResync(trigger, status string) {
	ResyncsTotal.WithLabelValues(trigger, status).Inc()
}

func ObserveResyncDuration(duration time.Duration) {
	ResyncDuration.Observe(float64(duration.Milliseconds()))
}

func SetMirrorRules(owner, partition string, count int) {
	MirrorRules.WithLabelValues(owner, partition).Set(float64(count))
}

func DropMirrorRules(owner string) {
	MirrorRules.DeletePartialMatch(prometheus.Labels{"owner": owner})
}

func IncLifecycleOperation(operation, status string) {
	LifecycleOperationsTotal.WithLabelValues(operation, status).Inc()
}

func IncConfirmationRejection(operation string) {
	ConfirmationRejectionsTotal.WithLabelValues(operation).Inc()
}

func IncConditionValidation(result string) {
	ConditionValidationsTotal.WithLabelValues(result).Inc()
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, fmt.Sprintf("%d", partition)).Set(float64(lag))
}

func ObserveKafkaReadDuration(service, topic string, duration time.Duration) {
	KafkaReadDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}

func SetDatabaseConnectionsActive(service, database string, count int) {
	DatabaseConnectionsActive.WithLabelValues(service, database).Set(float64(count))
}
