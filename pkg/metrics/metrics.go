package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EvaluationRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluation_runs_total",
			Help: "Total number of batch evaluation runs (count)",
		},
		[]string{"status"},
	)

	EvaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evaluation_duration_ms",
			Help:    "Duration of batch evaluation runs in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"status"},
	)

	EvaluationRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "evaluation_records_total",
			Help: "Total number of records evaluated (count)",
		},
	)

	ViolationsFoundTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "violations_found_total",
			Help: "Total number of violations found across evaluation runs (count)",
		},
		[]string{"severity", "category"},
	)

	MalformedRulesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "malformed_rules_total",
			Help: "Total number of rules skipped as malformed during evaluation (count)",
		},
		[]string{"rule_id"},
	)

	EffectiveRulesResolved = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "effective_rules_resolved",
			Help:    "Size of the resolved effective rule set per evaluation (count)",
			Buckets: []float64{5, 10, 15, 20, 30, 50, 75, 100},
		},
	)

	RuleWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_writes_total",
			Help: "Total number of override and custom-rule write operations (count)",
		},
		[]string{"entity", "action", "status"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
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

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
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

func RegisterEvaluationMetrics() {
	prometheus.MustRegister(EvaluationRunsTotal)
	prometheus.MustRegister(EvaluationDuration)
	prometheus.MustRegister(EvaluationRecordsTotal)
	prometheus.MustRegister(ViolationsFoundTotal)
	prometheus.MustRegister(MalformedRulesTotal)
	prometheus.MustRegister(EffectiveRulesResolved)
}

func RegisterManagementMetrics() {
	prometheus.MustRegister(RuleWritesTotal)
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
	prometheus.MustRegister(DatabaseConnectionsActive)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func ObserveEvaluationDuration(duration time.Duration, status string) {
	EvaluationDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func IncViolationFound(severity, category string) {
	ViolationsFoundTotal.WithLabelValues(severity, category).Inc()
}

func IncRuleWrite(entity, action, status string) {
	RuleWritesTotal.WithLabelValues(entity, action, status).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
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
