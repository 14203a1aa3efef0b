package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_events_dispatched_total",
			Help: "Total number of events passed to the event bus (count)",
		},
		[]string{"type", "result"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courier_dispatch_duration_ms",
			Help:    "Time from dispatch to publish on the serial context in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"type"},
	)

	DeduplicateEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_dedup_events_total",
			Help: "Total number of dedup window admissions by outcome (count)",
		},
		[]string{"backend", "status"},
	)

	DedupProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courier_dedup_processing_duration_ms",
			Help:    "Dedup window admission duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"status"},
	)

	DedupCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_dedup_cache_size",
			Help: "Number of hashes held by the in-memory dedup window (count)",
		},
	)

	DebounceSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_debounce_submissions_total",
			Help: "Total number of debounce submissions by outcome (count)",
		},
		[]string{"category", "result"},
	)

	DebounceFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_debounce_fired_total",
			Help: "Total number of debounced actions fired (count)",
		},
		[]string{"category"},
	)

	DebouncePending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "courier_debounce_pending",
			Help: "Number of pending debounced actions (count)",
		},
		[]string{"category"},
	)

	ClassificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_classifications_total",
			Help: "Total number of raw objects classified by outcome (count)",
		},
		[]string{"kind", "result"},
	)

	DispatcherAwake = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "courier_dispatcher_awake",
			Help: "Whether a dispatcher holds its subscriptions (0 or 1)",
		},
		[]string{"dispatcher"},
	)

	LookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_lookups_total",
			Help: "Total number of entity lookups made while converting notifications (count)",
		},
		[]string{"dispatcher", "status"},
	)

	LookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courier_lookup_duration_ms",
			Help:    "Duration of entity lookups including retries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"dispatcher"},
	)

	SubscribersActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "courier_subscribers_active",
			Help: "Number of live event bus subscriptions (count)",
		},
		[]string{"feed"},
	)

	StreamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_streams_active",
			Help: "Number of attached transport streams (count)",
		},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
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

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
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

	LookupCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookup_cache_total",
			Help: "Message lookup cache results by outcome (count)",
		},
		[]string{"result"},
	)

	MessageQueueSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "message_queue_size",
			Help: "Current size of a serial task queue (count)",
		},
		[]string{"service"},
	)

	MessageQueueWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_queue_wait_duration_ms",
			Help:    "Duration tasks wait in a serial queue before running in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service"},
	)
)

func RegisterPipelineMetrics() {
	prometheus.MustRegister(EventsDispatchedTotal)
	prometheus.MustRegister(DispatchDuration)
	prometheus.MustRegister(DebounceSubmissionsTotal)
	prometheus.MustRegister(DebounceFiredTotal)
	prometheus.MustRegister(DebouncePending)
	prometheus.MustRegister(ClassificationsTotal)
	prometheus.MustRegister(DispatcherAwake)
	prometheus.MustRegister(LookupsTotal)
	prometheus.MustRegister(LookupDuration)
	prometheus.MustRegister(SubscribersActive)
	prometheus.MustRegister(MessageQueueSize)
	prometheus.MustRegister(MessageQueueWaitDuration)
}

func RegisterDedupMetrics() {
	prometheus.MustRegister(DeduplicateEventsTotal)
	prometheus.MustRegister(DedupProcessingDuration)
	prometheus.MustRegister(DedupCacheSize)
	prometheus.MustRegister(FallbackUsageTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaMessageSizeBytes)
	prometheus.MustRegister(KafkaConsumerLag)
	prometheus.MustRegister(KafkaReadDuration)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterTransportMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(StreamsActive)
}

func RegisterStoreMetrics() {
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
	prometheus.MustRegister(LookupCacheTotal)
}

func IncEventDispatched(eventType, result string) {
	EventsDispatchedTotal.WithLabelValues(eventType, result).Inc()
}

func ObserveDispatchDuration(eventType string, duration time.Duration) {
	DispatchDuration.WithLabelValues(eventType).Observe(float64(duration.Milliseconds()))
}

func IncDedup(backend, status string) {
	DeduplicateEventsTotal.WithLabelValues(backend, status).Inc()
}

func ObserveDedupDuration(duration time.Duration, status string) {
	DedupProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func SetDedupCacheSize(size int) {
	DedupCacheSize.Set(float64(size))
}

func IncDebounceSubmission(category, result string) {
	DebounceSubmissionsTotal.WithLabelValues(category, result).Inc()
}

func IncDebounceFired(category string) {
	DebounceFiredTotal.WithLabelValues(category).Inc()
}

func SetDebouncePending(category string, n int) {
	DebouncePending.WithLabelValues(category).Set(float64(n))
}

func IncClassification(kind, result string) {
	ClassificationsTotal.WithLabelValues(kind, result).Inc()
}

func SetDispatcherAwake(dispatcher string, awake bool) {
	v := 0.0
	if awake {
		v = 1
	}
	DispatcherAwake.WithLabelValues(dispatcher).Set(v)
}

func IncLookup(dispatcher, status string) {
	LookupsTotal.WithLabelValues(dispatcher, status).Inc()
}

func ObserveLookupDuration(dispatcher string, duration time.Duration) {
	LookupDuration.WithLabelValues(dispatcher).Observe(float64(duration.Milliseconds()))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
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

func SetMessageQueueSize(service string, size int) {
	MessageQueueSize.WithLabelValues(service).Set(float64(size))
}

func ObserveMessageQueueWaitDuration(service string, duration time.Duration) {
	MessageQueueWaitDuration.WithLabelValues(service).Observe(float64(duration.Milliseconds()))
}

func IncLookupCache(result string) {
	LookupCacheTotal.WithLabelValues(result).Inc()
}
