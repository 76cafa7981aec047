package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streak_service",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Streak events published to Kafka, by event type.",
	}, []string{"event_type"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streak_service",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Streak events whose delivery attempt failed, by event type.",
	}, []string{"event_type"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "streak_service",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent claiming, delivering, and settling outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streak_service",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Streak events moved to outbox_dlq, by topic and event type.",
	}, []string{"topic", "event_type"})

	parkedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streak_service",
		Subsystem: "outbox",
		Name:      "events_parked_total",
		Help:      "Streak events parked after exhausting in-place delivery attempts, by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration, dlqCounter, parkedCounter)
}

// RecordParked counts events a queue stopped retrying.
func RecordParked(eventType string) {
	parkedCounter.WithLabelValues(eventType).Inc()
}
