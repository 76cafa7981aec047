package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// dlqOutcome is what one DLQ pass did with an entry.
type dlqOutcome string

const (
	outcomeRequeued       dlqOutcome = "requeued"
	outcomeRetryScheduled dlqOutcome = "retry_scheduled"
	outcomeQuarantined    dlqOutcome = "quarantined"
)

var (
	dlqEntriesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streak_service",
		Subsystem: "dlq",
		Name:      "entries_total",
		Help:      "DLQ entries handled, by streak event type and outcome.",
	}, []string{"event_type", "outcome"})

	dlqRetriesHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streak_service",
		Subsystem: "dlq",
		Name:      "retries_before_exit",
		Help:      "Retries an entry went through before it was re-queued or quarantined.",
		Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
	}, []string{"event_type"})

	dlqBacklogGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streak_service",
		Subsystem: "dlq",
		Name:      "queued_messages",
		Help:      "Entries waiting in the DLQ per streak event type. Quarantined rows are excluded.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(dlqEntriesCounter, dlqRetriesHistogram, dlqBacklogGauge)
}

func recordDLQOutcome(entry dlqEntry, outcome dlqOutcome) {
	dlqEntriesCounter.WithLabelValues(entry.EventType, string(outcome)).Inc()
	if outcome != outcomeRetryScheduled {
		dlqRetriesHistogram.WithLabelValues(entry.EventType).Observe(float64(entry.RetryCount))
	}
}

func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) {
	rows, err := pool.Query(ctx, `SELECT event_type, COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL GROUP BY event_type`)
	if err != nil {
		return
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var eventType string
		var n int
		if err := rows.Scan(&eventType, &n); err != nil {
			return
		}
		counts[eventType] = n
	}
	if rows.Err() != nil {
		return
	}
	setBacklog(counts)
}

// setBacklog replaces every series so drained event types drop to zero.
func setBacklog(counts map[string]int) {
	dlqBacklogGauge.Reset()
	for _, eventType := range knownEventTypes {
		dlqBacklogGauge.WithLabelValues(eventType).Set(0)
	}
	for eventType, n := range counts {
		dlqBacklogGauge.WithLabelValues(eventType).Set(float64(n))
	}
}
