package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "streak_service"

var (
	markActiveCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "mark_active_total",
		Help:      "Mark-active requests by outcome.",
	}, []string{"outcome"})
	recomputeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "streaks",
		Name:      "recompute_total",
		Help:      "Streak recomputations by algorithm path.",
	}, []string{"path"})
	writeRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "write_retries_total",
		Help:      "Ledger write attempts that were retried, by reason.",
	}, []string{"reason"})
	entryPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "persistence",
		Name:      "last_entry_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity entry committed.",
	})
	leaderboardDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "leaderboard",
		Name:      "build_duration_seconds",
		Help:      "Time spent loading and ranking a group leaderboard.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(markActiveCounter, recomputeCounter, writeRetryCounter, entryPersistGauge, leaderboardDuration)
}

// RecordMarkActive counts a mark-active request outcome.
func RecordMarkActive(outcome string) {
	markActiveCounter.WithLabelValues(outcome).Inc()
}

// RecordRecompute counts which path produced a new streak state.
func RecordRecompute(path string) {
	if path == "" {
		return
	}
	recomputeCounter.WithLabelValues(path).Inc()
}

// RecordWriteRetry counts a retried write attempt.
func RecordWriteRetry(reason string) {
	writeRetryCounter.WithLabelValues(reason).Inc()
}

// RecordEntryPersisted updates the persistence watermark gauge.
func RecordEntryPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	entryPersistGauge.Set(float64(ts.Unix()))
}

// ObserveLeaderboard records how long a leaderboard took to build.
func ObserveLeaderboard(d time.Duration) {
	leaderboardDuration.Observe(d.Seconds())
}
