package outbox

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"example.com/fitstreak/internal/domain"
)

func retriesObserved(t *testing.T, eventType string) (uint64, float64) {
	t.Helper()
	var m dto.Metric
	require.NoError(t, dlqRetriesHistogram.WithLabelValues(eventType).(prometheus.Metric).Write(&m))
	return m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum()
}

func TestRecordDLQOutcomeLabelsByEventType(t *testing.T) {
	entry := dlqEntry{EventType: domain.EventActivityMarked, Topic: "activity_marked", RetryCount: 3}
	requeued := dlqEntriesCounter.WithLabelValues(domain.EventActivityMarked, string(outcomeRequeued))
	retried := dlqEntriesCounter.WithLabelValues(domain.EventActivityMarked, string(outcomeRetryScheduled))
	beforeRequeued, beforeRetried := testutil.ToFloat64(requeued), testutil.ToFloat64(retried)
	beforeCount, beforeSum := retriesObserved(t, domain.EventActivityMarked)

	recordDLQOutcome(entry, outcomeRetryScheduled)
	require.Equal(t, beforeRetried+1, testutil.ToFloat64(retried))
	count, _ := retriesObserved(t, domain.EventActivityMarked)
	require.Equal(t, beforeCount, count)

	recordDLQOutcome(entry, outcomeRequeued)
	require.Equal(t, beforeRequeued+1, testutil.ToFloat64(requeued))
	count, sum := retriesObserved(t, domain.EventActivityMarked)
	require.Equal(t, beforeCount+1, count)
	require.Equal(t, beforeSum+3, sum)
}

func TestSetBacklogZeroesDrainedEventTypes(t *testing.T) {
	setBacklog(map[string]int{domain.EventStreakUpdated: 4, domain.EventActivityMarked: 1})
	require.Equal(t, 4.0, testutil.ToFloat64(dlqBacklogGauge.WithLabelValues(domain.EventStreakUpdated)))

	setBacklog(map[string]int{domain.EventActivityMarked: 2})
	require.Zero(t, testutil.ToFloat64(dlqBacklogGauge.WithLabelValues(domain.EventStreakUpdated)))
	require.Equal(t, 2.0, testutil.ToFloat64(dlqBacklogGauge.WithLabelValues(domain.EventActivityMarked)))
}
