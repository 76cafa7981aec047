package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSONCarriesService(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "streak-api", "debug", "json")

	logger.Debug("hello", "group_id", "g1")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "hello", record["msg"])
	require.Equal(t, "streak-api", record["service"])
	require.Equal(t, "g1", record["group_id"])
}

func TestNewLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "", "warn", "text")

	logger.Info("quiet")
	require.Zero(t, buf.Len())

	logger.Warn("loud")
	require.Contains(t, buf.String(), "loud")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestRecordMarkActiveIncrementsOutcome(t *testing.T) {
	before := testutil.ToFloat64(markActiveCounter.WithLabelValues("ok"))
	RecordMarkActive("ok")
	require.Equal(t, before+1, testutil.ToFloat64(markActiveCounter.WithLabelValues("ok")))
}

func TestRecordRecomputeIgnoresEmptyPath(t *testing.T) {
	before := testutil.CollectAndCount(recomputeCounter)
	RecordRecompute("")
	require.Equal(t, before, testutil.CollectAndCount(recomputeCounter))

	RecordRecompute("extend")
	require.GreaterOrEqual(t, testutil.ToFloat64(recomputeCounter.WithLabelValues("extend")), 1.0)
}

func TestRecordEntryPersistedSetsWatermark(t *testing.T) {
	ts := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	RecordEntryPersisted(ts)
	require.Equal(t, float64(ts.Unix()), testutil.ToFloat64(entryPersistGauge))

	RecordEntryPersisted(time.Time{})
	require.Equal(t, float64(ts.Unix()), testutil.ToFloat64(entryPersistGauge))
}

func TestObserveLeaderboardRecordsSample(t *testing.T) {
	read := func() *dto.Histogram {
		var metric dto.Metric
		require.NoError(t, leaderboardDuration.Write(&metric))
		return metric.GetHistogram()
	}

	before := read().GetSampleCount()
	ObserveLeaderboard(20 * time.Millisecond)
	after := read()
	require.Equal(t, before+1, after.GetSampleCount())
	require.GreaterOrEqual(t, after.GetSampleSum(), 0.02)
}
