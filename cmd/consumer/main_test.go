package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fitstreak/internal/config"
)

func TestReaderConfigJoinsConsumerGroup(t *testing.T) {
	cfg := config.Config{KafkaBrokers: []string{"k1:9092", "k2:9092"}, ConsumerGroupID: "streak-event-log"}

	rc := readerConfig(cfg, "streak_updated")
	require.Equal(t, []string{"k1:9092", "k2:9092"}, rc.Brokers)
	require.Equal(t, "streak-event-log", rc.GroupID)
	require.Equal(t, "streak_updated", rc.Topic)
	require.Equal(t, time.Second, rc.CommitInterval)
	require.NoError(t, rc.Validate())
}
