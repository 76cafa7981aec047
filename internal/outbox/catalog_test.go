package outbox

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/fitstreak/internal/domain"
)

func TestNewRecordRoutesEvents(t *testing.T) {
	record, err := NewRecord(updatedEvent("g1", "alice", 4))
	require.NoError(t, err)
	require.Equal(t, "streak_updated", record.Topic)
	require.Equal(t, "streak_updated-value", record.SchemaSubject)
	require.Equal(t, "g1:alice", record.PartitionKey)
	require.Equal(t, "g1", record.GroupID)
	require.Equal(t, "g1:alice:"+domain.EventStreakUpdated+":4", record.DedupeKey)
	require.JSONEq(t, `{"user_id":"alice","group_id":"g1","current_streak":2,"longest_streak":2,"version":4,"path":"","occurred_at":"0001-01-01T00:00:00Z"}`, string(record.Payload))
}

func TestNewRecordRejectsUnknownType(t *testing.T) {
	_, err := NewRecord(domain.Event{Type: "nope"})
	require.Error(t, err)
}

func TestTopicsListsEveryRoute(t *testing.T) {
	require.ElementsMatch(t, []string{"activity_marked", "streak_updated"}, Topics())
}
