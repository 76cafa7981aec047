package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/fitstreak/internal/domain"
	"example.com/fitstreak/internal/events"
)

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: append([]kafka.Message(nil), msgs...)})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []string
}

func (s *stubRegistry) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, subject)
	if s.err != nil {
		return 0, s.err
	}
	return s.id, nil
}

func messageFor(t *testing.T, id int64, event domain.Event) Message {
	t.Helper()
	record, err := NewRecord(event)
	require.NoError(t, err)
	return Message{
		EventID:       id,
		GroupID:       record.GroupID,
		AggregateType: record.AggregateType,
		AggregateID:   record.AggregateID,
		EventType:     record.EventType,
		Topic:         record.Topic,
		SchemaSubject: record.SchemaSubject,
		PartitionKey:  record.PartitionKey,
		Payload:       record.Payload,
	}
}

func markedEvent(groupID, userID string, version int64) domain.Event {
	return domain.Event{
		Type: domain.EventActivityMarked, GroupID: groupID, UserID: userID,
		AggregateID: groupID + ":" + userID, Version: version,
		Payload: events.ActivityMarked{UserID: userID, GroupID: groupID, Date: "2024-01-02", ActivityType: "run"},
	}
}

func updatedEvent(groupID, userID string, version int64) domain.Event {
	return domain.Event{
		Type: domain.EventStreakUpdated, GroupID: groupID, UserID: userID,
		AggregateID: groupID + ":" + userID, Version: version,
		Payload: events.StreakUpdated{UserID: userID, GroupID: groupID, CurrentStreak: 2, LongestStreak: 2, Version: version},
	}
}

func TestDeliverGroupsByTopicWithHeaders(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(nil, producer, registry, nil, time.Millisecond, 10)
	fixed := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	dispatcher.now = func() time.Time { return fixed }

	messages := []Message{
		messageFor(t, 1, markedEvent("g1", "alice", 1)),
		messageFor(t, 2, updatedEvent("g1", "alice", 1)),
		messageFor(t, 3, markedEvent("g1", "bob", 1)),
	}
	require.NoError(t, dispatcher.deliver(context.Background(), messages))

	require.Len(t, producer.writes, 2)
	require.Equal(t, "activity_marked", producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 2)
	require.Equal(t, "streak_updated", producer.writes[1].topic)

	record := producer.writes[1].messages[0]
	require.Equal(t, "g1:alice", string(record.Key))
	require.Equal(t, fixed, record.Time)
	headers := map[string]string{}
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, domain.EventStreakUpdated, headers[HeaderEventType])
	require.Equal(t, "g1", headers[HeaderGroupID])
	require.Equal(t, "streak_updated-value", headers[HeaderSchemaSubject])

	schemaID, payload, err := DecodeWireFormat(record.Value)
	require.NoError(t, err)
	require.Equal(t, 42, schemaID)
	var decoded events.StreakUpdated
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, 2, decoded.CurrentStreak)
}

func TestDeliverCachesSchemaIDs(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 7}
	dispatcher := NewDispatcher(nil, producer, registry, nil, time.Millisecond, 10)

	batch := []Message{messageFor(t, 1, markedEvent("g1", "alice", 1)), messageFor(t, 2, markedEvent("g2", "bob", 1))}
	require.NoError(t, dispatcher.deliver(context.Background(), batch))
	require.NoError(t, dispatcher.deliver(context.Background(), batch))
	require.Equal(t, []string{"activity_marked-value"}, registry.calls)
}

func TestDeliverFailsOnUnknownEventType(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 1}
	dispatcher := NewDispatcher(nil, producer, registry, nil, time.Millisecond, 10)

	msg := messageFor(t, 1, markedEvent("g1", "alice", 1))
	msg.EventType = "streak.exploded"
	err := dispatcher.deliver(context.Background(), []Message{msg})
	require.ErrorContains(t, err, "no schema metadata for event_type=streak.exploded")
	require.Empty(t, producer.writes)
	require.Empty(t, registry.calls)
}

func TestDeliverSurfacesProducerAndRegistryErrors(t *testing.T) {
	msg := messageFor(t, 1, updatedEvent("g1", "alice", 3))

	failing := NewDispatcher(nil, &stubProducer{err: errors.New("broker down")}, &stubRegistry{id: 1}, nil, time.Millisecond, 10)
	require.ErrorContains(t, failing.deliver(context.Background(), []Message{msg}), "broker down")

	noRegistry := NewDispatcher(nil, &stubProducer{}, &stubRegistry{err: errors.New("registry down")}, nil, time.Millisecond, 10)
	require.ErrorContains(t, noRegistry.deliver(context.Background(), []Message{msg}), "registry down")
}

func TestDecodeWireFormatRejectsMalformedFrames(t *testing.T) {
	_, _, err := DecodeWireFormat([]byte{0, 1})
	require.Error(t, err)
	_, _, err = DecodeWireFormat([]byte{9, 0, 0, 0, 1, '{', '}'})
	require.Error(t, err)
}

func TestBackoffDelayIsCapped(t *testing.T) {
	manager := NewDLQManager(nil, 0, time.Minute, nil)
	require.Equal(t, 5, manager.maxRetries)
	require.Equal(t, time.Minute, manager.backoffDelay(1))
	require.Equal(t, 4*time.Minute, manager.backoffDelay(3))
	require.Equal(t, time.Hour, manager.backoffDelay(10))
	require.Equal(t, time.Hour, manager.backoffDelay(64))
}

type fakeQueue struct {
	pending   []Message
	published []int64
	failed    []int64
	reason    string
}

func (q *fakeQueue) Claim(ctx context.Context, limit int) ([]Message, error) {
	n := min(limit, len(q.pending))
	batch := q.pending[:n]
	q.pending = q.pending[n:]
	return batch, nil
}

func (q *fakeQueue) MarkPublished(ctx context.Context, messages []Message) error {
	q.published = append(q.published, eventIDs(messages)...)
	return nil
}

func (q *fakeQueue) Fail(ctx context.Context, messages []Message, reason string) error {
	q.failed = append(q.failed, eventIDs(messages)...)
	q.reason = reason
	return nil
}

func (q *fakeQueue) Pending(ctx context.Context) (int, error) { return len(q.pending), nil }

func TestDispatchOnceSettlesClaimedBatch(t *testing.T) {
	queue := &fakeQueue{pending: []Message{
		messageFor(t, 1, markedEvent("g1", "alice", 1)),
		messageFor(t, 2, updatedEvent("g1", "alice", 1)),
		messageFor(t, 3, markedEvent("g1", "bob", 1)),
	}}
	before := testutil.ToFloat64(deliveredCounter.WithLabelValues(domain.EventStreakUpdated))

	dispatcher := NewDispatcher(queue, &stubProducer{}, &stubRegistry{id: 5}, nil, time.Millisecond, 2)
	require.NoError(t, dispatcher.DispatchOnce(context.Background()))
	require.Equal(t, []int64{1, 2}, queue.published)
	require.NoError(t, dispatcher.DispatchOnce(context.Background()))
	require.Equal(t, []int64{1, 2, 3}, queue.published)
	require.Empty(t, queue.failed)
	require.Equal(t, before+1, testutil.ToFloat64(deliveredCounter.WithLabelValues(domain.EventStreakUpdated)))

	require.NoError(t, dispatcher.DispatchOnce(context.Background()))
	require.Equal(t, []int64{1, 2, 3}, queue.published)
}

func TestDispatchOnceHandsFailedBatchToQueue(t *testing.T) {
	queue := &fakeQueue{pending: []Message{messageFor(t, 7, updatedEvent("g1", "alice", 2))}}
	before := testutil.ToFloat64(failedCounter.WithLabelValues(domain.EventStreakUpdated))

	dispatcher := NewDispatcher(queue, &stubProducer{err: errors.New("broker down")}, &stubRegistry{id: 5}, nil, time.Millisecond, 10)
	require.NoError(t, dispatcher.DispatchOnce(context.Background()))
	require.Equal(t, []int64{7}, queue.failed)
	require.Empty(t, queue.published)
	require.Contains(t, queue.reason, "broker down")
	require.Equal(t, before+1, testutil.ToFloat64(failedCounter.WithLabelValues(domain.EventStreakUpdated)))
}
