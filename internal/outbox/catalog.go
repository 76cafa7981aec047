package outbox

import (
	"encoding/json"
	"fmt"

	"example.com/fitstreak/internal/domain"
)

// Route describes how an event type is published.
type Route struct {
	Topic         string
	SchemaSubject string
	Schema        string
}

var catalog = map[string]Route{
	domain.EventActivityMarked: {
		Topic:         "activity_marked",
		SchemaSubject: "activity_marked-value",
		Schema:        activityMarkedSchema,
	},
	domain.EventStreakUpdated: {
		Topic:         "streak_updated",
		SchemaSubject: "streak_updated-value",
		Schema:        streakUpdatedSchema,
	},
}

// RouteFor returns the publishing route of an event type.
func RouteFor(eventType string) (Route, error) {
	route, ok := catalog[eventType]
	if !ok {
		return Route{}, fmt.Errorf("unknown event type: %s", eventType)
	}
	return route, nil
}

var knownEventTypes = []string{domain.EventActivityMarked, domain.EventStreakUpdated}

// Topics lists every topic the service publishes to.
func Topics() []string {
	topics := make([]string, 0, len(knownEventTypes))
	for _, eventType := range knownEventTypes {
		topics = append(topics, catalog[eventType].Topic)
	}
	return topics
}

// Record is an event ready to be inserted into an outbox table.
type Record struct {
	GroupID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       []byte
	DedupeKey     string
}

// NewRecord serialises a domain event. Events of one pair share a partition key so
// consumers observe them in commit order.
func NewRecord(event domain.Event) (Record, error) {
	route, err := RouteFor(event.Type)
	if err != nil {
		return Record{}, err
	}
	body, err := json.Marshal(event.Payload)
	if err != nil {
		return Record{}, fmt.Errorf("encode %s payload: %w", event.Type, err)
	}
	return Record{
		GroupID:       event.GroupID,
		AggregateType: "streak",
		AggregateID:   event.AggregateID,
		EventType:     event.Type,
		Topic:         route.Topic,
		SchemaSubject: route.SchemaSubject,
		PartitionKey:  event.AggregateID,
		Payload:       body,
		DedupeKey:     fmt.Sprintf("%s:%s:%d", event.AggregateID, event.Type, event.Version),
	}, nil
}
