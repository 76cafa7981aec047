package consumer

import (
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/fitstreak/internal/domain"
	"example.com/fitstreak/internal/events"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streak_service",
		Subsystem: "consumer",
		Name:      "messages_processed_total",
		Help:      "Number of Kafka messages successfully handled.",
	}, []string{"topic", "event_type"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streak_service",
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Number of handler errors per streak event type.",
	}, []string{"event_type"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streak_service",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Number of decode failures per topic.",
	}, []string{"topic"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streak_service",
		Subsystem: "consumer",
		Name:      "last_message_timestamp_seconds",
		Help:      "Unix timestamp of the most recent processed message per streak event type.",
	}, []string{"event_type"})

	streakUpdatesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streak_service",
		Subsystem: "consumer",
		Name:      "streak_updates_total",
		Help:      "Consumed streak.updated events by the recompute path that produced them.",
	}, []string{"path"})

	consumedStreakHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "streak_service",
		Subsystem: "consumer",
		Name:      "current_streak_days",
		Help:      "Current streak carried by consumed streak.updated events.",
		Buckets:   []float64{0, 1, 2, 3, 7, 14, 30, 60, 100, 365},
	})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, decodeErrorCounter, lastMessageGauge,
		streakUpdatesCounter, consumedStreakHistogram)
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		lastMessageGauge.WithLabelValues(msg.EventType).Set(float64(msg.Timestamp.Unix()))
	}
	if msg.EventType == domain.EventStreakUpdated {
		recordStreakUpdate(msg.Payload)
	}
}

func recordStreakUpdate(payload json.RawMessage) {
	var update events.StreakUpdated
	if err := json.Unmarshal(payload, &update); err != nil {
		return
	}
	path := update.Path
	if path == "" {
		path = "unknown"
	}
	streakUpdatesCounter.WithLabelValues(path).Inc()
	consumedStreakHistogram.Observe(float64(update.CurrentStreak))
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.EventType).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}
