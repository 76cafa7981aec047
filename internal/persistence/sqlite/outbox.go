package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"example.com/fitstreak/internal/outbox"
)

// DefaultOutboxAttempts is how many failed deliveries an event gets before it is parked.
const DefaultOutboxAttempts = 5

// OutboxQueue drains the SQLite outbox table. There is no dead-letter table on SQLite:
// failed events stay queued and are retried on later polls until they are parked.
type OutboxQueue struct {
	store       *Store
	maxAttempts int
	now         func() time.Time
}

var _ outbox.Queue = (*OutboxQueue)(nil)

// OutboxQueue returns the queue over this store's outbox table.
func (s *Store) OutboxQueue() *OutboxQueue {
	return &OutboxQueue{store: s, maxAttempts: DefaultOutboxAttempts, now: func() time.Time { return time.Now().UTC() }}
}

func (q *OutboxQueue) Claim(ctx context.Context, limit int) ([]outbox.Message, error) {
	var messages []outbox.Message
	err := q.store.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT event_id, group_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
			FROM outbox
			WHERE published_at IS NULL AND parked_at IS NULL
			ORDER BY event_id
			LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				msg     outbox.Message
				payload string
			)
			if err := rows.Scan(&msg.EventID, &msg.GroupID, &msg.AggregateType, &msg.AggregateID, &msg.EventType,
				&msg.Topic, &msg.SchemaSubject, &msg.PartitionKey, &payload); err != nil {
				return err
			}
			msg.Payload = json.RawMessage(payload)
			messages = append(messages, msg)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(messages) == 0 {
			return nil
		}

		in, args := idList(messages)
		_, err = tx.ExecContext(ctx, `UPDATE outbox SET claimed_at = ? WHERE event_id IN (`+in+`)`,
			append([]any{q.now().Format(timeLayout)}, args...)...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (q *OutboxQueue) MarkPublished(ctx context.Context, messages []outbox.Message) error {
	if len(messages) == 0 {
		return nil
	}
	in, args := idList(messages)
	_, err := q.store.db.ExecContext(ctx, `UPDATE outbox SET published_at = ? WHERE event_id IN (`+in+`)`,
		append([]any{q.now().Format(timeLayout)}, args...)...)
	return classify(err)
}

// Fail bumps the attempt count and parks events that reached the limit.
func (q *OutboxQueue) Fail(ctx context.Context, messages []outbox.Message, reason string) error {
	if len(messages) == 0 {
		return nil
	}
	in, args := idList(messages)
	now := q.now().Format(timeLayout)
	return q.store.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE outbox
			SET attempts = attempts + 1,
				last_error = ?,
				claimed_at = NULL,
				parked_at = CASE WHEN attempts + 1 >= ? THEN ? ELSE NULL END
			WHERE event_id IN (`+in+`)`,
			append([]any{reason, q.maxAttempts, now}, args...)...); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `SELECT event_type FROM outbox WHERE parked_at = ? AND event_id IN (`+in+`)`,
			append([]any{now}, args...)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var eventType string
			if err := rows.Scan(&eventType); err != nil {
				return err
			}
			outbox.RecordParked(eventType)
		}
		return rows.Err()
	})
}

func (q *OutboxQueue) Pending(ctx context.Context) (int, error) {
	var pending int
	err := q.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL AND parked_at IS NULL`).Scan(&pending)
	return pending, classify(err)
}

// Parked counts events that exhausted their delivery attempts.
func (q *OutboxQueue) Parked(ctx context.Context) (int, error) {
	var parked int
	err := q.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE parked_at IS NOT NULL`).Scan(&parked)
	return parked, classify(err)
}

// Unpark returns parked events to the queue with a fresh attempt budget.
func (q *OutboxQueue) Unpark(ctx context.Context) (int, error) {
	res, err := q.store.db.ExecContext(ctx, `UPDATE outbox SET parked_at = NULL, attempts = 0 WHERE parked_at IS NOT NULL AND published_at IS NULL`)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func idList(messages []outbox.Message) (string, []any) {
	args := make([]any, 0, len(messages))
	for _, msg := range messages {
		args = append(args, msg.EventID)
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(messages)), ","), args
}
