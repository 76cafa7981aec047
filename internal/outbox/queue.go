package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Queue is the durable outbox a Dispatcher drains.
type Queue interface {
	// Claim returns up to limit unpublished events in event_id order.
	Claim(ctx context.Context, limit int) ([]Message, error)
	// MarkPublished records successful delivery.
	MarkPublished(ctx context.Context, messages []Message) error
	// Fail records a failed delivery of the batch.
	Fail(ctx context.Context, messages []Message, reason string) error
	// Pending counts events still awaiting delivery.
	Pending(ctx context.Context) (int, error)
}

// PostgresQueue is the outbox table in Postgres. Failed batches move to outbox_dlq, where
// the DLQManager retries them.
type PostgresQueue struct {
	pool *pgxpool.Pool
	dlq  *DLQWriter
}

var _ Queue = (*PostgresQueue)(nil)

// NewPostgresQueue wraps the pool that owns the outbox tables.
func NewPostgresQueue(pool *pgxpool.Pool) *PostgresQueue {
	return &PostgresQueue{pool: pool, dlq: NewDLQWriter(pool)}
}

// Claim locks a batch with SKIP LOCKED so concurrent dispatchers never share rows.
func (q *PostgresQueue) Claim(ctx context.Context, limit int) ([]Message, error) {
	var messages []Message
	err := pgx.BeginFunc(ctx, q.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT event_id, group_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
            FROM outbox
            WHERE published_at IS NULL
            ORDER BY event_id
            LIMIT $1
            FOR UPDATE SKIP LOCKED`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		ids := make([]int64, 0, limit)
		for rows.Next() {
			var msg Message
			if err := rows.Scan(&msg.EventID, &msg.GroupID, &msg.AggregateType, &msg.AggregateID, &msg.EventType,
				&msg.Topic, &msg.SchemaSubject, &msg.PartitionKey, &msg.Payload); err != nil {
				return err
			}
			messages = append(messages, msg)
			ids = append(ids, msg.EventID)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		_, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (q *PostgresQueue) MarkPublished(ctx context.Context, messages []Message) error {
	_, err := q.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, eventIDs(messages))
	return err
}

// Fail copies the batch into outbox_dlq and takes it off the primary queue.
func (q *PostgresQueue) Fail(ctx context.Context, messages []Message, reason string) error {
	for _, msg := range messages {
		entryReason := fmt.Sprintf("%s (topic=%s)", reason, msg.Topic)
		if err := q.dlq.Write(ctx, msg, entryReason); err != nil {
			return err
		}
		dlqCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
	}
	return q.MarkPublished(ctx, messages)
}

func (q *PostgresQueue) Pending(ctx context.Context) (int, error) {
	var pending int
	err := q.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&pending)
	return pending, err
}

func eventIDs(messages []Message) []int64 {
	ids := make([]int64, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.EventID)
	}
	return ids
}
