package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQManager replays failed outbox messages and quarantines entries that exhaust their retries.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewDLQManager constructs a DLQManager with the provided pool and retry configuration.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger.With("component", "dlq_manager")}
}

// RunOnce processes a batch of due DLQ entries and returns how many were re-queued.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	defer updateBacklogGauge(ctx, m.pool)

	rows, err := m.pool.Query(ctx, `SELECT dlq_id, group_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
        FROM outbox_dlq
        WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
        ORDER BY created_at
        LIMIT $1`, batchSize)
	if err != nil {
		return 0, err
	}
	entries, err := pgx.CollectRows(rows, scanDLQEntry)
	if err != nil {
		return 0, err
	}

	var errs error
	requeued := 0
	for _, entry := range entries {
		outcome, handleErr := m.handleEntry(ctx, entry)
		if handleErr != nil {
			errs = errors.Join(errs, fmt.Errorf("dlq entry %d: %w", entry.ID, handleErr))
			continue
		}
		recordDLQOutcome(entry, outcome)
		if outcome == outcomeRequeued {
			requeued++
		}
	}
	return requeued, errs
}

// handleEntry quarantines, reschedules or re-queues one entry inside a single transaction.
func (m *DLQManager) handleEntry(ctx context.Context, entry dlqEntry) (dlqOutcome, error) {
	var outcome dlqOutcome
	err := pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		if entry.RetryCount >= m.maxRetries {
			if _, err := tx.Exec(ctx, `UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
				"retry limit reached", entry.ID); err != nil {
				return err
			}
			outcome = outcomeQuarantined
			m.logger.WarnContext(ctx, "dlq entry quarantined", "dlq_id", entry.ID, "event_id", entry.EventID, "group_id", entry.GroupID)
			return nil
		}

		if requeueErr := requeueOutbox(ctx, tx, entry); requeueErr != nil {
			delay := m.backoffDelay(entry.RetryCount + 1)
			if _, err := tx.Exec(ctx, `UPDATE outbox_dlq
                SET retry_count = retry_count + 1,
                    last_attempt_at = NOW(),
                    next_retry_at = NOW() + $1::interval,
                    reason = $2
                WHERE dlq_id = $3`, delay, requeueErr.Error(), entry.ID); err != nil {
				return err
			}
			outcome = outcomeRetryScheduled
			return nil
		}

		if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
			return err
		}
		outcome = outcomeRequeued
		return nil
	})
	return outcome, err
}

// backoffDelay calculates exponential backoff capped at one hour.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	if attempt > 20 {
		return time.Hour
	}
	delay := time.Duration(1<<uint(attempt-1)) * m.baseDelay
	if delay > time.Hour {
		delay = time.Hour
	}
	return delay
}

// requeueOutbox clears the publish markers of the original outbox row so the dispatcher
// delivers it again under its original dedupe key.
func requeueOutbox(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	if entry.SchemaSubject == "" {
		return fmt.Errorf("missing schema_subject for dlq entry %d", entry.ID)
	}
	if _, err := RouteFor(entry.EventType); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `UPDATE outbox SET published_at = NULL, claimed_at = NULL WHERE event_id = $1`, entry.EventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event %d no longer exists", entry.EventID)
	}
	return nil
}

// dlqEntry represents an outbox_dlq row selected for processing.
type dlqEntry struct {
	ID            int64
	GroupID       string
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}

func scanDLQEntry(row pgx.CollectableRow) (dlqEntry, error) {
	var entry dlqEntry
	err := row.Scan(&entry.ID, &entry.GroupID, &entry.EventID, &entry.EventType, &entry.Topic, &entry.Payload, &entry.Reason,
		&entry.AggregateType, &entry.AggregateID, &entry.SchemaSubject, &entry.PartitionKey, &entry.RetryCount)
	return entry, err
}
