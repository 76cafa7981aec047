// Package postgres implements the Store on Postgres with a transactional outbox.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/fitstreak/internal/domain"
	"example.com/fitstreak/internal/outbox"
)

// Store provides Postgres-backed persistence for the ledger, streaks, groups and outbox events.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ domain.Store = (*Store)(nil)

// classify maps pgx errors onto the domain error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotMember) || errors.Is(err, domain.ErrConcurrentUpdate) || errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01":
			return fmt.Errorf("%w: %v", domain.ErrConcurrentUpdate, err)
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "53300", pgErr.Code == "57P01", pgErr.Code == "57P03":
			return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	err := pgx.BeginFunc(ctx, s.pool, fn)
	return classify(err)
}

// WithinPair runs fn in a transaction. LoadStreak locks the pair's streak row, so concurrent
// writers of the same pair queue behind each other while other pairs proceed.
func (s *Store) WithinPair(ctx context.Context, key domain.PairKey, fn func(domain.PairTx) error) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		return fn(&pairTx{tx: tx, key: key})
	})
}

func (s *Store) GetMembership(ctx context.Context, key domain.PairKey) (*domain.Membership, error) {
	membership := domain.Membership{UserID: key.UserID, GroupID: key.GroupID}
	err := s.pool.QueryRow(ctx, `SELECT joined_at FROM group_members WHERE group_id = $1 AND user_id = $2`,
		key.GroupID, key.UserID).Scan(&membership.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &membership, nil
}

const streakColumns = `user_id, group_id, current_streak, longest_streak, last_active_date, version, updated_at`

func (s *Store) GetStreak(ctx context.Context, key domain.PairKey) (*domain.StreakState, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+streakColumns+` FROM streaks WHERE user_id = $1 AND group_id = $2`,
		key.UserID, key.GroupID)
	state, err := scanStreak(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &state, nil
}

func (s *Store) ListUserStreaks(ctx context.Context, userID string) ([]domain.StreakState, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+streakColumns+` FROM streaks WHERE user_id = $1 ORDER BY group_id`, userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []domain.StreakState
	for rows.Next() {
		state, err := scanStreak(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, classify(rows.Err())
}

func (s *Store) CountActiveDays(ctx context.Context, key domain.PairKey, start, end domain.Date) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activity_entries
        WHERE user_id = $1 AND group_id = $2 AND is_active AND activity_date BETWEEN $3 AND $4`,
		key.UserID, key.GroupID, start.Time(), end.Time()).Scan(&count)
	return count, classify(err)
}

func (s *Store) CountUserActiveDays(ctx context.Context, userID string, start, end domain.Date) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT activity_date) FROM activity_entries
        WHERE user_id = $1 AND is_active AND activity_date BETWEEN $2 AND $3`,
		userID, start.Time(), end.Time()).Scan(&count)
	return count, classify(err)
}

const entryColumns = `user_id, group_id, activity_date, is_active, activity_type, created_at, updated_at`

func (s *Store) ListEntries(ctx context.Context, key domain.PairKey, start, end domain.Date) ([]domain.ActivityEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM activity_entries
        WHERE user_id = $1 AND group_id = $2 AND activity_date BETWEEN $3 AND $4
        ORDER BY activity_date`, key.UserID, key.GroupID, start.Time(), end.Time())
	if err != nil {
		return nil, classify(err)
	}
	return collectEntries(rows)
}

// PageEntries returns the pair's entries newest first, keyed by date.
func (s *Store) PageEntries(ctx context.Context, key domain.PairKey, cursor *domain.EntryCursor, limit int) ([]domain.ActivityEntry, *domain.EntryCursor, error) {
	args := []any{key.UserID, key.GroupID, limit}
	query := `SELECT ` + entryColumns + ` FROM activity_entries WHERE user_id = $1 AND group_id = $2`
	if cursor != nil {
		query += ` AND activity_date < $4`
		args = append(args, cursor.Date.Time())
	}
	query += ` ORDER BY activity_date DESC LIMIT $3`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, classify(err)
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, nil, err
	}

	var next *domain.EntryCursor
	if len(entries) == limit {
		next = &domain.EntryCursor{Date: entries[len(entries)-1].Date}
	}
	return entries, next, nil
}

func (s *Store) GroupStandings(ctx context.Context, groupID string) ([]domain.Standing, error) {
	rows, err := s.pool.Query(ctx, `SELECT m.user_id, COALESCE(p.display_name, ''), m.joined_at,
            s.current_streak, s.longest_streak,
            (SELECT COUNT(*) FROM activity_entries e
                WHERE e.user_id = m.user_id AND e.group_id = m.group_id AND e.is_active)
        FROM group_members m
        JOIN streaks s ON s.user_id = m.user_id AND s.group_id = m.group_id
        LEFT JOIN profiles p ON p.user_id = m.user_id
        WHERE m.group_id = $1
        ORDER BY m.user_id`, groupID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []domain.Standing
	for rows.Next() {
		var standing domain.Standing
		if err := rows.Scan(&standing.UserID, &standing.DisplayName, &standing.JoinedAt, &standing.CurrentStreak, &standing.LongestStreak, &standing.ActiveDays); err != nil {
			return nil, err
		}
		out = append(out, standing)
	}
	return out, classify(rows.Err())
}

type pairTx struct {
	tx  pgx.Tx
	key domain.PairKey
}

func (p *pairTx) LoadStreak(ctx context.Context) (domain.StreakState, error) {
	row := p.tx.QueryRow(ctx, `SELECT `+streakColumns+` FROM streaks
        WHERE user_id = $1 AND group_id = $2
        FOR UPDATE`, p.key.UserID, p.key.GroupID)
	state, err := scanStreak(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StreakState{}, domain.ErrNotMember
	}
	return state, err
}

func (p *pairTx) GetEntry(ctx context.Context, date domain.Date) (*domain.ActivityEntry, error) {
	row := p.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM activity_entries
        WHERE user_id = $1 AND group_id = $2 AND activity_date = $3`,
		p.key.UserID, p.key.GroupID, date.Time())
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (p *pairTx) UpsertEntry(ctx context.Context, entry domain.ActivityEntry) error {
	_, err := p.tx.Exec(ctx, `INSERT INTO activity_entries (user_id, group_id, activity_date, is_active, activity_type, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (user_id, group_id, activity_date) DO UPDATE SET
            is_active = EXCLUDED.is_active,
            activity_type = EXCLUDED.activity_type,
            updated_at = EXCLUDED.updated_at`,
		entry.UserID, entry.GroupID, entry.Date.Time(), entry.IsActive, string(entry.ActivityType), entry.CreatedAt, entry.UpdatedAt)
	return err
}

func (p *pairTx) PreviousActiveDate(ctx context.Context, before domain.Date) (domain.Date, bool, error) {
	var previous *time.Time
	err := p.tx.QueryRow(ctx, `SELECT MAX(activity_date) FROM activity_entries
        WHERE user_id = $1 AND group_id = $2 AND is_active AND activity_date < $3`,
		p.key.UserID, p.key.GroupID, before.Time()).Scan(&previous)
	if err != nil || previous == nil {
		return domain.Date{}, false, err
	}
	return domain.DateOf(*previous), true, nil
}

func (p *pairTx) ActiveDates(ctx context.Context) ([]domain.Date, error) {
	rows, err := p.tx.Query(ctx, `SELECT activity_date FROM activity_entries
        WHERE user_id = $1 AND group_id = $2 AND is_active
        ORDER BY activity_date`, p.key.UserID, p.key.GroupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []domain.Date
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		dates = append(dates, domain.DateOf(day))
	}
	return dates, rows.Err()
}

func (p *pairTx) SaveStreak(ctx context.Context, state domain.StreakState, expectedVersion int64) error {
	tag, err := p.tx.Exec(ctx, `UPDATE streaks
        SET current_streak = $3, longest_streak = $4, last_active_date = $5, version = $6, updated_at = $7
        WHERE user_id = $1 AND group_id = $2 AND version = $8`,
		p.key.UserID, p.key.GroupID, state.CurrentStreak, state.LongestStreak, nullDate(state.LastActiveDate),
		state.Version, state.UpdatedAt, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentUpdate
	}
	return nil
}

// RecordEvent stages the event in the outbox table inside the pair transaction.
func (p *pairTx) RecordEvent(ctx context.Context, event domain.Event) error {
	record, err := outbox.NewRecord(event)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (group_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = p.tx.Exec(ctx, stmt,
		record.GroupID,
		record.AggregateType,
		record.AggregateID,
		record.EventType,
		record.Topic,
		record.SchemaSubject,
		record.PartitionKey,
		record.Payload,
		record.DedupeKey,
	)
	return err
}

func scanStreak(row pgx.Row) (domain.StreakState, error) {
	var (
		state domain.StreakState
		last  *time.Time
	)
	if err := row.Scan(&state.UserID, &state.GroupID, &state.CurrentStreak, &state.LongestStreak, &last, &state.Version, &state.UpdatedAt); err != nil {
		return domain.StreakState{}, err
	}
	if last != nil {
		state.LastActiveDate = domain.DateOf(*last)
	}
	return state, nil
}

func scanEntry(row pgx.Row) (domain.ActivityEntry, error) {
	var (
		entry domain.ActivityEntry
		day   time.Time
		kind  string
	)
	if err := row.Scan(&entry.UserID, &entry.GroupID, &day, &entry.IsActive, &kind, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return domain.ActivityEntry{}, err
	}
	entry.Date = domain.DateOf(day)
	entry.ActivityType = domain.ActivityType(kind)
	return entry, nil
}

func collectEntries(rows pgx.Rows) ([]domain.ActivityEntry, error) {
	defer rows.Close()
	var out []domain.ActivityEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, classify(rows.Err())
}

func nullDate(date domain.Date) any {
	if date.IsZero() {
		return nil
	}
	return date.Time()
}
