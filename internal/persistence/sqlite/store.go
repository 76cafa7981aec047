// Package sqlite implements the Store on an embedded SQLite database for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"example.com/fitstreak/internal/domain"
	"example.com/fitstreak/internal/outbox"
)

const timeLayout = time.RFC3339Nano

// Store persists the ledger, streaks and groups in SQLite.
type Store struct {
	db *sql.DB
}

// New wraps an open database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ domain.Store = (*Store)(nil)

// Open opens the database at path and initialises the schema. Write transactions begin
// IMMEDIATE so writers of the same pair are serialized by the database lock.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Each connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := New(db)
	if err := store.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// classify maps driver errors onto the domain error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
	}
	return err
}

func isConstraintViolation(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return classify(err)
	}
	if err = tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// WithinPair runs fn inside one IMMEDIATE transaction.
func (s *Store) WithinPair(ctx context.Context, key domain.PairKey, fn func(domain.PairTx) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&pairTx{tx: tx, key: key})
	})
}

type pairTx struct {
	tx  *sql.Tx
	key domain.PairKey
}

func (p *pairTx) LoadStreak(ctx context.Context) (domain.StreakState, error) {
	row := p.tx.QueryRowContext(ctx, `SELECT current_streak, longest_streak, last_active_date, version, updated_at
		FROM streaks WHERE user_id = ? AND group_id = ?`, p.key.UserID, p.key.GroupID)

	state, err := scanStreak(row, p.key)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StreakState{}, domain.ErrNotMember
	}
	return state, err
}

func (p *pairTx) GetEntry(ctx context.Context, date domain.Date) (*domain.ActivityEntry, error) {
	row := p.tx.QueryRowContext(ctx, `SELECT user_id, group_id, activity_date, is_active, activity_type, created_at, updated_at
		FROM activity_entries WHERE user_id = ? AND group_id = ? AND activity_date = ?`,
		p.key.UserID, p.key.GroupID, date.String())

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (p *pairTx) UpsertEntry(ctx context.Context, entry domain.ActivityEntry) error {
	_, err := p.tx.ExecContext(ctx, `INSERT INTO activity_entries (user_id, group_id, activity_date, is_active, activity_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, group_id, activity_date) DO UPDATE SET
			is_active = excluded.is_active,
			activity_type = excluded.activity_type,
			updated_at = excluded.updated_at`,
		entry.UserID, entry.GroupID, entry.Date.String(), entry.IsActive, string(entry.ActivityType),
		entry.CreatedAt.UTC().Format(timeLayout), entry.UpdatedAt.UTC().Format(timeLayout))
	return err
}

func (p *pairTx) PreviousActiveDate(ctx context.Context, before domain.Date) (domain.Date, bool, error) {
	var raw sql.NullString
	err := p.tx.QueryRowContext(ctx, `SELECT MAX(activity_date) FROM activity_entries
		WHERE user_id = ? AND group_id = ? AND is_active = 1 AND activity_date < ?`,
		p.key.UserID, p.key.GroupID, before.String()).Scan(&raw)
	if err != nil || !raw.Valid {
		return domain.Date{}, false, err
	}
	date, err := domain.ParseDate(raw.String)
	return date, err == nil, err
}

func (p *pairTx) ActiveDates(ctx context.Context) ([]domain.Date, error) {
	rows, err := p.tx.QueryContext(ctx, `SELECT activity_date FROM activity_entries
		WHERE user_id = ? AND group_id = ? AND is_active = 1 ORDER BY activity_date`,
		p.key.UserID, p.key.GroupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []domain.Date
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		date, err := domain.ParseDate(raw)
		if err != nil {
			return nil, err
		}
		dates = append(dates, date)
	}
	return dates, rows.Err()
}

func (p *pairTx) SaveStreak(ctx context.Context, state domain.StreakState, expectedVersion int64) error {
	res, err := p.tx.ExecContext(ctx, `UPDATE streaks
		SET current_streak = ?, longest_streak = ?, last_active_date = ?, version = ?, updated_at = ?
		WHERE user_id = ? AND group_id = ? AND version = ?`,
		state.CurrentStreak, state.LongestStreak, nullDate(state.LastActiveDate), state.Version,
		state.UpdatedAt.UTC().Format(timeLayout), p.key.UserID, p.key.GroupID, expectedVersion)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrConcurrentUpdate
	}
	return nil
}

func (p *pairTx) RecordEvent(ctx context.Context, event domain.Event) error {
	record, err := outbox.NewRecord(event)
	if err != nil {
		return err
	}
	_, err = p.tx.ExecContext(ctx, `INSERT INTO outbox (group_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dedupe_key) DO NOTHING`,
		record.GroupID, record.AggregateType, record.AggregateID, record.EventType, record.Topic,
		record.SchemaSubject, record.PartitionKey, string(record.Payload), record.DedupeKey,
		time.Now().UTC().Format(timeLayout))
	return err
}

func (s *Store) GetMembership(ctx context.Context, key domain.PairKey) (*domain.Membership, error) {
	var joined string
	err := s.db.QueryRowContext(ctx, `SELECT joined_at FROM group_members WHERE group_id = ? AND user_id = ?`,
		key.GroupID, key.UserID).Scan(&joined)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	joinedAt, err := parseTime(joined)
	if err != nil {
		return nil, err
	}
	return &domain.Membership{UserID: key.UserID, GroupID: key.GroupID, JoinedAt: joinedAt}, nil
}

func (s *Store) GetStreak(ctx context.Context, key domain.PairKey) (*domain.StreakState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT current_streak, longest_streak, last_active_date, version, updated_at
		FROM streaks WHERE user_id = ? AND group_id = ?`, key.UserID, key.GroupID)
	state, err := scanStreak(row, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &state, nil
}

func (s *Store) ListUserStreaks(ctx context.Context, userID string) ([]domain.StreakState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT group_id, current_streak, longest_streak, last_active_date, version, updated_at
		FROM streaks WHERE user_id = ? ORDER BY group_id`, userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []domain.StreakState
	for rows.Next() {
		var (
			state   domain.StreakState
			groupID string
			last    sql.NullString
			updated string
		)
		if err := rows.Scan(&groupID, &state.CurrentStreak, &state.LongestStreak, &last, &state.Version, &updated); err != nil {
			return nil, err
		}
		state.UserID, state.GroupID = userID, groupID
		if state.LastActiveDate, err = parseNullDate(last); err != nil {
			return nil, err
		}
		if state.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, classify(rows.Err())
}

func (s *Store) CountActiveDays(ctx context.Context, key domain.PairKey, start, end domain.Date) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_entries
		WHERE user_id = ? AND group_id = ? AND is_active = 1 AND activity_date BETWEEN ? AND ?`,
		key.UserID, key.GroupID, start.String(), end.String()).Scan(&count)
	return count, classify(err)
}

func (s *Store) CountUserActiveDays(ctx context.Context, userID string, start, end domain.Date) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT activity_date) FROM activity_entries
		WHERE user_id = ? AND is_active = 1 AND activity_date BETWEEN ? AND ?`,
		userID, start.String(), end.String()).Scan(&count)
	return count, classify(err)
}

const entryColumns = `user_id, group_id, activity_date, is_active, activity_type, created_at, updated_at`

func (s *Store) ListEntries(ctx context.Context, key domain.PairKey, start, end domain.Date) ([]domain.ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM activity_entries
		WHERE user_id = ? AND group_id = ? AND activity_date BETWEEN ? AND ?
		ORDER BY activity_date`, key.UserID, key.GroupID, start.String(), end.String())
	if err != nil {
		return nil, classify(err)
	}
	return collectEntries(rows)
}

func (s *Store) PageEntries(ctx context.Context, key domain.PairKey, cursor *domain.EntryCursor, limit int) ([]domain.ActivityEntry, *domain.EntryCursor, error) {
	args := []any{key.UserID, key.GroupID}
	query := `SELECT ` + entryColumns + ` FROM activity_entries WHERE user_id = ? AND group_id = ?`
	if cursor != nil {
		query += ` AND activity_date < ?`
		args = append(args, cursor.Date.String())
	}
	query += ` ORDER BY activity_date DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	rows, err := s.db.QueryContext(ctx, `SELECT m.user_id, COALESCE(p.display_name, ''), m.joined_at,
			s.current_streak, s.longest_streak,
			(SELECT COUNT(*) FROM activity_entries e
				WHERE e.user_id = m.user_id AND e.group_id = m.group_id AND e.is_active = 1)
		FROM group_members m
		JOIN streaks s ON s.user_id = m.user_id AND s.group_id = m.group_id
		LEFT JOIN profiles p ON p.user_id = m.user_id
		WHERE m.group_id = ?
		ORDER BY m.user_id`, groupID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []domain.Standing
	for rows.Next() {
		var (
			standing domain.Standing
			joined   string
		)
		if err := rows.Scan(&standing.UserID, &standing.DisplayName, &joined, &standing.CurrentStreak, &standing.LongestStreak, &standing.ActiveDays); err != nil {
			return nil, err
		}
		if standing.JoinedAt, err = parseTime(joined); err != nil {
			return nil, err
		}
		out = append(out, standing)
	}
	return out, classify(rows.Err())
}

func (s *Store) CreateGroup(ctx context.Context, group domain.Group) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO competition_groups (group_id, name, description, prize_amount, currency, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			group.ID, group.Name, group.Description, group.PrizeAmount, group.Currency, group.CreatedBy,
			group.CreatedAt.UTC().Format(timeLayout)); err != nil {
			return err
		}
		_, err := addMember(ctx, tx, domain.Membership{UserID: group.CreatedBy, GroupID: group.ID, JoinedAt: group.CreatedAt})
		return err
	})
}

// addMember inserts the membership and its zero streak row, reporting whether it was new.
func addMember(ctx context.Context, tx *sql.Tx, membership domain.Membership) (bool, error) {
	joined := membership.JoinedAt.UTC().Format(timeLayout)
	res, err := tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)
		ON CONFLICT (group_id, user_id) DO NOTHING`, membership.GroupID, membership.UserID, joined)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil || affected == 0 {
		return false, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO streaks (user_id, group_id, current_streak, longest_streak, version, updated_at)
		VALUES (?, ?, 0, 0, 0, ?) ON CONFLICT (user_id, group_id) DO NOTHING`,
		membership.UserID, membership.GroupID, joined)
	return err == nil, err
}

const groupColumns = `g.group_id, g.name, g.description, g.prize_amount, g.currency, g.created_by, g.created_at,
	(SELECT COUNT(*) FROM group_members c WHERE c.group_id = g.group_id)`

func (s *Store) GetGroup(ctx context.Context, groupID string) (*domain.Group, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM competition_groups g WHERE g.group_id = ?`, groupID)
	group, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &group, nil
}

func (s *Store) ListGroupsForUser(ctx context.Context, userID string) ([]domain.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+groupColumns+` FROM competition_groups g
		JOIN group_members m ON m.group_id = g.group_id
		WHERE m.user_id = ?
		ORDER BY g.created_at, g.group_id`, userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []domain.Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, group)
	}
	return out, classify(rows.Err())
}

func (s *Store) AddMember(ctx context.Context, membership domain.Membership) (bool, error) {
	var created bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM competition_groups WHERE group_id = ?`, membership.GroupID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrGroupNotFound
		}
		var err error
		created, err = addMember(ctx, tx, membership)
		return err
	})
	return created, err
}

func (s *Store) UpsertProfile(ctx context.Context, profile domain.Profile) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO profiles (user_id, email, display_name, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			email = excluded.email,
			display_name = excluded.display_name,
			updated_at = excluded.updated_at`,
		profile.UserID, profile.Email, profile.DisplayName, profile.UpdatedAt.UTC().Format(timeLayout))
	if isConstraintViolation(err) {
		return fmt.Errorf("%w: email already belongs to another user", domain.ErrInvalidInput)
	}
	return classify(err)
}

func (s *Store) FindProfileByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	var (
		profile domain.Profile
		updated string
	)
	err := s.db.QueryRowContext(ctx, `SELECT user_id, email, display_name, updated_at FROM profiles WHERE email = ?`, email).
		Scan(&profile.UserID, &profile.Email, &profile.DisplayName, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	if profile.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &profile, nil
}

const invitationColumns = `invitation_id, group_id, email, invited_by, status, created_at, accepted_at, accepted_by`

func (s *Store) CreateInvitation(ctx context.Context, invitation domain.Invitation) (*domain.Invitation, error) {
	var stored domain.Invitation
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations
			WHERE group_id = ? AND email = ? AND status = 'pending'`, invitation.GroupID, invitation.Email)
		existing, err := scanInvitation(row)
		if err == nil {
			stored = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO invitations (invitation_id, group_id, email, invited_by, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			invitation.ID, invitation.GroupID, invitation.Email, invitation.InvitedBy, string(invitation.Status),
			invitation.CreatedAt.UTC().Format(timeLayout)); err != nil {
			return err
		}
		stored = invitation
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *Store) GetInvitation(ctx context.Context, invitationID string) (*domain.Invitation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE invitation_id = ?`, invitationID)
	invitation, err := scanInvitation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &invitation, nil
}

func (s *Store) ListPendingInvitations(ctx context.Context, email string) ([]domain.Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+invitationColumns+` FROM invitations
		WHERE email = ? AND status = 'pending' ORDER BY created_at`, email)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []domain.Invitation
	for rows.Next() {
		invitation, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, invitation)
	}
	return out, classify(rows.Err())
}

func (s *Store) AcceptInvitation(ctx context.Context, invitationID, userID string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var groupID, status string
		err := tx.QueryRowContext(ctx, `SELECT group_id, status FROM invitations WHERE invitation_id = ?`, invitationID).Scan(&groupID, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrInvitationNotFound
		}
		if err != nil {
			return err
		}
		if status != string(domain.InvitationPending) {
			return domain.ErrInvitationClosed
		}

		stamp := at.UTC().Format(timeLayout)
		if _, err := tx.ExecContext(ctx, `UPDATE invitations SET status = 'accepted', accepted_at = ?, accepted_by = ?
			WHERE invitation_id = ? AND status = 'pending'`, stamp, userID, invitationID); err != nil {
			return err
		}
		_, err = addMember(ctx, tx, domain.Membership{UserID: userID, GroupID: groupID, JoinedAt: at})
		return err
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStreak(row scanner, key domain.PairKey) (domain.StreakState, error) {
	var (
		state   domain.StreakState
		last    sql.NullString
		updated string
	)
	if err := row.Scan(&state.CurrentStreak, &state.LongestStreak, &last, &state.Version, &updated); err != nil {
		return domain.StreakState{}, err
	}
	state.UserID, state.GroupID = key.UserID, key.GroupID

	var err error
	if state.LastActiveDate, err = parseNullDate(last); err != nil {
		return domain.StreakState{}, err
	}
	if state.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.StreakState{}, err
	}
	return state, nil
}

func scanEntry(row scanner) (domain.ActivityEntry, error) {
	var (
		entry            domain.ActivityEntry
		date, kind       string
		created, updated string
	)
	if err := row.Scan(&entry.UserID, &entry.GroupID, &date, &entry.IsActive, &kind, &created, &updated); err != nil {
		return domain.ActivityEntry{}, err
	}
	entry.ActivityType = domain.ActivityType(kind)

	var err error
	if entry.Date, err = domain.ParseDate(date); err != nil {
		return domain.ActivityEntry{}, err
	}
	if entry.CreatedAt, err = parseTime(created); err != nil {
		return domain.ActivityEntry{}, err
	}
	if entry.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.ActivityEntry{}, err
	}
	return entry, nil
}

func collectEntries(rows *sql.Rows) ([]domain.ActivityEntry, error) {
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

func scanGroup(row scanner) (domain.Group, error) {
	var (
		group   domain.Group
		created string
	)
	if err := row.Scan(&group.ID, &group.Name, &group.Description, &group.PrizeAmount, &group.Currency, &group.CreatedBy, &created, &group.MemberCount); err != nil {
		return domain.Group{}, err
	}
	var err error
	group.CreatedAt, err = parseTime(created)
	return group, err
}

func scanInvitation(row scanner) (domain.Invitation, error) {
	var (
		invitation domain.Invitation
		status     string
		created    string
		acceptedAt sql.NullString
		acceptedBy sql.NullString
	)
	if err := row.Scan(&invitation.ID, &invitation.GroupID, &invitation.Email, &invitation.InvitedBy, &status, &created, &acceptedAt, &acceptedBy); err != nil {
		return domain.Invitation{}, err
	}
	invitation.Status = domain.InvitationStatus(status)
	invitation.AcceptedBy = acceptedBy.String

	var err error
	if invitation.CreatedAt, err = parseTime(created); err != nil {
		return domain.Invitation{}, err
	}
	if acceptedAt.Valid {
		at, err := parseTime(acceptedAt.String)
		if err != nil {
			return domain.Invitation{}, err
		}
		invitation.AcceptedAt = &at
	}
	return invitation, nil
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}

func parseNullDate(value sql.NullString) (domain.Date, error) {
	if !value.Valid || value.String == "" {
		return domain.Date{}, nil
	}
	return domain.ParseDate(value.String)
}

func nullDate(date domain.Date) any {
	if date.IsZero() {
		return nil
	}
	return date.String()
}
