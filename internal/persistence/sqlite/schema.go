package sqlite

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS competition_groups (
		group_id     TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		prize_amount REAL NOT NULL DEFAULT 5 CHECK (prize_amount >= 0),
		currency     TEXT NOT NULL DEFAULT 'DT',
		created_by   TEXT NOT NULL,
		created_at   TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS group_members (
		group_id  TEXT NOT NULL REFERENCES competition_groups(group_id) ON DELETE CASCADE,
		user_id   TEXT NOT NULL,
		joined_at TEXT NOT NULL,
		PRIMARY KEY (group_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS group_members_user_idx ON group_members (user_id)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		user_id      TEXT PRIMARY KEY,
		email        TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		updated_at   TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS invitations (
		invitation_id TEXT PRIMARY KEY,
		group_id      TEXT NOT NULL REFERENCES competition_groups(group_id) ON DELETE CASCADE,
		email         TEXT NOT NULL,
		invited_by    TEXT NOT NULL,
		status        TEXT NOT NULL DEFAULT 'pending',
		created_at    TEXT NOT NULL,
		accepted_at   TEXT,
		accepted_by   TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS invitations_pending_idx ON invitations (group_id, email) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS activity_entries (
		user_id       TEXT NOT NULL,
		group_id      TEXT NOT NULL,
		activity_date TEXT NOT NULL,
		is_active     INTEGER NOT NULL DEFAULT 1,
		activity_type TEXT NOT NULL DEFAULT 'other',
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL,
		PRIMARY KEY (user_id, group_id, activity_date),
		FOREIGN KEY (group_id, user_id) REFERENCES group_members(group_id, user_id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS streaks (
		user_id          TEXT NOT NULL,
		group_id         TEXT NOT NULL,
		current_streak   INTEGER NOT NULL DEFAULT 0 CHECK (current_streak >= 0),
		longest_streak   INTEGER NOT NULL DEFAULT 0 CHECK (longest_streak >= current_streak),
		last_active_date TEXT,
		version          INTEGER NOT NULL DEFAULT 0,
		updated_at       TEXT NOT NULL,
		PRIMARY KEY (user_id, group_id),
		FOREIGN KEY (group_id, user_id) REFERENCES group_members(group_id, user_id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		event_id       INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id       TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		topic          TEXT NOT NULL,
		schema_subject TEXT NOT NULL,
		partition_key  TEXT NOT NULL,
		payload        TEXT NOT NULL,
		dedupe_key     TEXT NOT NULL UNIQUE,
		created_at     TEXT NOT NULL,
		claimed_at     TEXT,
		published_at   TEXT,
		attempts       INTEGER NOT NULL DEFAULT 0,
		last_error     TEXT,
		parked_at      TEXT
	)`,
}

// outboxColumns are added to outbox tables created before delivery tracking existed.
var outboxColumns = []struct{ name, ddl string }{
	{"claimed_at", "ALTER TABLE outbox ADD COLUMN claimed_at TEXT"},
	{"attempts", "ALTER TABLE outbox ADD COLUMN attempts INTEGER NOT NULL DEFAULT 0"},
	{"last_error", "ALTER TABLE outbox ADD COLUMN last_error TEXT"},
	{"parked_at", "ALTER TABLE outbox ADD COLUMN parked_at TEXT"},
}

// InitSchema creates the tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init sqlite schema: %w", err)
		}
	}
	return s.upgradeOutbox(ctx)
}

func (s *Store) upgradeOutbox(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info('outbox')`)
	if err != nil {
		return fmt.Errorf("inspect outbox: %w", err)
	}
	existing := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		existing[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, col := range outboxColumns {
		if existing[col.name] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, col.ddl); err != nil {
			return fmt.Errorf("add outbox.%s: %w", col.name, err)
		}
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS outbox_pending_idx ON outbox (event_id) WHERE published_at IS NULL AND parked_at IS NULL`)
	return err
}
