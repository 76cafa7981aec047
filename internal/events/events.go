// Package events defines the payloads published for ledger and streak changes.
package events

import "time"

// ActivityMarked is emitted when a day is marked active for a (user, group) pair.
type ActivityMarked struct {
	UserID       string    `json:"user_id"`
	GroupID      string    `json:"group_id"`
	Date         string    `json:"date"`
	ActivityType string    `json:"activity_type"`
	Replaced     bool      `json:"replaced"`
	MarkedAt     time.Time `json:"marked_at"`
}

// StreakUpdated carries the materialized streak after a committed write.
type StreakUpdated struct {
	UserID         string    `json:"user_id"`
	GroupID        string    `json:"group_id"`
	CurrentStreak  int       `json:"current_streak"`
	LongestStreak  int       `json:"longest_streak"`
	LastActiveDate string    `json:"last_active_date,omitempty"`
	Version        int64     `json:"version"`
	Path           string    `json:"path"`
	OccurredAt     time.Time `json:"occurred_at"`
}
