package domain

import (
	"context"
	"time"
)

// Event types recorded alongside committed ledger writes.
const (
	EventActivityMarked = "activity.marked"
	EventStreakUpdated  = "streak.updated"
)

// Event is a domain event staged inside a pair transaction.
type Event struct {
	Type        string
	GroupID     string
	UserID      string
	AggregateID string
	Version     int64
	Payload     any
}

// PairTx is the view of the store inside a write transaction scoped to one (user, group) pair.
// Implementations must serialize concurrent PairTx for the same pair and apply all writes
// atomically when the callback returns nil.
type PairTx interface {
	// LoadStreak returns the pair's streak state or ErrNotMember.
	LoadStreak(ctx context.Context) (StreakState, error)
	GetEntry(ctx context.Context, date Date) (*ActivityEntry, error)
	UpsertEntry(ctx context.Context, entry ActivityEntry) error
	// PreviousActiveDate returns the most recent active date strictly before the given date.
	PreviousActiveDate(ctx context.Context, before Date) (Date, bool, error)
	// ActiveDates returns every active date for the pair in ascending order.
	ActiveDates(ctx context.Context) ([]Date, error)
	// SaveStreak persists state if the stored version still equals expectedVersion,
	// otherwise it returns ErrConcurrentUpdate.
	SaveStreak(ctx context.Context, state StreakState, expectedVersion int64) error
	RecordEvent(ctx context.Context, event Event) error
}

// LedgerStore owns activity entries and streak state.
type LedgerStore interface {
	WithinPair(ctx context.Context, key PairKey, fn func(PairTx) error) error
	GetMembership(ctx context.Context, key PairKey) (*Membership, error)
	GetStreak(ctx context.Context, key PairKey) (*StreakState, error)
	ListUserStreaks(ctx context.Context, userID string) ([]StreakState, error)
	CountActiveDays(ctx context.Context, key PairKey, start, end Date) (int, error)
	CountUserActiveDays(ctx context.Context, userID string, start, end Date) (int, error)
	ListEntries(ctx context.Context, key PairKey, start, end Date) ([]ActivityEntry, error)
	PageEntries(ctx context.Context, key PairKey, cursor *EntryCursor, limit int) ([]ActivityEntry, *EntryCursor, error)
	GroupStandings(ctx context.Context, groupID string) ([]Standing, error)
}

// GroupStore owns groups, memberships, profiles and invitations.
type GroupStore interface {
	// CreateGroup stores the group and the creator's membership with a zero streak.
	CreateGroup(ctx context.Context, group Group) error
	GetGroup(ctx context.Context, groupID string) (*Group, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]Group, error)
	// AddMember creates the membership and zero streak; it reports false when it already existed.
	AddMember(ctx context.Context, membership Membership) (bool, error)
	UpsertProfile(ctx context.Context, profile Profile) error
	FindProfileByEmail(ctx context.Context, email string) (*Profile, error)
	// CreateInvitation records a pending invitation. When one is already pending for the
	// same group and email, the existing invitation is returned instead.
	CreateInvitation(ctx context.Context, invitation Invitation) (*Invitation, error)
	GetInvitation(ctx context.Context, invitationID string) (*Invitation, error)
	ListPendingInvitations(ctx context.Context, email string) ([]Invitation, error)
	// AcceptInvitation marks a pending invitation accepted and adds the membership atomically.
	AcceptInvitation(ctx context.Context, invitationID, userID string, at time.Time) error
}

// Store is the full persistence contract of the service.
type Store interface {
	LedgerStore
	GroupStore
}
