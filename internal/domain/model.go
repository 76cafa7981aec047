package domain

import (
	"fmt"
	"strings"
	"time"
)

// ActivityType tags an active day. It is informational and never affects streak math.
type ActivityType string

const (
	ActivityRun   ActivityType = "run"
	ActivityWalk  ActivityType = "walk"
	ActivityGym   ActivityType = "gym"
	ActivityHike  ActivityType = "hike"
	ActivityBike  ActivityType = "bike"
	ActivitySwim  ActivityType = "swim"
	ActivityYoga  ActivityType = "yoga"
	ActivityOther ActivityType = "other"

	// DefaultActivityType is stored when the caller omits a tag.
	DefaultActivityType = ActivityOther
)

var activityTypes = map[ActivityType]struct{}{
	ActivityRun: {}, ActivityWalk: {}, ActivityGym: {}, ActivityHike: {},
	ActivityBike: {}, ActivitySwim: {}, ActivityYoga: {}, ActivityOther: {},
}

// ParseActivityType normalises a tag; an empty value yields DefaultActivityType.
func ParseActivityType(value string) (ActivityType, error) {
	normalised := ActivityType(strings.ToLower(strings.TrimSpace(value)))
	if normalised == "" {
		return DefaultActivityType, nil
	}
	if _, ok := activityTypes[normalised]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidActivityType, value)
	}
	return normalised, nil
}

// PairKey identifies the (user, group) scope of ledger entries and streak state.
type PairKey struct {
	UserID  string
	GroupID string
}

func (k PairKey) String() string {
	return k.GroupID + ":" + k.UserID
}

// ActivityEntry is one ledger row per (user, group, date).
type ActivityEntry struct {
	UserID       string
	GroupID      string
	Date         Date
	IsActive     bool
	ActivityType ActivityType
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Key returns the pair the entry belongs to.
func (e ActivityEntry) Key() PairKey {
	return PairKey{UserID: e.UserID, GroupID: e.GroupID}
}

// StreakState is the materialized streak view for a (user, group) pair.
type StreakState struct {
	UserID         string
	GroupID        string
	CurrentStreak  int
	LongestStreak  int
	LastActiveDate Date
	Version        int64
	UpdatedAt      time.Time
}

// Membership links a user to a group.
type Membership struct {
	UserID   string
	GroupID  string
	JoinedAt time.Time
}

// Group is a competition group with a monthly prize.
type Group struct {
	ID          string
	Name        string
	Description string
	PrizeAmount float64
	Currency    string
	CreatedBy   string
	CreatedAt   time.Time
	MemberCount int
}

// DefaultCurrency is applied to groups created without one.
const DefaultCurrency = "DT"

// Profile carries the identity provider's user details needed for invitations and leaderboards.
type Profile struct {
	UserID      string
	Email       string
	DisplayName string
	UpdatedAt   time.Time
}

// InvitationStatus tracks invitation acceptance.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
)

// Invitation records an invite for an email that has no profile yet.
type Invitation struct {
	ID         string
	GroupID    string
	Email      string
	InvitedBy  string
	Status     InvitationStatus
	CreatedAt  time.Time
	AcceptedAt *time.Time
	AcceptedBy string
}

// Standing is a member's raw leaderboard input.
type Standing struct {
	UserID        string
	DisplayName   string
	JoinedAt      time.Time
	CurrentStreak int
	LongestStreak int
	ActiveDays    int
}

// EntryCursor models the ledger pagination token.
type EntryCursor struct {
	Date Date
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
