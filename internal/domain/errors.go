package domain

import "errors"

var (
	// ErrNotMember is returned when the user has no membership in the group.
	ErrNotMember = errors.New("user is not a member of the group")
	// ErrInvalidDate is returned for malformed dates and dates outside the accepted range.
	ErrInvalidDate = errors.New("invalid date")
	// ErrInvalidActivityType is returned for tags outside the activity enumeration.
	ErrInvalidActivityType = errors.New("invalid activity type")
	// ErrInvalidInput covers other request validation failures.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable wraps transient backing-store failures. Writes are safe to retry.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrConcurrentUpdate signals a lost optimistic-concurrency race on a streak row.
	ErrConcurrentUpdate = errors.New("concurrent streak update")
	// ErrGroupNotFound is returned when a group cannot be located.
	ErrGroupNotFound = errors.New("group not found")
	// ErrInvitationNotFound is returned when an invitation cannot be located.
	ErrInvitationNotFound = errors.New("invitation not found")
	// ErrInvitationClosed is returned when accepting an invitation that is no longer pending.
	ErrInvitationClosed = errors.New("invitation is no longer pending")
	// ErrInvitationMismatch is returned when the invitation is addressed to another email.
	ErrInvitationMismatch = errors.New("invitation is addressed to a different email")
)

// retryable reports whether a write attempt may be repeated.
func retryable(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate) || errors.Is(err, ErrStoreUnavailable)
}
