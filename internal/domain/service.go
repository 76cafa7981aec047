// Package domain defines the business logic of the activity ledger and streak engine.
package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"example.com/fitstreak/internal/events"
	"example.com/fitstreak/internal/observability"
)

const (
	defaultMaxAttempts     = 4
	defaultRetryBaseDelay  = 25 * time.Millisecond
	maxRetryDelay          = 2 * time.Second
	defaultMaxBackfillDays = 365
)

// Service orchestrates ledger writes, streak recomputation and group workflows.
type Service struct {
	store           Store
	now             func() time.Time
	location        *time.Location
	maxAttempts     int
	retryBaseDelay  time.Duration
	maxBackfillDays int
	logger          *slog.Logger
	leaderboards    singleflight.Group
	newID           func() string
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithClock overrides the wall clock used for "today" and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the zone used when a caller does not supply one.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithRetry bounds write retries after conflicts or transient store failures.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if baseDelay >= 0 {
			s.retryBaseDelay = baseDelay
		}
	}
}

// WithMaxBackfillDays limits how far into the past a date may be marked.
func WithMaxBackfillDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.maxBackfillDays = days
		}
	}
}

// WithLogger overrides the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator overrides identifier generation for groups and invitations.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService constructs a Service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:           store,
		now:             time.Now,
		location:        time.UTC,
		maxAttempts:     defaultMaxAttempts,
		retryBaseDelay:  defaultRetryBaseDelay,
		maxBackfillDays: defaultMaxBackfillDays,
		logger:          slog.Default(),
		newID:           newUUID,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "streak-engine")
	return s
}

// MarkActiveInput captures a "mark active" request.
type MarkActiveInput struct {
	UserID       string
	GroupID      string
	Date         string        // YYYY-MM-DD; empty means today in Location.
	ActivityType string        // empty means DefaultActivityType.
	Location     *time.Location // caller zone; nil means the service default.
}

// MarkActiveResult reports the committed entry and the resulting streak.
type MarkActiveResult struct {
	Entry    ActivityEntry
	Streak   StreakState
	Replaced bool
	Path     RecomputePath
	Attempts int
}

// MarkActive upserts the entry for (user, group, date) and recomputes the pair's streak.
// Conflicts and transient store failures are retried; validation errors are returned at once.
func (s *Service) MarkActive(ctx context.Context, input MarkActiveInput) (*MarkActiveResult, error) {
	key := PairKey{UserID: strings.TrimSpace(input.UserID), GroupID: strings.TrimSpace(input.GroupID)}
	if key.UserID == "" || key.GroupID == "" {
		observability.RecordMarkActive("invalid")
		return nil, fmt.Errorf("%w: user and group are required", ErrInvalidInput)
	}

	date, err := s.resolveDate(input.Date, input.Location)
	if err != nil {
		observability.RecordMarkActive("invalid")
		return nil, err
	}

	activityType, err := ParseActivityType(input.ActivityType)
	if err != nil {
		observability.RecordMarkActive("invalid")
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		result, err := s.markActiveOnce(ctx, key, date, activityType)
		if err == nil {
			result.Attempts = attempt
			observability.RecordMarkActive("ok")
			observability.RecordRecompute(string(result.Path))
			observability.RecordEntryPersisted(result.Entry.UpdatedAt)
			return result, nil
		}
		if !retryable(err) {
			observability.RecordMarkActive(outcomeOf(err))
			return nil, err
		}

		lastErr = err
		observability.RecordWriteRetry(retryReason(err))
		s.logger.WarnContext(ctx, "mark active attempt failed",
			"user_id", key.UserID, "group_id", key.GroupID, "date", date.String(),
			"attempt", attempt, "error", err)

		if attempt == s.maxAttempts {
			break
		}
		if err := sleepContext(ctx, s.backoffDelay(attempt)); err != nil {
			observability.RecordMarkActive("failed")
			return nil, err
		}
	}

	observability.RecordMarkActive("failed")
	if errors.Is(lastErr, ErrStoreUnavailable) {
		return nil, fmt.Errorf("mark active gave up after %d attempts: %w", s.maxAttempts, lastErr)
	}
	return nil, fmt.Errorf("%w: mark active gave up after %d attempts: %v", ErrStoreUnavailable, s.maxAttempts, lastErr)
}

func (s *Service) markActiveOnce(ctx context.Context, key PairKey, date Date, activityType ActivityType) (*MarkActiveResult, error) {
	var result MarkActiveResult

	err := s.store.WithinPair(ctx, key, func(tx PairTx) error {
		prev, err := tx.LoadStreak(ctx)
		if err != nil {
			return err
		}

		existing, err := tx.GetEntry(ctx, date)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		entry := ActivityEntry{
			UserID:       key.UserID,
			GroupID:      key.GroupID,
			Date:         date,
			IsActive:     true,
			ActivityType: activityType,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if existing != nil {
			entry.CreatedAt = existing.CreatedAt
		}
		if err := tx.UpsertEntry(ctx, entry); err != nil {
			return err
		}

		alreadyActive := existing != nil && existing.IsActive
		next, path, err := advanceStreak(ctx, tx, prev, date, alreadyActive)
		if err != nil {
			return err
		}
		next.UserID, next.GroupID = key.UserID, key.GroupID
		next.Version = prev.Version + 1
		next.UpdatedAt = now

		if err := tx.SaveStreak(ctx, next, prev.Version); err != nil {
			return err
		}

		if err := s.recordEvents(ctx, tx, entry, next, path, existing != nil); err != nil {
			return err
		}

		result = MarkActiveResult{Entry: entry, Streak: next, Replaced: existing != nil, Path: path}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Service) recordEvents(ctx context.Context, tx PairTx, entry ActivityEntry, state StreakState, path RecomputePath, replaced bool) error {
	aggregateID := entry.Key().String()
	if err := tx.RecordEvent(ctx, Event{
		Type:        EventActivityMarked,
		GroupID:     entry.GroupID,
		UserID:      entry.UserID,
		AggregateID: aggregateID,
		Version:     state.Version,
		Payload: events.ActivityMarked{
			UserID:       entry.UserID,
			GroupID:      entry.GroupID,
			Date:         entry.Date.String(),
			ActivityType: string(entry.ActivityType),
			Replaced:     replaced,
			MarkedAt:     entry.UpdatedAt,
		},
	}); err != nil {
		return err
	}
	return tx.RecordEvent(ctx, Event{
		Type:        EventStreakUpdated,
		GroupID:     entry.GroupID,
		UserID:      entry.UserID,
		AggregateID: aggregateID,
		Version:     state.Version,
		Payload: events.StreakUpdated{
			UserID:         state.UserID,
			GroupID:        state.GroupID,
			CurrentStreak:  state.CurrentStreak,
			LongestStreak:  state.LongestStreak,
			LastActiveDate: state.LastActiveDate.String(),
			Version:        state.Version,
			Path:           string(path),
			OccurredAt:     state.UpdatedAt,
		},
	})
}

// resolveDate parses the requested day and enforces the accepted range relative to the caller's clock.
func (s *Service) resolveDate(raw string, loc *time.Location) (Date, error) {
	today := s.today(loc)
	if strings.TrimSpace(raw) == "" {
		return today, nil
	}

	date, err := ParseDate(raw)
	if err != nil {
		return Date{}, err
	}
	if date.After(today) {
		return Date{}, fmt.Errorf("%w: %s is in the future (today is %s)", ErrInvalidDate, date, today)
	}
	if earliest := today.AddDays(-s.maxBackfillDays); date.Before(earliest) {
		return Date{}, fmt.Errorf("%w: %s is earlier than %s", ErrInvalidDate, date, earliest)
	}
	return date, nil
}

// Today returns the current date in loc, or in the service zone when loc is nil.
func (s *Service) Today(loc *time.Location) Date {
	return s.today(loc)
}

func (s *Service) today(loc *time.Location) Date {
	if loc == nil {
		loc = s.location
	}
	return Today(s.now(), loc)
}

// backoffDelay calculates exponential backoff capped at maxRetryDelay.
func (s *Service) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt-1)) * s.retryBaseDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrNotMember):
		return "not_member"
	case errors.Is(err, ErrInvalidDate), errors.Is(err, ErrInvalidActivityType), errors.Is(err, ErrInvalidInput):
		return "invalid"
	default:
		return "failed"
	}
}

func retryReason(err error) string {
	if errors.Is(err, ErrConcurrentUpdate) {
		return "conflict"
	}
	return "unavailable"
}

// GetStreak returns the pair's current streak state.
func (s *Service) GetStreak(ctx context.Context, key PairKey) (*StreakState, error) {
	state, err := s.store.GetStreak(ctx, key)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrNotMember
	}
	return state, nil
}

// ActiveDaysInRange counts distinct active dates in the inclusive range [start, end].
func (s *Service) ActiveDaysInRange(ctx context.Context, key PairKey, start, end Date) (int, error) {
	if start.IsZero() || end.IsZero() {
		return 0, fmt.Errorf("%w: range needs both a start and an end date", ErrInvalidDate)
	}
	if end.Before(start) {
		return 0, nil
	}
	return s.store.CountActiveDays(ctx, key, start, end)
}

// ListEntries pages through the pair's ledger, newest first.
func (s *Service) ListEntries(ctx context.Context, key PairKey, cursor *EntryCursor, limit int) ([]ActivityEntry, *EntryCursor, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.store.PageEntries(ctx, key, cursor, limit)
}
