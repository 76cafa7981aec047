package domain_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fitstreak/internal/domain"
	"example.com/fitstreak/internal/persistence/memory"
)

var fixedNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *memory.Store
	svc   *domain.Service
	group *domain.Group
	key   domain.PairKey
}

func newFixture(t *testing.T, opts ...domain.Option) fixture {
	t.Helper()
	store := memory.New()
	ids := 0
	opts = append([]domain.Option{
		domain.WithClock(func() time.Time { return fixedNow }),
		domain.WithIDGenerator(func() string { ids++; return fmt.Sprintf("id-%d", ids) }),
	}, opts...)
	svc := domain.NewService(store, opts...)

	group, err := svc.CreateGroup(context.Background(), domain.CreateGroupInput{CreatorID: "alice", Name: "Morning Crew", PrizeAmount: 5})
	require.NoError(t, err)
	return fixture{store: store, svc: svc, group: group, key: domain.PairKey{UserID: "alice", GroupID: group.ID}}
}

func (f fixture) mark(t *testing.T, date string) *domain.MarkActiveResult {
	t.Helper()
	result, err := f.svc.MarkActive(context.Background(), domain.MarkActiveInput{UserID: f.key.UserID, GroupID: f.key.GroupID, Date: date})
	require.NoError(t, err)
	return result
}

func requireStreak(t *testing.T, state domain.StreakState, current, longest int) {
	t.Helper()
	require.Equal(t, current, state.CurrentStreak, "current streak")
	require.Equal(t, longest, state.LongestStreak, "longest streak")
}

func TestMarkActiveSequentialDays(t *testing.T) {
	f := newFixture(t)

	first := f.mark(t, "2024-01-01")
	require.Equal(t, domain.PathFirst, first.Path)
	requireStreak(t, first.Streak, 1, 1)

	second := f.mark(t, "2024-01-02")
	require.Equal(t, domain.PathExtend, second.Path)
	requireStreak(t, second.Streak, 2, 2)

	third := f.mark(t, "2024-01-03")
	requireStreak(t, third.Streak, 3, 3)
	require.Equal(t, "2024-01-03", third.Streak.LastActiveDate.String())
}

func TestMarkActiveGapResetsCurrent(t *testing.T) {
	f := newFixture(t)
	f.mark(t, "2024-01-01")
	result := f.mark(t, "2024-01-03")
	requireStreak(t, result.Streak, 1, 1)
}

func TestMarkActiveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.mark(t, "2024-01-01")
	before := f.mark(t, "2024-01-02")

	again := f.mark(t, "2024-01-02")
	require.True(t, again.Replaced)
	require.Equal(t, domain.PathRepeat, again.Path)
	require.Equal(t, before.Streak.CurrentStreak, again.Streak.CurrentStreak)
	require.Equal(t, before.Streak.LongestStreak, again.Streak.LongestStreak)
	require.True(t, before.Streak.LastActiveDate.Equal(again.Streak.LastActiveDate))
	require.Equal(t, before.Entry.CreatedAt, again.Entry.CreatedAt)

	count, err := f.svc.ActiveDaysInRange(context.Background(), f.key, domain.MustParseDate("2024-01-01"), domain.MustParseDate("2024-01-31"))
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestMarkActiveBackfillMatchesInOrder(t *testing.T) {
	f := newFixture(t)
	f.mark(t, "2024-01-01")
	f.mark(t, "2024-01-03")
	result := f.mark(t, "2024-01-02")
	requireStreak(t, result.Streak, 3, 3)
	require.Equal(t, "2024-01-03", result.Streak.LastActiveDate.String())
}

func TestMarkActiveScenarioWithBackfilledGap(t *testing.T) {
	f := newFixture(t)

	requireStreak(t, f.mark(t, "2024-01-01").Streak, 1, 1)
	requireStreak(t, f.mark(t, "2024-01-02").Streak, 2, 2)
	requireStreak(t, f.mark(t, "2024-01-04").Streak, 1, 2)

	// Filling 01-03 joins both runs into 01-01..01-04.
	result := f.mark(t, "2024-01-03")
	requireStreak(t, result.Streak, 4, 4)
	require.Equal(t, "2024-01-04", result.Streak.LastActiveDate.String())
}

func TestLongestStreakNeverDecreases(t *testing.T) {
	f := newFixture(t)
	longest := 0
	for _, date := range []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-06", "2023-12-20", "2024-01-07", "2024-01-09", "2024-01-02"} {
		result := f.mark(t, date)
		require.GreaterOrEqual(t, result.Streak.LongestStreak, longest, date)
		require.GreaterOrEqual(t, result.Streak.LongestStreak, result.Streak.CurrentStreak, date)
		longest = result.Streak.LongestStreak
	}
	require.Equal(t, 3, longest)
}

func TestMarkActiveRejectsNonMember(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.MarkActive(context.Background(), domain.MarkActiveInput{UserID: "mallory", GroupID: f.group.ID, Date: "2024-01-01"})
	require.ErrorIs(t, err, domain.ErrNotMember)

	entries, err := f.store.ListEntries(context.Background(), domain.PairKey{UserID: "mallory", GroupID: f.group.ID},
		domain.MustParseDate("2023-01-01"), domain.MustParseDate("2025-01-01"))
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Empty(t, f.store.Events())
}

func TestMarkActiveValidatesDates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, date := range []string{"2024-01-11", "2022-12-31", "yesterday", "2024-02-30"} {
		_, err := f.svc.MarkActive(ctx, domain.MarkActiveInput{UserID: "alice", GroupID: f.group.ID, Date: date})
		require.ErrorIs(t, err, domain.ErrInvalidDate, date)
	}

	_, err := f.svc.MarkActive(ctx, domain.MarkActiveInput{UserID: "alice", GroupID: f.group.ID, Date: "2024-01-10", ActivityType: "skydiving"})
	require.ErrorIs(t, err, domain.ErrInvalidActivityType)

	_, err = f.svc.MarkActive(ctx, domain.MarkActiveInput{UserID: " ", GroupID: f.group.ID})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestMarkActiveUsesCallerZoneForToday(t *testing.T) {
	late := time.Date(2024, 1, 10, 23, 30, 0, 0, time.UTC)
	f := newFixture(t, domain.WithClock(func() time.Time { return late }))
	tokyo := time.FixedZone("JST", 9*60*60)
	ctx := context.Background()

	result, err := f.svc.MarkActive(ctx, domain.MarkActiveInput{UserID: "alice", GroupID: f.group.ID, Location: tokyo})
	require.NoError(t, err)
	require.Equal(t, "2024-01-11", result.Entry.Date.String())
	require.Equal(t, domain.ActivityOther, result.Entry.ActivityType)

	// The same calendar day is still in the future for a UTC caller.
	_, err = f.svc.MarkActive(ctx, domain.MarkActiveInput{UserID: "alice", GroupID: f.group.ID, Date: "2024-01-11"})
	require.ErrorIs(t, err, domain.ErrInvalidDate)
}

func TestMarkActiveRecordsEvents(t *testing.T) {
	f := newFixture(t)
	f.mark(t, "2024-01-01")

	events := f.store.Events()
	require.Len(t, events, 2)
	require.Equal(t, domain.EventActivityMarked, events[0].Type)
	require.Equal(t, domain.EventStreakUpdated, events[1].Type)
	require.Equal(t, f.group.ID, events[1].GroupID)
	require.Equal(t, int64(1), events[1].Version)
}

func TestConcurrentMarksForOnePair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			date := fmt.Sprintf("2024-01-%02d", i%10+1)
			_, err := f.svc.MarkActive(ctx, domain.MarkActiveInput{UserID: "alice", GroupID: f.group.ID, Date: date})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	state, err := f.svc.GetStreak(ctx, f.key)
	require.NoError(t, err)
	requireStreak(t, *state, 10, 10)
	require.Equal(t, int64(50), state.Version)
}

func TestConcurrentMarksAcrossPairsAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	users := []string{"bob", "carol", "dave"}
	for _, user := range users {
		_, err := f.svc.UpsertProfile(ctx, user, user+"@example.com", user)
		require.NoError(t, err)
		_, err = f.svc.InviteMember(ctx, "alice", f.group.ID, user+"@example.com")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(users)*5)
	for _, user := range users {
		for day := 1; day <= 5; day++ {
			wg.Add(1)
			go func(user string, day int) {
				defer wg.Done()
				_, err := f.svc.MarkActive(ctx, domain.MarkActiveInput{UserID: user, GroupID: f.group.ID, Date: fmt.Sprintf("2024-01-%02d", day)})
				errs <- err
			}(user, day)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, user := range users {
		state, err := f.svc.GetStreak(ctx, domain.PairKey{UserID: user, GroupID: f.group.ID})
		require.NoError(t, err)
		requireStreak(t, *state, 5, 5)
	}
}

// flakyStore fails the first n pair transactions after running them, so nothing commits.
type flakyStore struct {
	*memory.Store
	mu       sync.Mutex
	failures int
	err      error
	attempts int
}

func (s *flakyStore) WithinPair(ctx context.Context, key domain.PairKey, fn func(domain.PairTx) error) error {
	s.mu.Lock()
	s.attempts++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()

	return s.Store.WithinPair(ctx, key, func(tx domain.PairTx) error {
		if err := fn(tx); err != nil {
			return err
		}
		if fail {
			return s.err
		}
		return nil
	})
}

func newFlaky(t *testing.T, failures int, err error, maxAttempts int) (*flakyStore, *domain.Service, string) {
	t.Helper()
	store := &flakyStore{Store: memory.New(), failures: failures, err: err}
	svc := domain.NewService(store,
		domain.WithClock(func() time.Time { return fixedNow }),
		domain.WithRetry(maxAttempts, 0),
	)
	group, err2 := svc.CreateGroup(context.Background(), domain.CreateGroupInput{CreatorID: "alice", Name: "Flaky"})
	require.NoError(t, err2)
	return store, svc, group.ID
}

func TestMarkActiveRetriesConflicts(t *testing.T) {
	store, svc, groupID := newFlaky(t, 2, domain.ErrConcurrentUpdate, 4)

	result, err := svc.MarkActive(context.Background(), domain.MarkActiveInput{UserID: "alice", GroupID: groupID, Date: "2024-01-05"})
	require.NoError(t, err)
	require.Equal(t, 3, result.Attempts)
	require.Equal(t, 3, store.attempts)
	requireStreak(t, result.Streak, 1, 1)
	require.Equal(t, int64(1), result.Streak.Version)
}

func TestMarkActiveSurfacesUnavailableAfterRetries(t *testing.T) {
	store, svc, groupID := newFlaky(t, 10, fmt.Errorf("%w: connection reset", domain.ErrStoreUnavailable), 3)

	_, err := svc.MarkActive(context.Background(), domain.MarkActiveInput{UserID: "alice", GroupID: groupID, Date: "2024-01-05"})
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	require.Equal(t, 3, store.attempts)

	state, err := svc.GetStreak(context.Background(), domain.PairKey{UserID: "alice", GroupID: groupID})
	require.NoError(t, err)
	requireStreak(t, *state, 0, 0)
}

func TestMarkActiveExhaustedConflictsBecomeUnavailable(t *testing.T) {
	_, svc, groupID := newFlaky(t, 10, domain.ErrConcurrentUpdate, 2)

	_, err := svc.MarkActive(context.Background(), domain.MarkActiveInput{UserID: "alice", GroupID: groupID, Date: "2024-01-05"})
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestMarkActiveDoesNotRetryTerminalErrors(t *testing.T) {
	store, svc, groupID := newFlaky(t, 5, errors.New("constraint violated"), 4)

	_, err := svc.MarkActive(context.Background(), domain.MarkActiveInput{UserID: "alice", GroupID: groupID, Date: "2024-01-05"})
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrStoreUnavailable)
	require.Equal(t, 1, store.attempts)
}

func TestActiveDaysInRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, date := range []string{"2024-01-01", "2024-01-02", "2024-01-05"} {
		f.mark(t, date)
	}

	count, err := f.svc.ActiveDaysInRange(ctx, f.key, domain.MustParseDate("2024-01-02"), domain.MustParseDate("2024-01-05"))
	require.NoError(t, err)
	require.Equal(t, 2, count)

	count, err = f.svc.ActiveDaysInRange(ctx, f.key, domain.MustParseDate("2024-01-05"), domain.MustParseDate("2024-01-01"))
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestActiveDaysInRangeRejectsMissingBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mark(t, "2024-01-01")

	_, err := f.svc.ActiveDaysInRange(ctx, f.key, domain.Date{}, domain.MustParseDate("2024-01-31"))
	require.ErrorIs(t, err, domain.ErrInvalidDate)

	_, err = domain.ParseDate("0001-01-01")
	require.ErrorIs(t, err, domain.ErrInvalidDate)

	count, err := f.svc.ActiveDaysInRange(ctx, f.key, domain.MustParseDate("1970-01-01"), domain.MustParseDate("2024-01-31"))
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestListEntriesPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for day := 1; day <= 5; day++ {
		f.mark(t, fmt.Sprintf("2024-01-%02d", day))
	}

	page, cursor, err := f.svc.ListEntries(ctx, f.key, nil, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.Equal(t, "2024-01-05", page[0].Date.String())
	require.NotNil(t, cursor)

	rest, cursor, err := f.svc.ListEntries(ctx, f.key, cursor, 3)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.Equal(t, "2024-01-01", rest[1].Date.String())
	require.Nil(t, cursor)
}

func TestLeaderboardRanksMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.UpsertProfile(ctx, "bob", "bob@example.com", "Bob")
	require.NoError(t, err)
	_, err = f.svc.InviteMember(ctx, "alice", f.group.ID, "bob@example.com")
	require.NoError(t, err)

	f.mark(t, "2024-01-09")
	for _, date := range []string{"2024-01-08", "2024-01-09", "2024-01-10"} {
		_, err := f.svc.MarkActive(ctx, domain.MarkActiveInput{UserID: "bob", GroupID: f.group.ID, Date: date})
		require.NoError(t, err)
	}

	board, err := f.svc.Leaderboard(ctx, f.group.ID)
	require.NoError(t, err)
	require.Equal(t, 2, board.Group.MemberCount)
	require.Equal(t, 5.0, board.Group.PrizeAmount)
	require.Equal(t, "DT", board.Group.Currency)
	require.Len(t, board.Entries, 2)
	require.Equal(t, "bob", board.Entries[0].UserID)
	require.Equal(t, "Bob", board.Entries[0].DisplayName)
	require.Equal(t, 3, board.Entries[0].CurrentStreak)
	require.Equal(t, 2, board.Entries[1].Rank)

	_, err = f.svc.Leaderboard(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrGroupNotFound)
}

type gatedStandingsStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu      sync.Mutex
	ctxErrs []error
}

func (s *gatedStandingsStore) GroupStandings(ctx context.Context, groupID string) ([]domain.Standing, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	s.mu.Lock()
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Store.GroupStandings(ctx, groupID)
}

func TestLeaderboardBuildOutlivesFirstCallerCancel(t *testing.T) {
	store := &gatedStandingsStore{Store: memory.New(), entered: make(chan struct{}), release: make(chan struct{})}
	svc := domain.NewService(store, domain.WithClock(func() time.Time { return fixedNow }))
	group, err := svc.CreateGroup(context.Background(), domain.CreateGroupInput{CreatorID: "alice", Name: "Morning Crew", PrizeAmount: 5})
	require.NoError(t, err)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Leaderboard(firstCtx, group.ID)
		firstErr <- err
	}()
	<-store.entered

	type result struct {
		board *domain.Leaderboard
		err   error
	}
	second := make(chan result, 1)
	go func() {
		board, err := svc.Leaderboard(context.Background(), group.ID)
		second <- result{board, err}
	}()

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	close(store.release)

	got := <-second
	require.NoError(t, got.err)
	require.Len(t, got.board.Entries, 1)
	require.Equal(t, "alice", got.board.Entries[0].UserID)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.NotEmpty(t, store.ctxErrs)
	for _, err := range store.ctxErrs {
		require.NoError(t, err)
	}
}

func TestMonthCalendarAndDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mark(t, "2023-12-31")
	f.mark(t, "2024-01-01")
	f.mark(t, "2024-01-02")

	second, err := f.svc.CreateGroup(ctx, domain.CreateGroupInput{CreatorID: "alice", Name: "Evening Crew"})
	require.NoError(t, err)
	_, err = f.svc.MarkActive(ctx, domain.MarkActiveInput{UserID: "alice", GroupID: second.ID, Date: "2024-01-02"})
	require.NoError(t, err)
	_, err = f.svc.MarkActive(ctx, domain.MarkActiveInput{UserID: "alice", GroupID: second.ID, Date: "2024-01-05"})
	require.NoError(t, err)

	cal, err := f.svc.MonthCalendar(ctx, f.key, 2024, time.January, nil)
	require.NoError(t, err)
	require.Equal(t, 2, cal.ActiveDays)

	_, err = f.svc.MonthCalendar(ctx, domain.PairKey{UserID: "mallory", GroupID: f.group.ID}, 2024, time.January, nil)
	require.ErrorIs(t, err, domain.ErrNotMember)
	_, err = f.svc.MonthCalendar(ctx, f.key, 2024, 13, nil)
	require.ErrorIs(t, err, domain.ErrInvalidDate)

	stats, err := f.svc.Dashboard(ctx, "alice", nil)
	require.NoError(t, err)
	require.Equal(t, 3, stats.CurrentStreak)
	require.Equal(t, 3, stats.LongestStreak)
	require.Equal(t, 2, stats.GroupCount)
	require.Equal(t, 3, stats.ActiveDaysThisMonth)
	require.Equal(t, "2024-01", stats.Month)

	empty, err := f.svc.Dashboard(ctx, "nobody", nil)
	require.NoError(t, err)
	require.Zero(t, empty.GroupCount)
	require.Zero(t, empty.CurrentStreak)
}

func TestRebuildStreaksRepairsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, date := range []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-05"} {
		f.mark(t, date)
	}

	// Corrupt the materialized view directly.
	require.NoError(t, f.store.WithinPair(ctx, f.key, func(tx domain.PairTx) error {
		state, err := tx.LoadStreak(ctx)
		if err != nil {
			return err
		}
		broken := state
		broken.CurrentStreak, broken.LongestStreak = 0, 0
		broken.Version = state.Version + 1
		return tx.SaveStreak(ctx, broken, state.Version)
	}))

	report, err := f.svc.RebuildStreaks(ctx, f.group.ID)
	require.NoError(t, err)
	require.Equal(t, 1, report.Members)
	require.Equal(t, 1, report.Changed)

	state, err := f.svc.GetStreak(ctx, f.key)
	require.NoError(t, err)
	requireStreak(t, *state, 1, 3)
	require.Equal(t, "2024-01-05", state.LastActiveDate.String())

	again, err := f.svc.RebuildStreaks(ctx, f.group.ID)
	require.NoError(t, err)
	require.Zero(t, again.Changed)
}
