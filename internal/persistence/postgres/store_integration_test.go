//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/fitstreak/internal/domain"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("streaks"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applied, err := Migrate(ctx, pool)
	require.NoError(t, err)
	require.NotEmpty(t, applied)

	again, err := Migrate(ctx, pool)
	require.NoError(t, err)
	require.Empty(t, again, "migrations must be recorded once applied")
	return pool
}

func TestConcurrentMarksOfOnePairSerialize(t *testing.T) {
	ctx := context.Background()
	store := New(startPostgres(t))

	groupID, userID := uuid.NewString(), uuid.NewString()
	require.NoError(t, store.CreateGroup(ctx, domain.Group{
		ID: groupID, Name: "Lunch Runners", PrizeAmount: 5, Currency: "DT",
		CreatedBy: userID, CreatedAt: time.Now().UTC(),
	}))

	now := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)
	svc := domain.NewService(store, domain.WithClock(func() time.Time { return now }), domain.WithRetry(10, time.Millisecond))

	dates := []string{"2024-01-15", "2024-01-16", "2024-01-17", "2024-01-18", "2024-01-19", "2024-01-20"}
	var wg sync.WaitGroup
	errs := make(chan error, len(dates)*3)
	for i := 0; i < 3; i++ {
		for _, date := range dates {
			wg.Add(1)
			go func(date string) {
				defer wg.Done()
				_, err := svc.MarkActive(ctx, domain.MarkActiveInput{UserID: userID, GroupID: groupID, Date: date})
				errs <- err
			}(date)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	streak, err := svc.GetStreak(ctx, domain.PairKey{UserID: userID, GroupID: groupID})
	require.NoError(t, err)
	require.Equal(t, 6, streak.CurrentStreak)
	require.Equal(t, 6, streak.LongestStreak)
	require.Equal(t, "2024-01-20", streak.LastActiveDate.String())

	var outboxRows int
	require.NoError(t, store.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE group_id = $1`, groupID).Scan(&outboxRows))
	require.Equal(t, len(dates)*3*2, outboxRows)
}

func TestMarkActiveRejectsNonMember(t *testing.T) {
	ctx := context.Background()
	store := New(startPostgres(t))

	groupID := uuid.NewString()
	require.NoError(t, store.CreateGroup(ctx, domain.Group{
		ID: groupID, Name: "Closed", Currency: "DT", CreatedBy: "owner", CreatedAt: time.Now().UTC(),
	}))

	svc := domain.NewService(store)
	_, err := svc.MarkActive(ctx, domain.MarkActiveInput{UserID: "stranger", GroupID: groupID})
	require.ErrorIs(t, err, domain.ErrNotMember)

	var entries int
	require.NoError(t, store.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activity_entries WHERE group_id = $1`, groupID).Scan(&entries))
	require.Zero(t, entries)
}

func TestInvitationsAndStandings(t *testing.T) {
	ctx := context.Background()
	store := New(startPostgres(t))
	svc := domain.NewService(store)

	group, err := svc.CreateGroup(ctx, domain.CreateGroupInput{CreatorID: "alice", Name: "Gym Rats", PrizeAmount: 12.5})
	require.NoError(t, err)

	invite, err := svc.InviteMember(ctx, "alice", group.ID, "Bob@Example.com")
	require.NoError(t, err)
	require.NotNil(t, invite.Invitation)

	dup, err := svc.InviteMember(ctx, "alice", group.ID, "bob@example.com")
	require.NoError(t, err)
	require.Equal(t, invite.Invitation.ID, dup.Invitation.ID)

	_, err = svc.AcceptInvitation(ctx, "bob", "bob@example.com", invite.Invitation.ID)
	require.NoError(t, err)
	_, err = svc.AcceptInvitation(ctx, "bob", "bob@example.com", invite.Invitation.ID)
	require.ErrorIs(t, err, domain.ErrInvitationClosed)

	_, err = svc.MarkActive(ctx, domain.MarkActiveInput{UserID: "bob", GroupID: group.ID})
	require.NoError(t, err)

	board, err := svc.Leaderboard(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, board.Entries, 2)
	require.Equal(t, "bob", board.Entries[0].UserID)
	require.Equal(t, 12.5, board.Group.PrizeAmount)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
