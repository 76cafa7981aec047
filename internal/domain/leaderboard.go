package domain

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"example.com/fitstreak/internal/observability"
)

// LeaderboardEntry is a ranked member row.
type LeaderboardEntry struct {
	Rank int
	Standing
}

// Leaderboard is a group's ranking together with its prize metadata.
type Leaderboard struct {
	Group       Group
	Entries     []LeaderboardEntry
	GeneratedAt time.Time
}

// Leaderboard ranks every member of the group by current streak. Ties are broken by total
// active days (desc), join time (asc) and user id, so the order is deterministic.
// Concurrent calls for the same group share one store round trip. The shared build is
// detached from any single caller's cancellation; each caller still stops waiting when
// its own ctx is done.
func (s *Service) Leaderboard(ctx context.Context, groupID string) (*Leaderboard, error) {
	buildCtx := context.WithoutCancel(ctx)
	ch := s.leaderboards.DoChan(groupID, func() (any, error) {
		start := time.Now()
		defer func() { observability.ObserveLeaderboard(time.Since(start)) }()

		group, err := s.store.GetGroup(buildCtx, groupID)
		if err != nil {
			return nil, err
		}
		if group == nil {
			return nil, ErrGroupNotFound
		}

		standings, err := s.store.GroupStandings(buildCtx, groupID)
		if err != nil {
			return nil, err
		}
		group.MemberCount = len(standings)

		return &Leaderboard{
			Group:       *group,
			Entries:     RankStandings(standings),
			GeneratedAt: s.now().UTC(),
		}, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	board := res.Val.(*Leaderboard)
	// Callers sharing a flight must not alias each other's slice.
	out := *board
	out.Entries = append([]LeaderboardEntry(nil), board.Entries...)
	return &out, nil
}

// RankStandings orders standings and assigns 1-based ranks.
func RankStandings(standings []Standing) []LeaderboardEntry {
	sorted := append([]Standing(nil), standings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.CurrentStreak != b.CurrentStreak {
			return a.CurrentStreak > b.CurrentStreak
		}
		if a.ActiveDays != b.ActiveDays {
			return a.ActiveDays > b.ActiveDays
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.UserID < b.UserID
	})

	entries := make([]LeaderboardEntry, 0, len(sorted))
	for i, standing := range sorted {
		entries = append(entries, LeaderboardEntry{Rank: i + 1, Standing: standing})
	}
	return entries
}
