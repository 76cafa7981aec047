package domain

import (
	"context"
	"fmt"
)

// RebuildReport summarises a rebuild run.
type RebuildReport struct {
	GroupID string
	Members int
	Changed int
}

// RebuildStreaks recomputes every member's streak from the ledger under the pair lock.
// The current streak is the run ending at the latest active date; the longest streak
// never decreases and absorbs the longest historical run.
func (s *Service) RebuildStreaks(ctx context.Context, groupID string) (*RebuildReport, error) {
	standings, err := s.store.GroupStandings(ctx, groupID)
	if err != nil {
		return nil, err
	}

	report := &RebuildReport{GroupID: groupID, Members: len(standings)}
	for _, standing := range standings {
		key := PairKey{UserID: standing.UserID, GroupID: groupID}
		changed, err := s.rebuildPair(ctx, key)
		if err != nil {
			return report, fmt.Errorf("rebuild %s: %w", key, err)
		}
		if changed {
			report.Changed++
		}
	}
	s.logger.InfoContext(ctx, "streaks rebuilt", "group_id", groupID, "members", report.Members, "changed", report.Changed)
	return report, nil
}

func (s *Service) rebuildPair(ctx context.Context, key PairKey) (bool, error) {
	changed := false
	err := s.store.WithinPair(ctx, key, func(tx PairTx) error {
		prev, err := tx.LoadStreak(ctx)
		if err != nil {
			return err
		}
		dates, err := tx.ActiveDates(ctx)
		if err != nil {
			return err
		}

		next := prev
		next.CurrentStreak = RunEndingAtLatest(dates)
		next.LongestStreak = max(prev.LongestStreak, LongestRun(dates))
		next.LastActiveDate = Date{}
		if len(dates) > 0 {
			next.LastActiveDate = dates[len(dates)-1]
		}
		if next.CurrentStreak == prev.CurrentStreak && next.LongestStreak == prev.LongestStreak && next.LastActiveDate.Equal(prev.LastActiveDate) {
			return nil
		}

		next.Version = prev.Version + 1
		next.UpdatedAt = s.now().UTC()
		changed = true
		return tx.SaveStreak(ctx, next, prev.Version)
	})
	return changed, err
}
