package domain

import "context"

// RecomputePath names the branch of the streak algorithm that produced a new state.
type RecomputePath string

const (
	// PathFirst: no earlier active date exists for the pair.
	PathFirst RecomputePath = "first"
	// PathExtend: the marked date directly follows the date that produced the current streak.
	PathExtend RecomputePath = "extend"
	// PathRepeat: the date was already active.
	PathRepeat RecomputePath = "repeat"
	// PathRescan: a gap or a backfill forced a scan of the full ledger.
	PathRescan RecomputePath = "rescan"
)

// history is the read side of a PairTx needed by the algorithm.
type history interface {
	PreviousActiveDate(ctx context.Context, before Date) (Date, bool, error)
	ActiveDates(ctx context.Context) ([]Date, error)
}

// advanceStreak derives the state that follows marking date active.
// alreadyActive must report whether date was active before this write.
func advanceStreak(ctx context.Context, h history, prev StreakState, date Date, alreadyActive bool) (StreakState, RecomputePath, error) {
	next := prev

	if alreadyActive {
		return next, PathRepeat, nil
	}

	last := prev.LastActiveDate
	if last.IsZero() || !date.Before(last) {
		next.LastActiveDate = date
	}

	if !last.IsZero() && date.Before(last) {
		return rescan(ctx, h, next)
	}

	previous, found, err := h.PreviousActiveDate(ctx, date)
	if err != nil {
		return prev, "", err
	}

	switch {
	case !found:
		next.CurrentStreak = 1
		next.LongestStreak = max(next.LongestStreak, next.CurrentStreak)
		return next, PathFirst, nil
	case previous.AddDays(1).Equal(date) && previous.Equal(last):
		next.CurrentStreak = prev.CurrentStreak + 1
		next.LongestStreak = max(next.LongestStreak, next.CurrentStreak)
		return next, PathExtend, nil
	default:
		return rescan(ctx, h, next)
	}
}

func rescan(ctx context.Context, h history, next StreakState) (StreakState, RecomputePath, error) {
	dates, err := h.ActiveDates(ctx)
	if err != nil {
		return next, "", err
	}
	next.CurrentStreak = RunEndingAtLatest(dates)
	if len(dates) > 0 {
		next.LastActiveDate = dates[len(dates)-1]
	}
	next.LongestStreak = max(next.LongestStreak, next.CurrentStreak)
	return next, PathRescan, nil
}

// RunEndingAtLatest returns the length of the run of consecutive days ending at the
// last element of dates. dates must be ascending and distinct.
func RunEndingAtLatest(dates []Date) int {
	if len(dates) == 0 {
		return 0
	}
	run := 1
	for i := len(dates) - 1; i > 0; i-- {
		if !dates[i-1].AddDays(1).Equal(dates[i]) {
			break
		}
		run++
	}
	return run
}

// LongestRun returns the longest run of consecutive days in ascending, distinct dates.
func LongestRun(dates []Date) int {
	if len(dates) == 0 {
		return 0
	}
	best, run := 1, 1
	for i := 1; i < len(dates); i++ {
		if dates[i-1].AddDays(1).Equal(dates[i]) {
			run++
		} else {
			run = 1
		}
		best = max(best, run)
	}
	return best
}
