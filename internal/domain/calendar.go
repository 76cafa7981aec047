package domain

import (
	"context"
	"fmt"
	"time"
)

// CalendarDay is one cell of a month grid.
type CalendarDay struct {
	Date         Date
	InMonth      bool
	Active       bool
	ActivityType ActivityType
	Today        bool
}

// MonthCalendar is a Monday-first grid of whole weeks covering a month.
type MonthCalendar struct {
	Year       int
	Month      time.Month
	Weeks      [][]CalendarDay
	ActiveDays int
}

// BuildMonthGrid lays out the weeks covering year/month and marks the given entries.
func BuildMonthGrid(year int, month time.Month, entries []ActivityEntry, today Date) MonthCalendar {
	first := NewDate(year, month, 1)
	last := first.LastOfMonth()

	byDate := make(map[string]ActivityEntry, len(entries))
	for _, entry := range entries {
		if entry.IsActive {
			byDate[entry.Date.String()] = entry
		}
	}

	// Monday is offset 0.
	start := first.AddDays(-((int(first.Weekday()) + 6) % 7))
	end := last.AddDays((7 - int(last.Weekday())) % 7)

	cal := MonthCalendar{Year: year, Month: month}
	var week []CalendarDay
	for day := start; !day.After(end); day = day.AddDays(1) {
		cell := CalendarDay{
			Date:    day,
			InMonth: day.Month() == month && day.Year() == year,
			Today:   day.Equal(today),
		}
		if entry, ok := byDate[day.String()]; ok && cell.InMonth {
			cell.Active = true
			cell.ActivityType = entry.ActivityType
			cal.ActiveDays++
		}
		week = append(week, cell)
		if len(week) == 7 {
			cal.Weeks = append(cal.Weeks, week)
			week = nil
		}
	}
	return cal
}

// MonthCalendar returns the pair's month grid. A nil loc uses the service default zone for "today".
func (s *Service) MonthCalendar(ctx context.Context, key PairKey, year int, month time.Month, loc *time.Location) (*MonthCalendar, error) {
	if month < time.January || month > time.December || year < 1970 || year > 9999 {
		return nil, fmt.Errorf("%w: month %04d-%02d", ErrInvalidDate, year, int(month))
	}

	membership, err := s.store.GetMembership(ctx, key)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, ErrNotMember
	}

	first := NewDate(year, month, 1)
	entries, err := s.store.ListEntries(ctx, key, first, first.LastOfMonth())
	if err != nil {
		return nil, err
	}

	cal := BuildMonthGrid(year, month, entries, s.today(loc))
	return &cal, nil
}

// DashboardStats summarises a user's activity across all of their groups.
type DashboardStats struct {
	CurrentStreak       int
	LongestStreak       int
	GroupCount          int
	ActiveDaysThisMonth int
	Month               string
}

// Dashboard reports the best current streak across groups, the group count and the
// distinct active days of the current month in the caller's zone.
func (s *Service) Dashboard(ctx context.Context, userID string, loc *time.Location) (*DashboardStats, error) {
	groups, err := s.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := s.today(loc)
	stats := &DashboardStats{
		GroupCount: len(groups),
		Month:      fmt.Sprintf("%04d-%02d", today.Year(), int(today.Month())),
	}
	if len(groups) == 0 {
		return stats, nil
	}

	streaks, err := s.store.ListUserStreaks(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, streak := range streaks {
		stats.CurrentStreak = max(stats.CurrentStreak, streak.CurrentStreak)
		stats.LongestStreak = max(stats.LongestStreak, streak.LongestStreak)
	}

	stats.ActiveDaysThisMonth, err = s.store.CountUserActiveDays(ctx, userID, today.FirstOfMonth(), today)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
