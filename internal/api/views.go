package api

import (
	"fmt"
	"time"

	"example.com/fitstreak/internal/domain"
)

// DefaultPrizeAmount is the monthly prize of a group created without one.
const DefaultPrizeAmount = 5.0

// ProfileRequest is the payload for PUT /v1/me/profile. Empty fields fall back to token claims.
type ProfileRequest struct {
	Email       string `json:"email" validate:"omitempty,email"`
	DisplayName string `json:"display_name" validate:"max=100"`
}

// CreateGroupRequest is the payload for POST /v1/groups.
type CreateGroupRequest struct {
	Name        string   `json:"name" validate:"required,max=80"`
	Description string   `json:"description" validate:"max=500"`
	PrizeAmount *float64 `json:"prize_amount" validate:"omitempty,gte=0"`
	Currency    string   `json:"currency" validate:"omitempty,alpha,min=2,max=3"`
}

// InviteRequest is the payload for POST /v1/groups/{groupID}/invitations.
type InviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// MarkActiveRequest is the payload for POST /v1/groups/{groupID}/activity.
// Date and ActivityType are validated by the engine so their errors keep their own codes.
type MarkActiveRequest struct {
	Date         string `json:"date"`
	ActivityType string `json:"activity_type"`
	Timezone     string `json:"timezone" validate:"omitempty,timezone"`
}

// ActiveDaysQuery holds the query of GET /v1/groups/{groupID}/activity/days.
type ActiveDaysQuery struct {
	Start  string `validate:"required,datetime=2006-01-02"`
	End    string `validate:"required,datetime=2006-01-02"`
	UserID string `validate:"omitempty,max=128"`
}

// CalendarQuery holds the query of GET /v1/groups/{groupID}/calendar.
type CalendarQuery struct {
	Month    string `validate:"omitempty,datetime=2006-01"`
	Timezone string `validate:"omitempty,timezone"`
}

// ListResponse packages list results.
type ListResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

type ProfileView struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type GroupView struct {
	GroupID     string    `json:"group_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PrizeAmount float64   `json:"prize_amount"`
	Currency    string    `json:"currency"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	MemberCount int       `json:"member_count"`
}

type MembershipView struct {
	UserID   string    `json:"user_id"`
	GroupID  string    `json:"group_id"`
	JoinedAt time.Time `json:"joined_at"`
}

type InvitationView struct {
	InvitationID string    `json:"invitation_id"`
	GroupID      string    `json:"group_id"`
	Email        string    `json:"email"`
	InvitedBy    string    `json:"invited_by"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// InviteResponse reports whether the invitee was enrolled directly or invited by email.
type InviteResponse struct {
	Status     string          `json:"status"`
	UserID     string          `json:"user_id,omitempty"`
	Invitation *InvitationView `json:"invitation,omitempty"`
}

type EntryView struct {
	Date         string    `json:"date"`
	IsActive     bool      `json:"is_active"`
	ActivityType string    `json:"activity_type"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type StreakView struct {
	UserID         string `json:"user_id"`
	GroupID        string `json:"group_id"`
	CurrentStreak  int    `json:"current_streak"`
	LongestStreak  int    `json:"longest_streak"`
	LastActiveDate string `json:"last_active_date,omitempty"`
}

type MarkActiveResponse struct {
	Entry    EntryView  `json:"entry"`
	Streak   StreakView `json:"streak"`
	Replaced bool       `json:"replaced"`
	Path     string     `json:"recompute_path"`
}

type ActiveDaysView struct {
	UserID     string `json:"user_id"`
	GroupID    string `json:"group_id"`
	Start      string `json:"start"`
	End        string `json:"end"`
	ActiveDays int    `json:"active_days"`
}

type LeaderboardEntryView struct {
	Rank          int       `json:"rank"`
	UserID        string    `json:"user_id"`
	DisplayName   string    `json:"display_name,omitempty"`
	CurrentStreak int       `json:"current_streak"`
	LongestStreak int       `json:"longest_streak"`
	ActiveDays    int       `json:"active_days"`
	JoinedAt      time.Time `json:"joined_at"`
}

type LeaderboardView struct {
	Group       GroupView              `json:"group"`
	Entries     []LeaderboardEntryView `json:"entries"`
	GeneratedAt time.Time              `json:"generated_at"`
}

type CalendarDayView struct {
	Date         string `json:"date"`
	InMonth      bool   `json:"in_month"`
	Active       bool   `json:"active"`
	ActivityType string `json:"activity_type,omitempty"`
	Today        bool   `json:"today"`
}

type CalendarView struct {
	Month      string              `json:"month"`
	ActiveDays int                 `json:"active_days"`
	Weeks      [][]CalendarDayView `json:"weeks"`
}

type DashboardView struct {
	CurrentStreak       int    `json:"current_streak"`
	LongestStreak       int    `json:"longest_streak"`
	GroupCount          int    `json:"group_count"`
	ActiveDaysThisMonth int    `json:"active_days_this_month"`
	Month               string `json:"month"`
}

func toGroupView(group domain.Group) GroupView {
	return GroupView{
		GroupID:     group.ID,
		Name:        group.Name,
		Description: group.Description,
		PrizeAmount: group.PrizeAmount,
		Currency:    group.Currency,
		CreatedBy:   group.CreatedBy,
		CreatedAt:   group.CreatedAt,
		MemberCount: group.MemberCount,
	}
}

func toInvitationView(invitation domain.Invitation) InvitationView {
	return InvitationView{
		InvitationID: invitation.ID,
		GroupID:      invitation.GroupID,
		Email:        invitation.Email,
		InvitedBy:    invitation.InvitedBy,
		Status:       string(invitation.Status),
		CreatedAt:    invitation.CreatedAt,
	}
}

func toEntryView(entry domain.ActivityEntry) EntryView {
	return EntryView{
		Date:         entry.Date.String(),
		IsActive:     entry.IsActive,
		ActivityType: string(entry.ActivityType),
		CreatedAt:    entry.CreatedAt,
		UpdatedAt:    entry.UpdatedAt,
	}
}

func toStreakView(state domain.StreakState) StreakView {
	return StreakView{
		UserID:         state.UserID,
		GroupID:        state.GroupID,
		CurrentStreak:  state.CurrentStreak,
		LongestStreak:  state.LongestStreak,
		LastActiveDate: state.LastActiveDate.String(),
	}
}

func toLeaderboardView(board domain.Leaderboard) LeaderboardView {
	entries := make([]LeaderboardEntryView, 0, len(board.Entries))
	for _, entry := range board.Entries {
		entries = append(entries, LeaderboardEntryView{
			Rank:          entry.Rank,
			UserID:        entry.UserID,
			DisplayName:   entry.DisplayName,
			CurrentStreak: entry.CurrentStreak,
			LongestStreak: entry.LongestStreak,
			ActiveDays:    entry.ActiveDays,
			JoinedAt:      entry.JoinedAt,
		})
	}
	return LeaderboardView{Group: toGroupView(board.Group), Entries: entries, GeneratedAt: board.GeneratedAt}
}

func toCalendarView(cal domain.MonthCalendar) CalendarView {
	weeks := make([][]CalendarDayView, 0, len(cal.Weeks))
	for _, week := range cal.Weeks {
		days := make([]CalendarDayView, 0, len(week))
		for _, day := range week {
			days = append(days, CalendarDayView{
				Date:         day.Date.String(),
				InMonth:      day.InMonth,
				Active:       day.Active,
				ActivityType: string(day.ActivityType),
				Today:        day.Today,
			})
		}
		weeks = append(weeks, days)
	}
	return CalendarView{
		Month:      fmt.Sprintf("%04d-%02d", cal.Year, int(cal.Month)),
		ActiveDays: cal.ActiveDays,
		Weeks:      weeks,
	}
}
