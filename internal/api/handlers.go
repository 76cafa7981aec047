// Package api exposes HTTP handlers for the streak service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"example.com/fitstreak/internal/auth"
	"example.com/fitstreak/internal/domain"
	"example.com/fitstreak/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service  *domain.Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "api"),
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", healthz)

	mux.HandleFunc("PUT /v1/me/profile", h.upsertProfile)
	mux.HandleFunc("GET /v1/me/dashboard", h.dashboard)
	mux.HandleFunc("GET /v1/me/invitations", h.listInvitations)
	mux.HandleFunc("POST /v1/invitations/{invitationID}/accept", h.acceptInvitation)

	mux.HandleFunc("POST /v1/groups", h.createGroup)
	mux.HandleFunc("GET /v1/groups", h.listGroups)
	mux.HandleFunc("GET /v1/groups/{groupID}", h.getGroup)
	mux.HandleFunc("GET /v1/groups/{groupID}/leaderboard", h.leaderboard)
	mux.HandleFunc("POST /v1/groups/{groupID}/invitations", h.inviteMember)

	mux.HandleFunc("POST /v1/groups/{groupID}/activity", h.markActive)
	mux.HandleFunc("GET /v1/groups/{groupID}/activity", h.listEntries)
	mux.HandleFunc("GET /v1/groups/{groupID}/activity/days", h.activeDays)
	mux.HandleFunc("GET /v1/groups/{groupID}/calendar", h.calendar)
	mux.HandleFunc("GET /v1/groups/{groupID}/streak", h.streak)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// caller returns the authenticated claims if they carry at least one of the scopes.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return nil, false
}

func (h *Handler) reader(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	return h.caller(w, r, auth.ScopeActivityRead, auth.ScopeActivityWrite)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return h.check(w, dst)
}

func (h *Handler) check(w http.ResponseWriter, v any) bool {
	if err := h.validate.Struct(v); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func (h *Handler) upsertProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.caller(w, r, auth.ScopeGroupsWrite, auth.ScopeActivityWrite)
	if !ok {
		return
	}
	var req ProfileRequest
	if !h.decode(w, r, &req) {
		return
	}
	email := req.Email
	if email == "" {
		email = claims.Email
	}
	name := req.DisplayName
	if name == "" {
		name = claims.Name
	}

	profile, err := h.service.UpsertProfile(r.Context(), claims.Subject, email, name)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileView{UserID: profile.UserID, Email: profile.Email, DisplayName: profile.DisplayName})
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.reader(w, r)
	if !ok {
		return
	}
	loc, ok := h.location(w, r.URL.Query().Get("tz"))
	if !ok {
		return
	}

	stats, err := h.service.Dashboard(r.Context(), claims.Subject, loc)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DashboardView{
		CurrentStreak:       stats.CurrentStreak,
		LongestStreak:       stats.LongestStreak,
		GroupCount:          stats.GroupCount,
		ActiveDaysThisMonth: stats.ActiveDaysThisMonth,
		Month:               stats.Month,
	})
}

func (h *Handler) listInvitations(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.reader(w, r)
	if !ok {
		return
	}
	invitations, err := h.service.ListInvitations(r.Context(), claims.Email)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	items := make([]InvitationView, 0, len(invitations))
	for _, invitation := range invitations {
		items = append(items, toInvitationView(invitation))
	}
	writeJSON(w, http.StatusOK, ListResponse[InvitationView]{Items: items})
}

func (h *Handler) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.caller(w, r, auth.ScopeGroupsWrite)
	if !ok {
		return
	}
	membership, err := h.service.AcceptInvitation(r.Context(), claims.Subject, claims.Email, r.PathValue("invitationID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MembershipView{UserID: membership.UserID, GroupID: membership.GroupID, JoinedAt: membership.JoinedAt})
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.caller(w, r, auth.ScopeGroupsWrite)
	if !ok {
		return
	}
	var req CreateGroupRequest
	if !h.decode(w, r, &req) {
		return
	}
	prize := DefaultPrizeAmount
	if req.PrizeAmount != nil {
		prize = *req.PrizeAmount
	}

	group, err := h.service.CreateGroup(r.Context(), domain.CreateGroupInput{
		CreatorID:   claims.Subject,
		Name:        req.Name,
		Description: req.Description,
		PrizeAmount: prize,
		Currency:    req.Currency,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupView(*group))
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.reader(w, r)
	if !ok {
		return
	}
	groups, err := h.service.ListGroups(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	items := make([]GroupView, 0, len(groups))
	for _, group := range groups {
		items = append(items, toGroupView(group))
	}
	writeJSON(w, http.StatusOK, ListResponse[GroupView]{Items: items})
}

func (h *Handler) getGroup(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.reader(w, r)
	if !ok {
		return
	}
	group, err := h.service.GetGroup(r.Context(), claims.Subject, r.PathValue("groupID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupView(*group))
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.reader(w, r)
	if !ok {
		return
	}
	groupID := r.PathValue("groupID")
	if _, err := h.service.GetGroup(r.Context(), claims.Subject, groupID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	board, err := h.service.Leaderboard(r.Context(), groupID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaderboardView(*board))
}

func (h *Handler) inviteMember(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.caller(w, r, auth.ScopeGroupsWrite)
	if !ok {
		return
	}
	var req InviteRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.InviteMember(r.Context(), claims.Subject, r.PathValue("groupID"), req.Email)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if result.Invitation != nil {
		invitation := toInvitationView(*result.Invitation)
		writeJSON(w, http.StatusAccepted, InviteResponse{Status: "invited", Invitation: &invitation})
		return
	}
	writeJSON(w, http.StatusOK, InviteResponse{Status: "added", UserID: result.AddedUserID})
}

func (h *Handler) markActive(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.caller(w, r, auth.ScopeActivityWrite)
	if !ok {
		return
	}
	var req MarkActiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	loc, ok := h.location(w, req.Timezone)
	if !ok {
		return
	}

	result, err := h.service.MarkActive(r.Context(), domain.MarkActiveInput{
		UserID:       claims.Subject,
		GroupID:      r.PathValue("groupID"),
		Date:         req.Date,
		ActivityType: req.ActivityType,
		Location:     loc,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MarkActiveResponse{
		Entry:    toEntryView(result.Entry),
		Streak:   toStreakView(result.Streak),
		Replaced: result.Replaced,
		Path:     string(result.Path),
	})
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.reader(w, r)
	if !ok {
		return
	}
	key := domain.PairKey{UserID: claims.Subject, GroupID: r.PathValue("groupID")}
	if err := h.service.RequireMember(r.Context(), key); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	entries, next, err := h.service.ListEntries(r.Context(), key, cursor, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	items := make([]EntryView, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toEntryView(entry))
	}
	writeJSON(w, http.StatusOK, ListResponse[EntryView]{Items: items, NextCursor: persistence.EncodeCursor(next)})
}

func (h *Handler) activeDays(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.reader(w, r)
	if !ok {
		return
	}
	query := ActiveDaysQuery{
		Start:  r.URL.Query().Get("start"),
		End:    r.URL.Query().Get("end"),
		UserID: strings.TrimSpace(r.URL.Query().Get("user_id")),
	}
	if !h.check(w, &query) {
		return
	}

	groupID := r.PathValue("groupID")
	if err := h.service.RequireMember(r.Context(), domain.PairKey{UserID: claims.Subject, GroupID: groupID}); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	target := domain.PairKey{UserID: claims.Subject, GroupID: groupID}
	if query.UserID != "" {
		target.UserID = query.UserID
	}

	start, err := domain.ParseDate(query.Start)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	end, err := domain.ParseDate(query.End)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	count, err := h.service.ActiveDaysInRange(r.Context(), target, start, end)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ActiveDaysView{UserID: target.UserID, GroupID: groupID, Start: query.Start, End: query.End, ActiveDays: count})
}

func (h *Handler) calendar(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.reader(w, r)
	if !ok {
		return
	}
	query := CalendarQuery{Month: r.URL.Query().Get("month"), Timezone: r.URL.Query().Get("tz")}
	if !h.check(w, &query) {
		return
	}
	loc, ok := h.location(w, query.Timezone)
	if !ok {
		return
	}

	today := h.service.Today(loc)
	year, month := today.Year(), today.Month()
	if query.Month != "" {
		parsed, _ := time.Parse("2006-01", query.Month)
		year, month = parsed.Year(), parsed.Month()
	}

	cal, err := h.service.MonthCalendar(r.Context(), domain.PairKey{UserID: claims.Subject, GroupID: r.PathValue("groupID")},
		year, month, loc)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCalendarView(*cal))
}

func (h *Handler) streak(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.reader(w, r)
	if !ok {
		return
	}
	state, err := h.service.GetStreak(r.Context(), domain.PairKey{UserID: claims.Subject, GroupID: r.PathValue("groupID")})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStreakView(*state))
}

// location resolves an optional IANA zone name; nil means the service default.
func (h *Handler) location(w http.ResponseWriter, name string) (*time.Location, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, true
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "unknown time zone "+strconv.Quote(name))
		return nil, false
	}
	return loc, true
}
