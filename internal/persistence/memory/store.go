// Package memory provides an in-process Store used by tests and local demos.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"example.com/fitstreak/internal/domain"
)

// Store keeps every table in maps. Writers of one pair are serialized by a per-pair
// mutex and their staged changes are applied on commit.
type Store struct {
	mu          sync.RWMutex
	pairLocks   map[domain.PairKey]*sync.Mutex
	groups      map[string]domain.Group
	members     map[domain.PairKey]domain.Membership
	streaks     map[domain.PairKey]domain.StreakState
	entries     map[domain.PairKey]map[string]domain.ActivityEntry
	profiles    map[string]domain.Profile
	invitations map[string]domain.Invitation
	events      []domain.Event
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		pairLocks:   make(map[domain.PairKey]*sync.Mutex),
		groups:      make(map[string]domain.Group),
		members:     make(map[domain.PairKey]domain.Membership),
		streaks:     make(map[domain.PairKey]domain.StreakState),
		entries:     make(map[domain.PairKey]map[string]domain.ActivityEntry),
		profiles:    make(map[string]domain.Profile),
		invitations: make(map[string]domain.Invitation),
	}
}

var _ domain.Store = (*Store)(nil)

func (s *Store) pairLock(key domain.PairKey) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.pairLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.pairLocks[key] = lock
	}
	return lock
}

// WithinPair runs fn against a staged view of the pair and commits when fn returns nil.
func (s *Store) WithinPair(ctx context.Context, key domain.PairKey, fn func(domain.PairTx) error) error {
	lock := s.pairLock(key)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &pairTx{store: s, key: key, staged: make(map[string]domain.ActivityEntry)}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *pairTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.streak != nil {
		current, ok := s.streaks[tx.key]
		if !ok {
			return domain.ErrNotMember
		}
		if current.Version != tx.expectedVersion {
			return domain.ErrConcurrentUpdate
		}
	}

	if len(tx.staged) > 0 {
		rows := s.entries[tx.key]
		if rows == nil {
			rows = make(map[string]domain.ActivityEntry)
			s.entries[tx.key] = rows
		}
		for date, entry := range tx.staged {
			rows[date] = entry
		}
	}
	if tx.streak != nil {
		s.streaks[tx.key] = *tx.streak
	}
	s.events = append(s.events, tx.events...)
	return nil
}

// Events returns a copy of every event committed so far.
func (s *Store) Events() []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Event(nil), s.events...)
}

type pairTx struct {
	store           *Store
	key             domain.PairKey
	staged          map[string]domain.ActivityEntry
	streak          *domain.StreakState
	expectedVersion int64
	events          []domain.Event
}

func (tx *pairTx) LoadStreak(ctx context.Context) (domain.StreakState, error) {
	if tx.streak != nil {
		return *tx.streak, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	state, ok := tx.store.streaks[tx.key]
	if !ok {
		return domain.StreakState{}, domain.ErrNotMember
	}
	return state, nil
}

func (tx *pairTx) GetEntry(ctx context.Context, date domain.Date) (*domain.ActivityEntry, error) {
	if entry, ok := tx.staged[date.String()]; ok {
		return &entry, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	entry, ok := tx.store.entries[tx.key][date.String()]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (tx *pairTx) UpsertEntry(ctx context.Context, entry domain.ActivityEntry) error {
	tx.staged[entry.Date.String()] = entry
	return nil
}

func (tx *pairTx) PreviousActiveDate(ctx context.Context, before domain.Date) (domain.Date, bool, error) {
	var (
		best  domain.Date
		found bool
	)
	for _, date := range tx.activeDates() {
		if date.Before(before) && (!found || date.After(best)) {
			best, found = date, true
		}
	}
	return best, found, nil
}

func (tx *pairTx) ActiveDates(ctx context.Context) ([]domain.Date, error) {
	return tx.activeDates(), nil
}

func (tx *pairTx) activeDates() []domain.Date {
	tx.store.mu.RLock()
	merged := make(map[string]domain.ActivityEntry, len(tx.store.entries[tx.key])+len(tx.staged))
	for date, entry := range tx.store.entries[tx.key] {
		merged[date] = entry
	}
	tx.store.mu.RUnlock()
	for date, entry := range tx.staged {
		merged[date] = entry
	}

	dates := make([]domain.Date, 0, len(merged))
	for _, entry := range merged {
		if entry.IsActive {
			dates = append(dates, entry.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func (tx *pairTx) SaveStreak(ctx context.Context, state domain.StreakState, expectedVersion int64) error {
	current, err := tx.LoadStreak(ctx)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return domain.ErrConcurrentUpdate
	}
	if tx.streak == nil {
		tx.expectedVersion = expectedVersion
	}
	state.UserID, state.GroupID = tx.key.UserID, tx.key.GroupID
	tx.streak = &state
	return nil
}

func (tx *pairTx) RecordEvent(ctx context.Context, event domain.Event) error {
	tx.events = append(tx.events, event)
	return nil
}

func (s *Store) GetMembership(ctx context.Context, key domain.PairKey) (*domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	membership, ok := s.members[key]
	if !ok {
		return nil, nil
	}
	return &membership, nil
}

func (s *Store) GetStreak(ctx context.Context, key domain.PairKey) (*domain.StreakState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.streaks[key]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (s *Store) ListUserStreaks(ctx context.Context, userID string) ([]domain.StreakState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.StreakState
	for key, state := range s.streaks {
		if key.UserID == userID {
			out = append(out, state)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out, nil
}

func (s *Store) CountActiveDays(ctx context.Context, key domain.PairKey, start, end domain.Date) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, entry := range s.entries[key] {
		if entry.IsActive && inRange(entry.Date, start, end) {
			count++
		}
	}
	return count, nil
}

func (s *Store) CountUserActiveDays(ctx context.Context, userID string, start, end domain.Date) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	days := make(map[string]struct{})
	for key, rows := range s.entries {
		if key.UserID != userID {
			continue
		}
		for date, entry := range rows {
			if entry.IsActive && inRange(entry.Date, start, end) {
				days[date] = struct{}{}
			}
		}
	}
	return len(days), nil
}

func (s *Store) ListEntries(ctx context.Context, key domain.PairKey, start, end domain.Date) ([]domain.ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ActivityEntry
	for _, entry := range s.entries[key] {
		if inRange(entry.Date, start, end) {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) PageEntries(ctx context.Context, key domain.PairKey, cursor *domain.EntryCursor, limit int) ([]domain.ActivityEntry, *domain.EntryCursor, error) {
	s.mu.RLock()
	all := make([]domain.ActivityEntry, 0, len(s.entries[key]))
	for _, entry := range s.entries[key] {
		if cursor == nil || entry.Date.Before(cursor.Date) {
			all = append(all, entry)
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Date.After(all[j].Date) })
	if len(all) > limit {
		all = all[:limit]
	}

	var next *domain.EntryCursor
	if len(all) == limit {
		next = &domain.EntryCursor{Date: all[len(all)-1].Date}
	}
	return all, next, nil
}

func (s *Store) GroupStandings(ctx context.Context, groupID string) ([]domain.Standing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Standing
	for key, membership := range s.members {
		if key.GroupID != groupID {
			continue
		}
		state := s.streaks[key]
		active := 0
		for _, entry := range s.entries[key] {
			if entry.IsActive {
				active++
			}
		}
		out = append(out, domain.Standing{
			UserID:        key.UserID,
			DisplayName:   s.profiles[key.UserID].DisplayName,
			JoinedAt:      membership.JoinedAt,
			CurrentStreak: state.CurrentStreak,
			LongestStreak: state.LongestStreak,
			ActiveDays:    active,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) CreateGroup(ctx context.Context, group domain.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[group.ID]; exists {
		return fmt.Errorf("group %s already exists", group.ID)
	}
	group.MemberCount = 0
	s.groups[group.ID] = group
	s.addMemberLocked(domain.Membership{UserID: group.CreatedBy, GroupID: group.ID, JoinedAt: group.CreatedAt})
	return nil
}

func (s *Store) addMemberLocked(membership domain.Membership) bool {
	key := domain.PairKey{UserID: membership.UserID, GroupID: membership.GroupID}
	if _, exists := s.members[key]; exists {
		return false
	}
	s.members[key] = membership
	s.streaks[key] = domain.StreakState{UserID: key.UserID, GroupID: key.GroupID, UpdatedAt: membership.JoinedAt}
	return true
}

func (s *Store) memberCountLocked(groupID string) int {
	count := 0
	for key := range s.members {
		if key.GroupID == groupID {
			count++
		}
	}
	return count
}

func (s *Store) GetGroup(ctx context.Context, groupID string) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	group, ok := s.groups[groupID]
	if !ok {
		return nil, nil
	}
	group.MemberCount = s.memberCountLocked(groupID)
	return &group, nil
}

func (s *Store) ListGroupsForUser(ctx context.Context, userID string) ([]domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Group
	for key := range s.members {
		if key.UserID != userID {
			continue
		}
		group, ok := s.groups[key.GroupID]
		if !ok {
			continue
		}
		group.MemberCount = s.memberCountLocked(group.ID)
		out = append(out, group)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) AddMember(ctx context.Context, membership domain.Membership) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[membership.GroupID]; !ok {
		return false, domain.ErrGroupNotFound
	}
	return s.addMemberLocked(membership), nil
}

func (s *Store) UpsertProfile(ctx context.Context, profile domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, existing := range s.profiles {
		if userID != profile.UserID && existing.Email == profile.Email {
			return fmt.Errorf("%w: email already belongs to another user", domain.ErrInvalidInput)
		}
	}
	s.profiles[profile.UserID] = profile
	return nil
}

func (s *Store) FindProfileByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, profile := range s.profiles {
		if profile.Email == email {
			return &profile, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateInvitation(ctx context.Context, invitation domain.Invitation) (*domain.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.invitations {
		if existing.GroupID == invitation.GroupID && existing.Email == invitation.Email && existing.Status == domain.InvitationPending {
			return &existing, nil
		}
	}
	s.invitations[invitation.ID] = invitation
	return &invitation, nil
}

func (s *Store) GetInvitation(ctx context.Context, invitationID string) (*domain.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	invitation, ok := s.invitations[invitationID]
	if !ok {
		return nil, nil
	}
	return &invitation, nil
}

func (s *Store) ListPendingInvitations(ctx context.Context, email string) ([]domain.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Invitation
	for _, invitation := range s.invitations {
		if invitation.Email == email && invitation.Status == domain.InvitationPending {
			out = append(out, invitation)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) AcceptInvitation(ctx context.Context, invitationID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	invitation, ok := s.invitations[invitationID]
	if !ok {
		return domain.ErrInvitationNotFound
	}
	if invitation.Status != domain.InvitationPending {
		return domain.ErrInvitationClosed
	}
	invitation.Status = domain.InvitationAccepted
	invitation.AcceptedAt = &at
	invitation.AcceptedBy = userID
	s.invitations[invitationID] = invitation
	s.addMemberLocked(domain.Membership{UserID: userID, GroupID: invitation.GroupID, JoinedAt: at})
	return nil
}

func inRange(date, start, end domain.Date) bool {
	return !date.Before(start) && !date.After(end)
}
