package domain

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxGroupNameLength bounds group names in characters.
const MaxGroupNameLength = 80

func newUUID() string { return uuid.NewString() }

// CreateGroupInput captures the payload for a new group.
type CreateGroupInput struct {
	CreatorID   string
	Name        string
	Description string
	PrizeAmount float64
	Currency    string
}

// CreateGroup stores a group and enrolls its creator.
func (s *Service) CreateGroup(ctx context.Context, input CreateGroupInput) (*Group, error) {
	name := strings.TrimSpace(input.Name)
	if strings.TrimSpace(input.CreatorID) == "" {
		return nil, fmt.Errorf("%w: creator is required", ErrInvalidInput)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > MaxGroupNameLength {
		return nil, fmt.Errorf("%w: group name exceeds %d characters", ErrInvalidInput, MaxGroupNameLength)
	}
	if input.PrizeAmount < 0 {
		return nil, fmt.Errorf("%w: prize amount must be >= 0", ErrInvalidInput)
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}

	group := Group{
		ID:          s.newID(),
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		PrizeAmount: input.PrizeAmount,
		Currency:    currency,
		CreatedBy:   input.CreatorID,
		CreatedAt:   s.now().UTC(),
		MemberCount: 1,
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "group created", "group_id", group.ID, "created_by", group.CreatedBy)
	return &group, nil
}

// ListGroups returns the groups the user belongs to.
func (s *Service) ListGroups(ctx context.Context, userID string) ([]Group, error) {
	return s.store.ListGroupsForUser(ctx, userID)
}

// GetGroup returns a group visible to one of its members.
func (s *Service) GetGroup(ctx context.Context, userID, groupID string) (*Group, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}
	membership, err := s.store.GetMembership(ctx, PairKey{UserID: userID, GroupID: groupID})
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, ErrNotMember
	}
	return group, nil
}

// RequireMember returns ErrNotMember unless the pair is a membership.
func (s *Service) RequireMember(ctx context.Context, key PairKey) error {
	membership, err := s.store.GetMembership(ctx, key)
	if err != nil {
		return err
	}
	if membership == nil {
		return ErrNotMember
	}
	return nil
}

// UpsertProfile records the identity provider's details for a user.
func (s *Service) UpsertProfile(ctx context.Context, userID, email, displayName string) (*Profile, error) {
	email = NormalizeEmail(email)
	if strings.TrimSpace(userID) == "" || email == "" {
		return nil, fmt.Errorf("%w: user and email are required", ErrInvalidInput)
	}
	profile := Profile{
		UserID:      userID,
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		UpdatedAt:   s.now().UTC(),
	}
	if err := s.store.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// InviteResult reports whether an invite enrolled an existing user or recorded an invitation.
type InviteResult struct {
	AddedUserID string
	Invitation  *Invitation
}

// InviteMember enrolls the user behind email if a profile exists, otherwise records a pending invitation.
func (s *Service) InviteMember(ctx context.Context, inviterID, groupID, email string) (*InviteResult, error) {
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if err := s.RequireMember(ctx, PairKey{UserID: inviterID, GroupID: groupID}); err != nil {
		return nil, err
	}

	profile, err := s.store.FindProfileByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	if profile != nil {
		created, err := s.store.AddMember(ctx, Membership{UserID: profile.UserID, GroupID: groupID, JoinedAt: now})
		if err != nil {
			return nil, err
		}
		if created {
			s.logger.InfoContext(ctx, "member added", "group_id", groupID, "user_id", profile.UserID, "invited_by", inviterID)
		}
		return &InviteResult{AddedUserID: profile.UserID}, nil
	}

	invitation := Invitation{
		ID:        s.newID(),
		GroupID:   groupID,
		Email:     email,
		InvitedBy: inviterID,
		Status:    InvitationPending,
		CreatedAt: now,
	}
	stored, err := s.store.CreateInvitation(ctx, invitation)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "invitation recorded", "group_id", groupID, "invitation_id", stored.ID)
	return &InviteResult{Invitation: stored}, nil
}

// ListInvitations returns pending invitations addressed to email.
func (s *Service) ListInvitations(ctx context.Context, email string) ([]Invitation, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	return s.store.ListPendingInvitations(ctx, email)
}

// AcceptInvitation enrolls the user in the invitation's group.
func (s *Service) AcceptInvitation(ctx context.Context, userID, email, invitationID string) (*Membership, error) {
	invitation, err := s.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if invitation == nil {
		return nil, ErrInvitationNotFound
	}
	if invitation.Email != NormalizeEmail(email) {
		return nil, ErrInvitationMismatch
	}
	if invitation.Status != InvitationPending {
		return nil, ErrInvitationClosed
	}

	now := s.now().UTC()
	if err := s.store.AcceptInvitation(ctx, invitationID, userID, now); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "invitation accepted", "group_id", invitation.GroupID, "user_id", userID)
	return &Membership{UserID: userID, GroupID: invitation.GroupID, JoinedAt: now}, nil
}
