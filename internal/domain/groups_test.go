package domain_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/fitstreak/internal/domain"
)

func TestCreateGroupValidatesAndDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.Equal(t, "Morning Crew", f.group.Name)
	require.Equal(t, domain.DefaultCurrency, f.group.Currency)
	require.Equal(t, "alice", f.group.CreatedBy)

	state, err := f.svc.GetStreak(ctx, f.key)
	require.NoError(t, err)
	requireStreak(t, *state, 0, 0)

	_, err = f.svc.CreateGroup(ctx, domain.CreateGroupInput{CreatorID: "alice", Name: "   "})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.svc.CreateGroup(ctx, domain.CreateGroupInput{CreatorID: "alice", Name: strings.Repeat("é", domain.MaxGroupNameLength+1)})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.svc.CreateGroup(ctx, domain.CreateGroupInput{CreatorID: "alice", Name: "Broke", PrizeAmount: -1})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	eur, err := f.svc.CreateGroup(ctx, domain.CreateGroupInput{CreatorID: "alice", Name: "Euro", Currency: "eur"})
	require.NoError(t, err)
	require.Equal(t, "EUR", eur.Currency)

	groups, err := f.svc.ListGroups(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, groups, 2)
}

func TestGetGroupRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	group, err := f.svc.GetGroup(ctx, "alice", f.group.ID)
	require.NoError(t, err)
	require.Equal(t, 1, group.MemberCount)

	_, err = f.svc.GetGroup(ctx, "mallory", f.group.ID)
	require.ErrorIs(t, err, domain.ErrNotMember)
	_, err = f.svc.GetGroup(ctx, "alice", "missing")
	require.ErrorIs(t, err, domain.ErrGroupNotFound)
}

func TestInviteMemberWithExistingProfileAddsDirectly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.UpsertProfile(ctx, "bob", " Bob@Example.COM ", "Bob")
	require.NoError(t, err)

	result, err := f.svc.InviteMember(ctx, "alice", f.group.ID, "bob@example.com")
	require.NoError(t, err)
	require.Equal(t, "bob", result.AddedUserID)
	require.Nil(t, result.Invitation)

	again, err := f.svc.InviteMember(ctx, "alice", f.group.ID, "BOB@example.com")
	require.NoError(t, err)
	require.Equal(t, "bob", again.AddedUserID)

	group, err := f.svc.GetGroup(ctx, "bob", f.group.ID)
	require.NoError(t, err)
	require.Equal(t, 2, group.MemberCount)
}

func TestInviteMemberRecordsPendingInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.InviteMember(ctx, "alice", f.group.ID, "Carol@Example.com")
	require.NoError(t, err)
	require.NotNil(t, result.Invitation)
	require.Equal(t, "carol@example.com", result.Invitation.Email)
	require.Equal(t, domain.InvitationPending, result.Invitation.Status)

	dup, err := f.svc.InviteMember(ctx, "alice", f.group.ID, "carol@example.com")
	require.NoError(t, err)
	require.Equal(t, result.Invitation.ID, dup.Invitation.ID)

	pending, err := f.svc.ListInvitations(ctx, "CAROL@example.com")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = f.svc.AcceptInvitation(ctx, "carol", "someone@example.com", result.Invitation.ID)
	require.ErrorIs(t, err, domain.ErrInvitationMismatch)

	membership, err := f.svc.AcceptInvitation(ctx, "carol", "carol@example.com", result.Invitation.ID)
	require.NoError(t, err)
	require.Equal(t, f.group.ID, membership.GroupID)

	_, err = f.svc.AcceptInvitation(ctx, "carol", "carol@example.com", result.Invitation.ID)
	require.ErrorIs(t, err, domain.ErrInvitationClosed)
	_, err = f.svc.AcceptInvitation(ctx, "carol", "carol@example.com", "missing")
	require.ErrorIs(t, err, domain.ErrInvitationNotFound)

	state, err := f.svc.GetStreak(ctx, domain.PairKey{UserID: "carol", GroupID: f.group.ID})
	require.NoError(t, err)
	requireStreak(t, *state, 0, 0)

	pending, err = f.svc.ListInvitations(ctx, "carol@example.com")
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestInviteMemberRequiresMemberInviter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.InviteMember(ctx, "mallory", f.group.ID, "x@example.com")
	require.ErrorIs(t, err, domain.ErrNotMember)
	_, err = f.svc.InviteMember(ctx, "alice", f.group.ID, "not-an-email")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestUpsertProfileRejectsTakenEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpsertProfile(ctx, "alice", "alice@example.com", "Alice")
	require.NoError(t, err)
	_, err = f.svc.UpsertProfile(ctx, "bob", "ALICE@example.com", "Bob")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.svc.UpsertProfile(ctx, "bob", "", "Bob")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}
