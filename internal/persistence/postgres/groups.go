package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/fitstreak/internal/domain"
)

// CreateGroup inserts the group and the creator's membership in one transaction.
func (s *Store) CreateGroup(ctx context.Context, group domain.Group) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO competition_groups (group_id, name, description, prize_amount, currency, created_by, created_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			group.ID, group.Name, group.Description, group.PrizeAmount, group.Currency, group.CreatedBy, group.CreatedAt); err != nil {
			return err
		}
		_, err := addMember(ctx, tx, domain.Membership{UserID: group.CreatedBy, GroupID: group.ID, JoinedAt: group.CreatedAt})
		return err
	})
}

// addMember inserts the membership and its zero streak row, reporting whether it was new.
func addMember(ctx context.Context, tx pgx.Tx, membership domain.Membership) (bool, error) {
	tag, err := tx.Exec(ctx, `INSERT INTO group_members (group_id, user_id, joined_at) VALUES ($1,$2,$3)
        ON CONFLICT (group_id, user_id) DO NOTHING`, membership.GroupID, membership.UserID, membership.JoinedAt)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	_, err = tx.Exec(ctx, `INSERT INTO streaks (user_id, group_id, current_streak, longest_streak, version, updated_at)
        VALUES ($1,$2,0,0,0,$3) ON CONFLICT (user_id, group_id) DO NOTHING`,
		membership.UserID, membership.GroupID, membership.JoinedAt)
	return err == nil, err
}

const groupColumns = `g.group_id, g.name, g.description, g.prize_amount::float8, g.currency, g.created_by, g.created_at,
    (SELECT COUNT(*) FROM group_members c WHERE c.group_id = g.group_id)`

func (s *Store) GetGroup(ctx context.Context, groupID string) (*domain.Group, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM competition_groups g WHERE g.group_id = $1`, groupID)
	group, err := scanGroup(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &group, nil
}

func (s *Store) ListGroupsForUser(ctx context.Context, userID string) ([]domain.Group, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+groupColumns+` FROM competition_groups g
        JOIN group_members m ON m.group_id = g.group_id
        WHERE m.user_id = $1
        ORDER BY g.created_at, g.group_id`, userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []domain.Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, group)
	}
	return out, classify(rows.Err())
}

func (s *Store) AddMember(ctx context.Context, membership domain.Membership) (bool, error) {
	var created bool
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM competition_groups WHERE group_id = $1)`, membership.GroupID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrGroupNotFound
		}
		var err error
		created, err = addMember(ctx, tx, membership)
		return err
	})
	return created, err
}

func (s *Store) UpsertProfile(ctx context.Context, profile domain.Profile) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO profiles (user_id, email, display_name, updated_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id) DO UPDATE SET
            email = EXCLUDED.email,
            display_name = EXCLUDED.display_name,
            updated_at = EXCLUDED.updated_at`,
		profile.UserID, profile.Email, profile.DisplayName, profile.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: email already belongs to another user", domain.ErrInvalidInput)
	}
	return classify(err)
}

func (s *Store) FindProfileByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	var profile domain.Profile
	err := s.pool.QueryRow(ctx, `SELECT user_id, email, display_name, updated_at FROM profiles WHERE email = $1`, email).
		Scan(&profile.UserID, &profile.Email, &profile.DisplayName, &profile.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &profile, nil
}

const invitationColumns = `invitation_id, group_id, email, invited_by, status, created_at, accepted_at, COALESCE(accepted_by, '')`

func (s *Store) CreateInvitation(ctx context.Context, invitation domain.Invitation) (*domain.Invitation, error) {
	var stored domain.Invitation
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `INSERT INTO invitations (invitation_id, group_id, email, invited_by, status, created_at)
            VALUES ($1,$2,$3,$4,$5,$6)
            ON CONFLICT (group_id, email) WHERE status = 'pending' DO NOTHING`,
			invitation.ID, invitation.GroupID, invitation.Email, invitation.InvitedBy, string(invitation.Status), invitation.CreatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			stored = invitation
			return nil
		}

		row := tx.QueryRow(ctx, `SELECT `+invitationColumns+` FROM invitations
            WHERE group_id = $1 AND email = $2 AND status = 'pending'`, invitation.GroupID, invitation.Email)
		stored, err = scanInvitation(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *Store) GetInvitation(ctx context.Context, invitationID string) (*domain.Invitation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE invitation_id = $1`, invitationID)
	invitation, err := scanInvitation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &invitation, nil
}

func (s *Store) ListPendingInvitations(ctx context.Context, email string) ([]domain.Invitation, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+invitationColumns+` FROM invitations
        WHERE email = $1 AND status = 'pending' ORDER BY created_at`, email)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []domain.Invitation
	for rows.Next() {
		invitation, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, invitation)
	}
	return out, classify(rows.Err())
}

// AcceptInvitation flips a pending invitation to accepted and enrolls the user atomically.
func (s *Store) AcceptInvitation(ctx context.Context, invitationID, userID string, at time.Time) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var groupID, status string
		err := tx.QueryRow(ctx, `SELECT group_id, status FROM invitations WHERE invitation_id = $1 FOR UPDATE`, invitationID).
			Scan(&groupID, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrInvitationNotFound
		}
		if err != nil {
			return err
		}
		if status != string(domain.InvitationPending) {
			return domain.ErrInvitationClosed
		}

		if _, err := tx.Exec(ctx, `UPDATE invitations SET status = 'accepted', accepted_at = $2, accepted_by = $3
            WHERE invitation_id = $1`, invitationID, at, userID); err != nil {
			return err
		}
		_, err = addMember(ctx, tx, domain.Membership{UserID: userID, GroupID: groupID, JoinedAt: at})
		return err
	})
}

func scanGroup(row pgx.Row) (domain.Group, error) {
	var group domain.Group
	err := row.Scan(&group.ID, &group.Name, &group.Description, &group.PrizeAmount, &group.Currency, &group.CreatedBy, &group.CreatedAt, &group.MemberCount)
	return group, err
}

func scanInvitation(row pgx.Row) (domain.Invitation, error) {
	var (
		invitation domain.Invitation
		status     string
	)
	if err := row.Scan(&invitation.ID, &invitation.GroupID, &invitation.Email, &invitation.InvitedBy, &status,
		&invitation.CreatedAt, &invitation.AcceptedAt, &invitation.AcceptedBy); err != nil {
		return domain.Invitation{}, err
	}
	invitation.Status = domain.InvitationStatus(status)
	return invitation, nil
}
