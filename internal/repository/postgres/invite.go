package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dkovalev/famvpn/internal/models"
)

type familyInviteRepository struct {
	q dbtx
}

const inviteColumns = `id, family_group_id, invitee_user_id, inviter_user_id, token, status, created_at, decided_at, expires_at`

func scanInvite(row *sql.Row) (*models.FamilyInvite, error) {
	inv := &models.FamilyInvite{}
	var token sql.NullString
	var decidedAt sql.NullTime

	err := row.Scan(
		&inv.ID,
		&inv.FamilyGroupID,
		&inv.InviteeUserID,
		&inv.InviterUserID,
		&token,
		&inv.Status,
		&inv.CreatedAt,
		&decidedAt,
		&inv.ExpiresAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	inv.Token = token.String
	if decidedAt.Valid {
		inv.DecidedAt = &decidedAt.Time
	}
	return inv, nil
}

// Create inserts a pending invite. The partial unique index on
// (family_group_id, invitee_user_id) WHERE status = 'pending' turns a
// concurrent duplicate into repository.ErrDuplicate.
func (r *familyInviteRepository) Create(ctx context.Context, invite *models.FamilyInvite) (*models.FamilyInvite, error) {
	query := `
		INSERT INTO family_invites (family_group_id, invitee_user_id, inviter_user_id, token, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	invite.CreatedAt = time.Now().UTC()
	err := r.q.QueryRowContext(ctx, query,
		invite.FamilyGroupID,
		invite.InviteeUserID,
		invite.InviterUserID,
		invite.Token,
		invite.Status,
		invite.CreatedAt,
		invite.ExpiresAt,
	).Scan(&invite.ID, &invite.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create family invite: %w", wrapDuplicate(err))
	}

	return invite, nil
}

func (r *familyInviteRepository) GetByID(ctx context.Context, id int64) (*models.FamilyInvite, error) {
	query := `SELECT ` + inviteColumns + ` FROM family_invites WHERE id = $1`

	inv, err := scanInvite(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get family invite: %w", err)
	}
	return inv, nil
}

// GetByIDForUpdate locks the invite row. Locks are always taken in
// invite-then-group order to keep the lock graph acyclic.
func (r *familyInviteRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.FamilyInvite, error) {
	query := `SELECT ` + inviteColumns + ` FROM family_invites WHERE id = $1 FOR UPDATE`

	inv, err := scanInvite(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock family invite: %w", err)
	}
	return inv, nil
}

func (r *familyInviteRepository) GetPending(ctx context.Context, groupID, inviteeUserID int64) (*models.FamilyInvite, error) {
	query := `SELECT ` + inviteColumns + ` FROM family_invites
		WHERE family_group_id = $1 AND invitee_user_id = $2 AND status = $3`

	inv, err := scanInvite(r.q.QueryRowContext(ctx, query, groupID, inviteeUserID, models.InvitePending))
	if err != nil {
		return nil, fmt.Errorf("failed to get pending invite: %w", err)
	}
	return inv, nil
}

func (r *familyInviteRepository) listInvites(ctx context.Context, query string, args ...any) ([]*models.FamilyInvite, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query family invites: %w", err)
	}
	defer rows.Close()

	var invites []*models.FamilyInvite
	for rows.Next() {
		inv := &models.FamilyInvite{}
		var token sql.NullString
		var decidedAt sql.NullTime
		if err := rows.Scan(
			&inv.ID,
			&inv.FamilyGroupID,
			&inv.InviteeUserID,
			&inv.InviterUserID,
			&token,
			&inv.Status,
			&inv.CreatedAt,
			&decidedAt,
			&inv.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan family invite: %w", err)
		}
		inv.Token = token.String
		if decidedAt.Valid {
			inv.DecidedAt = &decidedAt.Time
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

func (r *familyInviteRepository) ListPendingByGroup(ctx context.Context, groupID int64) ([]*models.FamilyInvite, error) {
	query := `SELECT ` + inviteColumns + ` FROM family_invites
		WHERE family_group_id = $1 AND status = $2
		ORDER BY created_at DESC`
	return r.listInvites(ctx, query, groupID, models.InvitePending)
}

func (r *familyInviteRepository) ListPendingForInvitee(ctx context.Context, inviteeUserID int64) ([]*models.FamilyInvite, error) {
	query := `SELECT ` + inviteColumns + ` FROM family_invites
		WHERE invitee_user_id = $1 AND status = $2
		ORDER BY created_at DESC`
	return r.listInvites(ctx, query, inviteeUserID, models.InvitePending)
}

// ExpirePending flips every pending invite past its expiry to expired and
// returns the affected rows. Used by the background sweeper; acceptance has
// its own lazy expiry check under the row lock.
func (r *familyInviteRepository) ExpirePending(ctx context.Context, now time.Time) ([]*models.FamilyInvite, error) {
	query := `UPDATE family_invites SET status = $1, decided_at = $2
		WHERE status = $3 AND expires_at IS NOT NULL AND expires_at < $2
		RETURNING ` + inviteColumns
	return r.listInvites(ctx, query, models.InviteExpired, now, models.InvitePending)
}

func (r *familyInviteRepository) SetStatus(ctx context.Context, id int64, status string, decidedAt time.Time) error {
	query := `UPDATE family_invites SET status = $2, decided_at = $3 WHERE id = $1`

	result, err := r.q.ExecContext(ctx, query, id, status, decidedAt)
	if err != nil {
		return fmt.Errorf("failed to update invite status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("family invite %d not found", id)
	}
	return nil
}
