package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/dkovalev/famvpn/internal/models"
)

type familyMemberRepository struct {
	q dbtx
}

const memberColumns = `id, family_group_id, user_id, status, invited_by_user_id, invited_at, accepted_at, removed_at`

func scanMember(row *sql.Row) (*models.FamilyMember, error) {
	m := &models.FamilyMember{}
	var invitedBy sql.NullInt64
	var acceptedAt, removedAt sql.NullTime

	err := row.Scan(
		&m.ID,
		&m.FamilyGroupID,
		&m.UserID,
		&m.Status,
		&invitedBy,
		&m.InvitedAt,
		&acceptedAt,
		&removedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	m.InvitedByUserID = invitedBy.Int64
	if acceptedAt.Valid {
		m.AcceptedAt = &acceptedAt.Time
	}
	if removedAt.Valid {
		m.RemovedAt = &removedAt.Time
	}
	return m, nil
}

func (r *familyMemberRepository) Create(ctx context.Context, member *models.FamilyMember) (*models.FamilyMember, error) {
	query := `
		INSERT INTO family_members (family_group_id, user_id, status, invited_by_user_id, invited_at, accepted_at, removed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	var invitedBy any
	if member.InvitedByUserID != 0 {
		invitedBy = member.InvitedByUserID
	}
	err := r.q.QueryRowContext(ctx, query,
		member.FamilyGroupID,
		member.UserID,
		member.Status,
		invitedBy,
		member.InvitedAt,
		member.AcceptedAt,
		member.RemovedAt,
	).Scan(&member.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create family member: %w", wrapDuplicate(err))
	}

	return member, nil
}

func (r *familyMemberRepository) Get(ctx context.Context, groupID, userID int64) (*models.FamilyMember, error) {
	query := `SELECT ` + memberColumns + ` FROM family_members WHERE family_group_id = $1 AND user_id = $2`

	m, err := scanMember(r.q.QueryRowContext(ctx, query, groupID, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get family member: %w", err)
	}
	return m, nil
}

func (r *familyMemberRepository) GetActiveByUser(ctx context.Context, userID int64) (*models.FamilyMember, error) {
	query := `SELECT ` + memberColumns + ` FROM family_members WHERE user_id = $1 AND status = $2`

	m, err := scanMember(r.q.QueryRowContext(ctx, query, userID, models.MemberActive))
	if err != nil {
		return nil, fmt.Errorf("failed to get active membership: %w", err)
	}
	return m, nil
}

func (r *familyMemberRepository) GetActiveForUpdate(ctx context.Context, groupID, userID int64) (*models.FamilyMember, error) {
	query := `SELECT ` + memberColumns + ` FROM family_members
		WHERE family_group_id = $1 AND user_id = $2 AND status = $3
		FOR UPDATE`

	m, err := scanMember(r.q.QueryRowContext(ctx, query, groupID, userID, models.MemberActive))
	if err != nil {
		return nil, fmt.Errorf("failed to lock active family member: %w", err)
	}
	return m, nil
}

func (r *familyMemberRepository) CountActive(ctx context.Context, groupID int64) (int, error) {
	query := `SELECT COUNT(id) FROM family_members WHERE family_group_id = $1 AND status = $2`

	var count int
	if err := r.q.QueryRowContext(ctx, query, groupID, models.MemberActive).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active members: %w", err)
	}
	return count, nil
}

func (r *familyMemberRepository) ListActiveUserIDs(ctx context.Context, groupID int64) ([]int64, error) {
	query := `SELECT user_id FROM family_members WHERE family_group_id = $1 AND status = $2 ORDER BY user_id ASC`

	rows, err := r.q.QueryContext(ctx, query, groupID, models.MemberActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active member IDs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *familyMemberRepository) ListByGroup(ctx context.Context, groupID int64, statuses []string) ([]*models.FamilyMember, error) {
	query := `SELECT ` + memberColumns + ` FROM family_members
		WHERE family_group_id = $1 AND status = ANY($2)
		ORDER BY invited_at DESC`

	rows, err := r.q.QueryContext(ctx, query, groupID, pq.Array(statuses))
	if err != nil {
		return nil, fmt.Errorf("failed to list family members: %w", err)
	}
	defer rows.Close()

	var members []*models.FamilyMember
	for rows.Next() {
		m := &models.FamilyMember{}
		var invitedBy sql.NullInt64
		var acceptedAt, removedAt sql.NullTime
		if err := rows.Scan(
			&m.ID,
			&m.FamilyGroupID,
			&m.UserID,
			&m.Status,
			&invitedBy,
			&m.InvitedAt,
			&acceptedAt,
			&removedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan family member: %w", err)
		}
		m.InvitedByUserID = invitedBy.Int64
		if acceptedAt.Valid {
			m.AcceptedAt = &acceptedAt.Time
		}
		if removedAt.Valid {
			m.RemovedAt = &removedAt.Time
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ExistsActive reports whether the user holds active membership in any group
// other than excludeGroupID. Backs the one-family-at-a-time rule.
func (r *familyMemberRepository) ExistsActive(ctx context.Context, userID, excludeGroupID int64) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM family_members
		WHERE user_id = $1 AND status = $2 AND family_group_id <> $3)`

	var exists bool
	if err := r.q.QueryRowContext(ctx, query, userID, models.MemberActive, excludeGroupID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check active membership: %w", err)
	}
	return exists, nil
}

func (r *familyMemberRepository) Update(ctx context.Context, member *models.FamilyMember) error {
	query := `
		UPDATE family_members
		SET status = $2, invited_by_user_id = $3, invited_at = $4, accepted_at = $5, removed_at = $6
		WHERE id = $1`

	var invitedBy any
	if member.InvitedByUserID != 0 {
		invitedBy = member.InvitedByUserID
	}
	result, err := r.q.ExecContext(ctx, query,
		member.ID,
		member.Status,
		invitedBy,
		member.InvitedAt,
		member.AcceptedAt,
		member.RemovedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update family member: %w", wrapDuplicate(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("family member %d not found", member.ID)
	}
	return nil
}
