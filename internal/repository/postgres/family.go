package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dkovalev/famvpn/internal/models"
)

type familyGroupRepository struct {
	q dbtx
}

func (r *familyGroupRepository) Create(ctx context.Context, group *models.FamilyGroup) (*models.FamilyGroup, error) {
	query := `
		INSERT INTO family_groups (owner_user_id, subscription_id, created_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	group.CreatedAt = time.Now().UTC()
	err := r.q.QueryRowContext(ctx, query,
		group.OwnerUserID,
		group.SubscriptionID,
		group.CreatedAt,
	).Scan(&group.ID, &group.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create family group: %w", wrapDuplicate(err))
	}

	return group, nil
}

func scanGroup(row *sql.Row) (*models.FamilyGroup, error) {
	group := &models.FamilyGroup{}
	err := row.Scan(&group.ID, &group.OwnerUserID, &group.SubscriptionID, &group.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return group, nil
}

func (r *familyGroupRepository) GetByID(ctx context.Context, id int64) (*models.FamilyGroup, error) {
	query := `
		SELECT id, owner_user_id, subscription_id, created_at
		FROM family_groups
		WHERE id = $1`

	group, err := scanGroup(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get family group by ID: %w", err)
	}
	return group, nil
}

// GetByIDForUpdate locks the group row until the surrounding transaction
// completes. The group row is the single point of mutual exclusion for
// membership-count invariants.
func (r *familyGroupRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.FamilyGroup, error) {
	query := `
		SELECT id, owner_user_id, subscription_id, created_at
		FROM family_groups
		WHERE id = $1
		FOR UPDATE`

	group, err := scanGroup(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock family group: %w", err)
	}
	return group, nil
}

func (r *familyGroupRepository) GetByOwner(ctx context.Context, ownerUserID int64) (*models.FamilyGroup, error) {
	query := `
		SELECT id, owner_user_id, subscription_id, created_at
		FROM family_groups
		WHERE owner_user_id = $1`

	group, err := scanGroup(r.q.QueryRowContext(ctx, query, ownerUserID))
	if err != nil {
		return nil, fmt.Errorf("failed to get family group by owner: %w", err)
	}
	return group, nil
}

func (r *familyGroupRepository) ExistsForOwner(ctx context.Context, ownerUserID, excludeGroupID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM family_groups WHERE owner_user_id = $1 AND id <> $2)`

	var exists bool
	if err := r.q.QueryRowContext(ctx, query, ownerUserID, excludeGroupID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check owner group existence: %w", err)
	}
	return exists, nil
}

// RebindSubscription points the group at the owner's current subscription
// row. Needed after a renewal replaces the subscription id.
func (r *familyGroupRepository) RebindSubscription(ctx context.Context, groupID, subscriptionID int64) error {
	query := `UPDATE family_groups SET subscription_id = $2 WHERE id = $1`

	if _, err := r.q.ExecContext(ctx, query, groupID, subscriptionID); err != nil {
		return fmt.Errorf("failed to rebind family group subscription: %w", wrapDuplicate(err))
	}
	return nil
}
