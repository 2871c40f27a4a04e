package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dkovalev/famvpn/internal/models"
)

type personalVPNRepository struct {
	q dbtx
}

const instanceColumns = `id, owner_user_id, panel_node_id, panel_squad_id, status, max_users, expires_at, last_restart_at, created_at, updated_at`

func scanInstance(row *sql.Row) (*models.PersonalVPNInstance, error) {
	inst := &models.PersonalVPNInstance{}
	var lastRestart sql.NullTime

	err := row.Scan(
		&inst.ID,
		&inst.OwnerUserID,
		&inst.PanelNodeID,
		&inst.PanelSquadID,
		&inst.Status,
		&inst.MaxUsers,
		&inst.ExpiresAt,
		&lastRestart,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if lastRestart.Valid {
		inst.LastRestartAt = &lastRestart.Time
	}
	return inst, nil
}

func (r *personalVPNRepository) CreateInstance(ctx context.Context, inst *models.PersonalVPNInstance) (*models.PersonalVPNInstance, error) {
	query := `
		INSERT INTO personal_vpn_instances (owner_user_id, panel_node_id, panel_squad_id, status, max_users, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id, created_at, updated_at`

	now := time.Now().UTC()
	err := r.q.QueryRowContext(ctx, query,
		inst.OwnerUserID,
		inst.PanelNodeID,
		inst.PanelSquadID,
		inst.Status,
		inst.MaxUsers,
		inst.ExpiresAt,
		now,
	).Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create personal VPN instance: %w", wrapDuplicate(err))
	}

	return inst, nil
}

func (r *personalVPNRepository) GetInstanceByID(ctx context.Context, id int64) (*models.PersonalVPNInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM personal_vpn_instances WHERE id = $1`

	inst, err := scanInstance(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get personal VPN instance: %w", err)
	}
	return inst, nil
}

func (r *personalVPNRepository) GetInstanceByOwner(ctx context.Context, ownerUserID int64) (*models.PersonalVPNInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM personal_vpn_instances WHERE owner_user_id = $1`

	inst, err := scanInstance(r.q.QueryRowContext(ctx, query, ownerUserID))
	if err != nil {
		return nil, fmt.Errorf("failed to get personal VPN instance by owner: %w", err)
	}
	return inst, nil
}

func (r *personalVPNRepository) GetInstanceByOwnerForUpdate(ctx context.Context, ownerUserID int64) (*models.PersonalVPNInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM personal_vpn_instances WHERE owner_user_id = $1 FOR UPDATE`

	inst, err := scanInstance(r.q.QueryRowContext(ctx, query, ownerUserID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock personal VPN instance: %w", err)
	}
	return inst, nil
}

func (r *personalVPNRepository) UpdateInstance(ctx context.Context, inst *models.PersonalVPNInstance) error {
	query := `
		UPDATE personal_vpn_instances
		SET status = $2, max_users = $3, expires_at = $4, last_restart_at = $5, updated_at = $6
		WHERE id = $1`

	inst.UpdatedAt = time.Now().UTC()
	result, err := r.q.ExecContext(ctx, query,
		inst.ID,
		inst.Status,
		inst.MaxUsers,
		inst.ExpiresAt,
		inst.LastRestartAt,
		inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update personal VPN instance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("personal VPN instance %d not found", inst.ID)
	}
	return nil
}

const subUserColumns = `id, instance_id, panel_user_id, expires_at, device_limit, traffic_limit_bytes, subscription_link, deleted_at, created_at`

func (r *personalVPNRepository) CountActiveSubUsers(ctx context.Context, instanceID int64) (int, error) {
	query := `SELECT COUNT(id) FROM personal_vpn_users WHERE instance_id = $1 AND deleted_at IS NULL`

	var count int
	if err := r.q.QueryRowContext(ctx, query, instanceID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sub-users: %w", err)
	}
	return count, nil
}

func (r *personalVPNRepository) ListSubUsers(ctx context.Context, instanceID int64) ([]*models.PersonalVPNSubUser, error) {
	query := `SELECT ` + subUserColumns + ` FROM personal_vpn_users
		WHERE instance_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`

	rows, err := r.q.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sub-users: %w", err)
	}
	defer rows.Close()

	var users []*models.PersonalVPNSubUser
	for rows.Next() {
		u := &models.PersonalVPNSubUser{}
		var link sql.NullString
		var deletedAt sql.NullTime
		if err := rows.Scan(
			&u.ID,
			&u.InstanceID,
			&u.PanelUserID,
			&u.ExpiresAt,
			&u.DeviceLimit,
			&u.TrafficLimitBytes,
			&link,
			&deletedAt,
			&u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sub-user: %w", err)
		}
		u.SubscriptionLink = link.String
		if deletedAt.Valid {
			u.DeletedAt = &deletedAt.Time
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *personalVPNRepository) GetSubUser(ctx context.Context, id int64) (*models.PersonalVPNSubUser, error) {
	query := `SELECT ` + subUserColumns + ` FROM personal_vpn_users WHERE id = $1`

	u := &models.PersonalVPNSubUser{}
	var link sql.NullString
	var deletedAt sql.NullTime
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&u.ID,
		&u.InstanceID,
		&u.PanelUserID,
		&u.ExpiresAt,
		&u.DeviceLimit,
		&u.TrafficLimitBytes,
		&link,
		&deletedAt,
		&u.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sub-user: %w", err)
	}
	u.SubscriptionLink = link.String
	if deletedAt.Valid {
		u.DeletedAt = &deletedAt.Time
	}
	return u, nil
}

func (r *personalVPNRepository) CreateSubUser(ctx context.Context, u *models.PersonalVPNSubUser) (*models.PersonalVPNSubUser, error) {
	query := `
		INSERT INTO personal_vpn_users (instance_id, panel_user_id, expires_at, device_limit, traffic_limit_bytes, subscription_link, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	u.CreatedAt = time.Now().UTC()
	err := r.q.QueryRowContext(ctx, query,
		u.InstanceID,
		u.PanelUserID,
		u.ExpiresAt,
		u.DeviceLimit,
		u.TrafficLimitBytes,
		u.SubscriptionLink,
		u.CreatedAt,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create sub-user: %w", wrapDuplicate(err))
	}

	return u, nil
}

func (r *personalVPNRepository) SoftDeleteSubUser(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE personal_vpn_users SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.q.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to delete sub-user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("sub-user %d not found", id)
	}
	return nil
}
