package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dkovalev/famvpn/internal/models"
)

type familyDeviceRepository struct {
	q dbtx
}

const deviceColumns = `id, family_group_id, hwid, owner_user_id, platform, device_model, created_at, last_seen_at`

func (r *familyDeviceRepository) Create(ctx context.Context, device *models.FamilyDevice) (*models.FamilyDevice, error) {
	query := `
		INSERT INTO family_devices (family_group_id, hwid, owner_user_id, platform, device_model, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	if device.LastSeenAt.IsZero() {
		device.LastSeenAt = now
	}
	err := r.q.QueryRowContext(ctx, query,
		device.FamilyGroupID,
		device.HWID,
		device.OwnerUserID,
		device.Platform,
		device.DeviceModel,
		device.CreatedAt,
		device.LastSeenAt,
	).Scan(&device.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create family device: %w", wrapDuplicate(err))
	}

	return device, nil
}

func (r *familyDeviceRepository) GetByHWID(ctx context.Context, groupID int64, hwid string) (*models.FamilyDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM family_devices WHERE family_group_id = $1 AND hwid = $2`

	d := &models.FamilyDevice{}
	var platform, deviceModel sql.NullString
	err := r.q.QueryRowContext(ctx, query, groupID, hwid).Scan(
		&d.ID,
		&d.FamilyGroupID,
		&d.HWID,
		&d.OwnerUserID,
		&platform,
		&deviceModel,
		&d.CreatedAt,
		&d.LastSeenAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get family device: %w", err)
	}
	d.Platform = platform.String
	d.DeviceModel = deviceModel.String
	return d, nil
}

func (r *familyDeviceRepository) list(ctx context.Context, query string, args ...any) ([]*models.FamilyDevice, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query family devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.FamilyDevice
	for rows.Next() {
		d := &models.FamilyDevice{}
		var platform, deviceModel sql.NullString
		if err := rows.Scan(
			&d.ID,
			&d.FamilyGroupID,
			&d.HWID,
			&d.OwnerUserID,
			&platform,
			&deviceModel,
			&d.CreatedAt,
			&d.LastSeenAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan family device: %w", err)
		}
		d.Platform = platform.String
		d.DeviceModel = deviceModel.String
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (r *familyDeviceRepository) ListByGroup(ctx context.Context, groupID int64) ([]*models.FamilyDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM family_devices WHERE family_group_id = $1 ORDER BY id ASC`
	return r.list(ctx, query, groupID)
}

func (r *familyDeviceRepository) ListByOwner(ctx context.Context, groupID, ownerUserID int64) ([]*models.FamilyDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM family_devices
		WHERE family_group_id = $1 AND owner_user_id = $2
		ORDER BY id ASC`
	return r.list(ctx, query, groupID, ownerUserID)
}

func (r *familyDeviceRepository) Touch(ctx context.Context, id int64, platform, deviceModel string, seenAt time.Time) error {
	query := `UPDATE family_devices SET platform = $2, device_model = $3, last_seen_at = $4 WHERE id = $1`

	if _, err := r.q.ExecContext(ctx, query, id, platform, deviceModel, seenAt); err != nil {
		return fmt.Errorf("failed to touch family device: %w", err)
	}
	return nil
}

func (r *familyDeviceRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM family_devices WHERE id = $1`

	if _, err := r.q.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete family device: %w", err)
	}
	return nil
}
