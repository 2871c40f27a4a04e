package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dkovalev/famvpn/internal/models"
)

type subscriptionRepository struct {
	q dbtx
}

// GetByUserID loads the user's subscription together with its tariff in one
// query. The tariff projection is eager by design: the coordinator never
// follows a lazy relationship across the ownership boundary.
func (r *subscriptionRepository) GetByUserID(ctx context.Context, userID int64) (*models.Subscription, error) {
	query := `
		SELECT s.id, s.user_id, s.tariff_id, s.status, s.start_date, s.end_date, s.device_limit,
		       s.created_at, s.updated_at,
		       t.id, t.name, t.is_active, t.device_limit, t.family_enabled, t.family_max_members
		FROM subscriptions s
		LEFT JOIN tariffs t ON t.id = s.tariff_id
		WHERE s.user_id = $1`

	sub := &models.Subscription{}
	var tariffID sql.NullInt64
	var tID sql.NullInt64
	var tName sql.NullString
	var tActive, tFamilyEnabled sql.NullBool
	var tDeviceLimit, tFamilyMax sql.NullInt64

	err := r.q.QueryRowContext(ctx, query, userID).Scan(
		&sub.ID,
		&sub.UserID,
		&tariffID,
		&sub.Status,
		&sub.StartDate,
		&sub.EndDate,
		&sub.DeviceLimit,
		&sub.CreatedAt,
		&sub.UpdatedAt,
		&tID,
		&tName,
		&tActive,
		&tDeviceLimit,
		&tFamilyEnabled,
		&tFamilyMax,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription by user ID: %w", err)
	}

	sub.TariffID = tariffID.Int64
	if tID.Valid {
		sub.Tariff = &models.Tariff{
			ID:               tID.Int64,
			Name:             tName.String,
			IsActive:         tActive.Bool,
			DeviceLimit:      int(tDeviceLimit.Int64),
			FamilyEnabled:    tFamilyEnabled.Bool,
			FamilyMaxMembers: int(tFamilyMax.Int64),
		}
	}
	return sub, nil
}
