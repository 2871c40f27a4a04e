package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dkovalev/famvpn/internal/models"
)

type userRepository struct {
	q dbtx
}

const userColumns = `id, telegram_id, username, first_name, last_name, panel_uuid, is_active, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var telegramID sql.NullInt64
	var username, firstName, lastName, panelUUID sql.NullString

	err := row.Scan(
		&user.ID,
		&telegramID,
		&username,
		&firstName,
		&lastName,
		&panelUUID,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	user.TelegramID = telegramID.Int64
	user.Username = username.String
	user.FirstName = firstName.String
	user.LastName = lastName.String
	user.PanelUUID = panelUUID.String
	return user, nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, normalized string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(username) = $1`

	user, err := scanUser(r.q.QueryRowContext(ctx, query, normalized))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return user, nil
}

func (r *userRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	user, err := scanUser(r.q.QueryRowContext(ctx, query, telegramID))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by telegram ID: %w", err)
	}
	return user, nil
}
