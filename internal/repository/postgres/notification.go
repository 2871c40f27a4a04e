package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkovalev/famvpn/internal/models"
)

type notificationRepository struct {
	q dbtx
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	query := `
		INSERT INTO user_notifications (user_id, type, title, body, payload, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
		RETURNING id, created_at`

	payload := n.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification payload: %w", err)
	}

	n.CreatedAt = time.Now().UTC()
	err = r.q.QueryRowContext(ctx, query,
		n.UserID,
		n.Type,
		n.Title,
		n.Body,
		raw,
		n.CreatedAt,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	return n, nil
}
