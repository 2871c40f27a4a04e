package models

import (
	"fmt"
	"time"
)

// User represents an account known to the backend. Accounts are created
// through the Telegram front-end, so TelegramID is the delegate identity used
// for all outbound messaging. A user without a TelegramID has never started
// the bot and cannot be invited to a family.
type User struct {
	ID         int64     `json:"id" db:"id"`
	TelegramID int64     `json:"telegram_id" db:"telegram_id"`
	Username   string    `json:"username" db:"username"`
	FirstName  string    `json:"first_name" db:"first_name"`
	LastName   string    `json:"last_name" db:"last_name"`
	PanelUUID  string    `json:"panel_uuid" db:"panel_uuid"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// DisplayName returns the best human-readable handle for the user.
func (u *User) DisplayName() string {
	if u == nil {
		return "Unknown"
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.TelegramID != 0 {
		return fmt.Sprintf("ID%d", u.TelegramID)
	}
	return fmt.Sprintf("User#%d", u.ID)
}
