package models

import "time"

// Notification types emitted by the family coordinator.
const (
	NotifyInviteReceived = "family_invite_received"
	NotifyInviteAccepted = "family_invite_accepted"
	NotifyInviteDeclined = "family_invite_declined"
	NotifyInviteRevoked  = "family_invite_revoked"
	NotifyMemberRemoved  = "family_member_removed"
	NotifyMemberLeft     = "family_member_left"
)

// Notification is a persisted in-app notification. Delivery to the realtime
// channel is best-effort and decoupled from the state transition that
// produced it.
type Notification struct {
	ID        int64          `json:"id" db:"id"`
	UserID    int64          `json:"user_id" db:"user_id"`
	Type      string         `json:"type" db:"type"`
	Title     string         `json:"title" db:"title"`
	Body      string         `json:"body" db:"body"`
	Payload   map[string]any `json:"payload" db:"payload"`
	IsRead    bool           `json:"is_read" db:"is_read"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}
