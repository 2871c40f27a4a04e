package models

import "time"

// PersonalVPNInstance statuses.
const (
	InstanceActive   = "active"
	InstanceExpired  = "expired"
	InstanceDisabled = "disabled"
)

// PersonalVPNInstance is a dedicated panel node assigned to a single owner,
// who can hand out up to MaxUsers sub-user accounts on it.
type PersonalVPNInstance struct {
	ID            int64      `json:"id" db:"id"`
	OwnerUserID   int64      `json:"owner_user_id" db:"owner_user_id"`
	PanelNodeID   string     `json:"panel_node_id" db:"panel_node_id"`
	PanelSquadID  string     `json:"panel_squad_id" db:"panel_squad_id"`
	Status        string     `json:"status" db:"status"`
	MaxUsers      int        `json:"max_users" db:"max_users"`
	ExpiresAt     time.Time  `json:"expires_at" db:"expires_at"`
	LastRestartAt *time.Time `json:"last_restart_at,omitempty" db:"last_restart_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// EffectiveStatus folds expiry into the stored status: an "active" instance
// past its expiry reads as expired without a background job flipping it.
func (i *PersonalVPNInstance) EffectiveStatus(now time.Time) string {
	if i.Status != InstanceActive {
		return i.Status
	}
	if now.After(i.ExpiresAt) {
		return InstanceExpired
	}
	return InstanceActive
}

// PersonalVPNSubUser is a panel account created under an owner's instance.
// DeletedAt is a soft delete; the remote panel account is removed first.
type PersonalVPNSubUser struct {
	ID                int64      `json:"id" db:"id"`
	InstanceID        int64      `json:"instance_id" db:"instance_id"`
	PanelUserID       string     `json:"panel_user_id" db:"panel_user_id"`
	ExpiresAt         time.Time  `json:"expires_at" db:"expires_at"`
	DeviceLimit       int        `json:"device_limit" db:"device_limit"`
	TrafficLimitBytes int64      `json:"traffic_limit_bytes" db:"traffic_limit_bytes"`
	SubscriptionLink  string     `json:"subscription_link" db:"subscription_link"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}
