package models

import "time"

// Subscription statuses as stored in the database. A subscription row exists
// per user at most once; renewals may replace the row with a new id, which is
// why a family group re-binds to the owner's current subscription lazily.
const (
	SubscriptionActive  = "active"
	SubscriptionExpired = "expired"
	SubscriptionTrial   = "trial"
)

// Tariff is read-only configuration for the coordinator. FamilyMaxMembers
// counts the owner, so a value of 1 means "no slots for anyone else" and is
// treated as family access disabled regardless of FamilyEnabled.
type Tariff struct {
	ID               int64  `json:"id" db:"id"`
	Name             string `json:"name" db:"name"`
	IsActive         bool   `json:"is_active" db:"is_active"`
	DeviceLimit      int    `json:"device_limit" db:"device_limit"`
	FamilyEnabled    bool   `json:"family_enabled" db:"family_enabled"`
	FamilyMaxMembers int    `json:"family_max_members" db:"family_max_members"`
}

// Subscription is the paid entitlement a user holds. A family group shares
// the owner's subscription with its active members.
type Subscription struct {
	ID          int64     `json:"id" db:"id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	TariffID    int64     `json:"tariff_id" db:"tariff_id"`
	Status      string    `json:"status" db:"status"`
	StartDate   time.Time `json:"start_date" db:"start_date"`
	EndDate     time.Time `json:"end_date" db:"end_date"`
	DeviceLimit int       `json:"device_limit" db:"device_limit"`
	Tariff      *Tariff   `json:"tariff,omitempty"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
	// nil unless loaded explicitly; avoid relying on it outside projections
	CancelledAt *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// IsActiveAt reports whether the subscription grants access at the given
// instant: status must be active and the end date strictly in the future.
func (s *Subscription) IsActiveAt(now time.Time) bool {
	if s == nil {
		return false
	}
	return s.Status == SubscriptionActive && s.EndDate.After(now)
}

// IsActive is IsActiveAt against the wall clock.
func (s *Subscription) IsActive() bool {
	return s.IsActiveAt(time.Now().UTC())
}
