package models

import "time"

// FamilyMember statuses. Transitions reuse the same row: a declined, left or
// removed member re-invited later goes back to "invited" without inserting a
// duplicate (group_id, user_id) pair.
const (
	MemberInvited  = "invited"
	MemberActive   = "active"
	MemberDeclined = "declined"
	MemberLeft     = "left"
	MemberRemoved  = "removed"
)

// FamilyInvite statuses. At most one pending invite may exist per
// (group, invitee) pair; history keeps any number of non-pending rows.
const (
	InvitePending  = "pending"
	InviteAccepted = "accepted"
	InviteDeclined = "declined"
	InviteRevoked  = "revoked"
	InviteExpired  = "expired"
)

// InviteTTL is how long a pending invite stays acceptable. Expiry is checked
// lazily at accept time; a background sweeper additionally tidies stale rows.
const InviteTTL = 7 * 24 * time.Hour

// Role is the requester's position relative to a family group.
type Role int

const (
	RoleNone Role = iota
	RoleOwner
	RoleMember
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleMember:
		return "member"
	default:
		return ""
	}
}

// FamilyGroup shares one owner's subscription with invited members. There is
// at most one group per owner and at most one group per subscription; the
// group is created lazily on the owner's first invite and re-bound when the
// owner's subscription id changes (renewal).
type FamilyGroup struct {
	ID             int64     `json:"id" db:"id"`
	OwnerUserID    int64     `json:"owner_user_id" db:"owner_user_id"`
	SubscriptionID int64     `json:"subscription_id" db:"subscription_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// FamilyMember is the (group, user) pairing with its lifecycle status.
type FamilyMember struct {
	ID              int64      `json:"id" db:"id"`
	FamilyGroupID   int64      `json:"family_group_id" db:"family_group_id"`
	UserID          int64      `json:"user_id" db:"user_id"`
	Status          string     `json:"status" db:"status"`
	InvitedByUserID int64      `json:"invited_by_user_id" db:"invited_by_user_id"`
	InvitedAt       time.Time  `json:"invited_at" db:"invited_at"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty" db:"accepted_at"`
	RemovedAt       *time.Time `json:"removed_at,omitempty" db:"removed_at"`
}

// FamilyInvite records one invitation attempt. Token is a uuid used in
// deep links; the partial unique index on (group, invitee) WHERE
// status='pending' backs the single-pending-invite invariant.
type FamilyInvite struct {
	ID            int64      `json:"id" db:"id"`
	FamilyGroupID int64      `json:"family_group_id" db:"family_group_id"`
	InviteeUserID int64      `json:"invitee_user_id" db:"invitee_user_id"`
	InviterUserID int64      `json:"inviter_user_id" db:"inviter_user_id"`
	Token         string     `json:"token" db:"token"`
	Status        string     `json:"status" db:"status"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	DecidedAt     *time.Time `json:"decided_at,omitempty" db:"decided_at"`
	ExpiresAt     time.Time  `json:"expires_at" db:"expires_at"`
}

// ExpiredAt reports whether the invite has passed its expiry at the given
// instant.
func (i *FamilyInvite) ExpiredAt(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !i.ExpiresAt.After(now)
}

// FamilyDevice mirrors one hardware-id registration from the external panel.
// Rows are reconciled, not authoritative: a full sync against the panel's
// device list inserts unseen hwids and deletes rows the panel no longer
// reports.
type FamilyDevice struct {
	ID            int64     `json:"id" db:"id"`
	FamilyGroupID int64     `json:"family_group_id" db:"family_group_id"`
	HWID          string    `json:"hwid" db:"hwid"`
	OwnerUserID   int64     `json:"owner_user_id" db:"owner_user_id"`
	Platform      string    `json:"platform" db:"platform"`
	DeviceModel   string    `json:"device_model" db:"device_model"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	LastSeenAt    time.Time `json:"last_seen_at" db:"last_seen_at"`
}
