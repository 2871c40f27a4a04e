package service

import (
	"context"
	"time"

	"github.com/dkovalev/famvpn/internal/models"
	"github.com/dkovalev/famvpn/internal/repository"
)

// MemberEntry is one row of the overview members list. The owner appears
// first with role owner and an implicit active status.
type MemberEntry struct {
	UserID       int64      `json:"user_id"`
	Username     string     `json:"username"`
	DisplayName  string     `json:"display_name"`
	Role         string     `json:"role"`
	Status       string     `json:"status"`
	InvitedAt    *time.Time `json:"invited_at,omitempty"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
	CanRemove    bool       `json:"can_remove"`
	DevicesCount int        `json:"devices_count"`
}

// InviteEntry is one pending invite in the overview.
type InviteEntry struct {
	InviteID      int64     `json:"invite_id"`
	FamilyGroupID int64     `json:"family_group_id"`
	InviteeUserID int64     `json:"invitee_user_id,omitempty"`
	InviterUserID int64     `json:"inviter_user_id,omitempty"`
	Username      string    `json:"username,omitempty"`
	DisplayName   string    `json:"display_name"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	CanRevoke     bool      `json:"can_revoke"`
}

// DeviceUserCount is the per-user slice of the device summary.
type DeviceUserCount struct {
	UserID int64 `json:"user_id"`
	Count  int   `json:"count"`
}

// DeviceSummary aggregates the group's reconciled device registry.
type DeviceSummary struct {
	DeviceLimit int               `json:"device_limit"`
	TotalUsed   int               `json:"total_used"`
	Remaining   int               `json:"remaining"`
	ByUser      []DeviceUserCount `json:"by_user"`
}

// FamilyOverview is the produced caller-facing projection of a family group.
type FamilyOverview struct {
	FamilyEnabled            bool          `json:"family_enabled"`
	Role                     models.Role   `json:"-"`
	RoleName                 string        `json:"role"`
	Owner                    *MemberEntry  `json:"owner"`
	FamilyGroupID            int64         `json:"family_group_id,omitempty"`
	Members                  []MemberEntry `json:"members"`
	Invites                  []InviteEntry `json:"invites"`
	PendingInvitesForYou     []InviteEntry `json:"pending_invites_for_you"`
	MaxMembersIncludingOwner int           `json:"max_members_including_owner"`
	UsedSlots                int           `json:"used_slots"`
	RemainingSlots           int           `json:"remaining_slots"`
	CanInvite                bool          `json:"can_invite"`
	DeviceSummary            DeviceSummary `json:"device_summary"`
}

func (s *Service) pendingInvitesFor(ctx context.Context, userID int64) ([]InviteEntry, error) {
	rows, err := s.store.Invites().ListPendingForInvitee(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries := make([]InviteEntry, 0, len(rows))
	for _, inv := range rows {
		inviter, err := s.store.Users().GetByID(ctx, inv.InviterUserID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, InviteEntry{
			InviteID:      inv.ID,
			FamilyGroupID: inv.FamilyGroupID,
			InviterUserID: inv.InviterUserID,
			Username:      inviter.DisplayName(),
			DisplayName:   inviter.DisplayName(),
			Status:        inv.Status,
			CreatedAt:     inv.CreatedAt,
			ExpiresAt:     inv.ExpiresAt,
		})
	}
	return entries, nil
}

// GetFamilyOverview assembles the full family projection for a requester:
// slot usage, members, pending invites (both directions) and the device
// summary. For an eligible owner without a group yet, the group is
// materialized here so the front-end always has an id to act on.
func (s *Service) GetFamilyOverview(ctx context.Context, userID int64) (*FamilyOverview, error) {
	acc, err := s.ResolveAccessContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	pendingForYou, err := s.pendingInvitesFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	if acc.Owner == nil || acc.Subscription == nil {
		return &FamilyOverview{
			PendingInvitesForYou: pendingForYou,
			Members:              []MemberEntry{},
			Invites:              []InviteEntry{},
		}, nil
	}

	familyEnabled := MaxMembers(acc.Tariff) > 0
	maxMembers := 0
	if acc.Tariff != nil {
		maxMembers = acc.Tariff.FamilyMaxMembers
	}

	group := acc.Group
	if group == nil && acc.Role == models.RoleOwner && familyEnabled {
		err = s.store.RunTx(ctx, func(tx repository.Repos) error {
			var txErr error
			group, txErr = s.ensureGroup(ctx, tx, acc.Owner.ID, acc.Subscription.ID)
			return txErr
		})
		if err != nil {
			return nil, err
		}
	}

	ownerEntry := &MemberEntry{
		UserID:      acc.Owner.ID,
		Username:    acc.Owner.Username,
		DisplayName: acc.Owner.DisplayName(),
		Role:        "owner",
		Status:      models.MemberActive,
	}

	if group == nil {
		remaining := maxMembers - 1
		if remaining < 0 {
			remaining = 0
		}
		return &FamilyOverview{
			FamilyEnabled:            familyEnabled,
			Role:                     acc.Role,
			RoleName:                 acc.Role.String(),
			Owner:                    ownerEntry,
			Members:                  []MemberEntry{},
			Invites:                  []InviteEntry{},
			PendingInvitesForYou:     pendingForYou,
			MaxMembersIncludingOwner: maxMembers,
			UsedSlots:                1,
			RemainingSlots:           remaining,
			CanInvite:                acc.Role == models.RoleOwner && familyEnabled,
			DeviceSummary: DeviceSummary{
				DeviceLimit: acc.Subscription.DeviceLimit,
				Remaining:   acc.Subscription.DeviceLimit,
				ByUser:      []DeviceUserCount{},
			},
		}, nil
	}

	memberRows, err := s.store.Members().ListByGroup(ctx, group.ID, []string{models.MemberActive, models.MemberInvited})
	if err != nil {
		return nil, err
	}
	inviteRows, err := s.store.Invites().ListPendingByGroup(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	deviceRows, err := s.store.Devices().ListByGroup(ctx, group.ID)
	if err != nil {
		return nil, err
	}

	byUser := map[int64]int{}
	for _, d := range deviceRows {
		byUser[d.OwnerUserID]++
	}
	ownerEntry.DevicesCount = byUser[acc.Owner.ID]

	members := []MemberEntry{*ownerEntry}
	usedSlots := 1
	for _, m := range memberRows {
		u, err := s.store.Users().GetByID(ctx, m.UserID)
		if err != nil {
			return nil, err
		}
		if m.Status == models.MemberActive {
			usedSlots++
		}
		invitedAt := m.InvitedAt
		members = append(members, MemberEntry{
			UserID:       m.UserID,
			Username:     userName(u),
			DisplayName:  u.DisplayName(),
			Role:         "member",
			Status:       m.Status,
			InvitedAt:    &invitedAt,
			AcceptedAt:   m.AcceptedAt,
			CanRemove:    acc.Role == models.RoleOwner,
			DevicesCount: byUser[m.UserID],
		})
	}

	invites := make([]InviteEntry, 0, len(inviteRows))
	for _, inv := range inviteRows {
		invitee, err := s.store.Users().GetByID(ctx, inv.InviteeUserID)
		if err != nil {
			return nil, err
		}
		invites = append(invites, InviteEntry{
			InviteID:      inv.ID,
			FamilyGroupID: inv.FamilyGroupID,
			InviteeUserID: inv.InviteeUserID,
			Username:      userName(invitee),
			DisplayName:   invitee.DisplayName(),
			Status:        inv.Status,
			CreatedAt:     inv.CreatedAt,
			ExpiresAt:     inv.ExpiresAt,
			CanRevoke:     acc.Role == models.RoleOwner,
		})
	}

	remaining := maxMembers - usedSlots
	if remaining < 0 {
		remaining = 0
	}
	deviceRemaining := acc.Subscription.DeviceLimit - len(deviceRows)
	if deviceRemaining < 0 {
		deviceRemaining = 0
	}
	byUserList := make([]DeviceUserCount, 0, len(byUser))
	for uid, count := range byUser {
		byUserList = append(byUserList, DeviceUserCount{UserID: uid, Count: count})
	}

	return &FamilyOverview{
		FamilyEnabled:            familyEnabled,
		Role:                     acc.Role,
		RoleName:                 acc.Role.String(),
		Owner:                    ownerEntry,
		FamilyGroupID:            group.ID,
		Members:                  members,
		Invites:                  invites,
		PendingInvitesForYou:     pendingForYou,
		MaxMembersIncludingOwner: maxMembers,
		UsedSlots:                usedSlots,
		RemainingSlots:           remaining,
		CanInvite:                acc.Role == models.RoleOwner && familyEnabled && usedSlots < maxMembers,
		DeviceSummary: DeviceSummary{
			DeviceLimit: acc.Subscription.DeviceLimit,
			TotalUsed:   len(deviceRows),
			Remaining:   deviceRemaining,
			ByUser:      byUserList,
		},
	}, nil
}

func userName(u *models.User) string {
	if u == nil {
		return ""
	}
	return u.Username
}
