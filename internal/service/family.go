package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dkovalev/famvpn/internal/apperr"
	"github.com/dkovalev/famvpn/internal/models"
	"github.com/dkovalev/famvpn/internal/repository"
)

// ensureGroup returns the owner's family group, creating it lazily on first
// use and re-binding it to the owner's current subscription if a renewal
// replaced the subscription row.
func (s *Service) ensureGroup(ctx context.Context, r repository.Repos, ownerUserID, subscriptionID int64) (*models.FamilyGroup, error) {
	group, err := r.Groups().GetByOwner(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}
	if group != nil {
		if group.SubscriptionID != subscriptionID {
			if err := r.Groups().RebindSubscription(ctx, group.ID, subscriptionID); err != nil {
				return nil, err
			}
			group.SubscriptionID = subscriptionID
		}
		return group, nil
	}
	return r.Groups().Create(ctx, &models.FamilyGroup{
		OwnerUserID:    ownerUserID,
		SubscriptionID: subscriptionID,
	})
}

// CreateFamilyInvite invites a user (by messaging handle) into the owner's
// family group. The group row lock serializes the capacity check against
// concurrent invites and accepts on the same group.
func (s *Service) CreateFamilyInvite(ctx context.Context, ownerUserID int64, handle string) (invite *models.FamilyInvite, err error) {
	defer func() { recordOp("create_invite", err) }()

	var owner, invitee *models.User
	err = s.store.RunTx(ctx, func(tx repository.Repos) error {
		var txErr error
		owner, txErr = tx.Users().GetByID(ctx, ownerUserID)
		if txErr != nil {
			return txErr
		}
		if owner == nil {
			return apperr.NotFound(apperr.CodeUserNotFound, "User not found")
		}

		ownerSub, txErr := tx.Subscriptions().GetByUserID(ctx, owner.ID)
		if txErr != nil {
			return txErr
		}
		maxMembers, txErr := validateFamilyEnabled(ownerSub)
		if txErr != nil {
			return txErr
		}

		normalized := NormalizeHandle(handle)
		if normalized == "" {
			return apperr.Validation(apperr.CodeInvalidHandle, "Invalid username")
		}

		invitee, txErr = tx.Users().GetByUsername(ctx, normalized)
		if txErr != nil {
			return txErr
		}
		if invitee == nil || invitee.TelegramID == 0 {
			return apperr.Validation(apperr.CodeInviteeNotFound, "User must start the bot first")
		}
		if invitee.ID == owner.ID {
			return apperr.Validation(apperr.CodeSelfInvite, "You cannot invite yourself")
		}

		inviteeSub, txErr := tx.Subscriptions().GetByUserID(ctx, invitee.ID)
		if txErr != nil {
			return txErr
		}
		if inviteeSub.IsActiveAt(s.now()) {
			return apperr.Conflict(apperr.CodeInviteeHasActiveSubscription, "Cannot invite user with active subscription")
		}

		inFamily, txErr := s.inActiveFamily(ctx, tx, invitee.ID, 0)
		if txErr != nil {
			return txErr
		}
		if inFamily {
			return apperr.Conflict(apperr.CodeAlreadyInFamily, "User is already in another family")
		}

		group, txErr := s.ensureGroup(ctx, tx, owner.ID, ownerSub.ID)
		if txErr != nil {
			return txErr
		}
		group, txErr = tx.Groups().GetByIDForUpdate(ctx, group.ID)
		if txErr != nil {
			return txErr
		}

		reached, txErr := capacityReached(ctx, tx, group.ID, maxMembers)
		if txErr != nil {
			return txErr
		}
		if reached {
			return apperr.Conflict(apperr.CodeCapacityReached, "Family member limit reached")
		}

		pending, txErr := tx.Invites().GetPending(ctx, group.ID, invitee.ID)
		if txErr != nil {
			return txErr
		}
		if pending != nil {
			return apperr.Conflict(apperr.CodeInviteAlreadyPending, "Invite already pending")
		}

		now := s.now()
		invite, txErr = tx.Invites().Create(ctx, &models.FamilyInvite{
			FamilyGroupID: group.ID,
			InviteeUserID: invitee.ID,
			InviterUserID: owner.ID,
			Token:         uuid.NewString(),
			Status:        models.InvitePending,
			ExpiresAt:     now.Add(models.InviteTTL),
		})
		if txErr != nil {
			return txErr
		}

		// The member row is created as invited, or an earlier
		// declined/left/removed row is re-armed. Never a second row
		// per (group, user).
		member, txErr := tx.Members().Get(ctx, group.ID, invitee.ID)
		if txErr != nil {
			return txErr
		}
		if member == nil {
			_, txErr = tx.Members().Create(ctx, &models.FamilyMember{
				FamilyGroupID:   group.ID,
				UserID:          invitee.ID,
				Status:          models.MemberInvited,
				InvitedByUserID: owner.ID,
				InvitedAt:       now,
			})
			return txErr
		}
		member.Status = models.MemberInvited
		member.InvitedByUserID = owner.ID
		member.InvitedAt = now
		member.RemovedAt = nil
		return tx.Members().Update(ctx, member)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict(apperr.CodeInviteAlreadyPending, "Invite already pending")
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"invite_id":  invite.ID,
		"owner_id":   owner.ID,
		"invitee_id": invitee.ID,
	}).Info("Family invite created")

	body := fmt.Sprintf("You were invited to family access by %s. Accept?", owner.DisplayName())
	s.notify(ctx, invitee.ID, models.NotifyInviteReceived, "Family invitation", body,
		"family.invite_received", map[string]any{"invite_id": invite.ID, "owner_user_id": owner.ID})
	s.sendMessage(ctx, invitee.TelegramID, body, []MessageAction{
		{Label: "Accept", Data: fmt.Sprintf("family_invite:accept:%d", invite.ID)},
		{Label: "Decline", Data: fmt.Sprintf("family_invite:decline:%d", invite.ID)},
	})
	return invite, nil
}

// AcceptFamilyInvite turns a pending invite into active membership. Tariff
// eligibility and capacity are re-validated under the group lock because the
// gap between issue and accept is unbounded; a commit-time unique violation
// from a concurrent duplicate acceptance maps to a retryable conflict.
func (s *Service) AcceptFamilyInvite(ctx context.Context, userID, inviteID int64) (invite *models.FamilyInvite, err error) {
	defer func() { recordOp("accept_invite", err) }()

	var owner *models.User
	var group *models.FamilyGroup
	var expiredNow bool
	err = s.store.RunTx(ctx, func(tx repository.Repos) error {
		var txErr error
		// Lock order is invite first, then group, everywhere.
		invite, txErr = tx.Invites().GetByIDForUpdate(ctx, inviteID)
		if txErr != nil {
			return txErr
		}
		if invite == nil || invite.InviteeUserID != userID {
			return apperr.NotFound(apperr.CodeInviteNotFound, "Invite not found")
		}
		if invite.Status != models.InvitePending {
			return apperr.Conflict(apperr.CodeInviteNotPending, "Invite is not pending")
		}

		now := s.now()
		if invite.ExpiredAt(now) {
			// Commit the lazy expiry marking, then reject outside.
			if txErr = tx.Invites().SetStatus(ctx, invite.ID, models.InviteExpired, now); txErr != nil {
				return txErr
			}
			invite.Status = models.InviteExpired
			invite.DecidedAt = &now
			expiredNow = true
			return nil
		}

		group, txErr = tx.Groups().GetByIDForUpdate(ctx, invite.FamilyGroupID)
		if txErr != nil {
			return txErr
		}
		if group == nil {
			return apperr.NotFound(apperr.CodeInviteNotFound, "Invite not found")
		}
		owner, txErr = tx.Users().GetByID(ctx, group.OwnerUserID)
		if txErr != nil {
			return txErr
		}
		var ownerSub *models.Subscription
		if owner != nil {
			if ownerSub, txErr = tx.Subscriptions().GetByUserID(ctx, owner.ID); txErr != nil {
				return txErr
			}
		}
		maxMembers, txErr := validateFamilyEnabled(ownerSub)
		if txErr != nil {
			return txErr
		}

		inFamily, txErr := s.inActiveFamily(ctx, tx, userID, group.ID)
		if txErr != nil {
			return txErr
		}
		if inFamily {
			return apperr.Conflict(apperr.CodeAlreadyInFamily, "User is already in another family")
		}

		reached, txErr := capacityReached(ctx, tx, group.ID, maxMembers)
		if txErr != nil {
			return txErr
		}
		if reached {
			return apperr.Conflict(apperr.CodeCapacityReached, "Family member limit reached")
		}

		if txErr = tx.Invites().SetStatus(ctx, invite.ID, models.InviteAccepted, now); txErr != nil {
			return txErr
		}
		invite.Status = models.InviteAccepted
		invite.DecidedAt = &now

		member, txErr := tx.Members().Get(ctx, group.ID, userID)
		if txErr != nil {
			return txErr
		}
		if member == nil {
			_, txErr = tx.Members().Create(ctx, &models.FamilyMember{
				FamilyGroupID:   group.ID,
				UserID:          userID,
				Status:          models.MemberActive,
				InvitedByUserID: invite.InviterUserID,
				InvitedAt:       invite.CreatedAt,
				AcceptedAt:      &now,
			})
			return txErr
		}
		member.Status = models.MemberActive
		member.AcceptedAt = &now
		member.RemovedAt = nil
		return tx.Members().Update(ctx, member)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict(apperr.CodeConflictRetry, "Invite was accepted concurrently, retry")
		}
		return nil, err
	}
	if expiredNow {
		return nil, apperr.Conflict(apperr.CodeInviteExpired, "Invite expired")
	}

	s.logger.WithFields(logrus.Fields{
		"invite_id": invite.ID,
		"group_id":  group.ID,
		"user_id":   userID,
	}).Info("Family invite accepted")

	// Seed the device registry from the panel so the new member's devices
	// are attributed from the first moment. Best-effort.
	if owner != nil && owner.PanelUUID != "" {
		if err := s.SyncGroupDevicesFromPanel(ctx, group.ID, owner.ID, owner.PanelUUID); err != nil {
			s.logger.WithFields(logrus.Fields{
				"invite_id": invite.ID,
				"group_id":  group.ID,
				"error":     err,
			}).Warn("Failed to seed family device registry after accept")
		}
	}

	member, memberErr := s.store.Users().GetByID(ctx, userID)
	if memberErr != nil || member == nil {
		member = &models.User{ID: userID}
	}
	body := fmt.Sprintf("%s accepted your family invitation.", member.DisplayName())
	s.notify(ctx, group.OwnerUserID, models.NotifyInviteAccepted, "Family invitation accepted", body,
		"family.invite_accepted", map[string]any{"invite_id": invite.ID, "member_user_id": userID})
	if owner != nil {
		s.sendMessage(ctx, owner.TelegramID, body, nil)
	}
	return invite, nil
}

// DeclineFamilyInvite marks a pending invite declined by its invitee.
func (s *Service) DeclineFamilyInvite(ctx context.Context, userID, inviteID int64) (invite *models.FamilyInvite, err error) {
	defer func() { recordOp("decline_invite", err) }()

	err = s.store.RunTx(ctx, func(tx repository.Repos) error {
		var txErr error
		invite, txErr = tx.Invites().GetByIDForUpdate(ctx, inviteID)
		if txErr != nil {
			return txErr
		}
		if invite == nil || invite.InviteeUserID != userID {
			return apperr.NotFound(apperr.CodeInviteNotFound, "Invite not found")
		}
		if invite.Status != models.InvitePending {
			return apperr.Conflict(apperr.CodeInviteNotPending, "Invite is not pending")
		}

		now := s.now()
		if txErr = tx.Invites().SetStatus(ctx, invite.ID, models.InviteDeclined, now); txErr != nil {
			return txErr
		}
		invite.Status = models.InviteDeclined
		invite.DecidedAt = &now

		member, txErr := tx.Members().Get(ctx, invite.FamilyGroupID, userID)
		if txErr != nil {
			return txErr
		}
		if member != nil {
			member.Status = models.MemberDeclined
			member.RemovedAt = &now
			return tx.Members().Update(ctx, member)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	group, gErr := s.store.Groups().GetByID(ctx, invite.FamilyGroupID)
	if gErr != nil || group == nil {
		return invite, nil
	}
	invitee, _ := s.store.Users().GetByID(ctx, userID)
	body := fmt.Sprintf("%s declined your family invitation.", invitee.DisplayName())
	s.notify(ctx, group.OwnerUserID, models.NotifyInviteDeclined, "Family invitation declined", body,
		"family.invite_declined", map[string]any{"invite_id": invite.ID, "member_user_id": userID})
	if owner, _ := s.store.Users().GetByID(ctx, group.OwnerUserID); owner != nil {
		s.sendMessage(ctx, owner.TelegramID, body, nil)
	}
	return invite, nil
}

// RevokeFamilyInvite withdraws a pending invite. Owner only.
func (s *Service) RevokeFamilyInvite(ctx context.Context, ownerUserID, inviteID int64) (invite *models.FamilyInvite, err error) {
	defer func() { recordOp("revoke_invite", err) }()

	var acc *AccessContext
	err = s.store.RunTx(ctx, func(tx repository.Repos) error {
		var txErr error
		acc, txErr = s.resolveAccessContext(ctx, tx, ownerUserID)
		if txErr != nil {
			return txErr
		}
		if acc.Role != models.RoleOwner || acc.Group == nil {
			return apperr.Forbidden(apperr.CodeNotOwner, "Only the owner can revoke invites")
		}

		invite, txErr = tx.Invites().GetByIDForUpdate(ctx, inviteID)
		if txErr != nil {
			return txErr
		}
		if invite == nil || invite.FamilyGroupID != acc.Group.ID {
			return apperr.NotFound(apperr.CodeInviteNotFound, "Invite not found")
		}
		if invite.Status != models.InvitePending {
			return apperr.Conflict(apperr.CodeInviteNotPending, "Invite is not pending")
		}

		now := s.now()
		if txErr = tx.Invites().SetStatus(ctx, invite.ID, models.InviteRevoked, now); txErr != nil {
			return txErr
		}
		invite.Status = models.InviteRevoked
		invite.DecidedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	body := fmt.Sprintf("Your family invitation from %s was revoked.", acc.Owner.DisplayName())
	s.notify(ctx, invite.InviteeUserID, models.NotifyInviteRevoked, "Family invitation revoked", body,
		"family.invite_revoked", map[string]any{"invite_id": invite.ID, "owner_user_id": acc.Owner.ID})
	if invitee, _ := s.store.Users().GetByID(ctx, invite.InviteeUserID); invitee != nil {
		s.sendMessage(ctx, invitee.TelegramID, body, nil)
	}
	return invite, nil
}

// RemoveFamilyMember kicks an active member out of the owner's group and
// cleans up the member's reconciled devices. Owner only; self-removal is
// rejected (the owner is not a member row).
func (s *Service) RemoveFamilyMember(ctx context.Context, ownerUserID, memberUserID int64) (err error) {
	defer func() { recordOp("remove_member", err) }()

	var acc *AccessContext
	var removedDevices []*models.FamilyDevice
	err = s.store.RunTx(ctx, func(tx repository.Repos) error {
		var txErr error
		acc, txErr = s.resolveAccessContext(ctx, tx, ownerUserID)
		if txErr != nil {
			return txErr
		}
		if acc.Role != models.RoleOwner || acc.Group == nil || acc.Owner == nil {
			return apperr.Forbidden(apperr.CodeNotOwner, "Only the owner can remove members")
		}
		if memberUserID == acc.Owner.ID {
			return apperr.Validation(apperr.CodeSelfRemove, "Owner cannot remove themselves")
		}

		member, txErr := tx.Members().GetActiveForUpdate(ctx, acc.Group.ID, memberUserID)
		if txErr != nil {
			return txErr
		}
		if member == nil {
			return apperr.NotFound(apperr.CodeMemberNotFound, "Active family member not found")
		}

		now := s.now()
		member.Status = models.MemberRemoved
		member.RemovedAt = &now
		if txErr = tx.Members().Update(ctx, member); txErr != nil {
			return txErr
		}

		removedDevices, txErr = s.deleteMemberDeviceRows(ctx, tx, acc.Group.ID, memberUserID)
		return txErr
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"group_id":  acc.Group.ID,
		"member_id": memberUserID,
		"devices":   len(removedDevices),
	}).Info("Family member removed")

	s.deleteRemoteDevices(ctx, acc.Owner.PanelUUID, removedDevices)

	body := fmt.Sprintf("You were removed from family access by %s.", acc.Owner.DisplayName())
	s.notify(ctx, memberUserID, models.NotifyMemberRemoved, "Removed from family", body,
		"family.member_removed", map[string]any{"owner_user_id": acc.Owner.ID})
	if removed, _ := s.store.Users().GetByID(ctx, memberUserID); removed != nil {
		s.sendMessage(ctx, removed.TelegramID, body, nil)
	}
	return nil
}

// LeaveFamily lets an active member exit their group voluntarily, with the
// same device cleanup as removal.
func (s *Service) LeaveFamily(ctx context.Context, userID int64) (err error) {
	defer func() { recordOp("leave_family", err) }()

	var acc *AccessContext
	var removedDevices []*models.FamilyDevice
	err = s.store.RunTx(ctx, func(tx repository.Repos) error {
		var txErr error
		acc, txErr = s.resolveAccessContext(ctx, tx, userID)
		if txErr != nil {
			return txErr
		}
		if acc.Role != models.RoleMember || acc.Group == nil || acc.Owner == nil {
			return apperr.Validation(apperr.CodeNotMember, "User is not an active family member")
		}

		member, txErr := tx.Members().GetActiveForUpdate(ctx, acc.Group.ID, userID)
		if txErr != nil {
			return txErr
		}
		if member == nil {
			return apperr.NotFound(apperr.CodeMemberNotFound, "Active family membership not found")
		}

		now := s.now()
		member.Status = models.MemberLeft
		member.RemovedAt = &now
		if txErr = tx.Members().Update(ctx, member); txErr != nil {
			return txErr
		}

		removedDevices, txErr = s.deleteMemberDeviceRows(ctx, tx, acc.Group.ID, userID)
		return txErr
	})
	if err != nil {
		return err
	}

	s.deleteRemoteDevices(ctx, acc.Owner.PanelUUID, removedDevices)

	body := fmt.Sprintf("%s left your family access.", acc.Requester.DisplayName())
	s.notify(ctx, acc.Owner.ID, models.NotifyMemberLeft, "Family member left", body,
		"family.member_left", map[string]any{"member_user_id": userID})
	s.sendMessage(ctx, acc.Owner.TelegramID, body, nil)
	return nil
}
