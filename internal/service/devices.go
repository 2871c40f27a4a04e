package service

import (
	"context"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/dkovalev/famvpn/internal/apperr"
	"github.com/dkovalev/famvpn/internal/metrics"
	"github.com/dkovalev/famvpn/internal/models"
	"github.com/dkovalev/famvpn/internal/panel"
	"github.com/dkovalev/famvpn/internal/repository"
)

// SyncResult summarizes one reconciliation pass.
type SyncResult struct {
	Inserted int
	Updated  int
	Deleted  int
}

// SyncFamilyDevices reconciles the group's device registry against the
// panel's device list. Full replace: hwids present remotely but unknown
// locally are inserted, known hwids are refreshed, and local rows the panel
// no longer reports are deleted. Re-running with an unchanged snapshot is a
// no-op apart from last-seen refreshes.
//
// New rows are attributed to the acting user when they participate in the
// group, otherwise to the lowest-id active participant. That fallback is a
// heuristic; the panel gives no per-device owner metadata to do better with.
func (s *Service) SyncFamilyDevices(ctx context.Context, groupID, actorUserID int64, devices []panel.Device) (*SyncResult, error) {
	result := &SyncResult{}
	err := s.store.RunTx(ctx, func(tx repository.Repos) error {
		group, err := tx.Groups().GetByID(ctx, groupID)
		if err != nil {
			return err
		}
		if group == nil {
			return apperr.NotFound(apperr.CodeMemberNotFound, "Family group not found")
		}

		existing, err := tx.Devices().ListByGroup(ctx, groupID)
		if err != nil {
			return err
		}
		byHWID := make(map[string]*models.FamilyDevice, len(existing))
		for _, row := range existing {
			byHWID[row.HWID] = row
		}

		memberIDs, err := tx.Members().ListActiveUserIDs(ctx, groupID)
		if err != nil {
			return err
		}
		participants := map[int64]bool{group.OwnerUserID: true}
		lowest := group.OwnerUserID
		for _, id := range memberIDs {
			participants[id] = true
			if id < lowest {
				lowest = id
			}
		}
		attributeTo := actorUserID
		if !participants[actorUserID] {
			attributeTo = lowest
		}

		now := s.now()
		current := make(map[string]bool, len(devices))
		for _, d := range devices {
			hwid := strings.TrimSpace(d.HWID)
			if hwid == "" {
				continue
			}
			current[hwid] = true

			platform := d.Platform
			if platform == "" {
				platform = "Unknown"
			}
			model := d.DeviceModel
			if model == "" {
				model = "Unknown"
			}

			if row, ok := byHWID[hwid]; ok {
				if err := tx.Devices().Touch(ctx, row.ID, platform, model, now); err != nil {
					return err
				}
				result.Updated++
				continue
			}
			if _, err := tx.Devices().Create(ctx, &models.FamilyDevice{
				FamilyGroupID: groupID,
				HWID:          hwid,
				OwnerUserID:   attributeTo,
				Platform:      platform,
				DeviceModel:   model,
			}); err != nil {
				return err
			}
			result.Inserted++
		}

		for hwid, row := range byHWID {
			if current[hwid] {
				continue
			}
			if err := tx.Devices().Delete(ctx, row.ID); err != nil {
				return err
			}
			result.Deleted++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SyncGroupDevicesFromPanel fetches the owner's live device list from the
// panel and reconciles against it. Invoked opportunistically after invite
// acceptance and available on demand.
func (s *Service) SyncGroupDevicesFromPanel(ctx context.Context, groupID, actorUserID int64, ownerPanelUUID string) error {
	list, err := s.panel.GetUserDevices(ctx, ownerPanelUUID)
	if err != nil {
		metrics.PanelFailures.WithLabelValues("get_user_devices").Inc()
		return apperr.Upstream(apperr.CodePanelUnavailable, "Failed to fetch panel devices", err)
	}

	result, err := s.SyncFamilyDevices(ctx, groupID, actorUserID, list.Devices)
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"group_id": groupID,
		"inserted": result.Inserted,
		"updated":  result.Updated,
		"deleted":  result.Deleted,
	}).Debug("Family device registry reconciled")
	return nil
}

// DeleteFamilyDevice removes one device registration. An owner may delete
// any participant's device; a member may delete only their own, never the
// owner's. The remote panel delete is best-effort and never blocks the local
// removal.
func (s *Service) DeleteFamilyDevice(ctx context.Context, requesterUserID int64, hwid string) (err error) {
	defer func() { recordOp("delete_device", err) }()

	var acc *AccessContext
	var device *models.FamilyDevice
	err = s.store.RunTx(ctx, func(tx repository.Repos) error {
		var txErr error
		acc, txErr = s.resolveAccessContext(ctx, tx, requesterUserID)
		if txErr != nil {
			return txErr
		}
		if acc.Group == nil {
			return apperr.NotFound(apperr.CodeDeviceNotFound, "Device not found")
		}

		device, txErr = tx.Devices().GetByHWID(ctx, acc.Group.ID, hwid)
		if txErr != nil {
			return txErr
		}
		if device == nil {
			return apperr.NotFound(apperr.CodeDeviceNotFound, "Device not found")
		}

		switch acc.Role {
		case models.RoleOwner:
			// owner deletes anything in the group
		case models.RoleMember:
			if device.OwnerUserID != requesterUserID || device.OwnerUserID == acc.Group.OwnerUserID {
				return apperr.Forbidden(apperr.CodeForbiddenDeviceDelete, "You cannot delete this device")
			}
		default:
			return apperr.Forbidden(apperr.CodeForbiddenDeviceDelete, "You cannot delete this device")
		}

		return tx.Devices().Delete(ctx, device.ID)
	})
	if err != nil {
		return err
	}

	if acc.Owner != nil {
		s.deleteRemoteDevices(ctx, acc.Owner.PanelUUID, []*models.FamilyDevice{device})
	}
	return nil
}

// deleteMemberDeviceRows removes a member's device rows inside the current
// transaction and returns them so remote cleanup can follow after commit.
func (s *Service) deleteMemberDeviceRows(ctx context.Context, tx repository.Repos, groupID, memberUserID int64) ([]*models.FamilyDevice, error) {
	rows, err := tx.Devices().ListByOwner(ctx, groupID, memberUserID)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := tx.Devices().Delete(ctx, row.ID); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// deleteRemoteDevices issues the per-hwid panel deletes. Individual failures
// are aggregated and logged; the local batch has already committed.
func (s *Service) deleteRemoteDevices(ctx context.Context, ownerPanelUUID string, devices []*models.FamilyDevice) {
	if ownerPanelUUID == "" || len(devices) == 0 {
		return
	}

	var errs *multierror.Error
	for _, d := range devices {
		if err := s.panel.DeleteDevice(ctx, ownerPanelUUID, d.HWID); err != nil {
			metrics.PanelFailures.WithLabelValues("delete_device").Inc()
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		s.logger.WithFields(logrus.Fields{
			"devices": len(devices),
			"error":   err,
		}).Warn("Failed to delete some devices from panel")
	}
}
