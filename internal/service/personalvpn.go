package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dkovalev/famvpn/internal/apperr"
	"github.com/dkovalev/famvpn/internal/metrics"
	"github.com/dkovalev/famvpn/internal/models"
	"github.com/dkovalev/famvpn/internal/panel"
	"github.com/dkovalev/famvpn/internal/repository"
)

// restartCooldown limits how often an owner may restart their node.
const restartCooldown = 10 * time.Minute

// AssignInstanceRequest is the admin-side input for handing a dedicated node
// to an owner. Exactly one of OwnerUserID, OwnerTelegramID or OwnerUsername
// identifies the owner, checked in that order.
type AssignInstanceRequest struct {
	OwnerUserID     int64
	OwnerTelegramID int64
	OwnerUsername   string
	PanelNodeID     string
	PanelSquadID    string
	ExpiresAt       time.Time
	MaxUsers        int
}

// NodeStatus is the panel node slice of the personal VPN overview. Name and
// Online stay zero when the panel is unreachable.
type NodeStatus struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Online     bool   `json:"online"`
	IsDisabled bool   `json:"is_disabled"`
}

// PersonalVPNOverview is the owner-facing projection of their instance.
type PersonalVPNOverview struct {
	HasInstance              bool                         `json:"has_instance"`
	InstanceID               int64                        `json:"instance_id,omitempty"`
	Status                   string                       `json:"status,omitempty"`
	ExpiresAt                time.Time                    `json:"expires_at"`
	MaxUsers                 int                          `json:"max_users,omitempty"`
	CurrentUserCount         int                          `json:"current_user_count"`
	RestartCooldownRemaining time.Duration                `json:"restart_cooldown_remaining_seconds"`
	LastRestartAt            *time.Time                   `json:"last_restart_at,omitempty"`
	Node                     NodeStatus                   `json:"node"`
	SubUsers                 []*models.PersonalVPNSubUser `json:"sub_users"`
}

func (s *Service) resolveInstanceOwner(ctx context.Context, req AssignInstanceRequest) (*models.User, error) {
	switch {
	case req.OwnerUserID != 0:
		return s.store.Users().GetByID(ctx, req.OwnerUserID)
	case req.OwnerTelegramID != 0:
		return s.store.Users().GetByTelegramID(ctx, req.OwnerTelegramID)
	case strings.TrimSpace(req.OwnerUsername) != "":
		return s.store.Users().GetByUsername(ctx, NormalizeHandle(req.OwnerUsername))
	}
	return nil, nil
}

func validateInstanceActionable(inst *models.PersonalVPNInstance, now time.Time) error {
	if inst.EffectiveStatus(now) != models.InstanceActive {
		return apperr.Validation(apperr.CodeInstanceNotActive, "Personal VPN instance is not active")
	}
	return nil
}

// AssignInstance provisions a dedicated node for an owner. Admin operation;
// the node is validated against the panel before the row is written so a
// typo'd node id never lands in the database.
func (s *Service) AssignInstance(ctx context.Context, req AssignInstanceRequest) (inst *models.PersonalVPNInstance, err error) {
	defer func() { recordOp("assign_instance", err) }()

	if req.MaxUsers < 1 {
		return nil, apperr.Validation(apperr.CodeInvalidHandle, "max_users must be at least 1")
	}
	if !req.ExpiresAt.After(s.now()) {
		return nil, apperr.Validation(apperr.CodeInvalidHandle, "expires_at must be in the future")
	}

	owner, err := s.resolveInstanceOwner(ctx, req)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, apperr.NotFound(apperr.CodeUserNotFound, "Owner user not found")
	}

	existing, err := s.store.PersonalVPN().GetInstanceByOwner(ctx, owner.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict(apperr.CodeInstanceExists, "User already has a personal VPN instance")
	}

	node, err := s.panel.GetNode(ctx, req.PanelNodeID)
	if err != nil {
		metrics.PanelFailures.WithLabelValues("get_node").Inc()
		return nil, apperr.Upstream(apperr.CodePanelUnavailable, "Panel is unavailable", err)
	}
	if node == nil {
		return nil, apperr.NotFound(apperr.CodeInstanceNotFound, "Panel node not found")
	}

	inst, err = s.store.PersonalVPN().CreateInstance(ctx, &models.PersonalVPNInstance{
		OwnerUserID:  owner.ID,
		PanelNodeID:  req.PanelNodeID,
		PanelSquadID: req.PanelSquadID,
		Status:       models.InstanceActive,
		MaxUsers:     req.MaxUsers,
		ExpiresAt:    req.ExpiresAt.UTC(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict(apperr.CodeInstanceExists, "User already has a personal VPN instance")
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"instance_id": inst.ID,
		"owner_id":    owner.ID,
		"node_id":     req.PanelNodeID,
	}).Info("Personal VPN instance assigned")
	return inst, nil
}

// UpdateInstance changes the expiry and/or sub-user cap of an instance.
// Extending the expiry past now revives an expired instance; shrinking the
// cap below the current active sub-user count is rejected.
func (s *Service) UpdateInstance(ctx context.Context, instanceID int64, expiresAt *time.Time, maxUsers *int) (inst *models.PersonalVPNInstance, err error) {
	defer func() { recordOp("update_instance", err) }()

	err = s.store.RunTx(ctx, func(tx repository.Repos) error {
		var txErr error
		inst, txErr = tx.PersonalVPN().GetInstanceByID(ctx, instanceID)
		if txErr != nil {
			return txErr
		}
		if inst == nil {
			return apperr.NotFound(apperr.CodeInstanceNotFound, "Personal VPN instance not found")
		}
		if expiresAt == nil && maxUsers == nil {
			return nil
		}

		if maxUsers != nil {
			if *maxUsers < 1 {
				return apperr.Validation(apperr.CodeInvalidHandle, "max_users must be at least 1")
			}
			activeCount, txErr := tx.PersonalVPN().CountActiveSubUsers(ctx, inst.ID)
			if txErr != nil {
				return txErr
			}
			if *maxUsers < activeCount {
				return apperr.Validation(apperr.CodeSubUserLimitReached, "max_users cannot be less than current active sub-users")
			}
			inst.MaxUsers = *maxUsers
		}

		if expiresAt != nil {
			inst.ExpiresAt = expiresAt.UTC()
			if inst.ExpiresAt.After(s.now()) && inst.Status == models.InstanceExpired {
				inst.Status = models.InstanceActive
			}
		}
		return tx.PersonalVPN().UpdateInstance(ctx, inst)
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// GetPersonalVPNOverview assembles the owner's instance projection. Panel
// reads are best-effort; a flaky panel degrades the node status and leaves
// the stored sub-user rows as-is instead of failing the whole overview.
func (s *Service) GetPersonalVPNOverview(ctx context.Context, ownerUserID int64) (*PersonalVPNOverview, error) {
	inst, err := s.store.PersonalVPN().GetInstanceByOwner(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return &PersonalVPNOverview{SubUsers: []*models.PersonalVPNSubUser{}}, nil
	}

	now := s.now()
	subUsers, err := s.store.PersonalVPN().ListSubUsers(ctx, inst.ID)
	if err != nil {
		return nil, err
	}

	nodeStatus := NodeStatus{ID: inst.PanelNodeID}
	if node, nodeErr := s.panel.GetNode(ctx, inst.PanelNodeID); nodeErr != nil {
		metrics.PanelFailures.WithLabelValues("get_node").Inc()
		s.logger.WithFields(logrus.Fields{
			"instance_id": inst.ID,
			"node_id":     inst.PanelNodeID,
			"error":       nodeErr,
		}).Warn("Failed to fetch node status from panel")
	} else if node != nil {
		nodeStatus.Name = node.Name
		nodeStatus.Online = node.IsConnected && !node.IsDisabled
		nodeStatus.IsDisabled = node.IsDisabled
	}

	var cooldown time.Duration
	if inst.LastRestartAt != nil {
		if elapsed := now.Sub(*inst.LastRestartAt); elapsed < restartCooldown {
			cooldown = restartCooldown - elapsed
		}
	}

	return &PersonalVPNOverview{
		HasInstance:              true,
		InstanceID:               inst.ID,
		Status:                   inst.EffectiveStatus(now),
		ExpiresAt:                inst.ExpiresAt,
		MaxUsers:                 inst.MaxUsers,
		CurrentUserCount:         len(subUsers),
		RestartCooldownRemaining: cooldown,
		LastRestartAt:            inst.LastRestartAt,
		Node:                     nodeStatus,
		SubUsers:                 subUsers,
	}, nil
}

// RestartPersonalNode restarts the owner's dedicated node, at most once per
// cooldown window. The instance row lock serializes concurrent restart
// attempts so the cooldown check and the timestamp write are atomic.
func (s *Service) RestartPersonalNode(ctx context.Context, ownerUserID int64) (inst *models.PersonalVPNInstance, err error) {
	defer func() { recordOp("restart_node", err) }()

	err = s.store.RunTx(ctx, func(tx repository.Repos) error {
		var txErr error
		inst, txErr = tx.PersonalVPN().GetInstanceByOwnerForUpdate(ctx, ownerUserID)
		if txErr != nil {
			return txErr
		}
		if inst == nil {
			return apperr.NotFound(apperr.CodeInstanceNotFound, "Personal VPN instance not found")
		}

		now := s.now()
		if txErr = validateInstanceActionable(inst, now); txErr != nil {
			return txErr
		}
		if inst.LastRestartAt != nil && now.Sub(*inst.LastRestartAt) < restartCooldown {
			return apperr.Conflict(apperr.CodeRestartCooldown, "Node restarts are allowed once every 10 minutes")
		}

		if txErr = s.panel.RestartNode(ctx, inst.PanelNodeID); txErr != nil {
			metrics.PanelFailures.WithLabelValues("restart_node").Inc()
			return apperr.Upstream(apperr.CodePanelUnavailable, "Failed to restart node", txErr)
		}

		inst.LastRestartAt = &now
		return tx.PersonalVPN().UpdateInstance(ctx, inst)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"instance_id": inst.ID,
		"node_id":     inst.PanelNodeID,
	}).Info("Personal VPN node restarted")
	return inst, nil
}

// CreateSubUser provisions a panel account under the owner's instance. The
// panel account is created first; if the local row then fails to persist,
// the account is deleted again so the panel never holds an orphan.
func (s *Service) CreateSubUser(ctx context.Context, ownerUserID int64, expiresAt time.Time, deviceLimit int, trafficLimitBytes int64) (sub *models.PersonalVPNSubUser, err error) {
	defer func() { recordOp("create_sub_user", err) }()

	if deviceLimit < 1 {
		return nil, apperr.Validation(apperr.CodeInvalidHandle, "device_limit must be at least 1")
	}
	if trafficLimitBytes < 0 {
		return nil, apperr.Validation(apperr.CodeInvalidHandle, "traffic_limit must be >= 0")
	}

	var remote *panel.RemoteUser
	err = s.store.RunTx(ctx, func(tx repository.Repos) error {
		inst, txErr := tx.PersonalVPN().GetInstanceByOwnerForUpdate(ctx, ownerUserID)
		if txErr != nil {
			return txErr
		}
		if inst == nil {
			return apperr.NotFound(apperr.CodeInstanceNotFound, "Personal VPN instance not found")
		}

		now := s.now()
		if txErr = validateInstanceActionable(inst, now); txErr != nil {
			return txErr
		}
		if expiresAt.After(inst.ExpiresAt) {
			return apperr.Validation(apperr.CodeInvalidHandle, "Sub-user expiration cannot exceed instance expiration")
		}

		activeCount, txErr := tx.PersonalVPN().CountActiveSubUsers(ctx, inst.ID)
		if txErr != nil {
			return txErr
		}
		if activeCount >= inst.MaxUsers {
			return apperr.Validation(apperr.CodeSubUserLimitReached, "Max sub-users limit reached")
		}

		remote, txErr = s.panel.CreateUser(ctx, panel.CreateUserRequest{
			Username:          fmt.Sprintf("pvpn-%d-%s", inst.OwnerUserID, uuid.NewString()[:8]),
			ExpireAt:          expiresAt.UTC(),
			TrafficLimitBytes: trafficLimitBytes,
			HWIDDeviceLimit:   deviceLimit,
			Description:       fmt.Sprintf("Personal VPN sub-user of owner #%d", inst.OwnerUserID),
			SquadIDs:          []string{inst.PanelSquadID},
		})
		if txErr != nil {
			metrics.PanelFailures.WithLabelValues("create_user").Inc()
			return apperr.Upstream(apperr.CodePanelUnavailable, "Failed to create sub-user", txErr)
		}

		sub, txErr = tx.PersonalVPN().CreateSubUser(ctx, &models.PersonalVPNSubUser{
			InstanceID:        inst.ID,
			PanelUserID:       remote.UUID,
			ExpiresAt:         expiresAt.UTC(),
			DeviceLimit:       deviceLimit,
			TrafficLimitBytes: trafficLimitBytes,
			SubscriptionLink:  remote.SubscriptionURL,
		})
		return txErr
	})
	if err != nil {
		// Compensate the panel account when the local write did not stick.
		if remote != nil && !apperr.Is(err, apperr.CodePanelUnavailable) {
			if _, delErr := s.panel.DeleteUser(ctx, remote.UUID); delErr != nil {
				metrics.PanelFailures.WithLabelValues("delete_user").Inc()
				s.logger.WithFields(logrus.Fields{
					"panel_user_id": remote.UUID,
					"error":         delErr,
				}).Error("Failed to clean up panel account after sub-user create failure")
			}
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"sub_user_id":   sub.ID,
		"instance_id":   sub.InstanceID,
		"panel_user_id": sub.PanelUserID,
	}).Info("Personal VPN sub-user created")
	return sub, nil
}

// DeleteSubUser removes a sub-user: the panel account goes first, and only a
// confirmed remote delete soft-deletes the local row. A failed panel call
// leaves the row intact so a retry stays possible.
func (s *Service) DeleteSubUser(ctx context.Context, ownerUserID, subUserID int64) (err error) {
	defer func() { recordOp("delete_sub_user", err) }()

	return s.store.RunTx(ctx, func(tx repository.Repos) error {
		inst, txErr := tx.PersonalVPN().GetInstanceByOwnerForUpdate(ctx, ownerUserID)
		if txErr != nil {
			return txErr
		}
		if inst == nil {
			return apperr.NotFound(apperr.CodeInstanceNotFound, "Personal VPN instance not found")
		}

		now := s.now()
		if txErr = validateInstanceActionable(inst, now); txErr != nil {
			return txErr
		}

		sub, txErr := tx.PersonalVPN().GetSubUser(ctx, subUserID)
		if txErr != nil {
			return txErr
		}
		if sub == nil || sub.InstanceID != inst.ID || sub.DeletedAt != nil {
			return apperr.NotFound(apperr.CodeSubUserNotFound, "Sub-user not found")
		}

		deleted, txErr := s.panel.DeleteUser(ctx, sub.PanelUserID)
		if txErr != nil {
			metrics.PanelFailures.WithLabelValues("delete_user").Inc()
			return apperr.Upstream(apperr.CodePanelUnavailable, "Failed to delete sub-user", txErr)
		}
		if !deleted {
			return apperr.Upstream(apperr.CodePanelUnavailable, "Panel refused to delete sub-user", nil)
		}

		return tx.PersonalVPN().SoftDeleteSubUser(ctx, sub.ID, now)
	})
}
