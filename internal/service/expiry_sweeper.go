package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dkovalev/famvpn/internal/models"
	"github.com/dkovalev/famvpn/internal/repository"
)

// sweepInterval is how often stale pending invites are marked expired.
// Acceptance re-checks expiry under the invite lock on its own, so the
// sweeper only keeps listings tidy; the interval is not correctness-critical.
const sweepInterval = 5 * time.Minute

// StartInviteExpirySweeper runs a background loop that expires overdue
// pending invites. It blocks until the context is cancelled, so it should be
// launched in a separate goroutine.
func (s *Service) StartInviteExpirySweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	s.logger.Info("Invite expiry sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Invite expiry sweeper stopped")
			return
		case <-ticker.C:
			s.sweepExpiredInvites(ctx)
		}
	}
}

// sweepExpiredInvites marks overdue invites expired and releases the member
// rows that were parked in invited state for them.
func (s *Service) sweepExpiredInvites(ctx context.Context) {
	var expired []*models.FamilyInvite
	err := s.store.RunTx(ctx, func(tx repository.Repos) error {
		// One instant per sweep so every row released in this pass
		// carries the same removed_at.
		now := s.now()
		var txErr error
		expired, txErr = tx.Invites().ExpirePending(ctx, now)
		if txErr != nil {
			return txErr
		}
		for _, inv := range expired {
			member, txErr := tx.Members().Get(ctx, inv.FamilyGroupID, inv.InviteeUserID)
			if txErr != nil {
				return txErr
			}
			if member == nil || member.Status != models.MemberInvited {
				continue
			}
			member.Status = models.MemberDeclined
			member.RemovedAt = &now
			if txErr = tx.Members().Update(ctx, member); txErr != nil {
				return txErr
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Errorf("Failed to sweep expired invites: %v", err)
		return
	}
	if len(expired) > 0 {
		s.logger.WithFields(logrus.Fields{
			"count": len(expired),
		}).Info("Expired stale family invites")
	}
}
