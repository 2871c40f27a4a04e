package service

import (
	"context"
	"fmt"

	"github.com/dkovalev/famvpn/internal/models"
	"github.com/dkovalev/famvpn/internal/repository"
)

// AccessContext is the resolved family affiliation of a requester. Role is a
// closed variant so every consumer handles all cases; absence of affiliation
// is RoleNone, not an error.
type AccessContext struct {
	Requester    *models.User
	Owner        *models.User
	Subscription *models.Subscription
	Tariff       *models.Tariff
	Group        *models.FamilyGroup
	Role         models.Role
}

// ResolveAccessContext determines whether the user is a family owner, an
// active member, or unaffiliated, and surfaces the effective subscription and
// tariff. Pure read, no side effects.
func (s *Service) ResolveAccessContext(ctx context.Context, userID int64) (*AccessContext, error) {
	return s.resolveAccessContext(ctx, s.store, userID)
}

func (s *Service) resolveAccessContext(ctx context.Context, r repository.Repos, userID int64) (*AccessContext, error) {
	requester, err := r.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve access context: %w", err)
	}
	if requester == nil {
		return &AccessContext{Role: models.RoleNone}, nil
	}

	membership, err := r.Members().GetActiveByUser(ctx, requester.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve access context: %w", err)
	}
	if membership != nil {
		group, err := r.Groups().GetByID(ctx, membership.FamilyGroupID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve access context: %w", err)
		}
		var owner *models.User
		var sub *models.Subscription
		if group != nil {
			if owner, err = r.Users().GetByID(ctx, group.OwnerUserID); err != nil {
				return nil, fmt.Errorf("failed to resolve access context: %w", err)
			}
			if owner != nil {
				if sub, err = r.Subscriptions().GetByUserID(ctx, owner.ID); err != nil {
					return nil, fmt.Errorf("failed to resolve access context: %w", err)
				}
			}
		}
		acc := &AccessContext{
			Requester:    requester,
			Owner:        owner,
			Subscription: sub,
			Group:        group,
			Role:         models.RoleMember,
		}
		if sub != nil {
			acc.Tariff = sub.Tariff
		}
		return acc, nil
	}

	sub, err := r.Subscriptions().GetByUserID(ctx, requester.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve access context: %w", err)
	}

	group, err := r.Groups().GetByOwner(ctx, requester.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve access context: %w", err)
	}
	if group != nil {
		acc := &AccessContext{
			Requester:    requester,
			Owner:        requester,
			Subscription: sub,
			Group:        group,
			Role:         models.RoleOwner,
		}
		if sub != nil {
			acc.Tariff = sub.Tariff
		}
		return acc, nil
	}

	// A personal subscription without a group still makes the user an
	// owner; the group materializes lazily on the first invite.
	if sub != nil {
		return &AccessContext{
			Requester:    requester,
			Owner:        requester,
			Subscription: sub,
			Tariff:       sub.Tariff,
			Role:         models.RoleOwner,
		}, nil
	}

	return &AccessContext{Requester: requester, Role: models.RoleNone}, nil
}

// inActiveFamily reports whether the user already participates in a family
// other than excludeGroupID, either as an active member or as an owner of a
// group.
func (s *Service) inActiveFamily(ctx context.Context, r repository.Repos, userID, excludeGroupID int64) (bool, error) {
	active, err := r.Members().ExistsActive(ctx, userID, excludeGroupID)
	if err != nil {
		return false, err
	}
	if active {
		return true, nil
	}
	return r.Groups().ExistsForOwner(ctx, userID, excludeGroupID)
}
