package service

import (
	"context"
	"time"

	"github.com/dkovalev/famvpn/internal/models"
)

// EffectiveSource tells which entitlement grants the requester access.
type EffectiveSource string

const (
	SourceNone        EffectiveSource = ""
	SourcePersonal    EffectiveSource = "personal"
	SourceFamilyOwner EffectiveSource = "family_owner"
)

// EffectiveSubscription is the subscription actually governing a user's
// access right now, after the personal-vs-family priority rule.
type EffectiveSubscription struct {
	Active        bool
	Source        EffectiveSource
	Subscription  *models.Subscription
	Tariff        *models.Tariff
	OwnerUser     *models.User
	RequesterUser *models.User
}

// ExpiresAt returns when the effective access lapses, zero if inactive.
func (e *EffectiveSubscription) ExpiresAt() time.Time {
	if !e.Active || e.Subscription == nil {
		return time.Time{}
	}
	return e.Subscription.EndDate
}

// ResolveEffectiveSubscription decides whether the requester currently has
// access and through what. An active personal subscription always wins and
// short-circuits without loading family context; only then is delegated
// family access considered. A member with a lapsed personal plan still
// benefits from the owner's active plan.
func (s *Service) ResolveEffectiveSubscription(ctx context.Context, userID int64) (*EffectiveSubscription, error) {
	requester, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if requester == nil {
		return &EffectiveSubscription{}, nil
	}

	personal, err := s.store.Subscriptions().GetByUserID(ctx, requester.ID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if personal.IsActiveAt(now) {
		return &EffectiveSubscription{
			Active:        true,
			Source:        SourcePersonal,
			Subscription:  personal,
			Tariff:        personal.Tariff,
			OwnerUser:     requester,
			RequesterUser: requester,
		}, nil
	}

	acc, err := s.ResolveAccessContext(ctx, requester.ID)
	if err != nil {
		return nil, err
	}
	if acc.Role == models.RoleMember && acc.Owner != nil && acc.Subscription.IsActiveAt(now) {
		return &EffectiveSubscription{
			Active:        true,
			Source:        SourceFamilyOwner,
			Subscription:  acc.Subscription,
			Tariff:        acc.Tariff,
			OwnerUser:     acc.Owner,
			RequesterUser: requester,
		}, nil
	}

	// Inactive: the requester's own lapsed subscription is still surfaced
	// for display, but tariff/owner stay nil-equivalent semantics via
	// Source/Active.
	result := &EffectiveSubscription{
		Subscription:  personal,
		RequesterUser: requester,
	}
	if personal != nil {
		result.Tariff = personal.Tariff
	}
	return result, nil
}
