package service

import (
	"context"

	"github.com/dkovalev/famvpn/internal/apperr"
	"github.com/dkovalev/famvpn/internal/models"
	"github.com/dkovalev/famvpn/internal/repository"
)

// MaxMembers returns the member capacity a tariff grants, owner included.
// A limit of 1 or less means family access is effectively disabled even if
// the boolean flag says otherwise.
func MaxMembers(tariff *models.Tariff) int {
	if tariff == nil || !tariff.FamilyEnabled {
		return 0
	}
	if tariff.FamilyMaxMembers <= 1 {
		return 0
	}
	return tariff.FamilyMaxMembers
}

// validateFamilyEnabled checks that the owner's subscription carries a tariff
// with family access and returns the capacity.
func validateFamilyEnabled(sub *models.Subscription) (int, error) {
	if sub == nil || sub.Tariff == nil {
		return 0, apperr.Validation(apperr.CodeNoActiveSubscription, "No active subscription with tariff")
	}
	max := MaxMembers(sub.Tariff)
	if max == 0 {
		return 0, apperr.Validation(apperr.CodeFamilyDisabled, "Family access is not available for your tariff")
	}
	return max, nil
}

// capacityReached checks `1 + active_count >= max` under the caller's group
// row lock. The owner implicitly occupies slot 1. The check runs both at
// invite issue and invite accept because the window between them is
// unbounded and concurrent accepts may race past the first check.
func capacityReached(ctx context.Context, r repository.Repos, groupID int64, maxMembers int) (bool, error) {
	activeCount, err := r.Members().CountActive(ctx, groupID)
	if err != nil {
		return false, err
	}
	return 1+activeCount >= maxMembers, nil
}
