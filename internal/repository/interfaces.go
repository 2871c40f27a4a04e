package repository

import (
	"context"
	"errors"
	"time"

	"github.com/dkovalev/famvpn/internal/models"
)

// ErrDuplicate is returned by writes that hit a unique constraint. The
// postgres implementation translates unique-violation SQLSTATE 23505 into
// this sentinel so the service layer can map the commit-time acceptance race
// to a conflict instead of a 500.
var ErrDuplicate = errors.New("duplicate row")

// Store is the persistence boundary. Reads outside a transaction go through
// the embedded Repos directly; multi-row state transitions run inside RunTx,
// which commits when fn returns nil and rolls back otherwise.
type Store interface {
	Repos
	RunTx(ctx context.Context, fn func(tx Repos) error) error
}

// Repos groups the per-entity repositories bound to one execution scope
// (either the pooled connection or a single transaction).
type Repos interface {
	Users() UserRepository
	Subscriptions() SubscriptionRepository
	Groups() FamilyGroupRepository
	Members() FamilyMemberRepository
	Invites() FamilyInviteRepository
	Devices() FamilyDeviceRepository
	Notifications() NotificationRepository
	PersonalVPN() PersonalVPNRepository
}

// UserRepository defines user lookups. Get methods return (nil, nil) when no
// row matches.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, normalized string) (*models.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
}

// SubscriptionRepository reads subscriptions with their tariff projection
// loaded eagerly (no lazy fetch across the ownership boundary).
type SubscriptionRepository interface {
	GetByUserID(ctx context.Context, userID int64) (*models.Subscription, error)
}

// FamilyGroupRepository defines family group operations.
type FamilyGroupRepository interface {
	Create(ctx context.Context, group *models.FamilyGroup) (*models.FamilyGroup, error)
	GetByID(ctx context.Context, id int64) (*models.FamilyGroup, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*models.FamilyGroup, error)
	GetByOwner(ctx context.Context, ownerUserID int64) (*models.FamilyGroup, error)
	ExistsForOwner(ctx context.Context, ownerUserID, excludeGroupID int64) (bool, error)
	RebindSubscription(ctx context.Context, groupID, subscriptionID int64) error
}

// FamilyMemberRepository defines member row operations. Status transitions
// update the existing (group, user) row, never insert a duplicate.
type FamilyMemberRepository interface {
	Create(ctx context.Context, member *models.FamilyMember) (*models.FamilyMember, error)
	Get(ctx context.Context, groupID, userID int64) (*models.FamilyMember, error)
	GetActiveByUser(ctx context.Context, userID int64) (*models.FamilyMember, error)
	GetActiveForUpdate(ctx context.Context, groupID, userID int64) (*models.FamilyMember, error)
	CountActive(ctx context.Context, groupID int64) (int, error)
	ListActiveUserIDs(ctx context.Context, groupID int64) ([]int64, error)
	ListByGroup(ctx context.Context, groupID int64, statuses []string) ([]*models.FamilyMember, error)
	ExistsActive(ctx context.Context, userID, excludeGroupID int64) (bool, error)
	Update(ctx context.Context, member *models.FamilyMember) error
}

// FamilyInviteRepository defines invite row operations.
type FamilyInviteRepository interface {
	Create(ctx context.Context, invite *models.FamilyInvite) (*models.FamilyInvite, error)
	GetByID(ctx context.Context, id int64) (*models.FamilyInvite, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*models.FamilyInvite, error)
	GetPending(ctx context.Context, groupID, inviteeUserID int64) (*models.FamilyInvite, error)
	ListPendingByGroup(ctx context.Context, groupID int64) ([]*models.FamilyInvite, error)
	ListPendingForInvitee(ctx context.Context, inviteeUserID int64) ([]*models.FamilyInvite, error)
	SetStatus(ctx context.Context, id int64, status string, decidedAt time.Time) error
	ExpirePending(ctx context.Context, now time.Time) ([]*models.FamilyInvite, error)
}

// FamilyDeviceRepository defines reconciled device rows.
type FamilyDeviceRepository interface {
	Create(ctx context.Context, device *models.FamilyDevice) (*models.FamilyDevice, error)
	GetByHWID(ctx context.Context, groupID int64, hwid string) (*models.FamilyDevice, error)
	ListByGroup(ctx context.Context, groupID int64) ([]*models.FamilyDevice, error)
	ListByOwner(ctx context.Context, groupID, ownerUserID int64) ([]*models.FamilyDevice, error)
	Touch(ctx context.Context, id int64, platform, deviceModel string, seenAt time.Time) error
	Delete(ctx context.Context, id int64) error
}

// NotificationRepository persists in-app notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) (*models.Notification, error)
}

// PersonalVPNRepository defines personal VPN instance and sub-user rows.
type PersonalVPNRepository interface {
	CreateInstance(ctx context.Context, inst *models.PersonalVPNInstance) (*models.PersonalVPNInstance, error)
	GetInstanceByID(ctx context.Context, id int64) (*models.PersonalVPNInstance, error)
	GetInstanceByOwner(ctx context.Context, ownerUserID int64) (*models.PersonalVPNInstance, error)
	GetInstanceByOwnerForUpdate(ctx context.Context, ownerUserID int64) (*models.PersonalVPNInstance, error)
	UpdateInstance(ctx context.Context, inst *models.PersonalVPNInstance) error
	CountActiveSubUsers(ctx context.Context, instanceID int64) (int, error)
	ListSubUsers(ctx context.Context, instanceID int64) ([]*models.PersonalVPNSubUser, error)
	GetSubUser(ctx context.Context, id int64) (*models.PersonalVPNSubUser, error)
	CreateSubUser(ctx context.Context, u *models.PersonalVPNSubUser) (*models.PersonalVPNSubUser, error)
	SoftDeleteSubUser(ctx context.Context, id int64, at time.Time) error
}
