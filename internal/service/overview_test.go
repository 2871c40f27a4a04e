package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkovalev/famvpn/internal/models"
)

func TestGetFamilyOverview(t *testing.T) {
	ctx := context.Background()

	t.Run("owner without a group gets one materialized", func(t *testing.T) {
		env := newTestEnv()
		owner := env.addUser(1, 101, "owner")
		env.addSubscription(owner.ID, models.SubscriptionActive, 30*24*time.Hour, familyTariff(3))

		ov, err := env.svc.GetFamilyOverview(ctx, owner.ID)
		require.NoError(t, err)

		assert.True(t, ov.FamilyEnabled)
		assert.NotZero(t, ov.FamilyGroupID)
		assert.Equal(t, "owner", ov.RoleName)
		assert.Equal(t, 1, ov.UsedSlots)
		assert.Equal(t, 2, ov.RemainingSlots)
		assert.True(t, ov.CanInvite)
		require.NotNil(t, ov.Owner)
		assert.Equal(t, owner.ID, ov.Owner.UserID)
	})

	t.Run("family-disabled tariff never materializes a group", func(t *testing.T) {
		env := newTestEnv()
		owner := env.addUser(1, 101, "owner")
		env.addSubscription(owner.ID, models.SubscriptionActive, 30*24*time.Hour, soloTariff())

		ov, err := env.svc.GetFamilyOverview(ctx, owner.ID)
		require.NoError(t, err)

		assert.False(t, ov.FamilyEnabled)
		assert.Zero(t, ov.FamilyGroupID)
		assert.False(t, ov.CanInvite)
	})

	t.Run("slots, members and pending invites", func(t *testing.T) {
		env := newTestEnv()
		owner, member, groupID := familyFixture(t, env)
		env.addUser(3, 103, "bob")

		invite, err := env.svc.CreateFamilyInvite(ctx, owner.ID, "bob")
		require.NoError(t, err)

		ov, err := env.svc.GetFamilyOverview(ctx, owner.ID)
		require.NoError(t, err)

		assert.Equal(t, groupID, ov.FamilyGroupID)
		assert.Equal(t, 2, ov.UsedSlots)
		assert.Equal(t, 1, ov.RemainingSlots)
		assert.True(t, ov.CanInvite)

		// Owner first, then the accepted member and the parked invitee row.
		require.Len(t, ov.Members, 3)
		assert.Equal(t, owner.ID, ov.Members[0].UserID)
		assert.Equal(t, "owner", ov.Members[0].Role)
		assert.Equal(t, member.ID, ov.Members[1].UserID)
		assert.Equal(t, models.MemberActive, ov.Members[1].Status)
		assert.True(t, ov.Members[1].CanRemove)
		assert.Equal(t, models.MemberInvited, ov.Members[2].Status)

		require.Len(t, ov.Invites, 1)
		assert.Equal(t, invite.ID, ov.Invites[0].InviteID)
		assert.True(t, ov.Invites[0].CanRevoke)
	})

	t.Run("member view cannot invite or remove", func(t *testing.T) {
		env := newTestEnv()
		_, member, groupID := familyFixture(t, env)

		ov, err := env.svc.GetFamilyOverview(ctx, member.ID)
		require.NoError(t, err)

		assert.Equal(t, groupID, ov.FamilyGroupID)
		assert.Equal(t, "member", ov.RoleName)
		assert.False(t, ov.CanInvite)
		for _, m := range ov.Members {
			assert.False(t, m.CanRemove)
		}
	})

	t.Run("full family blocks further invites", func(t *testing.T) {
		env := newTestEnv()
		owner := env.addUser(1, 101, "owner")
		env.addUser(2, 102, "alice")
		env.addSubscription(owner.ID, models.SubscriptionActive, 30*24*time.Hour, familyTariff(2))

		invite, err := env.svc.CreateFamilyInvite(ctx, owner.ID, "alice")
		require.NoError(t, err)
		_, err = env.svc.AcceptFamilyInvite(ctx, 2, invite.ID)
		require.NoError(t, err)

		ov, err := env.svc.GetFamilyOverview(ctx, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, ov.UsedSlots)
		assert.Equal(t, 0, ov.RemainingSlots)
		assert.False(t, ov.CanInvite)
	})

	t.Run("device summary attributes counts per user", func(t *testing.T) {
		env := newTestEnv()
		owner, member, groupID := familyFixture(t, env)

		for _, d := range []struct {
			hwid  string
			owner int64
		}{
			{"hw-1", owner.ID},
			{"hw-2", owner.ID},
			{"hw-3", member.ID},
		} {
			_, err := env.store.Devices().Create(ctx, &models.FamilyDevice{
				FamilyGroupID: groupID, HWID: d.hwid, OwnerUserID: d.owner,
			})
			require.NoError(t, err)
		}

		ov, err := env.svc.GetFamilyOverview(ctx, owner.ID)
		require.NoError(t, err)

		assert.Equal(t, 3, ov.DeviceSummary.TotalUsed)
		assert.Equal(t, 2, ov.Owner.DevicesCount)
		assert.Equal(t, 1, ov.Members[1].DevicesCount)
		assert.Equal(t, ov.DeviceSummary.DeviceLimit-3, ov.DeviceSummary.Remaining)
	})

	t.Run("user without a subscription still sees invites addressed to them", func(t *testing.T) {
		env := newTestEnv()
		owner := env.addUser(1, 101, "owner")
		invitee := env.addUser(2, 102, "alice")
		env.addSubscription(owner.ID, models.SubscriptionActive, 30*24*time.Hour, familyTariff(3))

		invite, err := env.svc.CreateFamilyInvite(ctx, owner.ID, "alice")
		require.NoError(t, err)

		ov, err := env.svc.GetFamilyOverview(ctx, invitee.ID)
		require.NoError(t, err)

		assert.Nil(t, ov.Owner)
		require.Len(t, ov.PendingInvitesForYou, 1)
		assert.Equal(t, invite.ID, ov.PendingInvitesForYou[0].InviteID)
	})
}

func TestSweepExpiredInvites(t *testing.T) {
	ctx := context.Background()

	env := newTestEnv()
	owner := env.addUser(1, 101, "owner")
	env.addUser(2, 102, "alice")
	env.addUser(3, 103, "bob")
	env.addUser(4, 104, "carol")
	env.addSubscription(owner.ID, models.SubscriptionActive, 60*24*time.Hour, familyTariff(4))

	stale, err := env.svc.CreateFamilyInvite(ctx, owner.ID, "alice")
	require.NoError(t, err)
	staleB, err := env.svc.CreateFamilyInvite(ctx, owner.ID, "carol")
	require.NoError(t, err)

	env.now = env.now.Add(models.InviteTTL + time.Hour)
	fresh, err := env.svc.CreateFamilyInvite(ctx, owner.ID, "bob")
	require.NoError(t, err)

	// A clock that never reads the same instant twice, so identical
	// removed_at stamps can only come from a single read per sweep.
	tick := env.now
	env.svc.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	env.svc.sweepExpiredInvites(ctx)

	got, err := env.store.Invites().GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InviteExpired, got.Status)

	member, err := env.store.Members().Get(ctx, stale.FamilyGroupID, 2)
	require.NoError(t, err)
	require.NotNil(t, member)
	assert.Equal(t, models.MemberDeclined, member.Status)
	require.NotNil(t, member.RemovedAt)

	memberB, err := env.store.Members().Get(ctx, staleB.FamilyGroupID, 4)
	require.NoError(t, err)
	require.NotNil(t, memberB)
	assert.Equal(t, models.MemberDeclined, memberB.Status)
	require.NotNil(t, memberB.RemovedAt)

	// Both rows were released in one pass and share its timestamp.
	assert.True(t, member.RemovedAt.Equal(*memberB.RemovedAt))

	got, err = env.store.Invites().GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitePending, got.Status)

	// A second sweep finds nothing new.
	env.svc.sweepExpiredInvites(ctx)
	got, err = env.store.Invites().GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitePending, got.Status)
}
