package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkovalev/famvpn/internal/models"
	"github.com/dkovalev/famvpn/internal/repository"
)

var inviteColumnList = []string{
	"id", "family_group_id", "invitee_user_id", "inviter_user_id",
	"token", "status", "created_at", "decided_at", "expires_at",
}

func TestInviteCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the generated id", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		created := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
		mock.ExpectQuery("INSERT INTO family_invites").
			WithArgs(int64(7), int64(2), int64(1), "tok", models.InvitePending, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(41), created))

		repo := NewStore(db).Invites()
		inv, err := repo.Create(ctx, &models.FamilyInvite{
			FamilyGroupID: 7,
			InviteeUserID: 2,
			InviterUserID: 1,
			Token:         "tok",
			Status:        models.InvitePending,
			ExpiresAt:     created.Add(models.InviteTTL),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(41), inv.ID)
		assert.True(t, inv.CreatedAt.Equal(created))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation becomes ErrDuplicate", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("INSERT INTO family_invites").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_family_invites_pending"})

		repo := NewStore(db).Invites()
		_, err = repo.Create(ctx, &models.FamilyInvite{FamilyGroupID: 7, InviteeUserID: 2})
		assert.ErrorIs(t, err, repository.ErrDuplicate)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInviteGetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("scans nullable columns", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		created := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
		decided := created.Add(time.Hour)
		mock.ExpectQuery("SELECT (.+) FROM family_invites WHERE id").
			WithArgs(int64(41)).
			WillReturnRows(sqlmock.NewRows(inviteColumnList).AddRow(
				int64(41), int64(7), int64(2), int64(1),
				"tok", models.InviteAccepted, created, decided, created.Add(models.InviteTTL),
			))

		inv, err := NewStore(db).Invites().GetByID(ctx, 41)
		require.NoError(t, err)
		require.NotNil(t, inv)
		assert.Equal(t, models.InviteAccepted, inv.Status)
		require.NotNil(t, inv.DecidedAt)
		assert.True(t, inv.DecidedAt.Equal(decided))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing invite is nil, not an error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT (.+) FROM family_invites WHERE id").
			WithArgs(int64(404)).
			WillReturnRows(sqlmock.NewRows(inviteColumnList))

		inv, err := NewStore(db).Invites().GetByID(ctx, 404)
		require.NoError(t, err)
		assert.Nil(t, inv)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInviteExpirePending(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)
	created := now.Add(-8 * 24 * time.Hour)
	mock.ExpectQuery("UPDATE family_invites SET status").
		WithArgs(models.InviteExpired, now, models.InvitePending).
		WillReturnRows(sqlmock.NewRows(inviteColumnList).AddRow(
			int64(41), int64(7), int64(2), int64(1),
			"tok", models.InviteExpired, created, now, created.Add(models.InviteTTL),
		))

	expired, err := NewStore(db).Invites().ExpirePending(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, models.InviteExpired, expired[0].Status)
	assert.Equal(t, int64(2), expired[0].InviteeUserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInviteSetStatus(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	decided := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE family_invites SET status").
		WithArgs(int64(41), models.InviteDeclined, decided).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewStore(db).Invites().SetStatus(ctx, 41, models.InviteDeclined, decided)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectExec("UPDATE family_invites SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = NewStore(db).Invites().SetStatus(ctx, 404, models.InviteDeclined, decided)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
