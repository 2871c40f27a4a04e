package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/dkovalev/famvpn/internal/repository"
)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx. All
// repositories run against it so the same implementation serves pooled reads
// and transactional writes.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements repository.Store on top of Postgres.
type Store struct {
	db *sql.DB
	repos
}

type repos struct {
	q dbtx
}

// NewStore creates the Postgres-backed store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, repos: repos{q: db}}
}

// RunTx executes fn inside a single transaction. fn gets a Repos bound to
// the transaction; returning an error rolls everything back. Row locks
// acquired through the ForUpdate reads are held until commit/rollback.
func (s *Store) RunTx(ctx context.Context, fn func(tx repository.Repos) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(repos{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", wrapDuplicate(err))
	}
	return nil
}

func (r repos) Users() repository.UserRepository { return &userRepository{q: r.q} }
func (r repos) Subscriptions() repository.SubscriptionRepository {
	return &subscriptionRepository{q: r.q}
}
func (r repos) Groups() repository.FamilyGroupRepository   { return &familyGroupRepository{q: r.q} }
func (r repos) Members() repository.FamilyMemberRepository { return &familyMemberRepository{q: r.q} }
func (r repos) Invites() repository.FamilyInviteRepository { return &familyInviteRepository{q: r.q} }
func (r repos) Devices() repository.FamilyDeviceRepository { return &familyDeviceRepository{q: r.q} }
func (r repos) Notifications() repository.NotificationRepository {
	return &notificationRepository{q: r.q}
}
func (r repos) PersonalVPN() repository.PersonalVPNRepository { return &personalVPNRepository{q: r.q} }

// wrapDuplicate translates a Postgres unique violation (SQLSTATE 23505) into
// repository.ErrDuplicate so callers stay driver-agnostic.
func wrapDuplicate(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	}
	return err
}
