package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lounge_backend/internal/locker"
	"lounge_backend/internal/policy"
)

// Actor is the caller identity supplied by the auth collaborator.
type Actor struct {
	OperatorID int64
	Username   string
	Role       policy.Role
}

func authorize(actor Actor, op policy.Operation, state policy.ResourceState) error {
	if !policy.CanPerform(actor.Role, op, state) {
		return fmt.Errorf("%w: role '%s' may not perform %s", ErrForbidden, actor.Role, op)
	}
	return nil
}

// Clock returns the server time used for every charge and window computation.
type Clock func() time.Time

func SystemClock() time.Time { return time.Now().UTC() }

// unitOfWork runs fn inside a database transaction while holding the given locks.
// Locks are taken before the transaction begins and never while it is open.
type unitOfWork struct {
	db    *sql.DB
	locks *locker.Locker
}

func (u *unitOfWork) run(ctx context.Context, keys []string, fn func(tx *sql.Tx) error) error {
	return u.locks.WithLock(ctx, keys, func() error {
		return u.inTx(ctx, fn)
	})
}

func (u *unitOfWork) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start database transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit database transaction: %w", err)
	}
	return nil
}
