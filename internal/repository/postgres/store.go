// Package postgres implements the repository interfaces on PostgreSQL using
// pgx directly (no ORM).
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ repository.Store = (*Store)(nil)

// Store is the PostgreSQL-backed repository.Store.
type Store struct {
	pool          *pgxpool.Pool
	events        *EventRepository
	users         *UserRepository
	registrations *RegistrationRepository
}

// NewStore wires the repositories around a single pool. lockTimeout bounds
// how long a reservation waits for the event row lock; zero disables it.
func NewStore(pool *pgxpool.Pool, lockTimeout time.Duration) *Store {
	return &Store{
		pool:          pool,
		events:        NewEventRepository(pool),
		users:         NewUserRepository(pool),
		registrations: NewRegistrationRepository(pool, lockTimeout),
	}
}

func (s *Store) Events() repository.EventRepository               { return s.events }
func (s *Store) Users() repository.UserRepository                 { return s.users }
func (s *Store) Registrations() repository.RegistrationRepository { return s.registrations }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return model.Transient(err)
	}
	return nil
}

func (s *Store) Close() { s.pool.Close() }

// SQLSTATE codes the repositories react to.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// classify marks errors that are safe to retry as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if model.KindOf(err) != model.KindInternal {
		return err
	}
	switch pgCode(err) {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable, codeQueryCanceled:
		return model.Transient(err)
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return model.Transient(err)
	}
	return err
}
