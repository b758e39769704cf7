// Package repository defines the persistence contracts of the event
// registration system. Backends live in the postgres and sqlite subpackages.
package repository

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
)

// EventRepository handles persistence for events.
type EventRepository interface {
	Create(ctx context.Context, e *model.Event) error
	// GetByID returns model.ErrNotFound when the event does not exist.
	GetByID(ctx context.Context, id string) (*model.Event, error)
	// ListUpcoming returns events starting strictly after now, ordered by
	// start time then location.
	ListUpcoming(ctx context.Context, now time.Time) ([]model.Event, error)
	// Usage reads capacity and the current registration count in one query.
	Usage(ctx context.Context, id string) (model.Usage, error)
}

// UserRepository handles persistence for users.
type UserRepository interface {
	// Create returns model.ErrUniqueViolation when the email is taken.
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.User, error)
}

// RegistrationRepository handles persistence for registrations and owns the
// transaction boundary of the reservation engine.
type RegistrationRepository interface {
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	// ListByEvents returns the registrations of all given events in one
	// query, ordered by event then creation.
	ListByEvents(ctx context.Context, eventIDs []string) ([]model.Registration, error)
	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise. Lock timeouts, serialization
	// failures and deadline expiry surface as model.ErrTransient.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of reads and writes available inside a reservation
// transaction.
type Tx interface {
	// LockEvent loads the event and holds an exclusive lock scoped to it
	// until the transaction ends. Returns model.ErrNotFound if missing.
	LockEvent(ctx context.Context, eventID string) (*model.Event, error)
	RegistrationExists(ctx context.Context, eventID, userID string) (bool, error)
	CountRegistrations(ctx context.Context, eventID string) (int, error)
	// InsertRegistration returns model.ErrDuplicateRegistration on a
	// (event, user) conflict and model.ErrNotFound on a dangling reference.
	InsertRegistration(ctx context.Context, r *model.Registration) error
	// DeleteRegistration reports whether a row was removed.
	DeleteRegistration(ctx context.Context, eventID, userID string) (bool, error)
}

// Store bundles the repositories of one backend.
type Store interface {
	Events() EventRepository
	Users() UserRepository
	Registrations() RegistrationRepository
	Ping(ctx context.Context) error
	Close()
}
