// Package sqlite implements the repository interfaces on an embedded SQLite
// database (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var _ repository.Store = (*Store)(nil)

// Store is the SQLite-backed repository.Store. The *sql.DB must come from
// database.OpenSQLite so that transactions begin IMMEDIATE.
type Store struct {
	db            *sql.DB
	events        *EventRepository
	users         *UserRepository
	registrations *RegistrationRepository
}

// NewStore wires the repositories around db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:            db,
		events:        NewEventRepository(db),
		users:         NewUserRepository(db),
		registrations: NewRegistrationRepository(db),
	}
}

func (s *Store) Events() repository.EventRepository               { return s.events }
func (s *Store) Users() repository.UserRepository                 { return s.users }
func (s *Store) Registrations() repository.RegistrationRepository { return s.registrations }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return model.Transient(err)
	}
	return nil
}

func (s *Store) Close() { _ = s.db.Close() }

func sqliteCode(err error) int {
	var se *sqlitedrv.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

func isUniqueViolation(err error) bool {
	switch sqliteCode(err) {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	if sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// classify marks errors that are safe to retry as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if model.KindOf(err) != model.KindInternal {
		return err
	}
	switch sqliteCode(err) & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return model.Transient(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.Transient(err)
	}
	return err
}
