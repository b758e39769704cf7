package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
)

// RegistrationRepository handles persistence for registrations.
type RegistrationRepository struct {
	db *sql.DB
}

// NewRegistrationRepository creates a new SQLite-backed RegistrationRepository.
func NewRegistrationRepository(db *sql.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT event_id, user_id, created_at
		 FROM registrations
		 WHERE event_id = ?
		 ORDER BY created_at ASC, user_id ASC`,
		eventID,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("list registrations: %w", err))
	}
	defer rows.Close()
	return scanRegistrations(rows)
}

func (r *RegistrationRepository) ListByEvents(ctx context.Context, eventIDs []string) ([]model.Registration, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(eventIDs))
	for i, id := range eventIDs {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(eventIDs)), ",")

	rows, err := r.db.QueryContext(ctx,
		`SELECT event_id, user_id, created_at
		 FROM registrations
		 WHERE event_id IN (`+placeholders+`)
		 ORDER BY event_id ASC, created_at ASC, user_id ASC`,
		args...,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("list registrations: %w", err))
	}
	defer rows.Close()
	return scanRegistrations(rows)
}

func scanRegistrations(rows *sql.Rows) ([]model.Registration, error) {
	var regs []model.Registration
	for rows.Next() {
		var reg model.Registration
		if err := rows.Scan(&reg.EventID, &reg.UserID, &reg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		reg.CreatedAt = reg.CreatedAt.UTC()
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// InTx runs fn in a BEGIN IMMEDIATE transaction. The database write lock is
// taken at BEGIN, so the whole check-and-mutate sequence is serialized
// against every other writer.
func (r *RegistrationRepository) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(&liteTx{tx: tx}); err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

type liteTx struct {
	tx *sql.Tx
}

func (t *liteTx) LockEvent(ctx context.Context, eventID string) (*model.Event, error) {
	var e model.Event
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, title, event_time, location, capacity, created_at FROM events WHERE id = ?`,
		eventID,
	).Scan(&e.ID, &e.Title, &e.EventTime, &e.Location, &e.Capacity, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NotFound("Event not found.")
		}
		return nil, fmt.Errorf("load event: %w", err)
	}
	e.EventTime = e.EventTime.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func (t *liteTx) RegistrationExists(ctx context.Context, eventID, userID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM registrations WHERE event_id = ? AND user_id = ?)`,
		eventID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return exists, nil
}

func (t *liteTx) CountRegistrations(ctx context.Context, eventID string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = ?`,
		eventID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

func (t *liteTx) InsertRegistration(ctx context.Context, reg *model.Registration) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO registrations (event_id, user_id, created_at) VALUES (?, ?, ?)`,
		reg.EventID, reg.UserID, reg.CreatedAt.UTC(),
	)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return &model.Error{Kind: model.KindDuplicateRegistration, Err: err}
	case isForeignKeyViolation(err):
		return &model.Error{Kind: model.KindNotFound, Message: "User not found.", Err: err}
	default:
		return fmt.Errorf("insert registration: %w", err)
	}
}

func (t *liteTx) DeleteRegistration(ctx context.Context, eventID, userID string) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM registrations WHERE event_id = ? AND user_id = ?`,
		eventID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("delete registration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
