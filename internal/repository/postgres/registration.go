package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegistrationRepository handles persistence for registrations.
type RegistrationRepository struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool, lockTimeout time.Duration) *RegistrationRepository {
	return &RegistrationRepository{db: db, lockTimeout: lockTimeout}
}

// ListByEvent returns all registrations for a given event.
func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT event_id, user_id, created_at
		 FROM registrations
		 WHERE event_id = $1
		 ORDER BY created_at ASC, user_id ASC`,
		eventID,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("list registrations: %w", err))
	}
	defer rows.Close()
	return scanRegistrations(rows)
}

// ListByEvents returns the registrations of several events at once.
func (r *RegistrationRepository) ListByEvents(ctx context.Context, eventIDs []string) ([]model.Registration, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT event_id, user_id, created_at
		 FROM registrations
		 WHERE event_id = ANY($1)
		 ORDER BY event_id ASC, created_at ASC, user_id ASC`,
		eventIDs,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("list registrations: %w", err))
	}
	defer rows.Close()
	return scanRegistrations(rows)
}

func scanRegistrations(rows pgx.Rows) ([]model.Registration, error) {
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

// InTx runs fn in a READ COMMITTED transaction.
//
// Isolation for the capacity path comes from the row lock taken by
// Tx.LockEvent (SELECT … FOR UPDATE), not from the isolation level: once the
// lock is held every later statement in the transaction reads the latest
// committed registrations, and any other transaction that wants the same
// event blocks until we COMMIT or ROLLBACK.
//
//	A: SELECT … FOR UPDATE (event X)   → lock acquired
//	B: SELECT … FOR UPDATE (event X)   → blocks
//	A: COUNT = 9, capacity 10 → INSERT → COMMIT
//	B: lock acquired, COUNT = 10 → capacity exceeded
//
// lock_timeout bounds the wait; an expired wait is a transient error.
func (r *RegistrationRepository) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if r.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return classify(fmt.Errorf("set lock timeout: %w", err))
		}
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockEvent(ctx context.Context, eventID string) (*model.Event, error) {
	var e model.Event
	err := t.tx.QueryRow(ctx,
		`SELECT id, title, event_time, location, capacity, created_at
		 FROM events
		 WHERE id = $1
		 FOR UPDATE`,
		eventID,
	).Scan(&e.ID, &e.Title, &e.EventTime, &e.Location, &e.Capacity, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.NotFound("Event not found.")
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}
	e.EventTime = e.EventTime.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func (t *pgTx) RegistrationExists(ctx context.Context, eventID, userID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM registrations WHERE event_id = $1 AND user_id = $2)`,
		eventID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return exists, nil
}

func (t *pgTx) CountRegistrations(ctx context.Context, eventID string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1`,
		eventID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

func (t *pgTx) InsertRegistration(ctx context.Context, reg *model.Registration) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO registrations (event_id, user_id, created_at) VALUES ($1, $2, $3)`,
		reg.EventID, reg.UserID, reg.CreatedAt,
	)
	switch pgCode(err) {
	case "":
	case codeUniqueViolation:
		return &model.Error{Kind: model.KindDuplicateRegistration, Err: err}
	case codeForeignKeyViolation:
		return &model.Error{Kind: model.KindNotFound, Message: "User not found.", Err: err}
	}
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteRegistration(ctx context.Context, eventID, userID string) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM registrations WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("delete registration: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
