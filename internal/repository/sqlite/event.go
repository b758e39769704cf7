package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
)

const selectEvent = `
	SELECT e.id, e.title, e.event_time, e.location, e.capacity, e.created_at,
	       (SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id)
	FROM events e`

// EventRepository handles persistence for events.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new SQLite-backed EventRepository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, e *model.Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (id, title, event_time, location, capacity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.EventTime.UTC(), e.Location, e.Capacity, e.CreatedAt.UTC(),
	)
	if err != nil {
		return classify(fmt.Errorf("insert event: %w", err))
	}
	return nil
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx, selectEvent+` WHERE e.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NotFound("Event not found.")
		}
		return nil, classify(fmt.Errorf("get event: %w", err))
	}
	return e, nil
}

func (r *EventRepository) ListUpcoming(ctx context.Context, now time.Time) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		selectEvent+`
		 WHERE e.event_time > ?
		 ORDER BY e.event_time ASC, e.location ASC`,
		now.UTC(),
	)
	if err != nil {
		return nil, classify(fmt.Errorf("list events: %w", err))
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (r *EventRepository) Usage(ctx context.Context, id string) (model.Usage, error) {
	var u model.Usage
	err := r.db.QueryRowContext(ctx,
		`SELECT e.capacity, (SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id)
		 FROM events e WHERE e.id = ?`,
		id,
	).Scan(&u.Capacity, &u.Total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Usage{}, model.NotFound("Event not found.")
		}
		return model.Usage{}, classify(fmt.Errorf("event usage: %w", err))
	}
	return u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*model.Event, error) {
	var e model.Event
	if err := row.Scan(&e.ID, &e.Title, &e.EventTime, &e.Location, &e.Capacity, &e.CreatedAt, &e.RegistrationCount); err != nil {
		return nil, err
	}
	e.EventTime = e.EventTime.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}
