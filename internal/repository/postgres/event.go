package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const selectEvent = `
	SELECT e.id, e.title, e.event_time, e.location, e.capacity, e.created_at,
	       (SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id)
	FROM events e`

// EventRepository handles persistence for events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a new event. The caller assigns the id.
func (r *EventRepository) Create(ctx context.Context, e *model.Event) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO events (id, title, event_time, location, capacity, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Title, e.EventTime, e.Location, e.Capacity, e.CreatedAt,
	)
	if err != nil {
		return classify(fmt.Errorf("insert event: %w", err))
	}
	return nil
}

// GetByID returns a single event or model.ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx, selectEvent+` WHERE e.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.NotFound("Event not found.")
		}
		return nil, classify(fmt.Errorf("get event: %w", err))
	}
	return e, nil
}

// ListUpcoming returns events after now ordered by start time, then location
// in byte order.
func (r *EventRepository) ListUpcoming(ctx context.Context, now time.Time) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		selectEvent+`
		 WHERE e.event_time > $1
		 ORDER BY e.event_time ASC, e.location COLLATE "C" ASC`,
		now,
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

// Usage returns capacity and the committed registration count.
func (r *EventRepository) Usage(ctx context.Context, id string) (model.Usage, error) {
	var u model.Usage
	err := r.db.QueryRow(ctx,
		`SELECT e.capacity, (SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id)
		 FROM events e WHERE e.id = $1`,
		id,
	).Scan(&u.Capacity, &u.Total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Usage{}, model.NotFound("Event not found.")
		}
		return model.Usage{}, classify(fmt.Errorf("event usage: %w", err))
	}
	return u, nil
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	if err := row.Scan(&e.ID, &e.Title, &e.EventTime, &e.Location, &e.Capacity, &e.CreatedAt, &e.RegistrationCount); err != nil {
		return nil, err
	}
	e.EventTime = e.EventTime.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}
