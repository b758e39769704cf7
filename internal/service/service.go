// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
	"github.com/google/uuid"
)

// Clock returns the current wall-clock time.
type Clock func() time.Time

// EventService orchestrates event-related business operations.
type EventService struct {
	events        repository.EventRepository
	users         repository.UserRepository
	registrations repository.RegistrationRepository
	now           Clock
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(store repository.Store, now Clock) *EventService {
	if now == nil {
		now = time.Now
	}
	return &EventService{
		events:        store.Events(),
		users:         store.Users(),
		registrations: store.Registrations(),
		now:           now,
	}
}

// CreateEvent validates the request and delegates to the repository.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	if req.Capacity == nil || !validCapacity(*req.Capacity) {
		return nil, model.Validation("Capacity must be a positive number and less than or equal to 1000.")
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Location = strings.TrimSpace(req.Location)
	if req.Title == "" {
		return nil, model.Validation("Title is required.")
	}
	if req.Location == "" {
		return nil, model.Validation("Location is required.")
	}
	if req.EventTime.IsZero() {
		return nil, model.Validation("event_time is required.")
	}

	event := &model.Event{
		ID:        uuid.New().String(),
		Title:     req.Title,
		EventTime: storeTime(req.EventTime.Time),
		Location:  req.Location,
		Capacity:  int(*req.Capacity),
		CreatedAt: storeTime(s.now()),
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}

// validCapacity accepts whole numbers in [1, MaxCapacity].
func validCapacity(c float64) bool {
	return c >= 1 && c <= model.MaxCapacity && c == math.Trunc(c)
}

// ListUpcoming returns events that have not started yet, soonest first, each
// with its registrations. Registrations are loaded in one batched query.
func (s *EventService) ListUpcoming(ctx context.Context) ([]model.EventListing, error) {
	events, err := s.events.ListUpcoming(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	if len(events) == 0 {
		return []model.EventListing{}, nil
	}

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	regs, err := s.registrations.ListByEvents(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	byEvent := make(map[string][]model.Registration, len(events))
	for _, r := range regs {
		byEvent[r.EventID] = append(byEvent[r.EventID], r)
	}

	listings := make([]model.EventListing, len(events))
	for i, e := range events {
		eventRegs := byEvent[e.ID]
		if eventRegs == nil {
			eventRegs = []model.Registration{}
		}
		listings[i] = model.EventListing{Event: e, Registrations: eventRegs}
	}
	return listings, nil
}

// GetEventDetails returns an event with its registrations and registered users.
func (s *EventService) GetEventDetails(ctx context.Context, id string) (*model.EventDetails, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, model.Validation("Event id is required.")
	}
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	regs, err := s.registrations.ListByEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	users, err := s.users.ListByEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list registered users: %w", err)
	}

	if regs == nil {
		regs = []model.Registration{}
	}
	if users == nil {
		users = []model.User{}
	}
	return &model.EventDetails{Event: *event, Registrations: regs, RegisteredUsers: users}, nil
}

// storeTime normalizes a timestamp to the precision both backends keep.
func storeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
