// Package model defines the core domain types for the event registration system.
package model

import "time"

// MaxCapacity is the largest capacity an event may be created with.
const MaxCapacity = 1000

// Event represents a scheduled event with a fixed number of seats.
type Event struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	EventTime         time.Time `json:"event_time"`
	Location          string    `json:"location"`
	Capacity          int       `json:"capacity"`
	RegistrationCount int       `json:"registration_count"`
	CreatedAt         time.Time `json:"created_at"`
}

// StartsAfter reports whether the event is scheduled strictly after t.
func (e *Event) StartsAfter(t time.Time) bool {
	return e.EventTime.After(t)
}

// User is a person who can register for events.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Registration binds one user to one event. The (EventID, UserID) pair is unique.
type Registration struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// EventDetails is an event together with its registrations and the users
// behind them.
type EventDetails struct {
	Event
	Registrations   []Registration `json:"registrations"`
	RegisteredUsers []User         `json:"registeredUsers"`
}

// EventListing is an upcoming event together with its registrations.
type EventListing struct {
	Event
	Registrations []Registration `json:"registrations"`
}

// Usage is the raw capacity accounting for a single event.
type Usage struct {
	Capacity int
	Total    int
}

// Stats summarises how full an event is.
type Stats struct {
	TotalRegistrations int     `json:"totalRegistrations"`
	RemainingCapacity  int     `json:"remainingCapacity"`
	PercentUsed        float64 `json:"percentUsed"`
}

// CreateEventRequest is the payload for creating a new event.
// Capacity is a pointer so a missing value can be told apart from zero; it
// accepts any JSON number and must hold a whole value.
type CreateEventRequest struct {
	Title     string    `json:"title"`
	EventTime Timestamp `json:"event_time"`
	Location  string    `json:"location"`
	Capacity  *float64  `json:"capacity"`
}

// CreateEventResponse carries the id of a freshly created event.
type CreateEventResponse struct {
	ID string `json:"id"`
}

// CreateUserRequest is the payload for creating a new user.
type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RegistrationRequest is the payload for both registering and cancelling.
type RegistrationRequest struct {
	EventID string `json:"eventId"`
	UserID  string `json:"userId"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  Kind   `json:"kind,omitempty"`
}
