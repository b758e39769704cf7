// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/service"
	"github.com/go-chi/chi/v5"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EventHandler holds all HTTP handlers for the event registration API.
type EventHandler struct {
	events *service.EventService
	users  *service.UserService
	engine *service.ReservationEngine
	store  Pinger
	log    *slog.Logger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(
	events *service.EventService,
	users *service.UserService,
	engine *service.ReservationEngine,
	store Pinger,
	log *slog.Logger,
) *EventHandler {
	return &EventHandler{events: events, users: users, engine: engine, store: store, log: log}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// statusFor maps an error kind to its HTTP status. This is the only place
// error kinds meet transport codes.
func statusFor(kind model.Kind) int {
	switch kind {
	case model.KindValidation,
		model.KindPastEvent,
		model.KindDuplicateRegistration,
		model.KindCapacityExceeded,
		model.KindNotRegistered,
		model.KindUniqueViolation:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindRateLimited:
		return http.StatusTooManyRequests
	case model.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a structured error body. Internal errors are
// logged and replaced with a generic message.
func (h *EventHandler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	kind := model.KindOf(err)
	status := statusFor(kind)

	msg := fallback
	var e *model.Error
	if errors.As(err, &e) && e.Message != "" && kind != model.KindInternal {
		msg = e.Message
	}

	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "kind", kind, "err", err)
	}
	if kind == model.KindTransient {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, model.ErrorResponse{Error: msg, Kind: kind})
}

// badBody reports a body that failed to decode. Classified errors raised by
// field decoders keep their own message.
func badBody(err error) error {
	var e *model.Error
	if errors.As(err, &e) && e.Kind == model.KindValidation {
		return e
	}
	return model.Validation("invalid request body: " + err.Error())
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, badBody(err), "")
		return
	}

	event, err := h.events.CreateEvent(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, "Failed to create event.")
		return
	}

	writeJSON(w, http.StatusCreated, model.CreateEventResponse{ID: event.ID})
}

// ListEvents handles GET /events
// Returns upcoming events, soonest first, ties broken by location, each with
// its registrations.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListUpcoming(r.Context())
	if err != nil {
		h.writeError(w, r, err, "Failed to list upcoming events.")
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.EventListing{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
// Returns the event with its registrations and registered users.
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	details, err := h.events.GetEventDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err, "Failed to fetch event details.")
		return
	}

	writeJSON(w, http.StatusOK, details)
}

// Register handles POST /events/register
func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegistrationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, badBody(err), "")
		return
	}

	outcome, err := h.engine.Register(r.Context(), req)
	if err == nil {
		err = outcome.Err()
	}
	if err != nil {
		h.writeError(w, r, err, "Failed to register for event.")
		return
	}

	writeJSON(w, http.StatusCreated, model.MessageResponse{Message: outcome.Message()})
}

// Cancel handles POST /events/cancel
func (h *EventHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req model.RegistrationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, badBody(err), "")
		return
	}

	outcome, err := h.engine.Unregister(r.Context(), req)
	if err == nil {
		err = outcome.Err()
	}
	if err != nil {
		h.writeError(w, r, err, "Failed to cancel registration.")
		return
	}

	writeJSON(w, http.StatusOK, model.MessageResponse{Message: outcome.Message()})
}

// Stats handles GET /events/{id}/stats
func (h *EventHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err, "Failed to fetch event stats.")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// CreateUser handles POST /users
func (h *EventHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, badBody(err), "")
		return
	}

	user, err := h.users.CreateUser(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, "Failed to create user.")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// ListUsers handles GET /users
func (h *EventHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, r, err, "Failed to list users.")
		return
	}

	if users == nil {
		users = []model.User{}
	}

	writeJSON(w, http.StatusOK, users)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func (h *EventHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.log.WarnContext(r.Context(), "health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
