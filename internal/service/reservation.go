package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Operation names reported to the Recorder.
const (
	OpReserve = "reserve"
	OpCancel  = "cancel"
)

// Recorder observes the result of every engine operation.
type Recorder interface {
	ObserveReservation(op string, outcome model.Outcome, err error, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveReservation(string, model.Outcome, error, time.Duration) {}

// ReservationEngine enforces the capacity, duplicate and timing rules of
// registrations. Each Reserve or Cancel is one store transaction that holds
// the event lock from the first read until commit; the registration count is
// never cached.
type ReservationEngine struct {
	events        repository.EventRepository
	users         repository.UserRepository
	registrations repository.RegistrationRepository

	log       *slog.Logger
	now       Clock
	txTimeout time.Duration
	recorder  Recorder
	tracer    trace.Tracer
}

// EngineOption configures a ReservationEngine.
type EngineOption func(*ReservationEngine)

// WithClock overrides the wall clock read inside each transaction.
func WithClock(now Clock) EngineOption {
	return func(e *ReservationEngine) { e.now = now }
}

// WithTxTimeout bounds each check-and-mutate transaction.
func WithTxTimeout(d time.Duration) EngineOption {
	return func(e *ReservationEngine) { e.txTimeout = d }
}

// WithRecorder reports operation outcomes, e.g. to Prometheus.
func WithRecorder(r Recorder) EngineOption {
	return func(e *ReservationEngine) { e.recorder = r }
}

// WithLogger sets the engine logger.
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *ReservationEngine) { e.log = log }
}

// NewReservationEngine constructs a ReservationEngine over store.
func NewReservationEngine(store repository.Store, opts ...EngineOption) *ReservationEngine {
	e := &ReservationEngine{
		events:        store.Events(),
		users:         store.Users(),
		registrations: store.Registrations(),
		log:           slog.Default(),
		now:           time.Now,
		txTimeout:     5 * time.Second,
		recorder:      nopRecorder{},
		tracer:        otel.Tracer("github.com/Shivanand-hulikatti/event-registration/internal/service"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register validates a registration request, resolves the user and reserves
// a seat.
func (e *ReservationEngine) Register(ctx context.Context, req model.RegistrationRequest) (model.Outcome, error) {
	eventID, userID, err := registrationIDs(req)
	if err != nil {
		return model.OutcomeUnknown, err
	}
	if _, err := e.users.GetByID(ctx, userID); err != nil {
		return model.OutcomeUnknown, err
	}
	return e.Reserve(ctx, eventID, userID)
}

// Unregister validates a cancellation request and cancels the registration.
func (e *ReservationEngine) Unregister(ctx context.Context, req model.RegistrationRequest) (model.Outcome, error) {
	eventID, userID, err := registrationIDs(req)
	if err != nil {
		return model.OutcomeUnknown, err
	}
	return e.Cancel(ctx, eventID, userID)
}

func registrationIDs(req model.RegistrationRequest) (string, string, error) {
	eventID := strings.TrimSpace(req.EventID)
	userID := strings.TrimSpace(req.UserID)
	if eventID == "" || userID == "" {
		return "", "", model.Validation("eventId and userId are required.")
	}
	return eventID, userID, nil
}

// Reserve registers userID for eventID. Failed preconditions are reported as
// outcomes with a nil error; the error is reserved for store failures, which
// are transient (safe to retry) or internal.
func (e *ReservationEngine) Reserve(ctx context.Context, eventID, userID string) (outcome model.Outcome, err error) {
	ctx, span := e.tracer.Start(ctx, "ReservationEngine.Reserve", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.String("user.id", userID),
	))
	start := time.Now()
	defer func() { e.finish(span, OpReserve, eventID, userID, outcome, err, start) }()

	ctx, cancel := context.WithTimeout(ctx, e.txTimeout)
	defer cancel()

	err = e.registrations.InTx(ctx, func(tx repository.Tx) error {
		var txErr error
		outcome, txErr = e.reserve(ctx, tx, eventID, userID)
		return txErr
	})
	if errors.Is(err, model.ErrDuplicateRegistration) {
		// The (event, user) key rejected the insert and rolled back.
		return model.OutcomeDuplicateRegistration, nil
	}
	if err != nil {
		return model.OutcomeUnknown, err
	}
	return outcome, nil
}

func (e *ReservationEngine) reserve(ctx context.Context, tx repository.Tx, eventID, userID string) (model.Outcome, error) {
	event, err := tx.LockEvent(ctx, eventID)
	if errors.Is(err, model.ErrNotFound) {
		return model.OutcomeNotFound, nil
	}
	if err != nil {
		return model.OutcomeUnknown, err
	}

	// Read the clock after the lock is held so a long wait cannot admit a
	// registration for an event that started meanwhile.
	now := e.now()
	if !event.StartsAfter(now) {
		return model.OutcomePastEvent, nil
	}

	exists, err := tx.RegistrationExists(ctx, eventID, userID)
	if err != nil {
		return model.OutcomeUnknown, err
	}
	if exists {
		return model.OutcomeDuplicateRegistration, nil
	}

	count, err := tx.CountRegistrations(ctx, eventID)
	if err != nil {
		return model.OutcomeUnknown, err
	}
	if count >= event.Capacity {
		return model.OutcomeCapacityExceeded, nil
	}

	reg := &model.Registration{EventID: eventID, UserID: userID, CreatedAt: storeTime(now)}
	if err := tx.InsertRegistration(ctx, reg); err != nil {
		return model.OutcomeUnknown, err
	}
	return model.OutcomeConfirmed, nil
}

// Cancel removes the registration of userID for eventID. There is no time
// check: registrations for past events may still be cancelled.
func (e *ReservationEngine) Cancel(ctx context.Context, eventID, userID string) (outcome model.Outcome, err error) {
	ctx, span := e.tracer.Start(ctx, "ReservationEngine.Cancel", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.String("user.id", userID),
	))
	start := time.Now()
	defer func() { e.finish(span, OpCancel, eventID, userID, outcome, err, start) }()

	ctx, cancel := context.WithTimeout(ctx, e.txTimeout)
	defer cancel()

	err = e.registrations.InTx(ctx, func(tx repository.Tx) error {
		// Same lock as Reserve: a cancel and a reserve for one event are
		// strictly ordered.
		if _, err := tx.LockEvent(ctx, eventID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				outcome = model.OutcomeNotRegistered
				return nil
			}
			return err
		}
		deleted, err := tx.DeleteRegistration(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if deleted {
			outcome = model.OutcomeCancelled
		} else {
			outcome = model.OutcomeNotRegistered
		}
		return nil
	})
	if err != nil {
		return model.OutcomeUnknown, err
	}
	return outcome, nil
}

// Stats reports how full an event is. It is a plain read of the latest
// committed state and takes no lock.
func (e *ReservationEngine) Stats(ctx context.Context, eventID string) (model.Stats, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return model.Stats{}, model.Validation("Event id is required.")
	}
	usage, err := e.events.Usage(ctx, eventID)
	if err != nil {
		return model.Stats{}, err
	}
	return ComputeStats(usage), nil
}

// ComputeStats derives Stats from raw usage. percentUsed is rounded to two
// decimal places and is 0 for a zero capacity.
func ComputeStats(u model.Usage) model.Stats {
	stats := model.Stats{
		TotalRegistrations: u.Total,
		RemainingCapacity:  max(u.Capacity-u.Total, 0),
	}
	if u.Capacity > 0 {
		stats.PercentUsed = math.Round(float64(u.Total)*10000/float64(u.Capacity)) / 100
	}
	return stats
}

func (e *ReservationEngine) finish(span trace.Span, op, eventID, userID string, outcome model.Outcome, err error, start time.Time) {
	elapsed := time.Since(start)
	e.recorder.ObserveReservation(op, outcome, err, elapsed)

	span.SetAttributes(attribute.String("reservation.outcome", outcome.String()))
	switch {
	case model.IsStoreFailure(err):
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.log.Error("reservation store failure",
			"op", op, "event_id", eventID, "user_id", userID,
			"kind", model.KindOf(err), "retryable", model.IsRetryable(err), "err", err)
	case err != nil:
		span.SetAttributes(attribute.String("reservation.error_kind", string(model.KindOf(err))))
		e.log.Warn("reservation rejected",
			"op", op, "event_id", eventID, "user_id", userID,
			"kind", model.KindOf(err), "err", err)
	default:
		e.log.Debug("reservation decided",
			"op", op, "event_id", eventID, "user_id", userID,
			"outcome", outcome.String(), "elapsed", elapsed)
	}
	span.End()
}
