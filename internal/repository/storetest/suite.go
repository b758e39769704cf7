package storetest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
	"github.com/Shivanand-hulikatti/event-registration/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises the repository contracts and the reservation engine against
// stores built by newStore. Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) repository.Store) {
	ctx := context.Background()
	future := time.Now().Add(24 * time.Hour)

	t.Run("EventRoundTrip", func(t *testing.T) {
		store := newStore(t)
		e := SeedEvent(t, store, 10, future)

		got, err := store.Events().GetByID(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, e.Title, got.Title)
		assert.Equal(t, e.Location, got.Location)
		assert.Equal(t, 10, got.Capacity)
		assert.True(t, e.EventTime.Equal(got.EventTime), "event time %v != %v", e.EventTime, got.EventTime)
		assert.Equal(t, 0, got.RegistrationCount)
	})

	t.Run("EventNotFound", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Events().GetByID(ctx, "missing")
		assert.ErrorIs(t, err, model.ErrNotFound)

		_, err = store.Events().Usage(ctx, "missing")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("ListUpcomingOrdering", func(t *testing.T) {
		store := newStore(t)
		base := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)

		past := SeedEvent(t, store, 5, time.Now().Add(-time.Hour))
		late := SeedEvent(t, store, 5, base.Add(time.Hour))
		early := &model.Event{ID: "early-b", Title: "t", EventTime: base, Location: "b-room", Capacity: 5, CreatedAt: time.Now().UTC()}
		tie := &model.Event{ID: "early-a", Title: "t", EventTime: base, Location: "a-room", Capacity: 5, CreatedAt: time.Now().UTC()}
		require.NoError(t, store.Events().Create(ctx, early))
		require.NoError(t, store.Events().Create(ctx, tie))

		events, err := store.Events().ListUpcoming(ctx, time.Now())
		require.NoError(t, err)

		var ids []string
		for _, e := range events {
			ids = append(ids, e.ID)
		}
		assert.Equal(t, []string{tie.ID, early.ID, late.ID}, ids)
		assert.NotContains(t, ids, past.ID)
	})

	t.Run("UserEmailUnique", func(t *testing.T) {
		store := newStore(t)
		u := SeedUser(t, store)

		dup := &model.User{ID: "other", Name: "Other", Email: u.Email, CreatedAt: time.Now().UTC()}
		err := store.Users().Create(ctx, dup)
		assert.ErrorIs(t, err, model.ErrUniqueViolation)

		got, err := store.Users().GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.Email, got.Email)

		_, err = store.Users().GetByID(ctx, "missing")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("UserEmailUniqueIgnoresCase", func(t *testing.T) {
		store := newStore(t)
		u := &model.User{ID: "bob", Name: "Bob", Email: "Bob@Example.com", CreatedAt: time.Now().UTC()}
		require.NoError(t, store.Users().Create(ctx, u))

		got, err := store.Users().GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "Bob@Example.com", got.Email)

		dup := &model.User{ID: "bob2", Name: "Bob", Email: "bob@example.com", CreatedAt: time.Now().UTC()}
		assert.ErrorIs(t, store.Users().Create(ctx, dup), model.ErrUniqueViolation)
	})

	t.Run("UsersListedInCreationOrder", func(t *testing.T) {
		store := newStore(t)
		a := SeedUser(t, store)
		b := SeedUser(t, store)

		users, err := store.Users().List(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, a.ID, users[0].ID)
		assert.Equal(t, b.ID, users[1].ID)
	})

	t.Run("RegistrationPairIsUnique", func(t *testing.T) {
		store := newStore(t)
		e := SeedEvent(t, store, 5, future)
		u := SeedUser(t, store)
		Insert(t, store, e.ID, u.ID)

		err := store.Registrations().InTx(ctx, func(tx repository.Tx) error {
			return tx.InsertRegistration(ctx, &model.Registration{EventID: e.ID, UserID: u.ID, CreatedAt: time.Now().UTC()})
		})
		assert.ErrorIs(t, err, model.ErrDuplicateRegistration)

		usage, err := store.Events().Usage(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, model.Usage{Capacity: 5, Total: 1}, usage)
	})

	t.Run("DanglingRegistrationIsNotFound", func(t *testing.T) {
		store := newStore(t)
		e := SeedEvent(t, store, 5, future)

		err := store.Registrations().InTx(ctx, func(tx repository.Tx) error {
			return tx.InsertRegistration(ctx, &model.Registration{EventID: e.ID, UserID: "ghost", CreatedAt: time.Now().UTC()})
		})
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("TxReadsAndDeletes", func(t *testing.T) {
		store := newStore(t)
		e := SeedEvent(t, store, 5, future)
		u := SeedUser(t, store)
		Insert(t, store, e.ID, u.ID)

		err := store.Registrations().InTx(ctx, func(tx repository.Tx) error {
			locked, err := tx.LockEvent(ctx, e.ID)
			require.NoError(t, err)
			assert.Equal(t, 5, locked.Capacity)

			exists, err := tx.RegistrationExists(ctx, e.ID, u.ID)
			require.NoError(t, err)
			assert.True(t, exists)

			n, err := tx.CountRegistrations(ctx, e.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			deleted, err := tx.DeleteRegistration(ctx, e.ID, u.ID)
			require.NoError(t, err)
			assert.True(t, deleted)

			deleted, err = tx.DeleteRegistration(ctx, e.ID, u.ID)
			require.NoError(t, err)
			assert.False(t, deleted)
			return nil
		})
		require.NoError(t, err)

		regs, err := store.Registrations().ListByEvent(ctx, e.ID)
		require.NoError(t, err)
		assert.Empty(t, regs)
	})

	t.Run("TxRollsBackOnError", func(t *testing.T) {
		store := newStore(t)
		e := SeedEvent(t, store, 5, future)
		u := SeedUser(t, store)
		boom := errors.New("boom")

		err := store.Registrations().InTx(ctx, func(tx repository.Tx) error {
			require.NoError(t, tx.InsertRegistration(ctx, &model.Registration{EventID: e.ID, UserID: u.ID, CreatedAt: time.Now().UTC()}))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		usage, err := store.Events().Usage(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, usage.Total)
	})

	t.Run("LockEventMissing", func(t *testing.T) {
		store := newStore(t)
		err := store.Registrations().InTx(ctx, func(tx repository.Tx) error {
			_, err := tx.LockEvent(ctx, "missing")
			return err
		})
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("RegisteredUsersAndRegistrations", func(t *testing.T) {
		store := newStore(t)
		e := SeedEvent(t, store, 5, future)
		a := SeedUser(t, store)
		b := SeedUser(t, store)
		SeedUser(t, store)
		Insert(t, store, e.ID, a.ID)
		Insert(t, store, e.ID, b.ID)

		users, err := store.Users().ListByEvent(ctx, e.ID)
		require.NoError(t, err)
		assert.Len(t, users, 2)

		regs, err := store.Registrations().ListByEvent(ctx, e.ID)
		require.NoError(t, err)
		assert.Len(t, regs, 2)

		got, err := store.Events().GetByID(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.RegistrationCount)
	})

	t.Run("ListByEventsBatches", func(t *testing.T) {
		store := newStore(t)
		a := SeedEvent(t, store, 5, future)
		b := SeedEvent(t, store, 5, future)
		c := SeedEvent(t, store, 5, future)
		u := SeedUser(t, store)
		v := SeedUser(t, store)
		Insert(t, store, a.ID, u.ID)
		Insert(t, store, b.ID, u.ID)
		Insert(t, store, b.ID, v.ID)
		Insert(t, store, c.ID, v.ID)

		regs, err := store.Registrations().ListByEvents(ctx, []string{a.ID, b.ID})
		require.NoError(t, err)
		require.Len(t, regs, 3)
		for _, r := range regs {
			assert.NotEqual(t, c.ID, r.EventID)
		}

		regs, err = store.Registrations().ListByEvents(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, regs)
	})

	t.Run("EngineCapacityOneRace", func(t *testing.T) {
		store := newStore(t)
		engine := newEngine(store)
		e := SeedEvent(t, store, 1, future)
		a := SeedUser(t, store)
		b := SeedUser(t, store)

		outcomes := reserveConcurrently(t, engine, e.ID, []string{a.ID, b.ID})
		assert.Equal(t, 1, outcomes[model.OutcomeConfirmed])
		assert.Equal(t, 1, outcomes[model.OutcomeCapacityExceeded])
		assert.Equal(t, 1, total(t, store, e.ID))
	})

	t.Run("EngineNeverOverbooks", func(t *testing.T) {
		const capacity, callers = 7, 40
		store := newStore(t)
		engine := newEngine(store)
		e := SeedEvent(t, store, capacity, future)
		ids := make([]string, callers)
		for i := range ids {
			ids[i] = SeedUser(t, store).ID
		}

		outcomes := reserveConcurrently(t, engine, e.ID, ids)
		assert.Equal(t, capacity, outcomes[model.OutcomeConfirmed])
		assert.Equal(t, callers-capacity, outcomes[model.OutcomeCapacityExceeded])
		assert.Equal(t, capacity, total(t, store, e.ID))

		regs, err := store.Registrations().ListByEvent(ctx, e.ID)
		require.NoError(t, err)
		seen := map[string]bool{}
		for _, r := range regs {
			assert.False(t, seen[r.UserID], "user %s registered twice", r.UserID)
			seen[r.UserID] = true
		}
	})

	t.Run("EngineCancelFreesSlot", func(t *testing.T) {
		store := newStore(t)
		engine := newEngine(store)
		e := SeedEvent(t, store, 1, future)
		holder := SeedUser(t, store)
		waiter := SeedUser(t, store)

		outcome, err := engine.Reserve(ctx, e.ID, holder.ID)
		require.NoError(t, err)
		require.Equal(t, model.OutcomeConfirmed, outcome)

		var (
			wg                sync.WaitGroup
			cancelled, waited model.Outcome
			cancelErr, resErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			cancelled, cancelErr = engine.Cancel(ctx, e.ID, holder.ID)
		}()
		go func() {
			defer wg.Done()
			waited, resErr = engine.Reserve(ctx, e.ID, waiter.ID)
		}()
		wg.Wait()
		require.NoError(t, cancelErr)
		require.NoError(t, resErr)
		assert.Equal(t, model.OutcomeCancelled, cancelled)
		assert.Contains(t, []model.Outcome{model.OutcomeConfirmed, model.OutcomeCapacityExceeded}, waited)

		if waited == model.OutcomeCapacityExceeded {
			// The reserve ran before the cancel; the freed slot is visible now.
			waited, err = engine.Reserve(ctx, e.ID, waiter.ID)
			require.NoError(t, err)
		}
		assert.Equal(t, model.OutcomeConfirmed, waited)
		assert.Equal(t, 1, total(t, store, e.ID))
	})

	t.Run("Ping", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.Ping(ctx))
	})
}

func newEngine(store repository.Store) *service.ReservationEngine {
	return service.NewReservationEngine(store,
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		service.WithTxTimeout(30*time.Second),
	)
}

// reserveConcurrently reserves a seat for every user at once and tallies the
// outcomes.
func reserveConcurrently(t *testing.T, engine *service.ReservationEngine, eventID string, userIDs []string) map[model.Outcome]int {
	t.Helper()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[model.Outcome]int{}
		start    = make(chan struct{})
	)
	for _, id := range userIDs {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			outcome, err := engine.Reserve(context.Background(), eventID, id)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			outcomes[outcome]++
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()
	return outcomes
}

func total(t *testing.T, store repository.Store, eventID string) int {
	t.Helper()
	u, err := store.Events().Usage(context.Background(), eventID)
	require.NoError(t, err)
	return u.Total
}
