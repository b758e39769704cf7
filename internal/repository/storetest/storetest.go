// Package storetest holds fixtures and a conformance suite shared by the
// repository backends.
package storetest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/database"
	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository/sqlite"
	"github.com/stretchr/testify/require"
)

// NewSQLite returns a migrated SQLite store in a temp dir, closed on cleanup.
func NewSQLite(t testing.TB) repository.Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"), 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, database.MigrateSQLite(ctx, db, slog.New(slog.NewTextHandler(io.Discard, nil))))

	store := sqlite.NewStore(db)
	t.Cleanup(store.Close)
	return store
}

var seq atomic.Int64

func next(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}

// SeedEvent inserts an event starting at start with the given capacity.
func SeedEvent(t testing.TB, store repository.Store, capacity int, start time.Time) *model.Event {
	t.Helper()
	e := &model.Event{
		ID:        next("event"),
		Title:     "Go meetup",
		EventTime: start.UTC().Truncate(time.Microsecond),
		Location:  "Hall A",
		Capacity:  capacity,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.Events().Create(context.Background(), e))
	return e
}

// SeedUser inserts a user with a unique email.
func SeedUser(t testing.TB, store repository.Store) *model.User {
	t.Helper()
	id := next("user")
	u := &model.User{
		ID:        id,
		Name:      "User " + id,
		Email:     id + "@example.com",
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.Users().Create(context.Background(), u))
	return u
}

// Insert registers user for event in its own transaction, bypassing the
// engine's checks.
func Insert(t testing.TB, store repository.Store, eventID, userID string) {
	t.Helper()
	err := store.Registrations().InTx(context.Background(), func(tx repository.Tx) error {
		return tx.InsertRegistration(context.Background(), &model.Registration{
			EventID:   eventID,
			UserID:    userID,
			CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		})
	})
	require.NoError(t, err)
}
