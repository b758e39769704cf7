package postgres_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/database"
	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository/postgres"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository/storetest"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// startPostgres boots a throwaway PostgreSQL container. It skips in -short
// mode and when no container provider is reachable.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("eventregistration"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.MigratePostgres(ctx, pool, slog.New(slog.NewTextHandler(io.Discard, nil))))
	return pool
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `TRUNCATE registrations, events, users`)
	require.NoError(t, err)
}

func TestStoreConformance(t *testing.T) {
	pool := startPostgres(t)
	storetest.Run(t, func(t *testing.T) repository.Store {
		truncate(t, pool)
		// Close is owned by startPostgres.
		return postgres.NewStore(pool, 2*time.Second)
	})
}

func TestLockEventBlocksSecondWriter(t *testing.T) {
	pool := startPostgres(t)
	truncate(t, pool)
	store := postgres.NewStore(pool, 200*time.Millisecond)
	ctx := context.Background()
	e := storetest.SeedEvent(t, store, 5, time.Now().Add(time.Hour))

	locked := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = store.Registrations().InTx(ctx, func(tx repository.Tx) error {
			if _, err := tx.LockEvent(ctx, e.ID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()

	<-locked
	err := store.Registrations().InTx(ctx, func(tx repository.Tx) error {
		_, err := tx.LockEvent(ctx, e.ID)
		return err
	})
	close(release)
	wg.Wait()

	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTransient, "lock_timeout must surface as a transient error")
}

func TestUserEmailUniqueViolationCarriesMessage(t *testing.T) {
	pool := startPostgres(t)
	truncate(t, pool)
	store := postgres.NewStore(pool, time.Second)
	u := storetest.SeedUser(t, store)

	err := store.Users().Create(context.Background(), &model.User{ID: "x", Name: "x", Email: u.Email, CreatedAt: time.Now()})
	var me *model.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, model.KindUniqueViolation, me.Kind)
	assert.Equal(t, "Email must be unique.", me.Message)
}
