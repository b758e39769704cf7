package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-registration/internal/handler"
	"github.com/Shivanand-hulikatti/event-registration/internal/metrics"
	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository"
	"github.com/Shivanand-hulikatti/event-registration/internal/repository/storetest"
	"github.com/Shivanand-hulikatti/event-registration/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	store repository.Store
}

func newTestServer(t *testing.T, opts handler.RouterOptions) *testServer {
	t.Helper()
	store := storetest.NewSQLite(t)
	return newTestServerWithStore(t, store, opts)
}

func newTestServerWithStore(t *testing.T, store repository.Store, opts handler.RouterOptions) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handler.NewEventHandler(
		service.NewEventService(store, nil),
		service.NewUserService(store, nil),
		service.NewReservationEngine(store, service.WithLogger(log)),
		store,
		log,
	)
	srv := httptest.NewServer(handler.NewRouter(h, opts))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func (s *testServer) createUser(t *testing.T, email string) model.User {
	t.Helper()
	resp, data := s.do(t, http.MethodPost, "/users", map[string]string{"name": "N", "email": email})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	return decode[model.User](t, data)
}

func (s *testServer) createEvent(t *testing.T, capacity int, start time.Time) string {
	t.Helper()
	resp, data := s.do(t, http.MethodPost, "/events", map[string]any{
		"title": "Gophercon", "event_time": start.Format(time.RFC3339), "location": "Hall", "capacity": capacity,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	return decode[model.CreateEventResponse](t, data).ID
}

func TestCreateEvent(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{})

	id := s.createEvent(t, 10, time.Now().Add(time.Hour))
	assert.NotEmpty(t, id)
}

func TestCreateEventInvalidCapacity(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{})

	for _, capacity := range []any{0, 1001, -3, nil} {
		resp, data := s.do(t, http.MethodPost, "/events", map[string]any{
			"title": "t", "event_time": time.Now().Add(time.Hour).Format(time.RFC3339), "location": "l", "capacity": capacity,
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[model.ErrorResponse](t, data)
		assert.Equal(t, "Capacity must be a positive number and less than or equal to 1000.", body.Error)
		assert.Equal(t, model.KindValidation, body.Kind)
	}
}

func TestCreateEventMalformedBody(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{})
	resp, data := s.do(t, http.MethodPost, "/events", map[string]any{"capacity": "ten"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, model.KindValidation, decode[model.ErrorResponse](t, data).Kind)
}

func TestRegisterFlow(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{})
	eventID := s.createEvent(t, 1, time.Now().Add(time.Hour))
	u1 := s.createUser(t, "one@example.com")
	u2 := s.createUser(t, "two@example.com")

	resp, data := s.do(t, http.MethodPost, "/events/register", model.RegistrationRequest{EventID: eventID, UserID: u1.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	assert.Equal(t, "Registration successful.", decode[model.MessageResponse](t, data).Message)

	resp, data = s.do(t, http.MethodPost, "/events/register", model.RegistrationRequest{EventID: eventID, UserID: u1.ID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, model.ErrorResponse{Error: "User already registered for this event.", Kind: model.KindDuplicateRegistration},
		decode[model.ErrorResponse](t, data))

	resp, data = s.do(t, http.MethodPost, "/events/register", model.RegistrationRequest{EventID: eventID, UserID: u2.ID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, model.ErrorResponse{Error: "Event is full.", Kind: model.KindCapacityExceeded},
		decode[model.ErrorResponse](t, data))

	resp, data = s.do(t, http.MethodPost, "/events/cancel", model.RegistrationRequest{EventID: eventID, UserID: u1.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, "Registration cancelled.", decode[model.MessageResponse](t, data).Message)

	resp, data = s.do(t, http.MethodPost, "/events/cancel", model.RegistrationRequest{EventID: eventID, UserID: u1.ID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, model.ErrorResponse{Error: "User wasn't registered for this event.", Kind: model.KindNotRegistered},
		decode[model.ErrorResponse](t, data))

	resp, _ = s.do(t, http.MethodPost, "/events/register", model.RegistrationRequest{EventID: eventID, UserID: u2.ID})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestRegisterNotFound(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{})
	eventID := s.createEvent(t, 1, time.Now().Add(time.Hour))
	u := s.createUser(t, "u@example.com")

	resp, data := s.do(t, http.MethodPost, "/events/register", model.RegistrationRequest{EventID: "missing", UserID: u.ID})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Event not found.", decode[model.ErrorResponse](t, data).Error)

	resp, data = s.do(t, http.MethodPost, "/events/register", model.RegistrationRequest{EventID: eventID, UserID: "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "User not found.", decode[model.ErrorResponse](t, data).Error)

	resp, _ = s.do(t, http.MethodPost, "/events/register", model.RegistrationRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegisterPastEvent(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{})
	e := storetest.SeedEvent(t, s.store, 5, time.Now().Add(-time.Second))
	u := s.createUser(t, "late@example.com")

	resp, data := s.do(t, http.MethodPost, "/events/register", model.RegistrationRequest{EventID: e.ID, UserID: u.ID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, model.ErrorResponse{Error: "Cannot register for past events.", Kind: model.KindPastEvent},
		decode[model.ErrorResponse](t, data))
}

func TestConcurrentRegisterOverHTTP(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{})
	eventID := s.createEvent(t, 3, time.Now().Add(time.Hour))

	users := make([]*model.User, 12)
	for i := range users {
		users[i] = storetest.SeedUser(t, s.store)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
	)
	for _, u := range users {
		u := u
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, _ := json.Marshal(model.RegistrationRequest{EventID: eventID, UserID: u.ID})
			resp, err := http.Post(s.URL+"/api/events/register", "application/json", bytes.NewReader(body))
			if !assert.NoError(t, err) {
				return
			}
			resp.Body.Close()
			mu.Lock()
			statuses[resp.StatusCode]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, map[int]int{http.StatusCreated: 3, http.StatusBadRequest: 9}, statuses)

	resp, data := s.do(t, http.MethodGet, "/events/"+eventID+"/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.Stats{TotalRegistrations: 3, RemainingCapacity: 0, PercentUsed: 100}, decode[model.Stats](t, data))
}

func TestStats(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{})
	eventID := s.createEvent(t, 10, time.Now().Add(time.Hour))
	for i := 0; i < 3; i++ {
		storetest.Insert(t, s.store, eventID, storetest.SeedUser(t, s.store).ID)
	}

	resp, data := s.do(t, http.MethodGet, "/events/"+eventID+"/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, map[string]any{"totalRegistrations": 3.0, "remainingCapacity": 7.0, "percentUsed": 30.0}, raw)

	resp, _ = s.do(t, http.MethodGet, "/events/missing/stats", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetEvent(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{})
	eventID := s.createEvent(t, 10, time.Now().Add(time.Hour))
	u := s.createUser(t, "u@example.com")
	resp, _ := s.do(t, http.MethodPost, "/events/register", model.RegistrationRequest{EventID: eventID, UserID: u.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, data := s.do(t, http.MethodGet, "/events/"+eventID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	details := decode[model.EventDetails](t, data)
	assert.Equal(t, eventID, details.ID)
	assert.Equal(t, "Gophercon", details.Title)
	require.Len(t, details.RegisteredUsers, 1)
	assert.Equal(t, u.ID, details.RegisteredUsers[0].ID)
	require.Len(t, details.Registrations, 1)

	resp, data = s.do(t, http.MethodGet, "/events/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Event not found.", decode[model.ErrorResponse](t, data).Error)
}

func TestListEventsUpcomingOrdered(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{})
	base := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	later := s.createEvent(t, 5, base.Add(time.Hour))
	storetest.SeedEvent(t, s.store, 5, time.Now().Add(-time.Hour))
	first := s.createEvent(t, 5, base)

	resp, data := s.do(t, http.MethodGet, "/events", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := decode[[]model.Event](t, data)
	require.Len(t, events, 2)
	assert.Equal(t, first, events[0].ID)
	assert.Equal(t, later, events[1].ID)
}

func TestListEventsEmptyArray(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{})
	resp, data := s.do(t, http.MethodGet, "/events", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(data))
}

func TestUsers(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{})
	s.createUser(t, "a@example.com")

	resp, data := s.do(t, http.MethodPost, "/users", map[string]string{"name": "B", "email": "A@example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, model.ErrorResponse{Error: "Email must be unique.", Kind: model.KindUniqueViolation},
		decode[model.ErrorResponse](t, data))

	resp, data = s.do(t, http.MethodPost, "/users", map[string]string{"name": "B"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Name and email are required.", decode[model.ErrorResponse](t, data).Error)

	resp, data = s.do(t, http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]model.User](t, data), 1)
}

func TestAPIPrefix(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{})
	resp, _ := s.do(t, http.MethodGet, "/api/users", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{})
	resp, data := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
}

type downStore struct{ repository.Store }

func (downStore) Ping(context.Context) error { return model.Transient(errors.New("connection refused")) }

func TestHealthCheckUnavailable(t *testing.T) {
	s := newTestServerWithStore(t, downStore{storetest.NewSQLite(t)}, handler.RouterOptions{})
	resp, _ := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

type busyRegs struct{ repository.RegistrationRepository }

func (busyRegs) InTx(context.Context, func(repository.Tx) error) error {
	return model.Transient(errors.New("lock timeout"))
}

type busyStore struct{ repository.Store }

func (b busyStore) Registrations() repository.RegistrationRepository {
	return busyRegs{b.Store.Registrations()}
}

func TestTransientStoreErrorIs503(t *testing.T) {
	base := storetest.NewSQLite(t)
	s := newTestServerWithStore(t, busyStore{base}, handler.RouterOptions{})
	u := storetest.SeedUser(t, base)

	resp, data := s.do(t, http.MethodPost, "/events/register", model.RegistrationRequest{EventID: "e", UserID: u.ID})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	assert.Equal(t, model.KindTransient, decode[model.ErrorResponse](t, data).Kind)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{Metrics: metrics.New("test")})
	eventID := s.createEvent(t, 1, time.Now().Add(time.Hour))
	resp, _ := s.do(t, http.MethodGet, "/events/"+eventID+"/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `test_http_requests_total{method="GET",route="/events/{id}/stats",status="200"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{CORSOrigin: "https://app.example"})
	resp, _ := s.do(t, http.MethodOptions, "/events/register", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestListEventsIncludesRegistrations(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{})
	eventID := s.createEvent(t, 5, time.Now().Add(time.Hour))
	other := s.createEvent(t, 5, time.Now().Add(2*time.Hour))
	u := s.createUser(t, "fan@example.com")
	resp, _ := s.do(t, http.MethodPost, "/api/events/register", model.RegistrationRequest{EventID: eventID, UserID: u.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, data := s.do(t, http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 2)
	for _, e := range raw {
		assert.Contains(t, e, "registrations")
	}

	listings := decode[[]model.EventListing](t, data)
	assert.Equal(t, eventID, listings[0].ID)
	require.Len(t, listings[0].Registrations, 1)
	assert.Equal(t, u.ID, listings[0].Registrations[0].UserID)
	assert.Equal(t, other, listings[1].ID)
	assert.JSONEq(t, `[]`, string(raw[1]["registrations"]))
}

func TestCreateEventAcceptsLocalDateTime(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{})
	year := time.Now().Year() + 1

	tests := []struct {
		in   string
		want time.Time
	}{
		{fmt.Sprintf("%d-10-20T22:23", year), time.Date(year, 10, 20, 22, 23, 0, 0, time.UTC)},
		{fmt.Sprintf("%d-10-20T22:23:45", year), time.Date(year, 10, 20, 22, 23, 45, 0, time.UTC)},
		{fmt.Sprintf("%d-10-20T22:23:45+02:00", year), time.Date(year, 10, 20, 20, 23, 45, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			resp, data := s.do(t, http.MethodPost, "/api/events", map[string]any{
				"title": "Launch", "event_time": tt.in, "location": "Hall", "capacity": 5,
			})
			require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
			id := decode[model.CreateEventResponse](t, data).ID

			resp, data = s.do(t, http.MethodGet, "/api/events/"+id, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			got := decode[model.EventDetails](t, data)
			assert.True(t, tt.want.Equal(got.EventTime), "got %v want %v", got.EventTime, tt.want)
		})
	}
}

func TestCreateEventRejectsBadTimestamp(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{})
	resp, data := s.do(t, http.MethodPost, "/events", map[string]any{
		"title": "t", "event_time": "next tuesday", "location": "l", "capacity": 5,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, model.ErrorResponse{Error: `event_time "next tuesday" is not a valid timestamp.`, Kind: model.KindValidation},
		decode[model.ErrorResponse](t, data))
}

func TestCreateEventCapacityNumberForms(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{})
	when := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	resp, data := s.do(t, http.MethodPost, "/events", json.RawMessage(
		`{"title":"t","event_time":"`+when+`","location":"l","capacity":5.0}`))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	resp, data = s.do(t, http.MethodPost, "/events", json.RawMessage(
		`{"title":"t","event_time":"`+when+`","location":"l","capacity":5.5}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Capacity must be a positive number and less than or equal to 1000.", decode[model.ErrorResponse](t, data).Error)
}

func TestUserEmailKeptAsSubmitted(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{})
	u := s.createUser(t, "Bob@Example.com")
	assert.Equal(t, "Bob@Example.com", u.Email)

	resp, data := s.do(t, http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	users := decode[[]model.User](t, data)
	require.Len(t, users, 1)
	assert.Equal(t, "Bob@Example.com", users[0].Email)

	resp, data = s.do(t, http.MethodPost, "/users", map[string]string{"name": "Bob", "email": "bob@example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, model.KindUniqueViolation, decode[model.ErrorResponse](t, data).Kind)
}

func TestRegisterRateLimited(t *testing.T) {
	s := newTestServer(t, handler.RouterOptions{RateLimiter: handler.NewRateLimiter(1, 1)})

	resp, _ := s.do(t, http.MethodPost, "/events/register", model.RegistrationRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data := s.do(t, http.MethodPost, "/events/register", model.RegistrationRequest{})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, model.ErrorResponse{Error: "Too many requests.", Kind: model.KindRateLimited},
		decode[model.ErrorResponse](t, data))

	resp, _ = s.do(t, http.MethodGet, "/events", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
