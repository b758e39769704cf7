package handler

import (
	"net/http"

	"github.com/Shivanand-hulikatti/event-registration/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterOptions carries the optional pieces of the HTTP stack.
type RouterOptions struct {
	Metrics     *metrics.Metrics
	RateLimiter *RateLimiter
	CORSOrigin  string
}

// NewRouter builds the chi router. API routes are served both at the root
// and under /api.
func NewRouter(h *EventHandler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(h.log))
	r.Use(CORS(opts.CORSOrigin))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Get("/health", h.HealthCheck)

	api := func(r chi.Router) {
		r.Route("/events", func(r chi.Router) {
			r.Post("/", h.CreateEvent)
			r.Get("/", h.ListEvents)
			r.With(opts.RateLimiter.Middleware).Post("/register", h.Register)
			r.With(opts.RateLimiter.Middleware).Post("/cancel", h.Cancel)
			r.Get("/{id}", h.GetEvent)
			r.Get("/{id}/stats", h.Stats)
		})
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.CreateUser)
			r.Get("/", h.ListUsers)
		})
	}
	api(r)
	r.Route("/api", api)

	return r
}
