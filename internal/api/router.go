package api

import (
	"log/slog"
	"net/http"

	"github.com/Priya8975/zap-goal-tracker/internal/metrics"
	ws "github.com/Priya8975/zap-goal-tracker/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps are the collaborators served by the router. Everything but Goals
// and Logger is optional.
type Deps struct {
	Goals   GoalService
	Watcher Watcher
	Hub     *ws.Hub
	Metrics *metrics.Metrics

	Source  string
	Relays  CircuitReporter
	Archive ArchiveReporter
	Queue   QueueReporter

	RateLimiter *RateLimiter
	RateLimit   int

	Logger *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(corsMiddleware)

	goalHandler := NewGoalHandler(d.Goals, d.Watcher)
	health := &HealthHandler{
		source:  d.Source,
		relays:  d.Relays,
		archive: d.Archive,
		queue:   d.Queue,
		logger:  d.Logger,
	}

	if d.Hub != nil {
		health.clients = d.Hub.ClientCount
		r.Get("/ws", d.Hub.HandleWebSocket)
	}
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.ServeHTTP)

		r.Group(func(r chi.Router) {
			if d.RateLimiter != nil {
				r.Use(d.RateLimiter.Middleware(d.RateLimit))
			}

			r.Route("/goals", func(r chi.Router) {
				r.Get("/", goalHandler.List)
				r.Post("/template", goalHandler.Template)
				r.Get("/{id}", goalHandler.Get)
				r.Post("/{id}/watch", goalHandler.Watch)
			})
			r.Get("/authors/{pubkey}/goals", goalHandler.ByAuthor)
			r.Get("/format/sats", FormatSats)
		})
	})

	return r
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
