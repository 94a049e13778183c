package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/api/handler"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/config"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/db"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/engine"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/store"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(pool *db.Pool, st *store.Store, eng *engine.Engine, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type"},
		ExposedHeaders:   []string{"X-Process-Time"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Handler dependencies ---
	h := handler.New(pool, st, eng, cfg)

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
	})

	// Swagger UI
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Inbound session-completion events
		r.Post("/sessions", h.IngestSession)

		// Goals (definitions arrive from the external creation flow)
		r.Get("/goals", h.ListGoals)
		r.Post("/goals", h.CreateGoal)
		r.Patch("/goals/{goalID}", h.PatchGoal)
		r.Get("/goals/{goalID}/progress", h.GetProgress)
		r.Get("/goals/{goalID}/messages", h.GetMessageHistory)
		r.Post("/goals/{goalID}/evaluate", h.EvaluateGoal)
		r.Put("/goals/{goalID}/habit-window", h.PutHabitWindow)
	})

	return r
}
