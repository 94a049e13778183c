// Package handler provides HTTP handlers for all API endpoints.
// Handlers validate input, call the store or the evaluation engine, and
// write JSON. No service layer in between.
package handler

import (
	"net/http"
	"time"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/api/respond"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/config"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/db"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/engine"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/store"
)

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	pool *db.Pool
	st   *store.Store
	eng  *engine.Engine
	cfg  *config.Config
}

// New creates a Handler with shared dependencies.
func New(pool *db.Pool, st *store.Store, eng *engine.Engine, cfg *config.Config) *Handler {
	return &Handler{
		pool: pool,
		st:   st,
		eng:  eng,
		cfg:  cfg,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, and status.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "Ruck Goal Notifications API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.pool.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
