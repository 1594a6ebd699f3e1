package handler

import (
	"database/sql"
	"net/http"

	"github.com/clearline-ai/support-orchestrator/internal/events"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db          *sql.DB
	eventsConn  *events.Client
	requireNATS bool
}

// NewHealthHandler creates a new health handler. eventsConn may be nil when
// event publishing is disabled.
func NewHealthHandler(db *sql.DB, eventsConn *events.Client) *HealthHandler {
	return &HealthHandler{
		db:          db,
		eventsConn:  eventsConn,
		requireNATS: eventsConn != nil,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": "database unreachable",
			})
			return
		}
	}

	if h.requireNATS && !h.eventsConn.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
