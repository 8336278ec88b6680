package handlers

import (
	"context"
	"net/http"
	"time"

	"hseproject/utils"
)

// Pinger is satisfied by the database connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db      Pinger
	started time.Time
}

// NewHealthHandler reports the store's reachability. db may be nil when the
// memory store is in use.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db, started: time.Now()}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "OK",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"database":  "memory",
	}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			status["status"] = "DEGRADED"
			status["database"] = "unreachable"
			utils.HandleDataResponse(w, "HSE Management API is degraded", status, http.StatusServiceUnavailable)
			return
		}
		status["database"] = "connected"
	}
	utils.HandleDataResponse(w, "HSE Management API is running", status, http.StatusOK)
}
