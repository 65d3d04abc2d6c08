package handlers

import (
	"context"
	"net/http"
	"time"

	"goodnoodle/internal/workerpool"

	"github.com/labstack/echo/v4"
)

// Pinger is anything that can report whether a backing service answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WorkerStats reports the load of the event worker pool.
type WorkerStats interface {
	Stats() workerpool.Stats
}

// HealthHandlers handles liveness and readiness probes
type HealthHandlers struct {
	db      Pinger
	redis   Pinger
	workers WorkerStats
}

// NewHealthHandlers creates a new health handlers instance. redis may be nil.
func NewHealthHandlers(db Pinger, redis Pinger) *HealthHandlers {
	return &HealthHandlers{db: db, redis: redis}
}

// WithWorkers adds worker pool load to the readiness report.
func (h *HealthHandlers) WithWorkers(w WorkerStats) *HealthHandlers {
	h.workers = w
	return h
}

// Alive handles GET /alive
func (h *HealthHandlers) Alive(c echo.Context) error {
	return c.String(http.StatusOK, "Health check information displayed here!")
}

// Ready handles GET /ready
func (h *HealthHandlers) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	services := map[string]string{"database": "healthy"}
	status := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		services["database"] = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	if h.redis != nil {
		services["redis"] = "healthy"
		if err := h.redis.Ping(ctx); err != nil {
			services["redis"] = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	body := map[string]any{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  services,
	}
	if h.workers != nil {
		st := h.workers.Stats()
		body["workers"] = map[string]any{
			"active":    st.Active,
			"queued":    st.Queued,
			"submitted": st.Submitted,
			"completed": st.Completed,
			"failed":    st.Failed,
			"rejected":  st.Rejected,
		}
	}
	if status != http.StatusOK {
		body["status"] = "not_ready"
	}
	return c.JSON(status, body)
}
