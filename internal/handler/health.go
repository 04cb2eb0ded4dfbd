package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmobrien1/document-markdown-converter/internal/httputil"
	"github.com/jmobrien1/document-markdown-converter/internal/queue"
)

// HealthHandler serves liveness and dependency health endpoints.
type HealthHandler struct {
	pool   *pgxpool.Pool
	queue  queue.Queue
	logger *slog.Logger
}

// NewHealthHandler creates the health endpoints handler. pool and q may
// be nil in partial deployments; their checks then report "skipped".
func NewHealthHandler(pool *pgxpool.Pool, q queue.Queue, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{pool: pool, queue: q, logger: logger}
}

// Health handles GET /health: a plain liveness probe.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Web handles GET /health/web: liveness plus a database round-trip.
func (h *HealthHandler) Web(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "skipped"
	status := http.StatusOK
	if h.pool != nil {
		dbStatus = "ok"
		if err := h.pool.Ping(ctx); err != nil {
			h.logger.Error("health db ping", "error", err)
			dbStatus = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	httputil.RespondJSON(w, status, map[string]string{
		"status":   statusWord(status),
		"database": dbStatus,
	})
}

// Worker handles GET /health/worker: queue depths as seen from the API.
// A reachable broker with large failed depth still reports healthy; the
// depths are for operators, the status code for probes.
func (h *HealthHandler) Worker(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.queue == nil {
		httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy", "queue": "skipped"})
		return
	}

	stats, err := h.queue.Stats(ctx)
	if err != nil {
		h.logger.Error("health queue stats", "error", err)
		httputil.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"queue":  "unreachable",
		})
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"queue":  stats,
	})
}

func statusWord(code int) string {
	if code == http.StatusOK {
		return "healthy"
	}
	return "degraded"
}
