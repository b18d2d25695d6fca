package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is satisfied by the Redis service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// InferenceStats is satisfied by services.GuardedLLM.
type InferenceStats interface {
	InFlight() int64
	PeakInFlight() int64
	Calls() int64
}

// QueueDepth is satisfied by the worker.
type QueueDepth interface {
	Pending() int
}

type HealthResponse struct {
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	Service    string         `json:"service"`
	Components map[string]any `json:"components"`
}

type HealthHandler struct {
	redis     Pinger
	inference InferenceStats
	queue     QueueDepth
	logger    *slog.Logger
}

// NewHealthHandler builds the health check. redis may be nil when no Redis
// backend is configured.
func NewHealthHandler(redis Pinger, inference InferenceStats, queue QueueDepth, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		redis:     redis,
		inference: inference,
		queue:     queue,
		logger:    logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("Health check requested",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]any)
	overallStatus := "healthy"

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			h.logger.Warn("Redis health check failed", "error", err)
			components["redis"] = "unhealthy"
			overallStatus = "degraded"
		} else {
			components["redis"] = "healthy"
		}
	}
	if h.inference != nil {
		components["inference"] = map[string]int64{
			"in_flight":      h.inference.InFlight(),
			"peak_in_flight": h.inference.PeakInFlight(),
			"calls":          h.inference.Calls(),
		}
	}
	if h.queue != nil {
		components["queue"] = map[string]int{"pending": h.queue.Pending()}
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, h.logger, statusCode, HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Service:    "ability-forge",
		Components: components,
	})
}
