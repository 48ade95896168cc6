package handler

import (
	"net/http"
	"time"

	"github.com/embedchat/widget-gateway/internal/events"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	events    *events.Client
	startedAt time.Time
}

// NewHealthHandler creates a health handler. The events client may be nil
// when eventing is disabled.
func NewHealthHandler(eventsClient *events.Client) *HealthHandler {
	return &HealthHandler{
		events:    eventsClient,
		startedAt: time.Now(),
	}
}

// Health is the liveness probe.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

// Ready is the readiness probe. Eventing is optional, so a disabled NATS
// connection does not fail readiness; a configured but lost one does.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if h.events != nil {
		if h.events.IsConnected() {
			checks["nats"] = "ok"
		} else {
			checks["nats"] = "disconnected"
			healthy = false
		}
	} else {
		checks["nats"] = "disabled"
	}

	status := http.StatusOK
	state := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": checks,
	})
}
