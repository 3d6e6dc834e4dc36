package handler

import (
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	state func() string
}

// NewHealthHandler creates a HealthHandler. state reports the bot lifecycle
// state and may be nil.
func NewHealthHandler(state func() string) *HealthHandler {
	return &HealthHandler{state: state}
}

// HealthCheck responds with a JSON status. A stopped bot reports 503 so
// process supervisors notice.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK
	if h.state != nil {
		st := h.state()
		body["state"] = st
		if st == "stopped" {
			body["status"] = "stopped"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, body)
}
