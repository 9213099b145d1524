package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/goccy/go-json"

	"github.com/sadewadee/phpbridge/internal/bridge"
	"github.com/sadewadee/phpbridge/internal/websocket"
)

var startTime = time.Now()

// HealthHandler serves health check and readiness endpoints.
type HealthHandler struct {
	ch     *bridge.Channel
	thread Interpreter
	ws     *websocket.Manager
}

// NewHealthHandler creates a new health check handler.
func NewHealthHandler(ch *bridge.Channel, thread Interpreter, ws *websocket.Manager) *HealthHandler {
	return &HealthHandler{ch: ch, thread: thread, ws: ws}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ready", "/readyz":
		h.readiness(w)
	default:
		h.liveness(w)
	}
}

func (h *HealthHandler) liveness(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(startTime).String(),
	})
}

// readiness reports ready while the interpreter thread is running.
func (h *HealthHandler) readiness(w http.ResponseWriter) {
	ready := h.thread != nil && h.thread.Running()
	status := http.StatusOK
	statusStr := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		statusStr = "not_ready"
	}

	body := map[string]interface{}{
		"status":         statusStr,
		"uptime":         time.Since(startTime).String(),
		"uptime_seconds": time.Since(startTime).Seconds(),
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
	}
	if h.thread != nil {
		body["pump_passes"] = h.thread.Pumped()
	}
	if h.ch != nil {
		stats := h.ch.Stats()
		body["bridge"] = map[string]interface{}{
			"pending":    stats.Pending,
			"registered": stats.Registered,
			"completed":  stats.Completed,
			"failed":     stats.Failed,
		}
	}
	if h.ws != nil {
		body["websocket"] = h.ws.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
