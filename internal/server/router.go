package server

import (
	"log/slog"
	"net/http"

	"github.com/sadewadee/phpbridge/internal/bridge"
	"github.com/sadewadee/phpbridge/internal/config"
	"github.com/sadewadee/phpbridge/internal/websocket"
)

// Router dispatches incoming HTTP requests to the appropriate handler.
type Router struct {
	cfg           *config.Config
	logger        *slog.Logger
	gateway       http.Handler
	healthHandler *HealthHandler
}

// NewRouter creates a new request router. ws may be nil when the gateway
// is disabled.
func NewRouter(cfg *config.Config, ch *bridge.Channel, thread Interpreter, ws *websocket.Manager, logger *slog.Logger) *Router {
	r := &Router{
		cfg:    cfg,
		logger: logger,
	}

	if ws != nil {
		r.gateway = websocket.NewHandler(ws, cfg.WebSocket.MaxMessageSize.Int64(), logger)
	}

	r.healthHandler = NewHealthHandler(ch, thread, ws)

	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch req.URL.Path {
	case "/health", "/healthz", "/ready", "/readyz":
		r.healthHandler.ServeHTTP(w, req)
		return
	}

	if r.gateway != nil && req.URL.Path == r.cfg.WebSocket.Path {
		r.gateway.ServeHTTP(w, req)
		return
	}

	http.NotFound(w, req)
}
