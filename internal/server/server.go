package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/sadewadee/phpbridge/internal/bridge"
	"github.com/sadewadee/phpbridge/internal/config"
	"github.com/sadewadee/phpbridge/internal/protocol"
	"github.com/sadewadee/phpbridge/internal/websocket"
)

// Server is the phpbridge HTTP server: health, metrics and the
// WebSocket call gateway.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	http    *http.Server
	router  *Router
	metrics *Metrics
	ws      *websocket.Manager
}

// New creates a new server in front of ch. thread may be nil, in which
// case the server never reports ready.
func New(cfg *config.Config, ch *bridge.Channel, thread Interpreter, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
	}

	if cfg.WebSocket.Enabled {
		codec, err := protocol.ParseCodec(cfg.WebSocket.Codec)
		if err != nil {
			return nil, err
		}
		s.ws = websocket.NewManager(ch, websocket.Options{
			MaxConnections: cfg.WebSocket.MaxConnections,
			CallTimeout:    cfg.Bridge.CallTimeout.Duration(),
			MaxInFlight:    cfg.WebSocket.MaxInFlight,
			Codec:          codec,
		}, logger.With("component", "websocket"))
	}

	s.metrics = NewMetrics(ch, thread, s.ws)
	s.router = NewRouter(cfg, ch, thread, s.ws, logger)

	s.http = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      s.buildMiddleware(s.router),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  cfg.Server.IdleTimeout.Duration(),
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start begins listening for HTTP connections. It returns nil after Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Server.Address)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln. It returns nil after Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("phpbridge server starting",
		"address", ln.Addr().String(),
		"websocket", s.ws != nil,
		"metrics", s.cfg.Metrics.Enabled,
	)
	if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes gateway connections and gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("phpbridge server shutting down")
	// Hijacked connections are not tracked by http.Server.Shutdown.
	if s.ws != nil {
		s.ws.CloseAll()
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) buildMiddleware(handler http.Handler) http.Handler {
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	quiet := []string{"/health", "/healthz", "/ready", "/readyz"}
	if s.cfg.Metrics.Enabled {
		quiet = append(quiet, s.cfg.Metrics.Path)
	}
	handler = LoggingMiddleware(s.logger, quiet...)(handler)

	if s.cfg.Metrics.Enabled {
		handler = s.metrics.Middleware(s.cfg.Metrics.Path)(handler)
	}

	// Compression is outermost (wraps everything including metrics)
	handler = CompressionMiddleware()(handler)

	return handler
}
