package websocket

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: configurable origin allow-list
	},
}

// Handler handles WebSocket upgrade requests and manages connections.
type Handler struct {
	manager   *Manager
	readLimit int64
	logger    *slog.Logger
}

// NewHandler creates a new WebSocket handler. readLimit caps the size of
// one incoming message; zero leaves it unbounded.
func NewHandler(manager *Manager, readLimit int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		manager:   manager,
		readLimit: readLimit,
		logger:    logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.manager.Full() {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client, err := h.manager.AddConnection(conn, r)
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		conn.Close()
		return
	}
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}
	h.logger.Debug("websocket connected", "conn_id", client.ID, "remote_addr", client.RemoteAddr)

	go h.readPump(client)
}

func (h *Handler) readPump(client *Client) {
	defer func() {
		h.manager.RemoveConnection(client.ID)
		client.Conn.Close()
		h.logger.Debug("websocket disconnected", "conn_id", client.ID)
	}()

	for {
		messageType, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", "conn_id", client.ID, "error", err)
			}
			break
		}
		if messageType != websocket.BinaryMessage {
			h.logger.Debug("ignoring non-binary message", "conn_id", client.ID)
			continue
		}

		if !h.manager.HandleMessage(client, message) {
			break
		}
	}
}
