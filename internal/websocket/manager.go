package websocket

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sadewadee/phpbridge/internal/bridge"
	"github.com/sadewadee/phpbridge/internal/protocol"
)

// ErrTooManyConnections is returned by AddConnection when the gateway is full.
var ErrTooManyConnections = errors.New("websocket: too many connections")

const (
	writeWait          = 10 * time.Second
	defaultMaxInFlight = 64
)

// Client represents a single WebSocket connection.
type Client struct {
	ID         string
	Conn       *websocket.Conn
	RemoteAddr string
	mu         sync.Mutex
	// inflight holds one token per call still being served.
	inflight chan struct{}
}

// Send writes one binary message to this client. Writes are serialised
// because gorilla connections allow a single concurrent writer.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(websocket.BinaryMessage, data)
}

// SendFrame encodes f and sends it as one binary message.
func (c *Client) SendFrame(f *protocol.Frame) error {
	var buf bytes.Buffer
	if err := protocol.WriteFrame(&buf, f); err != nil {
		return err
	}
	return c.Send(buf.Bytes())
}

// Options configures a Manager.
type Options struct {
	MaxConnections int
	CallTimeout    time.Duration
	// MaxInFlight caps the calls one client may have outstanding. When
	// reached, the connection is not read until a call finishes.
	MaxInFlight int
	// Codec is used for frames the gateway originates. Results always
	// reuse the codec of the call they answer.
	Codec protocol.Codec
}

// Manager tracks gateway connections and runs their calls on the channel.
type Manager struct {
	ch      *bridge.Channel
	opts    Options
	clients map[string]*Client
	mu      sync.RWMutex
	logger  *slog.Logger

	calls    atomic.Int64
	failed   atomic.Int64
	rejected atomic.Int64
	inflight atomic.Int64
}

// NewManager creates a new WebSocket connection manager.
func NewManager(ch *bridge.Channel, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = defaultMaxInFlight
	}
	return &Manager{
		ch:      ch,
		opts:    opts,
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Full reports whether the connection limit has been reached.
func (m *Manager) Full() bool {
	if m.opts.MaxConnections <= 0 {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients) >= m.opts.MaxConnections
}

// AddConnection registers a new WebSocket connection.
func (m *Manager) AddConnection(conn *websocket.Conn, r *http.Request) (*Client, error) {
	client := &Client{
		ID:         uuid.NewString(),
		Conn:       conn,
		RemoteAddr: r.RemoteAddr,
		inflight:   make(chan struct{}, m.opts.MaxInFlight),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opts.MaxConnections > 0 && len(m.clients) >= m.opts.MaxConnections {
		m.rejected.Add(1)
		return nil, ErrTooManyConnections
	}
	m.clients[client.ID] = client
	return client, nil
}

// RemoveConnection unregisters a WebSocket connection.
func (m *Manager) RemoveConnection(id string) {
	m.mu.Lock()
	delete(m.clients, id)
	m.mu.Unlock()
}

// HandleMessage processes one binary message holding a single frame. It
// returns false when the client asked to close the connection.
func (m *Manager) HandleMessage(client *Client, message []byte) bool {
	frame, err := protocol.ReadFrame(bytes.NewReader(message))
	if err != nil {
		m.logger.Warn("bad frame", "conn_id", client.ID, "error", err)
		m.reply(client, protocol.NewErrorFrame(0, err.Error()))
		return true
	}

	switch frame.Type {
	case protocol.TypeCall:
		m.calls.Add(1)
		client.inflight <- struct{}{}
		m.inflight.Add(1)
		go func() {
			defer func() {
				m.inflight.Add(-1)
				<-client.inflight
			}()
			m.serveCall(client, frame)
		}()
	case protocol.TypePing:
		if frame.IsPing() {
			pong := protocol.NewPongFrame()
			pong.StreamID = frame.StreamID
			m.reply(client, pong)
		}
	case protocol.TypeClose:
		return false
	default:
		m.reply(client, protocol.NewErrorFrame(frame.StreamID, "unexpected "+protocol.TypeName(frame.Type)+" frame"))
	}
	return true
}

// serveCall enqueues one call and writes its RESULT frame. The wait is
// bounded by the call timeout; a timed-out call keeps running on the
// interpreter thread and its late result is discarded.
func (m *Manager) serveCall(client *Client, frame *protocol.Frame) {
	codec := frame.Codec()

	call, err := protocol.DecodeCall(frame)
	if err != nil {
		m.failed.Add(1)
		m.reply(client, protocol.NewErrorFrame(frame.StreamID, err.Error()))
		return
	}

	var h *bridge.Handle
	if call.Target.IsClosure() {
		h = m.ch.QueueClosureCallNamed(call.Target.Closure, call.Args, call.Named)
	} else {
		h = m.ch.QueueCallNamed(call.Target.Function, call.Args, call.Named)
	}

	v, callErr := h.WaitTimeout(m.opts.CallTimeout)
	if callErr != nil {
		m.failed.Add(1)
		m.logger.Debug("call failed",
			"conn_id", client.ID,
			"request_id", h.ID(),
			"function", call.Target.String(),
			"error", callErr,
		)
	}

	result, err := protocol.EncodeResult(codec, frame.StreamID, call.ID, v, callErr)
	if err != nil {
		m.failed.Add(1)
		result, _ = protocol.EncodeResult(codec, frame.StreamID, call.ID, bridge.Value{}, err)
	}
	m.reply(client, result)
}

// reply sends f. Frames other than results advertise the gateway codec.
func (m *Manager) reply(client *Client, f *protocol.Frame) {
	if f.Type != protocol.TypeResult {
		f.Flags = m.opts.Codec.Flags()
	}
	if err := client.SendFrame(f); err != nil {
		m.logger.Debug("send failed", "conn_id", client.ID, "error", err)
	}
}

// SendToClient sends a frame to a specific client.
func (m *Manager) SendToClient(clientID string, f *protocol.Frame) bool {
	m.mu.RLock()
	client, exists := m.clients[clientID]
	m.mu.RUnlock()

	if !exists {
		return false
	}
	if err := client.SendFrame(f); err != nil {
		m.logger.Warn("send to client failed", "conn_id", clientID, "error", err)
		return false
	}
	return true
}

// CloseAll sends a CLOSE frame to every client and closes its connection.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	clients := make([]*Client, 0, len(m.clients))
	for id, c := range m.clients {
		clients = append(clients, c)
		delete(m.clients, id)
	}
	m.mu.Unlock()

	for _, c := range clients {
		c.SendFrame(protocol.NewCloseFrame())
		c.Conn.Close()
	}
}

// Stats returns current WebSocket statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	conns := len(m.clients)
	m.mu.RUnlock()

	return ManagerStats{
		Connections: conns,
		Calls:       m.calls.Load(),
		Failed:      m.failed.Load(),
		Rejected:    m.rejected.Load(),
		InFlight:    m.inflight.Load(),
	}
}

// ManagerStats holds WebSocket manager metrics.
type ManagerStats struct {
	Connections int   `json:"connections"`
	Calls       int64 `json:"calls"`
	Failed      int64 `json:"failed"`
	Rejected    int64 `json:"rejected"`
	InFlight    int64 `json:"in_flight"`
}
