package pointserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/logging"
)

// FrameSnapshot is sent once per matching point when a client connects.
const FrameSnapshot = "point.snapshot"

const (
	// streamBuffer is the per-client outbound frame buffer.
	streamBuffer = 256

	defaultPingInterval = 30 * time.Second
)

// Frame is one message on the point stream. The stream is one-way; frames
// sent by clients are read and discarded.
type Frame struct {
	Type  string `json:"type"`
	Point Point  `json:"point"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Hub fans point updates out to stream clients.
type Hub struct {
	logger *logging.Logger

	mu      sync.Mutex
	clients map[*streamClient]struct{}
	closed  bool
}

// streamClient is one connected stream. A nil points set means every point.
type streamClient struct {
	conn   *websocket.Conn
	send   chan []byte
	points map[string]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*streamClient]struct{}),
	}
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// Broadcast queues p for every client that streams it. A client whose
// buffer is full misses the frame.
func (h *Hub) Broadcast(p Point) {
	data, err := json.Marshal(Frame{Type: EventPointUpdated, Point: p})
	if err != nil {
		h.logger.Error("encoding stream frame", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.wants(p.Name) && !c.queue(data) {
			h.logger.Warn("stream client too slow, dropping frame", "point", p.Name)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// add queues a snapshot of the current points and registers c. Both happen
// under the hub lock so no update falls between them.
func (h *Hub) add(c *streamClient, current func() []Point) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	for _, p := range current() {
		if !c.wants(p.Name) {
			continue
		}
		if data, err := json.Marshal(Frame{Type: FrameSnapshot, Point: p}); err == nil {
			c.queue(data)
		}
	}
	h.clients[c] = struct{}{}
	return true
}

// remove unregisters c and closes its send channel, once.
func (h *Hub) remove(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (c *streamClient) wants(name string) bool {
	if c.points == nil {
		return true
	}
	_, ok := c.points[name]
	return ok
}

// queue must be called with the hub lock held.
func (c *streamClient) queue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// handleStream upgrades to a WebSocket that streams point values. Repeated
// ?point= parameters restrict the stream to those points.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var points map[string]struct{}
	if names := r.URL.Query()["point"]; len(names) > 0 {
		points = make(map[string]struct{}, len(names))
		for _, n := range names {
			points[n] = struct{}{}
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &streamClient{
		conn:   conn,
		send:   make(chan []byte, streamBuffer),
		points: points,
	}
	if !s.hub.add(c, s.points.List) {
		conn.Close()
		return
	}
	s.logger.Debug("stream client connected", "points", len(points), "clients", s.hub.ClientCount())

	go c.writeLoop(s.wsCfg)
	go func() {
		c.readLoop(s.wsCfg)
		s.hub.remove(c)
		s.logger.Debug("stream client disconnected", "clients", s.hub.ClientCount())
	}()
}

// readLoop services pongs and close frames until the connection fails.
func (c *streamClient) readLoop(cfg config.WebSocketConfig) {
	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	wait := pingInterval(cfg) + time.Duration(cfg.PongTimeout)*time.Second
	//nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

// writeLoop drains send and pings on an interval. It closes the connection
// when send is closed or a write fails.
func (c *streamClient) writeLoop(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(pingInterval(cfg))
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}

	for {
		select {
		case data, ok := <-c.send:
			//nolint:errcheck // write errors are caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				//nolint:errcheck // best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // write errors are caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func pingInterval(cfg config.WebSocketConfig) time.Duration {
	if cfg.PingInterval <= 0 {
		return defaultPingInterval
	}
	return time.Duration(cfg.PingInterval) * time.Second
}
