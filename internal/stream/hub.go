// Package stream broadcasts computed poses to WebSocket observers such as a
// browser-side renderer or a debugging monitor.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/normanking/cortexlipsync/internal/bus"
	"github.com/normanking/cortexlipsync/internal/lipsync"
	"github.com/normanking/cortexlipsync/internal/observe"
	"github.com/rs/zerolog"
)

const (
	// WriteWait is the timeout for writing to a WebSocket.
	WriteWait = 10 * time.Second

	// PongWait is the timeout for pong responses.
	PongWait = 60 * time.Second

	// PingPeriod is how often to send ping frames.
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize caps inbound frames; clients only send control traffic.
	MaxMessageSize = 512
)

// Config configures the hub.
type Config struct {
	Path       string `mapstructure:"path"`
	SendBuffer int    `mapstructure:"send_buffer"`
	// EveryNth forwards one pose out of every N ticks; 0 or 1 forwards all.
	EveryNth int `mapstructure:"every_nth"`
}

// DefaultConfig returns the defaults used by the daemon.
func DefaultConfig() Config {
	return Config{
		Path:       "/poses",
		SendBuffer: 64,
		EveryNth:   1,
	}
}

// Message is the envelope written to clients.
type Message struct {
	Type     string        `json:"type"`
	ClientID string        `json:"client_id,omitempty"`
	Pose     *lipsync.Pose `json:"pose,omitempty"`
}

// Message types
const (
	MessageHello = "hello"
	MessagePose  = "pose"
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans poses out to connected clients. Slow clients lose poses instead
// of stalling the tick loop.
type Hub struct {
	config   Config
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	wg sync.WaitGroup

	eventBus *bus.EventBus
	metrics  *observe.Metrics
	logger   zerolog.Logger
}

// NewHub creates a hub. eventBus and metrics may be nil.
func NewHub(config Config, eventBus *bus.EventBus, metrics *observe.Metrics, logger zerolog.Logger) *Hub {
	if config.SendBuffer <= 0 {
		config.SendBuffer = DefaultConfig().SendBuffer
	}
	if config.Path == "" {
		config.Path = DefaultConfig().Path
	}
	return &Hub{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:  make(map[*client]struct{}),
		eventBus: eventBus,
		metrics:  metrics,
		logger:   logger.With().Str("component", "stream").Logger(),
	}
}

// Handler returns a mux serving the WebSocket endpoint and a health check.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(h.config.Path, h)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"clients": h.ClientCount(),
		})
	})
	return mux
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.config.SendBuffer),
	}

	hello, _ := json.Marshal(Message{Type: MessageHello, ClientID: c.id})
	c.send <- hello

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()

	h.metrics.AddStreamClients(r.Context(), 1)
	h.logger.Info().Str("client", c.id).Str("remote", r.RemoteAddr).Msg("Client connected")
	h.eventBus.Publish(bus.Event{
		Type: bus.EventTypeClientConnected,
		Data: map[string]any{"client_id": c.id, "remote": r.RemoteAddr},
	})

	go h.writePump(c)
	go h.readPump(c)
}

// Broadcast queues a pose for every client.
func (h *Hub) Broadcast(pose lipsync.Pose) {
	if n := h.config.EveryNth; n > 1 && pose.Tick%uint64(n) != 0 {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	data, err := json.Marshal(Message{Type: MessagePose, Pose: &pose})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal pose")
		return
	}

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.metrics.RecordStreamDropped(context.Background())
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)

	h.metrics.AddStreamClients(context.Background(), -1)
	h.logger.Info().Str("client", c.id).Msg("Client disconnected")
	h.eventBus.Publish(bus.Event{
		Type: bus.EventTypeClientDisconnected,
		Data: map[string]any{"client_id": c.id},
	})
}

func (h *Hub) writePump(c *client) {
	defer h.wg.Done()
	defer c.conn.Close()

	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.remove(c)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer h.wg.Done()
	defer h.remove(c)

	c.conn.SetReadLimit(MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug().Err(err).Str("client", c.id).Msg("WebSocket read error")
			}
			return
		}
	}
}
