package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	wsSendBuffer   = 64
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 4096
)

// Frame is the envelope of every server-to-client message.
type Frame struct {
	Event  string `json:"event"`
	GameID string `json:"gameId,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// clientMessage is what clients may send: {"type":"subscribe","gameId":"X"}
// or {"type":"unsubscribe"}.
type clientMessage struct {
	Type   string `json:"type"`
	GameID string `json:"gameId"`
}

type wsClient struct {
	hub    *WebSocketHub
	conn   *websocket.Conn
	ip     string
	gameID string // Subscription; only touched by Run
	send   chan []byte
}

type outbound struct {
	gameID string
	data   []byte
}

type subscription struct {
	client *wsClient
	gameID string
}

// HubConfig configures a WebSocketHub.
type HubConfig struct {
	AllowedOrigins []string
	MaxConnections int // Defaults to MaxWSConnectionsTotal
	MaxPerIP       int // Defaults to MaxWSConnectionsPerIP

	// Snapshot returns the current frame payload for a game, sent to a
	// client right after it subscribes.
	Snapshot func(gameID string) (json.RawMessage, bool)

	Logger zerolog.Logger
}

// WebSocketHub fans game frames out to the clients subscribed to each game.
// It satisfies lobby.Publisher.
type WebSocketHub struct {
	clients    map[*wsClient]struct{}
	broadcast  chan outbound
	register   chan *wsClient
	unregister chan *wsClient
	subscribe  chan subscription
	stopChan   chan struct{}
	stopOnce   sync.Once
	count      atomic.Int64

	maxConns int
	conns    *ConnLimiter
	origins  OriginMatcher
	upgrader websocket.Upgrader
	snapshot func(gameID string) (json.RawMessage, bool)
	log      zerolog.Logger
}

// NewWebSocketHub creates a hub. Call Run to start it.
func NewWebSocketHub(cfg HubConfig) *WebSocketHub {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = MaxWSConnectionsTotal
	}
	if cfg.MaxPerIP <= 0 {
		cfg.MaxPerIP = MaxWSConnectionsPerIP
	}
	h := &WebSocketHub{
		clients:    make(map[*wsClient]struct{}),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		subscribe:  make(chan subscription),
		stopChan:   make(chan struct{}),
		maxConns:   cfg.MaxConnections,
		conns:      NewConnLimiter(cfg.MaxPerIP),
		origins:    NewOriginMatcher(cfg.AllowedOrigins),
		snapshot:   cfg.Snapshot,
		log:        cfg.Logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if h.origins.Allowed(origin) {
				return true
			}
			h.log.Warn().Str("origin", origin).Msg("⚠️ WebSocket connection rejected")
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// SetSnapshot installs the initial-frame source. Call before Run.
func (h *WebSocketHub) SetSnapshot(fn func(gameID string) (json.RawMessage, bool)) {
	h.snapshot = fn
}

// Run serves the hub until Stop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.updateCount()
			h.log.Debug().Str("ip", c.ip).Str("game", c.gameID).Int("total", len(h.clients)).Msg("📱 Client connected")

		case c := <-h.unregister:
			h.drop(c)

		case s := <-h.subscribe:
			if _, ok := h.clients[s.client]; !ok {
				continue
			}
			s.client.gameID = s.gameID
			if s.gameID != "" {
				h.sendSnapshot(s.client)
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				if c.gameID != msg.gameID {
					continue
				}
				select {
				case c.send <- msg.data:
					IncrementWSMessages()
				default:
					// Slow consumer
					h.drop(c)
				}
			}

		case <-h.stopChan:
			for c := range h.clients {
				h.drop(c)
			}
			return
		}
	}
}

// Stop disconnects every client and ends Run.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
	})
}

func (h *WebSocketHub) drop(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.conns.Release(c.ip)
	h.updateCount()
	h.log.Debug().Str("ip", c.ip).Int("remaining", len(h.clients)).Msg("📱 Client disconnected")
}

func (h *WebSocketHub) updateCount() {
	h.count.Store(int64(len(h.clients)))
	UpdateWSConnections(len(h.clients))
}

// sendSnapshot queues the current state of c's game. Run goroutine only.
func (h *WebSocketHub) sendSnapshot(c *wsClient) {
	if h.snapshot == nil {
		return
	}
	data, ok := h.snapshot(c.gameID)
	if !ok {
		return
	}
	frame, err := json.Marshal(Frame{Event: "game:state", GameID: c.gameID, Data: data})
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

// Publish queues a frame for the subscribers of gameID. Frames are dropped
// when the hub is backed up.
func (h *WebSocketHub) Publish(gameID, event string, data any) {
	msg, err := json.Marshal(Frame{Event: event, GameID: gameID, Data: data})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("❌ frame encode failed")
		return
	}
	select {
	case h.broadcast <- outbound{gameID: gameID, data: msg}:
	default:
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	return int(h.count.Load())
}

// HandleWebSocket upgrades the request. The optional ?game= query
// subscribes the client straight away.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if h.ClientCount() >= h.maxConns {
		h.log.Warn().Int("total", h.ClientCount()).Msg("⚠️ WebSocket connection rejected: total limit reached")
		RecordConnectionRejected("ws_total_limit")
		writeError(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	if !h.conns.Acquire(ip) {
		h.log.Warn().Str("ip", ip).Msg("⚠️ WebSocket connection rejected: per-IP limit reached")
		RecordConnectionRejected("ws_ip_limit")
		writeError(w, "too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("WebSocket upgrade failed")
		h.conns.Release(ip)
		return
	}

	c := &wsClient{
		hub:  h,
		conn: conn,
		ip:   ip,
		send: make(chan []byte, wsSendBuffer),
	}
	select {
	case h.register <- c:
	case <-h.stopChan:
		h.conns.Release(ip)
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()

	if game := r.URL.Query().Get("game"); game != "" {
		h.requestSubscription(c, game)
	}
}

func (h *WebSocketHub) requestSubscription(c *wsClient, gameID string) {
	select {
	case h.subscribe <- subscription{client: c, gameID: gameID}:
	case <-h.stopChan:
	}
}

func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopChan:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsReadLimit)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "subscribe":
			c.hub.requestSubscription(c, msg.GameID)
		case "unsubscribe":
			c.hub.requestSubscription(c, "")
		}
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()

	// Range ends when the hub closes c.send
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
