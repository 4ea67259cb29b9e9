package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Hub manages spectator WebSocket connections, pooled per game. Connections
// are write-mostly: the hub pushes display snapshots out and ignores client
// payloads beyond keepalive traffic.
type Hub struct {
	gameConnections map[string]map[*wsConnection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   HubConfig

	broadcastCh chan broadcastMessage
}

// HubConfig holds WebSocket connection settings.
type HubConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultHubConfig returns default WebSocket settings.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Spectator views embed anywhere; restrict in production.
			return true
		},
	}
}

type broadcastMessage struct {
	gameID  string
	payload []byte
}

type wsConnection struct {
	id     string
	gameID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

// NewHub creates a connection hub.
func NewHub(config HubConfig) *Hub {
	return &Hub{
		gameConnections: make(map[string]map[*wsConnection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 256),
	}
}

// Run processes broadcast messages until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Msg("websocket hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("websocket hub shutting down")
			h.closeAll()
			return
		case msg := <-h.broadcastCh:
			h.handleBroadcast(msg)
		}
	}
}

// Broadcast queues a payload for every connection watching the game.
func (h *Hub) Broadcast(gameID string, payload []byte) {
	select {
	case h.broadcastCh <- broadcastMessage{gameID: gameID, payload: payload}:
	default:
		log.Warn().Str("game_id", gameID).Msg("broadcast channel full, dropping message")
	}
}

// Upgrade promotes an HTTP request to a spectator WebSocket connection.
// initial, when non-nil, is sent immediately so a fresh viewer does not wait
// for the next tick.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, gameID string, initial []byte) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &wsConnection{
		id:     uuid.New().String(),
		gameID: gameID,
		conn:   conn,
		send:   make(chan []byte, 64),
		hub:    h,
	}
	if initial != nil {
		c.send <- initial
	}
	h.register(c)

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.id).
		Str("game_id", gameID).
		Msg("spectator connection established")
	return nil
}

func (h *Hub) register(c *wsConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gameConnections[c.gameID] == nil {
		h.gameConnections[c.gameID] = make(map[*wsConnection]bool)
	}
	h.gameConnections[c.gameID][c] = true
}

func (h *Hub) unregister(c *wsConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.gameConnections[c.gameID]; ok {
		if _, ok := conns[c]; ok {
			delete(conns, c)
			close(c.send)
			if len(conns) == 0 {
				delete(h.gameConnections, c.gameID)
			}
		}
	}
}

func (h *Hub) handleBroadcast(msg broadcastMessage) {
	// Sends happen under the read lock. unregister and closeAll close send
	// channels only under the write lock, so a channel still in the pool here
	// cannot be closed mid-send.
	var slow []*wsConnection
	h.mu.RLock()
	for c := range h.gameConnections[msg.gameID] {
		select {
		case c.send <- msg.payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		// Slow consumer; drop the connection rather than the game.
		log.Warn().Str("connection_id", c.id).Msg("send buffer full, closing connection")
		h.unregister(c)
		c.conn.Close()
	}
}

// ConnectionCount returns the number of active connections for a game.
func (h *Hub) ConnectionCount(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.gameConnections[gameID])
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for gameID, conns := range h.gameConnections {
		for c := range conns {
			close(c.send)
			c.conn.Close()
		}
		delete(h.gameConnections, gameID)
	}
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Error().Err(err).Str("connection_id", c.id).Msg("failed to write to websocket")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConnection) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.id).Msg("unexpected websocket close")
			}
			return
		}
		// Spectator connections are one-way; inbound frames only refresh the
		// read deadline.
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}
