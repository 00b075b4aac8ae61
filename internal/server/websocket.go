package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Message types sent over the sandbox websocket
const (
	TypeAction   = "action"   // client → server
	TypeState    = "state"    // full state snapshot
	TypeRender   = "render"   // preview document changed
	TypeNavigate = "navigate" // client should change location
	TypeProgress = "progress" // demo load started or finished
	TypeError    = "error"    // a client action was rejected
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 64
)

// NotFoundPath is where clients are sent for unknown demos
const NotFoundPath = "/404"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// MessageEnvelope is one websocket message in either direction.
type MessageEnvelope struct {
	Type   string          `json:"type"`
	Action string          `json:"action,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type renderPayload struct {
	Revision uint64 `json:"revision"`
}

type navigatePayload struct {
	Path string `json:"path"`
}

type progressPayload struct {
	Status string `json:"status"` // "start" or "done"
}

type errorPayload struct {
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// Hub tracks connected clients and fans messages out to them.
// It doubles as the store's progress indicator and not-found router.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
	debug   bool
}

// client is one websocket connection. Writes go through send so only the
// write pump touches the connection.
type client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

// NewHub creates an empty hub
func NewHub(debug bool) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		debug:   debug,
	}
}

// Start broadcasts that a demo load began
func (h *Hub) Start() {
	h.Broadcast(TypeProgress, progressPayload{Status: "start"})
}

// Done broadcasts that a demo load ended
func (h *Hub) Done() {
	h.Broadcast(TypeProgress, progressPayload{Status: "done"})
}

// NotFound sends every client to the not-found page
func (h *Hub) NotFound() {
	h.Broadcast(TypeNavigate, navigatePayload{Path: NotFoundPath})
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a message to every client. Clients whose buffer is full
// are disconnected.
func (h *Hub) Broadcast(msgType string, payload any) {
	data, err := encodeMessage(msgType, payload)
	if err != nil {
		log.Printf("[WS] Failed to marshal %s message: %v", msgType, err)
		return
	}

	h.mu.RLock()
	var slow []*client
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Printf("[WS] Client %s is not keeping up, disconnecting", c.id)
		h.unregister(c)
	}
}

// sendTo queues a message for one client
func (h *Hub) sendTo(c *client, msgType string, payload any) {
	data, err := encodeMessage(msgType, payload)
	if err != nil {
		log.Printf("[WS] Failed to marshal %s message: %v", msgType, err)
		return
	}

	h.mu.RLock()
	_, ok := h.clients[c.id]
	if ok {
		select {
		case c.send <- data:
		default:
			ok = false
		}
	}
	h.mu.RUnlock()

	if !ok {
		h.unregister(c)
	}
}

func (h *Hub) register(conn *websocket.Conn) (*client, bool) {
	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	h.clients[c.id] = c
	log.Printf("[Server] WebSocket connection registered: %d active connections", len(h.clients))
	return c, true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()

	c.close()
	if ok {
		log.Printf("[Server] WebSocket connection unregistered: %d active connections", n)
	}
}

// Close disconnects every client and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// close stops the write pump, which then closes the connection
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// writePump drains c.send onto the connection and keeps it alive with pings
func (c *client) writePump(debug bool) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("[WS] Failed to send message: %v", err)
				return
			}
			if debug {
				log.Printf("[WS] Sent to %s: %s", c.id, truncate(data, 200))
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encodeMessage(msgType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(MessageEnvelope{Type: msgType, Data: data})
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}

// serveWebSocket upgrades the connection, sends the current state and then
// handles client actions until the connection closes.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Failed to upgrade connection: %v", err)
		return
	}

	c, ok := s.hub.register(conn)
	if !ok {
		conn.Close()
		return
	}
	defer s.hub.unregister(c)

	go c.writePump(s.debug)

	if s.debug {
		log.Printf("[WS] Client connected: %s (%s)", c.id, conn.RemoteAddr())
	}

	s.hub.sendTo(c, TypeState, s.store.Snapshot())

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Unexpected close: %v", err)
			}
			break
		}

		if s.debug {
			log.Printf("[WS] Received from %s: %s", c.id, truncate(message, 200))
		}

		s.handleMessage(c, message)
	}

	if s.debug {
		log.Printf("[WS] Client disconnected: %s", c.id)
	}
}

// handleMessage decodes one client message and applies its action
func (s *Server) handleMessage(c *client, message []byte) {
	var env MessageEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		s.hub.sendTo(c, TypeError, errorPayload{Message: "invalid message: " + err.Error()})
		return
	}
	if env.Type != TypeAction {
		s.hub.sendTo(c, TypeError, errorPayload{Message: "unsupported message type: " + env.Type})
		return
	}
	if err := s.handleAction(env.Action, env.Data); err != nil {
		log.Printf("[WS] Action %s rejected: %v", env.Action, err)
		s.hub.sendTo(c, TypeError, errorPayload{Message: err.Error(), Action: env.Action})
	}
}
