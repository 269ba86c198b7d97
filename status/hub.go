package status

import (
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"morsekey/keyer"
)

const (
	clientQueueSize = 64
	writeWait       = 5 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = 30 * time.Second
)

// FeedMessage is one websocket frame on /events.
type FeedMessage struct {
	Type       string    `json:"type"` // event | outcome
	Kind       string    `json:"kind"`
	At         time.Time `json:"at"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Symbols    string    `json:"symbols,omitempty"`
	Text       string    `json:"text,omitempty"`
	Error      string    `json:"error,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans decoder events out to websocket clients. It implements
// keyer.Observer; broadcasts never block the keying loop, and a client whose
// queue is full misses frames instead.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	dropped  atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many frames were discarded for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) ObserveEvent(ev keyer.Event) {
	h.Broadcast(FeedMessage{
		Type:       "event",
		Kind:       ev.Kind.String(),
		At:         ev.At,
		DurationMS: ev.Duration.Milliseconds(),
		Symbols:    ev.Symbols,
		Text:       ev.Text,
	})
}

func (h *Hub) ObserveOutcome(res keyer.GateResult) {
	msg := FeedMessage{
		Type: "outcome",
		Kind: res.Outcome.String(),
		At:   res.ClosedAt,
		Text: res.Message.Text,
	}
	if res.Err != nil {
		msg.Error = res.Err.Error()
	}
	h.Broadcast(msg)
}

// Broadcast queues msg for every connected client.
func (h *Hub) Broadcast(msg FeedMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Status: marshal feed message: %v", err)
		return
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
		}
	}
}

// Purpose: Upgrade an HTTP request and serve the event feed until the client leaves.
// Key aspects: One writer goroutine per client owns all writes (frames and
// pings); the handler goroutine only reads, to process pongs and close frames.
// Upstream: Server mux at /events.
// Downstream: writeLoop, Broadcast.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Status: websocket upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientQueueSize)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("Status: feed client connected from %s (total: %d)", r.RemoteAddr, count)

	go h.writeLoop(c)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Status: feed read error: %v", err)
			}
			break
		}
	}
	h.remove(c)
}

func (h *Hub) writeLoop(c *client) {
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
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("Status: feed client disconnected (remaining: %d)", count)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
