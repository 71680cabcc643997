package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Vrajp610/spy-daytrader-sub000/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// wsMessage is the frame sent to and received from clients.
type wsMessage struct {
	Type      string `json:"type"`
	Channel   string `json:"channel,omitempty"`
	Payload   any    `json:"payload,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// client is one connected WebSocket peer. An empty subs set means
// subscribe-to-everything.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool
}

// hub fans engine events out to WebSocket clients. It owns the single bus
// subscription; per-client channel filters are applied at write time.
type hub struct {
	logger   *zap.Logger
	bus      *events.Bus
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	clients     map[string]*client
	unsubscribe func()
}

func newHub(logger *zap.Logger, bus *events.Bus) *hub {
	return &hub{
		logger:  logger.Named("ws"),
		bus:     bus,
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// start bridges the event bus into the hub.
func (h *hub) start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unsubscribe != nil {
		return
	}
	h.unsubscribe = h.bus.Subscribe(h.onEvent)
}

func (h *hub) stop() {
	h.mu.Lock()
	if h.unsubscribe != nil {
		h.unsubscribe()
		h.unsubscribe = nil
	}
	for _, c := range h.clients {
		c.conn.Close()
	}
	h.clients = make(map[string]*client)
	h.mu.Unlock()
}

// onEvent forwards a bus event to every client subscribed to its channel.
func (h *hub) onEvent(ev events.Event) {
	frame, err := json.Marshal(wsMessage{
		Type:      "event",
		Channel:   string(ev.EventType()),
		Payload:   ev,
		Timestamp: ev.EventTime().UnixMilli(),
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if len(c.subs) > 0 && !c.subs[string(ev.EventType())] {
			continue
		}
		select {
		case c.send <- frame:
		default:
			// Slow client, drop the frame.
		}
	}
}

func (h *hub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		subs: make(map[string]bool),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.logger.Info("websocket client connected", zap.String("id", c.id))

	go h.readPump(c)
	go h.writePump(c)
}

func (h *hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		c.conn.Close()
		h.logger.Info("websocket client disconnected", zap.String("id", c.id))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.logger.Debug("invalid websocket message", zap.Error(err))
			continue
		}
		h.handleMessage(c, &msg)
	}
}

func (h *hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *hub) handleMessage(c *client, msg *wsMessage) {
	resp := wsMessage{
		Type:      "response",
		Channel:   msg.Channel,
		Timestamp: time.Now().UnixMilli(),
	}

	switch msg.Type {
	case "ping":
		resp.Payload = "pong"
	case "subscribe":
		if msg.Channel == "" {
			resp.Error = "channel is required"
			break
		}
		h.mu.Lock()
		c.subs[msg.Channel] = true
		h.mu.Unlock()
		resp.Payload = map[string]string{"subscribed": msg.Channel}
	case "unsubscribe":
		h.mu.Lock()
		delete(c.subs, msg.Channel)
		h.mu.Unlock()
		resp.Payload = map[string]string{"unsubscribed": msg.Channel}
	default:
		resp.Error = "unknown message type"
	}

	frame, err := json.Marshal(resp)
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}
