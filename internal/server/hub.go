package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raysh454/netmon/internal/logging"
	"github.com/raysh454/netmon/internal/model"
	"github.com/raysh454/netmon/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 256
)

// Message is one frame on /ws/events.
type Message struct {
	Type      string         `json:"type"`
	ID        string         `json:"id,omitempty"`
	Request   *model.Request `json:"request,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

const (
	MessageRequestAdded   = "request-added"
	MessageRequestUpdated = "request-updated"
	MessageRequestsClear  = "requests-cleared"
)

// Hub fans store changes out to websocket clients.
type Hub struct {
	logger     logging.Logger
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	clients    map[*client]bool
	done       chan struct{}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]bool),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			h.logger.Info("websocket client connected", logging.F("clients", len(h.clients)))
		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
				h.logger.Info("websocket client disconnected", logging.F("clients", len(h.clients)))
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client; drop it rather than stall everyone.
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// OnAction is a store.Listener.
func (h *Hub) OnAction(_ store.State, a store.Action) {
	switch a.Type {
	case store.ActionBatchActions:
		for _, inner := range a.Actions {
			h.OnAction(store.State{}, inner)
		}
	case store.ActionAddRequest:
		h.publish(Message{Type: MessageRequestAdded, ID: a.Request.ID, Request: a.Request})
	case store.ActionUpdateRequest:
		h.publish(Message{Type: MessageRequestUpdated, ID: a.Request.ID, Request: a.Request})
	case store.ActionClearRequests:
		h.publish(Message{Type: MessageRequestsClear})
	}
}

func (h *Hub) publish(msg Message) {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("marshal websocket message", logging.Err(err))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast channel full, skipping message", logging.F("type", msg.Type))
	}
}

// ServeWS upgrades the connection and registers it.
func (h *Hub) ServeWS(upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrading to websocket", logging.Err(err))
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, clientSendSize)}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump discards client frames and notices disconnects.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
