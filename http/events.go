package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"speakerid/logger"
)

const (
	eventWriteWait  = 10 * time.Second
	eventPongWait   = 60 * time.Second
	eventPingPeriod = 45 * time.Second
	eventSendBuffer = 16
)

// Event is one message pushed to websocket subscribers, carrying training
// progress and lifecycle notifications.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type eventClient struct {
	conn *websocket.Conn
	send chan []byte
}

// EventHub fans events out to connected websocket clients. Slow clients are
// dropped rather than allowed to block the broadcast loop.
type EventHub struct {
	clients    map[*eventClient]bool
	broadcast  chan []byte
	register   chan *eventClient
	unregister chan *eventClient
	upgrader   websocket.Upgrader
}

// NewEventHub creates a hub; call Run to start it.
func NewEventHub() *EventHub {
	return &EventHub{
		clients:    make(map[*eventClient]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *eventClient),
		unregister: make(chan *eventClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run owns the client set until ctx is cancelled.
func (h *EventHub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			logger.L().Infow("event client connected", "total", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				logger.L().Infow("event client disconnected", "total", len(h.clients))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					delete(h.clients, client)
					close(client.send)
				}
			}

		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return
		}
	}
}

// Broadcast sends an event to every connected client. Never blocks; with no
// listeners (or a full queue) the event is dropped.
func (h *EventHub) Broadcast(eventType string, data interface{}) {
	payload, err := json.Marshal(Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		logger.L().Warnw("could not marshal event", "type", eventType, "error", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
	}
}

func (h *EventHub) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.L().Warnw("websocket upgrade failed", "error", err)
		return
	}

	client := &eventClient{conn: conn, send: make(chan []byte, eventSendBuffer)}
	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

func (c *eventClient) writePump() {
	ticker := time.NewTicker(eventPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection so pings and close frames are processed;
// inbound payloads are ignored.
func (c *eventClient) readPump(h *EventHub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(eventPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(eventPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
