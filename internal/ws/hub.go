// Package ws pushes live session events (sensor snapshots, conversation
// turns, insights, speech clips) to connected browsers.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/banshee-data/plantconnect/internal/monitoring"
	"github.com/gorilla/websocket"
)

// Event is the envelope every message is wrapped in.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	pingInterval = 20 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 3 * time.Second
)

// Hub owns the client set. Only Run touches the map; everything else goes
// through channels.
type Hub struct {
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	done       chan struct{}
	count      atomic.Int32
	dropped    atomic.Int64
	upgrader   websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn, 16),
		unregister: make(chan *websocket.Conn, 16),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Clients is the number of registered connections.
func (h *Hub) Clients() int { return int(h.count.Load()) }

// Dropped counts broadcasts discarded because the queue was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Run serves the hub until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	defer close(h.done)

	remove := func(c *websocket.Conn) {
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			h.count.Add(-1)
		}
		_ = c.Close()
	}

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				remove(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Add(1)

		case c := <-h.unregister:
			remove(c)

		case msg := <-h.broadcast:
			for c := range h.clients {
				_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					remove(c)
				}
			}

		case <-ping.C:
			for c := range h.clients {
				_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					remove(c)
				}
			}
		}
	}
}

// Handler upgrades requests and keeps reading until the client goes away.
// Inbound messages are ignored.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			monitoring.Logf("ws: upgrade: %v", err)
			return
		}
		// register is buffered, so a stopped hub would still accept the send
		select {
		case <-h.done:
			_ = conn.Close()
			return
		default:
		}
		select {
		case h.register <- conn:
		case <-h.done:
			_ = conn.Close()
			return
		}

		go func() {
			defer func() {
				select {
				case h.unregister <- conn:
				case <-h.done:
				}
			}()
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(readTimeout))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}

// Publish queues an event for every client. It never blocks: when the
// queue is full the event is dropped.
func (h *Hub) Publish(eventType string, data any) {
	b, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		monitoring.Logf("ws: marshal %s: %v", eventType, err)
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.dropped.Add(1)
	}
}
