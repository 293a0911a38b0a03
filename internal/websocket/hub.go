// Package websocket pushes live-reload notifications to preview browsers.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/slate/internal/logging"
	"github.com/conneroisu/slate/internal/validation"
)

const (
	// writeWait bounds a single message write.
	writeWait = 10 * time.Second

	// sendBuffer is the number of messages queued per client before it is
	// considered too slow and dropped.
	sendBuffer = 16
)

// Hub tracks connected browsers and broadcasts messages to them. A single
// goroutine owns registration and broadcast so that a slow client never
// blocks the build.
type Hub struct {
	clients      map[*websocket.Conn]*client
	clientsMutex sync.RWMutex

	broadcast  chan []byte
	register   chan *client
	unregister chan *websocket.Conn

	allowedOrigins []string
	logger         logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewHub creates a hub and starts its loop. Connections are accepted from
// the request's own host and from allowedOrigins.
func NewHub(allowedOrigins []string, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:        make(map[*websocket.Conn]*client),
		broadcast:      make(chan []byte, 64),
		register:       make(chan *client, 16),
		unregister:     make(chan *websocket.Conn, 16),
		allowedOrigins: allowedOrigins,
		logger:         logger.WithComponent("reload"),
		ctx:            ctx,
		cancel:         cancel,
	}
	go h.run()
	return h
}

// ServeHTTP upgrades the request and registers the browser.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	allowed := append([]string{r.Host}, h.allowedOrigins...)
	if err := validation.ValidateOrigin(r.Header.Get("Origin"), allowed); err != nil {
		h.logger.Warn(r.Context(), err, "websocket connection rejected", "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// origin was validated above
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "websocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// Broadcast queues msg for every connected browser.
func (h *Hub) Broadcast(msg Message) error {
	if err := h.ctx.Err(); err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", msg.Type, err)
	}
	select {
	case h.broadcast <- data:
		return nil
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every browser and stops the hub.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		h.cancel()
		h.clientsMutex.Lock()
		for conn, c := range h.clients {
			close(c.send)
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			delete(h.clients, conn)
		}
		h.clientsMutex.Unlock()
	})
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clientsMutex.Lock()
			h.clients[c.conn] = c
			n := len(h.clients)
			h.clientsMutex.Unlock()
			h.logger.Debug(h.ctx, "browser connected", "clients", n)

		case conn := <-h.unregister:
			h.drop(conn)

		case data := <-h.broadcast:
			h.clientsMutex.RLock()
			var slow []*websocket.Conn
			for conn, c := range h.clients {
				select {
				case c.send <- data:
				default:
					slow = append(slow, conn)
				}
			}
			h.clientsMutex.RUnlock()
			for _, conn := range slow {
				h.drop(conn)
			}

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.clientsMutex.Lock()
	c, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(c.send)
	}
	n := len(h.clients)
	h.clientsMutex.Unlock()

	if ok {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Debug(h.ctx, "browser disconnected", "clients", n)
	}
}

// readPump discards incoming frames until the browser goes away.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c.conn:
		case <-h.ctx.Done():
		}
	}()
	for {
		if _, _, err := c.conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	for data := range c.send {
		ctx, cancel := context.WithTimeout(h.ctx, writeWait)
		err := c.conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			return
		}
	}
}
