// Package sockets serves websocket clients and broadcasts messages to all of them.
package sockets

import (
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("closed connection")

type Connection interface {
	Send(msg []byte) error
	io.Closer
}

// Hub tracks the connected clients of one endpoint.
type Hub struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	writeTimeout time.Duration
	checkOrigin  func(origin string) bool
	onError      func(err error)
	onConnected  func(Connection)

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewHub(opts ...func(*Hub)) *Hub {
	h := &Hub{
		pingInterval: 30 * time.Second,
		writeTimeout: 10 * time.Second,
		conns:        make(map[*Conn]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: 15 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			if h.checkOrigin == nil {
				return true
			}
			return h.checkOrigin(r.Header.Get("Origin"))
		},
	}
	return h
}

// Conn is one upgraded client. Writes are serialised.
type Conn struct {
	hub    *Hub
	ws     *websocket.Conn
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func (c *Conn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		c.closeLocked()
		c.hub.reportError(err)
		return err
	}
	return nil
}

// Closes the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *Conn) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	c.ws.Close()
	c.hub.remove(c)
}

func (c *Conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.hub.writeTimeout))
}

// ServeHTTP upgrades the request and keeps the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.reportError(err)
		return
	}
	c := &Conn{hub: h, ws: ws, done: make(chan struct{})}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	if h.onConnected != nil {
		h.onConnected(c)
	}
	go h.keepAlive(c)

	// clients only listen; reading drives pong and close handling
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.reportError(err)
			}
			c.Close()
			return
		}
	}
}

func (h *Hub) keepAlive(c *Conn) {
	if h.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Broadcast sends msg to every connected client and returns how many received it.
func (h *Hub) Broadcast(msg []byte) int {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	sent := 0
	for _, c := range conns {
		if c.Send(msg) == nil {
			sent++
		}
	}
	return sent
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
	return nil
}

func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func (h *Hub) reportError(err error) {
	if h.onError != nil {
		h.onError(err)
	}
}
