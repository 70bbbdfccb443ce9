package sockets

import "time"

func WithPingInterval(d time.Duration) func(*Hub) {
	return func(h *Hub) {
		h.pingInterval = d
	}
}

func WithWriteTimeout(d time.Duration) func(*Hub) {
	return func(h *Hub) {
		h.writeTimeout = d
	}
}

// WithCheckOrigin overrides the origin check of the upgrade handshake.
func WithCheckOrigin(f func(origin string) bool) func(*Hub) {
	return func(h *Hub) {
		h.checkOrigin = f
	}
}

func OnError(f func(error)) func(*Hub) {
	return func(h *Hub) {
		h.onError = f
	}
}

// OnConnected is called once a client is upgraded, before it receives broadcasts.
func OnConnected(f func(Connection)) func(*Hub) {
	return func(h *Hub) {
		h.onConnected = f
	}
}
