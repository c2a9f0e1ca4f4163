// Package transport adapts long-lived WebSocket connections to the
// broker's Sender contract: one Conn per socket, a bounded send queue, and
// a liveness ping/pong loop that closes dead connections.
package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kapdap/cadence/internal/broker"
	"github.com/kapdap/cadence/internal/identity"
	"github.com/kapdap/cadence/internal/logging"
)

var log = logging.L("transport")

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	sendQueueSize  = 64
)

// Hub is the broker surface a Conn needs: decode-and-dispatch inbound
// frames, and lifecycle hooks for registration and teardown. Satisfied by
// *broker.Broker.
type Hub interface {
	RegisterConn(conn broker.Sender)
	HandleFrame(conn broker.Sender, raw []byte)
	RemoveConn(socketID string)
}

// Conn wires one WebSocket to the broker. It implements broker.Sender
// (SocketID/Send) so the broker can hold it without knowing about
// WebSockets at all.
type Conn struct {
	socketID string
	ws       *websocket.Conn

	sendChan  chan []byte
	done      chan struct{}
	closeOnce sync.Once

	pongTimeout time.Duration
}

// NewConn wraps ws with a fresh socket identity and starts its pumps.
// pongTimeout is the liveness window; a missed pong within it closes the
// connection. hub receives the decoded frames and close notification.
func NewConn(ws *websocket.Conn, pongTimeout time.Duration, hub Hub) *Conn {
	c := &Conn{
		socketID:    identity.NewSocketID(),
		ws:          ws,
		sendChan:    make(chan []byte, sendQueueSize),
		done:        make(chan struct{}),
		pongTimeout: pongTimeout,
	}

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	hub.RegisterConn(c)
	go c.writePump(pongTimeout / 2)
	go c.readPump(hub)

	return c
}

// SocketID returns the fresh identifier minted for this connection. It is
// never derived from client input.
func (c *Conn) SocketID() string { return c.socketID }

// Send enqueues frame for delivery. Non-blocking: a full queue drops the
// frame rather than stalling the caller (a broadcasting goroutine serving
// many other sockets).
func (c *Conn) Send(frame []byte) {
	select {
	case c.sendChan <- frame:
	case <-c.done:
	default:
		log.Warn("send queue full, dropping frame", "socketId", c.socketID)
	}
}

// Close tears down the socket and stops its pumps. Safe to call more than
// once and from both pumps at the same time.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func (c *Conn) readPump(hub Hub) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("frame handler panicked, closing connection", "socketId", c.socketID, "panic", r)
		}
		hub.RemoveConn(c.socketID)
		c.Close()
	}()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		hub.HandleFrame(c, raw)
	}
}

func (c *Conn) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.sendChan:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Warn("write error", "socketId", c.socketID, "error", err)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn("ping failed", "socketId", c.socketID, "error", err)
				return
			}
		}
	}
}
