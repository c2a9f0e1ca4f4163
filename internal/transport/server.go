package transport

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Server upgrades incoming HTTP requests to WebSocket connections and
// hands each one to NewConn. It carries no session state itself.
type Server struct {
	upgrader    websocket.Upgrader
	hub         Hub
	pongTimeout time.Duration
}

// NewServer builds a Server that upgrades connections for hub, closing any
// connection that misses pongTimeout worth of liveness pongs.
func NewServer(hub Hub, pongTimeout time.Duration) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		hub:         hub,
		pongTimeout: pongTimeout,
	}
}

// ServeHTTP upgrades the request and starts the connection's pumps. Once
// upgraded, all further interaction happens over the socket; HTTP-level
// errors before upgrade are answered normally.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	NewConn(ws, s.pongTimeout, s.hub)
}
