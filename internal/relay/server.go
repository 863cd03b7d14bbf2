package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaoshi569/Geminijson/internal/application/port/output"
	"github.com/xiaoshi569/Geminijson/internal/domain/entity"
)

const sendBufferSize = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Both producers are local trusted processes, not browsers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connection is one transport link plus its inferred role.
type connection struct {
	ws   *websocket.Conn
	role entity.Role
	send chan []byte
}

func (c *connection) remoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// enqueue hands a message to the write pump. Returns false when the
// buffer is full and the message was dropped for this connection.
func (c *connection) enqueue(raw []byte) bool {
	select {
	case c.send <- raw:
		return true
	default:
		return false
	}
}

// Server accepts websocket connections for the hub.
type Server struct {
	Addr   string
	hub    *Hub
	logger output.LoggerPort
	http   *http.Server
}

func NewServer(addr string, hub *Hub, logger output.LoggerPort) *Server {
	return &Server{
		Addr:   addr,
		hub:    hub,
		logger: logger,
	}
}

// Handler exposes the upgrade endpoint; tests mount it on httptest.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleWS)
}

// ListenAndServe blocks until the listener fails or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.http = &http.Server{
		Addr:    s.Addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	s.logger.Info("relay listening", "addr", s.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &connection{
		ws:   ws,
		role: entity.RoleUnclassified,
		send: make(chan []byte, sendBufferSize),
	}

	go c.writePump()
	go s.readPump(c)
}

// readPump is the single reader for a connection. The first parseable
// message classifies the link; every later message is routed according to
// the fixed role. Handling is sequential per connection, which preserves
// per-sender ordering.
func (s *Server) readPump(c *connection) {
	defer func() {
		s.hub.remove(c)
		c.ws.Close()
	}()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		msg, err := entity.DecodeEnvelope(raw)
		if err != nil {
			s.logger.Warn("malformed message dropped", "remote", c.remoteAddr(), "error", err)
			continue
		}

		if c.role == entity.RoleUnclassified {
			s.hub.classify(c, msg.AnnouncedRole())
			continue
		}

		s.hub.route(c, raw)
	}
}

// writePump is the single writer for a connection.
func (c *connection) writePump() {
	for raw := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
			return
		}
	}
}
