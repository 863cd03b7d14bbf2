// Package transport provides the client side of the relay connection: a
// duplex, message-oriented websocket link that reconnects on its own.
package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaoshi569/Geminijson/internal/application/port/output"
	"github.com/xiaoshi569/Geminijson/internal/domain/entity"
)

// ErrLinkDown is returned by Send while the link is disconnected.
var ErrLinkDown = errors.New("transport: link is down")

const DefaultRetryDelay = 3 * time.Second

type Config struct {
	URL string
	// Announce is sent as the first message of every (re)connection so the
	// relay can classify the link.
	Announce   entity.Envelope
	RetryDelay time.Duration
}

// Link dials the relay and keeps dialing: reconnection is unconditional,
// with a fixed delay and unlimited attempts.
type Link struct {
	cfg    Config
	logger output.LoggerPort

	onMessage func(raw []byte)
	onState   func(connected bool)

	mu sync.Mutex
	ws *websocket.Conn
}

func NewLink(cfg Config, logger output.LoggerPort) *Link {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Link{cfg: cfg, logger: logger}
}

// OnMessage registers the inbound handler. Must be called before Run.
// Messages are delivered sequentially, in arrival order.
func (l *Link) OnMessage(fn func(raw []byte)) { l.onMessage = fn }

// OnStateChange registers a connect/disconnect callback. Must be called
// before Run.
func (l *Link) OnStateChange(fn func(connected bool)) { l.onState = fn }

// Connected reports whether the link currently holds a live connection.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ws != nil
}

// Send writes one envelope. Writes from concurrent callers are serialized.
func (l *Link) Send(e *entity.Envelope) error {
	raw, err := e.Encode()
	if err != nil {
		return err
	}
	return l.SendRaw(raw)
}

func (l *Link) SendRaw(raw []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ws == nil {
		return ErrLinkDown
	}
	return l.ws.WriteMessage(websocket.TextMessage, raw)
}

// Run blocks, servicing the connection until ctx is cancelled.
func (l *Link) Run(ctx context.Context) {
	for {
		if err := l.connectAndServe(ctx); err != nil && ctx.Err() == nil {
			l.logger.Warn("relay connection lost", "url", l.cfg.URL, "error", err)
		}

		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.cfg.RetryDelay):
		}
	}
}

func (l *Link) connectAndServe(ctx context.Context) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, l.cfg.URL, nil)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.ws = ws
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.ws = nil
		l.mu.Unlock()
		ws.Close()
		if l.onState != nil {
			l.onState(false)
		}
	}()

	if err := l.Send(&l.cfg.Announce); err != nil {
		return err
	}

	l.logger.Info("connected to relay", "url", l.cfg.URL)
	if l.onState != nil {
		l.onState(true)
	}

	// Close the socket when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if l.onMessage != nil {
			l.onMessage(raw)
		}
	}
}
