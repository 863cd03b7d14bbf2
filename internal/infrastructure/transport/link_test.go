package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaoshi569/Geminijson/internal/domain/entity"
	"github.com/xiaoshi569/Geminijson/internal/infrastructure/logger"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// relayStub accepts connections and records everything it reads.
type relayStub struct {
	mu       sync.Mutex
	conns    []*websocket.Conn
	received [][]byte
}

func (s *relayStub) handler(w http.ResponseWriter, r *http.Request) {
	ws, err := testUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, ws)
	s.mu.Unlock()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.received = append(s.received, raw)
		s.mu.Unlock()
	}
}

func (s *relayStub) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *relayStub) firstMessage() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.received) == 0 {
		return nil
	}
	return s.received[0]
}

func (s *relayStub) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ws := range s.conns {
		ws.Close()
	}
}

func startStub(t *testing.T) (*relayStub, string) {
	t.Helper()
	stub := &relayStub{}
	ts := httptest.NewServer(http.HandlerFunc(stub.handler))
	t.Cleanup(ts.Close)
	return stub, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func testAnnounce() entity.Envelope {
	return entity.Envelope{Type: entity.TypeControllerConnect, Message: "test"}
}

func TestLink_SendsAnnounceOnConnect(t *testing.T) {
	stub, url := startStub(t)

	link := NewLink(Config{URL: url, Announce: testAnnounce(), RetryDelay: 50 * time.Millisecond},
		logger.NewWriterAdapter(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go link.Run(ctx)

	require.Eventually(t, func() bool { return stub.firstMessage() != nil }, 2*time.Second, 10*time.Millisecond)

	e, err := entity.DecodeEnvelope(stub.firstMessage())
	require.NoError(t, err)
	assert.Equal(t, entity.TypeControllerConnect, e.Type)
	assert.True(t, link.Connected())
}

func TestLink_SendWhileDown(t *testing.T) {
	link := NewLink(Config{URL: "ws://127.0.0.1:1/ws", Announce: testAnnounce()},
		logger.NewWriterAdapter(io.Discard))

	err := link.Send(&entity.Envelope{Type: entity.TypePing})
	require.ErrorIs(t, err, ErrLinkDown)
}

func TestLink_ReconnectsAndReannounces(t *testing.T) {
	stub, url := startStub(t)

	var states []bool
	var mu sync.Mutex
	link := NewLink(Config{URL: url, Announce: testAnnounce(), RetryDelay: 30 * time.Millisecond},
		logger.NewWriterAdapter(io.Discard))
	link.OnStateChange(func(connected bool) {
		mu.Lock()
		states = append(states, connected)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go link.Run(ctx)

	require.Eventually(t, func() bool { return stub.connCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	stub.closeAll()

	// A second connection with a fresh announcement appears on its own.
	require.Eventually(t, func() bool { return stub.connCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, link.Connected, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, len(states), 3, "connect, disconnect, reconnect")
	assert.True(t, states[0])
	assert.False(t, states[1])
}

func TestLink_DeliversInboundMessages(t *testing.T) {
	stub, url := startStub(t)

	got := make(chan []byte, 1)
	link := NewLink(Config{URL: url, Announce: testAnnounce(), RetryDelay: 50 * time.Millisecond},
		logger.NewWriterAdapter(io.Discard))
	link.OnMessage(func(raw []byte) {
		select {
		case got <- raw:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go link.Run(ctx)

	require.Eventually(t, func() bool { return stub.connCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	stub.mu.Lock()
	ws := stub.conns[0]
	stub.mu.Unlock()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"browser_connected"}`)))

	select {
	case raw := <-got:
		e, err := entity.DecodeEnvelope(raw)
		require.NoError(t, err)
		assert.Equal(t, entity.TypeAgentConnected, e.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestLink_StopsOnContextCancel(t *testing.T) {
	stub, url := startStub(t)

	link := NewLink(Config{URL: url, Announce: testAnnounce(), RetryDelay: 20 * time.Millisecond},
		logger.NewWriterAdapter(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		link.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return stub.connCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.False(t, link.Connected())
}
