package relay

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaoshi569/Geminijson/internal/domain/entity"
	"github.com/xiaoshi569/Geminijson/internal/infrastructure/logger"
)

const readWait = 2 * time.Second

func newTestRelay(t *testing.T) (*Hub, string) {
	t.Helper()

	hub := NewHub(logger.NewWriterAdapter(io.Discard))
	server := NewServer("", hub, logger.NewWriterAdapter(io.Discard))

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return hub, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func announce(t *testing.T, ws *websocket.Conn, msgType string) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(entity.Envelope{Type: msgType}))
}

func readEnvelope(t *testing.T, ws *websocket.Conn) *entity.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(readWait)))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	e, err := entity.DecodeEnvelope(raw)
	require.NoError(t, err)
	return e
}

func expectNoMessage(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err, "expected no message to arrive")
}

func TestControllerGetsServerStatus_NoAgent(t *testing.T) {
	_, url := newTestRelay(t)

	controller := dial(t, url)
	announce(t, controller, entity.TypeControllerConnect)

	status := readEnvelope(t, controller)
	require.Equal(t, entity.TypeServerStatus, status.Type)
	require.NotNil(t, status.BrowserConnected)
	assert.False(t, *status.BrowserConnected)
}

func TestControllerGetsServerStatus_WithAgent(t *testing.T) {
	hub, url := newTestRelay(t)

	agent := dial(t, url)
	announce(t, agent, entity.TypeAgentConnect)
	require.Eventually(t, hub.AgentConnected, readWait, 10*time.Millisecond)

	controller := dial(t, url)
	announce(t, controller, entity.TypeControllerConnect)

	status := readEnvelope(t, controller)
	require.Equal(t, entity.TypeServerStatus, status.Type)
	require.NotNil(t, status.BrowserConnected)
	assert.True(t, *status.BrowserConnected)
}

func TestAgentArrivalNotifiesControllers(t *testing.T) {
	_, url := newTestRelay(t)

	controller := dial(t, url)
	announce(t, controller, entity.TypeControllerConnect)
	readEnvelope(t, controller) // server_status

	agent := dial(t, url)
	announce(t, agent, entity.TypeAgentConnect)

	note := readEnvelope(t, controller)
	assert.Equal(t, entity.TypeAgentConnected, note.Type)
}

func TestLastAgentDepartureNotifiesControllers(t *testing.T) {
	hub, url := newTestRelay(t)

	controller := dial(t, url)
	announce(t, controller, entity.TypeControllerConnect)
	readEnvelope(t, controller) // server_status

	agent := dial(t, url)
	announce(t, agent, entity.TypeAgentConnect)
	require.Equal(t, entity.TypeAgentConnected, readEnvelope(t, controller).Type)

	agent.Close()

	note := readEnvelope(t, controller)
	assert.Equal(t, entity.TypeAgentDisconnected, note.Type)
	require.Eventually(t, func() bool { return !hub.AgentConnected() }, readWait, 10*time.Millisecond)
}

func TestFanOutBothDirections(t *testing.T) {
	hub, url := newTestRelay(t)

	agent := dial(t, url)
	announce(t, agent, entity.TypeAgentConnect)
	require.Eventually(t, hub.AgentConnected, readWait, 10*time.Millisecond)

	controller := dial(t, url)
	announce(t, controller, entity.TypeControllerConnect)
	readEnvelope(t, controller) // server_status

	// Controller -> agent: command forwarded verbatim.
	cmd := entity.Envelope{Command: entity.CmdOpenTab, Params: map[string]any{"url": "https://example.com"}, ID: "c1"}
	require.NoError(t, controller.WriteJSON(cmd))

	got := readEnvelope(t, agent)
	assert.Equal(t, entity.CmdOpenTab, got.Command)
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, "https://example.com", got.Params["url"])

	// Agent -> controller: response comes back.
	resp := entity.Envelope{
		Type:    entity.TypeResponse,
		Command: entity.CmdOpenTab,
		ID:      "c1",
		Result:  &entity.CommandResult{Success: true},
	}
	require.NoError(t, agent.WriteJSON(resp))

	back := readEnvelope(t, controller)
	require.True(t, back.IsResponse())
	assert.Equal(t, "c1", back.ID)
	assert.True(t, back.Result.Success)
}

func TestFanOutReachesAllControllers(t *testing.T) {
	hub, url := newTestRelay(t)

	agent := dial(t, url)
	announce(t, agent, entity.TypeAgentConnect)
	require.Eventually(t, hub.AgentConnected, readWait, 10*time.Millisecond)

	c1 := dial(t, url)
	announce(t, c1, entity.TypeControllerConnect)
	readEnvelope(t, c1)

	c2 := dial(t, url)
	announce(t, c2, entity.TypeControllerConnect)
	readEnvelope(t, c2)

	require.NoError(t, agent.WriteJSON(entity.Envelope{
		Type:    entity.TypeResponse,
		Command: entity.CmdScreenshot,
		ID:      "s1",
		Result:  &entity.CommandResult{Success: true},
	}))

	for _, c := range []*websocket.Conn{c1, c2} {
		got := readEnvelope(t, c)
		assert.Equal(t, "s1", got.ID)
	}
}

func TestIndeterminateConnectionIsIsolated(t *testing.T) {
	hub, url := newTestRelay(t)

	agent := dial(t, url)
	announce(t, agent, entity.TypeAgentConnect)
	require.Eventually(t, hub.AgentConnected, readWait, 10*time.Millisecond)

	// First message is not a recognized announcement. The connection stays
	// open but nothing it sends afterwards is forwarded.
	stranger := dial(t, url)
	announce(t, stranger, "hello")
	require.NoError(t, stranger.WriteJSON(entity.Envelope{Command: entity.CmdGetCookies, ID: "x"}))

	expectNoMessage(t, agent)
	assert.Equal(t, 0, hub.ControllerCount())
}

func TestMalformedFirstMessageDoesNotClassify(t *testing.T) {
	_, url := newTestRelay(t)

	controller := dial(t, url)
	require.NoError(t, controller.WriteMessage(websocket.TextMessage, []byte("not json")))

	// The malformed frame is dropped; the next parseable message still
	// classifies the connection.
	announce(t, controller, entity.TypeControllerConnect)

	status := readEnvelope(t, controller)
	assert.Equal(t, entity.TypeServerStatus, status.Type)
}

func TestAnnouncementIsNotForwarded(t *testing.T) {
	hub, url := newTestRelay(t)

	controller := dial(t, url)
	announce(t, controller, entity.TypeControllerConnect)
	readEnvelope(t, controller)

	agent := dial(t, url)
	announce(t, agent, entity.TypeAgentConnect)
	require.Eventually(t, hub.AgentConnected, readWait, 10*time.Millisecond)

	// The controller sees the presence notification, not the raw
	// announcement envelope.
	note := readEnvelope(t, controller)
	assert.Equal(t, entity.TypeAgentConnected, note.Type)
	expectNoMessage(t, controller)
}
