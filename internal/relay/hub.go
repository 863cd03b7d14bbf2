// Package relay implements the message hub between operator consoles
// (controllers) and browser agents. A connection's role is inferred from
// its first message; afterwards every payload message from one role is
// fanned out verbatim to all connections of the other role.
package relay

import (
	"sync"

	"github.com/xiaoshi569/Geminijson/internal/application/port/output"
	"github.com/xiaoshi569/Geminijson/internal/domain/entity"
)

// Hub owns the two role sets. Set membership and send-channel lifetime are
// both guarded by mu: broadcasts enqueue under the read lock, removal
// closes the channel under the write lock, so an enqueue can never hit a
// closed channel. Forwarding itself is non-blocking per recipient, so a
// slow or dead peer never stalls the sender or the other recipients.
type Hub struct {
	mu          sync.RWMutex
	controllers map[*connection]bool
	agents      map[*connection]bool

	logger output.LoggerPort
}

func NewHub(logger output.LoggerPort) *Hub {
	return &Hub{
		controllers: make(map[*connection]bool),
		agents:      make(map[*connection]bool),
		logger:      logger,
	}
}

// AgentConnected reports whether at least one agent is registered.
func (h *Hub) AgentConnected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.agents) > 0
}

// ControllerCount is used by tests and status reporting.
func (h *Hub) ControllerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.controllers)
}

// classify registers a connection under the role announced by its first
// message and emits the associated notifications. Called from the
// connection's own read loop, before the connection can be removed.
func (h *Hub) classify(c *connection, role entity.Role) {
	c.role = role

	switch role {
	case entity.RoleController:
		h.mu.Lock()
		h.controllers[c] = true
		agentPresent := len(h.agents) > 0
		h.mu.Unlock()

		h.logger.Info("controller connected", "remote", c.remoteAddr())

		status := &entity.Envelope{
			Type:             entity.TypeServerStatus,
			BrowserConnected: &agentPresent,
		}
		if raw, err := status.Encode(); err == nil {
			c.enqueue(raw)
		}

	case entity.RoleAgent:
		h.mu.Lock()
		h.agents[c] = true
		h.mu.Unlock()

		h.logger.Info("agent connected", "remote", c.remoteAddr())
		h.notifyControllers(entity.TypeAgentConnected)

	default:
		// Unrecognized first message: the connection stays open but its
		// traffic is dropped in both directions.
		h.logger.Warn("unrecognized role announcement, dropping traffic", "remote", c.remoteAddr())
	}
}

// route forwards a payload message from an already-classified connection
// to every connection of the opposite role.
func (h *Hub) route(from *connection, raw []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var targets map[*connection]bool
	switch from.role {
	case entity.RoleController:
		targets = h.agents
	case entity.RoleAgent:
		targets = h.controllers
	default:
		return
	}

	for c := range targets {
		if !c.enqueue(raw) {
			h.logger.Warn("send buffer full, message dropped", "role", c.role.String(), "remote", c.remoteAddr())
		}
	}
}

// remove unregisters a connection and ends its write pump. Dropping the
// last agent notifies all controllers so they can grey out their UI.
func (h *Hub) remove(c *connection) {
	h.mu.Lock()
	var lastAgentGone bool
	switch c.role {
	case entity.RoleController:
		delete(h.controllers, c)
	case entity.RoleAgent:
		delete(h.agents, c)
		lastAgentGone = len(h.agents) == 0
	}
	close(c.send)
	h.mu.Unlock()

	h.logger.Info("connection closed", "role", c.role.String(), "remote", c.remoteAddr())

	if lastAgentGone {
		h.notifyControllers(entity.TypeAgentDisconnected)
	}
}

func (h *Hub) notifyControllers(msgType string) {
	note := &entity.Envelope{Type: msgType}
	raw, err := note.Encode()
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.controllers {
		if !c.enqueue(raw) {
			h.logger.Warn("send buffer full, notification dropped", "remote", c.remoteAddr())
		}
	}
}
