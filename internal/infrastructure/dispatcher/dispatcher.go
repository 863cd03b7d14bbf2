// Package dispatcher gives callers a call/response-shaped interface over
// the relay's broadcast semantics: commands go out with a generated
// correlation id, and incoming results are matched back to the blocked
// caller that issued them.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xiaoshi569/Geminijson/internal/application/port/output"
	"github.com/xiaoshi569/Geminijson/internal/domain/entity"
)

var (
	// ErrNotConnected means there is no live relay link or no agent known
	// to be present; nothing was sent.
	ErrNotConnected = errors.New("dispatcher: controller or agent not connected")

	// ErrTimedOut means no matching result arrived within the deadline.
	ErrTimedOut = errors.New("dispatcher: command timed out")

	// ErrMalformedResult classifies a response missing required fields.
	// Such responses are logged and dropped; they never resolve a wait.
	ErrMalformedResult = errors.New("dispatcher: malformed result")
)

// DefaultTimeout bounds SendAndWait when the caller passes no timeout.
const DefaultTimeout = 10 * time.Second

// RelayLink is the slice of the transport link the dispatcher needs.
type RelayLink interface {
	Send(e *entity.Envelope) error
	Connected() bool
}

// pendingWait is one outstanding blocking command. Resolved exactly once:
// the result-arrival path and the timeout path both claim under the
// dispatcher mutex, and the loser becomes a no-op.
type pendingWait struct {
	id       string
	command  string
	resolved bool
	ch       chan *entity.CommandResult
}

var _ output.CommanderPort = (*Dispatcher)(nil)

type Dispatcher struct {
	link   RelayLink
	logger output.LoggerPort

	mu           sync.Mutex
	pending      map[string]*pendingWait
	agentPresent bool

	onPresence func(connected bool)
}

func New(link RelayLink, logger output.LoggerPort) *Dispatcher {
	return &Dispatcher{
		link:    link,
		logger:  logger,
		pending: make(map[string]*pendingWait),
	}
}

// OnPresenceChange registers a callback fired when the relay reports the
// agent appearing or disappearing. Must be set before messages flow.
func (d *Dispatcher) OnPresenceChange(fn func(connected bool)) { d.onPresence = fn }

// AgentConnected reports the relay's last known agent presence.
func (d *Dispatcher) AgentConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.agentPresent
}

// Send issues a fire-and-forget command.
func (d *Dispatcher) Send(command string, params map[string]any) (string, error) {
	if !d.link.Connected() || !d.AgentConnected() {
		return "", ErrNotConnected
	}

	id := uuid.NewString()
	msg := &entity.Envelope{
		Command: command,
		Params:  params,
		ID:      id,
	}
	if err := d.link.Send(msg); err != nil {
		return "", err
	}

	d.logger.Debug("command sent", "command", command, "id", id)
	return id, nil
}

// SendAndWait issues a command and blocks the caller (only the caller; the
// relay message path keeps running) until a matching result arrives or the
// timeout elapses.
func (d *Dispatcher) SendAndWait(ctx context.Context, command string, params map[string]any, timeout time.Duration) (*entity.CommandResult, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if !d.link.Connected() || !d.AgentConnected() {
		return nil, ErrNotConnected
	}

	id := uuid.NewString()
	wait := &pendingWait{
		id:      id,
		command: command,
		ch:      make(chan *entity.CommandResult, 1),
	}

	// Register before sending so a result racing the send cannot be lost.
	d.mu.Lock()
	d.pending[id] = wait
	d.mu.Unlock()

	msg := &entity.Envelope{Command: command, Params: params, ID: id}
	if err := d.link.Send(msg); err != nil {
		d.abandon(wait)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-wait.ch:
		return res, nil

	case <-timer.C:
		if res, claimed := d.claimTimeout(wait); !claimed {
			// The result arrived between the timer firing and the claim;
			// first to claim wins, so deliver it.
			return res, nil
		}
		d.logger.Warn("command timed out", "command", command, "id", id)
		return nil, ErrTimedOut

	case <-ctx.Done():
		if res, claimed := d.claimTimeout(wait); !claimed {
			return res, nil
		}
		return nil, ctx.Err()
	}
}

// claimTimeout removes the wait so a late result for its id is ignored
// rather than misrouted. Returns the result instead when the arrival path
// already claimed resolution.
func (d *Dispatcher) claimTimeout(w *pendingWait) (*entity.CommandResult, bool) {
	d.mu.Lock()
	if w.resolved {
		d.mu.Unlock()
		return <-w.ch, false
	}
	w.resolved = true
	delete(d.pending, w.id)
	d.mu.Unlock()
	return nil, true
}

func (d *Dispatcher) abandon(w *pendingWait) {
	d.mu.Lock()
	w.resolved = true
	delete(d.pending, w.id)
	d.mu.Unlock()
}

// HandleMessage consumes every inbound relay message. Wire it to the
// transport link's OnMessage.
func (d *Dispatcher) HandleMessage(raw []byte) {
	msg, err := entity.DecodeEnvelope(raw)
	if err != nil {
		d.logger.Warn("malformed message dropped", "error", err)
		return
	}

	switch msg.Type {
	case entity.TypeServerStatus:
		present := msg.BrowserConnected != nil && *msg.BrowserConnected
		d.setPresence(present)

	case entity.TypeAgentConnected:
		d.setPresence(true)

	case entity.TypeAgentDisconnected:
		d.setPresence(false)

	case entity.TypeResponse:
		d.handleResponse(msg)
	}
}

// HandleLinkState resets presence knowledge when the relay link drops;
// the relay re-reports status after reconnect.
func (d *Dispatcher) HandleLinkState(connected bool) {
	if !connected {
		d.setPresence(false)
	}
}

func (d *Dispatcher) setPresence(present bool) {
	d.mu.Lock()
	changed := d.agentPresent != present
	d.agentPresent = present
	d.mu.Unlock()

	if changed && d.onPresence != nil {
		d.onPresence(present)
	}
}

func (d *Dispatcher) handleResponse(msg *entity.Envelope) {
	if msg.Result == nil || msg.Command == "" {
		d.logger.Warn("result dropped", "reason", ErrMalformedResult.Error(), "command", msg.Command)
		return
	}

	d.mu.Lock()
	wait := d.match(msg)
	if wait == nil {
		d.mu.Unlock()
		d.logger.Debug("unsolicited result ignored", "command", msg.Command, "id", msg.ID)
		return
	}
	wait.resolved = true
	delete(d.pending, wait.id)
	d.mu.Unlock()

	wait.ch <- msg.Result
}

// match finds the wait a response belongs to: by echoed correlation id
// when the agent provided one, otherwise by command name. The name
// fallback makes two concurrent in-flight commands of the same name
// ambiguous; callers keep one blocking wait per command name in flight.
func (d *Dispatcher) match(msg *entity.Envelope) *pendingWait {
	if msg.ID != "" {
		if w, ok := d.pending[msg.ID]; ok && !w.resolved {
			return w
		}
		return nil
	}
	for _, w := range d.pending {
		if w.command == msg.Command && !w.resolved {
			return w
		}
	}
	return nil
}
