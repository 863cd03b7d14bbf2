package output

import (
	"context"
	"time"

	"github.com/xiaoshi569/Geminijson/internal/domain/entity"
)

// CommanderPort is the call/response-shaped interface over the relay that
// the orchestrator and the operator console use to reach the browser agent.
//
// Response matching falls back to the command name when the agent does not
// echo a correlation id, so callers must keep at most one blocking wait in
// flight per command name.
type CommanderPort interface {
	// Send issues a command and returns its correlation id. Fails with
	// ErrNotConnected when the relay link is down or no agent is present.
	Send(command string, params map[string]any) (string, error)

	// SendAndWait issues a command and blocks until a matching result
	// arrives or the timeout elapses (ErrTimedOut). Exactly one of the two
	// happens.
	SendAndWait(ctx context.Context, command string, params map[string]any, timeout time.Duration) (*entity.CommandResult, error)

	// AgentConnected reports the relay's last known agent presence.
	AgentConnected() bool
}
