package entity

import "encoding/json"

// Role is the classification of a relay connection, inferred from the
// first message it sends and fixed for the lifetime of the connection.
type Role int

const (
	RoleUnclassified Role = iota
	RoleController
	RoleAgent
	// RoleIndeterminate marks a connection whose first message was not a
	// recognized announcement. It stays open but is never forwarded.
	RoleIndeterminate
)

func (r Role) String() string {
	switch r {
	case RoleController:
		return "controller"
	case RoleAgent:
		return "agent"
	case RoleIndeterminate:
		return "indeterminate"
	default:
		return "unclassified"
	}
}

// Wire message type discriminators. The relay only interprets the two
// announcement types and the messages it originates itself; everything
// else is forwarded opaquely.
const (
	TypeControllerConnect = "gui_connect"
	TypeAgentConnect      = "connection"
	TypeServerStatus      = "server_status"
	TypeAgentConnected    = "browser_connected"
	TypeAgentDisconnected = "browser_disconnected"
	TypeResponse          = "response"
	TypePing              = "ping"
)

// Command names understood by the browser agent.
const (
	CmdOpenTab        = "openTab"
	CmdGetCurrentTab  = "getCurrentTab"
	CmdGetAllTabs     = "getAllTabs"
	CmdClickElement   = "clickElement"
	CmdFillInput      = "fillInput"
	CmdExecuteScript  = "executeScript"
	CmdGetPageContent = "getPageContent"
	CmdScreenshot     = "screenshot"
	CmdGetCookies     = "getCookies"
)

// Envelope is the one-JSON-object-per-message wire format shared by every
// party on the relay. Fields are a union across the message variants; each
// variant populates its own subset and leaves the rest empty.
type Envelope struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`

	// Command variant (controller -> agent).
	Command string         `json:"command,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	ID      string         `json:"id,omitempty"`

	// Response variant (agent -> controller). Command is reused for the
	// echoed command name.
	Result *CommandResult `json:"result,omitempty"`

	// server_status variant (relay -> controller).
	BrowserConnected *bool `json:"browser_connected,omitempty"`
}

// CommandResult is the agent's verdict on a single command.
type CommandResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// AnnouncedRole maps an envelope to the role it announces, if any.
// Only meaningful for the first message of a connection.
func (e *Envelope) AnnouncedRole() Role {
	switch e.Type {
	case TypeControllerConnect:
		return RoleController
	case TypeAgentConnect:
		return RoleAgent
	default:
		return RoleIndeterminate
	}
}

// IsCommand reports whether the envelope carries a command for the agent.
func (e *Envelope) IsCommand() bool {
	return e.Command != "" && e.Result == nil
}

// IsResponse reports whether the envelope is an agent response.
func (e *Envelope) IsResponse() bool {
	return e.Type == TypeResponse && e.Result != nil
}

// DecodeEnvelope parses a raw wire message. A parse failure means the
// message is malformed and must be dropped, never forwarded.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Encode serializes the envelope for the wire.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
