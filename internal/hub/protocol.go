package hub

import (
	"encoding/json"

	"github.com/user/phantom/internal/terminal"
	"github.com/user/phantom/internal/wire"
)

// ClientMessage is every command a client can send. Fields not used by a
// command type are ignored.
type ClientMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	SessionID uint64 `json:"session_id,omitempty"`
	Data      string `json:"data,omitempty"`
	Cols      int    `json:"cols,omitempty"`
	Rows      int    `json:"rows,omitempty"`

	Shell      string `json:"shell,omitempty"`
	Command    string `json:"command,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`
	Profile    string `json:"profile,omitempty"`
	Sandbox    bool   `json:"sandbox,omitempty"`
}

// EventMessage wraps one terminal event for a session.
type EventMessage struct {
	Type      string          `json:"type"`
	SessionID uint64          `json:"session_id"`
	Event     json.RawMessage `json:"event"`
}

type CreatedMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	SessionID uint64 `json:"session_id"`
}

// ClosedMessage follows a session's last event.
type ClosedMessage struct {
	Type      string `json:"type"`
	SessionID uint64 `json:"session_id"`
}

type SessionsMessage struct {
	Type string          `json:"type"`
	List []terminal.Info `json:"list"`
}

type ErrorMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	SessionID uint64 `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// hubBroadcast is a marshaled message and the session it belongs to. A zero
// sessionID goes to every client.
type hubBroadcast struct {
	data      []byte
	sessionID uint64
	// kind is set for terminal events only.
	kind wire.Kind
}
