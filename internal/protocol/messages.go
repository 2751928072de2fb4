// Package protocol defines the WebSocket messages of the live trace feed.
package protocol

import "github.com/xiaot623/carechat/internal/domain"

// Message types from watcher to server
const (
	TypeHello = "hello"
)

// Message types from server to watcher
const (
	TypeHelloAck       = "hello_ack"
	TypeTrace          = "trace"
	TypeTurnDone       = "turn_done"
	TypeSessionDeleted = "session_deleted"
	TypeError          = "error"
)

// Error codes
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeHelloRequired  = "hello_required"
)

// AllSessions is the session id a watcher binds to in order to receive every session.
const AllSessions = "*"

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	SessionID string `json:"session_id,omitempty"`
	TurnID    string `json:"turn_id,omitempty"`
}

// HelloMessage is sent by a watcher to pick the session it follows.
// An empty SessionID follows all sessions.
type HelloMessage struct {
	BaseMessage
	ClientMeta map[string]string `json:"client_meta,omitempty"`
}

// HelloAckMessage confirms the binding.
type HelloAckMessage struct {
	BaseMessage
}

// TraceMessage carries one trace event of a turn.
type TraceMessage struct {
	BaseMessage
	Event domain.TraceEvent `json:"event"`
}

// TurnDoneMessage closes a turn. Error is set when the turn failed.
type TurnDoneMessage struct {
	BaseMessage
	Metrics *domain.Metrics `json:"metrics,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ErrorMessage is sent when a watcher message is rejected.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}
