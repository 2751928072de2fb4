package domain

import "time"

// Session is a server-side conversation.
type Session struct {
	SessionID string    `json:"session_id"`
	PatientID string    `json:"patient_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Role of a stored message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one persisted chat message.
type Message struct {
	MessageID string    `json:"message_id"`
	SessionID string    `json:"session_id"`
	TurnID    string    `json:"turn_id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// TraceRecord is a persisted trace event of a turn.
type TraceRecord struct {
	EventID   string     `json:"event_id"`
	SessionID string     `json:"session_id"`
	TurnID    string     `json:"turn_id"`
	Seq       int        `json:"seq"`
	Event     TraceEvent `json:"event"`
	CreatedAt time.Time  `json:"created_at"`
}
