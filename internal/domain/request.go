package domain

// ChatRequest is the body of POST /api/chat/stream and POST /api/chat.
// SessionID is nil for the first message of a conversation.
type ChatRequest struct {
	Message   string  `json:"message"`
	SessionID *string `json:"session_id"`
}

// ChatResponse is the body returned by the non-streaming POST /api/chat.
type ChatResponse struct {
	Response  string       `json:"response"`
	SessionID string       `json:"session_id"`
	Trace     []TraceEvent `json:"trace"`
	Metrics   *Metrics     `json:"metrics,omitempty"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status string     `json:"status"`
	Agents []AgentKey `json:"agents"`
}
