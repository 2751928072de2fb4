// Package domain defines the core domain models shared by the chat client and the demo backend.
package domain

// EventKind is the discriminator of a stream frame.
type EventKind string

const (
	EventKindTrace    EventKind = "trace"
	EventKindMetrics  EventKind = "metrics"
	EventKindResponse EventKind = "response"
	EventKindError    EventKind = "error"
	EventKindDone     EventKind = "done"
)

// TraceStatus is the status carried by a trace event.
type TraceStatus string

const (
	TraceStatusRunning  TraceStatus = "running"
	TraceStatusComplete TraceStatus = "complete"
	TraceStatusInfo     TraceStatus = "info"
)

// AgentKey identifies one of the known agents shown in the activity panel.
type AgentKey string

const (
	AgentOrchestrator AgentKey = "orchestrator"
	AgentServiceNow   AgentKey = "servicenow"
	AgentSalesforce   AgentKey = "salesforce"
)

// KnownAgents lists the agents in display order.
var KnownAgents = []AgentKey{AgentOrchestrator, AgentServiceNow, AgentSalesforce}

// Trace event types emitted by the backend.
const (
	TraceTypeOrchestratorStart = "orchestrator_start"
	TraceTypeOrchestratorEnd   = "orchestrator_end"
	TraceTypeToolStart         = "tool_start"
	TraceTypeToolEnd           = "tool_end"
	TraceTypeThinking          = "thinking"
)
