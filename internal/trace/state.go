// Package trace tracks the per-agent activity of a chat turn as a pure state machine.
//
// Each step takes the current State and one stream event and returns the next
// State together with the view instructions that the step produced. State is
// never mutated in place, so a caller can keep the previous value around.
package trace

import (
	"strings"

	"github.com/xiaot623/carechat/internal/domain"
)

// Thinking is the agent-independent bucket for reasoning notes.
const Thinking domain.AgentKey = "thinking"

// Phase is the status shown next to the chat.
type Phase int

const (
	PhaseReady Phase = iota
	PhaseProcessing
	PhaseComplete
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseProcessing:
		return "Processing"
	case PhaseComplete:
		return "Complete"
	case PhaseFailed:
		return "Error"
	default:
		return "Ready"
	}
}

// BucketState is the activity of one agent bucket.
type BucketState int

const (
	BucketIdle BucketState = iota
	BucketRunning
	BucketComplete
)

func (b BucketState) String() string {
	switch b {
	case BucketRunning:
		return "running"
	case BucketComplete:
		return "complete"
	default:
		return "idle"
	}
}

// Item is one row of the activity panel.
type Item struct {
	ID     int
	Bucket domain.AgentKey
	Event  domain.TraceEvent
	Open   bool
}

// State is the whole client-side session: conversation id, turn status and the
// activity of the current turn.
type State struct {
	SessionID   string
	Processing  bool
	Phase       Phase
	Log         []domain.TraceEvent
	Items       []Item
	Metrics     *domain.Metrics
	Highlighted domain.AgentKey
	// Terminated is set once a response or error event ended the turn.
	Terminated bool

	nextID int
}

// CanSend reports whether a new message may be submitted.
func (s State) CanSend() bool {
	return !s.Processing
}

// OpenItems counts the open rows of a bucket.
func (s State) OpenItems(bucket domain.AgentKey) int {
	n := 0
	for _, it := range s.Items {
		if it.Bucket == bucket && it.Open {
			n++
		}
	}
	return n
}

// Bucket returns the activity state of a bucket.
func (s State) Bucket(bucket domain.AgentKey) BucketState {
	seen := false
	for _, it := range s.Items {
		if it.Bucket != bucket {
			continue
		}
		if it.Open {
			return BucketRunning
		}
		seen = true
	}
	if seen {
		return BucketComplete
	}
	return BucketIdle
}

// Resolve maps a trace event to its bucket. The agent name is matched by
// case-insensitive substring; unknown agents land in the orchestrator bucket.
func Resolve(ev domain.TraceEvent) domain.AgentKey {
	if ev.IsThinking() {
		return Thinking
	}
	agent := strings.ToLower(ev.Agent)
	key := domain.AgentOrchestrator
	if strings.Contains(agent, string(domain.AgentServiceNow)) {
		key = domain.AgentServiceNow
	}
	if strings.Contains(agent, string(domain.AgentSalesforce)) {
		key = domain.AgentSalesforce
	}
	return key
}
