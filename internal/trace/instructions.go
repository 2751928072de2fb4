package trace

import "github.com/xiaot623/carechat/internal/domain"

// Instruction is one rendering step produced by the state machine.
type Instruction interface {
	isInstruction()
}

// AddItem appends a row to the activity panel.
type AddItem struct {
	Item Item
}

// CompleteItems flips the given rows of a bucket to complete.
type CompleteItems struct {
	Bucket domain.AgentKey
	IDs    []int
}

// Highlight marks an agent as active in the architecture view.
type Highlight struct {
	Agent domain.AgentKey
}

// ClearHighlight returns the architecture view to idle.
type ClearHighlight struct{}

// ShowMetrics replaces the metrics readout.
type ShowMetrics struct {
	Metrics  domain.Metrics
	Segments []Segment
}

// ShowResponse displays the assistant's answer.
type ShowResponse struct {
	Text      string
	SessionID string
}

// ShowError displays a failure. Message is shown verbatim; Transport marks a
// client-side network failure rather than a server-reported one.
type ShowError struct {
	Message   string
	Transport bool
}

// ScheduleIdle asks the owner to apply Idle after the grace delay.
type ScheduleIdle struct{}

// StatusChanged reports a new turn phase.
type StatusChanged struct {
	Phase Phase
}

// Cleared empties the activity panel and the metrics readout. Conversation is
// set when the whole conversation was reset.
type Cleared struct {
	Conversation bool
}

// TurnFinished re-enables message submission.
type TurnFinished struct{}

func (AddItem) isInstruction()        {}
func (CompleteItems) isInstruction()  {}
func (Highlight) isInstruction()      {}
func (ClearHighlight) isInstruction() {}
func (ShowMetrics) isInstruction()    {}
func (ShowResponse) isInstruction()   {}
func (ShowError) isInstruction()      {}
func (ScheduleIdle) isInstruction()   {}
func (StatusChanged) isInstruction()  {}
func (Cleared) isInstruction()        {}
func (TurnFinished) isInstruction()   {}
