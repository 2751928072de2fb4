package trace

import (
	"maps"
	"slices"

	"github.com/xiaot623/carechat/internal/domain"
	"github.com/xiaot623/carechat/internal/sse"
)

// BeginTurn clears the previous turn's activity and marks the session busy.
func BeginTurn(s State) (State, []Instruction) {
	s.Processing = true
	s.Phase = PhaseProcessing
	s.Log = nil
	s.Items = nil
	s.Metrics = nil
	s.Terminated = false
	s.Highlighted = domain.AgentOrchestrator

	return s, []Instruction{
		Cleared{},
		StatusChanged{Phase: PhaseProcessing},
		Highlight{Agent: domain.AgentOrchestrator},
	}
}

// Apply folds one stream event into the state.
func Apply(s State, ev domain.StreamEvent) (State, []Instruction) {
	switch e := ev.(type) {
	case domain.TraceFrame:
		return applyTrace(s, e.Event)

	case domain.MetricsFrame:
		m := e.Metrics
		m.Timings = maps.Clone(e.Metrics.Timings)
		s.Metrics = &m
		return s, []Instruction{ShowMetrics{Metrics: m, Segments: Segments(m)}}

	case domain.ResponseFrame:
		if e.SessionID != "" {
			s.SessionID = e.SessionID
		}
		s.Phase = PhaseComplete
		s.Terminated = true
		return s, []Instruction{
			ShowResponse{Text: e.Text, SessionID: s.SessionID},
			StatusChanged{Phase: PhaseComplete},
			ScheduleIdle{},
		}

	case domain.ErrorFrame:
		return fail(s, e.Message, e.Transport)

	default:
		return s, nil
	}
}

func applyTrace(s State, ev domain.TraceEvent) (State, []Instruction) {
	bucket := Resolve(ev)
	isEnd := ev.IsEnd()

	s.Log = append(slices.Clip(s.Log), ev)

	item := Item{
		ID:     s.nextID,
		Bucket: bucket,
		Event:  ev,
		Open:   bucket != Thinking && !isEnd && ev.Status != domain.TraceStatusComplete,
	}
	s.nextID++

	var ins []Instruction
	items := slices.Clone(s.Items)
	items = append(items, item)
	ins = append(ins, AddItem{Item: item})

	if bucket != Thinking {
		s.Highlighted = bucket
		ins = append(ins, Highlight{Agent: bucket})
	}

	if isEnd {
		var closed []int
		for i := range items {
			if items[i].Bucket == bucket && items[i].Open {
				items[i].Open = false
				closed = append(closed, items[i].ID)
			}
		}
		if len(closed) > 0 {
			ins = append(ins, CompleteItems{Bucket: bucket, IDs: closed})
		}
	}

	s.Items = items
	return s, ins
}

func fail(s State, message string, transport bool) (State, []Instruction) {
	s.Phase = PhaseFailed
	s.Terminated = true
	s.Highlighted = ""
	return s, []Instruction{
		ShowError{Message: message, Transport: transport},
		StatusChanged{Phase: PhaseFailed},
		ClearHighlight{},
	}
}

// FinishTurn releases the session once the stream has closed. A stream that
// ended without a response or error is reported as a transport failure.
func FinishTurn(s State) (State, []Instruction) {
	var ins []Instruction
	if s.Processing && !s.Terminated {
		s, ins = fail(s, sse.TransportErrorMessage, true)
	}
	s.Processing = false
	return s, append(ins, TurnFinished{})
}

// Idle returns the architecture view to rest after the grace delay.
func Idle(s State) (State, []Instruction) {
	if s.Highlighted == "" {
		return s, nil
	}
	s.Highlighted = ""
	return s, []Instruction{ClearHighlight{}}
}

// Reset forgets the conversation. It is a no-op while a turn is in flight.
func Reset(s State) (State, []Instruction) {
	if s.Processing {
		return s, nil
	}
	return State{nextID: s.nextID}, []Instruction{
		Cleared{Conversation: true},
		StatusChanged{Phase: PhaseReady},
		ClearHighlight{},
	}
}
