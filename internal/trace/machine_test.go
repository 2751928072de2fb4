package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/carechat/internal/domain"
	"github.com/xiaot623/carechat/internal/sse"
)

func traceFrame(agent, typ string, status domain.TraceStatus) domain.TraceFrame {
	return domain.TraceFrame{Event: domain.TraceEvent{Agent: agent, Type: typ, Status: status, Title: typ}}
}

func run(s State, events ...domain.StreamEvent) (State, []Instruction) {
	var all []Instruction
	for _, ev := range events {
		var ins []Instruction
		s, ins = Apply(s, ev)
		all = append(all, ins...)
	}
	return s, all
}

func TestResolve(t *testing.T) {
	tests := []struct {
		agent string
		typ   string
		want  domain.AgentKey
	}{
		{"ServiceNow", "tool_start", domain.AgentServiceNow},
		{"SALESFORCE Health Cloud", "tool_start", domain.AgentSalesforce},
		{"Orchestrator", "orchestrator_start", domain.AgentOrchestrator},
		{"Billing Bot", "tool_start", domain.AgentOrchestrator},
		{"", "tool_start", domain.AgentOrchestrator},
		{"ServiceNow", "thinking", Thinking},
		{"servicenow-to-salesforce bridge", "tool_start", domain.AgentSalesforce},
	}
	for _, tt := range tests {
		got := Resolve(domain.TraceEvent{Agent: tt.agent, Type: tt.typ})
		assert.Equal(t, tt.want, got, "agent=%q type=%q", tt.agent, tt.typ)
	}
}

func TestStartThenEndCompletesBucket(t *testing.T) {
	s, _ := BeginTurn(State{})
	s, ins := run(s,
		traceFrame("servicenow", "lookup_start", domain.TraceStatusRunning),
		traceFrame("servicenow", "lookup_end", domain.TraceStatusComplete),
	)

	assert.Equal(t, 0, s.OpenItems(domain.AgentServiceNow))
	assert.Equal(t, BucketComplete, s.Bucket(domain.AgentServiceNow))
	assert.Len(t, s.Log, 2)
	assert.Contains(t, ins, CompleteItems{Bucket: domain.AgentServiceNow, IDs: []int{0}})
}

func TestEndClosesEveryOpenItemOfBucket(t *testing.T) {
	s, _ := BeginTurn(State{})
	s, ins := run(s,
		traceFrame("ServiceNow", "tool_start", domain.TraceStatusRunning),
		traceFrame("ServiceNow", "lookup_progress", domain.TraceStatusInfo),
		traceFrame("ServiceNow", "tool_end", domain.TraceStatusComplete),
	)

	assert.Equal(t, 0, s.OpenItems(domain.AgentServiceNow))
	assert.Contains(t, ins, CompleteItems{Bucket: domain.AgentServiceNow, IDs: []int{0, 1}})
}

func TestInterleavedAgentsTrackedIndependently(t *testing.T) {
	s, _ := BeginTurn(State{})
	s, _ = run(s,
		traceFrame("ServiceNow", "tool_start", domain.TraceStatusRunning),
		traceFrame("Orchestrator", "orchestrator_start", domain.TraceStatusRunning),
		traceFrame("Salesforce", "tool_start", domain.TraceStatusRunning),
		traceFrame("ServiceNow", "tool_end", domain.TraceStatusComplete),
	)

	assert.Equal(t, BucketComplete, s.Bucket(domain.AgentServiceNow))
	assert.Equal(t, BucketRunning, s.Bucket(domain.AgentSalesforce))
	assert.Equal(t, 1, s.OpenItems(domain.AgentSalesforce))
	assert.Equal(t, BucketRunning, s.Bucket(domain.AgentOrchestrator))
	assert.Equal(t, domain.AgentServiceNow, s.Highlighted)
}

func TestThinkingNeverHighlights(t *testing.T) {
	s, _ := BeginTurn(State{})
	s, _ = run(s, traceFrame("Salesforce", "tool_start", domain.TraceStatusRunning))
	s, ins := run(s, traceFrame("Orchestrator", "thinking", domain.TraceStatusInfo))

	assert.Equal(t, domain.AgentSalesforce, s.Highlighted)
	require.Len(t, ins, 1)
	add, ok := ins[0].(AddItem)
	require.True(t, ok)
	assert.Equal(t, Thinking, add.Item.Bucket)
	assert.False(t, add.Item.Open)
	assert.Equal(t, BucketComplete, s.Bucket(Thinking))
	assert.Len(t, s.Log, 2)
}

func TestCompleteStatusWithoutEndTypeIsClosedRow(t *testing.T) {
	s, _ := BeginTurn(State{})
	s, ins := run(s, traceFrame("Orchestrator", "cache_hit", domain.TraceStatusComplete))

	assert.Equal(t, BucketComplete, s.Bucket(domain.AgentOrchestrator))
	for _, in := range ins {
		_, isComplete := in.(CompleteItems)
		assert.False(t, isComplete)
	}
}

func TestApplyDoesNotMutatePreviousState(t *testing.T) {
	s0, _ := BeginTurn(State{})
	s1, _ := Apply(s0, traceFrame("ServiceNow", "tool_start", domain.TraceStatusRunning))
	s2, _ := Apply(s1, traceFrame("ServiceNow", "tool_end", domain.TraceStatusComplete))

	assert.Empty(t, s0.Items)
	require.Len(t, s1.Items, 1)
	assert.True(t, s1.Items[0].Open)
	assert.False(t, s2.Items[0].Open)
	assert.Len(t, s1.Log, 1)
}

func TestMetricsReplaceSnapshot(t *testing.T) {
	s, _ := BeginTurn(State{})
	s, _ = Apply(s, domain.MetricsFrame{Metrics: domain.Metrics{TotalTime: 5, Timings: map[string]float64{"salesforce": 3}}})
	s, ins := Apply(s, domain.MetricsFrame{Metrics: domain.Metrics{
		TotalTime: 2.0,
		Timings:   map[string]float64{"orchestrator": 1.2, "servicenow": 0.8},
	}})

	require.NotNil(t, s.Metrics)
	assert.Equal(t, 2.0, s.Metrics.TotalTime)
	_, hasSalesforce := s.Metrics.Timings["salesforce"]
	assert.False(t, hasSalesforce)

	require.Len(t, ins, 1)
	show := ins[0].(ShowMetrics)
	assert.Equal(t, 60, show.Segments[0].Percent)
	assert.Equal(t, 40, show.Segments[1].Percent)
	assert.Equal(t, 0, show.Segments[2].Percent)
}

func TestSegmentsNeverExceedHundred(t *testing.T) {
	segs := Segments(domain.Metrics{
		TotalTime: 3,
		Timings:   map[string]float64{"orchestrator": 1.005, "servicenow": 1.005, "salesforce": 1.005},
	})
	sum := 0
	for _, s := range segs {
		sum += s.Percent
	}
	assert.LessOrEqual(t, sum, 100)

	segs = Segments(domain.Metrics{TotalTime: 1, Timings: map[string]float64{"orchestrator": 4, "servicenow": 2}})
	assert.Equal(t, 100, segs[0].Percent+segs[1].Percent+segs[2].Percent)

	segs = Segments(domain.Metrics{Timings: map[string]float64{"servicenow": 0.25}})
	assert.Equal(t, 25, segs[1].Percent)
}

func TestResponseAdoptsSessionAndSchedulesIdle(t *testing.T) {
	s, _ := BeginTurn(State{SessionID: "old"})
	s, ins := Apply(s, domain.ResponseFrame{Text: "Done", SessionID: "abc123"})

	assert.Equal(t, "abc123", s.SessionID)
	assert.Equal(t, PhaseComplete, s.Phase)
	assert.Contains(t, ins, ScheduleIdle{})
	assert.Equal(t, domain.AgentOrchestrator, s.Highlighted)

	s, ins = Idle(s)
	assert.Equal(t, []Instruction{ClearHighlight{}}, ins)
	assert.Empty(t, s.Highlighted)

	s, _ = Apply(s, domain.ResponseFrame{Text: "Again"})
	assert.Equal(t, "abc123", s.SessionID)
}

func TestErrorTerminatesImmediately(t *testing.T) {
	s, _ := BeginTurn(State{})
	s, ins := Apply(s, domain.ErrorFrame{Message: "ServiceNow agent timed out"})

	assert.Equal(t, PhaseFailed, s.Phase)
	assert.Empty(t, s.Highlighted)
	assert.Equal(t, ShowError{Message: "ServiceNow agent timed out"}, ins[0])
	assert.NotContains(t, ins, ScheduleIdle{})
}

func TestFinishTurnWithoutTerminalEvent(t *testing.T) {
	s, _ := BeginTurn(State{})
	s, _ = Apply(s, traceFrame("ServiceNow", "tool_start", domain.TraceStatusRunning))
	s, ins := FinishTurn(s)

	assert.False(t, s.Processing)
	assert.True(t, s.CanSend())
	assert.Equal(t, PhaseFailed, s.Phase)
	assert.Equal(t, ShowError{Message: sse.TransportErrorMessage, Transport: true}, ins[0])
	assert.Equal(t, TurnFinished{}, ins[len(ins)-1])
}

func TestBeginTurnClearsPreviousLog(t *testing.T) {
	s, _ := BeginTurn(State{})
	s, _ = run(s, traceFrame("ServiceNow", "tool_start", domain.TraceStatusRunning), domain.ResponseFrame{Text: "ok", SessionID: "s1"})
	s, _ = FinishTurn(s)
	require.Len(t, s.Log, 1)

	s, ins := BeginTurn(s)
	assert.Empty(t, s.Log)
	assert.Empty(t, s.Items)
	assert.Nil(t, s.Metrics)
	assert.Equal(t, "s1", s.SessionID)
	assert.Equal(t, Cleared{}, ins[0])
}

func TestResetIgnoredWhileProcessing(t *testing.T) {
	s, _ := BeginTurn(State{SessionID: "s1"})
	s, ins := Reset(s)
	assert.Nil(t, ins)
	assert.Equal(t, "s1", s.SessionID)

	s, _ = FinishTurn(s)
	s, ins = Reset(s)
	assert.Empty(t, s.SessionID)
	assert.Equal(t, PhaseReady, s.Phase)
	assert.Contains(t, ins, Cleared{Conversation: true})
}

func TestEndToEndTurn(t *testing.T) {
	s, _ := BeginTurn(State{})
	s, _ = run(s,
		traceFrame("Orchestrator", "orchestrator_start", domain.TraceStatusRunning),
		traceFrame("Orchestrator", "orchestrator_end", domain.TraceStatusComplete),
		domain.MetricsFrame{Metrics: domain.Metrics{TotalTime: 1}},
		domain.ResponseFrame{Text: "Your bill had a coding error.", SessionID: "abc123"},
		domain.DoneFrame{},
	)
	s, _ = FinishTurn(s)

	assert.Len(t, s.Log, 2)
	assert.Equal(t, "abc123", s.SessionID)
	assert.False(t, s.Processing)
	assert.True(t, s.CanSend())
	assert.Equal(t, PhaseComplete, s.Phase)
}
