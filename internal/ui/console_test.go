package ui

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/carechat/internal/domain"
	"github.com/xiaot623/carechat/internal/sse"
	"github.com/xiaot623/carechat/internal/trace"
)

func TestConsoleRendersActivity(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.Render(trace.AddItem{Item: trace.Item{
		Bucket: domain.AgentServiceNow,
		Open:   true,
		Event: domain.TraceEvent{
			Agent:     "ServiceNow",
			Type:      "tool_start",
			Title:     "Billing Lookup",
			Detail:    "Querying BILL-90421",
			Icon:      "🔍",
			Timestamp: 0.42,
			Data:      json.RawMessage(`{"visual":{"type":"billing","amount":"$2,400"}}`),
		},
	}})
	c.Render(trace.CompleteItems{Bucket: domain.AgentServiceNow, IDs: []int{0}})
	c.Render(trace.Highlight{Agent: domain.AgentSalesforce})

	out := buf.String()
	assert.Contains(t, out, "[ServiceNow]")
	assert.Contains(t, out, "🔍 Billing Lookup")
	assert.Contains(t, out, "Querying BILL-90421")
	assert.Contains(t, out, "(0.42s)")
	assert.Contains(t, out, "BILLING")
	assert.Contains(t, out, "amount: $2,400")
	assert.Contains(t, out, "ServiceNow finished (1)")
	assert.Contains(t, out, "▶ Salesforce")
}

func TestConsoleMetrics(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	m := domain.Metrics{TotalTime: 2, Tokens: domain.TokenUsage{Input: 10, Output: 30}, EstimatedCost: 0.0005, Timings: map[string]float64{"orchestrator": 1.2, "servicenow": 0.8}}
	c.Render(trace.ShowMetrics{Metrics: m, Segments: trace.Segments(m)})

	out := buf.String()
	assert.Contains(t, out, "2.00s")
	assert.Contains(t, out, "tokens 40")
	assert.Contains(t, out, " 60%")
	assert.Contains(t, out, " 40%")
}

func TestConsoleErrors(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.Render(trace.ShowError{Message: "ServiceNow agent timed out"})
	c.Render(trace.ShowError{Message: sse.TransportErrorMessage, Transport: true})

	out := buf.String()
	assert.Contains(t, out, "Error: ServiceNow agent timed out")
	assert.Contains(t, out, sse.TransportErrorMessage)
	assert.NotContains(t, out, "Error: "+sse.TransportErrorMessage)
}

func TestConsoleQuietPrintsOnlyOutcome(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.Quiet = true

	c.Render(trace.AddItem{Item: trace.Item{Bucket: domain.AgentServiceNow, Event: domain.TraceEvent{Title: "Billing Lookup"}}})
	c.Render(trace.StatusChanged{Phase: trace.PhaseComplete})
	c.Render(trace.ShowResponse{Text: "All fixed."})

	out := buf.String()
	assert.NotContains(t, out, "Billing Lookup")
	assert.NotContains(t, out, "status:")
	assert.Contains(t, out, "All fixed.")
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "ServiceNow", DisplayName(domain.AgentServiceNow))
	assert.Equal(t, "Thinking", DisplayName(trace.Thinking))
	assert.Equal(t, "custom", DisplayName("custom"))
}

func TestFeedPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewFeedPrinter(&buf)

	p.Trace("3f9a1c2e-77b0", domain.TraceEvent{Agent: "Salesforce", Title: "Insurance Verification", Icon: "👤", Detail: "Request: Verify insurance coverage", Timestamp: 1.25})
	p.TurnDone("3f9a1c2e-77b0", &domain.Metrics{TotalTime: 2.5, Tokens: domain.TokenUsage{Input: 5, Output: 7}, EstimatedCost: 0.0001}, "")
	p.TurnDone("s2", nil, "policy failed")
	p.Notice("s2", "session deleted")
	p.Error("invalid_message", "unknown message type: ping")

	out := buf.String()
	assert.Contains(t, out, "3f9a1c2e [Salesforce] 👤 Insurance Verification")
	assert.Contains(t, out, "Verify insurance coverage")
	assert.Contains(t, out, "(1.25s)")
	assert.Contains(t, out, "2.50s, 12 tokens, $0.0001")
	assert.Contains(t, out, "turn failed: policy failed")
	assert.Contains(t, out, "session deleted")
	assert.Contains(t, out, "feed error invalid_message: unknown message type: ping")
}
