// Package policy decides which specialist agents a chat message needs.
package policy

import (
	"context"
	_ "embed"
	"fmt"
	"slices"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/xiaot623/carechat/internal/domain"
)

// DefaultPolicy is the routing policy shipped with the server.
//
//go:embed routing.rego
var DefaultPolicy string

// Intents produced by the default policy.
const (
	IntentBillingInquiry    = "billing_inquiry"
	IntentBillingCorrection = "billing_correction"
	IntentAppointment       = "appointment"
	IntentInsurance         = "insurance"
	IntentCareHistory       = "care_history"
	IntentGeneral           = "general"
)

// Decision is the routing outcome for one message.
type Decision struct {
	Intent string
	// Agents are the specialists to consult, in display order.
	Agents       []domain.AgentKey
	NeedsPatient bool
}

// Engine is the OPA routing engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a routing engine from the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.carechat.routing.decision"),
		rego.Module("routing.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Route evaluates the policy for a message.
func (e *Engine) Route(ctx context.Context, message string) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(map[string]any{"message": message}))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Intent: IntentGeneral}, nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Decision{}, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}

	d := Decision{Intent: IntentGeneral}
	if intent, ok := obj["intent"].(string); ok {
		d.Intent = intent
	}
	if needs, ok := obj["needs_patient"].(bool); ok {
		d.NeedsPatient = needs
	}
	agents, _ := obj["agents"].([]any)
	for _, known := range domain.KnownAgents {
		if slices.Contains(agents, any(string(known))) {
			d.Agents = append(d.Agents, known)
		}
	}
	return d, nil
}
