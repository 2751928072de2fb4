// Package agents implements the scripted ServiceNow and Salesforce specialists
// the orchestrator delegates to.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/xiaot623/carechat/internal/domain"
	"github.com/xiaot623/carechat/internal/tools"
)

// ProcessingLabel is the task label used when no keyword matches.
const ProcessingLabel = "Processing"

// Request is one task delegated to a specialist.
type Request struct {
	PatientID string
	// Task is the natural-language instruction; it decides the task label.
	Task   string
	BillID string
	Amount float64
}

// Outcome is what a specialist reports back.
type Outcome struct {
	Label   string
	Summary string
	Details []string
	Visual  *domain.VisualCard
	// Reply is a patient-facing sentence the orchestrator folds into its answer.
	Reply string

	// Billing facts later steps of the same turn can build on.
	BillID string
	Amount float64
}

// Detail joins the details the way the activity panel shows them.
func (o Outcome) Detail() string {
	if len(o.Details) == 0 {
		return "Task completed successfully"
	}
	return strings.Join(o.Details, " | ")
}

// Specialist is a back-office agent reached through its tools.
type Specialist interface {
	Key() domain.AgentKey
	// Name is the agent label carried on trace events.
	Name() string
	Icon() string
	// Label names the task the way the activity panel shows it.
	Label(task string) string
	Handle(ctx context.Context, req Request) (Outcome, error)
}

// Roster is the set of available specialists.
type Roster struct {
	Data       *Dataset
	ServiceNow *ServiceNow
	Salesforce *Salesforce
}

// NewRoster registers both specialists' tools in registry over ds.
func NewRoster(ds *Dataset, registry *tools.Registry) (*Roster, error) {
	sn, err := NewServiceNow(ds, registry)
	if err != nil {
		return nil, err
	}
	sf, err := NewSalesforce(ds, registry)
	if err != nil {
		return nil, err
	}
	return &Roster{Data: ds, ServiceNow: sn, Salesforce: sf}, nil
}

// Get returns the specialist for key.
func (r *Roster) Get(key domain.AgentKey) (Specialist, bool) {
	switch key {
	case domain.AgentServiceNow:
		return r.ServiceNow, true
	case domain.AgentSalesforce:
		return r.Salesforce, true
	default:
		return nil, false
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// newReference returns ids such as CORR-1A2B3C.
func newReference(prefix string) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return prefix + "-" + strings.ToUpper(id[:6])
}

func money(v float64) string {
	whole := int64(v)
	s := fmt.Sprintf("%d", whole)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if cents := int64(v*100+0.5) % 100; cents != 0 {
		return fmt.Sprintf("$%s.%02d", b.String(), cents)
	}
	return "$" + b.String()
}

func card(typ string, fields map[string]any) *domain.VisualCard {
	return &domain.VisualCard{Type: typ, Fields: fields}
}
