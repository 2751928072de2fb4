package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xiaot623/carechat/internal/agents"
	"github.com/xiaot623/carechat/internal/domain"
	"github.com/xiaot623/carechat/internal/policy"
)

const orchestratorName = "Orchestrator"

// Token pricing in USD per million tokens.
const (
	inputTokenPrice  = 3.0
	outputTokenPrice = 15.0
)

var patientIDPattern = regexp.MustCompile(`(?i)\bPAT-\d+\b`)

// ExtractPatientID returns the first patient id mentioned in message.
func ExtractPatientID(message string) string {
	return strings.ToUpper(patientIDPattern.FindString(message))
}

// orchestrate runs the trace pipeline of a turn and returns the reply text.
func (s *Service) orchestrate(ctx context.Context, t *Turn) (string, error) {
	c := t.collector
	c.Add(domain.TraceTypeOrchestratorStart, orchestratorName, "Analyzing request",
		`"`+truncate(t.Message, 60)+`"`, "🎯", domain.TraceStatusRunning, nil)

	decision, err := s.policy.Route(ctx, t.Message)
	if err != nil {
		return "", err
	}
	patientID := s.resolvePatient(ctx, t)

	c.Add(domain.TraceTypeThinking, orchestratorName, "Planning", planDetail(decision, patientID),
		"💭", domain.TraceStatusInfo, map[string]any{"intent": decision.Intent, "agents": decision.Agents})
	if err := s.step(ctx, t); err != nil {
		return "", err
	}

	var reply string
	switch {
	case decision.NeedsPatient && patientID == "":
		reply = "I'd be happy to help with that. Could you share your patient ID? It starts with PAT-, for example PAT-2847."
	case len(decision.Agents) == 0:
		reply = "I can help with billing questions, insurance coverage, appointments and your care history. What would you like to look into?"
	default:
		reply, err = s.consult(ctx, t, decision, patientID)
		if err != nil {
			return "", err
		}
	}

	c.Add(domain.TraceTypeOrchestratorEnd, orchestratorName, "Response ready",
		fmt.Sprintf("Generated %d chars", len(reply)), "✨", domain.TraceStatusComplete, nil)
	return reply, nil
}

// consult delegates to each routed specialist in order. Later specialists see
// the billing facts found by earlier ones.
func (s *Service) consult(ctx context.Context, t *Turn, decision policy.Decision, patientID string) (string, error) {
	c := t.collector
	var replies []string
	prior := agents.Outcome{}

	for _, key := range decision.Agents {
		specialist, ok := s.roster.Get(key)
		if !ok {
			continue
		}
		task := taskFor(decision.Intent, key, patientID, t.Message)
		if task == "" {
			continue
		}

		started := s.now()
		c.Add(domain.TraceTypeToolStart, specialist.Name(), specialist.Label(task),
			"Request: "+truncate(task, 100), specialist.Icon(), domain.TraceStatusRunning, nil)
		if err := s.step(ctx, t); err != nil {
			return "", err
		}

		out, err := specialist.Handle(ctx, agents.Request{
			PatientID: patientID,
			Task:      task,
			BillID:    prior.BillID,
			Amount:    prior.Amount,
		})
		if err != nil {
			return "", fmt.Errorf("%s agent failed: %w", specialist.Name(), err)
		}

		data := map[string]any{"summary": out.Summary, "label": out.Label}
		if out.Visual != nil {
			data["visual"] = out.Visual
		}
		c.Add(domain.TraceTypeToolEnd, specialist.Name(), out.Summary, out.Detail(),
			"✅", domain.TraceStatusComplete, data)
		c.Time(key, s.now().Sub(started))

		if out.BillID != "" {
			prior = out
		}
		if out.Reply != "" {
			replies = append(replies, out.Reply)
		}
	}

	return s.composeReply(patientID, replies), nil
}

// resolvePatient returns the patient id of the message, falling back to the
// one remembered on the session.
func (s *Service) resolvePatient(ctx context.Context, t *Turn) string {
	id := ExtractPatientID(t.Message)
	if id == "" {
		return t.Session.PatientID
	}
	if id != t.Session.PatientID {
		if err := s.store.UpdateSessionPatient(ctx, t.Session.SessionID, id); err != nil {
			s.log.Warn().Err(err).Str("session_id", t.Session.SessionID).Msg("failed to remember patient")
		}
		t.Session.PatientID = id
	}
	return id
}

func (s *Service) step(ctx context.Context, t *Turn) error {
	if t.emitErr != nil {
		return t.emitErr
	}
	var delay time.Duration
	if s.config != nil {
		delay = s.config.StepDelay
	}
	return sleep(ctx, delay)
}

func (s *Service) composeReply(patientID string, replies []string) string {
	greeting := "Hi there,"
	if p, ok := s.roster.Data.Patient(patientID); ok {
		greeting = fmt.Sprintf("Hi %s,", p.FirstName)
	}
	if len(replies) == 0 {
		return greeting + " I've looked into this but don't have anything new to report yet."
	}
	return greeting + " " + strings.Join(replies, " ") + " Is there anything else I can help you with today?"
}

// taskFor phrases the instruction for one specialist. Wording matters: the
// specialists pick their tool from keywords in the task.
func taskFor(intent string, agent domain.AgentKey, patientID, message string) string {
	switch agent {
	case domain.AgentServiceNow:
		switch intent {
		case policy.IntentBillingInquiry:
			return fmt.Sprintf("Look up billing records for patient %s and check for coding errors", patientID)
		case policy.IntentBillingCorrection:
			return fmt.Sprintf("Fix the procedure code error for patient %s and resubmit the claim", patientID)
		case policy.IntentAppointment:
			if strings.Contains(strings.ToLower(message), "primary") || strings.Contains(strings.ToLower(message), "physical") {
				return fmt.Sprintf("Schedule a primary care appointment for patient %s", patientID)
			}
			return fmt.Sprintf("Schedule a cardiology follow-up appointment for patient %s", patientID)
		}
	case domain.AgentSalesforce:
		switch intent {
		case policy.IntentBillingInquiry, policy.IntentInsurance:
			return fmt.Sprintf("Verify insurance coverage for patient %s", patientID)
		case policy.IntentBillingCorrection:
			return fmt.Sprintf("Create a case for the billing correction for patient %s", patientID)
		case policy.IntentCareHistory:
			return fmt.Sprintf("Get care history for patient %s", patientID)
		}
	}
	return ""
}

func planDetail(d policy.Decision, patientID string) string {
	names := make([]string, 0, len(d.Agents))
	for _, a := range d.Agents {
		names = append(names, string(a))
	}
	detail := "Intent: " + d.Intent
	if len(names) > 0 {
		detail += " → " + strings.Join(names, ", ")
	}
	if patientID != "" {
		detail += " (" + patientID + ")"
	}
	return detail
}

// metrics builds the resource snapshot of a finished turn. Tokens are
// estimated at four characters each.
func (t *Turn) metrics(reply string) domain.Metrics {
	inputChars := len(t.Message)
	for _, ev := range t.collector.Events() {
		inputChars += len(ev.Detail)
	}
	tokens := domain.TokenUsage{
		Input:  max(1, inputChars/4),
		Output: max(1, len(reply)/4),
	}
	total := t.collector.Elapsed()
	cost := float64(tokens.Input)*inputTokenPrice/1e6 + float64(tokens.Output)*outputTokenPrice/1e6

	return domain.Metrics{
		TotalTime:     total,
		Tokens:        tokens,
		EstimatedCost: cost,
		Timings:       t.collector.Timings(total),
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
