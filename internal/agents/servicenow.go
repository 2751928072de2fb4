package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xiaot623/carechat/internal/domain"
	"github.com/xiaot623/carechat/internal/tools"
)

// ServiceNow tool names.
const (
	ToolBillingLookup       = "servicenow.billing_lookup"
	ToolBillingCorrect      = "servicenow.billing_correct"
	ToolTicketCreate        = "servicenow.ticket_create"
	ToolAppointmentSchedule = "servicenow.appointment_schedule"
)

// ServiceNow labels.
const (
	LabelBillingLookup       = "Billing Lookup"
	LabelBillingCorrection   = "Billing Correction"
	LabelCreateTicket        = "Create Ticket"
	LabelScheduleAppointment = "Schedule Appointment"
)

// correctionTimeline is the expected turnaround for code corrections.
const correctionTimeline = "24-48 hours"

// ticketSLA maps ticket priority to the response target.
var ticketSLA = map[string]string{
	"critical": "4 hours",
	"high":     "8 hours",
	"medium":   "24 hours",
	"low":      "48 hours",
}

type patientArgs struct {
	PatientID string `json:"patient_id"`
}

type billingLookupResult struct {
	Status  string `json:"status"`
	Records []Bill `json:"billing_records"`
}

type billingCorrectArgs struct {
	PatientID      string `json:"patient_id"`
	BillID         string `json:"bill_id,omitempty"`
	CorrectionType string `json:"correction_type"`
}

type billingCorrectResult struct {
	Status        string `json:"status"`
	CorrectionID  string `json:"correction_id,omitempty"`
	Bill          *Bill  `json:"bill,omitempty"`
	CorrectedCode string `json:"corrected_code,omitempty"`
	Timeline      string `json:"timeline,omitempty"`
}

type ticketArgs struct {
	PatientID string `json:"patient_id"`
	Category  string `json:"category"`
	Summary   string `json:"summary"`
	Priority  string `json:"priority"`
}

type ticketResult struct {
	Status   string   `json:"status"`
	Ticket   Ticket   `json:"ticket"`
	SLA      string   `json:"sla"`
	Existing []Ticket `json:"existing_tickets"`
}

type appointmentArgs struct {
	PatientID  string `json:"patient_id"`
	Department string `json:"department"`
	Reason     string `json:"reason"`
}

type appointmentResult struct {
	Status    string `json:"status"`
	Slot      *Slot  `json:"slot,omitempty"`
	Available []Slot `json:"available_slots"`
}

// ServiceNow handles billing, tickets and scheduling.
type ServiceNow struct {
	data     *Dataset
	registry *tools.Registry
}

// NewServiceNow registers the ServiceNow tools.
func NewServiceNow(ds *Dataset, registry *tools.Registry) (*ServiceNow, error) {
	sn := &ServiceNow{data: ds, registry: registry}
	for name, exec := range map[string]tools.ExecutorFunc{
		ToolBillingLookup:       sn.billingLookup,
		ToolBillingCorrect:      sn.billingCorrect,
		ToolTicketCreate:        sn.ticketCreate,
		ToolAppointmentSchedule: sn.appointmentSchedule,
	} {
		if err := registry.Register(name, exec); err != nil {
			return nil, err
		}
	}
	return sn, nil
}

func (s *ServiceNow) Key() domain.AgentKey { return domain.AgentServiceNow }
func (s *ServiceNow) Name() string         { return "ServiceNow" }
func (s *ServiceNow) Icon() string         { return "🔧" }

// Label classifies a task. Billing keywords win over correction keywords.
func (s *ServiceNow) Label(task string) string {
	t := strings.ToLower(task)
	switch {
	case containsAny(t, "billing", "bill"):
		return LabelBillingLookup
	case containsAny(t, "correct", "fix"):
		return LabelBillingCorrection
	case containsAny(t, "ticket"):
		return LabelCreateTicket
	case containsAny(t, "appointment", "schedule"):
		return LabelScheduleAppointment
	default:
		return ProcessingLabel
	}
}

// Handle runs the tool matching the task label and summarizes its result.
func (s *ServiceNow) Handle(ctx context.Context, req Request) (Outcome, error) {
	label := s.Label(req.Task)
	out := Outcome{Label: label, Summary: "Completed"}

	switch label {
	case LabelBillingLookup:
		var res billingLookupResult
		if err := s.registry.ExecuteJSON(ctx, ToolBillingLookup, patientArgs{PatientID: req.PatientID}, &res); err != nil {
			return out, err
		}
		return summarizeBilling(out, res), nil

	case LabelBillingCorrection:
		var res billingCorrectResult
		args := billingCorrectArgs{PatientID: req.PatientID, BillID: req.BillID, CorrectionType: "procedure_code"}
		if err := s.registry.ExecuteJSON(ctx, ToolBillingCorrect, args, &res); err != nil {
			return out, err
		}
		return summarizeCorrection(out, res), nil

	case LabelCreateTicket:
		var res ticketResult
		args := ticketArgs{PatientID: req.PatientID, Category: "general", Summary: req.Task, Priority: "medium"}
		if err := s.registry.ExecuteJSON(ctx, ToolTicketCreate, args, &res); err != nil {
			return out, err
		}
		out.Summary = "Ticket created"
		out.Details = []string{"Ticket: " + res.Ticket.TicketID, "SLA: " + res.SLA}
		out.Reply = fmt.Sprintf("I've opened ticket %s for you; the team will follow up within %s.", res.Ticket.TicketID, res.SLA)
		return out, nil

	case LabelScheduleAppointment:
		var res appointmentResult
		args := appointmentArgs{PatientID: req.PatientID, Department: departmentFor(req.Task), Reason: req.Task}
		if err := s.registry.ExecuteJSON(ctx, ToolAppointmentSchedule, args, &res); err != nil {
			return out, err
		}
		if res.Slot == nil {
			out.Summary = "No availability"
			out.Reply = "I couldn't find an open appointment slot right now."
			return out, nil
		}
		out.Summary = "Slot found"
		out.Details = []string{
			fmt.Sprintf("%s %s", res.Slot.Date, res.Slot.Time),
			res.Slot.Provider,
			res.Slot.Facility,
		}
		out.Reply = fmt.Sprintf("The next opening is with %s at %s on %s at %s.", res.Slot.Provider, res.Slot.Facility, res.Slot.Date, res.Slot.Time)
		return out, nil
	}

	out.Reply = "I've passed your request to our service team."
	return out, nil
}

func summarizeBilling(out Outcome, res billingLookupResult) Outcome {
	if res.Status != "found" || len(res.Records) == 0 {
		out.Summary = "No billing records"
		out.Details = []string{"Verify the patient ID"}
		out.Reply = "I couldn't find any billing records on your account."
		return out
	}

	bill := res.Records[0]
	for _, b := range res.Records {
		if b.Issue != nil {
			bill = b
			break
		}
	}
	out.BillID = bill.BillID
	out.Amount = bill.Amount
	out.Summary = "Found billing issue"
	out.Details = []string{"Bill: " + bill.BillID, "Amount: " + money(bill.Amount)}

	fields := map[string]any{
		"bill_id":    bill.BillID,
		"amount":     money(bill.Amount),
		"date":       bill.Date,
		"department": bill.Department,
		"code":       bill.ProcedureCode,
		"status":     bill.Status,
	}

	if bill.Issue == nil {
		out.Summary = "Billing records found"
		out.Reply = fmt.Sprintf("Your %s bill from %s (%s) for %s looks correct.", bill.Department, bill.Date, bill.BillID, money(bill.Amount))
		out.Visual = card("billing", fields)
		return out
	}

	issue := bill.Issue
	out.Summary = "Found coding error"
	out.Details = append(out.Details,
		fmt.Sprintf("Code: %s → %s", bill.ProcedureCode, issue.CorrectedCode),
		"Missing modifier "+issue.MissingModifier,
	)
	fields["issue"] = "Missing modifier " + issue.MissingModifier
	out.Visual = card("billing", fields)
	out.Reply = fmt.Sprintf(
		"Your %s visit on %s (%s, %s) was billed under code %s without modifier %s, so the claim was denied instead of going to your insurance.",
		strings.ToLower(bill.Department), bill.Date, bill.BillID, money(bill.Amount), bill.ProcedureCode, issue.MissingModifier)
	return out
}

func summarizeCorrection(out Outcome, res billingCorrectResult) Outcome {
	if res.Status != "submitted" || res.Bill == nil {
		out.Summary = "No correction needed"
		out.Details = []string{"No billing errors on file"}
		out.Reply = "I didn't find a billing error that needs correcting."
		return out
	}
	out.BillID = res.Bill.BillID
	out.Amount = res.Bill.Amount
	out.Summary = "Correction submitted"
	out.Details = []string{
		"Reference: " + res.CorrectionID,
		"Bill: " + res.Bill.BillID,
		fmt.Sprintf("Code: %s → %s", res.Bill.ProcedureCode, res.CorrectedCode),
	}
	out.Visual = card("correction", map[string]any{
		"correction_id": res.CorrectionID,
		"bill_id":       res.Bill.BillID,
		"from":          res.Bill.ProcedureCode,
		"to":            res.CorrectedCode,
		"timeline":      res.Timeline,
	})
	out.Reply = fmt.Sprintf(
		"I've submitted a correction to code %s and resubmitted the claim (reference %s); corrections like this typically process in %s.",
		res.CorrectedCode, res.CorrectionID, res.Timeline)
	return out
}

func departmentFor(task string) string {
	t := strings.ToLower(task)
	if containsAny(t, "primary", "physical", "checkup") {
		return "Primary Care"
	}
	return "Cardiology"
}

func (s *ServiceNow) billingLookup(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args patientArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	records := s.data.Bills[args.PatientID]
	status := "found"
	if len(records) == 0 {
		status = "not_found"
	}
	return json.Marshal(billingLookupResult{Status: status, Records: records})
}

func (s *ServiceNow) billingCorrect(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args billingCorrectArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}

	var bill *Bill
	for _, b := range s.data.Bills[args.PatientID] {
		if (args.BillID != "" && b.BillID == args.BillID) || (args.BillID == "" && b.Issue != nil) {
			bill = &b
			break
		}
	}
	if bill == nil || bill.Issue == nil {
		return json.Marshal(billingCorrectResult{Status: "not_found"})
	}
	return json.Marshal(billingCorrectResult{
		Status:        "submitted",
		CorrectionID:  newReference("CORR"),
		Bill:          bill,
		CorrectedCode: bill.Issue.CorrectedCode,
		Timeline:      correctionTimeline,
	})
}

func (s *ServiceNow) ticketCreate(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args ticketArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	sla, ok := ticketSLA[args.Priority]
	if !ok {
		args.Priority, sla = "medium", ticketSLA["medium"]
	}
	return json.Marshal(ticketResult{
		Status: "created",
		Ticket: Ticket{
			TicketID: newReference("TKT"),
			Category: args.Category,
			Summary:  args.Summary,
			Priority: args.Priority,
			Status:   "open",
		},
		SLA:      sla,
		Existing: s.data.Tickets[args.PatientID],
	})
}

func (s *ServiceNow) appointmentSchedule(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args appointmentArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	var matching []Slot
	for _, slot := range s.data.Appointments.AvailableSlots {
		if strings.EqualFold(slot.Department, args.Department) {
			matching = append(matching, slot)
		}
	}
	res := appointmentResult{Status: "no_availability", Available: matching}
	if len(matching) > 0 {
		res.Status = "ready"
		res.Slot = &matching[0]
	}
	return json.Marshal(res)
}
