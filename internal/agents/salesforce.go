package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xiaot623/carechat/internal/domain"
	"github.com/xiaot623/carechat/internal/tools"
)

// Salesforce tool names.
const (
	ToolPatientLookup   = "salesforce.patient_lookup"
	ToolInsuranceVerify = "salesforce.insurance_verify"
	ToolCareHistory     = "salesforce.care_history"
	ToolCaseCreate      = "salesforce.case_create"
)

// Salesforce labels.
const (
	LabelInsuranceVerification = "Insurance Verification"
	LabelPatientLookup         = "Patient Lookup"
	LabelCreateCase            = "Create Case"
	LabelCareHistory           = "Care History"
)

// caseTeams routes a case type to the team that owns it.
var caseTeams = map[string]string{
	"billing_dispute":   "Billing Resolution Team",
	"appointment_issue": "Patient Access",
	"general":           "Patient Services",
}

type patientLookupResult struct {
	Status  string   `json:"status"`
	Patient *Patient `json:"patient_record,omitempty"`
}

type insuranceArgs struct {
	PatientID string  `json:"patient_id"`
	Amount    float64 `json:"amount,omitempty"`
}

type insuranceResult struct {
	Status                string     `json:"status"`
	Insurance             *Insurance `json:"insurance_record,omitempty"`
	PatientResponsibility *float64   `json:"patient_responsibility,omitempty"`
}

type careHistoryResult struct {
	Status  string       `json:"status"`
	Records []CareRecord `json:"care_records"`
}

type caseArgs struct {
	PatientID string `json:"patient_id"`
	CaseType  string `json:"case_type"`
	Subject   string `json:"subject"`
}

type caseResult struct {
	Status   string `json:"status"`
	Case     Case   `json:"new_case"`
	Existing []Case `json:"existing_cases"`
	Contact  string `json:"preferred_contact,omitempty"`
}

// Salesforce handles patient records, insurance and cases.
type Salesforce struct {
	data     *Dataset
	registry *tools.Registry
}

// NewSalesforce registers the Salesforce tools.
func NewSalesforce(ds *Dataset, registry *tools.Registry) (*Salesforce, error) {
	sf := &Salesforce{data: ds, registry: registry}
	for name, exec := range map[string]tools.ExecutorFunc{
		ToolPatientLookup:   sf.patientLookup,
		ToolInsuranceVerify: sf.insuranceVerify,
		ToolCareHistory:     sf.careHistory,
		ToolCaseCreate:      sf.caseCreate,
	} {
		if err := registry.Register(name, exec); err != nil {
			return nil, err
		}
	}
	return sf, nil
}

func (s *Salesforce) Key() domain.AgentKey { return domain.AgentSalesforce }
func (s *Salesforce) Name() string         { return "Salesforce" }
func (s *Salesforce) Icon() string         { return "👤" }

// Label classifies a task.
func (s *Salesforce) Label(task string) string {
	t := strings.ToLower(task)
	switch {
	case containsAny(t, "insurance", "coverage"):
		return LabelInsuranceVerification
	case strings.Contains(t, "patient") && strings.Contains(t, "record"):
		return LabelPatientLookup
	case strings.Contains(t, "case"):
		return LabelCreateCase
	case strings.Contains(t, "history"):
		return LabelCareHistory
	default:
		return ProcessingLabel
	}
}

// Handle runs the tool matching the task label and summarizes its result.
func (s *Salesforce) Handle(ctx context.Context, req Request) (Outcome, error) {
	label := s.Label(req.Task)
	out := Outcome{Label: label, Summary: "Completed", BillID: req.BillID, Amount: req.Amount}

	switch label {
	case LabelInsuranceVerification:
		var res insuranceResult
		if err := s.registry.ExecuteJSON(ctx, ToolInsuranceVerify, insuranceArgs{PatientID: req.PatientID, Amount: req.Amount}, &res); err != nil {
			return out, err
		}
		return summarizeInsurance(out, res), nil

	case LabelPatientLookup:
		var res patientLookupResult
		if err := s.registry.ExecuteJSON(ctx, ToolPatientLookup, patientArgs{PatientID: req.PatientID}, &res); err != nil {
			return out, err
		}
		if res.Patient == nil {
			out.Summary = "Patient not found"
			out.Details = []string{"Verify the patient ID"}
			out.Reply = "I couldn't find a patient record with that ID."
			return out, nil
		}
		out.Summary = "Patient found"
		out.Details = []string{"Patient: " + res.Patient.FullName(), "Contact: " + res.Patient.PreferredContact}
		out.Reply = fmt.Sprintf("I have your record on file, %s.", res.Patient.FirstName)
		return out, nil

	case LabelCreateCase:
		var res caseResult
		args := caseArgs{PatientID: req.PatientID, CaseType: caseTypeFor(req.Task), Subject: req.Task}
		if err := s.registry.ExecuteJSON(ctx, ToolCaseCreate, args, &res); err != nil {
			return out, err
		}
		out.Summary = "Case created"
		out.Details = []string{"Case: " + res.Case.CaseID, "Team: " + res.Case.Team}
		out.Visual = card("case", map[string]any{
			"case_id": res.Case.CaseID,
			"team":    res.Case.Team,
			"status":  res.Case.Status,
		})
		out.Reply = fmt.Sprintf("I've also opened case %s with our %s so you can track it", res.Case.CaseID, res.Case.Team)
		if res.Contact != "" {
			out.Reply += fmt.Sprintf("; updates will come by %s", res.Contact)
		}
		out.Reply += "."
		return out, nil

	case LabelCareHistory:
		var res careHistoryResult
		if err := s.registry.ExecuteJSON(ctx, ToolCareHistory, patientArgs{PatientID: req.PatientID}, &res); err != nil {
			return out, err
		}
		if len(res.Records) == 0 {
			out.Summary = "No care history"
			out.Reply = "I don't see any previous visits on file."
			return out, nil
		}
		latest := res.Records[0]
		out.Summary = "Care history retrieved"
		out.Details = []string{fmt.Sprintf("Visits: %d", len(res.Records)), "Latest: " + latest.Date}
		out.Reply = fmt.Sprintf("Your most recent visit was on %s with %s (%s): %s", latest.Date, latest.Provider, latest.Department, latest.Summary)
		return out, nil
	}

	out.Reply = "I've passed your request to our patient services team."
	return out, nil
}

func summarizeInsurance(out Outcome, res insuranceResult) Outcome {
	if res.Status != "found" || res.Insurance == nil {
		out.Summary = "No insurance on file"
		out.Details = []string{"Verify the patient ID"}
		out.Reply = "I couldn't find an insurance policy on your account."
		return out
	}

	ins := res.Insurance
	carrier := strings.TrimSpace(ins.Carrier + " " + ins.Plan)
	status := ins.Status
	if status != "" {
		status = strings.ToUpper(status[:1]) + status[1:]
	}
	deductible := "Not met"
	if ins.DeductibleMet {
		deductible = "Met"
	}

	out.Summary = "Insurance verified"
	out.Details = []string{
		"Status: " + status,
		"Carrier: " + carrier,
		"Deductible: " + deductible,
		fmt.Sprintf("Coverage: %d%%", ins.CoveragePercent),
	}
	fields := map[string]any{
		"carrier":    carrier,
		"status":     status,
		"deductible": deductible,
		"coverage":   fmt.Sprintf("%d%%", ins.CoveragePercent),
	}

	if ins.Status != "active" {
		out.Summary = "Coverage inactive"
		out.Visual = card("insurance", fields)
		out.Reply = fmt.Sprintf("Your %s policy shows as %s, so it may not cover this visit.", carrier, ins.Status)
		return out
	}

	out.Reply = fmt.Sprintf("Your %s plan is active", carrier)
	if ins.DeductibleMet {
		out.Reply += " and your deductible is met"
	}
	out.Reply += fmt.Sprintf(", so it covers %d%% of the visit", ins.CoveragePercent)

	if res.PatientResponsibility != nil {
		owes := money(*res.PatientResponsibility)
		out.Details = append(out.Details, "Patient owes: "+owes)
		fields["patient_owes"] = owes
		out.Reply += fmt.Sprintf(". Once the claim is processed correctly you should owe about %s instead of %s", owes, money(out.Amount))
	}
	out.Reply += "."
	out.Visual = card("insurance", fields)
	return out
}

func caseTypeFor(task string) string {
	t := strings.ToLower(task)
	switch {
	case containsAny(t, "billing", "bill", "charge", "correction"):
		return "billing_dispute"
	case containsAny(t, "appointment", "schedule"):
		return "appointment_issue"
	default:
		return "general"
	}
}

func (s *Salesforce) patientLookup(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args patientArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	p, ok := s.data.Patient(args.PatientID)
	if !ok {
		return json.Marshal(patientLookupResult{Status: "not_found"})
	}
	return json.Marshal(patientLookupResult{Status: "found", Patient: &p})
}

func (s *Salesforce) insuranceVerify(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args insuranceArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	ins, ok := s.data.Insurance[args.PatientID]
	if !ok {
		return json.Marshal(insuranceResult{Status: "not_found"})
	}
	res := insuranceResult{Status: "found", Insurance: &ins}
	if args.Amount > 0 {
		owes := ins.PatientResponsibility(args.Amount)
		res.PatientResponsibility = &owes
	}
	return json.Marshal(res)
}

func (s *Salesforce) careHistory(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args patientArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	records := s.data.CareHistory[args.PatientID]
	status := "found"
	if len(records) == 0 {
		status = "empty"
	}
	return json.Marshal(careHistoryResult{Status: status, Records: records})
}

func (s *Salesforce) caseCreate(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args caseArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	team, ok := caseTeams[args.CaseType]
	if !ok {
		args.CaseType, team = "general", caseTeams["general"]
	}
	res := caseResult{
		Status: "created",
		Case: Case{
			CaseID:  newReference("CASE"),
			Type:    args.CaseType,
			Subject: args.Subject,
			Team:    team,
			Status:  "open",
		},
		Existing: s.data.Cases[args.PatientID],
	}
	if p, ok := s.data.Patient(args.PatientID); ok {
		res.Contact = p.PreferredContact
	}
	return json.Marshal(res)
}
