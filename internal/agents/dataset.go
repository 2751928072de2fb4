package agents

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed mockdata.yaml
var embeddedDataset []byte

// Dataset is the mock back-office data the specialists reason over.
type Dataset struct {
	Patients     map[string]Patient      `yaml:"patients"`
	Insurance    map[string]Insurance    `yaml:"insurance"`
	Bills        map[string][]Bill       `yaml:"bills"`
	Tickets      map[string][]Ticket     `yaml:"tickets"`
	Appointments Appointments            `yaml:"appointments"`
	CareHistory  map[string][]CareRecord `yaml:"care_history"`
	Cases        map[string][]Case       `yaml:"cases"`
}

type Patient struct {
	PatientID        string `yaml:"patient_id" json:"patient_id"`
	FirstName        string `yaml:"first_name" json:"first_name"`
	LastName         string `yaml:"last_name" json:"last_name"`
	DateOfBirth      string `yaml:"date_of_birth" json:"date_of_birth"`
	Phone            string `yaml:"phone" json:"phone"`
	Email            string `yaml:"email" json:"email"`
	PreferredContact string `yaml:"preferred_contact" json:"preferred_contact"`
}

// FullName returns first and last name.
func (p Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

type Insurance struct {
	Carrier             string  `yaml:"carrier" json:"carrier"`
	Plan                string  `yaml:"plan" json:"plan"`
	PolicyNumber        string  `yaml:"policy_number" json:"policy_number"`
	Status              string  `yaml:"status" json:"status"`
	Deductible          float64 `yaml:"deductible" json:"deductible"`
	DeductibleMet       bool    `yaml:"deductible_met" json:"deductible_met"`
	DeductibleRemaining float64 `yaml:"deductible_remaining" json:"deductible_remaining"`
	CoveragePercent     int     `yaml:"coverage_percent" json:"coverage_percent"`
	Copay               float64 `yaml:"copay" json:"copay"`
}

// PatientResponsibility is what the patient owes for a charge under this plan.
func (i Insurance) PatientResponsibility(amount float64) float64 {
	remaining := 0.0
	if !i.DeductibleMet {
		remaining = min(i.DeductibleRemaining, amount)
	}
	share := float64(100-i.CoveragePercent) / 100
	return remaining + (amount-remaining)*share + i.Copay
}

type Bill struct {
	BillID        string     `yaml:"bill_id" json:"bill_id"`
	Date          string     `yaml:"date" json:"date"`
	Department    string     `yaml:"department" json:"department"`
	Provider      string     `yaml:"provider" json:"provider"`
	ProcedureCode string     `yaml:"procedure_code" json:"procedure_code"`
	Description   string     `yaml:"description" json:"description"`
	Amount        float64    `yaml:"amount" json:"amount"`
	InsurancePaid float64    `yaml:"insurance_paid" json:"insurance_paid"`
	Status        string     `yaml:"status" json:"status"`
	DenialReason  string     `yaml:"denial_reason,omitempty" json:"denial_reason,omitempty"`
	Issue         *BillIssue `yaml:"issue,omitempty" json:"issue,omitempty"`
}

type BillIssue struct {
	Type            string `yaml:"type" json:"type"`
	MissingModifier string `yaml:"missing_modifier" json:"missing_modifier"`
	CorrectedCode   string `yaml:"corrected_code" json:"corrected_code"`
}

type Ticket struct {
	TicketID string `yaml:"ticket_id" json:"ticket_id"`
	Category string `yaml:"category" json:"category"`
	Summary  string `yaml:"summary" json:"summary"`
	Priority string `yaml:"priority" json:"priority"`
	Status   string `yaml:"status" json:"status"`
}

type Appointments struct {
	AvailableSlots []Slot `yaml:"available_slots"`
}

type Slot struct {
	Date       string `yaml:"date" json:"date"`
	Time       string `yaml:"time" json:"time"`
	Department string `yaml:"department" json:"department"`
	Provider   string `yaml:"provider" json:"provider"`
	Facility   string `yaml:"facility" json:"facility"`
}

type CareRecord struct {
	Date       string `yaml:"date" json:"date"`
	Provider   string `yaml:"provider" json:"provider"`
	Department string `yaml:"department" json:"department"`
	Summary    string `yaml:"summary" json:"summary"`
}

type Case struct {
	CaseID  string `yaml:"case_id" json:"case_id"`
	Type    string `yaml:"case_type" json:"case_type"`
	Subject string `yaml:"subject" json:"subject"`
	Team    string `yaml:"team" json:"team"`
	Status  string `yaml:"status" json:"status"`
}

// LoadDataset parses the dataset at path, or the embedded one when path is empty.
func LoadDataset(path string) (*Dataset, error) {
	data := embeddedDataset
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read mock data: %w", err)
		}
	}
	return ParseDataset(data)
}

// ParseDataset decodes a YAML dataset.
func ParseDataset(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse mock data: %w", err)
	}
	if len(ds.Patients) == 0 {
		return nil, fmt.Errorf("mock data has no patients")
	}
	return &ds, nil
}

// Patient looks up a patient by ID.
func (d *Dataset) Patient(patientID string) (Patient, bool) {
	p, ok := d.Patients[patientID]
	return p, ok
}
