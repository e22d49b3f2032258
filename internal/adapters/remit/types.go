package remit

import (
	"time"

	"github.com/meridian-rcm/platform/internal/shared/types"
)

// EligibilityRequest asks a clearinghouse whether a member is covered
// for a procedure category
type EligibilityRequest struct {
	PatientRef        string `json:"patient_ref"`
	MemberID          string `json:"member_id"`
	PayerCode         string `json:"payer_code"`
	ProcedureCategory string `json:"procedure_category"`
	ServiceDate       string `json:"service_date,omitempty"`
}

// EligibilityResult is the normalized coverage determination
type EligibilityResult struct {
	Covered       bool   `json:"covered"`
	PARequired    bool   `json:"pa_required"`
	PlanName      string `json:"plan_name,omitempty"`
	GroupNumber   string `json:"group_number,omitempty"`
	DenialReason  string `json:"denial_reason,omitempty"`
	PayerTraceRef string `json:"payer_trace_ref,omitempty"`
}

// SummaryRequest asks for a clinical summary of the chart
type SummaryRequest struct {
	PatientRef string   `json:"patient_ref"`
	Encounter  string   `json:"encounter_type"`
	NoteRefs   []string `json:"note_refs,omitempty"`
}

// ClinicalSummary is the normalized summarization output, carrying
// the severity signals that feed prioritization
type ClinicalSummary struct {
	Summary                     string `json:"summary"`
	PainLevel                   int    `json:"pain_level"`
	ProgressionRisk             bool   `json:"progression_risk"`
	ConservativeTreatmentMonths int    `json:"conservative_treatment_months"`
}

// CodingRequest asks for procedure code suggestions
type CodingRequest struct {
	PatientRef        string `json:"patient_ref"`
	ProcedureCategory string `json:"procedure_category"`
	ClinicalSummary   string `json:"clinical_summary,omitempty"`
}

// CodingResult is the normalized coding suggestion
type CodingResult struct {
	ProcedureCode  string   `json:"procedure_code"`
	ProcedureName  string   `json:"procedure_name"`
	DiagnosisCodes []string `json:"diagnosis_codes,omitempty"`
}

// PostedRemittance is one payment line from the payer remittance feed
type PostedRemittance struct {
	RemittanceID  string      `json:"remittance_id"`
	CaseID        types.ID    `json:"case_id"`
	PayerCode     string      `json:"payer_code"`
	ProcedureCode string      `json:"procedure_code"`
	Posted        types.Money `json:"posted"`
	PostedAt      time.Time   `json:"posted_at"`
	SourceSystem  string      `json:"source_system"`
}
