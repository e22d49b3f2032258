package reconciliation

import (
	"time"

	"github.com/meridian-rcm/platform/internal/shared/types"
)

// Classification defines the variance classification of a record
type Classification string

const (
	ClassificationExact        Classification = "exact"
	ClassificationUnderpayment Classification = "underpayment"
	ClassificationOverpayment  Classification = "overpayment"
)

// Record matches expected reimbursement against a posted remittance.
// Once classified a record never changes; corrections are new records
// referencing the original.
type Record struct {
	ID           types.ID `json:"id"`
	CaseID       types.ID `json:"case_id"`
	RemittanceID string   `json:"remittance_id"`
	PayerCode    string   `json:"payer_code"`

	// FeeScheduleRef names the contract entry the expected amount came from
	FeeScheduleRef string `json:"fee_schedule_ref"`

	Expected       types.Money    `json:"expected"`
	Posted         types.Money    `json:"posted"`
	Variance       types.Money    `json:"variance"` // posted - expected
	Classification Classification `json:"classification"`
	ToleranceBps   int            `json:"tolerance_bps"`

	CorrectsRecordID *types.ID `json:"corrects_record_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Exception surfaces a non-exact record for downstream review
type Exception struct {
	RecordID       types.ID       `json:"record_id"`
	CaseID         types.ID       `json:"case_id"`
	RemittanceID   string         `json:"remittance_id"`
	Classification Classification `json:"classification"`
	Variance       types.Money    `json:"variance"`
	FeeScheduleRef string         `json:"fee_schedule_ref"`
}

// BatchEntry is one remittance line submitted for batch reconciliation
type BatchEntry struct {
	CaseID        types.ID    `json:"case_id"`
	RemittanceID  string      `json:"remittance_id"`
	PayerCode     string      `json:"payer_code"`
	ProcedureCode string      `json:"procedure_code"`
	Posted        types.Money `json:"posted"`
}

// EntryError is a per-entry batch failure; siblings are unaffected
type EntryError struct {
	RemittanceID string `json:"remittance_id"`
	Reason       string `json:"reason"`
}

// BatchResult carries partial-failure semantics: successful records
// alongside per-entry errors
type BatchResult struct {
	Records []Record     `json:"records"`
	Errors  []EntryError `json:"errors"`
}
