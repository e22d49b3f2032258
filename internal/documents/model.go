package documents

import (
	"time"

	"github.com/meridian-rcm/platform/internal/shared/types"
)

// Status defines the retrieval status of a document requirement
type Status string

const (
	StatusMissing   Status = "missing"
	StatusRetrieved Status = "retrieved"
)

// Requirement tracks one document type for a case. Required entries
// come from payer policy; unsolicited documents are stored with
// Required=false and never affect completeness.
type Requirement struct {
	CaseID      types.ID   `json:"case_id"`
	DocType     string     `json:"doc_type"`
	Required    bool       `json:"required"`
	Status      Status     `json:"status"`
	RetrievedAt *time.Time `json:"retrieved_at,omitempty"`
}
