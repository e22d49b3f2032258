package policy

import (
	"fmt"
	"sync"
	"time"

	"github.com/meridian-rcm/platform/internal/shared/types"
)

// PayerPolicy describes how a payer handles one procedure category
type PayerPolicy struct {
	PayerCode         string        `json:"payer_code"`
	ProcedureCategory string        `json:"procedure_category"`
	PARequired        bool          `json:"pa_required"`
	ResponseSLA       time.Duration `json:"response_sla"`
	RequiredDocuments []string      `json:"required_documents"`
}

// FeeScheduleEntry is the contracted rate for a procedure under a payer
type FeeScheduleEntry struct {
	PayerCode     string      `json:"payer_code"`
	ProcedureCode string      `json:"procedure_code"`
	AllowedAmount types.Money `json:"allowed_amount"`
	EffectiveFrom time.Time   `json:"effective_from"`
}

// Defaults applied when no payer-specific policy exists
const (
	DefaultResponseSLA = 14 * 24 * time.Hour
)

// Store holds payer policies and fee schedules. Lookups go through
// immutable snapshots so a task evaluated mid-update sees one
// consistent policy set.
type Store struct {
	mu       sync.RWMutex
	policies map[string]PayerPolicy
	fees     map[string]FeeScheduleEntry
	version  int64
}

// Snapshot is a point-in-time view of the store. It is safe for
// concurrent use and never changes after creation.
type Snapshot struct {
	policies map[string]PayerPolicy
	fees     map[string]FeeScheduleEntry
	Version  int64
	TakenAt  time.Time
}

// NewStore creates an empty policy store
func NewStore() *Store {
	return &Store{
		policies: make(map[string]PayerPolicy),
		fees:     make(map[string]FeeScheduleEntry),
	}
}

func policyKey(payerCode, procedureCategory string) string {
	return payerCode + "|" + procedureCategory
}

func feeKey(payerCode, procedureCode string) string {
	return payerCode + "|" + procedureCode
}

// UpsertPolicy adds or replaces a payer policy
func (s *Store) UpsertPolicy(p PayerPolicy) error {
	if p.PayerCode == "" || p.ProcedureCategory == "" {
		return fmt.Errorf("payer code and procedure category are required")
	}
	if p.ResponseSLA <= 0 {
		p.ResponseSLA = DefaultResponseSLA
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[policyKey(p.PayerCode, p.ProcedureCategory)] = p
	s.version++
	return nil
}

// UpsertFeeSchedule adds or replaces a fee schedule entry
func (s *Store) UpsertFeeSchedule(e FeeScheduleEntry) error {
	if e.PayerCode == "" || e.ProcedureCode == "" {
		return fmt.Errorf("payer code and procedure code are required")
	}
	if e.AllowedAmount < 0 {
		return fmt.Errorf("allowed amount must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fees[feeKey(e.PayerCode, e.ProcedureCode)] = e
	s.version++
	return nil
}

// Snapshot returns an immutable point-in-time view of the store
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policies := make(map[string]PayerPolicy, len(s.policies))
	for k, v := range s.policies {
		policies[k] = v
	}
	fees := make(map[string]FeeScheduleEntry, len(s.fees))
	for k, v := range s.fees {
		fees[k] = v
	}

	return &Snapshot{
		policies: policies,
		fees:     fees,
		Version:  s.version,
		TakenAt:  time.Now().UTC(),
	}
}

// Policy returns the policy for a payer and procedure category.
// The second return value is false when no specific policy exists.
func (sn *Snapshot) Policy(payerCode, procedureCategory string) (PayerPolicy, bool) {
	p, ok := sn.policies[policyKey(payerCode, procedureCategory)]
	return p, ok
}

// PARequired reports whether prior authorization is required.
// Unknown payer/category pairs default to requiring authorization.
func (sn *Snapshot) PARequired(payerCode, procedureCategory string) bool {
	p, ok := sn.Policy(payerCode, procedureCategory)
	if !ok {
		return true
	}
	return p.PARequired
}

// ResponseSLA returns the payer response SLA for a procedure category
func (sn *Snapshot) ResponseSLA(payerCode, procedureCategory string) time.Duration {
	p, ok := sn.Policy(payerCode, procedureCategory)
	if !ok {
		return DefaultResponseSLA
	}
	return p.ResponseSLA
}

// RequiredDocuments returns the document types the payer requires
// before a submission for the procedure category
func (sn *Snapshot) RequiredDocuments(payerCode, procedureCategory string) []string {
	p, ok := sn.Policy(payerCode, procedureCategory)
	if !ok {
		return nil
	}
	docs := make([]string, len(p.RequiredDocuments))
	copy(docs, p.RequiredDocuments)
	return docs
}

// AllowedAmount returns the contracted rate for a procedure under a
// payer. The second return value is false when the fee schedule has
// no entry, in which case expected reimbursement cannot be computed.
func (sn *Snapshot) AllowedAmount(payerCode, procedureCode string) (types.Money, bool) {
	e, ok := sn.fees[feeKey(payerCode, procedureCode)]
	if !ok {
		return 0, false
	}
	return e.AllowedAmount, true
}
