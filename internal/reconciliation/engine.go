package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-rcm/platform/internal/policy"
	apperrors "github.com/meridian-rcm/platform/internal/shared/errors"
	"github.com/meridian-rcm/platform/internal/shared/events"
	"github.com/meridian-rcm/platform/internal/shared/metrics"
	"github.com/meridian-rcm/platform/internal/shared/types"
)

// Store persists reconciliation records
type Store interface {
	Save(ctx context.Context, rec *Record) error
	FindByID(ctx context.Context, id types.ID) (*Record, error)
	FindByRemittance(ctx context.Context, caseID types.ID, remittanceID string) (*Record, error)
	FindByCase(ctx context.Context, caseID types.ID) ([]Record, error)
	ListExceptions(ctx context.Context, limit, offset int) ([]Record, int, error)
}

// Engine classifies posted remittances against contracted rates
type Engine struct {
	store Store
	bus   events.EventBus
}

// NewEngine creates a reconciliation engine
func NewEngine(store Store, bus events.EventBus) *Engine {
	return &Engine{store: store, bus: bus}
}

// Classify is the pure classification function. Variance within the
// tolerance band of the expected amount counts as exact.
func Classify(expected, posted types.Money, toleranceBps int) (types.Money, Classification, error) {
	if expected < 0 {
		return 0, "", fmt.Errorf("expected amount must not be negative")
	}
	if toleranceBps < 0 {
		return 0, "", fmt.Errorf("tolerance must not be negative")
	}

	variance := posted - expected
	tolerance := expected.Cents() * int64(toleranceBps) / 10000

	switch {
	case variance.Abs().Cents() <= tolerance:
		return variance, ClassificationExact, nil
	case variance < 0:
		return variance, ClassificationUnderpayment, nil
	default:
		return variance, ClassificationOverpayment, nil
	}
}

// Reconcile classifies one posted remittance and persists the record.
// Non-exact classifications publish a variance exception referencing
// the fee-schedule entry used.
func (e *Engine) Reconcile(ctx context.Context, caseID types.ID, remittanceID, payerCode, feeScheduleRef string, expected, posted types.Money, toleranceBps int) (*Record, error) {
	if caseID.IsZero() {
		return nil, fmt.Errorf("case ID is required")
	}
	if remittanceID == "" {
		return nil, fmt.Errorf("remittance ID is required")
	}

	if existing, err := e.store.FindByRemittance(ctx, caseID, remittanceID); err == nil && existing != nil {
		return nil, apperrors.Conflict(fmt.Sprintf("remittance %s already reconciled for this case", remittanceID))
	}

	variance, classification, err := Classify(expected, posted, toleranceBps)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ID:             types.NewID(),
		CaseID:         caseID,
		RemittanceID:   remittanceID,
		PayerCode:      payerCode,
		FeeScheduleRef: feeScheduleRef,
		Expected:       expected,
		Posted:         posted,
		Variance:       variance,
		Classification: classification,
		ToleranceBps:   toleranceBps,
		CreatedAt:      time.Now(),
	}

	if err := e.store.Save(ctx, rec); err != nil {
		return nil, err
	}

	metrics.RecordReconciliation(string(classification))
	e.emitException(ctx, rec)

	return rec, nil
}

// Correct records a correction to an earlier record. The original is
// untouched; the new record references it.
func (e *Engine) Correct(ctx context.Context, originalID types.ID, posted types.Money, toleranceBps int) (*Record, error) {
	original, err := e.store.FindByID(ctx, originalID)
	if err != nil {
		return nil, err
	}

	variance, classification, err := Classify(original.Expected, posted, toleranceBps)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ID:               types.NewID(),
		CaseID:           original.CaseID,
		RemittanceID:     fmt.Sprintf("%s/corr-%d", original.RemittanceID, time.Now().Unix()),
		PayerCode:        original.PayerCode,
		FeeScheduleRef:   original.FeeScheduleRef,
		Expected:         original.Expected,
		Posted:           posted,
		Variance:         variance,
		Classification:   classification,
		ToleranceBps:     toleranceBps,
		CorrectsRecordID: &original.ID,
		CreatedAt:        time.Now(),
	}

	if err := e.store.Save(ctx, rec); err != nil {
		return nil, err
	}

	metrics.RecordReconciliation(string(classification))
	e.emitException(ctx, rec)

	return rec, nil
}

// ReconcileBatch processes each entry independently. An entry failure
// is collected, never fatal to its siblings. The policy snapshot keeps
// every entry's expected amount consistent even if fee schedules
// change mid-batch.
func (e *Engine) ReconcileBatch(ctx context.Context, entries []BatchEntry, snap *policy.Snapshot, toleranceBps int) BatchResult {
	result := BatchResult{}

	for _, entry := range entries {
		rec, err := e.reconcileEntry(ctx, entry, snap, toleranceBps)
		if err != nil {
			metrics.RecordReconciliationEntryError()
			result.Errors = append(result.Errors, EntryError{
				RemittanceID: entry.RemittanceID,
				Reason:       err.Error(),
			})
			continue
		}
		result.Records = append(result.Records, *rec)
	}

	return result
}

func (e *Engine) reconcileEntry(ctx context.Context, entry BatchEntry, snap *policy.Snapshot, toleranceBps int) (*Record, error) {
	if entry.ProcedureCode == "" {
		return nil, apperrors.ReconciliationEntry(entry.RemittanceID, fmt.Errorf("procedure code is required"))
	}

	expected, ok := snap.AllowedAmount(entry.PayerCode, entry.ProcedureCode)
	if !ok {
		return nil, apperrors.ReconciliationEntry(entry.RemittanceID,
			fmt.Errorf("no fee schedule entry for payer %s procedure %s", entry.PayerCode, entry.ProcedureCode))
	}

	feeRef := fmt.Sprintf("%s/%s", entry.PayerCode, entry.ProcedureCode)
	rec, err := e.Reconcile(ctx, entry.CaseID, entry.RemittanceID, entry.PayerCode, feeRef, expected, entry.Posted, toleranceBps)
	if err != nil {
		return nil, apperrors.ReconciliationEntry(entry.RemittanceID, err)
	}
	return rec, nil
}

// emitException publishes non-exact records for downstream review
func (e *Engine) emitException(ctx context.Context, rec *Record) {
	if rec.Classification == ClassificationExact || e.bus == nil {
		return
	}

	exception := Exception{
		RecordID:       rec.ID,
		CaseID:         rec.CaseID,
		RemittanceID:   rec.RemittanceID,
		Classification: rec.Classification,
		Variance:       rec.Variance,
		FeeScheduleRef: rec.FeeScheduleRef,
	}

	event := events.NewEvent("reconciliation.variance_exception", "reconciliation-engine", exception)
	if err := e.bus.Publish(ctx, event); err != nil {
		fmt.Printf("Failed to publish variance exception: %v\n", err)
	}
}
