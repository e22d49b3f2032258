package reconciliation

import (
	"context"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridian-rcm/platform/internal/shared/errors"
	"github.com/meridian-rcm/platform/internal/shared/types"
)

// Repository provides database operations for reconciliation records
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new reconciliation repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `id, case_id, remittance_id, payer_code, fee_schedule_ref,
	expected_cents, posted_cents, variance_cents, classification, tolerance_bps,
	corrects_record_id, created_at`

// Save inserts a record. Records are immutable; there is no update.
func (r *Repository) Save(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO reconciliation.records (
			id, case_id, remittance_id, payer_code, fee_schedule_ref,
			expected_cents, posted_cents, variance_cents, classification, tolerance_bps,
			corrects_record_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.CaseID, rec.RemittanceID, rec.PayerCode, rec.FeeScheduleRef,
		rec.Expected, rec.Posted, rec.Variance, rec.Classification, rec.ToleranceBps,
		rec.CorrectsRecordID, rec.CreatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("remittance already reconciled for this case")
		}
		return errors.Wrap(err, "failed to save reconciliation record")
	}

	return nil
}

// FindByID finds a record by ID
func (r *Repository) FindByID(ctx context.Context, id types.ID) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM reconciliation.records WHERE id = $1`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("reconciliation record", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find reconciliation record")
	}
	return rec, nil
}

// FindByRemittance finds the record for a (case, remittance) pair
func (r *Repository) FindByRemittance(ctx context.Context, caseID types.ID, remittanceID string) (*Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM reconciliation.records
		WHERE case_id = $1 AND remittance_id = $2`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, caseID, remittanceID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("reconciliation record", remittanceID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find reconciliation record")
	}
	return rec, nil
}

// FindByCase returns all records for a case, newest first
func (r *Repository) FindByCase(ctx context.Context, caseID types.ID) ([]Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM reconciliation.records
		WHERE case_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, caseID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reconciliation records")
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ListExceptions returns non-exact records for the review feed
func (r *Repository) ListExceptions(ctx context.Context, limit, offset int) ([]Record, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM reconciliation.records WHERE classification != 'exact'`
	if err := r.pool.QueryRow(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count exceptions")
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT ` + recordColumns + `
		FROM reconciliation.records
		WHERE classification != 'exact'
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list exceptions")
	}
	defer rows.Close()

	records, err := collectRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	rec := &Record{}
	err := row.Scan(
		&rec.ID, &rec.CaseID, &rec.RemittanceID, &rec.PayerCode, &rec.FeeScheduleRef,
		&rec.Expected, &rec.Posted, &rec.Variance, &rec.Classification, &rec.ToleranceBps,
		&rec.CorrectsRecordID, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan reconciliation record")
		}
		records = append(records, *rec)
	}
	return records, nil
}

// MemoryStore is an in-memory Store for tests and local development
type MemoryStore struct {
	mu      sync.RWMutex
	records map[types.ID]Record
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[types.ID]Record)}
}

// Save inserts a record
func (m *MemoryStore) Save(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.records {
		if existing.CaseID == rec.CaseID && existing.RemittanceID == rec.RemittanceID {
			return errors.Conflict("remittance already reconciled for this case")
		}
	}
	m.records[rec.ID] = *rec
	return nil
}

// FindByID finds a record by ID
func (m *MemoryStore) FindByID(ctx context.Context, id types.ID) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, errors.NotFound("reconciliation record", id.String())
	}
	return &rec, nil
}

// FindByRemittance finds the record for a (case, remittance) pair
func (m *MemoryStore) FindByRemittance(ctx context.Context, caseID types.ID, remittanceID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.records {
		if rec.CaseID == caseID && rec.RemittanceID == remittanceID {
			r := rec
			return &r, nil
		}
	}
	return nil, errors.NotFound("reconciliation record", remittanceID)
}

// FindByCase returns all records for a case
func (m *MemoryStore) FindByCase(ctx context.Context, caseID types.ID) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []Record
	for _, rec := range m.records {
		if rec.CaseID == caseID {
			records = append(records, rec)
		}
	}
	return records, nil
}

// ListExceptions returns non-exact records
func (m *MemoryStore) ListExceptions(ctx context.Context, limit, offset int) ([]Record, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []Record
	for _, rec := range m.records {
		if rec.Classification != ClassificationExact {
			records = append(records, rec)
		}
	}
	return records, len(records), nil
}
