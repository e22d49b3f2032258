package documents

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridian-rcm/platform/internal/shared/errors"
	"github.com/meridian-rcm/platform/internal/shared/types"
)

// Repository provides database operations for document requirements
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new document requirement repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert inserts or updates a requirement, keyed by (case, doc type)
func (r *Repository) Upsert(ctx context.Context, req *Requirement) error {
	query := `
		INSERT INTO documents.requirements (
			case_id, doc_type, required, status, retrieved_at
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (case_id, doc_type) DO UPDATE SET
			required = EXCLUDED.required,
			status = EXCLUDED.status,
			retrieved_at = EXCLUDED.retrieved_at`

	_, err := r.pool.Exec(ctx, query,
		req.CaseID, req.DocType, req.Required, req.Status, req.RetrievedAt,
	)

	if err != nil {
		return errors.Wrap(err, "failed to upsert document requirement")
	}

	return nil
}

// FindByCase returns all requirements for a case
func (r *Repository) FindByCase(ctx context.Context, caseID types.ID) ([]Requirement, error) {
	query := `
		SELECT case_id, doc_type, required, status, retrieved_at
		FROM documents.requirements
		WHERE case_id = $1
		ORDER BY doc_type`

	rows, err := r.pool.Query(ctx, query, caseID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list document requirements")
	}
	defer rows.Close()

	var reqs []Requirement
	for rows.Next() {
		var req Requirement
		err := rows.Scan(&req.CaseID, &req.DocType, &req.Required, &req.Status, &req.RetrievedAt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan document requirement")
		}
		reqs = append(reqs, req)
	}

	return reqs, nil
}

// MemoryStore is an in-memory Store for tests and local development
type MemoryStore struct {
	mu   sync.RWMutex
	reqs map[string]Requirement
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reqs: make(map[string]Requirement)}
}

func memKey(caseID types.ID, docType string) string {
	return caseID.String() + "|" + docType
}

// Upsert inserts or updates a requirement
func (m *MemoryStore) Upsert(ctx context.Context, req *Requirement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs[memKey(req.CaseID, req.DocType)] = *req
	return nil
}

// FindByCase returns all requirements for a case
func (m *MemoryStore) FindByCase(ctx context.Context, caseID types.ID) ([]Requirement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var reqs []Requirement
	for _, req := range m.reqs {
		if req.CaseID == caseID {
			reqs = append(reqs, req)
		}
	}
	return reqs, nil
}
