package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridian-rcm/platform/internal/cases/domain"
	"github.com/meridian-rcm/platform/internal/confidence"
	"github.com/meridian-rcm/platform/internal/shared/errors"
	"github.com/meridian-rcm/platform/internal/shared/metrics"
	"github.com/meridian-rcm/platform/internal/shared/types"
)

// PostgresRepository implements domain.Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL case repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const caseColumns = `id, case_number, patient_ref, encounter_type, provider_ref, payer_code,
	procedure_category, procedure_code, procedure_name, coding_tier, status, priority_tier,
	urgency_score, sla_deadline, sla_breached, review_flag, assignee, blocking_reason,
	created_at, updated_at`

// Save saves a new case with its pending timeline events
func (r *PostgresRepository) Save(ctx context.Context, c *domain.Case) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("case_save", time.Since(start)) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO cases.cases (
			id, case_number, patient_ref, encounter_type, provider_ref, payer_code,
			procedure_category, procedure_code, procedure_name, coding_tier, status, priority_tier,
			urgency_score, sla_deadline, sla_breached, review_flag, assignee, blocking_reason,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err = tx.Exec(ctx, query,
		c.ID, c.CaseNumber, c.PatientRef, c.Encounter, c.Provider, c.PayerCode,
		c.ProcedureCategory, nullable(c.ProcedureCode), nullable(c.ProcedureName), nullable(string(c.CodingTier)), c.Status, c.PriorityTier,
		c.UrgencyScore, c.SLADeadline, c.SLABreached, c.ReviewFlag, nullable(c.Assignee), nullable(c.BlockingReason),
		c.CreatedAt, c.UpdatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("case with this number already exists")
		}
		return errors.Wrap(err, "failed to save case")
	}

	for i := range c.Events {
		if err := saveEvent(ctx, tx, &c.Events[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

// FindByID finds a case by ID
func (r *PostgresRepository) FindByID(ctx context.Context, id types.ID) (*domain.Case, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("case_find", time.Since(start)) }()

	query := `SELECT ` + caseColumns + ` FROM cases.cases WHERE id = $1`

	c, err := scanCase(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("case", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find case")
	}
	return c, nil
}

// FindByCaseNumber finds a case by its case number
func (r *PostgresRepository) FindByCaseNumber(ctx context.Context, caseNumber string) (*domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases.cases WHERE case_number = $1`

	c, err := scanCase(r.pool.QueryRow(ctx, query, caseNumber))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("case", caseNumber)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find case")
	}
	return c, nil
}

// Update updates a case and appends any new timeline events
func (r *PostgresRepository) Update(ctx context.Context, c *domain.Case) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("case_update", time.Since(start)) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE cases.cases SET
			procedure_code = $2, procedure_name = $3, coding_tier = $4, status = $5,
			priority_tier = $6, urgency_score = $7, sla_deadline = $8, sla_breached = $9,
			review_flag = $10, assignee = $11, blocking_reason = $12, updated_at = $13
		WHERE id = $1`

	result, err := tx.Exec(ctx, query,
		c.ID, nullable(c.ProcedureCode), nullable(c.ProcedureName), nullable(string(c.CodingTier)), c.Status,
		c.PriorityTier, c.UrgencyScore, c.SLADeadline, c.SLABreached,
		c.ReviewFlag, nullable(c.Assignee), nullable(c.BlockingReason), c.UpdatedAt,
	)

	if err != nil {
		return errors.Wrap(err, "failed to update case")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("case", c.ID.String())
	}

	// Persist only events not yet stored
	for i := range c.Events {
		e := &c.Events[i]
		if err := upsertEvent(ctx, tx, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

// Delete deletes a case; owned tasks, requirements, and events cascade
func (r *PostgresRepository) Delete(ctx context.Context, id types.ID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM cases.cases WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete case")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("case", id.String())
	}
	return nil
}

// List lists cases with filters
func (r *PostgresRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Case, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}
	if filter.Priority != nil {
		conditions = append(conditions, fmt.Sprintf("priority_tier = $%d", argNum))
		args = append(args, *filter.Priority)
		argNum++
	}
	if filter.PayerCode != "" {
		conditions = append(conditions, fmt.Sprintf("payer_code = $%d", argNum))
		args = append(args, filter.PayerCode)
		argNum++
	}
	if filter.Assignee != "" {
		conditions = append(conditions, fmt.Sprintf("assignee = $%d", argNum))
		args = append(args, filter.Assignee)
		argNum++
	}
	if filter.Breached != nil {
		conditions = append(conditions, fmt.Sprintf("sla_breached = $%d", argNum))
		args = append(args, *filter.Breached)
		argNum++
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(case_number ILIKE $%d OR patient_ref ILIKE $%d)", argNum, argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM cases.cases %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count cases")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	orderBy := "created_at DESC"
	if filter.OrderBy == "sla_deadline" {
		orderBy = "sla_deadline ASC NULLS LAST"
	}

	query := fmt.Sprintf(`SELECT `+caseColumns+`
		FROM cases.cases
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`, whereClause, orderBy, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list cases")
	}
	defer rows.Close()

	var result []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan case")
		}
		result = append(result, *c)
	}

	return result, total, nil
}

// FindDueBefore returns unflagged cases whose SLA deadline has passed
func (r *PostgresRepository) FindDueBefore(ctx context.Context, deadline time.Time) ([]domain.Case, error) {
	query := `SELECT ` + caseColumns + `
		FROM cases.cases
		WHERE sla_deadline IS NOT NULL
		  AND sla_deadline <= $1
		  AND NOT sla_breached
		  AND status NOT IN ('not_eligible', 'pa_approved', 'pa_denied')`

	rows, err := r.pool.Query(ctx, query, deadline)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find due cases")
	}
	defer rows.Close()

	var result []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan case")
		}
		result = append(result, *c)
	}

	return result, nil
}

// AddEvent appends a timeline event
func (r *PostgresRepository) AddEvent(ctx context.Context, caseID types.ID, e *domain.CaseEvent) error {
	query := `
		INSERT INTO cases.case_events (id, case_id, type, actor, description, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		e.ID, caseID, e.Type, nullable(e.Actor), e.Description, e.Data, e.Timestamp,
	)
	if err != nil {
		return errors.Wrap(err, "failed to add case event")
	}
	return nil
}

// GetEvents returns timeline events for a case, newest first
func (r *PostgresRepository) GetEvents(ctx context.Context, caseID types.ID, limit, offset int) ([]domain.CaseEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, case_id, type, actor, description, data, created_at
		FROM cases.case_events
		WHERE case_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, caseID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get case events")
	}
	defer rows.Close()

	var events []domain.CaseEvent
	for rows.Next() {
		var e domain.CaseEvent
		var actor *string
		err := rows.Scan(&e.ID, &e.CaseID, &e.Type, &actor, &e.Description, &e.Data, &e.Timestamp)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan case event")
		}
		if actor != nil {
			e.Actor = *actor
		}
		events = append(events, e)
	}

	return events, nil
}

func saveEvent(ctx context.Context, tx pgx.Tx, e *domain.CaseEvent) error {
	query := `
		INSERT INTO cases.case_events (id, case_id, type, actor, description, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.CaseID, e.Type, nullable(e.Actor), e.Description, e.Data, e.Timestamp,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save case event")
	}
	return nil
}

func upsertEvent(ctx context.Context, tx pgx.Tx, e *domain.CaseEvent) error {
	query := `
		INSERT INTO cases.case_events (id, case_id, type, actor, description, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err := tx.Exec(ctx, query,
		e.ID, e.CaseID, e.Type, nullable(e.Actor), e.Description, e.Data, e.Timestamp,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save case event")
	}
	return nil
}

func scanCase(row pgx.Row) (*domain.Case, error) {
	c := &domain.Case{}
	var procedureCode, procedureName, codingTier, assignee, blockingReason *string

	err := row.Scan(
		&c.ID, &c.CaseNumber, &c.PatientRef, &c.Encounter, &c.Provider, &c.PayerCode,
		&c.ProcedureCategory, &procedureCode, &procedureName, &codingTier, &c.Status, &c.PriorityTier,
		&c.UrgencyScore, &c.SLADeadline, &c.SLABreached, &c.ReviewFlag, &assignee, &blockingReason,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if procedureCode != nil {
		c.ProcedureCode = *procedureCode
	}
	if procedureName != nil {
		c.ProcedureName = *procedureName
	}
	if codingTier != nil {
		c.CodingTier = confidence.Tier(*codingTier)
	}
	if assignee != nil {
		c.Assignee = *assignee
	}
	if blockingReason != nil {
		c.BlockingReason = *blockingReason
	}

	return c, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Verify interface implementation
var _ domain.Repository = (*PostgresRepository)(nil)
