package clearinghouse

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	"github.com/meridian-rcm/platform/internal/adapters/remit"
	"github.com/meridian-rcm/platform/internal/shared/config"
	"github.com/meridian-rcm/platform/internal/shared/types"
)

// Adapter polls the clearinghouse remittance staging database (SQL
// Server) for posted 835 payment lines and streams them to the
// reconciliation pipeline.
type Adapter struct {
	db     *sql.DB
	config config.ClearinghouseConfig

	remittanceChan chan remit.PostedRemittance

	running  bool
	mu       sync.RWMutex
	cancel   context.CancelFunc
	lastPoll time.Time
	wg       sync.WaitGroup
}

// New creates a new clearinghouse adapter
func New(cfg config.ClearinghouseConfig) (*Adapter, error) {
	if cfg.RemittanceTable == "" {
		return nil, fmt.Errorf("remittance table is required")
	}

	return &Adapter{
		config:         cfg,
		remittanceChan: make(chan remit.PostedRemittance, 256),
	}, nil
}

// Start opens the database connection and begins polling
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("adapter already running")
	}

	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		a.config.Host,
		a.config.Port,
		a.config.Database,
		a.config.User,
		a.config.Password,
	)

	if a.config.SSLMode != "disable" {
		connStr += ";encrypt=true;TrustServerCertificate=true"
	}

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = db
	a.running = true
	a.lastPoll = time.Now().Add(-a.config.PollInterval)

	pollCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go a.pollLoop(pollCtx)

	return nil
}

// Stop stops polling and closes connections
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	close(a.remittanceChan)

	if a.db != nil {
		a.db.Close()
	}

	a.running = false
	return nil
}

// Health checks database connectivity
func (a *Adapter) Health(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.running {
		return fmt.Errorf("adapter not running")
	}

	return a.db.PingContext(ctx)
}

// SubscribeRemittances registers a handler for posted remittances
func (a *Adapter) SubscribeRemittances(ctx context.Context, handler remit.RemittanceHandler) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-a.remittanceChan:
				if !ok {
					return
				}
				handler(r)
			}
		}
	}()
	return nil
}

// pollLoop polls the staging table for new remittance lines
func (a *Adapter) pollLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.mu.Lock()
			lastPoll := a.lastPoll
			a.lastPoll = time.Now()
			a.mu.Unlock()

			if err := a.pollRemittances(ctx, lastPoll); err != nil {
				// Log error but continue
				fmt.Printf("Error polling remittances: %v\n", err)
			}
		}
	}
}

// pollRemittances reads lines posted since the last poll
func (a *Adapter) pollRemittances(ctx context.Context, since time.Time) error {
	query := fmt.Sprintf(`
		SELECT
			RemittanceID,
			CaseRef,
			PayerCode,
			ProcedureCode,
			PostedCents,
			PostedAt
		FROM %s
		WHERE PostedAt > @since
		ORDER BY PostedAt ASC
	`, a.config.RemittanceTable)

	rows, err := a.db.QueryContext(ctx, query, sql.Named("since", since))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r remit.PostedRemittance
		var caseRef string
		var postedCents int64

		err := rows.Scan(
			&r.RemittanceID,
			&caseRef,
			&r.PayerCode,
			&r.ProcedureCode,
			&postedCents,
			&r.PostedAt,
		)
		if err != nil {
			fmt.Printf("Failed to scan remittance row: %v\n", err)
			continue
		}

		caseID, err := types.ParseID(caseRef)
		if err != nil {
			fmt.Printf("Remittance %s carries an invalid case reference %q\n", r.RemittanceID, caseRef)
			continue
		}

		r.CaseID = caseID
		r.Posted = types.Money(postedCents)
		r.SourceSystem = "clearinghouse"

		select {
		case a.remittanceChan <- r:
		default:
			// Channel full, skip; the line is picked up by reconciliation review
		}
	}

	return rows.Err()
}

// Verify interface implementation
var _ remit.RemittanceSource = (*Adapter)(nil)
