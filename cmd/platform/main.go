package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/meridian-rcm/platform/internal/adapters/remit"
	"github.com/meridian-rcm/platform/internal/adapters/remit/agentsvc"
	"github.com/meridian-rcm/platform/internal/adapters/remit/clearinghouse"
	"github.com/meridian-rcm/platform/internal/agenttask"
	casesapi "github.com/meridian-rcm/platform/internal/cases/api"
	"github.com/meridian-rcm/platform/internal/cases/domain"
	"github.com/meridian-rcm/platform/internal/cases/infrastructure"
	"github.com/meridian-rcm/platform/internal/documents"
	"github.com/meridian-rcm/platform/internal/policy"
	"github.com/meridian-rcm/platform/internal/priority"
	"github.com/meridian-rcm/platform/internal/reconciliation"
	"github.com/meridian-rcm/platform/internal/shared/auth"
	"github.com/meridian-rcm/platform/internal/shared/config"
	"github.com/meridian-rcm/platform/internal/shared/database"
	"github.com/meridian-rcm/platform/internal/shared/events"
	"github.com/meridian-rcm/platform/internal/shared/metrics"
	secmiddleware "github.com/meridian-rcm/platform/internal/shared/middleware"
	"github.com/meridian-rcm/platform/internal/shared/types"
	"github.com/meridian-rcm/platform/internal/workflow"
)

// App holds all application dependencies
type App struct {
	Config *config.Config
	DB     *database.DB
	Bus    *events.Bus
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	app := &App{Config: cfg}

	// Initialize database (optional - fall back to in-memory stores)
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		fmt.Printf("Warning: Database not available: %v\n", err)
		fmt.Println("Running with in-memory stores...")
	} else {
		app.DB = db
		defer db.Close()

		// Run migrations
		if err := database.Migrate(ctx, db.Pool); err != nil {
			fmt.Printf("Warning: Migration failed: %v\n", err)
		}
	}

	// Initialize event bus with KurrentDB (optional - skip if not available)
	var bus events.EventBus
	kbus, err := events.NewBus(ctx, cfg.KurrentDB)
	if err != nil {
		fmt.Printf("Warning: KurrentDB not available: %v\n", err)
		fmt.Println("Running without event streaming...")
	} else {
		app.Bus = kbus
		bus = kbus
		defer kbus.Close()
		fmt.Println("KurrentDB Event Bus initialized")
	}

	// Payer policies and fee schedules
	policies := policy.NewStore()
	policy.SeedDefaults(policies)

	// Storage layer: PostgreSQL when available, in-memory otherwise
	var caseRepo domain.Repository
	var docStore documents.Store
	var reconStore reconciliation.Store
	if app.DB != nil {
		caseRepo = infrastructure.NewPostgresRepository(app.DB.Pool)
		docStore = documents.NewRepository(app.DB.Pool)
		reconStore = reconciliation.NewRepository(app.DB.Pool)
	} else {
		caseRepo = infrastructure.NewMemoryRepository()
		docStore = documents.NewMemoryStore()
		reconStore = reconciliation.NewMemoryStore()
	}

	tracker := documents.NewTracker(docStore)
	reconEngine := reconciliation.NewEngine(reconStore, bus)

	reconcile := func(ctx context.Context, caseID types.ID, remittanceID, payerCode, feeScheduleRef string, expected, posted types.Money, toleranceBps int) error {
		_, err := reconEngine.Reconcile(ctx, caseID, remittanceID, payerCode, feeScheduleRef, expected, posted, toleranceBps)
		return err
	}

	svc := workflow.New(caseRepo, tracker, policies, reconcile, bus, cfg.Engine.ToleranceBps)

	// Agent task runner feeds completed outcomes into the workflow
	runner := agenttask.NewRunner(cfg.Engine.TaskTimeout, svc.HandleTaskCompletion)
	if cfg.Agents.Enabled {
		agents := agentsvc.New(agentsvc.Config{
			BaseURL:       cfg.Agents.BaseURL,
			Timeout:       cfg.Agents.Timeout,
			RetryAttempts: cfg.Agents.RetryAttempts,
			RetryDelay:    cfg.Agents.RetryDelay,
		})
		runner.Register(agenttask.KindEligibility, remit.NewEligibilityProcessor(agents))
		runner.Register(agenttask.KindSummarization, remit.NewSummarizationProcessor(agents))
		runner.Register(agenttask.KindCoding, remit.NewCodingProcessor(agents))
		fmt.Printf("Agent gateway enabled (service: %s)\n", cfg.Agents.BaseURL)
	} else {
		fmt.Println("Warning: Agent gateway disabled, agent tasks cannot be started")
	}

	// Clearinghouse remittance feed (optional)
	if cfg.Clearinghouse.Enabled {
		adapter, err := clearinghouse.New(cfg.Clearinghouse)
		if err != nil {
			fmt.Printf("Warning: Clearinghouse adapter invalid: %v\n", err)
		} else if err := adapter.Start(ctx); err != nil {
			fmt.Printf("Warning: Clearinghouse adapter failed to start: %v\n", err)
		} else {
			adapter.SubscribeRemittances(ctx, func(r remit.PostedRemittance) {
				if err := svc.HandleRemittance(ctx, r); err != nil {
					fmt.Printf("Failed to reconcile remittance %s: %v\n", r.RemittanceID, err)
				}
			})
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				adapter.Stop(stopCtx)
			}()
			fmt.Printf("Clearinghouse feed enabled (table: %s)\n", cfg.Clearinghouse.RemittanceTable)
		}
	}

	// SLA deadline monitor
	monitor := priority.NewMonitor(caseRepo, bus, cfg.Engine.SLACheckInterval)
	go func() {
		if err := monitor.Start(ctx); err != nil {
			fmt.Printf("SLA monitor stopped: %v\n", err)
		}
	}()
	defer monitor.Stop()

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	// API info
	r.Get("/", infoHandler)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes (no auth required for now in dev mode)
		if cfg.Server.Env == "production" {
			r.Use(auth.Middleware(cfg.Auth))
		}

		caseHandler := casesapi.NewHandler(svc, caseRepo, runner, tracker)
		r.Mount("/cases", caseHandler.Routes())

		reconHandler := reconciliation.NewHandler(reconEngine, reconStore, policies, cfg.Engine.ToleranceBps)
		r.Mount("/reconciliation", reconHandler.Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Println("\nShutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			fmt.Printf("Server shutdown error: %v\n", err)
		}

		// Let in-flight agent tasks reach a terminal state
		runner.Shutdown()
		close(done)
	}()

	fmt.Println("============================================")
	fmt.Println("Meridian Revenue Cycle Platform")
	fmt.Println("============================================")
	fmt.Printf("Environment:    %s\n", cfg.Server.Env)
	fmt.Printf("Server:         http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("API:            http://localhost:%d/api/v1\n", cfg.Server.Port)
	fmt.Printf("Health:         http://localhost:%d/health\n", cfg.Server.Port)
	fmt.Printf("Task timeout:   %s\n", cfg.Engine.TaskTimeout)
	fmt.Printf("SLA check:      every %s\n", cfg.Engine.SLACheckInterval)
	fmt.Printf("KurrentDB:      %s:%d\n", cfg.KurrentDB.Host, cfg.KurrentDB.Port)
	fmt.Println("============================================")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	<-done
	fmt.Println("Server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "Meridian Revenue Cycle Platform",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		// Check database
		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		// Check KurrentDB
		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["kurrentdb"] = "not ready: " + err.Error()
			} else {
				checks["kurrentdb"] = "ready"
			}
		} else {
			checks["kurrentdb"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
