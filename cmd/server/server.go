package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liamcoop/intakehub/condition"
	"github.com/liamcoop/intakehub/internal/config"
	"github.com/liamcoop/intakehub/internal/metrics"
	"github.com/liamcoop/intakehub/notify"
	"github.com/liamcoop/intakehub/rules"
	"github.com/liamcoop/intakehub/workflow"
)

type Server struct {
	db         *sql.DB
	rules      *rules.Engine
	workflows  *workflow.Service
	runner     *workflow.Runner
	catalog    *workflow.DispositionCatalog
	dispatcher *notify.Dispatcher
	metrics    *metrics.Collector
	logger     *slog.Logger
	router     *chi.Mux
}

// NewServer wires the engines. A nil db selects the in-memory stores.
func NewServer(cfg *config.Config, db *sql.DB, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	collector := metrics.NewCollector(log)

	var matcher condition.Matcher = condition.Native{}
	if cfg.ConditionEngine == config.EngineCEL {
		m, err := condition.NewCELMatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to build CEL matcher: %w", err)
		}
		matcher = m
	}

	var (
		ruleStore     rules.RuleStore
		workflowStore workflow.Store
	)
	if db != nil {
		ruleStore = rules.NewPostgresRuleStore(db)
		workflowStore = workflow.NewPostgresStore(db)
	} else {
		ruleStore = rules.NewInMemoryRuleStore()
		workflowStore = workflow.NewInMemoryStore()
	}

	dispatcher := notify.NewDispatcher(
		notify.LogSender{Logger: log},
		notify.LogUpdater{Logger: log},
		notify.WithWorkers(cfg.NotifyWorkers),
		notify.WithQueueSize(cfg.NotifyQueueSize),
		notify.WithLogger(log),
		notify.WithRecorder(collector),
	)

	engine := rules.NewEngine(ruleStore,
		rules.WithCache(rules.NewInMemoryRulesCache(rules.CacheConfig{TTL: cfg.RulesCacheTTL})),
		rules.WithRecorder(collector),
		rules.WithLogger(log),
	)

	wfOpts := []workflow.Option{
		workflow.WithLogger(log),
		workflow.WithRecorder(collector),
		workflow.WithExecutor(workflow.NewExecutor(matcher)),
		workflow.WithNotifier(dispatcher),
		workflow.WithRecordUpdater(dispatcher),
	}
	service := workflow.NewService(workflowStore, wfOpts...)

	s := &Server{
		db:         db,
		rules:      engine,
		workflows:  service,
		runner:     workflow.NewRunner(service, wfOpts...),
		catalog:    workflow.NewDispositionCatalog(service),
		dispatcher: dispatcher,
		metrics:    collector,
		logger:     log,
	}
	s.setupRoutes(cfg)
	return s, nil
}

func (s *Server) setupRoutes(cfg *config.Config) {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if cfg.IsDev() {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(middleware.Timeout(timeout))

	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", s.handleListGroups)
			r.Post("/", s.handleCreateGroup)

			r.Route("/{groupId}", func(r chi.Router) {
				r.Get("/rules", s.handleListGroupRules)
				r.Put("/active", s.handleBulkSetActive)
				r.Post("/batch-evaluate", s.handleBatchEvaluate)
				r.Get("/duplicate-defaults", s.handleDuplicateDefaults)
			})
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)
			r.Post("/evaluate", s.handleEvaluate)
			r.Post("/overrides", s.handleRecordOverride)
			r.Get("/export", s.handleExportRules)
			r.Post("/import", s.handleImportRules)
			r.Get("/audit", s.handleRuleAudit)

			r.Route("/{ruleId}", func(r chi.Router) {
				r.Get("/", s.handleGetRule)
				r.Put("/", s.handleUpdateRule)
				r.Put("/active", s.handleSetRuleActive)
				r.Post("/toggle", s.handleToggleRule)
			})
		})

		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", s.handleListWorkflows)
			r.Post("/", s.handleCreateWorkflow)
			r.Get("/audit", s.handleWorkflowAudit)

			r.Route("/{workflowId}", func(r chi.Router) {
				r.Get("/", s.handleGetWorkflow)
				r.Put("/draft", s.handleUpdateDraft)
				r.Put("/enrollment", s.handleUpdateEnrollment)
				r.Put("/active", s.handleSetWorkflowActive)
				r.Post("/only-active", s.handleSetOnlyActive)
				r.Post("/publish", s.handlePublish)
				r.Post("/run", s.handleRun)
				r.Get("/export", s.handleExportWorkflow)
			})
		})

		r.Route("/dispositions", func(r chi.Router) {
			r.Get("/", s.handleListDispositions)
			r.Post("/", s.handleAddDisposition)
			r.Put("/{dispositionId}/enabled", s.handleSetDispositionEnabled)
			r.Post("/{dispositionId}/workflow", s.handleDispositionWorkflow)
		})

		r.Route("/queues", func(r chi.Router) {
			r.Get("/", s.handleListQueues)
			r.Post("/", s.handleAddQueue)
			r.Put("/{queueName}/enabled", s.handleSetQueueEnabled)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close drains queued side effects.
func (s *Server) Close(ctx context.Context) error {
	return s.dispatcher.Shutdown(ctx)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	store := "memory"
	if s.db != nil {
		store = "postgres"
		if err := s.db.PingContext(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"store":  store,
	})
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

// respondFailure maps engine errors onto status codes.
func respondFailure(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, rules.ErrNotFound), errors.Is(err, workflow.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, rules.ErrDuplicate), errors.Is(err, workflow.ErrNoPublishedVersion):
		status = http.StatusConflict
	case workflow.IsValidationError(err):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, rules.ErrInvalid), errors.Is(err, workflow.ErrInvalid):
		status = http.StatusBadRequest
	}
	respondError(w, status, message, err)
}

// readBody reads at most limit bytes. A larger body answers 413 rather than
// being cut short.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), nil)
			return nil, false
		}
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return nil, false
	}
	return data, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}
