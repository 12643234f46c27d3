package main

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/liamcoop/intakehub/workflow"
)

const maxDefinitionBytes = 1 << 20

// List workflows handler. ?accountType filters.
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	at := workflow.AccountType(r.URL.Query().Get("accountType"))
	ms, err := s.workflows.List(r.Context(), at)
	if err != nil {
		respondFailure(w, "failed to list workflows", err)
		return
	}
	if ms == nil {
		ms = []*workflow.Meta{}
	}
	respondJSON(w, http.StatusOK, WorkflowsListResponse{Workflows: ms, Count: len(ms)})
}

// Create workflow handler
func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkflowRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := s.workflows.Create(r.Context(), req.AccountType, req.Name, req.Description)
	if err != nil {
		respondFailure(w, "failed to create workflow", err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	m, err := s.workflows.Get(r.Context(), chi.URLParam(r, "workflowId"))
	if err != nil {
		respondFailure(w, "workflow not found", err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// Draft handler. The body is a definition in JSON or YAML.
func (s *Server) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r, maxDefinitionBytes)
	if !ok {
		return
	}
	def, err := workflow.ParseDefinition(data)
	if err != nil {
		respondFailure(w, "invalid workflow definition", err)
		return
	}

	m, err := s.workflows.UpdateDraft(r.Context(), chi.URLParam(r, "workflowId"), def)
	if err != nil {
		respondFailure(w, "failed to update draft", err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleUpdateEnrollment(w http.ResponseWriter, r *http.Request) {
	var req workflow.Enrollment
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := s.workflows.UpdateEnrollment(r.Context(), chi.URLParam(r, "workflowId"), req)
	if err != nil {
		respondFailure(w, "failed to update enrollment", err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleSetWorkflowActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "workflowId")
	var (
		m   *workflow.Meta
		err error
	)
	if req.Active == nil {
		m, err = s.workflows.ToggleActive(r.Context(), id)
	} else {
		m, err = s.workflows.SetActive(r.Context(), id, *req.Active)
	}
	if err != nil {
		respondFailure(w, "failed to update workflow", err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleSetOnlyActive(w http.ResponseWriter, r *http.Request) {
	m, err := s.workflows.SetOnlyActive(r.Context(), chi.URLParam(r, "workflowId"))
	if err != nil {
		respondFailure(w, "failed to activate workflow", err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// Publish handler. Structural defects in the draft answer 422.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	v, err := s.workflows.Publish(r.Context(), chi.URLParam(r, "workflowId"))
	if err != nil {
		respondFailure(w, "publish rejected", err)
		return
	}
	respondJSON(w, http.StatusCreated, v)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.runner.Run(r.Context(), chi.URLParam(r, "workflowId"), req.TriggerType, req.Inputs)
	if err != nil {
		respondFailure(w, "workflow run failed", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Export handler. Renders the draft, or the latest version with
// ?source=published, as YAML unless ?format=json.
func (s *Server) handleExportWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workflowId")
	q := r.URL.Query()

	var def *workflow.Definition
	if q.Get("source") == "published" {
		_, v, err := s.workflows.Published(r.Context(), id)
		if err != nil {
			respondFailure(w, "failed to export workflow", err)
			return
		}
		def = v.Definition
	} else {
		m, err := s.workflows.Get(r.Context(), id)
		if err != nil {
			respondFailure(w, "workflow not found", err)
			return
		}
		def = m.Draft
	}

	var (
		data        []byte
		err         error
		contentType string
	)
	if strings.EqualFold(q.Get("format"), "json") {
		data, err = workflow.MarshalDefinitionJSON(def)
		contentType = "application/json"
	} else {
		data, err = workflow.MarshalDefinitionYAML(def)
		contentType = "application/yaml"
	}
	if err != nil {
		respondFailure(w, "failed to export workflow", err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Workflow audit handler. ?format=csv downloads the export.
func (s *Server) handleWorkflowAudit(w http.ResponseWriter, r *http.Request) {
	log := s.runner.AuditLog()
	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="workflow-audit.csv"`)
		if err := log.WriteCSV(w); err != nil {
			s.logger.Error("workflow audit export failed", "error", err)
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"entries": log.Entries(),
		"count":   log.Len(),
	})
}

func (s *Server) handleListDispositions(w http.ResponseWriter, r *http.Request) {
	ds := s.catalog.List(r.URL.Query().Get("queue"))
	respondJSON(w, http.StatusOK, map[string]any{
		"dispositions": ds,
		"count":        len(ds),
	})
}

func (s *Server) handleAddDisposition(w http.ResponseWriter, r *http.Request) {
	var req AddDispositionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	d, err := s.catalog.Add(req.Code, req.Name, req.Queue, req.OutcomeTag)
	if err != nil {
		respondFailure(w, "failed to add disposition", err)
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

func (s *Server) handleSetDispositionEnabled(w http.ResponseWriter, r *http.Request) {
	var req SetEnabledRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		respondError(w, http.StatusBadRequest, "enabled is required", nil)
		return
	}

	d, err := s.catalog.SetEnabled(chi.URLParam(r, "dispositionId"), *req.Enabled)
	if err != nil {
		respondFailure(w, "failed to update disposition", err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// Disposition workflow handler. Creates the workflow on first use.
func (s *Server) handleDispositionWorkflow(w http.ResponseWriter, r *http.Request) {
	var req DispositionWorkflowRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := s.catalog.WorkflowFor(r.Context(), chi.URLParam(r, "dispositionId"), req.AccountType)
	if err != nil {
		respondFailure(w, "failed to open disposition workflow", err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"queues": s.catalog.Queues()})
}

func (s *Server) handleAddQueue(w http.ResponseWriter, r *http.Request) {
	var req AddQueueRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.catalog.AddQueue(req.Name); err != nil {
		respondFailure(w, "failed to add queue", err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"queues": s.catalog.Queues()})
}

func (s *Server) handleSetQueueEnabled(w http.ResponseWriter, r *http.Request) {
	var req SetEnabledRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		respondError(w, http.StatusBadRequest, "enabled is required", nil)
		return
	}

	name, err := url.PathUnescape(chi.URLParam(r, "queueName"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid queue name", err)
		return
	}
	if err := s.catalog.SetQueueEnabled(name, *req.Enabled); err != nil {
		respondFailure(w, "failed to update queue", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"queues": s.catalog.Queues()})
}
