package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/liamcoop/intakehub/rules"
)

const maxImportBytes = 4 << 20

// List insurance groups handler
func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.rules.Groups(r.Context())
	if err != nil {
		respondFailure(w, "failed to list insurance groups", err)
		return
	}
	if groups == nil {
		groups = []*rules.InsuranceGroup{}
	}
	respondJSON(w, http.StatusOK, GroupsListResponse{Groups: groups})
}

// Create insurance group handler
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	g, err := s.rules.CreateGroup(r.Context(), req.Name)
	if err != nil {
		respondFailure(w, "failed to create insurance group", err)
		return
	}
	respondJSON(w, http.StatusCreated, g)
}

func (s *Server) handleListGroupRules(w http.ResponseWriter, r *http.Request) {
	rs, err := s.rules.RulesForGroup(r.Context(), chi.URLParam(r, "groupId"))
	if err != nil {
		respondFailure(w, "failed to list rules", err)
		return
	}
	respondRules(w, rs)
}

func (s *Server) handleBulkSetActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Active == nil {
		respondError(w, http.StatusBadRequest, "active is required", nil)
		return
	}

	n, err := s.rules.BulkSetActive(r.Context(), chi.URLParam(r, "groupId"), *req.Active)
	if err != nil {
		respondFailure(w, "failed to update rules", err)
		return
	}
	respondJSON(w, http.StatusOK, BulkSetActiveResponse{Updated: n})
}

func (s *Server) handleBatchEvaluate(w http.ResponseWriter, r *http.Request) {
	var in rules.Inputs
	if !decodeJSON(w, r, &in) {
		return
	}

	entry, err := s.rules.BatchReEvaluate(r.Context(), chi.URLParam(r, "groupId"), in)
	if err != nil {
		respondFailure(w, "failed to queue batch re-evaluate", err)
		return
	}
	respondJSON(w, http.StatusAccepted, entry)
}

func (s *Server) handleDuplicateDefaults(w http.ResponseWriter, r *http.Request) {
	rs, err := s.rules.DuplicateDefaults(r.Context(), chi.URLParam(r, "groupId"))
	if err != nil {
		respondFailure(w, "failed to check default rules", err)
		return
	}
	respondRules(w, rs)
}

// List rules handler
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rs, err := s.rules.Rules(r.Context())
	if err != nil {
		respondFailure(w, "failed to list rules", err)
		return
	}
	respondRules(w, rs)
}

// Create rule handler
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rule, err := s.rules.AddRule(r.Context(), req.InsuranceGroupID, req.Scope, req.PolicyMatchType, req.Action)
	if err != nil {
		respondFailure(w, "failed to create rule", err)
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

// Get rule handler
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.Rule(r.Context(), chi.URLParam(r, "ruleId"))
	if err != nil {
		respondFailure(w, "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// Update rule handler
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rule, err := s.rules.UpdateRule(r.Context(), chi.URLParam(r, "ruleId"), req.Scope, req.PolicyMatchType, req.Action)
	if err != nil {
		respondFailure(w, "failed to update rule", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleSetRuleActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Active == nil {
		respondError(w, http.StatusBadRequest, "active is required", nil)
		return
	}

	rule, err := s.rules.SetRuleActive(r.Context(), chi.URLParam(r, "ruleId"), *req.Active)
	if err != nil {
		respondFailure(w, "failed to update rule", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.ToggleRule(r.Context(), chi.URLParam(r, "ruleId"))
	if err != nil {
		respondFailure(w, "failed to toggle rule", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// Evaluation handler
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.rules.Evaluate(r.Context(), req.InsuranceGroupID, req.Inputs)
	if err != nil {
		respondFailure(w, "evaluation failed", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRecordOverride(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := s.rules.RecordOverride(r.Context(), req.RuleCode, req.StatusToSet, req.Notes, req.Inputs)
	if err != nil {
		respondFailure(w, "failed to record override", err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleExportRules(w http.ResponseWriter, r *http.Request) {
	data, err := s.rules.ExportRules(r.Context())
	if err != nil {
		respondFailure(w, "failed to export rules", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="rules.json"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleImportRules(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r, maxImportBytes)
	if !ok {
		return
	}

	imported, err := s.rules.ImportRules(r.Context(), data)
	if err != nil {
		respondFailure(w, "failed to import rules", err)
		return
	}
	respondJSON(w, http.StatusCreated, ImportRulesResponse{Imported: len(imported), Rules: imported})
}

// Rule audit handler. ?format=csv downloads the export.
func (s *Server) handleRuleAudit(w http.ResponseWriter, r *http.Request) {
	log := s.rules.AuditLog()
	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="rule-audit.csv"`)
		if err := log.WriteCSV(w); err != nil {
			s.logger.Error("rule audit export failed", "error", err)
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"entries": log.Entries(),
		"count":   log.Len(),
	})
}

func respondRules(w http.ResponseWriter, rs []*rules.Rule) {
	if rs == nil {
		rs = []*rules.Rule{}
	}
	respondJSON(w, http.StatusOK, RulesListResponse{Rules: rs, Count: len(rs)})
}
