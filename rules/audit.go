package rules

import (
	"time"

	"github.com/liamcoop/intakehub/audit"
)

// AuditType classifies a rule audit entry.
type AuditType string

const (
	AuditEvaluate       AuditType = "EVALUATE"
	AuditBatchEvaluate  AuditType = "BATCH_EVALUATE"
	AuditManualOverride AuditType = "MANUAL_OVERRIDE"
)

// AuditHeader is the column order of the rule audit CSV export.
var AuditHeader = []string{"time", "type", "insuranceGroup", "ruleId", "scopeLevel", "statusToSet", "notes"}

// WinningRule records the decision of an entry by reference, not by value.
type WinningRule struct {
	RuleID           string `json:"ruleId"`
	ScopeLevel       string `json:"scopeLevel"`
	PrecedenceReason string `json:"precedenceReason"`
	StatusToSet      string `json:"statusToSet"`
}

// AuditEntry is one immutable rule audit record.
type AuditEntry struct {
	ID                 string       `json:"id"`
	CreatedAt          time.Time    `json:"createdAt"`
	Type               AuditType    `json:"type"`
	InsuranceGroupName string       `json:"insuranceGroupName,omitempty"`
	Inputs             Inputs       `json:"inputs"`
	WinningRule        *WinningRule `json:"winningRule,omitempty"`
	Notes              string       `json:"notes,omitempty"`
}

// Row renders the entry in AuditHeader order.
func (e AuditEntry) Row() []string {
	var ruleID, level, status string
	if e.WinningRule != nil {
		ruleID = e.WinningRule.RuleID
		level = e.WinningRule.ScopeLevel
		status = e.WinningRule.StatusToSet
	}
	return []string{
		audit.FormatTime(e.CreatedAt),
		string(e.Type),
		e.InsuranceGroupName,
		ruleID,
		level,
		status,
		e.Notes,
	}
}

// NewAuditLog creates an empty rule audit log.
func NewAuditLog() *audit.Log[AuditEntry] {
	return audit.NewLog[AuditEntry](AuditHeader)
}
