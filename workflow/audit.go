package workflow

import (
	"strconv"
	"strings"
	"time"

	"github.com/liamcoop/intakehub/audit"
)

// NoEntity is recorded when a run carries no entity id.
const NoEntity = "—"

// AuditHeader is the column order of the workflow audit CSV export.
var AuditHeader = []string{
	"time", "accountType", "workflowId", "workflowName", "workflowVersion", "entityId",
	"triggerType", "winningRuleCode", "finalStatus", "assignedTo",
	"pathFrom", "pathTo", "pathLabel", "actions", "notes",
}

// AuditEntry is one immutable workflow run record. It refers to the
// workflow by id and version rather than embedding the definition.
type AuditEntry struct {
	ID              string           `json:"id"`
	CreatedAt       time.Time        `json:"createdAt"`
	AccountType     AccountType      `json:"accountType"`
	WorkflowID      string           `json:"workflowId"`
	WorkflowName    string           `json:"workflowName"`
	WorkflowVersion int              `json:"workflowVersion"`
	EntityID        string           `json:"entityId"`
	TriggerType     TriggerType      `json:"triggerType"`
	WinningRuleCode string           `json:"winningRuleCode,omitempty"`
	Outcome         Outcome          `json:"outcome"`
	ChosenPath      *PathStep        `json:"chosenPath"`
	ExecutedActions []ExecutedAction `json:"executedActions"`
	FinalStatus     string           `json:"finalStatus"`
	AssignedTo      string           `json:"assignedTo"`
	Notes           string           `json:"notes"`
}

// Row renders the entry in AuditHeader order. The actions column joins the
// action summaries with " | ".
func (e AuditEntry) Row() []string {
	var from, to, label string
	if e.ChosenPath != nil {
		from, to, label = e.ChosenPath.From, e.ChosenPath.To, e.ChosenPath.EdgeLabel
	}
	summaries := make([]string, len(e.ExecutedActions))
	for i, a := range e.ExecutedActions {
		summaries[i] = a.Summary
	}
	return []string{
		audit.FormatTime(e.CreatedAt),
		string(e.AccountType),
		e.WorkflowID,
		e.WorkflowName,
		strconv.Itoa(e.WorkflowVersion),
		e.EntityID,
		string(e.TriggerType),
		e.WinningRuleCode,
		e.FinalStatus,
		e.AssignedTo,
		from,
		to,
		label,
		strings.Join(summaries, " | "),
		e.Notes,
	}
}

// NewAuditLog creates an empty workflow audit log.
func NewAuditLog() *audit.Log[AuditEntry] {
	return audit.NewLog[AuditEntry](AuditHeader)
}
