package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/liamcoop/intakehub/audit"
)

// EmailRequest asks the notification collaborator to send a templated email.
type EmailRequest struct {
	WorkflowID string    `json:"workflowId"`
	EntityID   string    `json:"entityId"`
	TemplateID string    `json:"templateId"`
	To         Recipient `json:"to"`
}

// AutofillRequest asks the record-update collaborator to write fields.
type AutofillRequest struct {
	WorkflowID string  `json:"workflowId"`
	EntityID   string  `json:"entityId"`
	Fields     []Field `json:"fields"`
}

// Notifier delivers SEND_EMAIL actions.
type Notifier interface {
	Email(ctx context.Context, req EmailRequest) error
}

// RecordUpdater applies AUTOFILL_FIELDS actions.
type RecordUpdater interface {
	Autofill(ctx context.Context, req AutofillRequest) error
}

// Gate messages.
const (
	InactiveMessage    = "Selected workflow is inactive. Activate it or choose an active workflow."
	NotEnrolledMessage = "Not enrolled: enrollment trigger conditions did not match."
)

// RunResult is the outcome of Runner.Run.
type RunResult struct {
	Result
	Message         string      `json:"message"`
	WorkflowID      string      `json:"workflowId"`
	WorkflowName    string      `json:"workflowName"`
	WorkflowVersion int         `json:"workflowVersion"`
	TriggerType     TriggerType `json:"triggerType"`
	AuditID         string      `json:"auditId"`
}

// Runner applies the activation and enrollment gates, executes the latest
// published version, hands side effects to collaborators and audits every
// outcome.
type Runner struct {
	service *Service
	opts    options
}

// NewRunner creates a Runner over the workflows managed by service.
func NewRunner(service *Service, opts ...Option) *Runner {
	o := buildOptions(opts)
	if o.executor == nil {
		o.executor = NewExecutor(nil)
	}
	if o.log == nil {
		o.log = NewAuditLog()
	}
	return &Runner{service: service, opts: o}
}

// AuditLog returns the workflow audit log.
func (r *Runner) AuditLog() *audit.Log[AuditEntry] {
	return r.opts.log
}

// Run executes workflow id against in. Inactive workflows, records that
// fail enrollment and runs that stop without a viable edge are results, not
// errors. An error is returned only when the workflow cannot be loaded or
// has no published version.
func (r *Runner) Run(ctx context.Context, id string, trigger TriggerType, in Inputs) (*RunResult, error) {
	start := r.opts.now()

	meta, version, err := r.service.Published(ctx, id)
	if err != nil {
		return nil, err
	}
	if trigger == "" {
		trigger = meta.Enrollment.TriggerType
	}
	if trigger == "" {
		trigger = TriggerRuleEngine
	}
	if !trigger.Valid() {
		return nil, invalidf("unknown trigger type %q", trigger)
	}

	res := &RunResult{
		WorkflowID:      meta.ID,
		WorkflowName:    meta.Name,
		WorkflowVersion: version.Version,
		TriggerType:     trigger,
	}

	switch {
	case !meta.IsActive:
		res.Result = gated(OutcomeInactive, "Workflow inactive.", in)
		res.Message = InactiveMessage

	case meta.Enrollment.Enabled && !r.enrolled(meta, in):
		res.Result = gated(OutcomeNotEnrolled, "Not enrolled.", in)
		res.Message = NotEnrolledMessage

	default:
		res.Result = r.opts.executor.Execute(version.Definition, in)
		if res.FinalStatus == "" {
			res.FinalStatus = in.Status
		}
		if res.OK {
			res.Message = fmt.Sprintf("%s Final Status: %q.", res.Reason, res.FinalStatus)
			r.dispatch(ctx, meta.ID, in, res.ExecutedActions)
		} else {
			res.Message = res.Reason
		}
	}

	res.AuditID = r.record(meta, res, in)

	if r.opts.recorder != nil {
		r.opts.recorder.RecordWorkflowRun(string(res.Outcome), r.opts.now().Sub(start))
	}
	attrs := []any{
		slog.String("workflow_id", meta.ID),
		slog.Int("version", version.Version),
		slog.String("outcome", string(res.Outcome)),
		slog.String("entity_id", in.EntityID),
	}
	if res.OK {
		r.opts.logger.Info("workflow run", attrs...)
	} else {
		r.opts.logger.Warn("workflow run aborted", append(attrs, slog.String("reason", res.Reason))...)
	}
	return res, nil
}

// enrolled evaluates the enrollment gate. A matcher error counts as not
// enrolled.
func (r *Runner) enrolled(meta *Meta, in Inputs) bool {
	ok, err := r.opts.executor.matcher.Match(meta.Enrollment.Group, in)
	if err != nil {
		r.opts.logger.Error("enrollment evaluation failed",
			slog.String("workflow_id", meta.ID),
			slog.String("error", err.Error()))
		return false
	}
	return ok
}

func gated(outcome Outcome, reason string, in Inputs) Result {
	return Result{
		OK:              true,
		Outcome:         outcome,
		Reason:          reason,
		ExecutedActions: []ExecutedAction{},
		FinalStatus:     in.Status,
		Path:            []PathStep{},
	}
}

// dispatch forwards SEND_EMAIL and AUTOFILL_FIELDS actions of a successful
// run. Delivery failures are logged; the run result stands.
func (r *Runner) dispatch(ctx context.Context, workflowID string, in Inputs, actions []ExecutedAction) {
	for _, a := range actions {
		var err error
		switch p := a.Action.Payload.(type) {
		case EmailPayload:
			if r.opts.notifier == nil {
				continue
			}
			err = r.opts.notifier.Email(ctx, EmailRequest{
				WorkflowID: workflowID,
				EntityID:   in.EntityID,
				TemplateID: p.TemplateID,
				To:         p.To,
			})
		case AutofillPayload:
			if r.opts.updater == nil {
				continue
			}
			err = r.opts.updater.Autofill(ctx, AutofillRequest{
				WorkflowID: workflowID,
				EntityID:   in.EntityID,
				Fields:     append([]Field{}, p.Fields...),
			})
		}
		if err != nil {
			r.opts.logger.Error("failed to dispatch workflow action",
				slog.String("workflow_id", workflowID),
				slog.String("action", string(a.Type)),
				slog.String("error", err.Error()))
		}
	}
}

func (r *Runner) record(meta *Meta, res *RunResult, in Inputs) string {
	entityID := strings.TrimSpace(in.EntityID)
	if entityID == "" {
		entityID = NoEntity
	}
	entry := AuditEntry{
		ID:              r.opts.newID(),
		CreatedAt:       r.opts.now(),
		AccountType:     meta.AccountType,
		WorkflowID:      meta.ID,
		WorkflowName:    meta.Name,
		WorkflowVersion: res.WorkflowVersion,
		EntityID:        entityID,
		TriggerType:     res.TriggerType,
		WinningRuleCode: strings.TrimSpace(in.WinningRuleCode),
		Outcome:         res.Outcome,
		ChosenPath:      res.ChosenPath,
		ExecutedActions: res.ExecutedActions,
		FinalStatus:     res.FinalStatus,
		AssignedTo:      res.AssignedTo,
		Notes:           res.Message,
	}
	r.opts.log.Append(entry)
	return entry.ID
}
