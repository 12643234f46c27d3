package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/intakehub/audit"
)

// Evaluation outcomes reported to an EvaluationRecorder.
const (
	OutcomeMatched = "matched"
	OutcomeNoMatch = "no_match"
)

// EvaluationRecorder receives one call per resolver evaluation.
type EvaluationRecorder interface {
	RecordRuleEvaluation(outcome string, duration time.Duration)
}

// MinGroupNameLength is the shortest accepted insurance group name.
const MinGroupNameLength = 2

// Engine is the rule store front end: it owns group and rule mutations,
// resolves inputs to a winning rule and writes the rule audit log.
type Engine struct {
	store    RuleStore
	cache    RulesCache
	log      *audit.Log[AuditEntry]
	recorder EvaluationRecorder
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	// writeMu serialises read-modify-write sequences against the store.
	writeMu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache replaces the default invalidate-on-write cache.
func WithCache(c RulesCache) Option { return func(e *Engine) { e.cache = c } }

// WithAuditLog shares an existing audit log.
func WithAuditLog(l *audit.Log[AuditEntry]) Option { return func(e *Engine) { e.log = l } }

// WithRecorder attaches an evaluation metrics recorder.
func WithRecorder(r EvaluationRecorder) Option { return func(e *Engine) { e.recorder = r } }

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithIDGenerator injects the id source.
func WithIDGenerator(newID func() string) Option { return func(e *Engine) { e.newID = newID } }

// NewEngine creates an Engine over store.
func NewEngine(store RuleStore, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		cache:  NewInMemoryRulesCache(DefaultCacheConfig()),
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = NewAuditLog()
	}
	return e
}

// AuditLog returns the rule audit log.
func (e *Engine) AuditLog() *audit.Log[AuditEntry] {
	return e.log
}

// CreateGroup adds an insurance group. The name is trimmed, must be at least
// two characters and unique ignoring case.
func (e *Engine) CreateGroup(ctx context.Context, name string) (*InsuranceGroup, error) {
	name = strings.TrimSpace(name)
	if len([]rune(name)) < MinGroupNameLength {
		return nil, invalidf("insurance group name must be at least %d characters", MinGroupNameLength)
	}

	g := &InsuranceGroup{ID: e.newID(), Name: name, UpdatedAt: e.now()}
	if err := e.store.CreateGroup(ctx, g); err != nil {
		return nil, fmt.Errorf("create insurance group: %w", err)
	}
	e.logger.Info("insurance group created", slog.String("group_id", g.ID), slog.String("name", g.Name))
	return g, nil
}

// Groups lists insurance groups, most recently updated first.
func (e *Engine) Groups(ctx context.Context) ([]*InsuranceGroup, error) {
	return e.store.ListGroups(ctx)
}

// Group fetches one insurance group.
func (e *Engine) Group(ctx context.Context, id string) (*InsuranceGroup, error) {
	return e.store.GetGroup(ctx, id)
}

// AddRule validates and stores a new active rule, assigning its code, and
// refreshes the owning group's UpdatedAt.
func (e *Engine) AddRule(ctx context.Context, groupID string, scope Scope, matchType PolicyMatchType, action Action) (*Rule, error) {
	r, err := NewRule(groupID, scope, matchType, action)
	if err != nil {
		return nil, err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	g, err := e.store.GetGroup(ctx, r.InsuranceGroupID)
	if err != nil {
		return nil, fmt.Errorf("add rule: %w", err)
	}

	now := e.now()
	r.ID = e.newID()
	r.CreatedAt = now
	r.UpdatedAt = now
	if err := e.store.Add(ctx, r); err != nil {
		return nil, fmt.Errorf("add rule: %w", err)
	}
	e.cache.Invalidate()

	g.UpdatedAt = now
	if err := e.store.UpdateGroup(ctx, g); err != nil {
		e.logger.Error("failed to touch insurance group", slog.String("group_id", g.ID), slog.String("error", err.Error()))
	}

	e.logger.Info("rule added",
		slog.String("rule_code", r.RuleCode),
		slog.String("group_id", r.InsuranceGroupID),
		slog.String("scope_level", r.Level().String()))

	if r.Scope.IsDefault() {
		e.warnConflictingDefaults(ctx, r)
	}
	return r, nil
}

func (e *Engine) warnConflictingDefaults(ctx context.Context, added *Rule) {
	defaults, err := e.defaults(ctx, added.InsuranceGroupID)
	if err != nil {
		return
	}
	for _, d := range defaults {
		if d.ID == added.ID {
			continue
		}
		if sameInsurer(d, added) && d.Action.StatusToSet != added.Action.StatusToSet {
			e.logger.Warn("conflicting insurance default rules",
				slog.String("group_id", added.InsuranceGroupID),
				slog.String("rule_code", added.RuleCode),
				slog.String("conflicts_with", d.RuleCode))
		}
	}
}

// UpdateRule replaces the scope, policy match type and action of a rule.
// Code, group, active flag and CreatedAt are kept.
func (e *Engine) UpdateRule(ctx context.Context, id string, scope Scope, matchType PolicyMatchType, action Action) (*Rule, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	existing, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	candidate, err := NewRule(existing.InsuranceGroupID, scope, matchType, action)
	if err != nil {
		return nil, err
	}

	existing.Scope = candidate.Scope
	existing.PolicyMatchType = candidate.PolicyMatchType
	existing.Action = candidate.Action
	existing.UpdatedAt = e.now()
	if err := e.store.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("update rule: %w", err)
	}
	e.cache.Invalidate()
	return existing, nil
}

// SetRuleActive sets the active flag of one rule.
func (e *Engine) SetRuleActive(ctx context.Context, id string, active bool) (*Rule, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	r, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.setActiveLocked(ctx, r, active)
}

// ToggleRule flips the active flag of one rule.
func (e *Engine) ToggleRule(ctx context.Context, id string) (*Rule, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	r, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.setActiveLocked(ctx, r, !r.IsActive)
}

func (e *Engine) setActiveLocked(ctx context.Context, r *Rule, active bool) (*Rule, error) {
	r.IsActive = active
	r.UpdatedAt = e.now()
	if err := e.store.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("set rule active: %w", err)
	}
	e.cache.Invalidate()
	e.logger.Info("rule active flag changed", slog.String("rule_code", r.RuleCode), slog.Bool("active", active))
	return r, nil
}

// BulkSetActive sets the active flag of every rule in a group and returns
// how many rules were written.
func (e *Engine) BulkSetActive(ctx context.Context, groupID string, active bool) (int, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if _, err := e.store.GetGroup(ctx, groupID); err != nil {
		return 0, err
	}
	rs, err := e.store.ListByGroup(ctx, groupID)
	if err != nil {
		return 0, err
	}

	now := e.now()
	for _, r := range rs {
		r.IsActive = active
		r.UpdatedAt = now
		if err := e.store.Update(ctx, r); err != nil {
			e.cache.Invalidate()
			return 0, fmt.Errorf("bulk set active: %w", err)
		}
	}
	e.cache.Invalidate()
	e.logger.Info("rules bulk updated", slog.String("group_id", groupID), slog.Bool("active", active), slog.Int("count", len(rs)))
	return len(rs), nil
}

// Rules lists every rule, including inactive ones.
func (e *Engine) Rules(ctx context.Context) ([]*Rule, error) {
	return e.store.List(ctx)
}

// RulesForGroup lists every rule in a group.
func (e *Engine) RulesForGroup(ctx context.Context, groupID string) ([]*Rule, error) {
	if _, err := e.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return e.store.ListByGroup(ctx, groupID)
}

// Rule fetches one rule by id.
func (e *Engine) Rule(ctx context.Context, id string) (*Rule, error) {
	return e.store.Get(ctx, id)
}

// Evaluation is the result of Evaluate.
type Evaluation struct {
	Decision    Decision `json:"decision"`
	Message     string   `json:"message"`
	StatusToSet string   `json:"statusToSet,omitempty"`
	AuditID     string   `json:"auditId"`
}

// Evaluate resolves in against the rules of groupID, or against every rule
// when groupID is empty, and appends exactly one EVALUATE audit entry. A
// missing winner is a normal result, not an error.
func (e *Engine) Evaluate(ctx context.Context, groupID string, in Inputs) (*Evaluation, error) {
	start := e.now()

	var groupName string
	if groupID != "" {
		g, err := e.store.GetGroup(ctx, groupID)
		if err != nil {
			return nil, err
		}
		groupName = g.Name
	}

	candidates, err := e.candidates(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	d := PickWinningRule(candidates, in)
	result := &Evaluation{Decision: d, Message: d.Reason}

	entry := AuditEntry{
		ID:                 e.newID(),
		CreatedAt:          e.now(),
		Type:               AuditEvaluate,
		InsuranceGroupName: groupName,
		Inputs:             in,
		Notes:              "No matching rule found.",
	}

	outcome := OutcomeNoMatch
	if d.Winner != nil {
		outcome = OutcomeMatched
		winner := d.Winner.Clone()
		result.Decision.Winner = winner
		result.StatusToSet = winner.Action.StatusToSet
		result.Message = fmt.Sprintf("%s → Status set to %q.", d.Reason, winner.Action.StatusToSet)

		entry.WinningRule = &WinningRule{
			RuleID:           winner.RuleCode,
			ScopeLevel:       winner.Level().String(),
			PrecedenceReason: d.Reason,
			StatusToSet:      winner.Action.StatusToSet,
		}
		entry.Notes = "Evaluation completed."
		if len(d.Conflicts) > 0 {
			entry.Notes += fmt.Sprintf(" Conflicting rules at the same precedence: %s.", strings.Join(d.Conflicts, ", "))
			e.logger.Warn("rule evaluation tie with conflicting outcomes",
				slog.String("winner", winner.RuleCode),
				slog.Any("conflicts", d.Conflicts))
		}
	}

	e.log.Append(entry)
	result.AuditID = entry.ID

	if e.recorder != nil {
		e.recorder.RecordRuleEvaluation(outcome, e.now().Sub(start))
	}
	e.logger.Info("rule evaluation",
		slog.String("outcome", outcome),
		slog.Int("candidates", d.Candidates),
		slog.String("group", groupName))

	return result, nil
}

// candidates returns the cached candidate list for a scope.
func (e *Engine) candidates(ctx context.Context, groupID string) ([]*Rule, error) {
	if rs, ok := e.cache.Get(groupID); ok {
		return rs, nil
	}

	gen := e.cache.Generation()
	var (
		rs  []*Rule
		err error
	)
	if groupID == AllRulesKey {
		rs, err = e.store.ListActive(ctx)
	} else {
		rs, err = e.store.ListByGroup(ctx, groupID)
	}
	if err != nil {
		return nil, err
	}
	e.cache.Set(groupID, rs, gen)
	return rs, nil
}

// BatchReEvaluate records a BATCH_EVALUATE request for a group. The batch
// itself runs in an external scheduler; only the audit contract lives here.
func (e *Engine) BatchReEvaluate(ctx context.Context, groupID string, in Inputs) (*AuditEntry, error) {
	g, err := e.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	entry := AuditEntry{
		ID:                 e.newID(),
		CreatedAt:          e.now(),
		Type:               AuditBatchEvaluate,
		InsuranceGroupName: g.Name,
		Inputs:             in,
		Notes:              "Batch re-evaluate queued for the external scheduler.",
	}
	e.log.Append(entry)
	e.logger.Info("batch re-evaluate requested", slog.String("group_id", groupID))
	return &entry, nil
}

// RecordOverride logs a manual status override against a rule code.
func (e *Engine) RecordOverride(ctx context.Context, ruleCode, statusToSet, notes string, in Inputs) (*AuditEntry, error) {
	statusToSet = strings.TrimSpace(statusToSet)
	if statusToSet == "" {
		return nil, invalidf("manual override requires statusToSet")
	}

	entry := AuditEntry{
		ID:        e.newID(),
		CreatedAt: e.now(),
		Type:      AuditManualOverride,
		Inputs:    in,
		Notes:     strings.TrimSpace(notes),
	}
	if ruleCode != "" {
		r, err := e.store.GetByCode(ctx, ruleCode)
		if err != nil {
			return nil, err
		}
		g, err := e.store.GetGroup(ctx, r.InsuranceGroupID)
		if err != nil {
			return nil, err
		}
		entry.InsuranceGroupName = g.Name
		entry.WinningRule = &WinningRule{
			RuleID:      r.RuleCode,
			ScopeLevel:  r.Level().String(),
			StatusToSet: statusToSet,
		}
	} else {
		entry.WinningRule = &WinningRule{StatusToSet: statusToSet}
	}

	e.log.Append(entry)
	return &entry, nil
}

// DuplicateDefaults returns the active insurance-default rules of a group
// that share an insurer with another active default setting a different
// status. Such rules are allowed but usually an authoring mistake.
func (e *Engine) DuplicateDefaults(ctx context.Context, groupID string) ([]*Rule, error) {
	defaults, err := e.defaults(ctx, groupID)
	if err != nil {
		return nil, err
	}

	var out []*Rule
	for _, a := range defaults {
		for _, b := range defaults {
			if a.ID != b.ID && sameInsurer(a, b) && a.Action.StatusToSet != b.Action.StatusToSet {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

func (e *Engine) defaults(ctx context.Context, groupID string) ([]*Rule, error) {
	rs, err := e.store.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	var out []*Rule
	for _, r := range rs {
		if r.IsActive && r.Scope.IsDefault() {
			out = append(out, r)
		}
	}
	return out, nil
}

func sameInsurer(a, b *Rule) bool {
	return strings.EqualFold(strings.TrimSpace(a.Scope.InsuranceName), strings.TrimSpace(b.Scope.InsuranceName))
}
