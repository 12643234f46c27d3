package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// RuleDocument is the portable shape of a rule.
type RuleDocument struct {
	RuleCode         string          `json:"ruleCode,omitempty"`
	InsuranceGroupID string          `json:"insuranceGroupId"`
	IsActive         *bool           `json:"isActive,omitempty"`
	Scope            *Scope          `json:"scope"`
	PolicyMatchType  PolicyMatchType `json:"policyMatchType,omitempty"`
	Action           *Action         `json:"action"`
}

// ExportRules renders rules as an indented JSON array of rule documents.
func ExportRules(rs []*Rule) ([]byte, error) {
	docs := make([]RuleDocument, len(rs))
	for i, r := range rs {
		active := r.IsActive
		scope := r.Scope
		action := r.Action
		docs[i] = RuleDocument{
			RuleCode:         r.RuleCode,
			InsuranceGroupID: r.InsuranceGroupID,
			IsActive:         &active,
			Scope:            &scope,
			PolicyMatchType:  r.PolicyMatchType,
			Action:           &action,
		}
	}
	return json.MarshalIndent(docs, "", "  ")
}

// DecodeRules parses a JSON array of rule documents into validated rules.
// Unknown fields and documents missing scope, scope.insuranceName or action
// are rejected.
func DecodeRules(data []byte) ([]*Rule, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var docs []RuleDocument
	if err := dec.Decode(&docs); err != nil {
		return nil, invalidf("decode rules: %v", err)
	}

	out := make([]*Rule, 0, len(docs))
	for i, d := range docs {
		if d.Scope == nil {
			return nil, invalidf("rule %d: missing scope", i)
		}
		if d.Action == nil {
			return nil, invalidf("rule %d: missing action", i)
		}
		r, err := NewRule(d.InsuranceGroupID, *d.Scope, d.PolicyMatchType, *d.Action)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if d.RuleCode != "" {
			if _, ok := ParseRuleCode(d.RuleCode); !ok {
				return nil, invalidf("rule %d: malformed ruleCode %q", i, d.RuleCode)
			}
			r.RuleCode = d.RuleCode
		}
		if d.IsActive != nil {
			r.IsActive = *d.IsActive
		}
		out = append(out, r)
	}
	return out, nil
}

// ExportRules renders every stored rule.
func (e *Engine) ExportRules(ctx context.Context) ([]byte, error) {
	rs, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return ExportRules(rs)
}

// ImportRules decodes and stores rule documents. All documents are checked
// before any is written; codes present in the documents are kept and
// advance the store's counter.
func (e *Engine) ImportRules(ctx context.Context, data []byte) ([]*Rule, error) {
	rs, err := DecodeRules(data)
	if err != nil {
		return nil, err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	seen := make(map[string]bool)
	for i, r := range rs {
		if _, err := e.store.GetGroup(ctx, r.InsuranceGroupID); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if r.RuleCode == "" {
			continue
		}
		if seen[r.RuleCode] {
			return nil, fmt.Errorf("%w: rule code %s appears twice", ErrDuplicate, r.RuleCode)
		}
		seen[r.RuleCode] = true
		if _, err := e.store.GetByCode(ctx, r.RuleCode); err == nil {
			return nil, fmt.Errorf("%w: rule code %s", ErrDuplicate, r.RuleCode)
		}
	}

	now := e.now()
	for _, r := range rs {
		r.ID = e.newID()
		r.CreatedAt = now
		r.UpdatedAt = now
		if err := e.store.Add(ctx, r); err != nil {
			e.cache.Invalidate()
			return nil, fmt.Errorf("import rule: %w", err)
		}
	}
	e.cache.Invalidate()
	e.logger.Info("rules imported", slog.Int("count", len(rs)))
	return rs, nil
}
