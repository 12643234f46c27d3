package rules

import (
	"strings"
	"time"
)

// PolicyMatchType controls how a rule's policy id is compared.
type PolicyMatchType string

const (
	PolicyEquals     PolicyMatchType = "EQUALS"
	PolicyStartsWith PolicyMatchType = "STARTS_WITH"
)

// InsuranceGroup is an admin-created bucket of rules for one insurer.
// Groups are never deleted.
type InsuranceGroup struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Scope lists the attributes a rule applies to. InsuranceName is required;
// every other populated field narrows the match.
type Scope struct {
	InsuranceName string `json:"insuranceName"`
	PlanType      string `json:"planType,omitempty"`
	NetworkStatus string `json:"networkStatus,omitempty"`
	ClinicName    string `json:"clinicName,omitempty"`
	GroupID       string `json:"groupId,omitempty"`
	PolicyID      string `json:"policyId,omitempty"`
}

// IsDefault reports whether the scope names only the insurer.
func (s Scope) IsDefault() bool {
	return s.PlanType == "" && s.NetworkStatus == "" && s.ClinicName == "" &&
		s.GroupID == "" && s.PolicyID == ""
}

func (s Scope) trimmed() Scope {
	return Scope{
		InsuranceName: strings.TrimSpace(s.InsuranceName),
		PlanType:      strings.TrimSpace(s.PlanType),
		NetworkStatus: strings.TrimSpace(s.NetworkStatus),
		ClinicName:    strings.TrimSpace(s.ClinicName),
		GroupID:       strings.TrimSpace(s.GroupID),
		PolicyID:      strings.TrimSpace(s.PolicyID),
	}
}

// Action is what a winning rule does to the intake record.
type Action struct {
	StatusToSet string `json:"statusToSet"`
}

// Rule is a scoped status decision. Rules are never removed; IsActive is
// toggled instead, and UpdatedAt breaks precedence ties.
type Rule struct {
	ID               string          `json:"id"`
	RuleCode         string          `json:"ruleCode"`
	InsuranceGroupID string          `json:"insuranceGroupId"`
	IsActive         bool            `json:"isActive"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	Scope            Scope           `json:"scope"`
	PolicyMatchType  PolicyMatchType `json:"policyMatchType"`
	Action           Action          `json:"action"`
}

// NewRule builds an active rule with a validated scope. Identity, code and
// timestamps are assigned when the rule is stored.
func NewRule(groupID string, scope Scope, matchType PolicyMatchType, action Action) (*Rule, error) {
	if matchType == "" {
		matchType = PolicyEquals
	}
	r := &Rule{
		InsuranceGroupID: strings.TrimSpace(groupID),
		IsActive:         true,
		Scope:            scope.trimmed(),
		PolicyMatchType:  matchType,
		Action:           Action{StatusToSet: strings.TrimSpace(action.StatusToSet)},
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the fields every stored rule must carry.
func (r *Rule) Validate() error {
	if r.InsuranceGroupID == "" {
		return invalidf("rule requires an insurance group")
	}
	if strings.TrimSpace(r.Scope.InsuranceName) == "" {
		return invalidf("rule scope requires insuranceName")
	}
	switch r.PolicyMatchType {
	case PolicyEquals, PolicyStartsWith:
	default:
		return invalidf("unknown policyMatchType %q", r.PolicyMatchType)
	}
	if strings.TrimSpace(r.Action.StatusToSet) == "" {
		return invalidf("rule action requires statusToSet")
	}
	return nil
}

// Clone returns a copy of r that shares no mutable state.
func (r *Rule) Clone() *Rule {
	c := *r
	return &c
}

// Inputs are the attributes a rule is resolved against.
type Inputs struct {
	ClinicName    string `json:"clinicName"`
	InsuranceName string `json:"insuranceName"`
	PolicyID      string `json:"policyId"`
	GroupID       string `json:"groupId"`
	NetworkStatus string `json:"networkStatus"`
	PlanType      string `json:"planType"`
}
