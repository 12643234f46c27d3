package main

import (
	"github.com/liamcoop/intakehub/rules"
	"github.com/liamcoop/intakehub/workflow"
)

// API request and response models

// CreateGroupRequest is the body for creating an insurance group
type CreateGroupRequest struct {
	Name string `json:"name" example:"Delta Dental"`
}

// GroupsListResponse lists insurance groups
type GroupsListResponse struct {
	Groups []*rules.InsuranceGroup `json:"groups"`
}

// SetActiveRequest toggles a rule, a workflow or every rule of a group
type SetActiveRequest struct {
	Active *bool `json:"active"`
}

// BulkSetActiveResponse reports how many rules changed state
type BulkSetActiveResponse struct {
	Updated int `json:"updated"`
}

// RuleRequest is the body for creating or updating a rule
type RuleRequest struct {
	InsuranceGroupID string                `json:"insuranceGroupId"`
	Scope            rules.Scope           `json:"scope"`
	PolicyMatchType  rules.PolicyMatchType `json:"policyMatchType" example:"EQUALS"`
	Action           rules.Action          `json:"action"`
}

// RulesListResponse lists rules
type RulesListResponse struct {
	Rules []*rules.Rule `json:"rules"`
	Count int           `json:"count"`
}

// EvaluateRequest resolves a record against one group, or every group when
// InsuranceGroupID is empty
type EvaluateRequest struct {
	InsuranceGroupID string       `json:"insuranceGroupId,omitempty"`
	Inputs           rules.Inputs `json:"inputs"`
}

// OverrideRequest records a manual status override
type OverrideRequest struct {
	RuleCode    string       `json:"ruleCode,omitempty" example:"R-0007"`
	StatusToSet string       `json:"statusToSet" example:"Escalated"`
	Notes       string       `json:"notes,omitempty"`
	Inputs      rules.Inputs `json:"inputs"`
}

// ImportRulesResponse lists the imported rules
type ImportRulesResponse struct {
	Imported int           `json:"imported"`
	Rules    []*rules.Rule `json:"rules"`
}

// CreateWorkflowRequest is the body for creating a workflow
type CreateWorkflowRequest struct {
	AccountType workflow.AccountType `json:"accountType" example:"PA"`
	Name        string               `json:"name" example:"VIP escalation"`
	Description string               `json:"description,omitempty"`
}

// WorkflowsListResponse lists workflows
type WorkflowsListResponse struct {
	Workflows []*workflow.Meta `json:"workflows"`
	Count     int              `json:"count"`
}

// RunRequest executes the latest published version of a workflow
type RunRequest struct {
	TriggerType workflow.TriggerType `json:"triggerType,omitempty" example:"RULE_ENGINE"`
	Inputs      workflow.Inputs      `json:"inputs"`
}

// AddDispositionRequest is the body for adding a disposition
type AddDispositionRequest struct {
	Code       int    `json:"code" example:"31"`
	Name       string `json:"name" example:"Portal Down"`
	Queue      string `json:"queue" example:"Automations"`
	OutcomeTag string `json:"outcomeTag,omitempty"`
}

// SetEnabledRequest enables or disables a disposition or queue
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// DispositionWorkflowRequest picks the account type of a new disposition
// workflow
type DispositionWorkflowRequest struct {
	AccountType workflow.AccountType `json:"accountType" example:"EV"`
}

// AddQueueRequest is the body for adding a work queue
type AddQueueRequest struct {
	Name string `json:"name" example:"Escalations"`
}
