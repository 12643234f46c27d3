// Package workflow models intake automations as directed graphs of nodes and
// prioritised IF/ELSE edges, validates and versions them, and walks the
// latest published version against an input record.
package workflow

import (
	"time"

	"github.com/liamcoop/intakehub/condition"
)

// NodeKind is the role a node plays in the graph.
type NodeKind string

const (
	KindTrigger  NodeKind = "TRIGGER"
	KindAction   NodeKind = "ACTION"
	KindDecision NodeKind = "DECISION"
	KindEnd      NodeKind = "END"
)

func (k NodeKind) Valid() bool {
	switch k {
	case KindTrigger, KindAction, KindDecision, KindEnd:
		return true
	}
	return false
}

// AccountType partitions workflows by intake line of business.
type AccountType string

const (
	AccountEV   AccountType = "EV"
	AccountPA   AccountType = "PA"
	AccountIV   AccountType = "IV"
	AccountWCPI AccountType = "WCPI"
)

// AccountTypes lists every account type in display order.
var AccountTypes = []AccountType{AccountEV, AccountPA, AccountIV, AccountWCPI}

func (a AccountType) Valid() bool {
	switch a {
	case AccountEV, AccountPA, AccountIV, AccountWCPI:
		return true
	}
	return false
}

// TriggerType names what caused a workflow run.
type TriggerType string

const (
	TriggerRuleEngine     TriggerType = "RULE_ENGINE"
	TriggerStatusChange   TriggerType = "STATUS_CHANGE"
	TriggerFieldUpdate    TriggerType = "FIELD_UPDATE"
	TriggerManualOverride TriggerType = "MANUAL_OVERRIDE"
)

func (t TriggerType) Valid() bool {
	switch t {
	case TriggerRuleEngine, TriggerStatusChange, TriggerFieldUpdate, TriggerManualOverride:
		return true
	}
	return false
}

// ClinicFlag is the lifecycle tag carried by a clinic.
type ClinicFlag string

const (
	ClinicOnboarding ClinicFlag = "Onboarding"
	ClinicActive     ClinicFlag = "Active"
	ClinicAtRisk     ClinicFlag = "At_Risk"
	ClinicVIP        ClinicFlag = "VIP"
	ClinicTraining   ClinicFlag = "Training"
)

// Status values offered to SET_STATUS actions and rule actions.
var StatusOptions = []string{
	"Benefits Verified",
	"Pending Benefits",
	"Need More Info",
	"Out of Network",
	"Escalated",
	"Completed",
}

// Node is one state of the graph. DECISION nodes hold no logic; branching
// lives on outgoing edges.
type Node struct {
	ID      string   `json:"id"`
	Kind    NodeKind `json:"kind"`
	Name    string   `json:"name"`
	Actions []Action `json:"actions"`
}

// ElsePriority is the priority given to edges turned into ELSE branches.
const ElsePriority = 999

// Edge is a transition. A nil or empty Condition makes it an ELSE edge;
// lower Priority is evaluated first.
type Edge struct {
	ID        string           `json:"id"`
	Source    string           `json:"source"`
	Target    string           `json:"target"`
	Priority  int              `json:"priority"`
	Label     string           `json:"label"`
	Condition *condition.Group `json:"conditionGroup"`
}

// IsElse reports whether e is a fallback edge.
func (e Edge) IsElse() bool {
	return e.Condition.IsEmpty()
}

// Definition is a workflow graph.
type Definition struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node returns the node with id, or nil.
func (d *Definition) Node(id string) *Node {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}

// Trigger returns the first TRIGGER node, or nil.
func (d *Definition) Trigger() *Node {
	for i := range d.Nodes {
		if d.Nodes[i].Kind == KindTrigger {
			return &d.Nodes[i]
		}
	}
	return nil
}

// Clone returns a deep copy of d.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	c := &Definition{
		Nodes: make([]Node, len(d.Nodes)),
		Edges: make([]Edge, len(d.Edges)),
	}
	for i, n := range d.Nodes {
		n.Actions = cloneActions(n.Actions)
		c.Nodes[i] = n
	}
	for i, e := range d.Edges {
		e.Condition = e.Condition.Clone()
		c.Edges[i] = e
	}
	return c
}

// Version is an immutable published snapshot of a definition. Nothing may
// modify a Version, or its Definition, once it has been stored.
type Version struct {
	Version    int         `json:"version"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
	Definition *Definition `json:"definition"`
}

// Enrollment is the gate an input must pass before entering the graph.
type Enrollment struct {
	Enabled     bool             `json:"enabled"`
	TriggerType TriggerType      `json:"triggerType"`
	ReEnroll    bool             `json:"reEnroll"`
	Group       *condition.Group `json:"enrollmentGroup"`
}

func (e Enrollment) clone() Enrollment {
	e.Group = e.Group.Clone()
	return e
}

// Meta is a workflow: an editable draft plus its published versions,
// newest first.
type Meta struct {
	ID          string      `json:"id"`
	AccountType AccountType `json:"accountType"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	IsActive    bool        `json:"isActive"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	Draft       *Definition `json:"draft"`
	Versions    []*Version  `json:"versions"`
	Enrollment  Enrollment  `json:"enrollment"`
}

// Latest returns the highest-numbered version, or nil.
func (m *Meta) Latest() *Version {
	var latest *Version
	for _, v := range m.Versions {
		if latest == nil || v.Version > latest.Version {
			latest = v
		}
	}
	return latest
}

// Clone copies the mutable parts of m. Versions are shared, never copied.
func (m *Meta) Clone() *Meta {
	c := *m
	c.Draft = m.Draft.Clone()
	c.Versions = append([]*Version(nil), m.Versions...)
	c.Enrollment = m.Enrollment.clone()
	return &c
}

// Inputs is the record a workflow runs against.
type Inputs struct {
	EntityID        string     `json:"entityId"`
	ClinicFlag      ClinicFlag `json:"clinicFlag"`
	ClinicName      string     `json:"clinicName,omitempty"`
	Status          string     `json:"status"`
	InsuranceName   string     `json:"insuranceName"`
	PlanType        string     `json:"planType"`
	NetworkStatus   string     `json:"networkStatus"`
	PolicyID        string     `json:"policyId"`
	GroupID         string     `json:"groupId"`
	WinningRuleCode string     `json:"winningRuleCode"`
}

var _ condition.Record = Inputs{}

// Value maps condition field names onto the input record.
func (in Inputs) Value(field string) string {
	switch field {
	case condition.FieldClinicFlag:
		return string(in.ClinicFlag)
	case condition.FieldStatus:
		return in.Status
	case condition.FieldInsuranceName:
		return in.InsuranceName
	case condition.FieldPlanType:
		return in.PlanType
	case condition.FieldNetworkStatus:
		return in.NetworkStatus
	case condition.FieldPolicyID:
		return in.PolicyID
	case condition.FieldGroupID:
		return in.GroupID
	case condition.FieldWinningRuleCode:
		return in.WinningRuleCode
	case condition.FieldClinicName:
		return in.ClinicName
	case condition.FieldEntityID:
		return in.EntityID
	}
	return ""
}
