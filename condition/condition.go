// Package condition evaluates field comparisons and AND/OR groups of them
// against an input record. Both the rule resolver and the workflow executor
// build on it.
package condition

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingItems    = errors.New("condition group requires an items array")
	ErrMissingField    = errors.New("condition requires a field")
	ErrUnknownField    = errors.New("unknown condition field")
	ErrUnknownOperator = errors.New("unknown condition operator")
	ErrUnknownGroupOp  = errors.New("unknown group operator")
)

// Operator is the comparison a Condition applies.
type Operator string

const (
	OpEquals     Operator = "EQUALS"
	OpNotEquals  Operator = "NOT_EQUALS"
	OpStartsWith Operator = "STARTS_WITH"
	OpContains   Operator = "CONTAINS"
	OpIsFilled   Operator = "IS_FILLED"
	OpIsEmpty    Operator = "IS_EMPTY"
)

// Valid reports whether op is one of the known operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpStartsWith, OpContains, OpIsFilled, OpIsEmpty:
		return true
	}
	return false
}

// UsesValue is false for the length-only operators.
func (op Operator) UsesValue() bool {
	return op != OpIsFilled && op != OpIsEmpty
}

// GroupOp combines the items of a Group.
type GroupOp string

const (
	And GroupOp = "AND"
	Or  GroupOp = "OR"
)

// Field names understood by workflow inputs.
const (
	FieldClinicFlag      = "clinic_flag"
	FieldStatus          = "status"
	FieldInsuranceName   = "insurance_name"
	FieldPlanType        = "plan_type"
	FieldNetworkStatus   = "network_status"
	FieldPolicyID        = "policy_id"
	FieldGroupID         = "group_id"
	FieldWinningRuleCode = "winning_rule_code"
	FieldClinicName      = "clinic_name"
	FieldEntityID        = "entity_id"
)

// Fields lists every field a condition may reference, in display order.
var Fields = []string{
	FieldClinicFlag,
	FieldStatus,
	FieldInsuranceName,
	FieldPlanType,
	FieldNetworkStatus,
	FieldPolicyID,
	FieldGroupID,
	FieldWinningRuleCode,
	FieldClinicName,
	FieldEntityID,
}

// KnownField reports whether name is one of Fields. Names are matched
// exactly.
func KnownField(name string) bool {
	for _, f := range Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Record is anything a condition can read a field value from. Unknown fields
// read as the empty string.
type Record interface {
	Value(field string) string
}

// Values is a map-backed Record.
type Values map[string]string

func (v Values) Value(field string) string { return v[field] }

// Condition compares one field of a record against a value.
type Condition struct {
	ID       string   `json:"id,omitempty"`
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value,omitempty"`
}

// NewCondition builds a validated Condition. The value is dropped for
// IS_FILLED and IS_EMPTY.
func NewCondition(field string, op Operator, value string) (Condition, error) {
	c := Condition{Field: field, Operator: op, Value: value}
	if !op.UsesValue() {
		c.Value = ""
	}
	if err := c.Validate(); err != nil {
		return Condition{}, err
	}
	return c, nil
}

// Validate checks that the condition names a known field and operator.
func (c Condition) Validate() error {
	if strings.TrimSpace(c.Field) == "" {
		return ErrMissingField
	}
	if !KnownField(c.Field) {
		return fmt.Errorf("%w: %q (must be one of: %s)", ErrUnknownField, c.Field, strings.Join(Fields, ", "))
	}
	if !c.Operator.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownOperator, c.Operator)
	}
	return nil
}

// Group is an AND/OR combination of conditions. A nil group or one with no
// items matches everything.
type Group struct {
	ID    string      `json:"id,omitempty"`
	Op    GroupOp     `json:"groupOp"`
	Items []Condition `json:"items"`
}

// NewGroup builds a validated group. An empty op defaults to AND.
func NewGroup(op GroupOp, items ...Condition) (*Group, error) {
	if op == "" {
		op = And
	}
	g := &Group{Op: op, Items: items}
	if g.Items == nil {
		g.Items = []Condition{}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// IsEmpty reports whether g places no constraint on the record.
func (g *Group) IsEmpty() bool {
	return g == nil || len(g.Items) == 0
}

// Validate checks the operator and every item.
func (g *Group) Validate() error {
	if g == nil {
		return nil
	}
	if g.Op != And && g.Op != Or {
		return fmt.Errorf("%w: %q", ErrUnknownGroupOp, g.Op)
	}
	if g.Items == nil {
		return ErrMissingItems
	}
	for i, item := range g.Items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

// Clone returns a deep copy of g.
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	out := &Group{ID: g.ID, Op: g.Op, Items: make([]Condition, len(g.Items))}
	copy(out.Items, g.Items)
	return out
}

// UnmarshalJSON rejects groups that omit the items array instead of
// treating them as empty.
func (g *Group) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID    string       `json:"id"`
		Op    GroupOp      `json:"groupOp"`
		Items *[]Condition `json:"items"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Items == nil {
		return ErrMissingItems
	}
	*g = Group{ID: raw.ID, Op: raw.Op, Items: *raw.Items}
	if g.Op == "" {
		g.Op = And
	}
	return g.Validate()
}

// Normalize trims and lower-cases s. Every comparison runs on normalized
// values on both sides.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Matches evaluates a single condition. An unknown operator never matches.
func Matches(c Condition, rec Record) bool {
	fv := Normalize(rec.Value(c.Field))
	cv := Normalize(c.Value)

	switch c.Operator {
	case OpIsFilled:
		return len(fv) > 0
	case OpIsEmpty:
		return len(fv) == 0
	case OpEquals:
		return fv == cv
	case OpNotEquals:
		return fv != cv
	case OpStartsWith:
		return strings.HasPrefix(fv, cv)
	case OpContains:
		return strings.Contains(fv, cv)
	default:
		return false
	}
}

// GroupMatches evaluates g against rec. Every item is evaluated before the
// results are combined.
func GroupMatches(g *Group, rec Record) bool {
	if g.IsEmpty() {
		return true
	}
	results := make([]bool, len(g.Items))
	for i, c := range g.Items {
		results[i] = Matches(c, rec)
	}

	if g.Op == Or {
		for _, ok := range results {
			if ok {
				return true
			}
		}
		return false
	}
	for _, ok := range results {
		if !ok {
			return false
		}
	}
	return true
}

// Matcher decides whether a record satisfies a group.
type Matcher interface {
	Match(g *Group, rec Record) (bool, error)
}

// Native evaluates groups directly with GroupMatches.
type Native struct{}

func (Native) Match(g *Group, rec Record) (bool, error) {
	return GroupMatches(g, rec), nil
}
