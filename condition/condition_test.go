package condition

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	if got := Normalize("  Pending Benefits \t"); got != "pending benefits" {
		t.Errorf("Normalize() = %q, want %q", got, "pending benefits")
	}
}

func TestMatches(t *testing.T) {
	rec := Values{
		FieldStatus:     "  Pending Benefits ",
		FieldPolicyID:   "BCBS-99812",
		FieldClinicFlag: "",
	}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equals after normalization", Condition{Field: FieldStatus, Operator: OpEquals, Value: "pending benefits"}, true},
		{"equals mismatch", Condition{Field: FieldStatus, Operator: OpEquals, Value: "Completed"}, false},
		{"not equals", Condition{Field: FieldStatus, Operator: OpNotEquals, Value: "Completed"}, true},
		{"starts with", Condition{Field: FieldPolicyID, Operator: OpStartsWith, Value: "bcbs-"}, true},
		{"starts with mismatch", Condition{Field: FieldPolicyID, Operator: OpStartsWith, Value: "AET"}, false},
		{"contains", Condition{Field: FieldPolicyID, Operator: OpContains, Value: "998"}, true},
		{"is filled ignores value", Condition{Field: FieldPolicyID, Operator: OpIsFilled, Value: "whatever"}, true},
		{"is filled on blank", Condition{Field: FieldClinicFlag, Operator: OpIsFilled}, false},
		{"is empty on missing field", Condition{Field: FieldGroupID, Operator: OpIsEmpty}, true},
		{"unknown operator", Condition{Field: FieldStatus, Operator: "LIKE", Value: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.cond, rec); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGroupMatchesVacuous(t *testing.T) {
	rec := Values{}
	if !GroupMatches(nil, rec) {
		t.Error("nil group should match")
	}
	if !GroupMatches(&Group{Op: And, Items: []Condition{}}, rec) {
		t.Error("empty group should match")
	}
}

func TestGroupMatchesAndOr(t *testing.T) {
	rec := Values{FieldStatus: "Escalated", FieldNetworkStatus: "In Network"}
	items := []Condition{
		{Field: FieldStatus, Operator: OpEquals, Value: "Escalated"},
		{Field: FieldNetworkStatus, Operator: OpEquals, Value: "Out of Network"},
	}

	if GroupMatches(&Group{Op: And, Items: items}, rec) {
		t.Error("AND group should not match when one item fails")
	}
	if !GroupMatches(&Group{Op: Or, Items: items}, rec) {
		t.Error("OR group should match when one item passes")
	}
}

func TestNewConditionDropsValueForLengthOperators(t *testing.T) {
	c, err := NewCondition(FieldStatus, OpIsEmpty, "ignored")
	if err != nil {
		t.Fatalf("NewCondition() error = %v", err)
	}
	if c.Value != "" {
		t.Errorf("Value = %q, want empty", c.Value)
	}

	if _, err := NewCondition("", OpEquals, "x"); !errors.Is(err, ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}
	if _, err := NewCondition(FieldStatus, "LIKE", "x"); !errors.Is(err, ErrUnknownOperator) {
		t.Errorf("expected ErrUnknownOperator, got %v", err)
	}
}

func TestNewGroupValidation(t *testing.T) {
	g, err := NewGroup("")
	if err != nil {
		t.Fatalf("NewGroup() error = %v", err)
	}
	if g.Op != And || g.Items == nil {
		t.Errorf("NewGroup() = %+v, want AND with non-nil items", g)
	}

	if _, err := NewGroup("XOR"); !errors.Is(err, ErrUnknownGroupOp) {
		t.Errorf("expected ErrUnknownGroupOp, got %v", err)
	}
}

func TestGroupUnmarshalRequiresItems(t *testing.T) {
	var g Group
	err := json.Unmarshal([]byte(`{"groupOp":"AND"}`), &g)
	if !errors.Is(err, ErrMissingItems) {
		t.Fatalf("expected ErrMissingItems, got %v", err)
	}

	if err := json.Unmarshal([]byte(`{"groupOp":"OR","items":[]}`), &g); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Op != Or || len(g.Items) != 0 {
		t.Errorf("decoded group = %+v", g)
	}

	err = json.Unmarshal([]byte(`{"groupOp":"AND","items":[{"field":"status","operator":"BETWEEN"}]}`), &g)
	if !errors.Is(err, ErrUnknownOperator) {
		t.Errorf("expected ErrUnknownOperator, got %v", err)
	}
}

func TestGroupCloneIsIndependent(t *testing.T) {
	g := &Group{Op: And, Items: []Condition{{Field: FieldStatus, Operator: OpEquals, Value: "A"}}}
	c := g.Clone()
	c.Items[0].Value = "B"
	if g.Items[0].Value != "A" {
		t.Error("mutating the clone changed the original")
	}
	if (*Group)(nil).Clone() != nil {
		t.Error("clone of nil should be nil")
	}
}

func TestConditionRejectsUnknownField(t *testing.T) {
	for _, f := range Fields {
		if _, err := NewCondition(f, OpIsEmpty, ""); err != nil {
			t.Errorf("NewCondition(%q) failed: %v", f, err)
		}
	}

	for _, f := range []string{"stauts", "Status", " status", "record.status"} {
		if _, err := NewCondition(f, OpIsEmpty, ""); !errors.Is(err, ErrUnknownField) {
			t.Errorf("NewCondition(%q) error = %v, want ErrUnknownField", f, err)
		}
	}

	var g Group
	err := json.Unmarshal([]byte(`{"groupOp":"AND","items":[{"field":"stauts","operator":"IS_EMPTY"}]}`), &g)
	if !errors.Is(err, ErrUnknownField) {
		t.Errorf("json.Unmarshal() error = %v, want ErrUnknownField", err)
	}
	if _, err := NewGroup(Or, Condition{Field: "plan", Operator: OpEquals, Value: "HMO"}); !errors.Is(err, ErrUnknownField) {
		t.Errorf("NewGroup() error = %v, want ErrUnknownField", err)
	}
}
