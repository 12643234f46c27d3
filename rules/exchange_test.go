package rules

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDecodeRules(t *testing.T) {
	data := []byte(`[
		{"insuranceGroupId": "g", "scope": {"insuranceName": " Aetna "}, "action": {"statusToSet": "Pending Benefits"}},
		{"ruleCode": "RULE-000007", "insuranceGroupId": "g", "isActive": false,
		 "scope": {"insuranceName": "BCBS", "policyId": "BCBS-"}, "policyMatchType": "STARTS_WITH",
		 "action": {"statusToSet": "Benefits Verified"}}
	]`)

	rs, err := DecodeRules(data)
	if err != nil {
		t.Fatalf("DecodeRules() failed: %v", err)
	}
	if len(rs) != 2 {
		t.Fatalf("len = %d, want 2", len(rs))
	}
	if rs[0].Scope.InsuranceName != "Aetna" || rs[0].PolicyMatchType != PolicyEquals || !rs[0].IsActive {
		t.Errorf("rule 0 = %+v", rs[0])
	}
	if rs[1].RuleCode != "RULE-000007" || rs[1].IsActive || rs[1].PolicyMatchType != PolicyStartsWith {
		t.Errorf("rule 1 = %+v", rs[1])
	}
}

func TestDecodeRulesRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"unknown field", `[{"insuranceGroupId":"g","scope":{"insuranceName":"A"},"action":{"statusToSet":"X"},"priority":1}]`},
		{"missing scope", `[{"insuranceGroupId":"g","action":{"statusToSet":"X"}}]`},
		{"missing action", `[{"insuranceGroupId":"g","scope":{"insuranceName":"A"}}]`},
		{"empty insurer", `[{"insuranceGroupId":"g","scope":{"insuranceName":""},"action":{"statusToSet":"X"}}]`},
		{"bad code", `[{"ruleCode":"R-1","insuranceGroupId":"g","scope":{"insuranceName":"A"},"action":{"statusToSet":"X"}}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeRules([]byte(tt.data)); !errors.Is(err, ErrInvalid) {
				t.Errorf("DecodeRules() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestEngineExportImport(t *testing.T) {
	ctx := context.Background()
	src := newTestEngine(t)
	g := mustGroup(t, src, "Aetna")
	mustRule(t, src, g.ID, Scope{InsuranceName: "Aetna"}, "Pending Benefits")
	r := mustRule(t, src, g.ID, Scope{InsuranceName: "Aetna", PlanType: "PPO"}, "Completed")
	if _, err := src.SetRuleActive(ctx, r.ID, false); err != nil {
		t.Fatalf("SetRuleActive() failed: %v", err)
	}

	data, err := src.ExportRules(ctx)
	if err != nil {
		t.Fatalf("ExportRules() failed: %v", err)
	}
	if !strings.Contains(string(data), `"ruleCode": "RULE-000002"`) {
		t.Errorf("export missing code:\n%s", data)
	}

	dst := newTestEngine(t)
	dg := mustGroup(t, dst, "Aetna")
	rewritten := strings.ReplaceAll(string(data), g.ID, dg.ID)

	imported, err := dst.ImportRules(ctx, []byte(rewritten))
	if err != nil {
		t.Fatalf("ImportRules() failed: %v", err)
	}
	if len(imported) != 2 {
		t.Fatalf("imported %d rules, want 2", len(imported))
	}

	next, err := dst.AddRule(ctx, dg.ID, Scope{InsuranceName: "Aetna", ClinicName: "North"}, PolicyEquals, Action{StatusToSet: "Escalated"})
	if err != nil {
		t.Fatalf("AddRule() failed: %v", err)
	}
	if next.RuleCode != "RULE-000003" {
		t.Errorf("code after import = %s, want RULE-000003", next.RuleCode)
	}

	res, _ := dst.Evaluate(ctx, dg.ID, Inputs{InsuranceName: "Aetna", PlanType: "PPO"})
	if res.StatusToSet != "Pending Benefits" {
		t.Errorf("StatusToSet = %q, inactive import should not match", res.StatusToSet)
	}

	if _, err := dst.ImportRules(ctx, []byte(rewritten)); !errors.Is(err, ErrDuplicate) {
		t.Errorf("re-import error = %v, want ErrDuplicate", err)
	}
	all, _ := dst.Rules(ctx)
	if len(all) != 3 {
		t.Errorf("rules after failed import = %d, want 3", len(all))
	}
}

func TestEngineImportUnknownGroup(t *testing.T) {
	e := newTestEngine(t)
	data := `[{"insuranceGroupId":"nope","scope":{"insuranceName":"A"},"action":{"statusToSet":"X"}}]`
	if _, err := e.ImportRules(context.Background(), []byte(data)); !errors.Is(err, ErrNotFound) {
		t.Errorf("ImportRules() error = %v, want ErrNotFound", err)
	}
}
