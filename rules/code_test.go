package rules

import "testing"

func TestFormatRuleCode(t *testing.T) {
	if got := FormatRuleCode(123); got != "RULE-000123" {
		t.Errorf("FormatRuleCode(123) = %s", got)
	}
}

func TestParseRuleCode(t *testing.T) {
	tests := []struct {
		code string
		n    int
		ok   bool
	}{
		{"RULE-000042", 42, true},
		{" RULE-1 ", 1, true},
		{"RULE-", 0, false},
		{"RULE-abc", 0, false},
		{"POLICY-000001", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		n, ok := ParseRuleCode(tt.code)
		if n != tt.n || ok != tt.ok {
			t.Errorf("ParseRuleCode(%q) = (%d, %v), want (%d, %v)", tt.code, n, ok, tt.n, tt.ok)
		}
	}
}

func TestNextRuleCode(t *testing.T) {
	if got := NextRuleCode(nil); got != "RULE-000001" {
		t.Errorf("NextRuleCode(nil) = %s", got)
	}
	got := NextRuleCode([]string{"RULE-000003", "bogus", "RULE-000010", "RULE-000007"})
	if got != "RULE-000011" {
		t.Errorf("NextRuleCode() = %s, want RULE-000011", got)
	}
}
