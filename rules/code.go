package rules

import (
	"fmt"
	"strconv"
	"strings"
)

const codePrefix = "RULE-"

// FormatRuleCode renders n as a zero-padded rule code, e.g. RULE-000123.
func FormatRuleCode(n int) string {
	return fmt.Sprintf("%s%06d", codePrefix, n)
}

// ParseRuleCode extracts the numeric suffix of a rule code.
func ParseRuleCode(code string) (int, bool) {
	suffix, ok := strings.CutPrefix(strings.TrimSpace(code), codePrefix)
	if !ok || suffix == "" {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// NextRuleCode returns max(existing suffix) + 1 as a rule code. Malformed
// codes are ignored. Stores use it only to seed their own counters.
func NextRuleCode(codes []string) string {
	return FormatRuleCode(maxRuleCode(codes) + 1)
}

func maxRuleCode(codes []string) int {
	highest := 0
	for _, c := range codes {
		if n, ok := ParseRuleCode(c); ok && n > highest {
			highest = n
		}
	}
	return highest
}
