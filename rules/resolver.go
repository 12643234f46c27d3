package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/liamcoop/intakehub/condition"
)

// ScopeLevel is a rule's precedence score, taken from its most specific
// populated scope field.
type ScopeLevel int

const (
	LevelInsuranceDefault ScopeLevel = 100
	LevelPlan             ScopeLevel = 200
	LevelNetwork          ScopeLevel = 300
	LevelClinic           ScopeLevel = 400
	LevelGroup            ScopeLevel = 500
	LevelPolicy           ScopeLevel = 600
)

func (l ScopeLevel) String() string {
	switch l {
	case LevelPolicy:
		return "Policy"
	case LevelGroup:
		return "Group"
	case LevelClinic:
		return "Clinic"
	case LevelNetwork:
		return "Network"
	case LevelPlan:
		return "Plan"
	default:
		return "Insurance Default"
	}
}

// Level returns the scope level of r.
func (r *Rule) Level() ScopeLevel {
	s := r.Scope
	switch {
	case s.PolicyID != "":
		return LevelPolicy
	case s.GroupID != "":
		return LevelGroup
	case s.ClinicName != "":
		return LevelClinic
	case s.NetworkStatus != "":
		return LevelNetwork
	case s.PlanType != "":
		return LevelPlan
	default:
		return LevelInsuranceDefault
	}
}

// PrecedenceScore returns the numeric precedence of r; higher wins.
func PrecedenceScore(r *Rule) int {
	return int(r.Level())
}

// RuleMatches reports whether every populated scope field of r agrees with
// in. The policy id honours the rule's PolicyMatchType.
func RuleMatches(r *Rule, in Inputs) bool {
	s := r.Scope
	n := condition.Normalize

	if n(s.InsuranceName) != n(in.InsuranceName) {
		return false
	}
	if s.PlanType != "" && n(s.PlanType) != n(in.PlanType) {
		return false
	}
	if s.NetworkStatus != "" && n(s.NetworkStatus) != n(in.NetworkStatus) {
		return false
	}
	if s.ClinicName != "" && n(s.ClinicName) != n(in.ClinicName) {
		return false
	}
	if s.GroupID != "" && n(s.GroupID) != n(in.GroupID) {
		return false
	}
	if s.PolicyID != "" {
		rulePolicy, inputPolicy := n(s.PolicyID), n(in.PolicyID)
		if r.PolicyMatchType == PolicyStartsWith {
			return strings.HasPrefix(inputPolicy, rulePolicy)
		}
		return rulePolicy == inputPolicy
	}
	return true
}

// Decision is the outcome of resolving one set of inputs. A nil Winner is a
// normal "no decision" result.
type Decision struct {
	Winner     *Rule  `json:"winner"`
	Reason     string `json:"reason"`
	Candidates int    `json:"candidates"`
	// Conflicts lists the codes of candidates that tie with the winner on
	// precedence but would set a different status.
	Conflicts []string `json:"conflicts,omitempty"`
}

// NoMatchReason is the Decision reason when no active rule matches.
const NoMatchReason = "No matching enabled rule found."

// PickWinningRule filters rules to the active ones matching in and picks the
// highest precedence score, preferring the latest UpdatedAt on a tie. The
// result does not depend on the order of rules.
func PickWinningRule(rules []*Rule, in Inputs) Decision {
	var candidates []*Rule
	for _, r := range rules {
		if r.IsActive && RuleMatches(r, in) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return Decision{Reason: NoMatchReason}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := PrecedenceScore(candidates[i]), PrecedenceScore(candidates[j])
		if si != sj {
			return si > sj
		}
		ti, tj := candidates[i].UpdatedAt, candidates[j].UpdatedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return candidates[i].RuleCode > candidates[j].RuleCode
	})

	winner := candidates[0]
	var conflicts []string
	for _, c := range candidates[1:] {
		if PrecedenceScore(c) != PrecedenceScore(winner) {
			break
		}
		if condition.Normalize(c.Action.StatusToSet) != condition.Normalize(winner.Action.StatusToSet) {
			conflicts = append(conflicts, c.RuleCode)
		}
	}

	return Decision{
		Winner:     winner,
		Candidates: len(candidates),
		Conflicts:  conflicts,
		Reason: fmt.Sprintf("Matched %d rule(s). Winner chosen by precedence (%s) and latest update if tie.",
			len(candidates), winner.Level()),
	}
}
