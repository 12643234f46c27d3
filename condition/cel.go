package condition

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// recordVar is the CEL variable holding the normalized record fields.
const recordVar = "record"

// DefaultCostLimit bounds the evaluation cost of a compiled group.
const DefaultCostLimit = 1000000

// CELMatcher compiles condition groups to CEL programs and caches them by
// expression text. It is safe for concurrent use.
type CELMatcher struct {
	env       *cel.Env
	costLimit uint64
	programs  map[string]cel.Program
	mu        sync.RWMutex
}

// NewCELMatcher creates a matcher with a CEL environment declaring a single
// map<string, string> variable.
func NewCELMatcher() (*CELMatcher, error) {
	env, err := cel.NewEnv(
		cel.Variable(recordVar, cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &CELMatcher{
		env:       env,
		costLimit: DefaultCostLimit,
		programs:  make(map[string]cel.Program),
	}, nil
}

// Expression renders g as a CEL boolean expression over the record variable.
// Literals are normalized at translation time; record values are normalized
// when the activation is built.
func Expression(g *Group) (string, error) {
	if g.IsEmpty() {
		return "true", nil
	}
	if err := g.Validate(); err != nil {
		return "", err
	}

	parts := make([]string, 0, len(g.Items))
	for _, c := range g.Items {
		field := fmt.Sprintf("%s[%s]", recordVar, strconv.Quote(c.Field))
		value := strconv.Quote(Normalize(c.Value))

		var expr string
		switch c.Operator {
		case OpEquals:
			expr = field + " == " + value
		case OpNotEquals:
			expr = field + " != " + value
		case OpStartsWith:
			expr = field + ".startsWith(" + value + ")"
		case OpContains:
			expr = field + ".contains(" + value + ")"
		case OpIsFilled:
			expr = "size(" + field + ") > 0"
		case OpIsEmpty:
			expr = "size(" + field + ") == 0"
		}
		parts = append(parts, "("+expr+")")
	}

	joiner := " && "
	if g.Op == Or {
		joiner = " || "
	}
	return strings.Join(parts, joiner), nil
}

// Compile returns the cached program for g, compiling it on first use.
func (m *CELMatcher) Compile(g *Group) (cel.Program, error) {
	expr, err := Expression(g)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	prog, ok := m.programs[expr]
	m.mu.RUnlock()
	if ok {
		return prog, nil
	}

	ast, issues := m.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression %q does not yield a bool", expr)
	}

	prog, err = m.env.Program(ast, cel.CostLimit(m.costLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	m.mu.Lock()
	m.programs[expr] = prog
	m.mu.Unlock()

	return prog, nil
}

// Match evaluates g against rec through its compiled program.
func (m *CELMatcher) Match(g *Group, rec Record) (bool, error) {
	if g.IsEmpty() {
		return true, nil
	}
	prog, err := m.Compile(g)
	if err != nil {
		return false, err
	}

	fields := make(map[string]string, len(g.Items))
	for _, c := range g.Items {
		fields[c.Field] = Normalize(rec.Value(c.Field))
	}

	out, _, err := prog.Eval(map[string]any{recordVar: fields})
	if err != nil {
		return false, fmt.Errorf("evaluate condition group: %w", err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition group evaluated to %T, want bool", out.Value())
	}
	return matched, nil
}

// Cached reports how many distinct programs have been compiled.
func (m *CELMatcher) Cached() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.programs)
}
