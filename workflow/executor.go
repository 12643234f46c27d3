package workflow

import (
	"fmt"
	"sort"

	"github.com/liamcoop/intakehub/condition"
)

// Outcome classifies how a run ended.
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeNoOutgoing Outcome = "no_outgoing_path"
	OutcomeNoBranch   Outcome = "no_matching_branch"

	// Defects: the run is aborted with OK false.
	OutcomeLoop           Outcome = "loop_detected"
	OutcomeMissingNode    Outcome = "missing_node"
	OutcomeNoTrigger      Outcome = "missing_trigger"
	OutcomeConditionError Outcome = "condition_error"

	// Gates checked by the Runner before execution.
	OutcomeInactive    Outcome = "inactive"
	OutcomeNotEnrolled Outcome = "not_enrolled"
)

// PathStep is one traversed edge, recorded by node names.
type PathStep struct {
	From      string `json:"from"`
	To        string `json:"to"`
	EdgeLabel string `json:"edgeLabel,omitempty"`
}

// ExecutedAction is an applied action with its display summary.
type ExecutedAction struct {
	Action  Action     `json:"-"`
	Type    ActionType `json:"type"`
	Summary string     `json:"summary"`
}

// Result is the trace of one execution. ChosenPath is the last traversed
// edge; Path holds all of them in order.
type Result struct {
	OK              bool             `json:"ok"`
	Outcome         Outcome          `json:"outcome"`
	Reason          string           `json:"reason"`
	ExecutedActions []ExecutedAction `json:"executedActions"`
	FinalStatus     string           `json:"finalStatus"`
	AssignedTo      string           `json:"assignedTo"`
	ChosenPath      *PathStep        `json:"chosenPath"`
	Path            []PathStep       `json:"path"`
}

// Executor walks a definition from its trigger. It holds no per-run state
// and is safe for concurrent use.
type Executor struct {
	matcher condition.Matcher
}

// NewExecutor creates an executor that evaluates edge conditions with m.
// A nil matcher uses condition.Native.
func NewExecutor(m condition.Matcher) *Executor {
	if m == nil {
		m = condition.Native{}
	}
	return &Executor{matcher: m}
}

type run struct {
	res *Result
}

func (r *run) apply(n *Node) {
	for _, a := range n.Actions {
		r.res.ExecutedActions = append(r.res.ExecutedActions, ExecutedAction{
			Action:  a,
			Type:    a.Type(),
			Summary: Summarize(a),
		})
		switch p := a.Payload.(type) {
		case SetStatusPayload:
			r.res.FinalStatus = p.StatusToSet
		case AssignPayload:
			r.res.AssignedTo = fmt.Sprintf("%s:%s", p.Mode, p.Value)
		}
	}
}

func (r *run) stop(ok bool, outcome Outcome, reason string) Result {
	r.res.OK = ok
	r.res.Outcome = outcome
	r.res.Reason = reason
	if n := len(r.res.Path); n > 0 {
		last := r.res.Path[n-1]
		r.res.ChosenPath = &last
	}
	return *r.res
}

// Execute runs def against in. The definition is only read, so callers may
// share a published version across goroutines.
//
// Every node is entered at most once; re-entering a visited node aborts the
// run, which bounds it by the number of nodes.
func (x *Executor) Execute(def *Definition, in Inputs) Result {
	r := &run{res: &Result{
		FinalStatus:     in.Status,
		ExecutedActions: []ExecutedAction{},
		Path:            []PathStep{},
	}}

	if def == nil || def.Trigger() == nil {
		return r.stop(false, OutcomeNoTrigger, ErrMissingTrigger.Error())
	}

	outgoing := make(map[string][]Edge)
	for _, e := range def.Edges {
		outgoing[e.Source] = append(outgoing[e.Source], e)
	}
	for _, es := range outgoing {
		sort.SliceStable(es, func(i, j int) bool { return es[i].Priority < es[j].Priority })
	}

	current := def.Trigger()
	r.apply(current)

	visited := make(map[string]bool, len(def.Nodes))
	for current.Kind != KindEnd {
		if visited[current.ID] {
			return r.stop(false, OutcomeLoop, fmt.Sprintf("loop detected in workflow graph at %q.", current.Name))
		}
		visited[current.ID] = true

		edges := outgoing[current.ID]
		if len(edges) == 0 {
			return r.stop(true, OutcomeNoOutgoing, fmt.Sprintf("Stopped: no outgoing path from %q.", current.Name))
		}

		chosen, err := x.choose(edges, in)
		if err != nil {
			return r.stop(false, OutcomeConditionError, fmt.Sprintf("condition evaluation failed at %q: %v", current.Name, err))
		}
		if chosen == nil {
			return r.stop(true, OutcomeNoBranch,
				fmt.Sprintf("Stopped: no matching IF branch from %q and no ELSE branch.", current.Name))
		}

		next := def.Node(chosen.Target)
		if next == nil {
			return r.stop(false, OutcomeMissingNode,
				fmt.Sprintf("edge %q points to missing node %q.", chosen.ID, chosen.Target))
		}

		r.apply(next)
		r.res.Path = append(r.res.Path, PathStep{From: current.Name, To: next.Name, EdgeLabel: chosen.Label})
		current = next
	}

	return r.stop(true, OutcomeCompleted, fmt.Sprintf("Completed: reached %q.", current.Name))
}

// choose returns the first matching IF edge, else the first ELSE edge, else
// nil. edges are already in priority order.
func (x *Executor) choose(edges []Edge, in Inputs) (*Edge, error) {
	for i := range edges {
		if edges[i].IsElse() {
			continue
		}
		ok, err := x.matcher.Match(edges[i].Condition, in)
		if err != nil {
			return nil, fmt.Errorf("edge %s: %w", edges[i].ID, err)
		}
		if ok {
			return &edges[i], nil
		}
	}
	for i := range edges {
		if edges[i].IsElse() {
			return &edges[i], nil
		}
	}
	return nil, nil
}
