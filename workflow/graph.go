package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/liamcoop/intakehub/condition"
)

// NewEdge builds an edge. Both endpoints are required; a nil group makes an
// ELSE edge.
func NewEdge(id, source, target string, priority int, label string, group *condition.Group) (Edge, error) {
	e := Edge{
		ID:        id,
		Source:    strings.TrimSpace(source),
		Target:    strings.TrimSpace(target),
		Priority:  priority,
		Label:     label,
		Condition: group,
	}
	if err := e.validate(); err != nil {
		return Edge{}, err
	}
	return e, nil
}

func (e Edge) validate() error {
	if e.Source == "" || e.Target == "" {
		return invalidf("edge %s requires both source and target", e.ID)
	}
	if err := e.Condition.Validate(); err != nil {
		return fmt.Errorf("edge %s: %w", e.ID, err)
	}
	return nil
}

// UnmarshalJSON rejects edges without both endpoints.
func (e *Edge) UnmarshalJSON(data []byte) error {
	type plain Edge
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = Edge(p)
	return e.validate()
}

// UnmarshalJSON rejects unknown node kinds.
func (n *Node) UnmarshalJSON(data []byte) error {
	type plain Node
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if !p.Kind.Valid() {
		return invalidf("node %s has unknown kind %q", p.ID, p.Kind)
	}
	if strings.TrimSpace(p.ID) == "" {
		return invalidf("node requires an id")
	}
	if p.Actions == nil {
		p.Actions = []Action{}
	}
	*n = Node(p)
	return nil
}

// AddNode appends a node.
func (d *Definition) AddNode(n Node) error {
	if strings.TrimSpace(n.ID) == "" {
		return invalidf("node requires an id")
	}
	if !n.Kind.Valid() {
		return invalidf("node %s has unknown kind %q", n.ID, n.Kind)
	}
	if d.Node(n.ID) != nil {
		return invalidf("node %s already exists", n.ID)
	}
	if n.Actions == nil {
		n.Actions = []Action{}
	}
	d.Nodes = append(d.Nodes, n)
	return nil
}

// RemoveNode deletes a node and leaves its edges in place, so a draft can
// hold dangling edges until the author fixes them. Publishing such a draft
// fails validation.
func (d *Definition) RemoveNode(id string) bool {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			d.Nodes = append(d.Nodes[:i], d.Nodes[i+1:]...)
			return true
		}
	}
	return false
}

// Connect appends an edge.
func (d *Definition) Connect(e Edge) error {
	if err := e.validate(); err != nil {
		return err
	}
	for _, existing := range d.Edges {
		if existing.ID == e.ID {
			return invalidf("edge %s already exists", e.ID)
		}
	}
	d.Edges = append(d.Edges, e)
	return nil
}

// RemoveEdge deletes an edge by id.
func (d *Definition) RemoveEdge(id string) bool {
	for i := range d.Edges {
		if d.Edges[i].ID == id {
			d.Edges = append(d.Edges[:i], d.Edges[i+1:]...)
			return true
		}
	}
	return false
}

func (d *Definition) edge(id string) (*Edge, error) {
	for i := range d.Edges {
		if d.Edges[i].ID == id {
			return &d.Edges[i], nil
		}
	}
	return nil, fmt.Errorf("%w: edge %s", ErrNotFound, id)
}

// MakeElse turns an edge into the fallback branch of its source.
func (d *Definition) MakeElse(edgeID string) error {
	e, err := d.edge(edgeID)
	if err != nil {
		return err
	}
	e.Label = "ELSE"
	e.Priority = ElsePriority
	e.Condition = nil
	return nil
}

// MakeIf attaches a non-empty condition group to an edge. Priorities below
// one are raised to one.
func (d *Definition) MakeIf(edgeID, label string, priority int, group *condition.Group) error {
	if group.IsEmpty() {
		return invalidf("IF edge %s requires at least one condition", edgeID)
	}
	if err := group.Validate(); err != nil {
		return fmt.Errorf("edge %s: %w", edgeID, err)
	}
	e, err := d.edge(edgeID)
	if err != nil {
		return err
	}
	e.Label = label
	e.Priority = max(1, priority)
	e.Condition = group.Clone()
	return nil
}

// Validate checks that a definition may be published: it needs a TRIGGER
// node, an END node, and every edge endpoint must name an existing node.
func Validate(d *Definition) error {
	if d == nil {
		return ErrMissingTrigger
	}
	var hasTrigger, hasEnd bool
	ids := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		ids[n.ID] = true
		switch n.Kind {
		case KindTrigger:
			hasTrigger = true
		case KindEnd:
			hasEnd = true
		}
	}
	if !hasTrigger {
		return ErrMissingTrigger
	}
	if !hasEnd {
		return ErrMissingEnd
	}
	for _, e := range d.Edges {
		if !ids[e.Source] {
			return fmt.Errorf("%w: edge %s source %q", ErrDanglingEdge, e.ID, e.Source)
		}
		if !ids[e.Target] {
			return fmt.Errorf("%w: edge %s target %q", ErrDanglingEdge, e.ID, e.Target)
		}
	}
	return nil
}
