package workflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/liamcoop/intakehub/condition"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type testIDs struct {
	mu sync.Mutex
	n  int
}

func (g *testIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(extra ...Option) []Option {
	clock := &testClock{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	ids := &testIDs{}
	return append([]Option{
		WithClock(clock.Now),
		WithIDGenerator(ids.Next),
		WithLogger(quietLogger()),
	}, extra...)
}

func group(op condition.GroupOp, items ...condition.Condition) *condition.Group {
	return &condition.Group{Op: op, Items: items}
}

func cond(field string, op condition.Operator, value string) condition.Condition {
	return condition.Condition{Field: field, Operator: op, Value: value}
}

// branching builds:
//
//	Start -(IF clinic_flag = VIP, p1)-> VIP Desk -> Done
//	Start -(ELSE)-> Standard -> Done
func branching() *Definition {
	return &Definition{
		Nodes: []Node{
			{ID: "start", Kind: KindTrigger, Name: "Start"},
			{ID: "vip", Kind: KindAction, Name: "VIP Desk", Actions: []Action{
				SetStatus("a1", "Escalated"),
				Assign("a2", AssignRole, "Senior Agent"),
			}},
			{ID: "std", Kind: KindAction, Name: "Standard", Actions: []Action{
				SetStatus("a3", "Pending Benefits"),
			}},
			{ID: "done", Kind: KindEnd, Name: "Done"},
		},
		Edges: []Edge{
			{ID: "e-else", Source: "start", Target: "std", Priority: ElsePriority, Label: "ELSE"},
			{ID: "e-vip", Source: "start", Target: "vip", Priority: 1, Label: "VIP",
				Condition: group(condition.And, cond(condition.FieldClinicFlag, condition.OpEquals, "VIP"))},
			{ID: "e-vip-done", Source: "vip", Target: "done", Priority: 1, Label: "Complete"},
			{ID: "e-std-done", Source: "std", Target: "done", Priority: 1, Label: "Complete"},
		},
	}
}

func mustCreate(t *testing.T, s *Service, at AccountType, name string) *Meta {
	t.Helper()
	m, err := s.Create(context.Background(), at, name, "")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	return m
}
