package workflow

import (
	"context"
	"errors"
	"testing"
)

func newCatalog(t *testing.T) (*DispositionCatalog, *Service) {
	t.Helper()
	s := NewService(NewInMemoryStore(), testOptions()...)
	return NewDispositionCatalog(s), s
}

func TestDefaultDispositions(t *testing.T) {
	c, _ := newCatalog(t)

	all := c.List("")
	if len(all) != 30 {
		t.Fatalf("List() = %d dispositions, want 30", len(all))
	}
	seen := make(map[string]bool)
	for _, d := range all {
		if !d.Enabled || d.ID == "" {
			t.Errorf("disposition %+v", d)
		}
		if seen[d.ID] {
			t.Errorf("duplicate id %s", d.ID)
		}
		seen[d.ID] = true
	}

	pi := c.List("PI - Waiting Queue")
	if len(pi) != 4 {
		t.Errorf("PI queue = %d dispositions, want 4", len(pi))
	}
}

func TestAddDisposition(t *testing.T) {
	c, _ := newCatalog(t)

	d, err := c.Add(200, " Payer Callback ", "Callbacks", "")
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if d.Name != "Payer Callback" || d.OutcomeTag != "—" || !d.Enabled {
		t.Errorf("disposition = %+v", d)
	}
	if first := c.List("")[0]; first.ID != d.ID {
		t.Errorf("new disposition should be listed first, got %+v", first)
	}

	var found bool
	for _, q := range c.Queues() {
		if q.Name == "Callbacks" {
			found = q.Enabled && q.Dispositions == 1
		}
	}
	if !found {
		t.Error("Add() should create an enabled queue for a new queue name")
	}

	if _, err := c.Add(0, "x", "y", ""); !errors.Is(err, ErrInvalid) {
		t.Errorf("Add(code 0) = %v, want ErrInvalid", err)
	}
	if _, err := c.Add(1, "x", " ", ""); !errors.Is(err, ErrInvalid) {
		t.Errorf("Add(no queue) = %v, want ErrInvalid", err)
	}
}

func TestQueues(t *testing.T) {
	c, _ := newCatalog(t)

	if err := c.AddQueue("escalations"); err != nil {
		t.Fatalf("AddQueue() failed: %v", err)
	}
	if err := c.AddQueue("ESCALATIONS"); !errors.Is(err, ErrInvalid) {
		t.Errorf("duplicate queue: err = %v, want ErrInvalid", err)
	}
	if err := c.SetQueueEnabled("Automations", false); err != nil {
		t.Fatalf("SetQueueEnabled() failed: %v", err)
	}
	if err := c.SetQueueEnabled("nope", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetQueueEnabled(missing) = %v, want ErrNotFound", err)
	}

	qs := c.Queues()
	for i := 1; i < len(qs); i++ {
		if qs[i-1].Name > qs[i].Name {
			t.Fatalf("queues not sorted: %q before %q", qs[i-1].Name, qs[i].Name)
		}
	}
	for _, q := range qs {
		switch q.Name {
		case "Automations":
			if q.Enabled || q.Dispositions != 5 {
				t.Errorf("Automations = %+v", q)
			}
		case "escalations":
			if q.Dispositions != 0 {
				t.Errorf("escalations = %+v", q)
			}
		}
	}
}

func TestSetDispositionEnabled(t *testing.T) {
	c, _ := newCatalog(t)
	id := c.List("")[0].ID

	d, err := c.SetEnabled(id, false)
	if err != nil {
		t.Fatalf("SetEnabled() failed: %v", err)
	}
	if d.Enabled || c.List("")[0].Enabled {
		t.Error("disposition still enabled")
	}
	if _, err := c.SetEnabled("missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetEnabled(missing) = %v, want ErrNotFound", err)
	}
}

func TestWorkflowForDisposition(t *testing.T) {
	c, s := newCatalog(t)
	ctx := context.Background()

	var target Disposition
	for _, d := range c.List("Audit Required") {
		target = d
	}

	m, err := c.WorkflowFor(ctx, target.ID, AccountEV)
	if err != nil {
		t.Fatalf("WorkflowFor() failed: %v", err)
	}
	if m.Name != "Disposition: EV Requires an Audit" || m.Description != "Queue: Audit Required • Code: 3" {
		t.Errorf("workflow = %q / %q", m.Name, m.Description)
	}

	again, err := c.WorkflowFor(ctx, target.ID, AccountEV)
	if err != nil {
		t.Fatalf("WorkflowFor() failed: %v", err)
	}
	if again.ID != m.ID {
		t.Error("WorkflowFor() should reuse the disposition's workflow")
	}
	if all, _ := s.List(ctx, AccountEV); len(all) != 1 {
		t.Errorf("workflows = %d, want 1", len(all))
	}

	if _, err := c.WorkflowFor(ctx, "missing", AccountEV); !errors.Is(err, ErrNotFound) {
		t.Errorf("WorkflowFor(missing) = %v, want ErrNotFound", err)
	}
}
