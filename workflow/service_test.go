package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/liamcoop/intakehub/condition"
)

type fakeRecorder struct {
	mu        sync.Mutex
	runs      []string
	publishes []string
}

func (r *fakeRecorder) RecordWorkflowRun(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, outcome)
}

func (r *fakeRecorder) RecordPublish(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishes = append(r.publishes, result)
}

func TestCreateUsesDefaultTemplate(t *testing.T) {
	s := NewService(NewInMemoryStore(), testOptions()...)
	m := mustCreate(t, s, AccountEV, "  Intake  ")

	if m.Name != "Intake" || !m.IsActive {
		t.Errorf("meta = %+v", m)
	}
	if len(m.Versions) != 1 || m.Versions[0].Version != 1 {
		t.Fatalf("versions = %+v, want v1", m.Versions)
	}
	if err := Validate(m.Draft); err != nil {
		t.Errorf("default draft invalid: %v", err)
	}
	if m.Draft == m.Versions[0].Definition {
		t.Error("draft and v1 share a definition")
	}
	if !m.Enrollment.Enabled || m.Enrollment.TriggerType != TriggerRuleEngine {
		t.Errorf("enrollment = %+v", m.Enrollment)
	}

	names := []string{}
	for _, n := range m.Draft.Nodes {
		names = append(names, n.Name)
	}
	want := []string{"Trigger: Enrollment", "Action: Set Status", "End"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("node names = %v, want %v", names, want)
			break
		}
	}
}

func TestCreateValidation(t *testing.T) {
	s := NewService(NewInMemoryStore(), testOptions()...)
	ctx := context.Background()

	if _, err := s.Create(ctx, "HMO", "x", ""); !errors.Is(err, ErrInvalid) {
		t.Errorf("unknown account type: err = %v, want ErrInvalid", err)
	}
	if _, err := s.Create(ctx, AccountPA, "  ", ""); !errors.Is(err, ErrInvalid) {
		t.Errorf("blank name: err = %v, want ErrInvalid", err)
	}
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}
}

func TestPublishIncrementsVersion(t *testing.T) {
	rec := &fakeRecorder{}
	s := NewService(NewInMemoryStore(), testOptions(WithRecorder(rec))...)
	ctx := context.Background()
	m := mustCreate(t, s, AccountEV, "Main")

	for want := 2; want <= 3; want++ {
		v, err := s.Publish(ctx, m.ID)
		if err != nil {
			t.Fatalf("Publish() failed: %v", err)
		}
		if v.Version != want {
			t.Errorf("Publish() version = %d, want %d", v.Version, want)
		}
	}

	got, err := s.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if len(got.Versions) != 3 || got.Versions[0].Version != 3 || got.Latest().Version != 3 {
		t.Errorf("versions not newest first: %d entries, head %d", len(got.Versions), got.Versions[0].Version)
	}
	if len(rec.publishes) != 2 || rec.publishes[0] != PublishAccepted {
		t.Errorf("recorded publishes = %v", rec.publishes)
	}
}

func TestPublishRejectsInvalidDraft(t *testing.T) {
	rec := &fakeRecorder{}
	s := NewService(NewInMemoryStore(), testOptions(WithRecorder(rec))...)
	ctx := context.Background()
	m := mustCreate(t, s, AccountPA, "Auths")

	// Removing the action node leaves both edges dangling.
	draft := m.Draft.Clone()
	draft.RemoveNode(draft.Nodes[1].ID)
	if _, err := s.UpdateDraft(ctx, m.ID, draft); err != nil {
		t.Fatalf("UpdateDraft() failed: %v", err)
	}

	_, err := s.Publish(ctx, m.ID)
	if !errors.Is(err, ErrDanglingEdge) || !IsValidationError(err) {
		t.Fatalf("Publish() = %v, want ErrDanglingEdge", err)
	}

	noEnd := m.Draft.Clone()
	noEnd.RemoveNode(noEnd.Nodes[2].ID)
	if _, err := s.UpdateDraft(ctx, m.ID, noEnd); err != nil {
		t.Fatalf("UpdateDraft() failed: %v", err)
	}
	if _, err := s.Publish(ctx, m.ID); !errors.Is(err, ErrMissingEnd) {
		t.Errorf("Publish() = %v, want ErrMissingEnd", err)
	}

	got, _ := s.Get(ctx, m.ID)
	if len(got.Versions) != 1 {
		t.Errorf("rejected publish changed versions: %d", len(got.Versions))
	}
	if len(rec.publishes) != 2 || rec.publishes[1] != PublishRejected {
		t.Errorf("recorded publishes = %v", rec.publishes)
	}
}

func TestPublishedVersionIsImmutable(t *testing.T) {
	s := NewService(NewInMemoryStore(), testOptions()...)
	ctx := context.Background()
	m := mustCreate(t, s, AccountIV, "IV")

	if _, err := s.Publish(ctx, m.ID); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	_, v2, err := s.Published(ctx, m.ID)
	if err != nil {
		t.Fatalf("Published() failed: %v", err)
	}

	draft := m.Draft.Clone()
	draft.Nodes[1].Actions = []Action{SetStatus("x", "Escalated")}
	if _, err := s.UpdateDraft(ctx, m.ID, draft); err != nil {
		t.Fatalf("UpdateDraft() failed: %v", err)
	}
	draft.Nodes[1].Name = "changed after save"

	_, again, _ := s.Published(ctx, m.ID)
	if again.Version != 2 {
		t.Fatalf("latest version = %d, want 2", again.Version)
	}
	if Summarize(again.Definition.Nodes[1].Actions[0]) != "Set Status → "+DefaultStatus {
		t.Error("draft edit leaked into the published version")
	}
	if v2 != again {
		t.Error("published snapshot should be shared, not re-copied")
	}

	got, _ := s.Get(ctx, m.ID)
	if got.Draft.Nodes[1].Name == "changed after save" {
		t.Error("stored draft aliases the caller's definition")
	}
}

func TestPublishedWithoutVersions(t *testing.T) {
	store := NewInMemoryStore()
	s := NewService(store, testOptions()...)
	ctx := context.Background()

	if err := store.Create(ctx, &Meta{ID: "bare", AccountType: AccountEV, Name: "Bare", Draft: &Definition{}}); err != nil {
		t.Fatalf("store.Create() failed: %v", err)
	}
	if _, _, err := s.Published(ctx, "bare"); !errors.Is(err, ErrNoPublishedVersion) {
		t.Errorf("Published() = %v, want ErrNoPublishedVersion", err)
	}
}

func TestSetOnlyActive(t *testing.T) {
	s := NewService(NewInMemoryStore(), testOptions()...)
	ctx := context.Background()
	a := mustCreate(t, s, AccountEV, "A")
	b := mustCreate(t, s, AccountEV, "B")
	other := mustCreate(t, s, AccountPA, "Other")

	if _, err := s.SetOnlyActive(ctx, b.ID); err != nil {
		t.Fatalf("SetOnlyActive() failed: %v", err)
	}

	for id, want := range map[string]bool{a.ID: false, b.ID: true, other.ID: true} {
		m, _ := s.Get(ctx, id)
		if m.IsActive != want {
			t.Errorf("%s active = %v, want %v", m.Name, m.IsActive, want)
		}
	}

	toggled, err := s.ToggleActive(ctx, b.ID)
	if err != nil {
		t.Fatalf("ToggleActive() failed: %v", err)
	}
	if toggled.IsActive {
		t.Error("ToggleActive() should deactivate")
	}
}

func TestUpdateEnrollment(t *testing.T) {
	s := NewService(NewInMemoryStore(), testOptions()...)
	ctx := context.Background()
	m := mustCreate(t, s, AccountWCPI, "WC")

	got, err := s.UpdateEnrollment(ctx, m.ID, Enrollment{Enabled: true})
	if err != nil {
		t.Fatalf("UpdateEnrollment() failed: %v", err)
	}
	if got.Enrollment.TriggerType != TriggerRuleEngine || got.Enrollment.Group == nil || got.Enrollment.Group.Op != condition.And {
		t.Errorf("enrollment = %+v", got.Enrollment)
	}

	if _, err := s.UpdateEnrollment(ctx, m.ID, Enrollment{TriggerType: "CRON"}); !errors.Is(err, ErrInvalid) {
		t.Errorf("unknown trigger: err = %v, want ErrInvalid", err)
	}
	bad := Enrollment{Group: &condition.Group{Op: condition.And, Items: []condition.Condition{{Field: "x", Operator: "LIKE"}}}}
	if _, err := s.UpdateEnrollment(ctx, m.ID, bad); !errors.Is(err, ErrInvalid) {
		t.Errorf("bad group: err = %v, want ErrInvalid", err)
	}
}

func TestSeedDefaults(t *testing.T) {
	s := NewService(NewInMemoryStore(), testOptions()...)
	ctx := context.Background()
	mustCreate(t, s, AccountPA, "Existing PA")

	created, err := s.SeedDefaults(ctx)
	if err != nil {
		t.Fatalf("SeedDefaults() failed: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("SeedDefaults() created %d, want 3", len(created))
	}
	if created[0].Name != "EV Default Workflow" {
		t.Errorf("first seeded = %q", created[0].Name)
	}

	again, err := s.SeedDefaults(ctx)
	if err != nil || len(again) != 0 {
		t.Errorf("second SeedDefaults() = %d, %v; want none", len(again), err)
	}

	all, _ := s.List(ctx, "")
	if len(all) != 4 {
		t.Errorf("List() = %d workflows, want 4", len(all))
	}
	pa, _ := s.List(ctx, AccountPA)
	if len(pa) != 1 || pa[0].Name != "Existing PA" {
		t.Errorf("List(PA) = %+v", pa)
	}
}
