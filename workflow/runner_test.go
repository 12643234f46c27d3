package workflow

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/liamcoop/intakehub/condition"
)

type mockNotifier struct {
	mu   sync.Mutex
	sent []EmailRequest
	err  error
}

func (m *mockNotifier) Email(_ context.Context, req EmailRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, req)
	return m.err
}

type mockUpdater struct {
	mu      sync.Mutex
	applied []AutofillRequest
}

func (m *mockUpdater) Autofill(_ context.Context, req AutofillRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, req)
	return nil
}

// publishGraph stores def as the draft of a new workflow, publishes it and
// opens the enrollment gate to every record.
func publishGraph(t *testing.T, s *Service, def *Definition) *Meta {
	t.Helper()
	ctx := context.Background()
	m := mustCreate(t, s, AccountEV, "Routing")
	if _, err := s.UpdateDraft(ctx, m.ID, def); err != nil {
		t.Fatalf("UpdateDraft() failed: %v", err)
	}
	if _, err := s.Publish(ctx, m.ID); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	m, err := s.UpdateEnrollment(ctx, m.ID, Enrollment{Enabled: false})
	if err != nil {
		t.Fatalf("UpdateEnrollment() failed: %v", err)
	}
	return m
}

func TestRunDefaultWorkflow(t *testing.T) {
	rec := &fakeRecorder{}
	s := NewService(NewInMemoryStore(), testOptions()...)
	r := NewRunner(s, testOptions(WithRecorder(rec))...)
	m := mustCreate(t, s, AccountEV, "EV Intake")

	res, err := r.Run(context.Background(), m.ID, "", Inputs{EntityID: "ev-7", Status: "Pending Benefits"})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if !res.OK || res.Outcome != OutcomeCompleted {
		t.Fatalf("result = %+v", res.Result)
	}
	want := `Completed: reached "End". Final Status: "Pending Benefits".`
	if res.Message != want {
		t.Errorf("message = %q, want %q", res.Message, want)
	}
	if res.WorkflowVersion != 1 || res.TriggerType != TriggerRuleEngine {
		t.Errorf("version %d trigger %s", res.WorkflowVersion, res.TriggerType)
	}

	entries := r.AuditLog().Entries()
	if len(entries) != 1 || entries[0].ID != res.AuditID || entries[0].EntityID != "ev-7" {
		t.Fatalf("audit = %+v", entries)
	}
	if entries[0].Notes != res.Message {
		t.Errorf("notes = %q", entries[0].Notes)
	}
	if len(rec.runs) != 1 || rec.runs[0] != string(OutcomeCompleted) {
		t.Errorf("recorded runs = %v", rec.runs)
	}
}

func TestRunInactiveWorkflow(t *testing.T) {
	s := NewService(NewInMemoryStore(), testOptions()...)
	r := NewRunner(s, testOptions()...)
	ctx := context.Background()
	m := mustCreate(t, s, AccountEV, "Paused")
	if _, err := s.SetActive(ctx, m.ID, false); err != nil {
		t.Fatalf("SetActive() failed: %v", err)
	}

	res, err := r.Run(ctx, m.ID, TriggerManualOverride, Inputs{Status: "Pending Benefits"})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.Outcome != OutcomeInactive || res.Message != InactiveMessage {
		t.Errorf("result = %+v", res)
	}
	if len(res.ExecutedActions) != 0 || res.ChosenPath != nil {
		t.Errorf("inactive run executed actions: %+v", res.ExecutedActions)
	}
	e := r.AuditLog().Entries()[0]
	if e.Outcome != OutcomeInactive || e.TriggerType != TriggerManualOverride || e.EntityID != NoEntity {
		t.Errorf("audit entry = %+v", e)
	}
}

func TestRunNotEnrolled(t *testing.T) {
	s := NewService(NewInMemoryStore(), testOptions()...)
	n := &mockNotifier{}
	r := NewRunner(s, testOptions(WithNotifier(n))...)
	m := mustCreate(t, s, AccountEV, "Gated")

	res, err := r.Run(context.Background(), m.ID, "", Inputs{Status: "Completed"})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.Outcome != OutcomeNotEnrolled || res.Message != NotEnrolledMessage {
		t.Errorf("result = %+v", res)
	}
	if len(res.ExecutedActions) != 0 || res.FinalStatus != "Completed" {
		t.Errorf("not enrolled run = %+v", res.Result)
	}
	if r.AuditLog().Len() != 1 {
		t.Errorf("audit entries = %d, want 1", r.AuditLog().Len())
	}
}

func TestRunDispatchesSideEffects(t *testing.T) {
	s := NewService(NewInMemoryStore(), testOptions()...)
	n := &mockNotifier{err: errors.New("smtp down")}
	u := &mockUpdater{}
	r := NewRunner(s, testOptions(WithNotifier(n), WithRecordUpdater(u))...)

	def := branching()
	vip := def.Node("vip")
	vip.Actions = append(vip.Actions,
		SendEmail("mail", "vip-welcome", RecipientAgent),
		Autofill("fill", Field{Key: "priority", Value: "high"}))
	m := publishGraph(t, s, def)

	res, err := r.Run(context.Background(), m.ID, TriggerStatusChange, Inputs{EntityID: "pa-1", ClinicFlag: ClinicVIP})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if !res.OK || res.FinalStatus != "Escalated" {
		t.Fatalf("result = %+v", res.Result)
	}
	if len(n.sent) != 1 || n.sent[0].TemplateID != "vip-welcome" || n.sent[0].EntityID != "pa-1" {
		t.Errorf("emails = %+v", n.sent)
	}
	if len(u.applied) != 1 || u.applied[0].Fields[0].Key != "priority" || u.applied[0].WorkflowID != m.ID {
		t.Errorf("autofills = %+v", u.applied)
	}

	// ELSE branch carries no email or autofill.
	if _, err := r.Run(context.Background(), m.ID, "", Inputs{ClinicFlag: ClinicActive}); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(n.sent) != 1 || len(u.applied) != 1 {
		t.Errorf("ELSE run dispatched side effects")
	}
}

func TestRunAbortedIsAuditedNotReturned(t *testing.T) {
	s := NewService(NewInMemoryStore(), testOptions()...)
	n := &mockNotifier{}
	r := NewRunner(s, testOptions(WithNotifier(n))...)

	def := &Definition{
		Nodes: []Node{
			{ID: "t", Kind: KindTrigger, Name: "Start", Actions: []Action{SendEmail("m", "x", RecipientClinic)}},
			{ID: "a", Kind: KindAction, Name: "Ping"},
			{ID: "b", Kind: KindAction, Name: "Pong"},
			{ID: "end", Kind: KindEnd, Name: "End"},
		},
		Edges: []Edge{
			{ID: "1", Source: "t", Target: "a", Priority: 1},
			{ID: "2", Source: "a", Target: "b", Priority: 1},
			{ID: "3", Source: "b", Target: "a", Priority: 1},
		},
	}
	m := publishGraph(t, s, def)

	res, err := r.Run(context.Background(), m.ID, "", Inputs{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.OK || res.Outcome != OutcomeLoop || !strings.Contains(res.Message, "loop") {
		t.Errorf("result = %+v", res)
	}
	if len(n.sent) != 0 {
		t.Error("aborted run should not dispatch side effects")
	}
	if got := r.AuditLog().Entries()[0].Outcome; got != OutcomeLoop {
		t.Errorf("audited outcome = %s", got)
	}
}

func TestRunErrors(t *testing.T) {
	store := NewInMemoryStore()
	s := NewService(store, testOptions()...)
	r := NewRunner(s, testOptions()...)
	ctx := context.Background()

	if _, err := r.Run(ctx, "missing", "", Inputs{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Run(missing) = %v, want ErrNotFound", err)
	}

	m := mustCreate(t, s, AccountEV, "x")
	if _, err := r.Run(ctx, m.ID, "CRON", Inputs{}); !errors.Is(err, ErrInvalid) {
		t.Errorf("Run(bad trigger) = %v, want ErrInvalid", err)
	}
	if r.AuditLog().Len() != 0 {
		t.Errorf("failed lookups should not be audited")
	}
}

func TestRunEnrollmentUsesMatcher(t *testing.T) {
	m, err := condition.NewCELMatcher()
	if err != nil {
		t.Fatalf("NewCELMatcher() failed: %v", err)
	}
	s := NewService(NewInMemoryStore(), testOptions()...)
	r := NewRunner(s, testOptions(WithExecutor(NewExecutor(m)))...)
	ctx := context.Background()
	wf := mustCreate(t, s, AccountPA, "PA")

	enroll := Enrollment{Enabled: true, Group: group(condition.Or,
		cond(condition.FieldInsuranceName, condition.OpStartsWith, "bcbs"),
		cond(condition.FieldPlanType, condition.OpEquals, "HMO"))}
	if _, err := s.UpdateEnrollment(ctx, wf.ID, enroll); err != nil {
		t.Fatalf("UpdateEnrollment() failed: %v", err)
	}

	in, err := r.Run(ctx, wf.ID, "", Inputs{InsuranceName: "BCBS-TX"})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	out, err := r.Run(ctx, wf.ID, "", Inputs{InsuranceName: "Cigna", PlanType: "PPO"})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if in.Outcome != OutcomeCompleted || out.Outcome != OutcomeNotEnrolled {
		t.Errorf("outcomes = %s, %s", in.Outcome, out.Outcome)
	}
}

func TestAuditCSVExport(t *testing.T) {
	s := NewService(NewInMemoryStore(), testOptions()...)
	r := NewRunner(s, testOptions()...)
	m := publishGraph(t, s, branching())

	in := Inputs{EntityID: "ev-1", ClinicFlag: ClinicVIP, WinningRuleCode: "RULE-000004"}
	if _, err := r.Run(context.Background(), m.ID, "", in); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	var buf bytes.Buffer
	if err := r.AuditLog().WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV() failed: %v", err)
	}
	lines := strings.Split(buf.String(), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d, want 2", len(lines))
	}
	if got := strings.Count(lines[0], ",") + 1; got != 15 {
		t.Errorf("header columns = %d, want 15", got)
	}
	for _, want := range []string{
		`"RULE-000004"`,
		`"Escalated"`,
		`"ROLE:Senior Agent"`,
		`"VIP Desk","Done","Complete"`,
		`"Set Status → Escalated | Assign → ROLE:Senior Agent"`,
	} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("row %s missing %s", lines[1], want)
		}
	}
}
