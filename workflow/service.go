package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/intakehub/audit"
	"github.com/liamcoop/intakehub/condition"
)

// Publish results reported to a Recorder.
const (
	PublishAccepted = "accepted"
	PublishRejected = "rejected"
)

// Recorder receives workflow metrics.
type Recorder interface {
	RecordWorkflowRun(outcome string, duration time.Duration)
	RecordPublish(result string)
}

type options struct {
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	recorder Recorder
	executor *Executor
	notifier Notifier
	updater  RecordUpdater
	log      *audit.Log[AuditEntry]
}

// Option configures a Service or a Runner.
type Option func(*options)

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithIDGenerator injects the id source used for workflows, nodes, edges
// and audit entries.
func WithIDGenerator(newID func() string) Option { return func(o *options) { o.newID = newID } }

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option { return func(o *options) { o.recorder = r } }

// WithExecutor replaces the Runner's executor.
func WithExecutor(x *Executor) Option { return func(o *options) { o.executor = x } }

// WithNotifier sets the SEND_EMAIL collaborator.
func WithNotifier(n Notifier) Option { return func(o *options) { o.notifier = n } }

// WithRecordUpdater sets the AUTOFILL_FIELDS collaborator.
func WithRecordUpdater(u RecordUpdater) Option { return func(o *options) { o.updater = u } }

// WithAuditLog shares an existing workflow audit log.
func WithAuditLog(l *audit.Log[AuditEntry]) Option { return func(o *options) { o.log = l } }

func buildOptions(opts []Option) options {
	o := options{
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// DefaultStatus is what the default template sets and what its enrollment
// gate admits.
const DefaultStatus = "Pending Benefits"

// DefaultDefinition builds the starter graph
// "Trigger: Enrollment" -> "Action: Set Status" -> "End".
func DefaultDefinition(newID func() string) *Definition {
	trigger, action, end := newID(), newID(), newID()
	return &Definition{
		Nodes: []Node{
			{ID: trigger, Kind: KindTrigger, Name: "Trigger: Enrollment", Actions: []Action{}},
			{ID: action, Kind: KindAction, Name: "Action: Set Status", Actions: []Action{SetStatus(newID(), DefaultStatus)}},
			{ID: end, Kind: KindEnd, Name: "End", Actions: []Action{}},
		},
		Edges: []Edge{
			{ID: newID(), Source: trigger, Target: action, Priority: 1, Label: "Next"},
			{ID: newID(), Source: action, Target: end, Priority: 1, Label: "Complete"},
		},
	}
}

// DefaultEnrollment admits records whose status is DefaultStatus.
func DefaultEnrollment(newID func() string) Enrollment {
	return Enrollment{
		Enabled:     true,
		TriggerType: TriggerRuleEngine,
		Group: &condition.Group{
			ID: newID(),
			Op: condition.And,
			Items: []condition.Condition{
				{ID: newID(), Field: condition.FieldStatus, Operator: condition.OpEquals, Value: DefaultStatus},
			},
		},
	}
}

// Service manages workflow drafts, enrollment, activation and publishing.
type Service struct {
	store Store
	opts  options

	// mu serialises read-modify-write sequences against the store.
	mu sync.Mutex
}

// NewService creates a Service over store.
func NewService(store Store, opts ...Option) *Service {
	return &Service{store: store, opts: buildOptions(opts)}
}

// Create adds a workflow built from the default template. It starts active,
// with the template already published as version 1.
func (s *Service) Create(ctx context.Context, accountType AccountType, name, description string) (*Meta, error) {
	if !accountType.Valid() {
		return nil, invalidf("unknown account type %q", accountType)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidf("workflow requires a name")
	}

	now := s.opts.now()
	base := DefaultDefinition(s.opts.newID)
	m := &Meta{
		ID:          s.opts.newID(),
		AccountType: accountType,
		Name:        name,
		Description: strings.TrimSpace(description),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
		Draft:       base.Clone(),
		Versions:    []*Version{{Version: 1, CreatedAt: now, UpdatedAt: now, Definition: base}},
		Enrollment:  DefaultEnrollment(s.opts.newID),
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	s.opts.logger.Info("workflow created",
		slog.String("workflow_id", m.ID),
		slog.String("account_type", string(accountType)),
		slog.String("name", name))
	return m, nil
}

// SeedDefaults creates one default workflow for every account type that has
// none and returns the workflows it created.
func (s *Service) SeedDefaults(ctx context.Context) ([]*Meta, error) {
	var created []*Meta
	for _, at := range AccountTypes {
		existing, err := s.store.ListByAccountType(ctx, at)
		if err != nil {
			return created, err
		}
		if len(existing) > 0 {
			continue
		}
		m, err := s.Create(ctx, at, fmt.Sprintf("%s Default Workflow", at), "Seeded default workflow")
		if err != nil {
			return created, err
		}
		created = append(created, m)
	}
	return created, nil
}

// Get fetches one workflow.
func (s *Service) Get(ctx context.Context, id string) (*Meta, error) {
	return s.store.Get(ctx, id)
}

// List returns workflows of accountType, or all workflows when it is empty.
func (s *Service) List(ctx context.Context, accountType AccountType) ([]*Meta, error) {
	if accountType == "" {
		return s.store.List(ctx)
	}
	if !accountType.Valid() {
		return nil, invalidf("unknown account type %q", accountType)
	}
	return s.store.ListByAccountType(ctx, accountType)
}

func (s *Service) modify(ctx context.Context, id string, fn func(m *Meta) error) (*Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(m); err != nil {
		return nil, err
	}
	m.UpdatedAt = s.opts.now()
	if err := s.store.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("update workflow: %w", err)
	}
	return m, nil
}

// UpdateDraft replaces the draft. Drafts are not validated; they may be
// incomplete until published.
func (s *Service) UpdateDraft(ctx context.Context, id string, def *Definition) (*Meta, error) {
	if def == nil {
		return nil, invalidf("draft definition is required")
	}
	return s.modify(ctx, id, func(m *Meta) error {
		m.Draft = def.Clone()
		return nil
	})
}

// UpdateEnrollment replaces the enrollment gate. An empty trigger type
// becomes RULE_ENGINE and a nil group an empty AND group.
func (s *Service) UpdateEnrollment(ctx context.Context, id string, e Enrollment) (*Meta, error) {
	if e.TriggerType == "" {
		e.TriggerType = TriggerRuleEngine
	}
	if !e.TriggerType.Valid() {
		return nil, invalidf("unknown trigger type %q", e.TriggerType)
	}
	if e.Group == nil {
		e.Group = &condition.Group{ID: s.opts.newID(), Op: condition.And, Items: []condition.Condition{}}
	}
	if err := e.Group.Validate(); err != nil {
		return nil, fmt.Errorf("%w: enrollment group: %v", ErrInvalid, err)
	}
	return s.modify(ctx, id, func(m *Meta) error {
		m.Enrollment = e.clone()
		return nil
	})
}

// SetActive sets the active flag of one workflow.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*Meta, error) {
	return s.modify(ctx, id, func(m *Meta) error {
		m.IsActive = active
		return nil
	})
}

// ToggleActive flips the active flag of one workflow.
func (s *Service) ToggleActive(ctx context.Context, id string) (*Meta, error) {
	return s.modify(ctx, id, func(m *Meta) error {
		m.IsActive = !m.IsActive
		return nil
	})
}

// SetOnlyActive activates id and deactivates every other workflow of the
// same account type.
func (s *Service) SetOnlyActive(ctx context.Context, id string) (*Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	siblings, err := s.store.ListByAccountType(ctx, target.AccountType)
	if err != nil {
		return nil, err
	}

	now := s.opts.now()
	var result *Meta
	for _, m := range siblings {
		m.IsActive = m.ID == id
		m.UpdatedAt = now
		if err := s.store.Update(ctx, m); err != nil {
			return nil, fmt.Errorf("update workflow: %w", err)
		}
		if m.ID == id {
			result = m
		}
	}
	s.opts.logger.Info("workflow made only active",
		slog.String("workflow_id", id),
		slog.String("account_type", string(target.AccountType)))
	return result, nil
}

// Publish validates the draft and, if it passes, stores a deep copy of it
// as the next version. A rejected draft leaves the version list untouched
// and the returned error wraps ErrMissingTrigger, ErrMissingEnd or
// ErrDanglingEdge.
func (s *Service) Publish(ctx context.Context, id string) (*Version, error) {
	var published *Version
	_, err := s.modify(ctx, id, func(m *Meta) error {
		if err := Validate(m.Draft); err != nil {
			return fmt.Errorf("publish blocked: %w", err)
		}
		next := 1
		if latest := m.Latest(); latest != nil {
			next = latest.Version + 1
		}
		now := s.opts.now()
		published = &Version{Version: next, CreatedAt: now, UpdatedAt: now, Definition: m.Draft.Clone()}
		m.Versions = append([]*Version{published}, m.Versions...)
		return nil
	})

	switch {
	case err == nil:
		s.recordPublish(PublishAccepted)
		s.opts.logger.Info("workflow published", slog.String("workflow_id", id), slog.Int("version", published.Version))
		return published, nil
	case IsValidationError(err):
		s.recordPublish(PublishRejected)
		s.opts.logger.Warn("workflow publish rejected", slog.String("workflow_id", id), slog.String("error", err.Error()))
	}
	return nil, err
}

func (s *Service) recordPublish(result string) {
	if s.opts.recorder != nil {
		s.opts.recorder.RecordPublish(result)
	}
}

// IsValidationError reports whether err is a publish-time structural defect.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMissingTrigger) || errors.Is(err, ErrMissingEnd) || errors.Is(err, ErrDanglingEdge)
}

// Published returns a workflow together with its latest version. The
// version is an immutable snapshot; it stays valid while the draft is
// edited or newer versions are published.
func (s *Service) Published(ctx context.Context, id string) (*Meta, *Version, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	v := m.Latest()
	if v == nil {
		return m, nil, fmt.Errorf("%w: %s", ErrNoPublishedVersion, id)
	}
	return m, v, nil
}
