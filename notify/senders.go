package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/liamcoop/intakehub/workflow"
)

// LogSender records emails in the log instead of delivering them.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) SendEmail(_ context.Context, msg EmailMessage) error {
	logger(s.Logger).Info("email requested",
		slog.String("workflow_id", msg.WorkflowID),
		slog.String("entity_id", msg.EntityID),
		slog.String("template_id", msg.TemplateID),
		slog.String("to", string(msg.To)))
	return nil
}

// LogUpdater records autofills in the log instead of writing them.
type LogUpdater struct {
	Logger *slog.Logger
}

func (u LogUpdater) Autofill(_ context.Context, entityID string, fields []workflow.Field) error {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.Key
	}
	logger(u.Logger).Info("autofill requested",
		slog.String("entity_id", entityID),
		slog.Any("fields", keys))
	return nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// MockSender keeps every email it is given.
type MockSender struct {
	Err error

	mu   sync.Mutex
	sent []EmailMessage
}

func (m *MockSender) SendEmail(_ context.Context, msg EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.Err
}

// Sent returns the emails received so far.
func (m *MockSender) Sent() []EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmailMessage(nil), m.sent...)
}

// AutofillCall is one call received by a MockUpdater.
type AutofillCall struct {
	EntityID string
	Fields   []workflow.Field
}

// MockUpdater keeps every autofill it is given.
type MockUpdater struct {
	Err error

	mu      sync.Mutex
	applied []AutofillCall
}

func (m *MockUpdater) Autofill(_ context.Context, entityID string, fields []workflow.Field) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, AutofillCall{EntityID: entityID, Fields: fields})
	return m.Err
}

// Applied returns the autofills received so far.
func (m *MockUpdater) Applied() []AutofillCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AutofillCall(nil), m.applied...)
}
