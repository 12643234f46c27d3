// Package notify delivers workflow side effects (templated emails and
// record autofills) on a pool of background workers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/liamcoop/intakehub/workflow"
)

// Kind labels a queued job.
type Kind string

const (
	KindEmail    Kind = "email"
	KindAutofill Kind = "autofill"
)

// Delivery results reported to a Recorder.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// ErrClosed is returned when a job is offered after Shutdown.
var ErrClosed = errors.New("notify: dispatcher is shut down")

// EmailMessage is what a Sender receives for one SEND_EMAIL action.
type EmailMessage struct {
	WorkflowID string
	EntityID   string
	TemplateID string
	To         workflow.Recipient
	QueuedAt   time.Time
}

// Sender delivers templated emails.
type Sender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// Updater writes autofilled fields onto an intake record.
type Updater interface {
	Autofill(ctx context.Context, entityID string, fields []workflow.Field) error
}

// Recorder counts delivery outcomes.
type Recorder interface {
	RecordNotification(kind, status string)
}

type job struct {
	kind     Kind
	email    EmailMessage
	autofill workflow.AutofillRequest
}

// Dispatcher queues workflow side effects and hands them to a Sender and an
// Updater from a fixed set of workers. It implements workflow.Notifier and
// workflow.RecordUpdater.
type Dispatcher struct {
	sender       Sender
	updater      Updater
	recorder     Recorder
	queue        chan job
	workers      int
	jobTimeout   time.Duration
	shutdownChan chan struct{}
	wg           sync.WaitGroup

	// mu is held for reading while a job is offered to the queue and for
	// writing while closing, so no job lands after the workers drain.
	mu     sync.RWMutex
	closed bool
	logger       *slog.Logger
}

var (
	_ workflow.Notifier      = (*Dispatcher)(nil)
	_ workflow.RecordUpdater = (*Dispatcher)(nil)
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers sets the number of workers; values below one are ignored.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets the queue capacity; values below one are ignored.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan job, n)
		}
	}
}

// WithJobTimeout bounds each delivery attempt.
func WithJobTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.jobTimeout = timeout }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// NewDispatcher starts the workers. A nil sender or updater falls back to
// LogSender or LogUpdater.
func NewDispatcher(sender Sender, updater Updater, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:       sender,
		updater:      updater,
		queue:        make(chan job, 256),
		workers:      4,
		jobTimeout:   30 * time.Second,
		shutdownChan: make(chan struct{}),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.sender == nil {
		d.sender = LogSender{Logger: d.logger}
	}
	if d.updater == nil {
		d.updater = LogUpdater{Logger: d.logger}
	}

	d.startWorkers()
	return d
}

// Email queues a SEND_EMAIL action. It blocks while the queue is full.
func (d *Dispatcher) Email(ctx context.Context, req workflow.EmailRequest) error {
	return d.enqueue(ctx, job{
		kind: KindEmail,
		email: EmailMessage{
			WorkflowID: req.WorkflowID,
			EntityID:   req.EntityID,
			TemplateID: req.TemplateID,
			To:         req.To,
			QueuedAt:   time.Now(),
		},
	})
}

// Autofill queues an AUTOFILL_FIELDS action.
func (d *Dispatcher) Autofill(ctx context.Context, req workflow.AutofillRequest) error {
	req.Fields = append([]workflow.Field{}, req.Fields...)
	return d.enqueue(ctx, job{kind: KindAutofill, autofill: req})
}

func (d *Dispatcher) enqueue(ctx context.Context, j job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- j:
		d.logger.Debug("notification queued", slog.String("kind", string(j.kind)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		select {
		case j := <-d.queue:
			d.process(j, id)
		case <-d.shutdownChan:
			d.drain(id)
			return
		}
	}
}

// drain finishes whatever is still queued at shutdown.
func (d *Dispatcher) drain(id int) {
	for {
		select {
		case j := <-d.queue:
			d.process(j, id)
		default:
			return
		}
	}
}

func (d *Dispatcher) process(j job, workerID int) {
	ctx, cancel := context.WithTimeout(context.Background(), d.jobTimeout)
	defer cancel()

	start := time.Now()
	var (
		err      error
		entityID string
	)
	switch j.kind {
	case KindEmail:
		entityID = j.email.EntityID
		err = d.sender.SendEmail(ctx, j.email)
	case KindAutofill:
		entityID = j.autofill.EntityID
		err = d.updater.Autofill(ctx, j.autofill.EntityID, j.autofill.Fields)
	default:
		err = fmt.Errorf("unknown notification kind: %s", j.kind)
	}

	status := StatusSent
	if err != nil {
		status = StatusFailed
		d.logger.Error("failed to deliver notification",
			slog.String("kind", string(j.kind)),
			slog.String("entity_id", entityID),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", time.Since(start)))
	} else {
		d.logger.Info("notification delivered",
			slog.String("kind", string(j.kind)),
			slog.String("entity_id", entityID),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", time.Since(start)))
	}
	if d.recorder != nil {
		d.recorder.RecordNotification(string(j.kind), status)
	}
}

// Shutdown stops accepting jobs, lets the workers finish the queue and
// waits for them or for ctx. It is safe to call more than once.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.shutdownChan)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("notification dispatcher shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
