package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Disposition is an agent-selected outcome code. Each disposition belongs to
// a work queue and may own a workflow of its own.
type Disposition struct {
	ID         string `json:"id"`
	Code       int    `json:"code"`
	Name       string `json:"name"`
	Queue      string `json:"queue"`
	Enabled    bool   `json:"enabled"`
	OutcomeTag string `json:"outcomeTag"`
}

// Queue summarises the dispositions routed to one work queue.
type Queue struct {
	Name         string `json:"name"`
	Enabled      bool   `json:"enabled"`
	Dispositions int    `json:"dispositions"`
}

var defaultDispositions = []struct {
	code             int
	name, queue, tag string
}{
	{91, "Added to PI Worksheet", "PI - Waiting Queue", "—"},
	{7, "Additional Information Required to Complete EV", "Clinic Action Required", "Missing/Invalid Info"},
	{66, "Auto Create a PA", "Automations", "Data Entry"},
	{73, "Cannot Find Patient in EHR", "Completed Insurance Verifications", "—"},
	{13, "Duplicate", "Manager Action Required", "—"},
	{14, "Duplicate", "Manager Action Required", "—"},
	{10, "Email sent to Clinic - Missing Information", "Clinic Action Required", "Missing/Invalid Info"},
	{11, "Enter Patient Demographic from EHR", "Data Entry", "Data Entry"},
	{90, "Enter PI Patient in EMR", "Data Entry", "—"},
	{6, "EV Failed QC - Please Review Comments", "Insurance Verification - Portal", "Pending"},
	{19, "EV Missing Information - Manager Review", "Manager Action Required", "Missing/Invalid Info"},
	{2, "EV Needs to be Uploaded to Client Portal", "Data Entry", "Data Entry"},
	{5, "EV Requires a Manager Review", "Manager Action Required", "Pending"},
	{3, "EV Requires an Audit", "Audit Required", "Auditing"},
	{71, "EV Uploaded - Additional Insurance on File", "Completed Insurance Verifications", "EV Uploaded To EHR"},
	{1, "EV Uploaded - No Action Required", "Completed Insurance Verifications", "EV Uploaded To EHR"},
	{9, "Manager/Biller Requires an EV", "Insurance Verification - Call", "Pending"},
	{18, "Maxed Attempts to Reach Clinic", "Clinic Action Required", "Missing/Invalid Info"},
	{110, "Medulla - Auto Create PA", "Automations", "—"},
	{96, "Missing Date of Accident", "PI - Waiting Queue", "—"},
	{16, "Missing Insurance Card - Automated Email", "Automations", "Missing/Invalid Info"},
	{15, "Missing Insurance Card - Follow Up Email 1", "Automations", "Missing/Invalid Info"},
	{17, "Missing Insurance Card - Follow Up Email 2", "Automations", "Missing/Invalid Info"},
	{95, "Missing Payer Info", "PI - Waiting Queue", "—"},
	{125, "New Disposition for Accumulation Benefits", "Accumulations Benefits", "—"},
	{8, "New EV Received - Please Verify by Call", "Insurance Verification - Call", "Submitted"},
	{4, "New EV Received - Please Verify by Portal", "Insurance Verification - Portal", "Submitted"},
	{108, "PA Missed - Caught During Audit", "Data Entry", "—"},
	{94, "Patient Name Invalid", "PI - Waiting Queue", "—"},
	{105, "Patient Requires New PA - Call", "Authorizations", "—"},
}

// DefaultDispositions returns the stock disposition list, all enabled.
func DefaultDispositions(newID func() string) []Disposition {
	out := make([]Disposition, len(defaultDispositions))
	for i, d := range defaultDispositions {
		out[i] = Disposition{ID: newID(), Code: d.code, Name: d.name, Queue: d.queue, Enabled: true, OutcomeTag: d.tag}
	}
	return out
}

// DispositionCatalog holds dispositions, their queues and the workflow
// each disposition owns.
type DispositionCatalog struct {
	service      *Service
	dispositions []Disposition
	queues       map[string]bool
	workflows    map[string]string // disposition id -> workflow id
	newID        func() string
	logger       *slog.Logger
	mu           sync.Mutex
}

// NewDispositionCatalog creates a catalog seeded with DefaultDispositions.
// Queues are derived from the seeded dispositions and start enabled.
func NewDispositionCatalog(service *Service) *DispositionCatalog {
	c := &DispositionCatalog{
		service:   service,
		queues:    make(map[string]bool),
		workflows: make(map[string]string),
		newID:     service.opts.newID,
		logger:    service.opts.logger,
	}
	c.dispositions = DefaultDispositions(c.newID)
	for _, d := range c.dispositions {
		c.queues[d.Queue] = true
	}
	return c
}

// List returns dispositions in queue, or all of them when queue is empty.
func (c *DispositionCatalog) List(queue string) []Disposition {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Disposition, 0, len(c.dispositions))
	for _, d := range c.dispositions {
		if queue == "" || d.Queue == queue {
			out = append(out, d)
		}
	}
	return out
}

// Add registers a new disposition at the top of the list. Its queue is
// created when unknown.
func (c *DispositionCatalog) Add(code int, name, queue, outcomeTag string) (Disposition, error) {
	name, queue = strings.TrimSpace(name), strings.TrimSpace(queue)
	if code <= 0 {
		return Disposition{}, invalidf("disposition code must be positive")
	}
	if name == "" || queue == "" {
		return Disposition{}, invalidf("disposition requires a name and a queue")
	}
	if strings.TrimSpace(outcomeTag) == "" {
		outcomeTag = "—"
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	d := Disposition{ID: c.newID(), Code: code, Name: name, Queue: queue, Enabled: true, OutcomeTag: outcomeTag}
	c.dispositions = append([]Disposition{d}, c.dispositions...)
	if _, ok := c.queues[queue]; !ok {
		c.queues[queue] = true
	}
	return d, nil
}

// SetEnabled sets the enabled flag of one disposition.
func (c *DispositionCatalog) SetEnabled(id string, enabled bool) (Disposition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.dispositions {
		if c.dispositions[i].ID == id {
			c.dispositions[i].Enabled = enabled
			return c.dispositions[i], nil
		}
	}
	return Disposition{}, fmt.Errorf("%w: disposition %s", ErrNotFound, id)
}

// AddQueue registers an empty, enabled queue.
func (c *DispositionCatalog) AddQueue(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalidf("queue requires a name")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for existing := range c.queues {
		if strings.EqualFold(existing, name) {
			return invalidf("queue %q already exists", existing)
		}
	}
	c.queues[name] = true
	return nil
}

// SetQueueEnabled sets the enabled flag of a queue.
func (c *DispositionCatalog) SetQueueEnabled(name string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.queues[name]; !ok {
		return fmt.Errorf("%w: queue %s", ErrNotFound, name)
	}
	c.queues[name] = enabled
	return nil
}

// Queues lists queues by name with their disposition counts.
func (c *DispositionCatalog) Queues() []Queue {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make(map[string]int)
	for _, d := range c.dispositions {
		counts[d.Queue]++
	}
	out := make([]Queue, 0, len(c.queues))
	for name, enabled := range c.queues {
		out = append(out, Queue{Name: name, Enabled: enabled, Dispositions: counts[name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// WorkflowFor returns the workflow owned by a disposition, creating it from
// the default template on first use.
func (c *DispositionCatalog) WorkflowFor(ctx context.Context, dispositionID string, accountType AccountType) (*Meta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wfID, ok := c.workflows[dispositionID]; ok {
		return c.service.Get(ctx, wfID)
	}

	var d *Disposition
	for i := range c.dispositions {
		if c.dispositions[i].ID == dispositionID {
			d = &c.dispositions[i]
			break
		}
	}
	if d == nil {
		return nil, fmt.Errorf("%w: disposition %s", ErrNotFound, dispositionID)
	}

	m, err := c.service.Create(ctx, accountType,
		"Disposition: "+d.Name,
		fmt.Sprintf("Queue: %s • Code: %d", d.Queue, d.Code))
	if err != nil {
		return nil, err
	}
	c.workflows[dispositionID] = m.ID
	c.logger.Info("disposition workflow created",
		slog.String("disposition_id", dispositionID),
		slog.String("workflow_id", m.ID))
	return m, nil
}
