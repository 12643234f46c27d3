package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ActionType tags the payload of an Action.
type ActionType string

const (
	ActionSetStatus ActionType = "SET_STATUS"
	ActionAutofill  ActionType = "AUTOFILL_FIELDS"
	ActionAssign    ActionType = "ASSIGN_USER"
	ActionSendEmail ActionType = "SEND_EMAIL"
)

// AssignMode says whether an assignment targets a role or a named user.
type AssignMode string

const (
	AssignRole AssignMode = "ROLE"
	AssignUser AssignMode = "USER"
)

// Recipient is the audience of a SEND_EMAIL action.
type Recipient string

const (
	RecipientClinic Recipient = "clinic"
	RecipientAgent  Recipient = "agent"
	RecipientQA     Recipient = "qa"
)

// Payload is the type-specific body of an Action.
type Payload interface {
	Type() ActionType
	validate() error
}

type SetStatusPayload struct {
	StatusToSet string `json:"statusToSet"`
}

// Field is one key/value pair written by an autofill.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type AutofillPayload struct {
	Fields []Field `json:"fields"`
}

type AssignPayload struct {
	Mode  AssignMode `json:"mode"`
	Value string     `json:"value"`
}

type EmailPayload struct {
	TemplateID string    `json:"templateId"`
	To         Recipient `json:"to"`
}

func (SetStatusPayload) Type() ActionType { return ActionSetStatus }
func (AutofillPayload) Type() ActionType  { return ActionAutofill }
func (AssignPayload) Type() ActionType    { return ActionAssign }
func (EmailPayload) Type() ActionType     { return ActionSendEmail }

func (p SetStatusPayload) validate() error {
	if strings.TrimSpace(p.StatusToSet) == "" {
		return invalidf("SET_STATUS requires statusToSet")
	}
	return nil
}

func (p AutofillPayload) validate() error {
	for i, f := range p.Fields {
		if strings.TrimSpace(f.Key) == "" {
			return invalidf("AUTOFILL_FIELDS field %d requires a key", i)
		}
	}
	return nil
}

func (p AssignPayload) validate() error {
	if p.Mode != AssignRole && p.Mode != AssignUser {
		return invalidf("ASSIGN_USER mode %q", p.Mode)
	}
	if strings.TrimSpace(p.Value) == "" {
		return invalidf("ASSIGN_USER requires a value")
	}
	return nil
}

func (p EmailPayload) validate() error {
	switch p.To {
	case RecipientClinic, RecipientAgent, RecipientQA:
	default:
		return invalidf("SEND_EMAIL recipient %q", p.To)
	}
	if strings.TrimSpace(p.TemplateID) == "" {
		return invalidf("SEND_EMAIL requires a templateId")
	}
	return nil
}

// Action is a tagged union of node side effects. It serialises as
// {"id", "type", "payload"}.
type Action struct {
	ID      string
	Payload Payload
}

// Type returns the payload tag.
func (a Action) Type() ActionType {
	if a.Payload == nil {
		return ""
	}
	return a.Payload.Type()
}

// Validate checks the payload.
func (a Action) Validate() error {
	if a.Payload == nil {
		return invalidf("action %s has no payload", a.ID)
	}
	return a.Payload.validate()
}

// SetStatus builds a SET_STATUS action.
func SetStatus(id, status string) Action {
	return Action{ID: id, Payload: SetStatusPayload{StatusToSet: status}}
}

// Autofill builds an AUTOFILL_FIELDS action.
func Autofill(id string, fields ...Field) Action {
	if fields == nil {
		fields = []Field{}
	}
	return Action{ID: id, Payload: AutofillPayload{Fields: fields}}
}

// Assign builds an ASSIGN_USER action.
func Assign(id string, mode AssignMode, value string) Action {
	return Action{ID: id, Payload: AssignPayload{Mode: mode, Value: value}}
}

// SendEmail builds a SEND_EMAIL action.
func SendEmail(id, templateID string, to Recipient) Action {
	return Action{ID: id, Payload: EmailPayload{TemplateID: templateID, To: to}}
}

// Summarize renders a one-line description of a, as shown in run results
// and the workflow audit export.
func Summarize(a Action) string {
	switch p := a.Payload.(type) {
	case SetStatusPayload:
		return "Set Status → " + p.StatusToSet
	case AutofillPayload:
		return fmt.Sprintf("Autofill %d field(s)", len(p.Fields))
	case AssignPayload:
		return fmt.Sprintf("Assign → %s:%s", p.Mode, p.Value)
	case EmailPayload:
		return fmt.Sprintf("Email → %s (template: %s)", p.To, p.TemplateID)
	}
	return "Action"
}

type actionJSON struct {
	ID      string          `json:"id"`
	Type    ActionType      `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (a Action) MarshalJSON() ([]byte, error) {
	if a.Payload == nil {
		return nil, fmt.Errorf("workflow: action %s has no payload", a.ID)
	}
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(actionJSON{ID: a.ID, Type: a.Payload.Type(), Payload: payload})
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var raw actionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Payload) == 0 || string(raw.Payload) == "null" {
		return invalidf("action %s: missing payload", raw.ID)
	}

	var (
		p   Payload
		err error
	)
	switch raw.Type {
	case ActionSetStatus:
		var v SetStatusPayload
		err = json.Unmarshal(raw.Payload, &v)
		p = v
	case ActionAutofill:
		var v AutofillPayload
		err = json.Unmarshal(raw.Payload, &v)
		if v.Fields == nil {
			v.Fields = []Field{}
		}
		p = v
	case ActionAssign:
		var v AssignPayload
		err = json.Unmarshal(raw.Payload, &v)
		p = v
	case ActionSendEmail:
		var v EmailPayload
		err = json.Unmarshal(raw.Payload, &v)
		p = v
	default:
		return invalidf("unknown action type %q", raw.Type)
	}
	if err != nil {
		return fmt.Errorf("action %s payload: %w", raw.ID, err)
	}

	*a = Action{ID: raw.ID, Payload: p}
	return a.Validate()
}

func cloneActions(in []Action) []Action {
	if in == nil {
		return nil
	}
	out := make([]Action, len(in))
	for i, a := range in {
		if p, ok := a.Payload.(AutofillPayload); ok {
			p.Fields = append([]Field{}, p.Fields...)
			a.Payload = p
		}
		out[i] = a
	}
	return out
}
