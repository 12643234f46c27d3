package workflow

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		action Action
		want   string
	}{
		{SetStatus("1", "Benefits Verified"), "Set Status → Benefits Verified"},
		{Autofill("2"), "Autofill 0 field(s)"},
		{Autofill("3", Field{Key: "payer", Value: "Cigna"}), "Autofill 1 field(s)"},
		{Assign("4", AssignUser, "maria"), "Assign → USER:maria"},
		{SendEmail("5", "welcome", RecipientQA), "Email → qa (template: welcome)"},
		{Action{ID: "6"}, "Action"},
	}
	for _, tt := range tests {
		if got := Summarize(tt.action); got != tt.want {
			t.Errorf("Summarize(%s) = %q, want %q", tt.action.ID, got, tt.want)
		}
	}
}

func TestActionJSONShape(t *testing.T) {
	data, err := json.Marshal(Assign("a1", AssignRole, "Senior Agent"))
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	want := `{"id":"a1","type":"ASSIGN_USER","payload":{"mode":"ROLE","value":"Senior Agent"}}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	var got Action
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	p, ok := got.Payload.(AssignPayload)
	if !ok || p.Mode != AssignRole || p.Value != "Senior Agent" {
		t.Errorf("payload = %#v", got.Payload)
	}
}

func TestActionJSONRejects(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"unknown type", `{"id":"a","type":"CALL_PAYER","payload":{}}`},
		{"missing payload", `{"id":"a","type":"SET_STATUS"}`},
		{"null payload", `{"id":"a","type":"SET_STATUS","payload":null}`},
		{"empty status", `{"id":"a","type":"SET_STATUS","payload":{"statusToSet":" "}}`},
		{"bad assign mode", `{"id":"a","type":"ASSIGN_USER","payload":{"mode":"TEAM","value":"x"}}`},
		{"bad recipient", `{"id":"a","type":"SEND_EMAIL","payload":{"templateId":"t","to":"payer"}}`},
		{"email without template", `{"id":"a","type":"SEND_EMAIL","payload":{"to":"clinic"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Action
			if err := json.Unmarshal([]byte(tt.json), &a); !errors.Is(err, ErrInvalid) {
				t.Errorf("Unmarshal() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestAutofillDecodesEmptyFields(t *testing.T) {
	var a Action
	if err := json.Unmarshal([]byte(`{"id":"a","type":"AUTOFILL_FIELDS","payload":{}}`), &a); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	p := a.Payload.(AutofillPayload)
	if p.Fields == nil || len(p.Fields) != 0 {
		t.Errorf("fields = %#v, want empty list", p.Fields)
	}
}
