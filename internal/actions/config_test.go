package actions

import (
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantType string
		unknown  bool
	}{
		{"send message", `{"type":"send_message","channel":"email","to":"{$.email}","body":"hi"}`, TypeSendMessage, false},
		{"tag entity", `{"type":"tag_entity","label":"hot"}`, TypeTagEntity, false},
		{"send without channel", `{"type":"send_message","to":"a@b.c"}`, TypeSendMessage, true},
		{"send without recipient", `{"type":"send_message","channel":"sms"}`, TypeSendMessage, true},
		{"tag without label", `{"type":"tag_entity","label":"  "}`, TypeTagEntity, true},
		{"unsupported type", `{"type":"launch_rocket"}`, "launch_rocket", true},
		{"missing type", `{"label":"hot"}`, "", true},
		{"malformed json", `{"type":`, "", true},
		{"wrong field type", `{"type":"tag_entity","label":42}`, TypeTagEntity, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Parse(tt.raw)
			_, isUnknown := cfg.(Unknown)
			if isUnknown != tt.unknown {
				t.Fatalf("expected unknown=%v, got %#v", tt.unknown, cfg)
			}
			if cfg.Type() != tt.wantType {
				t.Errorf("expected type %q, got %q", tt.wantType, cfg.Type())
			}
		})
	}
}

func TestParse_SendMessageFields(t *testing.T) {
	cfg := Parse(`{"type":"send_message","channel":" email ","to":"x@y.z","subject":"Hello","body":"Body"}`)
	msg, ok := cfg.(SendMessage)
	if !ok {
		t.Fatalf("expected SendMessage, got %#v", cfg)
	}
	if msg.Channel != "email" || msg.To != "x@y.z" || msg.Subject != "Hello" || msg.Body != "Body" {
		t.Errorf("unexpected fields: %+v", msg)
	}
}

func TestTriggerMatches(t *testing.T) {
	trig, err := ParseTrigger(`{"eventKind":"lead.stage_changed","filters":{"toStageId":"won"}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !trig.Matches("lead.stage_changed", map[string]any{"toStageId": "won", "entityId": "lead1"}) {
		t.Error("expected match on won stage")
	}
	if trig.Matches("lead.stage_changed", map[string]any{"toStageId": "lost"}) {
		t.Error("expected no match on lost stage")
	}
	if trig.Matches("lead.stage_changed", map[string]any{}) {
		t.Error("expected no match when filtered attribute is absent")
	}
	if trig.Matches("lead.created", map[string]any{"toStageId": "won"}) {
		t.Error("expected no match on a different event kind")
	}
}

func TestTriggerMatches_NumericFilter(t *testing.T) {
	trig, err := ParseTrigger(`{"eventKind":"lead.scored","filters":{"score":10}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !trig.Matches("lead.scored", map[string]any{"score": float64(10)}) {
		t.Error("expected numeric filter to match")
	}
}

func TestParseTrigger_Invalid(t *testing.T) {
	if _, err := ParseTrigger(`{"filters":{}}`); err == nil {
		t.Error("expected error for missing eventKind")
	}
	if _, err := ParseTrigger(`not json`); err == nil {
		t.Error("expected error for malformed json")
	}
}
