package webhook

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"ticketbridge/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestValidator() *Validator {
	return NewValidator(domain.SourceDashboard, testLogger())
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("bad test payload: %v", err)
	}
	return m
}

func validMessageCreated(t *testing.T) map[string]any {
	return decode(t, `{
		"type": "message_created",
		"sourcePlatform": "dashboard",
		"timestamp": "2025-06-01T12:00:00Z",
		"data": {"conversationId": "c1", "content": "Hello"}
	}`)
}

func TestValidate_ValidMessageCreated(t *testing.T) {
	v := newTestValidator()
	ev, verr := v.Validate(validMessageCreated(t))
	if verr != nil {
		t.Fatalf("unexpected rejection: %v", verr)
	}
	if ev.Type != domain.EventMessageCreated {
		t.Errorf("wrong type: %s", ev.Type)
	}
	if ev.Data.ConversationID != "c1" || ev.Data.Content != "Hello" {
		t.Errorf("data not narrowed: %+v", ev.Data)
	}
}

// Each rule rejected in isolation: the failing event violates only one rule.

func TestValidate_NilPayload(t *testing.T) {
	v := newTestValidator()
	_, verr := v.Validate(nil)
	if verr == nil || verr.Rule != RulePayloadObject {
		t.Errorf("expected %s, got %v", RulePayloadObject, verr)
	}
}

func TestValidate_UnsupportedType(t *testing.T) {
	v := newTestValidator()
	raw := validMessageCreated(t)
	raw["type"] = "conversation_typing_on"
	_, verr := v.Validate(raw)
	if verr == nil || verr.Rule != RuleEventType {
		t.Errorf("expected %s, got %v", RuleEventType, verr)
	}
}

func TestValidate_UntrustedSource(t *testing.T) {
	v := newTestValidator()
	raw := validMessageCreated(t)
	raw["sourcePlatform"] = "crawler"
	_, verr := v.Validate(raw)
	if verr == nil || verr.Rule != RuleSourcePlatform {
		t.Errorf("expected %s, got %v", RuleSourcePlatform, verr)
	}
}

func TestValidate_MissingData(t *testing.T) {
	v := newTestValidator()
	raw := validMessageCreated(t)
	delete(raw, "data")
	_, verr := v.Validate(raw)
	if verr == nil || verr.Rule != RuleDataObject {
		t.Errorf("expected %s, got %v", RuleDataObject, verr)
	}
}

func TestValidate_MissingConversationID(t *testing.T) {
	v := newTestValidator()
	raw := decode(t, `{
		"type": "message_created",
		"sourcePlatform": "dashboard",
		"data": {"content": "Hello"}
	}`)
	_, verr := v.Validate(raw)
	if verr == nil || verr.Rule != RuleConversationID {
		t.Errorf("expected %s, got %v", RuleConversationID, verr)
	}
}

func TestValidate_EmptyMessage(t *testing.T) {
	v := newTestValidator()
	raw := decode(t, `{
		"type": "message_created",
		"sourcePlatform": "dashboard",
		"data": {"conversationId": "c1"}
	}`)
	_, verr := v.Validate(raw)
	if verr == nil || verr.Rule != RuleMessageContent {
		t.Errorf("expected %s, got %v", RuleMessageContent, verr)
	}
}

func TestValidate_BadStatus(t *testing.T) {
	v := newTestValidator()
	raw := decode(t, `{
		"type": "conversation_updated",
		"sourcePlatform": "dashboard",
		"data": {"conversationId": "c1", "status": "snoozed"}
	}`)
	_, verr := v.Validate(raw)
	if verr == nil || verr.Rule != RuleStatus {
		t.Errorf("expected %s, got %v", RuleStatus, verr)
	}
}

// Payload variants that must pass.

func TestValidate_NumericID(t *testing.T) {
	v := newTestValidator()
	raw := decode(t, `{
		"type": "message_created",
		"sourcePlatform": "dashboard",
		"data": {"id": 4711, "text": "hi"}
	}`)
	ev, verr := v.Validate(raw)
	if verr != nil {
		t.Fatalf("unexpected rejection: %v", verr)
	}
	if ev.Data.ConversationID != "4711" {
		t.Errorf("numeric id not stringified: %q", ev.Data.ConversationID)
	}
	if ev.Data.Content != "hi" {
		t.Errorf("text fallback not applied: %q", ev.Data.Content)
	}
}

func TestValidate_MixedCaseStatus(t *testing.T) {
	v := newTestValidator()
	raw := decode(t, `{
		"type": "conversation_updated",
		"sourcePlatform": "dashboard",
		"data": {"conversationId": "c1", "status": "OPEN", "previousStatus": "Closed"}
	}`)
	ev, verr := v.Validate(raw)
	if verr != nil {
		t.Fatalf("unexpected rejection: %v", verr)
	}
	if ev.Data.Status != domain.StatusOpen {
		t.Errorf("expected open, got %s", ev.Data.Status)
	}
	if ev.Data.PreviousStatus != domain.StatusClosed {
		t.Errorf("expected closed, got %s", ev.Data.PreviousStatus)
	}
}

func TestValidate_AttachmentsOnly(t *testing.T) {
	v := newTestValidator()
	payloads := map[string]string{
		"data.attachments": `{
			"type": "message_created", "sourcePlatform": "dashboard",
			"data": {"conversationId": "c1", "attachments": [{"file_type": "image", "data_url": "http://x/1.png"}]}
		}`,
		"data.message.attachments": `{
			"type": "message_created", "sourcePlatform": "dashboard",
			"data": {"conversationId": "c1", "message": {"attachments": [{"file_type": "file"}]}}
		}`,
		"data.conversation.messages[0].attachments": `{
			"type": "message_created", "sourcePlatform": "dashboard",
			"data": {"conversationId": "c1", "conversation": {"messages": [{"attachments": [{"file_type": "audio"}]}]}}
		}`,
	}
	for name, payload := range payloads {
		ev, verr := v.Validate(decode(t, payload))
		if verr != nil {
			t.Errorf("%s: unexpected rejection: %v", name, verr)
			continue
		}
		if len(ev.Data.Attachments) == 0 {
			t.Errorf("%s: attachments not collected", name)
		}
	}
}

func TestValidate_EmptyAttachmentListRejected(t *testing.T) {
	v := newTestValidator()
	raw := decode(t, `{
		"type": "message_created",
		"sourcePlatform": "dashboard",
		"data": {"conversationId": "c1", "attachments": []}
	}`)
	_, verr := v.Validate(raw)
	if verr == nil || verr.Rule != RuleMessageContent {
		t.Errorf("expected %s, got %v", RuleMessageContent, verr)
	}
}
