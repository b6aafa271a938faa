// Package webhook implements the event relay pipeline's inbound half: a
// single-consumer queue drain with validation and per-(type, source)
// handler dispatch.
package webhook

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"ticketbridge/internal/domain"
)

// Validation rule identifiers, in the order the rules are applied. A
// rejected event names exactly the first rule it violated.
const (
	RulePayloadObject  = "payload_object"
	RuleEventType      = "event_type"
	RuleSourcePlatform = "source_platform"
	RuleDataObject     = "data_object"
	RuleConversationID = "conversation_id"
	RuleMessageContent = "message_content"
	RuleStatus         = "status"
)

// ValidationError reports which rule a raw event failed.
type ValidationError struct {
	Rule   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("event rejected by rule %s: %s", e.Rule, e.Detail)
}

// Validator gatekeeps malformed and out-of-scope events before they reach
// delivery logic. Only events from the trusted source pass; everything else
// is rejected and logged with the failing rule and the keys that were
// actually present, so operators can debug without replaying payloads.
type Validator struct {
	trustedSource string
	logger        *slog.Logger
}

func NewValidator(trustedSource string, logger *slog.Logger) *Validator {
	if trustedSource == "" {
		trustedSource = domain.SourceDashboard
	}
	return &Validator{trustedSource: trustedSource, logger: logger}
}

// Validate applies the rules in order, short-circuiting on the first
// failure, and narrows the raw payload into a typed event.
func (v *Validator) Validate(raw map[string]any) (*domain.WebhookEvent, *ValidationError) {
	if ve := v.check(raw); ve != nil {
		v.logger.Warn("webhook event rejected",
			"rule", ve.Rule,
			"detail", ve.Detail,
			"keys", mapKeys(raw),
		)
		return nil, ve
	}
	return v.narrow(raw), nil
}

func (v *Validator) check(raw map[string]any) *ValidationError {
	if raw == nil {
		return &ValidationError{Rule: RulePayloadObject, Detail: "payload is not an object"}
	}

	evType, _ := raw["type"].(string)
	switch domain.EventType(evType) {
	case domain.EventMessageCreated, domain.EventConversationUpdated:
	default:
		return &ValidationError{Rule: RuleEventType, Detail: fmt.Sprintf("unsupported type %q", evType)}
	}

	source, _ := raw["sourcePlatform"].(string)
	if source != v.trustedSource {
		// Security boundary, not just a filter: events claiming any other
		// origin never reach delivery logic.
		return &ValidationError{Rule: RuleSourcePlatform, Detail: fmt.Sprintf("untrusted source %q", source)}
	}

	data, ok := raw["data"].(map[string]any)
	if !ok || data == nil {
		return &ValidationError{Rule: RuleDataObject, Detail: "data is not an object"}
	}

	if conversationID(data) == "" {
		return &ValidationError{Rule: RuleConversationID, Detail: "missing conversationId/id"}
	}

	switch domain.EventType(evType) {
	case domain.EventMessageCreated:
		if messageText(data) == "" && !hasAttachments(data) {
			return &ValidationError{
				Rule:   RuleMessageContent,
				Detail: "no content, text or attachments",
			}
		}
	case domain.EventConversationUpdated:
		status, _ := data["status"].(string)
		switch strings.ToLower(status) {
		case string(domain.StatusOpen), string(domain.StatusClosed):
		default:
			return &ValidationError{Rule: RuleStatus, Detail: fmt.Sprintf("status %q is not open/closed", status)}
		}
	}
	return nil
}

// narrow builds the typed event. Only called after check passed.
func (v *Validator) narrow(raw map[string]any) *domain.WebhookEvent {
	data := raw["data"].(map[string]any)

	ev := &domain.WebhookEvent{
		Type:           domain.EventType(raw["type"].(string)),
		SourcePlatform: v.trustedSource,
		Data: domain.EventData{
			ConversationID: conversationID(data),
		},
	}
	if tp, ok := raw["targetPlatform"].(string); ok {
		ev.TargetPlatform = tp
	}
	if ts, ok := raw["timestamp"].(string); ok {
		ev.Timestamp = ts
	}

	switch ev.Type {
	case domain.EventMessageCreated:
		ev.Data.Content = messageText(data)
		ev.Data.SentByUserID = stringish(data["sentByUserId"])
		ev.Data.Attachments = collectAttachments(data)
	case domain.EventConversationUpdated:
		status, _ := data["status"].(string)
		ev.Data.Status = domain.ConversationStatus(strings.ToLower(status))
		if prev, ok := data["previousStatus"].(string); ok {
			ev.Data.PreviousStatus = domain.ConversationStatus(strings.ToLower(prev))
		}
	}
	return ev
}

// conversationID reads the correlation key, accepting either field name and
// either a string or a numeric JSON value (the helpdesk sends numeric IDs).
func conversationID(data map[string]any) string {
	if id := stringish(data["conversationId"]); id != "" {
		return id
	}
	return stringish(data["id"])
}

func messageText(data map[string]any) string {
	if s, ok := data["content"].(string); ok && s != "" {
		return s
	}
	if s, ok := data["text"].(string); ok && s != "" {
		return s
	}
	return ""
}

// hasAttachments probes the locations different upstream producers use.
func hasAttachments(data map[string]any) bool {
	if nonEmptyList(data["attachments"]) {
		return true
	}
	if msg, ok := data["message"].(map[string]any); ok && nonEmptyList(msg["attachments"]) {
		return true
	}
	if conv, ok := data["conversation"].(map[string]any); ok {
		if msgs, ok := conv["messages"].([]any); ok && len(msgs) > 0 {
			if first, ok := msgs[0].(map[string]any); ok && nonEmptyList(first["attachments"]) {
				return true
			}
		}
	}
	return false
}

// collectAttachments pulls attachments from the same locations hasAttachments
// probes, first hit wins.
func collectAttachments(data map[string]any) []domain.Attachment {
	if list, ok := data["attachments"].([]any); ok && len(list) > 0 {
		return decodeAttachments(list)
	}
	if msg, ok := data["message"].(map[string]any); ok {
		if list, ok := msg["attachments"].([]any); ok && len(list) > 0 {
			return decodeAttachments(list)
		}
	}
	if conv, ok := data["conversation"].(map[string]any); ok {
		if msgs, ok := conv["messages"].([]any); ok && len(msgs) > 0 {
			if first, ok := msgs[0].(map[string]any); ok {
				if list, ok := first["attachments"].([]any); ok && len(list) > 0 {
					return decodeAttachments(list)
				}
			}
		}
	}
	return nil
}

func decodeAttachments(list []any) []domain.Attachment {
	out := make([]domain.Attachment, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, domain.Attachment{
			FileType: stringish(m["file_type"]),
			DataURL:  stringish(m["data_url"]),
		})
	}
	return out
}

func nonEmptyList(v any) bool {
	list, ok := v.([]any)
	return ok && len(list) > 0
}

// stringish renders a JSON string or number as a string; anything else is "".
func stringish(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode to float64; helpdesk IDs are integral.
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

func mapKeys(m map[string]any) []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
