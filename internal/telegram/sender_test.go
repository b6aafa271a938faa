package telegram

import (
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ticketbridge/internal/domain"
)

func TestClassify_Blocked(t *testing.T) {
	err := &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
	se := Classify(err)
	if se.Kind != domain.SendBlocked {
		t.Errorf("expected SendBlocked, got %s", se.Kind)
	}
}

func TestClassify_Deactivated(t *testing.T) {
	err := &tgbotapi.Error{Code: 403, Message: "Forbidden: user is deactivated"}
	se := Classify(err)
	if se.Kind != domain.SendBlocked {
		t.Errorf("expected SendBlocked, got %s", se.Kind)
	}
}

func TestClassify_ChatNotFound(t *testing.T) {
	err := &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}
	se := Classify(err)
	if se.Kind != domain.SendChatNotFound {
		t.Errorf("expected SendChatNotFound, got %s", se.Kind)
	}
}

func TestClassify_ReplyTargetMissing(t *testing.T) {
	// Both phrasings the Bot API has used for a missing reply target.
	for _, msg := range []string{
		"Bad Request: replied message not found",
		"Bad Request: message to reply not found",
	} {
		se := Classify(&tgbotapi.Error{Code: 400, Message: msg})
		if se.Kind != domain.SendMessageNotFound {
			t.Errorf("%q: expected SendMessageNotFound, got %s", msg, se.Kind)
		}
	}
}

func TestClassify_RateLimited(t *testing.T) {
	err := &tgbotapi.Error{
		Code:               429,
		Message:            "Too Many Requests: retry after 7",
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7},
	}
	se := Classify(err)
	if se.Kind != domain.SendRateLimited {
		t.Errorf("expected SendRateLimited, got %s", se.Kind)
	}
	if se.RetryAfter != 7*time.Second {
		t.Errorf("expected RetryAfter 7s, got %v", se.RetryAfter)
	}
}

func TestClassify_OtherAPIError(t *testing.T) {
	err := &tgbotapi.Error{Code: 400, Message: "Bad Request: message text is empty"}
	se := Classify(err)
	if se.Kind != domain.SendOther {
		t.Errorf("expected SendOther, got %s", se.Kind)
	}
}

func TestClassify_PlainError(t *testing.T) {
	se := Classify(errors.New("dial tcp: connection refused"))
	if se.Kind != domain.SendOther {
		t.Errorf("expected SendOther, got %s", se.Kind)
	}
}

func TestClassify_Unwrap(t *testing.T) {
	inner := &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
	se := Classify(inner)
	var apiErr *tgbotapi.Error
	if !errors.As(se, &apiErr) {
		t.Error("classified error should unwrap to *tgbotapi.Error")
	}
}

func TestClassify_Nil(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("nil error should classify to nil")
	}
}
