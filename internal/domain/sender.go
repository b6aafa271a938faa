package domain

import (
	"context"
	"fmt"
	"time"
)

// SendErrorKind classifies a chat-platform delivery failure so callers can
// branch on data instead of parsing error strings.
type SendErrorKind int

const (
	// SendOther is any failure not covered by a specific kind.
	SendOther SendErrorKind = iota
	// SendBlocked means the recipient blocked the bot.
	SendBlocked
	// SendChatNotFound means the chat no longer exists.
	SendChatNotFound
	// SendMessageNotFound means the reply target message is gone.
	SendMessageNotFound
	// SendRateLimited means the platform asked us to slow down.
	SendRateLimited
)

func (k SendErrorKind) String() string {
	switch k {
	case SendBlocked:
		return "blocked"
	case SendChatNotFound:
		return "chat_not_found"
	case SendMessageNotFound:
		return "message_not_found"
	case SendRateLimited:
		return "rate_limited"
	default:
		return "other"
	}
}

// SendError is a classified delivery failure. RetryAfter is only set for
// SendRateLimited, when the platform suggested a backoff.
type SendError struct {
	Kind       SendErrorKind
	RetryAfter time.Duration
	Err        error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("send failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("send failed (%s)", e.Kind)
}

func (e *SendError) Unwrap() error { return e.Err }

// SentMessage identifies a message the sender successfully delivered.
type SentMessage struct {
	ChatID    int64
	MessageID int
}

// SendOptions control how a message is delivered.
type SendOptions struct {
	ReplyToMessageID int    // 0 = not a reply
	ParseMode        string // "" = plain text
	DisablePreview   bool
}

// ChatSender is the chat-platform send surface the relay pipeline consumes.
// Delivery failures are returned as *SendError where classification is
// possible.
type ChatSender interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) (*SentMessage, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string, opts SendOptions) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}
