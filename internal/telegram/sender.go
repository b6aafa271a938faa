// Package telegram implements the chat-platform send surface on the
// Telegram Bot API, with delivery failures classified into the typed
// SendError taxonomy the relay pipeline branches on.
package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"ticketbridge/internal/domain"
)

// Sender implements domain.ChatSender. A single global limiter throttles all
// outbound calls: Telegram caps bots at roughly 30 messages per second and
// answers 429 beyond that.
type Sender struct {
	bot     *tgbotapi.BotAPI
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ domain.ChatSender = (*Sender)(nil)

func NewSender(bot *tgbotapi.BotAPI, ratePerSecond float64, burst int, logger *slog.Logger) *Sender {
	if ratePerSecond <= 0 {
		ratePerSecond = 25
	}
	if burst < 1 {
		burst = 1
	}
	return &Sender{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		logger:  logger,
	}
}

func (s *Sender) SendMessage(ctx context.Context, chatID int64, text string, opts domain.SendOptions) (*domain.SentMessage, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = opts.ReplyToMessageID
	msg.ParseMode = opts.ParseMode
	msg.DisableWebPagePreview = opts.DisablePreview

	sent, err := s.bot.Send(msg)
	if err != nil {
		// A markup parse error means our escaping missed something; the text
		// is still worth delivering, so downgrade to plain once.
		if opts.ParseMode != "" && strings.Contains(err.Error(), "can't parse entities") {
			s.logger.Warn("markup parse error, retrying as plain text",
				"chat_id", chatID, "parse_mode", opts.ParseMode, "err", err,
			)
			plain := tgbotapi.NewMessage(chatID, text)
			plain.ReplyToMessageID = opts.ReplyToMessageID
			plain.DisableWebPagePreview = opts.DisablePreview
			if sent, err = s.bot.Send(plain); err == nil {
				return &domain.SentMessage{ChatID: chatID, MessageID: sent.MessageID}, nil
			}
		}
		return nil, Classify(err)
	}
	return &domain.SentMessage{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func (s *Sender) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, opts domain.SendOptions) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = opts.ParseMode
	if _, err := s.bot.Send(edit); err != nil {
		return Classify(err)
	}
	return nil
}

func (s *Sender) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := s.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return Classify(err)
	}
	return nil
}

// Classify maps a Telegram API error to the SendError taxonomy. Unmatched
// errors come back as SendOther; callers treating them as transient is the
// safe default.
func Classify(err error) *domain.SendError {
	if err == nil {
		return nil
	}

	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return &domain.SendError{Kind: domain.SendOther, Err: err}
	}

	msg := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Code == 403 && (strings.Contains(msg, "blocked") || strings.Contains(msg, "deactivated")):
		return &domain.SendError{Kind: domain.SendBlocked, Err: err}
	case apiErr.Code == 403 && strings.Contains(msg, "kicked"):
		return &domain.SendError{Kind: domain.SendBlocked, Err: err}
	case apiErr.Code == 400 && strings.Contains(msg, "chat not found"):
		return &domain.SendError{Kind: domain.SendChatNotFound, Err: err}
	// The Bot API has used both "replied message not found" and "message to
	// reply not found" for a missing reply target.
	case apiErr.Code == 400 && (strings.Contains(msg, "replied") || strings.Contains(msg, "reply")) && strings.Contains(msg, "not found"):
		return &domain.SendError{Kind: domain.SendMessageNotFound, Err: err}
	case apiErr.Code == 400 && strings.Contains(msg, "message to edit not found"):
		return &domain.SendError{Kind: domain.SendMessageNotFound, Err: err}
	case apiErr.Code == 429:
		return &domain.SendError{
			Kind:       domain.SendRateLimited,
			RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second,
			Err:        err,
		}
	default:
		return &domain.SendError{Kind: domain.SendOther, Err: err}
	}
}
