// Package relay turns validated helpdesk events into correctly-threaded
// Telegram messages and keeps the correlation store consistent with what
// was actually delivered.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticketbridge/internal/domain"
	"ticketbridge/internal/metrics"
	"ticketbridge/internal/retry"
	"ticketbridge/internal/webhook"
)

// DeliveryHandler is the handler the queue consumer dispatches to. One
// instance serves both event types.
type DeliveryHandler struct {
	store        domain.CorrelationStore
	sender       domain.ChatSender
	templates    Templates
	parseMode    string
	storageRetry retry.Config
	logger       *slog.Logger
}

type DeliveryConfig struct {
	Store        domain.CorrelationStore
	Sender       domain.ChatSender
	Templates    Templates
	ParseMode    string
	StorageRetry retry.Config // zero value selects the storage preset
	Logger       *slog.Logger
}

func NewDeliveryHandler(cfg DeliveryConfig) *DeliveryHandler {
	if cfg.StorageRetry.MaxAttempts == 0 {
		cfg.StorageRetry = retry.StoragePreset()
	}
	return &DeliveryHandler{
		store:        cfg.Store,
		sender:       cfg.Sender,
		templates:    cfg.Templates,
		parseMode:    cfg.ParseMode,
		storageRetry: cfg.StorageRetry,
		logger:       cfg.Logger,
	}
}

// Register wires the handler into a consumer for both supported event types.
func (h *DeliveryHandler) Register(c *webhook.Consumer) {
	c.Subscribe(domain.EventMessageCreated, domain.SourceDashboard, h.HandleMessageCreated)
	c.Subscribe(domain.EventConversationUpdated, domain.SourceDashboard, h.HandleConversationUpdated)
}

// HandleMessageCreated relays an agent's reply into the originating
// Telegram thread and records the sent message so a later user reply can be
// routed back to the same conversation.
func (h *DeliveryHandler) HandleMessageCreated(ctx context.Context, ev *domain.WebhookEvent) error {
	ticket, err := h.lookupTicket(ctx, ev)
	if err != nil || ticket == nil {
		return err
	}

	text := ev.Data.Content
	if text == "" && len(ev.Data.Attachments) == 0 {
		// The validator already filters this; belt and braces.
		h.logger.Warn("agent message with no deliverable content",
			"conversation_id", ev.Data.ConversationID,
			"correlation_id", ev.CorrelationID,
		)
		return nil
	}

	formatted := h.formatAgentMessage(ticket.FriendlyID, text, len(ev.Data.Attachments))

	sent, err := h.deliver(ctx, ev, ticket, formatted)
	if err != nil || sent == nil {
		return err
	}

	record := domain.AgentMessageRecord{
		ChatMessageID:           sent.MessageID,
		ConversationID:          ticket.ConversationID,
		ChatID:                  ticket.ChatID,
		FriendlyID:              ticket.FriendlyID,
		OriginalTicketMessageID: ticket.TelegramMessageID,
		SentAt:                  time.Now().UTC(),
	}
	err = retry.Do(ctx, h.logger, "store agent message", h.storageRetry, func(ctx context.Context) error {
		return h.store.StoreAgentMessage(ctx, record)
	})
	if err != nil {
		// The message is on the user's screen but replies to it won't route.
		// Surfaced loudly so operators can detect correlation drift; the
		// delivery itself is not treated as failed.
		h.logger.Error("delivered but not recorded",
			"conversation_id", ticket.ConversationID,
			"chat_message_id", sent.MessageID,
			"correlation_id", ev.CorrelationID,
			"err", err,
		)
	}
	return nil
}

// HandleConversationUpdated relays a status change as a resolution or
// reopened notice. Status notices are not reply targets, so nothing is
// recorded.
func (h *DeliveryHandler) HandleConversationUpdated(ctx context.Context, ev *domain.WebhookEvent) error {
	ticket, err := h.lookupTicket(ctx, ev)
	if err != nil || ticket == nil {
		return err
	}

	var template string
	switch ev.Data.Status {
	case domain.StatusClosed:
		template = h.templates.ResolutionNotice
	case domain.StatusOpen:
		template = h.templates.ReopenedNotice
	default:
		// The validator guarantees open/closed; anything else is a bug.
		return fmt.Errorf("unmapped conversation status %q", ev.Data.Status)
	}

	_, err = h.deliver(ctx, ev, ticket, h.formatStatusNotice(template, ticket.FriendlyID))
	return err
}

// lookupTicket resolves the event's conversation to a stored ticket.
// A missing ticket is a logged no-op, not a failure: the conversation was
// never opened through this bridge instance, or its record expired.
func (h *DeliveryHandler) lookupTicket(ctx context.Context, ev *domain.WebhookEvent) (*domain.TicketRecord, error) {
	var ticket *domain.TicketRecord
	err := retry.Do(ctx, h.logger, "lookup ticket", h.storageRetry, func(ctx context.Context) error {
		var lookupErr error
		ticket, lookupErr = h.store.TicketByConversationID(ctx, ev.Data.ConversationID)
		return lookupErr
	})
	if err != nil {
		return nil, fmt.Errorf("ticket lookup for %s: %w", ev.Data.ConversationID, err)
	}
	if ticket == nil {
		metrics.EventsDropped("unknown_ticket").Inc()
		h.logger.Info("event for unknown conversation dropped",
			"conversation_id", ev.Data.ConversationID,
			"event_type", ev.Type,
			"correlation_id", ev.CorrelationID,
		)
		return nil, nil
	}
	return ticket, nil
}

// deliver sends text as a threaded reply to the ticket's original message,
// with the full failure-recovery ladder: one non-threaded fallback when the
// reply target is gone, recipient cleanup when the user is unreachable, a
// logged drop on rate limiting. A nil SentMessage with nil error means the
// event reached a terminal non-delivery state that is not a failure.
func (h *DeliveryHandler) deliver(ctx context.Context, ev *domain.WebhookEvent, ticket *domain.TicketRecord, text string) (*domain.SentMessage, error) {
	opts := domain.SendOptions{
		ReplyToMessageID: ticket.TelegramMessageID,
		ParseMode:        h.parseMode,
		DisablePreview:   true,
	}

	sent, err := h.sender.SendMessage(ctx, ticket.ChatID, text, opts)
	if err == nil {
		metrics.MessagesDelivered().Inc()
		return sent, nil
	}

	var sendErr *domain.SendError
	if !errors.As(err, &sendErr) {
		return nil, fmt.Errorf("send to chat %d: %w", ticket.ChatID, err)
	}

	switch sendErr.Kind {
	case domain.SendMessageNotFound:
		return h.deliverFallback(ctx, ev, ticket, text)

	case domain.SendBlocked, domain.SendChatNotFound:
		h.logger.Info("recipient unreachable, cleaning up",
			"chat_id", ticket.ChatID,
			"kind", sendErr.Kind,
			"conversation_id", ticket.ConversationID,
			"correlation_id", ev.CorrelationID,
		)
		h.CleanupRecipient(ctx, ticket.ChatID)
		return nil, nil // expected outcome, suppressed

	case domain.SendRateLimited:
		metrics.EventsDropped("rate_limited").Inc()
		h.logger.Warn("delivery dropped due to rate limiting",
			"chat_id", ticket.ChatID,
			"retry_after", sendErr.RetryAfter,
			"conversation_id", ticket.ConversationID,
			"correlation_id", ev.CorrelationID,
		)
		return nil, nil // accepted data loss, not re-queued

	default:
		return nil, fmt.Errorf("send to chat %d: %w", ticket.ChatID, sendErr)
	}
}

// deliverFallback retries exactly once as a new, non-threaded message with
// a note that threading was not possible. The fallback itself is never
// retried.
func (h *DeliveryHandler) deliverFallback(ctx context.Context, ev *domain.WebhookEvent, ticket *domain.TicketRecord, text string) (*domain.SentMessage, error) {
	h.logger.Warn("reply target missing, sending without thread",
		"chat_id", ticket.ChatID,
		"original_message_id", ticket.TelegramMessageID,
		"conversation_id", ticket.ConversationID,
		"correlation_id", ev.CorrelationID,
	)

	annotated := escapeFor(h.parseMode, h.templates.FallbackNote) + "\n\n" + text
	sent, err := h.sender.SendMessage(ctx, ticket.ChatID, annotated, domain.SendOptions{
		ParseMode:      h.parseMode,
		DisablePreview: true,
	})
	if err == nil {
		metrics.FallbackSends().Inc()
		metrics.MessagesDelivered().Inc()
		return sent, nil
	}

	var sendErr *domain.SendError
	if errors.As(err, &sendErr) &&
		(sendErr.Kind == domain.SendBlocked || sendErr.Kind == domain.SendChatNotFound) {
		h.CleanupRecipient(ctx, ticket.ChatID)
		return nil, nil
	}
	return nil, fmt.Errorf("fallback send to chat %d: %w", ticket.ChatID, err)
}

// CleanupRecipient removes every correlation the bridge holds for an
// unreachable chat: all its tickets (with their derived mappings) and the
// cached customer. Best-effort throughout, failures are logged and
// swallowed; a failed cleanup must never take the relay down. Per-user
// conversation state lives under a different key with its own TTL and is
// deliberately not touched here.
func (h *DeliveryHandler) CleanupRecipient(ctx context.Context, chatID int64) {
	metrics.RecipientCleanups().Inc()

	tickets, err := h.store.TicketsForChat(ctx, chatID)
	if err != nil {
		h.logger.Error("cleanup: cannot enumerate tickets", "chat_id", chatID, "err", err)
	}
	for _, t := range tickets {
		if err := h.store.DeleteTicket(ctx, t.ConversationID); err != nil {
			h.logger.Error("cleanup: cannot delete ticket",
				"chat_id", chatID,
				"conversation_id", t.ConversationID,
				"err", err,
			)
		}
	}

	if err := h.store.DeleteCustomer(ctx, chatID); err != nil {
		h.logger.Error("cleanup: cannot delete customer mapping", "chat_id", chatID, "err", err)
	}

	h.logger.Info("recipient cleanup finished", "chat_id", chatID, "tickets_removed", len(tickets))
}
