// Package bot is the user-facing Telegram side of the bridge: commands, the
// two-step ticket creation flow and routing of user replies back into their
// helpdesk conversations.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ticketbridge/internal/domain"
)

// draftTimeout bounds how long a described-but-unconfirmed issue is kept.
const draftTimeout = 10 * time.Minute

type draft struct {
	text      string
	messageID int
	userID    int64
	createdAt time.Time
}

// CleanupFunc removes every correlation held for an unreachable chat.
type CleanupFunc func(ctx context.Context, chatID int64)

// Bot drives the Telegram updates loop.
type Bot struct {
	api      *tgbotapi.BotAPI
	sender   domain.ChatSender
	store    domain.CorrelationStore
	helpdesk domain.Helpdesk
	cleanup  CleanupFunc
	logger   *slog.Logger

	draftsMu sync.Mutex
	drafts   map[int64]draft // keyed by chat ID
}

type Config struct {
	API      *tgbotapi.BotAPI
	Sender   domain.ChatSender
	Store    domain.CorrelationStore
	Helpdesk domain.Helpdesk
	Cleanup  CleanupFunc
	Logger   *slog.Logger
}

func New(cfg Config) *Bot {
	return &Bot{
		api:      cfg.API,
		sender:   cfg.Sender,
		store:    cfg.Store,
		helpdesk: cfg.Helpdesk,
		cleanup:  cfg.Cleanup,
		logger:   cfg.Logger,
		drafts:   make(map[int64]draft),
	}
}

// Start polls Telegram for updates until the context is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("telegram polling started", "username", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("telegram polling stopping")
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}
	msg := update.Message
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		b.handleCommand(ctx, chatID, msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	// A reply to one of our relayed agent messages routes straight back to
	// the ticket's conversation.
	if msg.ReplyToMessage != nil {
		if b.handleTicketReply(ctx, chatID, msg) {
			return
		}
	}

	b.startDraft(ctx, chatID, msg)
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.reply(ctx, chatID, "👋 Hi! I connect you to our support team.\n\nDescribe your issue in a message and I'll open a ticket for it. Agents reply right here, threaded under your message.\n\nCommands:\n/status — your open tickets\n/cancel — discard a pending ticket\n/help — this message")
	case "help":
		b.reply(ctx, chatID, "📖 How it works:\n\n1. Send a message describing your issue.\n2. Confirm with /confirm and I open a ticket.\n3. Agent replies appear here. Reply to them to continue the conversation.\n\nCommands:\n/status — your open tickets\n/cancel — discard a pending ticket")
	case "status":
		b.handleStatus(ctx, chatID)
	case "confirm":
		b.handleConfirm(ctx, chatID)
	case "cancel":
		b.handleCancel(ctx, chatID)
	default:
		b.reply(ctx, chatID, "Unknown command. Type /help for available commands.")
	}
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	tickets, err := b.store.TicketsForChat(ctx, chatID)
	if err != nil {
		b.logger.Error("status: ticket lookup failed", "chat_id", chatID, "err", err)
		b.reply(ctx, chatID, "⚠️ Could not look up your tickets right now, try again in a moment.")
		return
	}
	if len(tickets) == 0 {
		b.reply(ctx, chatID, "You have no open tickets. Send me a message to open one.")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎫 Your tickets (%d):\n", len(tickets)))
	for _, t := range tickets {
		summary := t.Summary
		if len(summary) > 60 {
			summary = summary[:60] + "…"
		}
		sb.WriteString(fmt.Sprintf("• %s: %s\n", t.FriendlyID, summary))
	}
	b.reply(ctx, chatID, sb.String())
}

// startDraft is step one of ticket creation: remember what the user wrote
// and ask for confirmation.
func (b *Bot) startDraft(ctx context.Context, chatID int64, msg *tgbotapi.Message) {
	b.draftsMu.Lock()
	b.drafts[chatID] = draft{
		text:      strings.TrimSpace(msg.Text),
		messageID: msg.MessageID,
		userID:    msg.From.ID,
		createdAt: time.Now(),
	}
	b.draftsMu.Unlock()

	b.reply(ctx, chatID, "📝 Got it. Open a support ticket for this?\n\nSend /confirm to open it or /cancel to discard.")
}

// handleConfirm is step two: create the helpdesk conversation and record
// the correlation.
func (b *Bot) handleConfirm(ctx context.Context, chatID int64) {
	b.draftsMu.Lock()
	d, ok := b.drafts[chatID]
	if ok {
		delete(b.drafts, chatID)
	}
	b.draftsMu.Unlock()

	if !ok || time.Since(d.createdAt) > draftTimeout {
		b.reply(ctx, chatID, "Nothing to confirm. Describe your issue first.")
		return
	}

	contact, err := b.ensureCustomer(ctx, chatID, d.userID)
	if err != nil {
		b.logger.Error("ticket creation: contact failed", "chat_id", chatID, "err", err)
		b.reply(ctx, chatID, "⚠️ Could not reach the helpdesk, your ticket was not created. Please try again.")
		return
	}

	conv, err := b.helpdesk.CreateConversation(ctx, *contact, d.text)
	if err != nil {
		b.logger.Error("ticket creation: conversation failed", "chat_id", chatID, "err", err)
		b.reply(ctx, chatID, "⚠️ Could not reach the helpdesk, your ticket was not created. Please try again.")
		return
	}

	ticket := domain.TicketRecord{
		ConversationID:    conv.ID,
		FriendlyID:        conv.FriendlyID,
		ChatID:            chatID,
		TelegramMessageID: d.messageID,
		TelegramUserID:    d.userID,
		Summary:           d.text,
		CreatedAt:         time.Now().UTC(),
	}
	if err := b.store.StoreTicket(ctx, ticket); err != nil {
		// The ticket exists in the helpdesk but agent replies won't route
		// back. Tell the user the ticket is open anyway and log loudly.
		b.logger.Error("ticket created but correlation not stored",
			"chat_id", chatID,
			"conversation_id", conv.ID,
			"err", err,
		)
	}

	b.logger.Info("ticket opened",
		"chat_id", chatID,
		"conversation_id", conv.ID,
		"friendly_id", conv.FriendlyID,
	)
	b.reply(ctx, chatID, fmt.Sprintf("✅ Ticket %s is open. An agent will reply here.", conv.FriendlyID))
}

func (b *Bot) handleCancel(ctx context.Context, chatID int64) {
	b.draftsMu.Lock()
	_, ok := b.drafts[chatID]
	delete(b.drafts, chatID)
	b.draftsMu.Unlock()

	if ok {
		b.reply(ctx, chatID, "🗑 Draft discarded.")
	} else {
		b.reply(ctx, chatID, "Nothing to cancel.")
	}
}

// ensureCustomer returns the cached helpdesk contact for the chat, creating
// one on first use.
func (b *Bot) ensureCustomer(ctx context.Context, chatID, userID int64) (*domain.CustomerRecord, error) {
	existing, err := b.store.CustomerByChatID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("customer lookup: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	name := "Telegram user " + strconv.FormatInt(userID, 10)
	identifier := "telegram:" + strconv.FormatInt(chatID, 10)
	created, err := b.helpdesk.CreateContact(ctx, name, identifier)
	if err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}
	created.ChatID = chatID

	if err := b.store.StoreCustomer(ctx, *created); err != nil {
		// Worst case the contact is re-created next time; the helpdesk
		// dedupes on identifier.
		b.logger.Warn("customer mapping not stored", "chat_id", chatID, "err", err)
	}
	return created, nil
}

// handleTicketReply forwards a reply to a relayed agent message into the
// same helpdesk conversation. Returns false when the reply target is not
// one of ours so the message falls through to the draft flow.
func (b *Bot) handleTicketReply(ctx context.Context, chatID int64, msg *tgbotapi.Message) bool {
	rec, err := b.store.AgentMessageByTelegramID(ctx, msg.ReplyToMessage.MessageID)
	if err != nil {
		b.logger.Error("reply routing: lookup failed",
			"chat_id", chatID,
			"reply_to", msg.ReplyToMessage.MessageID,
			"err", err,
		)
		b.reply(ctx, chatID, "⚠️ Could not deliver that reply, please try again.")
		return true
	}
	if rec == nil {
		return false
	}

	text := strings.TrimSpace(msg.Text)
	if err := b.helpdesk.CreateMessage(ctx, rec.ConversationID, text); err != nil {
		b.logger.Error("reply routing: helpdesk rejected message",
			"chat_id", chatID,
			"conversation_id", rec.ConversationID,
			"err", err,
		)
		b.reply(ctx, chatID, fmt.Sprintf("⚠️ Could not deliver your reply to ticket %s, please try again.", rec.FriendlyID))
		return true
	}

	b.logger.Info("reply routed to ticket",
		"chat_id", chatID,
		"conversation_id", rec.ConversationID,
		"friendly_id", rec.FriendlyID,
	)
	return true
}

// reply sends a plain-text message, invoking recipient cleanup when the
// chat turns out to be unreachable.
func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	_, err := b.sender.SendMessage(ctx, chatID, text, domain.SendOptions{DisablePreview: true})
	if err == nil {
		return
	}

	var sendErr *domain.SendError
	if errors.As(err, &sendErr) &&
		(sendErr.Kind == domain.SendBlocked || sendErr.Kind == domain.SendChatNotFound) {
		b.logger.Info("recipient unreachable during reply", "chat_id", chatID, "kind", sendErr.Kind)
		if b.cleanup != nil {
			b.cleanup(ctx, chatID)
		}
		return
	}
	b.logger.Error("reply send failed", "chat_id", chatID, "err", err)
}
