package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ticketbridge/internal/domain"
	"ticketbridge/internal/store"
)

type fakeSender struct {
	sent    []string
	sendErr error
}

func (f *fakeSender) SendMessage(_ context.Context, chatID int64, text string, _ domain.SendOptions) (*domain.SentMessage, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, text)
	return &domain.SentMessage{ChatID: chatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) EditMessageText(context.Context, int64, int, string, domain.SendOptions) error {
	return nil
}

func (f *fakeSender) DeleteMessage(context.Context, int64, int) error { return nil }

func (f *fakeSender) last() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type fakeHelpdesk struct {
	contacts      int
	conversations int
	messages      []struct{ conversationID, content string }
	convErr       error
	msgErr        error
}

func (f *fakeHelpdesk) CreateContact(_ context.Context, name, identifier string) (*domain.CustomerRecord, error) {
	f.contacts++
	return &domain.CustomerRecord{ContactID: 42, SourceID: "src-" + identifier, CreatedAt: time.Now().UTC()}, nil
}

func (f *fakeHelpdesk) CreateConversation(_ context.Context, _ domain.CustomerRecord, _ string) (*domain.HelpdeskConversation, error) {
	if f.convErr != nil {
		return nil, f.convErr
	}
	f.conversations++
	return &domain.HelpdeskConversation{ID: "77", FriendlyID: "#12"}, nil
}

func (f *fakeHelpdesk) CreateMessage(_ context.Context, conversationID, content string) error {
	if f.msgErr != nil {
		return f.msgErr
	}
	f.messages = append(f.messages, struct{ conversationID, content string }{conversationID, content})
	return nil
}

func (f *fakeHelpdesk) Ping(context.Context) error { return nil }

func newTestBot(sender *fakeSender, st domain.CorrelationStore, hd *fakeHelpdesk, cleanup CleanupFunc) *Bot {
	return New(Config{
		Sender:   sender,
		Store:    st,
		Helpdesk: hd,
		Cleanup:  cleanup,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func userMessage(chatID, userID int64, messageID int, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: messageID,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmd := text
		if i := strings.IndexByte(text, ' '); i > 0 {
			cmd = text[:i]
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return tgbotapi.Update{Message: msg}
}

func replyMessage(chatID, userID int64, messageID, replyTo int, text string) tgbotapi.Update {
	u := userMessage(chatID, userID, messageID, text)
	u.Message.ReplyToMessage = &tgbotapi.Message{MessageID: replyTo}
	return u
}

func TestTicketCreationTwoStep(t *testing.T) {
	sender := &fakeSender{}
	st := store.NewMemoryStore()
	hd := &fakeHelpdesk{}
	b := newTestBot(sender, st, hd, nil)
	ctx := context.Background()

	b.handleUpdate(ctx, userMessage(100, 42, 5, "my printer is on fire"))
	if !strings.Contains(sender.last(), "/confirm") {
		t.Fatalf("expected confirmation prompt, got %q", sender.last())
	}
	if hd.conversations != 0 {
		t.Fatal("conversation must not exist before confirmation")
	}

	b.handleUpdate(ctx, userMessage(100, 42, 6, "/confirm"))
	if hd.conversations != 1 {
		t.Fatalf("expected 1 conversation, got %d", hd.conversations)
	}
	if hd.contacts != 1 {
		t.Fatalf("expected 1 contact, got %d", hd.contacts)
	}
	if !strings.Contains(sender.last(), "#12") {
		t.Errorf("confirmation should name the ticket, got %q", sender.last())
	}

	ticket, err := st.TicketByConversationID(ctx, "77")
	if err != nil {
		t.Fatalf("TicketByConversationID: %v", err)
	}
	if ticket == nil {
		t.Fatal("ticket correlation not stored")
	}
	if ticket.ChatID != 100 || ticket.TelegramMessageID != 5 || ticket.FriendlyID != "#12" {
		t.Errorf("ticket %+v", ticket)
	}
	if ticket.Summary != "my printer is on fire" {
		t.Errorf("summary %q", ticket.Summary)
	}

	cust, err := st.CustomerByChatID(ctx, 100)
	if err != nil {
		t.Fatalf("CustomerByChatID: %v", err)
	}
	if cust == nil || cust.ContactID != 42 {
		t.Errorf("customer %+v", cust)
	}
}

func TestConfirmWithoutDraft(t *testing.T) {
	sender := &fakeSender{}
	hd := &fakeHelpdesk{}
	b := newTestBot(sender, store.NewMemoryStore(), hd, nil)

	b.handleUpdate(context.Background(), userMessage(100, 42, 1, "/confirm"))
	if hd.conversations != 0 {
		t.Error("no conversation should be created")
	}
	if !strings.Contains(sender.last(), "Nothing to confirm") {
		t.Errorf("got %q", sender.last())
	}
}

func TestCancelDiscardsDraft(t *testing.T) {
	sender := &fakeSender{}
	hd := &fakeHelpdesk{}
	b := newTestBot(sender, store.NewMemoryStore(), hd, nil)
	ctx := context.Background()

	b.handleUpdate(ctx, userMessage(100, 42, 5, "issue text"))
	b.handleUpdate(ctx, userMessage(100, 42, 6, "/cancel"))
	if !strings.Contains(sender.last(), "discarded") {
		t.Errorf("got %q", sender.last())
	}

	b.handleUpdate(ctx, userMessage(100, 42, 7, "/confirm"))
	if hd.conversations != 0 {
		t.Error("cancelled draft must not create a conversation")
	}
}

func TestExpiredDraftNotConfirmed(t *testing.T) {
	sender := &fakeSender{}
	hd := &fakeHelpdesk{}
	b := newTestBot(sender, store.NewMemoryStore(), hd, nil)
	ctx := context.Background()

	b.handleUpdate(ctx, userMessage(100, 42, 5, "issue text"))
	b.draftsMu.Lock()
	d := b.drafts[100]
	d.createdAt = time.Now().Add(-draftTimeout - time.Minute)
	b.drafts[100] = d
	b.draftsMu.Unlock()

	b.handleUpdate(ctx, userMessage(100, 42, 6, "/confirm"))
	if hd.conversations != 0 {
		t.Error("expired draft must not create a conversation")
	}
}

func TestHelpdeskFailureToldToUser(t *testing.T) {
	sender := &fakeSender{}
	hd := &fakeHelpdesk{convErr: errors.New("helpdesk down")}
	st := store.NewMemoryStore()
	b := newTestBot(sender, st, hd, nil)
	ctx := context.Background()

	b.handleUpdate(ctx, userMessage(100, 42, 5, "issue text"))
	b.handleUpdate(ctx, userMessage(100, 42, 6, "/confirm"))
	if !strings.Contains(sender.last(), "not created") {
		t.Errorf("got %q", sender.last())
	}
	ticket, _ := st.TicketByConversationID(ctx, "77")
	if ticket != nil {
		t.Error("no correlation should be stored on failure")
	}
}

func TestExistingCustomerNotRecreated(t *testing.T) {
	sender := &fakeSender{}
	st := store.NewMemoryStore()
	hd := &fakeHelpdesk{}
	b := newTestBot(sender, st, hd, nil)
	ctx := context.Background()

	if err := st.StoreCustomer(ctx, domain.CustomerRecord{ChatID: 100, ContactID: 7, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("StoreCustomer: %v", err)
	}

	b.handleUpdate(ctx, userMessage(100, 42, 5, "issue text"))
	b.handleUpdate(ctx, userMessage(100, 42, 6, "/confirm"))
	if hd.contacts != 0 {
		t.Errorf("existing customer must be reused, created %d contacts", hd.contacts)
	}
}

func TestReplyToAgentMessageRoutesToConversation(t *testing.T) {
	sender := &fakeSender{}
	st := store.NewMemoryStore()
	hd := &fakeHelpdesk{}
	b := newTestBot(sender, st, hd, nil)
	ctx := context.Background()

	if err := st.StoreAgentMessage(ctx, domain.AgentMessageRecord{
		ChatMessageID:  200,
		ConversationID: "77",
		ChatID:         100,
		FriendlyID:     "#12",
		SentAt:         time.Now().UTC(),
	}); err != nil {
		t.Fatalf("StoreAgentMessage: %v", err)
	}

	b.handleUpdate(ctx, replyMessage(100, 42, 7, 200, "thanks, that fixed it"))
	if len(hd.messages) != 1 {
		t.Fatalf("expected 1 forwarded message, got %d", len(hd.messages))
	}
	if hd.messages[0].conversationID != "77" || hd.messages[0].content != "thanks, that fixed it" {
		t.Errorf("forwarded %+v", hd.messages[0])
	}
	if len(sender.sent) != 0 {
		t.Errorf("successful routing should be silent, sent %v", sender.sent)
	}
}

func TestReplyToUnknownMessageStartsDraft(t *testing.T) {
	sender := &fakeSender{}
	hd := &fakeHelpdesk{}
	b := newTestBot(sender, store.NewMemoryStore(), hd, nil)

	b.handleUpdate(context.Background(), replyMessage(100, 42, 7, 999, "some new issue"))
	if len(hd.messages) != 0 {
		t.Error("unknown reply target must not be forwarded")
	}
	if !strings.Contains(sender.last(), "/confirm") {
		t.Errorf("expected draft prompt, got %q", sender.last())
	}
}

func TestReplyForwardFailureToldToUser(t *testing.T) {
	sender := &fakeSender{}
	st := store.NewMemoryStore()
	hd := &fakeHelpdesk{msgErr: errors.New("helpdesk down")}
	b := newTestBot(sender, st, hd, nil)
	ctx := context.Background()

	if err := st.StoreAgentMessage(ctx, domain.AgentMessageRecord{
		ChatMessageID:  200,
		ConversationID: "77",
		FriendlyID:     "#12",
		ChatID:         100,
		SentAt:         time.Now().UTC(),
	}); err != nil {
		t.Fatalf("StoreAgentMessage: %v", err)
	}

	b.handleUpdate(ctx, replyMessage(100, 42, 7, 200, "hello?"))
	if !strings.Contains(sender.last(), "#12") {
		t.Errorf("failure notice should name the ticket, got %q", sender.last())
	}
}

func TestStatusListsTickets(t *testing.T) {
	sender := &fakeSender{}
	st := store.NewMemoryStore()
	b := newTestBot(sender, st, &fakeHelpdesk{}, nil)
	ctx := context.Background()

	b.handleUpdate(ctx, userMessage(100, 42, 1, "/status"))
	if !strings.Contains(sender.last(), "no open tickets") {
		t.Errorf("got %q", sender.last())
	}

	if err := st.StoreTicket(ctx, domain.TicketRecord{
		ConversationID: "77",
		FriendlyID:     "#12",
		ChatID:         100,
		Summary:        "broken printer",
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		t.Fatalf("StoreTicket: %v", err)
	}

	b.handleUpdate(ctx, userMessage(100, 42, 2, "/status"))
	if !strings.Contains(sender.last(), "#12") || !strings.Contains(sender.last(), "broken printer") {
		t.Errorf("got %q", sender.last())
	}
}

func TestBlockedDuringReplyTriggersCleanup(t *testing.T) {
	var cleaned []int64
	sender := &fakeSender{sendErr: &domain.SendError{Kind: domain.SendBlocked}}
	b := newTestBot(sender, store.NewMemoryStore(), &fakeHelpdesk{}, func(_ context.Context, chatID int64) {
		cleaned = append(cleaned, chatID)
	})

	b.handleUpdate(context.Background(), userMessage(100, 42, 1, "/help"))
	if len(cleaned) != 1 || cleaned[0] != 100 {
		t.Errorf("cleanup calls %v", cleaned)
	}
}

func TestUnknownCommand(t *testing.T) {
	sender := &fakeSender{}
	b := newTestBot(sender, store.NewMemoryStore(), &fakeHelpdesk{}, nil)

	b.handleUpdate(context.Background(), userMessage(100, 42, 1, "/frobnicate"))
	if !strings.Contains(sender.last(), "Unknown command") {
		t.Errorf("got %q", sender.last())
	}
}
