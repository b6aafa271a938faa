package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ticketbridge/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testTicket(conv string, chatID int64, msgID int) domain.TicketRecord {
	return domain.TicketRecord{
		ConversationID:    conv,
		FriendlyID:        "TKT-" + conv,
		ChatID:            chatID,
		TelegramMessageID: msgID,
		TelegramUserID:    chatID,
		Summary:           "printer on fire",
		CreatedAt:         time.Now().UTC().Truncate(time.Second),
	}
}

// runStoreSuite exercises the CorrelationStore contract against any backend.
func runStoreSuite(t *testing.T, s domain.CorrelationStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("ticket round trip", func(t *testing.T) {
		if err := s.StoreTicket(ctx, testTicket("c1", 100, 5)); err != nil {
			t.Fatalf("store: %v", err)
		}
		got, err := s.TicketByConversationID(ctx, "c1")
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if got == nil {
			t.Fatal("expected ticket, got nil")
		}
		if got.FriendlyID != "TKT-c1" || got.ChatID != 100 || got.TelegramMessageID != 5 {
			t.Errorf("ticket fields lost: %+v", got)
		}
	})

	t.Run("absent ticket is nil nil", func(t *testing.T) {
		got, err := s.TicketByConversationID(ctx, "no-such")
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("lookup by telegram message id", func(t *testing.T) {
		got, err := s.TicketByTelegramMessageID(ctx, 5)
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if got == nil || got.ConversationID != "c1" {
			t.Errorf("expected c1, got %+v", got)
		}
	})

	t.Run("tickets for chat", func(t *testing.T) {
		if err := s.StoreTicket(ctx, testTicket("c2", 100, 6)); err != nil {
			t.Fatal(err)
		}
		if err := s.StoreTicket(ctx, testTicket("c3", 200, 7)); err != nil {
			t.Fatal(err)
		}
		tickets, err := s.TicketsForChat(ctx, 100)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(tickets) != 2 {
			t.Errorf("expected 2 tickets for chat 100, got %d", len(tickets))
		}
	})

	t.Run("agent message round trip", func(t *testing.T) {
		m := domain.AgentMessageRecord{
			ChatMessageID:           42,
			ConversationID:          "c1",
			ChatID:                  100,
			FriendlyID:              "TKT-c1",
			OriginalTicketMessageID: 5,
			SentAt:                  time.Now().UTC().Truncate(time.Second),
		}
		if err := s.StoreAgentMessage(ctx, m); err != nil {
			t.Fatalf("store: %v", err)
		}
		got, err := s.AgentMessageByTelegramID(ctx, 42)
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if got == nil || got.ConversationID != "c1" {
			t.Errorf("expected c1, got %+v", got)
		}
		absent, err := s.AgentMessageByTelegramID(ctx, 999)
		if err != nil {
			t.Fatal(err)
		}
		if absent != nil {
			t.Errorf("expected nil for absent record, got %+v", absent)
		}
	})

	t.Run("delete ticket removes derived mappings", func(t *testing.T) {
		if err := s.DeleteTicket(ctx, "c1"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		got, err := s.TicketByConversationID(ctx, "c1")
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			t.Error("ticket survived delete")
		}
		m, err := s.AgentMessageByTelegramID(ctx, 42)
		if err != nil {
			t.Fatal(err)
		}
		if m != nil {
			t.Error("agent message for deleted ticket survived")
		}
	})

	t.Run("customer round trip and delete", func(t *testing.T) {
		c := domain.CustomerRecord{ChatID: 100, ContactID: 77, SourceID: "src-1", CreatedAt: time.Now().UTC().Truncate(time.Second)}
		if err := s.StoreCustomer(ctx, c); err != nil {
			t.Fatalf("store: %v", err)
		}
		got, err := s.CustomerByChatID(ctx, 100)
		if err != nil {
			t.Fatal(err)
		}
		if got == nil || got.ContactID != 77 {
			t.Errorf("expected contact 77, got %+v", got)
		}
		if err := s.DeleteCustomer(ctx, 100); err != nil {
			t.Fatal(err)
		}
		got, err = s.CustomerByChatID(ctx, 100)
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			t.Error("customer survived delete")
		}
	})
}

func TestMemoryStore_Suite(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}

func TestSQLiteStore_Suite(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	runStoreSuite(t, s)
}

// Redis suite runs only against a live server, opt-in via env.
func TestRedisStore_Suite(t *testing.T) {
	url := os.Getenv("TICKETBRIDGE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("TICKETBRIDGE_TEST_REDIS_URL not set")
	}
	s, err := NewRedisStore(url, time.Hour, time.Hour, testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	runStoreSuite(t, s)
}

func TestPostgresStore_Suite(t *testing.T) {
	url := os.Getenv("TICKETBRIDGE_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TICKETBRIDGE_TEST_POSTGRES_URL not set")
	}
	s, err := NewPostgresStore(url, testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	runStoreSuite(t, s)
}

// --- factory ---

func TestFromDSN_SQLitePath(t *testing.T) {
	s, err := FromDSN(filepath.Join(t.TempDir(), "corr.db"), Options{}, testLogger())
	if err != nil {
		t.Fatalf("sqlite path dsn: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("expected *SQLiteStore, got %T", s)
	}
}

func TestFromDSN_MemoryScheme(t *testing.T) {
	s, err := FromDSN("memory://", Options{}, testLogger())
	if err != nil {
		t.Fatalf("memory dsn: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", s)
	}
}

func TestFromDSN_UnknownScheme(t *testing.T) {
	if _, err := FromDSN("mongodb://x", Options{}, testLogger()); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
