// Package store provides correlation-store backends: the persistent mappings
// between helpdesk conversations and Telegram messages that make reply
// routing work in both directions.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"ticketbridge/internal/domain"
)

// SQLiteStore implements domain.CorrelationStore on SQLite. It is the
// default backend: single file, no external service.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.CorrelationStore = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite handles one writer at a time anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tickets (
		conversation_id     TEXT PRIMARY KEY,
		friendly_id         TEXT NOT NULL,
		chat_id             INTEGER NOT NULL,
		telegram_message_id INTEGER NOT NULL,
		telegram_user_id    INTEGER NOT NULL,
		summary             TEXT,
		created_at          DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_chat ON tickets(chat_id);
	CREATE INDEX IF NOT EXISTS idx_tickets_tg_msg ON tickets(telegram_message_id);

	CREATE TABLE IF NOT EXISTS agent_messages (
		chat_message_id            INTEGER PRIMARY KEY,
		conversation_id            TEXT NOT NULL,
		chat_id                    INTEGER NOT NULL,
		friendly_id                TEXT,
		original_ticket_message_id INTEGER,
		sent_at                    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_agent_messages_conv ON agent_messages(conversation_id);

	CREATE TABLE IF NOT EXISTS customers (
		chat_id     INTEGER PRIMARY KEY,
		contact_id  INTEGER NOT NULL,
		source_id   TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) StoreTicket(ctx context.Context, t domain.TicketRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tickets
		 (conversation_id, friendly_id, chat_id, telegram_message_id, telegram_user_id, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ConversationID, t.FriendlyID, t.ChatID, t.TelegramMessageID, t.TelegramUserID, t.Summary, t.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) TicketByConversationID(ctx context.Context, conversationID string) (*domain.TicketRecord, error) {
	return s.scanTicket(s.db.QueryRowContext(ctx,
		`SELECT conversation_id, friendly_id, chat_id, telegram_message_id, telegram_user_id, summary, created_at
		 FROM tickets WHERE conversation_id = ?`, conversationID))
}

func (s *SQLiteStore) TicketByTelegramMessageID(ctx context.Context, messageID int) (*domain.TicketRecord, error) {
	return s.scanTicket(s.db.QueryRowContext(ctx,
		`SELECT conversation_id, friendly_id, chat_id, telegram_message_id, telegram_user_id, summary, created_at
		 FROM tickets WHERE telegram_message_id = ?`, messageID))
}

func (s *SQLiteStore) scanTicket(row *sql.Row) (*domain.TicketRecord, error) {
	var t domain.TicketRecord
	err := row.Scan(&t.ConversationID, &t.FriendlyID, &t.ChatID, &t.TelegramMessageID, &t.TelegramUserID, &t.Summary, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) TicketsForChat(ctx context.Context, chatID int64) ([]domain.TicketRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, friendly_id, chat_id, telegram_message_id, telegram_user_id, summary, created_at
		 FROM tickets WHERE chat_id = ? ORDER BY created_at`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.TicketRecord
	for rows.Next() {
		var t domain.TicketRecord
		if err := rows.Scan(&t.ConversationID, &t.FriendlyID, &t.ChatID, &t.TelegramMessageID, &t.TelegramUserID, &t.Summary, &t.CreatedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// DeleteTicket removes a ticket and its derived agent-message mappings.
func (s *SQLiteStore) DeleteTicket(ctx context.Context, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_messages WHERE conversation_id = ?`, conversationID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tickets WHERE conversation_id = ?`, conversationID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) StoreAgentMessage(ctx context.Context, m domain.AgentMessageRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO agent_messages
		 (chat_message_id, conversation_id, chat_id, friendly_id, original_ticket_message_id, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ChatMessageID, m.ConversationID, m.ChatID, m.FriendlyID, m.OriginalTicketMessageID, m.SentAt,
	)
	return err
}

func (s *SQLiteStore) AgentMessageByTelegramID(ctx context.Context, messageID int) (*domain.AgentMessageRecord, error) {
	var m domain.AgentMessageRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_message_id, conversation_id, chat_id, friendly_id, original_ticket_message_id, sent_at
		 FROM agent_messages WHERE chat_message_id = ?`, messageID,
	).Scan(&m.ChatMessageID, &m.ConversationID, &m.ChatID, &m.FriendlyID, &m.OriginalTicketMessageID, &m.SentAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLiteStore) StoreCustomer(ctx context.Context, c domain.CustomerRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO customers (chat_id, contact_id, source_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		c.ChatID, c.ContactID, c.SourceID, c.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) CustomerByChatID(ctx context.Context, chatID int64) (*domain.CustomerRecord, error) {
	var c domain.CustomerRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, contact_id, source_id, created_at FROM customers WHERE chat_id = ?`, chatID,
	).Scan(&c.ChatID, &c.ContactID, &c.SourceID, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) DeleteCustomer(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE chat_id = ?`, chatID)
	return err
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
