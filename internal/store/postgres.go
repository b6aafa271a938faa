package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ticketbridge/internal/domain"
)

// PostgresStore implements domain.CorrelationStore on PostgreSQL, for
// deployments that already run one.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ domain.CorrelationStore = (*PostgresStore)(nil)

func NewPostgresStore(connString string, logger *slog.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres connection string: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.migrate(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tickets (
		conversation_id     TEXT PRIMARY KEY,
		friendly_id         TEXT NOT NULL,
		chat_id             BIGINT NOT NULL,
		telegram_message_id INTEGER NOT NULL,
		telegram_user_id    BIGINT NOT NULL,
		summary             TEXT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_chat ON tickets(chat_id);
	CREATE INDEX IF NOT EXISTS idx_tickets_tg_msg ON tickets(telegram_message_id);

	CREATE TABLE IF NOT EXISTS agent_messages (
		chat_message_id            INTEGER PRIMARY KEY,
		conversation_id            TEXT NOT NULL,
		chat_id                    BIGINT NOT NULL,
		friendly_id                TEXT,
		original_ticket_message_id INTEGER,
		sent_at                    TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_agent_messages_conv ON agent_messages(conversation_id);

	CREATE TABLE IF NOT EXISTS customers (
		chat_id     BIGINT PRIMARY KEY,
		contact_id  INTEGER NOT NULL,
		source_id   TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) StoreTicket(ctx context.Context, t domain.TicketRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tickets (conversation_id, friendly_id, chat_id, telegram_message_id, telegram_user_id, summary, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (conversation_id) DO UPDATE SET
		   friendly_id = EXCLUDED.friendly_id,
		   chat_id = EXCLUDED.chat_id,
		   telegram_message_id = EXCLUDED.telegram_message_id,
		   telegram_user_id = EXCLUDED.telegram_user_id,
		   summary = EXCLUDED.summary`,
		t.ConversationID, t.FriendlyID, t.ChatID, t.TelegramMessageID, t.TelegramUserID, t.Summary, t.CreatedAt,
	)
	return err
}

func (s *PostgresStore) TicketByConversationID(ctx context.Context, conversationID string) (*domain.TicketRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT conversation_id, friendly_id, chat_id, telegram_message_id, telegram_user_id, summary, created_at
		 FROM tickets WHERE conversation_id = $1`, conversationID)
	return scanPgTicket(row)
}

func (s *PostgresStore) TicketByTelegramMessageID(ctx context.Context, messageID int) (*domain.TicketRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT conversation_id, friendly_id, chat_id, telegram_message_id, telegram_user_id, summary, created_at
		 FROM tickets WHERE telegram_message_id = $1`, messageID)
	return scanPgTicket(row)
}

func scanPgTicket(row pgx.Row) (*domain.TicketRecord, error) {
	var t domain.TicketRecord
	err := row.Scan(&t.ConversationID, &t.FriendlyID, &t.ChatID, &t.TelegramMessageID, &t.TelegramUserID, &t.Summary, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) TicketsForChat(ctx context.Context, chatID int64) ([]domain.TicketRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT conversation_id, friendly_id, chat_id, telegram_message_id, telegram_user_id, summary, created_at
		 FROM tickets WHERE chat_id = $1 ORDER BY created_at`, chatID)
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

func (s *PostgresStore) DeleteTicket(ctx context.Context, conversationID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM agent_messages WHERE conversation_id = $1`, conversationID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM tickets WHERE conversation_id = $1`, conversationID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) StoreAgentMessage(ctx context.Context, m domain.AgentMessageRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_messages (chat_message_id, conversation_id, chat_id, friendly_id, original_ticket_message_id, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (chat_message_id) DO UPDATE SET
		   conversation_id = EXCLUDED.conversation_id,
		   chat_id = EXCLUDED.chat_id,
		   friendly_id = EXCLUDED.friendly_id,
		   original_ticket_message_id = EXCLUDED.original_ticket_message_id`,
		m.ChatMessageID, m.ConversationID, m.ChatID, m.FriendlyID, m.OriginalTicketMessageID, m.SentAt,
	)
	return err
}

func (s *PostgresStore) AgentMessageByTelegramID(ctx context.Context, messageID int) (*domain.AgentMessageRecord, error) {
	var m domain.AgentMessageRecord
	err := s.pool.QueryRow(ctx,
		`SELECT chat_message_id, conversation_id, chat_id, friendly_id, original_ticket_message_id, sent_at
		 FROM agent_messages WHERE chat_message_id = $1`, messageID,
	).Scan(&m.ChatMessageID, &m.ConversationID, &m.ChatID, &m.FriendlyID, &m.OriginalTicketMessageID, &m.SentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) StoreCustomer(ctx context.Context, c domain.CustomerRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO customers (chat_id, contact_id, source_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (chat_id) DO UPDATE SET
		   contact_id = EXCLUDED.contact_id,
		   source_id = EXCLUDED.source_id`,
		c.ChatID, c.ContactID, c.SourceID, c.CreatedAt,
	)
	return err
}

func (s *PostgresStore) CustomerByChatID(ctx context.Context, chatID int64) (*domain.CustomerRecord, error) {
	var c domain.CustomerRecord
	err := s.pool.QueryRow(ctx,
		`SELECT chat_id, contact_id, source_id, created_at FROM customers WHERE chat_id = $1`, chatID,
	).Scan(&c.ChatID, &c.ContactID, &c.SourceID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) DeleteCustomer(ctx context.Context, chatID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM customers WHERE chat_id = $1`, chatID)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
