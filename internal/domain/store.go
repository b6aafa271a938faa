package domain

import "context"

// CorrelationStore persists the mappings needed to route messages in either
// direction: conversation → Telegram thread, and Telegram message → conversation.
// Lookups return (nil, nil) when no record exists; an error means the store
// itself failed. Implementations must be safe for concurrent use: the relay
// pipeline and the ticket-creation flow access the store at the same time.
type CorrelationStore interface {
	StoreTicket(ctx context.Context, t TicketRecord) error
	TicketByConversationID(ctx context.Context, conversationID string) (*TicketRecord, error)
	TicketByTelegramMessageID(ctx context.Context, messageID int) (*TicketRecord, error)
	TicketsForChat(ctx context.Context, chatID int64) ([]TicketRecord, error)
	DeleteTicket(ctx context.Context, conversationID string) error

	StoreAgentMessage(ctx context.Context, m AgentMessageRecord) error
	AgentMessageByTelegramID(ctx context.Context, messageID int) (*AgentMessageRecord, error)

	StoreCustomer(ctx context.Context, c CustomerRecord) error
	CustomerByChatID(ctx context.Context, chatID int64) (*CustomerRecord, error)
	DeleteCustomer(ctx context.Context, chatID int64) error

	Ping(ctx context.Context) error
	Close() error
}
