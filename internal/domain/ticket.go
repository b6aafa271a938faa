package domain

import "time"

// TicketRecord links a helpdesk conversation to the Telegram message that
// opened it. The conversation ID is the sole correlation key: the ticket
// creation flow and the webhook relay both address tickets by it.
type TicketRecord struct {
	ConversationID    string    `json:"conversation_id"`
	FriendlyID        string    `json:"friendly_id"`
	ChatID            int64     `json:"chat_id"`
	TelegramMessageID int       `json:"telegram_message_id"`
	TelegramUserID    int64     `json:"telegram_user_id"`
	Summary           string    `json:"summary"`
	CreatedAt         time.Time `json:"created_at"`
}

// AgentMessageRecord links a relayed agent message (by its Telegram message
// ID) back to the conversation it came from, so a later user reply to that
// message can be routed into the same conversation. Many records may
// reference one ticket.
type AgentMessageRecord struct {
	ChatMessageID           int       `json:"chat_message_id"`
	ConversationID          string    `json:"conversation_id"`
	ChatID                  int64     `json:"chat_id"`
	FriendlyID              string    `json:"friendly_id"`
	OriginalTicketMessageID int       `json:"original_ticket_message_id"`
	SentAt                  time.Time `json:"sent_at"`
}

// CustomerRecord caches the helpdesk contact created for a Telegram chat, so
// repeat tickets from the same chat reuse one contact.
type CustomerRecord struct {
	ChatID    int64     `json:"chat_id"`
	ContactID int       `json:"contact_id"`
	SourceID  string    `json:"source_id"`
	CreatedAt time.Time `json:"created_at"`
}
