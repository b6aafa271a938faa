package domain

import "context"

// HelpdeskConversation is a newly created helpdesk conversation. ID is the
// canonical correlation key; FriendlyID is the short human-facing ticket
// number shown to the user.
type HelpdeskConversation struct {
	ID         string
	FriendlyID string
}

// Helpdesk is the subset of the ticketing platform REST API this bridge
// calls. Everything else the platform offers is out of scope.
type Helpdesk interface {
	CreateContact(ctx context.Context, name, identifier string) (*CustomerRecord, error)
	CreateConversation(ctx context.Context, contact CustomerRecord, summary string) (*HelpdeskConversation, error)
	CreateMessage(ctx context.Context, conversationID, content string) error
	Ping(ctx context.Context) error
}
