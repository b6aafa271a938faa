package domain

// EventType identifies the kind of helpdesk event carried on the queue.
type EventType string

const (
	EventMessageCreated      EventType = "message_created"
	EventConversationUpdated EventType = "conversation_updated"
)

// SourceDashboard is the only trusted event producer. Events claiming any
// other source are rejected before they reach delivery logic.
const SourceDashboard = "dashboard"

// ConversationStatus is the helpdesk-side status of a conversation.
type ConversationStatus string

const (
	StatusOpen   ConversationStatus = "open"
	StatusClosed ConversationStatus = "closed"
)

// Attachment is a file attached to an agent message.
type Attachment struct {
	FileType string `json:"file_type,omitempty"`
	DataURL  string `json:"data_url,omitempty"`
}

// EventData is the payload of a WebhookEvent. Which fields are meaningful
// depends on the event type.
type EventData struct {
	ConversationID string
	Content        string
	SentByUserID   string
	Status         ConversationStatus
	PreviousStatus ConversationStatus
	Attachments    []Attachment
}

// WebhookEvent is a validated helpdesk event. It is immutable once dequeued
// and lives only for the duration of one processing cycle.
type WebhookEvent struct {
	Type           EventType
	SourcePlatform string
	TargetPlatform string
	Timestamp      string
	CorrelationID  string // assigned at dequeue, used to tie log lines together
	Data           EventData
}
