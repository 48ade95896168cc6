// Package model defines wire-level records exchanged with the upstream
// chat backend.
package model

// Sender values used by the upstream backend.
const (
	SenderVisitor   = "visitor"
	SenderAssistant = "assistant"
	SenderSystem    = "system"
	SenderDate      = "date"
)

// Message type values.
const (
	TypeText  = "text"
	TypeError = "error"
	TypeDate  = "date"
)

// Visitor is an anonymous end-user identity tracked by an opaque UUID.
type Visitor struct {
	ID        int64    `json:"id,omitempty"`
	UUID      string   `json:"uuid"`
	IPAddress string   `json:"ip_address,omitempty"`
	UserAgent string   `json:"user_agent,omitempty"`
	CreatedAt FlexTime `json:"created_at,omitempty"`
}

// Conversation is a thread of messages between a visitor and the assistant.
type Conversation struct {
	ID          int64    `json:"id,omitempty"`
	UUID        string   `json:"uuid"`
	VisitorUUID string   `json:"visitor_uuid,omitempty"`
	StartedAt   FlexTime `json:"started_at,omitempty"`
	UpdatedAt   FlexTime `json:"updated_at,omitempty"`
	Status      string   `json:"status,omitempty"`
	Title       string   `json:"title,omitempty"`
}

// Message is a single persisted message record. ConversationID mirrors the
// aliased field some backend responses carry; the normalizer canonicalizes
// it into ConversationUUID.
type Message struct {
	ID               int64    `json:"id,omitempty"`
	ConversationUUID string   `json:"conversation_uuid,omitempty"`
	ConversationID   string   `json:"conversationId,omitempty"`
	Sender           string   `json:"sender"`
	Engine           string   `json:"engine,omitempty"`
	MessageType      string   `json:"message_type,omitempty"`
	MessageContent   string   `json:"message_content"`
	IsSuccessful     *bool    `json:"is_successful,omitempty"`
	CreatedAt        FlexTime `json:"created_at,omitempty"`
}

// CreateConversationRequest is the payload for creating a conversation.
type CreateConversationRequest struct {
	VisitorUUID string `json:"visitor_uuid"`
}

// CreateMessageRequest is the payload for the single-call send endpoint:
// the backend persists the visitor message, triggers the AI reply, persists
// it, and answers with both in one round trip.
type CreateMessageRequest struct {
	ConversationUUID string `json:"conversation_uuid"`
	Sender           string `json:"sender"`
	Engine           string `json:"engine"`
	MessageType      string `json:"message_type"`
	MessageContent   string `json:"message_content"`
}

// HistoryPage is one cursor-paginated slice of conversation history.
type HistoryPage struct {
	Items        []Message `json:"items"`
	HasMore      bool      `json:"has_more"`
	NextBeforeID *int64    `json:"next_before_id,omitempty"`
}

// ConversationPage is a paginated conversation listing.
type ConversationPage struct {
	Items      []Conversation `json:"items"`
	TotalCount int            `json:"total_count"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
}

// SendOutcome is the decoded result of the single-call send. AIFailed marks
// a soft failure reported by the backend, as opposed to a transport error:
// the visitor message was persisted but no AI reply exists.
type SendOutcome struct {
	AIFailed       bool
	BackendMessage string
	Visitor        *Message
	AI             *Message
}
