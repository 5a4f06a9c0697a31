package conversation

import (
	"errors"
	"time"
)

// Errors returned by conversation operations.
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationClosed   = errors.New("conversation closed")
	ErrMessageNotFound      = errors.New("message not found")
	ErrInvalidInput         = errors.New("invalid conversation input")
)

// Sender roles.
const (
	RoleOwner       = "owner"
	RoleCounterpart = "counterpart"
	RoleSystem      = "system"
)

// Message types.
const (
	TypeText             = "text"
	TypeSystem           = "system"
	TypeStructuredAction = "structured_action"
)

// Conversation statuses.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

const (
	// MaxBodyLength bounds a message body in bytes.
	MaxBodyLength     = 4000
	maxSenderLabelLen = 120
	defaultListLimit  = 50
	maxListLimit      = 200
)

// Conversation is a chat between an owner and one counterpart.
type Conversation struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	CounterpartID  string    `json:"counterpart_id,omitempty"`
	OriginTokenID  string    `json:"origin_token_id,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// ListItem is a conversation with the owner's unread count.
type ListItem struct {
	Conversation
	UnreadCount int64 `json:"unread_count"`
}

// Message is an immutable chat message. Seq is its position within the conversation.
type Message struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	Seq               int64     `json:"seq"`
	SenderRole        string    `json:"sender_role"`
	SenderLabel       string    `json:"sender_label"`
	Body              string    `json:"body"`
	Type              string    `json:"type"`
	CreatedAt         time.Time `json:"created_at"`
	OwnerReadAt       time.Time `json:"owner_read_at,omitzero"`
	CounterpartReadAt time.Time `json:"counterpart_read_at,omitzero"`
}

// AppendInput is a message to persist. SenderLabel is frozen at send time.
type AppendInput struct {
	ConversationID string
	SenderRole     string
	SenderLabel    string
	Body           string
	Type           string
}

// ReadReceipt reports a markRead outcome.
type ReadReceipt struct {
	ConversationID string    `json:"conversation_id"`
	ReaderRole     string    `json:"reader_role"`
	Count          int64     `json:"count"`
	ReadAt         time.Time `json:"read_at"`
}
