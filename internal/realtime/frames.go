package realtime

import (
	"time"
)

// Inbound frame types.
const (
	FrameJoin     = "join"
	FrameLeave    = "leave"
	FramePublish  = "publish"
	FrameTyping   = "typing"
	FrameMarkRead = "mark_read"
)

// Outbound frame types.
const (
	FrameConnected    = "connected"
	FrameJoined       = "joined"
	FrameLeft         = "left"
	FrameMessage      = "message"
	FrameNotification = "notification"
	FrameRead         = "read"
	FrameError        = "error"
)

// Error codes carried by error frames.
const (
	CodeProtocolViolation = "protocol_violation"
	CodeNotJoined         = "not_joined"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeClosed            = "conversation_closed"
	CodeInvalidInput      = "invalid_input"
	CodeUnavailable       = "unavailable"
)

const notificationPreviewLen = 140

// InboundFrame is a client request read off the socket.
type InboundFrame struct {
	Type           string `json:"type"`
	RequestID      string `json:"request_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Body           string `json:"body,omitempty"`
	MessageType    string `json:"message_type,omitempty"`
	// IsTyping applies to typing frames. Absent means true.
	IsTyping *bool `json:"is_typing,omitempty"`
}

// Typing reports the typing state carried by a typing frame.
func (f InboundFrame) Typing() bool {
	return f.IsTyping == nil || *f.IsTyping
}

// OutboundFrame is an event written to the socket. Data depends on Type.
type OutboundFrame struct {
	Type           string `json:"type"`
	RequestID      string `json:"request_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Data           any    `json:"data,omitempty"`
}

// ConnectedData is sent once after the upgrade.
type ConnectedData struct {
	ClientID string `json:"client_id"`
	Role     string `json:"role"`
}

// JoinedData acknowledges a join.
type JoinedData struct {
	Room        string `json:"room"`
	UnreadCount int64  `json:"unread_count"`
}

// Notification is the lightweight event delivered to the owner room.
type Notification struct {
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	Seq            int64     `json:"seq"`
	SenderRole     string    `json:"sender_role"`
	SenderLabel    string    `json:"sender_label"`
	Preview        string    `json:"preview"`
	CreatedAt      time.Time `json:"created_at"`
}

// TypingData is an ephemeral typing indicator.
type TypingData struct {
	SenderRole  string    `json:"sender_role"`
	SenderLabel string    `json:"sender_label"`
	IsTyping    bool      `json:"is_typing"`
	At          time.Time `json:"at"`
}

// ErrorData describes a rejected frame. The connection stays open.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorFrame builds an error frame answering requestID.
func ErrorFrame(requestID, conversationID, code, message string) OutboundFrame {
	return OutboundFrame{
		Type:           FrameError,
		RequestID:      requestID,
		ConversationID: conversationID,
		Data:           ErrorData{Code: code, Message: message},
	}
}

func preview(body string) string {
	r := []rune(body)
	if len(r) <= notificationPreviewLen {
		return body
	}
	return string(r[:notificationPreviewLen]) + "…"
}
