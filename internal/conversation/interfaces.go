package conversation

import "context"

// Reader defines conversation lookup behavior.
type Reader interface {
	Get(ctx context.Context, conversationID string) (Conversation, error)
}

// Messenger is the persistence surface the real-time router depends on.
type Messenger interface {
	Reader
	AppendMessage(ctx context.Context, in AppendInput) (Message, error)
	MarkRead(ctx context.Context, conversationID, readerRole string) (ReadReceipt, error)
	UnreadCount(ctx context.Context, conversationID, role string) (int64, error)
}

var _ Messenger = (*Service)(nil)
