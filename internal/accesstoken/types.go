package accesstoken

import (
	"errors"
	"time"

	"github.com/dmirchev92/stp/internal/conversation"
)

// Errors returned by token operations. ErrNotFound and ErrExpiredOrUsed are
// business outcomes; ErrStorageUnavailable wraps infrastructure faults.
var (
	ErrInvalidInput       = errors.New("malformed public id or token")
	ErrNotFound           = errors.New("token not found")
	ErrExpiredOrUsed      = errors.New("token expired or already used")
	ErrStorageUnavailable = errors.New("token storage unavailable")
	// ErrGenerationExhausted means every generated value collided. It points
	// at a misconfigured alphabet or length, not at the caller.
	ErrGenerationExhausted = errors.New("token value generation exhausted")
)

// Token value shape. No 0/O/1/I/L.
const (
	Alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
	Length   = 8
)

// Token is a single-use, time-boxed access credential scoped to an owner.
type Token struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Value          string    `json:"token"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	ConsumedAt     time.Time `json:"consumed_at,omitzero"`
	ConversationID string    `json:"conversation_id,omitempty"`
}

// Usable reports whether the token is unconsumed and now is before its expiry.
func (t Token) Usable(now time.Time) bool {
	return t.ConsumedAt.IsZero() && now.Before(t.ExpiresAt)
}

// Result is the outcome of a successful ValidateAndConsume.
type Result struct {
	OwnerID        string
	ConversationID string
	Conversation   conversation.Conversation
	Consumed       Token
	Replacement    Token
}
