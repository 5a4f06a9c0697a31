package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dmirchev92/stp/internal/auth"
	"github.com/dmirchev92/stp/internal/conversation"
)

const (
	defaultOwnerLabel       = "Owner"
	defaultCounterpartLabel = "Visitor"
)

// RequireOwnerID extracts the owner id of an owner principal from the request context.
func RequireOwnerID(c echo.Context) (string, error) {
	ownerID, err := auth.UserIDFromContext(c)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(ownerID) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "owner id missing from token")
	}
	return ownerID, nil
}

// AuthorizeConversation loads a conversation and checks that p participates in it.
// Foreign conversations are reported as not found.
func AuthorizeConversation(ctx context.Context, reader conversation.Reader, p auth.Principal, conversationID string) (conversation.Conversation, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return conversation.Conversation{}, echo.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	}
	conv, err := reader.Get(ctx, conversationID)
	if err != nil {
		return conversation.Conversation{}, err
	}
	switch p.Role {
	case auth.RoleOwner:
		if conv.OwnerID == p.OwnerID {
			return conv, nil
		}
	case auth.RoleCounterpart:
		if conv.CounterpartID != "" && conv.CounterpartID == p.CounterpartID {
			return conv, nil
		}
	}
	return conversation.Conversation{}, conversation.ErrConversationNotFound
}

// senderLabel is the display name frozen onto messages p sends.
func senderLabel(p auth.Principal) string {
	if p.IsOwner() {
		if name := strings.TrimSpace(p.Name); name != "" {
			return name
		}
		return defaultOwnerLabel
	}
	return defaultCounterpartLabel
}

// subject is the id a realtime client is matched against conversation membership with.
func subject(p auth.Principal) string {
	if p.IsOwner() {
		return p.OwnerID
	}
	return p.CounterpartID
}

func parseLimit(raw string) int {
	if s := strings.TrimSpace(raw); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 0
}
