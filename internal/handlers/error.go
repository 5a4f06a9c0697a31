package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dmirchev92/stp/internal/accesstoken"
	"github.com/dmirchev92/stp/internal/conversation"
	"github.com/dmirchev92/stp/internal/publicid"
	"github.com/dmirchev92/stp/internal/realtime"
)

// ErrorResponse is the standard API error body (message only).
type ErrorResponse struct {
	Message string `json:"message"`
}

// tokenHTTPError maps access token outcomes to HTTP errors. Storage faults are
// logged here; rejections are expected traffic and stay at debug.
func tokenHTTPError(log *slog.Logger, err error) error {
	switch {
	case errors.Is(err, accesstoken.ErrInvalidInput):
		log.Debug("token rejected", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadRequest, "malformed token")
	case errors.Is(err, accesstoken.ErrNotFound):
		log.Debug("token rejected", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusNotFound, "token not found")
	case errors.Is(err, accesstoken.ErrExpiredOrUsed):
		log.Debug("token rejected", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusGone, "token expired or already used")
	case errors.Is(err, accesstoken.ErrStorageUnavailable),
		errors.Is(err, accesstoken.ErrGenerationExhausted),
		errors.Is(err, publicid.ErrGenerationExhausted):
		log.Error("token storage unavailable", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "temporarily unavailable")
	default:
		log.Error("token operation failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func conversationHTTPError(log *slog.Logger, err error) error {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he
	case errors.Is(err, conversation.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrConversationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	case errors.Is(err, conversation.ErrMessageNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "message not found")
	case errors.Is(err, conversation.ErrConversationClosed):
		return echo.NewHTTPError(http.StatusConflict, "conversation closed")
	case errors.Is(err, realtime.ErrRouterClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "shutting down")
	default:
		log.Error("conversation operation failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "temporarily unavailable")
	}
}

// frameError maps router and store errors to an error frame code.
func frameError(log *slog.Logger, err error) (string, string) {
	switch {
	case errors.Is(err, realtime.ErrNotJoined):
		return realtime.CodeNotJoined, "join the conversation first"
	case errors.Is(err, realtime.ErrForbidden):
		return realtime.CodeForbidden, "not a participant of this conversation"
	case errors.Is(err, conversation.ErrConversationNotFound), errors.Is(err, conversation.ErrMessageNotFound):
		return realtime.CodeNotFound, "conversation not found"
	case errors.Is(err, conversation.ErrConversationClosed):
		return realtime.CodeClosed, "conversation closed"
	case errors.Is(err, conversation.ErrInvalidInput):
		return realtime.CodeInvalidInput, err.Error()
	default:
		log.Error("realtime operation failed", slog.Any("error", err))
		return realtime.CodeUnavailable, "temporarily unavailable"
	}
}
