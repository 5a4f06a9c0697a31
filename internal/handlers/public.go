package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/dmirchev92/stp/internal/accesstoken"
	"github.com/dmirchev92/stp/internal/auth"
)

// PublicHandler serves the unauthenticated link endpoint used by counterparts.
type PublicHandler struct {
	logger     *slog.Logger
	tokens     *accesstoken.Service
	jwtSecret  string
	sessionTTL time.Duration
	limiter    echo.MiddlewareFunc
}

// NewPublicHandler builds the handler. rps <= 0 disables rate limiting.
func NewPublicHandler(log *slog.Logger, tokens *accesstoken.Service, jwtSecret string, sessionTTL time.Duration, rps float64, burst int) *PublicHandler {
	h := &PublicHandler{
		logger:     log.With(slog.String("handler", "public")),
		tokens:     tokens,
		jwtSecret:  jwtSecret,
		sessionTTL: sessionTTL,
	}
	if rps > 0 {
		if burst <= 0 {
			burst = int(rps) + 1
		}
		h.limiter = middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(rps),
				Burst:     burst,
				ExpiresIn: 3 * time.Minute,
			}),
			IdentifierExtractor: func(c echo.Context) (string, error) {
				return c.RealIP(), nil
			},
			DenyHandler: func(c echo.Context, _ string, _ error) error {
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
			},
		})
	}
	return h
}

func (h *PublicHandler) Register(e *echo.Echo) {
	group := e.Group("/public")
	if h.limiter != nil {
		group.Use(h.limiter)
	}
	group.GET("/:public_id/validate/:token", h.Validate)
}

// ValidateResponse admits a counterpart into a conversation.
type ValidateResponse struct {
	OwnerID          string    `json:"owner_id"`
	ConversationID   string    `json:"conversation_id"`
	CounterpartID    string    `json:"counterpart_id"`
	SessionToken     string    `json:"session_token"`
	SessionExpiresAt time.Time `json:"session_expires_at"`
}

// Validate godoc
// @Summary Consume a contact link token
// @Description Consumes the token and returns a counterpart session for the conversation it opens.
// @Tags public
// @Produce json
// @Param public_id path string true "Owner public id"
// @Param token path string true "Token"
// @Success 200 {object} ValidateResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /public/{public_id}/validate/{token} [get]
func (h *PublicHandler) Validate(c echo.Context) error {
	counterpartID := h.returningCounterpart(c)
	if counterpartID == "" {
		counterpartID = uuid.NewString()
	}
	res, err := h.tokens.ValidateAndConsume(c.Request().Context(), c.Param("public_id"), c.Param("token"), counterpartID)
	if err != nil {
		return tokenHTTPError(h.logger, err)
	}
	if res.Conversation.CounterpartID != "" {
		counterpartID = res.Conversation.CounterpartID
	}
	session, expiresAt, err := auth.GenerateCounterpartToken(auth.CounterpartSession{
		OwnerID:        res.OwnerID,
		ConversationID: res.ConversationID,
		CounterpartID:  counterpartID,
	}, h.jwtSecret, h.sessionTTL)
	if err != nil {
		h.logger.Error("sign counterpart session failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, ValidateResponse{
		OwnerID:          res.OwnerID,
		ConversationID:   res.ConversationID,
		CounterpartID:    counterpartID,
		SessionToken:     session,
		SessionExpiresAt: expiresAt,
	})
}

// returningCounterpart reads the counterpart id from a prior session token, if one is presented.
func (h *PublicHandler) returningCounterpart(c echo.Context) string {
	raw := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization))
	raw, ok := strings.CutPrefix(raw, "Bearer ")
	if !ok || raw == "" {
		return ""
	}
	p, err := auth.ParseToken(strings.TrimSpace(raw), h.jwtSecret)
	if err != nil || p.Role != auth.RoleCounterpart {
		return ""
	}
	return p.CounterpartID
}
