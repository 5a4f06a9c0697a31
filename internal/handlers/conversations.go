package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dmirchev92/stp/internal/auth"
	"github.com/dmirchev92/stp/internal/conversation"
	"github.com/dmirchev92/stp/internal/realtime"
)

// ConversationHandler exposes conversations and messages over REST.
// Writes go through the router so live members see them.
type ConversationHandler struct {
	logger        *slog.Logger
	conversations *conversation.Service
	router        *realtime.Router
}

func NewConversationHandler(log *slog.Logger, conversations *conversation.Service, router *realtime.Router) *ConversationHandler {
	return &ConversationHandler{
		logger:        log.With(slog.String("handler", "conversations")),
		conversations: conversations,
		router:        router,
	}
}

func (h *ConversationHandler) Register(e *echo.Echo) {
	group := e.Group("/conversations")
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.GET("/:id/messages", h.ListMessages)
	group.POST("/:id/messages", h.SendMessage)
	group.POST("/:id/read", h.MarkRead)
	group.POST("/:id/close", h.Close)
}

// List godoc
// @Summary List the owner's conversations with unread counts
// @Tags conversations
// @Produce json
// @Param limit query int false "Limit"
// @Success 200 {object} map[string][]conversation.ListItem
// @Router /conversations [get]
func (h *ConversationHandler) List(c echo.Context) error {
	ownerID, err := RequireOwnerID(c)
	if err != nil {
		return err
	}
	items, err := h.conversations.ListByOwner(c.Request().Context(), ownerID, parseLimit(c.QueryParam("limit")))
	if err != nil {
		return conversationHTTPError(h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *ConversationHandler) Get(c echo.Context) error {
	p, err := auth.PrincipalFromContext(c)
	if err != nil {
		return err
	}
	conv, err := AuthorizeConversation(c.Request().Context(), h.conversations, p, c.Param("id"))
	if err != nil {
		return conversationHTTPError(h.logger, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// ListMessages godoc
// @Summary List messages after an optional message id
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Param since_id query string false "Return messages strictly after this id"
// @Param limit query int false "Limit"
// @Success 200 {object} map[string][]conversation.Message
// @Failure 404 {object} ErrorResponse
// @Router /conversations/{id}/messages [get]
func (h *ConversationHandler) ListMessages(c echo.Context) error {
	p, err := auth.PrincipalFromContext(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	conv, err := AuthorizeConversation(ctx, h.conversations, p, c.Param("id"))
	if err != nil {
		return conversationHTTPError(h.logger, err)
	}
	messages, err := h.conversations.ListMessages(ctx, conv.ID, strings.TrimSpace(c.QueryParam("since_id")), parseLimit(c.QueryParam("limit")))
	if err != nil {
		return conversationHTTPError(h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": messages})
}

type sendMessageRequest struct {
	Body string `json:"body"`
	Type string `json:"type"`
}

// SendMessage godoc
// @Summary Persist and broadcast a message
// @Tags conversations
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 201 {object} conversation.Message
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /conversations/{id}/messages [post]
func (h *ConversationHandler) SendMessage(c echo.Context) error {
	p, err := auth.PrincipalFromContext(c)
	if err != nil {
		return err
	}
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.EqualFold(strings.TrimSpace(req.Type), conversation.TypeSystem) {
		return echo.NewHTTPError(http.StatusBadRequest, "system messages cannot be sent by participants")
	}
	ctx := c.Request().Context()
	conv, err := AuthorizeConversation(ctx, h.conversations, p, c.Param("id"))
	if err != nil {
		return conversationHTTPError(h.logger, err)
	}
	msg, err := h.router.Publish(ctx, realtime.PublishInput{
		ConversationID: conv.ID,
		SenderRole:     p.Role,
		SenderLabel:    senderLabel(p),
		Body:           req.Body,
		Type:           req.Type,
	})
	if err != nil {
		return conversationHTTPError(h.logger, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (h *ConversationHandler) MarkRead(c echo.Context) error {
	p, err := auth.PrincipalFromContext(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	conv, err := AuthorizeConversation(ctx, h.conversations, p, c.Param("id"))
	if err != nil {
		return conversationHTTPError(h.logger, err)
	}
	receipt, err := h.router.MarkRead(ctx, conv.ID, p.Role)
	if err != nil {
		return conversationHTTPError(h.logger, err)
	}
	return c.JSON(http.StatusOK, receipt)
}

// Close is owner-only.
func (h *ConversationHandler) Close(c echo.Context) error {
	p, err := auth.PrincipalFromContext(c)
	if err != nil {
		return err
	}
	if !p.IsOwner() {
		return echo.NewHTTPError(http.StatusForbidden, "owner token required")
	}
	ctx := c.Request().Context()
	conv, err := AuthorizeConversation(ctx, h.conversations, p, c.Param("id"))
	if err != nil {
		return conversationHTTPError(h.logger, err)
	}
	closed, err := h.conversations.Close(ctx, conv.ID)
	if err != nil {
		return conversationHTTPError(h.logger, err)
	}
	return c.JSON(http.StatusOK, closed)
}
