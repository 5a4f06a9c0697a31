package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/dmirchev92/stp/internal/auth"
	"github.com/dmirchev92/stp/internal/conversation"
	"github.com/dmirchev92/stp/internal/realtime"
)

// SessionHandler upgrades authenticated callers to a realtime websocket session.
type SessionHandler struct {
	logger     *slog.Logger
	router     *realtime.Router
	upgrader   websocket.Upgrader
	sendBuffer int
}

func NewSessionHandler(log *slog.Logger, router *realtime.Router, sendBuffer int) *SessionHandler {
	return &SessionHandler{
		logger: log.With(slog.String("handler", "ws")),
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Sessions authenticate with a bearer token, not cookies.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sendBuffer: sendBuffer,
	}
}

func (h *SessionHandler) Register(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

// Serve runs one websocket session until the peer goes away.
// Rejected frames are answered with an error frame; the session stays open.
func (h *SessionHandler) Serve(c echo.Context) error {
	p, err := auth.PrincipalFromContext(c)
	if err != nil {
		return err
	}
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", slog.Any("error", err))
		return nil
	}
	conn := realtime.NewConnection(h.logger, ws, realtime.Identity{
		Role:    p.Role,
		Subject: subject(p),
		Label:   senderLabel(p),
	}, h.sendBuffer)
	conn.Start()
	defer func() {
		h.router.Detach(conn)
		conn.Close()
	}()

	log := h.logger.With(slog.String("client_id", conn.ID()), slog.String("role", p.Role))
	ctx := c.Request().Context()
	conn.Send(realtime.OutboundFrame{
		Type: realtime.FrameConnected,
		Data: realtime.ConnectedData{ClientID: conn.ID(), Role: p.Role},
	})
	if p.IsOwner() {
		if err := h.router.JoinOwner(ctx, conn, p.OwnerID); err != nil {
			log.Warn("join owner room failed", slog.Any("error", err))
		}
	}

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, realtime.ErrMalformedFrame) {
				conn.Send(realtime.ErrorFrame("", "", realtime.CodeProtocolViolation, err.Error()))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket closed", slog.Any("error", err))
			}
			return nil
		}
		h.dispatch(ctx, log, conn, p, frame)
	}
}

func (h *SessionHandler) dispatch(ctx context.Context, log *slog.Logger, conn *realtime.Connection, p auth.Principal, frame realtime.InboundFrame) {
	convID := strings.TrimSpace(frame.ConversationID)
	reject := func(code, message string) {
		conn.Send(realtime.ErrorFrame(frame.RequestID, convID, code, message))
	}
	fail := func(err error) {
		code, message := frameError(log, err)
		reject(code, message)
	}
	switch frame.Type {
	case realtime.FrameJoin, realtime.FrameLeave, realtime.FramePublish, realtime.FrameTyping, realtime.FrameMarkRead:
	default:
		reject(realtime.CodeProtocolViolation, "unknown frame type "+strings.TrimSpace(frame.Type))
		return
	}
	if convID == "" {
		reject(realtime.CodeProtocolViolation, "conversation_id is required")
		return
	}

	switch frame.Type {
	case realtime.FrameJoin:
		if _, err := h.router.Join(ctx, conn, convID); err != nil {
			fail(err)
		}
	case realtime.FrameLeave:
		if err := h.router.Leave(ctx, conn, convID); err != nil {
			fail(err)
		}
	case realtime.FramePublish:
		if !h.router.IsMember(conn, convID) {
			fail(realtime.ErrNotJoined)
			return
		}
		if strings.EqualFold(strings.TrimSpace(frame.MessageType), conversation.TypeSystem) {
			reject(realtime.CodeInvalidInput, "system messages cannot be sent by participants")
			return
		}
		_, err := h.router.Publish(ctx, realtime.PublishInput{
			ConversationID: convID,
			SenderRole:     p.Role,
			SenderLabel:    senderLabel(p),
			Body:           frame.Body,
			Type:           frame.MessageType,
			ClientID:       conn.ID(),
			RequestID:      frame.RequestID,
		})
		if err != nil {
			fail(err)
		}
	case realtime.FrameTyping:
		if err := h.router.Typing(ctx, conn, convID, frame.Typing()); err != nil {
			fail(err)
		}
	case realtime.FrameMarkRead:
		if !h.router.IsMember(conn, convID) {
			fail(realtime.ErrNotJoined)
			return
		}
		if _, err := h.router.MarkRead(ctx, convID, p.Role); err != nil {
			fail(err)
		}
	}
}
