// Package conversation is the system of record for conversations and their messages.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/dmirchev92/stp/internal/db"
	"github.com/dmirchev92/stp/internal/db/sqlc"
)

const defaultStorageTimeout = 5 * time.Second

// Service manages conversation lifecycle, message append and read marks.
type Service struct {
	store   dbpkg.Store
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewService creates a conversation service.
func NewService(log *slog.Logger, store dbpkg.Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:   store,
		logger:  log.With(slog.String("service", "conversation")),
		now:     time.Now,
		timeout: defaultStorageTimeout,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithTimeout bounds every storage call. Non-positive values keep the default.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

func (s *Service) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// CreateOrResolve returns the conversation created from tokenID, creating it when absent.
// With a known counterpartID an already open conversation with that counterpart is reused.
func (s *Service) CreateOrResolve(ctx context.Context, ownerID, tokenID, counterpartID string) (Conversation, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	var conv Conversation
	err := s.store.InTx(ctx, func(q sqlc.Querier) error {
		var err error
		conv, err = s.ResolveWith(ctx, q, ownerID, tokenID, counterpartID)
		return err
	})
	if err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

// ResolveWith is CreateOrResolve bound to the caller's transaction.
func (s *Service) ResolveWith(ctx context.Context, q sqlc.Querier, ownerID, tokenID, counterpartID string) (Conversation, error) {
	pgOwnerID, err := dbpkg.ParseUUID(ownerID)
	if err != nil {
		return Conversation{}, fmt.Errorf("%w: owner id: %v", ErrInvalidInput, err)
	}
	var pgTokenID pgtype.UUID
	if strings.TrimSpace(tokenID) != "" {
		pgTokenID, err = dbpkg.ParseUUID(tokenID)
		if err != nil {
			return Conversation{}, fmt.Errorf("%w: token id: %v", ErrInvalidInput, err)
		}
	}
	counterpart := dbpkg.StringToText(counterpartID)

	if conv, ok, err := s.lookupExisting(ctx, q, pgOwnerID, pgTokenID, counterpart); err != nil || ok {
		return conv, err
	}

	row, err := q.CreateConversation(ctx, sqlc.CreateConversationParams{
		OwnerID:       pgOwnerID,
		CounterpartID: counterpart,
		OriginTokenID: pgTokenID,
		Now:           dbpkg.TimeToPg(s.now()),
	})
	if err == nil {
		conv := toConversation(row)
		s.logger.Info("conversation created",
			slog.String("conversation_id", conv.ID),
			slog.String("owner_id", conv.OwnerID),
			slog.Bool("identified_counterpart", counterpart.Valid),
		)
		return conv, nil
	}
	if !dbpkg.IsNoRows(err) {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}

	// DO NOTHING fired: a concurrent caller committed the same token or counterpart first.
	conv, ok, err := s.lookupExisting(ctx, q, pgOwnerID, pgTokenID, counterpart)
	if err != nil {
		return Conversation{}, err
	}
	if !ok {
		return Conversation{}, errors.New("create conversation: conflict without a visible row")
	}
	return conv, nil
}

func (s *Service) lookupExisting(ctx context.Context, q sqlc.Querier, ownerID, tokenID pgtype.UUID, counterpart pgtype.Text) (Conversation, bool, error) {
	if tokenID.Valid {
		row, err := q.GetConversationByOriginToken(ctx, tokenID)
		if err == nil {
			return toConversation(row), true, nil
		}
		if !dbpkg.IsNoRows(err) {
			return Conversation{}, false, fmt.Errorf("get conversation by token: %w", err)
		}
	}
	if counterpart.Valid {
		row, err := q.GetOpenConversationByCounterpart(ctx, sqlc.GetOpenConversationByCounterpartParams{
			OwnerID:       ownerID,
			CounterpartID: counterpart,
		})
		if err == nil {
			return toConversation(row), true, nil
		}
		if !dbpkg.IsNoRows(err) {
			return Conversation{}, false, fmt.Errorf("get open conversation: %w", err)
		}
	}
	return Conversation{}, false, nil
}

// Get returns a conversation by ID.
func (s *Service) Get(ctx context.Context, conversationID string) (Conversation, error) {
	pgID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return Conversation{}, ErrConversationNotFound
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	row, err := s.store.GetConversation(ctx, pgID)
	if err != nil {
		if dbpkg.IsNoRows(err) {
			return Conversation{}, ErrConversationNotFound
		}
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return toConversation(row), nil
}

// ListByOwner returns the owner's conversations, most recently active first, with unread counts.
func (s *Service) ListByOwner(ctx context.Context, ownerID string, limit int) ([]ListItem, error) {
	pgOwnerID, err := dbpkg.ParseUUID(ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: owner id: %v", ErrInvalidInput, err)
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	rows, err := s.store.ListConversationsByOwner(ctx, sqlc.ListConversationsByOwnerParams{
		OwnerID:  pgOwnerID,
		MaxCount: clampLimit(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	items := make([]ListItem, 0, len(rows))
	for _, row := range rows {
		unread, err := s.store.CountUnreadForOwner(ctx, row.ID)
		if err != nil {
			return nil, fmt.Errorf("count unread: %w", err)
		}
		items = append(items, ListItem{Conversation: toConversation(row), UnreadCount: unread})
	}
	return items, nil
}

// AppendMessage persists a message at the end of the conversation.
// The returned Seq and CreatedAt fix its position in the conversation order.
func (s *Service) AppendMessage(ctx context.Context, in AppendInput) (Message, error) {
	in, err := normalizeAppend(in)
	if err != nil {
		return Message{}, err
	}
	pgConversationID, err := dbpkg.ParseUUID(in.ConversationID)
	if err != nil {
		return Message{}, ErrConversationNotFound
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()
	var msg Message
	err = s.store.InTx(ctx, func(q sqlc.Querier) error {
		next, err := q.NextMessageSeq(ctx, sqlc.NextMessageSeqParams{
			Now: dbpkg.TimeToPg(s.now()),
			ID:  pgConversationID,
		})
		if err != nil {
			if !dbpkg.IsNoRows(err) {
				return fmt.Errorf("next message seq: %w", err)
			}
			if _, err := q.GetConversation(ctx, pgConversationID); err != nil {
				if dbpkg.IsNoRows(err) {
					return ErrConversationNotFound
				}
				return fmt.Errorf("get conversation: %w", err)
			}
			return ErrConversationClosed
		}
		row, err := q.CreateMessage(ctx, sqlc.CreateMessageParams{
			ConversationID: pgConversationID,
			Seq:            next.MessageSeq,
			SenderRole:     in.SenderRole,
			SenderLabel:    in.SenderLabel,
			Body:           in.Body,
			Type:           in.Type,
			CreatedAt:      next.LastActivityAt,
		})
		if err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		msg = toMessage(row)
		return nil
	})
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

func normalizeAppend(in AppendInput) (AppendInput, error) {
	in.SenderRole = strings.ToLower(strings.TrimSpace(in.SenderRole))
	switch in.SenderRole {
	case RoleOwner, RoleCounterpart, RoleSystem:
	default:
		return in, fmt.Errorf("%w: sender role %q", ErrInvalidInput, in.SenderRole)
	}
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	switch in.Type {
	case "":
		in.Type = TypeText
	case TypeText, TypeSystem, TypeStructuredAction:
	default:
		return in, fmt.Errorf("%w: message type %q", ErrInvalidInput, in.Type)
	}
	if strings.TrimSpace(in.Body) == "" {
		return in, fmt.Errorf("%w: empty body", ErrInvalidInput)
	}
	if len(in.Body) > MaxBodyLength {
		return in, fmt.Errorf("%w: body exceeds %d bytes", ErrInvalidInput, MaxBodyLength)
	}
	in.SenderLabel = truncateRunes(strings.TrimSpace(in.SenderLabel), maxSenderLabelLen)
	return in, nil
}

// ListMessages returns messages in conversation order, strictly after sinceID when given.
func (s *Service) ListMessages(ctx context.Context, conversationID, sinceID string, limit int) ([]Message, error) {
	pgConversationID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return nil, ErrConversationNotFound
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if _, err := s.store.GetConversation(ctx, pgConversationID); err != nil {
		if dbpkg.IsNoRows(err) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	var afterSeq int64
	if sinceID = strings.TrimSpace(sinceID); sinceID != "" {
		pgSinceID, err := dbpkg.ParseUUID(sinceID)
		if err != nil {
			return nil, ErrMessageNotFound
		}
		since, err := s.store.GetMessage(ctx, pgSinceID)
		if err != nil {
			if dbpkg.IsNoRows(err) {
				return nil, ErrMessageNotFound
			}
			return nil, fmt.Errorf("get message: %w", err)
		}
		if since.ConversationID != pgConversationID {
			return nil, ErrMessageNotFound
		}
		afterSeq = since.Seq
	}

	rows, err := s.store.ListMessagesAfterSeq(ctx, sqlc.ListMessagesAfterSeqParams{
		ConversationID: pgConversationID,
		AfterSeq:       afterSeq,
		MaxCount:       clampLimit(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	messages := make([]Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, toMessage(row))
	}
	return messages, nil
}

// MarkRead marks every message not sent by readerRole as read by it.
func (s *Service) MarkRead(ctx context.Context, conversationID, readerRole string) (ReadReceipt, error) {
	readerRole = strings.ToLower(strings.TrimSpace(readerRole))
	if readerRole != RoleOwner && readerRole != RoleCounterpart {
		return ReadReceipt{}, fmt.Errorf("%w: reader role %q", ErrInvalidInput, readerRole)
	}
	pgConversationID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return ReadReceipt{}, ErrConversationNotFound
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if _, err := s.store.GetConversation(ctx, pgConversationID); err != nil {
		if dbpkg.IsNoRows(err) {
			return ReadReceipt{}, ErrConversationNotFound
		}
		return ReadReceipt{}, fmt.Errorf("get conversation: %w", err)
	}

	now := s.now().UTC()
	var count int64
	if readerRole == RoleOwner {
		count, err = s.store.MarkMessagesReadByOwner(ctx, sqlc.MarkMessagesReadByOwnerParams{
			Now:            dbpkg.TimeToPg(now),
			ConversationID: pgConversationID,
		})
	} else {
		count, err = s.store.MarkMessagesReadByCounterpart(ctx, sqlc.MarkMessagesReadByCounterpartParams{
			Now:            dbpkg.TimeToPg(now),
			ConversationID: pgConversationID,
		})
	}
	if err != nil {
		return ReadReceipt{}, fmt.Errorf("mark read: %w", err)
	}
	return ReadReceipt{
		ConversationID: conversationID,
		ReaderRole:     readerRole,
		Count:          count,
		ReadAt:         now,
	}, nil
}

// UnreadCount returns how many messages role has not read yet.
func (s *Service) UnreadCount(ctx context.Context, conversationID, role string) (int64, error) {
	pgConversationID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return 0, ErrConversationNotFound
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleOwner:
		return s.store.CountUnreadForOwner(ctx, pgConversationID)
	case RoleCounterpart:
		return s.store.CountUnreadForCounterpart(ctx, pgConversationID)
	default:
		return 0, fmt.Errorf("%w: role %q", ErrInvalidInput, role)
	}
}

// Close marks the conversation closed. Closing twice is a no-op.
func (s *Service) Close(ctx context.Context, conversationID string) (Conversation, error) {
	pgConversationID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return Conversation{}, ErrConversationNotFound
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	row, err := s.store.CloseConversation(ctx, pgConversationID)
	if err != nil {
		if dbpkg.IsNoRows(err) {
			return Conversation{}, ErrConversationNotFound
		}
		return Conversation{}, fmt.Errorf("close conversation: %w", err)
	}
	s.logger.Info("conversation closed", slog.String("conversation_id", conversationID))
	return toConversation(row), nil
}

func clampLimit(limit int) int32 {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return int32(limit)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func toConversation(row sqlc.Conversation) Conversation {
	return Conversation{
		ID:             dbpkg.UUIDToString(row.ID),
		OwnerID:        dbpkg.UUIDToString(row.OwnerID),
		CounterpartID:  dbpkg.TextToString(row.CounterpartID),
		OriginTokenID:  dbpkg.UUIDToString(row.OriginTokenID),
		Status:         row.Status,
		CreatedAt:      dbpkg.TimeFromPg(row.CreatedAt),
		LastActivityAt: dbpkg.TimeFromPg(row.LastActivityAt),
	}
}

func toMessage(row sqlc.Message) Message {
	return Message{
		ID:                dbpkg.UUIDToString(row.ID),
		ConversationID:    dbpkg.UUIDToString(row.ConversationID),
		Seq:               row.Seq,
		SenderRole:        row.SenderRole,
		SenderLabel:       row.SenderLabel,
		Body:              row.Body,
		Type:              row.Type,
		CreatedAt:         dbpkg.TimeFromPg(row.CreatedAt),
		OwnerReadAt:       dbpkg.TimeFromPg(row.OwnerReadAt),
		CounterpartReadAt: dbpkg.TimeFromPg(row.CounterpartReadAt),
	}
}
