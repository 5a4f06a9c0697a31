// Package accesstoken issues, rotates and consumes single-use contact tokens.
package accesstoken

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dmirchev92/stp/internal/conversation"
	"github.com/dmirchev92/stp/internal/db"
	"github.com/dmirchev92/stp/internal/db/sqlc"
	"github.com/dmirchev92/stp/internal/publicid"
	"github.com/dmirchev92/stp/internal/randcode"
)

const (
	defaultTTL            = 24 * time.Hour
	defaultStorageTimeout = 5 * time.Second
	maxTokenRetries       = 5
)

// OwnerResolver maps a public id to its owner.
type OwnerResolver interface {
	ResolveOwnerID(ctx context.Context, publicID string) (string, error)
}

// ConversationResolver creates or resolves the conversation of a consumed token inside the caller's transaction.
type ConversationResolver interface {
	ResolveWith(ctx context.Context, q sqlc.Querier, ownerID, tokenID, counterpartID string) (conversation.Conversation, error)
}

// Service manages the token lifecycle: ISSUED -> CONSUMED | EXPIRED.
// Expiry is derived at read time from expires_at; nothing ever un-consumes a token.
type Service struct {
	store         db.Store
	owners        OwnerResolver
	conversations ConversationResolver
	logger        *slog.Logger
	now           func() time.Time
	ttl           time.Duration
	timeout       time.Duration
	generate      func() (string, error)
}

// NewService creates a token service.
func NewService(log *slog.Logger, store db.Store, owners OwnerResolver, conversations ConversationResolver) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:         store,
		owners:        owners,
		conversations: conversations,
		logger:        log.With(slog.String("service", "accesstoken")),
		now:           time.Now,
		ttl:           defaultTTL,
		timeout:       defaultStorageTimeout,
		generate:      func() (string, error) { return randcode.New(Alphabet, Length) },
	}
}

// WithClock replaces the time source used for issuance and usability checks.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithTTL sets the validity window of newly issued tokens.
func (s *Service) WithTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// WithTimeout bounds every storage round trip.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// WithGenerator replaces the token value generator. Used by tests to force collisions.
func (s *Service) WithGenerator(fn func() (string, error)) *Service {
	s.generate = fn
	return s
}

// TTL returns the validity window of new tokens.
func (s *Service) TTL() time.Duration { return s.ttl }

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

// Issue creates a new usable token for the owner.
func (s *Service) Issue(ctx context.Context, ownerID string) (Token, error) {
	pgOwnerID, err := db.ParseUUID(ownerID)
	if err != nil {
		return Token{}, fmt.Errorf("%w: owner id: %v", ErrInvalidInput, err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	token, err := s.issueWith(ctx, s.store, pgOwnerID)
	if err != nil {
		s.logger.Error("issue token failed", slog.String("owner_id", ownerID), slog.Any("error", err))
		return Token{}, err
	}
	s.logger.Info("token issued", slog.String("owner_id", ownerID), slog.String("token_id", token.ID))
	return token, nil
}

func (s *Service) issueWith(ctx context.Context, q sqlc.Querier, ownerID pgtype.UUID) (Token, error) {
	issuedAt := s.clock()
	for range maxTokenRetries {
		value, err := s.generate()
		if err != nil {
			return Token{}, fmt.Errorf("generate token: %w", err)
		}
		row, err := q.CreateAccessToken(ctx, sqlc.CreateAccessTokenParams{
			OwnerID:   ownerID,
			Token:     value,
			IssuedAt:  db.TimeToPg(issuedAt),
			ExpiresAt: db.TimeToPg(issuedAt.Add(s.ttl)),
		})
		if err == nil {
			return toToken(row), nil
		}
		if db.IsNoRows(err) {
			// ON CONFLICT DO NOTHING: value already held by this owner.
			continue
		}
		return Token{}, unavailable("create token", err)
	}
	return Token{}, fmt.Errorf("create token: %w", ErrGenerationExhausted)
}

// CurrentFor returns the owner's newest usable token, issuing one when none exists.
func (s *Service) CurrentFor(ctx context.Context, ownerID string) (Token, error) {
	pgOwnerID, err := db.ParseUUID(ownerID)
	if err != nil {
		return Token{}, fmt.Errorf("%w: owner id: %v", ErrInvalidInput, err)
	}
	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	row, err := s.store.GetLatestUsableAccessToken(lookupCtx, sqlc.GetLatestUsableAccessTokenParams{
		OwnerID: pgOwnerID,
		Now:     db.TimeToPg(s.clock()),
	})
	cancel()
	if err == nil {
		return toToken(row), nil
	}
	if !db.IsNoRows(err) {
		return Token{}, unavailable("get current token", err)
	}
	return s.Issue(ctx, ownerID)
}

// ValidateAndConsume consumes the token identified by (publicID, value) and returns
// the conversation it opens plus the owner's replacement token.
//
// Consumption, conversation resolution, the token back-reference and the replacement
// issue commit together. Any failure rolls all of it back and leaves the token usable.
func (s *Service) ValidateAndConsume(ctx context.Context, publicID, value, counterpartID string) (Result, error) {
	publicID = strings.TrimSpace(publicID)
	value = strings.ToUpper(strings.TrimSpace(value))
	if !publicid.Valid(publicID) || !randcode.Valid(value, Alphabet, Length) {
		return Result{}, ErrInvalidInput
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ownerID, err := s.owners.ResolveOwnerID(ctx, publicID)
	if err != nil {
		if errors.Is(err, publicid.ErrNotFound) {
			s.logger.Debug("validate rejected: unknown public id", slog.String("public_id", publicID))
			return Result{}, ErrNotFound
		}
		s.logger.Error("resolve owner failed", slog.String("public_id", publicID), slog.Any("error", err))
		return Result{}, unavailable("resolve owner", err)
	}
	pgOwnerID, err := db.ParseUUID(ownerID)
	if err != nil {
		return Result{}, unavailable("resolve owner", err)
	}

	var res Result
	err = s.store.InTx(ctx, func(q sqlc.Querier) error {
		consumedRow, err := q.ConsumeAccessToken(ctx, sqlc.ConsumeAccessTokenParams{
			Now:     db.TimeToPg(s.clock()),
			OwnerID: pgOwnerID,
			Token:   value,
		})
		if err != nil {
			if !db.IsNoRows(err) {
				return unavailable("consume token", err)
			}
			exists, err := q.AccessTokenExists(ctx, sqlc.AccessTokenExistsParams{OwnerID: pgOwnerID, Token: value})
			if err != nil {
				return unavailable("probe token", err)
			}
			if exists {
				return ErrExpiredOrUsed
			}
			return ErrNotFound
		}
		consumed := toToken(consumedRow)

		conv, err := s.conversations.ResolveWith(ctx, q, ownerID, consumed.ID, counterpartID)
		if err != nil {
			return unavailable("resolve conversation", err)
		}
		pgConversationID, err := db.ParseUUID(conv.ID)
		if err != nil {
			return unavailable("resolve conversation", err)
		}
		if err := q.SetAccessTokenConversation(ctx, sqlc.SetAccessTokenConversationParams{
			ID:             consumedRow.ID,
			ConversationID: pgConversationID,
		}); err != nil {
			return unavailable("link token conversation", err)
		}
		consumed.ConversationID = conv.ID

		replacement, err := s.issueWith(ctx, q, pgOwnerID)
		if err != nil {
			return err
		}

		res = Result{
			OwnerID:        ownerID,
			ConversationID: conv.ID,
			Conversation:   conv,
			Consumed:       consumed,
			Replacement:    replacement,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpiredOrUsed) {
			s.logger.Debug("validate rejected", slog.String("owner_id", ownerID), slog.Any("reason", err))
			return Result{}, err
		}
		if !errors.Is(err, ErrStorageUnavailable) {
			err = unavailable("consume tx", err)
		}
		s.logger.Error("validate and consume failed", slog.String("owner_id", ownerID), slog.Any("error", err))
		return Result{}, err
	}

	s.logger.Info("token consumed",
		slog.String("owner_id", ownerID),
		slog.String("token_id", res.Consumed.ID),
		slog.String("conversation_id", res.ConversationID),
		slog.String("replacement_id", res.Replacement.ID),
	)
	return res, nil
}

// PurgeExpired deletes tokens that expired more than grace ago.
func (s *Service) PurgeExpired(ctx context.Context, grace time.Duration) (int64, error) {
	if grace < 0 {
		grace = 0
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.store.DeleteExpiredAccessTokens(ctx, db.TimeToPg(s.clock().Add(-grace)))
	if err != nil {
		return 0, unavailable("purge tokens", err)
	}
	return n, nil
}

func toToken(row sqlc.AccessToken) Token {
	return Token{
		ID:             db.UUIDToString(row.ID),
		OwnerID:        db.UUIDToString(row.OwnerID),
		Value:          row.Token,
		IssuedAt:       db.TimeFromPg(row.IssuedAt),
		ExpiresAt:      db.TimeFromPg(row.ExpiresAt),
		ConsumedAt:     db.TimeFromPg(row.ConsumedAt),
		ConversationID: db.UUIDToString(row.ConversationID),
	}
}
