// Package publicid maps internal owner ids to short public ids used in contact links.
package publicid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dmirchev92/stp/internal/db"
	"github.com/dmirchev92/stp/internal/db/sqlc"
	"github.com/dmirchev92/stp/internal/randcode"
)

// Alphabet and Length define the public id shape. No 0/o/1/i/l.
const (
	Alphabet    = "23456789abcdefghjkmnpqrstuvwxyz"
	Length      = 10
	maxAttempts = 8
)

// Errors returned by the resolver.
var (
	ErrNotFound            = errors.New("public id not found")
	ErrGenerationExhausted = errors.New("public id generation exhausted")
)

// Service resolves owner ids to public ids and back.
type Service struct {
	queries  sqlc.Querier
	logger   *slog.Logger
	generate func() (string, error)
}

// NewService creates a resolver over the given queries.
func NewService(log *slog.Logger, queries sqlc.Querier) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		queries:  queries,
		logger:   log.With(slog.String("service", "publicid")),
		generate: func() (string, error) { return randcode.New(Alphabet, Length) },
	}
}

// WithGenerator replaces the id generator. Used by tests to force collisions.
func (s *Service) WithGenerator(fn func() (string, error)) *Service {
	s.generate = fn
	return s
}

// ResolvePublicID returns the owner's public id, creating it on first use.
// Concurrent first calls for one owner converge on the same value.
func (s *Service) ResolvePublicID(ctx context.Context, ownerID string) (string, error) {
	if s.queries == nil {
		return "", errors.New("publicid queries not configured")
	}
	pgOwnerID, err := db.ParseUUID(ownerID)
	if err != nil {
		return "", fmt.Errorf("invalid owner id: %w", err)
	}

	row, err := s.queries.GetOwnerPublicID(ctx, pgOwnerID)
	if err == nil {
		return row.PublicID, nil
	}
	if !db.IsNoRows(err) {
		return "", fmt.Errorf("get public id: %w", err)
	}

	for range maxAttempts {
		candidate, err := s.generate()
		if err != nil {
			return "", fmt.Errorf("generate public id: %w", err)
		}
		exists, err := s.queries.PublicIDExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check public id: %w", err)
		}
		if exists {
			continue
		}
		row, err := s.queries.CreateOwnerPublicID(ctx, sqlc.CreateOwnerPublicIDParams{
			OwnerID:  pgOwnerID,
			PublicID: candidate,
		})
		if err == nil {
			s.logger.Info("public id assigned", slog.String("owner_id", ownerID), slog.String("public_id", row.PublicID))
			return row.PublicID, nil
		}
		if db.IsUniqueViolation(err) {
			continue
		}
		if db.IsNoRows(err) {
			// Another caller assigned one first.
			existing, err := s.queries.GetOwnerPublicID(ctx, pgOwnerID)
			if err != nil {
				return "", fmt.Errorf("reload public id: %w", err)
			}
			return existing.PublicID, nil
		}
		return "", fmt.Errorf("create public id: %w", err)
	}
	s.logger.Error("public id generation exhausted", slog.String("owner_id", ownerID), slog.Int("attempts", maxAttempts))
	return "", ErrGenerationExhausted
}

// ResolveOwnerID returns the owner behind a public id.
func (s *Service) ResolveOwnerID(ctx context.Context, publicID string) (string, error) {
	if s.queries == nil {
		return "", errors.New("publicid queries not configured")
	}
	publicID = strings.TrimSpace(publicID)
	if !Valid(publicID) {
		return "", ErrNotFound
	}
	row, err := s.queries.GetOwnerByPublicID(ctx, publicID)
	if err != nil {
		if db.IsNoRows(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get owner by public id: %w", err)
	}
	return db.UUIDToString(row.OwnerID), nil
}

// Valid reports whether s has the public id shape.
func Valid(s string) bool {
	return randcode.Valid(s, Alphabet, Length)
}
