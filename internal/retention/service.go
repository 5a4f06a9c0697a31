// Package retention periodically deletes access tokens that expired long ago.
// Token validity never depends on the sweep; it only bounds table growth.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule = "@every 1h"
	DefaultGrace    = 7 * 24 * time.Hour
	runTimeout      = time.Minute
)

// Purger deletes tokens whose expiry is older than grace.
type Purger interface {
	PurgeExpired(ctx context.Context, grace time.Duration) (int64, error)
}

type Service struct {
	purger   Purger
	cron     *cron.Cron
	schedule string
	grace    time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	entryID cron.EntryID
	started bool
}

// NewService validates schedule (standard cron with optional seconds, or a descriptor like "@every 1h").
func NewService(log *slog.Logger, purger Purger, schedule string, grace time.Duration) (*Service, error) {
	if purger == nil {
		return nil, errors.New("retention purger not configured")
	}
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		purger:   purger,
		cron:     cron.New(cron.WithParser(parser)),
		schedule: schedule,
		grace:    grace,
		logger:   log.With(slog.String("service", "retention")),
	}, nil
}

// Start registers the sweep and starts the scheduler.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	entryID, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		_, _ = s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}
	s.entryID = entryID
	s.started = true
	s.cron.Start()
	s.logger.Info("token sweep scheduled", slog.String("schedule", s.schedule), slog.Duration("grace", s.grace))
	return nil
}

// Stop halts the scheduler and waits for a running sweep, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.cron.Remove(s.entryID)
	s.started = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one sweep.
func (s *Service) RunOnce(ctx context.Context) (int64, error) {
	deleted, err := s.purger.PurgeExpired(ctx, s.grace)
	if err != nil {
		s.logger.Error("token sweep failed", slog.Any("error", err))
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("token sweep finished", slog.Int64("deleted", deleted))
	} else {
		s.logger.Debug("token sweep finished", slog.Int64("deleted", deleted))
	}
	return deleted, nil
}
