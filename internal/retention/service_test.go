package retention

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmirchev92/stp/internal/accesstoken"
	"github.com/dmirchev92/stp/internal/conversation"
	"github.com/dmirchev92/stp/internal/db/memdb"
	"github.com/dmirchev92/stp/internal/logger"
	"github.com/dmirchev92/stp/internal/publicid"
)

type countingPurger struct {
	calls atomic.Int32
	grace atomic.Int64
	err   error
}

func (p *countingPurger) PurgeExpired(_ context.Context, grace time.Duration) (int64, error) {
	p.calls.Add(1)
	p.grace.Store(int64(grace))
	if p.err != nil {
		return 0, p.err
	}
	return 3, nil
}

func TestNewServiceValidatesSchedule(t *testing.T) {
	_, err := NewService(logger.Discard(), &countingPurger{}, "every now and then", time.Hour)
	assert.Error(t, err)

	_, err = NewService(logger.Discard(), nil, "", 0)
	assert.Error(t, err)

	svc, err := NewService(logger.Discard(), &countingPurger{}, "", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, svc.schedule)
	assert.Equal(t, DefaultGrace, svc.grace)
}

func TestRunOnce(t *testing.T) {
	p := &countingPurger{}
	svc, err := NewService(logger.Discard(), p, "0 */5 * * * *", 48*time.Hour)
	require.NoError(t, err)

	n, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, int64(48*time.Hour), p.grace.Load())

	p.err = errors.New("db down")
	_, err = svc.RunOnce(context.Background())
	assert.ErrorIs(t, err, p.err)
}

func TestScheduledSweepRuns(t *testing.T) {
	p := &countingPurger{}
	svc, err := NewService(logger.Discard(), p, "* * * * * *", time.Hour)
	require.NoError(t, err)
	require.NoError(t, svc.Start())
	require.NoError(t, svc.Start(), "second start is a no-op")

	require.Eventually(t, func() bool { return p.calls.Load() > 0 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(ctx))
	require.NoError(t, svc.Stop(ctx))
}

func TestSweepDeletesOnlyLongExpiredTokens(t *testing.T) {
	ctx := context.Background()
	log := logger.Discard()
	store := memdb.New()
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	var offset atomic.Int64
	clock := func() time.Time { return start.Add(time.Duration(offset.Load())) }

	tokens := accesstoken.NewService(log, store, publicid.NewService(log, store), conversation.NewService(log, store)).
		WithClock(clock).
		WithTTL(time.Hour)
	owner := uuid.NewString()
	old, err := tokens.Issue(ctx, owner)
	require.NoError(t, err)

	offset.Store(int64(30 * time.Hour))
	fresh, err := tokens.Issue(ctx, owner)
	require.NoError(t, err)

	svc, err := NewService(log, tokens, "", 24*time.Hour)
	require.NoError(t, err)
	n, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	current, err := tokens.CurrentFor(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, current.ID)
	assert.NotEqual(t, old.ID, current.ID)
}
