package accesstoken

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmirchev92/stp/internal/conversation"
	"github.com/dmirchev92/stp/internal/db/memdb"
	"github.com/dmirchev92/stp/internal/logger"
	"github.com/dmirchev92/stp/internal/publicid"
	"github.com/dmirchev92/stp/internal/randcode"
)

type fixture struct {
	store   *memdb.Store
	ids     *publicid.Service
	convs   *conversation.Service
	tokens  *Service
	mu      sync.Mutex
	current time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memdb.New(), current: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	log := logger.Discard()
	f.ids = publicid.NewService(log, f.store)
	f.convs = conversation.NewService(log, f.store).WithClock(f.now)
	f.tokens = NewService(log, f.store, f.ids, f.convs).WithClock(f.now)
	return f
}

func (f *fixture) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

func (f *fixture) owner(t *testing.T) (ownerID, publicID string) {
	t.Helper()
	ownerID = uuid.NewString()
	publicID, err := f.ids.ResolvePublicID(context.Background(), ownerID)
	require.NoError(t, err)
	return ownerID, publicID
}

func TestIssue(t *testing.T) {
	f := newFixture(t)
	owner, _ := f.owner(t)

	tok, err := f.tokens.Issue(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, randcode.Valid(tok.Value, Alphabet, Length), "value %q", tok.Value)
	assert.Equal(t, owner, tok.OwnerID)
	assert.Equal(t, 24*time.Hour, tok.ExpiresAt.Sub(tok.IssuedAt))
	assert.True(t, tok.Usable(f.now()))
	assert.NotContains(t, tok.Value, "0")
	assert.NotContains(t, tok.Value, "O")

	_, err = f.tokens.Issue(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestIssueRetriesValueCollision(t *testing.T) {
	f := newFixture(t)
	owner, _ := f.owner(t)
	values := []string{"AAAA2222", "AAAA2222", "BBBB3333"}
	i := 0
	f.tokens.WithGenerator(func() (string, error) {
		v := values[i]
		i++
		return v, nil
	})

	first, err := f.tokens.Issue(context.Background(), owner)
	require.NoError(t, err)
	second, err := f.tokens.Issue(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, "AAAA2222", first.Value)
	assert.Equal(t, "BBBB3333", second.Value)
}

func TestIssueGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t)
	owner, _ := f.owner(t)
	f.tokens.WithGenerator(func() (string, error) { return "ABCDEFGH", nil })

	_, err := f.tokens.Issue(context.Background(), owner)
	require.NoError(t, err)
	_, err = f.tokens.Issue(context.Background(), owner)
	assert.ErrorIs(t, err, ErrGenerationExhausted)
}

func TestCurrentForReusesNewestUsable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner, _ := f.owner(t)

	issued, err := f.tokens.CurrentFor(ctx, owner)
	require.NoError(t, err, "issues when none exists")

	again, err := f.tokens.CurrentFor(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, again.ID)

	f.advance(time.Minute)
	newer, err := f.tokens.Issue(ctx, owner)
	require.NoError(t, err)
	current, err := f.tokens.CurrentFor(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, current.ID)

	f.advance(25 * time.Hour)
	fresh, err := f.tokens.CurrentFor(ctx, owner)
	require.NoError(t, err)
	assert.NotEqual(t, newer.ID, fresh.ID, "expired tokens are never current")
	assert.True(t, fresh.Usable(f.now()))
}

func TestValidateAndConsume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner, pub := f.owner(t)
	t1, err := f.tokens.CurrentFor(ctx, owner)
	require.NoError(t, err)

	res, err := f.tokens.ValidateAndConsume(ctx, pub, t1.Value, "")
	require.NoError(t, err)
	assert.Equal(t, owner, res.OwnerID)
	assert.NotEmpty(t, res.ConversationID)
	assert.Equal(t, t1.ID, res.Consumed.ID)
	assert.Equal(t, res.ConversationID, res.Consumed.ConversationID)
	assert.False(t, res.Consumed.ConsumedAt.IsZero())
	assert.Equal(t, t1.ID, res.Conversation.OriginTokenID)

	current, err := f.tokens.CurrentFor(ctx, owner)
	require.NoError(t, err)
	assert.NotEqual(t, t1.Value, current.Value)
	assert.Equal(t, res.Replacement.ID, current.ID)
	assert.True(t, current.Usable(f.now()))

	_, err = f.tokens.ValidateAndConsume(ctx, pub, t1.Value, "")
	assert.ErrorIs(t, err, ErrExpiredOrUsed)
}

func TestValidateAndConsumeAcceptsLowercase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner, pub := f.owner(t)
	tok, err := f.tokens.Issue(ctx, owner)
	require.NoError(t, err)

	lower := []byte(tok.Value)
	for i, c := range lower {
		if c >= 'A' && c <= 'Z' {
			lower[i] = c + ('a' - 'A')
		}
	}
	_, err = f.tokens.ValidateAndConsume(ctx, pub, " "+string(lower)+" ", "")
	assert.NoError(t, err)
}

func TestValidateAndConsumeConcurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner, pub := f.owner(t)
	tok, err := f.tokens.Issue(ctx, owner)
	require.NoError(t, err)

	const n = 32
	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		mu       sync.Mutex
		success  int
		rejected int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.tokens.ValidateAndConsume(ctx, pub, tok.Value, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrExpiredOrUsed):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, n-1, rejected)

	items, err := f.convs.ListByOwner(ctx, owner, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1, "exactly one conversation")
}

func TestValidateAndConsumeExpired(t *testing.T) {
	ctx := context.Background()

	t.Run("one second past expiry", func(t *testing.T) {
		f := newFixture(t)
		owner, pub := f.owner(t)
		tok, err := f.tokens.Issue(ctx, owner)
		require.NoError(t, err)

		f.advance(24*time.Hour + time.Second)
		_, err = f.tokens.ValidateAndConsume(ctx, pub, tok.Value, "")
		assert.ErrorIs(t, err, ErrExpiredOrUsed)
	})

	t.Run("exactly at expiry", func(t *testing.T) {
		f := newFixture(t)
		owner, pub := f.owner(t)
		tok, err := f.tokens.Issue(ctx, owner)
		require.NoError(t, err)

		f.advance(24 * time.Hour)
		_, err = f.tokens.ValidateAndConsume(ctx, pub, tok.Value, "")
		assert.ErrorIs(t, err, ErrExpiredOrUsed)
	})

	t.Run("one second before expiry", func(t *testing.T) {
		f := newFixture(t)
		owner, pub := f.owner(t)
		tok, err := f.tokens.Issue(ctx, owner)
		require.NoError(t, err)

		f.advance(24*time.Hour - time.Second)
		_, err = f.tokens.ValidateAndConsume(ctx, pub, tok.Value, "")
		assert.NoError(t, err)
	})

	t.Run("non-UTC clock", func(t *testing.T) {
		f := newFixture(t)
		owner, pub := f.owner(t)
		tok, err := f.tokens.Issue(ctx, owner)
		require.NoError(t, err)

		sofia := time.FixedZone("EEST", 3*3600)
		expired := tok.ExpiresAt.Add(time.Second).In(sofia)
		f.tokens.WithClock(func() time.Time { return expired })
		_, err = f.tokens.ValidateAndConsume(ctx, pub, tok.Value, "")
		assert.ErrorIs(t, err, ErrExpiredOrUsed)
	})
}

func TestValidateAndConsumeNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner, pub := f.owner(t)
	_, err := f.tokens.Issue(ctx, owner)
	require.NoError(t, err)

	_, err = f.tokens.ValidateAndConsume(ctx, "23456789ab", "ABCD2345", "")
	assert.ErrorIs(t, err, ErrNotFound, "unknown public id")

	_, err = f.tokens.ValidateAndConsume(ctx, pub, "ZZZZ9999", "")
	assert.ErrorIs(t, err, ErrNotFound, "value never issued")

	_, otherPub := f.owner(t)
	tok, err := f.tokens.CurrentFor(ctx, owner)
	require.NoError(t, err)
	_, err = f.tokens.ValidateAndConsume(ctx, otherPub, tok.Value, "")
	assert.ErrorIs(t, err, ErrNotFound, "token of another owner")
}

func TestValidateAndConsumeMalformedSkipsStorage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sentinel := errors.New("storage touched")
	f.store.InjectFault("GetOwnerByPublicID", sentinel)

	for _, tc := range []struct{ pub, value string }{
		{"short", "ABCD2345"},
		{"23456789ab", "ABC"},
		{"23456789ab", "ABCD234O"},
		{"23456789AB!", "ABCD2345"},
	} {
		_, err := f.tokens.ValidateAndConsume(ctx, tc.pub, tc.value, "")
		assert.ErrorIs(t, err, ErrInvalidInput, "%+v", tc)
	}

	_, err := f.store.GetOwnerByPublicID(ctx, "23456789ab")
	assert.ErrorIs(t, err, sentinel, "fault still armed, so storage was never called")
}

func TestValidateAndConsumeRollsBackOnStorageFault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner, pub := f.owner(t)
	tok, err := f.tokens.Issue(ctx, owner)
	require.NoError(t, err)

	f.store.InjectFault("CreateAccessToken", errors.New("disk full"))
	_, err = f.tokens.ValidateAndConsume(ctx, pub, tok.Value, "")
	require.ErrorIs(t, err, ErrStorageUnavailable)
	assert.NotErrorIs(t, err, ErrExpiredOrUsed)

	items, err := f.convs.ListByOwner(ctx, owner, 0)
	require.NoError(t, err)
	assert.Empty(t, items, "conversation creation rolled back")

	current, err := f.tokens.CurrentFor(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, current.ID, "token still usable after rollback")

	_, err = f.tokens.ValidateAndConsume(ctx, pub, tok.Value, "")
	assert.NoError(t, err, "retry after the fault succeeds")
}

func TestValidateAndConsumeTimeoutFailsClosed(t *testing.T) {
	f := newFixture(t)
	owner, pub := f.owner(t)
	tok, err := f.tokens.Issue(context.Background(), owner)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.tokens.ValidateAndConsume(ctx, pub, tok.Value, "")
	require.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = f.tokens.ValidateAndConsume(context.Background(), pub, tok.Value, "")
	assert.NoError(t, err, "token unaffected by the timed-out attempt")
}

func TestValidateAndConsumeReturningCounterpart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner, pub := f.owner(t)

	first, err := f.tokens.CurrentFor(ctx, owner)
	require.NoError(t, err)
	r1, err := f.tokens.ValidateAndConsume(ctx, pub, first.Value, "cp-42")
	require.NoError(t, err)

	r2, err := f.tokens.ValidateAndConsume(ctx, pub, r1.Replacement.Value, "cp-42")
	require.NoError(t, err)
	assert.Equal(t, r1.ConversationID, r2.ConversationID)

	r3, err := f.tokens.ValidateAndConsume(ctx, pub, r2.Replacement.Value, "")
	require.NoError(t, err)
	assert.NotEqual(t, r1.ConversationID, r3.ConversationID, "anonymous contact opens a new conversation")
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner, _ := f.owner(t)
	_, err := f.tokens.Issue(ctx, owner)
	require.NoError(t, err)

	f.advance(24*time.Hour + time.Hour)
	n, err := f.tokens.PurgeExpired(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "inside grace")

	f.advance(2 * time.Hour)
	n, err = f.tokens.PurgeExpired(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
