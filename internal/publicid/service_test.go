package publicid

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmirchev92/stp/internal/db/memdb"
	"github.com/dmirchev92/stp/internal/logger"
)

func TestResolveRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := NewService(logger.Discard(), memdb.New())
	owner := uuid.NewString()

	pub, err := svc.ResolvePublicID(ctx, owner)
	require.NoError(t, err)
	assert.True(t, Valid(pub), "unexpected shape %q", pub)

	again, err := svc.ResolvePublicID(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, pub, again)

	got, err := svc.ResolveOwnerID(ctx, pub)
	require.NoError(t, err)
	assert.Equal(t, owner, got)
}

func TestResolveOwnerIDUnknown(t *testing.T) {
	svc := NewService(logger.Discard(), memdb.New())

	_, err := svc.ResolveOwnerID(context.Background(), "23456789ab")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.ResolveOwnerID(context.Background(), "not-a-public-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolvePublicIDInvalidOwner(t *testing.T) {
	svc := NewService(logger.Discard(), memdb.New())
	_, err := svc.ResolvePublicID(context.Background(), "nope")
	assert.Error(t, err)
}

func TestResolvePublicIDConcurrentFirstCalls(t *testing.T) {
	ctx := context.Background()
	svc := NewService(logger.Discard(), memdb.New())
	owner := uuid.NewString()

	const n = 16
	results := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub, err := svc.ResolvePublicID(ctx, owner)
			if err != nil {
				t.Errorf("ResolvePublicID: %v", err)
				return
			}
			results[i] = pub
		}()
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
}

func TestResolvePublicIDRetriesCollisions(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	taken, err := NewService(logger.Discard(), store).
		WithGenerator(func() (string, error) { return "aaaaaaaaaa", nil }).
		ResolvePublicID(ctx, uuid.NewString())
	require.NoError(t, err)

	calls := 0
	svc := NewService(logger.Discard(), store).WithGenerator(func() (string, error) {
		calls++
		if calls < 3 {
			return taken, nil
		}
		return "bbbbbbbbbb", nil
	})
	pub, err := svc.ResolvePublicID(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, "bbbbbbbbbb", pub)
	assert.Equal(t, 3, calls)
}

func TestResolvePublicIDExhausted(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	fixed := func() (string, error) { return "cccccccccc", nil }
	_, err := NewService(logger.Discard(), store).WithGenerator(fixed).ResolvePublicID(ctx, uuid.NewString())
	require.NoError(t, err)

	_, err = NewService(logger.Discard(), store).WithGenerator(fixed).ResolvePublicID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrGenerationExhausted)
}

func TestResolvePublicIDStorageError(t *testing.T) {
	store := memdb.New()
	boom := errors.New("connection refused")
	store.InjectFault("GetOwnerPublicID", boom)

	_, err := NewService(logger.Discard(), store).ResolvePublicID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, boom)
}
