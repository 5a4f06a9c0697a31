package accesstoken_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmirchev92/stp/internal/accesstoken"
	"github.com/dmirchev92/stp/internal/conversation"
	"github.com/dmirchev92/stp/internal/db"
	"github.com/dmirchev92/stp/internal/db/dbtest"
	"github.com/dmirchev92/stp/internal/logger"
	"github.com/dmirchev92/stp/internal/publicid"
)

type integration struct {
	store  *db.PgStore
	ids    *publicid.Service
	convs  *conversation.Service
	tokens *accesstoken.Service
}

func setupIntegration(t *testing.T) *integration {
	t.Helper()
	store := dbtest.Open(t)
	log := logger.Discard()
	ids := publicid.NewService(log, store)
	convs := conversation.NewService(log, store)
	return &integration{
		store:  store,
		ids:    ids,
		convs:  convs,
		tokens: accesstoken.NewService(log, store, ids, convs),
	}
}

func (it *integration) owner(t *testing.T) (string, string) {
	t.Helper()
	owner := uuid.NewString()
	pub, err := it.ids.ResolvePublicID(context.Background(), owner)
	require.NoError(t, err)
	return owner, pub
}

func TestIntegrationConcurrentConsumeSingleWinner(t *testing.T) {
	it := setupIntegration(t)
	ctx := context.Background()
	owner, pub := it.owner(t)
	tok, err := it.tokens.Issue(ctx, owner)
	require.NoError(t, err)

	const n = 12
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		mu      sync.Mutex
		wins    int
		rejects int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := it.tokens.ValidateAndConsume(ctx, pub, tok.Value, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, accesstoken.ErrExpiredOrUsed):
				rejects++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, rejects)
}

func TestIntegrationExpiredOneSecondAgo(t *testing.T) {
	it := setupIntegration(t)
	ctx := context.Background()
	owner, pub := it.owner(t)
	tok, err := it.tokens.Issue(ctx, owner)
	require.NoError(t, err)

	_, err = it.store.Pool().Exec(ctx, `
UPDATE access_tokens
SET issued_at = now() - interval '1 hour',
    expires_at = now() - interval '1 second'
WHERE id = $1`, tok.ID)
	require.NoError(t, err)

	_, err = it.tokens.ValidateAndConsume(ctx, pub, tok.Value, "")
	assert.ErrorIs(t, err, accesstoken.ErrExpiredOrUsed)

	current, err := it.tokens.CurrentFor(ctx, owner)
	require.NoError(t, err)
	assert.NotEqual(t, tok.ID, current.ID, "expired token is never current")
}

func TestIntegrationConsumeRotatesAndLinks(t *testing.T) {
	it := setupIntegration(t)
	ctx := context.Background()
	owner, pub := it.owner(t)
	t1, err := it.tokens.CurrentFor(ctx, owner)
	require.NoError(t, err)

	res, err := it.tokens.ValidateAndConsume(ctx, pub, t1.Value, "")
	require.NoError(t, err)

	conv, err := it.convs.Get(ctx, res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, t1.ID, conv.OriginTokenID)

	t2, err := it.tokens.CurrentFor(ctx, owner)
	require.NoError(t, err)
	assert.NotEqual(t, t1.ID, t2.ID)
	assert.Equal(t, res.Replacement.ID, t2.ID)

	_, err = it.tokens.ValidateAndConsume(ctx, pub, t1.Value, "")
	assert.ErrorIs(t, err, accesstoken.ErrExpiredOrUsed)
	_, err = it.tokens.ValidateAndConsume(ctx, pub, "ZZZZ9999", "")
	assert.ErrorIs(t, err, accesstoken.ErrNotFound)
}
