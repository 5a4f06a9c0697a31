package publicid_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmirchev92/stp/internal/db/dbtest"
	"github.com/dmirchev92/stp/internal/logger"
	"github.com/dmirchev92/stp/internal/publicid"
	"github.com/dmirchev92/stp/internal/randcode"
)

func TestIntegrationResolveRoundTrip(t *testing.T) {
	store := dbtest.Open(t)
	ctx := context.Background()
	svc := publicid.NewService(logger.Discard(), store)
	owner := uuid.NewString()

	pub, err := svc.ResolvePublicID(ctx, owner)
	require.NoError(t, err)

	again, err := svc.ResolvePublicID(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, pub, again)

	got, err := svc.ResolveOwnerID(ctx, pub)
	require.NoError(t, err)
	assert.Equal(t, owner, got)
}

func TestIntegrationPublicIDCollisionRetries(t *testing.T) {
	store := dbtest.Open(t)
	ctx := context.Background()

	first, err := publicid.NewService(logger.Discard(), store).ResolvePublicID(ctx, uuid.NewString())
	require.NoError(t, err)

	calls := 0
	next, err := publicid.NewService(logger.Discard(), store).WithGenerator(func() (string, error) {
		calls++
		if calls == 1 {
			return first, nil
		}
		return randcode.New(publicid.Alphabet, publicid.Length)
	}).ResolvePublicID(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.NotEqual(t, first, next)
	assert.GreaterOrEqual(t, calls, 2)
}
