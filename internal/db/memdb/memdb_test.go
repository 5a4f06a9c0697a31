package memdb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmirchev92/stp/internal/db"
	"github.com/dmirchev92/stp/internal/db/memdb"
	"github.com/dmirchev92/stp/internal/db/sqlc"
)

var _ db.Store = (*memdb.Store)(nil)

func pgUUID() pgtype.UUID {
	return pgtype.UUID{Bytes: uuid.New(), Valid: true}
}

func TestCreateAccessTokenUniquePerOwner(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	owner := pgUUID()
	now := time.Now().UTC()
	params := sqlc.CreateAccessTokenParams{
		OwnerID:   owner,
		Token:     "ABCD2345",
		IssuedAt:  db.TimeToPg(now),
		ExpiresAt: db.TimeToPg(now.Add(time.Hour)),
	}
	_, err := store.CreateAccessToken(ctx, params)
	require.NoError(t, err)

	_, err = store.CreateAccessToken(ctx, params)
	assert.True(t, db.IsNoRows(err), "conflict does nothing, got %v", err)

	params.OwnerID = pgUUID()
	_, err = store.CreateAccessToken(ctx, params)
	assert.NoError(t, err, "same value for another owner is allowed")
}

func TestConsumeAccessTokenOnlyOnce(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	owner := pgUUID()
	now := time.Now().UTC()
	_, err := store.CreateAccessToken(ctx, sqlc.CreateAccessTokenParams{
		OwnerID: owner, Token: "ABCD2345",
		IssuedAt: db.TimeToPg(now), ExpiresAt: db.TimeToPg(now.Add(time.Minute)),
	})
	require.NoError(t, err)

	consume := sqlc.ConsumeAccessTokenParams{Now: db.TimeToPg(now), OwnerID: owner, Token: "ABCD2345"}
	row, err := store.ConsumeAccessToken(ctx, consume)
	require.NoError(t, err)
	assert.True(t, row.ConsumedAt.Valid)

	_, err = store.ConsumeAccessToken(ctx, consume)
	assert.True(t, db.IsNoRows(err))
}

func TestConsumeAccessTokenExpiredAtBoundary(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	owner := pgUUID()
	now := time.Now().UTC()
	_, err := store.CreateAccessToken(ctx, sqlc.CreateAccessTokenParams{
		OwnerID: owner, Token: "ABCD2345",
		IssuedAt: db.TimeToPg(now.Add(-time.Hour)), ExpiresAt: db.TimeToPg(now),
	})
	require.NoError(t, err)

	_, err = store.ConsumeAccessToken(ctx, sqlc.ConsumeAccessTokenParams{Now: db.TimeToPg(now), OwnerID: owner, Token: "ABCD2345"})
	assert.True(t, db.IsNoRows(err), "expires_at == now is not usable")
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	owner := pgUUID()
	now := time.Now().UTC()
	boom := errors.New("boom")

	err := store.InTx(ctx, func(q sqlc.Querier) error {
		if _, err := q.CreateAccessToken(ctx, sqlc.CreateAccessTokenParams{
			OwnerID: owner, Token: "ABCD2345",
			IssuedAt: db.TimeToPg(now), ExpiresAt: db.TimeToPg(now.Add(time.Hour)),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	exists, err := store.AccessTokenExists(ctx, sqlc.AccessTokenExistsParams{OwnerID: owner, Token: "ABCD2345"})
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInjectFaultFiresOnce(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	boom := errors.New("down")
	store.InjectFault("PublicIDExists", boom)

	_, err := store.PublicIDExists(ctx, "x")
	assert.ErrorIs(t, err, boom)
	_, err = store.PublicIDExists(ctx, "x")
	assert.NoError(t, err)
}

func TestCreateOwnerPublicIDConflicts(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	owner := pgUUID()

	_, err := store.CreateOwnerPublicID(ctx, sqlc.CreateOwnerPublicIDParams{OwnerID: owner, PublicID: "abc"})
	require.NoError(t, err)

	_, err = store.CreateOwnerPublicID(ctx, sqlc.CreateOwnerPublicIDParams{OwnerID: owner, PublicID: "def"})
	assert.True(t, db.IsNoRows(err), "owner conflict does nothing")

	_, err = store.CreateOwnerPublicID(ctx, sqlc.CreateOwnerPublicIDParams{OwnerID: pgUUID(), PublicID: "abc"})
	assert.True(t, db.IsUniqueViolation(err))
}

func TestMessageSeqAndReadMarks(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	now := db.TimeToPg(time.Now())
	conv, err := store.CreateConversation(ctx, sqlc.CreateConversationParams{OwnerID: pgUUID(), Now: now})
	require.NoError(t, err)

	for i, role := range []string{"counterpart", "owner", "counterpart"} {
		next, err := store.NextMessageSeq(ctx, sqlc.NextMessageSeqParams{Now: now, ID: conv.ID})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), next.MessageSeq)
		_, err = store.CreateMessage(ctx, sqlc.CreateMessageParams{
			ConversationID: conv.ID, Seq: next.MessageSeq, SenderRole: role, Body: "hi", Type: "text", CreatedAt: now,
		})
		require.NoError(t, err)
	}

	unread, err := store.CountUnreadForOwner(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	n, err := store.MarkMessagesReadByOwner(ctx, sqlc.MarkMessagesReadByOwnerParams{Now: now, ConversationID: conv.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	unread, err = store.CountUnreadForOwner(ctx, conv.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	msgs, err := store.ListMessagesAfterSeq(ctx, sqlc.ListMessagesAfterSeqParams{ConversationID: conv.ID, AfterSeq: 1, MaxCount: 10})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(2), msgs[0].Seq)
	assert.Equal(t, int64(3), msgs[1].Seq)

	_, err = store.CloseConversation(ctx, conv.ID)
	require.NoError(t, err)
	_, err = store.NextMessageSeq(ctx, sqlc.NextMessageSeqParams{Now: now, ID: conv.ID})
	assert.True(t, db.IsNoRows(err), "closed conversation takes no appends")
}

func TestNextMessageSeqTimestampNeverMovesBack(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	later := time.Now().UTC()
	conv, err := store.CreateConversation(ctx, sqlc.CreateConversationParams{OwnerID: pgUUID(), Now: db.TimeToPg(later)})
	require.NoError(t, err)

	next, err := store.NextMessageSeq(ctx, sqlc.NextMessageSeqParams{Now: db.TimeToPg(later.Add(-time.Minute)), ID: conv.ID})
	require.NoError(t, err)
	assert.True(t, next.LastActivityAt.Time.Equal(later))
}

func TestCreateConversationConflictsDoNothing(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	owner := pgUUID()
	token := pgUUID()
	now := db.TimeToPg(time.Now())
	cp := db.StringToText("cp-1")

	_, err := store.CreateConversation(ctx, sqlc.CreateConversationParams{OwnerID: owner, OriginTokenID: token, CounterpartID: cp, Now: now})
	require.NoError(t, err)

	_, err = store.CreateConversation(ctx, sqlc.CreateConversationParams{OwnerID: owner, OriginTokenID: token, Now: now})
	assert.True(t, db.IsNoRows(err), "same origin token")

	_, err = store.CreateConversation(ctx, sqlc.CreateConversationParams{OwnerID: owner, OriginTokenID: pgUUID(), CounterpartID: cp, Now: now})
	assert.True(t, db.IsNoRows(err), "second open conversation for one counterpart")
}
