// Package memdb is an in-memory implementation of the sqlc query surface.
//
// It backs storage.driver = "memory" and the unit tests of the domain
// packages. Constraint violations surface as the same errors pgx would
// return (pgx.ErrNoRows, *pgconn.PgError with SQLSTATE 23505) so callers
// cannot tell the backends apart.
package memdb

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dmirchev92/stp/internal/db/sqlc"
)

type key = [16]byte

type state struct {
	identities    map[key]sqlc.OwnerPublicIdentity
	tokens        map[key]sqlc.AccessToken
	conversations map[key]sqlc.Conversation
	messages      map[key]sqlc.Message
	faults        map[string]error
}

func newState() *state {
	return &state{
		identities:    map[key]sqlc.OwnerPublicIdentity{},
		tokens:        map[key]sqlc.AccessToken{},
		conversations: map[key]sqlc.Conversation{},
		messages:      map[key]sqlc.Message{},
		faults:        map[string]error{},
	}
}

func (st *state) clone() *state {
	c := &state{
		identities:    make(map[key]sqlc.OwnerPublicIdentity, len(st.identities)),
		tokens:        make(map[key]sqlc.AccessToken, len(st.tokens)),
		conversations: make(map[key]sqlc.Conversation, len(st.conversations)),
		messages:      make(map[key]sqlc.Message, len(st.messages)),
		faults:        st.faults,
	}
	for k, v := range st.identities {
		c.identities[k] = v
	}
	for k, v := range st.tokens {
		c.tokens[k] = v
	}
	for k, v := range st.conversations {
		c.conversations[k] = v
	}
	for k, v := range st.messages {
		c.messages[k] = v
	}
	return c
}

// Store holds all rows behind a single mutex. A transaction keeps the
// mutex for its whole duration and restores a snapshot when fn fails.
type Store struct {
	mu   *sync.Mutex
	st   **state
	inTx bool
}

var _ sqlc.Querier = (*Store)(nil)

func New() *Store {
	st := newState()
	return &Store{mu: &sync.Mutex{}, st: &st}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) data() *state { return *s.st }

// InTx runs fn with exclusive access to the store.
func (s *Store) InTx(ctx context.Context, fn func(q sqlc.Querier) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data().clone()
	tx := &Store{mu: s.mu, st: s.st, inTx: true}
	if err := fn(tx); err != nil {
		*s.st = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		*s.st = snapshot
		return err
	}
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// InjectFault makes the next call of the named query method return err.
func (s *Store) InjectFault(method string, err error) {
	unlock := s.lock()
	defer unlock()
	s.data().faults[method] = err
}

func (s *Store) check(ctx context.Context, method string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	faults := s.data().faults
	if err, ok := faults[method]; ok {
		delete(faults, method)
		return err
	}
	return nil
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint, Message: "duplicate key value violates unique constraint \"" + constraint + "\""}
}

func newID() pgtype.UUID {
	return pgtype.UUID{Bytes: uuid.New(), Valid: true}
}

func nowTS() pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true}
}

func after(a, b pgtype.Timestamptz) bool {
	return a.Valid && b.Valid && a.Time.After(b.Time)
}

func before(a, b pgtype.Timestamptz) bool {
	return a.Valid && b.Valid && a.Time.Before(b.Time)
}

// Owner public identities.

func (s *Store) GetOwnerPublicID(ctx context.Context, ownerID pgtype.UUID) (sqlc.OwnerPublicIdentity, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "GetOwnerPublicID"); err != nil {
		return sqlc.OwnerPublicIdentity{}, err
	}
	row, ok := s.data().identities[ownerID.Bytes]
	if !ok {
		return sqlc.OwnerPublicIdentity{}, pgx.ErrNoRows
	}
	return row, nil
}

func (s *Store) GetOwnerByPublicID(ctx context.Context, publicID string) (sqlc.OwnerPublicIdentity, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "GetOwnerByPublicID"); err != nil {
		return sqlc.OwnerPublicIdentity{}, err
	}
	for _, row := range s.data().identities {
		if row.PublicID == publicID {
			return row, nil
		}
	}
	return sqlc.OwnerPublicIdentity{}, pgx.ErrNoRows
}

func (s *Store) PublicIDExists(ctx context.Context, publicID string) (bool, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "PublicIDExists"); err != nil {
		return false, err
	}
	for _, row := range s.data().identities {
		if row.PublicID == publicID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateOwnerPublicID(ctx context.Context, arg sqlc.CreateOwnerPublicIDParams) (sqlc.OwnerPublicIdentity, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "CreateOwnerPublicID"); err != nil {
		return sqlc.OwnerPublicIdentity{}, err
	}
	d := s.data()
	if _, ok := d.identities[arg.OwnerID.Bytes]; ok {
		return sqlc.OwnerPublicIdentity{}, pgx.ErrNoRows
	}
	for _, row := range d.identities {
		if row.PublicID == arg.PublicID {
			return sqlc.OwnerPublicIdentity{}, uniqueViolation("owner_public_identities_public_id_unique")
		}
	}
	row := sqlc.OwnerPublicIdentity{OwnerID: arg.OwnerID, PublicID: arg.PublicID, CreatedAt: nowTS()}
	d.identities[arg.OwnerID.Bytes] = row
	return row, nil
}

// Access tokens.

func (s *Store) CreateAccessToken(ctx context.Context, arg sqlc.CreateAccessTokenParams) (sqlc.AccessToken, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "CreateAccessToken"); err != nil {
		return sqlc.AccessToken{}, err
	}
	d := s.data()
	for _, row := range d.tokens {
		if row.OwnerID == arg.OwnerID && row.Token == arg.Token {
			return sqlc.AccessToken{}, pgx.ErrNoRows
		}
	}
	if !after(arg.ExpiresAt, arg.IssuedAt) {
		return sqlc.AccessToken{}, &pgconn.PgError{Code: "23514", ConstraintName: "access_tokens_window_check"}
	}
	row := sqlc.AccessToken{
		ID:        newID(),
		OwnerID:   arg.OwnerID,
		Token:     arg.Token,
		IssuedAt:  arg.IssuedAt,
		ExpiresAt: arg.ExpiresAt,
	}
	d.tokens[row.ID.Bytes] = row
	return row, nil
}

func (s *Store) GetLatestUsableAccessToken(ctx context.Context, arg sqlc.GetLatestUsableAccessTokenParams) (sqlc.AccessToken, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "GetLatestUsableAccessToken"); err != nil {
		return sqlc.AccessToken{}, err
	}
	var (
		best  sqlc.AccessToken
		found bool
	)
	for _, row := range s.data().tokens {
		if row.OwnerID != arg.OwnerID || row.ConsumedAt.Valid || !after(row.ExpiresAt, arg.Now) {
			continue
		}
		if !found || after(row.IssuedAt, best.IssuedAt) ||
			(row.IssuedAt.Time.Equal(best.IssuedAt.Time) && uuidGreater(row.ID, best.ID)) {
			best, found = row, true
		}
	}
	if !found {
		return sqlc.AccessToken{}, pgx.ErrNoRows
	}
	return best, nil
}

func (s *Store) GetAccessTokenByValue(ctx context.Context, arg sqlc.GetAccessTokenByValueParams) (sqlc.AccessToken, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "GetAccessTokenByValue"); err != nil {
		return sqlc.AccessToken{}, err
	}
	for _, row := range s.data().tokens {
		if row.OwnerID == arg.OwnerID && row.Token == arg.Token {
			return row, nil
		}
	}
	return sqlc.AccessToken{}, pgx.ErrNoRows
}

func (s *Store) AccessTokenExists(ctx context.Context, arg sqlc.AccessTokenExistsParams) (bool, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "AccessTokenExists"); err != nil {
		return false, err
	}
	for _, row := range s.data().tokens {
		if row.OwnerID == arg.OwnerID && row.Token == arg.Token {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ConsumeAccessToken(ctx context.Context, arg sqlc.ConsumeAccessTokenParams) (sqlc.AccessToken, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "ConsumeAccessToken"); err != nil {
		return sqlc.AccessToken{}, err
	}
	d := s.data()
	for id, row := range d.tokens {
		if row.OwnerID != arg.OwnerID || row.Token != arg.Token {
			continue
		}
		if row.ConsumedAt.Valid || !after(row.ExpiresAt, arg.Now) {
			return sqlc.AccessToken{}, pgx.ErrNoRows
		}
		row.ConsumedAt = arg.Now
		d.tokens[id] = row
		return row, nil
	}
	return sqlc.AccessToken{}, pgx.ErrNoRows
}

func (s *Store) SetAccessTokenConversation(ctx context.Context, arg sqlc.SetAccessTokenConversationParams) error {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "SetAccessTokenConversation"); err != nil {
		return err
	}
	d := s.data()
	row, ok := d.tokens[arg.ID.Bytes]
	if !ok {
		return nil
	}
	row.ConversationID = arg.ConversationID
	d.tokens[arg.ID.Bytes] = row
	return nil
}

func (s *Store) DeleteExpiredAccessTokens(ctx context.Context, cutoff pgtype.Timestamptz) (int64, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "DeleteExpiredAccessTokens"); err != nil {
		return 0, err
	}
	d := s.data()
	var n int64
	for id, row := range d.tokens {
		if !before(row.ExpiresAt, cutoff) {
			continue
		}
		delete(d.tokens, id)
		n++
		// origin_token_id ON DELETE SET NULL
		for cid, conv := range d.conversations {
			if conv.OriginTokenID.Valid && conv.OriginTokenID.Bytes == id {
				conv.OriginTokenID = pgtype.UUID{}
				d.conversations[cid] = conv
			}
		}
	}
	return n, nil
}

// Conversations.

func (s *Store) CreateConversation(ctx context.Context, arg sqlc.CreateConversationParams) (sqlc.Conversation, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "CreateConversation"); err != nil {
		return sqlc.Conversation{}, err
	}
	d := s.data()
	for _, conv := range d.conversations {
		if arg.OriginTokenID.Valid && conv.OriginTokenID == arg.OriginTokenID {
			return sqlc.Conversation{}, pgx.ErrNoRows
		}
	}
	if arg.CounterpartID.Valid {
		for _, conv := range d.conversations {
			if conv.OwnerID == arg.OwnerID && conv.Status == "open" && conv.CounterpartID == arg.CounterpartID {
				return sqlc.Conversation{}, pgx.ErrNoRows
			}
		}
	}
	row := sqlc.Conversation{
		ID:             newID(),
		OwnerID:        arg.OwnerID,
		CounterpartID:  arg.CounterpartID,
		OriginTokenID:  arg.OriginTokenID,
		Status:         "open",
		CreatedAt:      arg.Now,
		LastActivityAt: arg.Now,
	}
	d.conversations[row.ID.Bytes] = row
	return row, nil
}

func (s *Store) GetConversation(ctx context.Context, id pgtype.UUID) (sqlc.Conversation, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "GetConversation"); err != nil {
		return sqlc.Conversation{}, err
	}
	row, ok := s.data().conversations[id.Bytes]
	if !ok {
		return sqlc.Conversation{}, pgx.ErrNoRows
	}
	return row, nil
}

func (s *Store) GetConversationByOriginToken(ctx context.Context, originTokenID pgtype.UUID) (sqlc.Conversation, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "GetConversationByOriginToken"); err != nil {
		return sqlc.Conversation{}, err
	}
	for _, row := range s.data().conversations {
		if row.OriginTokenID.Valid && row.OriginTokenID == originTokenID {
			return row, nil
		}
	}
	return sqlc.Conversation{}, pgx.ErrNoRows
}

func (s *Store) GetOpenConversationByCounterpart(ctx context.Context, arg sqlc.GetOpenConversationByCounterpartParams) (sqlc.Conversation, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "GetOpenConversationByCounterpart"); err != nil {
		return sqlc.Conversation{}, err
	}
	for _, row := range s.data().conversations {
		if row.OwnerID == arg.OwnerID && row.Status == "open" && arg.CounterpartID.Valid && row.CounterpartID == arg.CounterpartID {
			return row, nil
		}
	}
	return sqlc.Conversation{}, pgx.ErrNoRows
}

func (s *Store) ListConversationsByOwner(ctx context.Context, arg sqlc.ListConversationsByOwnerParams) ([]sqlc.Conversation, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "ListConversationsByOwner"); err != nil {
		return nil, err
	}
	var items []sqlc.Conversation
	for _, row := range s.data().conversations {
		if row.OwnerID == arg.OwnerID {
			items = append(items, row)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.LastActivityAt.Time.Equal(b.LastActivityAt.Time) {
			return a.LastActivityAt.Time.After(b.LastActivityAt.Time)
		}
		return uuidGreater(a.ID, b.ID)
	})
	if arg.MaxCount >= 0 && len(items) > int(arg.MaxCount) {
		items = items[:arg.MaxCount]
	}
	return items, nil
}

func (s *Store) CloseConversation(ctx context.Context, id pgtype.UUID) (sqlc.Conversation, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "CloseConversation"); err != nil {
		return sqlc.Conversation{}, err
	}
	d := s.data()
	row, ok := d.conversations[id.Bytes]
	if !ok {
		return sqlc.Conversation{}, pgx.ErrNoRows
	}
	row.Status = "closed"
	d.conversations[id.Bytes] = row
	return row, nil
}

func (s *Store) NextMessageSeq(ctx context.Context, arg sqlc.NextMessageSeqParams) (sqlc.NextMessageSeqRow, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "NextMessageSeq"); err != nil {
		return sqlc.NextMessageSeqRow{}, err
	}
	d := s.data()
	row, ok := d.conversations[arg.ID.Bytes]
	if !ok || row.Status != "open" {
		return sqlc.NextMessageSeqRow{}, pgx.ErrNoRows
	}
	row.MessageSeq++
	if after(arg.Now, row.LastActivityAt) {
		row.LastActivityAt = arg.Now
	}
	d.conversations[arg.ID.Bytes] = row
	return sqlc.NextMessageSeqRow{MessageSeq: row.MessageSeq, LastActivityAt: row.LastActivityAt}, nil
}

// Messages.

func (s *Store) CreateMessage(ctx context.Context, arg sqlc.CreateMessageParams) (sqlc.Message, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "CreateMessage"); err != nil {
		return sqlc.Message{}, err
	}
	d := s.data()
	if _, ok := d.conversations[arg.ConversationID.Bytes]; !ok {
		return sqlc.Message{}, &pgconn.PgError{Code: "23503", ConstraintName: "messages_conversation_id_fkey"}
	}
	for _, m := range d.messages {
		if m.ConversationID == arg.ConversationID && m.Seq == arg.Seq {
			return sqlc.Message{}, uniqueViolation("messages_conversation_seq_unique")
		}
	}
	row := sqlc.Message{
		ID:             newID(),
		ConversationID: arg.ConversationID,
		Seq:            arg.Seq,
		SenderRole:     arg.SenderRole,
		SenderLabel:    arg.SenderLabel,
		Body:           arg.Body,
		Type:           arg.Type,
		CreatedAt:      arg.CreatedAt,
	}
	d.messages[row.ID.Bytes] = row
	return row, nil
}

func (s *Store) GetMessage(ctx context.Context, id pgtype.UUID) (sqlc.Message, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "GetMessage"); err != nil {
		return sqlc.Message{}, err
	}
	row, ok := s.data().messages[id.Bytes]
	if !ok {
		return sqlc.Message{}, pgx.ErrNoRows
	}
	return row, nil
}

func (s *Store) ListMessagesAfterSeq(ctx context.Context, arg sqlc.ListMessagesAfterSeqParams) ([]sqlc.Message, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "ListMessagesAfterSeq"); err != nil {
		return nil, err
	}
	var items []sqlc.Message
	for _, m := range s.data().messages {
		if m.ConversationID == arg.ConversationID && m.Seq > arg.AfterSeq {
			items = append(items, m)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Seq < items[j].Seq })
	if arg.MaxCount >= 0 && len(items) > int(arg.MaxCount) {
		items = items[:arg.MaxCount]
	}
	return items, nil
}

func (s *Store) MarkMessagesReadByOwner(ctx context.Context, arg sqlc.MarkMessagesReadByOwnerParams) (int64, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "MarkMessagesReadByOwner"); err != nil {
		return 0, err
	}
	return s.markRead(arg.ConversationID, "owner", arg.Now), nil
}

func (s *Store) MarkMessagesReadByCounterpart(ctx context.Context, arg sqlc.MarkMessagesReadByCounterpartParams) (int64, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "MarkMessagesReadByCounterpart"); err != nil {
		return 0, err
	}
	return s.markRead(arg.ConversationID, "counterpart", arg.Now), nil
}

func (s *Store) markRead(conversationID pgtype.UUID, role string, now pgtype.Timestamptz) int64 {
	d := s.data()
	var n int64
	for id, m := range d.messages {
		if m.ConversationID != conversationID || m.SenderRole == role {
			continue
		}
		mark := &m.OwnerReadAt
		if role == "counterpart" {
			mark = &m.CounterpartReadAt
		}
		if mark.Valid {
			continue
		}
		*mark = now
		d.messages[id] = m
		n++
	}
	return n
}

func (s *Store) CountUnreadForOwner(ctx context.Context, conversationID pgtype.UUID) (int64, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "CountUnreadForOwner"); err != nil {
		return 0, err
	}
	return s.countUnread(conversationID, "owner"), nil
}

func (s *Store) CountUnreadForCounterpart(ctx context.Context, conversationID pgtype.UUID) (int64, error) {
	unlock := s.lock()
	defer unlock()
	if err := s.check(ctx, "CountUnreadForCounterpart"); err != nil {
		return 0, err
	}
	return s.countUnread(conversationID, "counterpart"), nil
}

func (s *Store) countUnread(conversationID pgtype.UUID, role string) int64 {
	var n int64
	for _, m := range s.data().messages {
		if m.ConversationID != conversationID || m.SenderRole == role {
			continue
		}
		mark := m.OwnerReadAt
		if role == "counterpart" {
			mark = m.CounterpartReadAt
		}
		if !mark.Valid {
			n++
		}
	}
	return n
}

func uuidGreater(a, b pgtype.UUID) bool {
	for i := range a.Bytes {
		if a.Bytes[i] != b.Bytes[i] {
			return a.Bytes[i] > b.Bytes[i]
		}
	}
	return false
}
