// Package realtime fans conversation events out to connected clients.
//
// Every room (one per conversation, one per owner) is served by a single
// goroutine that runs join, leave, publish, typing and read operations in
// submission order. A publish persists the message before any member sees
// it, so the broadcast order of a room equals the append order of the store.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dmirchev92/stp/internal/conversation"
)

// Errors returned by the router.
var (
	ErrNotJoined    = errors.New("client has not joined this conversation")
	ErrForbidden    = errors.New("client may not join this room")
	ErrRouterClosed = errors.New("router closed")
)

const (
	DefaultOperationTimeout = 5 * time.Second
	DefaultTypingWindow     = 3 * time.Second

	conversationRoomPrefix = "conversation:"
	ownerRoomPrefix        = "owner:"
)

// Client is one connected participant. Send must not block.
type Client interface {
	ID() string
	// Role is conversation.RoleOwner or conversation.RoleCounterpart.
	Role() string
	// Subject is the owner id for owners and the counterpart id for counterparts.
	Subject() string
	Label() string
	Send(frame OutboundFrame) bool
}

// PublishInput is a message to persist and broadcast.
type PublishInput struct {
	ConversationID string
	SenderRole     string
	SenderLabel    string
	Body           string
	Type           string
	// ClientID and RequestID tag the sender's copy of the broadcast.
	ClientID  string
	RequestID string
}

// Router owns the rooms.
type Router struct {
	log          *slog.Logger
	store        conversation.Messenger
	opTimeout    time.Duration
	typingWindow time.Duration
	now          func() time.Time

	mu          sync.Mutex
	rooms       map[string]*room
	memberships map[string]map[string]struct{}
	closed      bool
	quit        chan struct{}
	wg          sync.WaitGroup
}

type room struct {
	key   string
	inbox chan func(*roomState)
	done  chan struct{}
}

type roomState struct {
	key        string
	ownerID    string
	members    map[string]Client
	lastTyping map[string]typingMark
}

type typingMark struct {
	at     time.Time
	typing bool
}

// NewRouter creates a router persisting through store.
func NewRouter(log *slog.Logger, store conversation.Messenger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		log:          log.With(slog.String("service", "realtime")),
		store:        store,
		opTimeout:    DefaultOperationTimeout,
		typingWindow: DefaultTypingWindow,
		now:          time.Now,
		rooms:        map[string]*room{},
		memberships:  map[string]map[string]struct{}{},
		quit:         make(chan struct{}),
	}
}

// WithOperationTimeout bounds each persisted operation.
func (r *Router) WithOperationTimeout(d time.Duration) *Router {
	if d > 0 {
		r.opTimeout = d
	}
	return r
}

// WithTypingWindow sets the per-sender typing coalescing window.
func (r *Router) WithTypingWindow(d time.Duration) *Router {
	if d > 0 {
		r.typingWindow = d
	}
	return r
}

// WithClock overrides the clock used for typing coalescing.
func (r *Router) WithClock(now func() time.Time) *Router {
	if now != nil {
		r.now = now
	}
	return r
}

func conversationRoom(id string) string { return conversationRoomPrefix + id }
func ownerRoom(id string) string        { return ownerRoomPrefix + id }

// Join adds client to the conversation room and returns its unread count.
// The client receives a joined frame before any later broadcast of the room.
func (r *Router) Join(ctx context.Context, client Client, conversationID string) (int64, error) {
	conversationID = strings.TrimSpace(conversationID)
	conv, err := r.store.Get(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !mayJoin(client, conv) {
		return 0, ErrForbidden
	}
	unread, err := r.store.UnreadCount(ctx, conv.ID, client.Role())
	if err != nil {
		return 0, err
	}
	key := conversationRoom(conv.ID)
	done := make(chan struct{})
	err = r.submit(ctx, key, true, func(st *roomState) {
		defer close(done)
		st.ownerID = conv.OwnerID
		st.members[client.ID()] = client
		r.remember(client.ID(), key)
		client.Send(OutboundFrame{
			Type:           FrameJoined,
			ConversationID: conv.ID,
			Data:           JoinedData{Room: key, UnreadCount: unread},
		})
	})
	if err != nil {
		return 0, err
	}
	if err := wait(ctx, done); err != nil {
		return 0, err
	}
	return unread, nil
}

func mayJoin(client Client, conv conversation.Conversation) bool {
	switch client.Role() {
	case conversation.RoleOwner:
		return client.Subject() == conv.OwnerID
	case conversation.RoleCounterpart:
		return conv.CounterpartID != "" && client.Subject() == conv.CounterpartID
	}
	return false
}

// JoinOwner subscribes an owner client to notifications for all of its conversations.
func (r *Router) JoinOwner(ctx context.Context, client Client, ownerID string) error {
	if client.Role() != conversation.RoleOwner || client.Subject() != ownerID {
		return ErrForbidden
	}
	key := ownerRoom(ownerID)
	done := make(chan struct{})
	err := r.submit(ctx, key, true, func(st *roomState) {
		defer close(done)
		st.ownerID = ownerID
		st.members[client.ID()] = client
		r.remember(client.ID(), key)
		client.Send(OutboundFrame{Type: FrameJoined, Data: JoinedData{Room: key}})
	})
	if err != nil {
		return err
	}
	return wait(ctx, done)
}

// Leave removes client from a conversation room.
func (r *Router) Leave(ctx context.Context, client Client, conversationID string) error {
	key := conversationRoom(strings.TrimSpace(conversationID))
	if !r.isMember(client.ID(), key) {
		return ErrNotJoined
	}
	done := make(chan struct{})
	ok, err := r.submitExisting(ctx, key, func(st *roomState) {
		defer close(done)
		delete(st.members, client.ID())
		delete(st.lastTyping, client.ID())
		r.forget(client.ID(), key)
		client.Send(OutboundFrame{Type: FrameLeft, ConversationID: conversationID})
	})
	if err != nil {
		return err
	}
	if !ok {
		r.forget(client.ID(), key)
		return nil
	}
	return wait(ctx, done)
}

// Detach removes client from every room it joined. Used on disconnect.
func (r *Router) Detach(client Client) {
	r.mu.Lock()
	keys := make([]string, 0, len(r.memberships[client.ID()]))
	for key := range r.memberships[client.ID()] {
		keys = append(keys, key)
	}
	delete(r.memberships, client.ID())
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.opTimeout)
	defer cancel()
	for _, key := range keys {
		_, err := r.submitExisting(ctx, key, func(st *roomState) {
			delete(st.members, client.ID())
			delete(st.lastTyping, client.ID())
		})
		if err != nil && !errors.Is(err, ErrRouterClosed) {
			r.log.Warn("detach failed", slog.String("room", key), slog.String("client_id", client.ID()), slog.Any("error", err))
		}
	}
}

// IsMember reports whether client currently belongs to the conversation room.
func (r *Router) IsMember(client Client, conversationID string) bool {
	return r.isMember(client.ID(), conversationRoom(strings.TrimSpace(conversationID)))
}

type publishResult struct {
	msg conversation.Message
	err error
}

// Publish persists a message and then broadcasts it to the conversation room
// and a notification to the owner room. Persistence runs detached from ctx,
// so a publish already handed to the room completes even if the caller goes away.
// It returns after both rooms have sent their frames.
func (r *Router) Publish(ctx context.Context, in PublishInput) (conversation.Message, error) {
	in.ConversationID = strings.TrimSpace(in.ConversationID)
	if in.ConversationID == "" {
		return conversation.Message{}, conversation.ErrInvalidInput
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opTimeout)
	res := make(chan publishResult, 1)
	err := r.submit(pctx, conversationRoom(in.ConversationID), true, func(st *roomState) {
		defer cancel()
		msg, err := r.store.AppendMessage(pctx, conversation.AppendInput{
			ConversationID: in.ConversationID,
			SenderRole:     in.SenderRole,
			SenderLabel:    in.SenderLabel,
			Body:           in.Body,
			Type:           in.Type,
		})
		if err != nil {
			res <- publishResult{err: err}
			return
		}
		for id, member := range st.members {
			frame := OutboundFrame{Type: FrameMessage, ConversationID: msg.ConversationID, Data: msg}
			if id == in.ClientID {
				frame.RequestID = in.RequestID
			}
			member.Send(frame)
		}
		r.notifyOwner(pctx, st, msg)
		res <- publishResult{msg: msg}
	})
	if err != nil {
		cancel()
		return conversation.Message{}, err
	}
	select {
	case out := <-res:
		return out.msg, out.err
	case <-r.quit:
		return conversation.Message{}, ErrRouterClosed
	}
}

func (r *Router) notifyOwner(ctx context.Context, st *roomState, msg conversation.Message) {
	if st.ownerID == "" {
		conv, err := r.store.Get(ctx, msg.ConversationID)
		if err != nil {
			r.log.Warn("owner lookup for notification failed", slog.String("conversation_id", msg.ConversationID), slog.Any("error", err))
			return
		}
		st.ownerID = conv.OwnerID
	}
	note := Notification{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Seq:            msg.Seq,
		SenderRole:     msg.SenderRole,
		SenderLabel:    msg.SenderLabel,
		Preview:        preview(msg.Body),
		CreatedAt:      msg.CreatedAt,
	}
	done := make(chan struct{})
	delivered, err := r.submitExisting(ctx, ownerRoom(st.ownerID), func(owner *roomState) {
		defer close(done)
		for _, member := range owner.members {
			member.Send(OutboundFrame{Type: FrameNotification, ConversationID: msg.ConversationID, Data: note})
		}
	})
	if err == nil && delivered {
		// Owner rooms never submit to conversation rooms, so waiting here cannot deadlock.
		err = wait(ctx, done)
	}
	if err != nil && !errors.Is(err, ErrRouterClosed) {
		r.log.Warn("owner notification dropped", slog.String("owner_id", st.ownerID), slog.Any("error", err))
	}
}

// Typing relays a typing indicator to the other members of the room.
// A repeat of a client's last state within the typing window is dropped;
// a change of state is always relayed.
func (r *Router) Typing(ctx context.Context, client Client, conversationID string, isTyping bool) error {
	key := conversationRoom(strings.TrimSpace(conversationID))
	if !r.isMember(client.ID(), key) {
		return ErrNotJoined
	}
	_, err := r.submitExisting(ctx, key, func(st *roomState) {
		if _, ok := st.members[client.ID()]; !ok {
			return
		}
		now := r.now()
		if last, ok := st.lastTyping[client.ID()]; ok && last.typing == isTyping && now.Sub(last.at) < r.typingWindow {
			return
		}
		st.lastTyping[client.ID()] = typingMark{at: now, typing: isTyping}
		frame := OutboundFrame{
			Type:           FrameTyping,
			ConversationID: conversationID,
			Data: TypingData{
				SenderRole:  client.Role(),
				SenderLabel: client.Label(),
				IsTyping:    isTyping,
				At:          now.UTC(),
			},
		}
		for id, member := range st.members {
			if id != client.ID() {
				member.Send(frame)
			}
		}
	})
	return err
}

// MarkRead persists the read marks for readerRole and then broadcasts a read frame.
func (r *Router) MarkRead(ctx context.Context, conversationID, readerRole string) (conversation.ReadReceipt, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return conversation.ReadReceipt{}, conversation.ErrInvalidInput
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opTimeout)
	type readResult struct {
		receipt conversation.ReadReceipt
		err     error
	}
	res := make(chan readResult, 1)
	err := r.submit(pctx, conversationRoom(conversationID), true, func(st *roomState) {
		defer cancel()
		receipt, err := r.store.MarkRead(pctx, conversationID, readerRole)
		if err != nil {
			res <- readResult{err: err}
			return
		}
		for _, member := range st.members {
			member.Send(OutboundFrame{Type: FrameRead, ConversationID: conversationID, Data: receipt})
		}
		res <- readResult{receipt: receipt}
	})
	if err != nil {
		cancel()
		return conversation.ReadReceipt{}, err
	}
	select {
	case out := <-res:
		return out.receipt, out.err
	case <-r.quit:
		return conversation.ReadReceipt{}, ErrRouterClosed
	}
}

// Shutdown stops every room and waits for them to exit.
func (r *Router) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.quit)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("router shutdown: %w", ctx.Err())
	}
}

// RoomCount reports the number of live rooms.
func (r *Router) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Router) lookup(key string, create bool) (*room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRouterClosed
	}
	if rm, ok := r.rooms[key]; ok {
		return rm, nil
	}
	if !create {
		return nil, nil
	}
	rm := &room{key: key, inbox: make(chan func(*roomState)), done: make(chan struct{})}
	r.rooms[key] = rm
	r.wg.Add(1)
	go r.run(rm)
	return rm, nil
}

// submit hands op to the room, creating it when absent.
func (r *Router) submit(ctx context.Context, key string, create bool, op func(*roomState)) error {
	_, err := r.deliver(ctx, key, create, op)
	return err
}

// submitExisting hands op to the room only if it is live. It reports whether op was delivered.
func (r *Router) submitExisting(ctx context.Context, key string, op func(*roomState)) (bool, error) {
	return r.deliver(ctx, key, false, op)
}

func (r *Router) deliver(ctx context.Context, key string, create bool, op func(*roomState)) (bool, error) {
	for {
		rm, err := r.lookup(key, create)
		if err != nil {
			return false, err
		}
		if rm == nil {
			return false, nil
		}
		select {
		case rm.inbox <- op:
			return true, nil
		case <-rm.done:
			// The room exited between lookup and handoff; look it up again.
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

func (r *Router) run(rm *room) {
	defer r.wg.Done()
	defer close(rm.done)
	st := &roomState{
		key:        rm.key,
		members:    map[string]Client{},
		lastTyping: map[string]typingMark{},
	}
	for {
		select {
		case op := <-rm.inbox:
			op(st)
			if len(st.members) == 0 {
				r.mu.Lock()
				if r.rooms[rm.key] == rm {
					delete(r.rooms, rm.key)
				}
				r.mu.Unlock()
				return
			}
		case <-r.quit:
			r.mu.Lock()
			if r.rooms[rm.key] == rm {
				delete(r.rooms, rm.key)
			}
			r.mu.Unlock()
			return
		}
	}
}

func (r *Router) remember(clientID, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.memberships[clientID]
	if !ok {
		set = map[string]struct{}{}
		r.memberships[clientID] = set
	}
	set[key] = struct{}{}
}

func (r *Router) forget(clientID, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.memberships[clientID]
	delete(set, key)
	if len(set) == 0 {
		delete(r.memberships, clientID)
	}
}

func (r *Router) isMember(clientID, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.memberships[clientID][key]
	return ok
}

func wait(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
