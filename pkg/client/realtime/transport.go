// Package realtime owns the single shared websocket of a client session.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"rentmarket/pkg/client/session"
	"rentmarket/pkg/models"
)

var ErrNotConnected = errors.New("realtime connection is not established")

type Options struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Subscription is returned by On and OnConnectivity; Close stops delivery.
type Subscription interface {
	Close()
}

type handle struct {
	once  sync.Once
	close func()
}

func (h *handle) Close() { h.once.Do(h.close) }

// link is one connection lifetime for a (user, token) pair. A link that is
// no longer current never touches shared state.
type link struct {
	key    string
	token  string
	cancel context.CancelFunc

	mu   sync.Mutex
	conn Conn
}

func (l *link) setConn(c Conn) {
	l.mu.Lock()
	l.conn = c
	l.mu.Unlock()
}

func (l *link) shutdown() {
	l.cancel()
	l.mu.Lock()
	if l.conn != nil {
		l.conn.Close()
	}
	l.mu.Unlock()
}

type Transport struct {
	url    string
	dialer Dialer
	sess   *session.Session
	opts   Options
	log    interface {
		Printf(string, ...any)
	}

	mu        sync.Mutex
	current   *link
	connected bool
	joinedOn  *link // link that already sent join-conversations
	sessSub   session.Subscription

	writeMu sync.Mutex

	subMu    sync.Mutex
	nextID   int
	handlers map[string]map[int]func(json.RawMessage)
	connSubs map[int]func(bool)
}

func New(wsURL string, dialer Dialer, sess *session.Session, opts Options) *Transport {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}
	return &Transport{
		url:      wsURL,
		dialer:   dialer,
		sess:     sess,
		opts:     opts,
		log:      log.New(log.Writer(), "[realtime] ", log.LstdFlags),
		handlers: make(map[string]map[int]func(json.RawMessage)),
		connSubs: make(map[int]func(bool)),
	}
}

// Start follows the session: it connects while a user is logged in and
// reconnects whenever the user or token changes.
func (t *Transport) Start() {
	t.mu.Lock()
	if t.sessSub != nil {
		t.mu.Unlock()
		return
	}
	t.sessSub = t.sess.Subscribe(t.reconcile)
	t.mu.Unlock()

	t.reconcile(t.sess.Snapshot())
}

// Close tears down the connection and stops following the session.
func (t *Transport) Close() {
	t.mu.Lock()
	sub := t.sessSub
	t.sessSub = nil
	t.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
	t.reconcile(session.Snapshot{})
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) reconcile(snap session.Snapshot) {
	key := ""
	if snap.Authenticated() {
		key = snap.User.ID + "\x00" + snap.Token
	}

	t.mu.Lock()
	if t.current != nil && t.current.key == key {
		t.mu.Unlock()
		return
	}
	old := t.current
	t.current = nil
	wasConnected := t.connected
	t.connected = false
	t.joinedOn = nil

	var start func()
	if key != "" {
		ctx, cancel := context.WithCancel(context.Background())
		next := &link{key: key, token: snap.Token, cancel: cancel}
		t.current = next
		start = func() { go t.run(ctx, next) }
	}
	t.mu.Unlock()

	// The old connection is gone before the new one is dialed.
	if old != nil {
		old.shutdown()
	}
	if wasConnected {
		t.notifyConnectivity(false)
	}
	if start != nil {
		start()
	}
}

func (t *Transport) isCurrent(l *link) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current == l
}

func (t *Transport) run(ctx context.Context, l *link) {
	backoff := t.opts.MinBackoff
	for {
		conn, err := t.dialer.Dial(ctx, t.url, l.token)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Printf("connect_error: %v", err)
		} else {
			l.setConn(conn)
			if !t.markConnected(l) {
				conn.Close()
				return
			}
			backoff = t.opts.MinBackoff
			t.readLoop(l, conn)
			conn.Close()
			if !t.markDisconnected(l) {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > t.opts.MaxBackoff {
			backoff = t.opts.MaxBackoff
		}
	}
}

func (t *Transport) markConnected(l *link) bool {
	t.mu.Lock()
	if t.current != l {
		t.mu.Unlock()
		return false
	}
	t.connected = true
	t.mu.Unlock()
	t.notifyConnectivity(true)
	return true
}

// markDisconnected resets the join latch so the next connection joins again.
func (t *Transport) markDisconnected(l *link) bool {
	t.mu.Lock()
	if t.current != l {
		t.mu.Unlock()
		return false
	}
	t.connected = false
	t.joinedOn = nil
	t.mu.Unlock()
	t.notifyConnectivity(false)
	return true
}

func (t *Transport) readLoop(l *link, conn Conn) {
	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if t.isCurrent(l) {
				t.log.Printf("disconnect: %v", err)
			}
			return
		}
		if !t.isCurrent(l) {
			return
		}
		t.dispatch(env)
	}
}

func (t *Transport) emit(event string, data any) error {
	t.mu.Lock()
	l := t.current
	t.mu.Unlock()
	return t.emitOn(l, event, data)
}

// emitOn writes to l only while it is still the current, connected link.
func (t *Transport) emitOn(l *link, event string, data any) error {
	env, err := models.NewEnvelope(event, data)
	if err != nil {
		return err
	}

	t.mu.Lock()
	ok := l != nil && t.current == l && t.connected
	t.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}

	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteJSON(env)
}

// JoinConversations asks the server to join every room of the user. It is
// sent at most once per connection.
func (t *Transport) JoinConversations() error {
	t.mu.Lock()
	l := t.current
	if l != nil && t.joinedOn == l {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.emitOn(l, models.EventJoinConversations, nil); err != nil {
		return err
	}

	t.mu.Lock()
	if t.current == l {
		t.joinedOn = l
	}
	t.mu.Unlock()
	return nil
}

func (t *Transport) JoinConversation(id string) error {
	return t.emit(models.EventJoinConversation, models.ConversationRef{ConversationID: id})
}

func (t *Transport) SendMessage(p models.SendMessagePayload) error {
	return t.emit(models.EventSendMessage, p)
}

func (t *Transport) Typing(conversationID string) error {
	return t.emit(models.EventTyping, models.ConversationRef{ConversationID: conversationID})
}

func (t *Transport) StopTyping(conversationID string) error {
	return t.emit(models.EventStopTyping, models.ConversationRef{ConversationID: conversationID})
}

// On registers fn for a server event. Handlers run on the read goroutine in
// registration order and must not block.
func (t *Transport) On(event string, fn func(json.RawMessage)) Subscription {
	t.subMu.Lock()
	id := t.nextID
	t.nextID++
	if t.handlers[event] == nil {
		t.handlers[event] = make(map[int]func(json.RawMessage))
	}
	t.handlers[event][id] = fn
	t.subMu.Unlock()

	return &handle{close: func() {
		t.subMu.Lock()
		delete(t.handlers[event], id)
		t.subMu.Unlock()
	}}
}

// OnConnectivity registers fn for connect and disconnect transitions.
func (t *Transport) OnConnectivity(fn func(connected bool)) Subscription {
	t.subMu.Lock()
	id := t.nextID
	t.nextID++
	t.connSubs[id] = fn
	t.subMu.Unlock()

	return &handle{close: func() {
		t.subMu.Lock()
		delete(t.connSubs, id)
		t.subMu.Unlock()
	}}
}

func ordered[F any](m map[int]F) []F {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]F, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

func (t *Transport) dispatch(env models.Envelope) {
	t.subMu.Lock()
	fns := ordered(t.handlers[env.Event])
	t.subMu.Unlock()

	for _, fn := range fns {
		fn(env.Data)
	}
}

func (t *Transport) notifyConnectivity(connected bool) {
	t.subMu.Lock()
	fns := ordered(t.connSubs)
	t.subMu.Unlock()

	for _, fn := range fns {
		fn(connected)
	}
}
