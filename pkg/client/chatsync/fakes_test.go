package chatsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"rentmarket/pkg/client/api"
	"rentmarket/pkg/client/realtime"
	"rentmarket/pkg/client/session"
	"rentmarket/pkg/models"
)

type pageCall struct {
	ConversationID string
	Page, Limit    int
}

type fakeAPI struct {
	mu sync.Mutex

	conversations []models.Conversation
	pages         map[string]map[int][]models.Message
	gates         map[string]chan struct{} // conversation -> released before a page is returned
	pageCalls     []pageCall
	readCalls     [][]string
	sendCalls     int
	sendFn        func(convID string, in api.SendMessageInput) (models.Message, error)
	messagesErr   error
	unread        int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		pages: make(map[string]map[int][]models.Message),
		gates: make(map[string]chan struct{}),
	}
}

func (f *fakeAPI) setPage(convID string, page int, msgs []models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pages[convID] == nil {
		f.pages[convID] = make(map[int][]models.Message)
	}
	f.pages[convID][page] = msgs
}

func (f *fakeAPI) gate(convID string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[convID] = ch
	return ch
}

func (f *fakeAPI) Conversations(context.Context) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Conversation(nil), f.conversations...), nil
}

func (f *fakeAPI) Messages(_ context.Context, convID string, page, limit int) (models.MessagePage, error) {
	f.mu.Lock()
	f.pageCalls = append(f.pageCalls, pageCall{convID, page, limit})
	gate := f.gates[convID]
	delete(f.gates, convID)
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messagesErr != nil {
		return models.MessagePage{}, f.messagesErr
	}
	return models.MessagePage{Messages: append([]models.Message(nil), f.pages[convID][page]...), Page: page, Limit: limit}, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, convID string, in api.SendMessageInput) (models.Message, error) {
	f.mu.Lock()
	f.sendCalls++
	fn := f.sendFn
	f.mu.Unlock()
	return fn(convID, in)
}

func (f *fakeAPI) MarkRead(_ context.Context, convID string, ids []string) ([]models.ReadReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls = append(f.readCalls, append([]string(nil), ids...))
	out := make([]models.ReadReceipt, len(ids))
	for i, id := range ids {
		out[i] = models.ReadReceipt{MessageID: id, ConversationID: convID, ReadAt: fixedReadAt}
	}
	return out, nil
}

func (f *fakeAPI) UnreadCount(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread, nil
}

func (f *fakeAPI) reads() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.readCalls...)
}

type sub struct {
	once sync.Once
	fn   func()
}

func (s *sub) Close() { s.once.Do(s.fn) }

type fakeRealtime struct {
	mu        sync.Mutex
	connected bool
	emitted   []string
	next      int
	handlers  map[string]map[int]func(json.RawMessage)
	conn      map[int]func(bool)
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{handlers: make(map[string]map[int]func(json.RawMessage)), conn: make(map[int]func(bool))}
}

func (r *fakeRealtime) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *fakeRealtime) record(event, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return realtime.ErrNotConnected
	}
	r.emitted = append(r.emitted, event+":"+id)
	return nil
}

func (r *fakeRealtime) JoinConversations() error { return r.record(models.EventJoinConversations, "") }
func (r *fakeRealtime) JoinConversation(id string) error { return r.record(models.EventJoinConversation, id) }
func (r *fakeRealtime) Typing(id string) error { return r.record(models.EventTyping, id) }
func (r *fakeRealtime) StopTyping(id string) error { return r.record(models.EventStopTyping, id) }

func (r *fakeRealtime) On(event string, fn func(json.RawMessage)) realtime.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	if r.handlers[event] == nil {
		r.handlers[event] = make(map[int]func(json.RawMessage))
	}
	r.handlers[event][id] = fn
	return &sub{fn: func() {
		r.mu.Lock()
		delete(r.handlers[event], id)
		r.mu.Unlock()
	}}
}

func (r *fakeRealtime) OnConnectivity(fn func(bool)) realtime.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	r.conn[id] = fn
	return &sub{fn: func() {
		r.mu.Lock()
		delete(r.conn, id)
		r.mu.Unlock()
	}}
}

func (r *fakeRealtime) push(t *testing.T, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	r.mu.Lock()
	fns := make([]func(json.RawMessage), 0)
	for _, fn := range r.handlers[event] {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(raw)
	}
}

func (r *fakeRealtime) setConnected(v bool) {
	r.mu.Lock()
	r.connected = v
	fns := make([]func(bool), 0)
	for _, fn := range r.conn {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

func (r *fakeRealtime) emits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.emitted...)
}

func loggedInSession(t *testing.T, userID string) *session.Session {
	t.Helper()
	s := session.New(session.NewMemoryStore())
	require.NoError(t, s.Login("tok", models.User{ID: userID, Name: "Tenant"}))
	return s
}

func msgs(convID, sender string, from, n int) []models.Message {
	out := make([]models.Message, n)
	for i := range out {
		out[i] = models.Message{
			ID:             fmt.Sprintf("%s-m%03d", convID, from+i),
			ConversationID: convID,
			SenderID:       sender,
			Content:        "hi",
			Type:           models.MessageText,
		}
	}
	return out
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		if e.ID != "" {
			out[i] = e.ID
		} else {
			out[i] = e.LocalID
		}
	}
	return out
}
