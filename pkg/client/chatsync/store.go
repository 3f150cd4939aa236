// Package chatsync keeps a client's view of conversations and the active
// message list consistent across REST pages, realtime pushes and local sends.
package chatsync

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rentmarket/pkg/client/api"
	"rentmarket/pkg/client/realtime"
	"rentmarket/pkg/client/session"
	"rentmarket/pkg/models"
)

var (
	ErrEmptyMessage = errors.New("message content cannot be empty")
	ErrNoActive     = errors.New("no conversation is open")
)

const (
	opLoadConversations = "conversations"
	opLoadMessages      = "messages"
	opSend              = "send"
	opMarkRead          = "read"
)

type API interface {
	Conversations(ctx context.Context) ([]models.Conversation, error)
	Messages(ctx context.Context, conversationID string, page, limit int) (models.MessagePage, error)
	SendMessage(ctx context.Context, conversationID string, in api.SendMessageInput) (models.Message, error)
	MarkRead(ctx context.Context, conversationID string, messageIDs []string) ([]models.ReadReceipt, error)
}

type Realtime interface {
	Connected() bool
	JoinConversations() error
	JoinConversation(id string) error
	Typing(conversationID string) error
	StopTyping(conversationID string) error
	On(event string, fn func(json.RawMessage)) realtime.Subscription
	OnConnectivity(fn func(connected bool)) realtime.Subscription
}

type Auth interface {
	Snapshot() session.Snapshot
	Subscribe(fn func(session.Snapshot)) session.Subscription
}

// ReadObserver is told how many messages the current user just read.
type ReadObserver interface {
	MessagesRead(n int)
}

type Options struct {
	PageSize       int
	PollInterval   time.Duration
	TypingDebounce time.Duration
	Unread         ReadObserver
}

// State is a copy of everything a view renders.
type State struct {
	Conversations []models.Conversation
	ActiveID      string
	Messages      []Entry
	Page          int
	HasMore       bool
	Loading       bool
	Typing        []models.TypingUser
	Error         string
	Connected     bool
	Polling       bool
}

type Store struct {
	api  API
	rt   Realtime
	auth Auth
	opts Options
	log  interface {
		Printf(string, ...any)
	}

	mu            sync.Mutex
	conversations []models.Conversation
	activeID      string
	gen           uint64
	messages      []Entry
	page          int
	hasMore       bool
	loading       bool
	typing        []models.TypingUser
	readRequested map[string]struct{}
	errMsg        string
	errOp         string
	connected     bool

	poll        *poller
	typingTimer *time.Timer

	subs    []interface{ Close() }
	changed chan struct{}
}

func New(client API, rt Realtime, auth Auth, opts Options) *Store {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.TypingDebounce <= 0 {
		opts.TypingDebounce = time.Second
	}
	return &Store{
		api:           client,
		rt:            rt,
		auth:          auth,
		opts:          opts,
		log:           log.New(log.Writer(), "[chatsync] ", log.LstdFlags),
		readRequested: make(map[string]struct{}),
		changed:       make(chan struct{}, 1),
	}
}

// Start subscribes to realtime events, connectivity and the session.
func (s *Store) Start() {
	s.subs = append(s.subs,
		s.rt.On(models.EventConversationsLoaded, s.onConversationsLoaded),
		s.rt.On(models.EventNewMessage, s.onNewMessage),
		s.rt.On(models.EventMessageRead, s.onMessageRead),
		s.rt.On(models.EventUserTyping, s.onUserTyping),
		s.rt.On(models.EventUserStopTyping, s.onUserStopTyping),
		s.rt.OnConnectivity(s.onConnectivity),
		s.auth.Subscribe(func(session.Snapshot) { s.evaluatePolling() }),
	)

	if s.rt.Connected() {
		s.onConnectivity(true)
		return
	}
	s.evaluatePolling()
}

// Close disposes subscriptions in reverse order and stops timers.
func (s *Store) Close() {
	for i := len(s.subs) - 1; i >= 0; i-- {
		s.subs[i].Close()
	}
	s.subs = nil

	s.mu.Lock()
	p := s.poll
	s.poll = nil
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	s.mu.Unlock()
	if p != nil {
		p.stop()
	}
}

// Changed fires after any state change. Notifications coalesce.
func (s *Store) Changed() <-chan struct{} {
	return s.changed
}

func (s *Store) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		Conversations: append([]models.Conversation(nil), s.conversations...),
		ActiveID:      s.activeID,
		Messages:      append([]Entry(nil), s.messages...),
		Page:          s.page,
		HasMore:       s.hasMore,
		Loading:       s.loading,
		Typing:        append([]models.TypingUser(nil), s.typing...),
		Error:         s.errMsg,
		Connected:     s.connected,
		Polling:       s.poll != nil,
	}
}

func (s *Store) me() string {
	if u := s.auth.Snapshot().User; u != nil {
		return u.ID
	}
	return ""
}

// setErrorLocked overwrites any earlier error.
func (s *Store) setErrorLocked(op string, err error, fallback string) {
	s.errOp = op
	s.errMsg = api.ServerMessage(err, fallback)
}

// clearErrorLocked drops the error when it came from the same kind of operation.
func (s *Store) clearErrorLocked(op string) {
	if s.errOp == op {
		s.errOp = ""
		s.errMsg = ""
	}
}

func (s *Store) ClearError() {
	s.mu.Lock()
	s.errOp, s.errMsg = "", ""
	s.mu.Unlock()
	s.notify()
}

func (s *Store) LoadConversations(ctx context.Context) error {
	convs, err := s.api.Conversations(ctx)

	s.mu.Lock()
	if err != nil {
		s.setErrorLocked(opLoadConversations, err, "Failed to load conversations")
	} else {
		s.conversations = convs
		s.clearErrorLocked(opLoadConversations)
	}
	s.mu.Unlock()
	s.notify()
	return err
}

// Open makes id the active conversation and loads its newest page. Anything
// shown for a previous conversation is cleared first.
func (s *Store) Open(ctx context.Context, id string) error {
	s.mu.Lock()
	s.resetActiveLocked()
	s.activeID = id
	gen := s.gen
	s.mu.Unlock()

	s.emit(s.rt.JoinConversation(id))
	s.notify()

	return s.load(ctx, gen, id, 1)
}

// Leave clears the active conversation and its typing set. The connection
// stays in the conversation's room so the list keeps receiving its messages.
func (s *Store) Leave() {
	s.mu.Lock()
	s.resetActiveLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *Store) resetActiveLocked() {
	s.gen++
	s.activeID = ""
	s.messages = nil
	s.page = 0
	s.hasMore = false
	s.loading = false
	s.typing = nil
	s.readRequested = make(map[string]struct{})
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
}

// LoadMore prepends the next older page when one exists.
func (s *Store) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	id, gen, next, more, busy := s.activeID, s.gen, s.page+1, s.hasMore, s.loading
	s.mu.Unlock()

	if id == "" {
		return ErrNoActive
	}
	if !more || busy {
		return nil
	}
	return s.load(ctx, gen, id, next)
}

func (s *Store) load(ctx context.Context, gen uint64, id string, page int) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()
	s.notify()

	result, err := s.api.Messages(ctx, id, page, s.opts.PageSize)

	s.mu.Lock()
	if s.gen != gen {
		// The user navigated away while this page was in flight.
		s.mu.Unlock()
		return nil
	}
	s.loading = false
	if err != nil {
		s.setErrorLocked(opLoadMessages, err, "Failed to load messages")
		s.mu.Unlock()
		s.notify()
		return err
	}
	s.clearErrorLocked(opLoadMessages)
	if page == 1 {
		s.messages = replaceWithFirstPage(s.messages, result.Messages)
	} else {
		s.messages = prependUnique(s.messages, result.Messages)
	}
	s.page = page
	s.hasMore = len(result.Messages) == s.opts.PageSize
	unread := s.unreadFromOthersLocked(result.Messages)
	s.mu.Unlock()
	s.notify()

	s.markRead(ctx, gen, id, unread)
	return nil
}

// unreadFromOthersLocked picks ids that need a read receipt and reserves
// them so no later load asks again.
func (s *Store) unreadFromOthersLocked(msgs []models.Message) []string {
	me := s.me()
	ids := make([]string, 0)
	for _, m := range msgs {
		if m.SenderID == me || m.IsRead {
			continue
		}
		if _, done := s.readRequested[m.ID]; done {
			continue
		}
		s.readRequested[m.ID] = struct{}{}
		ids = append(ids, m.ID)
	}
	return ids
}

// markRead sends one batched request for ids.
func (s *Store) markRead(ctx context.Context, gen uint64, id string, ids []string) {
	if len(ids) == 0 {
		return
	}
	receipts, err := s.api.MarkRead(ctx, id, ids)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	if err != nil {
		// Allow a later load to retry these.
		for _, mid := range ids {
			delete(s.readRequested, mid)
		}
		s.setErrorLocked(opMarkRead, err, "Failed to mark messages as read")
		s.mu.Unlock()
		s.notify()
		return
	}
	s.clearErrorLocked(opMarkRead)
	for _, rr := range receipts {
		applyReceipt(s.messages, rr)
	}
	s.adjustUnreadLocked(id, len(receipts))
	s.mu.Unlock()
	s.notify()

	if s.opts.Unread != nil && len(receipts) > 0 {
		s.opts.Unread.MessagesRead(len(receipts))
	}
}

func (s *Store) adjustUnreadLocked(conversationID string, read int) {
	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			s.conversations[i].UnreadCount -= read
			if s.conversations[i].UnreadCount < 0 {
				s.conversations[i].UnreadCount = 0
			}
			return
		}
	}
}

// Send appends an optimistic entry and swaps it for the server copy once
// confirmed. A failed send stays in the list marked Failed.
func (s *Store) Send(ctx context.Context, content string, replyToID *string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		s.mu.Lock()
		s.setErrorLocked(opSend, ErrEmptyMessage, ErrEmptyMessage.Error())
		s.mu.Unlock()
		s.notify()
		return ErrEmptyMessage
	}

	s.mu.Lock()
	id, gen := s.activeID, s.gen
	if id == "" {
		s.mu.Unlock()
		return ErrNoActive
	}
	localID := "local-" + uuid.NewString()
	now := time.Now().UTC()
	s.messages = append(s.messages, Entry{
		Message: models.Message{
			ConversationID: id,
			SenderID:       s.me(),
			Content:        content,
			Type:           models.MessageText,
			ReplyToID:      replyToID,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		LocalID: localID,
		State:   Sending,
	})
	s.clearErrorLocked(opSend)
	s.mu.Unlock()
	s.notify()

	msg, err := s.api.SendMessage(ctx, id, api.SendMessageInput{Content: content, ReplyToID: replyToID})

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return err
	}
	if err != nil {
		s.messages = failLocal(s.messages, localID)
		s.setErrorLocked(opSend, err, "Failed to send message")
	} else {
		s.messages = confirmLocal(s.messages, localID, msg)
		s.touchConversationLocked(msg, false)
	}
	s.mu.Unlock()
	s.notify()
	return err
}

// Retry resends a failed entry.
func (s *Store) Retry(ctx context.Context, localID string) error {
	s.mu.Lock()
	i := indexOfLocal(s.messages, localID)
	if i < 0 || s.messages[i].State != Failed {
		s.mu.Unlock()
		return nil
	}
	e := s.messages[i]
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	s.mu.Unlock()

	return s.Send(ctx, e.Content, e.ReplyToID)
}

// NotifyTyping emits typing now and stop-typing after a quiet period.
func (s *Store) NotifyTyping() {
	s.mu.Lock()
	id := s.activeID
	if id == "" {
		s.mu.Unlock()
		return
	}
	first := s.typingTimer == nil
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	gen := s.gen
	s.typingTimer = time.AfterFunc(s.opts.TypingDebounce, func() {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.typingTimer = nil
		s.mu.Unlock()
		s.emit(s.rt.StopTyping(id))
	})
	s.mu.Unlock()

	if first {
		s.emit(s.rt.Typing(id))
	}
}

func (s *Store) emit(err error) {
	if err != nil && !errors.Is(err, realtime.ErrNotConnected) {
		s.log.Printf("realtime emit: %v", err)
	}
}

func (s *Store) touchConversationLocked(m models.Message, incoming bool) {
	for i := range s.conversations {
		if s.conversations[i].ID != m.ConversationID {
			continue
		}
		last := m
		s.conversations[i].LastMessage = &last
		s.conversations[i].UpdatedAt = m.CreatedAt
		if incoming {
			s.conversations[i].UnreadCount++
		}
		return
	}
}

func (s *Store) onConversationsLoaded(data json.RawMessage) {
	var convs []models.Conversation
	if err := json.Unmarshal(data, &convs); err != nil {
		s.log.Printf("decode conversations-loaded: %v", err)
		return
	}
	s.mu.Lock()
	s.conversations = convs
	s.mu.Unlock()
	s.notify()
}

func (s *Store) onNewMessage(data json.RawMessage) {
	var m models.Message
	if err := json.Unmarshal(data, &m); err != nil || m.ID == "" {
		s.log.Printf("drop malformed new-message: %v", err)
		return
	}
	me := s.me()

	s.mu.Lock()
	fromOther := m.SenderID != me
	var toRead []string
	gen, id := s.gen, s.activeID
	if m.ConversationID == id {
		var added []models.Message
		s.messages, added = appendUnique(s.messages, m)
		if len(added) > 0 {
			s.touchConversationLocked(m, false)
			toRead = s.unreadFromOthersLocked(added)
		}
	} else if indexOfConversation(s.conversations, m.ConversationID) >= 0 {
		s.touchConversationLocked(m, fromOther)
	}
	s.mu.Unlock()
	s.notify()

	if len(toRead) > 0 {
		go s.markRead(context.Background(), gen, id, toRead)
	}
}

func indexOfConversation(convs []models.Conversation, id string) int {
	for i := range convs {
		if convs[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) onMessageRead(data json.RawMessage) {
	var rr models.ReadReceipt
	if err := json.Unmarshal(data, &rr); err != nil {
		return
	}
	s.mu.Lock()
	changed := applyReceipt(s.messages, rr)
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

func (s *Store) onUserTyping(data json.RawMessage) {
	var ev models.TypingEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.UserID == "" {
		return
	}
	if ev.UserID == s.me() {
		return
	}

	s.mu.Lock()
	if ev.ConversationID != "" && ev.ConversationID != s.activeID {
		s.mu.Unlock()
		return
	}
	for _, u := range s.typing {
		if u.UserID == ev.UserID {
			s.mu.Unlock()
			return
		}
	}
	s.typing = append(s.typing, models.TypingUser{UserID: ev.UserID, UserName: ev.UserName})
	s.mu.Unlock()
	s.notify()
}

func (s *Store) onUserStopTyping(data json.RawMessage) {
	var ev models.TypingEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}

	s.mu.Lock()
	out := s.typing[:0]
	for _, u := range s.typing {
		if u.UserID != ev.UserID {
			out = append(out, u)
		}
	}
	s.typing = out
	s.mu.Unlock()
	s.notify()
}

func (s *Store) onConnectivity(connected bool) {
	s.mu.Lock()
	s.connected = connected
	active := s.activeID
	s.mu.Unlock()

	if connected {
		s.emit(s.rt.JoinConversations())
		if active != "" {
			s.emit(s.rt.JoinConversation(active))
		}
	}
	s.evaluatePolling()
	s.notify()
}
