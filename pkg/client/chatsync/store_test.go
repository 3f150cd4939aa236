package chatsync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"rentmarket/pkg/client/api"
	"rentmarket/pkg/models"
)

var fixedReadAt = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

const tenantID = "tenant-1"

func newStore(t *testing.T, fa *fakeAPI, rt *fakeRealtime, opts Options) *Store {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Hour
	}
	s := New(fa, rt, loggedInSession(t, tenantID), opts)
	s.Start()
	t.Cleanup(s.Close)
	return s
}

func requireUniqueIDs(t *testing.T, entries []Entry) {
	t.Helper()
	seen := make(map[string]bool)
	for _, id := range ids(entries) {
		require.False(t, seen[id], "duplicate message %s", id)
		seen[id] = true
	}
}

func TestStore_PaginationAndHasMore(t *testing.T) {
	fa := newFakeAPI()
	fa.setPage("c1", 1, msgs("c1", tenantID, 20, 50))
	fa.setPage("c1", 2, msgs("c1", tenantID, 0, 20))
	s := newStore(t, fa, newFakeRealtime(), Options{})

	require.NoError(t, s.Open(context.Background(), "c1"))
	st := s.State()
	require.Len(t, st.Messages, 50)
	require.True(t, st.HasMore)
	require.Equal(t, 1, st.Page)

	require.NoError(t, s.LoadMore(context.Background()))
	st = s.State()
	require.Len(t, st.Messages, 70)
	require.False(t, st.HasMore)
	require.Equal(t, 2, st.Page)
	require.Equal(t, "c1-m000", st.Messages[0].ID)
	require.Equal(t, "c1-m069", st.Messages[69].ID)

	// No further page is requested once hasMore is false.
	require.NoError(t, s.LoadMore(context.Background()))
	require.Len(t, fa.pageCalls, 2)
	require.Equal(t, pageCall{"c1", 2, 50}, fa.pageCalls[1])
}

func TestStore_NoDuplicatesAcrossSources(t *testing.T) {
	fa := newFakeAPI()
	rt := newFakeRealtime()
	page := msgs("c1", "landlord", 0, 3)
	fa.setPage("c1", 1, page)
	s := newStore(t, fa, rt, Options{})

	gate := fa.gate("c1")
	done := make(chan error, 1)
	go func() { done <- s.Open(context.Background(), "c1") }()
	require.Eventually(t, func() bool { return s.State().Loading }, time.Second, time.Millisecond)

	// A push of the newest message lands while page 1 is in flight.
	rt.push(t, models.EventNewMessage, page[2])
	close(gate)
	require.NoError(t, <-done)

	rt.push(t, models.EventNewMessage, page[1])
	extra := models.Message{ID: "c1-new", ConversationID: "c1", SenderID: tenantID, Content: "later"}
	rt.push(t, models.EventNewMessage, extra)
	rt.push(t, models.EventNewMessage, extra)

	st := s.State()
	requireUniqueIDs(t, st.Messages)
	require.Equal(t, []string{"c1-m000", "c1-m001", "c1-m002", "c1-new"}, ids(st.Messages))
}

func TestStore_FirstCopyWins(t *testing.T) {
	fa := newFakeAPI()
	rt := newFakeRealtime()
	fa.setPage("c1", 1, nil)
	s := newStore(t, fa, rt, Options{})
	require.NoError(t, s.Open(context.Background(), "c1"))

	first := models.Message{ID: "m1", ConversationID: "c1", SenderID: tenantID, Content: "original"}
	rt.push(t, models.EventNewMessage, first)
	second := first
	second.Content = "replayed"
	rt.push(t, models.EventNewMessage, second)

	st := s.State()
	require.Len(t, st.Messages, 1)
	require.Equal(t, "original", st.Messages[0].Content)
}

func TestStore_MarkReadBatchedOnce(t *testing.T) {
	fa := newFakeAPI()
	page := append(msgs("c1", "landlord", 0, 2), msgs("c1", tenantID, 2, 1)...)
	fa.setPage("c1", 1, page)
	s := newStore(t, fa, newFakeRealtime(), Options{})

	require.NoError(t, s.Open(context.Background(), "c1"))
	require.Equal(t, [][]string{{"c1-m000", "c1-m001"}}, fa.reads())

	st := s.State()
	require.True(t, st.Messages[0].IsRead)
	require.Equal(t, fixedReadAt, *st.Messages[0].ReadAt)
	require.False(t, st.Messages[2].IsRead)

	// The server still reports them unread on a refresh; nothing is re-sent.
	s.pollOnce()
	require.Len(t, fa.reads(), 1)
}

func TestStore_LeaveThenOpenShowsNoStaleMessages(t *testing.T) {
	fa := newFakeAPI()
	rt := newFakeRealtime()
	fa.setPage("c1", 1, msgs("c1", tenantID, 0, 5))
	fa.setPage("c2", 1, msgs("c2", tenantID, 0, 2))
	s := newStore(t, fa, rt, Options{})

	gate := fa.gate("c1")
	done := make(chan error, 1)
	go func() { done <- s.Open(context.Background(), "c1") }()
	require.Eventually(t, func() bool { return s.State().Loading }, time.Second, time.Millisecond)

	rt.push(t, models.EventUserTyping, models.TypingEvent{ConversationID: "c1", UserID: "landlord"})
	s.Leave()
	require.Empty(t, s.State().Typing)

	require.NoError(t, s.Open(context.Background(), "c2"))
	close(gate)
	require.NoError(t, <-done)

	// A late push for the old conversation does not leak either.
	rt.push(t, models.EventNewMessage, models.Message{ID: "late", ConversationID: "c1", SenderID: "landlord"})

	st := s.State()
	require.Equal(t, "c2", st.ActiveID)
	require.Equal(t, []string{"c2-m000", "c2-m001"}, ids(st.Messages))
	require.Empty(t, st.Typing)
}

func TestStore_SwitchingConversationsKeepsListLive(t *testing.T) {
	fa := newFakeAPI()
	fa.conversations = []models.Conversation{{ID: "c1"}, {ID: "c2"}}
	fa.setPage("c1", 1, msgs("c1", tenantID, 0, 1))
	fa.setPage("c2", 1, msgs("c2", tenantID, 0, 1))
	rt := newFakeRealtime()
	rt.setConnected(true)
	s := newStore(t, fa, rt, Options{})

	counter := NewUnreadCounter(fa, rt, loggedInSession(t, tenantID))
	counter.Start()
	defer counter.Close()

	require.NoError(t, s.LoadConversations(context.Background()))
	require.NoError(t, s.Open(context.Background(), "c1"))
	require.NoError(t, s.Open(context.Background(), "c2"))
	s.Leave()
	for _, e := range rt.emits() {
		require.NotContains(t, e, models.EventLeaveConversation)
	}

	rt.push(t, models.EventNewMessage, models.Message{ID: "x", ConversationID: "c1", SenderID: "landlord"})

	c1 := s.State().Conversations[0]
	require.Equal(t, "c1", c1.ID)
	require.NotNil(t, c1.LastMessage)
	require.Equal(t, "x", c1.LastMessage.ID)
	require.Equal(t, 1, c1.UnreadCount)
	require.Equal(t, 1, counter.Count())
}

func TestStore_TypingSet(t *testing.T) {
	fa := newFakeAPI()
	rt := newFakeRealtime()
	fa.setPage("c1", 1, nil)
	s := newStore(t, fa, rt, Options{})
	require.NoError(t, s.Open(context.Background(), "c1"))

	ev := models.TypingEvent{ConversationID: "c1", UserID: "landlord", UserName: "Lena"}
	rt.push(t, models.EventUserTyping, ev)
	rt.push(t, models.EventUserTyping, ev)
	require.Equal(t, []models.TypingUser{{UserID: "landlord", UserName: "Lena"}}, s.State().Typing)

	// Own typing echoes and other rooms are ignored.
	rt.push(t, models.EventUserTyping, models.TypingEvent{ConversationID: "c1", UserID: tenantID})
	rt.push(t, models.EventUserTyping, models.TypingEvent{ConversationID: "c9", UserID: "x"})
	require.Len(t, s.State().Typing, 1)

	rt.push(t, models.EventUserStopTyping, models.TypingEvent{UserID: "landlord"})
	require.Empty(t, s.State().Typing)
}

func TestStore_SendReconcilesWithEarlierPush(t *testing.T) {
	fa := newFakeAPI()
	rt := newFakeRealtime()
	fa.setPage("c1", 1, nil)
	s := newStore(t, fa, rt, Options{})
	require.NoError(t, s.Open(context.Background(), "c1"))

	server := models.Message{ID: "srv-1", ConversationID: "c1", SenderID: tenantID, Content: "hello"}
	fa.sendFn = func(convID string, in api.SendMessageInput) (models.Message, error) {
		// The push beats the REST response.
		st := s.State()
		require.Len(t, st.Messages, 1)
		require.Equal(t, Sending, st.Messages[0].State)
		rt.push(t, models.EventNewMessage, server)
		return server, nil
	}

	require.NoError(t, s.Send(context.Background(), " hello ", nil))

	st := s.State()
	require.Equal(t, []string{"srv-1"}, ids(st.Messages))
	require.Equal(t, Delivered, st.Messages[0].State)
}

func TestStore_SendConfirmReplacesOptimisticEntry(t *testing.T) {
	fa := newFakeAPI()
	fa.setPage("c1", 1, nil)
	s := newStore(t, fa, newFakeRealtime(), Options{})
	require.NoError(t, s.Open(context.Background(), "c1"))

	fa.sendFn = func(string, api.SendMessageInput) (models.Message, error) {
		return models.Message{ID: "srv-1", ConversationID: "c1", SenderID: tenantID, Content: "hello"}, nil
	}
	require.NoError(t, s.Send(context.Background(), "hello", nil))

	st := s.State()
	require.Len(t, st.Messages, 1)
	require.Equal(t, "srv-1", st.Messages[0].ID)
	require.Equal(t, Delivered, st.Messages[0].State)
}

func TestStore_FailedSendIsNotDelivered(t *testing.T) {
	fa := newFakeAPI()
	fa.setPage("c1", 1, nil)
	s := newStore(t, fa, newFakeRealtime(), Options{})
	require.NoError(t, s.Open(context.Background(), "c1"))

	fa.sendFn = func(string, api.SendMessageInput) (models.Message, error) {
		return models.Message{}, &api.APIError{StatusCode: 403, Message: "not a participant of this conversation"}
	}
	require.Error(t, s.Send(context.Background(), "hello", nil))

	st := s.State()
	require.Len(t, st.Messages, 1)
	require.Equal(t, Failed, st.Messages[0].State)
	require.Empty(t, st.Messages[0].ID)
	require.Equal(t, "not a participant of this conversation", st.Error)
	_, err := uuid.Parse(strings.TrimPrefix(st.Messages[0].LocalID, "local-"))
	require.NoError(t, err)

	fa.sendFn = func(string, api.SendMessageInput) (models.Message, error) {
		return models.Message{ID: "srv-2", ConversationID: "c1", SenderID: tenantID, Content: "hello"}, nil
	}
	require.NoError(t, s.Retry(context.Background(), st.Messages[0].LocalID))
	st = s.State()
	require.Equal(t, []string{"srv-2"}, ids(st.Messages))
	require.Empty(t, st.Error)
}

func TestStore_EmptySendNeverCallsServer(t *testing.T) {
	fa := newFakeAPI()
	fa.setPage("c1", 1, nil)
	s := newStore(t, fa, newFakeRealtime(), Options{})
	require.NoError(t, s.Open(context.Background(), "c1"))

	require.ErrorIs(t, s.Send(context.Background(), "   ", nil), ErrEmptyMessage)
	require.Zero(t, fa.sendCalls)
	require.Equal(t, ErrEmptyMessage.Error(), s.State().Error)
}

func TestStore_ErrorOverwritesAndGenericFallback(t *testing.T) {
	fa := newFakeAPI()
	s := newStore(t, fa, newFakeRealtime(), Options{})

	fa.messagesErr = errors.New("dial tcp: connection refused")
	require.Error(t, s.Open(context.Background(), "c1"))
	require.Equal(t, "Failed to load messages", s.State().Error)

	fa.messagesErr = &api.APIError{StatusCode: 404, Message: "conversation not found"}
	require.Error(t, s.Open(context.Background(), "c2"))
	require.Equal(t, "conversation not found", s.State().Error)

	fa.messagesErr = nil
	require.NoError(t, s.Open(context.Background(), "c2"))
	require.Empty(t, s.State().Error)
}

func TestStore_PollingFollowsAuthAndConnectivity(t *testing.T) {
	fa := newFakeAPI()
	rt := newFakeRealtime()
	sess := loggedInSession(t, tenantID)
	s := New(fa, rt, sess, Options{PollInterval: time.Hour})
	s.Start()
	defer s.Close()

	require.True(t, s.State().Polling)
	first := s.poll

	// Re-evaluating never starts a second timer.
	s.evaluatePolling()
	require.Same(t, first, s.poll)

	rt.setConnected(true)
	require.False(t, s.State().Polling)
	require.Contains(t, rt.emits(), models.EventJoinConversations+":")

	rt.setConnected(false)
	require.True(t, s.State().Polling)

	require.NoError(t, sess.Logout())
	require.False(t, s.State().Polling)

	require.NoError(t, sess.Login("tok", models.User{ID: tenantID}))
	require.True(t, s.State().Polling)
}

func TestStore_PollerRefreshesWhileDisconnected(t *testing.T) {
	fa := newFakeAPI()
	rt := newFakeRealtime()
	fa.setPage("c1", 1, msgs("c1", tenantID, 0, 1))
	s := newStore(t, fa, rt, Options{PollInterval: 10 * time.Millisecond})
	require.NoError(t, s.Open(context.Background(), "c1"))

	fa.setPage("c1", 1, msgs("c1", tenantID, 0, 2))
	require.Eventually(t, func() bool { return len(s.State().Messages) == 2 }, time.Second, 5*time.Millisecond)

	rt.setConnected(true)
	require.False(t, s.State().Polling)

	fa.mu.Lock()
	calls := len(fa.pageCalls)
	fa.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	fa.mu.Lock()
	defer fa.mu.Unlock()
	// At most a tick already in progress when connectivity returned.
	require.LessOrEqual(t, len(fa.pageCalls), calls+1)
}

func TestStore_UnreadCounterIntegration(t *testing.T) {
	fa := newFakeAPI()
	fa.unread = 5
	rt := newFakeRealtime()
	sess := loggedInSession(t, tenantID)

	counter := NewUnreadCounter(fa, rt, sess)
	counter.Start()
	defer counter.Close()
	require.NoError(t, counter.Refresh(context.Background()))
	require.Equal(t, 5, counter.Count())

	var seen []int
	sub := counter.Subscribe(func(n int) { seen = append(seen, n) })
	defer sub.Close()

	rt.push(t, models.EventNewMessage, models.Message{ID: "x", ConversationID: "c9", SenderID: "landlord"})
	rt.push(t, models.EventNewMessage, models.Message{ID: "y", ConversationID: "c9", SenderID: tenantID})
	require.Equal(t, 6, counter.Count())

	counter.MessagesRead(10)
	require.Equal(t, 0, counter.Count())

	require.NoError(t, sess.Logout())
	require.Equal(t, []int{6, 0}, seen)
}
