package messaging

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rentmarket/pkg/models"
)

type mockConversationRepository struct {
	mock.Mock
}

func (m *mockConversationRepository) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	convs, _ := args.Get(0).([]models.Conversation)
	return convs, args.Error(1)
}

func (m *mockConversationRepository) GetConversation(ctx context.Context, id string) (models.Conversation, error) {
	args := m.Called(ctx, id)
	conv, _ := args.Get(0).(models.Conversation)
	return conv, args.Error(1)
}

func (m *mockConversationRepository) FindConversationByOffer(ctx context.Context, offerID string) (models.Conversation, error) {
	args := m.Called(ctx, offerID)
	conv, _ := args.Get(0).(models.Conversation)
	return conv, args.Error(1)
}

func (m *mockConversationRepository) FindDirectConversation(ctx context.Context, userA, userB string) (models.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	conv, _ := args.Get(0).(models.Conversation)
	return conv, args.Error(1)
}

func (m *mockConversationRepository) CreateConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	args := m.Called(ctx, conv)
	out, _ := args.Get(0).(models.Conversation)
	return out, args.Error(1)
}

func (m *mockConversationRepository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockConversationRepository) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, limit, offset)
	msgs, _ := args.Get(0).([]models.Message)
	return msgs, args.Error(1)
}

func (m *mockConversationRepository) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	out, _ := args.Get(0).(models.Message)
	return out, args.Error(1)
}

func (m *mockConversationRepository) MarkRead(ctx context.Context, conversationID, readerID string, messageIDs []string, at time.Time) ([]models.ReadReceipt, error) {
	args := m.Called(ctx, conversationID, readerID, messageIDs, at)
	rr, _ := args.Get(0).([]models.ReadReceipt)
	return rr, args.Error(1)
}

func (m *mockConversationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type recordingPublisher struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func (p *recordingPublisher) Publish(_ context.Context, d Delivery) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deliveries = append(p.deliveries, d)
	return nil
}

func (p *recordingPublisher) events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.deliveries))
	for i, d := range p.deliveries {
		out[i] = d.Envelope.Event
	}
	return out
}

var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func newTestService(repo ConversationRepository, pub Publisher) *messagingService {
	svc := NewMessagingService(repo, pub).(*messagingService)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestMessagingService_GetMessages_DefaultsAndClamp(t *testing.T) {
	repo := new(mockConversationRepository)
	svc := newTestService(repo, nil)
	convID := uuid.NewString()

	repo.On("IsParticipant", mock.Anything, convID, "u1").Return(true, nil)
	repo.On("ListMessages", mock.Anything, convID, 50, 0).Return([]models.Message{{ID: "m1"}}, nil).Once()
	repo.On("ListMessages", mock.Anything, convID, 100, 100).Return([]models.Message{}, nil).Once()

	page, err := svc.GetMessages(context.Background(), "u1", convID, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, page.Page)
	require.Equal(t, 50, page.Limit)
	require.Len(t, page.Messages, 1)

	page, err = svc.GetMessages(context.Background(), "u1", convID, 2, 500)
	require.NoError(t, err)
	require.Equal(t, 100, page.Limit)
	repo.AssertExpectations(t)
}

func TestMessagingService_GetMessages_NotParticipant(t *testing.T) {
	repo := new(mockConversationRepository)
	svc := newTestService(repo, nil)
	convID := uuid.NewString()

	repo.On("IsParticipant", mock.Anything, convID, "stranger").Return(false, nil)

	_, err := svc.GetMessages(context.Background(), "stranger", convID, 1, 50)
	require.ErrorIs(t, err, ErrNotParticipant)
	repo.AssertNotCalled(t, "ListMessages", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMessagingService_GetMessages_InvalidID(t *testing.T) {
	repo := new(mockConversationRepository)
	svc := newTestService(repo, nil)

	_, err := svc.GetMessages(context.Background(), "u1", "not-a-uuid", 1, 50)
	require.ErrorIs(t, err, ErrInvalidID)
}

func TestMessagingService_SendMessage(t *testing.T) {
	convID := uuid.NewString()

	t.Run("empty content without attachment is rejected", func(t *testing.T) {
		repo := new(mockConversationRepository)
		svc := newTestService(repo, nil)

		_, err := svc.SendMessage(context.Background(), "u1", convID, SendInput{Content: "   "})
		require.ErrorIs(t, err, ErrEmptyMessage)
		repo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
	})

	t.Run("too long", func(t *testing.T) {
		repo := new(mockConversationRepository)
		svc := newTestService(repo, nil)

		_, err := svc.SendMessage(context.Background(), "u1", convID, SendInput{Content: strings.Repeat("a", maxContentLength+1)})
		require.ErrorIs(t, err, ErrMessageTooLong)
	})

	t.Run("persists and publishes new-message to the room", func(t *testing.T) {
		repo := new(mockConversationRepository)
		pub := &recordingPublisher{}
		svc := newTestService(repo, pub)

		repo.On("IsParticipant", mock.Anything, convID, "u1").Return(true, nil)
		repo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
			return m.SenderID == "u1" && m.Content == "hello" && m.Type == models.MessageText && m.CreatedAt.Equal(fixedNow)
		})).Return(models.Message{ID: "m1", ConversationID: convID, Content: "hello"}, nil)

		msg, err := svc.SendMessage(context.Background(), "u1", convID, SendInput{Content: " hello "})
		require.NoError(t, err)
		require.Equal(t, "m1", msg.ID)
		require.Equal(t, []string{models.EventNewMessage}, pub.events())
		require.Equal(t, RoomFor(convID), pub.deliveries[0].Room)
		require.Empty(t, pub.deliveries[0].ExceptUserID)
	})

	t.Run("attachment only picks the type from its mime", func(t *testing.T) {
		repo := new(mockConversationRepository)
		svc := newTestService(repo, nil)

		repo.On("IsParticipant", mock.Anything, convID, "u1").Return(true, nil)
		repo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
			return m.Type == models.MessageImage && m.Attachment != nil
		})).Return(models.Message{ID: "m2"}, nil)

		_, err := svc.SendMessage(context.Background(), "u1", convID, SendInput{
			Attachment: &models.Attachment{URL: "/uploads/a.png", MimeType: "image/png"},
		})
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})
}

func TestMessagingService_MarkRead(t *testing.T) {
	convID := uuid.NewString()
	id1, id2 := uuid.NewString(), uuid.NewString()

	repo := new(mockConversationRepository)
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	repo.On("IsParticipant", mock.Anything, convID, "reader").Return(true, nil)
	repo.On("MarkRead", mock.Anything, convID, "reader", []string{id1, id2}, fixedNow).
		Return([]models.ReadReceipt{{MessageID: id1, ConversationID: convID, ReadAt: fixedNow}}, nil).Once()
	repo.On("MarkRead", mock.Anything, convID, "reader", []string{id1, id2}, fixedNow).
		Return([]models.ReadReceipt{}, nil).Once()

	receipts, err := svc.MarkRead(context.Background(), "reader", convID, []string{id1, id2})
	require.NoError(t, err)
	require.Len(t, receipts, 1)

	receipts, err = svc.MarkRead(context.Background(), "reader", convID, []string{id1, id2})
	require.NoError(t, err)
	require.Empty(t, receipts)

	require.Equal(t, []string{models.EventMessageRead}, pub.events())
	require.Equal(t, "reader", pub.deliveries[0].ExceptUserID)
}

func TestMessagingService_MarkRead_RejectsBadIDs(t *testing.T) {
	convID := uuid.NewString()
	repo := new(mockConversationRepository)
	svc := newTestService(repo, nil)

	repo.On("IsParticipant", mock.Anything, convID, "reader").Return(true, nil)

	_, err := svc.MarkRead(context.Background(), "reader", convID, []string{"nope"})
	require.ErrorIs(t, err, ErrInvalidID)
	repo.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMessagingService_UnreadCount(t *testing.T) {
	repo := new(mockConversationRepository)
	svc := newTestService(repo, nil)
	repo.On("CountUnread", mock.Anything, "u1").Return(7, nil)

	n, err := svc.UnreadCount(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, models.UnreadCount{UnreadCount: 7}, n)
}

func TestMessagingService_OpenOfferConversation(t *testing.T) {
	t.Run("reuses existing", func(t *testing.T) {
		repo := new(mockConversationRepository)
		svc := newTestService(repo, nil)
		repo.On("FindConversationByOffer", mock.Anything, "o1").Return(models.Conversation{ID: "c1"}, nil)

		conv, err := svc.OpenOfferConversation(context.Background(), "o1", "l1", "t1")
		require.NoError(t, err)
		require.Equal(t, "c1", conv.ID)
		repo.AssertNotCalled(t, "CreateConversation", mock.Anything, mock.Anything)
	})

	t.Run("creates property conversation with both parties", func(t *testing.T) {
		repo := new(mockConversationRepository)
		svc := newTestService(repo, nil)
		repo.On("FindConversationByOffer", mock.Anything, "o1").Return(models.Conversation{}, ErrConversationNotFound)
		repo.On("CreateConversation", mock.Anything, mock.MatchedBy(func(c models.Conversation) bool {
			return c.Type == models.ConversationProperty && *c.OfferID == "o1" &&
				c.HasParticipant("l1") && c.HasParticipant("t1")
		})).Return(models.Conversation{ID: "c2"}, nil)

		conv, err := svc.OpenOfferConversation(context.Background(), "o1", "l1", "t1")
		require.NoError(t, err)
		require.Equal(t, "c2", conv.ID)
	})
}

func TestMessagingService_StartDirectConversation(t *testing.T) {
	repo := new(mockConversationRepository)
	svc := newTestService(repo, nil)
	me := uuid.NewString()

	_, err := svc.StartDirectConversation(context.Background(), me, me)
	require.ErrorIs(t, err, ErrSelfConversation)

	_, err = svc.StartDirectConversation(context.Background(), me, "bad")
	require.ErrorIs(t, err, ErrInvalidID)

	peer := uuid.NewString()
	repo.On("FindDirectConversation", mock.Anything, me, peer).Return(models.Conversation{ID: "d1"}, nil)
	conv, err := svc.StartDirectConversation(context.Background(), me, peer)
	require.NoError(t, err)
	require.Equal(t, "d1", conv.ID)
}

func TestMessagingService_GetConversation(t *testing.T) {
	repo := new(mockConversationRepository)
	svc := newTestService(repo, nil)
	convID := uuid.NewString()

	repo.On("GetConversation", mock.Anything, convID).Return(models.Conversation{
		ID:           convID,
		Participants: []models.Participant{{UserID: "u1"}},
	}, nil)

	_, err := svc.GetConversation(context.Background(), "u2", convID)
	require.ErrorIs(t, err, ErrNotParticipant)

	conv, err := svc.GetConversation(context.Background(), "u1", convID)
	require.NoError(t, err)
	require.Equal(t, convID, conv.ID)
}
