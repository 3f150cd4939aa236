package messaging

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"rentmarket/pkg/models"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
	maxContentLength = 10000
)

var (
	ErrNotParticipant   = errors.New("not a participant of this conversation")
	ErrEmptyMessage     = errors.New("message content cannot be empty")
	ErrMessageTooLong   = errors.New("message content too long (max 10000 characters)")
	ErrInvalidID        = errors.New("invalid id, must be UUID")
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
)

type SendInput struct {
	Content    string
	ReplyToID  *string
	Attachment *models.Attachment
}

// Publisher fans realtime events out to connected clients.
type Publisher interface {
	Publish(ctx context.Context, d Delivery) error
}

type MessagingService interface {
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	GetConversation(ctx context.Context, userID, conversationID string) (models.Conversation, error)
	GetMessages(ctx context.Context, userID, conversationID string, page, limit int) (models.MessagePage, error)
	SendMessage(ctx context.Context, userID, conversationID string, in SendInput) (models.Message, error)
	MarkRead(ctx context.Context, userID, conversationID string, messageIDs []string) ([]models.ReadReceipt, error)
	UnreadCount(ctx context.Context, userID string) (models.UnreadCount, error)
	OpenOfferConversation(ctx context.Context, offerID, landlordID, tenantID string) (models.Conversation, error)
	StartDirectConversation(ctx context.Context, userID, peerID string) (models.Conversation, error)
	CanJoin(ctx context.Context, userID, conversationID string) error
}

type messagingService struct {
	repo      ConversationRepository
	publisher Publisher
	now       func() time.Time
	log       interface {
		Printf(string, ...any)
	}
}

// NewMessagingService builds the service. A nil publisher disables realtime fan-out.
func NewMessagingService(repo ConversationRepository, publisher Publisher) MessagingService {
	return &messagingService{
		repo:      repo,
		publisher: publisher,
		now:       time.Now,
		log:       log.New(log.Writer(), "[messaging] ", log.LstdFlags),
	}
}

func (s *messagingService) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	return s.repo.ListConversations(ctx, userID)
}

func (s *messagingService) GetConversation(ctx context.Context, userID, conversationID string) (models.Conversation, error) {
	if _, err := uuid.Parse(conversationID); err != nil {
		return models.Conversation{}, ErrInvalidID
	}
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	if !conv.HasParticipant(userID) {
		return models.Conversation{}, ErrNotParticipant
	}
	return conv, nil
}

func (s *messagingService) CanJoin(ctx context.Context, userID, conversationID string) error {
	if _, err := uuid.Parse(conversationID); err != nil {
		return ErrInvalidID
	}
	ok, err := s.repo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

func (s *messagingService) GetMessages(ctx context.Context, userID, conversationID string, page, limit int) (models.MessagePage, error) {
	if err := s.CanJoin(ctx, userID, conversationID); err != nil {
		return models.MessagePage{}, err
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	msgs, err := s.repo.ListMessages(ctx, conversationID, limit, (page-1)*limit)
	if err != nil {
		return models.MessagePage{}, err
	}
	return models.MessagePage{Messages: msgs, Page: page, Limit: limit}, nil
}

func messageTypeFor(a *models.Attachment) models.MessageType {
	if a == nil {
		return models.MessageText
	}
	if strings.HasPrefix(a.MimeType, "image/") {
		return models.MessageImage
	}
	return models.MessageDocument
}

func (s *messagingService) SendMessage(ctx context.Context, userID, conversationID string, in SendInput) (models.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && in.Attachment == nil {
		return models.Message{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return models.Message{}, ErrMessageTooLong
	}
	if in.ReplyToID != nil {
		if _, err := uuid.Parse(*in.ReplyToID); err != nil {
			return models.Message{}, ErrInvalidID
		}
	}
	if err := s.CanJoin(ctx, userID, conversationID); err != nil {
		return models.Message{}, err
	}

	now := s.now().UTC()
	msg, err := s.repo.CreateMessage(ctx, models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       userID,
		Content:        content,
		Type:           messageTypeFor(in.Attachment),
		Attachment:     in.Attachment,
		ReplyToID:      in.ReplyToID,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return models.Message{}, err
	}

	s.publish(ctx, conversationID, "", models.EventNewMessage, msg)
	return msg, nil
}

func (s *messagingService) MarkRead(ctx context.Context, userID, conversationID string, messageIDs []string) ([]models.ReadReceipt, error) {
	if err := s.CanJoin(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		if _, err := uuid.Parse(id); err != nil {
			return nil, ErrInvalidID
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return []models.ReadReceipt{}, nil
	}

	receipts, err := s.repo.MarkRead(ctx, conversationID, userID, ids, s.now().UTC())
	if err != nil {
		return nil, err
	}
	for _, rr := range receipts {
		s.publish(ctx, conversationID, userID, models.EventMessageRead, rr)
	}
	return receipts, nil
}

func (s *messagingService) UnreadCount(ctx context.Context, userID string) (models.UnreadCount, error) {
	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return models.UnreadCount{}, err
	}
	return models.UnreadCount{UnreadCount: n}, nil
}

func (s *messagingService) OpenOfferConversation(ctx context.Context, offerID, landlordID, tenantID string) (models.Conversation, error) {
	conv, err := s.repo.FindConversationByOffer(ctx, offerID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return models.Conversation{}, err
	}

	offer := offerID
	return s.repo.CreateConversation(ctx, models.Conversation{
		ID:      uuid.NewString(),
		Type:    models.ConversationProperty,
		OfferID: &offer,
		Status:  models.ConversationActive,
		Participants: []models.Participant{
			{UserID: landlordID, Role: models.ParticipantMember},
			{UserID: tenantID, Role: models.ParticipantMember},
		},
	})
}

func (s *messagingService) StartDirectConversation(ctx context.Context, userID, peerID string) (models.Conversation, error) {
	if _, err := uuid.Parse(peerID); err != nil {
		return models.Conversation{}, ErrInvalidID
	}
	if peerID == userID {
		return models.Conversation{}, ErrSelfConversation
	}

	conv, err := s.repo.FindDirectConversation(ctx, userID, peerID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return models.Conversation{}, err
	}

	return s.repo.CreateConversation(ctx, models.Conversation{
		ID:     uuid.NewString(),
		Type:   models.ConversationDirect,
		Status: models.ConversationActive,
		Participants: []models.Participant{
			{UserID: userID, Role: models.ParticipantMember},
			{UserID: peerID, Role: models.ParticipantMember},
		},
	})
}

func (s *messagingService) publish(ctx context.Context, conversationID, exceptUserID, event string, data any) {
	if s.publisher == nil {
		return
	}
	env, err := models.NewEnvelope(event, data)
	if err != nil {
		s.log.Printf("encode %s: %v", event, err)
		return
	}
	d := Delivery{Room: RoomFor(conversationID), ExceptUserID: exceptUserID, Envelope: env}
	if err := s.publisher.Publish(ctx, d); err != nil {
		s.log.Printf("publish %s to %s failed: %v", event, d.Room, err)
	}
}
