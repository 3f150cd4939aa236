package models

import "time"

type ConversationType string

const (
	ConversationDirect   ConversationType = "DIRECT"
	ConversationGroup    ConversationType = "GROUP"
	ConversationProperty ConversationType = "PROPERTY"
)

type ConversationStatus string

const (
	ConversationPending  ConversationStatus = "PENDING"
	ConversationActive   ConversationStatus = "ACTIVE"
	ConversationArchived ConversationStatus = "ARCHIVED"
)

type ParticipantRole string

const (
	ParticipantAdmin    ParticipantRole = "ADMIN"
	ParticipantMember   ParticipantRole = "MEMBER"
	ParticipantReadOnly ParticipantRole = "READONLY"
)

type MessageType string

const (
	MessageText     MessageType = "TEXT"
	MessageImage    MessageType = "IMAGE"
	MessageDocument MessageType = "DOCUMENT"
	MessageSystem   MessageType = "SYSTEM"
)

// Participant is a member of a conversation. Membership is only changed server-side.
type Participant struct {
	UserID   string          `json:"userId"`
	Name     string          `json:"name"`
	Role     ParticipantRole `json:"role"`
	JoinedAt time.Time       `json:"joinedAt"`
}

type Conversation struct {
	ID           string             `json:"id"`
	Type         ConversationType   `json:"type"`
	PropertyID   *string            `json:"propertyId,omitempty"`
	OfferID      *string            `json:"offerId,omitempty"`
	Status       ConversationStatus `json:"status"`
	Participants []Participant      `json:"participants"`
	LastMessage  *Message           `json:"lastMessage,omitempty"`
	UnreadCount  int                `json:"unreadCount"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// HasParticipant reports whether userID is a member of the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// Message is immutable once created except for its read state.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	SenderID       string      `json:"senderId"`
	SenderName     string      `json:"senderName,omitempty"`
	Content        string      `json:"content"`
	Type           MessageType `json:"type"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	IsRead         bool        `json:"isRead"`
	ReadAt         *time.Time  `json:"readAt,omitempty"`
	ReplyToID      *string     `json:"replyToId,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// MarkRead moves the message from unread to read. It never goes back, and an
// already read message keeps its original ReadAt. Reports whether anything changed.
func (m *Message) MarkRead(at time.Time) bool {
	if m.IsRead {
		return false
	}
	t := at
	m.IsRead = true
	m.ReadAt = &t
	return true
}

// TypingUser lives only in a client session while someone is typing.
type TypingUser struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// ReadReceipt is the payload of the message-read realtime event.
type ReadReceipt struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId,omitempty"`
	ReadAt         time.Time `json:"readAt"`
}

type UnreadCount struct {
	UnreadCount int `json:"unreadCount"`
}
