package models

import "encoding/json"

// Realtime event names carried in Envelope.Event.
const (
	EventJoinConversations = "join-conversations"
	EventJoinConversation  = "join-conversation"
	EventLeaveConversation = "leave-conversation"
	EventSendMessage       = "send-message"
	EventTyping            = "typing"
	EventStopTyping        = "stop-typing"

	EventConversationsLoaded = "conversations-loaded"
	EventNewMessage          = "new-message"
	EventMessageRead         = "message-read"
	EventUserTyping          = "user-typing"
	EventUserStopTyping      = "user-stop-typing"
	EventError               = "error"
)

// Envelope is the frame exchanged over the realtime connection.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope.
func NewEnvelope(event string, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

type SendMessagePayload struct {
	ConversationID string  `json:"conversationId"`
	Content        string  `json:"content"`
	ReplyToID      *string `json:"replyToId,omitempty"`
}

type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName,omitempty"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

// MessagePage is one page of a conversation, oldest message first.
type MessagePage struct {
	Messages []Message `json:"messages"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
}
