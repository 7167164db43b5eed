package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Inbound event types pushed by the chat server.
const (
	TypeInitialMessages = "initial_messages"
	TypeNewMessage      = "new_message"
	TypeMessageDeleted  = "message_deleted"
	TypeTyping          = "typing"
	TypePresenceUpdate  = "presence_update"
	TypeMessageRead     = "message_read"
	TypeUserJoined      = "user_joined"
	TypeUserLeft        = "user_left"
	TypeError           = "error"
)

// Outbound event types sent by the client.
const (
	TypeMessage      = "message"
	TypeTypingSignal = "typing"
	TypeMarkRead     = "mark_read"
	TypePresencePing = "presence_ping"
)

// Envelope is the wire shape of every frame in both directions.
type Envelope struct {
	Type      string          `json:"type"`
	EventId   string          `json:"eventId,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Outbound is a not-yet-encoded client frame. Data is marshaled when the
// frame is actually written, so queued frames stay inspectable.
type Outbound struct {
	Type string
	Data interface{}
}

// Specific event data structures

type InitialMessagesData struct {
	Messages []ChatMessage `json:"messages"`
}

type MessageDeletedData struct {
	MessageId MessageID `json:"messageId"`
}

type TypingData struct {
	UserId   string `json:"userId"`
	UserName string `json:"userName"`
}

type PresenceData struct {
	UserId     string `json:"userId"`
	UserName   string `json:"userName"`
	UserAvatar string `json:"userAvatar,omitempty"`
	IsOnline   bool   `json:"isOnline"`
}

type MessageReadData struct {
	MessageId MessageID `json:"messageId"`
	UserId    string    `json:"userId"`
	ReadCount *int      `json:"readCount,omitempty"`
}

type UserData struct {
	UserId   string `json:"userId"`
	UserName string `json:"userName"`
}

type ErrorData struct {
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
	ClientId string `json:"clientId,omitempty"`
}

// Outbound payloads

type SendMessageData struct {
	Content  string `json:"content"`
	ClientId string `json:"clientId,omitempty"`
}

type MarkReadData struct {
	MessageId MessageID `json:"messageId"`
}

// NewEnvelope marshals data into an envelope stamped with the current time.
func NewEnvelope(eventType, eventId string, data interface{}) (Envelope, error) {
	env := Envelope{
		Type:      eventType,
		EventId:   eventId,
		Timestamp: time.Now().Unix(),
	}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = raw
	return env, nil
}
