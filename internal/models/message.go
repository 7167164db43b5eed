package models

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// MessageID is an opaque server-assigned message identifier. Servers send it
// either as a JSON string or a JSON number; both decode to the same value.
type MessageID string

func (id *MessageID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	*id = MessageID(b)
	return nil
}

// IDFromInt is a convenience for numeric ids.
func IDFromInt(n int64) MessageID {
	return MessageID(strconv.FormatInt(n, 10))
}

// DeliveryState tracks an optimistic local message against server truth.
type DeliveryState string

const (
	DeliveryCommitted  DeliveryState = ""
	DeliveryPending    DeliveryState = "pending"
	DeliveryRolledBack DeliveryState = "rolled_back"
)

type ChatMessage struct {
	ID             MessageID `json:"id"`
	ClientId       string    `json:"clientId,omitempty"`
	AuthorId       string    `json:"authorId"`
	AuthorName     string    `json:"authorName"`
	AuthorAvatar   string    `json:"authorAvatar,omitempty"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	IsDeleted      bool      `json:"isDeleted"`
	ReadCount      int       `json:"readCount"`
	IsReadByViewer bool      `json:"isRead"`

	// Delivery is client-side only.
	Delivery DeliveryState `json:"-"`
}

// Event is the scheduled gathering a chat belongs to.
type Event struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	OwnerId  string     `json:"ownerId"`
	StartsAt time.Time  `json:"startsAt"`
	EndsAt   *time.Time `json:"endsAt,omitempty"`
}

type Attendee struct {
	UserId   string `json:"userId"`
	UserName string `json:"userName"`
	Avatar   string `json:"avatar,omitempty"`
}
