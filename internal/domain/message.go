package domain

import (
	"context"
	"strings"
	"time"
)

// Message is a direct message between two users once it has been handed to a store.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Read       bool      `json:"read"`
}

// Validate checks the fields every store requires before writing a record.
func (m *Message) Validate() error {
	if m.SenderID == "" || m.ReceiverID == "" {
		return ErrInvalidInput
	}
	if strings.TrimSpace(m.Text) == "" {
		return ErrInvalidInput
	}
	if m.Timestamp.IsZero() {
		return ErrInvalidInput
	}
	return nil
}

// History paging limits, matching the chat history endpoint.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// HistoryQuery narrows a conversation read.
type HistoryQuery struct {
	// Limit caps the number of messages; zero means DefaultHistoryLimit.
	Limit int
	// Before, when set, only returns messages strictly older than it.
	Before time.Time
}

// EffectiveLimit clamps the requested limit into [1, MaxHistoryLimit].
func (q HistoryQuery) EffectiveLimit() int {
	switch {
	case q.Limit <= 0:
		return DefaultHistoryLimit
	case q.Limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return q.Limit
	}
}

// MessageRepository is the durable message store. Create is the only call the
// relay makes; History and MarkRead serve the REST layer that reads conversations.
type MessageRepository interface {
	// Create persists msg and returns the store-assigned durable identifier.
	Create(ctx context.Context, msg *Message) (string, error)

	// History returns the messages exchanged between userA and userB in either
	// direction, oldest first, honouring q.
	History(ctx context.Context, userA, userB string, q HistoryQuery) ([]*Message, error)

	// MarkRead flags every unread message from senderID to readerID as read and
	// returns how many records changed.
	MarkRead(ctx context.Context, readerID, senderID string) (int, error)

	Close(ctx context.Context) error
}
