package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nfrund/relay/internal/domain"
)

// Event types exchanged over the connection.
const (
	TypeSendMessage = "send-message"
	TypeNewMessage  = "new-message"
	TypeMessageSent = "message-sent"
	TypeSendFailed  = "send-failed"
	TypeUserStatus  = "user-status"
	TypeError       = "error"
)

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Envelope is the frame every event travels in.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SendMessage is the client's intent to send text to another user.
type SendMessage struct {
	ReceiverID string `json:"receiverId" validate:"required,max=128"`
	Text       string `json:"text" validate:"required"`
	TempID     string `json:"tempId" validate:"max=128"`
}

// MessagePayload is the canonical message record shared by new-message and message-sent.
type MessagePayload struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
	Timestamp  string `json:"timestamp"`
	TempID     string `json:"tempId"`
}

// MessageSent is the delivery receipt returned to the sender.
type MessageSent struct {
	MessagePayload
	Delivered bool `json:"delivered"`
	// Durable is only serialised when false, which happens when the store failed
	// and the relay was configured to keep going with the client's tempId.
	Durable *bool `json:"durable,omitempty"`
}

// SendFailed tells the sender its message was not stored and was not delivered.
type SendFailed struct {
	TempID     string `json:"tempId"`
	ReceiverID string `json:"receiverId"`
	Error      string `json:"error"`
}

// UserStatus announces that a user came online or went offline.
type UserStatus struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// ErrorPayload reports a frame the server could not act on.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried by ErrorPayload.
const (
	CodeMalformed   = "malformed"
	CodeInvalid     = "invalid"
	CodeUnsupported = "unsupported"
)

// NewMessagePayload builds the outgoing payload for a stored message.
func NewMessagePayload(id string, msg *domain.Message, tempID string) MessagePayload {
	return MessagePayload{
		ID:         id,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Text:       msg.Text,
		Timestamp:  FormatTimestamp(msg.Timestamp),
		TempID:     tempID,
	}
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Encode wraps payload in an Envelope of the given type and marshals it.
func Encode(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}

// Decode parses a frame into its envelope. The payload is left raw so the
// dispatcher can pick the concrete type.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}
