package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nfrund/relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	frame, err := Encode(TypeUserStatus, UserStatus{UserID: "bob", Online: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"user-status","payload":{"userId":"bob","online":true}}`, string(frame))
}

func TestEncode_UnsupportedPayload(t *testing.T) {
	_, err := Encode(TypeError, make(chan int))
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	env, err := Decode([]byte(`{"type":"send-message","payload":{"receiverId":"bob","text":"hi","tempId":"t1"}}`))
	require.NoError(t, err)
	assert.Equal(t, TypeSendMessage, env.Type)

	var req SendMessage
	require.NoError(t, json.Unmarshal(env.Payload, &req))
	assert.Equal(t, SendMessage{ReceiverID: "bob", Text: "hi", TempID: "t1"}, req)
}

func TestDecode_Errors(t *testing.T) {
	for name, frame := range map[string]string{
		"not json":     "hello",
		"array":        `[1,2]`,
		"missing type": `{"payload":{}}`,
		"empty type":   `{"type":""}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(frame))
			assert.Error(t, err)
		})
	}
}

func TestNewMessagePayload(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 30, 15, 123456789, time.FixedZone("CET", 3600))
	msg := &domain.Message{SenderID: "alice", ReceiverID: "bob", Text: "hi", Timestamp: ts}

	payload := NewMessagePayload("m1", msg, "t1")

	assert.Equal(t, MessagePayload{
		ID:         "m1",
		SenderID:   "alice",
		ReceiverID: "bob",
		Text:       "hi",
		Timestamp:  "2024-03-01T08:30:15.123Z",
		TempID:     "t1",
	}, payload)
}

func TestMessageSent_DurableOnlyWhenFalse(t *testing.T) {
	base := MessagePayload{ID: "m1", SenderID: "alice", ReceiverID: "bob", Text: "hi", Timestamp: "2024-03-01T08:30:15.123Z"}

	frame, err := json.Marshal(MessageSent{MessagePayload: base, Delivered: true})
	require.NoError(t, err)
	assert.NotContains(t, string(frame), "durable")
	assert.Contains(t, string(frame), `"delivered":true`)
	assert.Contains(t, string(frame), `"tempId":""`)

	durable := false
	frame, err = json.Marshal(MessageSent{MessagePayload: base, Durable: &durable})
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"durable":false`)
}
