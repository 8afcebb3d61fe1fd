package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nfrund/relay/internal/domain"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

const messageTable = "message"

var _ domain.MessageRepository = (*SurrealMessageStore)(nil)

// surrealMessage is the row shape of the message table.
type surrealMessage struct {
	ID         *models.RecordID      `json:"id,omitempty"`
	SenderID   string                `json:"sender_id"`
	ReceiverID string                `json:"receiver_id"`
	Text       string                `json:"text"`
	Read       bool                  `json:"read"`
	Timestamp  models.CustomDateTime `json:"timestamp"`
}

func (m surrealMessage) toDomain() *domain.Message {
	msg := &domain.Message{
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		Read:       m.Read,
		Timestamp:  m.Timestamp.Time.UTC(),
	}
	if m.ID != nil {
		msg.ID = m.ID.String()
	}
	return msg
}

// SurrealMessageStore persists messages in SurrealDB.
type SurrealMessageStore struct {
	db      *surrealdb.DB
	timeout time.Duration
}

// NewSurrealMessageStore wraps an open connection. timeout bounds every call.
func NewSurrealMessageStore(db *surrealdb.DB, timeout time.Duration) *SurrealMessageStore {
	return &SurrealMessageStore{db: db, timeout: timeout}
}

// EnsureSchema defines the index used by conversation reads.
func (s *SurrealMessageStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := getTimeoutFromContext(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf("DEFINE INDEX IF NOT EXISTS message_pair ON %s FIELDS sender_id, receiver_id, timestamp", messageTable)
	if err := Execute(ctx, s.db, query, nil); err != nil {
		return WrapError(err, "define message index")
	}
	return nil
}

// Create implements domain.MessageRepository.
func (s *SurrealMessageStore) Create(ctx context.Context, msg *domain.Message) (string, error) {
	if msg == nil {
		return "", errors.New("message to create cannot be nil")
	}
	if err := msg.Validate(); err != nil {
		return "", fmt.Errorf("validation failed for message: %w", err)
	}

	ctx, cancel := getTimeoutFromContext(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf("CREATE %s CONTENT $data", messageTable)
	params := map[string]any{
		"data": map[string]any{
			"sender_id":   msg.SenderID,
			"receiver_id": msg.ReceiverID,
			"text":        msg.Text,
			"read":        false,
			"timestamp":   models.CustomDateTime{Time: msg.Timestamp.UTC()},
		},
	}

	created, err := QueryOne[surrealMessage](ctx, s.db, query, params)
	if err != nil {
		return "", WrapError(err, "create message")
	}
	if created == nil || created.ID == nil {
		return "", NewDBError(ErrQueryFailed, "create message returned no record").WithQuery(query)
	}
	return created.ID.String(), nil
}

// History implements domain.MessageRepository.
func (s *SurrealMessageStore) History(ctx context.Context, userA, userB string, q domain.HistoryQuery) ([]*domain.Message, error) {
	ctx, cancel := getTimeoutFromContext(ctx, s.timeout)
	defer cancel()

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(messageTable)
	b.WriteString(" WHERE ((sender_id = $a AND receiver_id = $b) OR (sender_id = $b AND receiver_id = $a))")
	params := map[string]any{"a": userA, "b": userB}
	if !q.Before.IsZero() {
		b.WriteString(" AND timestamp < $before")
		params["before"] = models.CustomDateTime{Time: q.Before.UTC()}
	}
	fmt.Fprintf(&b, " ORDER BY timestamp DESC LIMIT %d", q.EffectiveLimit())
	query := b.String()

	rows, err := Query[surrealMessage](ctx, s.db, query, params)
	if err != nil {
		return nil, WrapError(err, "load history")
	}

	// Newest first from the query; callers get oldest first.
	out := make([]*domain.Message, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = row.toDomain()
	}
	return out, nil
}

// MarkRead implements domain.MessageRepository.
func (s *SurrealMessageStore) MarkRead(ctx context.Context, readerID, senderID string) (int, error) {
	ctx, cancel := getTimeoutFromContext(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf("UPDATE %s SET read = true WHERE sender_id = $sender AND receiver_id = $reader AND read = false", messageTable)
	rows, err := Query[surrealMessage](ctx, s.db, query, map[string]any{
		"sender": senderID,
		"reader": readerID,
	})
	if err != nil {
		return 0, WrapError(err, "mark messages read")
	}
	return len(rows), nil
}

// Close closes the connection.
func (s *SurrealMessageStore) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}
