package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/nfrund/relay/internal/domain"
)

var _ domain.MessageRepository = (*MemoryMessageStore)(nil)

// MemoryMessageStore keeps messages in process memory. It backs development
// runs and tests, and the file store replays its log into one.
type MemoryMessageStore struct {
	mu       sync.RWMutex
	messages []domain.Message
}

// NewMemoryMessageStore creates an empty store.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{}
}

// NewStoredMessage validates msg and returns the record a local store keeps
// for it: a fresh uuid, unread, timestamp in UTC.
func NewStoredMessage(msg *domain.Message) (domain.Message, error) {
	if msg == nil {
		return domain.Message{}, errors.New("message to create cannot be nil")
	}
	if err := msg.Validate(); err != nil {
		return domain.Message{}, fmt.Errorf("validation failed for message: %w", err)
	}

	stored := *msg
	stored.ID = uuid.NewString()
	stored.Read = false
	stored.Timestamp = msg.Timestamp.UTC()
	return stored, nil
}

// Create implements domain.MessageRepository.
func (s *MemoryMessageStore) Create(ctx context.Context, msg *domain.Message) (string, error) {
	stored, err := NewStoredMessage(msg)
	if err != nil {
		return "", err
	}
	s.Restore(stored)
	return stored.ID, nil
}

// Restore inserts msg exactly as given, keeping its ID and read flag.
func (s *MemoryMessageStore) Restore(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Keep the slice ordered by timestamp; inserts are almost always appends.
	i := sort.Search(len(s.messages), func(i int) bool {
		return s.messages[i].Timestamp.After(msg.Timestamp)
	})
	s.messages = append(s.messages, domain.Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = msg
}

// History implements domain.MessageRepository.
func (s *MemoryMessageStore) History(ctx context.Context, userA, userB string, q domain.HistoryQuery) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := q.EffectiveLimit()
	var newestFirst []*domain.Message
	for i := len(s.messages) - 1; i >= 0 && len(newestFirst) < limit; i-- {
		m := s.messages[i]
		if !inConversation(m, userA, userB) {
			continue
		}
		if !q.Before.IsZero() && !m.Timestamp.Before(q.Before) {
			continue
		}
		msg := m
		newestFirst = append(newestFirst, &msg)
	}

	out := make([]*domain.Message, len(newestFirst))
	for i, m := range newestFirst {
		out[len(newestFirst)-1-i] = m
	}
	return out, nil
}

// MarkRead implements domain.MessageRepository.
func (s *MemoryMessageStore) MarkRead(ctx context.Context, readerID, senderID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for i := range s.messages {
		m := &s.messages[i]
		if m.SenderID == senderID && m.ReceiverID == readerID && !m.Read {
			m.Read = true
			changed++
		}
	}
	return changed, nil
}

// Len returns the number of stored messages.
func (s *MemoryMessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Close implements domain.MessageRepository.
func (s *MemoryMessageStore) Close(ctx context.Context) error {
	return nil
}

func inConversation(m domain.Message, userA, userB string) bool {
	return (m.SenderID == userA && m.ReceiverID == userB) ||
		(m.SenderID == userB && m.ReceiverID == userA)
}
