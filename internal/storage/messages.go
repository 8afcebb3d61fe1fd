// Package storage keeps the message log on a filesystem through afero, so the
// same code runs against disk in development and memory in tests.
package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nfrund/relay/internal/database"
	"github.com/nfrund/relay/internal/domain"
	"github.com/spf13/afero"
)

var _ domain.MessageRepository = (*FileMessageStore)(nil)

// Log record operations.
const (
	opCreate = "create"
	opRead   = "read"
)

// record is one line of the JSON-lines log.
type record struct {
	Op       string          `json:"op"`
	Message  *domain.Message `json:"message,omitempty"`
	ReaderID string          `json:"readerId,omitempty"`
	SenderID string          `json:"senderId,omitempty"`
	At       time.Time       `json:"at"`
}

// FileMessageStore appends every write to a JSON-lines log and serves reads
// from an in-memory index rebuilt from that log on open.
type FileMessageStore struct {
	mu    sync.Mutex
	fs    afero.Fs
	path  string
	file  afero.File
	index *database.MemoryMessageStore
}

// OpenFileMessageStore opens or creates the log at path and replays it.
func OpenFileMessageStore(fs afero.Fs, path string) (*FileMessageStore, error) {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	index := database.NewMemoryMessageStore()
	complete, torn, err := replay(fs, path, index)
	if err != nil {
		return nil, err
	}
	if torn {
		slog.Warn("Message log ends in a partial record, truncating",
			"path", path, "size", complete)
		if err := truncate(fs, path, complete); err != nil {
			return nil, err
		}
	}

	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open message log: %w", err)
	}

	return &FileMessageStore{fs: fs, path: path, file: f, index: index}, nil
}

// replay loads every complete record into index. It returns the size of the
// log up to the last newline and whether bytes after it were left over from an
// interrupted write.
func replay(fs afero.Fs, path string, index *database.MemoryMessageStore) (int64, bool, error) {
	f, err := fs.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("open message log: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	var complete int64
	line := 0
	for {
		data, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// Every append ends in a newline, so a tail without one never
			// finished writing.
			return complete, len(data) > 0, nil
		}
		if err != nil {
			return 0, false, fmt.Errorf("read message log: %w", err)
		}
		line++
		complete += int64(len(data))

		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return 0, false, fmt.Errorf("message log %s line %d: %w", path, line, err)
		}
		switch rec.Op {
		case opCreate:
			if rec.Message != nil {
				index.Restore(*rec.Message)
			}
		case opRead:
			_, _ = index.MarkRead(context.Background(), rec.ReaderID, rec.SenderID)
		}
	}
}

func truncate(fs afero.Fs, path string, size int64) error {
	f, err := fs.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open message log: %w", err)
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return fmt.Errorf("truncate message log: %w", err)
	}
	return f.Close()
}

func (s *FileMessageStore) append(rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if s.file == nil {
		return database.NewDBError(database.ErrNotConnected, "message log closed")
	}
	if _, err := s.file.Write(data); err != nil {
		return database.NewDBError(err, "append message log")
	}
	return nil
}

// Create implements domain.MessageRepository. The record is on the log before
// it becomes visible to reads.
func (s *FileMessageStore) Create(ctx context.Context, msg *domain.Message) (string, error) {
	stored, err := database.NewStoredMessage(msg)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.append(record{Op: opCreate, Message: &stored, At: time.Now().UTC()}); err != nil {
		return "", err
	}
	s.index.Restore(stored)
	return stored.ID, nil
}

// History implements domain.MessageRepository.
func (s *FileMessageStore) History(ctx context.Context, userA, userB string, q domain.HistoryQuery) ([]*domain.Message, error) {
	return s.index.History(ctx, userA, userB, q)
}

// MarkRead implements domain.MessageRepository.
func (s *FileMessageStore) MarkRead(ctx context.Context, readerID, senderID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.append(record{Op: opRead, ReaderID: readerID, SenderID: senderID, At: time.Now().UTC()}); err != nil {
		return 0, err
	}
	return s.index.MarkRead(ctx, readerID, senderID)
}

// Close syncs and closes the log.
func (s *FileMessageStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	syncErr := s.file.Sync()
	closeErr := s.file.Close()
	s.file = nil
	return errors.Join(syncErr, closeErr)
}
