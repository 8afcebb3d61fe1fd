package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Conn is the part of a live connection the registry and relay need.
type Conn interface {
	// ID uniquely identifies the connection for its whole lifetime.
	ID() string
	// UserID is the identity admitted at handshake time. It never changes.
	UserID() string
	// Send enqueues a frame without blocking and reports whether it was queued.
	Send(frame []byte) bool
}

// Status is an online/offline transition for one user.
type Status struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// Notifier receives status transitions in the order the registry applied them.
// It is called without the map lock held. originConnID is the connection that caused the transition; it must not
// receive the resulting user-status frame.
type Notifier interface {
	Notify(ctx context.Context, status Status, originConnID string)
}

// Registry maps each user to their most recently admitted connection and keeps
// the set of every admitted connection for status fan-out.
type Registry struct {
	// notifyMu serialises a mutation together with its notification, so
	// transitions reach the notifier in the order they hit the map.
	notifyMu sync.Mutex
	mu       sync.RWMutex
	entries  map[string]Conn // userID -> newest connection
	admitted map[string]Conn // connID -> connection
	notifier Notifier
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. A nil notifier discards transitions.
func NewRegistry(notifier Notifier, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries:  make(map[string]Conn),
		admitted: make(map[string]Conn),
		notifier: notifier,
		logger:   logger.With("component", "presence"),
	}
}

// Register makes conn the addressable connection for its user, replacing any
// earlier one, and announces the user as online to everyone else. A replaced
// connection stays admitted and keeps receiving broadcasts until it closes.
func (r *Registry) Register(ctx context.Context, conn Conn) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	previous, replaced := r.entries[conn.UserID()]
	r.entries[conn.UserID()] = conn
	r.admitted[conn.ID()] = conn
	r.mu.Unlock()

	if replaced && previous.ID() != conn.ID() {
		r.logger.Info("Connection superseded",
			"user_id", conn.UserID(),
			"conn_id", conn.ID(),
			"previous_conn_id", previous.ID())
	} else {
		r.logger.Info("User came online", "user_id", conn.UserID(), "conn_id", conn.ID())
	}

	r.notify(ctx, Status{UserID: conn.UserID(), Online: true}, conn.ID())
}

// Unregister drops conn from the admitted set and removes the user's entry only
// if it still points at conn. It reports whether the entry was removed; only
// then is the user announced as offline. Calling it twice is harmless.
func (r *Registry) Unregister(ctx context.Context, conn Conn) bool {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	delete(r.admitted, conn.ID())
	current, ok := r.entries[conn.UserID()]
	removed := ok && current.ID() == conn.ID()
	if removed {
		delete(r.entries, conn.UserID())
	}
	r.mu.Unlock()

	if !removed {
		r.logger.Debug("Stale disconnect ignored", "user_id", conn.UserID(), "conn_id", conn.ID())
		return false
	}

	r.logger.Info("User went offline", "user_id", conn.UserID(), "conn_id", conn.ID())
	r.notify(ctx, Status{UserID: conn.UserID(), Online: false}, conn.ID())
	return true
}

// Lookup returns the addressable connection for userID.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.entries[userID]
	return conn, ok
}

// IsOnline reports whether userID has an addressable connection.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Broadcast enqueues frame on every admitted connection except exceptConnID and
// returns how many connections accepted it. Full queues are skipped.
func (r *Registry) Broadcast(frame []byte, exceptConnID string) int {
	targets := r.Connections()

	sent := 0
	for _, conn := range targets {
		if conn.ID() == exceptConnID {
			continue
		}
		if conn.Send(frame) {
			sent++
		} else {
			r.logger.Warn("Dropped broadcast frame, send buffer full",
				"user_id", conn.UserID(), "conn_id", conn.ID())
		}
	}
	return sent
}

// Connections returns a snapshot of every admitted connection.
func (r *Registry) Connections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]Conn, 0, len(r.admitted))
	for _, conn := range r.admitted {
		conns = append(conns, conn)
	}
	return conns
}

// OnlineUsers returns the sorted identities that currently have an entry.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.entries))
	for userID := range r.entries {
		users = append(users, userID)
	}
	r.mu.RUnlock()

	sort.Strings(users)
	return users
}

func (r *Registry) notify(ctx context.Context, status Status, originConnID string) {
	if r.notifier == nil {
		return
	}
	r.notifier.Notify(ctx, status, originConnID)
}
