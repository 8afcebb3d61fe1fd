package websocket

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// State is the lifecycle stage of a connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Conn is one admitted WebSocket connection. Outbound frames go through a
// bounded queue drained by a single write pump, so Send never blocks.
type Conn struct {
	id         string
	userID     string
	admittedAt time.Time

	ws    *websocket.Conn
	send  chan []byte
	done  chan struct{}
	state atomic.Int32

	closeOnce      sync.Once
	disconnectOnce sync.Once

	logger *slog.Logger
}

func newConn(ws *websocket.Conn, userID string, sendBuffer int, logger *slog.Logger) *Conn {
	c := &Conn{
		id:         uuid.NewString(),
		userID:     userID,
		admittedAt: time.Now().UTC(),
		ws:         ws,
		send:       make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
	}
	c.logger = logger.With("user_id", userID, "conn_id", c.id)
	c.state.Store(int32(StateAuthenticated))
	return c
}

// ID implements presence.Conn.
func (c *Conn) ID() string { return c.id }

// UserID implements presence.Conn.
func (c *Conn) UserID() string { return c.userID }

// AdmittedAt is when the handshake was accepted.
func (c *Conn) AdmittedAt() time.Time { return c.admittedAt }

// State returns the current lifecycle stage.
func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) activate() {
	c.state.CompareAndSwap(int32(StateAuthenticated), int32(StateActive))
}

// Send implements presence.Conn. It returns false when the queue is full or
// the connection is closing.
func (c *Conn) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Warn("Client send channel full, dropping message")
		return false
	}
}

// writePump drains the queue onto the socket and pings the peer while idle.
func (c *Conn) writePump(writeTimeout, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close(websocket.StatusInternalError, "write failed")
	}()

	for {
		select {
		case <-c.done:
			return

		case frame := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.ws.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				c.logger.Error("WebSocket write error", "error", err)
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.ws.Ping(ctx)
			cancel()
			if err != nil {
				c.logger.Debug("WebSocket ping failed", "error", err)
				return
			}
		}
	}
}

// Close stops the write pump and closes the socket. Only the first call has
// any effect.
func (c *Conn) Close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.ws.Close(code, reason); err != nil {
			c.logger.Debug("WebSocket close", "error", err)
		}
	})
}

// markDisconnected moves the connection to its terminal state and runs fn
// exactly once, however many paths observe the disconnect.
func (c *Conn) markDisconnected(fn func()) {
	c.disconnectOnce.Do(func() {
		c.state.Store(int32(StateDisconnected))
		fn()
	})
}
