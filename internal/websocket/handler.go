// Package websocket serves the /ws endpoint: it admits authenticated
// handshakes, registers the connection for presence, and dispatches the
// client's events to the relay one at a time.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/middleware"
	"github.com/nfrund/relay/internal/presence"
	"github.com/nfrund/relay/internal/protocol"
	"github.com/nfrund/relay/internal/relay"
)

// Options tunes the transport.
type Options struct {
	SendBuffer      int
	WriteTimeout    time.Duration
	PingPeriod      time.Duration
	MaxMessageBytes int64
	// OriginPatterns restricts cross-origin handshakes. Empty allows any origin.
	OriginPatterns []string
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 * 1024
	}
	return o
}

// Handler upgrades admitted handshakes and runs each connection.
type Handler struct {
	gatekeeper *Gatekeeper
	registry   *presence.Registry
	relay      *relay.Relay
	validate   *validator.Validate
	allow      *eventAllowlist
	opts       Options
	logger     *slog.Logger

	// ctx outlives individual requests; it ends when the server shuts down.
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[string]*Conn
}

// NewHandler wires the transport to its collaborators.
func NewHandler(gatekeeper *Gatekeeper, registry *presence.Registry, r *relay.Relay, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		gatekeeper: gatekeeper,
		registry:   registry,
		relay:      r,
		validate:   validator.New(),
		allow:      newEventAllowlist(protocol.TypeSendMessage),
		opts:       opts.withDefaults(),
		logger:     logger.With("component", "websocket"),
		ctx:        ctx,
		cancel:     cancel,
		conns:      make(map[string]*Conn),
	}
}

// Serve is the echo handler for the upgrade route. It blocks for the life of
// the connection.
func (h *Handler) Serve(c echo.Context) error {
	req := c.Request()
	logger := middleware.FromContext(req.Context()).With("component", "websocket")

	userID, err := h.gatekeeper.Admit(req.Context(), req.Header)
	if err != nil {
		logger.Warn("WebSocket handshake rejected", "error", err, "remote_ip", c.RealIP())
		msg := "invalid token"
		if errors.Is(err, domain.ErrAuthenticationRequired) {
			msg = "authentication required"
		}
		return c.String(http.StatusUnauthorized, msg)
	}

	ws, err := websocket.Accept(c.Response(), req, &websocket.AcceptOptions{
		OriginPatterns:     h.opts.OriginPatterns,
		InsecureSkipVerify: len(h.opts.OriginPatterns) == 0,
	})
	if err != nil {
		logger.Error("Failed to upgrade connection to WebSocket", "user_id", userID, "error", err)
		// Accept has already written the HTTP error response.
		return nil
	}
	ws.SetReadLimit(h.opts.MaxMessageBytes)

	conn := newConn(ws, userID, h.opts.SendBuffer, h.logger)
	h.run(conn)
	return nil
}

func (h *Handler) run(conn *Conn) {
	ctx := h.ctx

	h.track(conn)
	h.registry.Register(ctx, conn)
	conn.activate()

	go conn.writePump(h.opts.WriteTimeout, h.opts.PingPeriod)

	defer func() {
		conn.markDisconnected(func() {
			h.registry.Unregister(context.Background(), conn)
		})
		h.untrack(conn)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	h.readLoop(ctx, conn)
}

// readLoop handles the client's frames one at a time until the socket closes.
func (h *Handler) readLoop(ctx context.Context, conn *Conn) {
	for {
		typ, data, err := conn.ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				conn.logger.Info("WebSocket closed normally by client")
			} else if ctx.Err() == nil {
				conn.logger.Debug("WebSocket read ended", "error", err)
			}
			return
		}

		if typ != websocket.MessageText {
			h.replyError(conn, protocol.CodeUnsupported, "binary frames are not supported")
			continue
		}
		h.dispatch(ctx, conn, data)
	}
}

func (h *Handler) dispatch(ctx context.Context, conn *Conn, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		h.replyError(conn, protocol.CodeMalformed, err.Error())
		return
	}
	if !h.allow.IsAllowed(env.Type) {
		h.replyError(conn, protocol.CodeUnsupported, "unsupported event type "+env.Type)
		return
	}

	switch env.Type {
	case protocol.TypeSendMessage:
		var req protocol.SendMessage
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			h.replyError(conn, protocol.CodeMalformed, "send-message payload is not valid JSON")
			return
		}
		if err := h.validateSend(req); err != nil {
			h.replyError(conn, protocol.CodeInvalid, err.Error())
			return
		}
		h.relay.HandleSend(ctx, conn, req)
	}
}

// validateSend checks req with whitespace-only text treated as empty. The
// text itself is relayed unmodified.
func (h *Handler) validateSend(req protocol.SendMessage) error {
	check := req
	check.Text = strings.TrimSpace(req.Text)
	check.ReceiverID = strings.TrimSpace(req.ReceiverID)
	return h.validate.Struct(check)
}

func (h *Handler) replyError(conn *Conn, code, message string) {
	frame, err := protocol.Encode(protocol.TypeError, protocol.ErrorPayload{Code: code, Message: message})
	if err != nil {
		conn.logger.Error("Failed to encode error frame", "error", err)
		return
	}
	conn.Send(frame)
}

func (h *Handler) track(conn *Conn) {
	h.mu.Lock()
	h.conns[conn.ID()] = conn
	h.mu.Unlock()
}

func (h *Handler) untrack(conn *Conn) {
	h.mu.Lock()
	delete(h.conns, conn.ID())
	h.mu.Unlock()
}

// Active returns the number of open connections.
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown closes every connection with "going away" and waits, bounded by
// ctx, for their read loops to finish.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	// Close before cancelling: a cancelled read context makes the library
	// close with a policy violation instead.
	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn *Conn) {
			defer wg.Done()
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		}(conn)
	}
	wg.Wait()
	h.cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for h.Active() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
