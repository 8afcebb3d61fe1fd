// Package relay persists direct messages and routes them to the recipient's
// live connection, answering the sender with a delivery receipt.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/presence"
	"github.com/nfrund/relay/internal/protocol"
)

// Directory finds the live connection for a user.
type Directory interface {
	Lookup(userID string) (presence.Conn, bool)
}

// Receipt summarises what happened to one send.
type Receipt struct {
	// ID is the durable identifier, or the client's tempId when the store
	// failed and the relay degraded.
	ID string
	// Delivered reports whether the recipient's connection accepted the frame.
	Delivered bool
	// Durable is false when the message was relayed without being stored.
	Durable bool
	// Err is set when the send was refused; it wraps domain.ErrPersistenceFailure.
	Err error
}

// Relay handles send-message events from admitted connections.
type Relay struct {
	store     domain.MessageRepository
	directory Directory
	now       func() time.Time
	degrade   bool
	logger    *slog.Logger
}

// Option configures a Relay.
type Option func(*Relay)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

// WithDegradeOnPersistFailure keeps sending with the client's tempId as the
// identifier when the store fails, marking the receipt non-durable.
func WithDegradeOnPersistFailure(enabled bool) Option {
	return func(r *Relay) {
		r.degrade = enabled
	}
}

// New creates a Relay.
func New(store domain.MessageRepository, directory Directory, logger *slog.Logger, opts ...Option) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{
		store:     store,
		directory: directory,
		now:       time.Now,
		logger:    logger.With("component", "relay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleSend persists req on behalf of sender, delivers it to the receiver if
// they are connected and acknowledges the sender. req must already be
// validated. Frames are only enqueued, so the store is the one blocking call.
func (r *Relay) HandleSend(ctx context.Context, sender presence.Conn, req protocol.SendMessage) Receipt {
	logger := r.logger.With(
		"sender_id", sender.UserID(),
		"receiver_id", req.ReceiverID,
		"temp_id", req.TempID)

	msg := &domain.Message{
		SenderID:   sender.UserID(),
		ReceiverID: req.ReceiverID,
		Text:       req.Text,
		// Stored and sent timestamps must match, and the wire carries milliseconds.
		Timestamp: r.now().UTC().Truncate(time.Millisecond),
	}

	receipt := Receipt{Durable: true}
	id, err := r.store.Create(ctx, msg)
	if err != nil {
		if !r.degrade {
			logger.Error("Failed to persist message, send refused", "error", err)
			receipt.Err = fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
			r.reply(sender, protocol.TypeSendFailed, protocol.SendFailed{
				TempID:     req.TempID,
				ReceiverID: req.ReceiverID,
				Error:      domain.ErrPersistenceFailure.Error(),
			})
			return receipt
		}

		id = req.TempID
		if id == "" {
			id = uuid.NewString()
		}
		receipt.Durable = false
		logger.Error("Failed to persist message, relaying without a durable id", "error", err, "id", id)
	}
	receipt.ID = id

	payload := protocol.NewMessagePayload(id, msg, req.TempID)

	if recipient, ok := r.directory.Lookup(req.ReceiverID); ok {
		frame, err := protocol.Encode(protocol.TypeNewMessage, payload)
		if err != nil {
			logger.Error("Failed to encode new-message", "error", err)
		} else if recipient.Send(frame) {
			receipt.Delivered = true
		} else {
			logger.Warn("Recipient send buffer full, message not delivered live",
				"conn_id", recipient.ID())
		}
	}

	ack := protocol.MessageSent{MessagePayload: payload, Delivered: receipt.Delivered}
	if !receipt.Durable {
		durable := false
		ack.Durable = &durable
	}
	r.reply(sender, protocol.TypeMessageSent, ack)

	logger.Debug("Message relayed", "id", id, "delivered", receipt.Delivered, "durable", receipt.Durable)
	return receipt
}

func (r *Relay) reply(sender presence.Conn, eventType string, payload any) {
	frame, err := protocol.Encode(eventType, payload)
	if err != nil {
		r.logger.Error("Failed to encode reply", "type", eventType, "error", err)
		return
	}
	if !sender.Send(frame) {
		r.logger.Warn("Sender send buffer full, reply dropped",
			"type", eventType,
			"user_id", sender.UserID(),
			"conn_id", sender.ID())
	}
}
