package presence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nfrund/relay/internal/protocol"
	"github.com/nfrund/relay/internal/pubsub"
)

// TopicUserStatus carries presence transitions over the bus.
var TopicUserStatus = pubsub.NewEvent[Status]("presence.user.status")

// metaKeyOriginConn names the connection whose admission or disconnect caused
// the transition.
const metaKeyOriginConn = "origin_conn"

// BusNotifier publishes status transitions to the message bus.
type BusNotifier struct {
	publisher pubsub.Publisher
	logger    *slog.Logger
}

// NewBusNotifier creates a Notifier backed by publisher.
func NewBusNotifier(publisher pubsub.Publisher, logger *slog.Logger) *BusNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &BusNotifier{publisher: publisher, logger: logger.With("component", "presence")}
}

// Notify implements Notifier. Publish failures are logged; presence updates
// are best effort and never fail a handshake or disconnect.
func (n *BusNotifier) Notify(ctx context.Context, status Status, originConnID string) {
	err := pubsub.Publish(ctx, n.publisher, TopicUserStatus, status.UserID, status, map[string]string{
		metaKeyOriginConn: originConnID,
	})
	if err != nil {
		n.logger.Error("Failed to publish user status",
			"user_id", status.UserID,
			"online", status.Online,
			"error", err)
	}
}

// Forward subscribes to status transitions and fans each one out as a
// user-status frame to every admitted connection except the originating one.
func Forward(ctx context.Context, subscriber pubsub.Subscriber, registry *Registry) error {
	return pubsub.Subscribe(ctx, subscriber, TopicUserStatus, func(ctx context.Context, status Status, msg pubsub.Message) error {
		frame, err := protocol.Encode(protocol.TypeUserStatus, protocol.UserStatus{
			UserID: status.UserID,
			Online: status.Online,
		})
		if err != nil {
			return fmt.Errorf("encode user-status: %w", err)
		}
		registry.Broadcast(frame, msg.Metadata[metaKeyOriginConn])
		return nil
	})
}
