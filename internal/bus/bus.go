package bus

import (
	"context"

	"github.com/google/uuid"
)

// MessageHandler receives the raw wire bytes of one delivered message.
// Deserialization and error containment belong to the dispatch layer, not
// the transport.
type MessageHandler func(ctx context.Context, raw []byte)

// Subscription is a handle to one consumer registration. Closing it stops
// delivery; in-flight handler invocations are not drained.
type Subscription interface {
	Close() error
}

// SubscribeConfig carries per-subscription settings.
type SubscribeConfig struct {
	Subscriber string
}

// SubscribeOption configures one subscription.
type SubscribeOption func(*SubscribeConfig)

// WithSubscriber names the subscribing agent. Group-based transports derive
// the consumer group from it, so distinct subscribers each receive every
// event instead of splitting one group's partitions between them.
func WithSubscriber(name string) SubscribeOption {
	return func(c *SubscribeConfig) { c.Subscriber = name }
}

// Bus is the publish-subscribe transport contract. Delivery is at-least-once
// per subscriber group; ordering is best-effort FIFO per topic partition and
// never guaranteed across topics.
type Bus interface {
	// Publish sends one event and returns the correlation id used: the one
	// supplied, or a freshly generated UUID when empty. It does not block
	// past broker acknowledgement.
	Publish(ctx context.Context, topic, eventType string, payload map[string]any, userID, correlationID string) (string, error)

	// Subscribe registers a handler for a topic. A failed subscribe is fatal
	// to the caller's startup.
	Subscribe(ctx context.Context, topic string, fn MessageHandler, opts ...SubscribeOption) (Subscription, error)

	// Close releases the transport. Publish after Close fails with
	// sentinel.ErrBusUnavailable.
	Close() error
}

func ensureCorrelationID(correlationID string) string {
	if correlationID != "" {
		return correlationID
	}
	return uuid.NewString()
}
