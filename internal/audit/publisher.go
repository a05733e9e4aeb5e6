package audit

import (
	"context"
	"log"
	"time"

	"vitaex/internal/platform/metrics"
)

// Sink accepts audit records fire-and-forget. Implementations must never
// block or fail the calling agent.
type Sink interface {
	Record(ctx context.Context, action, userID string, details map[string]any, correlationID string)
}

// Publisher buffers entries for a background Worker. When the buffer is full
// the entry is dropped and counted; losing an audit record is preferable to
// stalling a dispatch loop.
type Publisher struct {
	inbox   chan Entry
	log     *log.Logger
	metrics *metrics.Metrics
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherMetrics counts dropped records.
func WithPublisherMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *Publisher) { p.metrics = m }
}

// NewPublisher creates a Publisher with the given buffer size.
func NewPublisher(buffer int, logger *log.Logger, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		inbox: make(chan Entry, buffer),
		log:   logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *Publisher) Record(_ context.Context, action, userID string, details map[string]any, correlationID string) {
	entry := Entry{
		Timestamp:     time.Now().UTC(),
		Action:        action,
		UserID:        userID,
		Actor:         "system",
		Details:       details,
		CorrelationID: correlationID,
	}
	select {
	case p.inbox <- entry:
	default:
		p.log.Printf("WARN audit buffer full, dropping action=%s", action)
		if p.metrics != nil {
			p.metrics.AuditDropped.Inc()
		}
	}
}

// Inbox exposes the buffered entries for the Worker.
func (p *Publisher) Inbox() <-chan Entry { return p.inbox }

// Discard is a Sink that drops everything. Useful in tests.
type Discard struct{}

func (Discard) Record(context.Context, string, string, map[string]any, string) {}
