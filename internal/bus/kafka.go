package bus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"vitaex/internal/platform/config"
	"vitaex/internal/platform/metrics"
	"vitaex/pkg/platform/sentinel"
)

// KafkaBus implements Bus on top of a Kafka-compatible broker. One shared
// client produces; each subscription runs its own consumer-group client so a
// stalled topic never starves the others. Records are keyed by user id for
// per-user partition affinity.
type KafkaBus struct {
	cfg     config.Bus
	client  *kgo.Client
	log     *log.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	subs   []*kafkaSub
	closed bool
}

type kafkaSub struct {
	client *kgo.Client
	done   chan struct{}
}

// KafkaOption configures a KafkaBus.
type KafkaOption func(*KafkaBus)

// WithKafkaMetrics reports publish counts through the platform metrics.
func WithKafkaMetrics(m *metrics.Metrics) KafkaOption {
	return func(b *KafkaBus) { b.metrics = m }
}

// NewKafka connects the producer client and verifies broker reachability.
func NewKafka(cfg config.Bus, logger *log.Logger, opts ...KafkaOption) (*KafkaBus, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProduceRequestTimeout(cfg.ProduceTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ProduceTimeout)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka ping: %w", errors.Join(sentinel.ErrBusUnavailable, err))
	}

	b := &KafkaBus{cfg: cfg, client: client, log: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

// EnsureTopics creates any missing topics. Existing topics are not an error;
// a real deployment may instead provision them via IaC.
func (b *KafkaBus) EnsureTopics(ctx context.Context, topics ...string) error {
	adm := kadm.NewClient(b.client)
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", errors.Join(sentinel.ErrBusUnavailable, err))
	}
	for _, res := range resp.Sorted() {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", res.Topic, res.Err)
		}
	}
	return nil
}

func (b *KafkaBus) Publish(ctx context.Context, topic, eventType string, payload map[string]any, userID, correlationID string) (string, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", fmt.Errorf("publish %s: %w", topic, sentinel.ErrBusUnavailable)
	}
	b.mu.Unlock()

	corr := ensureCorrelationID(correlationID)
	evt := Event{
		Topic:         topic,
		Type:          eventType,
		Payload:       payload,
		UserID:        userID,
		CorrelationID: corr,
		Timestamp:     time.Now().UTC(),
	}
	raw, err := evt.Encode()
	if err != nil {
		return "", err
	}

	rec := &kgo.Record{Topic: topic, Value: raw}
	if userID != "" {
		rec.Key = []byte(userID)
	}

	pctx, cancel := context.WithTimeout(ctx, b.cfg.ProduceTimeout)
	defer cancel()
	if err := b.client.ProduceSync(pctx, rec).FirstErr(); err != nil {
		return "", fmt.Errorf("produce %s: %w", topic, errors.Join(sentinel.ErrBusUnavailable, err))
	}
	if b.metrics != nil {
		b.metrics.EventsPublished.WithLabelValues(topic).Inc()
	}
	return corr, nil
}

func (b *KafkaBus) Subscribe(ctx context.Context, topic string, fn MessageHandler, opts ...SubscribeOption) (Subscription, error) {
	var sc SubscribeConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&sc)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("subscribe %s: %w", topic, sentinel.ErrBusUnavailable)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(b.cfg.Brokers...),
		kgo.ConsumerGroup(consumerGroup(b.cfg.ConsumerGroup, sc.Subscriber)),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := &kafkaSub{client: client, done: make(chan struct{})}
	b.subs = append(b.subs, sub)
	go sub.poll(ctx, topic, fn, b.log)
	return sub, nil
}

// consumerGroup derives a per-subscriber group. Unnamed subscribers share the
// base group; named ones get their own so two agents consuming the same topic
// both see every event rather than splitting its partitions.
func consumerGroup(base, subscriber string) string {
	if subscriber == "" {
		return base
	}
	return base + "." + subscriber
}

func (s *kafkaSub) poll(ctx context.Context, topic string, fn MessageHandler, logger *log.Logger) {
	defer close(s.done)
	for {
		fetches := s.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}
		fetches.EachError(func(t string, p int32, err error) {
			logger.Printf("fetch error topic=%s partition=%d: %v", t, p, err)
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			fn(ctx, rec.Value)
		})
	}
}

func (s *kafkaSub) Close() error {
	s.client.Close()
	<-s.done
	return nil
}

func (b *KafkaBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	b.client.Close()
	return nil
}
