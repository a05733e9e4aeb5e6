// Package agent provides the shared runtime every agent in the system runs
// inside: topic subscription, the consent gate, error containment at the
// dispatch boundary, and a small lifecycle state machine.
package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"vitaex/internal/audit"
	"vitaex/internal/bus"
	"vitaex/internal/platform/metrics"
	"vitaex/pkg/platform/sentinel"
)

// State models the agent lifecycle. Stop is safe from Ready or Running.
type State int32

const (
	StateCreated State = iota
	StateStarting
	StateReady
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Config identifies an agent instance. Name is the registration key.
type Config struct {
	Name            string
	Version         string
	Description     string
	SubscribeTopics []string
	PublishTopic    string
}

// HandlerFunc is the agent-specific logic invoked once per delivered event.
type HandlerFunc func(ctx context.Context, evt bus.Event) error

// ConsentFunc decides whether an event may reach the handler. The default
// allows everything; agents handling personal data override it.
type ConsentFunc func(ctx context.Context, evt bus.Event) (bool, error)

// ErrorFunc is invoked with any failure caught at the dispatch boundary,
// together with the raw message for diagnosis. The default only logs.
type ErrorFunc func(ctx context.Context, err error, raw []byte)

// Runtime wraps a handler with the shared dispatch behavior. One Runtime
// serves one agent; its dispatch loops run until Stop.
type Runtime struct {
	cfg     Config
	bus     bus.Bus
	handle  HandlerFunc
	consent ConsentFunc
	onError ErrorFunc
	log     *log.Logger
	metrics *metrics.Metrics
	audit   audit.Sink
	tracer  trace.Tracer

	state     atomic.Int32
	readyOnce sync.Once
	ready     chan struct{}

	mu      sync.Mutex
	subs    []bus.Subscription
	scratch map[string]any
}

// Option configures optional Runtime collaborators.
type Option func(*Runtime)

// WithConsent installs a consent gate replacing the default allow-all.
func WithConsent(fn ConsentFunc) Option {
	return func(r *Runtime) { r.consent = fn }
}

// WithOnError installs an error hook replacing the default log-only hook.
func WithOnError(fn ErrorFunc) Option {
	return func(r *Runtime) { r.onError = fn }
}

// WithMetrics reports dispatch counters and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// WithAudit records consent denials to the audit sink.
func WithAudit(sink audit.Sink) Option {
	return func(r *Runtime) { r.audit = sink }
}

// New builds a Runtime in the Created state.
func New(cfg Config, b bus.Bus, handle HandlerFunc, logger *log.Logger, opts ...Option) *Runtime {
	r := &Runtime{
		cfg:     cfg,
		bus:     b,
		handle:  handle,
		log:     logger,
		ready:   make(chan struct{}),
		scratch: make(map[string]any),
		tracer:  otel.Tracer("vitaex/agent"),
	}
	r.consent = func(context.Context, bus.Event) (bool, error) { return true, nil }
	r.onError = func(_ context.Context, err error, _ []byte) {
		r.log.Printf("agent %s error: %v", r.cfg.Name, err)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Config returns the agent identity.
func (r *Runtime) Config() Config { return r.cfg }

// State returns the current lifecycle state.
func (r *Runtime) State() State { return State(r.state.Load()) }

// Ready returns a latch closed once all subscriptions are registered.
func (r *Runtime) Ready() <-chan struct{} { return r.ready }

// Start subscribes to every configured topic. The agent is marked ready only
// after all subscriptions succeed; any failure unwinds the ones already made.
func (r *Runtime) Start(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return fmt.Errorf("start %s from %s: %w", r.cfg.Name, r.State(), sentinel.ErrInvalidState)
	}
	r.log.Printf("starting agent %s v%s", r.cfg.Name, r.cfg.Version)

	for _, topic := range r.cfg.SubscribeTopics {
		sub, err := r.bus.Subscribe(ctx, topic, r.dispatch(topic), bus.WithSubscriber(r.cfg.Name))
		if err != nil {
			r.closeSubs()
			r.state.Store(int32(StateStopped))
			return fmt.Errorf("agent %s subscribe %s: %w", r.cfg.Name, topic, err)
		}
		r.mu.Lock()
		r.subs = append(r.subs, sub)
		r.mu.Unlock()
	}

	r.state.Store(int32(StateReady))
	r.readyOnce.Do(func() { close(r.ready) })
	r.state.Store(int32(StateRunning))
	return nil
}

// Stop deregisters all subscriptions. In-flight handler invocations are not
// drained; shutdown is best effort.
func (r *Runtime) Stop(ctx context.Context) error {
	current := r.State()
	switch current {
	case StateStopping, StateStopped:
		return nil
	case StateReady, StateRunning, StateCreated:
		// fall through
	default:
		return fmt.Errorf("stop %s from %s: %w", r.cfg.Name, current, sentinel.ErrInvalidState)
	}
	r.state.Store(int32(StateStopping))
	r.log.Printf("stopping agent %s", r.cfg.Name)
	r.closeSubs()
	r.state.Store(int32(StateStopped))
	return nil
}

func (r *Runtime) closeSubs() {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Close()
	}
}

// Publish is a thin pass-through to the bus preserving user and correlation
// id propagation.
func (r *Runtime) Publish(ctx context.Context, topic, eventType string, payload map[string]any, userID, correlationID string) (string, error) {
	corr, err := r.bus.Publish(ctx, topic, eventType, payload, userID, correlationID)
	if err != nil {
		return "", err
	}
	if r.metrics != nil {
		r.metrics.EventsPublished.WithLabelValues(topic).Inc()
	}
	return corr, nil
}

// GetState reads a key from the agent's private scratch state.
func (r *Runtime) GetState(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.scratch[key]
	return v, ok
}

// SetState writes a key into the agent's private scratch state.
func (r *Runtime) SetState(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scratch[key] = value
}

// dispatch adapts one topic's deliveries into consent-gated handler calls.
// Every failure mode is contained here: a single bad event never takes down
// the loop or affects sibling subscriptions.
func (r *Runtime) dispatch(topic string) bus.MessageHandler {
	return func(ctx context.Context, raw []byte) {
		ctx, span := r.tracer.Start(ctx, "agent.dispatch", trace.WithAttributes(
			attribute.String("agent.name", r.cfg.Name),
			attribute.String("event.topic", topic),
		))
		defer span.End()

		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("agent %s panic on %s: %v", r.cfg.Name, topic, rec)
				span.RecordError(err)
				r.recordError(ctx, err, raw)
			}
		}()

		start := time.Now()
		evt, err := bus.Decode(raw)
		if err != nil {
			span.RecordError(err)
			r.recordError(ctx, fmt.Errorf("agent %s on %s: %w", r.cfg.Name, topic, err), raw)
			return
		}
		span.SetAttributes(attribute.String("event.correlation_id", evt.CorrelationID))

		allowed, err := r.consent(ctx, evt)
		if err != nil {
			// Fail closed: uncertainty about consent is treated as denial.
			r.log.Printf("agent %s consent check failed for correlation_id=%s: %v", r.cfg.Name, evt.CorrelationID, err)
			allowed = false
		}
		if !allowed {
			r.log.Printf("WARN agent %s consent gate blocked event correlation_id=%s", r.cfg.Name, evt.CorrelationID)
			if r.metrics != nil {
				r.metrics.ConsentDenied.WithLabelValues(r.cfg.Name).Inc()
			}
			if r.audit != nil {
				r.audit.Record(ctx, "consent.denied", evt.UserID, map[string]any{
					"agent": r.cfg.Name,
					"topic": topic,
				}, evt.CorrelationID)
			}
			return
		}

		if err := r.handle(ctx, evt); err != nil {
			span.RecordError(err)
			if r.metrics != nil {
				r.metrics.HandlerErrors.WithLabelValues(r.cfg.Name).Inc()
			}
			r.recordError(ctx, fmt.Errorf("agent %s handling %s type=%s correlation_id=%s: %w",
				r.cfg.Name, topic, evt.Type, evt.CorrelationID, err), raw)
			return
		}

		if r.metrics != nil {
			r.metrics.EventsHandled.WithLabelValues(r.cfg.Name, topic).Inc()
			r.metrics.HandleDuration.WithLabelValues(r.cfg.Name).Observe(time.Since(start).Seconds())
		}
	}
}

func (r *Runtime) recordError(ctx context.Context, err error, raw []byte) {
	r.log.Printf("%v", err)
	r.onError(ctx, err, raw)
}
