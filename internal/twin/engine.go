// Package twin maintains the per-user digital twin: a versioned longitudinal
// health model updated from the event stream, scored deterministically, and
// persisted on a debounced schedule.
package twin

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"vitaex/internal/agent"
	"vitaex/internal/audit"
	"vitaex/internal/bus"
	"vitaex/internal/consent"
	"vitaex/internal/platform/metrics"
	"vitaex/internal/timeseries"
)

// UnknownUser is the sentinel identity for events with no resolvable user
// id. Such events are processed, not dropped.
const UnknownUser = "unknown"

const (
	defaultPersistInterval = 5 * time.Minute
	defaultPersistTimeout  = 10 * time.Second
	shutdownJoinTimeout    = 15 * time.Second
)

// userSlot holds one user's twin and its persistence slot. The mutex makes
// per-user mutations serial even when events for the same user interleave
// across topics.
type userSlot struct {
	mu      sync.Mutex
	state   *State
	persist *persistTask
}

// Engine is the digital twin agent.
type Engine struct {
	rt      *agent.Runtime
	store   timeseries.Store
	oracle  consent.Oracle
	audit   audit.Sink
	log     *log.Logger
	metrics *metrics.Metrics

	now             func() time.Time
	persistInterval time.Duration
	persistTimeout  time.Duration

	mu    sync.Mutex
	slots map[string]*userSlot
	wg    sync.WaitGroup
}

// EngineOption configures optional engine behavior.
type EngineOption func(*Engine)

// WithClock injects a time source for deterministic tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithPersistInterval overrides the persistence debounce interval.
func WithPersistInterval(d time.Duration) EngineOption {
	return func(e *Engine) { e.persistInterval = d }
}

// WithMetrics reports persistence outcomes and dispatch counters.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine builds the digital twin agent. The consent gate requires the
// personalization purpose for any event carrying a user id; events without a
// subject pass through under the unknown identity.
func NewEngine(b bus.Bus, store timeseries.Store, oracle consent.Oracle, sink audit.Sink, logger *log.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		store:           store,
		oracle:          oracle,
		audit:           sink,
		log:             logger,
		now:             func() time.Time { return time.Now().UTC() },
		persistInterval: defaultPersistInterval,
		persistTimeout:  defaultPersistTimeout,
		slots:           make(map[string]*userSlot),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	runtimeOpts := []agent.Option{agent.WithConsent(e.consentGuard), agent.WithAudit(sink)}
	if e.metrics != nil {
		runtimeOpts = append(runtimeOpts, agent.WithMetrics(e.metrics))
	}
	e.rt = agent.New(agent.Config{
		Name:    "digital-twin",
		Version: "1.0.0",
		SubscribeTopics: []string{
			bus.TopicTwinUpdateRequested,
			bus.TopicWearablesStandardized,
			bus.TopicLabsStandardized,
		},
		PublishTopic: bus.TopicTwinUpdated,
	}, b, e.Handle, logger, runtimeOpts...)
	return e
}

// Runtime exposes the underlying runtime for lifecycle management.
func (e *Engine) Runtime() *agent.Runtime { return e.rt }

// Start brings the agent online.
func (e *Engine) Start(ctx context.Context) error { return e.rt.Start(ctx) }

// Stop shuts down dispatch and joins in-flight persistence tasks.
func (e *Engine) Stop(ctx context.Context) error {
	err := e.rt.Stop(ctx)
	e.joinPersistence(shutdownJoinTimeout)
	return err
}

func (e *Engine) consentGuard(ctx context.Context, evt bus.Event) (bool, error) {
	if evt.UserID == "" {
		return true, nil
	}
	return e.oracle.Check(ctx, evt.UserID, consent.PurposePersonalization)
}

// Handle processes one event: resolve the twin, apply the topic-specific
// update, recompute score and trends, bump the version, and schedule
// persistence. Field updates are last-write-wins; a failed step leaves
// prior field values intact.
func (e *Engine) Handle(ctx context.Context, evt bus.Event) error {
	userID := resolveUserID(evt)

	slot := e.slot(userID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	st := slot.state
	if st == nil {
		st = e.loadState(ctx, userID)
	}
	if st == nil {
		st = NewState(userID, e.now())
	}
	slot.state = st

	switch evt.Topic {
	case bus.TopicWearablesStandardized:
		e.applyObservations(st, evt)
	case bus.TopicLabsStandardized:
		e.applyBiomarkers(st, evt)
	case bus.TopicTwinUpdateRequested:
		// Recalculation only; no metric mutation. An intervention change in
		// the request context additionally asks for a fresh simulation.
		e.maybeRequestSimulation(ctx, st, evt)
	}

	st.VitalityScore = ComputeVitality(st.Metrics)
	e.computeTrends(ctx, st)

	st.Version++
	st.UpdatedAt = e.now()

	e.schedulePersistence(slot, st)

	e.audit.Record(ctx, "twin.updated", userID, map[string]any{
		"vitality_score": round3(st.VitalityScore),
		"version":        st.Version,
	}, evt.CorrelationID)

	_, err := e.rt.Publish(ctx, bus.TopicTwinUpdated, "twin.updated", map[string]any{
		"user_id":              userID,
		"vitality_score":       round3(st.VitalityScore),
		"biological_age_delta": round1(st.BiologicalAgeDelta),
		"metrics":              st.Metrics,
		"trends":               st.TrendIndicators,
		"version":              st.Version,
	}, userID, evt.CorrelationID)
	return err
}

func resolveUserID(evt bus.Event) string {
	if evt.UserID != "" {
		return evt.UserID
	}
	if v, ok := evt.Payload["user_id"].(string); ok && v != "" {
		return v
	}
	return UnknownUser
}

func (e *Engine) slot(userID string) *userSlot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.slots[userID]
	if !ok {
		s = &userSlot{}
		e.slots[userID] = s
	}
	return s
}

// applyObservations updates metric fields from a standardized wearable
// payload: either a "data" list of {metric, value} observations or a single
// observation at the top level. Unknown metric names are ignored.
func (e *Engine) applyObservations(st *State, evt bus.Event) {
	apply := func(item map[string]any) {
		name, _ := item["metric"].(string)
		value, ok := asFloat(item["value"])
		if name == "" || !ok {
			return
		}
		st.Metrics.Apply(name, value)
	}

	if data, ok := evt.Payload["data"].([]any); ok {
		for _, raw := range data {
			if item, ok := raw.(map[string]any); ok {
				apply(item)
			}
		}
		return
	}
	apply(evt.Payload)
}

// applyBiomarkers adjusts the biological age delta from a lab payload.
func (e *Engine) applyBiomarkers(st *State, evt bus.Event) {
	biomarkers, ok := evt.Payload["biomarkers"].(map[string]any)
	if !ok {
		return
	}
	if delta, ok := biologicalAgeDelta(biomarkers); ok {
		st.BiologicalAgeDelta = delta
	}
}

func (e *Engine) maybeRequestSimulation(ctx context.Context, st *State, evt bus.Event) {
	reqContext, _ := evt.Payload["context"].(map[string]any)
	if trigger, _ := reqContext["trigger"].(string); trigger != "intervention_change" {
		return
	}
	_, err := e.rt.Publish(ctx, bus.TopicSimulationRequested, "simulation.request", map[string]any{
		"user_id":                st.UserID,
		"current_vitality":       st.VitalityScore,
		"sleep_minutes_delta":    0,
		"activity_minutes_delta": 0,
		"stress_reduction":       0.0,
	}, st.UserID, evt.CorrelationID)
	if err != nil {
		e.log.Printf("simulation request for user %s failed: %v", st.UserID, err)
	}
}

// computeTrends refreshes the trend indicators from the trailing 30-day
// window. Each metric is isolated: a query failure or degenerate fit for one
// metric never aborts the others.
func (e *Engine) computeTrends(ctx context.Context, st *State) {
	end := e.now()
	start := end.Add(-trendWindowDays * 24 * time.Hour)

	for _, spec := range trendSpecs {
		points, err := e.store.Query(ctx, timeseries.Query{
			UserID: st.UserID,
			Metric: spec.metric,
			Start:  start,
			End:    end,
			Limit:  trendQueryLimit,
		})
		if err != nil {
			e.log.Printf("trend query %s for user %s failed: %v", spec.metric, st.UserID, err)
			continue
		}
		if len(points) <= minTrendPoints {
			continue
		}
		slope, ok := slopePerSecond(points)
		if !ok {
			continue
		}
		st.TrendIndicators[spec.metric+"_trend"] = round3(trendScore(slope, spec))
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
