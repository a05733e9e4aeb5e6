package twin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vitaex/internal/bus"
	"vitaex/internal/consent"
	"vitaex/internal/platform/logger"
	"vitaex/internal/timeseries"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock {
	return &fakeClock{now: at}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// captureSink records audit actions for assertions.
type captureSink struct {
	mu      sync.Mutex
	actions []string
}

func (c *captureSink) Record(_ context.Context, action, _ string, _ map[string]any, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, action)
}

func (c *captureSink) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.actions...)
}

type EngineSuite struct {
	suite.Suite
	bus      *bus.MemoryBus
	store    *timeseries.InMemoryStore
	consents *consent.InMemoryStore
	sink     *captureSink
	clock    *fakeClock
	engine   *Engine
	ctx      context.Context
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.bus = bus.NewMemory()
	s.store = timeseries.NewInMemoryStore()
	s.consents = consent.NewInMemoryStore()
	s.sink = &captureSink{}
	s.clock = newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s.engine = NewEngine(s.bus, s.store, s.consents, s.sink, logger.New(),
		WithClock(s.clock.Now))
	s.ctx = context.Background()
}

func (s *EngineSuite) TearDownTest() {
	_ = s.engine.Stop(s.ctx)
	_ = s.bus.Close()
}

func (s *EngineSuite) grant(userID string) {
	s.Require().NoError(s.consents.Grant(s.ctx, consent.Record{
		UserID:    userID,
		Purpose:   consent.PurposePersonalization,
		GrantedAt: time.Now(),
	}))
}

// collect subscribes to a topic and returns an accessor over decoded events.
func (s *EngineSuite) collect(topic string) func() []bus.Event {
	var mu sync.Mutex
	var got []bus.Event
	_, err := s.bus.Subscribe(s.ctx, topic, func(_ context.Context, raw []byte) {
		evt, err := bus.Decode(raw)
		if err != nil {
			return
		}
		mu.Lock()
		got = append(got, evt)
		mu.Unlock()
	})
	s.Require().NoError(err)
	return func() []bus.Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]bus.Event{}, got...)
	}
}

func (s *EngineSuite) TestWearableObservationUpdatesTwin() {
	s.grant("u1")
	updated := s.collect(bus.TopicTwinUpdated)
	s.Require().NoError(s.engine.Start(s.ctx))

	_, err := s.bus.Publish(s.ctx, bus.TopicWearablesStandardized, "wearable.standardized",
		map[string]any{"data": []any{
			map[string]any{"metric": "hrv", "value": 45.0},
			map[string]any{"metric": "sleep_efficiency", "value": 0.9},
		}}, "u1", "corr-1")
	s.Require().NoError(err)

	s.Require().Eventually(func() bool { return len(updated()) == 1 }, time.Second, 5*time.Millisecond)

	evt := updated()[0]
	s.Equal("u1", evt.UserID)
	s.Equal("corr-1", evt.CorrelationID)
	s.Equal("u1", evt.Payload["user_id"])
	s.Equal(float64(1), evt.Payload["version"], "first event must yield version 1")

	metrics, ok := evt.Payload["metrics"].(map[string]any)
	s.Require().True(ok)
	s.Equal(45.0, metrics["hrv"])
	s.Equal(0.9, metrics["sleep_efficiency"])

	s.Contains(s.sink.snapshot(), "twin.updated")
}

func (s *EngineSuite) TestVersionIsMonotonic() {
	s.grant("u1")
	updated := s.collect(bus.TopicTwinUpdated)
	s.Require().NoError(s.engine.Start(s.ctx))

	for i := 0; i < 3; i++ {
		_, err := s.bus.Publish(s.ctx, bus.TopicWearablesStandardized, "wearable.standardized",
			map[string]any{"metric": "hrv", "value": 40.0 + float64(i)}, "u1", "")
		s.Require().NoError(err)
	}

	s.Require().Eventually(func() bool { return len(updated()) == 3 }, time.Second, 5*time.Millisecond)

	for i, evt := range updated() {
		s.Equal(float64(i+1), evt.Payload["version"])
	}
}

func (s *EngineSuite) TestConsentDeniedLeavesTwinUntouched() {
	// No grant for u2.
	updated := s.collect(bus.TopicTwinUpdated)
	s.Require().NoError(s.engine.Start(s.ctx))

	_, err := s.bus.Publish(s.ctx, bus.TopicWearablesStandardized, "wearable.standardized",
		map[string]any{"metric": "hrv", "value": 45.0}, "u2", "")
	s.Require().NoError(err)

	s.Require().Eventually(func() bool {
		for _, action := range s.sink.snapshot() {
			if action == "consent.denied" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	s.Empty(updated())
	s.NotContains(s.sink.snapshot(), "twin.updated")
}

func (s *EngineSuite) TestEventWithoutSubjectBypassesConsent() {
	updated := s.collect(bus.TopicTwinUpdated)
	s.Require().NoError(s.engine.Start(s.ctx))

	_, err := s.bus.Publish(s.ctx, bus.TopicWearablesStandardized, "wearable.standardized",
		map[string]any{"metric": "hrv", "value": 45.0}, "", "")
	s.Require().NoError(err)

	s.Require().Eventually(func() bool { return len(updated()) == 1 }, time.Second, 5*time.Millisecond)
	s.Equal(UnknownUser, updated()[0].Payload["user_id"])
}

func (s *EngineSuite) TestLabBiomarkersAdjustBiologicalAge() {
	s.grant("u1")
	updated := s.collect(bus.TopicTwinUpdated)
	s.Require().NoError(s.engine.Start(s.ctx))

	_, err := s.bus.Publish(s.ctx, bus.TopicLabsStandardized, "lab.standardized",
		map[string]any{"biomarkers": map[string]any{"crp": 0.5}}, "u1", "")
	s.Require().NoError(err)

	s.Require().Eventually(func() bool { return len(updated()) == 1 }, time.Second, 5*time.Millisecond)
	s.Equal(-1.0, updated()[0].Payload["biological_age_delta"])
}

func (s *EngineSuite) TestInterventionChangeRequestsSimulation() {
	s.grant("u1")
	simulations := s.collect(bus.TopicSimulationRequested)
	s.Require().NoError(s.engine.Start(s.ctx))

	_, err := s.bus.Publish(s.ctx, bus.TopicTwinUpdateRequested, "twin.update",
		map[string]any{"context": map[string]any{"trigger": "intervention_change"}}, "u1", "corr-sim")
	s.Require().NoError(err)

	s.Require().Eventually(func() bool { return len(simulations()) == 1 }, time.Second, 5*time.Millisecond)
	s.Equal("u1", simulations()[0].Payload["user_id"])
	s.Equal("corr-sim", simulations()[0].CorrelationID)
}

func (s *EngineSuite) TestRecalculationRequestDoesNotMutateMetrics() {
	s.grant("u1")
	updated := s.collect(bus.TopicTwinUpdated)
	s.Require().NoError(s.engine.Start(s.ctx))

	_, err := s.bus.Publish(s.ctx, bus.TopicTwinUpdateRequested, "twin.update",
		map[string]any{"reason": "new_data"}, "u1", "")
	s.Require().NoError(err)

	s.Require().Eventually(func() bool { return len(updated()) == 1 }, time.Second, 5*time.Millisecond)

	metrics, ok := updated()[0].Payload["metrics"].(map[string]any)
	s.Require().True(ok)
	s.Equal(35.0, metrics["hrv"], "recalculation must keep default metrics")
}

func (s *EngineSuite) twinStateRows(userID string) []timeseries.Point {
	points, err := s.store.Query(s.ctx, timeseries.Query{UserID: userID, Metric: timeseries.MetricTwinState})
	s.Require().NoError(err)
	return points
}

func (s *EngineSuite) handleWearable(userID string, value float64) {
	s.Require().NoError(s.engine.Handle(s.ctx, bus.Event{
		Topic:         bus.TopicWearablesStandardized,
		Type:          "wearable.standardized",
		Payload:       map[string]any{"metric": "hrv", "value": value},
		UserID:        userID,
		CorrelationID: "corr-persist",
		Timestamp:     s.clock.Now(),
	}))
}

func (s *EngineSuite) TestPersistenceDebounce() {
	s.handleWearable("u1", 45)
	s.engine.joinPersistence(time.Second)
	s.Require().Len(s.twinStateRows("u1"), 1)

	// A second update inside the debounce window must not write again.
	s.clock.Advance(time.Minute)
	s.handleWearable("u1", 46)
	s.engine.joinPersistence(time.Second)
	s.Require().Len(s.twinStateRows("u1"), 1)

	// Past the interval the next update persists.
	s.clock.Advance(5 * time.Minute)
	s.handleWearable("u1", 47)
	s.engine.joinPersistence(time.Second)

	rows := s.twinStateRows("u1")
	s.Require().Len(rows, 2)
	s.Equal(47.0, mustStateMetaHRV(s.T(), rows[0].Meta))
}

func (s *EngineSuite) TestPersistFailureRetriesOnNextEvent() {
	failing := &flakyTimeseriesStore{inner: s.store, failInserts: 1}
	s.engine.store = failing

	s.handleWearable("u1", 45)
	s.engine.joinPersistence(time.Second)
	s.Empty(s.twinStateRows("u1"))

	// The failed write reset the marker, so the very next event retries even
	// inside the debounce window.
	s.handleWearable("u1", 46)
	s.engine.joinPersistence(time.Second)
	s.Require().Len(s.twinStateRows("u1"), 1)
}

func (s *EngineSuite) TestTrendsComputedFromHistory() {
	var rows []timeseries.Row
	for i := 0; i < 10; i++ {
		rows = append(rows, timeseries.Row{
			UserID:    "u1",
			Metric:    "hrv",
			Timestamp: s.clock.Now().AddDate(0, 0, i-10),
			Value:     float64(40 + i),
		})
	}
	_, err := s.store.Insert(s.ctx, rows)
	s.Require().NoError(err)

	s.handleWearable("u1", 50)

	slot := s.engine.slot("u1")
	slot.mu.Lock()
	trend, ok := slot.state.TrendIndicators["hrv_trend"]
	slot.mu.Unlock()
	s.Require().True(ok)
	// 1 ms/day against the 5 ms/day normalization.
	s.InDelta(0.2, trend, 1e-9)
}

func (s *EngineSuite) TestTrendQueryFailureIsolatedPerMetric() {
	var rows []timeseries.Row
	for i := 0; i < 10; i++ {
		rows = append(rows, timeseries.Row{
			UserID:    "u1",
			Metric:    "sleep_efficiency",
			Timestamp: s.clock.Now().AddDate(0, 0, i-10),
			Value:     0.80 + float64(i)*0.01,
		})
	}
	_, err := s.store.Insert(s.ctx, rows)
	s.Require().NoError(err)

	s.engine.store = &flakyTimeseriesStore{inner: s.store, failQueryMetric: "hrv"}
	s.handleWearable("u1", 50)

	slot := s.engine.slot("u1")
	slot.mu.Lock()
	defer slot.mu.Unlock()
	s.NotContains(slot.state.TrendIndicators, "hrv_trend")
	s.Contains(slot.state.TrendIndicators, "sleep_efficiency_trend")
}

func (s *EngineSuite) TestInsufficientHistoryYieldsNoTrend() {
	var rows []timeseries.Row
	for i := 0; i < 5; i++ {
		rows = append(rows, timeseries.Row{
			UserID:    "u1",
			Metric:    "hrv",
			Timestamp: s.clock.Now().AddDate(0, 0, i-5),
			Value:     float64(40 + i),
		})
	}
	_, err := s.store.Insert(s.ctx, rows)
	s.Require().NoError(err)

	s.handleWearable("u1", 50)

	slot := s.engine.slot("u1")
	slot.mu.Lock()
	defer slot.mu.Unlock()
	s.NotContains(slot.state.TrendIndicators, "hrv_trend",
		"five or fewer points must not produce a trend")
}

func mustStateMetaHRV(t *testing.T, meta map[string]any) float64 {
	t.Helper()
	state, ok := meta["state"].(map[string]any)
	if !ok {
		t.Fatal("meta missing state")
	}
	metrics, ok := state["metrics"].(map[string]any)
	if !ok {
		t.Fatal("state missing metrics")
	}
	hrv, ok := asFloat(metrics["hrv"])
	if !ok {
		t.Fatal("metrics missing hrv")
	}
	return hrv
}

// flakyTimeseriesStore wraps a real store with programmable failures.
type flakyTimeseriesStore struct {
	inner           timeseries.Store
	failInserts     int
	failQueryMetric string
}

func (f *flakyTimeseriesStore) Insert(ctx context.Context, rows []timeseries.Row) (int, error) {
	if f.failInserts > 0 {
		f.failInserts--
		return 0, errors.New("backend unavailable")
	}
	return f.inner.Insert(ctx, rows)
}

func (f *flakyTimeseriesStore) Query(ctx context.Context, q timeseries.Query) ([]timeseries.Point, error) {
	if f.failQueryMetric != "" && q.Metric == f.failQueryMetric {
		return nil, errors.New("backend unavailable")
	}
	return f.inner.Query(ctx, q)
}
