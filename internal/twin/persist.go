package twin

import (
	"context"
	"time"

	"vitaex/internal/timeseries"
)

// persistTask is the single persistence slot for one user. Starting a new
// task first cancels the previous one, so at most one write per user is
// current under bursty updates.
type persistTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// schedulePersistence decides whether the twin qualifies for a durable write
// and, if so, hands a snapshot to a background task. Caller holds slot.mu.
func (e *Engine) schedulePersistence(slot *userSlot, st *State) {
	now := e.now()
	if st.LastPersistence != nil && now.Sub(*st.LastPersistence) < e.persistInterval {
		return
	}

	// Cancel-and-replace under the slot lock: two concurrent writers for the
	// same user must never coexist.
	if slot.persist != nil {
		slot.persist.cancel()
	}
	pctx, cancel := context.WithCancel(context.Background())
	task := &persistTask{cancel: cancel, done: make(chan struct{})}
	slot.persist = task

	snap := st.snapshot()
	marker := now
	st.LastPersistence = &marker

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(task.done)
		defer cancel()
		e.persist(pctx, slot, snap)
	}()
}

// persist writes one twin snapshot as a synthetic twin_state measurement.
// On failure the last-persistence marker is reset so the next qualifying
// event retries.
func (e *Engine) persist(ctx context.Context, slot *userSlot, snap State) {
	ctx, cancel := context.WithTimeout(ctx, e.persistTimeout)
	defer cancel()

	_, err := e.store.Insert(ctx, []timeseries.Row{{
		UserID:    snap.UserID,
		Metric:    timeseries.MetricTwinState,
		Timestamp: snap.UpdatedAt,
		Value:     snap.VitalityScore,
		Meta: map[string]any{
			"state":            snap.asMeta(),
			"version":          snap.Version,
			"persistence_type": "scheduled",
		},
	}})
	if err == nil {
		e.observePersist("ok")
		return
	}
	if ctx.Err() == context.Canceled {
		// Superseded by a newer task for the same user.
		e.observePersist("superseded")
		return
	}
	e.log.Printf("failed to persist twin state for user %s: %v", snap.UserID, err)
	e.observePersist("error")

	slot.mu.Lock()
	if slot.state != nil {
		slot.state.LastPersistence = nil
	}
	slot.mu.Unlock()
}

func (e *Engine) observePersist(status string) {
	if e.metrics != nil {
		e.metrics.TwinPersists.WithLabelValues(status).Inc()
	}
}

// joinPersistence waits for all in-flight persistence tasks; called on
// shutdown so no write is abandoned untracked.
func (e *Engine) joinPersistence(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		e.log.Printf("twin persistence join timed out after %s", timeout)
	}
}
