package twin

import (
	"context"
	"time"

	"vitaex/internal/timeseries"
)

// loadState reconstructs the latest durable twin snapshot, or returns nil
// when none exists or the backend is unreachable. Reconstruction is tolerant
// field by field: a malformed stored sub-object is skipped, leaving that
// field at its default, rather than failing the whole load.
func (e *Engine) loadState(ctx context.Context, userID string) *State {
	points, err := e.store.Query(ctx, timeseries.Query{
		UserID: userID,
		Metric: timeseries.MetricTwinState,
		Limit:  1,
	})
	if err != nil {
		e.log.Printf("twin snapshot load failed for user %s: %v", userID, err)
		return nil
	}
	if len(points) == 0 || points[0].Meta == nil {
		return nil
	}
	raw, ok := points[0].Meta["state"].(map[string]any)
	if !ok {
		return nil
	}

	st := NewState(userID, e.now())

	if m, ok := raw["metrics"].(map[string]any); ok {
		applyMetricField(m, "hrv", &st.Metrics.HRV)
		applyMetricField(m, "resting_heart_rate", &st.Metrics.RestingHeartRate)
		applyMetricField(m, "sleep_efficiency", &st.Metrics.SleepEfficiency)
		applyMetricField(m, "activity_minutes", &st.Metrics.ActivityMinutes)
		applyMetricField(m, "steps_daily", &st.Metrics.StepsDaily)
		applyMetricField(m, "stress_score", &st.Metrics.StressScore)
		applyMetricField(m, "recovery_score", &st.Metrics.RecoveryScore)
	}
	if v, ok := asFloat(raw["vitality_score"]); ok {
		st.VitalityScore = clamp(v, 0, 1)
	}
	if v, ok := asFloat(raw["biological_age_delta"]); ok {
		st.BiologicalAgeDelta = v
	}
	if trends, ok := raw["trend_indicators"].(map[string]any); ok {
		for name, v := range trends {
			if f, ok := asFloat(v); ok {
				st.TrendIndicators[name] = f
			}
		}
	}
	if efficacy, ok := raw["intervention_efficacy"].(map[string]any); ok {
		for name, v := range efficacy {
			if f, ok := asFloat(v); ok {
				st.InterventionEfficacy[name] = f
			}
		}
	}
	if v, ok := asFloat(raw["version"]); ok && v >= 0 {
		st.Version = int(v)
	}
	if t, ok := asTime(raw["created_at"]); ok {
		st.CreatedAt = t
	}
	if t, ok := asTime(raw["updated_at"]); ok {
		st.UpdatedAt = t
	}
	if t, ok := asTime(raw["last_sync"]); ok {
		st.LastSync = &t
	}
	if t, ok := asTime(raw["last_persistence"]); ok {
		st.LastPersistence = &t
	}

	e.log.Printf("loaded twin snapshot for user %s, version %d", userID, st.Version)
	return st
}

func applyMetricField(m map[string]any, key string, dst *float64) {
	if f, ok := asFloat(m[key]); ok {
		*dst = f
	}
}

func asTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
