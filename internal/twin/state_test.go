package twin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewState(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st := NewState("u1", now)

	assert.Equal(t, "u1", st.UserID)
	assert.Equal(t, now, st.CreatedAt)
	assert.Equal(t, now, st.UpdatedAt)
	assert.Equal(t, DefaultHealthMetrics(), st.Metrics)
	assert.Zero(t, st.Version, "first processed event must yield version 1")
	assert.NotNil(t, st.TrendIndicators)
	assert.NotNil(t, st.InterventionEfficacy)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	persisted := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st := NewState("u1", persisted)
	st.TrendIndicators["hrv_trend"] = 0.2
	st.InterventionEfficacy["sleep_protocol"] = 0.8
	marker := persisted
	st.LastPersistence = &marker

	snap := st.snapshot()

	st.TrendIndicators["hrv_trend"] = -1
	st.InterventionEfficacy["sleep_protocol"] = 0
	*st.LastPersistence = persisted.Add(time.Hour)
	st.Metrics.HRV = 99

	assert.Equal(t, 0.2, snap.TrendIndicators["hrv_trend"])
	assert.Equal(t, 0.8, snap.InterventionEfficacy["sleep_protocol"])
	assert.Equal(t, persisted, *snap.LastPersistence)
	assert.Equal(t, 35.0, snap.Metrics.HRV)
}

func TestAsMeta(t *testing.T) {
	st := NewState("u1", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	st.VitalityScore = 0.74
	st.Version = 3
	st.TrendIndicators["hrv_trend"] = 0.2

	meta := st.asMeta()

	assert.Equal(t, "u1", meta["user_id"])
	assert.Equal(t, 0.74, meta["vitality_score"])
	assert.Equal(t, float64(3), meta["version"])

	metrics, ok := meta["metrics"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 35.0, metrics["hrv"])

	trends, ok := meta["trend_indicators"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.2, trends["hrv_trend"])
}
