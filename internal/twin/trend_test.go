package twin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"vitaex/internal/timeseries"
)

func trendPoints(start time.Time, step time.Duration, values ...float64) []timeseries.Point {
	points := make([]timeseries.Point, len(values))
	for i, v := range values {
		points[i] = timeseries.Point{Timestamp: start.Add(time.Duration(i) * step), Value: v}
	}
	return points
}

func TestSlopePerSecond(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("perfect daily increase", func(t *testing.T) {
		points := trendPoints(start, 24*time.Hour, 40, 41, 42, 43, 44, 45)
		slope, ok := slopePerSecond(points)
		assert.True(t, ok)
		assert.InDelta(t, 1.0/secondsPerDay, slope, 1e-12)
	})

	t.Run("flat series", func(t *testing.T) {
		points := trendPoints(start, 24*time.Hour, 50, 50, 50, 50, 50, 50)
		slope, ok := slopePerSecond(points)
		assert.True(t, ok)
		assert.InDelta(t, 0, slope, 1e-12)
	})

	t.Run("order independent", func(t *testing.T) {
		asc := trendPoints(start, 24*time.Hour, 40, 42, 44, 46, 48, 50)
		desc := make([]timeseries.Point, len(asc))
		for i := range asc {
			desc[i] = asc[len(asc)-1-i]
		}
		slopeAsc, _ := slopePerSecond(asc)
		slopeDesc, _ := slopePerSecond(desc)
		assert.Equal(t, slopeAsc, slopeDesc)
	})

	t.Run("degenerate single instant", func(t *testing.T) {
		points := trendPoints(start, 0, 40, 41, 42, 43, 44, 45)
		_, ok := slopePerSecond(points)
		assert.False(t, ok)
	})

	t.Run("too few points", func(t *testing.T) {
		_, ok := slopePerSecond(trendPoints(start, time.Hour, 40))
		assert.False(t, ok)
	})
}

func TestTrendScore(t *testing.T) {
	hrvSpec := trendSpec{metric: "hrv", perDay: 5.0}
	stressSpec := trendSpec{metric: "stress_score", perDay: 0.1, invert: true}

	tests := []struct {
		name  string
		slope float64
		spec  trendSpec
		want  float64
	}{
		{"hrv rising 2.5 ms per day", 2.5 / secondsPerDay, hrvSpec, 0.5},
		{"hrv saturates positive", 20.0 / secondsPerDay, hrvSpec, 1},
		{"hrv saturates negative", -20.0 / secondsPerDay, hrvSpec, -1},
		{"falling stress reads positive", -0.05 / secondsPerDay, stressSpec, 0.5},
		{"rising stress reads negative", 0.05 / secondsPerDay, stressSpec, -0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, trendScore(tt.slope, tt.spec), 1e-9)
		})
	}
}

func TestRounding(t *testing.T) {
	assert.Equal(t, 0.667, round3(2.0/3.0))
	assert.Equal(t, -0.333, round3(-1.0/3.0))
	assert.Equal(t, 0.7, round1(2.0/3.0))
	assert.Equal(t, 1.5, round1(1.49))
}
