package twin

import (
	"math"

	"vitaex/internal/timeseries"
)

// Trend computation parameters. A metric is trended only with more than
// minTrendPoints valid samples inside the trailing window.
const (
	trendWindowDays = 30
	trendQueryLimit = 1000
	minTrendPoints  = 5
	secondsPerDay   = 86400.0
)

// trendSpec defines one trended metric: its per-day normalization constant
// and whether a falling value is the positive direction.
type trendSpec struct {
	metric string
	perDay float64
	invert bool
}

// trendSpecs fixes the trended metric set. Normalization constants bound a
// "strong" trend: e.g. HRV moving 5 ms/day saturates the indicator.
var trendSpecs = []trendSpec{
	{metric: "hrv", perDay: 5.0},
	{metric: "sleep_efficiency", perDay: 0.05},
	{metric: "activity_minutes", perDay: 10.0},
	{metric: "stress_score", perDay: 0.1, invert: true},
}

// slopePerSecond fits a least-squares line of value against time in seconds.
// No outlier rejection is applied; single extreme samples move the slope.
// Returns false when the fit is degenerate (all samples at one instant).
func slopePerSecond(points []timeseries.Point) (float64, bool) {
	n := float64(len(points))
	if n < 2 {
		return 0, false
	}

	var tMean, vMean float64
	for _, p := range points {
		tMean += float64(p.Timestamp.Unix())
		vMean += p.Value
	}
	tMean /= n
	vMean /= n

	var numerator, denominator float64
	for _, p := range points {
		dt := float64(p.Timestamp.Unix()) - tMean
		numerator += dt * (p.Value - vMean)
		denominator += dt * dt
	}
	if denominator <= 0 {
		return 0, false
	}
	return numerator / denominator, true
}

// trendScore converts a raw slope into the [-1,1] indicator for a spec.
func trendScore(slope float64, spec trendSpec) float64 {
	daily := slope * secondsPerDay
	score := daily / spec.perDay
	if spec.invert {
		score = -score
	}
	return clamp(score, -1, 1)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
