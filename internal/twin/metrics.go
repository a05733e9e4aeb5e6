package twin

// Documented valid ranges for each health metric. Every write path clamps to
// these bounds; out-of-range inputs are stored at the nearest bound, never
// rejected.
const (
	hrvMin = 20.0  // ms
	hrvMax = 100.0 // ms

	restingHRMin = 40.0  // bpm
	restingHRMax = 100.0 // bpm

	activityMinutesMax = 240.0
)

// HealthMetrics is the standardized per-user metric set.
//
//	HRV               heart rate variability, ms, 20-100
//	RestingHeartRate  bpm, 40-100
//	SleepEfficiency   fraction 0-1, optimal above 0.85
//	ActivityMinutes   daily, 0-240, WHO recommendation 30-60
//	StepsDaily        daily count, non-negative
//	StressScore       0-1, lower is better
//	RecoveryScore     0-1, higher is better
type HealthMetrics struct {
	HRV              float64 `json:"hrv"`
	RestingHeartRate float64 `json:"resting_heart_rate"`
	SleepEfficiency  float64 `json:"sleep_efficiency"`
	ActivityMinutes  float64 `json:"activity_minutes"`
	StepsDaily       float64 `json:"steps_daily"`
	StressScore      float64 `json:"stress_score"`
	RecoveryScore    float64 `json:"recovery_score"`
}

// DefaultHealthMetrics returns mid-range values for a freshly materialized
// twin with no observations yet.
func DefaultHealthMetrics() HealthMetrics {
	return HealthMetrics{
		HRV:              35.0,
		RestingHeartRate: 70.0,
		SleepEfficiency:  0.85,
		ActivityMinutes:  30.0,
		StepsDaily:       8000.0,
		StressScore:      0.3,
		RecoveryScore:    0.7,
	}
}

// Apply updates one metric field by exact name match, clamping to its
// documented range. It reports whether the name was recognized and stored.
// Heart-rate observations at or above 100 bpm are not resting measurements
// and are ignored.
func (m *HealthMetrics) Apply(name string, value float64) bool {
	switch name {
	case "hrv":
		m.HRV = clamp(value, hrvMin, hrvMax)
	case "heart_rate":
		if value >= 100 {
			return false
		}
		m.RestingHeartRate = clamp(value, restingHRMin, restingHRMax)
	case "sleep_efficiency":
		m.SleepEfficiency = clamp(value, 0, 1)
	case "activity_minutes":
		m.ActivityMinutes = clamp(value, 0, activityMinutesMax)
	case "steps":
		m.StepsDaily = max(0, value)
	case "stress_score":
		m.StressScore = clamp(value, 0, 1)
	case "recovery_score":
		m.RecoveryScore = clamp(value, 0, 1)
	default:
		return false
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
