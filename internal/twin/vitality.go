package twin

// Vitality weights, summing to 1.0. Based on research linking these metrics
// to healthspan: HRV and sleep dominate, recovery and the inverted stress
// and resting-heart-rate signals fill out the composite.
const (
	weightHRV      = 0.25
	weightSleep    = 0.20
	weightActivity = 0.20
	weightRecovery = 0.15
	weightStress   = 0.10
	weightRHR      = 0.10
)

// ComputeVitality derives the [0,1] vitality score as a fixed weighted sum
// of six normalized sub-scores. It is a pure function of the metrics:
// identical inputs yield bit-identical output.
//
// Normalizations:
//
//	HRV       (hrv - 20) / 80          20-100 ms mapped to 0-1
//	Sleep     as-is                    already 0-1
//	Activity  minutes / 60, capped     optimum reached at 60 min
//	Recovery  as-is                    already 0-1
//	Stress    1 - stress               inverted, lower is better
//	RHR       1 - (rhr - 40) / 60      inverted, 40-100 bpm mapped to 1-0
func ComputeVitality(m HealthMetrics) float64 {
	hrvScore := clamp((m.HRV-hrvMin)/(hrvMax-hrvMin), 0, 1)
	sleepScore := m.SleepEfficiency
	activityScore := min(m.ActivityMinutes/60.0, 1.0)
	recoveryScore := m.RecoveryScore
	stressScore := 1.0 - m.StressScore
	rhrScore := clamp(1.0-(m.RestingHeartRate-restingHRMin)/(restingHRMax-restingHRMin), 0, 1)

	vitality := hrvScore*weightHRV +
		sleepScore*weightSleep +
		activityScore*weightActivity +
		recoveryScore*weightRecovery +
		stressScore*weightStress +
		rhrScore*weightRHR

	return clamp(vitality, 0, 1)
}
