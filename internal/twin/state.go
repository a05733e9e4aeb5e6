package twin

import (
	"encoding/json"
	"time"
)

// State is the digital twin: the sole mutable per-user aggregate in the
// core. It is owned by the engine's in-memory registry; durable copies in
// the time-series store are snapshots, not authoritative.
type State struct {
	UserID               string             `json:"user_id"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
	Metrics              HealthMetrics      `json:"metrics"`
	VitalityScore        float64            `json:"vitality_score"`
	BiologicalAgeDelta   float64            `json:"biological_age_delta"`
	TrendIndicators      map[string]float64 `json:"trend_indicators"`
	InterventionEfficacy map[string]float64 `json:"intervention_efficacy"`
	LastSync             *time.Time         `json:"last_sync,omitempty"`
	Version              int                `json:"version"`
	LastPersistence      *time.Time         `json:"last_persistence,omitempty"`
}

// NewState materializes a default twin. Version starts at 0 so the first
// processed event yields version 1.
func NewState(userID string, now time.Time) *State {
	return &State{
		UserID:               userID,
		CreatedAt:            now,
		UpdatedAt:            now,
		Metrics:              DefaultHealthMetrics(),
		TrendIndicators:      make(map[string]float64),
		InterventionEfficacy: make(map[string]float64),
	}
}

// snapshot returns a deep copy safe to hand to the persistence task while
// the live state keeps mutating.
func (s *State) snapshot() State {
	copy := *s
	copy.TrendIndicators = make(map[string]float64, len(s.TrendIndicators))
	for k, v := range s.TrendIndicators {
		copy.TrendIndicators[k] = v
	}
	copy.InterventionEfficacy = make(map[string]float64, len(s.InterventionEfficacy))
	for k, v := range s.InterventionEfficacy {
		copy.InterventionEfficacy[k] = v
	}
	if s.LastSync != nil {
		t := *s.LastSync
		copy.LastSync = &t
	}
	if s.LastPersistence != nil {
		t := *s.LastPersistence
		copy.LastPersistence = &t
	}
	return copy
}

// asMeta serializes the state into a generic map for storage in a
// measurement's meta column.
func (s State) asMeta() map[string]any {
	raw, err := json.Marshal(s)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}
