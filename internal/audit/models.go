package audit

import "time"

// Entry is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Entry struct {
	Timestamp     time.Time
	Action        string
	UserID        string
	Actor         string
	Details       map[string]any
	CorrelationID string
}
