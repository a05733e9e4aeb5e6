package consent

import "time"

// Purpose labels why data is processed. Purpose binding allows selective
// revocation without affecting other flows.
type Purpose string

const (
	PurposePersonalization Purpose = "personalization"
	PurposeResearch        Purpose = "research"
)

// Record captures a user's decision for a specific purpose.
type Record struct {
	UserID    string
	Purpose   Purpose
	GrantedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// IsActive returns true when consent is currently valid.
func (r Record) IsActive(now time.Time) bool {
	if r.RevokedAt != nil && r.RevokedAt.Before(now) {
		return false
	}
	return r.ExpiresAt.IsZero() || now.Before(r.ExpiresAt)
}
