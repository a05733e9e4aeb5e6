package consent

import (
	"context"
	"time"
)

// Oracle is the narrow read side consulted by the consent gate on every
// delivered event.
type Oracle interface {
	Check(ctx context.Context, userID string, purpose Purpose) (bool, error)
}

// Store manages consent records. All implementations also satisfy Oracle.
type Store interface {
	Oracle
	Grant(ctx context.Context, record Record) error
	Revoke(ctx context.Context, userID string, purpose Purpose, revokedAt time.Time) error
}
