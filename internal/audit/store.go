package audit

import "context"

// Store is the append-only persistence behind the audit worker.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByUser(ctx context.Context, userID string) ([]Entry, error)
}
