package audit

import (
	"context"
	"log"
)

// Worker consumes audit entries from a channel and persists them. It keeps
// background processing testable without wiring queue implementations.
type Worker struct {
	store Store
	inbox <-chan Entry
	log   *log.Logger
}

func NewWorker(store Store, inbox <-chan Entry, logger *log.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, log: logger}
}

// Run drains the inbox until the context is canceled. Append failures are
// logged and skipped; the audit trail is best effort by contract.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-w.inbox:
			if err := w.store.Append(ctx, entry); err != nil {
				w.log.Printf("audit append failed action=%s: %v", entry.Action, err)
			}
		}
	}
}
