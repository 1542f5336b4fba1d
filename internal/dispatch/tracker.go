// Package dispatch delivers due reminders and keeps the at-most-once
// dispatch ledger.
package dispatch

import (
	"context"
	"time"

	"github.com/event-reminder/backend/internal/storage"
	"github.com/event-reminder/backend/internal/storage/models"
)

// Tracker records which reminders have already been sent.
type Tracker struct {
	store *storage.Store
}

// NewTracker creates a tracker over the dispatch ledger.
func NewTracker(store *storage.Store) *Tracker {
	return &Tracker{store: store}
}

// WasSent reports whether the reminder identified by key was delivered.
func (t *Tracker) WasSent(ctx context.Context, key models.DispatchKey) (bool, error) {
	return t.store.Dispatch.Exists(ctx, key)
}

// MarkSent records a delivery. It returns false if the key was already
// present, which means another tick got there first.
func (t *Tracker) MarkSent(ctx context.Context, key models.DispatchKey, at time.Time) (bool, error) {
	return t.store.Dispatch.Insert(ctx, key, at)
}
