package store

import (
	"context"
	"errors"

	"github.com/schollaertel/clocksynk/internal/models"
)

// ErrNotFound reports the absence of a game record. It is not a failure;
// callers treat it as "needs initialization".
var ErrNotFound = errors.New("game state not found")

// ErrUnavailable reports a backend failure on read or write. Callers continue
// with their last-known local state.
var ErrUnavailable = errors.New("game state store unavailable")

// ErrNoSubscribe reports that a backend has no native change feed. Wrap it
// with natsbus to get one.
var ErrNoSubscribe = errors.New("store does not support subscriptions")

// Subscription is a cancellable handle for a change feed.
type Subscription interface {
	Cancel()
}

// GameStateStore persists and broadcasts the canonical game-state record.
// Updates are whole-record with last-write-wins semantics; there is no
// field-level merge.
type GameStateStore interface {
	// Get returns the current record, or ErrNotFound.
	Get(ctx context.Context, gameID string) (models.GameState, error)
	// Create inserts the initial record. If the record already exists (a
	// concurrent session won the race) the existing record is returned.
	Create(ctx context.Context, gameID string, initial models.GameState) (models.GameState, error)
	// Update replaces the record. A stored record with a newer LastUpdated
	// wins; the store returns whichever record is authoritative afterwards.
	Update(ctx context.Context, gameID string, state models.GameState) (models.GameState, error)
	// Subscribe invokes fn for every record change until cancelled.
	Subscribe(ctx context.Context, gameID string, fn func(models.GameState)) (Subscription, error)
}
