package ports

import (
	"context"
	"time"

	"krakenOrderTracker/internal/domain"
)

// FillRepository defines the interface for the append-only fill journal.
// The journal is an audit trail and analytics input, not order state:
// tracking semantics must be identical with or without one attached.
type FillRepository interface {
	// RecordFill appends a fill to the journal and returns its row id.
	// Re-recording an already-journaled trade id returns ErrDuplicateEntry.
	RecordFill(ctx context.Context, fill *domain.Fill) (int64, error)
	// FindByOrder retrieves all journaled fills for an order, oldest first.
	FindByOrder(ctx context.Context, orderID string) ([]*domain.Fill, error)
	// FindSince retrieves fills executed at or after the given time, oldest first.
	FindSince(ctx context.Context, since time.Time) ([]*domain.Fill, error)
	// FindRecent retrieves the most recent fills up to a limit, newest first.
	FindRecent(ctx context.Context, limit int) ([]*domain.Fill, error)
}
