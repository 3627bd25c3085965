package outbox

import (
	"context"
	"time"
)

// Event is a notification recorded in the same atomic unit as the financial
// operation it describes. A background dispatcher delivers it later; delivery
// failure never affects the already-committed operation.
type Event struct {
	ID           string
	Kind         string
	Recipient    string
	Body         string
	CreatedAt    time.Time
	DispatchedAt *time.Time
}

// Store exposes the undelivered portion of the outbox. The ledger backends
// implement it alongside their financial operations.
type Store interface {
	PendingEvents(ctx context.Context, limit int) ([]Event, error)
	MarkDispatched(ctx context.Context, ids []string) error
}
