package ledgerfeed

import (
	"context"

	"github.com/google/uuid"

	"cardledger/pkg/requestcontext"
)

// Store persists feed entries. Append-only; entries are never rewritten.
type Store interface {
	Append(ctx context.Context, event Event) error
	// List returns the newest entries first, up to limit.
	List(ctx context.Context, limit int) ([]Event, error)
	// ListByAddress returns the newest entries naming the address (as From or
	// To), up to limit.
	ListByAddress(ctx context.Context, address string, limit int) ([]Event, error)
}

// Publisher stamps and appends feed events. It uses the storage layer for
// persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit assigns the event id and timestamp (from the request clock) and
// appends the entry.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	return p.store.Append(ctx, event)
}

func (p *Publisher) List(ctx context.Context, limit int) ([]Event, error) {
	return p.store.List(ctx, limit)
}

func (p *Publisher) ListByAddress(ctx context.Context, address string, limit int) ([]Event, error) {
	return p.store.ListByAddress(ctx, address, limit)
}
