package ledgerfeed

import (
	"context"
	"sync"
)

// InMemoryStore keeps the feed in process memory, newest entries last.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.events, limit, func(Event) bool { return true }), nil
}

func (s *InMemoryStore) ListByAddress(_ context.Context, address string, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.events, limit, func(e Event) bool {
		return e.From == address || e.To == address
	}), nil
}

func newestFirst(events []Event, limit int, keep func(Event) bool) []Event {
	out := make([]Event, 0, limit)
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		if keep(events[i]) {
			out = append(out, events[i])
		}
	}
	return out
}
