package store

import (
	"context"
	"fmt"
	"sync"

	"cardledger/internal/card"
	"cardledger/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this pattern:
// - Return ErrNotFound (wrapped) when the requested entity does not exist
// - Return ErrConflict (wrapped) when the one-card-per-address invariant would break
// - Return nil for successful operations
//
// Each method is atomic under the store mutex; compound transitions
// (create-with-owner, transfer-with-recipient-check) validate and mutate
// under a single lock so no caller observes a half-applied state.

// InMemoryStore keeps the full registry state in process memory. It is the
// reference implementation and the test substrate.
type InMemoryStore struct {
	mu       sync.RWMutex
	nextID   uint64
	cards    map[uint64]card.Card
	owners   map[uint64]string   // cardID -> owner address
	cardOf   map[string]uint64   // owner address -> cardID
	rentals  map[uint64]card.Rental
	received map[string][]uint64 // append-only log of cards ever sent to an address
	movers   map[string]bool
}

// NewInMemoryStore constructs an empty registry store. Card ids start at 1;
// 0 stays reserved for "no card".
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nextID:   1,
		cards:    make(map[uint64]card.Card),
		owners:   make(map[uint64]string),
		cardOf:   make(map[string]uint64),
		rentals:  make(map[uint64]card.Rental),
		received: make(map[string][]uint64),
		movers:   make(map[string]bool),
	}
}

// CreateCard allocates the next sequential id, stores the record, and binds
// ownership to owner.
func (s *InMemoryStore) CreateCard(_ context.Context, c card.Card, owner string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cardOf[owner]; ok {
		return 0, fmt.Errorf("address %s already owns a card: %w", owner, sentinel.ErrConflict)
	}
	id := s.nextID
	s.nextID++
	c.ID = id
	s.cards[id] = c
	s.owners[id] = owner
	s.cardOf[owner] = id
	return id, nil
}

func (s *InMemoryStore) GetCard(_ context.Context, id uint64) (card.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.cards[id]; ok {
		return c, nil
	}
	return card.Card{}, fmt.Errorf("card %d not found: %w", id, sentinel.ErrNotFound)
}

// UpdateCard overwrites the stored record for c.ID.
func (s *InMemoryStore) UpdateCard(_ context.Context, c card.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[c.ID]; !ok {
		return fmt.Errorf("card %d not found: %w", c.ID, sentinel.ErrNotFound)
	}
	s.cards[c.ID] = c
	return nil
}

func (s *InMemoryStore) OwnerOf(_ context.Context, id uint64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if owner, ok := s.owners[id]; ok {
		return owner, nil
	}
	return "", fmt.Errorf("card %d not found: %w", id, sentinel.ErrNotFound)
}

// CardOf returns the card owned by the address, or ErrNotFound when the
// address holds no card.
func (s *InMemoryStore) CardOf(_ context.Context, owner string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.cardOf[owner]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("address %s owns no card: %w", owner, sentinel.ErrNotFound)
}

// TransferCard moves ownership of the card to the recipient and appends the
// card to the recipient's received log. The rental record, if any, is left
// untouched. Fails when the recipient already owns a card.
func (s *InMemoryStore) TransferCard(_ context.Context, id uint64, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.owners[id]
	if !ok {
		return fmt.Errorf("card %d not found: %w", id, sentinel.ErrNotFound)
	}
	if _, ok := s.cardOf[to]; ok {
		return fmt.Errorf("address %s already owns a card: %w", to, sentinel.ErrConflict)
	}
	delete(s.cardOf, owner)
	s.owners[id] = to
	s.cardOf[to] = id
	s.received[to] = append(s.received[to], id)
	return nil
}

// SetRental stores the lease, overwriting any prior record unconditionally.
func (s *InMemoryStore) SetRental(_ context.Context, id uint64, r card.Rental) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[id]; !ok {
		return fmt.Errorf("card %d not found: %w", id, sentinel.ErrNotFound)
	}
	s.rentals[id] = r
	return nil
}

func (s *InMemoryStore) GetRental(_ context.Context, id uint64) (card.Rental, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.rentals[id]; ok {
		return r, nil
	}
	return card.Rental{}, fmt.Errorf("no rental for card %d: %w", id, sentinel.ErrNotFound)
}

// DeleteRental removes the stored lease and returns it as it stood.
func (s *InMemoryStore) DeleteRental(_ context.Context, id uint64) (card.Rental, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rentals[id]
	if !ok {
		return card.Rental{}, fmt.Errorf("no rental for card %d: %w", id, sentinel.ErrNotFound)
	}
	delete(s.rentals, id)
	return r, nil
}

// RentalsByRenter returns every stored lease naming the renter, expired or
// not. Expiry filtering is the service's job.
func (s *InMemoryStore) RentalsByRenter(_ context.Context, renter string) (map[uint64]card.Rental, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint64]card.Rental)
	for id, r := range s.rentals {
		if r.Renter == renter {
			out[id] = r
		}
	}
	return out, nil
}

// ReceivedCards returns the append-only log of cards ever sent to the address.
func (s *InMemoryStore) ReceivedCards(_ context.Context, address string) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]uint64{}, s.received[address]...), nil
}

func (s *InMemoryStore) HasReceived(_ context.Context, address string, id uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, got := range s.received[address] {
		if got == id {
			return true, nil
		}
	}
	return false, nil
}

// SetMover toggles the delegated-send allowlist entry for the address.
func (s *InMemoryStore) SetMover(_ context.Context, address string, allowed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if allowed {
		s.movers[address] = true
	} else {
		delete(s.movers, address)
	}
	return nil
}

func (s *InMemoryStore) IsMover(_ context.Context, address string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.movers[address], nil
}
