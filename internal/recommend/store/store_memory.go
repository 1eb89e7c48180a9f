package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"cardledger/internal/recommend"
	"cardledger/pkg/platform/sentinel"
)

// InMemoryStore keeps pending endorsements and REC balances in process
// memory. Pending entries are keyed (recommendee, recommender).
type InMemoryStore struct {
	mu       sync.RWMutex
	pending  map[string]map[string]uint64 // recommendee -> recommender -> cardID
	balances map[string]*uint256.Int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		pending:  make(map[string]map[string]uint64),
		balances: make(map[string]*uint256.Int),
	}
}

// SetPending records the endorsement, overwriting any prior entry for the
// pair.
func (s *InMemoryStore) SetPending(_ context.Context, recommendee, recommender string, cardID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byRecommender, ok := s.pending[recommendee]
	if !ok {
		byRecommender = make(map[string]uint64)
		s.pending[recommendee] = byRecommender
	}
	byRecommender[recommender] = cardID
	return nil
}

func (s *InMemoryStore) GetPending(_ context.Context, recommendee, recommender string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cardID, ok := s.pending[recommendee][recommender]; ok && cardID != 0 {
		return cardID, nil
	}
	return 0, fmt.Errorf("no pending recommendation for pair: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) DeletePending(_ context.Context, recommendee, recommender string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byRecommender, ok := s.pending[recommendee]
	if !ok {
		return fmt.Errorf("no pending recommendation for pair: %w", sentinel.ErrNotFound)
	}
	if _, ok := byRecommender[recommender]; !ok {
		return fmt.Errorf("no pending recommendation for pair: %w", sentinel.ErrNotFound)
	}
	delete(byRecommender, recommender)
	return nil
}

// ListPendingFor returns the live pending entries addressed to the
// recommendee, ordered by recommender for determinism.
func (s *InMemoryStore) ListPendingFor(_ context.Context, recommendee string) ([]recommend.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byRecommender := s.pending[recommendee]
	out := make([]recommend.Recommendation, 0, len(byRecommender))
	for recommender, cardID := range byRecommender {
		if cardID == 0 {
			continue
		}
		out = append(out, recommend.Recommendation{
			Recommender: recommender,
			Recommendee: recommendee,
			CardID:      cardID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Recommender < out[j].Recommender })
	return out, nil
}

// Credit adds amount to the address's REC balance.
func (s *InMemoryStore) Credit(_ context.Context, address string, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.balances[address]
	if !ok {
		balance = new(uint256.Int)
		s.balances[address] = balance
	}
	balance.Add(balance, amount)
	return nil
}

// Balance returns a copy of the address's REC balance; zero when unknown.
func (s *InMemoryStore) Balance(_ context.Context, address string) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if balance, ok := s.balances[address]; ok {
		return new(uint256.Int).Set(balance), nil
	}
	return new(uint256.Int), nil
}
