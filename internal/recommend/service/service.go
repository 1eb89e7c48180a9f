// Package service implements the recommendation/reward protocol. It depends
// on the card registry through a narrow port: a received-log read and the
// allowlist-gated delegated send.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/holiman/uint256"

	"cardledger/internal/ledgerfeed"
	"cardledger/internal/platform/metrics"
	"cardledger/internal/recommend"
	dErrors "cardledger/pkg/domain-errors"
	"cardledger/pkg/platform/sentinel"
	"cardledger/pkg/requestcontext"
)

// Store persists pending endorsements and REC balances.
type Store interface {
	SetPending(ctx context.Context, recommendee, recommender string, cardID uint64) error
	GetPending(ctx context.Context, recommendee, recommender string) (uint64, error)
	DeletePending(ctx context.Context, recommendee, recommender string) error
	ListPendingFor(ctx context.Context, recommendee string) ([]recommend.Recommendation, error)
	Credit(ctx context.Context, address string, amount *uint256.Int) error
	Balance(ctx context.Context, address string) (*uint256.Int, error)
}

// CardRegistry is the slice of the registry this protocol consumes. Send is
// invoked with the protocol's own address as the caller, so it succeeds only
// while the registry's administrator keeps the protocol allowlisted.
type CardRegistry interface {
	HasReceived(ctx context.Context, address string, cardID uint64) (bool, error)
	Send(ctx context.Context, to string, cardID uint64) error
}

// Feed receives the protocol's emitted events.
type Feed interface {
	Emit(ctx context.Context, event ledgerfeed.Event) error
}

// Service orchestrates endorsements and reward issuance.
type Service struct {
	mu       sync.Mutex
	store    Store
	registry CardRegistry
	feed     Feed
	metrics  *metrics.Metrics
	logger   *slog.Logger

	// protocolAddress identifies this component to the registry's allowlist.
	protocolAddress string
	reward          *uint256.Int
}

func New(store Store, registry CardRegistry, feed Feed, m *metrics.Metrics, logger *slog.Logger, protocolAddress string, reward *uint256.Int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if reward == nil {
		reward = recommend.RewardAmount(10)
	}
	return &Service{
		store:           store,
		registry:        registry,
		feed:            feed,
		metrics:         m,
		logger:          logger,
		protocolAddress: protocolAddress,
		reward:          new(uint256.Int).Set(reward),
	}
}

// RecommendCard records a pending endorsement of the card to the
// recommendee. The caller must have received the card at some point; holding
// it now is not required.
func (s *Service) RecommendCard(ctx context.Context, recommendee string, cardID uint64) error {
	caller := requestcontext.Caller(ctx)
	if caller == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if recommendee == "" {
		return dErrors.New(dErrors.CodeBadRequest, "recommendee address is required")
	}
	if cardID == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "card id is required")
	}

	received, err := s.registry.HasReceived(ctx, caller, cardID)
	if err != nil {
		return err
	}
	if !received {
		return dErrors.New(dErrors.CodeForbidden, "never received this card")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SetPending(ctx, recommendee, caller, cardID); err != nil {
		return err
	}

	s.emit(ctx, ledgerfeed.Event{
		Type:   ledgerfeed.TypeRecommendationCreated,
		CardID: cardID,
		From:   caller,
		To:     recommendee,
	})
	if s.metrics != nil {
		s.metrics.RecommendationsCreated.Inc()
	}
	return nil
}

// AcceptRecommendation consumes the pending endorsement from the recommender
// to the caller: the endorsed card moves to the caller through the
// registry's allowlisted send, the pending entry is deleted, and the fixed
// reward is credited to the recommender. The delegated send runs first; if
// the registry rejects it (allowlist revoked, recipient already owns a card)
// the acceptance fails with nothing written.
func (s *Service) AcceptRecommendation(ctx context.Context, recommender string) error {
	caller := requestcontext.Caller(ctx)
	if caller == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if recommender == "" {
		return dErrors.New(dErrors.CodeBadRequest, "recommender address is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cardID, err := s.store.GetPending(ctx, caller, recommender)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "no pending recommendation")
		}
		return err
	}

	sendCtx := requestcontext.WithCaller(ctx, s.protocolAddress)
	if err := s.registry.Send(sendCtx, caller, cardID); err != nil {
		return err
	}

	if err := s.store.DeletePending(ctx, caller, recommender); err != nil {
		return err
	}
	if err := s.store.Credit(ctx, recommender, s.reward); err != nil {
		return err
	}

	s.emit(ctx, ledgerfeed.Event{
		Type:         ledgerfeed.TypeRecommendationAccepted,
		CardID:       cardID,
		From:         recommender,
		To:           caller,
		RewardAmount: s.reward.Dec(),
	})
	if s.metrics != nil {
		s.metrics.RecommendationsAccepted.Inc()
		s.metrics.RewardCreditsIssued.Inc()
	}
	return nil
}

// BalanceOf returns the address's REC balance in base units.
func (s *Service) BalanceOf(ctx context.Context, address string) (*uint256.Int, error) {
	return s.store.Balance(ctx, address)
}

// PendingRecommendation returns the card id pending for the pair; 0 means
// none.
func (s *Service) PendingRecommendation(ctx context.Context, recommendee, recommender string) (uint64, error) {
	cardID, err := s.store.GetPending(ctx, recommendee, recommender)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return cardID, nil
}

// PendingForRecommendee lists the live pending endorsements addressed to the
// address. The mapping, not the event feed, is the source of truth.
func (s *Service) PendingForRecommendee(ctx context.Context, address string) ([]recommend.Recommendation, error) {
	return s.store.ListPendingFor(ctx, address)
}

func (s *Service) emit(ctx context.Context, event ledgerfeed.Event) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "feed emit failed",
			"type", string(event.Type),
			"card_id", event.CardID,
			"error", err,
		)
	}
}
