// Package service implements the card custody state machine: mint/update
// rules, transfer under active delegation, the rental lifecycle, and the
// approved-mover allowlist.
//
// Every state-changing operation runs as one serialized unit of work: all
// preconditions are validated before the first write, and the write phase
// cannot fail, so a rejected call leaves no trace and a committed call is
// final. Rental expiry is never swept by a timer; it is evaluated lazily
// against the request clock at each call site.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"cardledger/internal/card"
	"cardledger/internal/ledgerfeed"
	"cardledger/internal/platform/metrics"
	dErrors "cardledger/pkg/domain-errors"
	"cardledger/pkg/platform/sentinel"
	"cardledger/pkg/requestcontext"
)

// Store is the persistence surface the registry needs. Implementations must
// make each method atomic; the service serializes compound transitions on top.
type Store interface {
	CreateCard(ctx context.Context, c card.Card, owner string) (uint64, error)
	GetCard(ctx context.Context, id uint64) (card.Card, error)
	UpdateCard(ctx context.Context, c card.Card) error
	OwnerOf(ctx context.Context, id uint64) (string, error)
	CardOf(ctx context.Context, owner string) (uint64, error)
	TransferCard(ctx context.Context, id uint64, to string) error
	SetRental(ctx context.Context, id uint64, r card.Rental) error
	GetRental(ctx context.Context, id uint64) (card.Rental, error)
	DeleteRental(ctx context.Context, id uint64) (card.Rental, error)
	RentalsByRenter(ctx context.Context, renter string) (map[uint64]card.Rental, error)
	ReceivedCards(ctx context.Context, address string) ([]uint64, error)
	HasReceived(ctx context.Context, address string, id uint64) (bool, error)
	SetMover(ctx context.Context, address string, allowed bool) error
	IsMover(ctx context.Context, address string) (bool, error)
}

// Feed receives the registry's emitted events.
type Feed interface {
	Emit(ctx context.Context, event ledgerfeed.Event) error
}

// Service owns the registry state machine. adminAddress is the explicit
// administrative identity allowed to mutate the mover allowlist; it is fixed
// at construction, not an ambient role.
type Service struct {
	mu      sync.Mutex
	store   Store
	feed    Feed
	metrics *metrics.Metrics
	logger  *slog.Logger
	admin   string
}

func New(store Store, feed Feed, m *metrics.Metrics, logger *slog.Logger, adminAddress string) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		feed:    feed,
		metrics: m,
		logger:  logger,
		admin:   adminAddress,
	}
}

// Mint creates the caller's card. An address mints at most once while it
// holds a card.
func (s *Service) Mint(ctx context.Context, name, title, company, contactInfo, metadataURI string) (uint64, error) {
	caller := requestcontext.Caller(ctx)
	if caller == "" {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if name == "" {
		return 0, dErrors.New(dErrors.CodeBadRequest, "name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.CardOf(ctx, caller); err == nil {
		return 0, dErrors.New(dErrors.CodeConflict, "already owns a business card")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return 0, err
	}

	id, err := s.store.CreateCard(ctx, card.Card{
		Name:        name,
		Title:       title,
		Company:     company,
		ContactInfo: contactInfo,
		MetadataURI: metadataURI,
		MintedAt:    requestcontext.Now(ctx),
	}, caller)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return 0, dErrors.New(dErrors.CodeConflict, "already owns a business card")
		}
		return 0, err
	}

	s.emit(ctx, ledgerfeed.Event{Type: ledgerfeed.TypeCardMinted, CardID: id, To: caller})
	if s.metrics != nil {
		s.metrics.CardsMinted.Inc()
	}
	return id, nil
}

// Update overwrites the card's mutable fields. Name is fixed at mint; an
// empty metadataURI means "leave unchanged".
func (s *Service) Update(ctx context.Context, id uint64, title, company, contactInfo, metadataURI string) error {
	caller := requestcontext.Caller(ctx)
	if caller == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.store.GetCard(ctx, id)
	if err != nil {
		return translateNotFound(err, "card not found")
	}
	controller, err := s.isEffectiveController(ctx, caller, id)
	if err != nil {
		return err
	}
	if !controller {
		return dErrors.New(dErrors.CodeForbidden, "not your business card")
	}

	c.Title = title
	c.Company = company
	c.ContactInfo = contactInfo
	if metadataURI != "" {
		c.MetadataURI = metadataURI
	}
	return s.store.UpdateCard(ctx, c)
}

// Send transfers ownership of the card to `to`. The caller must be the
// card's effective controller, or an allowlisted mover acting on the owner's
// behalf. The rental record, if any, rides along to the new owner.
func (s *Service) Send(ctx context.Context, to string, id uint64) error {
	caller := requestcontext.Caller(ctx)
	if caller == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if to == "" {
		return dErrors.New(dErrors.CodeBadRequest, "recipient address is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	owner, err := s.store.OwnerOf(ctx, id)
	if err != nil {
		return translateNotFound(err, "card not found")
	}

	controller, err := s.isEffectiveController(ctx, caller, id)
	if err != nil {
		return err
	}
	from := caller
	if !controller {
		mover, err := s.store.IsMover(ctx, caller)
		if err != nil {
			return err
		}
		if !mover {
			return dErrors.New(dErrors.CodeForbidden, "not your business card")
		}
		// Delegated send: the mover acts for the current owner.
		from = owner
	}

	if _, err := s.store.CardOf(ctx, to); err == nil {
		return dErrors.New(dErrors.CodeConflict, "recipient already owns a business card")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}

	if err := s.store.TransferCard(ctx, id, to); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "recipient already owns a business card")
		}
		return translateNotFound(err, "card not found")
	}

	s.emit(ctx, ledgerfeed.Event{Type: ledgerfeed.TypeCardSent, CardID: id, From: from, To: to})
	if s.metrics != nil {
		s.metrics.CardsSent.Inc()
	}
	return nil
}

// RentOut grants a time-bound lease to the renter. Owner only: a renter
// cannot sub-lease. Any prior lease is overwritten unconditionally.
func (s *Service) RentOut(ctx context.Context, id uint64, renter string, durationSeconds int64) error {
	caller := requestcontext.Caller(ctx)
	if caller == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if renter == "" {
		return dErrors.New(dErrors.CodeBadRequest, "renter address is required")
	}
	if durationSeconds <= 0 {
		return dErrors.New(dErrors.CodeBadRequest, "duration must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	owner, err := s.store.OwnerOf(ctx, id)
	if err != nil {
		return translateNotFound(err, "card not found")
	}
	if owner != caller {
		return dErrors.New(dErrors.CodeForbidden, "not your business card")
	}

	expiresAt := requestcontext.Now(ctx).Add(time.Duration(durationSeconds) * time.Second)
	if err := s.store.SetRental(ctx, id, card.Rental{Renter: renter, ExpiresAt: expiresAt}); err != nil {
		return translateNotFound(err, "card not found")
	}

	s.emit(ctx, ledgerfeed.Event{
		Type:            ledgerfeed.TypeCardRented,
		CardID:          id,
		From:            owner,
		To:              renter,
		DurationSeconds: durationSeconds,
	})
	if s.metrics != nil {
		s.metrics.RentalsStarted.Inc()
	}
	return nil
}

// EndRental clears the stored lease immediately, regardless of remaining
// time. Owner only.
func (s *Service) EndRental(ctx context.Context, id uint64) error {
	caller := requestcontext.Caller(ctx)
	if caller == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	owner, err := s.store.OwnerOf(ctx, id)
	if err != nil {
		return translateNotFound(err, "card not found")
	}
	if owner != caller {
		return dErrors.New(dErrors.CodeForbidden, "not your business card")
	}

	rental, err := s.store.DeleteRental(ctx, id)
	if err != nil {
		return translateNotFound(err, "no active rental")
	}

	s.emit(ctx, ledgerfeed.Event{
		Type:   ledgerfeed.TypeCardRentalEnded,
		CardID: id,
		From:   owner,
		To:     rental.Renter,
	})
	if s.metrics != nil {
		s.metrics.RentalsEnded.Inc()
	}
	return nil
}

// GetCard returns the stored record.
func (s *Service) GetCard(ctx context.Context, id uint64) (card.Card, error) {
	c, err := s.store.GetCard(ctx, id)
	if err != nil {
		return card.Card{}, translateNotFound(err, "card not found")
	}
	return c, nil
}

// GetRentalStatus reports the lease state lazily: an expired record reads as
// inactive with its stored renter, and nothing is written.
func (s *Service) GetRentalStatus(ctx context.Context, id uint64) (card.RentalStatus, error) {
	if _, err := s.store.GetCard(ctx, id); err != nil {
		return card.RentalStatus{}, translateNotFound(err, "card not found")
	}
	rental, err := s.store.GetRental(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return card.RentalStatus{}, nil
		}
		return card.RentalStatus{}, err
	}
	now := requestcontext.Now(ctx)
	return card.RentalStatus{
		Active:           rental.ActiveAt(now),
		Renter:           rental.Renter,
		RemainingSeconds: rental.RemainingAt(now),
	}, nil
}

// GetRentedCards lists every card the caller currently holds under an
// unexpired lease, ordered by card id.
func (s *Service) GetRentedCards(ctx context.Context) ([]card.RentedCard, error) {
	caller := requestcontext.Caller(ctx)
	if caller == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	rentals, err := s.store.RentalsByRenter(ctx, caller)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	out := make([]card.RentedCard, 0, len(rentals))
	for id, rental := range rentals {
		if !rental.ActiveAt(now) {
			continue
		}
		c, err := s.store.GetCard(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, card.RentedCard{
			CardID:           id,
			Card:             c,
			RemainingSeconds: rental.RemainingAt(now),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CardID < out[j].CardID })
	return out, nil
}

// GetReceivedCards returns the append-only log of cards ever sent to the
// address, oldest first.
func (s *Service) GetReceivedCards(ctx context.Context, address string) ([]uint64, error) {
	return s.store.ReceivedCards(ctx, address)
}

// HasReceived reports whether the address ever received the card.
func (s *Service) HasReceived(ctx context.Context, address string, id uint64) (bool, error) {
	return s.store.HasReceived(ctx, address, id)
}

// UserCard returns the card currently owned by the address; 0 means none.
func (s *Service) UserCard(ctx context.Context, address string) (uint64, error) {
	id, err := s.store.CardOf(ctx, address)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return id, nil
}

// OwnerOf returns the current owner of the card.
func (s *Service) OwnerOf(ctx context.Context, id uint64) (string, error) {
	owner, err := s.store.OwnerOf(ctx, id)
	if err != nil {
		return "", translateNotFound(err, "card not found")
	}
	return owner, nil
}

// TokenURI returns the card's metadata locator.
func (s *Service) TokenURI(ctx context.Context, id uint64) (string, error) {
	c, err := s.store.GetCard(ctx, id)
	if err != nil {
		return "", translateNotFound(err, "card not found")
	}
	return c.MetadataURI, nil
}

// SetCardSender toggles the allowlist entry letting an external component
// invoke Send on behalf of arbitrary owners. Administrator only.
func (s *Service) SetCardSender(ctx context.Context, contract string, allowed bool) error {
	caller := requestcontext.Caller(ctx)
	if caller == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if caller != s.admin {
		return dErrors.New(dErrors.CodeForbidden, "not authorized")
	}
	if contract == "" {
		return dErrors.New(dErrors.CodeBadRequest, "contract address is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.SetMover(ctx, contract, allowed)
}

// ApprovedCardSender reports whether the address is an allowlisted mover.
func (s *Service) ApprovedCardSender(ctx context.Context, contract string) (bool, error) {
	return s.store.IsMover(ctx, contract)
}

// isEffectiveController reports whether the address is the card's owner or
// its active renter. Callers hold s.mu.
func (s *Service) isEffectiveController(ctx context.Context, address string, id uint64) (bool, error) {
	owner, err := s.store.OwnerOf(ctx, id)
	if err != nil {
		return false, translateNotFound(err, "card not found")
	}
	if address == owner {
		return true, nil
	}
	rental, err := s.store.GetRental(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return rental.Renter == address && rental.ActiveAt(requestcontext.Now(ctx)), nil
}

// emit appends to the feed. The feed is observational, so a sink failure is
// logged and the operation still commits.
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

func translateNotFound(err error, message string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, message)
	}
	return err
}
