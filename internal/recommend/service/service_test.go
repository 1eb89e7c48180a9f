package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	cardservice "cardledger/internal/card/service"
	cardstore "cardledger/internal/card/store"
	"cardledger/internal/ledgerfeed"
	"cardledger/internal/recommend"
	"cardledger/internal/recommend/store"
	dErrors "cardledger/pkg/domain-errors"
	"cardledger/pkg/requestcontext"
)

const (
	admin    = "0xadmin"
	protocol = "0xcard-recommendation"
	alice    = "0xalice"
	bob      = "0xbob"
	carol    = "0xcarol"
)

type ProtocolSuite struct {
	suite.Suite
	registry *cardservice.Service
	protocol *Service
	store    *store.InMemoryStore
	feed     *ledgerfeed.InMemoryStore
	now      time.Time
}

func TestProtocolSuite(t *testing.T) {
	suite.Run(t, new(ProtocolSuite))
}

func (s *ProtocolSuite) SetupTest() {
	s.feed = ledgerfeed.NewInMemoryStore()
	publisher := ledgerfeed.NewPublisher(s.feed)
	s.registry = cardservice.New(cardstore.NewInMemoryStore(), publisher, nil, nil, admin)
	s.store = store.NewInMemoryStore()
	s.protocol = New(s.store, s.registry, publisher, nil, nil, protocol, recommend.RewardAmount(10))
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Require().NoError(s.registry.SetCardSender(s.as(admin), protocol, true))
}

func (s *ProtocolSuite) as(caller string) context.Context {
	ctx := requestcontext.WithCaller(context.Background(), caller)
	return requestcontext.WithTime(ctx, s.now)
}

// seedReceivedCard mints a card for owner and passes it through holder so the
// holder appears in the card's received log.
func (s *ProtocolSuite) seedReceivedCard(owner, holder string) uint64 {
	id, err := s.registry.Mint(s.as(owner), "Jack Doe", "Student", "UBC", "jack@ubc.ca", "")
	s.Require().NoError(err)
	s.Require().NoError(s.registry.Send(s.as(owner), holder, id))
	return id
}

func (s *ProtocolSuite) TestRecommendCard() {
	s.Run("records a pending endorsement for a received card", func() {
		s.SetupTest()
		id := s.seedReceivedCard(alice, bob)

		s.Require().NoError(s.protocol.RecommendCard(s.as(bob), carol, id))

		pending, err := s.protocol.PendingRecommendation(s.as(carol), carol, bob)
		s.Require().NoError(err)
		s.Equal(id, pending)
	})

	s.Run("works even after the card has moved on", func() {
		s.SetupTest()
		id := s.seedReceivedCard(alice, bob)
		s.Require().NoError(s.registry.Send(s.as(bob), carol, id))

		// bob no longer holds the card but once received it.
		s.Require().NoError(s.protocol.RecommendCard(s.as(bob), "0xdave", id))
	})

	s.Run("rejects a recommender who never received the card", func() {
		s.SetupTest()
		id, err := s.registry.Mint(s.as(alice), "Jack Doe", "Student", "UBC", "jack@ubc.ca", "")
		s.Require().NoError(err)

		// alice minted the card herself; it was never sent to her.
		err = s.protocol.RecommendCard(s.as(alice), carol, id)
		s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))
		s.Equal("never received this card", err.Error())
	})

	s.Run("a fresh endorsement for the pair overwrites the old one", func() {
		s.SetupTest()
		id1 := s.seedReceivedCard(alice, bob)
		s.Require().NoError(s.protocol.RecommendCard(s.as(bob), carol, id1))

		// bob passes the first card on, receives a second, endorses that one.
		s.Require().NoError(s.registry.Send(s.as(bob), "0xdave", id1))
		id2 := s.seedReceivedCard("0xeve", bob)
		s.Require().NoError(s.protocol.RecommendCard(s.as(bob), carol, id2))

		pending, err := s.protocol.PendingRecommendation(s.as(carol), carol, bob)
		s.Require().NoError(err)
		s.Equal(id2, pending)
	})

	s.Run("emits a recommendation event", func() {
		s.SetupTest()
		id := s.seedReceivedCard(alice, bob)
		s.Require().NoError(s.protocol.RecommendCard(s.as(bob), carol, id))

		events, err := s.feed.List(context.Background(), 1)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(ledgerfeed.TypeRecommendationCreated, events[0].Type)
		s.Equal(bob, events[0].From)
		s.Equal(carol, events[0].To)
	})
}

func (s *ProtocolSuite) TestAcceptRecommendation() {
	s.Run("moves the card, burns the pending entry, credits the reward once", func() {
		s.SetupTest()
		id := s.seedReceivedCard(alice, bob)
		s.Require().NoError(s.protocol.RecommendCard(s.as(bob), carol, id))

		s.Require().NoError(s.protocol.AcceptRecommendation(s.as(carol), bob))

		owner, err := s.registry.OwnerOf(s.as(carol), id)
		s.Require().NoError(err)
		s.Equal(carol, owner)

		balance, err := s.protocol.BalanceOf(s.as(bob), bob)
		s.Require().NoError(err)
		s.Equal("10000000000000000000", balance.Dec())

		pending, err := s.protocol.PendingRecommendation(s.as(carol), carol, bob)
		s.Require().NoError(err)
		s.Zero(pending)

		// Replay fails and nothing more is credited.
		err = s.protocol.AcceptRecommendation(s.as(carol), bob)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
		s.Equal("no pending recommendation", err.Error())

		balance, err = s.protocol.BalanceOf(s.as(bob), bob)
		s.Require().NoError(err)
		s.Equal("10000000000000000000", balance.Dec())
	})

	s.Run("the delegated send names the holder the card left, not the protocol", func() {
		s.SetupTest()
		id := s.seedReceivedCard(alice, bob)
		s.Require().NoError(s.protocol.RecommendCard(s.as(bob), carol, id))
		s.Require().NoError(s.protocol.AcceptRecommendation(s.as(carol), bob))

		events, err := s.feed.List(context.Background(), 10)
		s.Require().NoError(err)
		// newest first: accepted, sent, ...
		s.Equal(ledgerfeed.TypeRecommendationAccepted, events[0].Type)
		s.Equal("10000000000000000000", events[0].RewardAmount)
		s.Equal(ledgerfeed.TypeCardSent, events[1].Type)
		s.Equal(bob, events[1].From)
		s.Equal(carol, events[1].To)
	})

	s.Run("fails without a pending entry for the pair", func() {
		s.SetupTest()
		err := s.protocol.AcceptRecommendation(s.as(carol), bob)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})

	s.Run("a revoked allowlist aborts the acceptance with nothing written", func() {
		s.SetupTest()
		id := s.seedReceivedCard(alice, bob)
		s.Require().NoError(s.protocol.RecommendCard(s.as(bob), carol, id))
		s.Require().NoError(s.registry.SetCardSender(s.as(admin), protocol, false))

		err := s.protocol.AcceptRecommendation(s.as(carol), bob)
		s.Require().Error(err)
		s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))

		// Pending entry survives, nothing credited, card did not move.
		pending, perr := s.protocol.PendingRecommendation(s.as(carol), carol, bob)
		s.Require().NoError(perr)
		s.Equal(id, pending)

		balance, berr := s.protocol.BalanceOf(s.as(bob), bob)
		s.Require().NoError(berr)
		s.True(balance.IsZero())

		owner, oerr := s.registry.OwnerOf(s.as(carol), id)
		s.Require().NoError(oerr)
		s.Equal(bob, owner)
	})

	s.Run("fails when the acceptor already owns a card", func() {
		s.SetupTest()
		id := s.seedReceivedCard(alice, bob)
		_, err := s.registry.Mint(s.as(carol), "Carol", "CTO", "ACME", "c@acme.io", "")
		s.Require().NoError(err)
		s.Require().NoError(s.protocol.RecommendCard(s.as(bob), carol, id))

		err = s.protocol.AcceptRecommendation(s.as(carol), bob)
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))

		// Entry intact for a later retry.
		pending, perr := s.protocol.PendingRecommendation(s.as(carol), carol, bob)
		s.Require().NoError(perr)
		s.Equal(id, pending)
	})

	s.Run("rewards accumulate across acceptances", func() {
		s.SetupTest()
		id1 := s.seedReceivedCard(alice, bob)
		s.Require().NoError(s.protocol.RecommendCard(s.as(bob), carol, id1))
		s.Require().NoError(s.protocol.AcceptRecommendation(s.as(carol), bob))

		// carol passes the card on and recommends it to dave.
		s.Require().NoError(s.registry.Send(s.as(carol), "0xdave", id1))
		s.Require().NoError(s.protocol.RecommendCard(s.as(bob), "0xeve", id1))
		s.Require().NoError(s.protocol.AcceptRecommendation(s.as("0xeve"), bob))

		balance, err := s.protocol.BalanceOf(s.as(bob), bob)
		s.Require().NoError(err)
		s.Equal("20000000000000000000", balance.Dec())
	})
}

func (s *ProtocolSuite) TestPendingListings() {
	id1 := s.seedReceivedCard(alice, bob)
	id2 := s.seedReceivedCard("0xdave", "0xeve")

	s.Require().NoError(s.protocol.RecommendCard(s.as(bob), carol, id1))
	s.Require().NoError(s.protocol.RecommendCard(s.as("0xeve"), carol, id2))

	pending, err := s.protocol.PendingForRecommendee(s.as(carol), carol)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	// Ordered by recommender.
	s.Equal(bob, pending[0].Recommender)
	s.Equal(id1, pending[0].CardID)
	s.Equal("0xeve", pending[1].Recommender)
	s.Equal(id2, pending[1].CardID)

	none, err := s.protocol.PendingForRecommendee(s.as(bob), bob)
	s.Require().NoError(err)
	s.Empty(none)
}
