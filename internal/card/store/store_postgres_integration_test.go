//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"cardledger/internal/card"
	"cardledger/pkg/platform/sentinel"
	"cardledger/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = NewPostgresStore(s.pg.Pool)
	s.Require().NoError(s.store.EnsureSchema(s.ctx))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateAll(s.ctx))
}

func (s *PostgresStoreSuite) TestCreateCardEnforcesOneCardPerOwner() {
	id, err := s.store.CreateCard(s.ctx, card.Card{Name: "A", MintedAt: time.Now()}, "0xa")
	s.Require().NoError(err)
	s.Equal(uint64(1), id)

	_, err = s.store.CreateCard(s.ctx, card.Card{Name: "A2", MintedAt: time.Now()}, "0xa")
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestCardRoundTrip() {
	minted := time.Now().UTC().Truncate(time.Microsecond)
	id, err := s.store.CreateCard(s.ctx, card.Card{
		Name:        "Jack Doe",
		Title:       "Student",
		Company:     "UBC",
		ContactInfo: "jack@ubc.ca",
		MetadataURI: "ipfs://xxx",
		MintedAt:    minted,
	}, "0xa")
	s.Require().NoError(err)

	got, err := s.store.GetCard(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("Jack Doe", got.Name)
	s.Equal("ipfs://xxx", got.MetadataURI)
	s.True(got.MintedAt.Equal(minted))

	got.Title = "Grad Student"
	s.Require().NoError(s.store.UpdateCard(s.ctx, got))
	got, err = s.store.GetCard(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("Grad Student", got.Title)

	_, err = s.store.GetCard(s.ctx, 99)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestTransferCard() {
	id, err := s.store.CreateCard(s.ctx, card.Card{Name: "A", MintedAt: time.Now()}, "0xa")
	s.Require().NoError(err)

	s.Require().NoError(s.store.TransferCard(s.ctx, id, "0xb"))

	owner, err := s.store.OwnerOf(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("0xb", owner)

	_, err = s.store.CardOf(s.ctx, "0xa")
	s.ErrorIs(err, sentinel.ErrNotFound)

	log, err := s.store.ReceivedCards(s.ctx, "0xb")
	s.Require().NoError(err)
	s.Equal([]uint64{id}, log)

	ok, err := s.store.HasReceived(s.ctx, "0xb", id)
	s.Require().NoError(err)
	s.True(ok)

	// Recipient with a card of their own blocks the transfer.
	_, err = s.store.CreateCard(s.ctx, card.Card{Name: "C", MintedAt: time.Now()}, "0xc")
	s.Require().NoError(err)
	s.ErrorIs(s.store.TransferCard(s.ctx, id, "0xc"), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestRentalUpsertAndDelete() {
	id, err := s.store.CreateCard(s.ctx, card.Card{Name: "A", MintedAt: time.Now()}, "0xa")
	s.Require().NoError(err)

	expires := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)
	s.Require().NoError(s.store.SetRental(s.ctx, id, card.Rental{Renter: "0xr", ExpiresAt: expires}))
	s.Require().NoError(s.store.SetRental(s.ctx, id, card.Rental{Renter: "0xr2", ExpiresAt: expires}))

	got, err := s.store.GetRental(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("0xr2", got.Renter)
	s.True(got.ExpiresAt.Equal(expires))

	byRenter, err := s.store.RentalsByRenter(s.ctx, "0xr2")
	s.Require().NoError(err)
	s.Len(byRenter, 1)

	deleted, err := s.store.DeleteRental(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("0xr2", deleted.Renter)

	_, err = s.store.DeleteRental(s.ctx, id)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.ErrorIs(s.store.SetRental(s.ctx, 99, card.Rental{Renter: "0xr", ExpiresAt: expires}), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestMoverAllowlist() {
	ok, err := s.store.IsMover(s.ctx, "0xp")
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.store.SetMover(s.ctx, "0xp", true))
	ok, err = s.store.IsMover(s.ctx, "0xp")
	s.Require().NoError(err)
	s.True(ok)

	s.Require().NoError(s.store.SetMover(s.ctx, "0xp", false))
	ok, err = s.store.IsMover(s.ctx, "0xp")
	s.Require().NoError(err)
	s.False(ok)
}
