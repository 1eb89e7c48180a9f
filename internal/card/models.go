// Package card holds the business card records managed by the registry.
//
// Card ids are sequential and 1-based; id 0 means "no card". An address owns
// at most one card at any time.
package card

import "time"

// Card is the unique identity record. Name is fixed at mint; the remaining
// fields are mutable by the card's effective controller.
type Card struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	ContactInfo string    `json:"contact_info"`
	MetadataURI string    `json:"metadata_uri"`
	MintedAt    time.Time `json:"minted_at"`
}

// Rental is the time-bound delegation of a card. The record stays in the
// store after expiry; activity is always evaluated lazily against a clock.
type Rental struct {
	Renter    string    `json:"renter"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ActiveAt reports whether the rental delegates control at time t.
func (r Rental) ActiveAt(t time.Time) bool {
	return r.Renter != "" && r.ExpiresAt.After(t)
}

// RemainingAt returns the whole seconds left on the lease at time t, floored
// at zero once expired.
func (r Rental) RemainingAt(t time.Time) int64 {
	remaining := int64(r.ExpiresAt.Sub(t) / time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RentalStatus is the read-model for a card's lease.
type RentalStatus struct {
	Active           bool   `json:"active"`
	Renter           string `json:"renter"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

// RentedCard pairs a card with the remaining lease time, for the
// renter-facing listing.
type RentedCard struct {
	CardID           uint64 `json:"card_id"`
	Card             Card   `json:"card"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}
