// Package ledgerfeed records every state transition the registry and the
// recommendation protocol emit. The feed is observational: reads never drive
// protocol decisions (the pending-recommendations mapping is the source of
// truth), so clients do not need to re-derive state from historical events.
package ledgerfeed

import "time"

type Type string

const (
	TypeCardMinted             Type = "card_minted"
	TypeCardSent               Type = "card_sent"
	TypeCardRented             Type = "card_rented"
	TypeCardRentalEnded        Type = "card_rental_ended"
	TypeRecommendationCreated  Type = "recommendation_created"
	TypeRecommendationAccepted Type = "recommendation_accepted"
)

// Event is one feed entry. From/To carry the addresses relevant to the event
// type (owner/renter, sender/recipient, recommender/recommendee).
type Event struct {
	ID              string    `json:"id"`
	Type            Type      `json:"type"`
	CardID          uint64    `json:"card_id"`
	From            string    `json:"from,omitempty"`
	To              string    `json:"to,omitempty"`
	DurationSeconds int64     `json:"duration_seconds,omitempty"`
	RewardAmount    string    `json:"reward_amount,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
