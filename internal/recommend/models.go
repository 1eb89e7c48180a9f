// Package recommend holds the peer-endorsement records and the REC reward
// credit issued when an endorsement is accepted.
package recommend

import "github.com/holiman/uint256"

// recUnit is one whole REC in base units (18 decimals).
var recUnit = uint256.NewInt(1_000_000_000_000_000_000)

// RewardAmount converts whole REC into base units.
func RewardAmount(rec uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(rec), recUnit)
}

// Recommendation is a pending endorsement: the recommender vouches that the
// recommendee should be introduced to the card. At most one pending entry
// exists per (recommendee, recommender) pair.
type Recommendation struct {
	Recommender string `json:"recommender"`
	Recommendee string `json:"recommendee"`
	CardID      uint64 `json:"card_id"`
}
