package models

import (
	"time"

	"github.com/google/uuid"
)

// SquadEntry records an item a team won at auction.
type SquadEntry struct {
	ID         uuid.UUID `json:"id"`
	TeamID     int64     `json:"team_id"`
	AuctionID  uuid.UUID `json:"auction_id"`
	ItemType   ItemType  `json:"item_type"`
	ItemID     int64     `json:"item_id"`
	Position   Position  `json:"position,omitempty"`
	ClubID     int64     `json:"club_id"`
	PricePaid  int       `json:"price_paid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Limits are the squad format caps.
type Limits struct {
	MaxPlayers int              `yaml:"max_players" json:"max_players"`
	MaxClubs   int              `yaml:"max_clubs" json:"max_clubs"`
	Positions  map[Position]int `yaml:"positions" json:"positions"`
}

// DefaultLimits is the 15-player, 2-club format.
func DefaultLimits() Limits {
	return Limits{
		MaxPlayers: 15,
		MaxClubs:   2,
		Positions: map[Position]int{
			PositionGoalkeeper: 2,
			PositionDefender:   5,
			PositionMidfielder: 5,
			PositionForward:    3,
		},
	}
}

// TotalSlots is the number of items a complete squad holds.
func (l Limits) TotalSlots() int {
	return l.MaxPlayers + l.MaxClubs
}
