package models

// Position is a player's squad role.
type Position string

const (
	PositionGoalkeeper Position = "GK"
	PositionDefender   Position = "DEF"
	PositionMidfielder Position = "MID"
	PositionForward    Position = "FWD"
)

// Positions lists every role in display order.
var Positions = []Position{PositionGoalkeeper, PositionDefender, PositionMidfielder, PositionForward}

// Player is an auctionable footballer.
type Player struct {
	ID       int64    `json:"id"`
	WebName  string   `json:"web_name"`
	Position Position `json:"position"`
	ClubID   int64    `json:"club_id"`
	Price    int      `json:"price"`
}

// Club is an auctionable real-world team.
type Club struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
}

// Item describes a nominated target with the attributes squad checks need.
type Item struct {
	Type     ItemType `json:"type"`
	ID       int64    `json:"id"`
	Position Position `json:"position,omitempty"`
	// ClubID is the player's club, or the club itself for club items.
	ClubID int64 `json:"club_id"`
}
