// Package ledger holds the budget and squad composition rules consulted by
// bid validation, auto-bid caps and sale finalization.
package ledger

import (
	"errors"
	"fmt"

	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
)

var (
	ErrInsufficientBudget      = errors.New("insufficient budget")
	ErrSquadConstraintViolated = errors.New("squad constraint violated")
)

// Squad is a point-in-time view of one team's spend and holdings
type Squad struct {
	TeamID    int64
	Remaining int
	Roles     map[models.Position]int
	Players   int
	Clubs     map[int64]bool
}

// NewSquad builds a squad view from a team's remaining budget and its won items
func NewSquad(teamID int64, remaining int, entries []models.SquadEntry) Squad {
	s := Squad{
		TeamID:    teamID,
		Remaining: remaining,
		Roles:     make(map[models.Position]int, len(models.Positions)),
		Clubs:     make(map[int64]bool),
	}
	for _, e := range entries {
		s = s.add(models.Item{Type: e.ItemType, ID: e.ItemID, Position: e.Position, ClubID: e.ClubID})
	}
	return s
}

// ClubCount is the number of clubs owned
func (s Squad) ClubCount() int {
	return len(s.Clubs)
}

// Filled is the number of occupied squad slots
func (s Squad) Filled() int {
	return s.Players + len(s.Clubs)
}

func (s Squad) clone() Squad {
	c := s
	c.Roles = make(map[models.Position]int, len(s.Roles))
	for k, v := range s.Roles {
		c.Roles[k] = v
	}
	c.Clubs = make(map[int64]bool, len(s.Clubs))
	for k, v := range s.Clubs {
		c.Clubs[k] = v
	}
	return c
}

func (s Squad) add(item models.Item) Squad {
	c := s.clone()
	switch item.Type {
	case models.ItemTypePlayer:
		c.Roles[item.Position]++
		c.Players++
	case models.ItemTypeClub:
		c.Clubs[item.ID] = true
	}
	return c
}

// Ledger applies squad limits to budget decisions
type Ledger struct {
	limits models.Limits
}

// New creates a Ledger with the given limits
func New(limits models.Limits) *Ledger {
	return &Ledger{limits: limits}
}

// Limits returns the configured squad caps
func (l *Ledger) Limits() models.Limits {
	return l.limits
}

// CanHold reports whether the squad has room for item
func (l *Ledger) CanHold(squad Squad, item models.Item) error {
	switch item.Type {
	case models.ItemTypePlayer:
		if squad.Players >= l.limits.MaxPlayers {
			return fmt.Errorf("%w: squad already has %d players", ErrSquadConstraintViolated, squad.Players)
		}
		limit, ok := l.limits.Positions[item.Position]
		if !ok {
			return fmt.Errorf("%w: unknown position %q", ErrSquadConstraintViolated, item.Position)
		}
		if squad.Roles[item.Position] >= limit {
			return fmt.Errorf("%w: %s slots full (%d)", ErrSquadConstraintViolated, item.Position, limit)
		}
	case models.ItemTypeClub:
		if squad.Clubs[item.ID] {
			return fmt.Errorf("%w: club %d already owned", ErrSquadConstraintViolated, item.ID)
		}
		if len(squad.Clubs) >= l.limits.MaxClubs {
			return fmt.Errorf("%w: squad already has %d clubs", ErrSquadConstraintViolated, len(squad.Clubs))
		}
	default:
		return fmt.Errorf("%w: unknown item type %q", ErrSquadConstraintViolated, item.Type)
	}
	return nil
}

// CheckBid validates that the team could pay amount for item and still fit it in the squad
func (l *Ledger) CheckBid(squad Squad, item models.Item, amount int) error {
	if squad.Remaining < amount {
		return fmt.Errorf("%w: remaining %d, bid %d", ErrInsufficientBudget, squad.Remaining, amount)
	}
	return l.CanHold(squad, item)
}

// MaxAllowedBid is the most a team may commit to one item while keeping the
// starting bid in reserve for every other open slot
func (l *Ledger) MaxAllowedBid(squad Squad) int {
	open := l.limits.TotalSlots() - squad.Filled()
	if open <= 0 {
		return 0
	}
	allowed := squad.Remaining - models.StartingBid*(open-1)
	if allowed < 0 {
		return 0
	}
	return allowed
}

// Debit returns the squad after paying price for item
func (l *Ledger) Debit(squad Squad, item models.Item, price int) (Squad, error) {
	if price < 0 {
		return squad, fmt.Errorf("negative price %d", price)
	}
	if err := l.CheckBid(squad, item, price); err != nil {
		return squad, err
	}
	next := squad.add(item)
	next.Remaining -= price
	return next, nil
}

// ClubOwnedByAnyTeam reports whether clubID is held as a club item by any squad
func ClubOwnedByAnyTeam(squads []Squad, clubID int64) bool {
	for _, s := range squads {
		if s.Clubs[clubID] {
			return true
		}
	}
	return false
}
