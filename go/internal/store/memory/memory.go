// Package memory is an in-process store used in development and tests. It
// keeps the same compare-and-swap and outbox semantics as the postgres store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/skjftp/fpl-auction-sub001/go/internal/events"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store"
)

// Store keeps every record set in maps guarded by one mutex
type Store struct {
	mu       sync.RWMutex
	teams    map[int64]*models.Team
	players  map[int64]*models.Player
	clubs    map[int64]*models.Club
	auctions map[uuid.UUID]*models.Auction
	squads   []models.SquadEntry
	draft    *models.DraftState
	autobid  map[int64]*models.AutoBidConfig
	outbox   []events.Event
}

// New creates an empty Store
func New() *Store {
	return &Store{
		teams:    make(map[int64]*models.Team),
		players:  make(map[int64]*models.Player),
		clubs:    make(map[int64]*models.Club),
		auctions: make(map[uuid.UUID]*models.Auction),
		autobid:  make(map[int64]*models.AutoBidConfig),
		draft:    &models.DraftState{},
	}
}

// SeedTeams inserts or replaces teams
func (s *Store) SeedTeams(teams ...models.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range teams {
		t := t
		s.teams[t.ID] = &t
	}
}

// SeedPlayers inserts or replaces players
func (s *Store) SeedPlayers(players ...models.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range players {
		p := p
		s.players[p.ID] = &p
	}
}

// SeedClubs inserts or replaces clubs
func (s *Store) SeedClubs(clubs ...models.Club) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range clubs {
		c := c
		s.clubs[c.ID] = &c
	}
}

// UpsertTeams seeds teams the way the postgres store does: an existing team
// keeps its budget
func (s *Store) UpsertTeams(_ context.Context, teams ...models.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range teams {
		t := t
		if cur, ok := s.teams[t.ID]; ok {
			t.Budget = cur.Budget
			t.CreatedAt = cur.CreatedAt
		}
		s.teams[t.ID] = &t
	}
	return nil
}

func (s *Store) UpsertClubs(_ context.Context, clubs ...models.Club) error {
	s.SeedClubs(clubs...)
	return nil
}

func (s *Store) UpsertPlayers(_ context.Context, players ...models.Player) error {
	s.SeedPlayers(players...)
	return nil
}

// Outbox returns every event committed so far, in commit order
func (s *Store) Outbox() []events.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]events.Event(nil), s.outbox...)
}

func (s *Store) ListTeams(_ context.Context) ([]models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Team, 0, len(s.teams))
	for _, t := range s.teams {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetTeam(_ context.Context, id int64) (*models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, fmt.Errorf("team %d: %w", id, store.ErrNotFound)
	}
	c := *t
	return &c, nil
}

func (s *Store) GetPlayer(_ context.Context, id int64) (*models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return nil, fmt.Errorf("player %d: %w", id, store.ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (s *Store) GetClub(_ context.Context, id int64) (*models.Club, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clubs[id]
	if !ok {
		return nil, fmt.Errorf("club %d: %w", id, store.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GetSquad(_ context.Context, teamID int64) ([]models.SquadEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SquadEntry
	for _, e := range s.squads {
		if e.TeamID == teamID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ListSquads(_ context.Context) ([]models.SquadEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.SquadEntry(nil), s.squads...), nil
}

func (s *Store) IsItemOwned(_ context.Context, itemType models.ItemType, itemID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownedLocked(itemType, itemID), nil
}

func (s *Store) ownedLocked(itemType models.ItemType, itemID int64) bool {
	for _, e := range s.squads {
		if e.ItemType == itemType && e.ItemID == itemID {
			return true
		}
	}
	return false
}

func (s *Store) GetDraftState(_ context.Context) (*models.DraftState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draft.Clone(), nil
}

// SaveDraftState replaces the draft singleton if its version still matches
func (s *Store) SaveDraftState(_ context.Context, state *models.DraftState, expectedVersion int64, evts ...events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft.Version != expectedVersion {
		return fmt.Errorf("draft state at version %d, expected %d: %w", s.draft.Version, expectedVersion, store.ErrVersionConflict)
	}
	s.draft = state.Clone()
	s.outbox = append(s.outbox, evts...)
	return nil
}

func (s *Store) GetLiveAuction(_ context.Context) (*models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a := s.liveLocked(); a != nil {
		return a.Clone(), nil
	}
	return nil, fmt.Errorf("live auction: %w", store.ErrNotFound)
}

func (s *Store) liveLocked() *models.Auction {
	for _, a := range s.auctions {
		if a.Status.IsLive() {
			return a
		}
	}
	return nil
}

func (s *Store) GetAuction(_ context.Context, id uuid.UUID) (*models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.auctions[id]
	if !ok {
		return nil, fmt.Errorf("auction %s: %w", id, store.ErrNotFound)
	}
	return a.Clone(), nil
}

// CreateAuction inserts a new auction, refusing while another is live
func (s *Store) CreateAuction(_ context.Context, a *models.Auction, evts ...events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if live := s.liveLocked(); live != nil {
		return fmt.Errorf("auction %s is %s: %w", live.ID, live.Status, store.ErrLiveAuctionExists)
	}
	if s.ownedLocked(a.ItemType, a.ItemID) {
		return fmt.Errorf("%s %d: %w", a.ItemType, a.ItemID, store.ErrItemOwned)
	}
	s.auctions[a.ID] = a.Clone()
	s.outbox = append(s.outbox, evts...)
	return nil
}

// UpdateAuction replaces the auction if its stored version equals expectedVersion
func (s *Store) UpdateAuction(_ context.Context, a *models.Auction, expectedVersion int64, evts ...events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.auctions[a.ID]
	if !ok {
		return fmt.Errorf("auction %s: %w", a.ID, store.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("auction %s at version %d, expected %d: %w", a.ID, cur.Version, expectedVersion, store.ErrVersionConflict)
	}
	s.auctions[a.ID] = a.Clone()
	s.outbox = append(s.outbox, evts...)
	return nil
}

// FinalizeSale marks the auction sold, debits the winner and records the squad entry in one step
func (s *Store) FinalizeSale(_ context.Context, a *models.Auction, expectedVersion int64, entry models.SquadEntry, evts ...events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.auctions[a.ID]
	if !ok {
		return fmt.Errorf("auction %s: %w", a.ID, store.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("auction %s at version %d, expected %d: %w", a.ID, cur.Version, expectedVersion, store.ErrVersionConflict)
	}
	team, ok := s.teams[entry.TeamID]
	if !ok {
		return fmt.Errorf("team %d: %w", entry.TeamID, store.ErrNotFound)
	}
	if team.Budget < entry.PricePaid {
		return fmt.Errorf("team %d budget %d, price %d: %w", team.ID, team.Budget, entry.PricePaid, store.ErrBudgetExceeded)
	}
	if s.ownedLocked(entry.ItemType, entry.ItemID) {
		return fmt.Errorf("%s %d: %w", entry.ItemType, entry.ItemID, store.ErrItemOwned)
	}
	team.Budget -= entry.PricePaid
	s.squads = append(s.squads, entry)
	s.auctions[a.ID] = a.Clone()
	s.outbox = append(s.outbox, evts...)
	return nil
}

// ListAuctions returns every auction ordered by start time
func (s *Store) ListAuctions(_ context.Context) ([]models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		out = append(out, *a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// ResetDraft clears auctions, squads and the pick order, optionally restoring budgets
func (s *Store) ResetDraft(_ context.Context, budget int, resetBudgets bool, evts ...events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions = make(map[uuid.UUID]*models.Auction)
	s.squads = nil
	s.draft = &models.DraftState{Version: s.draft.Version + 1, UpdatedAt: s.draft.UpdatedAt}
	if resetBudgets {
		for _, t := range s.teams {
			t.Budget = budget
		}
	}
	s.outbox = append(s.outbox, evts...)
	return nil
}

func (s *Store) GetAutoBidConfig(_ context.Context, teamID int64) (*models.AutoBidConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.autobid[teamID]
	if !ok {
		return nil, fmt.Errorf("autobid config for team %d: %w", teamID, store.ErrNotFound)
	}
	return cloneConfig(c), nil
}

func (s *Store) SaveAutoBidConfig(_ context.Context, cfg *models.AutoBidConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autobid[cfg.TeamID] = cloneConfig(cfg)
	return nil
}

func (s *Store) ListAutoBidConfigs(_ context.Context) ([]models.AutoBidConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AutoBidConfig, 0, len(s.autobid))
	for _, c := range s.autobid {
		out = append(out, *cloneConfig(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TeamID < out[j].TeamID })
	return out, nil
}

func cloneConfig(c *models.AutoBidConfig) *models.AutoBidConfig {
	cp := *c
	cp.PerTarget = make(map[models.TargetKey]models.AutoBidOverride, len(c.PerTarget))
	for k, v := range c.PerTarget {
		cp.PerTarget[k] = v
	}
	return &cp
}
