// Package draft schedules the nomination turn order.
package draft

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/skjftp/fpl-auction-sub001/go/internal/events"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store"
)

const maxSaveAttempts = 3

// Repository defines what the scheduler needs from the store
type Repository interface {
	GetDraftState(ctx context.Context) (*models.DraftState, error)
	SaveDraftState(ctx context.Context, state *models.DraftState, expectedVersion int64, evts ...events.Event) error
	ListTeams(ctx context.Context) ([]models.Team, error)
	GetLiveAuction(ctx context.Context) (*models.Auction, error)
	ResetDraft(ctx context.Context, budget int, resetBudgets bool, evts ...events.Event) error
}

// Scheduler owns the draft singleton. Every mutation goes through its mutex
// and a compare-and-swap on the state version.
type Scheduler struct {
	repo        Repository
	broadcaster events.Broadcaster
	clock       clockwork.Clock
	shuffle     func(n int, swap func(i, j int))
	budget      int

	mu     sync.Mutex
	halted error
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces the real clock
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithShuffle replaces the random permutation source
func WithShuffle(shuffle func(n int, swap func(i, j int))) Option {
	return func(s *Scheduler) { s.shuffle = shuffle }
}

// WithBudget sets the budget teams are restored to on reset
func WithBudget(budget int) Option {
	return func(s *Scheduler) { s.budget = budget }
}

// NewScheduler creates a draft Scheduler
func NewScheduler(repo Repository, broadcaster events.Broadcaster, opts ...Option) *Scheduler {
	s := &Scheduler{
		repo:        repo,
		broadcaster: broadcaster,
		clock:       clockwork.NewRealClock(),
		shuffle:     rand.Shuffle,
		budget:      models.DefaultBudget,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current draft state
func (s *Scheduler) State(ctx context.Context) (*models.DraftState, error) {
	state, err := s.repo.GetDraftState(ctx)
	if err != nil {
		return nil, store.Unavailable("get draft state", err)
	}
	return state, nil
}

// Halted returns the fatal error that stopped advancement, if any
func (s *Scheduler) Halted() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

// Initialize fixes a random pick order over teamIDs, or over every team when
// teamIDs is empty. The draft is left inactive at position 1.
func (s *Scheduler) Initialize(ctx context.Context, teamIDs []int64) (*models.DraftState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(teamIDs) == 0 {
		teams, err := s.repo.ListTeams(ctx)
		if err != nil {
			return nil, store.Unavailable("list teams", err)
		}
		for _, t := range teams {
			teamIDs = append(teamIDs, t.ID)
		}
	}
	if len(teamIDs) == 0 {
		return nil, ErrNoTeams
	}
	if err := s.validateTeams(ctx, teamIDs); err != nil {
		return nil, err
	}

	order := append([]int64(nil), teamIDs...)
	s.shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	var result *models.DraftState
	err := s.mutate(ctx, func(cur *models.DraftState) (*models.DraftState, []events.Event, error) {
		if cur.IsActive {
			return nil, nil, ErrDraftInProgress
		}
		now := s.clock.Now().UTC()
		first := order[0]
		next := &models.DraftState{
			Order:           order,
			CurrentPosition: 1,
			CurrentTeamID:   &first,
			Version:         cur.Version + 1,
			UpdatedAt:       now,
		}
		evt, err := events.New(events.TypeDraftInitialized, uuid.Nil, next.Version, now, events.DraftInitializedPayload{Order: order})
		if err != nil {
			return nil, nil, err
		}
		result = next
		return next, []events.Event{evt}, nil
	})
	if err != nil {
		return nil, err
	}
	s.halted = nil

	log.Info().Ints64("order", order).Msg("draft order initialized")
	return result, nil
}

func (s *Scheduler) validateTeams(ctx context.Context, teamIDs []int64) error {
	teams, err := s.repo.ListTeams(ctx)
	if err != nil {
		return store.Unavailable("list teams", err)
	}
	known := make(map[int64]bool, len(teams))
	for _, t := range teams {
		known[t.ID] = true
	}
	seen := make(map[int64]bool, len(teamIDs))
	for _, id := range teamIDs {
		if !known[id] {
			return fmt.Errorf("%w: unknown team %d", ErrInvalidOrder, id)
		}
		if seen[id] {
			return fmt.Errorf("%w: team %d listed twice", ErrInvalidOrder, id)
		}
		seen[id] = true
	}
	return nil
}

// Start flips the draft active. It is a no-op when no order exists, the draft
// is already active, or every position has been consumed.
func (s *Scheduler) Start(ctx context.Context) (*models.DraftState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result *models.DraftState
	err := s.mutate(ctx, func(cur *models.DraftState) (*models.DraftState, []events.Event, error) {
		if !cur.Initialized() || cur.IsActive || cur.CurrentPosition > len(cur.Order) {
			result = cur
			return nil, nil, nil
		}
		now := s.clock.Now().UTC()
		next := cur.Clone()
		next.IsActive = true
		next.StartedAt = &now
		next.Version++
		next.UpdatedAt = now

		teamID, _ := next.TeamAt(next.CurrentPosition)
		evt, err := events.New(events.TypeDraftStarted, uuid.Nil, next.Version, now, events.DraftStartedPayload{
			Position:  next.CurrentPosition,
			TeamID:    teamID,
			StartedAt: now,
		})
		if err != nil {
			return nil, nil, err
		}
		result = next
		return next, []events.Event{evt}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Advance moves the turn past fromPosition. Calls whose fromPosition is no
// longer current are no-ops, so a retried completion cannot skip a team.
func (s *Scheduler) Advance(ctx context.Context, fromPosition int) (*models.DraftState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(ctx, fromPosition)
}

func (s *Scheduler) advanceLocked(ctx context.Context, fromPosition int) (*models.DraftState, error) {
	if s.halted != nil {
		return nil, s.halted
	}

	teams, err := s.repo.ListTeams(ctx)
	if err != nil {
		return nil, store.Unavailable("list teams", err)
	}
	known := make(map[int64]bool, len(teams))
	for _, t := range teams {
		known[t.ID] = true
	}

	var result *models.DraftState
	err = s.mutate(ctx, func(cur *models.DraftState) (*models.DraftState, []events.Event, error) {
		if !cur.Initialized() {
			return nil, nil, ErrDraftNotInitialized
		}
		if cur.CurrentPosition != fromPosition || cur.Complete() {
			result = cur
			return nil, nil, nil
		}
		if !cur.IsActive {
			return nil, nil, ErrDraftNotActive
		}

		now := s.clock.Now().UTC()
		next := cur.Clone()
		next.CurrentPosition = fromPosition + 1
		next.Version++
		next.UpdatedAt = now

		var evt events.Event
		var err error
		if next.CurrentPosition > len(next.Order) {
			next.IsActive = false
			next.CurrentTeamID = nil
			next.CompletedAt = &now
			evt, err = events.New(events.TypeDraftCompleted, uuid.Nil, next.Version, now, events.DraftCompletedPayload{
				TotalPicks:  len(next.Order),
				CompletedAt: now,
			})
		} else {
			teamID, _ := next.TeamAt(next.CurrentPosition)
			if !known[teamID] {
				return nil, nil, fmt.Errorf("%w: no team %d at position %d", ErrDraftCorrupted, teamID, next.CurrentPosition)
			}
			next.CurrentTeamID = &teamID
			evt, err = events.New(events.TypeDraftTurnAdvanced, uuid.Nil, next.Version, now, events.DraftTurnAdvancedPayload{
				Position: next.CurrentPosition,
				TeamID:   teamID,
			})
		}
		if err != nil {
			return nil, nil, err
		}
		result = next
		return next, []events.Event{evt}, nil
	})
	if errors.Is(err, ErrDraftCorrupted) {
		s.halted = err
		log.Error().Err(err).Int("position", fromPosition).Msg("draft advancement halted")
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AdvanceTurn lets the team whose turn it is pass without nominating
func (s *Scheduler) AdvanceTurn(ctx context.Context, requesterTeamID int64) (*models.DraftState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.repo.GetDraftState(ctx)
	if err != nil {
		return nil, store.Unavailable("get draft state", err)
	}
	if !cur.Initialized() {
		return nil, ErrDraftNotInitialized
	}
	if cur.Complete() {
		return nil, ErrDraftAlreadyComplete
	}
	if !cur.IsActive {
		return nil, ErrDraftNotActive
	}
	if cur.CurrentTeamID == nil || *cur.CurrentTeamID != requesterTeamID {
		return nil, ErrNotYourTurn
	}
	if err := s.ensureNoLiveAuction(ctx); err != nil {
		return nil, err
	}
	return s.advanceLocked(ctx, cur.CurrentPosition)
}

// Reset clears the order, every auction and every squad. Budgets are restored
// when resetBudgets is set.
func (s *Scheduler) Reset(ctx context.Context, resetBudgets bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureNoLiveAuction(ctx); err != nil {
		return err
	}
	now := s.clock.Now().UTC()
	evt, err := events.New(events.TypeDraftReset, uuid.Nil, 0, now, events.DraftResetPayload{BudgetsReset: resetBudgets, ResetAt: now})
	if err != nil {
		return err
	}
	if err := s.repo.ResetDraft(ctx, s.budget, resetBudgets, evt); err != nil {
		return store.Unavailable("reset draft", err)
	}
	s.halted = nil
	s.publish(ctx, evt)

	log.Info().Bool("budgets_reset", resetBudgets).Msg("draft reset")
	return nil
}

func (s *Scheduler) ensureNoLiveAuction(ctx context.Context) error {
	live, err := s.repo.GetLiveAuction(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return store.Unavailable("get live auction", err)
	default:
		return fmt.Errorf("%w: %s", ErrAuctionInProgress, live.ID)
	}
}

// mutate runs fn against the freshest state and saves its result with a
// version check, retrying on conflict. A nil state from fn means no change.
func (s *Scheduler) mutate(ctx context.Context, fn func(cur *models.DraftState) (*models.DraftState, []events.Event, error)) error {
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		cur, err := s.repo.GetDraftState(ctx)
		if err != nil {
			return store.Unavailable("get draft state", err)
		}
		next, evts, err := fn(cur)
		if err != nil || next == nil {
			return err
		}
		err = s.repo.SaveDraftState(ctx, next, cur.Version, evts...)
		if errors.Is(err, store.ErrVersionConflict) {
			log.Debug().Int("attempt", attempt).Msg("draft state changed underneath, retrying")
			continue
		}
		if err != nil {
			return store.Unavailable("save draft state", err)
		}
		s.publish(ctx, evts...)
		return nil
	}
	return fmt.Errorf("save draft state: %w", store.ErrVersionConflict)
}

func (s *Scheduler) publish(ctx context.Context, evts ...events.Event) {
	if len(evts) == 0 || s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Publish(ctx, evts...); err != nil {
		log.Error().Err(err).Msg("failed to broadcast draft events")
	}
}
