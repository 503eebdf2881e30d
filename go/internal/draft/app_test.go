package draft

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skjftp/fpl-auction-sub001/go/internal/events"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store/memory"
)

type recorder struct {
	mu   sync.Mutex
	evts []events.Event
}

func (r *recorder) Publish(_ context.Context, evts ...events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evts = append(r.evts, evts...)
	return nil
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.evts))
	for _, e := range r.evts {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) of(t events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.evts {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// noShuffle keeps the input order so assertions are deterministic.
func noShuffle(int, func(i, j int)) {}

func setup(t *testing.T, teamIDs ...int64) (*Scheduler, *memory.Store, *recorder) {
	t.Helper()
	st := memory.New()
	for _, id := range teamIDs {
		st.SeedTeams(models.Team{ID: id, Name: "team", Budget: models.DefaultBudget})
	}
	rec := &recorder{}
	s := NewScheduler(st, rec, WithShuffle(noShuffle), WithClock(clockwork.NewFakeClock()))
	return s, st, rec
}

func TestScheduler_Initialize(t *testing.T) {
	s, _, rec := setup(t, 1, 2, 3)
	ctx := context.Background()

	state, err := s.Initialize(ctx, []int64{3, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1, 2}, state.Order)
	assert.Equal(t, 1, state.CurrentPosition)
	assert.Equal(t, int64(3), *state.CurrentTeamID)
	assert.False(t, state.IsActive)
	assert.Equal(t, []events.Type{events.TypeDraftInitialized}, rec.types())

	_, err = s.Initialize(ctx, []int64{1, 99})
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestScheduler_InitializeIsAPermutation(t *testing.T) {
	st := memory.New()
	ids := []int64{1, 2, 3, 4, 5, 6, 7, 8}
	for _, id := range ids {
		st.SeedTeams(models.Team{ID: id})
	}
	s := NewScheduler(st, events.Nop{})

	state, err := s.Initialize(context.Background(), nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, state.Order)
}

func TestScheduler_StartIsNoOpWithoutOrder(t *testing.T) {
	s, _, rec := setup(t, 1, 2)
	ctx := context.Background()

	state, err := s.Start(ctx)
	require.NoError(t, err)
	assert.False(t, state.IsActive)
	assert.Empty(t, rec.types())

	_, err = s.Initialize(ctx, nil)
	require.NoError(t, err)
	state, err = s.Start(ctx)
	require.NoError(t, err)
	assert.True(t, state.IsActive)

	again, err := s.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.Version, again.Version)
	assert.Len(t, rec.of(events.TypeDraftStarted), 1)
}

func TestScheduler_AdvanceWalksOrderOnce(t *testing.T) {
	s, _, rec := setup(t, 1, 2, 3)
	ctx := context.Background()
	_, err := s.Initialize(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	_, err = s.Start(ctx)
	require.NoError(t, err)

	positions := []int{1}
	for pos := 1; pos <= 3; pos++ {
		state, err := s.Advance(ctx, pos)
		require.NoError(t, err)
		positions = append(positions, state.CurrentPosition)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, positions)

	state, err := s.State(ctx)
	require.NoError(t, err)
	assert.False(t, state.IsActive)
	assert.Nil(t, state.CurrentTeamID)

	advanced := rec.of(events.TypeDraftTurnAdvanced)
	require.Len(t, advanced, 2)
	p, err := events.Decode[events.DraftTurnAdvancedPayload](advanced[1])
	require.NoError(t, err)
	assert.Equal(t, events.DraftTurnAdvancedPayload{Position: 3, TeamID: 3}, p)
	assert.Len(t, rec.of(events.TypeDraftCompleted), 1)

	// Further advances after completion change nothing.
	for _, pos := range []int{3, 4} {
		after, err := s.Advance(ctx, pos)
		require.NoError(t, err)
		assert.Equal(t, state.Version, after.Version)
	}
	assert.Len(t, rec.of(events.TypeDraftCompleted), 1)
}

func TestScheduler_AdvanceIsIdempotentPerPosition(t *testing.T) {
	s, _, rec := setup(t, 1, 2, 3)
	ctx := context.Background()
	_, err := s.Initialize(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	_, err = s.Start(ctx)
	require.NoError(t, err)

	first, err := s.Advance(ctx, 1)
	require.NoError(t, err)
	second, err := s.Advance(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, 2, second.CurrentPosition)
	assert.Equal(t, first.Version, second.Version)
	assert.Len(t, rec.of(events.TypeDraftTurnAdvanced), 1)
}

func TestScheduler_ConcurrentAdvanceFromSamePosition(t *testing.T) {
	s, _, _ := setup(t, 1, 2, 3)
	ctx := context.Background()
	_, err := s.Initialize(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	_, err = s.Start(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Advance(ctx, 1)
		}()
	}
	wg.Wait()

	state, err := s.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, state.CurrentPosition)
}

func TestScheduler_MissingTeamHaltsAdvancement(t *testing.T) {
	s, st, _ := setup(t, 1, 2)
	ctx := context.Background()

	corrupt := &models.DraftState{Order: []int64{1, 99, 2}, CurrentPosition: 1, IsActive: true, Version: 1}
	require.NoError(t, st.SaveDraftState(ctx, corrupt, 0))

	_, err := s.Advance(ctx, 1)
	require.ErrorIs(t, err, ErrDraftCorrupted)
	require.ErrorIs(t, s.Halted(), ErrDraftCorrupted)

	state, err := s.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, state.CurrentPosition, "position is not guessed past the gap")

	_, err = s.Advance(ctx, 1)
	assert.ErrorIs(t, err, ErrDraftCorrupted)
}

func TestScheduler_AdvanceTurn(t *testing.T) {
	s, st, _ := setup(t, 1, 2)
	ctx := context.Background()

	_, err := s.AdvanceTurn(ctx, 1)
	require.ErrorIs(t, err, ErrDraftNotInitialized)

	_, err = s.Initialize(ctx, []int64{1, 2})
	require.NoError(t, err)
	_, err = s.AdvanceTurn(ctx, 1)
	require.ErrorIs(t, err, ErrDraftNotActive)

	_, err = s.Start(ctx)
	require.NoError(t, err)
	_, err = s.AdvanceTurn(ctx, 2)
	require.ErrorIs(t, err, ErrNotYourTurn)

	live := &models.Auction{ID: uuid.New(), Status: models.AuctionStatusActive, ItemType: models.ItemTypePlayer, ItemID: 1}
	require.NoError(t, st.CreateAuction(ctx, live))
	_, err = s.AdvanceTurn(ctx, 1)
	require.ErrorIs(t, err, ErrAuctionInProgress)

	cancelled := live.Clone()
	cancelled.Status = models.AuctionStatusCancelled
	cancelled.Version = 1
	require.NoError(t, st.UpdateAuction(ctx, cancelled, 0))

	state, err := s.AdvanceTurn(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), *state.CurrentTeamID)

	state, err = s.AdvanceTurn(ctx, 2)
	require.NoError(t, err)
	assert.False(t, state.IsActive)

	_, err = s.AdvanceTurn(ctx, 2)
	assert.ErrorIs(t, err, ErrDraftAlreadyComplete)
}

func TestScheduler_Reset(t *testing.T) {
	s, st, rec := setup(t, 1, 2)
	ctx := context.Background()
	_, err := s.Initialize(ctx, nil)
	require.NoError(t, err)
	_, err = s.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx, true))
	state, err := s.State(ctx)
	require.NoError(t, err)
	assert.False(t, state.Initialized())
	assert.Len(t, rec.of(events.TypeDraftReset), 1)
	assert.Len(t, st.Outbox(), len(rec.evts))

	_, err = s.Initialize(ctx, nil)
	require.NoError(t, err, "a reset draft can be initialized again")
}
