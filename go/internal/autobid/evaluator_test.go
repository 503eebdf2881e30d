package autobid

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skjftp/fpl-auction-sub001/go/internal/auction"
	"github.com/skjftp/fpl-auction-sub001/go/internal/bidtimer"
	"github.com/skjftp/fpl-auction-sub001/go/internal/draft"
	"github.com/skjftp/fpl-auction-sub001/go/internal/events"
	"github.com/skjftp/fpl-auction-sub001/go/internal/ledger"
	"github.com/skjftp/fpl-auction-sub001/go/internal/lock"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store/memory"
)

// idleTimer never fires; tests drive bidding rounds by hand.
type idleTimer struct{}

func (idleTimer) Arm(uuid.UUID, models.AuctionStatus, int64) time.Time { return time.Now() }
func (idleTimer) ArmFor(uuid.UUID, models.AuctionStatus, int64, time.Duration) time.Time {
	return time.Now()
}
func (idleTimer) Cancel(uuid.UUID) (time.Duration, bool)    { return 0, false }
func (idleTimer) Remaining(uuid.UUID) (time.Duration, bool) { return 0, false }
func (idleTimer) Durations() bidtimer.Durations             { return bidtimer.DefaultDurations() }

const (
	targetPlayer int64 = 10
	targetClub   int64 = 1
)

func setup(t *testing.T, broadcaster events.Broadcaster) (*auction.App, *memory.Store) {
	t.Helper()
	st := memory.New()
	st.SeedTeams(
		models.Team{ID: 1, Name: "one", Budget: models.DefaultBudget},
		models.Team{ID: 2, Name: "two", Budget: models.DefaultBudget},
		models.Team{ID: 3, Name: "three", Budget: models.DefaultBudget},
	)
	st.SeedPlayers(models.Player{ID: targetPlayer, WebName: "Mid", Position: models.PositionMidfielder, ClubID: targetClub})
	st.SeedClubs(models.Club{ID: targetClub, Name: "Club"})

	ctx := context.Background()
	sched := draft.NewScheduler(st, events.Nop{}, draft.WithShuffle(func(int, func(i, j int)) {}))
	_, err := sched.Initialize(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	_, err = sched.Start(ctx)
	require.NoError(t, err)

	app := auction.NewApp(st, sched, idleTimer{}, lock.NewLocal(time.Second), broadcaster, ledger.New(models.DefaultLimits()), auction.DefaultConfig(), nil)
	return app, st
}

func maxFor(itemType models.ItemType, id int64, max int) map[models.TargetKey]models.AutoBidOverride {
	return map[models.TargetKey]models.AutoBidOverride{{Type: itemType, ID: id}: {MaxBid: &max}}
}

func save(t *testing.T, st *memory.Store, cfg models.AutoBidConfig) {
	t.Helper()
	require.NoError(t, st.SaveAutoBidConfig(context.Background(), &cfg))
}

func TestEvaluator_BidsUpToCaps(t *testing.T) {
	app, st := setup(t, nil)
	ctx := context.Background()
	save(t, st, models.AutoBidConfig{TeamID: 2, Enabled: true, PerTarget: maxFor(models.ItemTypePlayer, targetPlayer, 20)})
	save(t, st, models.AutoBidConfig{TeamID: 3, Enabled: true, PerTarget: maxFor(models.ItemTypePlayer, targetPlayer, 15)})

	a, err := app.StartAuction(ctx, 1, targetPlayer, models.ItemTypePlayer)
	require.NoError(t, err)

	e := NewEvaluator(st, app)
	evt := events.Event{Type: events.TypeAuctionStarted, AuctionID: a.ID}
	for i := 0; i < 10; i++ {
		require.NoError(t, e.HandleEvent(ctx, evt))
		evt.Type = events.TypeNewBid
	}

	cur, err := app.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, cur.CurrentBid)
	assert.Equal(t, int64(2), *cur.CurrentBidderID)

	var got []models.Bid
	for _, b := range cur.BidHistory[1:] {
		assert.True(t, b.IsAutoBid)
		got = append(got, models.Bid{TeamID: b.TeamID, Amount: b.Amount})
	}
	assert.Equal(t, []models.Bid{
		{TeamID: 2, Amount: 10},
		{TeamID: 3, Amount: 15},
		{TeamID: 2, Amount: 20},
	}, got)
}

func TestEvaluator_OneBidPerEvent(t *testing.T) {
	app, st := setup(t, nil)
	ctx := context.Background()
	save(t, st, models.AutoBidConfig{TeamID: 2, Enabled: true, PerTarget: maxFor(models.ItemTypePlayer, targetPlayer, 100)})
	save(t, st, models.AutoBidConfig{TeamID: 3, Enabled: true, PerTarget: maxFor(models.ItemTypePlayer, targetPlayer, 100)})

	a, err := app.StartAuction(ctx, 1, targetPlayer, models.ItemTypePlayer)
	require.NoError(t, err)

	require.NoError(t, NewEvaluator(st, app).HandleEvent(ctx, events.Event{Type: events.TypeAuctionStarted, AuctionID: a.ID}))
	cur, err := app.Current(ctx)
	require.NoError(t, err)
	assert.Len(t, cur.BidHistory, 2)
	assert.Equal(t, int64(2), *cur.CurrentBidderID)
}

func TestEvaluator_IgnoresIrrelevantEvents(t *testing.T) {
	app, st := setup(t, nil)
	ctx := context.Background()
	save(t, st, models.AutoBidConfig{TeamID: 2, Enabled: true, PerTarget: maxFor(models.ItemTypePlayer, targetPlayer, 100)})
	save(t, st, models.AutoBidConfig{TeamID: 3, Enabled: false, PerTarget: maxFor(models.ItemTypePlayer, targetPlayer, 100)})

	e := NewEvaluator(st, app)
	require.NoError(t, e.HandleEvent(ctx, events.Event{Type: events.TypeNewBid, AuctionID: uuid.New()}), "no live auction")

	a, err := app.StartAuction(ctx, 1, targetPlayer, models.ItemTypePlayer)
	require.NoError(t, err)

	require.NoError(t, e.HandleEvent(ctx, events.Event{Type: events.TypeDraftTurnAdvanced, AuctionID: a.ID}))
	require.NoError(t, e.HandleEvent(ctx, events.Event{Type: events.TypeNewBid, AuctionID: uuid.New()}))
	cur, err := app.Current(ctx)
	require.NoError(t, err)
	assert.Len(t, cur.BidHistory, 1)

	// Team 3 is disabled, so only team 2 ever bids and then holds the lead.
	require.NoError(t, e.HandleEvent(ctx, events.Event{Type: events.TypeNewBid, AuctionID: a.ID}))
	require.NoError(t, e.HandleEvent(ctx, events.Event{Type: events.TypeNewBid, AuctionID: a.ID}))
	cur, err = app.Current(ctx)
	require.NoError(t, err)
	assert.Len(t, cur.BidHistory, 2)
	assert.Equal(t, 10, cur.CurrentBid)
}

func TestEvaluator_Run(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	sub := bus.Subscribe(Triggers...)
	app, st := setup(t, bus)
	save(t, st, models.AutoBidConfig{TeamID: 2, Enabled: true, PerTarget: maxFor(models.ItemTypePlayer, targetPlayer, 30)})
	save(t, st, models.AutoBidConfig{TeamID: 3, Enabled: true, PerTarget: maxFor(models.ItemTypePlayer, targetPlayer, 25)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewEvaluator(st, app).Run(ctx, sub) }()

	_, err := app.StartAuction(ctx, 1, targetPlayer, models.ItemTypePlayer)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cur, err := app.Current(context.Background())
		return err == nil && cur.CurrentBid == 30
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("evaluator did not stop")
	}
}

func TestEvaluator_Decide(t *testing.T) {
	l := ledger.New(models.DefaultLimits())
	e := &Evaluator{auctioneer: ledgerOnly{l: l}}
	item := models.Item{Type: models.ItemTypePlayer, ID: targetPlayer, Position: models.PositionMidfielder, ClubID: targetClub}
	other := int64(1)

	live := func(status models.AuctionStatus, bids ...int64) *models.Auction {
		a := &models.Auction{Status: status, CurrentBid: 5 * len(bids)}
		for i, team := range bids {
			a.BidHistory = append(a.BidHistory, models.Bid{TeamID: team, Amount: 5 * (i + 1)})
		}
		if len(bids) > 0 {
			a.CurrentBidderID = &bids[len(bids)-1]
		}
		return a
	}
	fresh := ledger.NewSquad(2, models.DefaultBudget, nil)
	clubOwner := ledger.NewSquad(3, models.DefaultBudget, []models.SquadEntry{{ItemType: models.ItemTypeClub, ItemID: targetClub, ClubID: targetClub}})

	tests := []struct {
		name   string
		cur    *models.Auction
		rules  models.AutoBidRules
		squad  ledger.Squad
		all    map[int64]ledger.Squad
		amount int
		reason string
	}{
		{
			name:   "bids one increment over",
			cur:    live(models.AuctionStatusActive, other),
			rules:  models.AutoBidRules{MaxBid: 50},
			squad:  fresh,
			amount: 10,
		},
		{
			name:   "no max bid",
			cur:    live(models.AuctionStatusActive, other),
			squad:  fresh,
			reason: "no max bid",
		},
		{
			name:   "already leading",
			cur:    live(models.AuctionStatusActive, other, 2),
			rules:  models.AutoBidRules{MaxBid: 50},
			squad:  fresh,
			reason: "already highest bidder",
		},
		{
			name:   "only selling stage while active",
			cur:    live(models.AuctionStatusActive, other),
			rules:  models.AutoBidRules{MaxBid: 50, OnlySellingStage: true},
			squad:  fresh,
			reason: "only selling stage",
		},
		{
			name:   "only selling stage while selling",
			cur:    live(models.AuctionStatusSelling2, other),
			rules:  models.AutoBidRules{MaxBid: 50, OnlySellingStage: true},
			squad:  fresh,
			amount: 10,
		},
		{
			name:   "never second bidder",
			cur:    live(models.AuctionStatusActive, other),
			rules:  models.AutoBidRules{MaxBid: 50, NeverSecondBidder: true},
			squad:  fresh,
			reason: "never second bidder",
		},
		{
			name:   "third bidder is fine",
			cur:    live(models.AuctionStatusActive, other, 3),
			rules:  models.AutoBidRules{MaxBid: 50, NeverSecondBidder: true},
			squad:  fresh,
			amount: 15,
		},
		{
			name:   "club owned by another team",
			cur:    live(models.AuctionStatusActive, other),
			rules:  models.AutoBidRules{MaxBid: 50, SkipIfAnyTeamOwnsClub: true},
			squad:  fresh,
			all:    map[int64]ledger.Squad{2: fresh, 3: clubOwner},
			reason: "club already owned",
		},
		{
			name:   "cap reached",
			cur:    live(models.AuctionStatusActive, other, 3),
			rules:  models.AutoBidRules{MaxBid: 10},
			squad:  fresh,
			reason: "over cap",
		},
		{
			name:   "budget below candidate",
			cur:    live(models.AuctionStatusActive, other),
			rules:  models.AutoBidRules{MaxBid: 500},
			squad:  ledger.NewSquad(2, 5, nil),
			reason: "over cap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			all := tt.all
			if all == nil {
				all = map[int64]ledger.Squad{tt.squad.TeamID: tt.squad}
			}
			amount, reason := e.decide(tt.cur, item, tt.rules, tt.squad, all)
			assert.Equal(t, tt.amount, amount)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

// ledgerOnly satisfies Auctioneer for tests that only exercise decide.
type ledgerOnly struct {
	Auctioneer
	l *ledger.Ledger
}

func (s ledgerOnly) Ledger() *ledger.Ledger { return s.l }
