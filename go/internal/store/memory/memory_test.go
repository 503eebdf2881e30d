package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skjftp/fpl-auction-sub001/go/internal/events"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store"
)

func newAuction(itemID int64) *models.Auction {
	return &models.Auction{
		ID:         uuid.New(),
		ItemType:   models.ItemTypePlayer,
		ItemID:     itemID,
		Status:     models.AuctionStatusActive,
		CurrentBid: models.StartingBid,
		Version:    1,
		StartedAt:  time.Now(),
	}
}

func TestStore_SingleLiveAuction(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := newAuction(1)
	require.NoError(t, s.CreateAuction(ctx, first))
	err := s.CreateAuction(ctx, newAuction(2))
	assert.ErrorIs(t, err, store.ErrLiveAuctionExists)

	done := first.Clone()
	done.Status = models.AuctionStatusCancelled
	done.Version = 2
	require.NoError(t, s.UpdateAuction(ctx, done, 1))
	require.NoError(t, s.CreateAuction(ctx, newAuction(2)))
}

func TestStore_UpdateAuctionCAS(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := newAuction(1)
	require.NoError(t, s.CreateAuction(ctx, a))

	next := a.Clone()
	next.CurrentBid = 10
	next.Version = 2
	e, err := events.New(events.TypeNewBid, a.ID, 2, time.Now(), events.NewBidPayload{Amount: 10})
	require.NoError(t, err)
	require.NoError(t, s.UpdateAuction(ctx, next, 1, e))

	stale := a.Clone()
	stale.CurrentBid = 10
	stale.Version = 2
	err = s.UpdateAuction(ctx, stale, 1)
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	assert.Len(t, s.Outbox(), 1, "rejected writes add no events")
}

func TestStore_FinalizeSale(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.SeedTeams(models.Team{ID: 1, Budget: 20})

	a := newAuction(9)
	require.NoError(t, s.CreateAuction(ctx, a))

	sold := a.Clone()
	sold.Status = models.AuctionStatusSold
	sold.Version = 2
	entry := models.SquadEntry{ID: uuid.New(), TeamID: 1, AuctionID: a.ID, ItemType: models.ItemTypePlayer, ItemID: 9, PricePaid: 25}

	err := s.FinalizeSale(ctx, sold, 1, entry)
	require.ErrorIs(t, err, store.ErrBudgetExceeded)
	got, err := s.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusActive, got.Status, "failed sale leaves auction untouched")

	entry.PricePaid = 20
	require.NoError(t, s.FinalizeSale(ctx, sold, 1, entry))

	team, err := s.GetTeam(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, team.Budget)

	owned, err := s.IsItemOwned(ctx, models.ItemTypePlayer, 9)
	require.NoError(t, err)
	assert.True(t, owned)

	_, err = s.GetLiveAuction(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_ResetDraft(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.SeedTeams(models.Team{ID: 1, Budget: 300})
	require.NoError(t, s.SaveDraftState(ctx, &models.DraftState{Order: []int64{1}, CurrentPosition: 1, Version: 1}, 0))
	require.NoError(t, s.CreateAuction(ctx, newAuction(1)))

	require.NoError(t, s.ResetDraft(ctx, models.DefaultBudget, true))

	state, err := s.GetDraftState(ctx)
	require.NoError(t, err)
	assert.False(t, state.Initialized())
	assert.Equal(t, int64(2), state.Version)

	auctions, err := s.ListAuctions(ctx)
	require.NoError(t, err)
	assert.Empty(t, auctions)

	team, err := s.GetTeam(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultBudget, team.Budget)
}
