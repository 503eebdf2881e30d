package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skjftp/fpl-auction-sub001/go/internal/dbconfig"
	"github.com/skjftp/fpl-auction-sub001/go/internal/events"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store"
)

// newTestStore connects to TEST_DATABASE_URL and empties every table
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	client, err := New(ctx, dbconfig.Config{URL: url})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	require.NoError(t, client.RunMigrations(ctx))

	_, err = client.Pool().Exec(ctx, `TRUNCATE outbox, autobid_configs, draft_state, team_squads, bid_history, auctions, players, clubs, teams CASCADE`)
	require.NoError(t, err)

	s := NewStore(client.Pool())
	require.NoError(t, s.UpsertTeams(ctx,
		models.Team{ID: 1, Name: "One", Budget: 1000},
		models.Team{ID: 2, Name: "Two", Budget: 1000},
	))
	require.NoError(t, s.UpsertClubs(ctx, models.Club{ID: 1, Name: "Arsenal", ShortName: "ARS"}))
	require.NoError(t, s.UpsertPlayers(ctx, models.Player{ID: 10, WebName: "Saka", Position: models.PositionMidfielder, ClubID: 1}))
	return s
}

func newAuction(now time.Time) *models.Auction {
	return &models.Auction{
		ID:            uuid.New(),
		ItemType:      models.ItemTypePlayer,
		ItemID:        10,
		NominatedBy:   1,
		DraftPosition: 1,
		Status:        models.AuctionStatusActive,
		CurrentBid:    5,
		BidHistory:    []models.Bid{{TeamID: 1, Amount: 5, Timestamp: now}},
		Version:       1,
		StartedAt:     now,
	}
}

func TestStore_DraftStateCompareAndSwap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty, err := s.GetDraftState(ctx)
	require.NoError(t, err)
	assert.False(t, empty.Initialized())

	team := int64(1)
	state := &models.DraftState{Order: []int64{1, 2}, CurrentPosition: 1, CurrentTeamID: &team, Version: 1, UpdatedAt: time.Now().UTC()}
	require.NoError(t, s.SaveDraftState(ctx, state, 0))

	got, err := s.GetDraftState(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, got.Order)
	assert.Equal(t, int64(1), got.Version)

	err = s.SaveDraftState(ctx, state, 0)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
}

func TestStore_AuctionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	a := newAuction(now)
	started, err := events.New(events.TypeAuctionStarted, a.ID, a.Version, now, map[string]any{"itemId": a.ItemID})
	require.NoError(t, err)
	require.NoError(t, s.CreateAuction(ctx, a, started))

	err = s.CreateAuction(ctx, &models.Auction{
		ID: uuid.New(), ItemType: models.ItemTypeClub, ItemID: 1, Status: models.AuctionStatusActive, CurrentBid: 5, Version: 1, StartedAt: now,
	})
	assert.ErrorIs(t, err, store.ErrLiveAuctionExists)

	bidder := int64(2)
	a.CurrentBid = 10
	a.CurrentBidderID = &bidder
	a.BidHistory = append(a.BidHistory, models.Bid{TeamID: 2, Amount: 10, Timestamp: now})
	a.Version = 2
	require.NoError(t, s.UpdateAuction(ctx, a, 1))
	assert.ErrorIs(t, s.UpdateAuction(ctx, a, 1), store.ErrVersionConflict)

	live, err := s.GetLiveAuction(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID, live.ID)
	assert.Len(t, live.BidHistory, 2)
	assert.Equal(t, 10, live.BidHistory[1].Amount)

	ended := now.Add(time.Second)
	a.Status = models.AuctionStatusSold
	a.EndedAt = &ended
	a.Version = 3
	entry := models.SquadEntry{
		ID: uuid.New(), TeamID: 2, AuctionID: a.ID, ItemType: models.ItemTypePlayer, ItemID: 10,
		Position: models.PositionMidfielder, ClubID: 1, PricePaid: 10, AcquiredAt: ended,
	}
	require.NoError(t, s.FinalizeSale(ctx, a, 2, entry))

	_, err = s.GetLiveAuction(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)

	team, err := s.GetTeam(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 990, team.Budget)

	owned, err := s.IsItemOwned(ctx, models.ItemTypePlayer, 10)
	require.NoError(t, err)
	assert.True(t, owned)

	err = s.CreateAuction(ctx, newAuction(now))
	assert.ErrorIs(t, err, store.ErrItemOwned)

	require.NoError(t, s.ResetDraft(ctx, models.DefaultBudget, true))
	squads, err := s.ListSquads(ctx)
	require.NoError(t, err)
	assert.Empty(t, squads)
	team, err = s.GetTeam(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultBudget, team.Budget)
}

func TestStore_AutoBidConfig(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetAutoBidConfig(ctx, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	cfg := &models.AutoBidConfig{TeamID: 1, Enabled: true, UpdatedAt: time.Now().UTC()}
	require.NoError(t, s.SaveAutoBidConfig(ctx, cfg))

	list, err := s.ListAutoBidConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Enabled)
}
