package archive

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skjftp/fpl-auction-sub001/go/internal/events"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store/memory"
)

type memWriter struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (w *memWriter) Put(_ context.Context, key string, data []byte, contentType string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.objects == nil {
		w.objects = make(map[string][]byte)
	}
	w.objects[key] = data
	return nil
}

func (w *memWriter) get(key string) ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.objects[key]
	return b, ok
}

func soldAuction(t *testing.T, st *memory.Store, at time.Time) *models.Auction {
	t.Helper()
	ctx := context.Background()
	winner := int64(2)
	a := &models.Auction{
		ID:              uuid.New(),
		ItemType:        models.ItemTypePlayer,
		ItemID:          10,
		NominatedBy:     1,
		DraftPosition:   1,
		Status:          models.AuctionStatusActive,
		CurrentBid:      25,
		CurrentBidderID: &winner,
		BidHistory:      []models.Bid{{TeamID: 1, Amount: 5, Timestamp: at}, {TeamID: 2, Amount: 25, Timestamp: at}},
		Version:         1,
		StartedAt:       at,
	}
	require.NoError(t, st.CreateAuction(ctx, a))

	sold := a.Clone()
	ended := at.Add(time.Minute)
	sold.Status = models.AuctionStatusSold
	sold.EndedAt = &ended
	sold.Version = 2
	require.NoError(t, st.FinalizeSale(ctx, sold, 1, models.SquadEntry{
		ID: uuid.New(), TeamID: 2, AuctionID: a.ID, ItemType: models.ItemTypePlayer, ItemID: 10,
		Position: models.PositionMidfielder, ClubID: 1, PricePaid: 25, AcquiredAt: ended,
	}))
	return sold
}

func newStore() *memory.Store {
	st := memory.New()
	st.SeedTeams(models.Team{ID: 1, Budget: 1000}, models.Team{ID: 2, Budget: 1000})
	st.SeedClubs(models.Club{ID: 1, Name: "Arsenal"})
	st.SeedPlayers(models.Player{ID: 10, WebName: "Saka", Position: models.PositionMidfielder, ClubID: 1})
	return st
}

func TestArchiver_Archive(t *testing.T) {
	st := newStore()
	sold := soldAuction(t, st, time.Date(2026, time.March, 31, 23, 59, 30, 0, time.UTC))
	w := &memWriter{}
	a := New(w, st, clockwork.NewFakeClock())

	key, err := a.Archive(context.Background(), sold.ID)
	require.NoError(t, err)
	assert.Equal(t, "auctions/2026/04/"+sold.ID.String()+".json", key)

	body, ok := w.get(key)
	require.True(t, ok)
	var doc Document
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, "Saka", doc.ItemName)
	require.NotNil(t, doc.WinnerID)
	assert.Equal(t, int64(2), *doc.WinnerID)
	assert.Equal(t, 25, doc.FinalPrice)
	assert.Len(t, doc.Auction.BidHistory, 2)
}

func TestArchiver_RefusesLiveAuction(t *testing.T) {
	st := newStore()
	live := &models.Auction{
		ID: uuid.New(), ItemType: models.ItemTypeClub, ItemID: 1, Status: models.AuctionStatusActive,
		CurrentBid: 5, Version: 1, StartedAt: time.Now(),
	}
	require.NoError(t, st.CreateAuction(context.Background(), live))

	_, err := New(&memWriter{}, st, clockwork.NewFakeClock()).Archive(context.Background(), live.ID)
	assert.Error(t, err)
}

func TestArchiver_Run(t *testing.T) {
	st := newStore()
	sold := soldAuction(t, st, time.Now().UTC())
	w := &memWriter{}
	bus := events.NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	sub := bus.Subscribe(Triggers...)
	go func() { done <- New(w, st, clockwork.NewFakeClock()).Run(ctx, sub) }()

	evt, err := events.New(events.TypeAuctionCompleted, sold.ID, sold.Version, time.Now(), map[string]any{})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, evt))

	assert.Eventually(t, func() bool {
		_, ok := w.get(Key(sold))
		return ok
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("archiver did not stop")
	}
}
