package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/skjftp/fpl-auction-sub001/go/internal/auction"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
)

// AuctionSource is the live auction view the snapshot reads
type AuctionSource interface {
	Current(ctx context.Context) (*models.Auction, error)
	TimeRemaining(auctionID uuid.UUID) time.Duration
}

// DraftSource is the turn order view the snapshot reads
type DraftSource interface {
	State(ctx context.Context) (*models.DraftState, error)
}

// Snapshot is what a reconnecting client needs to redraw the auction room.
// Clients count TimeRemainingMs down locally; the server timer stays
// authoritative.
type Snapshot struct {
	Draft           *models.DraftState `json:"draft"`
	Auction         *models.Auction    `json:"auction,omitempty"`
	TimeRemainingMs int64              `json:"timeRemainingMs"`
	ServerTime      time.Time          `json:"serverTime"`
}

func (s *Snapshot) auctionID() uuid.UUID {
	if s.Auction == nil {
		return uuid.Nil
	}
	return s.Auction.ID
}

func (s *Snapshot) sequence() int64 {
	if s.Auction == nil {
		return s.Draft.Version
	}
	return s.Auction.Version
}

// Snapshotter assembles snapshots from the auction and draft services
type Snapshotter struct {
	auctions AuctionSource
	draft    DraftSource
	clock    clockwork.Clock
}

// NewSnapshotter creates a Snapshotter
func NewSnapshotter(auctions AuctionSource, draft DraftSource, clock clockwork.Clock) *Snapshotter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Snapshotter{auctions: auctions, draft: draft, clock: clock}
}

// Snapshot reads the current draft state and live auction, if any
func (s *Snapshotter) Snapshot(ctx context.Context) (*Snapshot, error) {
	state, err := s.draft.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("draft state: %w", err)
	}
	snap := &Snapshot{Draft: state, ServerTime: s.clock.Now().UTC()}

	live, err := s.auctions.Current(ctx)
	switch {
	case errors.Is(err, auction.ErrAuctionNotFound):
	case err != nil:
		return nil, fmt.Errorf("live auction: %w", err)
	default:
		snap.Auction = live
		snap.TimeRemainingMs = s.auctions.TimeRemaining(live.ID).Milliseconds()
	}
	return snap, nil
}
