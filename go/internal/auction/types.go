package auction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/skjftp/fpl-auction-sub001/go/internal/bidtimer"
	"github.com/skjftp/fpl-auction-sub001/go/internal/events"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
)

// Repository defines what the auction app needs from the store
type Repository interface {
	GetTeam(ctx context.Context, id int64) (*models.Team, error)
	GetSquad(ctx context.Context, teamID int64) ([]models.SquadEntry, error)
	GetPlayer(ctx context.Context, id int64) (*models.Player, error)
	GetClub(ctx context.Context, id int64) (*models.Club, error)
	IsItemOwned(ctx context.Context, itemType models.ItemType, itemID int64) (bool, error)
	GetLiveAuction(ctx context.Context) (*models.Auction, error)
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	ListAuctions(ctx context.Context) ([]models.Auction, error)
	CreateAuction(ctx context.Context, a *models.Auction, evts ...events.Event) error
	UpdateAuction(ctx context.Context, a *models.Auction, expectedVersion int64, evts ...events.Event) error
	FinalizeSale(ctx context.Context, a *models.Auction, expectedVersion int64, entry models.SquadEntry, evts ...events.Event) error
}

// DraftScheduler is the slice of the turn scheduler the auction needs
type DraftScheduler interface {
	State(ctx context.Context) (*models.DraftState, error)
	Advance(ctx context.Context, fromPosition int) (*models.DraftState, error)
}

// Timer is the per-auction countdown
type Timer interface {
	Arm(auctionID uuid.UUID, stage models.AuctionStatus, version int64) time.Time
	ArmFor(auctionID uuid.UUID, stage models.AuctionStatus, version int64, d time.Duration) time.Time
	Cancel(auctionID uuid.UUID) (time.Duration, bool)
	Remaining(auctionID uuid.UUID) (time.Duration, bool)
	Durations() bidtimer.Durations
}

// Config tunes auction behavior
type Config struct {
	// NominatorOpens records the nominating team as the opening bidder at
	// the starting bid.
	NominatorOpens bool `yaml:"nominator_opens" env:"AUCTION_NOMINATOR_OPENS"`
	// MaxCommitAttempts bounds compare-and-swap retries before a bid is
	// refused as a concurrent conflict.
	MaxCommitAttempts int `yaml:"max_commit_attempts" env:"AUCTION_MAX_COMMIT_ATTEMPTS"`
	// FinalizeRetryDelay re-arms a failed sale so a store outage does not
	// strand the auction.
	FinalizeRetryDelay time.Duration `yaml:"finalize_retry_delay" env:"AUCTION_FINALIZE_RETRY_DELAY"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		NominatorOpens:     true,
		MaxCommitAttempts:  3,
		FinalizeRetryDelay: 2 * time.Second,
	}
}

// BidResult is the outcome of PlaceBid
type BidResult struct {
	Accepted   bool `json:"accepted"`
	CurrentBid int  `json:"currentBid"`
}

const (
	CancelReasonAdmin      = "admin"
	CancelReasonSkipped    = "skipped"
	CancelReasonNoBids     = "no-bids"
	CancelReasonIneligible = "winner-ineligible"
)
