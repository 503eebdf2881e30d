// Package autobid places bids on behalf of teams that configured caps and
// rules for the item under auction.
package autobid

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/skjftp/fpl-auction-sub001/go/internal/auction"
	"github.com/skjftp/fpl-auction-sub001/go/internal/ledger"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
)

var ErrInvalidConfig = errors.New("invalid auto-bid configuration")

// Repository defines what auto-bid needs from the store
type Repository interface {
	ListTeams(ctx context.Context) ([]models.Team, error)
	ListSquads(ctx context.Context) ([]models.SquadEntry, error)
	GetAutoBidConfig(ctx context.Context, teamID int64) (*models.AutoBidConfig, error)
	SaveAutoBidConfig(ctx context.Context, cfg *models.AutoBidConfig) error
	ListAutoBidConfigs(ctx context.Context) ([]models.AutoBidConfig, error)
}

// Auctioneer is the slice of the auction app auto-bid reads and bids through
type Auctioneer interface {
	Current(ctx context.Context) (*models.Auction, error)
	PlaceBid(ctx context.Context, auctionID uuid.UUID, teamID int64, amount int, isAutoBid bool) (auction.BidResult, error)
	ResolveItem(ctx context.Context, itemType models.ItemType, itemID int64) (models.Item, error)
	Squad(ctx context.Context, teamID int64) (ledger.Squad, error)
	Ledger() *ledger.Ledger
}

// InvalidTarget is one rejected max bid in a saved configuration
type InvalidTarget struct {
	Type          models.ItemType `json:"type,omitempty"`
	ID            int64           `json:"id,omitempty"`
	ConfiguredMax int             `json:"configuredMax"`
}

// ValidationError lists every max bid that is not a positive multiple of the
// bid increment or exceeds what the team may commit to one item
type ValidationError struct {
	MaxAllowedBid int
	Invalid       []InvalidTarget
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%d auto-bid amounts invalid, maximum allowed bid is %d", len(e.Invalid), e.MaxAllowedBid)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}
