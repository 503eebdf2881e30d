package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	// BidIncrement is the fixed step every bid must be a multiple of.
	BidIncrement = 5
	// StartingBid is the current bid of a freshly nominated item.
	StartingBid = 5
)

// ItemType defines what is being auctioned.
type ItemType string

const (
	ItemTypePlayer ItemType = "player"
	ItemTypeClub   ItemType = "club"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	return t == ItemTypePlayer || t == ItemTypeClub
}

// AuctionStatus defines the lifecycle stage of an auction.
type AuctionStatus string

const (
	AuctionStatusIdle      AuctionStatus = "IDLE"
	AuctionStatusActive    AuctionStatus = "ACTIVE"
	AuctionStatusSelling1  AuctionStatus = "SELLING_1"
	AuctionStatusSelling2  AuctionStatus = "SELLING_2"
	AuctionStatusSold      AuctionStatus = "SOLD"
	AuctionStatusCancelled AuctionStatus = "CANCELLED"
)

// IsLive reports whether bids may still be accepted.
func (s AuctionStatus) IsLive() bool {
	switch s {
	case AuctionStatusActive, AuctionStatusSelling1, AuctionStatusSelling2:
		return true
	}
	return false
}

// IsSelling reports whether the countdown is in one of the selling sub-stages.
func (s AuctionStatus) IsSelling() bool {
	return s == AuctionStatusSelling1 || s == AuctionStatusSelling2
}

// IsTerminal reports whether the auction can no longer change.
func (s AuctionStatus) IsTerminal() bool {
	return s == AuctionStatusSold || s == AuctionStatusCancelled
}

// Bid is one accepted entry of an auction's bid history.
type Bid struct {
	TeamID    int64     `json:"team_id"`
	Amount    int       `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	IsAutoBid bool      `json:"is_auto_bid"`
}

// Auction represents a single nomination and its bidding state.
type Auction struct {
	ID              uuid.UUID     `json:"id"`
	ItemType        ItemType      `json:"item_type"`
	ItemID          int64         `json:"item_id"`
	NominatedBy     int64         `json:"nominated_by"`
	DraftPosition   int           `json:"draft_position"`
	Status          AuctionStatus `json:"status"`
	CurrentBid      int           `json:"current_bid"`
	CurrentBidderID *int64        `json:"current_bidder_id,omitempty"`
	BidHistory      []Bid         `json:"bid_history"`
	WaitRequestedBy *int64        `json:"wait_requested_by,omitempty"`
	CancelReason    string        `json:"cancel_reason,omitempty"`
	// Version increases by one on every committed change and guards
	// compare-and-swap writes.
	Version   int64      `json:"version"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	c := *a
	c.BidHistory = append([]Bid(nil), a.BidHistory...)
	if a.CurrentBidderID != nil {
		id := *a.CurrentBidderID
		c.CurrentBidderID = &id
	}
	if a.WaitRequestedBy != nil {
		id := *a.WaitRequestedBy
		c.WaitRequestedBy = &id
	}
	if a.EndedAt != nil {
		t := *a.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// IsCurrentBidder reports whether teamID holds the current bid.
func (a *Auction) IsCurrentBidder(teamID int64) bool {
	return a.CurrentBidderID != nil && *a.CurrentBidderID == teamID
}
