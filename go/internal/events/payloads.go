package events

import (
	"time"

	"github.com/google/uuid"
)

// Event payload types shared by the auction core, the relay and the gateway

// AuctionStartedPayload is the payload for an auction-started event
type AuctionStartedPayload struct {
	AuctionID   uuid.UUID `json:"auctionId"`
	ItemType    string    `json:"itemType"`
	ItemID      int64     `json:"itemId"`
	StartingBid int       `json:"startingBid"`
	NominatedBy int64     `json:"nominatedBy"`
	// OpeningBidder is set when the nominator holds the opening bid.
	OpeningBidder *int64    `json:"openingBidder,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	TimeoutAt     time.Time `json:"timeoutAt"`
}

// NewBidPayload is the payload for a new-bid event
type NewBidPayload struct {
	AuctionID uuid.UUID `json:"auctionId"`
	TeamID    int64     `json:"teamId"`
	Amount    int       `json:"amount"`
	IsAutoBid bool      `json:"isAutoBid"`
	TimeoutAt time.Time `json:"timeoutAt"`
}

// AuctionCompletedPayload is the payload for an auction-completed event
type AuctionCompletedPayload struct {
	AuctionID uuid.UUID `json:"auctionId"`
	WinnerID  int64     `json:"winnerId"`
	FinalBid  int       `json:"finalBid"`
	ItemType  string    `json:"itemType"`
	ItemID    int64     `json:"itemId"`
	EndedAt   time.Time `json:"endedAt"`
}

// AuctionCancelledPayload is the payload for an auction-cancelled event
type AuctionCancelledPayload struct {
	AuctionID uuid.UUID `json:"auctionId"`
	Reason    string    `json:"reason"`
	EndedAt   time.Time `json:"endedAt"`
}

// SellingStageUpdatedPayload is the payload for a selling-stage-updated event
type SellingStageUpdatedPayload struct {
	AuctionID uuid.UUID `json:"auctionId"`
	Stage     string    `json:"stage"`
	TimeoutAt time.Time `json:"timeoutAt"`
}

// WaitPayload is the payload for wait-requested, wait-accepted and wait-rejected events
type WaitPayload struct {
	AuctionID uuid.UUID `json:"auctionId"`
	TeamID    int64     `json:"teamId"`
	Stage     string    `json:"stage"`
	// TimeoutAt is the resumed countdown's deadline; unset while paused.
	TimeoutAt *time.Time `json:"timeoutAt,omitempty"`
}

// DraftTurnAdvancedPayload is the payload for a draft-turn-advanced event
type DraftTurnAdvancedPayload struct {
	Position int   `json:"position"`
	TeamID   int64 `json:"teamId"`
}

// DraftInitializedPayload is the payload for a draft-initialized event
type DraftInitializedPayload struct {
	Order []int64 `json:"order"`
}

// DraftStartedPayload is the payload for a draft-started event
type DraftStartedPayload struct {
	Position  int       `json:"position"`
	TeamID    int64     `json:"teamId"`
	StartedAt time.Time `json:"startedAt"`
}

// DraftCompletedPayload is the payload for a draft-completed event
type DraftCompletedPayload struct {
	TotalPicks  int       `json:"totalPicks"`
	CompletedAt time.Time `json:"completedAt"`
}

// DraftResetPayload is the payload for a draft-reset event
type DraftResetPayload struct {
	BudgetsReset bool      `json:"budgetsReset"`
	ResetAt      time.Time `json:"resetAt"`
}
