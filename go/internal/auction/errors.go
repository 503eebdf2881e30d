package auction

import (
	"errors"
	"fmt"

	"github.com/skjftp/fpl-auction-sub001/go/internal/draft"
	"github.com/skjftp/fpl-auction-sub001/go/internal/ledger"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store"
)

var (
	ErrAuctionAlreadyActive  = errors.New("auction already active")
	ErrAuctionNotActive      = errors.New("auction not active")
	ErrAuctionNotFound       = errors.New("auction not found")
	ErrBidTooLow             = errors.New("bid too low")
	ErrConcurrentBidConflict = errors.New("concurrent bid conflict")
	ErrItemUnavailable       = errors.New("item unavailable")
	ErrTeamNotFound          = errors.New("team not found")
	ErrWaitNotAllowed        = errors.New("wait not allowed")
	ErrNoWaitPending         = errors.New("no wait request pending")
	ErrNoBidder              = errors.New("auction has no bidder")

	ErrNotYourTurn             = draft.ErrNotYourTurn
	ErrDraftNotInitialized     = draft.ErrDraftNotInitialized
	ErrDraftNotActive          = draft.ErrDraftNotActive
	ErrDraftAlreadyComplete    = draft.ErrDraftAlreadyComplete
	ErrInsufficientBudget      = ledger.ErrInsufficientBudget
	ErrSquadConstraintViolated = ledger.ErrSquadConstraintViolated
	ErrPersistenceUnavailable  = store.ErrUnavailable
)

// RejectionError is returned for every refused bid. CurrentBid is the
// authoritative bid at the time of rejection so callers can decide whether
// to resubmit higher.
type RejectionError struct {
	Reason     error
	CurrentBid int
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("bid rejected: %v (current bid %d)", e.Reason, e.CurrentBid)
}

func (e *RejectionError) Unwrap() error {
	return e.Reason
}

func reject(reason error, currentBid int) *RejectionError {
	return &RejectionError{Reason: reason, CurrentBid: currentBid}
}

// ReasonCode is the stable, client-facing name of a rejection reason
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrBidTooLow):
		return "BID_TOO_LOW"
	case errors.Is(err, ErrInsufficientBudget):
		return "INSUFFICIENT_BUDGET"
	case errors.Is(err, ErrSquadConstraintViolated):
		return "SQUAD_CONSTRAINT_VIOLATED"
	case errors.Is(err, ErrConcurrentBidConflict):
		return "CONCURRENT_BID_CONFLICT"
	case errors.Is(err, ErrAuctionNotActive):
		return "AUCTION_NOT_ACTIVE"
	case errors.Is(err, ErrAuctionNotFound):
		return "AUCTION_NOT_FOUND"
	case errors.Is(err, ErrAuctionAlreadyActive):
		return "AUCTION_ALREADY_ACTIVE"
	case errors.Is(err, ErrNotYourTurn):
		return "NOT_YOUR_TURN"
	case errors.Is(err, ErrDraftNotInitialized):
		return "DRAFT_NOT_INITIALIZED"
	case errors.Is(err, ErrDraftAlreadyComplete):
		return "DRAFT_ALREADY_COMPLETE"
	case errors.Is(err, ErrDraftNotActive):
		return "DRAFT_NOT_ACTIVE"
	case errors.Is(err, ErrItemUnavailable):
		return "ITEM_UNAVAILABLE"
	case errors.Is(err, ErrTeamNotFound):
		return "TEAM_NOT_FOUND"
	case errors.Is(err, ErrPersistenceUnavailable):
		return "PERSISTENCE_UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

func isConflict(err error) bool {
	return errors.Is(err, store.ErrVersionConflict)
}
