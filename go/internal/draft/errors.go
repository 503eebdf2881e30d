package draft

import "errors"

var (
	ErrDraftNotInitialized  = errors.New("draft not initialized")
	ErrDraftNotActive       = errors.New("draft not active")
	ErrDraftAlreadyComplete = errors.New("draft already complete")
	ErrDraftInProgress      = errors.New("draft in progress")
	ErrNotYourTurn          = errors.New("not your turn")
	ErrAuctionInProgress    = errors.New("auction in progress")
	ErrNoTeams              = errors.New("no teams to draft")
	ErrInvalidOrder         = errors.New("invalid draft order")
	// ErrDraftCorrupted means the pick order references a team that does not
	// exist. Advancement halts until the draft is re-initialized.
	ErrDraftCorrupted = errors.New("draft order corrupted")
)
