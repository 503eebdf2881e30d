package auction

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store"
)

// consumesTurn reports whether a finished auction used up its nominator's
// turn. Only an admin cancel without skip hands the turn back.
func consumesTurn(a *models.Auction) bool {
	switch a.Status {
	case models.AuctionStatusSold:
		return true
	case models.AuctionStatusCancelled:
		return a.CancelReason != CancelReasonAdmin
	}
	return false
}

// settleTurn advances the draft when an auction at the current position has
// already ended in a way that consumes the turn. The post-commit advance runs
// outside any lock, so a nomination or a restart can observe the gap.
func (a *App) settleTurn(ctx context.Context, state *models.DraftState) (*models.DraftState, error) {
	if !state.IsActive || state.Complete() {
		return state, nil
	}
	auctions, err := a.repo.ListAuctions(ctx)
	if err != nil {
		return nil, store.Unavailable("list auctions", err)
	}
	for i := range auctions {
		done := &auctions[i]
		if done.DraftPosition != state.CurrentPosition || !consumesTurn(done) {
			continue
		}
		// left over from a draft that was initialized again without a reset
		if state.StartedAt != nil && done.StartedAt.Before(*state.StartedAt) {
			continue
		}
		log.Warn().
			Str("auction_id", done.ID.String()).
			Int("position", state.CurrentPosition).
			Str("status", string(done.Status)).
			Msg("turn not advanced after auction ended, advancing now")
		return a.drafter.Advance(ctx, state.CurrentPosition)
	}
	return state, nil
}

func (a *App) recoverTurn(ctx context.Context) error {
	state, err := a.drafter.State(ctx)
	if err != nil {
		return err
	}
	next, err := a.settleTurn(ctx, state)
	if err != nil {
		return err
	}
	if next.CurrentPosition != state.CurrentPosition {
		log.Info().
			Int("from", state.CurrentPosition).
			Int("to", next.CurrentPosition).
			Msg("recovered pending turn advance")
	}
	return nil
}
