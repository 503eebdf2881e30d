package auction

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/skjftp/fpl-auction-sub001/go/internal/events"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store"
)

// HandleExpiry is the countdown callback. version is the auction version the
// timer was armed at; if anything committed since, the expiry is stale.
func (a *App) HandleExpiry(ctx context.Context, auctionID uuid.UUID, version int64) error {
	unlock, err := a.lock(ctx, auctionLockKey(auctionID))
	if err != nil {
		return err
	}
	defer unlock()

	cur, err := a.load(ctx, auctionID, false)
	if err != nil {
		return err
	}
	if cur.Version != version || !cur.Status.IsLive() || cur.WaitRequestedBy != nil {
		log.Debug().
			Str("auction_id", auctionID.String()).
			Int64("armed_version", version).
			Int64("version", cur.Version).
			Str("status", string(cur.Status)).
			Msg("ignoring stale expiry")
		return nil
	}

	switch cur.Status {
	case models.AuctionStatusActive:
		return a.advanceStage(ctx, cur, models.AuctionStatusSelling1)
	case models.AuctionStatusSelling1:
		return a.advanceStage(ctx, cur, models.AuctionStatusSelling2)
	default:
		if cur.CurrentBidderID == nil {
			_, err := a.cancelLocked(ctx, cur, CancelReasonNoBids, true)
			return err
		}
		_, err := a.finalizeLocked(ctx, cur)
		return err
	}
}

func (a *App) advanceStage(ctx context.Context, cur *models.Auction, stage models.AuctionStatus) error {
	now := a.clock.Now().UTC()
	next := cur.Clone()
	next.Status = stage
	next.Version++

	evt, err := events.New(events.TypeSellingStageUpdated, next.ID, next.Version, now, events.SellingStageUpdatedPayload{
		AuctionID: next.ID,
		Stage:     string(stage),
		TimeoutAt: now.Add(a.timer.Durations().For(stage)),
	})
	if err != nil {
		return err
	}

	err = a.repo.UpdateAuction(ctx, next, cur.Version, evt)
	if errors.Is(err, store.ErrVersionConflict) {
		// Someone else committed first; their commit re-armed the countdown.
		a.invalidate(cur.ID)
		return nil
	}
	if err != nil {
		a.timer.ArmFor(cur.ID, cur.Status, cur.Version, a.cfg.FinalizeRetryDelay)
		return store.Unavailable("advance selling stage", err)
	}

	a.commit(next)
	a.timer.Arm(next.ID, stage, next.Version)
	a.publish(ctx, evt)

	log.Debug().
		Str("auction_id", next.ID.String()).
		Str("stage", string(stage)).
		Msg("selling stage advanced")
	return nil
}

// finalizeLocked awards the item to the current bidder, debits the winner and
// hands the turn to the next team
func (a *App) finalizeLocked(ctx context.Context, cur *models.Auction) (*models.Auction, error) {
	winner := *cur.CurrentBidderID
	item, err := a.ResolveItem(ctx, cur.ItemType, cur.ItemID)
	if err != nil {
		return nil, err
	}
	squad, err := a.Squad(ctx, winner)
	if err != nil {
		return nil, err
	}
	if _, err := a.ledger.Debit(squad, item, cur.CurrentBid); err != nil {
		log.Error().
			Err(err).
			Str("auction_id", cur.ID.String()).
			Int64("team_id", winner).
			Msg("winner can no longer take the item, cancelling")
		return a.cancelLocked(ctx, cur, CancelReasonIneligible, true)
	}

	now := a.clock.Now().UTC()
	next := cur.Clone()
	next.Status = models.AuctionStatusSold
	next.EndedAt = &now
	next.WaitRequestedBy = nil
	next.Version++

	entry := models.SquadEntry{
		ID:         uuid.New(),
		TeamID:     winner,
		AuctionID:  cur.ID,
		ItemType:   cur.ItemType,
		ItemID:     cur.ItemID,
		Position:   item.Position,
		ClubID:     item.ClubID,
		PricePaid:  cur.CurrentBid,
		AcquiredAt: now,
	}
	evt, err := events.New(events.TypeAuctionCompleted, next.ID, next.Version, now, events.AuctionCompletedPayload{
		AuctionID: next.ID,
		WinnerID:  winner,
		FinalBid:  next.CurrentBid,
		ItemType:  string(next.ItemType),
		ItemID:    next.ItemID,
		EndedAt:   now,
	})
	if err != nil {
		return nil, err
	}

	err = a.repo.FinalizeSale(ctx, next, cur.Version, entry, evt)
	switch {
	case errors.Is(err, store.ErrVersionConflict):
		a.invalidate(cur.ID)
		return nil, fmt.Errorf("%w: %w", ErrConcurrentBidConflict, err)
	case errors.Is(err, store.ErrBudgetExceeded), errors.Is(err, store.ErrItemOwned):
		log.Error().Err(err).Str("auction_id", cur.ID.String()).Msg("sale refused by store, cancelling")
		return a.cancelLocked(ctx, cur, CancelReasonIneligible, true)
	case err != nil:
		a.timer.ArmFor(cur.ID, cur.Status, cur.Version, a.cfg.FinalizeRetryDelay)
		return nil, store.Unavailable("finalize sale", err)
	}

	a.commit(next)
	a.timer.Cancel(next.ID)
	a.publish(ctx, evt)

	log.Info().
		Str("auction_id", next.ID.String()).
		Int64("team_id", winner).
		Int("final_bid", next.CurrentBid).
		Msg("auction sold")

	a.advanceDraft(ctx, cur.DraftPosition)
	return next.Clone(), nil
}

func (a *App) cancelLocked(ctx context.Context, cur *models.Auction, reason string, advance bool) (*models.Auction, error) {
	now := a.clock.Now().UTC()
	next := cur.Clone()
	next.Status = models.AuctionStatusCancelled
	next.CancelReason = reason
	next.EndedAt = &now
	next.WaitRequestedBy = nil
	next.Version++

	evt, err := events.New(events.TypeAuctionCancelled, next.ID, next.Version, now, events.AuctionCancelledPayload{
		AuctionID: next.ID,
		Reason:    reason,
		EndedAt:   now,
	})
	if err != nil {
		return nil, err
	}

	err = a.repo.UpdateAuction(ctx, next, cur.Version, evt)
	if errors.Is(err, store.ErrVersionConflict) {
		a.invalidate(cur.ID)
		return nil, fmt.Errorf("%w: %w", ErrConcurrentBidConflict, err)
	}
	if err != nil {
		return nil, store.Unavailable("cancel auction", err)
	}

	a.commit(next)
	a.timer.Cancel(next.ID)
	a.publish(ctx, evt)

	log.Info().
		Str("auction_id", next.ID.String()).
		Str("reason", reason).
		Bool("skip_turn", advance).
		Msg("auction cancelled")

	if advance {
		a.advanceDraft(ctx, cur.DraftPosition)
	}
	return next.Clone(), nil
}

// advanceDraft moves the turn past position once its auction has ended. An
// unavailable store is retried on the clock; Advance ignores stale positions,
// so a retry racing settleTurn cannot skip a team.
func (a *App) advanceDraft(ctx context.Context, position int) {
	_, err := a.drafter.Advance(ctx, position)
	if err == nil {
		return
	}
	log.Error().Err(err).Int("position", position).Msg("failed to advance draft turn")
	if !errors.Is(err, store.ErrUnavailable) {
		return
	}
	delay := a.cfg.FinalizeRetryDelay
	if delay <= 0 {
		delay = DefaultConfig().FinalizeRetryDelay
	}
	a.clock.AfterFunc(delay, func() {
		a.advanceDraft(context.Background(), position)
	})
}
