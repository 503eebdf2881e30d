package auction

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/skjftp/fpl-auction-sub001/go/internal/events"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store"
)

// RequestWait pauses a selling countdown on behalf of teamID until the wait
// is resolved
func (a *App) RequestWait(ctx context.Context, auctionID uuid.UUID, teamID int64) (*models.Auction, error) {
	unlock, err := a.lock(ctx, auctionLockKey(auctionID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := a.load(ctx, auctionID, false)
	if err != nil {
		return nil, err
	}
	if !cur.Status.IsSelling() {
		return nil, fmt.Errorf("%w: status %s", ErrWaitNotAllowed, cur.Status)
	}
	if cur.WaitRequestedBy != nil {
		return nil, fmt.Errorf("%w: team %d already asked", ErrWaitNotAllowed, *cur.WaitRequestedBy)
	}

	next := cur.Clone()
	next.WaitRequestedBy = &teamID
	next.Version++
	evt, err := events.New(events.TypeWaitRequested, next.ID, next.Version, a.clock.Now().UTC(), events.WaitPayload{
		AuctionID: next.ID,
		TeamID:    teamID,
		Stage:     string(next.Status),
	})
	if err != nil {
		return nil, err
	}
	if err := a.commitWait(ctx, cur, next, evt); err != nil {
		return nil, err
	}

	remaining, ok := a.timer.Cancel(next.ID)
	if !ok {
		remaining = a.timer.Durations().For(next.Status)
	}
	a.mu.Lock()
	a.paused[next.ID] = remaining
	a.mu.Unlock()
	a.publish(ctx, evt)

	log.Info().
		Str("auction_id", next.ID.String()).
		Int64("team_id", teamID).
		Dur("remaining", remaining).
		Msg("wait requested")
	return next.Clone(), nil
}

// ResolveWait settles a pending wait. Accepting reopens bidding with a full
// countdown; rejecting resumes the paused selling stage.
func (a *App) ResolveWait(ctx context.Context, auctionID uuid.UUID, accept bool) (*models.Auction, error) {
	unlock, err := a.lock(ctx, auctionLockKey(auctionID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := a.load(ctx, auctionID, false)
	if err != nil {
		return nil, err
	}
	if !cur.Status.IsLive() {
		return nil, fmt.Errorf("%w: status %s", ErrAuctionNotActive, cur.Status)
	}
	if cur.WaitRequestedBy == nil {
		return nil, ErrNoWaitPending
	}

	requester := *cur.WaitRequestedBy
	next := cur.Clone()
	next.WaitRequestedBy = nil
	next.Version++
	evtType := events.TypeWaitRejected
	if accept {
		next.Status = models.AuctionStatusActive
		evtType = events.TypeWaitAccepted
	}
	a.mu.RLock()
	remaining, ok := a.paused[cur.ID]
	a.mu.RUnlock()
	if accept || !ok || remaining <= 0 {
		remaining = a.timer.Durations().For(next.Status)
	}

	now := a.clock.Now().UTC()
	timeoutAt := now.Add(remaining)
	evt, err := events.New(evtType, next.ID, next.Version, now, events.WaitPayload{
		AuctionID: next.ID,
		TeamID:    requester,
		Stage:     string(next.Status),
		TimeoutAt: &timeoutAt,
	})
	if err != nil {
		return nil, err
	}
	if err := a.commitWait(ctx, cur, next, evt); err != nil {
		return nil, err
	}

	a.timer.ArmFor(next.ID, next.Status, next.Version, remaining)
	a.publish(ctx, evt)

	log.Info().
		Str("auction_id", next.ID.String()).
		Bool("accepted", accept).
		Msg("wait resolved")
	return next.Clone(), nil
}

func (a *App) commitWait(ctx context.Context, cur, next *models.Auction, evt events.Event) error {
	err := a.repo.UpdateAuction(ctx, next, cur.Version, evt)
	if err != nil {
		if isConflict(err) {
			a.invalidate(cur.ID)
			return fmt.Errorf("%w: %w", ErrConcurrentBidConflict, err)
		}
		return store.Unavailable("update wait", err)
	}
	a.commit(next)
	return nil
}
