// Package auction runs the lifecycle of the single live auction: nomination,
// bid validation, selling stages and finalization.
package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/skjftp/fpl-auction-sub001/go/internal/events"
	"github.com/skjftp/fpl-auction-sub001/go/internal/ledger"
	"github.com/skjftp/fpl-auction-sub001/go/internal/lock"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store"
)

const nominateLockKey = "auction:nominate"

func auctionLockKey(id uuid.UUID) string {
	return "auction:" + id.String()
}

// App is the auction manager. All reads-then-writes of one auction run under
// that auction's lock and are committed with a version check; the cached live
// auction is only replaced after the store accepted the write.
type App struct {
	repo        Repository
	drafter     DraftScheduler
	timer       Timer
	locker      lock.Locker
	broadcaster events.Broadcaster
	ledger      *ledger.Ledger
	clock       clockwork.Clock
	cfg         Config

	mu     sync.RWMutex
	live   *models.Auction
	paused map[uuid.UUID]time.Duration
}

// NewApp creates a new auction App
func NewApp(repo Repository, drafter DraftScheduler, timer Timer, locker lock.Locker, broadcaster events.Broadcaster, l *ledger.Ledger, cfg Config, clock clockwork.Clock) *App {
	if cfg.MaxCommitAttempts <= 0 {
		cfg.MaxCommitAttempts = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if broadcaster == nil {
		broadcaster = events.Nop{}
	}
	return &App{
		repo:        repo,
		drafter:     drafter,
		timer:       timer,
		locker:      locker,
		broadcaster: broadcaster,
		ledger:      l,
		clock:       clock,
		cfg:         cfg,
		paused:      make(map[uuid.UUID]time.Duration),
	}
}

// StartAuction opens bidding on an item nominated by the team whose turn it is
func (a *App) StartAuction(ctx context.Context, requesterTeamID, itemID int64, itemType models.ItemType) (*models.Auction, error) {
	if !itemType.Valid() {
		return nil, fmt.Errorf("%w: unknown item type %q", ErrItemUnavailable, itemType)
	}

	unlock, err := a.lock(ctx, nominateLockKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// The live check comes before the turn read: an auction that has just
	// ended may not have advanced the draft yet, and settleTurn covers that.
	live, err := a.repo.GetLiveAuction(ctx)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrAuctionAlreadyActive, live.ID)
	case !errors.Is(err, store.ErrNotFound):
		return nil, store.Unavailable("get live auction", err)
	}

	state, err := a.drafter.State(ctx)
	if err != nil {
		return nil, err
	}
	if state, err = a.settleTurn(ctx, state); err != nil {
		return nil, err
	}
	switch {
	case !state.Initialized():
		return nil, ErrDraftNotInitialized
	case state.Complete():
		return nil, ErrDraftAlreadyComplete
	case !state.IsActive:
		return nil, ErrDraftNotActive
	case state.CurrentTeamID == nil || *state.CurrentTeamID != requesterTeamID:
		return nil, ErrNotYourTurn
	}

	item, err := a.ResolveItem(ctx, itemType, itemID)
	if err != nil {
		return nil, err
	}
	owned, err := a.repo.IsItemOwned(ctx, itemType, itemID)
	if err != nil {
		return nil, store.Unavailable("check ownership", err)
	}
	if owned {
		return nil, fmt.Errorf("%w: %s %d already owned", ErrItemUnavailable, itemType, itemID)
	}

	squad, err := a.Squad(ctx, requesterTeamID)
	if err != nil {
		return nil, err
	}
	if a.cfg.NominatorOpens {
		err = a.ledger.CheckBid(squad, item, models.StartingBid)
	} else {
		err = a.ledger.CanHold(squad, item)
	}
	if err != nil {
		return nil, err
	}

	now := a.clock.Now().UTC()
	auction := &models.Auction{
		ID:            uuid.New(),
		ItemType:      itemType,
		ItemID:        itemID,
		NominatedBy:   requesterTeamID,
		DraftPosition: state.CurrentPosition,
		Status:        models.AuctionStatusActive,
		CurrentBid:    models.StartingBid,
		BidHistory:    []models.Bid{},
		Version:       1,
		StartedAt:     now,
	}
	payload := events.AuctionStartedPayload{
		AuctionID:   auction.ID,
		ItemType:    string(itemType),
		ItemID:      itemID,
		StartingBid: models.StartingBid,
		NominatedBy: requesterTeamID,
		StartedAt:   now,
		TimeoutAt:   now.Add(a.timer.Durations().Bidding),
	}
	if a.cfg.NominatorOpens {
		opener := requesterTeamID
		auction.CurrentBidderID = &opener
		auction.BidHistory = append(auction.BidHistory, models.Bid{TeamID: opener, Amount: models.StartingBid, Timestamp: now})
		payload.OpeningBidder = &opener
	}

	evt, err := events.New(events.TypeAuctionStarted, auction.ID, auction.Version, now, payload)
	if err != nil {
		return nil, err
	}
	if err := a.repo.CreateAuction(ctx, auction, evt); err != nil {
		switch {
		case errors.Is(err, store.ErrLiveAuctionExists):
			return nil, fmt.Errorf("%w: %w", ErrAuctionAlreadyActive, err)
		case errors.Is(err, store.ErrItemOwned):
			return nil, fmt.Errorf("%w: %w", ErrItemUnavailable, err)
		default:
			return nil, store.Unavailable("create auction", err)
		}
	}

	a.setLive(auction)
	a.timer.Arm(auction.ID, models.AuctionStatusActive, auction.Version)
	a.publish(ctx, evt)

	log.Info().
		Str("auction_id", auction.ID.String()).
		Int64("team_id", requesterTeamID).
		Str("item_type", string(itemType)).
		Int64("item_id", itemID).
		Msg("auction started")
	return auction.Clone(), nil
}

// PlaceBid validates a bid against the freshest committed state and commits
// it. The first bid to commit at an amount wins; a loser at the same amount
// is re-validated and refused as too low.
func (a *App) PlaceBid(ctx context.Context, auctionID uuid.UUID, teamID int64, amount int, isAutoBid bool) (BidResult, error) {
	if amount <= 0 || amount%models.BidIncrement != 0 {
		current := a.peekCurrentBid(ctx, auctionID)
		a.logRejection(auctionID, teamID, amount, isAutoBid, ErrBidTooLow)
		return BidResult{CurrentBid: current}, reject(fmt.Errorf("%w: %d is not a positive multiple of %d", ErrBidTooLow, amount, models.BidIncrement), current)
	}

	unlock, err := a.lock(ctx, auctionLockKey(auctionID))
	if err != nil {
		current := a.peekCurrentBid(ctx, auctionID)
		return BidResult{CurrentBid: current}, reject(err, current)
	}
	defer unlock()

	latest := 0
	for attempt := 1; attempt <= a.cfg.MaxCommitAttempts; attempt++ {
		cur, err := a.load(ctx, auctionID, attempt > 1)
		if err != nil {
			return BidResult{}, err
		}
		latest = cur.CurrentBid

		if err := a.validateBid(ctx, cur, teamID, amount); err != nil {
			a.logRejection(auctionID, teamID, amount, isAutoBid, err)
			return BidResult{CurrentBid: cur.CurrentBid}, reject(err, cur.CurrentBid)
		}

		now := a.clock.Now().UTC()
		next := cur.Clone()
		next.CurrentBid = amount
		next.CurrentBidderID = &teamID
		next.BidHistory = append(next.BidHistory, models.Bid{TeamID: teamID, Amount: amount, Timestamp: now, IsAutoBid: isAutoBid})
		next.Status = models.AuctionStatusActive
		next.WaitRequestedBy = nil
		next.Version++

		evt, err := events.New(events.TypeNewBid, next.ID, next.Version, now, events.NewBidPayload{
			AuctionID: next.ID,
			TeamID:    teamID,
			Amount:    amount,
			IsAutoBid: isAutoBid,
			TimeoutAt: now.Add(a.timer.Durations().Bidding),
		})
		if err != nil {
			return BidResult{}, err
		}

		err = a.repo.UpdateAuction(ctx, next, cur.Version, evt)
		if errors.Is(err, store.ErrVersionConflict) {
			log.Debug().
				Str("auction_id", auctionID.String()).
				Int("attempt", attempt).
				Msg("bid lost compare-and-swap, reloading")
			a.invalidate(auctionID)
			continue
		}
		if err != nil {
			return BidResult{CurrentBid: cur.CurrentBid}, store.Unavailable("commit bid", err)
		}

		a.commit(next)
		a.timer.Arm(next.ID, models.AuctionStatusActive, next.Version)
		a.publish(ctx, evt)

		log.Debug().
			Str("auction_id", auctionID.String()).
			Int64("team_id", teamID).
			Int("amount", amount).
			Bool("auto", isAutoBid).
			Msg("bid accepted")
		return BidResult{Accepted: true, CurrentBid: amount}, nil
	}

	a.logRejection(auctionID, teamID, amount, isAutoBid, ErrConcurrentBidConflict)
	return BidResult{CurrentBid: latest}, reject(ErrConcurrentBidConflict, latest)
}

func (a *App) validateBid(ctx context.Context, cur *models.Auction, teamID int64, amount int) error {
	if !cur.Status.IsLive() {
		return fmt.Errorf("%w: status %s", ErrAuctionNotActive, cur.Status)
	}
	if amount <= cur.CurrentBid {
		return fmt.Errorf("%w: must be higher than %d", ErrBidTooLow, cur.CurrentBid)
	}
	item, err := a.ResolveItem(ctx, cur.ItemType, cur.ItemID)
	if err != nil {
		return err
	}
	squad, err := a.Squad(ctx, teamID)
	if err != nil {
		return err
	}
	return a.ledger.CheckBid(squad, item, amount)
}

// Cancel aborts the live auction with no winner. The draft only moves on
// when skipTurn is set.
func (a *App) Cancel(ctx context.Context, auctionID uuid.UUID, skipTurn bool) (*models.Auction, error) {
	unlock, err := a.lock(ctx, auctionLockKey(auctionID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := a.load(ctx, auctionID, true)
	if err != nil {
		return nil, err
	}
	if !cur.Status.IsLive() {
		return nil, fmt.Errorf("%w: status %s", ErrAuctionNotActive, cur.Status)
	}
	reason := CancelReasonAdmin
	if skipTurn {
		reason = CancelReasonSkipped
	}
	return a.cancelLocked(ctx, cur, reason, skipTurn)
}

// Complete sells the live auction to its current bidder without waiting for
// the countdown
func (a *App) Complete(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error) {
	unlock, err := a.lock(ctx, auctionLockKey(auctionID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := a.load(ctx, auctionID, true)
	if err != nil {
		return nil, err
	}
	if !cur.Status.IsLive() {
		return nil, fmt.Errorf("%w: status %s", ErrAuctionNotActive, cur.Status)
	}
	if cur.CurrentBidderID == nil {
		return nil, ErrNoBidder
	}
	return a.finalizeLocked(ctx, cur)
}

// Current returns the live auction
func (a *App) Current(ctx context.Context) (*models.Auction, error) {
	a.mu.RLock()
	live := a.live.Clone()
	a.mu.RUnlock()
	if live != nil {
		return live, nil
	}

	live, err := a.repo.GetLiveAuction(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, store.Unavailable("get live auction", err)
	}
	a.commit(live)
	return live, nil
}

// Get returns any auction by id
func (a *App) Get(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error) {
	return a.load(ctx, auctionID, true)
}

// TimeRemaining is the time left on the auction's countdown
func (a *App) TimeRemaining(auctionID uuid.UUID) time.Duration {
	if d, ok := a.timer.Remaining(auctionID); ok {
		return d
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.paused[auctionID]
}

// Recover reloads the live auction after a restart and re-arms its countdown.
// With nothing live it finishes any turn advance the last auction left undone.
func (a *App) Recover(ctx context.Context) error {
	live, err := a.repo.GetLiveAuction(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return a.recoverTurn(ctx)
	}
	if err != nil {
		return store.Unavailable("get live auction", err)
	}
	a.setLive(live)
	if live.WaitRequestedBy != nil {
		a.mu.Lock()
		a.paused[live.ID] = a.timer.Durations().For(live.Status)
		a.mu.Unlock()
	} else {
		a.timer.Arm(live.ID, live.Status, live.Version)
	}
	log.Info().
		Str("auction_id", live.ID.String()).
		Str("status", string(live.Status)).
		Int("current_bid", live.CurrentBid).
		Msg("recovered live auction")
	return nil
}

// ResolveItem looks up the attributes squad checks need
func (a *App) ResolveItem(ctx context.Context, itemType models.ItemType, itemID int64) (models.Item, error) {
	switch itemType {
	case models.ItemTypePlayer:
		p, err := a.repo.GetPlayer(ctx, itemID)
		if errors.Is(err, store.ErrNotFound) {
			return models.Item{}, fmt.Errorf("%w: player %d", ErrItemUnavailable, itemID)
		}
		if err != nil {
			return models.Item{}, store.Unavailable("get player", err)
		}
		return models.Item{Type: itemType, ID: itemID, Position: p.Position, ClubID: p.ClubID}, nil
	case models.ItemTypeClub:
		c, err := a.repo.GetClub(ctx, itemID)
		if errors.Is(err, store.ErrNotFound) {
			return models.Item{}, fmt.Errorf("%w: club %d", ErrItemUnavailable, itemID)
		}
		if err != nil {
			return models.Item{}, store.Unavailable("get club", err)
		}
		return models.Item{Type: itemType, ID: itemID, ClubID: c.ID}, nil
	}
	return models.Item{}, fmt.Errorf("%w: unknown item type %q", ErrItemUnavailable, itemType)
}

// Squad builds the ledger view of one team
func (a *App) Squad(ctx context.Context, teamID int64) (ledger.Squad, error) {
	team, err := a.repo.GetTeam(ctx, teamID)
	if errors.Is(err, store.ErrNotFound) {
		return ledger.Squad{}, fmt.Errorf("%w: %d", ErrTeamNotFound, teamID)
	}
	if err != nil {
		return ledger.Squad{}, store.Unavailable("get team", err)
	}
	entries, err := a.repo.GetSquad(ctx, teamID)
	if err != nil {
		return ledger.Squad{}, store.Unavailable("get squad", err)
	}
	return ledger.NewSquad(team.ID, team.Budget, entries), nil
}

// Ledger exposes the squad rules the app validates with
func (a *App) Ledger() *ledger.Ledger {
	return a.ledger
}

func (a *App) lock(ctx context.Context, key string) (func(), error) {
	unlock, err := a.locker.Lock(ctx, key)
	if errors.Is(err, lock.ErrLockTimeout) {
		return nil, fmt.Errorf("%w: %w", ErrConcurrentBidConflict, err)
	}
	if err != nil {
		return nil, err
	}
	return unlock, nil
}

// load returns the auction, from cache unless fresh is set
func (a *App) load(ctx context.Context, auctionID uuid.UUID, fresh bool) (*models.Auction, error) {
	if !fresh {
		a.mu.RLock()
		live := a.live
		a.mu.RUnlock()
		if live != nil && live.ID == auctionID {
			return live.Clone(), nil
		}
	}
	cur, err := a.repo.GetAuction(ctx, auctionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAuctionNotFound, auctionID)
	}
	if err != nil {
		return nil, store.Unavailable("get auction", err)
	}
	a.commit(cur)
	return cur, nil
}

func (a *App) peekCurrentBid(ctx context.Context, auctionID uuid.UUID) int {
	cur, err := a.load(ctx, auctionID, false)
	if err != nil {
		return 0
	}
	return cur.CurrentBid
}

// commit replaces the cached live auction with a committed snapshot
func (a *App) commit(next *models.Auction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if next.WaitRequestedBy == nil {
		delete(a.paused, next.ID)
	}
	if next.Status.IsLive() {
		if a.live == nil || a.live.ID != next.ID || a.live.Version <= next.Version {
			a.live = next.Clone()
		}
		return
	}
	if a.live != nil && a.live.ID == next.ID {
		a.live = nil
	}
}

func (a *App) setLive(live *models.Auction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live = live.Clone()
}

func (a *App) invalidate(auctionID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.live != nil && a.live.ID == auctionID {
		a.live = nil
	}
}

func (a *App) publish(ctx context.Context, evts ...events.Event) {
	if err := a.broadcaster.Publish(ctx, evts...); err != nil {
		log.Error().Err(err).Msg("failed to broadcast auction events")
	}
}

func (a *App) logRejection(auctionID uuid.UUID, teamID int64, amount int, isAutoBid bool, reason error) {
	log.Debug().
		Str("auction_id", auctionID.String()).
		Int64("team_id", teamID).
		Int("amount", amount).
		Bool("auto", isAutoBid).
		Str("reason", ReasonCode(reason)).
		Msg("bid rejected")
}
