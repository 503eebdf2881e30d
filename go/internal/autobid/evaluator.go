package autobid

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/skjftp/fpl-auction-sub001/go/internal/auction"
	"github.com/skjftp/fpl-auction-sub001/go/internal/events"
	"github.com/skjftp/fpl-auction-sub001/go/internal/ledger"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
)

// Evaluator reacts to auction events by submitting at most one auto-bid per
// event. The new-bid event an accepted auto-bid produces drives the next round.
type Evaluator struct {
	repo       Repository
	auctioneer Auctioneer
}

// NewEvaluator creates a new Evaluator
func NewEvaluator(repo Repository, auctioneer Auctioneer) *Evaluator {
	return &Evaluator{repo: repo, auctioneer: auctioneer}
}

// Triggers are the event types that can make a team eligible to bid
var Triggers = []events.Type{
	events.TypeAuctionStarted,
	events.TypeNewBid,
	events.TypeSellingStageUpdated,
}

// Run evaluates every event from sub until ctx is done or sub closes
func (e *Evaluator) Run(ctx context.Context, sub *events.Subscription) error {
	log.Info().Msg("auto-bid evaluator started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := e.HandleEvent(ctx, evt); err != nil {
				log.Error().
					Err(err).
					Str("event_type", string(evt.Type)).
					Str("auction_id", evt.AuctionID.String()).
					Msg("auto-bid evaluation failed")
			}
		}
	}
}

// HandleEvent evaluates enabled teams in team id order against the live
// auction and submits the first eligible bid
func (e *Evaluator) HandleEvent(ctx context.Context, evt events.Event) error {
	switch evt.Type {
	case events.TypeAuctionStarted, events.TypeNewBid, events.TypeSellingStageUpdated:
	default:
		return nil
	}

	cur, err := e.auctioneer.Current(ctx)
	if errors.Is(err, auction.ErrAuctionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if cur.ID != evt.AuctionID {
		return nil
	}

	configs, err := e.repo.ListAutoBidConfigs(ctx)
	if err != nil {
		return err
	}
	configs = enabledOnly(configs)
	if len(configs) == 0 {
		return nil
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].TeamID < configs[j].TeamID })

	item, err := e.auctioneer.ResolveItem(ctx, cur.ItemType, cur.ItemID)
	if err != nil {
		return err
	}
	squads, err := e.squads(ctx)
	if err != nil {
		return err
	}

	target := models.TargetKey{Type: cur.ItemType, ID: cur.ItemID}
	for i := range configs {
		cfg := &configs[i]
		squad, ok := squads[cfg.TeamID]
		if !ok {
			continue
		}
		amount, reason := e.decide(cur, item, cfg.Effective(target), squad, squads)
		if reason != "" {
			log.Debug().
				Int64("team_id", cfg.TeamID).
				Str("auction_id", cur.ID.String()).
				Str("reason", reason).
				Msg("auto-bid skipped")
			continue
		}

		// At most one auto-bid per triggering event, accepted or not. Each
		// committed bid publishes new-bid, which drives the next pass.
		res, err := e.auctioneer.PlaceBid(ctx, cur.ID, cfg.TeamID, amount, true)
		if err != nil {
			log.Info().
				Err(err).
				Int64("team_id", cfg.TeamID).
				Str("auction_id", cur.ID.String()).
				Int("amount", amount).
				Int("current_bid", res.CurrentBid).
				Str("reason", auction.ReasonCode(err)).
				Msg("auto-bid rejected")
			return nil
		}
		log.Info().
			Int64("team_id", cfg.TeamID).
			Str("auction_id", cur.ID.String()).
			Int("amount", amount).
			Msg("auto-bid placed")
		return nil
	}
	return nil
}

// decide returns the bid a team would place, or the reason it skips
func (e *Evaluator) decide(cur *models.Auction, item models.Item, rules models.AutoBidRules, squad ledger.Squad, all map[int64]ledger.Squad) (int, string) {
	if rules.MaxBid <= 0 {
		return 0, "no max bid"
	}
	if cur.IsCurrentBidder(squad.TeamID) {
		return 0, "already highest bidder"
	}
	if rules.OnlySellingStage && !cur.Status.IsSelling() {
		return 0, "only selling stage"
	}
	if rules.NeverSecondBidder && len(cur.BidHistory) == 1 && cur.BidHistory[0].TeamID != squad.TeamID {
		return 0, "never second bidder"
	}
	if rules.SkipIfAnyTeamOwnsClub && item.ClubID != 0 && ledger.ClubOwnedByAnyTeam(values(all), item.ClubID) {
		return 0, "club already owned"
	}

	l := e.auctioneer.Ledger()
	candidate := cur.CurrentBid + models.BidIncrement
	limit := min(rules.MaxBid, l.MaxAllowedBid(squad), squad.Remaining)
	if candidate > limit {
		return 0, "over cap"
	}
	if err := l.CanHold(squad, item); err != nil {
		return 0, "squad full"
	}
	return candidate, ""
}

func (e *Evaluator) squads(ctx context.Context) (map[int64]ledger.Squad, error) {
	teams, err := e.repo.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := e.repo.ListSquads(ctx)
	if err != nil {
		return nil, err
	}
	byTeam := make(map[int64][]models.SquadEntry, len(teams))
	for _, entry := range entries {
		byTeam[entry.TeamID] = append(byTeam[entry.TeamID], entry)
	}
	out := make(map[int64]ledger.Squad, len(teams))
	for _, t := range teams {
		out[t.ID] = ledger.NewSquad(t.ID, t.Budget, byTeam[t.ID])
	}
	return out, nil
}

func enabledOnly(configs []models.AutoBidConfig) []models.AutoBidConfig {
	out := configs[:0]
	for _, c := range configs {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}

func values(m map[int64]ledger.Squad) []ledger.Squad {
	out := make([]ledger.Squad, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}
