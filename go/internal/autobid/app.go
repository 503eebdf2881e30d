package autobid

import (
	"context"
	"errors"
	"sort"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/skjftp/fpl-auction-sub001/go/internal/ledger"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store"
)

// SquadSource resolves the ledger view used to validate max bids
type SquadSource interface {
	Squad(ctx context.Context, teamID int64) (ledger.Squad, error)
	Ledger() *ledger.Ledger
}

// App owns reading and saving a team's auto-bid configuration
type App struct {
	repo   Repository
	squads SquadSource
	clock  clockwork.Clock
}

// NewApp creates a new auto-bid config App
func NewApp(repo Repository, squads SquadSource, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{repo: repo, squads: squads, clock: clock}
}

// GetConfig returns the team's configuration, or an empty disabled one
func (a *App) GetConfig(ctx context.Context, teamID int64) (*models.AutoBidConfig, error) {
	cfg, err := a.repo.GetAutoBidConfig(ctx, teamID)
	if errors.Is(err, store.ErrNotFound) {
		return &models.AutoBidConfig{TeamID: teamID, PerTarget: map[models.TargetKey]models.AutoBidOverride{}}, nil
	}
	if err != nil {
		return nil, store.Unavailable("get auto-bid config", err)
	}
	return cfg, nil
}

// SaveConfig validates and stores the team's configuration. Every max bid
// must be a positive multiple of the increment and no more than the team
// may commit to one item right now.
func (a *App) SaveConfig(ctx context.Context, teamID int64, cfg models.AutoBidConfig) (*models.AutoBidConfig, error) {
	squad, err := a.squads.Squad(ctx, teamID)
	if err != nil {
		return nil, err
	}
	allowed := a.squads.Ledger().MaxAllowedBid(squad)

	verr := &ValidationError{MaxAllowedBid: allowed}
	if !validMax(cfg.Global.MaxBid, allowed, true) {
		verr.Invalid = append(verr.Invalid, InvalidTarget{ConfiguredMax: cfg.Global.MaxBid})
	}
	for key, o := range cfg.PerTarget {
		if !key.Type.Valid() {
			verr.Invalid = append(verr.Invalid, InvalidTarget{Type: key.Type, ID: key.ID})
			continue
		}
		if o.MaxBid != nil && !validMax(*o.MaxBid, allowed, false) {
			verr.Invalid = append(verr.Invalid, InvalidTarget{Type: key.Type, ID: key.ID, ConfiguredMax: *o.MaxBid})
		}
	}
	if len(verr.Invalid) > 0 {
		sort.Slice(verr.Invalid, func(i, j int) bool {
			if verr.Invalid[i].Type != verr.Invalid[j].Type {
				return verr.Invalid[i].Type < verr.Invalid[j].Type
			}
			return verr.Invalid[i].ID < verr.Invalid[j].ID
		})
		return nil, verr
	}

	cfg.TeamID = teamID
	cfg.UpdatedAt = a.clock.Now().UTC()
	if cfg.PerTarget == nil {
		cfg.PerTarget = map[models.TargetKey]models.AutoBidOverride{}
	}
	if err := a.repo.SaveAutoBidConfig(ctx, &cfg); err != nil {
		return nil, store.Unavailable("save auto-bid config", err)
	}

	log.Info().
		Int64("team_id", teamID).
		Bool("enabled", cfg.Enabled).
		Int("targets", len(cfg.PerTarget)).
		Msg("auto-bid config saved")
	return &cfg, nil
}

// validMax accepts zero as "unset" only where unset is meaningful
func validMax(v, allowed int, zeroOK bool) bool {
	if v == 0 {
		return zeroOK
	}
	return v > 0 && v%models.BidIncrement == 0 && v <= allowed
}
