// Package seed loads the league's teams and the season's players and clubs
// into a store.
package seed

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/skjftp/fpl-auction-sub001/go/clients/fpl"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
)

// Store is implemented by both the memory and postgres stores
type Store interface {
	UpsertTeams(ctx context.Context, teams ...models.Team) error
	UpsertClubs(ctx context.Context, clubs ...models.Club) error
	UpsertPlayers(ctx context.Context, players ...models.Player) error
}

var defaultTeamNames = []string{
	"Wadde Badmash",
	"Baba & Nawaab",
	"Kesari",
	"Finding Timo",
	"Khelenge Jigar Se",
	"Yaya Tours Pvt ltd",
	"Shiggy FC",
	"Analysis Paralysis",
	"Dukes",
	"Cash down under redux",
}

// DefaultTeams returns the league's ten teams with ids 1..10 and usernames
// team1..team10. team1 is the league admin.
func DefaultTeams(budget int) []models.Team {
	teams := make([]models.Team, 0, len(defaultTeamNames))
	for i, name := range defaultTeamNames {
		id := int64(i + 1)
		teams = append(teams, models.Team{
			ID:       id,
			Name:     name,
			Username: fmt.Sprintf("team%d", id),
			Budget:   budget,
			IsAdmin:  id == 1,
		})
	}
	return teams
}

type Result struct {
	Teams   int
	Clubs   int
	Players int
	Skipped []int64
}

// Seed upserts teams, then clubs, then players. Players reference clubs, so
// the order matters for the postgres store. A nil bootstrap seeds teams only.
func Seed(ctx context.Context, s Store, teams []models.Team, bootstrap *fpl.BootstrapResponse) (Result, error) {
	var res Result
	if len(teams) > 0 {
		if err := s.UpsertTeams(ctx, teams...); err != nil {
			return res, fmt.Errorf("seed teams: %w", err)
		}
		res.Teams = len(teams)
	}
	if bootstrap == nil {
		return res, nil
	}

	clubs := bootstrap.Clubs()
	if err := s.UpsertClubs(ctx, clubs...); err != nil {
		return res, fmt.Errorf("seed clubs: %w", err)
	}
	res.Clubs = len(clubs)

	players, skipped := bootstrap.Players()
	if err := s.UpsertPlayers(ctx, players...); err != nil {
		return res, fmt.Errorf("seed players: %w", err)
	}
	res.Players = len(players)
	res.Skipped = skipped
	if len(skipped) > 0 {
		log.Warn().Int("count", len(skipped)).Msg("skipped elements with no auction position")
	}
	return res, nil
}

// Config selects what the server seeds into the memory store at startup
type Config struct {
	DefaultTeams bool   `yaml:"default_teams" env:"SEED_DEFAULT_TEAMS"`
	FPLFile      string `yaml:"fpl_file" env:"SEED_FPL_FILE"`
	FetchFPL     bool   `yaml:"fetch_fpl" env:"SEED_FETCH_FPL"`
	FPLBaseURL   string `yaml:"fpl_base_url" env:"SEED_FPL_BASE_URL"`
}

func DefaultConfig() Config {
	return Config{DefaultTeams: true, FPLBaseURL: fpl.BaseURL}
}

// LoadBootstrap reads the configured file, falling back to the FPL API when
// FetchFPL is set. It returns nil when neither source is configured.
func (c Config) LoadBootstrap(ctx context.Context) (*fpl.BootstrapResponse, error) {
	switch {
	case c.FPLFile != "":
		return fpl.LoadBootstrapFile(c.FPLFile)
	case c.FetchFPL:
		return fpl.NewClient(c.FPLBaseURL).Bootstrap(ctx)
	default:
		return nil, nil
	}
}
