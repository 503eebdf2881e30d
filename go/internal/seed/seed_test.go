package seed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skjftp/fpl-auction-sub001/go/clients/fpl"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store/memory"
)

const bootstrap = `{
  "elements": [
    {"id": 10, "web_name": "Salah", "element_type": 3, "team": 12, "now_cost": 130},
    {"id": 11, "web_name": "Manager", "element_type": 5, "team": 12, "now_cost": 10}
  ],
  "teams": [{"id": 12, "name": "Liverpool", "short_name": "LIV"}],
  "element_types": [{"id": 3, "singular_name_short": "MID"}]
}`

func TestDefaultTeams(t *testing.T) {
	teams := DefaultTeams(1000)
	require.Len(t, teams, 10)
	assert.Equal(t, "Wadde Badmash", teams[0].Name)
	assert.Equal(t, "team10", teams[9].Username)
	assert.True(t, teams[0].IsAdmin)
	for _, team := range teams[1:] {
		assert.False(t, team.IsAdmin, team.Username)
		assert.Equal(t, 1000, team.Budget)
	}
}

func TestSeedMemoryStore(t *testing.T) {
	ctx := context.Background()
	boot, err := fpl.ParseBootstrap([]byte(bootstrap))
	require.NoError(t, err)

	s := memory.New()
	res, err := Seed(ctx, s, DefaultTeams(1000), boot)
	require.NoError(t, err)
	assert.Equal(t, Result{Teams: 10, Clubs: 1, Players: 1, Skipped: []int64{11}}, res)

	p, err := s.GetPlayer(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, models.PositionMidfielder, p.Position)
	_, err = s.GetClub(ctx, 12)
	require.NoError(t, err)
}

func TestSeedKeepsSpentBudget(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	s.SeedTeams(models.Team{ID: 1, Name: "old", Budget: 640})

	_, err := Seed(ctx, s, DefaultTeams(1000), nil)
	require.NoError(t, err)

	team, err := s.GetTeam(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 640, team.Budget)
	assert.Equal(t, "Wadde Badmash", team.Name)
}

type failingStore struct{ *memory.Store }

func (f *failingStore) UpsertClubs(context.Context, ...models.Club) error {
	return errors.New("clubs table missing")
}

func TestSeedStopsOnError(t *testing.T) {
	boot, err := fpl.ParseBootstrap([]byte(bootstrap))
	require.NoError(t, err)

	s := &failingStore{Store: memory.New()}
	res, err := Seed(context.Background(), s, nil, boot)
	require.Error(t, err)
	assert.Zero(t, res.Players)
}

func TestConfigLoadBootstrap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(bootstrap))
	}))
	defer srv.Close()

	boot, err := Config{}.LoadBootstrap(context.Background())
	require.NoError(t, err)
	assert.Nil(t, boot)

	boot, err = Config{FetchFPL: true, FPLBaseURL: srv.URL}.LoadBootstrap(context.Background())
	require.NoError(t, err)
	assert.Len(t, boot.Elements, 2)
}
