package fpl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skjftp/fpl-auction-sub001/go/clients"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
)

const bootstrapFixture = `{
  "elements": [
    {"id": 1, "web_name": "Raya", "element_type": 1, "team": 1, "now_cost": 55},
    {"id": 2, "web_name": "Saka", "element_type": 3, "team": 1, "now_cost": 100},
    {"id": 3, "web_name": "Haaland", "element_type": 4, "team": 2, "now_cost": 150},
    {"id": 4, "web_name": "Amorim", "element_type": 5, "team": 3, "now_cost": 15}
  ],
  "teams": [
    {"id": 1, "name": "Arsenal", "short_name": "ARS"},
    {"id": 2, "name": "Man City", "short_name": "MCI"},
    {"id": 3, "name": "Man Utd", "short_name": "MUN"}
  ],
  "element_types": [
    {"id": 1, "singular_name_short": "GKP"},
    {"id": 2, "singular_name_short": "DEF"},
    {"id": 3, "singular_name_short": "MID"},
    {"id": 4, "singular_name_short": "FWD"},
    {"id": 5, "singular_name_short": "AM"}
  ]
}`

func TestBootstrap(t *testing.T) {
	var gotPath, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(bootstrapFixture))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BootstrapEndpoint, gotPath)
	assert.Equal(t, UserAgent, gotAgent)

	wantClubs := []models.Club{
		{ID: 1, Name: "Arsenal", ShortName: "ARS"},
		{ID: 2, Name: "Man City", ShortName: "MCI"},
		{ID: 3, Name: "Man Utd", ShortName: "MUN"},
	}
	if diff := cmp.Diff(wantClubs, resp.Clubs()); diff != "" {
		t.Errorf("clubs mismatch (-want +got):\n%s", diff)
	}

	players, skipped := resp.Players()
	wantPlayers := []models.Player{
		{ID: 1, WebName: "Raya", Position: models.PositionGoalkeeper, ClubID: 1, Price: 55},
		{ID: 2, WebName: "Saka", Position: models.PositionMidfielder, ClubID: 1, Price: 100},
		{ID: 3, WebName: "Haaland", Position: models.PositionForward, ClubID: 2, Price: 150},
	}
	if diff := cmp.Diff(wantPlayers, players); diff != "" {
		t.Errorf("players mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int64{4}, skipped)
}

func TestBootstrapRetriesRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(bootstrapFixture))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	client.SetRetries(1, time.Millisecond)
	resp, err := client.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Len(t, resp.Elements, 4)
	assert.Equal(t, int32(2), hits.Load())
}

func TestBootstrapErrorStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Bootstrap(context.Background())
	var statusErr *clients.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, int32(1), hits.Load(), "4xx other than 429 is not retried")
}

func TestParseBootstrapRejectsEmpty(t *testing.T) {
	_, err := ParseBootstrap([]byte(`{"elements": [], "teams": []}`))
	assert.Error(t, err)

	_, err = ParseBootstrap([]byte(`not json`))
	assert.Error(t, err)
}

func TestLoadBootstrapFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bootstrap.json")
	require.NoError(t, os.WriteFile(path, []byte(bootstrapFixture), 0o600))

	resp, err := LoadBootstrapFile(path)
	require.NoError(t, err)
	assert.Len(t, resp.Teams, 3)

	_, err = LoadBootstrapFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
