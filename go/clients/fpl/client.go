// Package fpl reads the Fantasy Premier League bootstrap data that seeds the
// auction's players and clubs.
package fpl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/skjftp/fpl-auction-sub001/go/clients"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
)

type Client struct {
	*clients.BaseClient
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = BaseURL
	}
	client := &Client{BaseClient: clients.NewBaseClient(baseURL)}
	client.SetHeader("User-Agent", UserAgent)
	client.SetHeader("Accept", "application/json")
	client.SetRetries(2, time.Second)
	return client
}

type Element struct {
	ID          int64  `json:"id"`
	WebName     string `json:"web_name"`
	FirstName   string `json:"first_name"`
	SecondName  string `json:"second_name"`
	ElementType int    `json:"element_type"`
	Team        int64  `json:"team"`
	NowCost     int    `json:"now_cost"`
	Status      string `json:"status"`
}

type Team struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	Code      int    `json:"code"`
	Strength  int    `json:"strength"`
}

type ElementType struct {
	ID                int    `json:"id"`
	SingularNameShort string `json:"singular_name_short"`
	SquadSelect       int    `json:"squad_select"`
	ElementCount      int    `json:"element_count"`
}

// BootstrapResponse is the subset of bootstrap-static the auction uses
type BootstrapResponse struct {
	Elements     []Element     `json:"elements"`
	Teams        []Team        `json:"teams"`
	ElementTypes []ElementType `json:"element_types"`
}

// Bootstrap fetches the current season's players and clubs
func (c *Client) Bootstrap(ctx context.Context) (*BootstrapResponse, error) {
	var response BootstrapResponse
	if err := c.GetJSON(ctx, BootstrapEndpoint, &response); err != nil {
		return nil, fmt.Errorf("failed to get bootstrap data: %w", err)
	}
	if err := response.validate(); err != nil {
		return nil, err
	}
	return &response, nil
}

// ParseBootstrap decodes a bootstrap-static document
func ParseBootstrap(body []byte) (*BootstrapResponse, error) {
	var response BootstrapResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bootstrap data: %w", err)
	}
	if err := response.validate(); err != nil {
		return nil, err
	}
	return &response, nil
}

func (b *BootstrapResponse) validate() error {
	if len(b.Elements) == 0 || len(b.Teams) == 0 {
		return fmt.Errorf("bootstrap data has %d players and %d clubs", len(b.Elements), len(b.Teams))
	}
	return nil
}

// LoadBootstrapFile reads a saved bootstrap-static document
func LoadBootstrapFile(path string) (*BootstrapResponse, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseBootstrap(body)
}

var positionsByShortName = map[string]models.Position{
	"GKP": models.PositionGoalkeeper,
	"GK":  models.PositionGoalkeeper,
	"DEF": models.PositionDefender,
	"MID": models.PositionMidfielder,
	"FWD": models.PositionForward,
}

// Clubs maps the bootstrap teams onto auction clubs
func (b *BootstrapResponse) Clubs() []models.Club {
	out := make([]models.Club, 0, len(b.Teams))
	for _, t := range b.Teams {
		out = append(out, models.Club{ID: t.ID, Name: t.Name, ShortName: t.ShortName})
	}
	return out
}

// Players maps the bootstrap elements onto auction players. Elements with an
// element type the auction has no position for are returned in skipped.
func (b *BootstrapResponse) Players() (players []models.Player, skipped []int64) {
	positions := make(map[int]models.Position, len(b.ElementTypes))
	for _, et := range b.ElementTypes {
		if p, ok := positionsByShortName[et.SingularNameShort]; ok {
			positions[et.ID] = p
		}
	}
	players = make([]models.Player, 0, len(b.Elements))
	for _, e := range b.Elements {
		pos, ok := positions[e.ElementType]
		if !ok {
			skipped = append(skipped, e.ID)
			continue
		}
		players = append(players, models.Player{
			ID:       e.ID,
			WebName:  e.WebName,
			Position: pos,
			ClubID:   e.Team,
			Price:    e.NowCost,
		})
	}
	return players, skipped
}
