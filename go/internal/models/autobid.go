package models

import (
	"encoding/json"
	"sort"
	"time"
)

// AutoBidRules are the per-target flags a team can set.
type AutoBidRules struct {
	MaxBid                int  `json:"max_bid,omitempty"`
	NeverSecondBidder     bool `json:"never_second_bidder"`
	OnlySellingStage      bool `json:"only_selling_stage"`
	SkipIfAnyTeamOwnsClub bool `json:"skip_if_any_team_owns_club"`
}

// AutoBidOverride overrides global rules field by field; nil keeps the global value.
type AutoBidOverride struct {
	MaxBid                *int  `json:"max_bid,omitempty"`
	NeverSecondBidder     *bool `json:"never_second_bidder,omitempty"`
	OnlySellingStage      *bool `json:"only_selling_stage,omitempty"`
	SkipIfAnyTeamOwnsClub *bool `json:"skip_if_any_team_owns_club,omitempty"`
}

// TargetKey identifies an auction target in a per-target map.
type TargetKey struct {
	Type ItemType `json:"type"`
	ID   int64    `json:"id"`
}

// AutoBidConfig is owned by one team and read-only to the auction core.
type AutoBidConfig struct {
	TeamID    int64                         `json:"team_id"`
	Enabled   bool                          `json:"enabled"`
	Global    AutoBidRules                  `json:"global"`
	PerTarget map[TargetKey]AutoBidOverride `json:"per_target"`
	UpdatedAt time.Time                     `json:"updated_at"`
}

// Effective merges the override for target over the global rules.
func (c *AutoBidConfig) Effective(target TargetKey) AutoBidRules {
	rules := c.Global
	o, ok := c.PerTarget[target]
	if !ok {
		return rules
	}
	if o.MaxBid != nil {
		rules.MaxBid = *o.MaxBid
	}
	if o.NeverSecondBidder != nil {
		rules.NeverSecondBidder = *o.NeverSecondBidder
	}
	if o.OnlySellingStage != nil {
		rules.OnlySellingStage = *o.OnlySellingStage
	}
	if o.SkipIfAnyTeamOwnsClub != nil {
		rules.SkipIfAnyTeamOwnsClub = *o.SkipIfAnyTeamOwnsClub
	}
	return rules
}

type targetOverride struct {
	Type     ItemType        `json:"type"`
	ID       int64           `json:"id"`
	Override AutoBidOverride `json:"override"`
}

type autoBidConfigJSON struct {
	TeamID    int64            `json:"team_id"`
	Enabled   bool             `json:"enabled"`
	Global    AutoBidRules     `json:"global"`
	PerTarget []targetOverride `json:"per_target"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// MarshalJSON flattens PerTarget into a stable list since map keys must be strings.
func (c AutoBidConfig) MarshalJSON() ([]byte, error) {
	out := autoBidConfigJSON{
		TeamID:    c.TeamID,
		Enabled:   c.Enabled,
		Global:    c.Global,
		PerTarget: make([]targetOverride, 0, len(c.PerTarget)),
		UpdatedAt: c.UpdatedAt,
	}
	for k, o := range c.PerTarget {
		out.PerTarget = append(out.PerTarget, targetOverride{Type: k.Type, ID: k.ID, Override: o})
	}
	sort.Slice(out.PerTarget, func(i, j int) bool {
		if out.PerTarget[i].Type != out.PerTarget[j].Type {
			return out.PerTarget[i].Type < out.PerTarget[j].Type
		}
		return out.PerTarget[i].ID < out.PerTarget[j].ID
	})
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *AutoBidConfig) UnmarshalJSON(data []byte) error {
	var in autoBidConfigJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	c.TeamID = in.TeamID
	c.Enabled = in.Enabled
	c.Global = in.Global
	c.UpdatedAt = in.UpdatedAt
	c.PerTarget = make(map[TargetKey]AutoBidOverride, len(in.PerTarget))
	for _, t := range in.PerTarget {
		c.PerTarget[TargetKey{Type: t.Type, ID: t.ID}] = t.Override
	}
	return nil
}
