package models

import (
	"time"
)

// DraftState is the global turn order singleton.
type DraftState struct {
	// Order is the fixed pick order; Order[i] picks at position i+1.
	Order           []int64    `json:"order"`
	CurrentPosition int        `json:"current_position"`
	CurrentTeamID   *int64     `json:"current_team_id,omitempty"`
	IsActive        bool       `json:"is_active"`
	Version         int64      `json:"version"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Initialized reports whether a pick order exists.
func (d *DraftState) Initialized() bool {
	return d != nil && len(d.Order) > 0
}

// Complete reports whether every position has been consumed.
func (d *DraftState) Complete() bool {
	return d.Initialized() && !d.IsActive && d.CurrentPosition > len(d.Order)
}

// TeamAt returns the team picking at the 1-indexed position.
func (d *DraftState) TeamAt(position int) (int64, bool) {
	if position < 1 || position > len(d.Order) {
		return 0, false
	}
	return d.Order[position-1], true
}

// Clone returns a deep copy.
func (d *DraftState) Clone() *DraftState {
	if d == nil {
		return nil
	}
	c := *d
	c.Order = append([]int64(nil), d.Order...)
	if d.CurrentTeamID != nil {
		id := *d.CurrentTeamID
		c.CurrentTeamID = &id
	}
	return &c
}
