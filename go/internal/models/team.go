package models

import (
	"time"
)

// DefaultBudget is the spend every team starts a draft with.
const DefaultBudget = 1000

// Team is a participant in the draft.
type Team struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Budget    int       `json:"budget"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}
