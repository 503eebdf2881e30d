// Package store holds the errors shared by the persistence implementations.
package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a compare-and-swap write lost to another writer
	ErrVersionConflict = errors.New("version conflict")
	// ErrLiveAuctionExists is returned when creating an auction while another is live
	ErrLiveAuctionExists = errors.New("live auction exists")
	// ErrItemOwned is returned when a sold item already sits in a squad
	ErrItemOwned = errors.New("item already owned")
	// ErrBudgetExceeded is returned when a debit would take a budget negative
	ErrBudgetExceeded = errors.New("budget exceeded")
)

// ErrUnavailable marks a failure of the backing store itself, as opposed to a
// rejected write
var ErrUnavailable = errors.New("persistence unavailable")

// Unavailable wraps err so callers can match ErrUnavailable
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// OutboxChannel is the LISTEN/NOTIFY channel a committed outbox row is
// announced on
const OutboxChannel = "auction_outbox_events"
