// Package outbox relays committed auction events from the postgres outbox
// table to NATS JetStream.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotPending is returned when an outbox row does not exist or was already sent
var ErrNotPending = errors.New("outbox event not found or already sent")

// Record is one row of the outbox table
type Record struct {
	ID        uuid.UUID
	EventType string
	AuctionID uuid.NullUUID
	Sequence  int64
	// Payload is the full events.Event envelope as committed.
	Payload   json.RawMessage
	Headers   map[string]string
	CreatedAt time.Time
	Attempts  int
}

// MessageHeaders are the headers a record is published with
func (r Record) MessageHeaders() map[string]string {
	h := map[string]string{
		"Event-Type": r.EventType,
		"Event-ID":   r.ID.String(),
	}
	if r.AuctionID.Valid {
		h["Auction-ID"] = r.AuctionID.UUID.String()
	}
	return h
}

// Publisher delivers a record to the message bus
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
}

// Store is what the relay needs from the outbox table
type Store interface {
	FetchUnsent(ctx context.Context, limit int) ([]Record, error)
	FetchByID(ctx context.Context, id uuid.UUID) (*Record, error)
	MarkSent(ctx context.Context, id uuid.UUID, headers map[string]string) error
	RecordFailure(ctx context.Context, id uuid.UUID, cause error) error
	CountPending(ctx context.Context) (int, error)
}
