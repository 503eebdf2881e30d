// Package events defines the state-change events published by the auction
// core and the broadcasters that carry them to listeners.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type names an event topic
type Type string

const (
	TypeAuctionStarted      Type = "auction-started"
	TypeNewBid              Type = "new-bid"
	TypeAuctionCompleted    Type = "auction-completed"
	TypeAuctionCancelled    Type = "auction-cancelled"
	TypeSellingStageUpdated Type = "selling-stage-updated"
	TypeWaitRequested       Type = "wait-requested"
	TypeWaitAccepted        Type = "wait-accepted"
	TypeWaitRejected        Type = "wait-rejected"
	TypeDraftTurnAdvanced   Type = "draft-turn-advanced"
	TypeDraftInitialized    Type = "draft-initialized"
	TypeDraftStarted        Type = "draft-started"
	TypeDraftCompleted      Type = "draft-completed"
	TypeDraftReset          Type = "draft-reset"
)

// Event is the envelope every broadcaster carries
type Event struct {
	ID   uuid.UUID `json:"eventId"`
	Type Type      `json:"eventType"`
	// AuctionID is uuid.Nil for draft-level events.
	AuctionID uuid.UUID `json:"auctionId"`
	// Sequence is the version of the record the event was committed with.
	Sequence  int64           `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// New builds an event with a marshalled payload
func New(eventType Type, auctionID uuid.UUID, sequence int64, at time.Time, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		AuctionID: auctionID,
		Sequence:  sequence,
		Timestamp: at.UTC(),
		Payload:   raw,
	}, nil
}

// Decode unmarshals the payload of e into T
func Decode[T any](e Event) (T, error) {
	var v T
	if err := json.Unmarshal(e.Payload, &v); err != nil {
		return v, fmt.Errorf("failed to unmarshal %s payload: %w", e.Type, err)
	}
	return v, nil
}

// Broadcaster publishes committed events to listeners
type Broadcaster interface {
	Publish(ctx context.Context, evts ...Event) error
}

// Multi fans out to several broadcasters, attempting all of them
type Multi []Broadcaster

// Publish implements Broadcaster
func (m Multi) Publish(ctx context.Context, evts ...Event) error {
	var errs []error
	for _, b := range m {
		if err := b.Publish(ctx, evts...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events
type Nop struct{}

// Publish implements Broadcaster
func (Nop) Publish(context.Context, ...Event) error { return nil }
