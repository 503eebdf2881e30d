package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/skjftp/fpl-auction-sub001/go/internal/auction"
	"github.com/skjftp/fpl-auction-sub001/go/internal/events"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store"
)

// Deadlines follows countdown deadlines from the event stream. A gateway
// running apart from the auction service uses it in place of the bid timer.
type Deadlines struct {
	clock clockwork.Clock

	mu        sync.Mutex
	deadlines map[uuid.UUID]time.Time
	paused    map[uuid.UUID]time.Duration
}

func NewDeadlines(clock clockwork.Clock) *Deadlines {
	return &Deadlines{
		clock:     clock,
		deadlines: make(map[uuid.UUID]time.Time),
		paused:    make(map[uuid.UUID]time.Duration),
	}
}

type timeoutPayload struct {
	TimeoutAt *time.Time `json:"timeoutAt"`
}

// Publish implements events.Broadcaster
func (d *Deadlines) Publish(_ context.Context, evts ...events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range evts {
		switch e.Type {
		case events.TypeAuctionCompleted, events.TypeAuctionCancelled:
			delete(d.deadlines, e.AuctionID)
			delete(d.paused, e.AuctionID)
			continue
		case events.TypeDraftReset:
			d.deadlines = make(map[uuid.UUID]time.Time)
			d.paused = make(map[uuid.UUID]time.Duration)
			continue
		case events.TypeWaitRequested:
			if at, ok := d.deadlines[e.AuctionID]; ok {
				d.paused[e.AuctionID] = max(at.Sub(e.Timestamp), 0)
				delete(d.deadlines, e.AuctionID)
			}
			continue
		}
		var p timeoutPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil || p.TimeoutAt == nil || p.TimeoutAt.IsZero() {
			continue
		}
		d.deadlines[e.AuctionID] = *p.TimeoutAt
		delete(d.paused, e.AuctionID)
	}
	return nil
}

// TimeRemaining is the time until the auction's deadline, or the frozen
// remainder while a wait is pending
func (d *Deadlines) TimeRemaining(auctionID uuid.UUID) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rem, ok := d.paused[auctionID]; ok {
		return rem
	}
	at, ok := d.deadlines[auctionID]
	if !ok {
		return 0
	}
	return max(at.Sub(d.clock.Now()), 0)
}

// LiveAuctionReader is the slice of the store the standalone gateway reads
type LiveAuctionReader interface {
	GetLiveAuction(ctx context.Context) (*models.Auction, error)
	GetDraftState(ctx context.Context) (*models.DraftState, error)
}

// StoreSource serves snapshots straight from the store, with countdowns
// taken from Deadlines
type StoreSource struct {
	repo      LiveAuctionReader
	deadlines *Deadlines
}

func NewStoreSource(repo LiveAuctionReader, deadlines *Deadlines) *StoreSource {
	return &StoreSource{repo: repo, deadlines: deadlines}
}

func (s *StoreSource) Current(ctx context.Context) (*models.Auction, error) {
	a, err := s.repo.GetLiveAuction(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, auction.ErrAuctionNotFound
	}
	return a, err
}

func (s *StoreSource) TimeRemaining(auctionID uuid.UUID) time.Duration {
	return s.deadlines.TimeRemaining(auctionID)
}

func (s *StoreSource) State(ctx context.Context) (*models.DraftState, error) {
	return s.repo.GetDraftState(ctx)
}
