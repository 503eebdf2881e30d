// Package bidtimer runs the per-auction countdown whose expiry drives
// stage advancement.
package bidtimer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// ExpiryHandler is called from the worker pool when a countdown runs out.
// version is the auction version the timer was armed at.
type ExpiryHandler interface {
	HandleExpiry(ctx context.Context, auctionID uuid.UUID, version int64) error
}

// Durations are the countdown lengths per stage
type Durations struct {
	Bidding  time.Duration `yaml:"bidding" env:"BID_TIMER_BIDDING"`
	Selling1 time.Duration `yaml:"selling_1" env:"BID_TIMER_SELLING_1"`
	Selling2 time.Duration `yaml:"selling_2" env:"BID_TIMER_SELLING_2"`
}

// DefaultDurations returns 30s of bidding followed by two 10s selling stages
func DefaultDurations() Durations {
	return Durations{
		Bidding:  30 * time.Second,
		Selling1: 10 * time.Second,
		Selling2: 10 * time.Second,
	}
}

// For returns the countdown length for stage
func (d Durations) For(stage models.AuctionStatus) time.Duration {
	switch stage {
	case models.AuctionStatusSelling1:
		return d.Selling1
	case models.AuctionStatusSelling2:
		return d.Selling2
	default:
		return d.Bidding
	}
}

type expiry struct {
	auctionID uuid.UUID
	version   int64
	stage     models.AuctionStatus
}

type armed struct {
	timer    clockwork.Timer
	stop     chan struct{}
	version  int64
	stage    models.AuctionStatus
	deadline time.Time
}

// Timer owns one countdown per auction and a worker pool that runs expiry callbacks
type Timer struct {
	clock      Clock
	durations  Durations
	instanceID string
	numWorkers int

	handlerMu sync.RWMutex
	handler   ExpiryHandler

	workCh chan expiry
	done   chan struct{}
	once   sync.Once

	activeTimers   map[uuid.UUID]*armed
	activeTimersMu sync.Mutex
}

// Option configures a Timer
type Option func(*Timer)

// WithClock replaces the real clock
func WithClock(c Clock) Option {
	return func(t *Timer) { t.clock = c }
}

// WithWorkers sets the size of the expiry worker pool
func WithWorkers(n int) Option {
	return func(t *Timer) {
		if n > 0 {
			t.numWorkers = n
		}
	}
}

// New creates a Timer. The handler may be nil and set later with SetHandler.
func New(handler ExpiryHandler, durations Durations, opts ...Option) *Timer {
	t := &Timer{
		clock:        clockwork.NewRealClock(),
		durations:    durations,
		instanceID:   uuid.New().String()[:8],
		numWorkers:   4,
		handler:      handler,
		done:         make(chan struct{}),
		activeTimers: make(map[uuid.UUID]*armed),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.workCh = make(chan expiry, t.numWorkers*2)
	return t
}

// SetHandler wires the expiry callback
func (t *Timer) SetHandler(h ExpiryHandler) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	t.handler = h
}

// Durations returns the configured countdown lengths
func (t *Timer) Durations() Durations {
	return t.durations
}

// Arm starts the full countdown for stage, replacing any running one.
// Arming the same auction at the same version and stage twice is a no-op.
func (t *Timer) Arm(auctionID uuid.UUID, stage models.AuctionStatus, version int64) time.Time {
	return t.ArmFor(auctionID, stage, version, t.durations.For(stage))
}

// ArmFor is Arm with an explicit duration, used to resume a paused countdown
func (t *Timer) ArmFor(auctionID uuid.UUID, stage models.AuctionStatus, version int64, d time.Duration) time.Time {
	t.activeTimersMu.Lock()
	if existing, ok := t.activeTimers[auctionID]; ok && existing.version == version && existing.stage == stage {
		t.activeTimersMu.Unlock()
		log.Debug().
			Str("auction_id", auctionID.String()).
			Int64("version", version).
			Msg("skipping duplicate arm - already scheduled for this version")
		return existing.deadline
	}

	a := &armed{
		timer:    t.clock.NewTimer(d),
		stop:     make(chan struct{}),
		version:  version,
		stage:    stage,
		deadline: t.clock.Now().Add(d),
	}
	if existing, ok := t.activeTimers[auctionID]; ok {
		stopArmed(existing)
		log.Debug().Str("auction_id", auctionID.String()).Msg("replaced existing timer")
	}
	t.activeTimers[auctionID] = a
	t.activeTimersMu.Unlock()

	go t.wait(auctionID, a)

	log.Debug().
		Str("auction_id", auctionID.String()).
		Str("stage", string(stage)).
		Int64("version", version).
		Dur("duration", d).
		Msg("armed bid timer")
	return a.deadline
}

func (t *Timer) wait(auctionID uuid.UUID, a *armed) {
	select {
	case <-a.timer.Chan():
		if !t.removeTimer(auctionID, a) {
			return
		}
		select {
		case t.workCh <- expiry{auctionID: auctionID, version: a.version, stage: a.stage}:
			log.Debug().Str("auction_id", auctionID.String()).Msg("timer fired - enqueued for processing")
		case <-t.done:
		}
	case <-a.stop:
	case <-t.done:
		stopAndDrainTimer(a.timer)
	}
}

// Cancel stops the countdown for auctionID and returns the time it had left
func (t *Timer) Cancel(auctionID uuid.UUID) (time.Duration, bool) {
	t.activeTimersMu.Lock()
	defer t.activeTimersMu.Unlock()

	a, ok := t.activeTimers[auctionID]
	if !ok {
		return 0, false
	}
	stopArmed(a)
	delete(t.activeTimers, auctionID)
	log.Debug().Str("auction_id", auctionID.String()).Msg("cancelled bid timer")
	return t.remaining(a), true
}

// Remaining is the time left on the auction's countdown
func (t *Timer) Remaining(auctionID uuid.UUID) (time.Duration, bool) {
	t.activeTimersMu.Lock()
	defer t.activeTimersMu.Unlock()

	a, ok := t.activeTimers[auctionID]
	if !ok {
		return 0, false
	}
	return t.remaining(a), true
}

func (t *Timer) remaining(a *armed) time.Duration {
	left := a.deadline.Sub(t.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

// removeTimer deletes a fired timer, unless it was already replaced
func (t *Timer) removeTimer(auctionID uuid.UUID, a *armed) bool {
	t.activeTimersMu.Lock()
	defer t.activeTimersMu.Unlock()
	if t.activeTimers[auctionID] != a {
		return false
	}
	delete(t.activeTimers, auctionID)
	return true
}

func stopArmed(a *armed) {
	stopAndDrainTimer(a.timer)
	close(a.stop)
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// Run starts the worker pool and blocks until ctx is cancelled
func (t *Timer) Run(ctx context.Context) error {
	log.Info().Str("instance", t.instanceID).Int("workers", t.numWorkers).Msg("bid timer started")

	var wg sync.WaitGroup
	for i := 0; i < t.numWorkers; i++ {
		wg.Add(1)
		go t.worker(ctx, &wg, i)
	}

	<-ctx.Done()
	log.Info().Str("instance", t.instanceID).Msg("shutting down bid timer")
	t.once.Do(func() { close(t.done) })
	wg.Wait()

	t.activeTimersMu.Lock()
	for id, a := range t.activeTimers {
		stopArmed(a)
		log.Debug().Str("auction_id", id.String()).Msg("cancelled timer on shutdown")
	}
	t.activeTimers = make(map[uuid.UUID]*armed)
	t.activeTimersMu.Unlock()
	return nil
}

// worker processes expiries from the work channel
func (t *Timer) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-t.workCh:
			t.handlerMu.RLock()
			h := t.handler
			t.handlerMu.RUnlock()
			if h == nil {
				log.Warn().Str("auction_id", e.auctionID.String()).Msg("timer fired with no handler")
				continue
			}

			log.Debug().
				Str("auction_id", e.auctionID.String()).
				Str("stage", string(e.stage)).
				Str("instance", t.instanceID).
				Int("worker_id", workerID).
				Msg("worker handling expiry")

			if err := h.HandleExpiry(ctx, e.auctionID, e.version); err != nil {
				log.Error().
					Err(err).
					Str("auction_id", e.auctionID.String()).
					Str("instance", t.instanceID).
					Int("worker_id", workerID).
					Msg("expiry handling failed")
			}
		}
	}
}
