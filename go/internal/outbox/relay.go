package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// RelayConfig tunes delivery retries and batch size
type RelayConfig struct {
	MaxRetries int           `yaml:"max_retries" env:"OUTBOX_MAX_RETRIES"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"OUTBOX_RETRY_DELAY"`
	BatchSize  int           `yaml:"batch_size" env:"OUTBOX_BATCH_SIZE"`
	// HealthAddr and StaleAfter configure the relay process's health endpoint.
	HealthAddr string        `yaml:"health_addr" env:"OUTBOX_HEALTH_ADDR"`
	StaleAfter time.Duration `yaml:"stale_after" env:"OUTBOX_STALE_AFTER"`
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		MaxRetries: 5,
		RetryDelay: 200 * time.Millisecond,
		BatchSize:  100,
		HealthAddr: ":8082",
		StaleAfter: time.Minute,
	}
}

// Relay publishes outbox rows and marks them sent. Rows are published at
// least once; consumers dedupe on the event id.
type Relay struct {
	store     Store
	publisher Publisher
	cfg       RelayConfig
	clock     clockwork.Clock

	// mu serialises a notification against a fallback sweep so one row is
	// not published twice by the same process.
	mu        sync.Mutex
	processed atomic.Uint64
	lastEvent atomic.Int64
}

func NewRelay(store Store, publisher Publisher, cfg RelayConfig, clock clockwork.Clock) *Relay {
	return &Relay{store: store, publisher: publisher, cfg: cfg, clock: clock}
}

// Stats returns the number of rows delivered and when the last one went out
func (r *Relay) Stats() (uint64, time.Time) {
	var last time.Time
	if ns := r.lastEvent.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return r.processed.Load(), last
}

// HandleID delivers the row announced by a notification
func (r *Relay) HandleID(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.store.FetchByID(ctx, id)
	if errors.Is(err, ErrNotPending) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch outbox event: %w", err)
	}
	return r.deliver(ctx, *rec)
}

// ProcessUnsent sweeps one batch of rows the notifications missed
func (r *Relay) ProcessUnsent(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	unsent, err := r.store.FetchUnsent(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, rec := range unsent {
		if err := r.deliver(ctx, rec); err != nil {
			log.Error().Err(err).Str("event_id", rec.ID.String()).Msg("failed to deliver outbox event")
			continue
		}
		sent++
	}
	if len(unsent) > 0 {
		log.Info().Int("sent", sent).Int("total", len(unsent)).Msg("processed unsent outbox events")
	}
	return sent, nil
}

func (r *Relay) deliver(ctx context.Context, rec Record) error {
	if err := r.publishWithRetry(ctx, rec); err != nil {
		if ferr := r.store.RecordFailure(ctx, rec.ID, err); ferr != nil {
			log.Error().Err(ferr).Str("event_id", rec.ID.String()).Msg("failed to record outbox failure")
		}
		return err
	}
	if err := r.store.MarkSent(ctx, rec.ID, rec.MessageHeaders()); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}

	r.processed.Add(1)
	r.lastEvent.Store(r.clock.Now().UnixNano())
	log.Debug().
		Str("event_id", rec.ID.String()).
		Str("event_type", rec.EventType).
		Msg("published and marked event as sent")
	return nil
}

// publishWithRetry backs off linearly between attempts
func (r *Relay) publishWithRetry(ctx context.Context, rec Record) error {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 && r.cfg.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.clock.After(r.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := r.publisher.Publish(ctx, rec); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", rec.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}
		if attempt > 0 {
			log.Info().Int("attempt", attempt+1).Str("event_id", rec.ID.String()).Msg("publish succeeded after retry")
		}
		return nil
	}
	return fmt.Errorf("publish failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}
