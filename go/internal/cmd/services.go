package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/skjftp/fpl-auction-sub001/go/internal/archive"
	"github.com/skjftp/fpl-auction-sub001/go/internal/auction"
	"github.com/skjftp/fpl-auction-sub001/go/internal/autobid"
	"github.com/skjftp/fpl-auction-sub001/go/internal/bidtimer"
	"github.com/skjftp/fpl-auction-sub001/go/internal/config"
	"github.com/skjftp/fpl-auction-sub001/go/internal/draft"
	"github.com/skjftp/fpl-auction-sub001/go/internal/events"
	"github.com/skjftp/fpl-auction-sub001/go/internal/gateway"
	"github.com/skjftp/fpl-auction-sub001/go/internal/ledger"
	"github.com/skjftp/fpl-auction-sub001/go/internal/lock"
)

// Services holds the connect services plus the background loops that must
// run for them to work
type Services struct {
	Auction *auction.Service
	Draft   *draft.Service
	AutoBid *autobid.Service
	Gateway *gateway.ConnectionManager

	auctions *auction.App
	bus      *events.Bus
	timer    *bidtimer.Timer
	runners  []runner
	closers  []func()
}

// runner is a named background loop
type runner struct {
	name string
	run  func(ctx context.Context) error
}

func setupServices(ctx context.Context, cfg *config.Config, db *database) (*Services, error) {
	// Wire up dependency injection chain
	// Store → App layer → Service layer, with the bus fanning events out
	clock := clockwork.NewRealClock()
	bus := events.NewBus()
	svc := &Services{bus: bus}

	locker, err := setupLock(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closer, ok := locker.(interface{ Close() error }); ok {
		svc.closers = append(svc.closers, func() { _ = closer.Close() })
	}

	// Draft
	scheduler := draft.NewScheduler(db.store, bus, draft.WithClock(clock), draft.WithBudget(cfg.Budget))
	svc.Draft = draft.NewService(scheduler)

	// Auction, with the timer calling back into it
	timer := bidtimer.New(nil, cfg.Timers, bidtimer.WithClock(clock), bidtimer.WithWorkers(cfg.TimerWorkers))
	auctions := auction.NewApp(db.store, scheduler, timer, locker, bus, ledger.New(cfg.Limits), cfg.Auction, clock)
	timer.SetHandler(auctions)
	svc.timer = timer
	svc.auctions = auctions
	svc.Auction = auction.NewService(auctions)

	// Auto-bid
	svc.AutoBid = autobid.NewService(autobid.NewApp(db.store, auctions, clock))
	evaluator := autobid.NewEvaluator(db.store, auctions)
	autobidSub := bus.Subscribe(autobid.Triggers...)
	svc.runners = append(svc.runners, runner{"autobid", func(ctx context.Context) error {
		return evaluator.Run(ctx, autobidSub)
	}})

	// Websocket gateway
	svc.Gateway = gateway.NewConnectionManager(cfg.Gateway, gateway.NewSnapshotter(auctions, scheduler, clock))
	gatewaySub := bus.Subscribe()
	svc.runners = append(svc.runners,
		runner{"gateway", func(ctx context.Context) error {
			svc.Gateway.Start(ctx)
			return nil
		}},
		runner{"gateway-bus", func(ctx context.Context) error {
			svc.Gateway.RunBus(ctx, gatewaySub)
			return nil
		}},
	)

	// Archive
	if cfg.Archive.Enabled {
		writer, err := archive.NewS3Writer(ctx, cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("failed to create archive writer: %w", err)
		}
		archiver := archive.New(writer, db.store, clock)
		archiveSub := bus.Subscribe(archive.Triggers...)
		svc.runners = append(svc.runners, runner{"archive", func(ctx context.Context) error {
			return archiver.Run(ctx, archiveSub)
		}})
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("archiving finished auctions")
	}

	return svc, nil
}

// Close releases the bus subscriptions and the lock backend
func (s *Services) Close() {
	s.bus.Close()
	for _, c := range s.closers {
		c()
	}
}

func setupLock(ctx context.Context, cfg *config.Config) (lock.Locker, error) {
	if cfg.Lock.Driver != config.LockRedis {
		return lock.NewLocal(cfg.Lock.Timeout), nil
	}
	redisCfg := cfg.Lock.Redis
	if redisCfg.Timeout == 0 {
		redisCfg.Timeout = cfg.Lock.Timeout
	}
	locker, err := lock.NewRedis(ctx, redisCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect lock backend: %w", err)
	}
	return locker, nil
}
