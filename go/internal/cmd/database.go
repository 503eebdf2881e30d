package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/skjftp/fpl-auction-sub001/go/internal/archive"
	"github.com/skjftp/fpl-auction-sub001/go/internal/auction"
	"github.com/skjftp/fpl-auction-sub001/go/internal/autobid"
	"github.com/skjftp/fpl-auction-sub001/go/internal/config"
	"github.com/skjftp/fpl-auction-sub001/go/internal/draft"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
	"github.com/skjftp/fpl-auction-sub001/go/internal/seed"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store/memory"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store/postgres"
)

// Store is everything the apps read and write. Both store drivers satisfy it.
type Store interface {
	auction.Repository
	draft.Repository
	autobid.Repository
	archive.Source
	seed.Store
}

type database struct {
	store Store
	ping  func(ctx context.Context) error
	close func()
}

func setupDatabase(ctx context.Context, cfg *config.Config) (*database, error) {
	switch cfg.Store {
	case config.StorePostgres:
		client, err := postgres.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to create database connection: %w", err)
		}
		if err := client.RunMigrations(ctx); err != nil {
			client.Close()
			return nil, err
		}
		log.Info().Str("db", cfg.Database.Redacted()).Msg("connected to database")
		return &database{store: postgres.NewStore(client.Pool()), ping: client.Ping, close: client.Close}, nil
	default:
		s := memory.New()
		if err := seedMemory(ctx, s, cfg); err != nil {
			return nil, err
		}
		return &database{
			store: s,
			ping:  func(context.Context) error { return nil },
			close: func() {},
		}, nil
	}
}

func seedMemory(ctx context.Context, s *memory.Store, cfg *config.Config) error {
	var teams []models.Team
	if cfg.Seed.DefaultTeams {
		teams = seed.DefaultTeams(cfg.Budget)
	}
	bootstrap, err := cfg.Seed.LoadBootstrap(ctx)
	if err != nil {
		return fmt.Errorf("failed to load FPL data: %w", err)
	}
	res, err := seed.Seed(ctx, s, teams, bootstrap)
	if err != nil {
		return err
	}
	log.Info().
		Int("teams", res.Teams).
		Int("clubs", res.Clubs).
		Int("players", res.Players).
		Msg("seeded memory store")
	return nil
}
