package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/skjftp/fpl-auction-sub001/go/clients/fpl"
	"github.com/skjftp/fpl-auction-sub001/go/internal/dbconfig"
	"github.com/skjftp/fpl-auction-sub001/go/internal/seed"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store/postgres"
)

func main() {
	file := flag.String("file", "", "saved bootstrap-static JSON; fetched from the FPL API when empty")
	baseURL := flag.String("base-url", fpl.BaseURL, "FPL API base URL")
	flag.Parse()
	_ = godotenv.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// 1) Load bootstrap data
	src := seed.Config{FPLFile: *file, FetchFPL: *file == "", FPLBaseURL: *baseURL}
	bootstrap, err := src.LoadBootstrap(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load bootstrap: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	cfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "db config: %v\n", err)
		os.Exit(1)
	}
	db, err := postgres.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// 3) Upsert clubs, then players
	res, err := seed.Seed(ctx, postgres.NewStore(db.Pool()), nil, bootstrap)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf(
		"Players seed complete: %d clubs, %d players, %d skipped\n",
		res.Clubs, res.Players, len(res.Skipped),
	)
}
