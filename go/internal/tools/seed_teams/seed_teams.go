package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/skjftp/fpl-auction-sub001/go/internal/auth"
	"github.com/skjftp/fpl-auction-sub001/go/internal/dbconfig"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
	"github.com/skjftp/fpl-auction-sub001/go/internal/seed"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store/postgres"
)

func main() {
	budget := flag.Int("budget", models.DefaultBudget, "starting budget for new teams")
	printTokens := flag.Bool("tokens", true, "print a dev token per team (needs JWT_SECRET)")
	flag.Parse()
	_ = godotenv.Load()
	ctx := context.Background()

	// 1) Connect using shared dbconfig
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

	// 2) Upsert the league's teams
	teams := seed.DefaultTeams(*budget)
	res, err := seed.Seed(ctx, postgres.NewStore(db.Pool()), teams, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed teams: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Teams seed complete: %d upserted into %s\n", res.Teams, cfg.Redacted())

	// 3) Dev tokens for the frontend
	secret := os.Getenv("JWT_SECRET")
	if !*printTokens || secret == "" {
		return
	}
	verifier, err := auth.NewVerifier(auth.Config{Secret: secret})
	if err != nil {
		fmt.Fprintf(os.Stderr, "verifier: %v\n", err)
		os.Exit(1)
	}
	for _, t := range teams {
		token, err := verifier.Issue(auth.Identity{TeamID: t.ID, TeamName: t.Name, IsAdmin: t.IsAdmin})
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token for %s: %v\n", t.Username, err)
			continue
		}
		fmt.Printf("%-8s %s\n", t.Username, token)
	}
}
