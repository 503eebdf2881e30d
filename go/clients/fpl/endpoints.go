package fpl

const (
	// Base URL
	BaseURL = "https://fantasy.premierleague.com/api"

	// API Endpoints
	BootstrapEndpoint = "/bootstrap-static/"

	UserAgent = "fpl-auction-seed/1.0"
)
