package main

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/skjftp/fpl-auction-sub001/go/internal/auction"
	"github.com/skjftp/fpl-auction-sub001/go/internal/auth"
	"github.com/skjftp/fpl-auction-sub001/go/internal/autobid"
	"github.com/skjftp/fpl-auction-sub001/go/internal/config"
	"github.com/skjftp/fpl-auction-sub001/go/internal/draft"
	"github.com/skjftp/fpl-auction-sub001/go/internal/gateway"
)

func setupServer(cfg *config.Config, services *Services, verifier *auth.Verifier, ping func(context.Context) error) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedOrigins: cfg.CORSOrigins,
		AllowedHeaders: []string{"*"},
	})

	// Register services
	registerServices(mux, services, verifier)

	// Websocket fan-out and state snapshot
	gatewayRoutes := gateway.NewHandler(services.Gateway, verifier).Routes()
	mux.Handle("/ws/", gatewayRoutes)
	mux.Handle("/api/", gatewayRoutes)

	// Add health check endpoint
	setupHealthCheck(mux, ping)

	// Wrap with CORS
	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func registerServices(mux *http.ServeMux, services *Services, verifier *auth.Verifier) {
	interceptors := connect.WithInterceptors(auth.NewInterceptor(verifier))

	// Register auction service
	auctionPath, auctionHandler := auction.NewHandler(services.Auction, interceptors)
	mux.Handle(auctionPath, auctionHandler)

	// Register draft service
	draftPath, draftHandler := draft.NewHandler(services.Draft, interceptors)
	mux.Handle(draftPath, draftHandler)

	// Register auto-bid service
	autobidPath, autobidHandler := autobid.NewHandler(services.AutoBid, interceptors)
	mux.Handle(autobidPath, autobidHandler)
}

func setupHealthCheck(mux *http.ServeMux, ping func(context.Context) error) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := ping(r.Context()); err != nil {
			log.Warn().Err(err).Msg("health check failed")
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
