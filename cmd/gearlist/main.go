package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/vindennt/gearlist/internal/api"
	"github.com/vindennt/gearlist/internal/auth"
	"github.com/vindennt/gearlist/internal/config"
	"github.com/vindennt/gearlist/internal/db"
	"github.com/vindennt/gearlist/internal/guest"
	"github.com/vindennt/gearlist/internal/lists"
	"github.com/vindennt/gearlist/internal/logging"
	"github.com/vindennt/gearlist/internal/session"
	"github.com/vindennt/gearlist/internal/storage"
	"github.com/vindennt/gearlist/internal/ws"
)

const (
	// Matches the guest cookie lifetime.
	guestTTL = 24 * time.Hour

	// Signed in users idle this long have their cached lists dropped.
	listIdleTimeout = 2 * time.Hour

	pruneInterval   = 10 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logs)
	logger.Info().Str("env", cfg.Env).Msg("Starting gearlist server...")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Could not start server")
	}
}

// guestStorage picks Redis when configured, in-process memory otherwise.
func guestStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (storage.Storage, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info().Msg("guest storage: memory")
		return storage.NewMemory(guestTTL), func() {}, nil
	}

	rdb, err := storage.NewRedis(ctx, cfg.RedisURL, "gearlist:", guestTTL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Msg("guest storage: redis")
	return rdb, func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing redis")
		}
	}, nil
}

// Runs the HTTP server until it fails or the process is signalled
func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	authClient := auth.NewClient(cfg)
	tokens := session.NewTokenStore(cfg.Production(), cfg.CookieHashKey)
	dbClient := db.NewClient(cfg)

	store, closeStore, err := guestStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	guests := guest.NewRegistry(store, logger)
	go guests.Run(ctx, pruneInterval, guestTTL)

	userLists := lists.NewRegistry(dbClient, logger)
	go userLists.Run(ctx, pruneInterval, listIdleTimeout)

	srv := api.NewServer(api.Deps{
		Config:    cfg,
		Logger:    logger,
		Auth:      authClient,
		Tokens:    tokens,
		Refresher: session.NewRefresher(authClient, tokens, logger),
		Lists:     userLists,
		Gear:      dbClient,
		Guests:    guests,
		Feed:      ws.NewFeed(cfg.AllowedOrigin, logger),
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logger.Info().Str("addr", l.Addr().String()).Msg("Server listening")

	s := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		// No WriteTimeout: feed connections stay open. Each websocket write
		// carries its own deadline.
		IdleTimeout: 2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- s.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		logger.Error().Err(err).Msg("Failed to serve")
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down server...")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.Shutdown(shutdownCtx)
}
