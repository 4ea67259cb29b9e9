package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/schollaertel/clocksynk/internal/config"
	"github.com/schollaertel/clocksynk/internal/game"
	"github.com/schollaertel/clocksynk/internal/gateway"
	"github.com/schollaertel/clocksynk/internal/store"
	"github.com/schollaertel/clocksynk/internal/store/natsbus"
	"github.com/schollaertel/clocksynk/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if cfg.PrettyLogs {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gameStore, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build game store")
	}
	defer cleanup()

	hub := gateway.NewHub(gateway.DefaultHubConfig())
	go hub.Run(ctx)

	server := gateway.NewServer(gameStore, clockwork.NewRealClock(), hub, game.Config{
		Role:                game.Role(cfg.Role),
		DefaultClockSeconds: cfg.DefaultClockSeconds,
		MaintenanceInterval: cfg.MaintenanceInterval,
		PullInterval:        cfg.PullInterval,
		CallTimeout:         cfg.StoreCallTimeout,
	})

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Handler(),
	}

	go func() {
		log.Info().
			Str("addr", cfg.HTTPAddr).
			Str("role", cfg.Role).
			Str("store", cfg.StoreBackend).
			Str("default_game", cfg.DefaultGameID).
			Msg("clocksynk listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	server.Shutdown()
	log.Info().Msg("shutdown complete")
}

// buildStore assembles the configured persistence layer, optionally wrapped
// with the NATS broadcast bus.
func buildStore(ctx context.Context, cfg config.Config) (store.GameStateStore, func(), error) {
	var (
		inner   store.GameStateStore
		cleanup = func() {}
	)

	switch cfg.StoreBackend {
	case "postgres":
		pg, err := postgres.New(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, nil, err
		}
		inner = pg
		cleanup = pg.Close
	default:
		inner = store.NewMemory()
	}

	if !cfg.NATS.Enabled {
		return inner, cleanup, nil
	}

	busCfg := natsbus.DefaultConfig()
	busCfg.URL = cfg.NATS.URL
	busCfg.StreamName = cfg.NATS.Stream
	bus, err := natsbus.Wrap(ctx, inner, busCfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	innerCleanup := cleanup
	return bus, func() {
		bus.Close()
		innerCleanup()
	}, nil
}
