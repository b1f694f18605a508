package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fuelcard-client/config"
	"fuelcard-client/internal/devserver"
	pgStorage "fuelcard-client/internal/devserver/postgres"
	"fuelcard-client/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("store", cfg.DevServer.Store).
		Int("port", cfg.DevServer.Port).
		Msg("Starting fuel-card dev authority")

	ctx := context.Background()

	var store devserver.Store
	switch cfg.DevServer.Store {
	case "postgres":
		pool, err := pgStorage.NewPool(ctx, cfg.DevServer.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		if err := pgStorage.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply schema")
		}
		store = pgStorage.NewStore(pool)
		log.Info().Msg("PostgreSQL store ready")
	default:
		store = devserver.NewMemoryStore()
		log.Info().Msg("In-memory store ready (state is lost on exit)")
	}

	tokens := devserver.NewTokenService(cfg.DevServer.JWT.Secret, cfg.DevServer.JWT.Expiry, cfg.DevServer.JWT.Issuer)
	router := devserver.New(store, tokens, log).Router()

	addr := fmt.Sprintf("%s:%d", cfg.DevServer.Host, cfg.DevServer.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
