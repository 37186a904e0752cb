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

	"thumbgen/internal/api/v1/router"
	"thumbgen/internal/config"
	"thumbgen/internal/logger"
	"thumbgen/internal/service"
)

func main() {
	// 1. Load configuration
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		l := logger.New("error")
		l.Fatal().Err(err).Msg("Error loading config")
	}

	log := logger.New(cfg.LogLevel)
	if envErr != nil {
		log.Warn().Msg("No .env file found")
	}

	ctx := context.Background()

	// 2. Fill secrets that were not provided through the environment
	if cfg.GCPSecretsProjectID != "" {
		sm, err := service.NewSecretManagerService(ctx, cfg.GCPSecretsProjectID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Secret Manager client")
		}
		if err := service.ResolveConfigSecrets(ctx, cfg, sm, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to resolve secrets")
		}
		_ = sm.Close()
	}

	// 3. Build router
	r, cleanup, err := router.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build router")
	}
	defer cleanup()

	// 4. Create HTTP server. Writes must outlive a full generation call.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.GenerationTimeout() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Listen failed")
		}
	}()

	// 5. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutdown signal received, exiting...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return
	}
	log.Info().Msg("Server shut down gracefully")
}
