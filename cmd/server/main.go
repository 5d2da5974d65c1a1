package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "kahve-ruleti-server/internal/adapters/http"
	wsignal "kahve-ruleti-server/internal/adapters/signal"
	"kahve-ruleti-server/internal/app"
	"kahve-ruleti-server/internal/config"
	"kahve-ruleti-server/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	store := core.NewStore()
	registry := app.NewRegistry()
	lifecycle := app.NewLifecycle(store, registry, app.Timeouts{
		OpenRoomTTL:       cfg.OpenRoomTTL,
		ResolvedRetention: cfg.ResolvedRetention,
		EvictionGrace:     cfg.EvictionGrace,
	})
	defer lifecycle.Close()

	limiter := wsignal.NewRateLimiter(cfg.JoinRateLimit, cfg.JoinRateInterval)
	ws := wsignal.NewController(lifecycle, registry, limiter, cfg.ReadLimit)

	r := router.SetupRouter(ctx, cfg, lifecycle, ws)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Kahve Ruleti server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
