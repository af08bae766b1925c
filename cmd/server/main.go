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
	"golang.org/x/time/rate"

	router "github.com/mellivod/Lounge/internal/adapters/http"
	"github.com/mellivod/Lounge/internal/adapters/ws"
	"github.com/mellivod/Lounge/internal/app"
	"github.com/mellivod/Lounge/internal/auth"
	"github.com/mellivod/Lounge/internal/clients"
	"github.com/mellivod/Lounge/internal/config"
	"github.com/mellivod/Lounge/internal/core"
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
		log.Fatal().Err(err).Msg("failed to load config")
	}

	gateway := core.NewGateway()
	rooms := core.NewRegistry(gateway)
	playback := core.NewPlayback()
	rooms.OnDestroy(playback.Stop)
	validator := app.NewAntiCheat(cfg.ClockTolerance, cfg.MaxHealth)
	games := app.NewManager(gateway, validator, cfg.DisconnectGrace, cfg.FinishedGrace)
	reaper := app.NewReaper(games, cfg.ReaperInterval, cfg.IdleThreshold)

	authenticator := auth.NewAuthenticator(auth.DefaultConfig(cfg.Secret))

	ctl := &ws.Controller{
		Auth:         authenticator,
		Gateway:      gateway,
		Rooms:        rooms,
		Playback:     playback,
		Games:        games,
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		CommandRate:  rate.Limit(cfg.CommandRate),
		CommandBurst: cfg.CommandBurst,
	}

	go gateway.RunSync(ctx, cfg.SyncInterval, playback, rooms)
	go reaper.Run(ctx)

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Controller: ctl,
		Auth:       authenticator,
		Exchange:   clients.NewExchangeClient(cfg.ExchangeURL),
		Chat:       clients.NewChatClient(cfg.ChatURL),
		Store:      clients.NewStoreClient(cfg.StoreURL),
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Lounge server started")
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
