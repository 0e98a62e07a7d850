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

	router "github.com/Karanveer2330/Persona-Chat-sub000/internal/adapters/http"
	wssignal "github.com/Karanveer2330/Persona-Chat-sub000/internal/adapters/signal"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/app"
	"github.com/Karanveer2330/Persona-Chat-sub000/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	policy := app.SimplePolicy{}
	registry := app.NewRegistry()
	relay := app.NewRelay(registry, policy, cfg.TelemetryThreshold)
	limiter := app.NewInviteLimiter(cfg.InviteLimit, cfg.InviteWindow)
	calls := app.NewCallManager(registry, relay, limiter, policy, cfg.InviteTimeout, cfg.AnswerTimeout)

	ctl := wssignal.NewSignalWSController(cfg, registry, calls)
	r := router.SetupRouter(ctx, cfg, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Terminal calls linger briefly so late signals are rejected with a
	// state error instead of "no such call"; sweep them out periodically.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := calls.Reap(); n > 0 {
					log.Debug().Int("reaped", n).Msg("swept terminal calls")
				}
			}
		}
	}()

	go func() {
		log.Info().Str("addr", addr).Msg("signaling server started")
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
