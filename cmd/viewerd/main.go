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

	"github.com/openyouth/livehall/internal/adapters/httpapi"
	"github.com/openyouth/livehall/internal/adapters/render"
	"github.com/openyouth/livehall/internal/adapters/rtc"
	"github.com/openyouth/livehall/internal/config"
	"github.com/openyouth/livehall/internal/core"
	"github.com/openyouth/livehall/internal/credentials"
	"github.com/openyouth/livehall/internal/directory"
	"github.com/openyouth/livehall/internal/viewer"
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

	resolver := directory.NewClient(cfg.DirectoryURL, cfg.DirectoryRetryMax)
	creds := credentials.NewClient(cfg.CredentialURL)

	mgr := viewer.NewManager(
		resolver,
		creds,
		func() core.Transport {
			return rtc.New(rtc.Config{
				SignalURL:  cfg.SignalURL,
				ICEServers: cfg.ICEServers,
				ReadLimit:  cfg.ReadLimit,
				PingPeriod: cfg.PingPeriod,
			})
		},
		func() core.RenderSurface { return render.NewStreamSurface() },
		viewer.Options{
			HealthDebounce:   cfg.HealthDebounce,
			FirstFrameChecks: cfg.FirstFrameChecks,
		},
	)

	go mgr.Run(ctx, cfg.ViewerTTL)

	r := httpapi.SetupRouter(ctx, cfg, mgr)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Livehall viewer started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	mgr.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
