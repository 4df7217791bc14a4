// cmd/lostfound/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"lostfound/internal/app"
	"lostfound/internal/httpapi"
	"lostfound/internal/platform/config"
	"lostfound/internal/platform/logging"
	"lostfound/internal/platform/otel"
)

func main() {
	configPath := flag.String("config", os.Getenv("LOSTFOUND_CONFIG"), "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, cfg.ServiceName, cfg.OTel.Enabled, cfg.OTel.Endpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("failed to flush traces")
		}
	}()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to start")
	}
	defer a.Close()

	router := httpapi.NewRouter(httpapi.Deps{
		Items:     a.Items,
		Matching:  a.Matching,
		Claims:    a.Claims,
		Resolver:  a.Resolver,
		ActionLog: a.ActionLog,
		Health:    a.DB,
		Limiter:   httpapi.NewActorLimiter(cfg.Submit.RatePerMinute, cfg.Submit.Burst),
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("driver", cfg.Database.Driver).Msg("starting lost-and-found service")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
