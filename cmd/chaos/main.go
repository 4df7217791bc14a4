// cmd/chaos/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog/log"

	"lostfound/internal/app"
	"lostfound/internal/chaos"
	"lostfound/internal/platform/config"
	"lostfound/internal/platform/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("LOSTFOUND_CONFIG"), "path to a TOML config file")
	concurrency := flag.Int("concurrency", 16, "parallel callers per experiment")
	observe := flag.Duration("observe", 10*time.Second, "observation window per experiment")
	deadWebhook := flag.String("dead-webhook", "http://127.0.0.1:1/notify", "unreachable notification endpoint; empty skips the outage experiment")
	pause := flag.Duration("pause", 5*time.Second, "pause between experiments")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New("lostfound-chaos", cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start")
	}
	defer a.Close()

	engine := chaos.NewEngine(chaos.Env{
		DB:       a.DB,
		Locks:    a.Locks,
		Items:    a.Items,
		Claims:   a.Claims,
		Resolver: a.Resolver,
	}, time.Second, logger)
	engine.RegisterDefaults(chaos.Settings{
		Concurrency: *concurrency,
		Observe:     *observe,
		DeadWebhook: *deadWebhook,
	})

	failures, err := engine.ExecuteGameDay(ctx, chaos.GameDay{
		Name:      "Weekly Chaos Game Day",
		Date:      time.Now(),
		Scenarios: engine.Experiments(),
		Pause:     *pause,
	})
	if err != nil {
		logger.Error().Err(err).Msg("game day interrupted")
	}
	if failures > 0 {
		logger.Error().Int("failures", failures).Msg("hypotheses violated")
		a.Close()
		os.Exit(1)
	}
}
