// internal/app/app.go
// Package app wires configuration into the running service graph.
package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"lostfound/internal/actionlog"
	"lostfound/internal/claims"
	"lostfound/internal/items"
	"lostfound/internal/matching"
	"lostfound/internal/notify"
	"lostfound/internal/platform/config"
	"lostfound/internal/platform/db"
	"lostfound/internal/platform/lock"
)

type App struct {
	DB        *db.DB
	Locks     *lock.Keyed
	Items     items.Service
	Matching  matching.Service
	Claims    claims.Service
	Resolver  claims.Resolver
	ActionLog *actionlog.Store
}

// New opens and migrates the database and builds every service.
func New(cfg config.Config, logger zerolog.Logger) (*App, error) {
	database, err := db.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(logger); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	locks := lock.NewKeyed(cfg.LockTimeout)
	engine := matching.NewService(database, MatchingConfig(cfg.Matching), logger)
	notifier := Notifier(cfg.Notify, logger)

	return &App{
		DB:        database,
		Locks:     locks,
		Items:     items.NewService(database, locks, engine, logger),
		Matching:  engine,
		Claims:    claims.NewService(database, locks, notifier, engine, logger),
		Resolver:  claims.NewResolver(database, locks, notifier, engine, logger),
		ActionLog: actionlog.NewStore(database),
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

func MatchingConfig(m config.Matching) matching.Config {
	return matching.Config{
		WindowBefore: m.WindowBefore,
		WindowAfter:  m.WindowAfter,
		Threshold:    m.Threshold,
		TextWeight:   m.TextWeight,
		TimeWeight:   m.TimeWeight,
		DecayDays:    m.DecayDays,
		Workers:      m.Workers,
	}
}

// Notifier posts to the configured webhook, or only logs when none is set.
func Notifier(n config.Notify, logger zerolog.Logger) notify.Notifier {
	if n.WebhookURL == "" {
		return notify.NewLogNotifier(logger)
	}
	return notify.NewWebhook(n.WebhookURL, n.Timeout, logger)
}
