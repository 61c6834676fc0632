// Package app wires configuration, the promo client, the session store and
// the Telegram handlers into a runnable bot.
package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"log/slog"

	coredb "github.com/m3rciful/giftbot/core/database"
	"github.com/m3rciful/giftbot/core/logger"
	coretelegram "github.com/m3rciful/giftbot/core/telegram"
	"github.com/m3rciful/giftbot/core/telegram/router"
	tgsender "github.com/m3rciful/giftbot/core/telegram/sender"
	"github.com/m3rciful/giftbot/flow"
	"github.com/m3rciful/giftbot/promo"
	"github.com/m3rciful/giftbot/session"
	"github.com/m3rciful/giftbot/storage"
)

// App holds the bot's long-lived components.
type App struct {
	cfg      *Config
	db       *sqlx.DB
	journal  *storage.RedemptionStore
	sessions *session.Store
	flow     *flow.Flow
	registry *coretelegram.Registry
}

// New bootstraps the application from validated configuration: logger first,
// then the optional journal database, then the claim flow and its handlers.
func New(cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}

	if err := logger.InitLogger(&cfg.Config); err != nil {
		return nil, fmt.Errorf("app: logger init failed: %w", err)
	}

	a := &App{
		cfg:      cfg,
		sessions: session.NewStore(cfg.Promo.SessionTTL(), session.SystemClock()),
	}

	if cfg.Storage.Enabled {
		if err := coredb.RunMigrations(cfg.Database); err != nil {
			return nil, fmt.Errorf("app: migrations failed: %w", err)
		}
		db, err := coredb.Connect(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("app: db connect failed: %w", err)
		}
		a.db = db
		a.journal = storage.NewRedemptionStore(db)
	}

	client := promo.NewClient(cfg.Promo)

	var journal flow.Journal
	if a.journal != nil {
		journal = a.journal
	}
	a.flow = flow.New(client, a.sessions, journal)

	a.registry = coretelegram.NewRegistry()
	a.registerHandlers()

	return a, nil
}

// TelegramRunOptions assembles the runtime options consumed by the core
// Telegram loop.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	if a == nil || a.cfg == nil {
		return coretelegram.RunOptions{}, fmt.Errorf("app: not initialized")
	}

	core := a.cfg.CoreConfig()

	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: core.Telegram.AdminID,
	})
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(a.registry, router.TextOptions{})...)

	return coretelegram.RunOptions{
		Config:            core,
		Registry:          a.registry,
		DispatcherOptions: tgsender.Options{},
		Middlewares:       coretelegram.DefaultMiddlewares(core, nil),
		Routes:            routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.sessions.StartJanitor(ctx, a.cfg.Promo.SweepInterval())
			logger.Info(ctx, "app", "janitor.started",
				slog.Duration("interval", a.cfg.Promo.SweepInterval()),
			)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			return a.Close()
		},
	}, nil
}

// Close releases the database handle if one was opened.
func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
