// Package app assembles the storefront: storage, services, flows, and the
// Telegram wiring, on top of the shared bootstrap pipeline.
package app

import (
	"context"

	"log/slog"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/shopbot/config"
	"github.com/m3rciful/shopbot/core/bootstrap"
	"github.com/m3rciful/shopbot/core/logger"
	coretelegram "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/core/telegram/router"
	"github.com/m3rciful/shopbot/core/telegram/state"
	"github.com/m3rciful/shopbot/shop/service"
	"github.com/m3rciful/shopbot/shop/storage"
	"github.com/m3rciful/shopbot/shop/tgui"
)

// App holds the assembled storefront ready to run.
type App struct {
	cfg      *config.Config
	db       *sqlx.DB
	registry *coretelegram.Registry
	sessions state.Manager
}

// Bootstrap initializes infrastructure and wires the shop together.
func Bootstrap(cfg *config.Config) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
		Seeders:  []bootstrap.Seeder{bootstrap.SeederFunc(storage.SeedShopInfo)},
	})
	if err != nil {
		return nil, err
	}

	store := storage.New(res.DB)
	oracle := service.NewBlockchainOracle(nil, cfg.Shop.OracleBaseURL)
	rates := service.NewRateCache(oracle, cfg.Shop.RateTTL())
	gate := service.NewPaymentGate(oracle, cfg.Shop.PaymentWindow())

	sessions := state.NewMemoryManager()
	handlers := tgui.New(tgui.Deps{
		Config: tgui.Config{
			AdminID: cfg.Core.Telegram.AdminID,
			Wallet:  cfg.Shop.WalletAddress,
		},
		Catalog:  service.NewCatalog(store),
		Cart:     service.NewStoredCart(store),
		Store:    store,
		Rates:    rates,
		Gate:     gate,
		Settle:   service.NewSettlement(store),
		Sessions: sessions,
	})

	registry := coretelegram.NewRegistry()
	handlers.Register(registry)

	return &App{
		cfg:      cfg,
		db:       res.DB,
		registry: registry,
		sessions: sessions,
	}, nil
}

// TelegramRunOptions builds the bot runtime options for the shared runner.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	routes := router.TextRoutes(a.sessions, a.registry, router.TextOptions{})
	routes = append(routes, router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: a.cfg.Core.Telegram.AdminID,
	})...)
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{}))

	mws := coretelegram.DefaultMiddlewares(a.cfg.CoreConfig(), nil)
	mws = append(mws, coretelegram.Middleware{Name: "session", Use: state.WithSession(a.sessions)})

	return coretelegram.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    a.registry,
		Middlewares: mws,
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			logger.L.With("component", "app").Info("shop ready",
				slog.String("event", "shop.ready"),
				slog.String("wallet", logger.SanitizeLimit(a.cfg.Shop.WalletAddress, 12)),
			)
			if adminID := a.cfg.Core.Telegram.AdminID; adminID != 0 {
				_ = rt.Dispatcher.Enqueue(ctx, "send", "startup", func() error {
					_, err := rt.Bot.Send(&tele.User{ID: adminID}, "🤖 Shop bot is online.")
					return err
				})
			}
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			return a.db.Close()
		},
	}, nil
}
