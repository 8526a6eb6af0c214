// Package bootstrap wires the object graph. All process-wide state lives in
// one App value; the logger is the only global.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tradepulse/api"
	"tradepulse/cache"
	"tradepulse/config"
	"tradepulse/discovery"
	"tradepulse/exchange"
	"tradepulse/llm"
	"tradepulse/logger"
	"tradepulse/manager"
	"tradepulse/market"
	"tradepulse/notify"
	"tradepulse/scanner"
	"tradepulse/scheduler"
	"tradepulse/settings"
	"tradepulse/store"
	"tradepulse/trader"
	"tradepulse/types"
)

// App holds the wired components in dependency order.
type App struct {
	cfg       *config.Config
	store     *store.Store
	settings  *settings.Service
	cache     *cache.Cache
	exchange  *exchange.Binance
	stream    *market.PriceStream
	market    *market.Data
	llm       *llm.Client
	notifier  types.Notifier
	trader    *trader.Trader
	manager   *manager.Manager
	scanner   *scanner.Scanner
	scheduler *scheduler.Scheduler
	api       *api.Server
}

// New builds the whole graph: config → logger → store → settings → cache →
// exchange → pricestream → market → llm → notifier → trader → manager →
// scanner → scheduler → api.
func New(cfg *config.Config) (*App, error) {
	if err := logger.Init(&logger.Config{Level: cfg.LogLevel, File: cfg.LogFile}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	svc, err := settings.New(st.Settings())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init settings: %w", err)
	}

	c := cache.New()
	ex := exchange.New(cfg.BinanceAPIKey, cfg.BinanceSecretKey, cfg.BinanceTestnet, c)
	stream := market.NewPriceStream(c)
	md := market.NewData(ex, c)

	models := append([]string{svc.Str(settings.KeyGeminiModel)},
		svc.List(settings.KeyGeminiFallbackModels)...)
	client := llm.NewClient(cfg.GeminiAPIKey, models)

	notifier := buildNotifier(cfg, svc)

	tr := trader.New(ex, md, st, svc, notifier).WithFeed(stream)
	mgr := manager.New(st, svc, ex, tr, client, notifier, md)

	screener := discovery.NewScreener(
		svc.Str(settings.KeyScreenerAPIURL), svc.Str(settings.KeyScreenerAPIKey), c)
	trending := discovery.NewTrending(svc.Str(settings.KeyTrendingAPIURL), c)
	sc := scanner.New(ex, md, screener, trending, client, tr, st, svc, notifier)

	sch := scheduler.New(svc, client, cfg.GeminiAPIKey)
	srv := api.NewServer(st, svc, tr, mgr, sc, sch, cfg.APIServerPort)

	app := &App{
		cfg: cfg, store: st, settings: svc, cache: c,
		exchange: ex, stream: stream, market: md, llm: client,
		notifier: notifier, trader: tr, manager: mgr,
		scanner: sc, scheduler: sch, api: srv,
	}
	app.registerJobs()
	return app, nil
}

func buildNotifier(cfg *config.Config, svc *settings.Service) types.Notifier {
	if !svc.Bool(settings.KeyTelegramEnabled) {
		return notify.Noop{}
	}
	tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		logger.Warnf("⚠️ Telegram disabled: %v", err)
		return notify.Noop{}
	}
	return tg
}

func (a *App) registerJobs() {
	a.scheduler.Register(scheduler.JobPositionSync,
		settings.KeyPositionSyncIntervalSeconds, "", func(ctx context.Context) {
			if err := a.manager.Reconcile(ctx); err != nil {
				logger.Errorf("❌ Position sync failed: %v", err)
			}
		})
	a.scheduler.Register(scheduler.JobPositionChecker,
		settings.KeyPositionCheckIntervalSeconds, "", func(ctx context.Context) {
			a.manager.Tick(ctx)
		})
	a.scheduler.Register(scheduler.JobOrphanOrders,
		settings.KeyOrphanCheckIntervalSeconds, "", func(ctx context.Context) {
			if err := a.manager.SweepOrphans(ctx); err != nil {
				logger.Errorf("❌ Orphan sweep failed: %v", err)
			}
		})
	a.scheduler.Register(scheduler.JobScanner,
		settings.KeyScanIntervalSeconds, settings.KeyScanEnabled, func(ctx context.Context) {
			a.scanner.Run(ctx)
		})
}

// streamSymbols seeds the price feed with the managed book plus the scan
// whitelist.
func (a *App) streamSymbols() []string {
	seen := make(map[string]bool)
	var symbols []string
	add := func(sym string) {
		wire := exchange.Wire(sym)
		if wire == "" || seen[wire] {
			return
		}
		seen[wire] = true
		symbols = append(symbols, wire)
	}

	positions, err := a.store.Position().All()
	if err != nil {
		logger.Warnf("⚠️ Could not load positions for the price feed: %v", err)
	}
	for _, pos := range positions {
		add(pos.Symbol)
	}
	for _, base := range a.settings.List(settings.KeyScanWhitelist) {
		add(base)
	}
	return symbols
}

// Run starts the long-lived pieces and blocks until SIGINT/SIGTERM, then
// stops them in reverse order.
func (a *App) Run() error {
	mode := "SIMULATION"
	if a.settings.Bool(settings.KeyLiveTrading) {
		mode = "LIVE"
	}
	logger.Infof("🤖 TradePulse starting in %s mode", mode)

	if err := a.manager.Reconcile(context.Background()); err != nil {
		logger.Warnf("⚠️ Startup reconcile failed: %v", err)
	}

	a.stream.Start(a.streamSymbols())
	a.scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		if err := a.api.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Infof("🛑 Received %s, shutting down", sig)
	case err := <-errCh:
		logger.Errorf("❌ API server failed: %v", err)
	}

	a.shutdown()
	return nil
}

func (a *App) shutdown() {
	if err := a.api.Shutdown(); err != nil {
		logger.Warnf("⚠️ API shutdown: %v", err)
	}
	a.scheduler.Stop()
	a.stream.Stop()
	if err := a.store.Close(); err != nil {
		logger.Errorf("❌ Store close: %v", err)
	}
	logger.Infof("✅ Shutdown complete")
}
