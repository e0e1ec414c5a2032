package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"watchlist_go/internal/domain"
	"watchlist_go/internal/engine"
	"watchlist_go/internal/infra"
	"watchlist_go/internal/infra/cnbc"
	"watchlist_go/internal/infra/coinbase"
	"watchlist_go/internal/infra/storage"
	"watchlist_go/internal/server"
	"watchlist_go/internal/service"
)

// DefaultConfigPath is used when no -config flag is given.
const DefaultConfigPath = "configs/config.yaml"

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string
	Config     *infra.Config

	Store    domain.KVStore
	Notifier *service.Notifier
	Engine   *engine.Engine
	Polling  *engine.PollingFeed
	Stream   *coinbase.StreamWorker
	Server   *server.Server

	closers []io.Closer
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	return &Bootstrap{ConfigPath: configPath}
}

// Initialize loads config, installs the logger, opens storage and wires every component.
// Nothing touches the network until Run.
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping Watchlist...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(b.ConfigPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))

	// 3. Initialize Storage (DB)
	store, closer, err := openStore(cfg)
	if err != nil {
		return err
	}
	b.Store = store
	b.closers = append(b.closers, closer)
	slog.Info("✅ Storage initialized", slog.String("driver", cfg.Storage.Driver))

	// 4. Market clock
	clock, err := marketClock(cfg)
	if err != nil {
		return err
	}

	// 5. Engine and feeds
	b.Notifier = service.NewNotifier(cfg.NoticeTTL())
	quotes := cnbc.NewClient(cfg.Feeds.Polling.URL, cfg.PollTimeout())

	eng, err := engine.New(engine.Config{
		Store:          store,
		QuoteResolver:  quotes,
		CryptoResolver: coinbase.NewClient(cfg.Feeds.Streaming.RestURL, cfg.PollTimeout()),
		Notifier:       b.Notifier,
		DumpFile:       filepath.Join(cfg.Logging.Dir, engine.DefaultDumpFile),
	})
	if err != nil {
		return fmt.Errorf("failed to restore watchlist: %w", err)
	}
	b.Engine = eng

	b.Stream = coinbase.NewStreamWorker(cfg.Feeds.Streaming.WSURL, cfg.ReconnectDelay(), eng, infra.GlobalMetrics)
	eng.SetStream(b.Stream)

	b.Polling = engine.NewPollingFeed(eng, quotes, engine.PollingConfig{
		BaseInterval:    cfg.PollBaseInterval(),
		BackoffInterval: cfg.PollBackoffInterval(),
		Clock:           clock,
		Metrics:         infra.GlobalMetrics,
	})

	// 6. HTTP surface
	b.Server = server.New(cfg.Server.Addr, eng, b.Notifier, infra.GlobalMetrics, cfg.Logging.Level == "debug")
	eng.SetOnUpdate(b.Server.PublishView)

	slog.Info("✅ Engine ready")
	return nil
}

// Run starts the engine, both feeds and the server, and blocks until ctx is cancelled
// or the server fails.
func (b *Bootstrap) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Engine.Run(ctx)
	}()

	if err := b.Stream.Connect(ctx); err != nil {
		slog.Error("Failed to start stream", slog.Any("error", err))
	}
	b.Polling.Start(ctx)
	slog.InfoContext(ctx, "✨ Watchlist fully operational", slog.String("addr", b.Config.Server.Addr))

	err := b.Server.Run(ctx)

	cancel()
	b.Polling.Stop()
	b.Stream.Disconnect()
	wg.Wait()
	b.Notifier.Stop()
	return err
}

// Close releases storage.
func (b *Bootstrap) Close() {
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			slog.Warn("Close failed", slog.Any("error", err))
		}
	}
	b.closers = nil
}

type kvStoreCloser interface {
	domain.KVStore
	io.Closer
}

func openStore(cfg *infra.Config) (domain.KVStore, io.Closer, error) {
	var (
		store kvStoreCloser
		err   error
	)
	switch cfg.Storage.Driver {
	case "postgres":
		store, err = storage.NewPostgresStore(cfg.Storage.DSN)
	default:
		store, err = storage.NewSQLiteStore(cfg.Storage.Path)
	}
	if err != nil {
		return nil, nil, err
	}
	return store, store, nil
}

func marketClock(cfg *infra.Config) (domain.MarketClock, error) {
	loc, err := cfg.Location()
	if err != nil {
		return domain.MarketClock{}, err
	}
	clock := domain.MarketClock{Location: loc}
	if cfg.Market.HolidayCalendar != "" {
		cal, err := infra.NewExchangeCalendar(cfg.Market.HolidayCalendar)
		if err != nil {
			return domain.MarketClock{}, &domain.ConfigError{Field: "market.holiday_calendar", Err: err}
		}
		clock.Holidays = cal
	}
	return clock, nil
}
