package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"watchlist_go/internal/domain"
	"watchlist_go/internal/service"

	"github.com/shopspring/decimal"
)

// DefaultDumpFile receives the engine state when a command panics.
const DefaultDumpFile = "panic_dump.json"

type command struct {
	fn      func(r *service.AssetRegistry) error
	publish bool
	reply   chan error
}

// Config holds the collaborators the engine is built from.
type Config struct {
	Store domain.KVStore

	// QuoteResolver resolves stocks, indexes and mutual funds; CryptoResolver resolves crypto.
	QuoteResolver  domain.QuoteResolver
	CryptoResolver domain.QuoteResolver

	Notifier  *service.Notifier
	InboxSize int
	DumpFile  string
}

// Engine is the single execution context that owns the registry, cash and display mode.
// Every read and write of that state runs as a command on the Run goroutine, so feed
// updates and user edits never interleave inside a command.
type Engine struct {
	inbox chan command
	done  chan struct{}

	reg       *service.AssetRegistry
	store     domain.KVStore
	cash      decimal.Decimal
	portfolio bool

	quoteResolver  domain.QuoteResolver
	cryptoResolver domain.QuoteResolver
	stream         domain.StreamSubscriber
	notifier       *service.Notifier
	dumpFile       string

	// Boundary: called on the engine goroutine after every state change. Must not block.
	onUpdate func(service.WatchlistView)

	logger *slog.Logger
}

// New restores persisted state and returns an engine that is not yet running.
// Missing keys are written with their defaults: an empty list, zero cash and watchlist mode.
func New(cfg Config) (*Engine, error) {
	reg, err := service.LoadRegistry(cfg.Store)
	if err != nil {
		return nil, err
	}

	inboxSize := cfg.InboxSize
	if inboxSize <= 0 {
		inboxSize = 64
	}
	dumpFile := cfg.DumpFile
	if dumpFile == "" {
		dumpFile = DefaultDumpFile
	}

	e := &Engine{
		inbox:          make(chan command, inboxSize),
		done:           make(chan struct{}),
		reg:            reg,
		store:          cfg.Store,
		quoteResolver:  cfg.QuoteResolver,
		cryptoResolver: cfg.CryptoResolver,
		notifier:       cfg.Notifier,
		dumpFile:       dumpFile,
		logger:         slog.Default().With("module", "engine"),
	}

	if err := e.loadCash(); err != nil {
		return nil, err
	}
	if err := e.loadMode(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) loadCash() error {
	raw, ok, err := e.store.Get(service.KeyCash)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", service.KeyCash, err)
	}
	if !ok {
		return e.store.Set(service.KeyCash, "0")
	}
	cash, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || cash.IsNegative() {
		e.logger.Warn("Ignoring unreadable cash value", slog.String("value", raw))
		return nil
	}
	e.cash = cash
	return nil
}

func (e *Engine) loadMode() error {
	raw, ok, err := e.store.Get(service.KeyMode)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", service.KeyMode, err)
	}
	if !ok {
		return e.store.Set(service.KeyMode, "false")
	}
	e.portfolio = raw == "true"
	return nil
}

// SetStream attaches the streaming feed. Call before Run.
func (e *Engine) SetStream(s domain.StreamSubscriber) {
	e.stream = s
}

// SetOnUpdate registers the view observer. Call before Run.
func (e *Engine) SetOnUpdate(fn func(service.WatchlistView)) {
	e.onUpdate = fn
}

// Run processes commands until ctx is cancelled. It MUST be run in a single goroutine.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("Engine started", slog.Int("assets", e.reg.Len()))
	defer close(e.done)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine stopping...")
			return
		case cmd := <-e.inbox:
			e.process(cmd)
		}
	}
}

func (e *Engine) process(cmd command) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			e.DumpState(e.dumpFile)
			cmd.reply <- fmt.Errorf("engine command panicked: %v", r)
		}
	}()

	err := cmd.fn(e.reg)
	if err == nil && cmd.publish {
		e.publish()
	}
	cmd.reply <- err
}

// Do runs fn on the engine goroutine and publishes the view if it succeeds.
// Do and Read implement service.Executor for the feeds.
func (e *Engine) Do(ctx context.Context, fn func(r *service.AssetRegistry) error) error {
	return e.exec(ctx, fn, true)
}

// Read runs fn on the engine goroutine without publishing. fn must not mutate.
func (e *Engine) Read(ctx context.Context, fn func(r *service.AssetRegistry) error) error {
	return e.exec(ctx, fn, false)
}

func (e *Engine) exec(ctx context.Context, fn func(r *service.AssetRegistry) error, publish bool) error {
	cmd := command{fn: fn, publish: publish, reply: make(chan error, 1)}

	select {
	case e.inbox <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return domain.ErrEngineStopped
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return domain.ErrEngineStopped
	}
}

func (e *Engine) publish() {
	if e.onUpdate != nil {
		e.onUpdate(service.BuildView(e.reg, e.cash, e.portfolio))
	}
}

func (e *Engine) notify(message string, success bool) {
	if e.notifier != nil {
		e.notifier.Post(message, success)
	}
}

// fail posts the user message for err and returns err unchanged.
func (e *Engine) fail(err error) error {
	e.notify(domain.UserMessage(err), false)
	return err
}

// AddAsset resolves symbol with the resolver for the class hint and appends the result.
// Crypto hints use the crypto resolver; stock and mutual fund hints share the quote resolver
// and the resolved class wins.
func (e *Engine) AddAsset(ctx context.Context, symbol string, hint domain.AssetClass) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || !hint.Valid() {
		return e.fail(&domain.ValidationError{Field: "symbol", Input: symbol, Reason: "symbol and type are required"})
	}

	key := domain.RegistryKey(symbol, hint)
	var exists bool
	if err := e.Read(ctx, func(r *service.AssetRegistry) error {
		exists = r.Has(key)
		return nil
	}); err != nil {
		return err
	}
	if exists {
		return e.fail(&domain.DuplicateSymbolError{Symbol: key})
	}

	resolver := e.quoteResolver
	if hint == domain.ClassCrypto {
		resolver = e.cryptoResolver
	}
	if resolver == nil {
		return e.fail(fmt.Errorf("no resolver for %s", hint))
	}

	res, err := resolver.Resolve(ctx, symbol)
	if err != nil {
		e.logger.Warn("Symbol resolution failed", slog.String("symbol", symbol), slog.Any("error", err))
		return e.fail(err)
	}

	// Subscribe and notice run with the Add itself, so they happen even if ctx ends
	// while the command is queued.
	asset := domain.NewAsset(domain.RegistryKey(res.Symbol, res.Class), res.Name, res.Class, res.Precision)
	err = e.Do(ctx, func(r *service.AssetRegistry) error {
		if err := r.Add(asset); err != nil {
			return err
		}
		if asset.IsCrypto() && e.stream != nil {
			e.stream.Subscribe(asset.Symbol)
		}
		e.logger.Info("Asset added", slog.String("symbol", asset.Symbol), slog.String("type", string(asset.Class)))
		e.notify(domain.MsgSymbolAdded, true)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return e.fail(err)
	}
	return err
}

// RemoveAsset deletes symbol and unsubscribes it from the stream if it is crypto.
func (e *Engine) RemoveAsset(ctx context.Context, symbol string) error {
	if err := e.Do(ctx, func(r *service.AssetRegistry) error {
		removed, err := r.Remove(symbol)
		if err != nil {
			return err
		}
		if removed.IsCrypto() && e.stream != nil {
			e.stream.Unsubscribe(removed.Symbol)
		}
		e.logger.Info("Asset removed", slog.String("symbol", symbol))
		return nil
	}); err != nil {
		return e.fail(err)
	}
	return nil
}

// MoveUp moves symbol one row up. No-op for the first row.
func (e *Engine) MoveUp(ctx context.Context, symbol string) error {
	if err := e.Do(ctx, func(r *service.AssetRegistry) error {
		return r.MoveUp(symbol)
	}); err != nil {
		return e.fail(err)
	}
	return nil
}

// MoveDown moves symbol one row down. No-op for the last row.
func (e *Engine) MoveDown(ctx context.Context, symbol string) error {
	if err := e.Do(ctx, func(r *service.AssetRegistry) error {
		return r.MoveDown(symbol)
	}); err != nil {
		return e.fail(err)
	}
	return nil
}

// SetAmount parses input and stores it as the holding amount of symbol.
func (e *Engine) SetAmount(ctx context.Context, symbol, input string) error {
	if err := e.Do(ctx, func(r *service.AssetRegistry) error {
		return r.SetAmount(symbol, input)
	}); err != nil {
		return e.fail(err)
	}
	return nil
}

// SetCash parses input, rounds it to cents and persists it.
func (e *Engine) SetCash(ctx context.Context, input string) error {
	cash, err := domain.ParseAmount("cash", input)
	if err != nil {
		return e.fail(err)
	}
	cash = cash.Round(2)

	if err := e.Do(ctx, func(r *service.AssetRegistry) error {
		if err := e.store.Set(service.KeyCash, cash.String()); err != nil {
			return fmt.Errorf("failed to persist %s: %w", service.KeyCash, err)
		}
		e.cash = cash
		return nil
	}); err != nil {
		return e.fail(err)
	}

	e.notify(domain.MsgCashUpdated, true)
	return nil
}

// SetMode switches between watchlist (false) and portfolio (true) display.
func (e *Engine) SetMode(ctx context.Context, portfolio bool) error {
	return e.Do(ctx, func(r *service.AssetRegistry) error {
		if err := e.store.Set(service.KeyMode, strconv.FormatBool(portfolio)); err != nil {
			return fmt.Errorf("failed to persist %s: %w", service.KeyMode, err)
		}
		e.portfolio = portfolio
		return nil
	})
}

// View returns the current derived view.
func (e *Engine) View(ctx context.Context) (service.WatchlistView, error) {
	var view service.WatchlistView
	err := e.Read(ctx, func(r *service.AssetRegistry) error {
		view = service.BuildView(r, e.cash, e.portfolio)
		return nil
	})
	return view, err
}

// DumpState writes the entire internal state to a file (for post-mortem).
// It must run on the engine goroutine.
func (e *Engine) DumpState(filename string) {
	e.logger.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		Cash      decimal.Decimal `json:"cash"`
		Portfolio bool            `json:"portfolio"`
		Assets    []domain.Asset  `json:"assets"`
	}{
		Cash:      e.cash,
		Portfolio: e.portfolio,
		Assets:    e.reg.Snapshot(),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		e.logger.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		e.logger.Error("Failed to write state dump", slog.Any("error", err))
	}
}
