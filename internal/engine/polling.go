package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"watchlist_go/internal/domain"
	"watchlist_go/internal/infra"
	"watchlist_go/internal/service"
)

// PollingConfig configures the polling feed.
type PollingConfig struct {
	BaseInterval    time.Duration
	BackoffInterval time.Duration
	Clock           domain.MarketClock

	// Now is the time source for market-hours gating. Defaults to time.Now.
	Now     func() time.Time
	Metrics *infra.Metrics
}

// PollingFeed batches every due stock and mutual fund into one request per cycle.
// A failed request switches to the backoff interval until a request succeeds again; the
// first success after that restores the base interval and makes every asset due again.
type PollingFeed struct {
	engine   *Engine
	poller   domain.QuotePoller
	clock    domain.MarketClock
	base     time.Duration
	backoff  time.Duration
	now      func() time.Time
	metrics  *infra.Metrics
	notifier *service.Notifier
	logger   *slog.Logger

	// delay is owned by the polling goroutine.
	delay time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPollingFeed creates a feed that applies quotes through e.
func NewPollingFeed(e *Engine, poller domain.QuotePoller, cfg PollingConfig) *PollingFeed {
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = time.Duration(infra.DefaultBaseIntervalMS) * time.Millisecond
	}
	if cfg.BackoffInterval <= 0 {
		cfg.BackoffInterval = time.Duration(infra.DefaultBackoffMS) * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = infra.GlobalMetrics
	}
	return &PollingFeed{
		engine:   e,
		poller:   poller,
		clock:    cfg.Clock,
		base:     cfg.BaseInterval,
		backoff:  cfg.BackoffInterval,
		now:      cfg.Now,
		metrics:  cfg.Metrics,
		notifier: e.notifier,
		logger:   slog.Default().With("module", "polling_feed"),
		delay:    cfg.BaseInterval,
	}
}

// Start runs cycles until ctx is cancelled or Stop is called. Each wait uses a fresh timer
// that is stopped on cancellation.
func (p *PollingFeed) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			delay := p.Cycle(ctx)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				p.logger.Info("Polling stopped")
				return
			case <-timer.C:
			}
		}
	}()
}

// Stop cancels the loop and waits for the current cycle to finish.
func (p *PollingFeed) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Delay is the wait before the next cycle.
func (p *PollingFeed) Delay() time.Duration {
	return p.delay
}

// Cycle performs one poll and returns the delay to wait before the next one.
// An empty due-set sends no request and leaves the delay unchanged.
func (p *PollingFeed) Cycle(ctx context.Context) time.Duration {
	now := p.now()

	var due []string
	if err := p.engine.Read(ctx, func(r *service.AssetRegistry) error {
		for _, a := range r.All() {
			if p.clock.IsQuoteDue(a, now) {
				due = append(due, a.Symbol)
			}
		}
		return nil
	}); err != nil {
		return p.delay
	}
	if len(due) == 0 {
		return p.delay
	}

	quotes, err := p.poller.FetchQuotes(ctx, due)
	if err != nil {
		if ctx.Err() != nil {
			return p.delay
		}
		p.fail(err, len(due))
		return p.delay
	}

	recovering := p.delay != p.base
	applied := 0
	err = p.engine.Do(ctx, func(r *service.AssetRegistry) error {
		for symbol, q := range quotes {
			a, ok := r.Get(symbol)
			if !ok || a.IsCrypto() {
				continue
			}
			if r.ApplyQuote(symbol, q.Price.Round(a.Precision), q.ChangePercent.Round(a.Precision)) {
				applied++
			}
		}
		if recovering {
			r.ResetFirstUpdates()
		}
		return nil
	})
	if err != nil {
		return p.delay
	}

	p.metrics.RecordPoll(applied)
	if recovering {
		p.logger.Info("Polling recovered", slog.Duration("delay", p.base))
		p.delay = p.base
		p.metrics.SetBackedOff(false)
	}
	return p.delay
}

func (p *PollingFeed) fail(err error, symbols int) {
	p.logger.Warn("Quote request failed",
		slog.Any("error", err),
		slog.Int("symbols", symbols),
		slog.Duration("next", p.backoff),
	)
	p.metrics.RecordPollFailure()
	p.metrics.SetBackedOff(true)
	p.delay = p.backoff
	if p.notifier != nil {
		p.notifier.Post(domain.UserMessage(err), false)
	}
}
