package domain

import (
	"context"
	"time"
)

// QuoteResolver looks a symbol up before it is added to the registry.
// It returns *NotFoundError when the service does not know the symbol.
type QuoteResolver interface {
	Resolve(ctx context.Context, symbol string) (Resolution, error)
}

// QuotePoller fetches current quotes for a batch of symbols in one request.
// The result is keyed by symbol and holds unrounded values; any parse failure fails the whole batch.
type QuotePoller interface {
	FetchQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)
}

// StreamSubscriber is the control side of the streaming feed. Calls are best-effort.
type StreamSubscriber interface {
	Subscribe(symbol string)
	Unsubscribe(symbol string)
}

// KVStore is the durable string-valued store the registry and settings persist into.
type KVStore interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

// HolidayCalendar reports exchange business days. Implementations must not read the clock.
type HolidayCalendar interface {
	IsBusinessDay(t time.Time) bool
}
