package service

import (
	"context"
	"encoding/json"
	"fmt"

	"watchlist_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Persisted keys.
const (
	KeyAssetList = "assetList"
	KeyCash      = "cash"
	KeyMode      = "mode"
)

// AssetRegistry owns the ordered list of tracked assets and its symbol index.
// It is not safe for concurrent use; the engine serializes every call.
// Every structural change writes the whole list to the store before it is committed in memory.
type AssetRegistry struct {
	assets []*domain.Asset
	index  map[string]*domain.Asset
	store  domain.KVStore
}

// Executor runs fn inside the single execution context that owns the registry.
type Executor interface {
	// Do runs a mutation and publishes the resulting view.
	Do(ctx context.Context, fn func(r *AssetRegistry) error) error
	// Read runs a read-only fn; nothing is published.
	Read(ctx context.Context, fn func(r *AssetRegistry) error) error
}

// LoadRegistry restores the registry from store, or persists an empty one if none exists.
func LoadRegistry(store domain.KVStore) (*AssetRegistry, error) {
	r := &AssetRegistry{
		index: make(map[string]*domain.Asset),
		store: store,
	}

	raw, ok, err := store.Get(KeyAssetList)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", KeyAssetList, err)
	}
	if !ok {
		if err := r.persist(r.assets); err != nil {
			return nil, err
		}
		return r, nil
	}

	var saved []*domain.Asset
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", KeyAssetList, err)
	}
	for _, a := range saved {
		if _, dup := r.index[a.Symbol]; dup {
			continue
		}
		if a.Precision < domain.MinPrecision {
			a.Precision = domain.MinPrecision
		}
		r.assets = append(r.assets, a)
		r.index[a.Symbol] = a
	}
	return r, nil
}

// Add appends a new asset. It fails with *domain.DuplicateSymbolError if the symbol exists.
func (r *AssetRegistry) Add(a *domain.Asset) error {
	if _, exists := r.index[a.Symbol]; exists {
		return &domain.DuplicateSymbolError{Symbol: a.Symbol}
	}
	next := make([]*domain.Asset, len(r.assets), len(r.assets)+1)
	copy(next, r.assets)
	next = append(next, a)
	if err := r.persist(next); err != nil {
		return err
	}
	r.assets = next
	r.index[a.Symbol] = a
	return nil
}

// Remove deletes an asset and returns it so the caller can unsubscribe streaming-backed ones.
func (r *AssetRegistry) Remove(symbol string) (*domain.Asset, error) {
	i := r.indexOf(symbol)
	if i < 0 {
		return nil, &domain.NotFoundError{Symbol: symbol}
	}
	removed := r.assets[i]
	next := make([]*domain.Asset, 0, len(r.assets)-1)
	next = append(next, r.assets[:i]...)
	next = append(next, r.assets[i+1:]...)
	if err := r.persist(next); err != nil {
		return nil, err
	}
	r.assets = next
	delete(r.index, symbol)
	return removed, nil
}

// MoveUp swaps an asset with its predecessor. No-op for the first asset.
func (r *AssetRegistry) MoveUp(symbol string) error {
	i := r.indexOf(symbol)
	if i < 0 {
		return &domain.NotFoundError{Symbol: symbol}
	}
	if i == 0 {
		return nil
	}
	return r.swap(i, i-1)
}

// MoveDown swaps an asset with its successor. No-op for the last asset.
func (r *AssetRegistry) MoveDown(symbol string) error {
	i := r.indexOf(symbol)
	if i < 0 {
		return &domain.NotFoundError{Symbol: symbol}
	}
	if i == len(r.assets)-1 {
		return nil
	}
	return r.swap(i, i+1)
}

// SetAmount parses input and stores it as the holding amount.
func (r *AssetRegistry) SetAmount(symbol, input string) error {
	amount, err := domain.ParseAmount("amount", input)
	if err != nil {
		return err
	}
	return r.SetAmountValue(symbol, amount)
}

// SetAmountValue stores an already validated non-negative amount.
func (r *AssetRegistry) SetAmountValue(symbol string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return &domain.ValidationError{Field: "amount", Input: amount.String(), Reason: "negative"}
	}
	a, ok := r.index[symbol]
	if !ok {
		return &domain.NotFoundError{Symbol: symbol}
	}
	prev := a.Amount
	a.Amount = amount
	if err := r.persist(r.assets); err != nil {
		a.Amount = prev
		return err
	}
	return nil
}

// ApplyQuote stores a quote. Unknown symbols are ignored because a feed may lag a removal.
// It reports whether the symbol was known.
func (r *AssetRegistry) ApplyQuote(symbol string, price, changePercent decimal.Decimal) bool {
	a, ok := r.index[symbol]
	if !ok {
		return false
	}
	a.LastPrice = &price
	a.LastChangePercent = &changePercent
	a.FirstUpdate = true
	return true
}

// ApplyQuotes applies a whole batch. Symbols outside the registry are skipped.
func (r *AssetRegistry) ApplyQuotes(quotes []domain.Quote) int {
	applied := 0
	for _, q := range quotes {
		if r.ApplyQuote(q.Symbol, q.Price, q.ChangePercent) {
			applied++
		}
	}
	return applied
}

// ResetFirstUpdates makes every asset due again regardless of market hours.
func (r *AssetRegistry) ResetFirstUpdates() {
	for _, a := range r.assets {
		a.FirstUpdate = false
	}
}

// Get returns the live asset for symbol.
func (r *AssetRegistry) Get(symbol string) (*domain.Asset, bool) {
	a, ok := r.index[symbol]
	return a, ok
}

// Has reports whether symbol is tracked.
func (r *AssetRegistry) Has(symbol string) bool {
	_, ok := r.index[symbol]
	return ok
}

// All returns the assets in display order. The slice is a copy; the assets are live.
func (r *AssetRegistry) All() []*domain.Asset {
	out := make([]*domain.Asset, len(r.assets))
	copy(out, r.assets)
	return out
}

// Snapshot returns detached copies of all assets in display order.
func (r *AssetRegistry) Snapshot() []domain.Asset {
	out := make([]domain.Asset, len(r.assets))
	for i, a := range r.assets {
		out[i] = a.Clone()
	}
	return out
}

// Symbols returns the symbols of all assets of the given class, in display order.
func (r *AssetRegistry) Symbols(class domain.AssetClass) []string {
	var out []string
	for _, a := range r.assets {
		if a.Class == class {
			out = append(out, a.Symbol)
		}
	}
	return out
}

// Len returns the number of tracked assets.
func (r *AssetRegistry) Len() int {
	return len(r.assets)
}

func (r *AssetRegistry) swap(i, j int) error {
	next := make([]*domain.Asset, len(r.assets))
	copy(next, r.assets)
	next[i], next[j] = next[j], next[i]
	if err := r.persist(next); err != nil {
		return err
	}
	r.assets = next
	return nil
}

func (r *AssetRegistry) indexOf(symbol string) int {
	for i, a := range r.assets {
		if a.Symbol == symbol {
			return i
		}
	}
	return -1
}

func (r *AssetRegistry) persist(list []*domain.Asset) error {
	if list == nil {
		list = []*domain.Asset{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", KeyAssetList, err)
	}
	if err := r.store.Set(KeyAssetList, string(b)); err != nil {
		return fmt.Errorf("failed to persist %s: %w", KeyAssetList, err)
	}
	return nil
}
