package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSymbolConventions(t *testing.T) {
	if got := RegistryKey("BTC", ClassCrypto); got != "BTC-CRYPTO" {
		t.Errorf("RegistryKey crypto = %s", got)
	}
	if got := RegistryKey("BTC", ClassStock); got != "BTC" {
		t.Errorf("RegistryKey stock = %s", got)
	}
	if got := CryptoBase("ETH-CRYPTO"); got != "ETH" {
		t.Errorf("CryptoBase = %s", got)
	}

	a := NewAsset("ETH-CRYPTO", "Ethereum", ClassCrypto, 2)
	if a.DisplaySymbol() != "ETH" {
		t.Errorf("DisplaySymbol = %s", a.DisplaySymbol())
	}
}

func TestNewAsset_Defaults(t *testing.T) {
	a := NewAsset("AAPL", "Apple Inc", ClassStock, 0)
	if a.Precision != MinPrecision {
		t.Errorf("precision = %d, want %d", a.Precision, MinPrecision)
	}
	if !a.Amount.IsZero() {
		t.Errorf("amount = %s, want 0", a.Amount)
	}
	if a.HasPrice() || a.FirstUpdate {
		t.Error("fresh asset must have no quote")
	}
}

func TestAsset_Value(t *testing.T) {
	a := NewAsset("AAPL", "Apple Inc", ClassStock, 2)
	if _, ok := a.Value(); ok {
		t.Error("no value without a price")
	}

	price := decimal.RequireFromString("150.255")
	a.LastPrice = &price
	a.Amount = decimal.RequireFromString("3")
	v, ok := a.Value()
	if !ok || !v.Equal(decimal.RequireFromString("450.77")) {
		t.Errorf("Value = %s, %v; want 450.77", v, ok)
	}
}

func TestAsset_ChangeDirection(t *testing.T) {
	a := NewAsset("AAPL", "Apple Inc", ClassStock, 2)
	if a.ChangeDirection() != "neutral" {
		t.Error("no change should be neutral")
	}
	up := decimal.NewFromFloat(1.5)
	a.LastChangePercent = &up
	if a.ChangeDirection() != "positive" {
		t.Error("expected positive")
	}
	down := decimal.NewFromFloat(-0.1)
	a.LastChangePercent = &down
	if a.ChangeDirection() != "negative" {
		t.Error("expected negative")
	}
}

func TestAsset_CloneIsDeep(t *testing.T) {
	a := NewAsset("AAPL", "Apple Inc", ClassStock, 2)
	p := decimal.NewFromInt(10)
	a.LastPrice = &p

	c := a.Clone()
	*a.LastPrice = decimal.NewFromInt(20)
	if !c.LastPrice.Equal(decimal.NewFromInt(10)) {
		t.Errorf("clone shares price pointer: %s", c.LastPrice)
	}
}
