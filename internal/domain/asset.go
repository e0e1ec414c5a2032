package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AssetClass decides which feed owns an asset and which market window applies.
type AssetClass string

const (
	ClassStock      AssetClass = "stock"
	ClassMutualFund AssetClass = "mutualFund"
	ClassCrypto     AssetClass = "crypto"
)

// Valid reports whether c is one of the known classes.
func (c AssetClass) Valid() bool {
	switch c {
	case ClassStock, ClassMutualFund, ClassCrypto:
		return true
	}
	return false
}

// CryptoSuffix keeps crypto symbols from colliding with same-named tickers.
const CryptoSuffix = "-CRYPTO"

// MinPrecision is the smallest number of decimal places an asset is displayed with.
const MinPrecision = 2

// CryptoSymbol returns the registry key for a crypto base currency (e.g. "BTC" -> "BTC-CRYPTO").
func CryptoSymbol(base string) string {
	return base + CryptoSuffix
}

// CryptoBase strips the synthetic suffix ("BTC-CRYPTO" -> "BTC").
func CryptoBase(symbol string) string {
	return strings.TrimSuffix(symbol, CryptoSuffix)
}

// RegistryKey returns the symbol an asset of the given class is stored under.
func RegistryKey(symbol string, class AssetClass) string {
	if class == ClassCrypto {
		return CryptoSymbol(symbol)
	}
	return symbol
}

// Asset is one tracked instrument.
type Asset struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Class     AssetClass      `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Precision int32           `json:"precision"`

	// Price fields are owned by the feed serving Class and are never persisted.
	LastPrice         *decimal.Decimal `json:"-"`
	LastChangePercent *decimal.Decimal `json:"-"`
	FirstUpdate       bool             `json:"-"`
}

// NewAsset builds a freshly added asset with no holdings and no quote yet.
func NewAsset(symbol, name string, class AssetClass, precision int32) *Asset {
	if precision < MinPrecision {
		precision = MinPrecision
	}
	return &Asset{
		Symbol:    symbol,
		Name:      name,
		Class:     class,
		Amount:    decimal.Zero,
		Precision: precision,
	}
}

func (a *Asset) IsCrypto() bool     { return a.Class == ClassCrypto }
func (a *Asset) IsMutualFund() bool { return a.Class == ClassMutualFund }
func (a *Asset) IsStock() bool      { return a.Class == ClassStock }

// DisplaySymbol is the symbol as a user typed it.
func (a *Asset) DisplaySymbol() string {
	if a.IsCrypto() {
		return CryptoBase(a.Symbol)
	}
	return a.Symbol
}

// HasPrice reports whether any feed has delivered a quote yet.
func (a *Asset) HasPrice() bool {
	return a.LastPrice != nil
}

// Value returns price * amount rounded to cents, or false when no price is known.
func (a *Asset) Value() (decimal.Decimal, bool) {
	if a.LastPrice == nil {
		return decimal.Zero, false
	}
	return a.LastPrice.Mul(a.Amount).Round(2), true
}

// ChangeDirection returns "positive", "negative", or "neutral"
func (a *Asset) ChangeDirection() string {
	if a.LastChangePercent == nil {
		return "neutral"
	}
	if a.LastChangePercent.IsPositive() {
		return "positive"
	}
	if a.LastChangePercent.IsNegative() {
		return "negative"
	}
	return "neutral"
}

// Clone returns a deep copy safe to hand outside the engine.
func (a *Asset) Clone() Asset {
	c := *a
	if a.LastPrice != nil {
		p := *a.LastPrice
		c.LastPrice = &p
	}
	if a.LastChangePercent != nil {
		ch := *a.LastChangePercent
		c.LastChangePercent = &ch
	}
	return c
}

// Quote is a (price, change-percent) pair for one symbol at one point in time.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	ChangePercent decimal.Decimal `json:"change_pct"`
}

// Resolution is what a quote resolution service knows about a symbol.
type Resolution struct {
	Symbol    string
	Name      string
	Class     AssetClass
	Precision int32
}
