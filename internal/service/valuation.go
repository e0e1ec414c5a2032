package service

import (
	"watchlist_go/internal/domain"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// ComputeTotal sums the cent-rounded value of every priced asset plus cash.
// Assets without a quote yet are left out rather than counted as zero.
func ComputeTotal(r *AssetRegistry, cash decimal.Decimal) decimal.Decimal {
	return TotalOf(r.All(), cash)
}

// TotalOf is ComputeTotal over an explicit asset list.
func TotalOf(assets []*domain.Asset, cash decimal.Decimal) decimal.Decimal {
	total := cash
	for _, a := range assets {
		if v, ok := a.Value(); ok {
			total = total.Add(v)
		}
	}
	return total
}

// FormatUSD renders an amount as dollars and cents, e.g. "$1,234.56".
func FormatUSD(d decimal.Decimal) string {
	cents := d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return money.New(cents, money.USD).Display()
}

// AssetView is what the presentation layer renders for one row.
type AssetView struct {
	Symbol        string           `json:"symbol"`
	DisplaySymbol string           `json:"display_symbol"`
	Name          string           `json:"name"`
	Class         string           `json:"type"`
	Amount        decimal.Decimal  `json:"amount"`
	Precision     int32            `json:"precision"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	ChangePercent *decimal.Decimal `json:"change_pct,omitempty"`
	Direction     string           `json:"direction"`
	Value         *decimal.Decimal `json:"value,omitempty"`
}

// WatchlistView is the full derived state: rows, cash, total and display mode.
type WatchlistView struct {
	Assets       []AssetView     `json:"assets"`
	Cash         decimal.Decimal `json:"cash"`
	Total        decimal.Decimal `json:"total"`
	TotalDisplay string          `json:"total_display"`
	Portfolio    bool            `json:"portfolio"`
}

// BuildView derives the presentation view from the registry. The result shares no state with it.
func BuildView(r *AssetRegistry, cash decimal.Decimal, portfolio bool) WatchlistView {
	all := r.All()
	rows := make([]AssetView, 0, len(all))
	for _, a := range all {
		c := a.Clone()
		row := AssetView{
			Symbol:        c.Symbol,
			DisplaySymbol: c.DisplaySymbol(),
			Name:          c.Name,
			Class:         string(c.Class),
			Amount:        c.Amount,
			Precision:     c.Precision,
			Price:         c.LastPrice,
			ChangePercent: c.LastChangePercent,
			Direction:     c.ChangeDirection(),
		}
		if v, ok := c.Value(); ok {
			row.Value = &v
		}
		rows = append(rows, row)
	}
	total := TotalOf(all, cash)
	return WatchlistView{
		Assets:       rows,
		Cash:         cash,
		Total:        total,
		TotalDisplay: FormatUSD(total),
		Portfolio:    portfolio,
	}
}
