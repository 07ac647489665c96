// Package positions holds the tax-lot and valued-position types consumed by
// pricing and the analytics capabilities. Lot bookkeeping itself lives in the
// ledger; this package only enforces the shape invariants on the way in.
package positions

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Lot is one open tax lot as the ledger reports it.
type Lot struct {
	Symbol      string          `json:"symbol" db:"symbol"`
	OpenQty     decimal.Decimal `json:"open_qty" db:"open_qty"`
	OriginalQty decimal.Decimal `json:"original_qty" db:"original_qty"`
	CostBasis   decimal.Decimal `json:"cost_basis" db:"cost_basis"`
	Currency    string          `json:"currency" db:"currency"`
	OpenedAt    time.Time       `json:"opened_at" db:"opened_at"`
}

// Validate enforces the ledger's lot invariant: open quantity never exceeds
// the original quantity and neither is negative.
func (l Lot) Validate() error {
	if l.Symbol == "" {
		return fmt.Errorf("positions: lot has no symbol")
	}
	if l.OpenQty.IsNegative() || l.OriginalQty.IsNegative() {
		return fmt.Errorf("positions: lot %s has negative quantity (open %s, original %s)", l.Symbol, l.OpenQty, l.OriginalQty)
	}
	if l.OpenQty.GreaterThan(l.OriginalQty) {
		return fmt.Errorf("positions: lot %s open quantity %s exceeds original %s", l.Symbol, l.OpenQty, l.OriginalQty)
	}
	return nil
}

// Valued is a position after pricing: quantity times pack price, converted to
// the pack's base currency.
type Valued struct {
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	MarketValue decimal.Decimal `json:"market_value"`
}

// TotalValue sums market values across positions.
func TotalValue(valued []Valued) decimal.Decimal {
	total := decimal.Zero
	for _, v := range valued {
		total = total.Add(v.MarketValue)
	}
	return total
}
