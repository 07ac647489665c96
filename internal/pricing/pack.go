// Package pricing serves frozen pricing packs: immutable, dated snapshots of
// security prices and FX rates. Every valuation inside one pattern run reads
// the same pack, which is what makes results reproducible.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Pack is one frozen snapshot. Prices are quoted in the instrument's native
// currency; FXRates convert a currency into the pack's base currency.
type Pack struct {
	ID           string                     `json:"id"`
	AsOf         time.Time                  `json:"asof"`
	BaseCurrency string                     `json:"base_currency"`
	Prices       map[string]decimal.Decimal `json:"prices"`
	FXRates      map[string]decimal.Decimal `json:"fx_rates"`
	CreatedAt    time.Time                  `json:"created_at"`
}

// ErrPackNotFound reports an unknown pack id.
type ErrPackNotFound struct {
	ID string
}

func (e *ErrPackNotFound) Error() string {
	return fmt.Sprintf("pricing: pack %q not found", e.ID)
}

// ErrPackExists reports an attempt to overwrite a frozen pack.
type ErrPackExists struct {
	ID string
}

func (e *ErrPackExists) Error() string {
	return fmt.Sprintf("pricing: pack %q already exists and is frozen", e.ID)
}

// PackStore resolves pack ids to their frozen contents. Implementations must
// return byte-identical data for the same id on every call.
type PackStore interface {
	Pack(ctx context.Context, id string) (*Pack, error)
}

// Price returns the native-currency price for a symbol.
func (p *Pack) Price(symbol string) (decimal.Decimal, error) {
	price, ok := p.Prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("pricing: pack %s has no price for %q", p.ID, symbol)
	}
	return price, nil
}

// ToBase converts an amount in the given currency into the pack's base
// currency.
func (p *Pack) ToBase(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	if currency == "" || currency == p.BaseCurrency {
		return amount, nil
	}
	rate, ok := p.FXRates[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("pricing: pack %s has no FX rate for %q", p.ID, currency)
	}
	return amount.Mul(rate), nil
}
