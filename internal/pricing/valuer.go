package pricing

import (
	"github.com/quantfolio/quantfolio/internal/positions"
)

// ValuePositions prices a lot list against a frozen pack, converting every
// market value into the pack's base currency. Lots are validated on the way
// in; a lot the pack cannot price fails the whole valuation rather than
// silently dropping the position.
func ValuePositions(pack *Pack, lots []positions.Lot) ([]positions.Valued, error) {
	valued := make([]positions.Valued, 0, len(lots))
	for _, lot := range lots {
		if err := lot.Validate(); err != nil {
			return nil, err
		}
		price, err := pack.Price(lot.Symbol)
		if err != nil {
			return nil, err
		}
		native := lot.OpenQty.Mul(price)
		base, err := pack.ToBase(native, lot.Currency)
		if err != nil {
			return nil, err
		}
		valued = append(valued, positions.Valued{
			Symbol:      lot.Symbol,
			Quantity:    lot.OpenQty,
			Price:       price,
			Currency:    pack.BaseCurrency,
			MarketValue: base,
		})
	}
	return valued, nil
}
