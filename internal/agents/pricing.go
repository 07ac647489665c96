package agents

import (
	"context"
	"sort"

	"github.com/quantfolio/quantfolio/internal/positions"
	"github.com/quantfolio/quantfolio/internal/pricing"
	"github.com/quantfolio/quantfolio/internal/registry"
	"github.com/quantfolio/quantfolio/internal/reqctx"
)

// PricingAgent values positions against the request's frozen pricing pack.
type PricingAgent struct {
	packs pricing.PackStore
}

// NewPricingAgent creates the pricing agent.
func NewPricingAgent(packs pricing.PackStore) *PricingAgent {
	return &PricingAgent{packs: packs}
}

func (a *PricingAgent) Name() string { return "pricing" }

func (a *PricingAgent) Capabilities() map[string]registry.Handler {
	return map[string]registry.Handler{
		"pricing.pack_meta":       a.packMeta,
		"pricing.value_positions": a.valuePositions,
	}
}

// packMeta surfaces the provenance of the request's pack.
//
// Args: none. Result: {id, asof, base_currency, symbols, created_at}.
func (a *PricingAgent) packMeta(ctx context.Context, rctx reqctx.Ctx, args map[string]any) (any, error) {
	pack, err := a.packs.Pack(ctx, rctx.PricingPackID)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(pack.Prices))
	for sym := range pack.Prices {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	return map[string]any{
		"id":            pack.ID,
		"asof":          pack.AsOf.Format("2006-01-02"),
		"base_currency": pack.BaseCurrency,
		"symbols":       symbols,
		"created_at":    pack.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}, nil
}

// valuePositions prices a lot list against the request's pack.
//
// Args: positions (required, as emitted by ledger.positions). Result:
// {positions: [{symbol, quantity, price, market_value, currency}],
// total_value, base_currency, pricing_pack_id}. Market values are decimal
// strings.
func (a *PricingAgent) valuePositions(ctx context.Context, rctx reqctx.Ctx, args map[string]any) (any, error) {
	const capability = "pricing.value_positions"

	raw, err := listArg(capability, args, "positions")
	if err != nil {
		return nil, err
	}
	lots, err := decodeLots(capability, raw)
	if err != nil {
		return nil, err
	}

	pack, err := a.packs.Pack(ctx, rctx.PricingPackID)
	if err != nil {
		return nil, err
	}
	valued, err := pricing.ValuePositions(pack, lots)
	if err != nil {
		return nil, err
	}

	encoded := make([]any, 0, len(valued))
	for _, v := range valued {
		encoded = append(encoded, map[string]any{
			"symbol":       v.Symbol,
			"quantity":     v.Quantity.String(),
			"price":        v.Price.String(),
			"market_value": v.MarketValue.String(),
			"currency":     v.Currency,
		})
	}

	return map[string]any{
		"positions":       encoded,
		"total_value":     positions.TotalValue(valued).String(),
		"base_currency":   pack.BaseCurrency,
		"pricing_pack_id": pack.ID,
	}, nil
}
