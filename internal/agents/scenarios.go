package agents

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantfolio/quantfolio/internal/registry"
	"github.com/quantfolio/quantfolio/internal/reqctx"
)

// ScenariosAgent applies hypothetical market shocks to valued positions.
// The math is deliberately ordinary: duration-based first-order rate
// sensitivity over the valuation the pricing agent produced.
type ScenariosAgent struct{}

// NewScenariosAgent creates the scenarios agent.
func NewScenariosAgent() *ScenariosAgent { return &ScenariosAgent{} }

func (a *ScenariosAgent) Name() string { return "scenarios" }

func (a *ScenariosAgent) Capabilities() map[string]registry.Handler {
	return map[string]registry.Handler{
		"scenarios.rate_shock": a.rateShock,
	}
}

// rateShock estimates the value impact of a parallel rate move.
//
// Args: positions (required, as emitted by pricing.value_positions),
// shock_bps (required), durations (optional map of symbol to modified
// duration; symbols without an entry are treated as rate-insensitive).
// Result: {shock_bps, base_value, shocked_value, delta, positions}.
func (a *ScenariosAgent) rateShock(ctx context.Context, rctx reqctx.Ctx, args map[string]any) (any, error) {
	const capability = "scenarios.rate_shock"

	raw, err := listArg(capability, args, "positions")
	if err != nil {
		return nil, err
	}
	shockBps, err := numberArg(capability, args, "shock_bps")
	if err != nil {
		return nil, err
	}

	durations := map[string]float64{}
	if v, ok := args["durations"]; ok && v != nil {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("agents: %s argument \"durations\" must be a map, got %T", capability, v)
		}
		for sym, d := range m {
			f, err := toFloat(d)
			if err != nil {
				return nil, fmt.Errorf("agents: %s duration for %s: %w", capability, sym, err)
			}
			durations[sym] = f
		}
	}

	shock := decimal.NewFromFloat(shockBps / 10000.0)
	baseTotal := decimal.Zero
	deltaTotal := decimal.Zero
	encoded := make([]any, 0, len(raw))

	for i, elem := range raw {
		m, ok := elem.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("agents: %s positions[%d] must be an object, got %T", capability, i, elem)
		}
		symbol, err := stringArg(capability, m, "symbol")
		if err != nil {
			return nil, err
		}
		value, err := decimalField(capability, m, "market_value")
		if err != nil {
			return nil, err
		}

		// First-order sensitivity: dV = -D * dy * V.
		delta := value.Mul(shock).Mul(decimal.NewFromFloat(durations[symbol])).Neg()

		baseTotal = baseTotal.Add(value)
		deltaTotal = deltaTotal.Add(delta)
		encoded = append(encoded, map[string]any{
			"symbol":        symbol,
			"market_value":  value.String(),
			"delta":         delta.String(),
			"shocked_value": value.Add(delta).String(),
		})
	}

	return map[string]any{
		"shock_bps":     shockBps,
		"base_value":    baseTotal.String(),
		"delta":         deltaTotal.String(),
		"shocked_value": baseTotal.Add(deltaTotal).String(),
		"positions":     encoded,
	}, nil
}
