package agents

import (
	"context"
	"time"

	"github.com/quantfolio/quantfolio/internal/ledger"
	"github.com/quantfolio/quantfolio/internal/positions"
	"github.com/quantfolio/quantfolio/internal/registry"
	"github.com/quantfolio/quantfolio/internal/reqctx"
	"github.com/quantfolio/quantfolio/internal/returns"
)

// LedgerAgent serves portfolio history pinned to the request's ledger commit.
type LedgerAgent struct {
	store ledger.Store
}

// NewLedgerAgent creates the ledger agent.
func NewLedgerAgent(store ledger.Store) *LedgerAgent {
	return &LedgerAgent{store: store}
}

func (a *LedgerAgent) Name() string { return "ledger" }

func (a *LedgerAgent) Capabilities() map[string]registry.Handler {
	return map[string]registry.Handler{
		"ledger.load_series": a.loadSeries,
		"ledger.positions":   a.loadPositions,
	}
}

// loadSeries returns the valuation series for a portfolio.
//
// Args: portfolio_id (required), from / to (optional YYYY-MM-DD).
// Result: {portfolio_id, ledger_commit_id, observations: [{date, value,
// net_flow}], count}. Values are decimal strings so downstream steps keep
// exact arithmetic.
func (a *LedgerAgent) loadSeries(ctx context.Context, rctx reqctx.Ctx, args map[string]any) (any, error) {
	const capability = "ledger.load_series"

	portfolioID, err := stringArg(capability, args, "portfolio_id")
	if err != nil {
		return nil, err
	}
	from, err := optionalDateArg(capability, args, "from")
	if err != nil {
		return nil, err
	}
	to, err := optionalDateArg(capability, args, "to")
	if err != nil {
		return nil, err
	}

	series, err := a.store.Series(ctx, rctx.LedgerCommitID, portfolioID, ledger.Window{From: from, To: to})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"portfolio_id":     portfolioID,
		"ledger_commit_id": rctx.LedgerCommitID,
		"observations":     encodeSeries(series),
		"count":            len(series),
	}, nil
}

// loadPositions returns open tax lots as of the request date.
//
// Args: portfolio_id (required). Result: {portfolio_id, positions: [lot...],
// count, asof_date}.
func (a *LedgerAgent) loadPositions(ctx context.Context, rctx reqctx.Ctx, args map[string]any) (any, error) {
	const capability = "ledger.positions"

	portfolioID, err := stringArg(capability, args, "portfolio_id")
	if err != nil {
		return nil, err
	}

	lots, err := a.store.Positions(ctx, rctx.LedgerCommitID, portfolioID, rctx.AsOf)
	if err != nil {
		return nil, err
	}

	encoded := make([]any, 0, len(lots))
	for _, lot := range lots {
		encoded = append(encoded, map[string]any{
			"symbol":       lot.Symbol,
			"open_qty":     lot.OpenQty.String(),
			"original_qty": lot.OriginalQty.String(),
			"cost_basis":   lot.CostBasis.String(),
			"currency":     lot.Currency,
			"opened_at":    lot.OpenedAt.Format("2006-01-02"),
		})
	}

	return map[string]any{
		"portfolio_id": portfolioID,
		"asof_date":    rctx.AsOf.Format("2006-01-02"),
		"positions":    encoded,
		"count":        len(lots),
	}, nil
}

func encodeSeries(series returns.Series) []any {
	out := make([]any, 0, len(series))
	for _, obs := range series {
		out = append(out, map[string]any{
			"date":     obs.Date.Format("2006-01-02"),
			"value":    obs.Value.String(),
			"net_flow": obs.NetFlow.String(),
		})
	}
	return out
}

// decodeLots parses lot maps back into typed lots; used by the pricing agent.
func decodeLots(capability string, raw []any) ([]positions.Lot, error) {
	lots := make([]positions.Lot, 0, len(raw))
	for _, elem := range raw {
		m, ok := elem.(map[string]any)
		if !ok {
			return nil, &ErrMissingArg{Capability: capability, Key: "positions"}
		}
		symbol, err := stringArg(capability, m, "symbol")
		if err != nil {
			return nil, err
		}
		openQty, err := decimalField(capability, m, "open_qty")
		if err != nil {
			return nil, err
		}
		originalQty, err := decimalField(capability, m, "original_qty")
		if err != nil {
			return nil, err
		}
		costBasis, err := optionalDecimalField(capability, m, "cost_basis")
		if err != nil {
			return nil, err
		}
		currency, _ := m["currency"].(string)
		openedAt := time.Time{}
		if _, ok := m["opened_at"]; ok {
			openedAt, err = dateField(capability, m, "opened_at")
			if err != nil {
				return nil, err
			}
		}
		lots = append(lots, positions.Lot{
			Symbol:      symbol,
			OpenQty:     openQty,
			OriginalQty: originalQty,
			CostBasis:   costBasis,
			Currency:    currency,
			OpenedAt:    openedAt,
		})
	}
	return lots, nil
}
