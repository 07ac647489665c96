package agents

import (
	"context"
	"fmt"

	"github.com/quantfolio/quantfolio/internal/registry"
	"github.com/quantfolio/quantfolio/internal/reqctx"
	"github.com/quantfolio/quantfolio/internal/returns"
	"github.com/shopspring/decimal"
)

// MetricsConfig tunes the return-engine capabilities.
type MetricsConfig struct {
	// RiskFreeAnnual is the annual risk-free rate used by Sharpe/Sortino.
	RiskFreeAnnual float64 `yaml:"risk_free_annual"`

	// PeriodsPerYear scales per-period statistics to annual figures.
	// 12 for monthly series, 252 for trading-day series.
	PeriodsPerYear int `yaml:"periods_per_year"`
}

func (c MetricsConfig) withDefaults() MetricsConfig {
	if c.PeriodsPerYear <= 0 {
		c.PeriodsPerYear = 12
	}
	return c
}

// MetricsAgent wraps the return engine: TWR, MWR, and the risk statistics
// derived from the TWR per-period series.
type MetricsAgent struct {
	cfg MetricsConfig
}

// NewMetricsAgent creates the metrics agent.
func NewMetricsAgent(cfg MetricsConfig) *MetricsAgent {
	return &MetricsAgent{cfg: cfg.withDefaults()}
}

func (a *MetricsAgent) Name() string { return "metrics" }

func (a *MetricsAgent) Capabilities() map[string]registry.Handler {
	return map[string]registry.Handler{
		"metrics.compute_twr": a.computeTWR,
		"metrics.compute_mwr": a.computeMWR,
		"metrics.risk_stats":  a.riskStats,
	}
}

// computeTWR links per-period returns for an observation series.
//
// Args: observations (required, as emitted by ledger.load_series),
// periods_per_year (optional). Result: {twr, annualized, periods, skipped}.
// The periods list is what metrics.risk_stats consumes: risk statistics are
// derived from this exact series, never recomputed from raw observations.
func (a *MetricsAgent) computeTWR(ctx context.Context, rctx reqctx.Ctx, args map[string]any) (any, error) {
	const capability = "metrics.compute_twr"

	series, err := a.decodeSeries(capability, args)
	if err != nil {
		return nil, err
	}
	ppy, err := optionalNumberArg(capability, args, "periods_per_year", float64(a.cfg.PeriodsPerYear))
	if err != nil {
		return nil, err
	}

	res, err := returns.TWR(series)
	if err != nil {
		return nil, err
	}

	periods := make([]any, 0, len(res.Periods))
	for _, p := range res.Periods {
		periods = append(periods, map[string]any{
			"start":  p.Start.Format("2006-01-02"),
			"end":    p.End.Format("2006-01-02"),
			"return": p.Return.InexactFloat64(),
		})
	}

	return map[string]any{
		"twr":        res.Linked.InexactFloat64(),
		"annualized": floatOrNil(res.Annualized(int(ppy))),
		"periods":    periods,
		"skipped":    res.Skipped,
	}, nil
}

// computeMWR solves the internal rate of return for the same observation
// series shape.
//
// Args: observations (required). Result: {mwr}.
func (a *MetricsAgent) computeMWR(ctx context.Context, rctx reqctx.Ctx, args map[string]any) (any, error) {
	const capability = "metrics.compute_mwr"

	series, err := a.decodeSeries(capability, args)
	if err != nil {
		return nil, err
	}
	mwr, err := returns.MWR(series)
	if err != nil {
		return nil, err
	}
	return map[string]any{"mwr": mwr}, nil
}

// riskStats derives volatility, Sharpe, and Sortino from a TWR period list.
//
// Args: periods (required, as emitted by metrics.compute_twr), risk_free and
// periods_per_year (optional). Undefined statistics (single-period windows)
// come back null, never zero.
func (a *MetricsAgent) riskStats(ctx context.Context, rctx reqctx.Ctx, args map[string]any) (any, error) {
	const capability = "metrics.risk_stats"

	raw, err := listArg(capability, args, "periods")
	if err != nil {
		return nil, err
	}
	riskFree, err := optionalNumberArg(capability, args, "risk_free", a.cfg.RiskFreeAnnual)
	if err != nil {
		return nil, err
	}
	ppy, err := optionalNumberArg(capability, args, "periods_per_year", float64(a.cfg.PeriodsPerYear))
	if err != nil {
		return nil, err
	}

	periods := make([]returns.PeriodReturn, 0, len(raw))
	for i, elem := range raw {
		m, ok := elem.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("agents: %s periods[%d] must be an object, got %T", capability, i, elem)
		}
		r, err := decimalField(capability, m, "return")
		if err != nil {
			return nil, err
		}
		periods = append(periods, returns.PeriodReturn{Return: r})
	}
	if len(periods) == 0 {
		return nil, &returns.InsufficientDataError{Reason: "empty period list"}
	}

	return map[string]any{
		"volatility":       floatOrNil(returns.Volatility(periods, int(ppy))),
		"sharpe":           floatOrNil(returns.Sharpe(periods, riskFree, int(ppy))),
		"sortino":          floatOrNil(returns.Sortino(periods, riskFree, int(ppy))),
		"risk_free":        riskFree,
		"periods_per_year": int(ppy),
		"period_count":     len(periods),
	}, nil
}

func (a *MetricsAgent) decodeSeries(capability string, args map[string]any) (returns.Series, error) {
	raw, err := listArg(capability, args, "observations")
	if err != nil {
		return nil, err
	}
	series := make(returns.Series, 0, len(raw))
	for i, elem := range raw {
		m, ok := elem.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("agents: %s observations[%d] must be an object, got %T", capability, i, elem)
		}
		date, err := dateField(capability, m, "date")
		if err != nil {
			return nil, err
		}
		value, err := decimalField(capability, m, "value")
		if err != nil {
			return nil, err
		}
		flow := decimal.Zero
		if _, ok := m["net_flow"]; ok {
			flow, err = optionalDecimalField(capability, m, "net_flow")
			if err != nil {
				return nil, err
			}
		}
		series = append(series, returns.Observation{Date: date, Value: value, NetFlow: flow})
	}
	return series, nil
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
