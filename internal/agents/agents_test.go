package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/quantfolio/internal/ledger"
	"github.com/quantfolio/quantfolio/internal/positions"
	"github.com/quantfolio/quantfolio/internal/pricing"
	"github.com/quantfolio/quantfolio/internal/reqctx"
	"github.com/quantfolio/quantfolio/internal/returns"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func testReqCtx() reqctx.Ctx {
	return reqctx.New("PP-2026-08-31", "LC-1", day("2026-08-31"))
}

func seededLedger() *ledger.MemoryStore {
	store := ledger.NewMemoryStore()
	store.LoadSeries("LC-1", "PF-1", returns.Series{
		{Date: day("2026-01-31"), Value: decimal.NewFromInt(100000)},
		{Date: day("2026-02-28"), Value: decimal.NewFromInt(120000)},
		{Date: day("2026-03-01"), Value: decimal.NewFromInt(220000), NetFlow: decimal.NewFromInt(100000)},
		{Date: day("2026-03-31"), Value: decimal.NewFromInt(198000)},
	})
	store.LoadPositions("LC-1", "PF-1", []positions.Lot{
		{Symbol: "AAPL", OpenQty: decimal.NewFromInt(10), OriginalQty: decimal.NewFromInt(10), Currency: "USD", OpenedAt: day("2025-06-01")},
	})
	return store
}

func seededPacks() *pricing.MemoryStore {
	store := pricing.NewMemoryStore()
	_ = store.Put(&pricing.Pack{
		ID:           "PP-2026-08-31",
		AsOf:         day("2026-08-31"),
		BaseCurrency: "USD",
		Prices:       map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(230)},
		FXRates:      map[string]decimal.Decimal{},
	})
	return store
}

func TestLedgerAgent_LoadSeriesEncodesExactDecimals(t *testing.T) {
	agent := NewLedgerAgent(seededLedger())
	h := agent.Capabilities()["ledger.load_series"]

	res, err := h(context.Background(), testReqCtx(), map[string]any{"portfolio_id": "PF-1"})
	require.NoError(t, err)

	m := res.(map[string]any)
	assert.Equal(t, "LC-1", m["ledger_commit_id"])
	obs := m["observations"].([]any)
	require.Len(t, obs, 4)
	first := obs[0].(map[string]any)
	assert.Equal(t, "100000", first["value"])
	assert.Equal(t, "0", first["net_flow"])
}

func TestLedgerAgent_MissingArgNamesKey(t *testing.T) {
	agent := NewLedgerAgent(seededLedger())
	h := agent.Capabilities()["ledger.load_series"]

	_, err := h(context.Background(), testReqCtx(), map[string]any{})
	var missing *ErrMissingArg
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "portfolio_id", missing.Key)
}

func TestMetricsAgent_TWRFromLedgerOutput(t *testing.T) {
	// Chain ledger.load_series into metrics.compute_twr the way a pattern
	// does, and check the regression scenario end to end.
	rctx := testReqCtx()
	ledgerAgent := NewLedgerAgent(seededLedger())
	metricsAgent := NewMetricsAgent(MetricsConfig{})

	loaded, err := ledgerAgent.Capabilities()["ledger.load_series"](context.Background(), rctx, map[string]any{"portfolio_id": "PF-1"})
	require.NoError(t, err)
	observations := loaded.(map[string]any)["observations"]

	res, err := metricsAgent.Capabilities()["metrics.compute_twr"](context.Background(), rctx, map[string]any{
		"observations": observations,
	})
	require.NoError(t, err)

	m := res.(map[string]any)
	assert.InDelta(t, 0.08, m["twr"].(float64), 1e-12, "the deposit must not dilute the linked return")
	periods := m["periods"].([]any)
	assert.Len(t, periods, 3)
}

func TestMetricsAgent_RiskStatsConsumeTWRPeriods(t *testing.T) {
	rctx := testReqCtx()
	agent := NewMetricsAgent(MetricsConfig{RiskFreeAnnual: 0.02})

	twrOut, err := agent.Capabilities()["metrics.compute_twr"](context.Background(), rctx, map[string]any{
		"observations": []any{
			map[string]any{"date": "2026-01-31", "value": "100000", "net_flow": "0"},
			map[string]any{"date": "2026-02-28", "value": "110000", "net_flow": "0"},
			map[string]any{"date": "2026-03-31", "value": "104500", "net_flow": "0"},
		},
	})
	require.NoError(t, err)

	stats, err := agent.Capabilities()["metrics.risk_stats"](context.Background(), rctx, map[string]any{
		"periods": twrOut.(map[string]any)["periods"],
	})
	require.NoError(t, err)

	m := stats.(map[string]any)
	assert.NotNil(t, m["volatility"])
	assert.Equal(t, 2, m["period_count"])
}

func TestMetricsAgent_SinglePeriodStatsAreNull(t *testing.T) {
	rctx := testReqCtx()
	agent := NewMetricsAgent(MetricsConfig{})

	stats, err := agent.Capabilities()["metrics.risk_stats"](context.Background(), rctx, map[string]any{
		"periods": []any{map[string]any{"return": 0.05}},
	})
	require.NoError(t, err)

	m := stats.(map[string]any)
	assert.Nil(t, m["volatility"], "single-period volatility is undefined, not zero")
	assert.Nil(t, m["sharpe"])
	assert.Nil(t, m["sortino"])
}

func TestMetricsAgent_InsufficientDataPropagates(t *testing.T) {
	rctx := testReqCtx()
	agent := NewMetricsAgent(MetricsConfig{})

	_, err := agent.Capabilities()["metrics.compute_twr"](context.Background(), rctx, map[string]any{
		"observations": []any{
			map[string]any{"date": "2026-01-31", "value": "0"},
			map[string]any{"date": "2026-02-28", "value": "0"},
		},
	})
	var insufficient *returns.InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
}

func TestMetricsAgent_MWR(t *testing.T) {
	rctx := testReqCtx()
	agent := NewMetricsAgent(MetricsConfig{})

	res, err := agent.Capabilities()["metrics.compute_mwr"](context.Background(), rctx, map[string]any{
		"observations": []any{
			map[string]any{"date": "2025-08-31", "value": "100000", "net_flow": "0"},
			map[string]any{"date": "2026-08-31", "value": "110000", "net_flow": "0"},
		},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.10, res.(map[string]any)["mwr"].(float64), 1e-3)
}

func TestPricingAgent_ValuePositionsAgainstRequestPack(t *testing.T) {
	rctx := testReqCtx()
	ledgerAgent := NewLedgerAgent(seededLedger())
	pricingAgent := NewPricingAgent(seededPacks())

	lots, err := ledgerAgent.Capabilities()["ledger.positions"](context.Background(), rctx, map[string]any{"portfolio_id": "PF-1"})
	require.NoError(t, err)

	res, err := pricingAgent.Capabilities()["pricing.value_positions"](context.Background(), rctx, map[string]any{
		"positions": lots.(map[string]any)["positions"],
	})
	require.NoError(t, err)

	m := res.(map[string]any)
	assert.Equal(t, "2300", m["total_value"])
	assert.Equal(t, "PP-2026-08-31", m["pricing_pack_id"])
}

func TestPricingAgent_PackMeta(t *testing.T) {
	agent := NewPricingAgent(seededPacks())
	res, err := agent.Capabilities()["pricing.pack_meta"](context.Background(), testReqCtx(), map[string]any{})
	require.NoError(t, err)

	m := res.(map[string]any)
	assert.Equal(t, "PP-2026-08-31", m["id"])
	assert.Equal(t, []string{"AAPL"}, m["symbols"])
}

func TestScenariosAgent_RateShock(t *testing.T) {
	agent := NewScenariosAgent()
	res, err := agent.Capabilities()["scenarios.rate_shock"](context.Background(), testReqCtx(), map[string]any{
		"positions": []any{
			map[string]any{"symbol": "BOND", "market_value": "100000"},
			map[string]any{"symbol": "AAPL", "market_value": "50000"},
		},
		"shock_bps": 100.0,
		"durations": map[string]any{"BOND": 5.0},
	})
	require.NoError(t, err)

	m := res.(map[string]any)
	// BOND: -5 * 1% * 100000 = -5000. AAPL has no duration: unchanged.
	assert.Equal(t, "-5000", m["delta"])
	assert.Equal(t, "145000", m["shocked_value"])
	assert.Equal(t, "150000", m["base_value"])
}

func TestScenariosAgent_MissingShockFails(t *testing.T) {
	agent := NewScenariosAgent()
	_, err := agent.Capabilities()["scenarios.rate_shock"](context.Background(), testReqCtx(), map[string]any{
		"positions": []any{},
	})
	var missing *ErrMissingArg
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "shock_bps", missing.Key)
}
