package returns

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func obs(date string, value, flow float64) Observation {
	return Observation{
		Date:    day(date),
		Value:   decimal.NewFromFloat(value),
		NetFlow: decimal.NewFromFloat(flow),
	}
}

// Regression guard for the denominator defect: a deposit must change the
// portfolio's basis, never the per-period return. 100k grows 20% to 120k, a
// 100k deposit lands (basis 220k), the market then drops 10% to 198k. The
// ledger records a valuation on the flow date, so the deposit closes its own
// sub-period. Correct TWR is (1.2 * 1.0 * 0.9) - 1 = 8% regardless of the
// deposit size; the faulty formula (flow added into the denominator) diluted
// every period a deposit landed in.
func TestTWR_DepositDoesNotDiluteReturn(t *testing.T) {
	series := Series{
		obs("2026-01-31", 100000, 0),
		obs("2026-02-28", 120000, 0),      // +20% market move
		obs("2026-03-01", 220000, 100000), // deposit 100k, no market move
		obs("2026-03-31", 198000, 0),      // -10% on the 220k basis
	}

	res, err := TWR(series)
	require.NoError(t, err)

	assert.InDelta(t, 0.08, res.Linked.InexactFloat64(), 1e-12)
	require.Len(t, res.Periods, 3)
	assert.InDelta(t, 0.20, res.Periods[0].Return.InexactFloat64(), 1e-12)
	assert.True(t, res.Periods[1].Return.IsZero(), "the deposit itself is not a return")
	assert.InDelta(t, -0.10, res.Periods[2].Return.InexactFloat64(), 1e-12)
}

func TestTWR_WithdrawalDoesNotInflateReturn(t *testing.T) {
	// +20%, withdraw 40k, then +10% on the reduced basis.
	series := Series{
		obs("2026-01-31", 100000, 0),
		obs("2026-02-28", 120000, 0),
		obs("2026-03-01", 80000, -40000),
		obs("2026-03-31", 88000, 0),
	}

	res, err := TWR(series)
	require.NoError(t, err)

	assert.InDelta(t, 0.32, res.Linked.InexactFloat64(), 1e-12)
	require.Len(t, res.Periods, 3)
	assert.InDelta(t, 0.20, res.Periods[0].Return.InexactFloat64(), 1e-12)
	assert.InDelta(t, 0.10, res.Periods[2].Return.InexactFloat64(), 1e-12)
}

func TestTWR_DepositLargerThanPortfolio(t *testing.T) {
	// A flow many times the starting value still follows the same formula.
	series := Series{
		obs("2026-01-31", 10000, 0),
		obs("2026-02-28", 511000, 500000), // deposit 500k, market +10%
	}
	res, err := TWR(series)
	require.NoError(t, err)
	assert.InDelta(t, 0.10, res.Linked.InexactFloat64(), 1e-12)
}

func TestTWR_ZeroStartingValuePeriodsAreSkipped(t *testing.T) {
	series := Series{
		obs("2026-01-31", 0, 0),
		obs("2026-02-28", 100000, 100000), // funded from zero: no defined return
		obs("2026-03-31", 110000, 0),      // +10%
	}

	res, err := TWR(series)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Periods, 1)
	assert.InDelta(t, 0.10, res.Linked.InexactFloat64(), 1e-12)
}

func TestTWR_AllZeroValuesIsInsufficientData(t *testing.T) {
	series := Series{
		obs("2026-01-31", 0, 0),
		obs("2026-02-28", 0, 0),
		obs("2026-03-31", 0, 0),
	}
	_, err := TWR(series)
	var insufficient *InsufficientDataError
	require.True(t, errors.As(err, &insufficient), "all-zero series must fail, not report 0%%")
}

func TestTWR_SinglePointSeriesRejected(t *testing.T) {
	_, err := TWR(Series{obs("2026-01-31", 100000, 0)})
	var insufficient *InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
}

func TestTWR_RejectsOutOfOrderSeries(t *testing.T) {
	series := Series{
		obs("2026-02-28", 100000, 0),
		obs("2026-01-31", 110000, 0),
	}
	_, err := TWR(series)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of order")
}

func TestTWR_DecimalLinkingIsExactOverManyPeriods(t *testing.T) {
	// 24 alternating periods of exactly +25% / -20%. Each pair multiplies to
	// exactly 1, so decimal linking must come back to exactly zero; float
	// linking drifts by a few ULPs per pair.
	series := Series{obs("2026-01-01", 100000, 0)}
	value := decimal.NewFromInt(100000)
	base := day("2026-01-01")
	for i := 1; i <= 24; i++ {
		if i%2 == 1 {
			value = value.Mul(decimal.NewFromFloat(1.25))
		} else {
			value = value.Mul(decimal.NewFromFloat(0.8))
		}
		series = append(series, Observation{Date: base.AddDate(0, i, 0), Value: value})
	}

	res, err := TWR(series)
	require.NoError(t, err)
	assert.True(t, res.Linked.IsZero(), "expected exactly zero, got %s", res.Linked)
}

func TestVolatility_SinglePeriodIsUndefinedNotZero(t *testing.T) {
	series := Series{
		obs("2026-01-31", 100000, 0),
		obs("2026-02-28", 105000, 0),
	}
	res, err := TWR(series)
	require.NoError(t, err)

	assert.Nil(t, Volatility(res.Periods, 12))
	assert.Nil(t, Sharpe(res.Periods, 0.02, 12))
	assert.Nil(t, Sortino(res.Periods, 0.02, 12))
}

func TestVolatility_KnownSeries(t *testing.T) {
	series := Series{
		obs("2026-01-31", 100000, 0),
		obs("2026-02-28", 110000, 0), // +10%
		obs("2026-03-31", 104500, 0), // -5%
		obs("2026-04-30", 114950, 0), // +10%
		obs("2026-05-31", 109202.5, 0), // -5%
	}
	res, err := TWR(series)
	require.NoError(t, err)
	require.Len(t, res.Periods, 4)

	vol := Volatility(res.Periods, 12)
	require.NotNil(t, vol)
	// Sample stddev of {0.10, -0.05, 0.10, -0.05} is 0.0866025..., annualized
	// by sqrt(12).
	assert.InDelta(t, 0.0866025403*3.4641016151, *vol, 1e-6)

	sharpe := Sharpe(res.Periods, 0.0, 12)
	require.NotNil(t, sharpe)
	assert.Greater(t, *sharpe, 0.0)

	sortino := Sortino(res.Periods, 0.0, 12)
	require.NotNil(t, sortino)
	assert.Greater(t, *sortino, *sharpe, "downside-only deviation is smaller here, so Sortino exceeds Sharpe")
}

func TestStats_DerivedOnlyFromLinkedPeriods(t *testing.T) {
	// Two series with identical market moves but different flows must yield
	// identical derived statistics: the flow affects neither the per-period
	// returns nor anything built on them.
	noFlow := Series{
		obs("2026-01-31", 100000, 0),
		obs("2026-02-28", 120000, 0),
		obs("2026-03-01", 120000, 0),
		obs("2026-03-31", 108000, 0),
	}
	withFlow := Series{
		obs("2026-01-31", 100000, 0),
		obs("2026-02-28", 120000, 0),
		obs("2026-03-01", 220000, 100000),
		obs("2026-03-31", 198000, 0),
	}

	a, err := TWR(noFlow)
	require.NoError(t, err)
	b, err := TWR(withFlow)
	require.NoError(t, err)

	assert.InDelta(t, a.Linked.InexactFloat64(), b.Linked.InexactFloat64(), 1e-12)
	assert.InDelta(t, *Volatility(a.Periods, 12), *Volatility(b.Periods, 12), 1e-12)
}

func TestAnnualized_ReusesLinkedResult(t *testing.T) {
	series := Series{
		obs("2026-01-31", 100000, 0),
		obs("2026-02-28", 101000, 0),
		obs("2026-03-31", 102010, 0),
	}
	res, err := TWR(series)
	require.NoError(t, err)

	ann := res.Annualized(12)
	require.NotNil(t, ann)
	// Two monthly periods of +1%: (1.01^2)^(12/2) - 1 = 1.01^12 - 1.
	assert.InDelta(t, 0.126825, *ann, 1e-5)
}

func TestMWR_MatchesTWRWithoutFlows(t *testing.T) {
	series := Series{
		obs("2025-08-31", 100000, 0),
		obs("2026-08-31", 110000, 0),
	}
	mwr, err := MWR(series)
	require.NoError(t, err)
	assert.InDelta(t, 0.10, mwr, 1e-3, "with no interim flows MWR is the simple annual return")
}

func TestMWR_BadlyTimedDepositDragsBelowTWR(t *testing.T) {
	// Strategy over one year: +20%, then -25%. A large deposit lands right
	// before the drop, so most of the investor's dollars only experience the
	// loss. TWR reflects the strategy (-10% linked over the year); MWR must
	// come out materially lower. Both are computed from the same raw series.
	series := Series{
		obs("2025-08-31", 100000, 0),
		obs("2026-02-28", 120000, 0),
		obs("2026-03-01", 620000, 500000), // deposit 500k
		obs("2026-08-31", 465000, 0),      // -25% on the 620k basis
	}

	twr, err := TWR(series)
	require.NoError(t, err)
	// (1.2 * 1.0 * 0.75) - 1 over a one-year window.
	assert.InDelta(t, -0.10, twr.Linked.InexactFloat64(), 1e-12)

	mwr, err := MWR(series)
	require.NoError(t, err)

	assert.Less(t, mwr, twr.Linked.InexactFloat64()-0.05, "MWR must sit materially below TWR for badly timed deposits")
	assert.Less(t, mwr, -0.15, "the investor lost 135k of the 600k they put in")
}

func TestMWR_NoRootFailsExplicitly(t *testing.T) {
	// Investor pays in 100k twice and the portfolio ends worthless: there is
	// no rate in the bracket that reconciles the flows.
	series := Series{
		obs("2025-08-31", 100000, 0),
		obs("2026-02-28", 100000, 100000),
		obs("2026-08-31", 0, 0),
	}
	_, err := MWR(series)
	var conv *ConvergenceError
	require.True(t, errors.As(err, &conv), "out-of-bracket IRR must fail, not clamp: %v", err)
}
