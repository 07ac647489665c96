// Package returns computes time-weighted and money-weighted portfolio
// returns and the risk statistics derived from them.
//
// Per-period returns are linked with decimal arithmetic so that drift does
// not accumulate across long windows. Derived statistics (volatility, Sharpe,
// Sortino) are computed strictly from the validated per-period TWR series:
// they are post-processing, never a recomputation with a different formula.
package returns

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Observation is one dated valuation with the net external cash flow that
// occurred since the previous observation (deposits positive, withdrawals
// negative). The ledger records a valuation on every flow date, measured
// after the flow is applied, so a flow always closes its own sub-period:
// Value already includes the flow, and the flow never participates in the
// period's market move.
type Observation struct {
	Date    time.Time       `json:"date"`
	Value   decimal.Decimal `json:"value"`
	NetFlow decimal.Decimal `json:"net_flow"`
}

// Series is an ordered valuation history, ascending by date.
type Series []Observation

// PeriodReturn is one sub-period return in the geometric chain.
type PeriodReturn struct {
	Start  time.Time       `json:"start"`
	End    time.Time       `json:"end"`
	Return decimal.Decimal `json:"return"`
}

// InsufficientDataError reports a series the engine cannot compute on.
// It is never converted into a fabricated 0% return.
type InsufficientDataError struct {
	Reason string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("returns: insufficient data: %s", e.Reason)
}

// ConvergenceError reports an IRR root-find that exhausted its budget.
type ConvergenceError struct {
	Iterations int
	Tolerance  float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("returns: IRR did not converge within %d iterations (tolerance %g)", e.Iterations, e.Tolerance)
}

// Validate checks the structural invariants of a series: at least two
// observations, strictly ascending dates, non-negative values.
func (s Series) Validate() error {
	if len(s) < 2 {
		return &InsufficientDataError{Reason: fmt.Sprintf("need at least 2 observations, got %d", len(s))}
	}
	for i := range s {
		if s[i].Value.IsNegative() {
			return fmt.Errorf("returns: observation %d (%s) has negative value %s", i, s[i].Date.Format("2006-01-02"), s[i].Value)
		}
		if i > 0 && !s[i].Date.After(s[i-1].Date) {
			return fmt.Errorf("returns: observations out of order at index %d (%s not after %s)",
				i, s[i].Date.Format("2006-01-02"), s[i-1].Date.Format("2006-01-02"))
		}
	}
	return nil
}
