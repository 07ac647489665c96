package returns

import (
	"math"

	"github.com/shopspring/decimal"
)

// TWRResult carries the linked time-weighted return together with the
// validated per-period series every derived statistic is built from.
type TWRResult struct {
	Linked  decimal.Decimal `json:"linked"`
	Periods []PeriodReturn  `json:"periods"`
	Skipped int             `json:"skipped"`
}

// TWR computes the time-weighted return of a series by geometric linking of
// sub-period returns.
//
// For each adjacent pair (prev, curr) with net flow cf landing between them:
//
//	r = (curr.Value - cf - prev.Value) / prev.Value
//
// The denominator is the starting value alone. Adding the flow into the
// denominator deflates every period a deposit lands in and silently corrupts
// every statistic downstream, so the flow appears only in the numerator.
//
// Periods whose starting value is zero have no defined return and are
// excluded from the chain. If every period is excluded the series carries no
// return information and TWR fails with InsufficientDataError.
func TWR(s Series) (*TWRResult, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	periods := make([]PeriodReturn, 0, len(s)-1)
	skipped := 0
	for i := 1; i < len(s); i++ {
		prev, curr := s[i-1], s[i]
		if prev.Value.IsZero() {
			skipped++
			continue
		}
		r := curr.Value.Sub(curr.NetFlow).Sub(prev.Value).Div(prev.Value)
		periods = append(periods, PeriodReturn{Start: prev.Date, End: curr.Date, Return: r})
	}

	if len(periods) == 0 {
		return nil, &InsufficientDataError{Reason: "every period has a zero starting value"}
	}

	linked := decimal.NewFromInt(1)
	one := decimal.NewFromInt(1)
	for _, p := range periods {
		linked = linked.Mul(one.Add(p.Return))
	}
	linked = linked.Sub(one)

	return &TWRResult{Linked: linked, Periods: periods, Skipped: skipped}, nil
}

// Annualized scales the linked return to a yearly figure given how many
// periods make up one year. It reuses the already-linked result; it never
// recomputes per-period returns with a different formula.
func (r *TWRResult) Annualized(periodsPerYear int) *float64 {
	if len(r.Periods) == 0 || periodsPerYear <= 0 {
		return nil
	}
	growth := r.Linked.InexactFloat64() + 1
	if growth <= 0 {
		return nil
	}
	years := float64(len(r.Periods)) / float64(periodsPerYear)
	if years <= 0 {
		return nil
	}
	v := math.Pow(growth, 1/years) - 1
	return &v
}
