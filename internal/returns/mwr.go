package returns

import (
	"math"
	"time"
)

const (
	irrLowerBound = -0.9999
	irrUpperBound = 10.0
	irrTolerance  = 1e-9
	irrMaxIters   = 200
	daysPerYear   = 365.25
)

// MWR computes the money-weighted (internal rate of) return of a series:
// the annual rate r at which the investor's opening value and subsequent
// net flows, discounted to the final date, exactly reproduce the ending
// value.
//
// The root is found by bisection over [-99.99%, +1000%]. Bisection is slower
// than Newton's method but cannot shoot out of the bracket, which matters for
// series with large flows near the window edges. If the NPV does not change
// sign across the bracket there is no root to find and MWR fails with
// ConvergenceError rather than reporting a clamped bound.
func MWR(s Series) (float64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}

	start := s[0].Date
	end := s[len(s)-1].Date
	horizon := yearsBetween(start, end)
	if horizon <= 0 {
		return 0, &InsufficientDataError{Reason: "window spans zero time"}
	}

	// Investor cash flows: opening value out at t0, interim net flows out at
	// their dates, ending value back in at tN.
	type flow struct {
		years  float64 // time from flow date to window end
		amount float64 // positive = money the investor receives
	}
	flows := make([]flow, 0, len(s)+1)
	flows = append(flows, flow{years: horizon, amount: -s[0].Value.InexactFloat64()})
	for i := 1; i < len(s); i++ {
		if s[i].NetFlow.IsZero() {
			continue
		}
		flows = append(flows, flow{
			years:  yearsBetween(s[i].Date, end),
			amount: -s[i].NetFlow.InexactFloat64(),
		})
	}
	flows = append(flows, flow{years: 0, amount: s[len(s)-1].Value.InexactFloat64()})

	// Future value of all flows at the window end, compounded at rate r.
	fv := func(r float64) float64 {
		var sum float64
		for _, f := range flows {
			sum += f.amount * math.Pow(1+r, f.years)
		}
		return sum
	}

	lo, hi := irrLowerBound, irrUpperBound
	flo, fhi := fv(lo), fv(hi)
	if flo == 0 {
		return lo, nil
	}
	if fhi == 0 {
		return hi, nil
	}
	if math.Signbit(flo) == math.Signbit(fhi) {
		return 0, &ConvergenceError{Iterations: 0, Tolerance: irrTolerance}
	}

	for i := 0; i < irrMaxIters; i++ {
		mid := (lo + hi) / 2
		fmid := fv(mid)
		if math.Abs(fmid) < irrTolerance || (hi-lo)/2 < irrTolerance {
			return mid, nil
		}
		if math.Signbit(fmid) == math.Signbit(flo) {
			lo, flo = mid, fmid
		} else {
			hi = mid
		}
	}
	return 0, &ConvergenceError{Iterations: irrMaxIters, Tolerance: irrTolerance}
}

func yearsBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24 / daysPerYear
}
