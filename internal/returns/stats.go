package returns

import "math"

// Statistics derived from a validated per-period TWR series. Each returns
// nil when the statistic is undefined for the window (e.g. a single period),
// never a fabricated zero.

// Volatility is the annualized standard deviation of per-period returns.
func Volatility(periods []PeriodReturn, periodsPerYear int) *float64 {
	if len(periods) < 2 || periodsPerYear <= 0 {
		return nil
	}
	rs := toFloats(periods)
	sd := stddev(rs)
	v := sd * math.Sqrt(float64(periodsPerYear))
	return &v
}

// Sharpe is the annualized excess return over the risk-free rate divided by
// annualized volatility. riskFreeAnnual is expressed as an annual rate.
func Sharpe(periods []PeriodReturn, riskFreeAnnual float64, periodsPerYear int) *float64 {
	vol := Volatility(periods, periodsPerYear)
	if vol == nil || *vol == 0 {
		return nil
	}
	rs := toFloats(periods)
	rfPerPeriod := riskFreeAnnual / float64(periodsPerYear)
	excess := mean(rs) - rfPerPeriod
	v := excess * float64(periodsPerYear) / *vol
	return &v
}

// Sortino replaces total volatility with downside deviation: only periods
// below the risk-free rate count against the portfolio.
func Sortino(periods []PeriodReturn, riskFreeAnnual float64, periodsPerYear int) *float64 {
	if len(periods) < 2 || periodsPerYear <= 0 {
		return nil
	}
	rs := toFloats(periods)
	rfPerPeriod := riskFreeAnnual / float64(periodsPerYear)

	var downside float64
	for _, r := range rs {
		if d := r - rfPerPeriod; d < 0 {
			downside += d * d
		}
	}
	dd := math.Sqrt(downside/float64(len(rs))) * math.Sqrt(float64(periodsPerYear))
	if dd == 0 {
		return nil
	}
	excess := (mean(rs) - rfPerPeriod) * float64(periodsPerYear)
	v := excess / dd
	return &v
}

func toFloats(periods []PeriodReturn) []float64 {
	rs := make([]float64, len(periods))
	for i, p := range periods {
		rs[i] = p.Return.InexactFloat64()
	}
	return rs
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(xs []float64) float64 {
	m := mean(xs)
	var sq float64
	for _, x := range xs {
		sq += (x - m) * (x - m)
	}
	return math.Sqrt(sq / float64(len(xs)-1))
}
