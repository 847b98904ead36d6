package indicator

import "marketviz/internal/model"

// CCI computes the Commodity Channel Index over typical prices.
// Sentinels until the window fills; a zero mean deviation yields 0
// instead of a division blow-up.
func CCI(bars []model.Bar, period int) []float64 {
	n := len(bars)
	out := nones(n)

	tp := make([]float64, n)
	for i, b := range bars {
		tp[i] = (b.High + b.Low + b.Close) / 3
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		sum += tp[i]
		if i >= period {
			sum -= tp[i-period]
		}
		if i+1 < period {
			continue
		}
		sma := sum / float64(period)
		md := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := tp[j] - sma
			if d < 0 {
				d = -d
			}
			md += d
		}
		md /= float64(period)
		if md == 0 {
			out[i] = 0
			continue
		}
		out[i] = (tp[i] - sma) / (0.015 * md)
	}
	return out
}
