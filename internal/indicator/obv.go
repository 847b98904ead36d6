package indicator

import "marketviz/internal/model"

// OBV computes On-Balance Volume: a cumulative total seeded with the
// first bar's volume (not zero), adding volume on up-closes, subtracting
// on down-closes and carrying unchanged on flat closes. No sentinels.
func OBV(bars []model.Bar) []float64 {
	n := len(bars)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	out[0] = bars[0].Volume
	for i := 1; i < n; i++ {
		switch {
		case bars[i].Close > bars[i-1].Close:
			out[i] = out[i-1] + bars[i].Volume
		case bars[i].Close < bars[i-1].Close:
			out[i] = out[i-1] - bars[i].Volume
		default:
			out[i] = out[i-1]
		}
	}
	return out
}
