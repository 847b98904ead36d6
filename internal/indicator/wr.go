package indicator

import "marketviz/internal/model"

// WR computes Williams %R. Sentinels until the window fills; a flat
// window (zero range) yields 0 rather than a division blow-up.
// Values lie in [-100, 0].
func WR(bars []model.Bar, period int) []float64 {
	n := len(bars)
	out := nones(n)

	for i := period - 1; i < n; i++ {
		hh, ll := bars[i-period+1].High, bars[i-period+1].Low
		for j := i - period + 2; j <= i; j++ {
			if bars[j].High > hh {
				hh = bars[j].High
			}
			if bars[j].Low < ll {
				ll = bars[j].Low
			}
		}
		if hh == ll {
			out[i] = 0
			continue
		}
		out[i] = -100 * (hh - bars[i].Close) / (hh - ll)
	}
	return out
}
