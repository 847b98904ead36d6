package indicator

import "marketviz/internal/model"

// KDJ computes the stochastic K/D/J oscillator.
//
// The high/low window shrinks near the start instead of emitting
// sentinels (RSV is defined even at bar 0 over a window of one), so no
// position in the output is empty. K and D are recursively smoothed
// from a 50/50 seed; J = 3K - 2D.
func KDJ(bars []model.Bar, n, kPeriod, dPeriod int) []Line {
	size := len(bars)
	kOut := make([]float64, size)
	dOut := make([]float64, size)
	jOut := make([]float64, size)

	prevK, prevD := 50.0, 50.0
	for i := 0; i < size; i++ {
		lo := i - n + 1
		if lo < 0 {
			lo = 0
		}
		highN, lowN := bars[lo].High, bars[lo].Low
		for j := lo + 1; j <= i; j++ {
			if bars[j].High > highN {
				highN = bars[j].High
			}
			if bars[j].Low < lowN {
				lowN = bars[j].Low
			}
		}

		rsv := 50.0
		if highN != lowN {
			rsv = (bars[i].Close - lowN) / (highN - lowN) * 100
		}

		k := (prevK*float64(kPeriod-1) + rsv) / float64(kPeriod)
		d := (prevD*float64(dPeriod-1) + k) / float64(dPeriod)
		kOut[i] = k
		dOut[i] = d
		jOut[i] = 3*k - 2*d
		prevK, prevD = k, d
	}

	return []Line{
		{Name: "K", Values: kOut},
		{Name: "D", Values: dOut},
		{Name: "J", Values: jOut},
	}
}
