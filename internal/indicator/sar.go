package indicator

import "marketviz/internal/model"

// SAR computes the parabolic stop-and-reverse level and trend flag.
//
// State is seeded from the first two bars: trend from close[1]>close[0],
// extreme point from high[1] (up) or low[1] (down), the acceleration
// factor at step, and the level at close[0]. Bars 0 and 1 emit that
// seeded level. From bar 2 on, the level chases the extreme point by
// level += af*(ep-level), then either flips (the level jumps to the old
// extreme point, the extreme point moves to the flipping bar's low/high
// and af resets) or extends, raising/lowering the extreme point and
// accelerating af up to maxStep.
func SAR(bars []model.Bar, step, maxStep float64) ([]float64, []bool) {
	n := len(bars)
	level := make([]float64, n)
	trend := make([]bool, n)
	if n == 0 {
		return level, trend
	}

	sar := bars[0].Close
	isUp := true
	level[0] = sar
	trend[0] = isUp
	if n == 1 {
		return level, trend
	}

	isUp = bars[1].Close > bars[0].Close
	ep := bars[1].Low
	if isUp {
		ep = bars[1].High
	}
	af := step

	trend[0] = isUp
	level[1] = sar
	trend[1] = isUp

	for i := 2; i < n; i++ {
		sar += af * (ep - sar)
		high, low := bars[i].High, bars[i].Low

		if isUp {
			if low <= sar {
				// flip: the level jumps to the old extreme point,
				// not to the bar's low
				isUp = false
				sar = ep
				ep = low
				af = step
			} else if high > ep {
				ep = high
				af += step
				if af > maxStep {
					af = maxStep
				}
			}
		} else {
			if high >= sar {
				isUp = true
				sar = ep
				ep = high
				af = step
			} else if low < ep {
				ep = low
				af += step
				if af > maxStep {
					af = maxStep
				}
			}
		}

		level[i] = sar
		trend[i] = isUp
	}
	return level, trend
}
