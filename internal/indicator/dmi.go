package indicator

import "marketviz/internal/model"

// DMI computes the Directional Movement system: +DI, -DI and ADX.
//
// True range and directional deltas start at index 1 (index 0 has no
// previous bar, so all three outputs lead with a sentinel). Running sums
// accumulate plainly through the first `period` deltas, then switch to
// Wilder's incremental form sum = sum - sum/period + new. DX values
// accumulate until 2*period-1 bars have been seen; their plain mean is
// the first ADX value, and later ADX values are Wilder-smoothed.
func DMI(bars []model.Bar, period int) []Line {
	n := len(bars)
	pdi := nones(n)
	mdi := nones(n)
	adx := nones(n)
	p := float64(period)

	var trSum, dmPlusSum, dmMinusSum float64
	var dxSum, prevADX float64
	dxCount := 0
	adxStarted := false

	for i := 1; i < n; i++ {
		cur, prev := bars[i], bars[i-1]

		tr := cur.High - cur.Low
		if d := abs(cur.High - prev.Close); d > tr {
			tr = d
		}
		if d := abs(cur.Low - prev.Close); d > tr {
			tr = d
		}

		upMove := cur.High - prev.High
		downMove := prev.Low - cur.Low
		dmPlus, dmMinus := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			dmPlus = upMove
		}
		if downMove > upMove && downMove > 0 {
			dmMinus = downMove
		}

		if i <= period {
			trSum += tr
			dmPlusSum += dmPlus
			dmMinusSum += dmMinus
		} else {
			trSum = trSum - trSum/p + tr
			dmPlusSum = dmPlusSum - dmPlusSum/p + dmPlus
			dmMinusSum = dmMinusSum - dmMinusSum/p + dmMinus
		}

		var plusDI, minusDI float64
		if trSum != 0 {
			plusDI = dmPlusSum / trSum * 100
			minusDI = dmMinusSum / trSum * 100
		}
		pdi[i] = plusDI
		mdi[i] = minusDI

		dx := 0.0
		if plusDI+minusDI != 0 {
			dx = abs(plusDI-minusDI) / (plusDI + minusDI) * 100
		}

		if !adxStarted {
			dxSum += dx
			dxCount++
			if i+1 >= 2*period-1 {
				prevADX = dxSum / float64(dxCount)
				adx[i] = prevADX
				adxStarted = true
			}
		} else {
			prevADX = (prevADX*(p-1) + dx) / p
			adx[i] = prevADX
		}
	}

	return []Line{
		{Name: "PDI", Values: pdi},
		{Name: "MDI", Values: mdi},
		{Name: "ADX", Values: adx},
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
