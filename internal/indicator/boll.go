package indicator

import "math"

// BOLL computes Bollinger Bands over the closes.
// Before the window fills, middle tracks the close itself and the bands
// are sentinels. Once full: middle is the window mean, and the bands sit
// k population standard deviations either side of it.
func BOLL(closes []float64, period int, k float64) []Line {
	n := len(closes)
	mid := make([]float64, n)
	upper := nones(n)
	lower := nones(n)

	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i+1 < period {
			mid[i] = c
			continue
		}
		mean := sum / float64(period)
		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - mean
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(period))
		mid[i] = mean
		upper[i] = mean + k*sd
		lower[i] = mean - k*sd
	}

	return []Line{
		{Name: "MID", Values: mid},
		{Name: "UPPER", Values: upper},
		{Name: "LOWER", Values: lower},
	}
}
