package indicator

// RSI computes Wilder's Relative Strength Index over the closes.
//
// The loop walks deltas from index 1: the first `period` deltas build
// the seed averages (emitting sentinels), the value at index period+1
// comes from those plain averages, and later indices Wilder-smooth with
// their own delta. Index 0 is a sentinel because no delta exists there.
// The delta at index period+1 itself never enters the averages; that
// off-by-one is part of the published output contract and must not be
// "fixed" (see rsi_test.go pinning it).
func RSI(closes []float64, period int) []float64 {
	n := len(closes)
	out := nones(n)
	if n < 2 || period <= 0 {
		return out
	}

	p := float64(period)
	gain, loss := 0.0, 0.0
	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		up, down := 0.0, 0.0
		if delta > 0 {
			up = delta
		} else {
			down = -delta
		}

		switch {
		case i <= period:
			gain += up
			loss += down
		case i == period+1:
			avgGain = gain / p
			avgLoss = loss / p
			out[i] = rsiValue(avgGain, avgLoss)
		default:
			avgGain = (avgGain*(p-1) + up) / p
			avgLoss = (avgLoss*(p-1) + down) / p
			out[i] = rsiValue(avgGain, avgLoss)
		}
	}
	return out
}

// rsiValue maps smoothed averages to the 0..100 scale. A zero average
// loss means an all-gain window: RSI saturates at 100.
func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
