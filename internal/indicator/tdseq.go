package indicator

// TDSequential computes TD Sequential setup counts over the closes.
//
// A buy run counts consecutive bars with close[i] < close[i-4]; a sell
// run mirrors it with close[i] > close[i-4]. A run only becomes visible
// once it completes at count 9; runs interrupted by the opposite
// condition (or by close[i] == close[i-4], which cancels both kinds) and
// runs still open at the end of the series leave no trace. Each run is
// buffered until it completes or dies, so the output never needs
// retroactive erasure: any non-null stretch is exactly 1..9.
//
// Returned columns use 0 for "no signal" and are full input length.
func TDSequential(closes []float64) (buy, sell Signals) {
	n := len(closes)
	buy = make(Signals, n)
	sell = make(Signals, n)

	buyStart, buyCount := -1, 0
	sellStart, sellCount := -1, 0

	commit := func(col Signals, start, count int) {
		for k := 0; k < count; k++ {
			col[start+k] = k + 1
		}
	}

	for i := 4; i < n; i++ {
		switch {
		case closes[i] < closes[i-4]:
			// bearish comparison: buy count advances, sell run dies
			sellStart, sellCount = -1, 0
			if buyStart < 0 {
				buyStart = i
			}
			buyCount++
			if buyCount == 9 {
				commit(buy, buyStart, 9)
				buyStart, buyCount = -1, 0
			}
		case closes[i] > closes[i-4]:
			buyStart, buyCount = -1, 0
			if sellStart < 0 {
				sellStart = i
			}
			sellCount++
			if sellCount == 9 {
				commit(sell, sellStart, 9)
				sellStart, sellCount = -1, 0
			}
		default:
			// equality kills both kinds of run
			buyStart, buyCount = -1, 0
			sellStart, sellCount = -1, 0
		}
	}

	// runs still open here are incomplete and stay invisible
	return buy, sell
}
