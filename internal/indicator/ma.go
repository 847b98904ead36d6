package indicator

import "marketviz/internal/model"

// MA computes simple moving averages of the closes for each window.
// Line i is named "MA<w>". The first w-1 positions are sentinels; the
// rest are arithmetic means over a running-sum sliding window.
func MA(closes []float64, windows []int) []Line {
	lines := make([]Line, 0, len(windows))
	for _, w := range windows {
		if w <= 0 {
			w = 1
		}
		out := nones(len(closes))
		sum := 0.0
		for i, c := range closes {
			sum += c
			if i >= w {
				sum -= closes[i-w]
			}
			if i+1 >= w {
				out[i] = sum / float64(w)
			}
		}
		lines = append(lines, Line{Name: "MA" + model.Itoa(w), Values: out})
	}
	return lines
}

// EXPMA computes exponential moving averages with alpha = 2/(w+1).
// Every line is seeded with close[0] at index 0, so the output carries
// no sentinels. Early values are biased toward close[0]; that is the
// engine's output contract, not a warm-up bug.
func EXPMA(closes []float64, windows []int) []Line {
	lines := make([]Line, 0, len(windows))
	for _, w := range windows {
		if w <= 0 {
			w = 1
		}
		lines = append(lines, Line{Name: "EXPMA" + model.Itoa(w), Values: expma(closes, w)})
	}
	return lines
}

// expma is the recursive EMA with the seed-at-index-0 convention shared
// by EXPMA and MACD.
func expma(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}
