package indicator

import "marketviz/internal/model"

// Params holds per-family parameters. Charts almost always run the
// canonical set; the service may override windows from config.
type Params struct {
	MAWindows    []int
	EXPMAWindows []int

	BollPeriod int
	BollK      float64

	MACDFast   int
	MACDSlow   int
	MACDSignal int

	RSIPeriod int

	KDJN       int
	KDJKPeriod int
	KDJDPeriod int

	CCIPeriod int
	WRPeriod  int
	DMIPeriod int

	SARStep    float64
	SARMaxStep float64
}

// DefaultParams returns the canonical chart parameter set.
func DefaultParams() Params {
	return Params{
		MAWindows:    []int{5, 10, 20, 60, 250},
		EXPMAWindows: []int{5, 10, 20, 60, 250},
		BollPeriod:   20,
		BollK:        2,
		MACDFast:     12,
		MACDSlow:     26,
		MACDSignal:   9,
		RSIPeriod:    14,
		KDJN:         9,
		KDJKPeriod:   3,
		KDJDPeriod:   3,
		CCIPeriod:    14,
		WRPeriod:     14,
		DMIPeriod:    14,
		SARStep:      0.02,
		SARMaxStep:   0.2,
	}
}

// Compute runs one indicator family over the bars and returns its
// series. Bars pass through the model.SafeFloat coercion exactly once,
// here, so family code can assume clean numbers. The transform is pure:
// identical input always yields identical output, which is what makes
// result caching safe.
func Compute(kind Kind, bars []model.Bar, p Params) *Series {
	clean := make([]model.Bar, len(bars))
	for i, b := range bars {
		clean[i] = b.Sanitize()
	}
	closes := make([]float64, len(clean))
	for i, b := range clean {
		closes[i] = b.Close
	}

	out := &Series{Kind: kind}
	switch kind {
	case KindMA:
		out.Lines = MA(closes, p.MAWindows)
	case KindEXPMA:
		out.Lines = EXPMA(closes, p.EXPMAWindows)
	case KindBOLL:
		out.Lines = BOLL(closes, p.BollPeriod, p.BollK)
	case KindMACD:
		out.Lines = MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	case KindRSI:
		out.Lines = []Line{{Name: "RSI", Values: RSI(closes, p.RSIPeriod)}}
	case KindKDJ:
		out.Lines = KDJ(clean, p.KDJN, p.KDJKPeriod, p.KDJDPeriod)
	case KindCCI:
		out.Lines = []Line{{Name: "CCI", Values: CCI(clean, p.CCIPeriod)}}
	case KindWR:
		out.Lines = []Line{{Name: "WR", Values: WR(clean, p.WRPeriod)}}
	case KindDMI:
		out.Lines = DMI(clean, p.DMIPeriod)
	case KindOBV:
		out.Lines = []Line{{Name: "OBV", Values: OBV(clean)}}
	case KindSAR:
		level, trend := SAR(clean, p.SARStep, p.SARMaxStep)
		out.Lines = []Line{{Name: "SAR", Values: level}}
		out.Trend = trend
	case KindTD:
		buy, sell := TDSequential(closes)
		out.Buy = buy
		out.Sell = sell
	}
	return out
}
