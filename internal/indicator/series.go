package indicator

import (
	"math"
	"strconv"
)

// None is the "no value" sentinel inside output arrays. It marks warm-up
// positions where not enough history exists yet. Arrays keep their full
// length so series[i] always lines up with bars[i].
var None = math.NaN()

// IsNone reports whether v is the sentinel.
func IsNone(v float64) bool { return math.IsNaN(v) }

// Line is one named numeric output sequence of an indicator family.
// Sentinel entries marshal as JSON null.
type Line struct {
	Name   string
	Values []float64
}

// MarshalJSON emits {"name":...,"values":[...]} with null for sentinel
// entries. Hand-rolled because encoding/json rejects NaN.
func (l Line) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 32+12*len(l.Values))
	buf = append(buf, `{"name":`...)
	buf = strconv.AppendQuote(buf, l.Name)
	buf = append(buf, `,"values":`...)
	buf = appendFloats(buf, l.Values)
	buf = append(buf, '}')
	return buf, nil
}

func appendFloats(buf []byte, vals []float64) []byte {
	buf = append(buf, '[')
	for i, v := range vals {
		if i > 0 {
			buf = append(buf, ',')
		}
		if IsNone(v) || math.IsInf(v, 0) {
			buf = append(buf, "null"...)
		} else {
			buf = strconv.AppendFloat(buf, v, 'f', -1, 64)
		}
	}
	return append(buf, ']')
}

// Signals is a nullable-integer column (TD Sequential counts).
// 0 means "no signal" and marshals as null; valid counts are 1..9.
type Signals []int

// MarshalJSON emits [null,1,2,...] with null for zero entries.
func (s Signals) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 2+6*len(s))
	buf = append(buf, '[')
	for i, v := range s {
		if i > 0 {
			buf = append(buf, ',')
		}
		if v == 0 {
			buf = append(buf, "null"...)
		} else {
			buf = strconv.AppendInt(buf, int64(v), 10)
		}
	}
	return append(buf, ']'), nil
}

// Series is the computed output of one indicator family. Lines is set
// for every family; Trend only for SAR; Buy/Sell only for TD Sequential.
type Series struct {
	Kind  Kind    `json:"kind"`
	Lines []Line  `json:"lines"`
	Trend []bool  `json:"trend,omitempty"`
	Buy   Signals `json:"buy,omitempty"`
	Sell  Signals `json:"sell,omitempty"`
}

// MarshalJSON emits the kind by name rather than enum value.
func (s *Series) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, `{"kind":`...)
	buf = strconv.AppendQuote(buf, s.Kind.String())
	buf = append(buf, `,"lines":[`...)
	for i := range s.Lines {
		if i > 0 {
			buf = append(buf, ',')
		}
		lb, err := s.Lines[i].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf = append(buf, lb...)
	}
	buf = append(buf, ']')
	if s.Trend != nil {
		buf = append(buf, `,"trend":[`...)
		for i, up := range s.Trend {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = strconv.AppendBool(buf, up)
		}
		buf = append(buf, ']')
	}
	if s.Buy != nil {
		buf = append(buf, `,"buy":`...)
		bb, _ := s.Buy.MarshalJSON()
		buf = append(buf, bb...)
	}
	if s.Sell != nil {
		buf = append(buf, `,"sell":`...)
		sb, _ := s.Sell.MarshalJSON()
		buf = append(buf, sb...)
	}
	return append(buf, '}'), nil
}

// nones returns a full-length array of sentinels.
func nones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = None
	}
	return out
}
