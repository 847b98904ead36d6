// Package indicator computes technical indicator series over bar data.
//
// Every family is a pure batch transform: an ordered []model.Bar in, one
// or more index-aligned output arrays out. Output arrays are always
// exactly as long as the input; positions without enough history carry
// NaN (marshalled as JSON null) so chart alignment never breaks.
package indicator

import "strings"

// Kind identifies one indicator family. The set is closed: dispatch is
// an exhaustive switch, not string matching, so adding a family is a
// compile-time-checked change.
type Kind int

const (
	KindMA Kind = iota
	KindEXPMA
	KindBOLL
	KindMACD
	KindRSI
	KindKDJ
	KindCCI
	KindWR
	KindDMI
	KindOBV
	KindSAR
	KindTD

	kindCount // sentinel, keep last
)

var kindNames = [kindCount]string{
	KindMA:    "MA",
	KindEXPMA: "EXPMA",
	KindBOLL:  "BOLL",
	KindMACD:  "MACD",
	KindRSI:   "RSI",
	KindKDJ:   "KDJ",
	KindCCI:   "CCI",
	KindWR:    "WR",
	KindDMI:   "DMI",
	KindOBV:   "OBV",
	KindSAR:   "SAR",
	KindTD:    "TD",
}

// String returns the chart-facing name of the kind.
func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return "UNKNOWN"
	}
	return kindNames[k]
}

// ParseKind resolves a chart-facing name ("MA", "macd", ...) to a Kind.
func ParseKind(s string) (Kind, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return 0, false
}

// AllKinds returns every indicator kind in display order.
func AllKinds() []Kind {
	out := make([]Kind, kindCount)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// ParseKinds resolves a comma-separated kind list, skipping unknown
// names. Duplicates are collapsed, order of first appearance kept.
func ParseKinds(s string) []Kind {
	var out []Kind
	seen := [kindCount]bool{}
	for _, part := range strings.Split(s, ",") {
		k, ok := ParseKind(part)
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
