package mix

import "math"

// CrossfaderCurve names the taper applied between the two crossfader sides.
type CrossfaderCurve string

const (
	CurveLinear      CrossfaderCurve = "linear"
	CurveLogarithmic CrossfaderCurve = "logarithmic"
	CurveScratch     CrossfaderCurve = "scratch"
)

// ValidCurve reports whether c names a known crossfader curve.
func ValidCurve(c CrossfaderCurve) bool {
	switch c {
	case CurveLinear, CurveLogarithmic, CurveScratch:
		return true
	}
	return false
}

// CrossfaderGains maps a crossfader position in [-1,1] to the (gainA,
// gainB) pair for the two sides.
//
// linear sums to 1 across the sweep; logarithmic keeps equal perceived
// power with a square-root taper of the same endpoints; scratch holds each
// side at full gain until within 0.2 of the opposite extreme, for cut-style
// mixing.
func CrossfaderGains(position float64, curve CrossfaderCurve) (gainA, gainB float64) {
	a := (1 - position) / 2
	b := (1 + position) / 2

	switch curve {
	case CurveLogarithmic:
		return math.Sqrt(a), math.Sqrt(b)
	case CurveScratch:
		return clamp01(a / 0.1), clamp01(b / 0.1)
	default:
		return a, b
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
