package fx

import "math"

// Curve names a parameter automation shape.
type Curve string

const (
	CurveLinear      Curve = "linear"
	CurveSmoothstep  Curve = "smoothstep"
	CurveExponential Curve = "exponential"
)

// ValidCurve reports whether c names a known automation curve.
func ValidCurve(c Curve) bool {
	switch c {
	case CurveLinear, CurveSmoothstep, CurveExponential:
		return true
	}
	return false
}

// Weight maps progress in [0,1] to an interpolation weight in [0,1].
// All curves satisfy Weight(0)=0 and Weight(1)=1.
func (c Curve) Weight(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	switch c {
	case CurveSmoothstep:
		return t * t * (3 - 2*t)
	case CurveExponential:
		return math.Pow(t, 2.5)
	default:
		return t
	}
}
