package prerender

import "math"

// Crossfade curve names accepted in set plans.
const (
	CurveNameLinear      = "linear"
	CurveNameSCurve      = "s-curve"
	CurveNameExponential = "exponential"
)

// exponentialPower biases the exponential curve toward the end of the
// transition.
const exponentialPower = 2.5

// CrossfadeWeight maps transition progress in [0,1] to a blend weight in
// [0,1]. Every curve satisfies f(0)=0 and f(1)=1. Unknown names fall back
// to linear.
func CrossfadeWeight(progress float64, curveName string) float64 {
	if progress <= 0 {
		return 0
	}
	if progress >= 1 {
		return 1
	}
	switch curveName {
	case CurveNameSCurve:
		return progress * progress * (3 - 2*progress)
	case CurveNameExponential:
		return math.Pow(progress, exponentialPower)
	default:
		return progress
	}
}
