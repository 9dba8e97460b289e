package audio

import "math"

// Band split points for the three-band channel EQ.
const (
	EQLowCutoffHz  = 250.0
	EQHighCutoffHz = 4000.0
)

// ThreeBandEQ splits a stereo signal into low/mid/high bands with one-pole
// filters and recombines them under per-band gains. The filter memories
// persist across buffers so the split stays continuous at tick boundaries.
type ThreeBandEQ struct {
	lowL, lowR   float64
	highL, highR float64
}

var (
	eqLowCoeff  = OnePoleCoeff(EQLowCutoffHz)
	eqHighCoeff = OnePoleCoeff(EQHighCutoffHz)
)

// OnePoleCoeff returns the smoothing coefficient of a one-pole filter at
// the given cutoff for the engine sample rate.
func OnePoleCoeff(cutoffHz float64) float64 {
	if cutoffHz < 10 {
		cutoffHz = 10
	}
	rc := 1.0 / (2 * math.Pi * cutoffHz)
	dt := 1.0 / SampleRate
	return dt / (rc + dt)
}

// Process filters one stereo frame and returns it with the band gains
// applied.
func (s *ThreeBandEQ) Process(l, r, gainLow, gainMid, gainHigh float64) (float64, float64) {
	s.lowL += eqLowCoeff * (l - s.lowL)
	s.lowR += eqLowCoeff * (r - s.lowR)
	s.highL += eqHighCoeff * (l - s.highL)
	s.highR += eqHighCoeff * (r - s.highR)

	highOutL := l - s.highL
	highOutR := r - s.highR
	midL := l - s.lowL - highOutL
	midR := r - s.lowR - highOutR

	outL := s.lowL*gainLow + midL*gainMid + highOutL*gainHigh
	outR := s.lowR*gainLow + midR*gainMid + highOutR*gainHigh
	return outL, outR
}

// Reset clears the filter memories.
func (s *ThreeBandEQ) Reset() {
	*s = ThreeBandEQ{}
}
