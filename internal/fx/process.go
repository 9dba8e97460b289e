package fx

import (
	"math"

	"github.com/deckwave/deckwave/internal/audio"
)

// defaultParams seeds an effect's parameter mapping from its type and
// intensity.
func defaultParams(t Type, intensity float64) map[string]float64 {
	switch t {
	case FilterSweep:
		return map[string]float64{"cutoff": 1 - intensity}
	case EQSweep:
		return map[string]float64{"position": 0}
	case Echo, Delay:
		return map[string]float64{"mix": intensity * 0.6, "feedback": 0.4 + intensity*0.3}
	case Reverb:
		return map[string]float64{"mix": intensity * 0.5, "decay": 0.5 + intensity*0.4}
	case Gate:
		return map[string]float64{"rate": 4 + intensity*12, "depth": intensity}
	case Scratch:
		return map[string]float64{"depth": intensity}
	case Flanger:
		return map[string]float64{"rate": 0.25 + intensity*2, "depth": intensity * 0.7}
	}
	return map[string]float64{}
}

// resolveDelta turns an effect's resolved parameters into the per-tick mix
// delta applied by the live engine. Time-domain tails (echo, reverb, delay,
// flanger) are realized fully only on the offline path; live they contribute
// tone/level shaping so the deck still reacts audibly to the control.
func resolveDelta(t Type, params map[string]float64, intensity, progress float64) Delta {
	d := unityDelta()
	switch t {
	case FilterSweep:
		cutoff := clamp01(params["cutoff"])
		d.EQHigh = lerp(1, cutoff, intensity)
		d.EQMid = lerp(1, 0.5+0.5*cutoff, intensity)
	case EQSweep:
		pos := clamp01(params["position"])
		d.EQLow = lerp(1, 1-pos, intensity)
		d.EQHigh = lerp(1, pos, intensity)
	case Gate:
		rate := params["rate"]
		depth := clamp01(params["depth"])
		if math.Sin(2*math.Pi*rate*progress) < 0 {
			d.Level = 1 - depth
		}
	case Scratch:
		depth := clamp01(params["depth"])
		// deterministic chop pattern from progress
		d.Level = 1 - depth*math.Abs(math.Sin(2*math.Pi*8*progress))
	case Echo, Delay:
		d.Level = 1 + clamp01(params["mix"])*0.15
	case Reverb:
		d.Level = 1 + clamp01(params["mix"])*0.1
	case Flanger:
		depth := clamp01(params["depth"])
		d.EQMid = 1 + depth*0.2*math.Sin(2*math.Pi*params["rate"]*progress)
	}
	return d
}

// ProcessTransitionEffect mutates one interleaved stereo segment in place.
// Pure function of (segment, type, intensity, progress): no state survives
// between calls, which keeps offline rendering deterministic.
func ProcessTransitionEffect(segment []float32, t Type, intensity, progress float64) {
	if len(segment) == 0 || intensity <= 0 {
		return
	}
	intensity = clamp01(intensity)
	progress = clamp01(progress)

	switch t {
	case FilterSweep:
		// cutoff sweeps down across the segment, deeper with intensity
		sweepLowpass(segment, 18000, 18000*math.Pow(0.02, intensity))
	case EQSweep:
		// emphasis travels from lows to highs across the segment
		sweepHighpass(segment, 40, 40*math.Pow(200, intensity))
	case Echo:
		feedbackDelay(segment, int(0.25*audio.SampleRate), 0.5*intensity, 3)
	case Delay:
		sr := float64(audio.SampleRate)
		feedbackDelay(segment, int(0.375*sr), 0.45*intensity, 1)
	case Reverb:
		// dense short taps approximating an early-reflection tail
		for i, ms := range []float64{0.029, 0.037, 0.041, 0.053} {
			feedbackDelay(segment, int(ms*audio.SampleRate), 0.3*intensity/float64(i+1), 1)
		}
	case Gate:
		rate := 8.0
		for f := 0; f < len(segment)/2; f++ {
			phase := float64(f) / audio.SampleRate * rate
			if math.Sin(2*math.Pi*phase) < 0 {
				g := float32(1 - intensity)
				segment[f*2] *= g
				segment[f*2+1] *= g
			}
		}
	case Scratch:
		chopReverse(segment, intensity)
	case Flanger:
		modulatedDelay(segment, intensity, progress)
	}
}

// sweepLowpass runs a one-pole lowpass whose cutoff glides exponentially
// from startHz to endHz across the segment.
func sweepLowpass(segment []float32, startHz, endHz float64) {
	frames := len(segment) / 2
	var stateL, stateR float64
	for f := 0; f < frames; f++ {
		t := float64(f) / float64(frames)
		a := audio.OnePoleCoeff(startHz * math.Pow(endHz/startHz, t))
		stateL += a * (float64(segment[f*2]) - stateL)
		stateR += a * (float64(segment[f*2+1]) - stateR)
		segment[f*2] = float32(stateL)
		segment[f*2+1] = float32(stateR)
	}
}

// sweepHighpass subtracts a gliding one-pole lowpass from the dry signal.
func sweepHighpass(segment []float32, startHz, endHz float64) {
	frames := len(segment) / 2
	var stateL, stateR float64
	for f := 0; f < frames; f++ {
		t := float64(f) / float64(frames)
		a := audio.OnePoleCoeff(startHz * math.Pow(endHz/startHz, t))
		l, r := float64(segment[f*2]), float64(segment[f*2+1])
		stateL += a * (l - stateL)
		stateR += a * (r - stateR)
		segment[f*2] = float32(l - stateL)
		segment[f*2+1] = float32(r - stateR)
	}
}

// feedbackDelay mixes in taps decades of delayFrames apart, each scaled by
// mix^n. Reads only from earlier in the same segment.
func feedbackDelay(segment []float32, delayFrames int, mix float64, taps int) {
	if delayFrames <= 0 || mix <= 0 {
		return
	}
	frames := len(segment) / 2
	for f := frames - 1; f >= 0; f-- {
		var accL, accR float64
		g := mix
		for n := 1; n <= taps; n++ {
			src := f - n*delayFrames
			if src < 0 {
				break
			}
			accL += float64(segment[src*2]) * g
			accR += float64(segment[src*2+1]) * g
			g *= mix
		}
		segment[f*2] = audio.Clamp(segment[f*2] + float32(accL))
		segment[f*2+1] = audio.Clamp(segment[f*2+1] + float32(accR))
	}
}

// chopReverse reverses short chunks of the segment, harder with intensity.
func chopReverse(segment []float32, intensity float64) {
	chunk := int(float64(audio.SampleRate) * 0.08) // 80ms chunks
	frames := len(segment) / 2
	for start := 0; start < frames; start += chunk * 2 {
		end := start + chunk
		if end > frames {
			end = frames
		}
		for i, j := start, end-1; i < j; i, j = i+1, j-1 {
			wetL := segment[j*2]
			wetR := segment[j*2+1]
			dryL := segment[i*2]
			dryR := segment[i*2+1]
			segment[i*2] = lerp32(dryL, wetL, intensity)
			segment[i*2+1] = lerp32(dryR, wetR, intensity)
			segment[j*2] = lerp32(wetL, dryL, intensity)
			segment[j*2+1] = lerp32(wetR, dryR, intensity)
		}
	}
}

// modulatedDelay sweeps a short delay line across the segment for a flanger
// comb effect.
func modulatedDelay(segment []float32, intensity, progress float64) {
	frames := len(segment) / 2
	sr := float64(audio.SampleRate)
	maxDelay := int(0.008 * sr) // 8ms ceiling
	for f := frames - 1; f >= 0; f-- {
		phase := float64(f)/audio.SampleRate*0.5 + progress
		depth := (math.Sin(2*math.Pi*phase) + 1) / 2
		d := int(depth * float64(maxDelay))
		src := f - d
		if src < 0 {
			continue
		}
		g := float32(0.5 * intensity)
		segment[f*2] = audio.Clamp(segment[f*2] + segment[src*2]*g)
		segment[f*2+1] = audio.Clamp(segment[f*2+1] + segment[src*2+1]*g)
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

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func lerp32(a, b float32, t float64) float32 {
	return a + (b-a)*float32(t)
}
