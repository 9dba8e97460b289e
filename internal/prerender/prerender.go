package prerender

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/deckwave/deckwave/internal/audio"
	"github.com/deckwave/deckwave/internal/fx"
)

// normalizeCeiling is the post-composite peak target, leaving ~0.9dB of
// headroom below full scale.
const normalizeCeiling = 0.9

// DecodeFunc decodes a source file to interleaved stereo float samples at
// the engine sample rate. Swappable in tests.
type DecodeFunc func(path string) ([]float32, error)

// Renderer performs deterministic one-shot offline rendering of a complete
// set plan. It lives off the real-time path and shares the curve and effect
// math with the live engine.
type Renderer struct {
	decode DecodeFunc
	log    zerolog.Logger
}

// NewRenderer creates a renderer using the standard FFmpeg decoder.
func NewRenderer(logger zerolog.Logger) *Renderer {
	return &Renderer{
		decode: audio.DecodeFile,
		log:    logger.With().Str("component", "prerender").Logger(),
	}
}

// NewRendererWithDecoder creates a renderer with a custom decoder.
func NewRendererWithDecoder(decode DecodeFunc, logger zerolog.Logger) *Renderer {
	return &Renderer{
		decode: decode,
		log:    logger.With().Str("component", "prerender").Logger(),
	}
}

// PrerenderSet composites the plan into a single WAV file at outputPath and
// returns the path. Unreadable sources become silence; the output duration
// always equals the plan's TotalDuration.
func (r *Renderer) PrerenderSet(ctx context.Context, plan *SetPlan, outputPath string) (string, error) {
	if err := plan.Validate(); err != nil {
		return "", fmt.Errorf("invalid set plan: %w", err)
	}

	decoded := r.decodeTracks(ctx, plan)
	if err := ctx.Err(); err != nil {
		return "", err
	}

	master := r.Composite(plan, decoded)

	NormalizePeak(master, normalizeCeiling)

	if err := audio.WriteWAVFile(outputPath, master); err != nil {
		return "", err
	}
	r.log.Info().Str("path", outputPath).Float64("duration", plan.TotalDuration).
		Int("tracks", len(plan.Tracks)).Int("transitions", len(plan.Transitions)).
		Msg("set prerendered")
	return outputPath, nil
}

// decodeTracks decodes every source in parallel. The composite pass that
// follows walks tracks in plan order, so parallel decoding cannot disturb
// determinism.
func (r *Renderer) decodeTracks(ctx context.Context, plan *SetPlan) map[int][]float32 {
	var mu sync.Mutex
	var wg sync.WaitGroup
	decoded := make(map[int][]float32, len(plan.Tracks))

	for i := range plan.Tracks {
		t := &plan.Tracks[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			samples, err := r.decode(t.Path)
			if err != nil {
				r.log.Warn().Err(err).Str("path", t.Path).Int("order", t.Order).
					Msg("source unreadable, substituting silence")
				return
			}
			mu.Lock()
			decoded[t.Order] = samples
			mu.Unlock()
		}()
	}
	wg.Wait()
	return decoded
}

// Composite places every track on the global timeline with its fade
// envelopes, static EQ/gain and transition blend weights, then applies
// transition effects. Returns the interleaved master buffer.
func (r *Renderer) Composite(plan *SetPlan, decoded map[int][]float32) []float32 {
	totalFrames := int(math.Round(plan.TotalDuration * audio.SampleRate))
	master := make([]float32, totalFrames*2)

	for i := range plan.Tracks {
		r.placeTrack(master, totalFrames, plan, &plan.Tracks[i], decoded[plan.Tracks[i].Order])
	}

	for i := range plan.Transitions {
		applyTransitionEffects(master, totalFrames, &plan.Transitions[i])
	}
	return master
}

func (r *Renderer) placeTrack(master []float32, totalFrames int, plan *SetPlan, t *PlannedTrack, samples []float32) {
	if samples == nil {
		return // unreadable source: its window stays silent
	}

	gain := t.Gain
	if gain == 0 {
		gain = 1
	}
	eqLow, eqMid, eqHigh := t.EQLow, t.EQMid, t.EQHigh
	if eqLow == 0 {
		eqLow = 1
	}
	if eqMid == 0 {
		eqMid = 1
	}
	if eqHigh == 0 {
		eqHigh = 1
	}

	startFrame := int(math.Round(t.StartTime * audio.SampleRate))
	endFrame := int(math.Round(t.EndTime * audio.SampleRate))
	if endFrame > totalFrames {
		endFrame = totalFrames
	}

	var eq audio.ThreeBandEQ
	srcFrames := len(samples) / 2

	for g := startFrame; g < endFrame; g++ {
		src := g - startFrame
		if src >= srcFrames {
			break
		}
		now := float64(g) / audio.SampleRate

		env := fadeEnvelope(now, t) * gain * transitionWeight(plan, t.Order, now)

		l := float64(samples[src*2])
		rr := float64(samples[src*2+1])
		l, rr = eq.Process(l, rr, eqLow, eqMid, eqHigh)

		master[g*2] += float32(l * env)
		master[g*2+1] += float32(rr * env)
	}
}

// fadeEnvelope is the linear fade-in/fade-out ramp at time now on the set
// timeline.
func fadeEnvelope(now float64, t *PlannedTrack) float64 {
	env := 1.0
	if t.FadeIn > 0 && now < t.StartTime+t.FadeIn {
		env = (now - t.StartTime) / t.FadeIn
	}
	if t.FadeOut > 0 {
		fadeStart := t.EndTime - t.FadeOut
		if now > fadeStart {
			out := (t.EndTime - now) / t.FadeOut
			if out < env {
				env = out
			}
		}
	}
	if env < 0 {
		return 0
	}
	return env
}

// transitionWeight is the blend factor for a track at time now: outgoing
// tracks ramp 1→0 and incoming tracks 0→1 across their transition window.
func transitionWeight(plan *SetPlan, order int, now float64) float64 {
	weight := 1.0
	for i := range plan.Transitions {
		tr := &plan.Transitions[i]
		if now < tr.StartTime || now > tr.StartTime+tr.Duration || tr.Duration <= 0 {
			continue
		}
		w := CrossfadeWeight((now-tr.StartTime)/tr.Duration, tr.Curve)
		if tr.FromOrder == order {
			weight *= 1 - w
		}
		if tr.ToOrder == order {
			weight *= w
		}
	}
	return weight
}

// applyTransitionEffects mutates the master segments covered by each
// transition effect, at its declared offset within the transition window.
func applyTransitionEffects(master []float32, totalFrames int, tr *Transition) {
	for _, e := range tr.Effects {
		start := int(math.Round((tr.StartTime + e.StartAt) * audio.SampleRate))
		end := int(math.Round((tr.StartTime + e.StartAt + e.Duration) * audio.SampleRate))
		if start < 0 {
			start = 0
		}
		if end > totalFrames {
			end = totalFrames
		}
		if end <= start {
			continue
		}
		progress := 0.0
		if tr.Duration > 0 {
			progress = clamp01(e.StartAt / tr.Duration)
		}
		fx.ProcessTransitionEffect(master[start*2:end*2], e.Type, e.Intensity, progress)
	}
}

// NormalizePeak scales the whole buffer down when its peak exceeds
// targetPeak. Quiet mixes are left untouched.
func NormalizePeak(samples []float32, targetPeak float64) (peakBefore, appliedGain float64) {
	appliedGain = 1
	for _, s := range samples {
		a := math.Abs(float64(s))
		if a > peakBefore {
			peakBefore = a
		}
	}
	if peakBefore == 0 || peakBefore <= targetPeak {
		return peakBefore, appliedGain
	}
	appliedGain = targetPeak / peakBefore
	g := float32(appliedGain)
	for i := range samples {
		samples[i] *= g
	}
	return peakBefore, appliedGain
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
