package mix

import (
	"math"

	"github.com/mjibson/go-dsp/fft"

	"github.com/deckwave/deckwave/internal/audio"
	"github.com/deckwave/deckwave/internal/deck"
)

// autoGainTargetRMS is the reference loudness auto-gain normalizes toward:
// -18 dBFS RMS.
const autoGainTargetRMS = 0.12589254117941673

// ChannelLevels is the metering report for one deck.
type ChannelLevels struct {
	Deck     deck.ID
	Status   deck.Status
	PreFader struct {
		Peak float64
		RMS  float64
	}
	PostFader struct {
		Peak float64
		RMS  float64
	}
	Clipping bool
	// Band energies from an FFT of the deck's current window, for the
	// console's spectrum display.
	BandLow  float64
	BandMid  float64
	BandHigh float64
}

// MasterLevelsReport carries master-bus meters alongside the channels.
type MasterLevelsReport struct {
	Channels [deck.Count]ChannelLevels
	Master   struct {
		Peak     float64
		RMS      float64
		Clipping bool
	}
}

// AllChannelLevels reports pre-fader (post-EQ, pre-crossfader) and
// post-fader levels, clip flags, and spectral band energies for every deck,
// plus the master bus.
func (m *Manager) AllChannelLevels() MasterLevelsReport {
	var report MasterLevelsReport

	m.mu.RLock()
	masterGain := m.state.MasterGain * m.state.MasterVolume
	m.mu.RUnlock()

	for _, snap := range m.eng.Snapshots() {
		cl := ChannelLevels{Deck: snap.ID, Status: snap.Status}
		cl.PreFader.Peak = snap.PeakLevel
		cl.PreFader.RMS = snap.RMSLevel
		post := snap.Params.CrossfaderGain * masterGain
		cl.PostFader.Peak = snap.PeakLevel * post
		cl.PostFader.RMS = snap.RMSLevel * post
		cl.Clipping = cl.PostFader.Peak >= audio.FullScale

		if window := m.eng.DeckWindow(snap.ID, bandWindowFrames); window != nil {
			cl.BandLow, cl.BandMid, cl.BandHigh = BandEnergies(window)
		}
		report.Channels[snap.ID] = cl
	}

	peak, rms := m.eng.MasterLevels()
	report.Master.Peak = peak
	report.Master.RMS = rms
	report.Master.Clipping = peak >= audio.FullScale
	return report
}

const bandWindowFrames = 4096

// Band split points for the spectrum meter, matching the deck EQ.
const (
	bandLowHz  = 250.0
	bandHighHz = 4000.0
)

// BandEnergies runs an FFT over an interleaved stereo window (mono-summed)
// and returns the normalized energy in the low, mid and high bands.
func BandEnergies(window []float32) (low, mid, high float64) {
	frames := len(window) / 2
	if frames < 2 {
		return 0, 0, 0
	}
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		mono[i] = (float64(window[i*2]) + float64(window[i*2+1])) / 2
	}

	coeffs := fft.FFTReal(mono)
	binHz := float64(audio.SampleRate) / float64(frames)

	var sums [3]float64
	var counts [3]int
	for i := 1; i < len(coeffs)/2; i++ {
		freq := float64(i) * binHz
		mag := math.Sqrt(real(coeffs[i])*real(coeffs[i]) + imag(coeffs[i])*imag(coeffs[i]))
		switch {
		case freq < bandLowHz:
			sums[0] += mag * mag
			counts[0]++
		case freq < bandHighHz:
			sums[1] += mag * mag
			counts[1]++
		default:
			sums[2] += mag * mag
			counts[2]++
		}
	}
	for i, c := range counts {
		if c > 0 {
			sums[i] = math.Sqrt(sums[i]/float64(c)) / float64(frames)
		}
	}
	return sums[0], sums[1], sums[2]
}

// AutoGainResult reports a loudness measurement and the suggested gain.
type AutoGainResult struct {
	Success       bool
	Error         string
	MeasuredRMS   float64
	SuggestedGain float64
	Applied       bool
}

// AutoGainDeck measures a deck's RMS energy over a window at the current
// position and computes a linear gain multiplier targeting the reference
// loudness. When apply is set the gain is written to the deck. An empty
// deck fails gracefully.
func (m *Manager) AutoGainDeck(id deck.ID, apply bool) AutoGainResult {
	if !id.Valid() {
		return AutoGainResult{Error: deck.ErrInvalidDeck.Error()}
	}

	// ~2 seconds of audio
	window := m.eng.DeckWindow(id, 2*audio.SampleRate)
	if window == nil {
		return AutoGainResult{Error: "deck is empty"}
	}

	var sum float64
	for _, s := range window {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(window)))
	if rms == 0 {
		return AutoGainResult{Error: "deck window is silent"}
	}

	suggested := autoGainTargetRMS / rms
	if suggested < 0.25 {
		suggested = 0.25
	}
	if suggested > 4.0 {
		suggested = 4.0
	}

	res := AutoGainResult{Success: true, MeasuredRMS: rms, SuggestedGain: suggested}
	if apply {
		if err := m.eng.SetDeckGain(id, suggested); err != nil {
			return AutoGainResult{Error: err.Error(), MeasuredRMS: rms, SuggestedGain: suggested}
		}
		res.Applied = true
		m.log.Info().Str("deck", id.String()).Float64("rms", rms).
			Float64("gain", suggested).Msg("auto-gain applied")
	}
	return res
}
