// Package dsp implements the power-of-two halfband decimator/
// interpolator cascade used on the Rx (decimate) and Tx (interpolate)
// sides of the streaming daemon, including the branchless Fs/4 mixer
// used to place the tuned frequency within the decimated band.
package dsp

import "fmt"

// MaxLog2Factor is the largest decimation/interpolation factor the
// cascade supports, expressed as a log2 integer.
const MaxLog2Factor = 6

// Decimator halves the sample rate log2Factor times, optionally
// translating the tuned frequency by ±Fs/4 before the first stage
// depending on FCPos.
type Decimator struct {
	log2Factor int
	fcPos      FCPos
	stages     []*halfbandStage
	mixer      *quarterMixer
}

// NewDecimator builds a decimation chain for the given input sample
// rate (Hz). log2Factor must be in [0, MaxLog2Factor]; 0 is a
// pass-through.
func NewDecimator(log2Factor int, fcPos FCPos, inputRate float64) (*Decimator, error) {
	if log2Factor < 0 || log2Factor > MaxLog2Factor {
		return nil, fmt.Errorf("dsp: decim log2 factor %d out of range [0, %d]", log2Factor, MaxLog2Factor)
	}
	d := &Decimator{log2Factor: log2Factor, fcPos: fcPos}
	if log2Factor == 0 {
		return d, nil
	}
	if fcPos != FCCenter {
		d.mixer = newQuarterMixer(fcPos)
	}
	rate := inputRate
	for i := 0; i < log2Factor; i++ {
		d.stages = append(d.stages, newHalfbandDecimateStage(rate))
		rate /= 2
	}
	return d, nil
}

// Process decimates in, returning a vector of length len(in) >>
// log2Factor. Factor 0 returns in unchanged (pass-through, no copy).
func (d *Decimator) Process(in []complex64) []complex64 {
	if d.log2Factor == 0 {
		return in
	}
	out := in
	if d.mixer != nil {
		mixed := make([]complex64, len(in))
		d.mixer.mix(in, mixed)
		out = mixed
	}
	for _, stage := range d.stages {
		out = stage.work(out)
	}
	return out
}

// Reset flushes all stage state and rewinds the mixer phase.
// Reconfiguration discards the in-flight buffer rather than emitting it.
func (d *Decimator) Reset() {
	if d.mixer != nil {
		d.mixer.reset()
	}
	for i, old := range d.stages {
		// Rebuilding the stage is the simplest correct way to clear a
		// segdsp FirFilter's internal history; there is no exposed
		// Flush/Reset on the filter itself.
		d.stages[i] = newHalfbandDecimateStage(stageRateHint(old))
	}
}

// Log2Factor reports the configured decimation factor.
func (d *Decimator) Log2Factor() int { return d.log2Factor }

// FCPos reports the configured frequency placement.
func (d *Decimator) FCPos() FCPos { return d.fcPos }

// stageRateHint is a placeholder used only by Reset to rebuild a stage
// with an equivalent cutoff; since MakeLowPass's absolute rate only
// scales the tap design and the relative cutoff (Fs/4) is unaffected by
// the specific value used here, a nominal rate is sufficient to
// reproduce an equivalent filter.
func stageRateHint(*halfbandStage) float64 { return 2.0 }

// Interpolator doubles the sample rate log2Factor times. Interpolation
// is always centered; there is no infra/supra option.
type Interpolator struct {
	log2Factor int
	stages     []*halfbandStage
}

// NewInterpolator builds an interpolation chain producing the given
// output sample rate (Hz).
func NewInterpolator(log2Factor int, outputRate float64) (*Interpolator, error) {
	if log2Factor < 0 || log2Factor > MaxLog2Factor {
		return nil, fmt.Errorf("dsp: interp log2 factor %d out of range [0, %d]", log2Factor, MaxLog2Factor)
	}
	it := &Interpolator{log2Factor: log2Factor}
	if log2Factor == 0 {
		return it, nil
	}
	// Stage 0 runs at 2x the input rate, stage N-1 at the final output
	// rate; build from the output rate backwards so each stage's cutoff
	// matches its own output Nyquist.
	rates := make([]float64, log2Factor)
	rate := outputRate
	for i := log2Factor - 1; i >= 0; i-- {
		rates[i] = rate
		rate /= 2
	}
	for i := 0; i < log2Factor; i++ {
		it.stages = append(it.stages, newHalfbandInterpolateStage(rates[i]))
	}
	return it, nil
}

// Process interpolates in, returning a vector of length len(in) <<
// log2Factor.
func (it *Interpolator) Process(in []complex64) []complex64 {
	if it.log2Factor == 0 {
		return in
	}
	out := in
	for _, stage := range it.stages {
		out = stage.work(out)
	}
	return out
}

// Reset flushes all stage state, discarding the in-flight buffer.
func (it *Interpolator) Reset() {
	for i, old := range it.stages {
		it.stages[i] = newHalfbandInterpolateStage(stageRateHint(old))
	}
}

// Log2Factor reports the configured interpolation factor.
func (it *Interpolator) Log2Factor() int { return it.log2Factor }
