package dsp

import (
	segdsp "github.com/racerxdl/segdsp/dsp"
)

// halfbandTransitionFraction is the width of the transition band as a
// fraction of the rate the stage's filter runs at (the input rate when
// decimating, the output rate when interpolating). A classical halfband
// design puts the transition straddling Fs/4; segdsp.MakeLowPass wants
// an absolute cutoff and transition width in Hz, so both are derived
// from that rate.
const halfbandTransitionFraction = 0.1

// halfbandStopbandAttenuationDB documents the target used when sizing
// taps; segdsp.MakeLowPass derives tap count from gain/transition width
// internally, so this is informational rather than a parameter we pass.
const halfbandStopbandAttenuationDB = 80.0

// halfbandStage is a single ×2 decimator or interpolator stage: one
// segdsp FIR filter running a symmetric low-pass kernel with its cutoff
// at a quarter of the filter's rate (the narrower band's Nyquist
// frequency). The kernel is applied as a single full-length FIR, not
// split into polyphase arms.
type halfbandStage struct {
	filter *segdsp.FirFilter
}

func newHalfbandDecimateStage(inputRate float64) *halfbandStage {
	cutoff := inputRate / 4.0
	transition := inputRate * halfbandTransitionFraction
	taps := segdsp.MakeLowPass(1.0, inputRate, cutoff, transition)
	return &halfbandStage{filter: segdsp.MakeDecimationFirFilter(2, taps)}
}

func newHalfbandInterpolateStage(outputRate float64) *halfbandStage {
	cutoff := outputRate / 4.0
	transition := outputRate * halfbandTransitionFraction
	// Gain of 2 compensates for the amplitude loss introduced by
	// zero-stuffing during ×2 upsampling.
	taps := segdsp.MakeLowPass(2.0, outputRate, cutoff, transition)
	return &halfbandStage{filter: segdsp.MakeInterpolationFirFilter(2, taps)}
}

func (h *halfbandStage) work(in []complex64) []complex64 {
	return h.filter.Work(in)
}
