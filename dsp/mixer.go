package dsp

// FCPos is the placement of the tuned RF frequency relative to the
// decimated output band.
type FCPos int

const (
	// FCInfra translates by -Fs/4 before the first halfband stage, so
	// the tuned RF sits at -Fs_out/4 of the output band.
	FCInfra FCPos = iota
	// FCSupra translates by +Fs/4.
	FCSupra
	// FCCenter applies no translation; tuned RF lands at DC.
	FCCenter
)

// quarterMixer implements the exact Fs/4 mixer as a 4-phase lookup,
// cycling with the sample index modulo 4. Multiplying by e^(-j*pi*n/2)
// for n = 0,1,2,3 is exactly multiplying by 1, -j, -1, j in sequence;
// the conjugate (+Fs/4) cycles 1, j, -1, -j. This is branchless and
// bit-exact, unlike a sin/cos based mixer.
type quarterMixer struct {
	phase int
	sign  int // +1 for supra (+Fs/4), -1 for infra (-Fs/4)
}

func newQuarterMixer(pos FCPos) *quarterMixer {
	m := &quarterMixer{}
	if pos == FCSupra {
		m.sign = 1
	} else {
		m.sign = -1
	}
	return m
}

// mix multiplies in by the running quarter-rate phasor and writes the
// result into out, which must have the same length as in. in and out may
// alias.
func (m *quarterMixer) mix(in, out []complex64) {
	for i, s := range in {
		phase := m.phase
		var r complex64
		switch {
		case phase == 0:
			r = s
		case (phase == 1 && m.sign < 0) || (phase == 3 && m.sign > 0):
			// multiply by -j
			r = complex(imag(s), -real(s))
		case phase == 2:
			r = -s
		default:
			// multiply by +j
			r = complex(-imag(s), real(s))
		}
		out[i] = r
		m.phase = (phase + 1) & 3
	}
}

// reset returns the mixer to phase zero, used when the DSP chain is
// reconfigured and its state is flushed.
func (m *quarterMixer) reset() {
	m.phase = 0
}
