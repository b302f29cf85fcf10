package dsp

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// TestDecimatorDCToneAmplitudePreserved is testable property / scenario B
// from the spec: a 0 Hz tone fed through a centered halfband decimator
// comes out the other side still at 0 Hz with unity amplitude, within
// halfband passband ripple. The teacher's demod.doFFT uses
// gonum.org/v1/gonum/dsp/fourier the same way: build a CmplxFFT sized to
// the block, take Coefficients, and inspect the shifted spectrum.
func TestDecimatorDCToneAmplitudePreserved(t *testing.T) {
	const inputRate = 2 * 127 * 127.0
	d, err := NewDecimator(1, FCCenter, inputRate)
	if err != nil {
		t.Fatal(err)
	}

	n := 2 * 127 * 127
	in := make([]complex64, n)
	for i := range in {
		in[i] = complex(1, 0)
	}

	out := d.Process(in)
	if len(out) != n/2 {
		t.Fatalf("decimated length = %d, want %d", len(out), n/2)
	}

	// Drop the filter's settling transient before measuring steady state.
	settled := out[len(out)/4:]

	mags := make([]float64, len(settled))
	for i, s := range settled {
		mags[i] = float64(real(s))
	}
	mean := stat.Mean(mags, nil)
	if math.Abs(mean-1.0) > 0.05 {
		t.Fatalf("steady-state DC amplitude = %v, want ~1.0", mean)
	}

	fft := fourier.NewCmplxFFT(len(settled))
	input := make([]complex128, len(settled))
	for i, s := range settled {
		input[i] = complex128(s)
	}
	coeff := fft.Coefficients(nil, input)

	// ShiftIdx maps a position in the DC-centred spectrum to a raw
	// coefficient index; DC sits at the centre position len/2.
	dcBin := fft.ShiftIdx(len(coeff) / 2)
	dcPower := cmplxAbsSquared(coeff[dcBin])
	for i, c := range coeff {
		if i == dcBin {
			continue
		}
		if p := cmplxAbsSquared(c); p > dcPower*0.05 {
			t.Fatalf("bin %d carries %v power, DC bin carries %v: tone leaked out of DC after centered decimation", i, p, dcPower)
		}
	}
}

func cmplxAbsSquared(c complex128) float64 {
	re, im := real(c), imag(c)
	return re*re + im*im
}
