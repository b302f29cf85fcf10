package dsp

import "testing"

func approxEq(a, b complex64) bool {
	const eps = 1e-4
	d := a - b
	re, im := real(d), imag(d)
	if re < 0 {
		re = -re
	}
	if im < 0 {
		im = -im
	}
	return re < eps && im < eps
}

func TestQuarterMixerSupra(t *testing.T) {
	m := newQuarterMixer(FCSupra)
	in := []complex64{1, 1, 1, 1, 1}
	out := make([]complex64, len(in))
	m.mix(in, out)

	want := []complex64{1, complex(0, 1), -1, complex(0, -1), 1}
	for i := range want {
		if !approxEq(out[i], want[i]) {
			t.Fatalf("phase %d: got %v want %v", i, out[i], want[i])
		}
	}
}

func TestQuarterMixerInfra(t *testing.T) {
	m := newQuarterMixer(FCInfra)
	in := []complex64{1, 1, 1, 1, 1}
	out := make([]complex64, len(in))
	m.mix(in, out)

	want := []complex64{1, complex(0, -1), -1, complex(0, 1), 1}
	for i := range want {
		if !approxEq(out[i], want[i]) {
			t.Fatalf("phase %d: got %v want %v", i, out[i], want[i])
		}
	}
}

func TestQuarterMixerResetRewindsPhase(t *testing.T) {
	m := newQuarterMixer(FCSupra)
	in := []complex64{1, 1, 1}
	out := make([]complex64, len(in))
	m.mix(in, out)
	m.reset()
	if m.phase != 0 {
		t.Fatalf("phase after reset = %d, want 0", m.phase)
	}
}

func TestDecimatorPassThrough(t *testing.T) {
	d, err := NewDecimator(0, FCCenter, 2_000_000)
	if err != nil {
		t.Fatal(err)
	}
	in := make([]complex64, 128)
	out := d.Process(in)
	if len(out) != len(in) {
		t.Fatalf("pass-through length = %d, want %d", len(out), len(in))
	}
}

func TestDecimatorRejectsOutOfRangeFactor(t *testing.T) {
	if _, err := NewDecimator(MaxLog2Factor+1, FCCenter, 2_000_000); err == nil {
		t.Fatal("expected error for out-of-range decimation factor")
	}
	if _, err := NewDecimator(-1, FCCenter, 2_000_000); err == nil {
		t.Fatal("expected error for negative decimation factor")
	}
}

func TestInterpolatorPassThrough(t *testing.T) {
	it, err := NewInterpolator(0, 2_000_000)
	if err != nil {
		t.Fatal(err)
	}
	in := make([]complex64, 64)
	out := it.Process(in)
	if len(out) != len(in) {
		t.Fatalf("pass-through length = %d, want %d", len(out), len(in))
	}
}
