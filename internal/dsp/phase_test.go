package dsp

import (
	"math"
	"testing"
)

func TestPhaseDelayAndPhaseAt(t *testing.T) {
	in := []complex128{1, 1i}
	out := PhaseDelay(in, 90)
	got, err := PhaseAt(out, 0)
	if err != nil {
		t.Fatalf("PhaseAt returned error: %v", err)
	}
	if math.Abs(got-90) > 1e-9 {
		t.Fatalf("phase = %v, want 90", got)
	}
	got, _ = PhaseAt(out, 1)
	if math.Abs(got-180) > 1e-9 {
		t.Fatalf("phase = %v, want 180", got)
	}
	if _, err := PhaseAt(out, 2); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestToComplex(t *testing.T) {
	out, err := ToComplex([]int64{1, -2}, []int64{3, 4})
	if err != nil {
		t.Fatalf("ToComplex returned error: %v", err)
	}
	if out[0] != complex(1, 3) || out[1] != complex(-2, 4) {
		t.Fatalf("unexpected samples %v", out)
	}
	if _, err := ToComplex([]int64{1}, nil); err == nil {
		t.Fatal("expected length mismatch")
	}
}

func TestSteerRoundTrip(t *testing.T) {
	const freq, d = 10.492e9, 0.015
	for _, angle := range []float64{-30, -5, 0, 12.5, 45} {
		phase := SteerPhase(angle, freq, d)
		if back := SteerAngle(phase, freq, d); math.Abs(back-angle) > 1e-9 {
			t.Fatalf("angle %v -> phase %v -> %v", angle, phase, back)
		}
	}
	if got := SteerAngle(1e6, freq, d); got != 90 {
		t.Fatalf("clipped angle = %v", got)
	}
}

func TestWrapPhase(t *testing.T) {
	tests := map[float64]float64{0: 0, 180: -180, 190: -170, -190: 170, 720: 0}
	for in, want := range tests {
		if got := WrapPhase(in); math.Abs(got-want) > 1e-9 {
			t.Fatalf("WrapPhase(%v) = %v, want %v", in, got, want)
		}
	}
}
