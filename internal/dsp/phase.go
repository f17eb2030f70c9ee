package dsp

import (
	"math"
	"math/cmplx"
)

// SpeedOfLight in m/s.
const SpeedOfLight = 299792458.0

// PhaseDelay rotates samples by deg degrees.
func PhaseDelay(samples []complex128, deg float64) []complex128 {
	rot := cmplx.Rect(1, deg*math.Pi/180)
	out := make([]complex128, len(samples))
	for i, v := range samples {
		out[i] = v * rot
	}
	return out
}

// PhaseAt returns the phase of samples[idx] in degrees.
func PhaseAt(samples []complex128, idx int) (float64, error) {
	if idx < 0 || idx >= len(samples) {
		return 0, errShort(len(samples), idx+1)
	}
	return cmplx.Phase(samples[idx]) * 180 / math.Pi, nil
}

// ToComplex pairs I and Q captures into complex samples.
func ToComplex(i, q []int64) ([]complex128, error) {
	if len(i) != len(q) {
		return nil, errLengthMismatch(len(i), len(q))
	}
	out := make([]complex128, len(i))
	for k := range i {
		out[k] = complex(float64(i[k]), float64(q[k]))
	}
	return out, nil
}

// SteerAngle converts an inter-element phase difference in degrees to a beam
// angle in degrees for elements spaced d metres apart at freq Hz.
func SteerAngle(phaseDeg, freq, d float64) float64 {
	arg := SpeedOfLight * phaseDeg * math.Pi / 180 / (2 * math.Pi * freq * d)
	arg = math.Max(-1, math.Min(1, arg))
	return math.Asin(arg) * 180 / math.Pi
}

// SteerPhase is the inverse of SteerAngle.
func SteerPhase(angleDeg, freq, d float64) float64 {
	return 2 * math.Pi * freq * d * math.Sin(angleDeg*math.Pi/180) / SpeedOfLight * 180 / math.Pi
}

// WrapPhase folds deg into [-180, 180).
func WrapPhase(deg float64) float64 {
	w := math.Mod(deg+180, 360)
	if w < 0 {
		w += 360
	}
	return w - 180
}
