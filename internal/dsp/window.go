package dsp

import "gonum.org/v1/gonum/dsp/window"

// WindowFunc returns a window of length n.
type WindowFunc func(n int) []float64

func ones(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

// build applies a gonum window to a slice of ones. Windows of length 0 and 1
// are returned as is, since the symmetric forms divide by n-1.
func build(n int, apply func([]float64) []float64) []float64 {
	if n <= 0 {
		return []float64{}
	}
	if n == 1 {
		return []float64{1}
	}
	return apply(ones(n))
}

// Hamming returns a symmetric Hamming window of length n.
func Hamming(n int) []float64 { return build(n, window.Hamming) }

// Hann returns a symmetric Hann window of length n.
func Hann(n int) []float64 { return build(n, window.Hann) }

// Blackman returns a symmetric Blackman window of length n.
func Blackman(n int) []float64 { return build(n, window.Blackman) }

// BlackmanHarris returns a 4-term Blackman-Harris window, used for tone metrics.
func BlackmanHarris(n int) []float64 { return build(n, window.BlackmanHarris) }

// Rect returns a rectangular window.
func Rect(n int) []float64 { return build(n, func(w []float64) []float64 { return w }) }

// ApplyWindow multiplies samples by window. Lengths must match; otherwise an
// empty slice is returned.
func ApplyWindow(samples []complex128, win []float64) []complex128 {
	if len(samples) != len(win) {
		return []complex128{}
	}
	out := make([]complex128, len(samples))
	for i, v := range samples {
		out[i] = v * complex(win[i], 0)
	}
	return out
}

// Sum returns the sum of the window coefficients.
func Sum(win []float64) float64 {
	s := 0.0
	for _, v := range win {
		s += v
	}
	return s
}
