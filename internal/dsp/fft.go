package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

const (
	adcScale   = 2048.0 // 2^11, 12-bit signed ADC
	phaserFull = 4096.0 // 2^12, phaser gain-cal full scale

	magFloor      = 1e-12
	peakFloor     = 1e-15
	spectrumFloor = 1e-20
)

// FFTShift returns the FFT output shifted so that DC is centered.
func FFTShift(data []complex128) []complex128 {
	n := len(data)
	if n == 0 {
		return []complex128{}
	}
	half := n / 2
	shifted := make([]complex128, 0, n)
	shifted = append(shifted, data[half:]...)
	return append(shifted, data[:half]...)
}

// FFTShiftReal is FFTShift for magnitude spectra.
func FFTShiftReal(data []float64) []float64 {
	n := len(data)
	half := n / 2
	shifted := make([]float64, 0, n)
	shifted = append(shifted, data[half:]...)
	return append(shifted, data[:half]...)
}

// FFT returns the unnormalised DFT of samples.
func FFT(samples []complex128) []complex128 {
	if len(samples) == 0 {
		return []complex128{}
	}
	return fourier.NewCmplxFFT(len(samples)).Coefficients(nil, samples)
}

// FFTAndDBFS windows samples, normalises the FFT by the window sum, centres DC
// and converts the magnitude to dBFS against a 12-bit full scale. A nil win
// selects a Hamming window. Zero bins are floored at 1e-12 before the log.
func FFTAndDBFS(samples []complex128, win []float64) ([]complex128, []float64) {
	if len(samples) == 0 {
		return []complex128{}, []float64{}
	}
	if win == nil {
		win = Hamming(len(samples))
	}
	windowed := ApplyWindow(samples, win)
	if len(windowed) == 0 {
		return []complex128{}, []float64{}
	}
	fft := fourier.NewCmplxFFT(len(samples)).Coefficients(nil, windowed)
	return normalise(fft, Sum(win))
}

func normalise(fft []complex128, sumWin float64) ([]complex128, []float64) {
	for i := range fft {
		fft[i] /= complex(sumWin, 0)
	}
	shifted := FFTShift(fft)
	return shifted, toDBFS(shifted)
}

func toDBFS(spectrum []complex128) []float64 {
	dbfs := make([]float64, len(spectrum))
	for i, v := range spectrum {
		mag := cmplx.Abs(v)
		if mag == 0 {
			mag = magFloor
		}
		dbfs[i] = 20 * math.Log10(mag/adcScale)
	}
	return dbfs
}

// PeakDBFS estimates the peak level of the coherent sum of two receive
// channels. The sum is Blackman windowed, the first and last FFT bins are
// dropped, and the strongest remaining bin is scaled by 2/sum(win) and
// referred to 2^12. It also returns the shifted magnitude spectrum.
func PeakDBFS(ch0, ch1 []complex128) (float64, []float64, error) {
	if len(ch0) != len(ch1) {
		return 0, nil, errLengthMismatch(len(ch0), len(ch1))
	}
	n := len(ch0)
	if n < 3 {
		return 0, nil, errShort(n, 3)
	}
	win := Blackman(n)
	sum := make([]complex128, n)
	for i := range sum {
		sum[i] = (ch0[i] + ch1[i]) * complex(win[i], 0)
	}
	fft := FFT(sum)
	mags := make([]float64, n-2)
	for i := range mags {
		mags[i] = cmplx.Abs(fft[i+1])
	}
	spectrum := FFTShiftReal(mags)
	mag := math.Max(floats.Max(spectrum)*2/Sum(win), peakFloor)
	return 20 * math.Log10(mag/phaserFull), spectrum, nil
}
