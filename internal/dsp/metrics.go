package dsp

import (
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultRef is the full-scale reference of a 16-bit converter.
const DefaultRef = 32768.0

// harmonicBW is the number of bins either side of a tone that belong to it.
const harmonicBW = 3

// SpectrumEstimate returns 20*log10(|FFT(x)|/N/ref + 1e-20) without windowing
// or shifting. ref <= 0 selects DefaultRef.
func SpectrumEstimate(x []complex128, ref float64) []float64 {
	if ref <= 0 {
		ref = DefaultRef
	}
	n := float64(len(x))
	fft := FFT(x)
	out := make([]float64, len(fft))
	for i, v := range fft {
		out[i] = 20 * math.Log10(cmplx.Abs(v)/n/ref+spectrumFloor)
	}
	return out
}

// FindPeaks returns indices of local maxima in x, strongest first. Peaks
// closer than distance bins to a stronger peak are discarded. A plateau
// reports its first sample.
func FindPeaks(x []float64, distance int) []int {
	var peaks []int
	for i := 1; i < len(x)-1; i++ {
		if x[i] <= x[i-1] {
			continue
		}
		j := i
		for j < len(x)-1 && x[j+1] == x[i] {
			j++
		}
		if j < len(x)-1 && x[j+1] < x[i] {
			peaks = append(peaks, i)
		}
		i = j
	}
	sort.SliceStable(peaks, func(a, b int) bool { return x[peaks[a]] > x[peaks[b]] })
	if distance <= 1 {
		return peaks
	}
	kept := peaks[:0]
	for _, p := range peaks {
		ok := true
		for _, k := range kept {
			if abs(p-k) < distance {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, p)
		}
	}
	return kept
}

// SFDR returns the spurious free dynamic range of x in dB: the gap between
// the two largest spectral peaks separated by at least a tenth of the record.
func SFDR(x []complex128, ref float64) (float64, error) {
	amp := FFTShiftReal(SpectrumEstimate(x, ref))
	peaks := FindPeaks(amp, int(math.Floor(float64(len(x))*0.1)))
	if len(peaks) < 2 {
		return 0, errShort(len(peaks), 2)
	}
	return math.Abs(amp[peaks[0]] - amp[peaks[1]]), nil
}

// ToneMetrics summarises a single-tone capture.
type ToneMetrics struct {
	FundamentalBin int
	SignalPower    float64
	NoiseFloorDBc  float64
	SNR            float64
	THD            float64
	SINAD          float64
	ENOB           float64
	SFDR           float64
}

// AnalyzeTone computes SNR, THD (harmonics 2 to 5), SINAD, ENOB and SFDR of a
// real single-tone capture using a Blackman-Harris window.
func AnalyzeTone(data []float64) (ToneMetrics, error) {
	n := len(data)
	if n < 32 {
		return ToneMetrics{}, errShort(n, 32)
	}
	mean := stat.Mean(data, nil)
	win := BlackmanHarris(n)
	buf := make([]complex128, n)
	for i, v := range data {
		buf[i] = complex((v-mean)*win[i], 0)
	}
	fft := FFT(buf)
	half := n/2 + 1
	power := make([]float64, half)
	for i := range power {
		m := cmplx.Abs(fft[i])
		power[i] = m * m
	}

	used := make([]bool, half)
	for i := 0; i <= harmonicBW && i < half; i++ {
		used[i] = true
	}
	fund := harmonicBW + 1 + floats.MaxIdx(power[harmonicBW+1:])

	band := func(center int) (float64, int) {
		sum, bins := 0.0, 0
		for i := center - harmonicBW; i <= center+harmonicBW; i++ {
			if i < 0 || i >= half || used[i] {
				continue
			}
			sum += power[i]
			used[i] = true
			bins++
		}
		return sum, bins
	}

	harms := make([]float64, 6)
	harmBins := make([]int, 6)
	for h := 1; h <= 5; h++ {
		harms[h], harmBins[h] = band(alias(h*fund, n))
	}

	noise, noiseBins := 0.0, 0
	for i, p := range power {
		if !used[i] {
			noise += p
			noiseBins++
		}
	}
	avgNoise := noise / math.Max(1, float64(noiseBins))
	noise = avgNoise * float64(half-1)

	for h := 1; h <= 5; h++ {
		harms[h] -= avgNoise * float64(harmBins[h])
	}
	signal := harms[1]
	if signal <= 0 {
		return ToneMetrics{}, ErrNoTone
	}

	spur := 0.0
	for h := 2; h <= 5; h++ {
		spur = math.Max(spur, harms[h])
	}
	for i, p := range power {
		if !used[i] && p-avgNoise > spur {
			spur = p - avgNoise
		}
	}

	harmDist := 0.0
	for h := 2; h <= 5; h++ {
		if harms[h] > 0 {
			harmDist += harms[h]
		}
	}

	m := ToneMetrics{
		FundamentalBin: fund,
		SignalPower:    signal,
		NoiseFloorDBc:  10 * math.Log10(avgNoise/signal),
		SNR:            10 * math.Log10(signal/noise),
		SINAD:          10 * math.Log10(signal/(harmDist+noise)),
	}
	if harmDist > 0 {
		m.THD = 10 * math.Log10(harmDist/signal)
	}
	if spur > 0 {
		m.SFDR = 10 * math.Log10(signal/spur)
	}
	m.ENOB = ENOB(m.SINAD)
	return m, nil
}

// ENOB converts SINAD in dB to effective bits.
func ENOB(sinad float64) float64 { return (sinad - 1.76) / 6.02 }

// alias folds bin k of an n-point real FFT into [0, n/2].
func alias(k, n int) int {
	k %= n
	if k > n/2 {
		k = n - k
	}
	return k
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
