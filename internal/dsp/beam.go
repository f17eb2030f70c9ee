package dsp

import (
	"math"
	"math/cmplx"
	"runtime"

	"gonum.org/v1/gonum/floats"
)

// binRange clamps [start,end) to [0,n).
// If the resulting interval is empty, it returns (0,0).
func binRange(n, start, end int) (int, int) {
	if n <= 0 {
		return 0, 0
	}
	if start < 0 {
		start = 0
	}
	if end <= 0 || end > n {
		end = n
	}
	if start >= end {
		return 0, 0
	}
	return start, end
}

// noiseFloor averages db over [start,end) excluding the signal bin and its
// neighbours.
func noiseFloor(db []float64, start, end, signalBin int) (float64, bool) {
	s, e := binRange(len(db), start, end)
	if s == e {
		return 0, false
	}
	var sum float64
	var count int
	for i := s; i < e; i++ {
		if i >= signalBin-1 && i <= signalBin+1 {
			continue
		}
		v := db[i]
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// MonopulsePhase correlates sum and delta FFT bins and returns arg(Σ conj(S)·Δ)
// in radians.
func MonopulsePhase(sumFFT, deltaFFT []complex128, start, end int) float64 {
	n := len(sumFFT)
	if len(deltaFFT) < n {
		n = len(deltaFFT)
	}
	s, e := binRange(n, start, end)
	if s == e {
		return 0
	}
	var corr complex128
	for i := s; i < e; i++ {
		corr += cmplx.Conj(sumFFT[i]) * deltaFFT[i]
	}
	return cmplx.Phase(corr)
}

// sumDeltaForms computes sum = a + b and delta = a - b in one pass.
func sumDeltaForms(sum, delta, a, b []complex128) {
	for i := range a {
		sum[i] = a[i] + b[i]
		delta[i] = a[i] - b[i]
	}
}

// BeamPoint is one sum/delta monopulse measurement of a two-channel capture.
type BeamPoint struct {
	SumDBFS   float64
	DeltaDBFS float64
	// Angle is arg(S) - arg(Δ) at the sum peak, in radians.
	Angle float64
	SNR   float64
	Bin   int
}

// SumDelta forms the Blackman-windowed sum and difference beams of two
// channels and measures both at the peak of the sum spectrum. Levels use the
// PeakDBFS scaling; the first and last FFT bins are excluded.
func SumDelta(ch0, ch1 []complex128) (BeamPoint, error) {
	if len(ch0) != len(ch1) {
		return BeamPoint{}, errLengthMismatch(len(ch0), len(ch1))
	}
	n := len(ch0)
	if n < 3 {
		return BeamPoint{}, errShort(n, 3)
	}
	win := Blackman(n)
	a := ApplyWindow(ch0, win)
	b := ApplyWindow(ch1, win)
	sum := make([]complex128, n)
	delta := make([]complex128, n)
	sumDeltaForms(sum, delta, a, b)

	sumFFT := FFTShift(FFT(sum)[1 : n-1])
	deltaFFT := FFTShift(FFT(delta)[1 : n-1])

	mags := make([]float64, len(sumFFT))
	for i, v := range sumFFT {
		mags[i] = cmplx.Abs(v)
	}
	peak := floats.MaxIdx(mags)
	scale := 2 / Sum(win)
	level := func(v complex128) float64 {
		return 20 * math.Log10(math.Max(cmplx.Abs(v)*scale, peakFloor)/phaserFull)
	}

	db := make([]float64, len(mags))
	for i, m := range mags {
		db[i] = 20 * math.Log10(math.Max(m*scale, peakFloor)/phaserFull)
	}
	p := BeamPoint{
		SumDBFS:   level(sumFFT[peak]),
		DeltaDBFS: level(deltaFFT[peak]),
		Angle:     -MonopulsePhase(sumFFT, deltaFFT, peak, peak+1),
		Bin:       peak,
	}
	if floor, ok := noiseFloor(db, 0, len(db), peak); ok {
		p.SNR = p.SumDBFS - floor
	}
	return p, nil
}

// AverageBeam averages the levels and angle of several points.
func AverageBeam(points []BeamPoint) BeamPoint {
	if len(points) == 0 {
		return BeamPoint{}
	}
	var avg BeamPoint
	for _, p := range points {
		avg.SumDBFS += p.SumDBFS
		avg.DeltaDBFS += p.DeltaDBFS
		avg.Angle += p.Angle
		avg.SNR += p.SNR
	}
	n := float64(len(points))
	avg.SumDBFS /= n
	avg.DeltaDBFS /= n
	avg.Angle /= n
	avg.SNR /= n
	avg.Bin = points[len(points)-1].Bin
	return avg
}

// TargetError is the normalised monopulse tracking error of a beam point. Its
// sign follows the angle; the magnitude is at least 0.01.
func TargetError(sumDB, deltaDB, angle float64) float64 {
	sign := 0.0
	switch {
	case angle > 0:
		sign = 1
	case angle < 0:
		sign = -1
	}
	v := (sign*(sumDB-deltaDB) + sign*(sumDB+deltaDB)/2) / (sumDB + deltaDB)
	if sign < 0 {
		return math.Min(-0.01, v)
	}
	return math.Max(0.01, v)
}

// NullScan rotates b by each candidate phase, subtracts it from a and records
// the peak dBFS of the difference. It returns the peaks and the index of the
// deepest null; ties keep the first candidate. Candidates are spread over a
// worker pool.
func NullScan(a, b []complex128, phases []float64, cache *CachedDSP) ([]float64, int, error) {
	if len(a) != len(b) {
		return nil, 0, errLengthMismatch(len(a), len(b))
	}
	if len(a) == 0 || len(phases) == 0 {
		return nil, 0, errShort(0, 1)
	}
	if cache == nil {
		cache = NewCachedDSP(len(a), nil)
	}

	type result struct {
		idx  int
		peak float64
	}
	workers := runtime.NumCPU()
	if workers > len(phases) {
		workers = len(phases)
	}
	jobs := make(chan int)
	results := make(chan result, workers)

	for w := 0; w < workers; w++ {
		go func() {
			diff := make([]complex128, len(a))
			for idx := range jobs {
				rot := cmplx.Rect(1, phases[idx]*math.Pi/180)
				for i := range a {
					diff[i] = a[i] - b[i]*rot
				}
				_, db := cache.FFTAndDBFS(diff)
				results <- result{idx: idx, peak: floats.Max(db)}
			}
		}()
	}
	go func() {
		for i := range phases {
			jobs <- i
		}
		close(jobs)
	}()

	peaks := make([]float64, len(phases))
	for range phases {
		r := <-results
		peaks[r.idx] = r.peak
	}
	return peaks, floats.MinIdx(peaks), nil
}
