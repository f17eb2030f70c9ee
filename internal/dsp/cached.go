package dsp

import (
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// CachedDSP keeps a window and FFT plan for repeated spectra of one size.
// It is safe for concurrent use.
type CachedDSP struct {
	mu        sync.RWMutex
	window    []float64
	windowSum float64
	fftSize   int
	fft       *fourier.CmplxFFT
	makeWin   WindowFunc
}

// NewCachedDSP creates a processor for size-point spectra. A nil win selects Hamming.
func NewCachedDSP(size int, win WindowFunc) *CachedDSP {
	if win == nil {
		win = Hamming
	}
	c := &CachedDSP{makeWin: win}
	c.resize(size)
	return c
}

func (c *CachedDSP) resize(size int) {
	c.fftSize = size
	c.window = c.makeWin(size)
	c.windowSum = Sum(c.window)
	if size > 0 {
		c.fft = fourier.NewCmplxFFT(size)
	} else {
		c.fft = nil
	}
}

// FFTAndDBFS is FFTAndDBFS with the cached window. Samples of another length
// fall back to the uncached path.
func (c *CachedDSP) FFTAndDBFS(samples []complex128) ([]complex128, []float64) {
	if len(samples) == 0 {
		return []complex128{}, []float64{}
	}

	c.mu.RLock()
	if len(samples) != c.fftSize {
		makeWin := c.makeWin
		c.mu.RUnlock()
		return FFTAndDBFS(samples, makeWin(len(samples)))
	}
	windowed := ApplyWindow(samples, c.window)
	sum := c.windowSum
	c.mu.RUnlock()

	// CmplxFFT keeps scratch state, so Coefficients needs the write lock.
	c.mu.Lock()
	fft := c.fft.Coefficients(nil, windowed)
	c.mu.Unlock()

	return normalise(fft, sum)
}

// UpdateSize rebuilds the cached resources for a new FFT size.
func (c *CachedDSP) UpdateSize(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resize(size)
}

// Size returns the current FFT size.
func (c *CachedDSP) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fftSize
}
