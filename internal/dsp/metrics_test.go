package dsp

import (
	"math"
	"testing"
)

func TestSpectrumEstimate(t *testing.T) {
	n := 64
	x := tone(n, 4, DefaultRef)
	amp := SpectrumEstimate(x, 0)
	if math.Abs(amp[4]) > 1e-9 {
		t.Fatalf("full-scale tone = %v dB", amp[4])
	}
	if amp[5] > -200 {
		t.Fatalf("off-bin level %v, expected floor", amp[5])
	}
}

func TestFindPeaks(t *testing.T) {
	x := []float64{0, 5, 0, 3, 0, 0, 9, 9, 1, 4, 0}
	peaks := FindPeaks(x, 1)
	want := []int{6, 1, 9, 3}
	if len(peaks) != len(want) {
		t.Fatalf("peaks = %v, want %v", peaks, want)
	}
	for i := range want {
		if peaks[i] != want[i] {
			t.Fatalf("peaks = %v, want %v", peaks, want)
		}
	}
	if got := FindPeaks(x, 4); len(got) != 2 || got[0] != 6 || got[1] != 1 {
		t.Fatalf("distance-filtered peaks = %v", got)
	}
}

func TestSFDR(t *testing.T) {
	n := 256
	main := tone(n, 20, 16384)
	spur := tone(n, 90, 16384/100.0)
	x := make([]complex128, n)
	for i := range x {
		x[i] = main[i] + spur[i]
	}
	got, err := SFDR(x, 0)
	if err != nil {
		t.Fatalf("SFDR returned error: %v", err)
	}
	if math.Abs(got-40) > 1e-6 {
		t.Fatalf("SFDR = %v, want 40", got)
	}
	if _, err := SFDR(make([]complex128, 4), 0); err == nil {
		t.Fatal("expected error without two peaks")
	}
}

func TestAnalyzeTone(t *testing.T) {
	n := 4096
	data := make([]float64, n)
	for i := range data {
		p := 2 * math.Pi * 101 * float64(i) / float64(n)
		data[i] = 1000 + 30000*math.Sin(p) + 30*math.Sin(2*p) + 0.5*math.Sin(float64(i)*1.2345)
	}
	m, err := AnalyzeTone(data)
	if err != nil {
		t.Fatalf("AnalyzeTone returned error: %v", err)
	}
	if m.FundamentalBin != 101 {
		t.Fatalf("fundamental bin = %d", m.FundamentalBin)
	}
	// Second harmonic is 60 dB down.
	if math.Abs(m.THD+60) > 0.5 {
		t.Fatalf("THD = %.2f, want ~-60", m.THD)
	}
	if m.SFDR < 59 || m.SFDR > 61 {
		t.Fatalf("SFDR = %.2f, want ~60", m.SFDR)
	}
	if m.SINAD > m.SNR {
		t.Fatalf("SINAD %.2f exceeds SNR %.2f", m.SINAD, m.SNR)
	}
	if math.Abs(m.ENOB-ENOB(m.SINAD)) > 1e-12 {
		t.Fatal("ENOB inconsistent with SINAD")
	}
	if _, err := AnalyzeTone(make([]float64, 8)); err == nil {
		t.Fatal("expected error for short capture")
	}
}

func TestENOB(t *testing.T) {
	if got := ENOB(74); math.Abs(got-12) > 1e-2 {
		t.Fatalf("ENOB(74) = %v", got)
	}
}
