package calib

import (
	"context"
	"math"
	"math/cmplx"
	"testing"
)

// fakePhaser synthesises the two receive channels of an 8-element phaser.
// Elements 0..3 feed channel 0 and elements 4..7 feed channel 1.
type fakePhaser struct {
	amp    []float64 // per-element amplitude at full gain
	offset []float64 // per-element phase error in degrees
	gcal   []float64
	pcal   []float64
	gain   []int
	phase  []float64
	n      int
	bin    int
	reads  int
}

func newFakePhaser() *fakePhaser {
	f := &fakePhaser{n: 64, bin: 5}
	for i := 0; i < 8; i++ {
		f.amp = append(f.amp, 60)
		f.offset = append(f.offset, 0)
		f.gcal = append(f.gcal, 1)
		f.pcal = append(f.pcal, 0)
		f.gain = append(f.gain, 0)
		f.phase = append(f.phase, 0)
	}
	return f
}

func (f *fakePhaser) NumElements() int { return 8 }
func (f *fakePhaser) Averages() int    { return 2 }

func (f *fakePhaser) SetAllGain(ctx context.Context, gain int, applyCal bool) error {
	for ch := range f.gain {
		f.SetChanGain(ctx, ch, gain, applyCal)
	}
	return nil
}

func (f *fakePhaser) SetChanGain(_ context.Context, ch, gain int, applyCal bool) error {
	if applyCal {
		gain = int(float64(gain) * f.gcal[ch])
	}
	f.gain[ch] = min(gain, 127)
	return nil
}

func (f *fakePhaser) SetChanPhase(_ context.Context, ch int, phase float64, applyCal bool) error {
	if applyCal {
		phase += f.pcal[ch]
	}
	f.phase[ch] = phase
	return nil
}

func (f *fakePhaser) Capture(context.Context) ([]complex128, []complex128, error) {
	f.reads++
	ch0 := make([]complex128, f.n)
	ch1 := make([]complex128, f.n)
	for el := 0; el < 8; el++ {
		a := f.amp[el] * float64(f.gain[el]) / 127
		w := cmplx.Rect(a, (f.offset[el]+f.phase[el])*math.Pi/180)
		dst := ch0
		if el >= 4 {
			dst = ch1
		}
		for i := range dst {
			dst[i] += w * cmplx.Rect(1, 2*math.Pi*float64(f.bin*i)/float64(f.n))
		}
	}
	return ch0, ch1, nil
}

func TestPhaserGainCal(t *testing.T) {
	f := newFakePhaser()
	f.amp[1] = 120
	f.amp[6] = 30
	rec := &recorder{}

	res, err := PhaserGainCal(context.Background(), f, 0, rec)
	if err != nil {
		t.Fatalf("PhaserGainCal returned error: %v", err)
	}
	want := []float64{0.5, 0.25, 0.5, 0.5, 0.5, 0.5, 1, 0.5}
	for k := range want {
		if math.Abs(res.Gcal[k]-want[k]) > 1e-9 {
			t.Fatalf("gcal = %v, want %v", res.Gcal, want)
		}
	}
	if f.reads != 16 {
		t.Fatalf("captures = %d, want 8 elements x 2 averages", f.reads)
	}
	if len(rec.points) != 8 || len(res.Spectra[0]) != f.n-2 {
		t.Fatalf("unexpected progress/spectra: %d points, %d bins", len(rec.points), len(res.Spectra[0]))
	}
}

func TestPhaserGainCalEqualisesElements(t *testing.T) {
	f := newFakePhaser()
	f.amp[1] = 120
	f.amp[6] = 30
	res, err := PhaserGainCal(context.Background(), f, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	copy(f.gcal, res.Gcal)
	if err := f.SetAllGain(context.Background(), 127, true); err != nil {
		t.Fatal(err)
	}
	for el, a := range f.amp {
		eff := a * float64(f.gain[el]) / 127
		// gain codes truncate, so allow one code step
		if math.Abs(eff-30) > a/127 {
			t.Fatalf("element %d: gain %d gives amplitude %g, want 30 (gains %v)", el, f.gain[el], eff, f.gain)
		}
	}
	if f.gain[6] != 127 {
		t.Fatalf("weakest element gain = %d, want 127", f.gain[6])
	}
}

func TestPhaserPhaseCal(t *testing.T) {
	f := newFakePhaser()
	for k := range f.offset {
		f.offset[k] = 28.125 * float64(k)
	}

	res, err := PhaserPhaseCal(context.Background(), f, 2.8125, nil)
	if err != nil {
		t.Fatalf("PhaserPhaseCal returned error: %v", err)
	}
	if len(res.Phases) != 128 || len(res.Gains) != 7 {
		t.Fatalf("unexpected sweep shape: %d phases, %d pairs", len(res.Phases), len(res.Gains))
	}
	for k := range res.Pcal {
		want := ToSup(Wrap360(f.offset[0] - f.offset[k]))
		if math.Abs(res.Pcal[k]-want) > 1e-9 {
			t.Fatalf("pcal[%d] = %v, want %v (all %v)", k, res.Pcal[k], want, res.Pcal)
		}
	}
	for k, d := range res.Deltas {
		if math.Abs(d-28.125) > 1e-9 {
			t.Fatalf("delta[%d] = %v", k, d)
		}
	}
}

func TestPhaseSweepValues(t *testing.T) {
	v := PhaseSweepValues(90)
	if len(v) != 4 || v[0] != -180 || v[3] != 90 {
		t.Fatalf("PhaseSweepValues(90) = %v", v)
	}
	if PhaseSweepValues(0) != nil {
		t.Fatal("expected nil for zero step")
	}
}
