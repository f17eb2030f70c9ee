package calib

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/rjboer/GoADI/internal/dsp"
)

// PhaserRig is the subset of a two-channel phased-array receiver the phaser
// calibrations drive.
type PhaserRig interface {
	NumElements() int
	Averages() int
	SetAllGain(ctx context.Context, gain int, applyCal bool) error
	SetChanGain(ctx context.Context, ch, gain int, applyCal bool) error
	SetChanPhase(ctx context.Context, ch int, phase float64, applyCal bool) error
	// Capture returns one buffer from each receive channel.
	Capture(ctx context.Context) (ch0, ch1 []complex128, err error)
}

// GainCalResult is the outcome of PhaserGainCal.
type GainCalResult struct {
	PeakDBFS []float64
	Gcal     []float64
	Spectra  [][]float64
}

// measurePeak averages PeakDBFS over n captures. The spectrum is averaged too.
func measurePeak(ctx context.Context, rig PhaserRig, n int) (float64, []float64, error) {
	if n <= 0 {
		n = 1
	}
	var total float64
	var spectrum []float64
	for i := 0; i < n; i++ {
		ch0, ch1, err := rig.Capture(ctx)
		if err != nil {
			return 0, nil, fmt.Errorf("capture: %w", err)
		}
		if len(ch0) == 0 {
			return 0, nil, ErrNoSamples
		}
		peak, s, err := dsp.PeakDBFS(ch0, ch1)
		if err != nil {
			return 0, nil, err
		}
		if spectrum == nil {
			spectrum = make([]float64, len(s))
		}
		floats.Add(spectrum, s)
		total += peak
	}
	floats.Scale(1/float64(n), spectrum)
	return total / float64(n), spectrum, nil
}

// PhaserGainCal measures every element alone at full gain and returns the
// per-element factors gcal[k] = min(g)/g[k] with g in linear amplitude, so
// the weakest element keeps full gain and stronger ones are scaled down.
func PhaserGainCal(ctx context.Context, rig PhaserRig, averages int, rep Reporter) (GainCalResult, error) {
	if averages <= 0 {
		averages = rig.Averages()
	}
	rep = reporterOr(rep)
	n := rig.NumElements()
	if n == 0 {
		return GainCalResult{}, ErrNoSamples
	}
	res := GainCalResult{PeakDBFS: make([]float64, n), Spectra: make([][]float64, n)}
	linear := make([]float64, n)
	for k := 0; k < n; k++ {
		if err := rig.SetAllGain(ctx, 0, false); err != nil {
			return res, err
		}
		if err := rig.SetChanGain(ctx, k, 127, false); err != nil {
			return res, err
		}
		peak, spectrum, err := measurePeak(ctx, rig, averages)
		if err != nil {
			return res, fmt.Errorf("element %d: %w", k, err)
		}
		res.PeakDBFS[k] = peak
		res.Spectra[k] = spectrum
		linear[k] = math.Pow(10, peak/20)
		rep.Report(Point{Stage: "gain", Element: k, Power: peak, Time: time.Now()})
	}
	lowest := floats.Min(linear)
	res.Gcal = make([]float64, n)
	for k, g := range linear {
		res.Gcal[k] = lowest / g
	}
	return res, nil
}

// PhaseCalResult is the outcome of PhaserPhaseCal.
type PhaseCalResult struct {
	Pcal   []float64
	Deltas []float64
	Phases []float64
	// Gains holds one sweep of sum-beam peak levels per adjacent pair.
	Gains [][]float64
}

// PhaseSweepValues returns [-180,180) in steps of step degrees.
func PhaseSweepValues(step float64) []float64 {
	if step <= 0 {
		return nil
	}
	var out []float64
	for i := 0; ; i++ {
		p := -180 + float64(i)*step
		if p >= 180 {
			break
		}
		out = append(out, p)
	}
	return out
}

// PhaserPhaseCal aligns adjacent element pairs. For each pair the second
// element's phase is swept with the first at 0°; the deepest null of the sum
// beam gives the pair's offset and offsets accumulate along the array.
func PhaserPhaseCal(ctx context.Context, rig PhaserRig, step float64, rep Reporter) (PhaseCalResult, error) {
	phases := PhaseSweepValues(step)
	if len(phases) == 0 {
		return PhaseCalResult{}, ErrNoSamples
	}
	rep = reporterOr(rep)
	n := rig.NumElements()
	res := PhaseCalResult{Pcal: make([]float64, n), Phases: phases}
	if n < 2 {
		return res, nil
	}
	res.Deltas = make([]float64, n-1)
	for k := 0; k < n-1; k++ {
		if err := rig.SetAllGain(ctx, 0, true); err != nil {
			return res, err
		}
		if err := rig.SetChanGain(ctx, k, 127, true); err != nil {
			return res, err
		}
		if err := rig.SetChanGain(ctx, k+1, 127, true); err != nil {
			return res, err
		}
		if err := rig.SetChanPhase(ctx, k, 0, false); err != nil {
			return res, err
		}
		gains := make([]float64, len(phases))
		for i, p := range phases {
			if err := rig.SetChanPhase(ctx, k+1, p, false); err != nil {
				return res, err
			}
			peak, _, err := measurePeak(ctx, rig, rig.Averages())
			if err != nil {
				return res, fmt.Errorf("pair %d at %.4f: %w", k, p, err)
			}
			gains[i] = peak
			rep.Report(Point{Stage: "phase", Element: k + 1, Phase: p, Power: peak, Time: time.Now()})
		}
		null := phases[floats.MinIdx(gains)]
		delta := ToSup(Wrap360(180 - null))
		res.Deltas[k] = delta
		res.Pcal[k+1] = ToSup(Wrap360(res.Pcal[k] - delta))
		res.Gains = append(res.Gains, gains)
	}
	return res, nil
}
