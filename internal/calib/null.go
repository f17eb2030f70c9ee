package calib

import (
	"context"
	"fmt"
	"math"
	"time"
)

// NullConfig controls the two-stage null search.
type NullConfig struct {
	Element     int
	CoarseStart int
	CoarseStop  int // inclusive upper bound of the coarse grid
	CoarseStep  int
	FineRange   int
	FineLimit   int
	Settle      time.Duration
	Reporter    Reporter
}

// DefaultNullConfig is a 0..195° coarse sweep in 15° steps followed by ±15°
// at 1° resolution, capped at 196°.
func DefaultNullConfig() NullConfig {
	return NullConfig{
		CoarseStop: 195,
		CoarseStep: 15,
		FineRange:  15,
		FineLimit:  196,
	}
}

// Sample is one (phase, power) reading.
type Sample struct {
	Phase float64 `json:"phase"`
	Power float64 `json:"power"`
}

// NullResult holds both sweeps and the derived calibration phase.
type NullResult struct {
	Element    int      `json:"element"`
	Coarse     []Sample `json:"coarse"`
	Fine       []Sample `json:"fine"`
	CoarseNull float64  `json:"coarse_null"`
	Null       float64  `json:"null"`
	NullPower  float64  `json:"null_power"`
	// Phase is the in-phase setting, 180° away from the null.
	Phase float64 `json:"phase"`
}

// NullSearch finds the phase at which the element under test cancels the
// reference, first on a coarse grid, then at 1° around the coarse minimum.
// Ties keep the lowest phase.
func NullSearch(ctx context.Context, set PhaseSetter, meter PowerMeter, cfg NullConfig) (NullResult, error) {
	if cfg.CoarseStep <= 0 || cfg.CoarseStop < cfg.CoarseStart {
		return NullResult{}, fmt.Errorf("calib: invalid coarse grid %d..%d step %d", cfg.CoarseStart, cfg.CoarseStop, cfg.CoarseStep)
	}
	rep := reporterOr(cfg.Reporter)
	res := NullResult{Element: cfg.Element}

	var phases []int
	for p := cfg.CoarseStart; p <= cfg.CoarseStop; p += cfg.CoarseStep {
		phases = append(phases, p)
	}
	coarse, err := sweep(ctx, set, meter, phases, cfg, "coarse", rep)
	if err != nil {
		return res, err
	}
	res.Coarse = coarse
	c := argmin(coarse)
	res.CoarseNull = coarse[c].Phase

	lo := max(0, int(res.CoarseNull)-cfg.FineRange)
	hi := min(cfg.FineLimit, int(res.CoarseNull)+cfg.FineRange)
	phases = phases[:0]
	for p := lo; p <= hi; p++ {
		phases = append(phases, p)
	}
	fine, err := sweep(ctx, set, meter, phases, cfg, "fine", rep)
	if err != nil {
		return res, err
	}
	res.Fine = fine
	f := argmin(fine)
	res.Null = fine[f].Phase
	res.NullPower = fine[f].Power
	res.Phase = math.Mod(res.Null+180, 360)
	return res, nil
}

func sweep(ctx context.Context, set PhaseSetter, meter PowerMeter, phases []int, cfg NullConfig, stage string, rep Reporter) ([]Sample, error) {
	if len(phases) == 0 {
		return nil, ErrNoSamples
	}
	out := make([]Sample, 0, len(phases))
	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if err := set.SetPhase(ctx, float64(p)); err != nil {
			return out, fmt.Errorf("set phase %d: %w", p, err)
		}
		if err := sleep(ctx, cfg.Settle); err != nil {
			return out, err
		}
		pw, err := meter.Power(ctx)
		if err != nil {
			return out, fmt.Errorf("measure at %d: %w", p, err)
		}
		s := Sample{Phase: float64(p), Power: pw}
		out = append(out, s)
		rep.Report(Point{Stage: stage, Element: cfg.Element, Phase: s.Phase, Power: pw, Time: time.Now()})
	}
	return out, nil
}

// argmin returns the first index holding the lowest power.
func argmin(s []Sample) int {
	best := 0
	for i := range s {
		if s[i].Power < s[best].Power {
			best = i
		}
	}
	return best
}

// TxPhaseSweep steps the phase over 0..359° and returns the phase with the
// highest detector reading together with all samples.
func TxPhaseSweep(ctx context.Context, set PhaseSetter, detect PowerMeter) (float64, []Sample, error) {
	out := make([]Sample, 0, 360)
	best := 0
	for p := 0; p < 360; p++ {
		if err := ctx.Err(); err != nil {
			return 0, out, err
		}
		if err := set.SetPhase(ctx, float64(p)); err != nil {
			return 0, out, fmt.Errorf("set phase %d: %w", p, err)
		}
		v, err := detect.Power(ctx)
		if err != nil {
			return 0, out, fmt.Errorf("detect at %d: %w", p, err)
		}
		out = append(out, Sample{Phase: float64(p), Power: v})
		if v > out[best].Power {
			best = p
		}
	}
	return out[best].Phase, out, nil
}
