package calib

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/rjboer/GoADI/internal/dsp"
)

// digitalPhaseSample is the capture index whose phase DigitalPhase compares.
const digitalPhaseSample = 100

// FindPhaseDelayFixedRef finds, for every channel, the phase delay that best
// cancels it against data[ref]. The reference itself is included.
func FindPhaseDelayFixedRef(data [][]complex128, ref int, phases []float64) ([]float64, error) {
	if ref < 0 || ref >= len(data) {
		return nil, fmt.Errorf("calib: reference channel %d out of range", ref)
	}
	cache := dsp.NewCachedDSP(len(data[ref]), nil)
	out := make([]float64, len(data))
	for i := range data {
		_, best, err := dsp.NullScan(data[ref], data[i], phases, cache)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		out[i] = phases[best]
	}
	return out, nil
}

// FindPhaseDelaySlidingRef walks the channels in adcMap order, nulling each
// against its already calibrated predecessor. The first channel is 0.
func FindPhaseDelaySlidingRef(data [][]complex128, adcMap []int, phases []float64) ([]float64, error) {
	if len(adcMap) == 0 {
		return nil, ErrNoSamples
	}
	for _, idx := range adcMap {
		if idx < 0 || idx >= len(data) {
			return nil, fmt.Errorf("calib: channel %d out of range", idx)
		}
	}
	cache := dsp.NewCachedDSP(len(data[adcMap[0]]), nil)
	cal := make([]float64, len(adcMap))
	shifted := make([]float64, len(phases))
	for i := 0; i < len(adcMap)-1; i++ {
		// |a·e^{j(pi+c)} - b·e^{jp(i+1)}| = |a - b·e^{j(p-c)}|
		for k, p := range phases {
			shifted[k] = p - cal[i]
		}
		_, best, err := dsp.NullScan(data[adcMap[i]], data[adcMap[i+1]], shifted, cache)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", adcMap[i+1], err)
		}
		cal[i+1] = phases[best]
	}
	return cal, nil
}

// DigitalPhase returns each channel's phase at sample 100 relative to the
// reference channel, wrapped to [-180,180) and scaled to millidegrees.
func DigitalPhase(data [][]complex128, ref int) ([]float64, error) {
	if ref < 0 || ref >= len(data) {
		return nil, fmt.Errorf("calib: reference channel %d out of range", ref)
	}
	phase := make([]float64, len(data))
	for i, ch := range data {
		if len(ch) <= digitalPhaseSample {
			return nil, fmt.Errorf("channel %d: %w", i, ErrNoSamples)
		}
		phase[i] = cmplx.Phase(ch[digitalPhaseSample]) * 180 / math.Pi
	}
	out := make([]float64, len(data))
	for i, p := range phase {
		out[i] = (Wrap360(p-phase[ref]+180) - 180) * 1e3
	}
	return out, nil
}
