package calib

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/rjboer/GoADI/internal/dsp"
)

// ToSup maps an angle in [0,360) to (-180,180].
func ToSup(angle float64) float64 {
	if angle > 180 {
		angle -= 360
	}
	return angle
}

// Wrap360 wraps an angle into [0,360).
func Wrap360(angle float64) float64 {
	w := math.Mod(angle, 360)
	if w < 0 {
		w += 360
	}
	return w
}

// QuantizePhase rounds a phase in radians to the nearest of 2^bits steps per turn.
func QuantizePhase(rad float64, bits int) float64 {
	step := 2 * math.Pi / math.Exp2(float64(bits))
	return math.Round(rad/step) * step
}

// Ind2Sub converts a column-major linear index into row and column.
func Ind2Sub(rows, index int) (int, int) {
	return index % rows, index / rows
}

// ElementGrid numbers an rows×cols array column-major from 1.
func ElementGrid(rows, cols int) [][]int {
	grid := make([][]int, rows)
	for r := range grid {
		grid[r] = make([]int, cols)
		for c := range grid[r] {
			grid[r][c] = c*rows + r + 1
		}
	}
	return grid
}

const (
	patternSize    = 8
	patternSpacing = 0.013635
	patternFloor   = 1e-10
)

// PatternConfig selects the angles and steering of an ArrayPattern.
type PatternConfig struct {
	Start, Stop float64 // degrees
	Step        float64
	FreqGHz     float64
	SteerDeg    float64
}

// DefaultPatternConfig sweeps ±90° in 0.5° steps at 10 GHz.
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{Start: -90, Stop: 90, Step: 0.5, FreqGHz: 10}
}

// Pattern is a normalised array factor in dB.
type Pattern struct {
	Angles    []float64
	Azimuth   []float64
	Elevation []float64
	SteerDeg  float64
}

// ArrayPattern computes the azimuth and elevation cuts of an 8×8 uniform
// array with 13.635 mm spacing, electronically steered to cfg.SteerDeg. The
// sweep limits are quantised to 8-bit phase steps.
func ArrayPattern(cfg PatternConfig) (Pattern, error) {
	if cfg.Step <= 0 || cfg.FreqGHz <= 0 || cfg.Stop < cfg.Start {
		return Pattern{}, ErrNoSamples
	}
	start := QuantizePhase(cfg.Start*math.Pi/180, 8) * 180 / math.Pi
	stop := QuantizePhase(cfg.Stop*math.Pi/180, 8) * 180 / math.Pi

	n := int(math.Floor((stop-start)/cfg.Step+1e-9)) + 1
	angles := make([]float64, n)
	if n == 1 {
		angles[0] = start
	} else {
		floats.Span(angles, start, start+float64(n-1)*cfg.Step)
	}

	k := 2 * math.Pi * cfg.FreqGHz * 1e9 / dsp.SpeedOfLight
	pos := make([]float64, patternSize)
	for i := range pos {
		pos[i] = (float64(i) - float64(patternSize-1)/2) * patternSpacing
	}

	cut := cutPattern(angles, pos, k, cfg.SteerDeg)
	return Pattern{
		Angles:    angles,
		Azimuth:   cut,
		Elevation: append([]float64(nil), cut...),
		SteerDeg:  cfg.SteerDeg,
	}, nil
}

func cutPattern(angles, pos []float64, k, steerDeg float64) []float64 {
	steer := math.Sin(-steerDeg * math.Pi / 180)
	resp := make([]float64, len(angles))
	for i, a := range angles {
		s := math.Sin(a * math.Pi / 180)
		var re, im float64
		for _, x := range pos {
			ph := k * x * (steer + s)
			re += math.Cos(ph)
			im += math.Sin(ph)
		}
		resp[i] = math.Hypot(re, im)
	}
	peak := floats.Max(resp)
	for i, v := range resp {
		resp[i] = 20 * math.Log10(math.Max(v/peak, patternFloor))
	}
	return resp
}
