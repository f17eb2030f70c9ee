package calib

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Mode selects the RX or TX gain-code polynomials.
type Mode string

const (
	RX Mode = "rx"
	TX Mode = "tx"
)

// attenThreshold is the largest delta in dB the VGA alone can absorb.
const attenThreshold = 23.0

// Polynomial fits of VGA gain code against attenuation in dB, highest order
// first. atten1 applies with the step attenuator bypassed, atten0 with it engaged.
var gainPolys = map[Mode]struct{ atten1, atten0 []float64 }{
	RX: {
		atten1: []float64{
			-4.178368227245296e-09, -3.124456767699238e-07, -7.218061870232358e-06,
			1.146280656652001e-05, 0.003079353177989, 0.048281159204065,
			0.247215102895886, 0.176811045216789, 10.163992861226674, 127.1237461140638,
		},
		atten0: []float64{
			4.12957161960063e-10, 1.11191262836380e-07, 1.34714959988008e-05,
			0.000967813015434471, 0.0456701602403594, 1.47865205676699,
			33.2281071820574, 510.768971360134, 5126.75849430329, 30268.0388934082, 79815.3362477404,
		},
	},
	TX: {
		atten1: []float64{
			2.11066024918707e-11, 5.70009839945272e-09, 5.49937839434060e-07,
			2.73783996444945e-05, 0.000800103462132557, 0.0143895847100511,
			0.159688022065331, 1.06808692792217, 4.50865732789487,
			21.0313863981928, 127.541504127078,
		},
		atten0: []float64{
			5.00901188825329e-10, 1.44673726954726e-07, 1.86493751074489e-05,
			0.00141263342869073, 0.0696128076080524, 2.33122230277517,
			53.7090182591208, 840.244043642996, 8539.25517554357,
			50904.6416796854, 135350.366810770,
		},
	},
}

// GainCode is a VGA setting for one element.
type GainCode struct {
	Code  int  `json:"code"`
	Atten bool `json:"atten"`
}

// polyval evaluates p (highest order first) at x.
func polyval(p []float64, x float64) float64 {
	y := 0.0
	for _, c := range p {
		y = y*x + c
	}
	return y
}

// GainCodes equalises measured element magnitudes (dB) down to the weakest
// element. Each delta above the minimum is turned into a gain code through the
// fitted polynomials; deltas of 23 dB or more engage the attenuator.
func GainCodes(mags []float64, mode Mode) ([]GainCode, error) {
	poly, ok := gainPolys[mode]
	if !ok {
		return nil, fmt.Errorf("calib: unknown gain mode %q", mode)
	}
	if len(mags) == 0 {
		return nil, ErrNoSamples
	}
	for i, m := range mags {
		if math.IsNaN(m) {
			return nil, fmt.Errorf("calib: magnitude %d is NaN", i)
		}
	}
	minMag := floats.Min(mags)

	codes := make([]GainCode, len(mags))
	for i, m := range mags {
		delta := 0.0
		if m != minMag {
			delta = m - minMag
		}
		var gc GainCode
		switch {
		case delta < attenThreshold:
			gc.Code = clipCode(math.Floor(polyval(poly.atten1, -delta)))
		case math.IsInf(delta, 1):
			gc = GainCode{Code: 0, Atten: true}
		default:
			gc = GainCode{Code: clipCode(math.Floor(polyval(poly.atten0, -delta))), Atten: true}
		}
		codes[i] = gc
	}
	return codes, nil
}

func clipCode(v float64) int {
	return int(math.Max(0, math.Min(127, v)))
}
