package parts

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/multierr"

	"github.com/rjboer/GoADI/internal/calib"
	"github.com/rjboer/GoADI/internal/dsp"
	"github.com/rjboer/GoADI/internal/iio"
)

// ArrayConfig describes how ADAR1000 chips and their channels map onto the
// physical array. Chip indices are 1-based positions in ChipIDs.
type ArrayConfig struct {
	ChipIDs []string
	// DeviceMap is the 2-D layout of chip indices.
	DeviceMap [][]int
	// ElementMap is the 2-D layout of element numbers; its row and column
	// positions drive steering.
	ElementMap [][]int
	// DeviceElementMap lists the element numbers of each chip in channel
	// order voltage0..3.
	DeviceElementMap map[int][]int

	Frequency float64
	Spacing   float64

	// PAOn and PAOff are the pa_bias_on levels EnablePA and DisablePA write.
	PAOn, PAOff float64
}

type position struct{ row, col int }

// ADAR1000Array is a set of ADAR1000 chips addressed by element number.
type ADAR1000Array struct {
	cfg      ArrayConfig
	chips    map[int]*ADAR1000
	elements map[int]*ADARChannel
	pos      map[int]position
}

var _ calib.TxArray = (*ADAR1000Array)(nil)

// NewADAR1000Array binds every chip of cfg and checks that each element of
// ElementMap is served by exactly one chip channel.
func NewADAR1000Array(c *iio.Context, cfg ArrayConfig) (*ADAR1000Array, error) {
	if cfg.PAOn == 0 && cfg.PAOff == 0 {
		cfg.PAOn, cfg.PAOff = -2.0, -4.8
	}
	arr := &ADAR1000Array{
		cfg:      cfg,
		chips:    map[int]*ADAR1000{},
		elements: map[int]*ADARChannel{},
		pos:      map[int]position{},
	}
	for i, id := range cfg.ChipIDs {
		chip, err := NewADAR1000(c, id)
		if err != nil {
			return nil, err
		}
		arr.chips[i+1] = chip
	}
	for idx, els := range cfg.DeviceElementMap {
		chip, ok := arr.chips[idx]
		if !ok {
			return nil, invalidf("device_element_map names chip %d, only %d chips configured", idx, len(cfg.ChipIDs))
		}
		if len(els) > 4 {
			return nil, invalidf("chip %d maps %d elements, an adar1000 has 4 channels", idx, len(els))
		}
		for ch, el := range els {
			if _, dup := arr.elements[el]; dup {
				return nil, invalidf("element %d mapped twice", el)
			}
			arr.elements[el] = chip.channels[ch]
		}
	}
	for r, row := range cfg.ElementMap {
		for col, el := range row {
			if _, ok := arr.elements[el]; !ok {
				return nil, invalidf("element %d of element_map has no chip channel", el)
			}
			arr.pos[el] = position{row: r, col: col}
		}
	}
	return arr, nil
}

// Config returns the array configuration.
func (a *ADAR1000Array) Config() ArrayConfig { return a.cfg }

// Element returns the channel serving element el.
func (a *ADAR1000Array) Element(el int) (*ADARChannel, error) {
	ch, ok := a.elements[el]
	if !ok {
		return nil, fmt.Errorf("%w: element %d", iio.ErrNotFound, el)
	}
	return ch, nil
}

// Elements returns the element numbers in ascending order.
func (a *ADAR1000Array) Elements() []int {
	out := make([]int, 0, len(a.elements))
	for el := range a.elements {
		out = append(out, el)
	}
	sort.Ints(out)
	return out
}

// Devices returns the chip indices in ascending order.
func (a *ADAR1000Array) Devices() []int {
	out := make([]int, 0, len(a.chips))
	for i := range a.chips {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Chip returns chip idx (1-based).
func (a *ADAR1000Array) Chip(idx int) (*ADAR1000, error) {
	chip, ok := a.chips[idx]
	if !ok {
		return nil, fmt.Errorf("%w: chip %d", iio.ErrNotFound, idx)
	}
	return chip, nil
}

// eachChip runs fn on every chip in index order and combines the errors.
func (a *ADAR1000Array) eachChip(fn func(*ADAR1000) error) error {
	var err error
	for _, idx := range a.Devices() {
		err = multierr.Append(err, fn(a.chips[idx]))
	}
	return err
}

func (a *ADAR1000Array) LatchRx(ctx context.Context) error {
	return a.eachChip(func(c *ADAR1000) error { return c.LatchRx(ctx) })
}

func (a *ADAR1000Array) LatchTx(ctx context.Context) error {
	return a.eachChip(func(c *ADAR1000) error { return c.LatchTx(ctx) })
}

// SetChipModes sets the TR source and bias DAC mode of every chip.
func (a *ADAR1000Array) SetChipModes(ctx context.Context, trSource, biasDACMode string) error {
	return a.eachChip(func(c *ADAR1000) error {
		if err := c.SetTRSource(ctx, trSource); err != nil {
			return err
		}
		return c.SetBiasDACMode(ctx, biasDACMode)
	})
}

// AllRxPhases returns the receive phase of every element.
func (a *ADAR1000Array) AllRxPhases(ctx context.Context) (map[int]float64, error) {
	out := make(map[int]float64, len(a.elements))
	for _, el := range a.Elements() {
		p, err := a.elements[el].RxPhase(ctx)
		if err != nil {
			return nil, err
		}
		out[el] = p
	}
	return out, nil
}

// SetAllRxPhases writes per-element receive phases and latches.
func (a *ADAR1000Array) SetAllRxPhases(ctx context.Context, phases map[int]float64) error {
	for _, el := range sortedKeys(phases) {
		ch, err := a.Element(el)
		if err != nil {
			return err
		}
		if err := ch.SetRxPhase(ctx, phases[el]); err != nil {
			return err
		}
	}
	return a.LatchRx(ctx)
}

// SetAllTxPhases writes per-element transmit phases and latches.
func (a *ADAR1000Array) SetAllTxPhases(ctx context.Context, phases map[int]float64) error {
	for _, el := range sortedKeys(phases) {
		ch, err := a.Element(el)
		if err != nil {
			return err
		}
		if err := ch.SetTxPhase(ctx, phases[el]); err != nil {
			return err
		}
	}
	return a.LatchTx(ctx)
}

func sortedKeys(m map[int]float64) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// SteeringPhases returns the phase of each element for a beam pointed at
// azimuth az and elevation el degrees.
func (a *ADAR1000Array) SteeringPhases(az, el float64) map[int]float64 {
	phiAz := dsp.SteerPhase(az, a.cfg.Frequency, a.cfg.Spacing)
	phiEl := dsp.SteerPhase(el, a.cfg.Frequency, a.cfg.Spacing)
	out := make(map[int]float64, len(a.pos))
	for elem, p := range a.pos {
		out[elem] = calib.Wrap360(float64(p.col)*phiAz + float64(p.row)*phiEl)
	}
	return out
}

// SteerRx points the receive beam.
func (a *ADAR1000Array) SteerRx(ctx context.Context, az, el float64) error {
	return a.SetAllRxPhases(ctx, a.SteeringPhases(az, el))
}

// SteerTx points the transmit beam.
func (a *ADAR1000Array) SteerTx(ctx context.Context, az, el float64) error {
	return a.SetAllTxPhases(ctx, a.SteeringPhases(az, el))
}

// SetTxElement sets the transmit gain and phase of one element without latching.
func (a *ADAR1000Array) SetTxElement(ctx context.Context, el, gain int, phase float64) error {
	ch, err := a.Element(el)
	if err != nil {
		return err
	}
	if err := ch.SetTxGain(ctx, gain); err != nil {
		return err
	}
	return ch.SetTxPhase(ctx, phase)
}

func (a *ADAR1000Array) SetTxPhase(ctx context.Context, el int, phase float64) error {
	ch, err := a.Element(el)
	if err != nil {
		return err
	}
	return ch.SetTxPhase(ctx, phase)
}

// SetPABias writes verified PA bias levels for one element.
func (a *ADAR1000Array) SetPABias(ctx context.Context, el int, on, off float64) error {
	ch, err := a.Element(el)
	if err != nil {
		return err
	}
	return ch.Chip.SetPABias(ctx, ch.Index, on, off)
}

// EnablePA biases the PA of element el on and latches TX.
func (a *ADAR1000Array) EnablePA(ctx context.Context, el int) error {
	return a.setPA(ctx, el, a.cfg.PAOn)
}

// DisablePA pinches the PA of element el off and latches TX.
func (a *ADAR1000Array) DisablePA(ctx context.Context, el int) error {
	return a.setPA(ctx, el, a.cfg.PAOff)
}

func (a *ADAR1000Array) setPA(ctx context.Context, el int, v float64) error {
	ch, err := a.Element(el)
	if err != nil {
		return err
	}
	if err := ch.SetPABiasOn(ctx, v); err != nil {
		return err
	}
	return ch.Chip.LatchTx(ctx)
}

// ApplyRxGainCodes writes attenuator and VGA codes per element and latches RX.
func (a *ADAR1000Array) ApplyRxGainCodes(ctx context.Context, codes map[int]calib.GainCode) error {
	els := make([]int, 0, len(codes))
	for el := range codes {
		els = append(els, el)
	}
	sort.Ints(els)
	for _, el := range els {
		ch, err := a.Element(el)
		if err != nil {
			return err
		}
		if err := ch.SetRxAttenuator(ctx, codes[el].Atten); err != nil {
			return err
		}
		if err := ch.SetRxGain(ctx, codes[el].Code); err != nil {
			return err
		}
	}
	return a.LatchRx(ctx)
}
