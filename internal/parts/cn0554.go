package parts

import (
	"context"
	"fmt"
	"sync"

	"github.com/rjboer/GoADI/internal/iio"
)

// Input ranges of the CN0554 front end. The first two pass through the 11:1
// resistor divider.
const (
	RangeBipolar13V75 = "+/-13.75"
	RangeUnipolar27V5 = "+27.5"
	RangeUnipolar2V5  = "+2.5"
)

var inRanges = []string{RangeBipolar13V75, RangeUnipolar27V5, RangeUnipolar2V5}

// CN0554 is the mixed-signal control board: an AD7124 for inputs and an
// LTC2688 for outputs.
type CN0554 struct {
	ADC *AD7124
	DAC *LTC2688

	mu      sync.Mutex
	inScale float64
	ranges  []string
}

// NewCN0554 binds the board and sets the ADC to 19.2 kHz.
func NewCN0554(ctx context.Context, c *iio.Context) (*CN0554, error) {
	adc, err := NewAD7124(c, 0)
	if err != nil {
		return nil, err
	}
	dac, err := NewLTC2688(c, 0)
	if err != nil {
		return nil, err
	}
	b := &CN0554{ADC: adc, DAC: dac, inScale: 11, ranges: make([]string, adc.NumChannels())}
	for i := range b.ranges {
		b.ranges[i] = RangeBipolar13V75
	}
	if err := adc.SetSampleRate(ctx, 19200); err != nil {
		return nil, fmt.Errorf("cn0554 sample rate: %w", err)
	}
	return b, nil
}

// InScale returns the input divider ratio.
func (b *CN0554) InScale() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inScale
}

// SetInScale changes the input divider ratio.
func (b *CN0554) SetInScale(v float64) error {
	if v <= 0 {
		return invalidf("scale factor %g must be greater than 0", v)
	}
	b.mu.Lock()
	b.inScale = v
	b.mu.Unlock()
	return nil
}

// InRange returns the input range jumper setting recorded for channel ch.
func (b *CN0554) InRange(ch int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch < 0 || ch >= len(b.ranges) {
		return "", invalidf("input channel %d out of range", ch)
	}
	return b.ranges[ch], nil
}

// SetInRange records the range jumper setting of channel ch.
func (b *CN0554) SetInRange(ch int, r string) error {
	ok := false
	for _, v := range inRanges {
		ok = ok || v == r
	}
	if !ok {
		return invalidf("input range %q, valid values are %q", r, inRanges)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch < 0 || ch >= len(b.ranges) {
		return invalidf("input channel %d out of range", ch)
	}
	b.ranges[ch] = r
	return nil
}

// OutReference returns the DAC reference voltage.
func (b *CN0554) OutReference() float64 { return b.DAC.Vref }

// SetOutReference selects the 4.096 V or 2.5 V DAC reference.
func (b *CN0554) SetOutReference(v float64) error {
	if v != 4.096 && v != 2.5 {
		return invalidf("out reference %g must be 4.096 or 2.5", v)
	}
	b.DAC.Vref = v
	return nil
}

func (b *CN0554) SampleRate(ctx context.Context) (float64, error) { return b.ADC.SampleRate(ctx) }

func (b *CN0554) SetSampleRate(ctx context.Context, hz float64) error {
	return b.ADC.SetSampleRate(ctx, hz)
}

// ConvertToVolts scales ADC readings of channel ch back to the terminal
// voltage. Readings on the divided ranges are multiplied by InScale.
func (b *CN0554) ConvertToVolts(ch int, in []float64) ([]float64, error) {
	r, err := b.InRange(ch)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, v := range inRanges {
		if v == r {
			idx = i
		}
	}
	out := append([]float64(nil), in...)
	if idx < 2 {
		scale := b.InScale()
		for i := range out {
			out[i] *= scale
		}
	}
	return out, nil
}
