package parts

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rjboer/GoADI/internal/iio"
)

// OneBitADCDAC exposes the GPIO lines of a one-bit-adc-dac device by the label
// each channel carries, lowercased.
type OneBitADCDAC struct {
	Dev  *iio.Device
	pins map[string]iio.AttrSet
}

// NewOneBitADCDAC binds the device labelled or named name. An empty name
// selects "one-bit-adc-dac".
func NewOneBitADCDAC(ctx context.Context, c *iio.Context, name string) (*OneBitADCDAC, error) {
	if name == "" {
		name = "one-bit-adc-dac"
	}
	var dev *iio.Device
	for _, d := range c.Devices() {
		if d.Label == name || d.Name == name {
			dev = d
			break
		}
	}
	if dev == nil {
		return nil, fmt.Errorf("%w: no device found for %s", iio.ErrNotFound, name)
	}
	g := &OneBitADCDAC{Dev: dev, pins: map[string]iio.AttrSet{}}
	for _, ch := range dev.Channels {
		label, err := ch.Attr(ctx, "label")
		if err != nil {
			return nil, fmt.Errorf("gpio %s: %w", ch.ID, err)
		}
		key := strings.ToLower(strings.TrimSpace(label))
		// an input and an output line may share a label; the output wins
		if _, dup := g.pins[key]; dup && !ch.Output {
			continue
		}
		g.pins[key] = ch.AttrSet
	}
	return g, nil
}

// Pins returns the pin names, sorted.
func (g *OneBitADCDAC) Pins() []string {
	out := make([]string, 0, len(g.pins))
	for k := range g.pins {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (g *OneBitADCDAC) pin(name string) (iio.AttrSet, error) {
	key := strings.TrimPrefix(strings.ToLower(name), "gpio_")
	set, ok := g.pins[key]
	if !ok {
		return iio.AttrSet{}, fmt.Errorf("%w: gpio %q on %s", iio.ErrNotFound, name, g.Dev.DisplayName())
	}
	return set, nil
}

// Get reads a pin. Names may carry the "gpio_" prefix.
func (g *OneBitADCDAC) Get(ctx context.Context, name string) (int, error) {
	set, err := g.pin(name)
	if err != nil {
		return 0, err
	}
	v, err := set.AttrInt(ctx, "raw")
	return int(v), err
}

// Set drives a pin.
func (g *OneBitADCDAC) Set(ctx context.Context, name string, v int) error {
	set, err := g.pin(name)
	if err != nil {
		return err
	}
	return set.SetAttrInt(ctx, "raw", int64(v))
}
