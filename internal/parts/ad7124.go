package parts

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rjboer/GoADI/internal/iio"
)

// AD7124 is a 24-bit sigma-delta ADC (ad7124-8 or ad7124-4). Channels are
// addressed by their position in numeric order, so "voltage10-11" follows
// "voltage9-10".
type AD7124 struct {
	Dev      *iio.Device
	channels []*iio.Channel
}

// NewAD7124 binds the index-th AD7124 of c.
func NewAD7124(c *iio.Context, index int) (*AD7124, error) {
	dev, err := c.FindDevice(index, "ad7124-8", "ad7124-4")
	if err != nil {
		return nil, err
	}
	chs := voltageChannels(dev, false)
	if len(chs) == 0 {
		return nil, fmt.Errorf("%w: %s has no input channels", iio.ErrNotFound, dev.ID)
	}
	return &AD7124{Dev: dev, channels: chs}, nil
}

// NumChannels returns the number of input channels.
func (a *AD7124) NumChannels() int { return len(a.channels) }

// ChannelIDs returns the channel IDs in index order.
func (a *AD7124) ChannelIDs() []string {
	ids := make([]string, len(a.channels))
	for i, ch := range a.channels {
		ids[i] = ch.ID
	}
	return ids
}

func (a *AD7124) channel(i int) (*iio.Channel, error) {
	if i < 0 || i >= len(a.channels) {
		return nil, invalidf("ad7124 channel %d out of range 0..%d", i, len(a.channels)-1)
	}
	return a.channels[i], nil
}

func (a *AD7124) Raw(ctx context.Context, i int) (int64, error) {
	ch, err := a.channel(i)
	if err != nil {
		return 0, err
	}
	return ch.AttrInt(ctx, "raw")
}

func (a *AD7124) Scale(ctx context.Context, i int) (float64, error) {
	ch, err := a.channel(i)
	if err != nil {
		return 0, err
	}
	return ch.AttrFloat(ctx, "scale")
}

// SetScale selects one of ScaleAvailable for channel i.
func (a *AD7124) SetScale(ctx context.Context, i int, v float64) error {
	ch, err := a.channel(i)
	if err != nil {
		return err
	}
	return ch.SetAttrFloat(ctx, "scale", v)
}

func (a *AD7124) Offset(ctx context.Context, i int) (float64, error) {
	ch, err := a.channel(i)
	if err != nil {
		return 0, err
	}
	return ch.AttrFloat(ctx, "offset")
}

// ScaleAvailable lists the scales channel i supports.
func (a *AD7124) ScaleAvailable(ctx context.Context, i int) ([]float64, error) {
	ch, err := a.channel(i)
	if err != nil {
		return nil, err
	}
	raw, err := ch.Attr(ctx, "scale_available")
	if err != nil {
		return nil, err
	}
	var out []float64
	for _, f := range strings.Fields(raw) {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, &iio.ValueError{Attr: "scale_available", Raw: raw, Want: "float list"}
		}
		out = append(out, v)
	}
	return out, nil
}

// SampleRate returns the sampling frequency of the first channel.
func (a *AD7124) SampleRate(ctx context.Context) (float64, error) {
	return a.channels[0].AttrFloat(ctx, "sampling_frequency")
}

// SetSampleRate writes the sampling frequency to every channel.
func (a *AD7124) SetSampleRate(ctx context.Context, hz float64) error {
	var b iio.Batch
	for _, ch := range a.channels {
		b.Set(ch.AttrSet, "sampling_frequency", hz)
	}
	return b.Apply(ctx)
}

// ToVolts converts a raw reading of channel i as raw*scale + offset, in the
// unit the driver reports its scale in.
func (a *AD7124) ToVolts(ctx context.Context, i int, raw float64) (float64, error) {
	scale, err := a.Scale(ctx, i)
	if err != nil {
		return 0, err
	}
	offset, err := a.Offset(ctx, i)
	if err != nil {
		return 0, err
	}
	return raw*scale + offset, nil
}

// Capture reads samples from the channels at positions idx and returns the
// raw codes in the same order.
func (a *AD7124) Capture(ctx context.Context, idx []int, samples int) ([][]int64, error) {
	ids := make([]string, len(idx))
	for k, i := range idx {
		ch, err := a.channel(i)
		if err != nil {
			return nil, err
		}
		ids[k] = ch.ID
	}
	data, err := a.Dev.Capture(ctx, ids, samples)
	if err != nil {
		return nil, err
	}
	out := make([][]int64, len(ids))
	for k, id := range ids {
		out[k] = data[id]
	}
	return out, nil
}
