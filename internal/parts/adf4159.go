package parts

import (
	"context"

	"github.com/rjboer/GoADI/internal/iio"
)

// ADF4159 is a 13 GHz fractional-N synthesizer with a ramp generator. All
// controls live on the altvoltage0 output channel.
type ADF4159 struct {
	Dev *iio.Device
	out iio.AttrSet
}

func NewADF4159(c *iio.Context) (*ADF4159, error) {
	dev, err := c.FindDevice(0, "adf4159")
	if err != nil {
		return nil, err
	}
	return &ADF4159{Dev: dev, out: dev.ChannelAttrs("altvoltage0", true)}, nil
}

// Frequency returns the output frequency in Hz.
func (p *ADF4159) Frequency(ctx context.Context) (int64, error) {
	return p.out.AttrInt(ctx, "frequency")
}

func (p *ADF4159) SetFrequency(ctx context.Context, hz int64) error {
	return p.out.SetAttrInt(ctx, "frequency", hz)
}

// Enabled reports whether the RF output is powered.
func (p *ADF4159) Enabled(ctx context.Context) (bool, error) {
	down, err := p.out.AttrBool(ctx, "powerdown")
	return !down, err
}

func (p *ADF4159) SetEnabled(ctx context.Context, on bool) error {
	return p.out.SetAttrBool(ctx, "powerdown", !on)
}

func (p *ADF4159) RampMode(ctx context.Context) (string, error) {
	return p.out.Attr(ctx, "ramp_mode")
}

// SetRampMode selects one of ramp_mode_available, e.g. "disabled" or
// "continuous_triangular".
func (p *ADF4159) SetRampMode(ctx context.Context, mode string) error {
	if err := checkList(ctx, p.out, "ramp_mode", mode); err != nil {
		return err
	}
	return p.out.SetAttr(ctx, "ramp_mode", mode)
}

// FreqDevRange returns the ramp deviation range in Hz.
func (p *ADF4159) FreqDevRange(ctx context.Context) (int64, error) {
	return p.out.AttrInt(ctx, "frequency_deviation_range")
}

func (p *ADF4159) SetFreqDevRange(ctx context.Context, hz int64) error {
	return p.out.SetAttrInt(ctx, "frequency_deviation_range", hz)
}

func (p *ADF4159) FreqDevStep(ctx context.Context) (int64, error) {
	return p.out.AttrInt(ctx, "frequency_deviation_step")
}

func (p *ADF4159) SetFreqDevStep(ctx context.Context, steps int64) error {
	return p.out.SetAttrInt(ctx, "frequency_deviation_step", steps)
}

// FreqDevTime returns the ramp duration in microseconds.
func (p *ADF4159) FreqDevTime(ctx context.Context) (int64, error) {
	return p.out.AttrInt(ctx, "frequency_deviation_time")
}

func (p *ADF4159) SetFreqDevTime(ctx context.Context, us int64) error {
	return p.out.SetAttrInt(ctx, "frequency_deviation_time", us)
}

// MuxoutSelect returns the MUXOUT pin function.
func (p *ADF4159) MuxoutSelect(ctx context.Context) (string, error) {
	return p.Dev.Attr(ctx, "muxout_select")
}

func (p *ADF4159) SetMuxoutSelect(ctx context.Context, v string) error {
	if err := checkList(ctx, p.Dev.AttrSet, "muxout_select", v); err != nil {
		return err
	}
	return p.Dev.SetAttr(ctx, "muxout_select", v)
}

func (p *ADF4159) RampDelay(ctx context.Context) (bool, error) {
	return p.Dev.AttrBool(ctx, "ramp_delay_en")
}

func (p *ADF4159) SetRampDelay(ctx context.Context, on bool) error {
	return p.Dev.SetAttrBool(ctx, "ramp_delay_en", on)
}
