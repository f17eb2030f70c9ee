package parts

import (
	"context"
	"fmt"

	"github.com/rjboer/GoADI/internal/iio"
)

// ChannelKind tells which optional attribute group an LTC2688 channel carries.
type ChannelKind int

const (
	ChannelStandard ChannelKind = iota
	ChannelDither
	ChannelToggle
	// ChannelSWToggle is a toggle channel switched by the "symbol" attribute.
	ChannelSWToggle
)

func (k ChannelKind) String() string {
	switch k {
	case ChannelDither:
		return "dither"
	case ChannelToggle:
		return "toggle"
	case ChannelSWToggle:
		return "sw_toggle"
	}
	return "standard"
}

// LTC2688 is a 16-channel 16-bit voltage output DAC.
type LTC2688 struct {
	Dev *iio.Device
	// Vref is the reference voltage; voltage conversions scale by Vref/4.096.
	Vref     float64
	channels []*DACChannel
}

// DACChannel is one output of an LTC2688.
type DACChannel struct {
	iio.AttrSet
	ID   string
	Kind ChannelKind
	dac  *LTC2688
}

// NewLTC2688 binds the index-th LTC2688 of c.
func NewLTC2688(c *iio.Context, index int) (*LTC2688, error) {
	dev, err := c.FindDevice(index, "ltc2688")
	if err != nil {
		return nil, err
	}
	l := &LTC2688{Dev: dev, Vref: 4.096}
	for _, ch := range voltageChannels(dev, true) {
		l.channels = append(l.channels, &DACChannel{AttrSet: ch.AttrSet, ID: ch.ID, Kind: kindOf(ch.AttrNames), dac: l})
	}
	return l, nil
}

func kindOf(attrs []string) ChannelKind {
	has := map[string]bool{}
	for _, a := range attrs {
		has[a] = true
	}
	switch {
	case has["toggle_en"] && has["symbol"]:
		return ChannelSWToggle
	case has["toggle_en"]:
		return ChannelToggle
	case has["dither_en"]:
		return ChannelDither
	}
	return ChannelStandard
}

// NumChannels returns the number of output channels.
func (l *LTC2688) NumChannels() int { return len(l.channels) }

// Channel returns output i.
func (l *LTC2688) Channel(i int) (*DACChannel, error) {
	if i < 0 || i >= len(l.channels) {
		return nil, invalidf("ltc2688 channel %d out of range 0..%d", i, len(l.channels)-1)
	}
	return l.channels[i], nil
}

// ChannelByID returns the output with the given channel ID, e.g. "voltage4".
func (l *LTC2688) ChannelByID(id string) (*DACChannel, error) {
	for _, ch := range l.channels {
		if ch.ID == id {
			return ch, nil
		}
	}
	return nil, fmt.Errorf("%w: ltc2688 channel %q", iio.ErrNotFound, id)
}

func (c *DACChannel) Scale(ctx context.Context) (float64, error)  { return c.AttrFloat(ctx, "scale") }
func (c *DACChannel) Offset(ctx context.Context) (float64, error) { return c.AttrFloat(ctx, "offset") }

func (c *DACChannel) CalibBias(ctx context.Context) (int64, error) {
	return c.AttrInt(ctx, "calibbias")
}

func (c *DACChannel) CalibScale(ctx context.Context) (int64, error) {
	return c.AttrInt(ctx, "calibscale")
}

func (c *DACChannel) Powerdown(ctx context.Context) (bool, error) {
	return c.AttrBool(ctx, "powerdown")
}

func (c *DACChannel) SetPowerdown(ctx context.Context, v bool) error {
	return c.SetAttrBool(ctx, "powerdown", v)
}

func (c *DACChannel) Raw(ctx context.Context) (int64, error) { return c.AttrInt(ctx, "raw") }

// SetRaw writes a code after checking it against raw_available.
func (c *DACChannel) SetRaw(ctx context.Context, v int64) error {
	return c.setRaw(ctx, "raw", v)
}

func (c *DACChannel) setRaw(ctx context.Context, name string, v int64) error {
	if err := checkRaw(ctx, c.AttrSet, "raw", v); err != nil {
		return err
	}
	return c.SetAttrInt(ctx, name, v)
}

func (c *DACChannel) toMillivolts(ctx context.Context, raw int64) (float64, error) {
	scale, err := c.Scale(ctx)
	if err != nil {
		return 0, err
	}
	offset, err := c.Offset(ctx)
	if err != nil {
		return 0, err
	}
	return (float64(raw) + offset) * scale * (c.dac.Vref / 4.096), nil
}

func (c *DACChannel) fromMillivolts(ctx context.Context, mv float64) (int64, error) {
	scale, err := c.Scale(ctx)
	if err != nil {
		return 0, err
	}
	if scale == 0 {
		return 0, invalidf("%s scale is zero", c.ID)
	}
	offset, err := c.Offset(ctx)
	if err != nil {
		return 0, err
	}
	return int64((mv/scale - offset) * (c.dac.Vref / 4.096)), nil
}

// Volt returns the output level in millivolts.
func (c *DACChannel) Volt(ctx context.Context) (float64, error) {
	raw, err := c.Raw(ctx)
	if err != nil {
		return 0, err
	}
	return c.toMillivolts(ctx, raw)
}

// SetVolt programs the output level in millivolts.
func (c *DACChannel) SetVolt(ctx context.Context, mv float64) error {
	raw, err := c.fromMillivolts(ctx, mv)
	if err != nil {
		return err
	}
	return c.SetRaw(ctx, raw)
}

func (c *DACChannel) need(kinds ...ChannelKind) error {
	for _, k := range kinds {
		if c.Kind == k {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is a %s channel", iio.ErrNotFound, c.ID, c.Kind)
}

func (c *DACChannel) DitherEnable(ctx context.Context) (bool, error) {
	if err := c.need(ChannelDither); err != nil {
		return false, err
	}
	return c.AttrBool(ctx, "dither_en")
}

func (c *DACChannel) SetDitherEnable(ctx context.Context, on bool) error {
	if err := c.need(ChannelDither); err != nil {
		return err
	}
	return c.SetAttrBool(ctx, "dither_en", on)
}

// SetDitherFrequency selects one of dither_frequency_available.
func (c *DACChannel) SetDitherFrequency(ctx context.Context, hz int64) error {
	return c.setDitherListed(ctx, "dither_frequency", hz)
}

// SetDitherPhase selects one of dither_phase_available.
func (c *DACChannel) SetDitherPhase(ctx context.Context, deg float64) error {
	return c.setDitherListed(ctx, "dither_phase", deg)
}

func (c *DACChannel) setDitherListed(ctx context.Context, name string, v any) error {
	if err := c.need(ChannelDither); err != nil {
		return err
	}
	s, err := iio.FormatValue(v)
	if err != nil {
		return err
	}
	if err := checkList(ctx, c.AttrSet, name, s); err != nil {
		return err
	}
	return c.SetAttr(ctx, name, s)
}

// SetDitherRaw sets the dither amplitude, checked against dither_raw_available.
func (c *DACChannel) SetDitherRaw(ctx context.Context, v int64) error {
	if err := c.need(ChannelDither); err != nil {
		return err
	}
	if err := checkRaw(ctx, c.AttrSet, "dither_raw", v); err != nil {
		return err
	}
	return c.SetAttrInt(ctx, "dither_raw", v)
}

func (c *DACChannel) SetDitherOffset(ctx context.Context, v int64) error {
	if err := c.need(ChannelDither); err != nil {
		return err
	}
	return c.SetAttrInt(ctx, "dither_offset", v)
}

func (c *DACChannel) ToggleEnable(ctx context.Context) (bool, error) {
	if err := c.need(ChannelToggle, ChannelSWToggle); err != nil {
		return false, err
	}
	return c.AttrBool(ctx, "toggle_en")
}

func (c *DACChannel) SetToggleEnable(ctx context.Context, on bool) error {
	if err := c.need(ChannelToggle, ChannelSWToggle); err != nil {
		return err
	}
	return c.SetAttrBool(ctx, "toggle_en", on)
}

// ToggleVolt returns the millivolt level of toggle state 0 or 1.
func (c *DACChannel) ToggleVolt(ctx context.Context, state int) (float64, error) {
	if err := c.need(ChannelToggle, ChannelSWToggle); err != nil {
		return 0, err
	}
	if state != 0 && state != 1 {
		return 0, invalidf("toggle state %d", state)
	}
	raw, err := c.AttrInt(ctx, fmt.Sprintf("raw%d", state))
	if err != nil {
		return 0, err
	}
	return c.toMillivolts(ctx, raw)
}

// SetToggleVolt programs the millivolt level of toggle state 0 or 1.
func (c *DACChannel) SetToggleVolt(ctx context.Context, state int, mv float64) error {
	if err := c.need(ChannelToggle, ChannelSWToggle); err != nil {
		return err
	}
	if state != 0 && state != 1 {
		return invalidf("toggle state %d", state)
	}
	raw, err := c.fromMillivolts(ctx, mv)
	if err != nil {
		return err
	}
	return c.setRaw(ctx, fmt.Sprintf("raw%d", state), raw)
}

// SetSymbol selects the active toggle state of a software toggled channel.
func (c *DACChannel) SetSymbol(ctx context.Context, state int) error {
	if err := c.need(ChannelSWToggle); err != nil {
		return err
	}
	if state != 0 && state != 1 {
		return invalidf("toggle state %d", state)
	}
	return c.SetAttrInt(ctx, "symbol", int64(state))
}
