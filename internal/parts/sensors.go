package parts

import (
	"context"
	"fmt"

	"github.com/rjboer/GoADI/internal/iio"
)

// AD7291 is an 8-channel 12-bit SAR ADC with a temperature sensor.
type AD7291 struct {
	Dev *iio.Device
}

// NewAD7291 binds the index-th AD7291 of c.
func NewAD7291(c *iio.Context, index int) (*AD7291, error) {
	dev, err := c.FindDevice(index, "ad7291_1", "ad7291")
	if err != nil {
		return nil, err
	}
	return &AD7291{Dev: dev}, nil
}

func (a *AD7291) voltage(ch int) iio.AttrSet {
	return a.Dev.ChannelAttrs(fmt.Sprintf("voltage%d", ch), false)
}

func (a *AD7291) Raw(ctx context.Context, ch int) (int64, error) {
	return a.voltage(ch).AttrInt(ctx, "raw")
}

// Millivolts returns raw*scale of voltage channel ch.
func (a *AD7291) Millivolts(ctx context.Context, ch int) (float64, error) {
	if ch < 0 || ch > 7 {
		return 0, invalidf("ad7291 channel %d out of range 0..7", ch)
	}
	set := a.voltage(ch)
	raw, err := set.AttrFloat(ctx, "raw")
	if err != nil {
		return 0, err
	}
	scale, err := set.AttrFloat(ctx, "scale")
	if err != nil {
		return 0, err
	}
	return raw * scale, nil
}

// TemperatureC returns the averaged die temperature in degrees Celsius.
func (a *AD7291) TemperatureC(ctx context.Context) (float64, error) {
	set := a.Dev.ChannelAttrs("temp0", false)
	raw, err := set.AttrFloat(ctx, "mean_raw")
	if err != nil {
		return 0, err
	}
	scale, err := set.AttrFloat(ctx, "scale")
	if err != nil {
		return 0, err
	}
	return raw * scale / 1000, nil
}

// LM75 is an LM75 compatible temperature sensor (lm75, adt75).
type LM75 struct {
	Dev *iio.Device
}

func NewLM75(c *iio.Context, index int) (*LM75, error) {
	dev, err := c.FindDevice(index, "lm75", "adt75")
	if err != nil {
		return nil, err
	}
	return &LM75{Dev: dev}, nil
}

func (l *LM75) temp() iio.AttrSet { return l.Dev.ChannelAttrs("temp1", false) }

// Input returns the temperature in millidegrees.
func (l *LM75) Input(ctx context.Context) (int64, error) { return l.temp().AttrInt(ctx, "input") }

func (l *LM75) Max(ctx context.Context) (int64, error)     { return l.temp().AttrInt(ctx, "max") }
func (l *LM75) MaxHyst(ctx context.Context) (int64, error) { return l.temp().AttrInt(ctx, "max_hyst") }

// SetMax sets the over-temperature threshold in degrees Celsius.
func (l *LM75) SetMax(ctx context.Context, deg float64) error {
	return l.temp().SetAttrInt(ctx, "max", ToMillidegrees(deg))
}

// SetMaxHyst sets the threshold hysteresis in degrees Celsius.
func (l *LM75) SetMaxHyst(ctx context.Context, deg float64) error {
	return l.temp().SetAttrInt(ctx, "max_hyst", ToMillidegrees(deg))
}

func (l *LM75) UpdateInterval(ctx context.Context) (int64, error) {
	return l.Dev.AttrInt(ctx, "update_interval")
}

// Degrees returns the temperature in degrees Celsius.
func (l *LM75) Degrees(ctx context.Context) (float64, error) {
	v, err := l.Input(ctx)
	return ToDegrees(v), err
}

func ToDegrees(milli int64) float64   { return float64(milli) / 1000 }
func ToMillidegrees(deg float64) int64 { return int64(deg * 1000) }

// MAX9611 is a current-sense amplifier with ADC (max9611, max9612).
type MAX9611 struct {
	Dev *iio.Device
}

// NewMAX9611 binds the device named name; empty selects max9611.
func NewMAX9611(c *iio.Context, name string) (*MAX9611, error) {
	if name == "" {
		name = "max9611"
	}
	if name != "max9611" && name != "max9612" {
		return nil, invalidf("%q is not a max9611 compatible part", name)
	}
	dev, err := c.FindDevice(0, name)
	if err != nil {
		return nil, err
	}
	return &MAX9611{Dev: dev}, nil
}

// SenseVoltage returns the shunt voltage channel input.
func (m *MAX9611) SenseVoltage(ctx context.Context) (float64, error) {
	return m.Dev.ChannelAttrs("voltage0", false).AttrFloat(ctx, "input")
}

// InputVoltage returns (raw + offset) * scale of the common-mode input.
func (m *MAX9611) InputVoltage(ctx context.Context) (float64, error) {
	return rawScaled(ctx, m.Dev.ChannelAttrs("voltage1", false))
}

func (m *MAX9611) Power(ctx context.Context) (float64, error) {
	return m.Dev.ChannelAttrs("power", false).AttrFloat(ctx, "input")
}

func (m *MAX9611) Current(ctx context.Context) (float64, error) {
	return m.Dev.ChannelAttrs("current", false).AttrFloat(ctx, "input")
}

// ShuntResistor returns the shunt value the driver was configured with.
func (m *MAX9611) ShuntResistor(ctx context.Context) (float64, error) {
	return m.Dev.ChannelAttrs("current", false).AttrFloat(ctx, "shunt_resistor")
}

// Temperature returns raw * scale of the temperature channel.
func (m *MAX9611) Temperature(ctx context.Context) (float64, error) {
	return rawScaled(ctx, m.Dev.ChannelAttrs("temp", false))
}

// rawScaled applies the IIO convention (raw + offset) * scale. A missing
// offset counts as zero.
func rawScaled(ctx context.Context, set iio.AttrSet) (float64, error) {
	raw, err := set.AttrFloat(ctx, "raw")
	if err != nil {
		return 0, err
	}
	scale, err := set.AttrFloat(ctx, "scale")
	if err != nil {
		return 0, err
	}
	offset, err := set.AttrFloat(ctx, "offset")
	if err != nil {
		offset = 0
	}
	return (raw + offset) * scale, nil
}
