package parts

import (
	"context"
	"fmt"

	"github.com/rjboer/GoADI/internal/iio"
)

// Signal selects one group of TDD channel timings.
type Signal string

const (
	SignalDMA Signal = "dp_"
	SignalRF  Signal = ""
	SignalVCO Signal = "vco_"
)

// TDD is the axi-core-tdd frame timing engine. Channel timings are four values
// ordered primary on, primary off, secondary on, secondary off.
type TDD struct {
	Dev *iio.Device
}

func NewTDD(c *iio.Context) (*TDD, error) {
	dev, err := c.FindDevice(0, "axi-core-tdd")
	if err != nil {
		return nil, err
	}
	return &TDD{Dev: dev}, nil
}

func (t *TDD) FrameLengthMs(ctx context.Context) (float64, error) {
	return t.Dev.AttrFloat(ctx, "frame_length_ms")
}

func (t *TDD) SetFrameLengthMs(ctx context.Context, ms float64) error {
	return t.Dev.SetAttrFloat(ctx, "frame_length_ms", ms)
}

func (t *TDD) FrameLengthRaw(ctx context.Context) (int64, error) {
	return t.Dev.AttrInt(ctx, "frame_length_raw")
}

func (t *TDD) SetFrameLengthRaw(ctx context.Context, v int64) error {
	return t.Dev.SetAttrInt(ctx, "frame_length_raw", v)
}

// BurstCount returns the number of frames per burst; 0 runs forever.
func (t *TDD) BurstCount(ctx context.Context) (int64, error) {
	return t.Dev.AttrInt(ctx, "burst_count")
}

func (t *TDD) SetBurstCount(ctx context.Context, n int64) error {
	if n < 0 || n > 255 {
		return invalidf("burst count %d outside 0..255", n)
	}
	return t.Dev.SetAttrInt(ctx, "burst_count", n)
}

func (t *TDD) CounterInt(ctx context.Context) (int64, error) {
	return t.Dev.AttrInt(ctx, "counter_int")
}

func (t *TDD) SetCounterInt(ctx context.Context, v int64) error {
	return t.Dev.SetAttrInt(ctx, "counter_int", v)
}

// DMAGatingMode reads the driver's dma_gateing_mode attribute.
func (t *TDD) DMAGatingMode(ctx context.Context) (string, error) {
	return t.Dev.Attr(ctx, "dma_gateing_mode")
}

func (t *TDD) SetDMAGatingMode(ctx context.Context, mode string) error {
	return t.Dev.SetAttr(ctx, "dma_gateing_mode", mode)
}

func (t *TDD) Enabled(ctx context.Context) (bool, error) { return t.Dev.AttrBool(ctx, "en") }

func (t *TDD) SetEnabled(ctx context.Context, on bool) error {
	return t.Dev.SetAttrBool(ctx, "en", on)
}

func (t *TDD) EnableMode(ctx context.Context) (string, error) { return t.Dev.Attr(ctx, "en_mode") }

func (t *TDD) SetEnableMode(ctx context.Context, mode string) error {
	return t.Dev.SetAttr(ctx, "en_mode", mode)
}

// Secondary reports whether the secondary on/off window is active.
func (t *TDD) Secondary(ctx context.Context) (bool, error) {
	return t.Dev.AttrBool(ctx, "secondary")
}

func (t *TDD) SetSecondary(ctx context.Context, on bool) error {
	return t.Dev.SetAttrBool(ctx, "secondary", on)
}

type timingSlot struct {
	state   string
	channel string
}

var timingSlots = [4]timingSlot{{"on", "data0"}, {"off", "data0"}, {"on", "data1"}, {"off", "data1"}}

func timingAttr(sig Signal, state string, raw bool) string {
	unit := "ms"
	if raw {
		unit = "raw"
	}
	return fmt.Sprintf("%s%s_%s", sig, state, unit)
}

// Timing reads the four on/off values of a signal. tx selects the output
// channels; raw selects counter ticks over milliseconds.
func (t *TDD) Timing(ctx context.Context, sig Signal, tx, raw bool) ([]float64, error) {
	out := make([]float64, 0, len(timingSlots))
	for _, s := range timingSlots {
		v, err := t.Dev.ChannelAttrs(s.channel, tx).AttrFloat(ctx, timingAttr(sig, s.state, raw))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// SetTiming writes the four on/off values of a signal.
func (t *TDD) SetTiming(ctx context.Context, sig Signal, tx, raw bool, values []float64) error {
	if len(values) != len(timingSlots) {
		return invalidf("expected four values, received %d", len(values))
	}
	for i, s := range timingSlots {
		if err := t.Dev.ChannelAttrs(s.channel, tx).SetAttrFloat(ctx, timingAttr(sig, s.state, raw), values[i]); err != nil {
			return err
		}
	}
	return nil
}

// RxDPOnOff returns the RX DMA gate timings.
func (t *TDD) RxDPOnOff(ctx context.Context, raw bool) ([]float64, error) {
	return t.Timing(ctx, SignalDMA, false, raw)
}

func (t *TDD) SetRxDPOnOff(ctx context.Context, raw bool, v []float64) error {
	return t.SetTiming(ctx, SignalDMA, false, raw, v)
}

// TxDPOnOff returns the TX DMA gate timings.
func (t *TDD) TxDPOnOff(ctx context.Context, raw bool) ([]float64, error) {
	return t.Timing(ctx, SignalDMA, true, raw)
}

func (t *TDD) SetTxDPOnOff(ctx context.Context, raw bool, v []float64) error {
	return t.SetTiming(ctx, SignalDMA, true, raw, v)
}

// RxRFOnOff returns the RX RF switch timings.
func (t *TDD) RxRFOnOff(ctx context.Context, raw bool) ([]float64, error) {
	return t.Timing(ctx, SignalRF, false, raw)
}

func (t *TDD) SetRxRFOnOff(ctx context.Context, raw bool, v []float64) error {
	return t.SetTiming(ctx, SignalRF, false, raw, v)
}

// TxRFOnOff returns the TX RF switch timings.
func (t *TDD) TxRFOnOff(ctx context.Context, raw bool) ([]float64, error) {
	return t.Timing(ctx, SignalRF, true, raw)
}

func (t *TDD) SetTxRFOnOff(ctx context.Context, raw bool, v []float64) error {
	return t.SetTiming(ctx, SignalRF, true, raw, v)
}
