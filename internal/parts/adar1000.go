package parts

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rjboer/GoADI/internal/iio"
	"github.com/rjboer/GoADI/internal/logging"
)

// Operating modes of an ADAR1000.
const (
	ModeRx       = "rx"
	ModeTx       = "tx"
	ModeDisabled = "disabled"
)

// Register addresses.
const (
	regLDOTrim   = 0x400
	regRxEnables = 0x2E
	regLoadWork  = 0x28
)

const (
	latchRx = 0x01
	latchTx = 0x02
)

const maxGain = 127

// BiasCurrents are the LNA, VGA/VM and PA bias current settings of a chip.
type BiasCurrents struct {
	RxLNA   int
	RxVGAVM int
	TxPA    int
	TxVGAVM int
}

// ADAR1000 is a 4-channel X/Ku band beamformer. Channels voltage0..3 carry
// the receive settings on the input side and transmit settings on the
// output side.
type ADAR1000 struct {
	Dev *iio.Device
	// Label is the chip select label, e.g. BEAM0.
	Label string
	// RetryInterval separates PA bias write attempts. Zero retries at once.
	RetryInterval time.Duration

	channels [4]*ADARChannel
	logger   logging.Logger
}

// ADARChannel is one of the four RF channels of an ADAR1000.
type ADARChannel struct {
	Chip  *ADAR1000
	Index int
	rx    iio.AttrSet
	tx    iio.AttrSet
}

// NewADAR1000 binds the beamformer labelled beam (case-insensitive). A beam
// matching no label falls back to the device name.
func NewADAR1000(c *iio.Context, beam string) (*ADAR1000, error) {
	var dev *iio.Device
	for _, d := range c.Devices() {
		if d.Label != "" && strings.EqualFold(d.Label, beam) {
			dev = d
			break
		}
	}
	if dev == nil {
		d, err := c.Device(beam)
		if err != nil {
			return nil, fmt.Errorf("no device found for beam %s: %w", beam, err)
		}
		dev = d
	}
	if dev.Name != "adar1000" {
		return nil, fmt.Errorf("%w: %s is a %s, not an adar1000", iio.ErrNotFound, beam, dev.Name)
	}
	a := &ADAR1000{
		Dev:           dev,
		Label:         dev.DisplayName(),
		RetryInterval: 100 * time.Millisecond,
		logger:        logging.Or(c.Logger()).With(logging.F("chip", dev.DisplayName())),
	}
	for i := range a.channels {
		id := fmt.Sprintf("voltage%d", i)
		a.channels[i] = &ADARChannel{
			Chip:  a,
			Index: i,
			rx:    dev.ChannelAttrs(id, false),
			tx:    dev.ChannelAttrs(id, true),
		}
	}
	return a, nil
}

// Channel returns RF channel i (0..3).
func (a *ADAR1000) Channel(i int) (*ADARChannel, error) {
	if i < 0 || i >= len(a.channels) {
		return nil, invalidf("adar1000 channel %d out of range 0..3", i)
	}
	return a.channels[i], nil
}

// Channels returns the four RF channels in order.
func (a *ADAR1000) Channels() []*ADARChannel { return a.channels[:] }

func (a *ADAR1000) Mode(ctx context.Context) (string, error) { return a.Dev.Attr(ctx, "mode") }

// SetMode selects rx, tx or disabled.
func (a *ADAR1000) SetMode(ctx context.Context, mode string) error {
	switch mode {
	case ModeRx, ModeTx, ModeDisabled:
	default:
		return invalidf("adar1000 mode %q", mode)
	}
	return a.Dev.SetAttr(ctx, "mode", mode)
}

func (a *ADAR1000) TRSource(ctx context.Context) (string, error) {
	return a.Dev.Attr(ctx, "tr_source")
}

// SetTRSource selects "spi" or "ext" control of the TR state.
func (a *ADAR1000) SetTRSource(ctx context.Context, src string) error {
	if src != "spi" && src != "ext" {
		return invalidf("tr_source %q", src)
	}
	return a.Dev.SetAttr(ctx, "tr_source", src)
}

func (a *ADAR1000) BiasDACMode(ctx context.Context) (string, error) {
	return a.Dev.Attr(ctx, "bias_dac_mode")
}

// SetBiasDACMode selects "on" or "toggle" bias DAC operation.
func (a *ADAR1000) SetBiasDACMode(ctx context.Context, mode string) error {
	if mode != "on" && mode != "toggle" {
		return invalidf("bias_dac_mode %q", mode)
	}
	return a.Dev.SetAttr(ctx, "bias_dac_mode", mode)
}

// SetFlag writes a boolean device attribute such as rx_vga_enable or
// lna_bias_out_enable.
func (a *ADAR1000) SetFlag(ctx context.Context, name string, on bool) error {
	return a.Dev.SetAttrBool(ctx, name, on)
}

func (a *ADAR1000) Flag(ctx context.Context, name string) (bool, error) {
	return a.Dev.AttrBool(ctx, name)
}

// SetBiasCurrents programs the four bias current DACs.
func (a *ADAR1000) SetBiasCurrents(ctx context.Context, b BiasCurrents) error {
	var batch iio.Batch
	batch.Set(a.Dev.AttrSet, "rx_lna_bias_current", b.RxLNA).
		Set(a.Dev.AttrSet, "rx_vga_vm_bias_current", b.RxVGAVM).
		Set(a.Dev.AttrSet, "tx_pa_bias_current", b.TxPA).
		Set(a.Dev.AttrSet, "tx_vga_vm_bias_current", b.TxVGAVM)
	return batch.Apply(ctx)
}

// SetLNABias sets the external LNA bias voltages shared by all channels.
func (a *ADAR1000) SetLNABias(ctx context.Context, on, off float64) error {
	if err := a.Dev.SetAttrFloat(ctx, "lna_bias_on", on); err != nil {
		return err
	}
	return a.Dev.SetAttrFloat(ctx, "lna_bias_off", off)
}

// Reset issues a soft reset.
func (a *ADAR1000) Reset(ctx context.Context) error { return a.Dev.SetAttrBool(ctx, "reset", true) }

// TrimLDO centres the 1.8 V LDO.
func (a *ADAR1000) TrimLDO(ctx context.Context) error {
	return a.Dev.RegWrite(ctx, regLDOTrim, 0x55)
}

// EnableAllRx sets every per-channel receive enable bit together with the
// VGA, VM and LNA enables.
func (a *ADAR1000) EnableAllRx(ctx context.Context) error {
	return a.Dev.RegWrite(ctx, regRxEnables, 0x7F)
}

// LatchRx transfers the receive settings to the working registers.
func (a *ADAR1000) LatchRx(ctx context.Context) error {
	return a.Dev.RegWrite(ctx, regLoadWork, latchRx)
}

// LatchTx transfers the transmit settings to the working registers.
func (a *ADAR1000) LatchTx(ctx context.Context) error {
	return a.Dev.RegWrite(ctx, regLoadWork, latchTx)
}

// Temperature returns the raw on-chip temperature reading.
func (a *ADAR1000) Temperature(ctx context.Context) (int64, error) {
	return a.Dev.ChannelAttrs("temp0", false).AttrInt(ctx, "raw")
}

// SetPABias writes the PA on and off bias voltages of channel ch. Each value
// is read back and rewritten until it matches to 0.1 V, at most ten times.
func (a *ADAR1000) SetPABias(ctx context.Context, ch int, on, off float64) error {
	c, err := a.Channel(ch)
	if err != nil {
		return err
	}
	if err := a.writeVerified(ctx, c.tx, "pa_bias_on", on); err != nil {
		return err
	}
	return a.writeVerified(ctx, c.tx, "pa_bias_off", off)
}

func (a *ADAR1000) writeVerified(ctx context.Context, set iio.AttrSet, name string, want float64) error {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if a.RetryInterval > 0 {
		b = backoff.NewConstantBackOff(a.RetryInterval)
	}
	attempt := 0
	op := func() error {
		attempt++
		if err := set.SetAttrFloat(ctx, name, want); err != nil {
			return err
		}
		got, err := set.AttrFloat(ctx, name)
		if err != nil {
			return err
		}
		if round1(got) != round1(want) {
			return fmt.Errorf("%s read back %.2f, want %.1f", name, got, want)
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		a.logger.Warn("pa bias retry", logging.F("attr", name), logging.F("attempt", attempt), logging.Err(err))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, 9), ctx), notify); err != nil {
		return fmt.Errorf("%s %s after %d attempts: %w", a.Label, name, attempt, err)
	}
	return nil
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// Element returns the 1-based element number of the channel within its chip.
func (c *ADARChannel) Element() int { return c.Index + 1 }

func checkGain(g int) error {
	if g < 0 || g > maxGain {
		return invalidf("gain %d outside 0..%d", g, maxGain)
	}
	return nil
}

func (c *ADARChannel) RxGain(ctx context.Context) (int, error) {
	v, err := c.rx.AttrFloat(ctx, "hardwaregain")
	return int(v), err
}

// SetRxGain sets the receive VGA code 0..127.
func (c *ADARChannel) SetRxGain(ctx context.Context, g int) error {
	if err := checkGain(g); err != nil {
		return err
	}
	return c.rx.SetAttrInt(ctx, "hardwaregain", int64(g))
}

func (c *ADARChannel) TxGain(ctx context.Context) (int, error) {
	v, err := c.tx.AttrFloat(ctx, "hardwaregain")
	return int(v), err
}

func (c *ADARChannel) SetTxGain(ctx context.Context, g int) error {
	if err := checkGain(g); err != nil {
		return err
	}
	return c.tx.SetAttrInt(ctx, "hardwaregain", int64(g))
}

func (c *ADARChannel) RxPhase(ctx context.Context) (float64, error) {
	return c.rx.AttrFloat(ctx, "phase")
}

// SetRxPhase sets the receive phase in degrees; the driver quantises it.
func (c *ADARChannel) SetRxPhase(ctx context.Context, deg float64) error {
	return c.rx.SetAttrFloat(ctx, "phase", deg)
}

func (c *ADARChannel) TxPhase(ctx context.Context) (float64, error) {
	return c.tx.AttrFloat(ctx, "phase")
}

func (c *ADARChannel) SetTxPhase(ctx context.Context, deg float64) error {
	return c.tx.SetAttrFloat(ctx, "phase", deg)
}

func (c *ADARChannel) RxAttenuator(ctx context.Context) (bool, error) {
	return c.rx.AttrBool(ctx, "attenuation")
}

// SetRxAttenuator switches the fixed receive step attenuator.
func (c *ADARChannel) SetRxAttenuator(ctx context.Context, on bool) error {
	return c.rx.SetAttrBool(ctx, "attenuation", on)
}

func (c *ADARChannel) SetTxAttenuator(ctx context.Context, on bool) error {
	return c.tx.SetAttrBool(ctx, "attenuation", on)
}

// RxEnabled reports whether the receive path is powered.
func (c *ADARChannel) RxEnabled(ctx context.Context) (bool, error) {
	down, err := c.rx.AttrBool(ctx, "powerdown")
	return !down, err
}

func (c *ADARChannel) SetRxEnabled(ctx context.Context, on bool) error {
	return c.rx.SetAttrBool(ctx, "powerdown", !on)
}

func (c *ADARChannel) TxEnabled(ctx context.Context) (bool, error) {
	down, err := c.tx.AttrBool(ctx, "powerdown")
	return !down, err
}

func (c *ADARChannel) SetTxEnabled(ctx context.Context, on bool) error {
	return c.tx.SetAttrBool(ctx, "powerdown", !on)
}

// PABiasOn returns the external PA gate bias in the on state, in volts.
func (c *ADARChannel) PABiasOn(ctx context.Context) (float64, error) {
	return c.tx.AttrFloat(ctx, "pa_bias_on")
}

func (c *ADARChannel) SetPABiasOn(ctx context.Context, v float64) error {
	return c.tx.SetAttrFloat(ctx, "pa_bias_on", v)
}

func (c *ADARChannel) PABiasOff(ctx context.Context) (float64, error) {
	return c.tx.AttrFloat(ctx, "pa_bias_off")
}

func (c *ADARChannel) SetPABiasOff(ctx context.Context, v float64) error {
	return c.tx.SetAttrFloat(ctx, "pa_bias_off", v)
}

// Detector returns the raw power detector reading of the transmit path.
func (c *ADARChannel) Detector(ctx context.Context) (int64, error) {
	return c.tx.AttrInt(ctx, "raw")
}
