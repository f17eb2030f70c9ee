package parts

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rjboer/GoADI/internal/dsp"
	"github.com/rjboer/GoADI/internal/iio"
	"github.com/rjboer/GoADI/internal/logging"
)

// RadioConfig is the front-end setup applied by AD9361.Configure. Zero
// fields are left untouched; a zero RFBandwidth follows the sample rate.
type RadioConfig struct {
	SampleRate  float64
	RxLO        float64
	TxLO        float64
	RFBandwidth float64
	// GainMode is manual, slow_attack, fast_attack or hybrid.
	GainMode string
	RxGain   [2]float64
	TxGain   float64
	// BufferSize is the number of samples Capture reads per channel.
	BufferSize int
}

// AD9361 is a 2R2T transceiver as found on the Pluto and the phaser's
// receiver: the ad9361-phy control device plus the cf-ad9361 RX/TX cores.
type AD9361 struct {
	Phy, RX, TX *iio.Device
	BufferSize  int

	logger logging.Logger
}

// NewAD9361 locates the transceiver devices of c.
func NewAD9361(c *iio.Context) (*AD9361, error) {
	phy, rx, tx := identifyAD9361Devices(c.Devices())
	if phy == nil || rx == nil {
		return nil, fmt.Errorf("%w: unable to locate AD9361 devices (phy=%t rx=%t)", iio.ErrNotFound, phy != nil, rx != nil)
	}
	return &AD9361{
		Phy:        phy,
		RX:         rx,
		TX:         tx,
		BufferSize: 1024,
		logger:     logging.Or(c.Logger()).With(logging.F("component", "ad9361")),
	}, nil
}

// identifyAD9361Devices finds the PHY, RX, and TX devices. TX is optional.
func identifyAD9361Devices(devices []*iio.Device) (phy, rx, tx *iio.Device) {
	for _, dev := range devices {
		lower := strings.ToLower(dev.Name)
		switch {
		case strings.Contains(lower, "ad9361-phy"):
			phy = dev
		case strings.Contains(lower, "cf-ad9361-dds"):
			tx = dev
		case strings.Contains(lower, "cf-ad9361-lpc"):
			rx = dev
		}
	}
	return phy, rx, tx
}

func (r *AD9361) rxChan(i int) iio.AttrSet {
	return r.Phy.ChannelAttrs(fmt.Sprintf("voltage%d", i), false)
}

func (r *AD9361) txChan(i int) iio.AttrSet {
	return r.Phy.ChannelAttrs(fmt.Sprintf("voltage%d", i), true)
}

// Configure programs LOs, sample rate, bandwidth and gains in that order.
func (r *AD9361) Configure(ctx context.Context, cfg RadioConfig) error {
	log := r.logger
	if cfg.RxLO > 0 {
		log.Debug("set rx lo", logging.F("hz", cfg.RxLO))
		if err := r.SetRxLO(ctx, cfg.RxLO); err != nil {
			return fmt.Errorf("set RX LO: %w", err)
		}
	}
	if cfg.TxLO > 0 {
		log.Debug("set tx lo", logging.F("hz", cfg.TxLO))
		if err := r.SetTxLO(ctx, cfg.TxLO); err != nil {
			return fmt.Errorf("set TX LO: %w", err)
		}
	}
	if cfg.SampleRate > 0 {
		log.Debug("set sample rate", logging.F("hz", cfg.SampleRate))
		if err := r.SetSampleRate(ctx, cfg.SampleRate); err != nil {
			return fmt.Errorf("set sample rate: %w", err)
		}
		bw := cfg.RFBandwidth
		if bw <= 0 {
			bw = cfg.SampleRate * 5 / 6
		}
		if err := r.SetRFBandwidth(ctx, bw); err != nil {
			return fmt.Errorf("set rf bandwidth: %w", err)
		}
	}
	if cfg.GainMode != "" {
		for i := 0; i < 2; i++ {
			if err := r.SetGainControlMode(ctx, i, cfg.GainMode); err != nil {
				return fmt.Errorf("set rx%d gain mode: %w", i, err)
			}
		}
		if cfg.GainMode == "manual" {
			for i, g := range cfg.RxGain {
				if err := r.SetRxHardwareGain(ctx, i, g); err != nil {
					return fmt.Errorf("set rx%d gain: %w", i, err)
				}
			}
		}
	}
	if cfg.TxGain != 0 {
		if err := r.SetTxHardwareGain(ctx, 0, cfg.TxGain); err != nil {
			return fmt.Errorf("set tx gain: %w", err)
		}
	}
	if cfg.BufferSize > 0 {
		r.BufferSize = cfg.BufferSize
	}
	log.Info("ad9361 configured", logging.F("rate", cfg.SampleRate), logging.F("rx_lo", cfg.RxLO))
	return nil
}

func (r *AD9361) SampleRate(ctx context.Context) (float64, error) {
	return r.rxChan(0).AttrFloat(ctx, "sampling_frequency")
}

func (r *AD9361) SetSampleRate(ctx context.Context, hz float64) error {
	return r.rxChan(0).SetAttrInt(ctx, "sampling_frequency", int64(hz))
}

// RxLO returns the receive LO frequency in Hz.
func (r *AD9361) RxLO(ctx context.Context) (float64, error) {
	return r.Phy.ChannelAttrs("altvoltage0", true).AttrFloat(ctx, "frequency")
}

func (r *AD9361) SetRxLO(ctx context.Context, hz float64) error {
	return r.Phy.ChannelAttrs("altvoltage0", true).SetAttrInt(ctx, "frequency", int64(hz))
}

// TxLO returns the transmit LO frequency in Hz.
func (r *AD9361) TxLO(ctx context.Context) (float64, error) {
	return r.Phy.ChannelAttrs("altvoltage1", true).AttrFloat(ctx, "frequency")
}

func (r *AD9361) SetTxLO(ctx context.Context, hz float64) error {
	return r.Phy.ChannelAttrs("altvoltage1", true).SetAttrInt(ctx, "frequency", int64(hz))
}

// SetRFBandwidth sets the analog filter bandwidth of both paths.
func (r *AD9361) SetRFBandwidth(ctx context.Context, hz float64) error {
	if err := r.rxChan(0).SetAttrInt(ctx, "rf_bandwidth", int64(hz)); err != nil {
		return err
	}
	return r.txChan(0).SetAttrInt(ctx, "rf_bandwidth", int64(hz))
}

func (r *AD9361) RxRFBandwidth(ctx context.Context) (float64, error) {
	return r.rxChan(0).AttrFloat(ctx, "rf_bandwidth")
}

func (r *AD9361) GainControlMode(ctx context.Context, ch int) (string, error) {
	return r.rxChan(ch).Attr(ctx, "gain_control_mode")
}

// SetGainControlMode selects one of gain_control_mode_available.
func (r *AD9361) SetGainControlMode(ctx context.Context, ch int, mode string) error {
	set := r.rxChan(ch)
	if err := checkList(ctx, set, "gain_control_mode", mode); err != nil {
		return err
	}
	return set.SetAttr(ctx, "gain_control_mode", mode)
}

// RxHardwareGain returns the receive gain in dB. Values read back as
// "71.000000 dB".
func (r *AD9361) RxHardwareGain(ctx context.Context, ch int) (float64, error) {
	return parseDB(ctx, r.rxChan(ch), "hardwaregain")
}

func (r *AD9361) SetRxHardwareGain(ctx context.Context, ch int, db float64) error {
	return r.rxChan(ch).SetAttr(ctx, "hardwaregain", strconv.FormatFloat(db, 'f', 3, 64))
}

// TxHardwareGain returns the transmit attenuation in dB (zero or negative).
func (r *AD9361) TxHardwareGain(ctx context.Context, ch int) (float64, error) {
	return parseDB(ctx, r.txChan(ch), "hardwaregain")
}

func (r *AD9361) SetTxHardwareGain(ctx context.Context, ch int, db float64) error {
	return r.txChan(ch).SetAttr(ctx, "hardwaregain", strconv.FormatFloat(db, 'f', 3, 64))
}

// RSSI returns the received signal strength of channel ch in dB.
func (r *AD9361) RSSI(ctx context.Context, ch int) (float64, error) {
	return parseDB(ctx, r.rxChan(ch), "rssi")
}

// Temperature returns the die temperature in degrees Celsius.
func (r *AD9361) Temperature(ctx context.Context) (float64, error) {
	v, err := r.Phy.ChannelAttrs("temp0", false).AttrFloat(ctx, "input")
	return v / 1000, err
}

func parseDB(ctx context.Context, set iio.AttrSet, name string) (float64, error) {
	raw, err := set.Attr(ctx, name)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "dB"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &iio.ValueError{Attr: name, Raw: raw, Want: "dB value"}
	}
	return v, nil
}

// decimationRates returns the RX core sampling_frequency_available entries in
// ascending order.
func (r *AD9361) decimationRates(ctx context.Context) ([]int64, error) {
	raw, err := r.RX.ChannelAttrs("voltage0", false).Attr(ctx, "sampling_frequency_available")
	if err != nil {
		return nil, err
	}
	var rates []int64
	for _, f := range strings.Fields(raw) {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, &iio.ValueError{Attr: "sampling_frequency_available", Raw: raw, Want: "integer list"}
		}
		rates = append(rates, v)
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i] < rates[j] })
	return rates, nil
}

// RxDec8FilterEnabled reports whether the x8 decimation filter in the RX core
// is active. Cores without the filter report false.
func (r *AD9361) RxDec8FilterEnabled(ctx context.Context) (bool, error) {
	rates, err := r.decimationRates(ctx)
	if err != nil || len(rates) < 2 {
		return false, nil
	}
	cur, err := r.RX.ChannelAttrs("voltage0", false).AttrInt(ctx, "sampling_frequency")
	if err != nil {
		return false, err
	}
	return cur == rates[0], nil
}

// RxDec8FilterEnable switches the x8 decimation filter of the RX core.
func (r *AD9361) RxDec8FilterEnable(ctx context.Context, on bool) error {
	rates, err := r.decimationRates(ctx)
	if err != nil {
		return err
	}
	if len(rates) < 2 {
		if on {
			return invalidf("x8 decimation filter is not supported by %s", r.RX.ID)
		}
		return nil
	}
	want := rates[1]
	if on {
		want = rates[0]
	}
	return r.RX.ChannelAttrs("voltage0", false).SetAttrInt(ctx, "sampling_frequency", want)
}

// Capture reads BufferSize samples from both receive channels. Samples are
// raw ADC codes, full scale ±2048.
func (r *AD9361) Capture(ctx context.Context) (ch0, ch1 []complex128, err error) {
	ids := []string{"voltage0", "voltage1", "voltage2", "voltage3"}
	if _, err := r.RX.Channel("voltage3", false); err != nil {
		ids = ids[:2]
	}
	data, err := r.RX.Capture(ctx, ids, r.BufferSize)
	if err != nil {
		return nil, nil, err
	}
	ch0, err = dsp.ToComplex(data["voltage0"], data["voltage1"])
	if err != nil {
		return nil, nil, err
	}
	if len(ids) == 4 {
		ch1, err = dsp.ToComplex(data["voltage2"], data["voltage3"])
		if err != nil {
			return nil, nil, err
		}
	}
	return ch0, ch1, nil
}
