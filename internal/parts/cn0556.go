package parts

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/rjboer/GoADI/internal/iio"
)

// Setting is a CN0556 control point driven by one LTC2688 output.
type Setting string

const (
	BuckTargetOutputVoltage  Setting = "buck_target_output_voltage"
	BuckInputUndervoltage    Setting = "buck_input_undervoltage"
	BuckInputCurrentLimit    Setting = "buck_input_current_limit"
	BuckOutputCurrentLimit   Setting = "buck_output_current_limit"
	BoostTargetOutputVoltage Setting = "boost_target_output_voltage"
	BoostInputUndervoltage   Setting = "boost_input_undervoltage"
	BoostInputCurrentLimit   Setting = "boost_input_current_limit"
	BoostOutputCurrentLimit  Setting = "boost_output_current_limit"
)

// Measurement is a CN0556 monitor point read through one AD7124 input.
type Measurement string

const (
	BuckInputVoltage   Measurement = "buck_input_voltage"
	BuckInputCurrent   Measurement = "buck_input_current"
	BuckOutputVoltage  Measurement = "buck_output_voltage"
	BuckOutputCurrent  Measurement = "buck_output_current"
	BoostInputVoltage  Measurement = "boost_input_voltage"
	BoostInputCurrent  Measurement = "boost_input_current"
	BoostOutputVoltage Measurement = "boost_output_voltage"
	BoostOutputCurrent Measurement = "boost_output_current"
	IntVCCVoltage      Measurement = "intvcc_voltage"
	ShareVoltage       Measurement = "share_voltage"
)

// settingDef maps a setting onto a DAC output: value = mV*Scale + Offset.
type settingDef struct {
	dac      string
	scale    float64
	offset   float64
	min, max float64
	unit     string
}

var cn0556Settings = map[Setting]settingDef{
	BuckInputCurrentLimit:    {"voltage8", -1.2174 / 1000, 11.345, 0.07, 10, "A"},
	BuckOutputCurrentLimit:   {"voltage12", -4.0108 / 1000, 39.623, 0, 35, "A"},
	BuckInputUndervoltage:    {"voltage4", -5.1281 / 1000, 60.415, 12, 54, "V"},
	BuckTargetOutputVoltage:  {"voltage2", -1.4666 / 1000, 15.685, 2, 14, "V"},
	BoostInputCurrentLimit:   {"voltage14", -4.0108 / 1000, 39.623, 0, 35, "A"},
	BoostOutputCurrentLimit:  {"voltage10", -1.1274 / 1000, 11.345, 0.07, 10, "A"},
	BoostInputUndervoltage:   {"voltage6", -1.2195 / 1000, 13.386, 8, 12, "V"},
	BoostTargetOutputVoltage: {"voltage0", -4.859 / 1000, 61.995, 14, 56, "V"},
}

// measureDef maps a measurement onto an ADC input position.
type measureDef struct {
	adc    int
	scale  float64
	offset float64
}

var cn0556Measurements = map[Measurement]measureDef{
	BuckInputVoltage:   {14, 243.0 / 1000, 0},
	BuckInputCurrent:   {0, 4.0 / 100, 0},
	BuckOutputCurrent:  {8, 14.0 / 100, 0},
	BuckOutputVoltage:  {4, 51.0 / 1000, 0},
	BoostInputVoltage:  {4, 51.0 / 1000, 0},
	BoostInputCurrent:  {8, 14.0 / 100, 0},
	BoostOutputCurrent: {0, 4.0 / 100, 0},
	BoostOutputVoltage: {14, 243.0 / 1000, 0},
	IntVCCVoltage:      {10, 1.0 / 100, 0},
	ShareVoltage:       {12, 1.0 / 100, 0},
}

// CN0556EnabledChannels are the ADC inputs wired to monitor points.
var CN0556EnabledChannels = []int{0, 4, 8, 10, 12, 14}

// Buck and boost values of the drxn pin.
const (
	DirectionBoost = 0
	DirectionBuck  = 1
)

// CN0556 is the LT8228 bidirectional buck/boost controller board stacked on a
// CN0554.
type CN0556 struct {
	*CN0554
	GPIO *OneBitADCDAC

	adcScale float64
}

// NewCN0556 binds the board. The ADC scale of the first input is read once and
// applied to every measurement.
func NewCN0556(ctx context.Context, c *iio.Context) (*CN0556, error) {
	base, err := NewCN0554(ctx, c)
	if err != nil {
		return nil, err
	}
	gpio, err := NewOneBitADCDAC(ctx, c, "")
	if err != nil {
		return nil, err
	}
	scale, err := base.ADC.Scale(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("cn0556 adc scale: %w", err)
	}
	return &CN0556{CN0554: base, GPIO: gpio, adcScale: scale}, nil
}

// Set programs a control point after checking it against the board limits.
func (b *CN0556) Set(ctx context.Context, s Setting, value float64) error {
	def, ok := cn0556Settings[s]
	if !ok {
		return invalidf("unknown setting %q", s)
	}
	if value < def.min || value > def.max {
		return invalidf("%s %g: valid values are %g to %g %s", s, value, def.min, def.max, def.unit)
	}
	ch, err := b.DAC.ChannelByID(def.dac)
	if err != nil {
		return err
	}
	return ch.SetVolt(ctx, (value-def.offset)/def.scale)
}

// Get returns the programmed value of a control point and the DAC output
// voltage in volts.
func (b *CN0556) Get(ctx context.Context, s Setting) (value, dacVolts float64, err error) {
	def, ok := cn0556Settings[s]
	if !ok {
		return 0, 0, invalidf("unknown setting %q", s)
	}
	ch, err := b.DAC.ChannelByID(def.dac)
	if err != nil {
		return 0, 0, err
	}
	mv, err := ch.Volt(ctx)
	if err != nil {
		return 0, 0, err
	}
	return mv*def.scale + def.offset, mv / 1000, nil
}

// Measure reads one monitor point.
func (b *CN0556) Measure(ctx context.Context, m Measurement) (float64, error) {
	def, ok := cn0556Measurements[m]
	if !ok {
		return 0, invalidf("unknown measurement %q", m)
	}
	raw, err := b.ADC.Raw(ctx, def.adc)
	if err != nil {
		return 0, err
	}
	return float64(raw)*def.scale*b.adcScale + def.offset, nil
}

// Direction returns DirectionBuck or DirectionBoost.
func (b *CN0556) Direction(ctx context.Context) (int, error) { return b.GPIO.Get(ctx, "drxn") }

func (b *CN0556) SetDirection(ctx context.Context, d int) error {
	if d != DirectionBuck && d != DirectionBoost {
		return invalidf("direction %d: valid values are 1 for buck and 0 for boost", d)
	}
	return b.GPIO.Set(ctx, "drxn", d)
}

func (b *CN0556) Enabled(ctx context.Context) (bool, error) {
	v, err := b.GPIO.Get(ctx, "en")
	return v != 0, err
}

// Enable turns the LT8228 on. Disabling zeroes every control output, clears
// en and falls back to boost mode; all steps run even when one fails.
func (b *CN0556) Enable(ctx context.Context, on bool) error {
	if on {
		return b.GPIO.Set(ctx, "en", 1)
	}
	var err error
	for i := 0; i <= 14; i += 2 {
		ch, cerr := b.DAC.ChannelByID(fmt.Sprintf("voltage%d", i))
		if cerr == nil {
			cerr = ch.SetVolt(ctx, 0)
		}
		err = multierr.Append(err, cerr)
	}
	err = multierr.Append(err, b.GPIO.Set(ctx, "en", 0))
	return multierr.Append(err, b.SetDirection(ctx, DirectionBoost))
}

// Report reports whether the REPORT pin is high.
func (b *CN0556) Report(ctx context.Context) (bool, error) {
	v, err := b.GPIO.Get(ctx, "report")
	return v != 0, err
}

// Fault reports whether the FAULT pin is high.
func (b *CN0556) Fault(ctx context.Context) (bool, error) {
	v, err := b.GPIO.Get(ctx, "fault")
	return v != 0, err
}

// CaptureMonitors reads samples from every monitor input and returns raw codes
// keyed by ADC position.
func (b *CN0556) CaptureMonitors(ctx context.Context, samples int) (map[int][]int64, error) {
	data, err := b.ADC.Capture(ctx, CN0556EnabledChannels, samples)
	if err != nil {
		return nil, err
	}
	out := make(map[int][]int64, len(data))
	for k, i := range CN0556EnabledChannels {
		out[i] = data[k]
	}
	return out, nil
}
