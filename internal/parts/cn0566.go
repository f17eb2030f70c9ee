package parts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/rjboer/GoADI/internal/calib"
	"github.com/rjboer/GoADI/internal/dsp"
	"github.com/rjboer/GoADI/internal/iio"
	"github.com/rjboer/GoADI/internal/logging"
)

// RxSource delivers two-channel receive buffers, normally an AD9361.
type RxSource interface {
	Capture(ctx context.Context) (ch0, ch1 []complex128, err error)
}

// PhaserArrayConfig is the element layout of the CN0566 board.
func PhaserArrayConfig() ArrayConfig {
	return ArrayConfig{
		ChipIDs:    []string{"BEAM0", "BEAM1"},
		DeviceMap:  [][]int{{1}, {2}},
		ElementMap: [][]int{{1, 2, 3, 4, 5, 6, 7, 8}},
		DeviceElementMap: map[int][]int{
			1: {7, 8, 5, 6},
			2: {3, 4, 1, 2},
		},
		Frequency: 10.492e9,
		Spacing:   0.015,
	}
}

// Monitor resistor divider factors of AD7291 voltage0..7.
var phaserMonitorScale = [8]float64{
	1 + 10.0/10,
	1 + 10.0/10,
	1 + 10.0/10,
	1 + 30.1/10,
	1 + 69.8/10,
	1 + 30.1/10,
	10, // board current, mA
	1 + 69.8/10,
}

// Monitor holds one reading of the phaser supply monitor.
type Monitor struct {
	BoardTemp float64 `json:"board_temp"`
	VDD1V8    float64 `json:"vdd_1v8"`
	VDD3V0    float64 `json:"vdd_3v0"`
	VDD3V3    float64 `json:"vdd_3v3"`
	VDD4V5    float64 `json:"vdd_4v5"`
	VDDAmp    float64 `json:"vdd_amp"`
	VInput    float64 `json:"v_input"`
	IMon      float64 `json:"i_mon"`
	VTune     float64 `json:"v_tune"`
}

// CN0566 is the X-band phased-array development platform: eight receive
// elements behind two ADAR1000s, an ADF4159 LO, board GPIOs and an AD7291
// supply monitor. Receive data comes from an external RxSource.
type CN0566 struct {
	PLL     *ADF4159
	Array   *ADAR1000Array
	GPIO    *OneBitADCDAC
	Monitor *AD7291
	Rx      RxSource

	SignalFreq float64
	PhaseStep  float64
	Spacing    float64

	mu       sync.Mutex
	averages int
	pcal     []float64
	gcal     []float64
	logger   logging.Logger
}

var _ calib.PhaserRig = (*CN0566)(nil)

const phaserElements = 8

// NewCN0566 binds the phaser parts of c and drives the board GPIOs to their
// power-on state: onboard LO routed to TX, dividers reset, receive mode.
func NewCN0566(ctx context.Context, c *iio.Context, rx RxSource) (*CN0566, error) {
	pll, err := NewADF4159(c)
	if err != nil {
		return nil, fmt.Errorf("cn0566 pll: %w", err)
	}
	arr, err := NewADAR1000Array(c, PhaserArrayConfig())
	if err != nil {
		return nil, fmt.Errorf("cn0566 beamformers: %w", err)
	}
	gpio, err := NewOneBitADCDAC(ctx, c, "")
	if err != nil {
		return nil, fmt.Errorf("cn0566 gpios: %w", err)
	}
	mon, err := NewAD7291(c, 0)
	if err != nil {
		return nil, fmt.Errorf("cn0566 monitor: %w", err)
	}
	p := &CN0566{
		PLL:        pll,
		Array:      arr,
		GPIO:       gpio,
		Monitor:    mon,
		Rx:         rx,
		SignalFreq: 10.492e9,
		PhaseStep:  2.8125,
		Spacing:    0.015,
		averages:   16,
		pcal:       make([]float64, phaserElements),
		gcal:       ones(phaserElements),
		logger:     logging.Or(c.Logger()).With(logging.F("component", "cn0566")),
	}
	if err := p.initGPIO(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func (p *CN0566) initGPIO(ctx context.Context) error {
	pins := []struct {
		name string
		v    int
	}{
		{"vctrl_1", 1},
		{"vctrl_2", 1},
		{"div_mr", 0},
		{"div_s0", 0},
		{"div_s1", 0},
		{"div_s2", 0},
		{"rx_load", 0},
		{"tr", 0},
		{"tx_sw", 0},
	}
	for _, pin := range pins {
		if err := p.GPIO.Set(ctx, pin.name, pin.v); err != nil {
			return fmt.Errorf("cn0566 gpio %s: %w", pin.name, err)
		}
	}
	return nil
}

func (p *CN0566) NumElements() int { return phaserElements }

// Averages is the number of captures averaged per measurement.
func (p *CN0566) Averages() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.averages
}

func (p *CN0566) SetAverages(n int) {
	if n < 1 {
		n = 1
	}
	p.mu.Lock()
	p.averages = n
	p.mu.Unlock()
}

// GainCal returns a copy of the per-element gain factors.
func (p *CN0566) GainCal() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.gcal...)
}

// PhaseCal returns a copy of the per-element phase offsets in degrees.
func (p *CN0566) PhaseCal() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.pcal...)
}

func (p *CN0566) SetGainCal(g []float64) error {
	if len(g) != phaserElements {
		return invalidf("gain cal has %d entries, want %d", len(g), phaserElements)
	}
	p.mu.Lock()
	p.gcal = append([]float64(nil), g...)
	p.mu.Unlock()
	return nil
}

func (p *CN0566) SetPhaseCal(ph []float64) error {
	if len(ph) != phaserElements {
		return invalidf("phase cal has %d entries, want %d", len(ph), phaserElements)
	}
	p.mu.Lock()
	p.pcal = append([]float64(nil), ph...)
	p.mu.Unlock()
	return nil
}

// element returns the channel of 0-based element index ch.
func (p *CN0566) element(ch int) (*ADARChannel, error) {
	if ch < 0 || ch >= phaserElements {
		return nil, invalidf("cn0566 channel %d out of range 0..%d", ch, phaserElements-1)
	}
	return p.Array.Element(ch + 1)
}

func (p *CN0566) calGain(ch, gain int, applyCal bool) int {
	if !applyCal {
		return gain
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	g := int(float64(gain) * p.gcal[ch])
	if g > maxGain {
		g = maxGain
	}
	return g
}

// SetAllGain sets every element to gain and engages the attenuator when gain
// is zero, then latches RX.
func (p *CN0566) SetAllGain(ctx context.Context, gain int, applyCal bool) error {
	for ch := 0; ch < phaserElements; ch++ {
		el, err := p.element(ch)
		if err != nil {
			return err
		}
		if err := el.SetRxGain(ctx, p.calGain(ch, gain, applyCal)); err != nil {
			return fmt.Errorf("element %d gain: %w", ch+1, err)
		}
		if err := el.SetRxAttenuator(ctx, gain == 0); err != nil {
			return fmt.Errorf("element %d attenuator: %w", ch+1, err)
		}
	}
	return p.Array.LatchRx(ctx)
}

// SetChanGain sets the receive gain of one element, 0-based, and latches RX.
func (p *CN0566) SetChanGain(ctx context.Context, ch, gain int, applyCal bool) error {
	el, err := p.element(ch)
	if err != nil {
		return err
	}
	g := p.calGain(ch, gain, applyCal)
	p.logger.Debug("set channel gain", logging.F("channel", ch), logging.F("gain", g), logging.F("cal", applyCal))
	if err := el.SetRxGain(ctx, g); err != nil {
		return err
	}
	return p.Array.LatchRx(ctx)
}

// SetChanPhase sets the receive phase of one element, 0-based, and latches RX.
func (p *CN0566) SetChanPhase(ctx context.Context, ch int, phase float64, applyCal bool) error {
	el, err := p.element(ch)
	if err != nil {
		return err
	}
	if applyCal {
		p.mu.Lock()
		phase += p.pcal[ch]
		p.mu.Unlock()
	}
	if err := el.SetRxPhase(ctx, calib.Wrap360(phase)); err != nil {
		return err
	}
	return p.Array.LatchRx(ctx)
}

// BeamPhases returns the element phases for a progressive phase difference
// delta between adjacent elements, quantised to PhaseStep and corrected by
// the phase calibration.
func (p *CN0566) BeamPhases(delta float64) []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]float64, phaserElements)
	for ch := range out {
		q := math.RoundToEven(delta*float64(ch)/p.PhaseStep) * p.PhaseStep
		out[ch] = calib.Wrap360(q + p.pcal[ch])
	}
	return out
}

// SetBeamPhaseDiff steers the receive beam by a phase difference between
// adjacent elements and latches RX.
func (p *CN0566) SetBeamPhaseDiff(ctx context.Context, delta float64) error {
	for ch, ph := range p.BeamPhases(delta) {
		el, err := p.element(ch)
		if err != nil {
			return err
		}
		if err := el.SetRxPhase(ctx, ph); err != nil {
			return fmt.Errorf("element %d phase: %w", ch+1, err)
		}
	}
	return p.Array.LatchRx(ctx)
}

// Configure brings both beamformers up in rx or tx mode.
func (p *CN0566) Configure(ctx context.Context, mode string) error {
	if mode != ModeRx && mode != ModeTx {
		return invalidf("cn0566 mode %q, want rx or tx", mode)
	}
	var errs error
	for _, idx := range p.Array.Devices() {
		chip, _ := p.Array.Chip(idx)
		if err := configureChip(ctx, chip, mode); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", chip.Label, err))
		}
	}
	if errs == nil {
		p.logger.Info("beamformers configured", logging.F("mode", mode))
	}
	return errs
}

func configureChip(ctx context.Context, chip *ADAR1000, mode string) error {
	if err := chip.Reset(ctx); err != nil {
		return err
	}
	if err := chip.TrimLDO(ctx); err != nil {
		return err
	}
	dev := chip.Dev.AttrSet
	var batch iio.Batch
	batch.Set(dev, "sequencer_enable", false).
		Set(dev, "beam_mem_enable", false).
		Set(dev, "bias_mem_enable", false).
		Set(dev, "pol_state", false).
		Set(dev, "pol_switch_enable", false).
		Set(dev, "tr_source", "spi").
		Set(dev, "tr_spi", "rx").
		Set(dev, "tr_switch_enable", true).
		Set(dev, "external_tr_polarity", true).
		Set(dev, "rx_vga_enable", true).
		Set(dev, "rx_vm_enable", true).
		Set(dev, "rx_lna_enable", true)
	if err := batch.Apply(ctx); err != nil {
		return err
	}
	if err := chip.EnableAllRx(ctx); err != nil {
		return err
	}
	if err := chip.SetBiasCurrents(ctx, BiasCurrents{RxLNA: 8, RxVGAVM: 22, TxPA: 6, TxVGAVM: 22}); err != nil {
		return err
	}
	var tx iio.Batch
	tx.Set(dev, "tx_vga_enable", true).
		Set(dev, "tx_vm_enable", true).
		Set(dev, "tx_pa_enable", true)
	if err := tx.Apply(ctx); err != nil {
		return err
	}
	if err := chip.SetMode(ctx, mode); err != nil {
		return err
	}

	if mode == ModeRx {
		// external LNAs self-bias
		if err := chip.SetFlag(ctx, "lna_bias_out_enable", false); err != nil {
			return err
		}
		for _, ch := range chip.Channels() {
			if err := ch.SetRxEnabled(ctx, true); err != nil {
				return err
			}
			if err := ch.SetRxGain(ctx, maxGain); err != nil {
				return err
			}
		}
		return chip.LatchRx(ctx)
	}
	for _, ch := range chip.Channels() {
		if err := ch.SetTxEnabled(ctx, true); err != nil {
			return err
		}
		if err := ch.SetTxGain(ctx, maxGain); err != nil {
			return err
		}
		if err := ch.SetPABiasOn(ctx, -2); err != nil {
			return err
		}
	}
	return chip.LatchTx(ctx)
}

// ReadMonitor reads the board temperature and the scaled supply rails in
// volts; IMon is in mA.
func (p *CN0566) ReadMonitor(ctx context.Context) (Monitor, error) {
	var m Monitor
	var err error
	if m.BoardTemp, err = p.Monitor.TemperatureC(ctx); err != nil {
		return m, fmt.Errorf("board temperature: %w", err)
	}
	dst := []*float64{&m.VDD1V8, &m.VDD3V0, &m.VDD3V3, &m.VDD4V5, &m.VDDAmp, &m.VInput, &m.IMon, &m.VTune}
	for ch, out := range dst {
		mv, err := p.Monitor.Millivolts(ctx, ch)
		if err != nil {
			return m, fmt.Errorf("monitor channel %d: %w", ch, err)
		}
		*out = mv * phaserMonitorScale[ch] / 1000
	}
	return m, nil
}

// Capture reads one buffer from the receive source.
func (p *CN0566) Capture(ctx context.Context) (ch0, ch1 []complex128, err error) {
	if p.Rx == nil {
		return nil, nil, errors.New("cn0566: no receive source attached")
	}
	ch0, ch1, err = p.Rx.Capture(ctx)
	if err == nil && len(ch1) == 0 {
		err = errors.New("cn0566: receive source returned one channel")
	}
	return ch0, ch1, err
}

// BeamSweepResult holds one monopulse sweep across the steering range.
type BeamSweepResult struct {
	Deltas  []float64 `json:"deltas"`
	Angles  []float64 `json:"angles"`
	SumDB   []float64 `json:"sum_db"`
	DeltaDB []float64 `json:"delta_db"`
	Errors  []float64 `json:"errors"`
	// Peak is the index of the strongest sum beam.
	Peak int `json:"peak"`
}

// PeakAngle is the steering angle of the strongest sum beam.
func (r BeamSweepResult) PeakAngle() float64 {
	if len(r.Angles) == 0 {
		return math.NaN()
	}
	return r.Angles[r.Peak]
}

// BeamSweep steps the phase difference over -180..180 in PhaseStep
// increments and measures the averaged sum and delta beams at each step.
func (p *CN0566) BeamSweep(ctx context.Context, rep calib.Reporter) (BeamSweepResult, error) {
	deltas := calib.PhaseSweepValues(p.PhaseStep)
	res := BeamSweepResult{Deltas: deltas}
	n := p.Averages()
	for i, d := range deltas {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := p.SetBeamPhaseDiff(ctx, d); err != nil {
			return res, fmt.Errorf("steer %.4f: %w", d, err)
		}
		points := make([]dsp.BeamPoint, 0, n)
		for k := 0; k < n; k++ {
			ch0, ch1, err := p.Capture(ctx)
			if err != nil {
				return res, err
			}
			bp, err := dsp.SumDelta(ch0, ch1)
			if err != nil {
				return res, err
			}
			points = append(points, bp)
		}
		avg := dsp.AverageBeam(points)
		angle := dsp.SteerAngle(d, p.SignalFreq, p.Spacing)
		res.Angles = append(res.Angles, angle)
		res.SumDB = append(res.SumDB, avg.SumDBFS)
		res.DeltaDB = append(res.DeltaDB, avg.DeltaDBFS)
		res.Errors = append(res.Errors, dsp.TargetError(avg.SumDBFS, avg.DeltaDBFS, avg.Angle))
		if avg.SumDBFS > res.SumDB[res.Peak] {
			res.Peak = i
		}
		if rep != nil {
			rep.Report(calib.Point{Stage: "beam", Phase: angle, Power: avg.SumDBFS, Time: time.Now()})
		}
	}
	return res, nil
}

// RunGainCal measures the element gains and installs the resulting factors.
func (p *CN0566) RunGainCal(ctx context.Context, rep calib.Reporter) (calib.GainCalResult, error) {
	res, err := calib.PhaserGainCal(ctx, p, p.Averages(), rep)
	if err != nil {
		return res, err
	}
	return res, p.SetGainCal(res.Gcal)
}

// RunPhaseCal aligns adjacent elements and installs the resulting offsets.
func (p *CN0566) RunPhaseCal(ctx context.Context, rep calib.Reporter) (calib.PhaseCalResult, error) {
	res, err := calib.PhaserPhaseCal(ctx, p, p.PhaseStep, rep)
	if err != nil {
		return res, err
	}
	return res, p.SetPhaseCal(res.Pcal)
}

func (p *CN0566) SaveGainCal(path string) error {
	return calib.TableFromSlice(calib.KindGain, p.GainCal()).Save(path)
}

func (p *CN0566) SavePhaseCal(path string) error {
	return calib.TableFromSlice(calib.KindPhase, p.PhaseCal()).Save(path)
}

// LoadGainCal installs the gain factors of path, or unity gains when the
// file does not exist.
func (p *CN0566) LoadGainCal(path string) error {
	t, err := calib.LoadOrDefault(path, calib.KindGain, phaserElements, 1)
	if err != nil {
		return err
	}
	return p.SetGainCal(t.Slice(phaserElements, 1))
}

// LoadPhaseCal installs the phase offsets of path, or zeros when the file
// does not exist.
func (p *CN0566) LoadPhaseCal(path string) error {
	t, err := calib.LoadOrDefault(path, calib.KindPhase, phaserElements, 0)
	if err != nil {
		return err
	}
	return p.SetPhaseCal(t.Slice(phaserElements, 0))
}
