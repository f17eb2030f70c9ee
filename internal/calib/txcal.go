package calib

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rjboer/GoADI/internal/logging"
)

// Supply is a programmable bench supply.
type Supply interface {
	SetVoltage(ctx context.Context, ch int, v float64) error
	SetCurrent(ctx context.Context, ch int, a float64) error
	OutputOn(ctx context.Context, ch int) error
	MeasureVoltage(ctx context.Context, ch int) (float64, error)
	MeasureCurrent(ctx context.Context, ch int) (float64, error)
}

// CommandRunner executes a shell command on the board, streaming its output.
type CommandRunner interface {
	Run(ctx context.Context, cmd string, stdout, stderr io.Writer) error
}

// TxArray is the transmit side of a beamformer array as the TX calibration
// drives it. Elements are numbered as in the array's element map.
type TxArray interface {
	Elements() []int
	SetTxElement(ctx context.Context, el, gain int, phase float64) error
	SetTxPhase(ctx context.Context, el int, phase float64) error
	LatchTx(ctx context.Context) error
	SetPABias(ctx context.Context, el int, on, off float64) error
	SetChipModes(ctx context.Context, trSource, biasDACMode string) error
	EnablePA(ctx context.Context, el int) error
	DisablePA(ctx context.Context, el int) error
}

// Rail is one supply channel brought up before the board boots.
type Rail struct {
	Channel int
	Voltage float64
	Current float64
}

// DefaultBootCmd is the beamformer bring-up script on the carrier.
const DefaultBootCmd = "bash manta_ray_adar1000_boot.bash"

// TxCalRoutine is the bench TX phase calibration: power the rails, boot the
// board, configure every element, then null each element against a
// reference and save the resulting phases.
type TxCalRoutine struct {
	Supply     Supply
	Rails      []Rail
	RailSettle time.Duration

	Runner         CommandRunner
	BootCmd        string
	Stdout, Stderr io.Writer

	Array     TxArray
	Meter     PowerMeter
	Reference int
	PABias    float64
	Null      NullConfig
	TablePath string

	Reporter Reporter
	Logger   logging.Logger
}

// TxCalResult collects the per-element null searches.
type TxCalResult struct {
	Table   *Table
	Results []NullResult
}

// Run executes the routine. It stops at the first failing step.
func (r *TxCalRoutine) Run(ctx context.Context) (*TxCalResult, error) {
	log := logging.Or(r.Logger).With(logging.F("component", "txcal"))
	if r.Array == nil || r.Meter == nil {
		return nil, fmt.Errorf("calib: tx calibration needs an array and a power meter")
	}

	if err := r.powerUp(ctx, log); err != nil {
		return nil, err
	}
	if err := r.boot(ctx, log); err != nil {
		return nil, err
	}
	if err := r.configure(ctx, log); err != nil {
		return nil, err
	}

	table := NewTable(KindPhase)
	res := &TxCalResult{Table: table}
	table.Set(r.Reference, 0)
	cfg := r.Null
	if cfg.CoarseStep == 0 {
		cfg = DefaultNullConfig()
		cfg.Settle = r.Null.Settle
	}
	if cfg.Reporter == nil {
		cfg.Reporter = r.Reporter
	}
	cfg.Reporter = WithRun(table.RunID.String(), cfg.Reporter)

	for _, el := range r.Array.Elements() {
		if el == r.Reference {
			continue
		}
		nr, err := r.nullElement(ctx, el, cfg)
		if err != nil {
			return res, fmt.Errorf("element %d: %w", el, err)
		}
		log.Info("element calibrated", logging.F("element", el), logging.F("null", nr.Null), logging.F("phase", nr.Phase))
		table.Set(el, nr.Phase)
		res.Results = append(res.Results, nr)
	}

	if r.TablePath != "" {
		if err := table.Save(r.TablePath); err != nil {
			return res, err
		}
		log.Info("phase table saved", logging.F("path", r.TablePath), logging.F("run", table.RunID.String()))
	}
	return res, nil
}

func (r *TxCalRoutine) powerUp(ctx context.Context, log logging.Logger) error {
	if r.Supply == nil {
		return nil
	}
	for _, rail := range r.Rails {
		if err := r.Supply.SetVoltage(ctx, rail.Channel, rail.Voltage); err != nil {
			return fmt.Errorf("rail %d: %w", rail.Channel, err)
		}
		if err := r.Supply.SetCurrent(ctx, rail.Channel, rail.Current); err != nil {
			return fmt.Errorf("rail %d: %w", rail.Channel, err)
		}
		if err := r.Supply.OutputOn(ctx, rail.Channel); err != nil {
			return fmt.Errorf("rail %d: %w", rail.Channel, err)
		}
		if err := sleep(ctx, r.RailSettle); err != nil {
			return err
		}
		v, verr := r.Supply.MeasureVoltage(ctx, rail.Channel)
		a, aerr := r.Supply.MeasureCurrent(ctx, rail.Channel)
		if verr == nil && aerr == nil {
			log.Info("rail on", logging.F("channel", rail.Channel), logging.F("volts", v), logging.F("amps", a))
		}
	}
	return nil
}

func (r *TxCalRoutine) boot(ctx context.Context, log logging.Logger) error {
	if r.Runner == nil {
		return nil
	}
	cmd := r.BootCmd
	if cmd == "" {
		cmd = DefaultBootCmd
	}
	stdout, stderr := r.Stdout, r.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	log.Info("running boot script", logging.F("cmd", cmd))
	if err := r.Runner.Run(ctx, cmd, stdout, stderr); err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	return nil
}

func (r *TxCalRoutine) configure(ctx context.Context, log logging.Logger) error {
	a := r.Array
	if err := a.SetChipModes(ctx, "spi", "on"); err != nil {
		return err
	}
	for _, el := range a.Elements() {
		if err := a.SetTxElement(ctx, el, 127, 0); err != nil {
			return err
		}
	}
	if err := a.LatchTx(ctx); err != nil {
		return err
	}
	bias := r.PABias
	if bias == 0 {
		bias = -4.8
	}
	for _, el := range a.Elements() {
		if err := a.SetPABias(ctx, el, bias, bias); err != nil {
			return err
		}
	}
	if err := a.LatchTx(ctx); err != nil {
		return err
	}
	log.Info("array initialised", logging.F("elements", len(a.Elements())), logging.F("pa_bias", bias))
	if err := a.SetChipModes(ctx, "external", "toggle"); err != nil {
		return err
	}
	for _, el := range a.Elements() {
		if err := a.DisablePA(ctx, el); err != nil {
			return err
		}
	}
	return nil
}

func (r *TxCalRoutine) nullElement(ctx context.Context, el int, cfg NullConfig) (NullResult, error) {
	a := r.Array
	if err := a.EnablePA(ctx, el); err != nil {
		return NullResult{}, err
	}
	if err := a.EnablePA(ctx, r.Reference); err != nil {
		return NullResult{}, err
	}
	cfg.Element = el
	set := PhaseSetterFunc(func(ctx context.Context, deg float64) error {
		if err := a.SetTxPhase(ctx, el, deg); err != nil {
			return err
		}
		return a.LatchTx(ctx)
	})
	nr, err := NullSearch(ctx, set, r.Meter, cfg)
	if err != nil {
		return nr, err
	}
	if err := set.SetPhase(ctx, nr.Phase); err != nil {
		return nr, err
	}
	if err := a.DisablePA(ctx, el); err != nil {
		return nr, err
	}
	return nr, a.DisablePA(ctx, r.Reference)
}
