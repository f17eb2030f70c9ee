package instrument

import (
	"context"
	"fmt"
)

// Supply drives a multi-channel Keysight bench supply. E36233A and N6705B
// share the channel list syntax "(@n)".
type Supply struct {
	*SCPI
	model    string
	channels int
}

// NewE36233A wraps a dual-output E36233A session.
func NewE36233A(s *SCPI) *Supply { return &Supply{SCPI: s, model: "E36233A", channels: 2} }

// NewN6705B wraps a four-slot N6705B mainframe session.
func NewN6705B(s *SCPI) *Supply { return &Supply{SCPI: s, model: "N6705B", channels: 4} }

// Model returns the instrument model name.
func (p *Supply) Model() string { return p.model }

func (p *Supply) chanList(ch int) (string, error) {
	if ch < 1 || ch > p.channels {
		return "", fmt.Errorf("%s channel %d out of range 1..%d", p.model, ch, p.channels)
	}
	return fmt.Sprintf("(@%d)", ch), nil
}

func (p *Supply) writeCh(ctx context.Context, format string, ch int) error {
	addr, err := p.chanList(ch)
	if err != nil {
		return err
	}
	return p.Write(ctx, fmt.Sprintf(format, addr))
}

func (p *Supply) queryCh(ctx context.Context, cmd string, ch int) (float64, error) {
	addr, err := p.chanList(ch)
	if err != nil {
		return 0, err
	}
	return p.QueryFloat(ctx, cmd+" "+addr)
}

// OutputOn enables channel ch.
func (p *Supply) OutputOn(ctx context.Context, ch int) error {
	return p.writeCh(ctx, "OUTP ON,%s", ch)
}

// OutputOff disables channel ch.
func (p *Supply) OutputOff(ctx context.Context, ch int) error {
	return p.writeCh(ctx, "OUTP OFF,%s", ch)
}

// SetVoltage programs the voltage setpoint of ch.
func (p *Supply) SetVoltage(ctx context.Context, ch int, volts float64) error {
	return p.writeCh(ctx, "VOLT "+formatFloat(volts)+", %s", ch)
}

// SetCurrent programs the current limit of ch.
func (p *Supply) SetCurrent(ctx context.Context, ch int, amps float64) error {
	return p.writeCh(ctx, "CURR "+formatFloat(amps)+", %s", ch)
}

// VoltageSetting returns the programmed voltage of ch.
func (p *Supply) VoltageSetting(ctx context.Context, ch int) (float64, error) {
	return p.queryCh(ctx, "VOLT?", ch)
}

func (p *Supply) MeasureVoltage(ctx context.Context, ch int) (float64, error) {
	return p.queryCh(ctx, "MEAS:VOLT?", ch)
}

func (p *Supply) MeasureCurrent(ctx context.Context, ch int) (float64, error) {
	return p.queryCh(ctx, "MEAS:CURR?", ch)
}

func (p *Supply) MeasurePower(ctx context.Context, ch int) (float64, error) {
	return p.queryCh(ctx, "MEAS:POW?", ch)
}

// ProtectionTripped reports whether over-voltage or over-current protection
// has latched.
func (p *Supply) ProtectionTripped(ctx context.Context) (bool, error) {
	ovp, err := p.QueryBool(ctx, "STAT:PROT:VOLT:TRIP?")
	if err != nil {
		return false, err
	}
	if ovp {
		return true, nil
	}
	return p.QueryBool(ctx, "STAT:PROT:CURR:TRIP?")
}
