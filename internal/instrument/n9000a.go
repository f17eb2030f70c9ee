package instrument

import (
	"context"
	"fmt"
	"time"
)

// N9000A is a Keysight CXA signal analyzer.
type N9000A struct {
	*SCPI

	// Marker is the marker read by Power. Zero means marker 1.
	Marker int
	// Settle is waited before a marker read so the sweep can finish.
	Settle time.Duration
}

// NewN9000A wraps an SCPI session.
func NewN9000A(s *SCPI) *N9000A { return &N9000A{SCPI: s, Marker: 1} }

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func validMarker(n int) error {
	if n < 1 || n > 12 {
		return fmt.Errorf("marker %d out of range 1..12", n)
	}
	return nil
}

// SetCenter sets the center frequency in Hz.
func (a *N9000A) SetCenter(ctx context.Context, hz float64) error {
	return a.Write(ctx, "FREQ:CENT "+formatFloat(hz))
}

// Center returns the center frequency in Hz.
func (a *N9000A) Center(ctx context.Context) (float64, error) { return a.QueryFloat(ctx, "FREQ:CENT?") }

// SetSpan sets the frequency span in Hz.
func (a *N9000A) SetSpan(ctx context.Context, hz float64) error {
	return a.Write(ctx, "SENS:FREQ:SPAN "+formatFloat(hz))
}

// Span returns the frequency span in Hz.
func (a *N9000A) Span(ctx context.Context) (float64, error) { return a.QueryFloat(ctx, "SENS:FREQ:SPAN?") }

// SetRBW sets the resolution bandwidth in Hz.
func (a *N9000A) SetRBW(ctx context.Context, hz float64) error {
	return a.Write(ctx, "BAND "+formatFloat(hz))
}

// RBW returns the resolution bandwidth in Hz.
func (a *N9000A) RBW(ctx context.Context) (float64, error) { return a.QueryFloat(ctx, "BAND?") }

// SetRBWAuto couples the resolution bandwidth to the span.
func (a *N9000A) SetRBWAuto(ctx context.Context, on bool) error {
	return a.Write(ctx, "BAND:AUTO "+onOff(on))
}

// SelectSA switches to spectrum analyzer mode.
func (a *N9000A) SelectSA(ctx context.Context) error { return a.Write(ctx, "INST:SEL SA") }

// SetAttenuation sets the mechanical attenuator in dB.
func (a *N9000A) SetAttenuation(ctx context.Context, db float64) error {
	return a.Write(ctx, "POW:ATT "+formatFloat(db))
}

// SetContinuousSweep enables or disables free-running sweeps.
func (a *N9000A) SetContinuousSweep(ctx context.Context, on bool) error {
	return a.Write(ctx, "INIT:CONT "+onOff(on))
}

// MarkerMode sets marker n to "POS" or "OFF".
func (a *N9000A) MarkerMode(ctx context.Context, n int, mode string) error {
	if err := validMarker(n); err != nil {
		return err
	}
	if mode != "POS" && mode != "OFF" {
		return fmt.Errorf("marker mode %q must be POS or OFF", mode)
	}
	return a.Write(ctx, fmt.Sprintf("CALC:MARK%d:MODE %s", n, mode))
}

// MarkerPeak moves marker n to the highest point of the trace.
func (a *N9000A) MarkerPeak(ctx context.Context, n int) error {
	if err := validMarker(n); err != nil {
		return err
	}
	return a.Write(ctx, fmt.Sprintf("CALC:MARK%d:MAX", n))
}

// ContinuousPeakSearch keeps marker n on the peak after every sweep.
func (a *N9000A) ContinuousPeakSearch(ctx context.Context, n int, on bool) error {
	if err := validMarker(n); err != nil {
		return err
	}
	return a.Write(ctx, fmt.Sprintf(":CALC:MARK%d:CPS:STAT %s", n, onOff(on)))
}

// MarkerPower reads the marker amplitude in dBm.
func (a *N9000A) MarkerPower(ctx context.Context, n int) (float64, error) {
	if err := validMarker(n); err != nil {
		return 0, err
	}
	return a.QueryFloat(ctx, fmt.Sprintf("CALC:MARK%d:Y?", n))
}

// MarkerFreq reads the marker frequency in Hz.
func (a *N9000A) MarkerFreq(ctx context.Context, n int) (float64, error) {
	if err := validMarker(n); err != nil {
		return 0, err
	}
	return a.QueryFloat(ctx, fmt.Sprintf("CALC:MARK%d:X?", n))
}

// Power reads the configured marker after Settle.
func (a *N9000A) Power(ctx context.Context) (float64, error) {
	n := a.Marker
	if n == 0 {
		n = 1
	}
	if a.Settle > 0 {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(a.Settle):
		}
	}
	return a.MarkerPower(ctx, n)
}

// TonePower zooms onto a tone, reads its peak and restores the previous
// center, span and RBW.
func (a *N9000A) TonePower(ctx context.Context, hz, rbw, span float64) (float64, error) {
	prevCenter, err := a.Center(ctx)
	if err != nil {
		return 0, err
	}
	prevSpan, err := a.Span(ctx)
	if err != nil {
		return 0, err
	}
	prevRBW, err := a.RBW(ctx)
	if err != nil {
		return 0, err
	}

	n := a.Marker
	if n == 0 {
		n = 1
	}
	steps := []func(context.Context) error{
		func(ctx context.Context) error { return a.MarkerMode(ctx, n, "POS") },
		func(ctx context.Context) error { return a.ContinuousPeakSearch(ctx, n, true) },
		func(ctx context.Context) error { return a.SetCenter(ctx, hz) },
		func(ctx context.Context) error { return a.SetSpan(ctx, span) },
		func(ctx context.Context) error { return a.SetRBW(ctx, rbw) },
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return 0, err
		}
	}
	p, err := a.Power(ctx)
	if err != nil {
		return 0, err
	}

	if err := a.SetCenter(ctx, prevCenter); err != nil {
		return p, err
	}
	if err := a.SetSpan(ctx, prevSpan); err != nil {
		return p, err
	}
	return p, a.SetRBW(ctx, prevRBW)
}
