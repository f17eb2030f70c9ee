// Package calib holds the phased-array calibration algorithms and the
// persisted calibration tables they produce.
package calib

import (
	"context"
	"errors"
	"time"
)

// ErrNoSamples is returned when a sweep or fit has nothing to work on.
var ErrNoSamples = errors.New("calib: no samples")

// PowerMeter returns one power reading, typically a spectrum analyzer marker in dBm.
type PowerMeter interface {
	Power(ctx context.Context) (float64, error)
}

// PowerMeterFunc adapts a function to PowerMeter.
type PowerMeterFunc func(ctx context.Context) (float64, error)

func (f PowerMeterFunc) Power(ctx context.Context) (float64, error) { return f(ctx) }

// PhaseSetter applies a phase in degrees to the element under calibration,
// including any latch the hardware needs.
type PhaseSetter interface {
	SetPhase(ctx context.Context, deg float64) error
}

// PhaseSetterFunc adapts a function to PhaseSetter.
type PhaseSetterFunc func(ctx context.Context, deg float64) error

func (f PhaseSetterFunc) SetPhase(ctx context.Context, deg float64) error { return f(ctx, deg) }

// Point is one measurement taken during a sweep.
type Point struct {
	Run     string    `json:"run,omitempty"`
	Stage   string    `json:"stage"`
	Element int       `json:"element"`
	Phase   float64   `json:"phase"`
	Power   float64   `json:"power"`
	Time    time.Time `json:"time"`
}

// Reporter receives sweep progress.
type Reporter interface {
	Report(p Point)
}

type nopReporter struct{}

func (nopReporter) Report(Point) {}

func reporterOr(r Reporter) Reporter {
	if r == nil {
		return nopReporter{}
	}
	return r
}

type runReporter struct {
	run  string
	next Reporter
}

func (r runReporter) Report(p Point) {
	if p.Run == "" {
		p.Run = r.run
	}
	r.next.Report(p)
}

// WithRun tags every point that carries no run identifier with run before
// handing it to next.
func WithRun(run string, next Reporter) Reporter {
	return runReporter{run: run, next: reporterOr(next)}
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
