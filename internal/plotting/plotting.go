// Package plotting renders calibration sweeps and array patterns to PNG.
package plotting

import (
	"fmt"
	"image/color"
	"io"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/rjboer/GoADI/internal/calib"
	"github.com/rjboer/GoADI/internal/parts"
)

// Size of every rendered image.
var (
	Width  = 8 * vg.Inch
	Height = 4 * vg.Inch
)

var (
	coarseColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	fineColor   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	elevColor   = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

func samplesXY(s []calib.Sample) plotter.XYs {
	xys := make(plotter.XYs, len(s))
	for i, p := range s {
		xys[i].X, xys[i].Y = p.Phase, p.Power
	}
	return xys
}

func seriesXY(x, y []float64) (plotter.XYs, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("plotting: %d x values for %d y values", len(x), len(y))
	}
	if len(x) == 0 {
		return nil, calib.ErrNoSamples
	}
	xys := make(plotter.XYs, len(x))
	for i := range x {
		xys[i].X, xys[i].Y = x[i], y[i]
	}
	return xys, nil
}

func addLine(p *plot.Plot, name string, xys plotter.XYs, c color.Color) error {
	l, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	l.Color = c
	p.Add(l)
	p.Legend.Add(name, l)
	return nil
}

func render(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// NullSweep plots the coarse and fine power readings of a null search.
func NullSweep(w io.Writer, res calib.NullResult) error {
	if len(res.Coarse) == 0 {
		return calib.ErrNoSamples
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Element %d null search (null %.0f°, cal %.0f°)", res.Element, res.Null, res.Phase)
	p.X.Label.Text = "Phase (deg)"
	p.Y.Label.Text = "Power (dBm)"
	p.Add(plotter.NewGrid())

	coarse, err := plotter.NewScatter(samplesXY(res.Coarse))
	if err != nil {
		return err
	}
	coarse.Color = coarseColor
	p.Add(coarse)
	p.Legend.Add("coarse", coarse)
	if len(res.Fine) > 0 {
		if err := addLine(p, "fine", samplesXY(res.Fine), fineColor); err != nil {
			return err
		}
	}
	return render(w, p)
}

// Pattern plots the azimuth and elevation cuts of an array pattern.
func Pattern(w io.Writer, pat calib.Pattern) error {
	az, err := seriesXY(pat.Angles, pat.Azimuth)
	if err != nil {
		return err
	}
	el, err := seriesXY(pat.Angles, pat.Elevation)
	if err != nil {
		return err
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Array pattern, steered %.1f°", pat.SteerDeg)
	p.X.Label.Text = "Angle (deg)"
	p.Y.Label.Text = "Normalized gain (dB)"
	p.Y.Min = -60
	p.Y.Max = 0
	p.Add(plotter.NewGrid())
	if err := addLine(p, "azimuth", az, coarseColor); err != nil {
		return err
	}
	if err := addLine(p, "elevation", el, elevColor); err != nil {
		return err
	}
	return render(w, p)
}

// BeamSweep plots the sum and delta beams of a phaser sweep against the
// steering angle.
func BeamSweep(w io.Writer, res parts.BeamSweepResult) error {
	sum, err := seriesXY(res.Angles, res.SumDB)
	if err != nil {
		return err
	}
	delta, err := seriesXY(res.Angles, res.DeltaDB)
	if err != nil {
		return err
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Beam sweep, peak at %.1f°", res.PeakAngle())
	p.X.Label.Text = "Steering angle (deg)"
	p.Y.Label.Text = "Peak (dBFS)"
	p.Add(plotter.NewGrid())
	if err := addLine(p, "sum", sum, coarseColor); err != nil {
		return err
	}
	if err := addLine(p, "delta", delta, fineColor); err != nil {
		return err
	}
	return render(w, p)
}

// SavePNG creates path and renders into it with draw.
func SavePNG(path string, draw func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := draw(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
