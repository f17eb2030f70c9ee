package instrument

import "context"

// E8267D is a PSG vector signal generator.
type E8267D struct {
	*SCPI
}

// NewE8267D wraps an SCPI session.
func NewE8267D(s *SCPI) *E8267D { return &E8267D{SCPI: s} }

func (g *E8267D) SetFrequencyMHz(ctx context.Context, mhz float64) error {
	return g.Write(ctx, "FREQ "+formatFloat(mhz)+"MHz")
}

func (g *E8267D) SetPowerDBm(ctx context.Context, dbm float64) error {
	return g.Write(ctx, "POW "+formatFloat(dbm)+"dBm")
}

// Frequency returns the CW frequency in Hz.
func (g *E8267D) Frequency(ctx context.Context) (float64, error) { return g.QueryFloat(ctx, "FREQ?") }

// Power returns the output level in dBm.
func (g *E8267D) Power(ctx context.Context) (float64, error) { return g.QueryFloat(ctx, "POW?") }

func (g *E8267D) RFOn(ctx context.Context) error  { return g.Write(ctx, "OUTP ON") }
func (g *E8267D) RFOff(ctx context.Context) error { return g.Write(ctx, "OUTP OFF") }
