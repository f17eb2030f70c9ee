package calib

import (
	"math"
	"testing"
)

func TestToSupAndWrap360(t *testing.T) {
	tests := []struct {
		in, sup, wrap float64
	}{
		{in: 0, sup: 0, wrap: 0},
		{in: 180, sup: 180, wrap: 180},
		{in: 181, sup: -179, wrap: 181},
		{in: 359, sup: -1, wrap: 359},
		{in: -90, sup: -90, wrap: 270},
		{in: 725, sup: 365, wrap: 5},
	}
	for _, tt := range tests {
		if got := ToSup(tt.in); got != tt.sup {
			t.Fatalf("ToSup(%v) = %v, want %v", tt.in, got, tt.sup)
		}
		if got := Wrap360(tt.in); got != tt.wrap {
			t.Fatalf("Wrap360(%v) = %v, want %v", tt.in, got, tt.wrap)
		}
	}
}

func TestQuantizePhase(t *testing.T) {
	step := 2 * math.Pi / 256
	if got := QuantizePhase(step*10.4, 8); math.Abs(got-step*10) > 1e-12 {
		t.Fatalf("QuantizePhase = %v", got)
	}
	if got := QuantizePhase(math.Pi/2, 2); got != math.Pi/2 {
		t.Fatalf("2-bit quantisation of pi/2 = %v", got)
	}
}

func TestInd2SubAndElementGrid(t *testing.T) {
	r, c := Ind2Sub(8, 19)
	if r != 3 || c != 2 {
		t.Fatalf("Ind2Sub(8,19) = %d,%d", r, c)
	}
	grid := ElementGrid(8, 8)
	if grid[0][0] != 1 || grid[7][0] != 8 || grid[0][1] != 9 || grid[7][7] != 64 {
		t.Fatalf("unexpected grid corners %v", grid)
	}
	for idx := 0; idx < 64; idx++ {
		r, c := Ind2Sub(8, idx)
		if grid[r][c] != idx+1 {
			t.Fatalf("grid[%d][%d] = %d, want %d", r, c, grid[r][c], idx+1)
		}
	}
}

func TestArrayPatternBoresight(t *testing.T) {
	p, err := ArrayPattern(DefaultPatternConfig())
	if err != nil {
		t.Fatalf("ArrayPattern returned error: %v", err)
	}
	if len(p.Angles) != 361 || len(p.Azimuth) != 361 || len(p.Elevation) != 361 {
		t.Fatalf("unexpected lengths %d/%d", len(p.Angles), len(p.Azimuth))
	}
	if p.Angles[0] != -90 || p.Angles[360] != 90 {
		t.Fatalf("angles span %v..%v", p.Angles[0], p.Angles[360])
	}
	if p.Azimuth[180] != 0 {
		t.Fatalf("boresight level = %v, want 0 dB", p.Azimuth[180])
	}
	for i, v := range p.Azimuth {
		if v > 1e-12 || v < -200 {
			t.Fatalf("level %d out of range: %v", i, v)
		}
	}
}

func TestArrayPatternSteered(t *testing.T) {
	cfg := DefaultPatternConfig()
	cfg.SteerDeg = 20
	p, err := ArrayPattern(cfg)
	if err != nil {
		t.Fatalf("ArrayPattern returned error: %v", err)
	}
	best := 0
	for i, v := range p.Azimuth {
		if v > p.Azimuth[best] {
			best = i
		}
	}
	if p.Angles[best] != 20 {
		t.Fatalf("beam peak at %v, want 20", p.Angles[best])
	}
	if _, err := ArrayPattern(PatternConfig{Start: 0, Stop: 10}); err == nil {
		t.Fatal("expected error for zero step")
	}
}
