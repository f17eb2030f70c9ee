package plotting

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rjboer/GoADI/internal/calib"
	"github.com/rjboer/GoADI/internal/parts"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestNullSweepPNG(t *testing.T) {
	res := calib.NullResult{
		Element: 3,
		Coarse:  []calib.Sample{{Phase: 0, Power: -30}, {Phase: 15, Power: -45}, {Phase: 30, Power: -35}},
		Fine:    []calib.Sample{{Phase: 14, Power: -44}, {Phase: 15, Power: -45}, {Phase: 16, Power: -43}},
		Null:    15,
		Phase:   195,
	}
	var buf bytes.Buffer
	if err := NullSweep(&buf, res); err != nil {
		t.Fatalf("NullSweep: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), pngMagic) {
		t.Fatal("output is not a PNG")
	}
	if err := NullSweep(io.Discard, calib.NullResult{}); !errors.Is(err, calib.ErrNoSamples) {
		t.Fatalf("empty sweep err = %v", err)
	}
}

func TestPatternPNG(t *testing.T) {
	cfg := calib.DefaultPatternConfig()
	cfg.Step = 2
	pat, err := calib.ArrayPattern(cfg)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "pattern.png")
	if err := SavePNG(path, func(w io.Writer) error { return Pattern(w, pat) }); err != nil {
		t.Fatalf("SavePNG: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(raw, pngMagic) {
		t.Fatal("file is not a PNG")
	}
}

func TestBeamSweepMismatchedSeries(t *testing.T) {
	res := parts.BeamSweepResult{Angles: []float64{-10, 0, 10}, SumDB: []float64{-20, -10}, DeltaDB: []float64{-30, -40, -30}}
	if err := BeamSweep(io.Discard, res); err == nil {
		t.Fatal("expected error for mismatched series")
	}
	res.SumDB = append(res.SumDB, -20)
	res.Peak = 1
	var buf bytes.Buffer
	if err := BeamSweep(&buf, res); err != nil {
		t.Fatalf("BeamSweep: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), pngMagic) {
		t.Fatal("output is not a PNG")
	}
}
