package calib

import (
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"testing"
)

type fakeSupply struct{ log []string }

func (s *fakeSupply) SetVoltage(_ context.Context, ch int, v float64) error {
	s.log = append(s.log, fmt.Sprintf("volt %d %g", ch, v))
	return nil
}

func (s *fakeSupply) SetCurrent(_ context.Context, ch int, a float64) error {
	s.log = append(s.log, fmt.Sprintf("curr %d %g", ch, a))
	return nil
}

func (s *fakeSupply) OutputOn(_ context.Context, ch int) error {
	s.log = append(s.log, fmt.Sprintf("on %d", ch))
	return nil
}

func (s *fakeSupply) MeasureVoltage(context.Context, int) (float64, error) { return 4, nil }
func (s *fakeSupply) MeasureCurrent(context.Context, int) (float64, error) { return 0.5, nil }

type fakeRunner struct {
	cmds []string
	err  error
}

func (r *fakeRunner) Run(_ context.Context, cmd string, stdout, _ io.Writer) error {
	r.cmds = append(r.cmds, cmd)
	io.WriteString(stdout, "boot ok\n")
	return r.err
}

// fakeTxArray models four elements whose true null sits at a per-element phase.
type fakeTxArray struct {
	nulls   map[int]float64
	phase   map[int]float64
	gain    map[int]int
	bias    map[int][2]float64
	paOn    map[int]bool
	modes   []string
	latches int
}

func newFakeTxArray() *fakeTxArray {
	return &fakeTxArray{
		nulls: map[int]float64{1: 0, 2: 40, 3: 120, 4: 7},
		phase: map[int]float64{},
		gain:  map[int]int{},
		bias:  map[int][2]float64{},
		paOn:  map[int]bool{},
	}
}

func (a *fakeTxArray) Elements() []int { return []int{1, 2, 3, 4} }

func (a *fakeTxArray) SetTxElement(_ context.Context, el, gain int, phase float64) error {
	a.gain[el] = gain
	a.phase[el] = phase
	return nil
}

func (a *fakeTxArray) SetTxPhase(_ context.Context, el int, phase float64) error {
	a.phase[el] = phase
	return nil
}

func (a *fakeTxArray) LatchTx(context.Context) error { a.latches++; return nil }

func (a *fakeTxArray) SetPABias(_ context.Context, el int, on, off float64) error {
	a.bias[el] = [2]float64{on, off}
	return nil
}

func (a *fakeTxArray) SetChipModes(_ context.Context, tr, bias string) error {
	a.modes = append(a.modes, tr+"/"+bias)
	return nil
}

func (a *fakeTxArray) EnablePA(_ context.Context, el int) error  { a.paOn[el] = true; return nil }
func (a *fakeTxArray) DisablePA(_ context.Context, el int) error { a.paOn[el] = false; return nil }

// Power reads the combined output of the enabled elements.
func (a *fakeTxArray) Power(context.Context) (float64, error) {
	for el, on := range a.paOn {
		if on && el != 1 {
			return -70 + math.Abs(a.phase[el]-a.nulls[el]), nil
		}
	}
	return 0, fmt.Errorf("no element under test")
}

func TestTxCalRoutine(t *testing.T) {
	arr := newFakeTxArray()
	supply := &fakeSupply{}
	runner := &fakeRunner{}
	var out strings.Builder
	path := filepath.Join(t.TempDir(), "tx_phase.json")

	r := &TxCalRoutine{
		Supply:    supply,
		Rails:     []Rail{{Channel: 4, Voltage: 4, Current: 10}, {Channel: 2, Voltage: -6, Current: 3}},
		Runner:    runner,
		Stdout:    &out,
		Array:     arr,
		Meter:     arr,
		Reference: 1,
		TablePath: path,
	}
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	wantSupply := "volt 4 4,curr 4 10,on 4,volt 2 -6,curr 2 3,on 2"
	if got := strings.Join(supply.log, ","); got != wantSupply {
		t.Fatalf("supply sequence = %s", got)
	}
	if len(runner.cmds) != 1 || runner.cmds[0] != DefaultBootCmd || out.String() != "boot ok\n" {
		t.Fatalf("boot not run as expected: %q %q", runner.cmds, out.String())
	}
	if strings.Join(arr.modes, ",") != "spi/on,external/toggle" {
		t.Fatalf("chip modes = %v", arr.modes)
	}
	for el := 1; el <= 4; el++ {
		if arr.gain[el] != 127 || arr.bias[el] != [2]float64{-4.8, -4.8} {
			t.Fatalf("element %d not initialised: gain %d bias %v", el, arr.gain[el], arr.bias[el])
		}
		if arr.paOn[el] {
			t.Fatalf("element %d PA left enabled", el)
		}
	}

	if len(res.Results) != 3 {
		t.Fatalf("null searches = %d, want 3", len(res.Results))
	}
	want := map[int]float64{1: 0, 2: 220, 3: 300, 4: 187}
	for el, phase := range want {
		if got, _ := res.Table.Get(el); got != phase {
			t.Fatalf("element %d phase = %v, want %v", el, got, phase)
		}
		if el != 1 && arr.phase[el] != phase {
			t.Fatalf("element %d left at %v, want %v", el, arr.phase[el], phase)
		}
	}

	saved, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if saved.RunID != res.Table.RunID || saved.Kind != KindPhase {
		t.Fatalf("saved table mismatch: %+v", saved)
	}
}

func TestTxCalRoutineBootFailure(t *testing.T) {
	arr := newFakeTxArray()
	r := &TxCalRoutine{
		Runner: &fakeRunner{err: fmt.Errorf("exit 3")},
		Array:  arr,
		Meter:  arr,
	}
	if _, err := r.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "boot") {
		t.Fatalf("expected boot error, got %v", err)
	}
	if len(arr.modes) != 0 {
		t.Fatal("array configured after failed boot")
	}
}

func TestTxCalRoutineTagsPointsWithRun(t *testing.T) {
	arr := newFakeTxArray()
	rec := &recorder{}
	r := &TxCalRoutine{Array: arr, Meter: arr, Reference: 1, Reporter: rec}
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(rec.points) == 0 {
		t.Fatal("no points reported")
	}
	want := res.Table.RunID.String()
	for _, p := range rec.points {
		if p.Run != want {
			t.Fatalf("point %+v has run %q, want %q", p, p.Run, want)
		}
	}
}

func TestWithRunKeepsExistingRun(t *testing.T) {
	rec := &recorder{}
	rep := WithRun("outer", rec)
	rep.Report(Point{Stage: "coarse"})
	rep.Report(Point{Run: "inner", Stage: "fine"})
	if rec.points[0].Run != "outer" || rec.points[1].Run != "inner" {
		t.Fatalf("runs = %q, %q", rec.points[0].Run, rec.points[1].Run)
	}
	WithRun("x", nil).Report(Point{})
}
