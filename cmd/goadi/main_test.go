package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rjboer/GoADI/internal/calib"
	"github.com/rjboer/GoADI/internal/config"
	"github.com/rjboer/GoADI/internal/iio"
	"github.com/rjboer/GoADI/internal/logging"
)

const emuXML = `<?xml version="1.0" encoding="utf-8"?>
<context name="bench">
<device id="iio:device0" name="adar1000" label="BEAM0">
 <channel id="voltage0" type="input">
  <attribute name="hardwaregain" value="12" />
 </channel>
 <channel id="voltage0" type="output">
  <attribute name="hardwaregain" value="64" />
 </channel>
 <attribute name="mode" value="rx" />
 <debug-attribute name="direct_reg_access" />
</device>
<device id="iio:device1" name="ad7291">
 <channel id="temp0" type="input">
  <attribute name="mean_raw" value="100" />
 </channel>
</device>
</context>`

// run executes the root command against an emulated context and a config
// path that does not exist.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	xml := filepath.Join(dir, "ctx.xml")
	if err := os.WriteFile(xml, []byte(emuXML), 0o644); err != nil {
		t.Fatal(err)
	}
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(append([]string{"--config", filepath.Join(dir, "absent.yml"), "--uri", "emu:" + xml}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInfoCommand(t *testing.T) {
	out, err := run(t, "info", "--attrs")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	for _, want := range []string{"context: bench", "2 devices", "iio:device0: adar1000 [BEAM0]", "voltage0 (output)", "direct_reg_access"} {
		if !strings.Contains(out, want) {
			t.Errorf("info output missing %q:\n%s", want, out)
		}
	}
}

func TestAttrGetCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"device attr", []string{"attr", "get", "beam0", "mode"}, "rx"},
		{"input channel", []string{"attr", "get", "adar1000", "voltage0", "hardwaregain"}, "12"},
		{"output channel", []string{"attr", "get", "-o", "iio:device0", "voltage0", "hardwaregain"}, "64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			if err != nil {
				t.Fatalf("%v: %v", tt.args, err)
			}
			if strings.TrimSpace(out) != tt.want {
				t.Fatalf("got %q, want %q", out, tt.want)
			}
		})
	}
}

func TestAttrErrors(t *testing.T) {
	if _, err := run(t, "attr", "get", "nope", "mode"); !errors.Is(err, iio.ErrNotFound) {
		t.Fatalf("missing device err = %v", err)
	}
	if _, err := run(t, "attr", "get", "-d", "beam0", "voltage0", "phase"); !errors.Is(err, iio.ErrInvalidValue) {
		t.Fatalf("debug channel err = %v", err)
	}
	if _, err := run(t, "reg", "read", "beam0", "zz"); !errors.Is(err, iio.ErrInvalidValue) {
		t.Fatalf("bad register err = %v", err)
	}
}

func TestConfCommandAppliesURIFlag(t *testing.T) {
	out, err := run(t, "conf")
	if err != nil {
		t.Fatalf("conf: %v", err)
	}
	if !strings.Contains(out, "uri: emu:") {
		t.Fatalf("conf output missing flag override:\n%s", out)
	}
}

func TestMkconf(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goadi.yml")
	if _, err := run(t, "mkconf", path); err != nil {
		t.Fatalf("mkconf: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "historylimit: 2000") {
		t.Fatalf("unexpected config:\n%s", raw)
	}
	if _, err := run(t, "mkconf", path); err == nil {
		t.Fatal("expected mkconf to refuse overwriting")
	}
	if _, err := run(t, "mkconf", "--force", path); err != nil {
		t.Fatalf("mkconf --force: %v", err)
	}
}

func TestCalGainCodes(t *testing.T) {
	out, err := run(t, "cal", "gaincodes", "10", "10", "10", "10")
	if err != nil {
		t.Fatalf("gaincodes: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 || lines[0] != "element 1: code 127 atten false" {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if _, err := run(t, "cal", "gaincodes", "--mode", "tx", "--apply", "1", "2"); !errors.Is(err, iio.ErrInvalidValue) {
		t.Fatalf("tx apply err = %v", err)
	}
}

func TestCalPattern(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pattern.png")
	out, err := run(t, "cal", "pattern", "--step", "5", "--out", path)
	if err != nil {
		t.Fatalf("pattern: %v", err)
	}
	if !strings.Contains(out, "wrote "+path) {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
}

func TestCalNullNeedsAnalyzer(t *testing.T) {
	if _, err := run(t, "cal", "null"); !errors.Is(err, iio.ErrInvalidValue) {
		t.Fatalf("err = %v", err)
	}
}

func newShellContext(t *testing.T) (*iio.Context, *iio.EmuBackend) {
	t.Helper()
	emu, err := iio.NewEmuBackendXML([]byte(emuXML))
	if err != nil {
		t.Fatal(err)
	}
	c, err := iio.NewContext(context.Background(), emu)
	if err != nil {
		t.Fatal(err)
	}
	return c, emu
}

func TestExecLine(t *testing.T) {
	c, emu := newShellContext(t)
	ctx := context.Background()
	tests := []struct {
		line string
		want string
	}{
		{"get beam0 mode", "rx\n"},
		{"set -o beam0 voltage0 hardwaregain 90", "OK\n"},
		{"get -o beam0 voltage0 hardwaregain", "90\n"},
		{"reg beam0 0x28 0x1", "OK\n"},
		{"reg beam0 0x28", "0x1\n"},
		{"", ""},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := execLine(ctx, c, &buf, tt.line); err != nil {
			t.Fatalf("%q: %v", tt.line, err)
		}
		if buf.String() != tt.want {
			t.Fatalf("%q printed %q, want %q", tt.line, buf.String(), tt.want)
		}
	}
	if v, _ := emu.Value(iio.ChannelRef("iio:device0", "voltage0", false, "hardwaregain")); v != "12" {
		t.Fatalf("input gain changed to %q", v)
	}
	if err := execLine(ctx, c, &bytes.Buffer{}, "frobnicate"); err == nil {
		t.Fatal("expected unknown command error")
	}
	if err := execLine(ctx, c, &bytes.Buffer{}, "get -x beam0 mode"); err == nil {
		t.Fatal("expected unknown flag error")
	}
	if err := execLine(ctx, c, &bytes.Buffer{}, "exit"); !errors.Is(err, errQuit) {
		t.Fatalf("exit err = %v", err)
	}
}

func TestSSHHostFromURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
		ok   bool
	}{
		{"ip:192.168.2.1", "192.168.2.1", true},
		{"ip:10.0.0.3:30431", "10.0.0.3", true},
		{"ssh:root@phaser.local", "phaser.local", true},
		{"local:", "", false},
	}
	for _, tt := range tests {
		a := &app{}
		a.cfg.Context.URI = tt.uri
		got, err := a.sshHost()
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("%s: got %q, %v", tt.uri, got, err)
		}
	}
}

func TestTxRoutineFromDefaults(t *testing.T) {
	a := &app{cfg: config.Default(), out: io.Discard, errOut: io.Discard}
	r := a.txRoutine()
	if r.PABias != -4.8 {
		t.Fatalf("pa bias = %v, want -4.8", r.PABias)
	}
	if r.Reference != 1 || r.Null.CoarseStep != 15 || r.Null.FineLimit != 196 {
		t.Fatalf("routine = %+v", r)
	}
	if r.TablePath != filepath.Join(".", "tx_phase_cal.json") || len(r.Rails) != 2 {
		t.Fatalf("table path %q rails %+v", r.TablePath, r.Rails)
	}
}

func TestReporterTagsRun(t *testing.T) {
	var logs bytes.Buffer
	a := &app{logger: logging.New(logging.Debug, logging.Text, &logs)}
	rep := a.reporter(newSpinner(io.Discard, "sweep"))
	rep.Report(calib.Point{Stage: "coarse", Element: 2})
	rep.Report(calib.Point{Run: "table-run", Stage: "fine", Element: 2})

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %q", lines)
	}
	if !strings.Contains(lines[0], " run=") || strings.Contains(lines[0], "run=table-run") {
		t.Fatalf("first point not tagged with a fresh run: %s", lines[0])
	}
	if !strings.Contains(lines[1], "run=table-run") {
		t.Fatalf("routine run overwritten: %s", lines[1])
	}
}
