package iio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeTree creates files relative to root; values are file contents.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func newSysfsContext(t *testing.T) (*Context, string) {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"sys/bus/iio/devices/iio:device0/name":                            "ad9361-phy\n",
		"sys/bus/iio/devices/iio:device0/uevent":                          "",
		"sys/bus/iio/devices/iio:device0/calib_mode":                      "auto\n",
		"sys/bus/iio/devices/iio:device0/out_altvoltage0_RX_LO_frequency": "2400000000\n",
		"sys/bus/iio/devices/iio:device0/out_altvoltage0_RX_LO_powerdown": "0\n",
		"sys/bus/iio/devices/iio:device0/in_voltage0_hardwaregain":        "71.000000 dB\n",
		"sys/bus/iio/devices/iio:device0/in_voltage0_rssi":                "98.25 dB\n",
		"sys/bus/iio/devices/iio:device0/in_voltage1_hardwaregain":        "70.000000 dB\n",
		"sys/bus/iio/devices/iio:device0/in_voltage1_rssi":                "97.00 dB\n",
		"sys/bus/iio/devices/iio:device0/in_voltage_sampling_frequency":   "30720000\n",
		"sys/bus/iio/devices/iio:device1/name":                            "adar1000\n",
		"sys/bus/iio/devices/iio:device1/label":                           "BEAM0\n",
		"sys/bus/iio/devices/iio:device1/tr_source":                       "spi\n",
		"sys/bus/iio/devices/iio:device1/scan_elements/in_voltage0_index": "0\n",
		"sys/bus/iio/devices/iio:device1/scan_elements/in_voltage0_type":  "le:S12/16>>0\n",
		"sys/bus/iio/devices/iio:device1/buffer/length":                   "4096\n",
		"sys/kernel/debug/iio/iio:device1/direct_reg_access":              "0x0\n",
	})

	fsys := LocalFS{Root: root}
	c, err := NewContext(context.Background(), NewSysfsBackend(fsys, "", ""))
	if err != nil {
		t.Fatalf("NewContext over sysfs: %v", err)
	}
	return c, root
}

func TestSysfsSynthesisedContext(t *testing.T) {
	c, _ := newSysfsContext(t)

	phy, err := c.Device("ad9361-phy")
	if err != nil {
		t.Fatalf("Device(ad9361-phy): %v", err)
	}
	if len(phy.AttrNames) != 1 || phy.AttrNames[0] != "calib_mode" {
		t.Fatalf("device attributes = %v", phy.AttrNames)
	}

	lo, err := phy.Channel("RX_LO", true)
	if err != nil || lo.ID != "altvoltage0" {
		t.Fatalf("extended channel name not detected: %v, %v", lo, err)
	}
	if len(lo.AttrNames) != 2 || lo.AttrNames[0] != "frequency" {
		t.Fatalf("RX_LO attributes = %v", lo.AttrNames)
	}

	rx1, err := phy.Channel("voltage1", false)
	if err != nil {
		t.Fatalf("Channel(voltage1): %v", err)
	}
	hasShared := false
	for _, a := range rx1.AttrNames {
		if a == "sampling_frequency" {
			hasShared = true
		}
	}
	if !hasShared {
		t.Fatalf("shared attribute not attached: %v", rx1.AttrNames)
	}

	beam, err := c.Device("beam0")
	if err != nil {
		t.Fatalf("Device(beam0): %v", err)
	}
	if len(beam.DebugAttrNames) != 1 || len(beam.BufferAttrNames) != 1 {
		t.Fatalf("debug/buffer attributes = %v / %v", beam.DebugAttrNames, beam.BufferAttrNames)
	}
	ch, err := beam.Channel("voltage0", false)
	if err != nil || ch.Scan == nil || ch.Scan.Bits != 12 {
		t.Fatalf("scan element not attached: %+v, %v", ch, err)
	}
}

func TestSysfsReadWrite(t *testing.T) {
	c, root := newSysfsContext(t)
	ctx := context.Background()
	phy, _ := c.Device("ad9361-phy")
	lo, _ := phy.Channel("altvoltage0", true)

	f, err := lo.AttrInt(ctx, "frequency")
	if err != nil || f != 2400000000 {
		t.Fatalf("AttrInt(frequency) = %d, %v", f, err)
	}
	if err := lo.SetAttrInt(ctx, "frequency", 2450000000); err != nil {
		t.Fatalf("SetAttrInt: %v", err)
	}
	raw, _ := os.ReadFile(filepath.Join(root, "sys/bus/iio/devices/iio:device0/out_altvoltage0_RX_LO_frequency"))
	if string(raw) != "2450000000" {
		t.Fatalf("file content = %q", raw)
	}

	rx0, _ := phy.Channel("voltage0", false)
	sr, err := rx0.AttrInt(ctx, "sampling_frequency")
	if err != nil || sr != 30720000 {
		t.Fatalf("shared attribute read = %d, %v", sr, err)
	}

	beam, _ := c.Device("BEAM0")
	if err := beam.RegWrite(ctx, 0x28, 0x1); err != nil {
		t.Fatalf("RegWrite over debugfs: %v", err)
	}
	if _, err := phy.Attr(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := phy.SetAttr(ctx, "nope", "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on write, got %v", err)
	}
}

func TestCommonTokenPrefix(t *testing.T) {
	tests := []struct {
		attrs []string
		want  string
	}{
		{[]string{"RX_LO_frequency", "RX_LO_powerdown"}, "RX_LO"},
		{[]string{"raw", "scale"}, ""},
		{[]string{"hardwaregain"}, ""},
		{[]string{"TX_LO_frequency", "TX_LO_fastlock_store", "TX_LO_external"}, "TX_LO"},
	}
	for _, tc := range tests {
		if got := commonTokenPrefix(tc.attrs); got != tc.want {
			t.Fatalf("commonTokenPrefix(%v) = %q, want %q", tc.attrs, got, tc.want)
		}
	}
}
