package parts

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rjboer/GoADI/internal/iio"
)

func ad9361XML(rxChannels int) []string {
	rx := []string{}
	for i := 0; i < rxChannels; i++ {
		kv := map[string]string{}
		if i == 0 {
			kv["sampling_frequency"] = "30720000"
			kv["sampling_frequency_available"] = "30720000 3840000"
		}
		rx = append(rx, channelXML(fmt.Sprintf("voltage%d", i), false, scanXML(i, "le:S12/16>>0"), kv))
	}
	gainIn := func() map[string]string {
		return map[string]string{
			"hardwaregain":                "71.000000 dB",
			"gain_control_mode":           "slow_attack",
			"gain_control_mode_available": "manual fast_attack slow_attack hybrid",
			"rssi":                        "92.25 dB",
			"sampling_frequency":          "30720000",
			"rf_bandwidth":                "18000000",
		}
	}
	return []string{
		deviceXML("iio:device0", "ad9361-phy", "",
			channelXML("voltage0", false, "", gainIn()),
			channelXML("voltage1", false, "", gainIn()),
			channelXML("voltage0", true, "", map[string]string{"hardwaregain": "-10.000000 dB", "rf_bandwidth": "18000000"}),
			channelXML("altvoltage0", true, "", map[string]string{"frequency": "2400000000"}),
			channelXML("altvoltage1", true, "", map[string]string{"frequency": "2450000000"}),
			channelXML("temp0", false, "", map[string]string{"input": "35250"}),
		),
		deviceXML("iio:device1", "cf-ad9361-dds-core-lpc", ""),
		deviceXML("iio:device2", "cf-ad9361-lpc", "", rx...),
	}
}

func newAD9361(t *testing.T, rxChannels int) (*AD9361, *iio.EmuBackend) {
	t.Helper()
	c, emu := newTestContext(t, ad9361XML(rxChannels)...)
	r, err := NewAD9361(c)
	if err != nil {
		t.Fatalf("NewAD9361: %v", err)
	}
	return r, emu
}

func TestAD9361Identify(t *testing.T) {
	r, _ := newAD9361(t, 4)
	if r.Phy.ID != "iio:device0" || r.TX.ID != "iio:device1" || r.RX.ID != "iio:device2" {
		t.Fatalf("phy=%s tx=%s rx=%s", r.Phy.ID, r.TX.ID, r.RX.ID)
	}
	c, _ := newTestContext(t, ad9361XML(4)[0])
	if _, err := NewAD9361(c); !errors.Is(err, iio.ErrNotFound) {
		t.Fatalf("phy only err = %v", err)
	}
}

func TestAD9361Configure(t *testing.T) {
	r, emu := newAD9361(t, 4)
	ctx := context.Background()
	err := r.Configure(ctx, RadioConfig{
		SampleRate: 30e6,
		RxLO:       2.2e9,
		GainMode:   "manual",
		RxGain:     [2]float64{30, 40},
		TxGain:     -5,
		BufferSize: 256,
	})
	if err != nil {
		t.Fatal(err)
	}
	checks := []struct {
		ref  iio.Ref
		want string
	}{
		{iio.ChannelRef("iio:device0", "altvoltage0", true, "frequency"), "2200000000"},
		{iio.ChannelRef("iio:device0", "voltage0", false, "sampling_frequency"), "30000000"},
		{iio.ChannelRef("iio:device0", "voltage0", false, "rf_bandwidth"), "25000000"},
		{iio.ChannelRef("iio:device0", "voltage0", true, "rf_bandwidth"), "25000000"},
		{iio.ChannelRef("iio:device0", "voltage1", false, "gain_control_mode"), "manual"},
		{iio.ChannelRef("iio:device0", "voltage1", false, "hardwaregain"), "40.000"},
		{iio.ChannelRef("iio:device0", "voltage0", true, "hardwaregain"), "-5.000"},
	}
	for _, c := range checks {
		if got, _ := emu.Value(c.ref); got != c.want {
			t.Errorf("%s = %q, want %q", c.ref, got, c.want)
		}
	}
	if lo, _ := r.TxLO(ctx); lo != 2.45e9 {
		t.Errorf("TX LO changed to %g", lo)
	}
	if r.BufferSize != 256 {
		t.Errorf("BufferSize = %d", r.BufferSize)
	}
	if err := r.SetGainControlMode(ctx, 0, "auto"); !errors.Is(err, iio.ErrInvalidValue) {
		t.Fatalf("bad gain mode err = %v", err)
	}
}

func TestAD9361Readings(t *testing.T) {
	r, _ := newAD9361(t, 4)
	ctx := context.Background()
	if g, err := r.RxHardwareGain(ctx, 0); err != nil || g != 71 {
		t.Fatalf("RxHardwareGain = %g, %v", g, err)
	}
	if g, _ := r.TxHardwareGain(ctx, 0); g != -10 {
		t.Fatalf("TxHardwareGain = %g", g)
	}
	if v, _ := r.RSSI(ctx, 1); v != 92.25 {
		t.Fatalf("RSSI = %g", v)
	}
	if v, _ := r.Temperature(ctx); v != 35.25 {
		t.Fatalf("Temperature = %g", v)
	}
}

func TestAD9361Dec8(t *testing.T) {
	r, emu := newAD9361(t, 4)
	ctx := context.Background()
	on, err := r.RxDec8FilterEnabled(ctx)
	if err != nil || on {
		t.Fatalf("enabled = %t, %v", on, err)
	}
	if err := r.RxDec8FilterEnable(ctx, true); err != nil {
		t.Fatal(err)
	}
	if v, _ := emu.Value(iio.ChannelRef("iio:device2", "voltage0", false, "sampling_frequency")); v != "3840000" {
		t.Fatalf("sampling_frequency = %s", v)
	}
	if on, _ := r.RxDec8FilterEnabled(ctx); !on {
		t.Fatal("filter not reported enabled")
	}

	emu.Set(iio.ChannelRef("iio:device2", "voltage0", false, "sampling_frequency_available"), "30720000")
	if err := r.RxDec8FilterEnable(ctx, true); !errors.Is(err, iio.ErrInvalidValue) {
		t.Fatalf("single rate err = %v", err)
	}
	if on, _ := r.RxDec8FilterEnabled(ctx); on {
		t.Fatal("single rate core reports filter")
	}
}

func TestAD9361Capture(t *testing.T) {
	r, emu := newAD9361(t, 4)
	r.BufferSize = 16
	emu.SetBufferData("iio:device2", iqFrames(16, [4]int16{100, -50, 7, -8}))
	ch0, ch1, err := r.Capture(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ch0) != 16 || len(ch1) != 16 {
		t.Fatalf("lengths %d %d", len(ch0), len(ch1))
	}
	if ch0[3] != complex(100, -50) || ch1[15] != complex(7, -8) {
		t.Fatalf("samples %v %v", ch0[3], ch1[15])
	}
	if mask := emu.BufferMask("iio:device2"); len(mask) != 1 || mask[0] != 0xF {
		t.Fatalf("mask = %v", mask)
	}
}

func TestAD9361CaptureSingleChannel(t *testing.T) {
	r, emu := newAD9361(t, 2)
	r.BufferSize = 4
	emu.SetBufferData("iio:device2", []byte{1, 0, 2, 0})
	ch0, ch1, err := r.Capture(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ch0) != 4 || ch1 != nil || ch0[0] != complex(1, 2) {
		t.Fatalf("ch0=%v ch1=%v", ch0, ch1)
	}
}
