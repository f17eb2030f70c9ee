package parts

import (
	"context"
	"errors"
	"testing"

	"github.com/rjboer/GoADI/internal/iio"
)

func newTDD(t *testing.T) (*TDD, *iio.EmuBackend) {
	t.Helper()
	c, emu := newTestContext(t, deviceXML("iio:device0", "axi-core-tdd", "",
		channelXML("data0", false, "", nil),
		channelXML("data1", false, "", nil),
		channelXML("data0", true, "", nil),
		channelXML("data1", true, "", nil),
		`<attribute name="frame_length_ms" value="1" />`,
		`<attribute name="burst_count" value="0" />`,
		`<attribute name="en" value="0" />`,
	))
	tdd, err := NewTDD(c)
	if err != nil {
		t.Fatalf("NewTDD: %v", err)
	}
	return tdd, emu
}

func TestTDDTimingAttributes(t *testing.T) {
	tdd, emu := newTDD(t)
	ctx := context.Background()
	if err := tdd.SetRxDPOnOff(ctx, false, []float64{0.1, 0.2, 0.3, 0.4}); err != nil {
		t.Fatal(err)
	}
	if err := tdd.SetTxRFOnOff(ctx, true, []float64{10, 20, 30, 40}); err != nil {
		t.Fatal(err)
	}
	checks := []struct {
		ref  iio.Ref
		want string
	}{
		{iio.ChannelRef("iio:device0", "data0", false, "dp_on_ms"), "0.1"},
		{iio.ChannelRef("iio:device0", "data0", false, "dp_off_ms"), "0.2"},
		{iio.ChannelRef("iio:device0", "data1", false, "dp_on_ms"), "0.3"},
		{iio.ChannelRef("iio:device0", "data1", false, "dp_off_ms"), "0.4"},
		{iio.ChannelRef("iio:device0", "data0", true, "on_raw"), "10"},
		{iio.ChannelRef("iio:device0", "data1", true, "off_raw"), "40"},
	}
	for _, c := range checks {
		if got, _ := emu.Value(c.ref); got != c.want {
			t.Errorf("%s = %q, want %q", c.ref, got, c.want)
		}
	}
	got, err := tdd.RxDPOnOff(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || got[2] != 0.3 {
		t.Fatalf("RxDPOnOff = %v", got)
	}
}

func TestTDDRejectsWrongLength(t *testing.T) {
	tdd, emu := newTDD(t)
	err := tdd.SetRxRFOnOff(context.Background(), false, []float64{1, 2, 3})
	if !errors.Is(err, iio.ErrInvalidValue) {
		t.Fatalf("err = %v", err)
	}
	if len(emu.Writes()) != 0 {
		t.Fatalf("partial write: %v", emu.Writes())
	}
}

func TestTDDBurstCount(t *testing.T) {
	tdd, _ := newTDD(t)
	ctx := context.Background()
	if err := tdd.SetBurstCount(ctx, 256); !errors.Is(err, iio.ErrInvalidValue) {
		t.Fatalf("256 err = %v", err)
	}
	if err := tdd.SetBurstCount(ctx, 12); err != nil {
		t.Fatal(err)
	}
	if n, _ := tdd.BurstCount(ctx); n != 12 {
		t.Fatalf("burst count = %d", n)
	}
}
