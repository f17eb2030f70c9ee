package parts

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rjboer/GoADI/internal/iio"
)

func TestAD7124ChannelOrder(t *testing.T) {
	c, _ := newTestContext(t, deviceXML("iio:device0", "ad7124-4", "",
		channelXML("voltage10-11", false, "", map[string]string{"raw": "3"}),
		channelXML("voltage2-3", false, "", map[string]string{"raw": "1"}),
		channelXML("voltage9-10", false, "", map[string]string{"raw": "2"}),
	))
	a, err := NewAD7124(c, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"voltage2-3", "voltage9-10", "voltage10-11"}
	for i, id := range a.ChannelIDs() {
		if id != want[i] {
			t.Fatalf("ChannelIDs = %v, want %v", a.ChannelIDs(), want)
		}
	}
	if v, _ := a.Raw(context.Background(), 2); v != 3 {
		t.Fatalf("Raw(2) = %d", v)
	}
	if _, err := a.Raw(context.Background(), 3); !errors.Is(err, iio.ErrInvalidValue) {
		t.Fatalf("out of range err = %v", err)
	}
}

func TestAD7124Conversions(t *testing.T) {
	c, emu := newTestContext(t, ad7124XML("iio:device0"))
	ctx := context.Background()
	a, err := NewAD7124(c, 0)
	if err != nil {
		t.Fatal(err)
	}
	v, err := a.ToVolts(ctx, 1, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(v-0.298) > 1e-12 {
		t.Fatalf("ToVolts = %g", v)
	}
	scales, err := a.ScaleAvailable(ctx, 0)
	if err != nil || len(scales) != 3 || scales[2] != 0.000074 {
		t.Fatalf("ScaleAvailable = %v, %v", scales, err)
	}
	if err := a.SetSampleRate(ctx, 19200); err != nil {
		t.Fatal(err)
	}
	if v, _ := emu.Value(iio.ChannelRef("iio:device0", "voltage15", false, "sampling_frequency")); v != "19200" {
		t.Fatalf("voltage15 sampling_frequency = %s", v)
	}
	if _, err := NewAD7124(c, 1); !errors.Is(err, iio.ErrNotFound) {
		t.Fatalf("second part err = %v", err)
	}
}
