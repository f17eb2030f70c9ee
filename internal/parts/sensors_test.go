package parts

import (
	"context"
	"errors"
	"testing"

	"github.com/rjboer/GoADI/internal/iio"
)

func TestLM75(t *testing.T) {
	c, emu := newTestContext(t,
		deviceXML("hwmon0", "lm75", "",
			channelXML("temp1", false, "", map[string]string{"input": "41500", "max": "80000", "max_hyst": "75000"}),
			`<attribute name="update_interval" value="500" />`),
		deviceXML("hwmon1", "adt75", "",
			channelXML("temp1", false, "", map[string]string{"input": "-2250"})),
	)
	ctx := context.Background()
	l, err := NewLM75(c, 0)
	if err != nil {
		t.Fatal(err)
	}
	if d, _ := l.Degrees(ctx); d != 41.5 {
		t.Fatalf("Degrees = %g", d)
	}
	if err := l.SetMax(ctx, 85.5); err != nil {
		t.Fatal(err)
	}
	if v, _ := emu.Value(iio.ChannelRef("hwmon0", "temp1", false, "max")); v != "85500" {
		t.Fatalf("max = %s", v)
	}
	if v, _ := l.UpdateInterval(ctx); v != 500 {
		t.Fatalf("update interval = %d", v)
	}

	second, err := NewLM75(c, 1)
	if err != nil {
		t.Fatal(err)
	}
	if d, _ := second.Degrees(ctx); d != -2.25 {
		t.Fatalf("adt75 Degrees = %g", d)
	}
	if _, err := NewLM75(c, 2); !errors.Is(err, iio.ErrNotFound) {
		t.Fatalf("third sensor err = %v", err)
	}
}

func TestMAX9611(t *testing.T) {
	c, _ := newTestContext(t, deviceXML("iio:device0", "max9611", "",
		channelXML("voltage0", false, "", map[string]string{"input": "12.5"}),
		channelXML("voltage1", false, "", map[string]string{"raw": "100", "scale": "14", "offset": "2"}),
		channelXML("current", false, "", map[string]string{"input": "250", "shunt_resistor": "0.005"}),
		channelXML("temp", false, "", map[string]string{"raw": "60", "scale": "500"}),
	))
	ctx := context.Background()
	m, err := NewMAX9611(c, "")
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := m.InputVoltage(ctx); v != 1428 {
		t.Fatalf("InputVoltage = %g", v)
	}
	if v, _ := m.Temperature(ctx); v != 30000 {
		t.Fatalf("Temperature = %g", v)
	}
	if v, _ := m.ShuntResistor(ctx); v != 0.005 {
		t.Fatalf("ShuntResistor = %g", v)
	}
	if _, err := NewMAX9611(c, "max1234"); !errors.Is(err, iio.ErrInvalidValue) {
		t.Fatalf("bad part err = %v", err)
	}
}
