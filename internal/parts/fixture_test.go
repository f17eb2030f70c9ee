package parts

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/rjboer/GoADI/internal/iio"
)

// attrs renders attribute elements in name order.
func attrs(kv map[string]string) string {
	names := make([]string, 0, len(kv))
	for k := range kv {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "  <attribute name=%q value=%q />\n", n, kv[n])
	}
	return b.String()
}

func channelXML(id string, output bool, scan string, kv map[string]string) string {
	typ := "input"
	if output {
		typ = "output"
	}
	var b strings.Builder
	fmt.Fprintf(&b, " <channel id=%q type=%q>\n", id, typ)
	if scan != "" {
		b.WriteString(scan)
	}
	b.WriteString(attrs(kv))
	b.WriteString(" </channel>\n")
	return b.String()
}

func deviceXML(id, name, label string, body ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<device id=%q name=%q", id, name)
	if label != "" {
		fmt.Fprintf(&b, " label=%q", label)
	}
	b.WriteString(">\n")
	for _, s := range body {
		b.WriteString(s)
	}
	b.WriteString("</device>\n")
	return b.String()
}

func scanXML(index int, format string) string {
	return fmt.Sprintf("  <scan-element index=\"%d\" format=%q />\n", index, format)
}

func newTestContext(t *testing.T, devices ...string) (*iio.Context, *iio.EmuBackend) {
	t.Helper()
	doc := "<?xml version=\"1.0\" encoding=\"utf-8\"?>\n<context name=\"emu\">\n" + strings.Join(devices, "") + "</context>"
	emu, err := iio.NewEmuBackendXML([]byte(doc))
	if err != nil {
		t.Fatalf("NewEmuBackendXML: %v", err)
	}
	c, err := iio.NewContext(context.Background(), emu)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return c, emu
}

// gpioXML builds a one-bit-adc-dac with one output line per label and one
// input line per inLabel.
func gpioXML(id string, labels []string, inLabels ...string) string {
	var body []string
	for i, l := range labels {
		body = append(body, channelXML(fmt.Sprintf("voltage%d", i), true, "", map[string]string{"label": l, "raw": "0"}))
	}
	for i, l := range inLabels {
		body = append(body, channelXML(fmt.Sprintf("voltage%d", i+len(labels)), false, "", map[string]string{"label": l, "raw": "0"}))
	}
	return deviceXML(id, "one-bit-adc-dac", "", body...)
}

func ad7124XML(id string) string {
	var body []string
	for i := 0; i < 16; i++ {
		body = append(body, channelXML(fmt.Sprintf("voltage%d", i), false, scanXML(i, "be:U24/32>>0"), map[string]string{
			"raw":                fmt.Sprint(1000 * (i + 1)),
			"scale":              "0.000298",
			"offset":             "0",
			"scale_available":    "0.000298 0.000149 0.000074",
			"sampling_frequency": "9600",
		}))
	}
	return deviceXML(id, "ad7124-8", "", body...)
}

func ltc2688XML(id string) string {
	var body []string
	for i := 0; i < 16; i++ {
		kv := map[string]string{
			"raw":           "0",
			"raw_available": "[0 1 65535]",
			"scale":         "0.0625",
			"offset":        "0",
			"powerdown":     "0",
		}
		switch i {
		case 1:
			kv["dither_en"] = "0"
			kv["dither_frequency_available"] = "4096 2048 1024"
			kv["dither_raw_available"] = "[0 1 65535]"
		case 3:
			kv["toggle_en"] = "0"
			kv["raw0"] = "0"
			kv["raw1"] = "0"
			kv["symbol"] = "0"
		}
		body = append(body, channelXML(fmt.Sprintf("voltage%d", i), true, "", kv))
	}
	return deviceXML(id, "ltc2688", "", body...)
}

// iqFrames packs repeated four-channel int16 frames as the AD9361 RX core
// emits them.
func iqFrames(n int, vals [4]int16) []byte {
	out := make([]byte, 0, n*8)
	for i := 0; i < n; i++ {
		for _, v := range vals {
			out = binary.LittleEndian.AppendUint16(out, uint16(v))
		}
	}
	return out
}
