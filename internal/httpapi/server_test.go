package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rjboer/GoADI/internal/calib"
	"github.com/rjboer/GoADI/internal/iio"
	"github.com/rjboer/GoADI/internal/logging"
	"github.com/rjboer/GoADI/internal/telemetry"
)

const testXML = `<?xml version="1.0" encoding="utf-8"?>
<context name="emu">
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
</context>`

func newTestServer(t *testing.T) (*httptest.Server, *iio.EmuBackend, *telemetry.Hub) {
	t.Helper()
	emu, err := iio.NewEmuBackendXML([]byte(testXML))
	if err != nil {
		t.Fatalf("NewEmuBackendXML: %v", err)
	}
	c, err := iio.NewContext(context.Background(), emu)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	logger := logging.New(logging.Debug, logging.Text, io.Discard)
	hub := telemetry.NewHub(100, logger)
	srv := httptest.NewServer(New(c, hub, logger).Router())
	t.Cleanup(srv.Close)
	return srv, emu, hub
}

func do(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp, string(raw)
}

func TestListDevices(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, body := do(t, http.MethodGet, srv.URL+"/api/devices", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	var devs []DeviceInfo
	if err := json.Unmarshal([]byte(body), &devs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(devs) != 1 || devs[0].Label != "BEAM0" || len(devs[0].Channels) != 2 {
		t.Fatalf("unexpected listing %+v", devs)
	}
}

func TestAttributeRoutes(t *testing.T) {
	srv, emu, _ := newTestServer(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
		want   string
	}{
		{"device attr by label", http.MethodGet, "/api/devices/beam0/attrs/mode", "", http.StatusOK, `"rx"`},
		{"input channel", http.MethodGet, "/api/devices/adar1000/channels/voltage0/attrs/hardwaregain", "", http.StatusOK, `"12"`},
		{"output channel", http.MethodGet, "/api/devices/iio:device0/channels/voltage0/attrs/hardwaregain?output=1", "", http.StatusOK, `"64"`},
		{"missing device", http.MethodGet, "/api/devices/nope/attrs/mode", "", http.StatusNotFound, ""},
		{"missing channel", http.MethodGet, "/api/devices/beam0/channels/voltage9/attrs/phase", "", http.StatusNotFound, ""},
		{"bad output flag", http.MethodGet, "/api/devices/beam0/channels/voltage0/attrs/phase?output=maybe", "", http.StatusBadRequest, ""},
		{"set device attr", http.MethodPut, "/api/devices/beam0/attrs/mode", `{"value":"tx"}`, http.StatusOK, ""},
		{"bad body", http.MethodPut, "/api/devices/beam0/attrs/mode", `{`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, srv.URL+tt.path, tt.body)
			if resp.StatusCode != tt.code {
				t.Fatalf("status %d, want %d (%s)", resp.StatusCode, tt.code, body)
			}
			if tt.want != "" && !strings.Contains(body, tt.want) {
				t.Fatalf("body %q does not contain %s", body, tt.want)
			}
		})
	}
	if v, _ := emu.Value(iio.DeviceRef("iio:device0", "mode")); v != "tx" {
		t.Fatalf("mode = %q after PUT", v)
	}
}

func TestChannelAttrWrite(t *testing.T) {
	srv, emu, _ := newTestServer(t)
	resp, body := do(t, http.MethodPut, srv.URL+"/api/devices/beam0/channels/voltage0/attrs/hardwaregain?output=1", `{"value":"100"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	if v, _ := emu.Value(iio.ChannelRef("iio:device0", "voltage0", true, "hardwaregain")); v != "100" {
		t.Fatalf("output gain = %q", v)
	}
	if v, _ := emu.Value(iio.ChannelRef("iio:device0", "voltage0", false, "hardwaregain")); v != "12" {
		t.Fatalf("input gain changed to %q", v)
	}
}

func TestRegisterRoutes(t *testing.T) {
	srv, emu, _ := newTestServer(t)
	resp, body := do(t, http.MethodPut, srv.URL+"/api/devices/beam0/regs/0x28", `{"value":"0x2"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("write status %d: %s", resp.StatusCode, body)
	}
	if r := emu.Register("iio:device0", 0x28); r != 2 {
		t.Fatalf("register 0x28 = %#x", r)
	}
	resp, body = do(t, http.MethodGet, srv.URL+"/api/devices/beam0/regs/40", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"0x2"`) {
		t.Fatalf("read status %d: %s", resp.StatusCode, body)
	}
	resp, _ = do(t, http.MethodGet, srv.URL+"/api/devices/beam0/regs/zz", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad address status %d", resp.StatusCode)
	}
}

func TestBackendErrorIsBadGateway(t *testing.T) {
	srv, emu, _ := newTestServer(t)
	emu.FailOn(iio.DeviceRef("iio:device0", "mode"), errors.New("link down"))
	resp, _ := do(t, http.MethodGet, srv.URL+"/api/devices/beam0/attrs/mode", "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status %d, want 502", resp.StatusCode)
	}
}

func TestCalHistoryRoute(t *testing.T) {
	srv, _, hub := newTestServer(t)
	hub.Report(calib.Point{Run: "r", Stage: "coarse", Phase: 30, Power: -52})
	resp, body := do(t, http.MethodGet, srv.URL+"/api/cal/history", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var pts []calib.Point
	if err := json.Unmarshal([]byte(body), &pts); err != nil || len(pts) != 1 {
		t.Fatalf("history %q: %v", body, err)
	}
}

func TestNilDependenciesAnswerUnavailable(t *testing.T) {
	srv := httptest.NewServer(New(nil, nil, logging.New(logging.Error, logging.Text, io.Discard)).Router())
	defer srv.Close()
	for _, path := range []string{"/api/devices", "/api/cal/history"} {
		resp, _ := do(t, http.MethodGet, srv.URL+path, "")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("%s status %d", path, resp.StatusCode)
		}
	}
}
