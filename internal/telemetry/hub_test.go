package telemetry

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rjboer/GoADI/internal/calib"
	"github.com/rjboer/GoADI/internal/logging"
)

func newTestHub(limit int) *Hub {
	return NewHub(limit, logging.New(logging.Debug, logging.Text, io.Discard))
}

func TestHubHistoryLimit(t *testing.T) {
	hub := newTestHub(3)
	for i := 0; i < 5; i++ {
		hub.Report(calib.Point{Run: "a", Stage: "coarse", Phase: float64(i * 15)})
	}
	got := hub.History("")
	if len(got) != 3 {
		t.Fatalf("expected 3 points, got %d", len(got))
	}
	if got[0].Phase != 30 || got[2].Phase != 60 {
		t.Fatalf("unexpected window: %+v", got)
	}
	if got[0].Time.IsZero() {
		t.Fatal("expected Report to stamp the time")
	}
}

func TestHubHistoryFiltersRun(t *testing.T) {
	hub := newTestHub(10)
	hub.Report(calib.Point{Run: "a", Stage: "coarse"})
	hub.Report(calib.Point{Run: "b", Stage: "coarse"})
	hub.Report(calib.Point{Run: "a", Stage: "fine"})
	if got := hub.History("a"); len(got) != 2 || got[1].Stage != "fine" {
		t.Fatalf("run filter returned %+v", got)
	}
	hub.Clear()
	if got := hub.History(""); len(got) != 0 {
		t.Fatalf("expected empty history after Clear, got %d", len(got))
	}
}

func TestHubSubscribe(t *testing.T) {
	hub := newTestHub(10)
	ch, cancel := hub.Subscribe()
	hub.Report(calib.Point{Stage: "fine", Element: 4})
	select {
	case p := <-ch:
		if p.Element != 4 {
			t.Fatalf("unexpected point %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("no point delivered")
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after cancel")
	}
	// reporting with no subscribers must not block
	hub.Report(calib.Point{Stage: "fine"})
}

func TestHubFollowSplitsHistoryAndLive(t *testing.T) {
	hub := newTestHub(10)
	hub.Report(calib.Point{Run: "a", Stage: "coarse", Phase: 0})
	hub.Report(calib.Point{Run: "b", Stage: "coarse", Phase: 5})
	past, ch, cancel := hub.Follow("a")
	defer cancel()
	hub.Report(calib.Point{Run: "a", Stage: "fine", Phase: 10})

	if len(past) != 1 || past[0].Phase != 0 {
		t.Fatalf("snapshot = %+v", past)
	}
	select {
	case p := <-ch:
		if p.Phase != 10 {
			t.Fatalf("live point %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("no point delivered")
	}
	select {
	case p := <-ch:
		t.Fatalf("unexpected extra point %+v", p)
	default:
	}
}

func TestMultiReporter(t *testing.T) {
	a, b := newTestHub(5), newTestHub(5)
	MultiReporter{a, nil, b}.Report(calib.Point{Stage: "x"})
	if len(a.History("")) != 1 || len(b.History("")) != 1 {
		t.Fatal("expected both hubs to receive the point")
	}
}

func TestHandleSetConfig(t *testing.T) {
	hub := newTestHub(10)
	for i := 0; i < 8; i++ {
		hub.Report(calib.Point{Phase: float64(i)})
	}

	tests := []struct {
		name string
		body string
		code int
	}{
		{"valid", `{"historyLimit":4}`, http.StatusOK},
		{"too large", `{"historyLimit":1000000}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/cal/config", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			hub.HandleSetConfig(rr, req)
			if rr.Code != tt.code {
				t.Fatalf("expected %d, got %d (%s)", tt.code, rr.Code, rr.Body.String())
			}
		})
	}
	if got := hub.ConfigSnapshot().HistoryLimit; got != 4 {
		t.Fatalf("expected limit 4, got %d", got)
	}
	if got := len(hub.History("")); got != 4 {
		t.Fatalf("expected history trimmed to 4, got %d", got)
	}
}

func TestHandleHistory(t *testing.T) {
	hub := newTestHub(10)
	hub.Report(calib.Point{Run: "r1", Stage: "coarse", Power: -40})
	rr := httptest.NewRecorder()
	hub.HandleHistory(rr, httptest.NewRequest(http.MethodGet, "/api/cal/history?run=r1", nil))
	var pts []calib.Point
	if err := json.NewDecoder(rr.Body).Decode(&pts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(pts) != 1 || pts[0].Power != -40 {
		t.Fatalf("unexpected history %+v", pts)
	}
}

func TestHandleLiveWebsocket(t *testing.T) {
	hub := newTestHub(10)
	hub.Report(calib.Point{Stage: "coarse", Phase: 15})

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleLive))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first struct {
		Type string        `json:"type"`
		Data []calib.Point `json:"data"`
	}
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read history: %v", err)
	}
	if first.Type != "history" || len(first.Data) != 1 {
		t.Fatalf("unexpected first message %+v", first)
	}

	// the handler subscribes before sending history, so this point is live
	hub.Report(calib.Point{Stage: "fine", Phase: 16})
	var next struct {
		Type string      `json:"type"`
		Data calib.Point `json:"data"`
	}
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read point: %v", err)
	}
	if next.Type != "point" || next.Data.Phase != 16 {
		t.Fatalf("unexpected live message %+v", next)
	}
}

func TestHandleLiveFiltersRun(t *testing.T) {
	hub := newTestHub(10)
	hub.Report(calib.Point{Run: "a", Stage: "coarse", Phase: 15})
	hub.Report(calib.Point{Run: "b", Stage: "coarse", Phase: 30})

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleLive))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?run=a"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first struct {
		Type string        `json:"type"`
		Data []calib.Point `json:"data"`
	}
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read history: %v", err)
	}
	if len(first.Data) != 1 || first.Data[0].Run != "a" {
		t.Fatalf("history not filtered: %+v", first.Data)
	}

	hub.Report(calib.Point{Run: "b", Stage: "fine", Phase: 31})
	hub.Report(calib.Point{Run: "a", Stage: "fine", Phase: 16})
	var next struct {
		Type string      `json:"type"`
		Data calib.Point `json:"data"`
	}
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read point: %v", err)
	}
	if next.Data.Run != "a" || next.Data.Phase != 16 {
		t.Fatalf("live point from another run: %+v", next.Data)
	}
}
