// Package telemetry collects calibration sweep points and fans them out to
// live subscribers (websocket clients, log output).
package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rjboer/GoADI/internal/calib"
	"github.com/rjboer/GoADI/internal/logging"
)

// Config is the runtime configuration exposed by the hub.
type Config struct {
	HistoryLimit int `json:"historyLimit"`
}

const (
	minHistoryLimit = 1
	maxHistoryLimit = 100_000
)

func defaultConfig() Config {
	return Config{HistoryLimit: 2000}
}

func validateConfig(cfg Config, base Config) (Config, error) {
	if base.HistoryLimit == 0 {
		base = defaultConfig()
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = base.HistoryLimit
	}
	if cfg.HistoryLimit < minHistoryLimit || cfg.HistoryLimit > maxHistoryLimit {
		return Config{}, fmt.Errorf("history limit must be between %d and %d", minHistoryLimit, maxHistoryLimit)
	}
	return cfg, nil
}

// Hub keeps a bounded history of sweep points and forwards new points to
// subscribers. It implements calib.Reporter.
type Hub struct {
	mu          sync.RWMutex
	history     []calib.Point
	config      Config
	subscribers map[chan calib.Point]struct{}
	logger      logging.Logger
}

var _ calib.Reporter = (*Hub)(nil)

// NewHub builds a hub that keeps at most historyLimit points.
func NewHub(historyLimit int, logger logging.Logger) *Hub {
	cfg, err := validateConfig(Config{HistoryLimit: historyLimit}, defaultConfig())
	if err != nil {
		cfg = defaultConfig()
	}
	return &Hub{
		config:      cfg,
		subscribers: make(map[chan calib.Point]struct{}),
		logger:      logging.Or(logger).With(logging.F("subsystem", "telemetry")),
	}
}

// Report records p and forwards it. Slow subscribers miss points rather than
// blocking the sweep.
func (h *Hub) Report(p calib.Point) {
	if p.Time.IsZero() {
		p.Time = time.Now()
	}
	h.mu.Lock()
	h.history = append(h.history, p)
	if len(h.history) > h.config.HistoryLimit {
		h.history = h.history[len(h.history)-h.config.HistoryLimit:]
	}
	for ch := range h.subscribers {
		select {
		case ch <- p:
		default:
			h.logger.Debug("subscriber dropped point", logging.F("stage", p.Stage))
		}
	}
	h.mu.Unlock()
}

// History returns a copy of the stored points. A non-empty run filters by run id.
func (h *Hub) History(run string) []calib.Point {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.historyLocked(run)
}

func (h *Hub) historyLocked(run string) []calib.Point {
	out := make([]calib.Point, 0, len(h.history))
	for _, p := range h.history {
		if run == "" || p.Run == run {
			out = append(out, p)
		}
	}
	return out
}

// Clear drops the stored history.
func (h *Hub) Clear() {
	h.mu.Lock()
	h.history = nil
	h.mu.Unlock()
}

// ConfigSnapshot returns the current configuration.
func (h *Hub) ConfigSnapshot() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// SetConfig validates and applies cfg, trimming the history if needed.
func (h *Hub) SetConfig(cfg Config) (Config, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cfg, err := validateConfig(cfg, h.config)
	if err != nil {
		return Config{}, err
	}
	h.config = cfg
	if len(h.history) > cfg.HistoryLimit {
		h.history = h.history[len(h.history)-cfg.HistoryLimit:]
	}
	return cfg, nil
}

// Subscribe registers a listener for live points. The returned func
// unregisters it and closes the channel.
func (h *Hub) Subscribe() (<-chan calib.Point, func()) {
	_, ch, cancel := h.follow("", false)
	return ch, cancel
}

// Follow subscribes and snapshots the history of run in one step, so every
// point shows up either in the snapshot or on the channel, never both.
func (h *Hub) Follow(run string) ([]calib.Point, <-chan calib.Point, func()) {
	return h.follow(run, true)
}

func (h *Hub) follow(run string, snapshot bool) ([]calib.Point, <-chan calib.Point, func()) {
	ch := make(chan calib.Point, 64)
	var past []calib.Point
	h.mu.Lock()
	if snapshot {
		past = h.historyLocked(run)
	}
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
	return past, ch, cancel
}

// MultiReporter fans points out to several reporters.
type MultiReporter []calib.Reporter

var _ calib.Reporter = MultiReporter(nil)

func (m MultiReporter) Report(p calib.Point) {
	for _, r := range m {
		if r != nil {
			r.Report(p)
		}
	}
}

// HandleHistory serves the stored points as JSON. ?run= filters by run id.
func (h *Hub) HandleHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.History(r.URL.Query().Get("run")))
}

// HandleGetConfig serves the hub configuration.
func (h *Hub) HandleGetConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.ConfigSnapshot())
}

// HandleSetConfig decodes a Config body and applies it.
func (h *Hub) HandleSetConfig(w http.ResponseWriter, r *http.Request) {
	var incoming Config
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		http.Error(w, fmt.Sprintf("invalid config payload: %v", err), http.StatusBadRequest)
		return
	}
	cfg, err := h.SetConfig(incoming)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cfg)
}
