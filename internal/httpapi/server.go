// Package httpapi exposes an IIO context and the calibration telemetry over
// HTTP with JSON bodies.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/rjboer/GoADI/internal/iio"
	"github.com/rjboer/GoADI/internal/logging"
	"github.com/rjboer/GoADI/internal/telemetry"
)

// Value is the body of attribute and register requests.
type Value struct {
	Value string `json:"value"`
}

// ChannelInfo describes one channel in the device listing.
type ChannelInfo struct {
	ID     string   `json:"id"`
	Name   string   `json:"name,omitempty"`
	Output bool     `json:"output"`
	Attrs  []string `json:"attrs"`
}

// DeviceInfo describes one device in the device listing.
type DeviceInfo struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Label    string        `json:"label,omitempty"`
	Attrs    []string      `json:"attrs"`
	Debug    []string      `json:"debug,omitempty"`
	Channels []ChannelInfo `json:"channels"`
}

// Server wires the HTTP routes to a context and a telemetry hub. Either may
// be nil, in which case its routes answer 503.
type Server struct {
	ctx    *iio.Context
	hub    *telemetry.Hub
	logger logging.Logger
}

// New builds a Server.
func New(c *iio.Context, hub *telemetry.Hub, logger logging.Logger) *Server {
	return &Server{ctx: c, hub: hub, logger: logging.Or(logger).With(logging.F("subsystem", "http"))}
}

// Router returns the route table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api/devices", func(r chi.Router) {
		r.Use(s.needContext)
		r.Get("/", s.listDevices)
		r.Route("/{dev}", func(r chi.Router) {
			r.Get("/attrs/{attr}", s.getDeviceAttr)
			r.Put("/attrs/{attr}", s.setDeviceAttr)
			r.Get("/channels/{ch}/attrs/{attr}", s.getChannelAttr)
			r.Put("/channels/{ch}/attrs/{attr}", s.setChannelAttr)
			r.Get("/regs/{addr}", s.readReg)
			r.Put("/regs/{addr}", s.writeReg)
		})
	})
	r.Route("/api/cal", func(r chi.Router) {
		r.Use(s.needHub)
		r.Get("/history", func(w http.ResponseWriter, r *http.Request) { s.hub.HandleHistory(w, r) })
		r.Get("/live", func(w http.ResponseWriter, r *http.Request) { s.hub.HandleLive(w, r) })
		r.Get("/config", func(w http.ResponseWriter, r *http.Request) { s.hub.HandleGetConfig(w, r) })
		r.Put("/config", func(w http.ResponseWriter, r *http.Request) { s.hub.HandleSetConfig(w, r) })
	})
	return r
}

// ListenAndServe serves the router on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown", logging.Err(err))
		}
	}()
	s.logger.Info("http server listening", logging.F("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			logging.F("method", r.Method),
			logging.F("path", r.URL.Path),
			logging.F("status", ww.Status()),
			logging.F("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) needContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.ctx == nil {
			http.Error(w, "no IIO context", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) needHub(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.hub == nil {
			http.Error(w, "telemetry disabled", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	code := http.StatusBadGateway
	switch {
	case errors.Is(err, iio.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, iio.ErrInvalidValue):
		code = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	if code == http.StatusBadGateway {
		s.logger.Warn("backend error", logging.Err(err))
	}
	http.Error(w, err.Error(), code)
}

func decodeValue(r *http.Request) (string, error) {
	defer r.Body.Close()
	var v Value
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		return "", fmt.Errorf("%w: %v", iio.ErrInvalidValue, err)
	}
	return v.Value, nil
}

func (s *Server) device(r *http.Request) (*iio.Device, error) {
	return s.ctx.Device(chi.URLParam(r, "dev"))
}

func (s *Server) listDevices(w http.ResponseWriter, _ *http.Request) {
	devs := s.ctx.Devices()
	out := make([]DeviceInfo, 0, len(devs))
	for _, d := range devs {
		info := DeviceInfo{ID: d.ID, Name: d.Name, Label: d.Label, Attrs: d.AttrNames, Debug: d.DebugAttrNames}
		for _, ch := range d.Channels {
			info.Channels = append(info.Channels, ChannelInfo{ID: ch.ID, Name: ch.Name, Output: ch.Output, Attrs: ch.AttrNames})
		}
		out = append(out, info)
	}
	writeJSON(w, out)
}

func (s *Server) getDeviceAttr(w http.ResponseWriter, r *http.Request) {
	d, err := s.device(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	v, err := d.Attr(r.Context(), chi.URLParam(r, "attr"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, Value{Value: v})
}

func (s *Server) setDeviceAttr(w http.ResponseWriter, r *http.Request) {
	d, err := s.device(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	v, err := decodeValue(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := d.SetAttr(r.Context(), chi.URLParam(r, "attr"), v); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// channel resolves {ch}; ?output=1 selects the output direction.
func (s *Server) channel(r *http.Request) (*iio.Channel, error) {
	d, err := s.device(r)
	if err != nil {
		return nil, err
	}
	output := false
	if raw := r.URL.Query().Get("output"); raw != "" {
		b, ok := iio.ParseBool(raw)
		if !ok {
			return nil, fmt.Errorf("%w: output=%q", iio.ErrInvalidValue, raw)
		}
		output = b
	}
	return d.Channel(chi.URLParam(r, "ch"), output)
}

func (s *Server) getChannelAttr(w http.ResponseWriter, r *http.Request) {
	ch, err := s.channel(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	v, err := ch.Attr(r.Context(), chi.URLParam(r, "attr"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, Value{Value: v})
}

func (s *Server) setChannelAttr(w http.ResponseWriter, r *http.Request) {
	ch, err := s.channel(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	v, err := decodeValue(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := ch.SetAttr(r.Context(), chi.URLParam(r, "attr"), v); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func parseReg(raw string) (uint32, error) {
	v, err := strconv.ParseUint(raw, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: register %q", iio.ErrInvalidValue, raw)
	}
	return uint32(v), nil
}

func (s *Server) readReg(w http.ResponseWriter, r *http.Request) {
	d, err := s.device(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	addr, err := parseReg(chi.URLParam(r, "addr"))
	if err != nil {
		s.fail(w, err)
		return
	}
	v, err := d.RegRead(r.Context(), addr)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, Value{Value: fmt.Sprintf("0x%X", v)})
}

func (s *Server) writeReg(w http.ResponseWriter, r *http.Request) {
	d, err := s.device(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	addr, err := parseReg(chi.URLParam(r, "addr"))
	if err != nil {
		s.fail(w, err)
		return
	}
	raw, err := decodeValue(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	val, err := parseReg(raw)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := d.RegWrite(r.Context(), addr, val); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
