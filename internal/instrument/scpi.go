// Package instrument drives LAN bench instruments over raw SCPI sockets.
package instrument

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/time/rate"

	"github.com/rjboer/GoADI/internal/logging"
)

// DefaultPort is the SCPI raw socket port.
const DefaultPort = 5025

const (
	defaultTimeout  = 5 * time.Second
	defaultInterval = 10 * time.Millisecond
)

// ErrorReply is a non-zero entry popped from the instrument error queue.
type ErrorReply struct {
	Code    int
	Message string
}

func (e *ErrorReply) Error() string {
	return fmt.Sprintf("instrument error %d: %s", e.Code, e.Message)
}

// SCPI is a newline terminated command session. Commands are serialised and
// paced so slow instruments are not flooded.
type SCPI struct {
	mu      sync.Mutex
	conn    io.ReadWriteCloser
	nc      net.Conn
	reader  *bufio.Reader
	limiter *rate.Limiter
	timeout time.Duration
	addr    string
	logger  logging.Logger
}

// Option configures an SCPI session.
type Option func(*SCPI)

// WithTimeout sets the per-command deadline.
func WithTimeout(d time.Duration) Option { return func(s *SCPI) { s.timeout = d } }

// WithInterval sets the minimum spacing between commands. Zero disables pacing.
func WithInterval(d time.Duration) Option {
	return func(s *SCPI) {
		if d <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		s.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) Option { return func(s *SCPI) { s.logger = l } }

// New wraps an established transport.
func New(rw io.ReadWriteCloser, opts ...Option) *SCPI {
	s := &SCPI{
		conn:    rw,
		reader:  bufio.NewReader(rw),
		limiter: rate.NewLimiter(rate.Every(defaultInterval), 1),
		timeout: defaultTimeout,
	}
	if nc, ok := rw.(net.Conn); ok {
		s.nc = nc
		s.addr = nc.RemoteAddr().String()
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Or(s.logger).With(logging.F("component", "scpi"))
	return s
}

// Dial connects to host or host:port, retrying with exponential backoff until
// the timeout elapses.
func Dial(ctx context.Context, addr string, opts ...Option) (*SCPI, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(DefaultPort))
	}
	probe := &SCPI{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(probe)
	}
	maxElapsed := probe.timeout
	if maxElapsed <= 0 {
		maxElapsed = defaultTimeout
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     50 * time.Millisecond,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         time.Second,
		MaxElapsedTime:      maxElapsed,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	var conn net.Conn
	op := func() error {
		d := net.Dialer{Timeout: 2 * time.Second}
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("connect to instrument at %s: %w", addr, err)
	}
	s := New(conn, opts...)
	s.logger.Debug("connected", logging.F("addr", addr))
	return s, nil
}

// Addr returns the remote address.
func (s *SCPI) Addr() string { return s.addr }

// Close closes the socket.
func (s *SCPI) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *SCPI) begin(ctx context.Context) error {
	if s.conn == nil {
		return errors.New("scpi: session closed")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if s.nc != nil {
		var deadline time.Time
		if s.timeout > 0 {
			deadline = time.Now().Add(s.timeout)
		}
		if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
			deadline = d
		}
		_ = s.nc.SetDeadline(deadline)
	}
	return nil
}

func (s *SCPI) send(cmd string) error {
	s.logger.Debug("scpi write", logging.F("cmd", cmd))
	if _, err := io.WriteString(s.conn, cmd+"\n"); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}
	return nil
}

// Write sends one or more commands joined by ";".
func (s *SCPI) Write(ctx context.Context, cmds ...string) error {
	if len(cmds) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx); err != nil {
		return err
	}
	return s.send(strings.Join(cmds, ";"))
}

// Query sends cmd and returns the reply line without its terminator.
func (s *SCPI) Query(ctx context.Context, cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx); err != nil {
		return "", err
	}
	if err := s.send(cmd); err != nil {
		return "", err
	}
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read reply to %q: %w", cmd, err)
	}
	return strings.TrimSpace(line), nil
}

// QueryFloat parses the reply as a float.
func (s *SCPI) QueryFloat(ctx context.Context, cmd string) (float64, error) {
	reply, err := s.Query(ctx, cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, fmt.Errorf("parse reply to %q: %w", cmd, err)
	}
	return v, nil
}

// QueryInt parses the reply as an integer. Replies such as "+1" are accepted.
func (s *SCPI) QueryInt(ctx context.Context, cmd string) (int, error) {
	reply, err := s.Query(ctx, cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimPrefix(reply, "+"))
	if err != nil {
		return 0, fmt.Errorf("parse reply to %q: %w", cmd, err)
	}
	return v, nil
}

// QueryBool parses 0/1 and OFF/ON replies.
func (s *SCPI) QueryBool(ctx context.Context, cmd string) (bool, error) {
	reply, err := s.Query(ctx, cmd)
	if err != nil {
		return false, err
	}
	switch strings.ToUpper(reply) {
	case "1", "+1", "ON":
		return true, nil
	case "0", "+0", "OFF":
		return false, nil
	}
	return false, fmt.Errorf("parse reply to %q: unexpected %q", cmd, reply)
}

// IDN returns the identification string.
func (s *SCPI) IDN(ctx context.Context) (string, error) { return s.Query(ctx, "*IDN?") }

// Reset sends *RST.
func (s *SCPI) Reset(ctx context.Context) error { return s.Write(ctx, "*RST") }

// Clear sends *CLS.
func (s *SCPI) Clear(ctx context.Context) error { return s.Write(ctx, "*CLS") }

// Remote puts the front panel in remote mode.
func (s *SCPI) Remote(ctx context.Context) error { return s.Write(ctx, "SYST:REM") }

// Local returns control to the front panel.
func (s *SCPI) Local(ctx context.Context) error { return s.Write(ctx, "SYST:LOC") }

// WaitOPC polls *OPC? until the instrument reports completion or ctx ends.
func (s *SCPI) WaitOPC(ctx context.Context) error {
	for {
		v, err := s.QueryInt(ctx, "*OPC?")
		if err != nil {
			return err
		}
		if v == 1 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// PopError reads one entry of the error queue. A zero code returns nil.
func (s *SCPI) PopError(ctx context.Context) error {
	reply, err := s.Query(ctx, "SYST:ERR?")
	if err != nil {
		return err
	}
	return parseErrorReply(reply)
}

// parseErrorReply decodes `+0,"No error"` style entries.
func parseErrorReply(reply string) error {
	codeStr, msg, _ := strings.Cut(reply, ",")
	code, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(codeStr), "+"))
	if err != nil {
		return fmt.Errorf("parse error queue entry %q: %w", reply, err)
	}
	if code == 0 {
		return nil
	}
	return &ErrorReply{Code: code, Message: strings.Trim(strings.TrimSpace(msg), `"`)}
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
