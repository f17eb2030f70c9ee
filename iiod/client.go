package iiod

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"

	"github.com/rjboer/GoADI/internal/logging"
)

// DefaultPort is the TCP port iiod listens on.
const DefaultPort = 30431

const defaultTimeout = 5 * time.Second

// Client is a single iiod session speaking the text command set.
// Commands are serialised; a Client is safe for concurrent use.
type Client struct {
	mu      sync.Mutex
	rw      io.ReadWriteCloser
	conn    net.Conn // nil for serial transports
	reader  *bufio.Reader
	addr    string
	timeout time.Duration
	logger  logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-command I/O timeout. Zero disables deadlines.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient wraps an already established transport.
func NewClient(rw io.ReadWriteCloser, opts ...Option) *Client {
	c := &Client{
		rw:      rw,
		reader:  bufio.NewReader(rw),
		timeout: defaultTimeout,
	}
	if conn, ok := rw.(net.Conn); ok {
		c.conn = conn
		c.addr = conn.RemoteAddr().String()
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.Or(c.logger).With(logging.F("component", "iiod"))
	return c
}

// Dial connects to iiod over TCP. addr is "host" or "host:port"; the default
// port is added when missing. Connection attempts are retried with exponential
// backoff until the client timeout elapses or ctx ends.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	addr = withDefaultPort(addr)

	probe := &Client{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(probe)
	}
	maxElapsed := probe.timeout
	if maxElapsed <= 0 {
		maxElapsed = defaultTimeout
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Second,
		MaxElapsedTime:      maxElapsed,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	var conn net.Conn
	op := func() error {
		d := net.Dialer{Timeout: 3 * time.Second}
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("connect to iiod at %s: %w", addr, err)
	}

	c := NewClient(conn, opts...)
	c.logger.Debug("connected", logging.F("addr", addr))
	return c, nil
}

// DialSerial opens an iiod session on a serial port.
func DialSerial(path string, baud int, opts ...Option) (*Client, error) {
	if baud <= 0 {
		baud = 115200
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        path,
		Baud:        baud,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: defaultTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", path, err)
	}
	c := NewClient(port, opts...)
	c.addr = fmt.Sprintf("%s,%d", path, baud)
	return c, nil
}

func withDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(strings.Trim(addr, "[]"), strconv.Itoa(DefaultPort))
}

// Addr returns the remote address or serial port description.
func (c *Client) Addr() string { return c.addr }

// Close sends EXIT and closes the transport.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rw == nil {
		return nil
	}
	if c.conn != nil {
		_ = c.conn.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
	}
	_, _ = io.WriteString(c.rw, "EXIT\r\n")
	err := c.rw.Close()
	c.rw = nil
	return err
}

// ---------- framing ----------

func (c *Client) applyDeadline(ctx context.Context) {
	if c.conn == nil {
		return
	}
	var deadline time.Time
	if c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = c.conn.SetDeadline(deadline)
}

func (c *Client) begin(ctx context.Context) error {
	if c.rw == nil {
		return fmt.Errorf("iiod: client closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.applyDeadline(ctx)
	return nil
}

func (c *Client) writeLine(cmd string) error {
	c.logger.Debug("command", logging.F("cmd", cmd))
	if _, err := io.WriteString(c.rw, cmd+"\r\n"); err != nil {
		return fmt.Errorf("write %q: %w", firstWord(cmd), err)
	}
	return nil
}

func (c *Client) readLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readInteger reads one integer status line. Blank lines are skipped, as
// libiio's iiod_client_read_integer does.
func (c *Client) readInteger() (int, error) {
	for {
		line, err := c.readLine()
		if err != nil {
			return 0, fmt.Errorf("read status: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		v, err := strconv.Atoi(line)
		if err != nil {
			return 0, fmt.Errorf("parse integer %q: %w", line, err)
		}
		return v, nil
	}
}

// readRaw reads exactly n bytes with no trailer. READBUF sample chunks are
// framed this way.
func (c *Client) readRaw(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.reader, buf); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes: %w", n, err)
	}
	return buf, nil
}

// readPayload reads n framed bytes followed by the trailing newline.
func (c *Client) readPayload(n int) ([]byte, error) {
	buf, err := c.readRaw(n)
	if err != nil {
		return nil, err
	}
	if b, err := c.reader.ReadByte(); err == nil && b != '\n' {
		_ = c.reader.UnreadByte()
	}
	return buf, nil
}

// exec sends cmd and returns the integer reply, mapping negative values to Errno.
func (c *Client) exec(ctx context.Context, cmd string) (int, error) {
	if err := c.begin(ctx); err != nil {
		return 0, err
	}
	if err := c.writeLine(cmd); err != nil {
		return 0, err
	}
	status, err := c.readInteger()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", firstWord(cmd), err)
	}
	if err := statusErr(status); err != nil {
		return status, fmt.Errorf("%s: %w", firstWord(cmd), err)
	}
	return status, nil
}

func firstWord(cmd string) string {
	if i := strings.IndexByte(cmd, ' '); i > 0 {
		return cmd[:i]
	}
	return cmd
}
