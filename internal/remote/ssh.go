package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/rjboer/GoADI/internal/logging"
)

// Config describes an SSH target, typically the ARM host of an ADI carrier board.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	KeyPath  string
	Timeout  time.Duration
}

// ExitError reports a remote command that finished with a non-zero status.
type ExitError struct {
	Cmd    string
	Status int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("remote command %q exited with status %d", e.Cmd, e.Status)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Client runs shell commands on a remote host. The underlying SSH connection is
// established lazily and reused.
type Client struct {
	mu     sync.Mutex
	cfg    Config
	client *ssh.Client
	logger logging.Logger
}

// New validates cfg and fills in defaults without connecting.
func New(cfg Config, logger logging.Logger) (*Client, error) {
	cfg.Host = strings.TrimPrefix(cfg.Host, "ip:")
	if cfg.Host == "" {
		return nil, errors.New("ssh host is required")
	}
	if h, p, err := net.SplitHostPort(cfg.Host); err == nil {
		cfg.Host = h
		if cfg.Port == 0 {
			if n, err := strconv.Atoi(p); err == nil {
				cfg.Port = n
			}
		}
	}
	if cfg.User == "" {
		cfg.User = "root"
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{cfg: cfg, logger: logging.Or(logger).With(logging.F("component", "ssh"), logging.F("host", cfg.Host))}, nil
}

// Dial creates a Client and connects immediately.
func Dial(ctx context.Context, cfg Config, logger logging.Logger) (*Client, error) {
	c, err := New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if _, err := c.dial(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Addr returns host:port.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

func (c *Client) dial(ctx context.Context) (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	auth := []ssh.AuthMethod{}
	if c.cfg.Password != "" {
		auth = append(auth, ssh.Password(c.cfg.Password))
	}
	if c.cfg.KeyPath != "" {
		key, err := os.ReadFile(c.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, errors.New("no ssh password or key configured")
	}

	config := &ssh.ClientConfig{
		User:            c.cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.cfg.Timeout,
	}

	addr := c.Addr()
	dialer := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial ssh: %w", err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create ssh client: %w", err)
	}

	c.client = ssh.NewClient(clientConn, chans, reqs)
	c.logger.Debug("ssh connected", logging.F("addr", addr))
	return c.client, nil
}

// Close drops the SSH connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// Run executes cmd and streams its output. A non-zero exit status is returned
// as *ExitError. Cancelling ctx kills the remote command.
func (c *Client) Run(ctx context.Context, cmd string, stdout, stderr io.Writer) error {
	client, err := c.dial(ctx)
	if err != nil {
		return err
	}

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("create ssh session: %w", err)
	}
	defer session.Close()

	var errBuf bytes.Buffer
	session.Stdout = stdout
	if stderr != nil {
		session.Stderr = io.MultiWriter(stderr, &errBuf)
	} else {
		session.Stderr = &errBuf
	}

	c.logger.Debug("ssh run", logging.F("cmd", cmd))
	if err := session.Start(cmd); err != nil {
		return fmt.Errorf("start %q: %w", cmd, err)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- session.Wait() }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		session.Close()
		return ctx.Err()
	case err := <-waitErr:
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Cmd: cmd, Status: exitErr.ExitStatus(), Stderr: errBuf.String()}
		}
		if err != nil {
			return fmt.Errorf("run %q: %w", cmd, err)
		}
		return nil
	}
}

// Output runs cmd and returns its standard output.
func (c *Client) Output(ctx context.Context, cmd string) ([]byte, error) {
	var out bytes.Buffer
	if err := c.Run(ctx, cmd, &out, nil); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// ReadFile returns the contents of a remote file.
func (c *Client) ReadFile(ctx context.Context, path string) ([]byte, error) {
	out, err := c.Output(ctx, "cat "+ShellQuote(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

// WriteFile replaces the contents of a remote file. printf keeps the shell
// from interpreting the value.
func (c *Client) WriteFile(ctx context.Context, path string, data []byte) error {
	cmd := fmt.Sprintf("printf '%%s' %s > %s", ShellQuote(string(data)), ShellQuote(path))
	if err := c.Run(ctx, cmd, io.Discard, nil); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadDir lists a remote directory. Directory names, including symlinked ones, carry a trailing slash.
func (c *Client) ReadDir(ctx context.Context, path string) ([]string, error) {
	out, err := c.Output(ctx, "ls -1pL "+ShellQuote(path))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// IsFile reports whether path is a regular file on the remote host.
func (c *Client) IsFile(ctx context.Context, path string) (bool, error) {
	out, err := c.Output(ctx, fmt.Sprintf("test -f %s; echo $?", ShellQuote(path)))
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(out)) == "0", nil
}

// ShellQuote wraps value in single quotes with embedded quotes escaped.
func ShellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
