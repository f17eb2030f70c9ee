package iiod

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AttrKind selects which attribute namespace a READ/WRITE targets.
type AttrKind int

const (
	DeviceAttr AttrKind = iota
	ChannelAttr
	DebugAttr
	BufferAttr
)

// Target identifies the owner of an attribute.
type Target struct {
	Device  string
	Channel string
	Output  bool
	Kind    AttrKind
}

// DeviceTarget, ChannelTarget and DebugTarget are convenience constructors.
func DeviceTarget(dev string) Target { return Target{Device: dev, Kind: DeviceAttr} }

func ChannelTarget(dev, ch string, output bool) Target {
	return Target{Device: dev, Channel: ch, Output: output, Kind: ChannelAttr}
}

func DebugTarget(dev string) Target { return Target{Device: dev, Kind: DebugAttr} }

func (t Target) prefix() (string, error) {
	if t.Device == "" {
		return "", errors.New("device is required")
	}
	switch t.Kind {
	case DeviceAttr:
		return t.Device, nil
	case ChannelAttr:
		if t.Channel == "" {
			return "", errors.New("channel is required")
		}
		dir := "INPUT"
		if t.Output {
			dir = "OUTPUT"
		}
		return fmt.Sprintf("%s %s %s", t.Device, dir, t.Channel), nil
	case DebugAttr:
		return t.Device + " DEBUG", nil
	case BufferAttr:
		return t.Device + " BUFFER", nil
	default:
		return "", fmt.Errorf("unknown attribute kind %d", t.Kind)
	}
}

// Version is the iiod server version.
type Version struct {
	Major int
	Minor int
	Git   string
}

func (v Version) String() string { return fmt.Sprintf("%d.%d (%s)", v.Major, v.Minor, v.Git) }

// Version queries the server version. The reply is "major.minor.git".
func (c *Client) Version(ctx context.Context) (Version, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx); err != nil {
		return Version{}, err
	}
	if err := c.writeLine("VERSION"); err != nil {
		return Version{}, err
	}
	line, err := c.readLine()
	if err != nil {
		return Version{}, fmt.Errorf("VERSION: %w", err)
	}
	return parseVersion(line)
}

func parseVersion(line string) (Version, error) {
	parts := strings.SplitN(strings.TrimSpace(line), ".", 3)
	if len(parts) < 2 {
		return Version{}, fmt.Errorf("invalid version reply %q", line)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return Version{}, fmt.Errorf("invalid version reply %q", line)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return Version{}, fmt.Errorf("invalid version reply %q", line)
	}
	v := Version{Major: major, Minor: minor}
	if len(parts) == 3 {
		v.Git = strings.TrimSpace(parts[2])
	}
	return v, nil
}

// PrintXML returns the context XML.
func (c *Client) PrintXML(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.exec(ctx, "PRINT")
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.New("PRINT returned an empty context")
	}
	return c.readPayload(n)
}

// ReadAttr reads an attribute value. Trailing NUL and newline bytes are removed.
func (c *Client) ReadAttr(ctx context.Context, t Target, attr string) (string, error) {
	prefix, err := t.prefix()
	if err != nil {
		return "", err
	}
	if attr == "" {
		return "", errors.New("attribute name is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.exec(ctx, fmt.Sprintf("READ %s %s", prefix, attr))
	if err != nil {
		return "", fmt.Errorf("read %s %s: %w", prefix, attr, err)
	}
	payload, err := c.readPayload(n)
	if err != nil {
		return "", fmt.Errorf("read %s %s: %w", prefix, attr, err)
	}
	return strings.TrimRight(string(payload), "\x00\r\n"), nil
}

// WriteAttr writes an attribute value and returns the number of bytes accepted.
func (c *Client) WriteAttr(ctx context.Context, t Target, attr, value string) (int, error) {
	prefix, err := t.prefix()
	if err != nil {
		return 0, err
	}
	if attr == "" {
		return 0, errors.New("attribute name is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx); err != nil {
		return 0, err
	}
	cmd := fmt.Sprintf("WRITE %s %s %d", prefix, attr, len(value))
	if err := c.writeLine(cmd); err != nil {
		return 0, err
	}
	if _, err := c.rw.Write([]byte(value)); err != nil {
		return 0, fmt.Errorf("write %s %s payload: %w", prefix, attr, err)
	}
	status, err := c.readInteger()
	if err != nil {
		return 0, fmt.Errorf("write %s %s: %w", prefix, attr, err)
	}
	if err := statusErr(status); err != nil {
		return 0, fmt.Errorf("write %s %s: %w", prefix, attr, err)
	}
	return status, nil
}

// SetTimeout sets the server-side I/O timeout.
func (c *Client) SetTimeout(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.exec(ctx, fmt.Sprintf("TIMEOUT %d", d.Milliseconds()))
	return err
}

// OpenBuffer opens a capture or playback buffer. mask holds the channel enable
// words, least significant word first, as libiio stores them.
func (c *Client) OpenBuffer(ctx context.Context, dev string, samples int, mask []uint32, cyclic bool) error {
	if dev == "" {
		return errors.New("device name is required")
	}
	if samples <= 0 {
		return errors.New("sample count must be positive")
	}
	if len(mask) == 0 {
		return errors.New("channel mask is required")
	}
	var sb strings.Builder
	for i := len(mask) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "%08x", mask[i])
	}
	cmd := fmt.Sprintf("OPEN %s %d %s", dev, samples, sb.String())
	if cyclic {
		cmd += " CYCLIC"
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.exec(ctx, cmd)
	return err
}

// ReadBuffer reads nbytes of sample data from an open buffer. The server
// answers in chunks; the first chunk carries the active channel mask line.
func (c *Client) ReadBuffer(ctx context.Context, dev string, nbytes int) ([]byte, error) {
	if dev == "" {
		return nil, errors.New("device name is required")
	}
	if nbytes <= 0 {
		return nil, errors.New("byte count must be positive")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx); err != nil {
		return nil, err
	}
	if err := c.writeLine(fmt.Sprintf("READBUF %s %d", dev, nbytes)); err != nil {
		return nil, err
	}

	out := make([]byte, 0, nbytes)
	maskRead := false
	for len(out) < nbytes {
		n, err := c.readInteger()
		if err != nil {
			return out, fmt.Errorf("READBUF: %w", err)
		}
		if err := statusErr(n); err != nil {
			return out, fmt.Errorf("READBUF: %w", err)
		}
		if n == 0 {
			break
		}
		if !maskRead {
			if _, err := c.readLine(); err != nil {
				return out, fmt.Errorf("READBUF mask: %w", err)
			}
			maskRead = true
		}
		chunk, err := c.readRaw(n)
		if err != nil {
			return out, fmt.Errorf("READBUF: %w", err)
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// WriteBuffer pushes sample data to an open output buffer.
func (c *Client) WriteBuffer(ctx context.Context, dev string, data []byte) (int, error) {
	if dev == "" {
		return 0, errors.New("device name is required")
	}
	if len(data) == 0 {
		return 0, errors.New("no data provided for buffer write")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx); err != nil {
		return 0, err
	}
	if err := c.writeLine(fmt.Sprintf("WRITEBUF %s %d", dev, len(data))); err != nil {
		return 0, err
	}
	if _, err := c.rw.Write(data); err != nil {
		return 0, fmt.Errorf("WRITEBUF payload: %w", err)
	}
	status, err := c.readInteger()
	if err != nil {
		return 0, fmt.Errorf("WRITEBUF: %w", err)
	}
	if err := statusErr(status); err != nil {
		return 0, fmt.Errorf("WRITEBUF: %w", err)
	}
	return status, nil
}

// CloseBuffer releases the buffer of dev.
func (c *Client) CloseBuffer(ctx context.Context, dev string) error {
	if dev == "" {
		return errors.New("device name is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.exec(ctx, "CLOSE "+dev)
	return err
}

// GetTrigger returns the name of the trigger attached to dev.
func (c *Client) GetTrigger(ctx context.Context, dev string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.exec(ctx, "GETTRIG "+dev)
	if err != nil {
		return "", err
	}
	payload, err := c.readPayload(n)
	if err != nil {
		return "", fmt.Errorf("GETTRIG: %w", err)
	}
	return strings.TrimRight(string(payload), "\x00\r\n"), nil
}

// SetTrigger attaches trig to dev. An empty trig detaches the current trigger.
func (c *Client) SetTrigger(ctx context.Context, dev, trig string) error {
	cmd := "SETTRIG " + dev
	if trig != "" {
		cmd += " " + trig
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.exec(ctx, cmd)
	return err
}
