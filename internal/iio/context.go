package iio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rjboer/GoADI/iiod"
	"github.com/rjboer/GoADI/internal/iioxml"
	"github.com/rjboer/GoADI/internal/logging"
	"github.com/rjboer/GoADI/internal/remote"
)

// Context is an IIO context: a set of devices reachable through one backend.
type Context struct {
	Name        string
	Description string
	Attrs       map[string]string

	backend Backend
	doc     *iioxml.Context
	devices []*Device
	byID    map[string]*Device
	logger  logging.Logger
}

// Device is one IIO device. Attribute access goes through the embedded AttrSet.
type Device struct {
	AttrSet

	ID              string
	Name            string
	Label           string
	AttrNames       []string
	DebugAttrNames  []string
	BufferAttrNames []string
	Channels        []*Channel
}

// Channel is one input or output channel of a Device.
type Channel struct {
	AttrSet

	ID        string
	Name      string
	Output    bool
	AttrNames []string
	Scan      *iioxml.ScanFormat

	dev *Device
}

// Device returns the owning device.
func (ch *Channel) Device() *Device { return ch.dev }

// Label returns the channel name when set, otherwise its ID.
func (ch *Channel) Label() string {
	if ch.Name != "" {
		return ch.Name
	}
	return ch.ID
}

type options struct {
	logger    logging.Logger
	ssh       remote.Config
	timeout   time.Duration
	sysfsRoot string
	debugRoot string
}

// Option configures Open and NewContext.
type Option func(*options)

// WithLogger sets the logger used by the context and its backend.
func WithLogger(l logging.Logger) Option { return func(o *options) { o.logger = l } }

// WithSSH supplies credentials for ssh: URIs. Host and port in the URI win.
func WithSSH(cfg remote.Config) Option { return func(o *options) { o.ssh = cfg } }

// WithTimeout sets the backend I/O timeout.
func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// WithSysfsRoot overrides the sysfs and debugfs roots of local and ssh contexts.
func WithSysfsRoot(root, debugRoot string) Option {
	return func(o *options) {
		o.sysfsRoot = root
		o.debugRoot = debugRoot
	}
}

// Open connects to the context at uri and loads its description.
func Open(ctx context.Context, uri string, opts ...Option) (*Context, error) {
	u, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.Or(o.logger)

	var backend Backend
	switch u.Scheme {
	case SchemeIP:
		iopts := []iiod.Option{iiod.WithLogger(logger)}
		if o.timeout > 0 {
			iopts = append(iopts, iiod.WithTimeout(o.timeout))
		}
		c, err := iiod.Dial(ctx, u.Address, iopts...)
		if err != nil {
			return nil, err
		}
		backend = NewIIODBackend(c)
	case SchemeSerial:
		iopts := []iiod.Option{iiod.WithLogger(logger)}
		if o.timeout > 0 {
			iopts = append(iopts, iiod.WithTimeout(o.timeout))
		}
		c, err := iiod.DialSerial(u.Address, u.Baud, iopts...)
		if err != nil {
			return nil, err
		}
		backend = NewIIODBackend(c)
	case SchemeLocal:
		backend = NewSysfsBackend(LocalFS{}, o.sysfsRoot, o.debugRoot)
	case SchemeSSH:
		cfg := o.ssh
		user, host, port := splitUserHost(u.Address)
		cfg.Host = host
		if user != "" {
			cfg.User = user
		}
		if port != 0 {
			cfg.Port = port
		}
		if o.timeout > 0 {
			cfg.Timeout = o.timeout
		}
		rc, err := remote.Dial(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		backend = NewSysfsBackend(rc, o.sysfsRoot, o.debugRoot)
	case SchemeEmu:
		raw, err := os.ReadFile(u.Address)
		if err != nil {
			return nil, fmt.Errorf("load emulated context: %w", err)
		}
		backend, err = NewEmuBackendXML(raw)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidValue, u.Scheme)
	}

	c, err := NewContext(ctx, backend, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	c.logger.Info("context opened", logging.F("uri", u.String()), logging.F("devices", len(c.devices)))
	return c, nil
}

// NewContext loads the description from backend and builds the device model.
func NewContext(ctx context.Context, backend Backend, opts ...Option) (*Context, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	raw, err := backend.XML(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch context XML: %w", err)
	}
	doc, err := iioxml.Parse(raw)
	if err != nil {
		return nil, err
	}

	c := &Context{
		Name:        doc.Name,
		Description: doc.Description,
		Attrs:       make(map[string]string, len(doc.ContextAttribute)),
		backend:     backend,
		doc:         doc,
		byID:        make(map[string]*Device, len(doc.Device)),
		logger:      logging.Or(o.logger).With(logging.F("component", "iio")),
	}
	for _, a := range doc.ContextAttribute {
		c.Attrs[a.Name] = a.Value
	}
	for i := range doc.Device {
		dev, err := c.buildDevice(&doc.Device[i])
		if err != nil {
			return nil, err
		}
		c.devices = append(c.devices, dev)
		c.byID[dev.ID] = dev
	}
	return c, nil
}

func (c *Context) buildDevice(xd *iioxml.Device) (*Device, error) {
	dev := &Device{
		AttrSet: AttrSet{ctx: c, base: Ref{Device: xd.ID, Kind: DeviceAttr}},
		ID:      xd.ID,
		Name:    xd.Name,
		Label:   xd.Label,
	}
	for _, a := range xd.Attribute {
		dev.AttrNames = append(dev.AttrNames, a.Name)
	}
	for _, a := range xd.DebugAttribute {
		dev.DebugAttrNames = append(dev.DebugAttrNames, a.Name)
	}
	for _, a := range xd.BufferAttribute {
		dev.BufferAttrNames = append(dev.BufferAttrNames, a.Name)
	}
	for i := range xd.Channel {
		xc := &xd.Channel[i]
		ch := &Channel{
			AttrSet: AttrSet{
				ctx:   c,
				base:  Ref{Device: xd.ID, Channel: xc.ID, Output: xc.Output(), Kind: ChannelAttr},
				files: map[string]string{},
			},
			ID:     xc.ID,
			Name:   xc.Name,
			Output: xc.Output(),
			dev:    dev,
		}
		for _, a := range xc.Attribute {
			ch.AttrNames = append(ch.AttrNames, a.Name)
			if a.Filename != "" {
				ch.files[a.Name] = a.Filename
			}
		}
		if xc.ScanElement != nil {
			sf, err := iioxml.ParseScanElement(xc.ScanElement)
			if err != nil {
				return nil, fmt.Errorf("device %s channel %s: %w", xd.ID, xc.ID, err)
			}
			ch.Scan = &sf
		}
		dev.Channels = append(dev.Channels, ch)
	}
	return dev, nil
}

// Backend returns the backend the context was built on.
func (c *Context) Backend() Backend { return c.backend }

// Logger returns the context logger.
func (c *Context) Logger() logging.Logger { return c.logger }

// XML renders the context description.
func (c *Context) XML() ([]byte, error) { return iioxml.Marshal(c.doc) }

// Close releases the backend.
func (c *Context) Close() error { return c.backend.Close() }

// Devices returns every device in context order.
func (c *Context) Devices() []*Device {
	return append([]*Device(nil), c.devices...)
}

// Device finds a device by ID, then name, then case-insensitive label.
func (c *Context) Device(key string) (*Device, error) {
	xd, err := c.doc.Index().LookupDevice(key)
	if err != nil {
		return nil, fmt.Errorf("%w: device %q", ErrNotFound, key)
	}
	return c.byID[xd.ID], nil
}

// DevicesByName returns the devices whose name is one of names, in context order.
func (c *Context) DevicesByName(names ...string) []*Device {
	var out []*Device
	for _, d := range c.devices {
		for _, n := range names {
			if d.Name == n {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// FindDevice returns the index-th device named one of names.
func (c *Context) FindDevice(index int, names ...string) (*Device, error) {
	devs := c.DevicesByName(names...)
	if index < 0 || index >= len(devs) {
		return nil, fmt.Errorf("%w: %s #%d (found %d)", ErrNotFound, strings.Join(names, "|"), index, len(devs))
	}
	return devs[index], nil
}

// Channel finds a channel by ID or name with the given direction.
func (d *Device) Channel(id string, output bool) (*Channel, error) {
	for _, ch := range d.Channels {
		if ch.Output == output && (ch.ID == id || (ch.Name != "" && ch.Name == id)) {
			return ch, nil
		}
	}
	return nil, fmt.Errorf("%w: channel %q (output=%t) of %s", ErrNotFound, id, output, d.ID)
}

// ChannelAttrs returns the attribute set of a channel. Bindings whose channel
// set is fixed by the part use it; a channel missing from the description is
// addressed by ID and any error surfaces on first access.
func (d *Device) ChannelAttrs(id string, output bool) AttrSet {
	if ch, err := d.Channel(id, output); err == nil {
		return ch.AttrSet
	}
	return AttrSet{ctx: d.ctx, base: Ref{Device: d.ID, Channel: id, Output: output, Kind: ChannelAttr}}
}

// Debug returns the debug attribute set of the device.
func (d *Device) Debug() AttrSet {
	return AttrSet{ctx: d.ctx, base: Ref{Device: d.ID, Kind: DebugAttr}}
}

// Buffer returns the buffer attribute set of the device.
func (d *Device) Buffer() AttrSet {
	return AttrSet{ctx: d.ctx, base: Ref{Device: d.ID, Kind: BufferAttr}}
}

// Context returns the owning context.
func (d *Device) Context() *Context { return d.ctx }

// DisplayName returns the label, name or ID, whichever is set first.
func (d *Device) DisplayName() string {
	switch {
	case d.Label != "":
		return d.Label
	case d.Name != "":
		return d.Name
	}
	return d.ID
}

var errNoContext = errors.New("iio: attribute set has no context")
