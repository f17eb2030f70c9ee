package iio

import (
	"context"
	"fmt"
)

// AttrKind selects the attribute namespace of a Ref.
type AttrKind int

const (
	DeviceAttr AttrKind = iota
	ChannelAttr
	DebugAttr
	BufferAttr
)

func (k AttrKind) String() string {
	switch k {
	case DeviceAttr:
		return "device"
	case ChannelAttr:
		return "channel"
	case DebugAttr:
		return "debug"
	case BufferAttr:
		return "buffer"
	}
	return fmt.Sprintf("AttrKind(%d)", int(k))
}

// Ref addresses one attribute. Device is the device ID (iio:deviceN). Filename
// is the sysfs file name of channel attributes when the context reports it.
type Ref struct {
	Device   string
	Channel  string
	Output   bool
	Kind     AttrKind
	Name     string
	Filename string
}

// DeviceRef, ChannelRef and DebugRef build references without a Context, which
// is mostly useful for seeding an EmuBackend.
func DeviceRef(dev, name string) Ref { return Ref{Device: dev, Kind: DeviceAttr, Name: name} }

func ChannelRef(dev, ch string, output bool, name string) Ref {
	return Ref{Device: dev, Channel: ch, Output: output, Kind: ChannelAttr, Name: name}
}

func DebugRef(dev, name string) Ref { return Ref{Device: dev, Kind: DebugAttr, Name: name} }

func (r Ref) String() string {
	switch r.Kind {
	case ChannelAttr:
		dir := "in"
		if r.Output {
			dir = "out"
		}
		return fmt.Sprintf("%s/%s_%s/%s", r.Device, dir, r.Channel, r.Name)
	case DebugAttr:
		return fmt.Sprintf("%s/debug/%s", r.Device, r.Name)
	case BufferAttr:
		return fmt.Sprintf("%s/buffer/%s", r.Device, r.Name)
	default:
		return fmt.Sprintf("%s/%s", r.Device, r.Name)
	}
}

// key identifies a Ref regardless of Filename.
func (r Ref) key() string {
	return fmt.Sprintf("%s|%d|%s|%t|%s", r.Device, r.Kind, r.Channel, r.Output, r.Name)
}

// Backend moves attribute values between a Context and the hardware.
type Backend interface {
	XML(ctx context.Context) ([]byte, error)
	ReadAttr(ctx context.Context, ref Ref) (string, error)
	WriteAttr(ctx context.Context, ref Ref, value string) error
	Close() error
}

// BufferBackend is implemented by backends that can stream samples.
type BufferBackend interface {
	OpenBuffer(ctx context.Context, dev string, samples int, mask []uint32, cyclic bool) error
	ReadBuffer(ctx context.Context, dev string, nbytes int) ([]byte, error)
	WriteBuffer(ctx context.Context, dev string, data []byte) error
	CloseBuffer(ctx context.Context, dev string) error
}
