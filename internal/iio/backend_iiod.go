package iio

import (
	"context"
	"errors"
	"fmt"

	"github.com/rjboer/GoADI/iiod"
)

// IIODBackend talks to an iiod server.
type IIODBackend struct {
	client *iiod.Client
}

// NewIIODBackend wraps an established iiod client.
func NewIIODBackend(c *iiod.Client) *IIODBackend {
	return &IIODBackend{client: c}
}

// Client exposes the underlying iiod session.
func (b *IIODBackend) Client() *iiod.Client { return b.client }

func (b *IIODBackend) XML(ctx context.Context) ([]byte, error) {
	return b.client.PrintXML(ctx)
}

func (b *IIODBackend) ReadAttr(ctx context.Context, ref Ref) (string, error) {
	v, err := b.client.ReadAttr(ctx, target(ref), ref.Name)
	return v, mapErrno(err)
}

func (b *IIODBackend) WriteAttr(ctx context.Context, ref Ref, value string) error {
	_, err := b.client.WriteAttr(ctx, target(ref), ref.Name, value)
	return mapErrno(err)
}

func (b *IIODBackend) OpenBuffer(ctx context.Context, dev string, samples int, mask []uint32, cyclic bool) error {
	return b.client.OpenBuffer(ctx, dev, samples, mask, cyclic)
}

func (b *IIODBackend) ReadBuffer(ctx context.Context, dev string, nbytes int) ([]byte, error) {
	return b.client.ReadBuffer(ctx, dev, nbytes)
}

func (b *IIODBackend) WriteBuffer(ctx context.Context, dev string, data []byte) error {
	_, err := b.client.WriteBuffer(ctx, dev, data)
	return err
}

func (b *IIODBackend) CloseBuffer(ctx context.Context, dev string) error {
	return b.client.CloseBuffer(ctx, dev)
}

func (b *IIODBackend) Close() error { return b.client.Close() }

func target(ref Ref) iiod.Target {
	t := iiod.Target{Device: ref.Device, Channel: ref.Channel, Output: ref.Output}
	switch ref.Kind {
	case ChannelAttr:
		t.Kind = iiod.ChannelAttr
	case DebugAttr:
		t.Kind = iiod.DebugAttr
	case BufferAttr:
		t.Kind = iiod.BufferAttr
	default:
		t.Kind = iiod.DeviceAttr
	}
	return t
}

// mapErrno marks missing-entity errnos with ErrNotFound.
func mapErrno(err error) error {
	var errno iiod.Errno
	if errors.As(err, &errno) && (errno == 2 || errno == 19) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
