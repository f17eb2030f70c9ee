package iio

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rjboer/GoADI/internal/iioxml"
)

// Write is one entry of the EmuBackend write log.
type Write struct {
	Ref   Ref
	Value string
}

// EmuBackend is an in-memory context used by tests and dry runs. Attribute
// values start from the XML "value" attributes and whatever Set seeds. Writes to
// the debug attribute direct_reg_access behave like the kernel register file.
type EmuBackend struct {
	mu       sync.Mutex
	doc      *iioxml.Context
	values   map[string]string
	writes   []Write
	failures map[string]error
	regs     map[string]map[uint32]uint32
	regSel   map[string]uint32
	buffers  map[string][]byte
	masks    map[string][]uint32
	open     map[string]bool
}

// NewEmuBackend builds an emulator over a parsed context description.
func NewEmuBackend(doc *iioxml.Context) *EmuBackend {
	e := &EmuBackend{
		doc:      doc,
		values:   map[string]string{},
		failures: map[string]error{},
		regs:     map[string]map[uint32]uint32{},
		regSel:   map[string]uint32{},
		buffers:  map[string][]byte{},
		masks:    map[string][]uint32{},
		open:     map[string]bool{},
	}
	for _, dev := range doc.Device {
		for _, a := range dev.Attribute {
			if a.Value != "" {
				e.values[DeviceRef(dev.ID, a.Name).key()] = a.Value
			}
		}
		for _, a := range dev.DebugAttribute {
			if a.Value != "" {
				e.values[DebugRef(dev.ID, a.Name).key()] = a.Value
			}
		}
		for _, ch := range dev.Channel {
			for _, a := range ch.Attribute {
				if a.Value != "" {
					e.values[ChannelRef(dev.ID, ch.ID, ch.Output(), a.Name).key()] = a.Value
				}
			}
		}
	}
	return e
}

// NewEmuBackendXML parses raw context XML and builds an emulator over it.
func NewEmuBackendXML(raw []byte) (*EmuBackend, error) {
	doc, err := iioxml.Parse(raw)
	if err != nil {
		return nil, err
	}
	return NewEmuBackend(doc), nil
}

func (e *EmuBackend) XML(context.Context) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return iioxml.Marshal(e.doc)
}

func (e *EmuBackend) ReadAttr(ctx context.Context, ref Ref) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.failures[ref.key()]; err != nil {
		return "", err
	}
	if ref.Kind == DebugAttr && ref.Name == "direct_reg_access" {
		return fmt.Sprintf("0x%X", e.regs[ref.Device][e.regSel[ref.Device]]), nil
	}
	v, ok := e.values[ref.key()]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return v, nil
}

func (e *EmuBackend) WriteAttr(ctx context.Context, ref Ref, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.failures[ref.key()]; err != nil {
		return err
	}
	e.writes = append(e.writes, Write{Ref: ref, Value: value})
	if ref.Kind == DebugAttr && ref.Name == "direct_reg_access" {
		return e.regAccess(ref.Device, value)
	}
	e.values[ref.key()] = value
	return nil
}

// regAccess applies "0xADDR" (select) or "0xADDR 0xVAL" (write).
func (e *EmuBackend) regAccess(dev, value string) error {
	fields := strings.Fields(value)
	if len(fields) == 0 || len(fields) > 2 {
		return fmt.Errorf("%w: direct_reg_access %q", ErrInvalidValue, value)
	}
	addr, err := strconv.ParseUint(fields[0], 0, 32)
	if err != nil {
		return fmt.Errorf("%w: register address %q", ErrInvalidValue, fields[0])
	}
	e.regSel[dev] = uint32(addr)
	if len(fields) == 2 {
		val, err := strconv.ParseUint(fields[1], 0, 32)
		if err != nil {
			return fmt.Errorf("%w: register value %q", ErrInvalidValue, fields[1])
		}
		if e.regs[dev] == nil {
			e.regs[dev] = map[uint32]uint32{}
		}
		e.regs[dev][uint32(addr)] = uint32(val)
	}
	return nil
}

func (e *EmuBackend) Close() error { return nil }

// Set seeds an attribute value without logging a write.
func (e *EmuBackend) Set(ref Ref, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values[ref.key()] = value
}

// Value returns the current value of an attribute.
func (e *EmuBackend) Value(ref Ref) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.values[ref.key()]
	return v, ok
}

// Writes returns a copy of the write log.
func (e *EmuBackend) Writes() []Write {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Write(nil), e.writes...)
}

// ResetWrites clears the write log.
func (e *EmuBackend) ResetWrites() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.writes = nil
}

// FailOn makes every access to ref return err. A nil err clears the failure.
func (e *EmuBackend) FailOn(ref Ref, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.failures, ref.key())
		return
	}
	e.failures[ref.key()] = err
}

// Register returns the emulated register value of dev at addr.
func (e *EmuBackend) Register(dev string, addr uint32) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.regs[dev][addr]
}

// SetBufferData sets the bytes returned by ReadBuffer for dev. Reads longer
// than data wrap around.
func (e *EmuBackend) SetBufferData(dev string, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffers[dev] = append([]byte(nil), data...)
}

// BufferMask returns the channel mask of the last OpenBuffer on dev.
func (e *EmuBackend) BufferMask(dev string) []uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.masks[dev]
}

func (e *EmuBackend) OpenBuffer(_ context.Context, dev string, samples int, mask []uint32, _ bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.open[dev] {
		return fmt.Errorf("buffer of %s already open", dev)
	}
	e.open[dev] = true
	e.masks[dev] = append([]uint32(nil), mask...)
	return nil
}

func (e *EmuBackend) ReadBuffer(_ context.Context, dev string, nbytes int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open[dev] {
		return nil, fmt.Errorf("buffer of %s is not open", dev)
	}
	src := e.buffers[dev]
	if len(src) == 0 {
		return nil, fmt.Errorf("%w: no buffer data for %s", ErrNotFound, dev)
	}
	out := make([]byte, nbytes)
	for i := range out {
		out[i] = src[i%len(src)]
	}
	return out, nil
}

func (e *EmuBackend) WriteBuffer(_ context.Context, dev string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open[dev] {
		return fmt.Errorf("buffer of %s is not open", dev)
	}
	e.buffers[dev] = append([]byte(nil), data...)
	return nil
}

func (e *EmuBackend) CloseBuffer(_ context.Context, dev string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.open, dev)
	return nil
}
