package iioxml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// Index provides fast lookup of devices and channels in a parsed context.
type Index struct {
	DevicesByID    map[string]*Device
	DevicesByName  map[string]*Device
	DevicesByLabel map[string]*Device // keys are lower-cased
}

// Parse decodes raw IIOD XML and builds a lookup index.
func Parse(raw []byte) (*Context, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty XML data")
	}
	// Some servers emit a length header or BOM before the document.
	if i := bytes.IndexByte(raw, '<'); i > 0 {
		raw = raw[i:]
	}

	var ctx Context
	if err := xml.Unmarshal(raw, &ctx); err != nil {
		return nil, fmt.Errorf("IIO XML parse error: %w", err)
	}
	ctx.index = BuildIndex(&ctx)
	return &ctx, nil
}

// Marshal renders the context back to XML with an XML header.
func Marshal(ctx *Context) ([]byte, error) {
	out, err := xml.MarshalIndent(ctx, "", " ")
	if err != nil {
		return nil, fmt.Errorf("IIO XML marshal: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// Index returns the lookup index, building it on first use.
func (ctx *Context) Index() *Index {
	if ctx.index == nil {
		ctx.index = BuildIndex(ctx)
	}
	return ctx.index
}

// BuildIndex constructs lookup tables from a context.
func BuildIndex(ctx *Context) *Index {
	idx := &Index{
		DevicesByID:    make(map[string]*Device, len(ctx.Device)),
		DevicesByName:  make(map[string]*Device, len(ctx.Device)),
		DevicesByLabel: make(map[string]*Device),
	}
	for i := range ctx.Device {
		dev := &ctx.Device[i]
		if dev.ID != "" {
			idx.DevicesByID[dev.ID] = dev
		}
		// First device wins for duplicate names (several ad7124 parts, say).
		if _, dup := idx.DevicesByName[dev.Name]; dev.Name != "" && !dup {
			idx.DevicesByName[dev.Name] = dev
		}
		if dev.Label != "" {
			idx.DevicesByLabel[strings.ToLower(dev.Label)] = dev
		}
	}
	return idx
}

// LookupDevice returns a device by ID, name or (case-insensitive) label.
func (index *Index) LookupDevice(identifier string) (*Device, error) {
	if d, ok := index.DevicesByID[identifier]; ok {
		return d, nil
	}
	if d, ok := index.DevicesByName[identifier]; ok {
		return d, nil
	}
	if d, ok := index.DevicesByLabel[strings.ToLower(identifier)]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("device not found in XML: %q", identifier)
}

// LookupChannel returns a channel of dev by ID or name with the given direction.
func (dev *Device) LookupChannel(id string, output bool) (*Channel, error) {
	for i := range dev.Channel {
		ch := &dev.Channel[i]
		if ch.Output() != output {
			continue
		}
		if ch.ID == id || (ch.Name != "" && ch.Name == id) {
			return ch, nil
		}
	}
	return nil, fmt.Errorf("channel %q (output=%t) not found in device %q", id, output, dev.ID)
}
