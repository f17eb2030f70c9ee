package iio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
)

// Capture enables channels, reads samples frames from the device buffer and
// returns the decoded samples per channel ID. Channels are given by ID or name
// and must carry a scan format.
func (d *Device) Capture(ctx context.Context, channels []string, samples int) (map[string][]int64, error) {
	bb, ok := d.ctx.backend.(BufferBackend)
	if !ok {
		return nil, errors.New("backend does not support buffers")
	}
	if samples <= 0 {
		return nil, fmt.Errorf("%w: sample count must be positive", ErrInvalidValue)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: no channels selected", ErrInvalidValue)
	}

	var enabled []*Channel
	maxIndex := 0
	for _, id := range channels {
		ch, err := d.Channel(id, false)
		if err != nil {
			return nil, err
		}
		if ch.Scan == nil {
			return nil, fmt.Errorf("%w: channel %s has no scan element", ErrInvalidValue, ch.ID)
		}
		enabled = append(enabled, ch)
		if ch.Scan.Index > maxIndex {
			maxIndex = ch.Scan.Index
		}
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].Scan.Index < enabled[j].Scan.Index })

	mask := make([]uint32, maxIndex/32+1)
	for _, ch := range enabled {
		mask[ch.Scan.Index/32] |= 1 << (uint(ch.Scan.Index) % 32)
	}
	frame, offsets := frameLayout(enabled)

	if err := bb.OpenBuffer(ctx, d.ID, samples, mask, false); err != nil {
		return nil, fmt.Errorf("open buffer of %s: %w", d.ID, err)
	}
	want := samples * frame
	raw, err := bb.ReadBuffer(ctx, d.ID, want)
	closeErr := bb.CloseBuffer(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("read buffer of %s: %w", d.ID, err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close buffer of %s: %w", d.ID, closeErr)
	}

	if len(raw) < want {
		return nil, fmt.Errorf("read buffer of %s: got %d of %d bytes: %w", d.ID, len(raw), want, io.ErrUnexpectedEOF)
	}

	out := make(map[string][]int64, len(enabled))
	for ci, ch := range enabled {
		size := int(ch.Scan.Length / 8)
		vals := make([]int64, samples)
		for s := 0; s < samples; s++ {
			off := s*frame + offsets[ci]
			vals[s] = ch.Scan.Extract(raw[off : off+size])
		}
		out[ch.ID] = vals
	}
	return out, nil
}

// frameLayout returns the size of one sample frame and the byte offset of each
// channel within it. Every element is aligned to its own storage size, as the
// kernel lays out scan frames.
func frameLayout(chs []*Channel) (int, []int) {
	offsets := make([]int, len(chs))
	pos, largest := 0, 1
	for i, ch := range chs {
		size := int(ch.Scan.Length / 8)
		if size == 0 {
			size = 1
		}
		if pos%size != 0 {
			pos += size - pos%size
		}
		offsets[i] = pos
		pos += ch.Scan.StorageBytes()
		if size > largest {
			largest = size
		}
	}
	if pos%largest != 0 {
		pos += largest - pos%largest
	}
	return pos, offsets
}
