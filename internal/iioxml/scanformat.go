package iioxml

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// ScanFormat is the parsed form of a scan-element format string.
// It mirrors libiio's struct iio_data_format.
type ScanFormat struct {
	Index        int
	IsBE         bool
	IsSigned     bool
	FullyDefined bool
	Bits         uint   // meaningful bits
	Length       uint   // storage bits
	Repeat       uint   // samples per scan element
	Shift        uint   // right shift applied to storage
	Scale        float64
	WithScale    bool
}

// ParseScanFormat parses strings like "le:S12/16>>4" or "be:u24/32X2>>8".
func ParseScanFormat(s string) (ScanFormat, error) {
	var sf ScanFormat
	bad := func() (ScanFormat, error) {
		return ScanFormat{}, fmt.Errorf("invalid scan format %q", s)
	}

	endian, rest, ok := strings.Cut(s, ":")
	if !ok {
		return bad()
	}
	switch endian {
	case "le":
	case "be":
		sf.IsBE = true
	default:
		return bad()
	}
	if rest == "" {
		return bad()
	}
	switch rest[0] {
	case 's':
		sf.IsSigned = true
	case 'S':
		sf.IsSigned, sf.FullyDefined = true, true
	case 'u':
	case 'U':
		sf.FullyDefined = true
	default:
		return bad()
	}
	rest = rest[1:]

	sizes, shift, ok := strings.Cut(rest, ">>")
	if !ok {
		return bad()
	}
	bitsStr, lengthStr, ok := strings.Cut(sizes, "/")
	if !ok {
		return bad()
	}
	repeat := uint64(1)
	if l, r, found := strings.Cut(lengthStr, "X"); found {
		lengthStr = l
		v, err := strconv.ParseUint(r, 10, 32)
		if err != nil || v == 0 {
			return bad()
		}
		repeat = v
	}
	bits, err := strconv.ParseUint(bitsStr, 10, 8)
	if err != nil {
		return bad()
	}
	length, err := strconv.ParseUint(lengthStr, 10, 8)
	if err != nil || length == 0 || length%8 != 0 || bits > length || bits == 0 {
		return bad()
	}
	sh, err := strconv.ParseUint(shift, 10, 8)
	if err != nil {
		return bad()
	}
	sf.Bits, sf.Length, sf.Repeat, sf.Shift = uint(bits), uint(length), uint(repeat), uint(sh)
	return sf, nil
}

// ParseScanElement parses the scan-element block of a channel, including index and scale.
func ParseScanElement(se *ScanElement) (ScanFormat, error) {
	sf, err := ParseScanFormat(se.Format)
	if err != nil {
		return ScanFormat{}, err
	}
	idx, err := strconv.Atoi(se.Index)
	if err != nil {
		return ScanFormat{}, fmt.Errorf("invalid scan index %q: %w", se.Index, err)
	}
	sf.Index = idx
	if se.Scale != "" {
		scale, err := strconv.ParseFloat(se.Scale, 64)
		if err != nil {
			return ScanFormat{}, fmt.Errorf("invalid scan scale %q: %w", se.Scale, err)
		}
		sf.Scale, sf.WithScale = scale, true
	}
	return sf, nil
}

// StorageBytes is the number of bytes one scan element occupies in a frame.
func (sf ScanFormat) StorageBytes() int {
	return int(sf.Length/8) * int(sf.Repeat)
}

// Extract decodes a single sample of Length/8 bytes.
func (sf ScanFormat) Extract(raw []byte) int64 {
	var u uint64
	switch len(raw) {
	case 1:
		u = uint64(raw[0])
	case 2:
		if sf.IsBE {
			u = uint64(binary.BigEndian.Uint16(raw))
		} else {
			u = uint64(binary.LittleEndian.Uint16(raw))
		}
	case 4:
		if sf.IsBE {
			u = uint64(binary.BigEndian.Uint32(raw))
		} else {
			u = uint64(binary.LittleEndian.Uint32(raw))
		}
	case 8:
		if sf.IsBE {
			u = binary.BigEndian.Uint64(raw)
		} else {
			u = binary.LittleEndian.Uint64(raw)
		}
	default:
		if sf.IsBE {
			for _, b := range raw {
				u = u<<8 | uint64(b)
			}
		} else {
			for i := len(raw) - 1; i >= 0; i-- {
				u = u<<8 | uint64(raw[i])
			}
		}
	}

	u >>= sf.Shift
	if sf.Bits < 64 {
		mask := uint64(1)<<sf.Bits - 1
		u &= mask
		if sf.IsSigned && u&(uint64(1)<<(sf.Bits-1)) != 0 {
			u |= ^mask
		}
	}
	return int64(u)
}
