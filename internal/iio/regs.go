package iio

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const regAttr = "direct_reg_access"

// RegRead selects addr through the direct_reg_access debug attribute and reads
// the register back.
func (d *Device) RegRead(ctx context.Context, addr uint32) (uint32, error) {
	dbg := d.Debug()
	if err := dbg.SetAttr(ctx, regAttr, fmt.Sprintf("0x%X", addr)); err != nil {
		return 0, err
	}
	raw, err := dbg.Attr(ctx, regAttr)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 0, 32)
	if err != nil {
		return 0, &ValueError{Attr: regAttr, Raw: raw, Want: "register value"}
	}
	return uint32(v), nil
}

// RegWrite writes val to register addr.
func (d *Device) RegWrite(ctx context.Context, addr, val uint32) error {
	return d.Debug().SetAttr(ctx, regAttr, fmt.Sprintf("0x%X 0x%X", addr, val))
}
