package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rjboer/GoADI/internal/iio"
)

// attrTarget selects what an attribute command addresses.
type attrTarget struct {
	output bool
	debug  bool
}

// resolve maps "dev attr" or "dev ch attr" to an attribute set and name.
func (t attrTarget) resolve(c *iio.Context, args []string) (iio.AttrSet, string, error) {
	if len(args) != 2 && len(args) != 3 {
		return iio.AttrSet{}, "", fmt.Errorf("%w: want <device> [channel] <attr>", iio.ErrInvalidValue)
	}
	d, err := c.Device(args[0])
	if err != nil {
		return iio.AttrSet{}, "", err
	}
	if len(args) == 2 {
		if t.debug {
			return d.Debug(), args[1], nil
		}
		return d.AttrSet, args[1], nil
	}
	if t.debug {
		return iio.AttrSet{}, "", fmt.Errorf("%w: debug attributes have no channel", iio.ErrInvalidValue)
	}
	ch, err := d.Channel(args[1], t.output)
	if err != nil {
		return iio.AttrSet{}, "", err
	}
	return ch.AttrSet, args[2], nil
}

func (t attrTarget) get(ctx context.Context, c *iio.Context, w io.Writer, args []string) error {
	set, name, err := t.resolve(c, args)
	if err != nil {
		return err
	}
	v, err := set.Attr(ctx, name)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, v)
	return nil
}

func (t attrTarget) set(ctx context.Context, c *iio.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("%w: want <device> [channel] <attr> <value>", iio.ErrInvalidValue)
	}
	set, name, err := t.resolve(c, args[:len(args)-1])
	if err != nil {
		return err
	}
	return set.SetAttr(ctx, name, args[len(args)-1])
}

func newAttrCmd(a *app) *cobra.Command {
	var t attrTarget
	cmd := &cobra.Command{
		Use:   "attr",
		Short: "Read or write device, channel and debug attributes",
	}
	cmd.PersistentFlags().BoolVarP(&t.output, "output", "o", false, "address the output channel")
	cmd.PersistentFlags().BoolVarP(&t.debug, "debug", "d", false, "address a debug attribute")

	cmd.AddCommand(&cobra.Command{
		Use:   "get <device> [channel] <attr>",
		Short: "Read an attribute",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withContext(cmd.Context(), func(c *iio.Context) error {
				return t.get(cmd.Context(), c, a.out, args)
			})
		},
	}, &cobra.Command{
		Use:   "set <device> [channel] <attr> <value>",
		Short: "Write an attribute",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withContext(cmd.Context(), func(c *iio.Context) error {
				return t.set(cmd.Context(), c, args)
			})
		},
	})
	return cmd
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a 32-bit value", iio.ErrInvalidValue, s)
	}
	return uint32(v), nil
}

func regRead(ctx context.Context, c *iio.Context, w io.Writer, dev, addr string) error {
	d, err := c.Device(dev)
	if err != nil {
		return err
	}
	reg, err := parseUint32(addr)
	if err != nil {
		return err
	}
	v, err := d.RegRead(ctx, reg)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "0x%X\n", v)
	return nil
}

func regWrite(ctx context.Context, c *iio.Context, dev, addr, val string) error {
	d, err := c.Device(dev)
	if err != nil {
		return err
	}
	reg, err := parseUint32(addr)
	if err != nil {
		return err
	}
	v, err := parseUint32(val)
	if err != nil {
		return err
	}
	return d.RegWrite(ctx, reg, v)
}

func newRegCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reg",
		Short: "Access device registers through direct_reg_access",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "read <device> <addr>",
		Short: "Read a register",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withContext(cmd.Context(), func(c *iio.Context) error {
				return regRead(cmd.Context(), c, a.out, args[0], args[1])
			})
		},
	}, &cobra.Command{
		Use:   "write <device> <addr> <value>",
		Short: "Write a register",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withContext(cmd.Context(), func(c *iio.Context) error {
				return regWrite(cmd.Context(), c, args[0], args[1], args[2])
			})
		},
	})
	return cmd
}
