// Command goadi-probe checks that an iiod server answers: it prints the
// server version and the devices of the remote context.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/rjboer/GoADI/iiod"
	"github.com/rjboer/GoADI/internal/iioxml"
)

const defaultAddr = "192.168.2.1:30431"

// dial is swapped out by tests.
var dial = func(ctx context.Context, addr string) (*iiod.Client, error) {
	return iiod.Dial(ctx, addr, iiod.WithTimeout(5*time.Second))
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, getenv func(string) string) error {
	fs := pflag.NewFlagSet("goadi-probe", pflag.ContinueOnError)
	fs.SetOutput(out)
	addr := fs.String("iiod-addr", "", "iiod address (host[:port]); defaults to $IIOD_ADDR")
	timeout := fs.Duration("timeout", 10*time.Second, "overall probe timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *addr == "" {
		*addr = getenv("IIOD_ADDR")
	}
	if *addr == "" {
		*addr = defaultAddr
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c, err := dial(ctx, *addr)
	if err != nil {
		return err
	}
	defer c.Close()

	v, err := c.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "iiod %s at %s\n", v, *addr)

	raw, err := c.PrintXML(ctx)
	if err != nil {
		return err
	}
	doc, err := iioxml.Parse(raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "context %q, %d devices\n", doc.Name, len(doc.Device))
	for _, d := range doc.Device {
		name := d.Name
		if d.Label != "" {
			name += " [" + d.Label + "]"
		}
		fmt.Fprintf(out, "  %-14s %s\n", d.ID, name)
	}
	return nil
}
