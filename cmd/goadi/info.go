package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rjboer/GoADI/internal/iio"
	"github.com/rjboer/GoADI/internal/mdns"
)

func newDiscoverCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Browse the local network for IIOD servers (_iio._tcp)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			sp := newSpinner(a.errOut, "browsing "+mdns.Service)
			sp.start()
			hosts, err := mdns.Discover(ctx, a.logger)
			if err != nil {
				sp.fail(err.Error())
				return err
			}
			sp.stop(fmt.Sprintf("%d found", len(hosts)))
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INSTANCE\tHOST\tURI")
			for _, h := range hosts {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", h.Instance, h.Hostname, h.URI())
			}
			return tw.Flush()
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 3*time.Second, "browse duration")
	return cmd
}

func newInfoCmd(a *app) *cobra.Command {
	var attrs bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "List the devices and channels of a context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withContext(cmd.Context(), func(c *iio.Context) error {
				printInfo(a.out, c, attrs)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&attrs, "attrs", "a", false, "list attribute names")
	return cmd
}

func printInfo(w io.Writer, c *iio.Context, attrs bool) {
	if c.Name != "" {
		fmt.Fprintf(w, "context: %s", c.Name)
		if c.Description != "" {
			fmt.Fprintf(w, " (%s)", c.Description)
		}
		fmt.Fprintln(w)
	}
	devs := c.Devices()
	fmt.Fprintf(w, "%d devices\n", len(devs))
	for _, d := range devs {
		fmt.Fprintf(w, "  %s: %s", d.ID, d.Name)
		if d.Label != "" {
			fmt.Fprintf(w, " [%s]", d.Label)
		}
		fmt.Fprintf(w, ", %d channels\n", len(d.Channels))
		if attrs && len(d.AttrNames) > 0 {
			fmt.Fprintf(w, "    attrs: %s\n", strings.Join(d.AttrNames, " "))
		}
		if attrs && len(d.DebugAttrNames) > 0 {
			fmt.Fprintf(w, "    debug: %s\n", strings.Join(d.DebugAttrNames, " "))
		}
		for _, ch := range d.Channels {
			dir := "input"
			if ch.Output {
				dir = "output"
			}
			fmt.Fprintf(w, "    %s (%s)", ch.ID, dir)
			if ch.Name != "" {
				fmt.Fprintf(w, " %s", ch.Name)
			}
			if ch.Scan != nil {
				fmt.Fprint(w, " scan")
			}
			fmt.Fprintln(w)
			if attrs && len(ch.AttrNames) > 0 {
				fmt.Fprintf(w, "      %s\n", strings.Join(ch.AttrNames, " "))
			}
		}
	}
}
