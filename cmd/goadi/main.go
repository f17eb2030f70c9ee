// Command goadi inspects and drives ADI IIO hardware: attribute and register
// access, mDNS discovery, an HTTP bridge and the phased-array calibrations.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rjboer/GoADI/internal/config"
	"github.com/rjboer/GoADI/internal/iio"
	"github.com/rjboer/GoADI/internal/logging"
	"github.com/rjboer/GoADI/internal/remote"
)

// Version is injected with -ldflags at build time.
var Version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand needs.
type app struct {
	cfgPath string
	uri     string
	level   string
	format  string

	cfg    config.Config
	logger logging.Logger
	out    io.Writer
	errOut io.Writer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}
	root := &cobra.Command{
		Use:           "goadi",
		Short:         "IIO hardware access and phased-array calibration for ADI boards",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgPath, "config", "c", config.FileName, "configuration file")
	pf.StringVarP(&a.uri, "uri", "u", "", "context URI (ip:host, serial:/dev/tty,baud, ssh:user@host, local:, emu:file.xml)")
	pf.StringVar(&a.level, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&a.format, "log-format", "", "log format (text, json)")

	root.AddCommand(
		newDiscoverCmd(a),
		newInfoCmd(a),
		newAttrCmd(a),
		newRegCmd(a),
		newShellCmd(a),
		newCalCmd(a),
		newServeCmd(a),
		newMkconfCmd(a),
		newConfCmd(a),
	)
	return root
}

// setup loads the configuration and applies the flag overrides.
func (a *app) setup() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.uri != "" {
		cfg.Context.URI = a.uri
	}
	if a.level != "" {
		cfg.Log.Level = a.level
	}
	if a.format != "" {
		cfg.Log.Format = a.format
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(level, format, a.errOut)
	logging.SetDefault(a.logger)
	return nil
}

// open connects to the configured context.
func (a *app) open(ctx context.Context) (*iio.Context, error) {
	c := a.cfg.Context
	opts := []iio.Option{
		iio.WithLogger(a.logger),
		iio.WithSSH(remote.Config{
			User:     a.cfg.SSH.User,
			Password: a.cfg.SSH.Password,
			KeyPath:  a.cfg.SSH.KeyPath,
			Port:     a.cfg.SSH.Port,
			Timeout:  c.Timeout,
		}),
	}
	if c.Timeout > 0 {
		opts = append(opts, iio.WithTimeout(c.Timeout))
	}
	if c.SysfsRoot != "" || c.DebugRoot != "" {
		opts = append(opts, iio.WithSysfsRoot(c.SysfsRoot, c.DebugRoot))
	}
	ictx, err := iio.Open(ctx, c.URI, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.URI, err)
	}
	return ictx, nil
}

// withContext opens the context, runs fn and closes it.
func (a *app) withContext(ctx context.Context, fn func(*iio.Context) error) error {
	c, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}
