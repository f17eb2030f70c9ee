package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/rjboer/GoADI/internal/iio"
)

var errQuit = errors.New("quit")

const shellHelp = `Commands:
  devices                          list devices
  info                             devices, channels and attributes
  get [-o|-d] <dev> [ch] <attr>    read an attribute (-o output channel, -d debug)
  set [-o|-d] <dev> [ch] <attr> <value>
  reg <dev> <addr> [value]         read or write a register
  help
  exit`

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive attribute console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withContext(cmd.Context(), func(c *iio.Context) error {
				return runShell(cmd.Context(), c)
			})
		},
	}
}

func runShell(ctx context.Context, c *iio.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "goadi> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    shellCompleter(c),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(rl.Stdout(), shellHelp)
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil
		}
		err = execLine(ctx, c, rl.Stdout(), line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(rl.Stdout(), "error: %v\n", err)
		}
	}
}

func shellCompleter(c *iio.Context) readline.AutoCompleter {
	var devs []readline.PrefixCompleterInterface
	for _, d := range c.Devices() {
		devs = append(devs, readline.PcItem(d.DisplayName()))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("devices"),
		readline.PcItem("info"),
		readline.PcItem("get", devs...),
		readline.PcItem("set", devs...),
		readline.PcItem("reg", devs...),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

// execLine runs one console command.
func execLine(ctx context.Context, c *iio.Context, w io.Writer, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]
	var t attrTarget
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		switch args[0] {
		case "-o":
			t.output = true
		case "-d":
			t.debug = true
		default:
			return fmt.Errorf("unknown flag %s", args[0])
		}
		args = args[1:]
	}

	switch cmd {
	case "exit", "quit":
		return errQuit
	case "help":
		fmt.Fprintln(w, shellHelp)
	case "devices":
		for _, d := range c.Devices() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", d.ID, d.Name, d.Label)
		}
	case "info":
		printInfo(w, c, true)
	case "get":
		return t.get(ctx, c, w, args)
	case "set":
		if err := t.set(ctx, c, args); err != nil {
			return err
		}
		fmt.Fprintln(w, "OK")
	case "reg":
		switch len(args) {
		case 2:
			return regRead(ctx, c, w, args[0], args[1])
		case 3:
			if err := regWrite(ctx, c, args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintln(w, "OK")
		default:
			return fmt.Errorf("usage: reg <dev> <addr> [value]")
		}
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
	}
	return nil
}
