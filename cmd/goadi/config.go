package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rjboer/GoADI/internal/config"
)

func newMkconfCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "mkconf [path]",
		Short: "Write the default configuration file",
		Long: `mkconf writes the built-in defaults as YAML. There is no need to do this
unless you want to start from the prepopulated defaults; missing keys always
fall back to them. Environment variables prefixed GOADI_ override the file,
with __ separating sections (GOADI_CONTEXT__URI=ip:10.0.0.2).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfgPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists, use --force to overwrite", path)
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func newConfCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "conf",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return config.Encode(a.out, a.cfg)
		},
	}
}
