package main

import (
	"fmt"
	"io"
	"os"

	"github.com/danmuck/lcsf/internal/logging"
	"github.com/spf13/cobra"
)

func main() {
	logging.ConfigureRuntime()
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lcsfctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "lcsfctl",
		Short: "Inspect, build and replay LCSF frames",
		Long: `lcsfctl works with LCSF (Light Command Set Format) frames.

It decodes hex frames into raw attribute trees and, for known protocols,
named attributes; encodes named YAML commands into frames; and replays
captured frames through a full stack with the probe protocol registered.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "stack config file (TOML)")
	root.PersistentFlags().StringVarP(&opts.mode, "mode", "m", "", "representation mode: small or normal (overrides config)")

	root.AddCommand(
		newDecodeCmd(opts),
		newEncodeCmd(opts),
		newReplayCmd(opts),
		newProtocolsCmd(opts),
		newInitCmd(),
	)
	return root
}
