package main

import (
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/portlease/internal/cmd"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "portlease",
		Short: "Advisory port registry for cooperating agents",
		Long: `Portlease keeps a registry of port leases so that agents sharing a machine
can claim ports before binding them. Every query is checked against the live
socket state of the operating system.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(cmd.NewServeCmd())
	rootCmd.AddCommand(cmd.NewListCmd())
	rootCmd.AddCommand(cmd.NewSystemCmd())
	rootCmd.AddCommand(cmd.NewCheckCmd())
	rootCmd.AddCommand(cmd.NewRegisterCmd())
	rootCmd.AddCommand(cmd.NewHeartbeatCmd())
	rootCmd.AddCommand(cmd.NewReleaseCmd())
	rootCmd.AddCommand(cmd.NewClearCmd())
	rootCmd.AddCommand(cmd.NewSuggestCmd())
	rootCmd.AddCommand(cmd.NewHooksCmd())

	if err := rootCmd.Execute(); err != nil {
		// check has already explained itself
		if !errors.Is(err, cmd.ErrUnavailable) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
