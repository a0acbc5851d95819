package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/portlease/internal/config"
	"github.com/thatjpcsguy/portlease/internal/ssh"
)

// runRemote runs the same portlease command on REMOTE_HOST
func runRemote(cmd *cobra.Command, args ...string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.RequireRemote(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Connecting to %s@%s...\n", cfg.RemoteUser, cfg.RemoteHost)

	client, err := ssh.NewClient(cfg.RemoteUser, cfg.RemoteHost)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = client.Close() }()

	return client.Run(ssh.PortleaseCommand(cfg.RemoteBaseDir, args...), cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// remoteArgs rebuilds the command line for remote execution, minus --remote
func remoteArgs(cmd *cobra.Command, args []string) []string {
	out := []string{cmd.Name()}
	out = append(out, args...)
	if f := cmd.Flags().Lookup("output"); f != nil && f.Changed {
		out = append(out, "--output", f.Value.String())
	}
	for _, name := range []string{"min", "max"} {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			out = append(out, "--"+name, f.Value.String())
		}
	}
	return out
}
