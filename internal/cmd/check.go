package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
)

// NewCheckCmd creates the check command
func NewCheckCmd() *cobra.Command {
	var (
		remote bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "check <port>",
		Short: "Check whether a port is free to use",
		Long: `Checks a port against the registry and the live OS state and prints a
recommendation. Exits non-zero when the port is unavailable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}
			if remote {
				return runRemote(cmd, remoteArgs(cmd, args)...)
			}
			return withApp(func(a *app) error {
				return checkLocal(cmd.Context(), a, cmd.OutOrStdout(), output, port)
			})
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Check the port on the remote host")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json or yaml")

	return cmd
}

// ErrUnavailable is returned by check when the port should not be used
const ErrUnavailable = errors.ConstError("port unavailable")

func checkLocal(ctx context.Context, a *app, w io.Writer, output string, port int) error {
	res, err := a.svc.Check(ctx, port)
	if err != nil {
		return err
	}
	if err := render(w, output, res, func(w io.Writer) { printCheck(w, res) }); err != nil {
		return err
	}
	if !res.Available {
		return ErrUnavailable
	}
	return nil
}

func parsePort(raw string) (int, error) {
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", raw)
	}
	return port, nil
}
