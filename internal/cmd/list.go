package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	var (
		remote bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered ports",
		Long:  `Lists every active registration with its live OS presence.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			if remote {
				return runRemote(cmd, remoteArgs(cmd, args)...)
			}
			return withApp(func(a *app) error {
				return listLocal(cmd.Context(), a, cmd.OutOrStdout(), output)
			})
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "List registrations on the remote host")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json or yaml")

	return cmd
}

func listLocal(ctx context.Context, a *app, w io.Writer, output string) error {
	listing, err := a.svc.List(ctx)
	if err != nil {
		return err
	}
	now := a.reg.Now()
	return render(w, output, listing, func(w io.Writer) { printListing(w, now, listing) })
}

// NewSystemCmd creates the system command
func NewSystemCmd() *cobra.Command {
	var (
		remote bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "system",
		Short: "List every listening port on this machine",
		Long:  `Lists all ports bound on this machine, annotated with their registration if any.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			if remote {
				return runRemote(cmd, remoteArgs(cmd, args)...)
			}
			return withApp(func(a *app) error {
				return systemLocal(cmd.Context(), a, cmd.OutOrStdout(), output)
			})
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Scan the remote host")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json or yaml")

	return cmd
}

func systemLocal(ctx context.Context, a *app, w io.Writer, output string) error {
	listing, err := a.svc.System(ctx)
	if err != nil {
		return err
	}
	return render(w, output, listing, func(w io.Writer) { printSystem(w, listing) })
}

func withApp(fn func(*app) error) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(a)
}
