package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/portlease/internal/allocator"
)

// NewSuggestCmd creates the suggest command
func NewSuggestCmd() *cobra.Command {
	var (
		remote bool
		output string
		lo, hi int
	)

	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest a free port",
		Long: `Prints the lowest port in the range that is neither registered nor bound.
The suggestion is not reserved; register it before use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			if remote {
				return runRemote(cmd, remoteArgs(cmd, args)...)
			}
			return withApp(func(a *app) error {
				if !cmd.Flags().Changed("min") {
					lo = a.cfg.SuggestMin
				}
				if !cmd.Flags().Changed("max") {
					hi = a.cfg.SuggestMax
				}
				return suggestLocal(cmd.Context(), a, cmd.OutOrStdout(), cmd.ErrOrStderr(), output, lo, hi)
			})
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Suggest a port on the remote host")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json or yaml")
	cmd.Flags().IntVar(&lo, "min", allocator.DefaultMin, "Lowest port to consider (default from SUGGEST_MIN)")
	cmd.Flags().IntVar(&hi, "max", allocator.DefaultMax, "Highest port to consider (default from SUGGEST_MAX)")

	return cmd
}

func suggestLocal(ctx context.Context, a *app, w, errw io.Writer, output string, lo, hi int) error {
	s, err := a.svc.Suggest(ctx, lo, hi)
	if err != nil {
		return err
	}
	return render(w, output, s, func(w io.Writer) { printSuggestion(w, errw, s) })
}
