package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/portlease/internal/service"
)

// NewRegisterCmd creates the register command
func NewRegisterCmd() *cobra.Command {
	var (
		agent  string
		reason string
		ttl    float64
		output string
	)

	cmd := &cobra.Command{
		Use:   "register <port>",
		Short: "Claim a port",
		Long: `Records a lease on a port for an agent. The lease expires after --ttl
minutes unless renewed with heartbeat. Fails if the port is already registered.`,
		Example: `  portlease register 8080 --agent build-42 --reason "dev server"
  portlease register 5432 --agent ci --reason postgres --ttl 15`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}
			req := service.RegisterRequest{Port: port, Agent: agent, Reason: reason}
			if cmd.Flags().Changed("ttl") {
				req.TTLMinutes = &ttl
			}
			return withApp(func(a *app) error {
				return registerLocal(cmd.Context(), a, cmd.OutOrStdout(), output, req)
			})
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "", "Name of the agent claiming the port (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the port is needed (required)")
	cmd.Flags().Float64Var(&ttl, "ttl", 0, "Lease length in minutes (default from DEFAULT_TTL_MINUTES)")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json or yaml")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func registerLocal(ctx context.Context, a *app, w io.Writer, output string, req service.RegisterRequest) error {
	r, err := a.svc.Register(ctx, req)
	if err != nil {
		return err
	}
	now := a.reg.Now()
	return render(w, output, r, func(w io.Writer) { printRegistration(w, "Registered", now, r) })
}

// NewHeartbeatCmd creates the heartbeat command
func NewHeartbeatCmd() *cobra.Command {
	var (
		agent  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "heartbeat <port>",
		Short: "Renew a lease",
		Long:  `Extends the lease on a port by the default TTL from now.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}
			return withApp(func(a *app) error {
				return heartbeatLocal(cmd.Context(), a, cmd.OutOrStdout(), output, port, agent)
			})
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "", "Agent that owns the lease; ownership is not checked when empty")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json or yaml")

	return cmd
}

func heartbeatLocal(ctx context.Context, a *app, w io.Writer, output string, port int, agent string) error {
	r, err := a.svc.Heartbeat(ctx, port, agent)
	if err != nil {
		return err
	}
	now := a.reg.Now()
	return render(w, output, r, func(w io.Writer) { printRegistration(w, "Renewed", now, r) })
}

// NewReleaseCmd creates the release command
func NewReleaseCmd() *cobra.Command {
	var agent string

	cmd := &cobra.Command{
		Use:   "release <port>",
		Short: "Give up a lease",
		Long:  `Removes the registration on a port.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}
			return withApp(func(a *app) error {
				return releaseLocal(cmd.Context(), a, cmd.OutOrStdout(), port, agent)
			})
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "", "Agent that owns the lease; ownership is not checked when empty")

	return cmd
}

func releaseLocal(ctx context.Context, a *app, w io.Writer, port int, agent string) error {
	r, err := a.svc.Release(ctx, port, agent)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "Released port %s (was held by %s)\n", green(r.Port), r.Agent)
	return nil
}

// NewClearCmd creates the clear command
func NewClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every registration",
		Long:  `Empties the registry regardless of owner. Requires --yes.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the registry without --yes")
			}
			return withApp(func(a *app) error {
				return clearLocal(cmd.Context(), a, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm removal of all registrations")

	return cmd
}

func clearLocal(ctx context.Context, a *app, w io.Writer) error {
	n, err := a.svc.ClearAll(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "Cleared %d registration(s)\n", n)
	return nil
}
