package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/portlease/internal/hooks"
	"github.com/thatjpcsguy/portlease/internal/service"
)

// NewHooksCmd creates the hooks command
func NewHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks <hook-name> <port>",
		Short: "Manually run a lifecycle hook",
		Long: `Runs a lifecycle hook for the active registration on a port.

Hooks are looked up as <HOOKS_DIR>/<hook-name>.sh, falling back to the
POST_REGISTER_SCRIPT / POST_RELEASE_SCRIPT config values.

Available hooks:
  post-register  - Runs after a port is registered
  post-release   - Runs after a port is released

The hook sees PORTLEASE_PORT, PORTLEASE_AGENT, PORTLEASE_REASON,
PORTLEASE_ID and PORTLEASE_EXPIRES_AT in its environment.`,
		Example: `  portlease hooks post-register 8080`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hookType, err := parseHook(args[0])
			if err != nil {
				return err
			}
			port, err := parsePort(args[1])
			if err != nil {
				return err
			}

			return withApp(func(a *app) error {
				active, err := a.reg.Active()
				if err != nil {
					return err
				}
				for _, r := range active {
					if r.Port != port {
						continue
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Running %s hook for port %d...\n", hookType, port)
					return a.hooks.Execute(cmd.Context(), hookType, service.HookEnv(r))
				}
				return fmt.Errorf("no active registration for port %d", port)
			})
		},
	}

	return cmd
}

func parseHook(name string) (hooks.HookType, error) {
	switch hooks.HookType(name) {
	case hooks.PostRegister, hooks.PostRelease:
		return hooks.HookType(name), nil
	}
	return "", fmt.Errorf("unknown hook %q (want %s or %s)", name, hooks.PostRegister, hooks.PostRelease)
}
