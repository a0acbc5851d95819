package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thatjpcsguy/portlease/internal/server"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  `Serves the port registry over HTTP until interrupted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withApp(func(a *app) error {
				if addr == "" {
					addr = a.cfg.ListenAddr
				}
				srv := server.New(a.svc,
					server.WithSuggestRange(a.cfg.SuggestMin, a.cfg.SuggestMax),
					server.WithLogger(a.log.Named("http")))

				a.log.Info("starting",
					zap.String("store", a.cfg.StorePath),
					zap.String("driver", a.cfg.StoreDriver),
					zap.Duration("default_ttl", a.cfg.DefaultTTL()))
				return srv.ListenAndServe(ctx, addr)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Address to listen on (default from LISTEN_ADDR)")

	return cmd
}
