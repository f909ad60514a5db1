package cli

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/server"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		listen     string
		audit      bool
		auditReads bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the memory tools over a websocket",
		Long: `Serve add_memory, search_memory, get_memory and delete_memory over a
websocket at /ws, with /health and /tools endpoints.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The server always logs.
			log.SetOutput(cmd.ErrOrStderr())

			if listen != "" {
				a.cfg.Server.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, cleanup, err := a.openRetriever(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			cfg := server.Config{
				ListenAddr: a.cfg.Server.Listen,
				Retriever:  r,
			}
			if audit {
				cfg.Audit = &engine.LogAuditLogger{WritesOnly: !auditReads}
			}

			srv, err := server.New(cfg)
			if err != nil {
				return err
			}
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "host:port to listen on (default: server.listen)")
	cmd.Flags().BoolVar(&audit, "audit", false, "log an audit line per write")
	cmd.Flags().BoolVar(&auditReads, "audit-reads", false, "with --audit, also log reads")

	return cmd
}
