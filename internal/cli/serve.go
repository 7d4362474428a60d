package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/portjar/internal/logger"
	"github.com/mmr-tortoise/portjar/internal/server"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// serveFlags holds the flag values for the serve command.
type serveFlags struct {
	// listen overrides the configured listen address.
	listen string
}

// NewServeCommand creates the "serve" cobra command.
func NewServeCommand() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the jar over HTTP",
		Long: `Load the jar and serve it over HTTP until interrupted. Every change
is written back to the store.

The file store stays locked while serving, so other portjar commands
pointed at the same jar wait until the server stops. Use the HTTP API, or
the redis store, to share a jar.

Examples:
  portjar serve
  portjar serve --listen 0.0.0.0:7575`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.listen, "listen", "", "Listen address (default from config)")

	return cmd
}

func runServe(ctx context.Context, flags *serveFlags) error {
	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.close()

	addr := s.cfg.Listen
	if flags.listen != "" {
		addr = flags.listen
	}

	persister := server.NewPersister(s.jar, s.store, s.log)
	persistCtx, stopPersist := context.WithCancel(context.WithoutCancel(ctx))
	persistDone := make(chan error, 1)
	go func() { persistDone <- persister.Run(persistCtx) }()

	srv := server.New(addr, s.jar, s.log)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	select {
	case err = <-serveErr:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		err = srv.Stop(shutdownCtx)
		cancel()
	}

	stopPersist()
	if perr := <-persistDone; perr != nil {
		s.log.Error("final save failed", logger.Error(perr))
		if err == nil {
			err = perr
		}
	}
	return err
}
