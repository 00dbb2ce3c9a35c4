package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/mybget/pkg/api"
	"github.com/matzehuels/mybget/pkg/manager"
)

// shutdownTimeout bounds how long in-flight requests may run after the
// server is asked to stop.
const shutdownTimeout = 5 * time.Second

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalog as read-only JSON over HTTP",
		Long: `Serve the catalog over HTTP until interrupted.

Endpoints:
  GET /health
  GET /modules?name=&desc=&lang=&type=&q=
  GET /modules/{name}
  GET /modules/{name}/versions
  GET /installed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withManager(ctx, func(m *manager.Manager) error {
				srv := &http.Server{
					Addr:              addr,
					Handler:           api.NewRouter(m, c.Logger),
					ReadHeaderTimeout: 10 * time.Second,
				}
				printSuccess("Serving catalog on %s", StyleLink.Render("http://"+addr))
				return serve(ctx, srv)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	return cmd
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
