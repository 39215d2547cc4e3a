package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/promptfinder/internal/api"
)

// newServeCmd creates the serve command for the API server.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the pf API server used by workflow pages.

The server provides REST endpoints for presets, profile values and visits,
one-shot rendering, and a websocket live-render session per page.

If the requested port is in use, the server will try subsequent ports
up to max-port-attempts times (default: 10). For example, if port 8080
is busy, it will try 8081, 8082, etc.

Example:
  pf serve              # Start on default port 8080
  pf serve --port 3000  # Start on custom port`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := loadConfig()
			if err != nil {
				return err
			}
			cfg := tc.Config

			if cmd.Flags().Changed("port") {
				cfg.Server.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host, _ = cmd.Flags().GetString("host")
			}
			if cmd.Flags().Changed("max-port-attempts") {
				cfg.Server.MaxPortAttempts, _ = cmd.Flags().GetInt("max-port-attempts")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			st, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			catalog, err := openCatalog(cfg)
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			server := api.New(&api.Config{
				Addr:            cfg.Addr(),
				MaxPortAttempts: cfg.Server.MaxPortAttempts,
				AllowedOrigins:  cfg.Server.AllowedOrigins,
				Logger:          slog.Default(),
				Store:           st,
				Catalog:         catalog,
				Location:        loc,
			})

			ln, err := server.Listen()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Serving %d workflows on http://%s\n", catalog.Len(), ln.Addr())
			_, _ = fmt.Fprintln(out, "Press Ctrl+C to stop")

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Serve(gctx, ln)
			})
			g.Go(func() error {
				watchSignals(gctx, cancel, out)
				return nil
			})
			return g.Wait()
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "port to listen on")
	cmd.Flags().String("host", "127.0.0.1", "address to bind")
	cmd.Flags().Int("max-port-attempts", 10, "max ports to try if initial port is busy")
	return cmd
}

// watchSignals cancels on the first SIGINT/SIGTERM and exits the process on
// the second. It returns when ctx is done.
func watchSignals(ctx context.Context, cancel context.CancelFunc, out io.Writer) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		return
	case sig := <-sigCh:
		_, _ = fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}

	select {
	case <-ctx.Done():
	case sig := <-sigCh:
		_, _ = fmt.Fprintf(out, "\nReceived %s again, forcing exit\n", sig)
		os.Exit(1)
	}
}
