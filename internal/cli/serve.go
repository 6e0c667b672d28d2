package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/PabloGalante/suma-triage/internal/adapters/http"
	"github.com/PabloGalante/suma-triage/internal/app/emergency"
	"github.com/PabloGalante/suma-triage/internal/observability"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr   string
		origin string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local API for the web front end",
		Long: `Start the local HTTP API.

Examples:
  suma serve
  suma serve --addr 127.0.0.1:9090 --origin http://localhost:5173`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.ListenAddr
			}
			if origin == "" {
				origin = a.cfg.AllowedOrigin
			}

			inbox := emergency.NewInbox(20)
			handler := httpadapter.NewServer(httpadapter.Deps{
				Controller:    a.controller,
				Emergency:     a.emergencyService(inbox, inbox, inbox),
				Inbox:         inbox,
				Gatherer:      a.registry,
				AllowedOrigin: origin,
			})

			if _, err := a.controller.Boot(ctx); err != nil {
				observability.Logger().Warn("boot failed", "error", err)
			}

			return serve(ctx, addr, handler)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to listen_addr from config)")
	cmd.Flags().StringVar(&origin, "origin", "", "web front end origin allowed to call the API (defaults to allowed_origin from config; empty means same-origin only)")
	return cmd
}

func serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		observability.Logger().Info("suma api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	observability.Logger().Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
