package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/3ltranslate/legtrans/internal/handlers"
	"github.com/3ltranslate/legtrans/internal/images"
	"github.com/3ltranslate/legtrans/internal/storage"
	"github.com/3ltranslate/legtrans/internal/subscription"
	"github.com/3ltranslate/legtrans/internal/workspace"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		port    string
		migrate bool
		open    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web API",
		Long: `Starts the legtrans HTTP API on the specified port.

Requests must carry the authenticated user id in the X-User-ID header, which
is expected to be set by the authenticating reverse proxy. OCR and translation
require an active subscription unless --open is given.`,
		Example: `  # Start server on default port 8888
  legtrans serve

  # Use PostgreSQL and create tables on startup
  DATABASE_URL=postgres://localhost/legtrans?sslmode=disable legtrans serve --migrate

  # Local development without subscription checks
  legtrans serve --port 3000 --open`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") || cfg.Port == "" {
				cfg.Port = port
			}

			svc, err := newServices(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			if migrate {
				if pg, ok := svc.store.(*storage.PostgresStore); ok {
					if err := pg.Migrate(cmd.Context()); err != nil {
						return err
					}
					slog.Info("Database schema is up to date")
				}
			}

			handler := handlers.New(handlers.Deps{
				Workspaces:          workspace.NewStore(svc.ocr, svc.translation).WithKeys(svc.keyring),
				History:             svc.store,
				Translators:         svc.store,
				Subscriptions:       subscription.NewService(svc.store),
				Keys:                svc.keyring,
				Fetcher:             images.NewFetcher(),
				StaticDir:           cfg.StaticDir,
				RequireSubscription: !open,
			})

			addr := ":" + cfg.Port
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("legtrans API available", "addr", addr, "url", "http://localhost"+addr, "ocr_backend", cfg.OCR.Backend, "translator", cfg.Translation.Backend)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Create database tables before serving")
	cmd.Flags().BoolVar(&open, "open", false, "Do not require an active subscription")

	return cmd
}
