package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/erazemk/najdeno/internal/api"
	"github.com/erazemk/najdeno/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the HTTP API server until interrupted.

On shutdown the server stops accepting requests, then waits for credit,
notification and ledger work of completed handovers before exiting.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithServices(cmd, serve)
	},
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "listen address (default: :8080)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))

	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, s *services) error {
	secret := s.cfg.Server.JWTSecret
	if secret == "" {
		var err error
		if secret, err = store.JWTSecret(ctx, s.db); err != nil {
			return err
		}
	}

	if s.conn != nil {
		if err := s.conn.Open(ctx); err != nil {
			// Recording binds again on first use.
			slog.Warn("ledger unavailable at startup", "error", err)
		} else {
			slog.Info("ledger connected", "endpoint", s.conn.Endpoint())
		}
	}

	router := api.NewRouter(api.Deps{
		DB:        s.db,
		JWTSecret: secret,
		Matcher:   s.matcher,
		Handover:  s.handover,
		Ledger:    s.recorder,
	})

	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           api.LoggingMiddleware(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server started", "addr", server.Addr, "ledger", s.recorder != nil)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server stopped, waiting for background work")
	return nil
}
