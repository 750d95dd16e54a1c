package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sitescan/internal/api"
)

func newServeCmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scan API server",
		Long: `Starts the HTTP API: image scans, signup/login, static uploads and
Prometheus metrics.`,
		Example: `  # Start server on the configured address (default :5000)
  sitescan serve

  # Start server on a custom address
  sitescan serve --addr :8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := opts.cfg, opts.log
			if addr == "" {
				addr = cfg.Server.Addr()
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.Log.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			server := &http.Server{
				Addr:              addr,
				Handler:           api.NewRouter(a.handler),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				log.Info("sitescan listening", zap.String("addr", addr), zap.String("provider", cfg.Model.Provider))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-ctx.Done():
				log.Info("shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSecs)*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					log.Error("server shutdown failed", zap.Error(err))
					return err
				}
				log.Info("server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides server.address and PORT)")

	return cmd
}
