package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/toolpad/internal/infrastructure/server"
)

var serveFlags struct {
	port    string
	host    string
	dev     bool
	seedDir string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server.

Routes:
  POST /api/rpc             typed RPC (queries and mutations)
  GET  /api/app-dom/:appId  app DOM, readable from any origin
  GET  /health              component statistics
  GET  /metrics             Prometheus metrics

SIGINT and SIGTERM shut the server down gracefully.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.port, "port", "", "listen port (overrides PORT)")
	serveCmd.Flags().StringVar(&serveFlags.host, "host", "", "listen address (overrides HOST)")
	serveCmd.Flags().BoolVar(&serveFlags.dev, "dev", false, "development logging: colored console output at debug level")
	serveCmd.Flags().StringVar(&serveFlags.seedDir, "seed-dir", "", "directory of YAML app seeds (overrides SEED_DIR)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.port != "" {
		cfg.Server.Port = serveFlags.port
	}
	if serveFlags.host != "" {
		cfg.Server.Host = serveFlags.host
	}
	if serveFlags.dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	if serveFlags.seedDir != "" {
		cfg.Store.SeedDir = serveFlags.seedDir
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errChan:
		if closeErr := srv.Close(); closeErr != nil {
			zap.L().Warn("Cleanup after server error failed", zap.Error(closeErr))
		}
		return err
	}
}
