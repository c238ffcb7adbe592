package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mcp-glucose-insights/internal/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP tool server over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host address (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port for HTTP transport (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, cfg, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	srvCfg := &server.Config{Host: cfg.Server.Host, Port: cfg.Server.Port}
	if serveHost != "" {
		srvCfg.Host = serveHost
	}
	if servePort != 0 {
		srvCfg.Port = servePort
	}

	srv, err := server.NewInsightsServer(srvCfg, a, a.Log)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-sigCh:
		a.Log.Info("Received shutdown signal")
	case err := <-errCh:
		a.Log.Error("Server error", "error", err)
		return err
	}

	a.Log.Info("Shutting down...")
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Stop(shutdownCtx); err != nil {
		a.Log.Warn("Error during shutdown", "error", err)
	}
	return nil
}
