package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/toolselector/internal/server"
)

var (
	portFlag  int
	watchFlag bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP server with REST API and WebSocket support on localhost.

API endpoints are under /api. Connected WebSocket clients at /api/ws are told
about every change.

Examples:
  toolselector serve
  toolselector serve --port 9090 --watch`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides settings)")
	serveCmd.Flags().BoolVar(&watchFlag, "watch", false, "Reload when the configuration file is edited elsewhere")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	port := a.cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(a.registry, server.WithHistory(a.history), server.WithLogger(a.log))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if watchFlag || a.cfg.Server.Watch {
		go func() {
			if err := srv.Watch(ctx); err != nil {
				a.log.Error().Err(err).Msg("watcher stopped")
			}
		}()
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
		srv.Shutdown(context.Background())
	}()

	if err := srv.Start(port); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
