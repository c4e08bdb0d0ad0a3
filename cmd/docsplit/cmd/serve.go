package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/docsplit/internal/batch"
	"github.com/MeKo-Tech/docsplit/internal/server"
	"github.com/MeKo-Tech/docsplit/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job status server",
	Long: `Start an HTTP server exposing the batch job surface.

The server provides the following endpoints:
  POST /jobs             - Start a batch over a directory of pages
  GET  /jobs             - List known jobs
  GET  /jobs/{id}        - Inspect one job
  POST /jobs/{id}/cancel - Request cooperative cancellation
  GET  /jobs/{id}/ws     - Live status updates over WebSocket
  GET  /metrics          - Prometheus metrics
  GET  /health           - Health check endpoint

Examples:
  docsplit serve
  docsplit serve --port 8080
  docsplit serve --host 0.0.0.0 --port 3000`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	host := cfg.Server.Host
	if cmd.Flags().Changed("host") {
		host, _ = cmd.Flags().GetString("host")
	}
	port := cfg.Server.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}
	corsOrigin := cfg.Server.CORSOrigin
	if cmd.Flags().Changed("cors-origin") {
		corsOrigin, _ = cmd.Flags().GetString("cors-origin")
	}
	timeout := cfg.Server.TimeoutSec
	if cmd.Flags().Changed("timeout") {
		timeout, _ = cmd.Flags().GetInt("timeout")
	}
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if cmd.Flags().Changed("shutdown-timeout") {
		shutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	runner := buildRunner(cfg, batch.NoOpProgressCallback{})
	prometheus.MustRegister(server.NewJobCollector(runner))

	serverConfig := server.Config{
		Host:       host,
		Port:       port,
		CORSOrigin: corsOrigin,
		TimeoutSec: timeout,
	}
	statusServer := server.NewServer(serverConfig, runner)

	mux := http.NewServeMux()
	statusServer.SetupRoutes(mux)

	httpServer := &http.Server{
		Addr:              serverConfig.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(timeout) * time.Second,
		// WebSocket status streams outlive the write timeout; the handler
		// closes them itself once the job terminates.
	}

	go func() {
		slog.Info("Starting status server", "host", host, "port", port, "version", version.String())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(shutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "listen host")
	serveCmd.Flags().IntP("port", "p", 0, "listen port")
	serveCmd.Flags().String("cors-origin", "", "allowed CORS origin")
	serveCmd.Flags().Int("timeout", 0, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 0, "graceful shutdown timeout in seconds")
}
