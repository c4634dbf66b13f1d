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

	"github.com/fieldlens-tech/fieldlens/internal/server"
	"github.com/fieldlens-tech/fieldlens/internal/storage"
	"github.com/fieldlens-tech/fieldlens/internal/store"
	"github.com/fieldlens-tech/fieldlens/internal/worker"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the field detection API",
	Long: `Start an HTTP server that processes stored documents on request.

The server provides the following endpoints:
  GET  /health                       - Health check endpoint
  POST /process                      - Run detection for a document
  GET  /documents/{id}/fields        - List detected field regions
  WS   /ws/process                   - Process with progress streaming
  GET  /metrics                      - Prometheus metrics

Examples:
  fieldlens serve
  fieldlens serve --port 8080
  fieldlens serve --host 0.0.0.0 --port 3000 --no-vision`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("host", "H", "0.0.0.0", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("timeout", 300, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Bool("ensure-schema", false, "create missing database tables on startup")
	serveCmd.Flags().Float64("dpi", 0, "render resolution for the geometric pass (0=config default)")
	serveCmd.Flags().Float64("iou", 0, "IoU threshold for merging overlapping detections (0=config default)")
	serveCmd.Flags().Bool("no-vision", false, "disable the vision detection pass")
	serveCmd.Flags().String("vision-provider", "", "vision provider (openai, gemini)")
	serveCmd.Flags().Bool("text-filter", false, "suppress detections that overlap printed text")
}

// runServe wires the store, storage and pipeline into the HTTP server and
// runs it until a shutdown signal arrives.
func runServe(cmd *cobra.Command, args []string) error {
	// Get configuration from centralized system (includes CLI flags, config file, env vars, and defaults)
	cfg := GetConfig()

	// Extract server configuration with CLI flag overrides
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

	// Validate port number
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
	}

	if cfg.Database.URL == "" {
		return errors.New("database.url is required (set FIELDLENS_DATABASE_URL or database.url in the config file)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	err = st.Ping(pingCtx)
	pingCancel()
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("database is not reachable: %w", err)
	}

	if ensure, _ := cmd.Flags().GetBool("ensure-schema"); ensure {
		if err := st.EnsureSchema(ctx); err != nil {
			_ = st.Close()
			return fmt.Errorf("failed to ensure database schema: %w", err)
		}
	}

	files, err := storage.New(ctx, cfg.ToStorageConfig())
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	pipe := detectionPipelineFromConfig(cfg, cmd)
	processor := worker.NewProcessor(st, st, files, pipe)

	serverConfig := server.Config{
		Host:       host,
		Port:       port,
		CORSOrigin: corsOrigin,
		TimeoutSec: timeout,
	}
	fieldServer := server.NewServer(serverConfig, processor, st)

	mux := http.NewServeMux()
	fieldServer.SetupRoutes(mux)

	httpServer := &http.Server{
		Addr:              serverConfig.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(timeout) * time.Second,
		WriteTimeout:      time.Duration(timeout) * time.Second,
	}

	go func() {
		slog.Info("Starting fieldlens server",
			"host", host, "port", port,
			"storage", cfg.Storage.Backend,
			"vision", pipe.VisionConfigured())
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
		slog.Info("Context cancelled, initiating shutdown")
	}

	slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeout)*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server first
	slog.Info("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server shutdown completed")
	}

	// Close the database pool
	slog.Info("Closing database connection")
	if err := st.Close(); err != nil {
		slog.Error("Database close error", "error", err)
	} else {
		slog.Info("Database connection closed")
	}

	slog.Info("Graceful shutdown completed")
	return nil
}
