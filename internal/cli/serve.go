package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soloport/devicegate/internal/server"
	"github.com/soloport/devicegate/internal/store"
)

var (
	serveAddr        string
	serveConfig      string
	serveAdminOrigin string
	serveRingSize    int
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "HTTP listen address")
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "Path to classifier config YAML (built-in defaults when empty)")
	serveCmd.Flags().StringVar(&serveAdminOrigin, "admin-origin", "", "CORS origin allowed on the admin API")
	serveCmd.Flags().IntVar(&serveRingSize, "ring-size", 256, "Recent decisions kept in memory for the admin API")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gate HTTP server",
	Long: "Runs the access gate: gating middleware endpoints, explicit check\n" +
		"endpoint, and the admin read API.\n" +
		"Supports hot-reload of the classifier config file.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	srv, err := server.New(server.Config{
		Addr:           serveAddr,
		ClassifierPath: serveConfig,
		AuditLogPath:   flagAuditLog,
		AdminOrigin:    serveAdminOrigin,
		RingSize:       serveRingSize,
		Store:          store.Config{SQLitePath: flagSQLite, RedisURL: flagRedis},
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloader, err := server.NewReloader(srv)
	if err != nil {
		logger.Warn("hot-reload disabled", "error", err)
	}
	if reloader != nil {
		go reloader.Run(ctx)
		logger.Info("classifier hot-reload enabled", "path", serveConfig)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	return srv.Serve(ctx)
}
