// Package cli implements the devicegate command line: the server,
// offline bundle checks, and operator tooling over the durable store
// and the decision audit log.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/soloport/devicegate/internal/store"
)

var (
	flagSQLite   string
	flagRedis    string
	flagAuditLog string
)

var rootCmd = &cobra.Command{
	Use:   "devicegate",
	Short: "Device-authenticity gate for a single-owner dashboard",
	Long: "Fingerprints client devices, classifies emulators, VMs, and spoofed\n" +
		"clones, and restricts mutating operations to the one registered\n" +
		"authentic device. Disqualified fingerprints are blocked permanently.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSQLite, "sqlite", defaultFile("devicegate.db"), "Path to the sqlite store")
	rootCmd.PersistentFlags().StringVar(&flagRedis, "redis", "", "Redis URL for the durable store (overrides --sqlite)")
	rootCmd.PersistentFlags().StringVar(&flagAuditLog, "audit-log", defaultFile("decisions.jsonl"), "Path to the decision audit log")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// defaultFile resolves a filename under ~/.devicegate.
func defaultFile(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".devicegate", name)
}

// openBackend opens the durable store selected by the persistent flags.
func openBackend() (store.Backend, error) {
	backend, err := store.Open(store.Config{SQLitePath: flagSQLite, RedisURL: flagRedis})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if backend == nil {
		return nil, fmt.Errorf("no durable store configured (set --sqlite or --redis)")
	}
	return backend, nil
}
